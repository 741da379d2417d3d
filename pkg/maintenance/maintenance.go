package maintenance

import (
	"NAS_Gallery/pkg/hasher"
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
)

// Maintenance 定义了维护工具的接口
type Maintenance interface {
	GenerateFileManifest(ctx context.Context, libraryPath, outputPath string) (string, error)
	BackupDatabase(ctx context.Context, dbURI, dbName, outputPath string) (string, error)
}

type defaultMaintenance struct {
	logger     *slog.Logger
	numWorkers int
}

// NewMaintenance 创建一个新的维护模块实例
func NewMaintenance(workerCount int) Maintenance {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	return &defaultMaintenance{
		logger:     slog.Default().With("module", "maintenance"),
		numWorkers: workerCount,
	}
}

// GenerateFileManifest 并发地为媒体库生成 sha256sum 兼容的文件清单，返回清单文件路径。
// 每行格式为 "<hash> *<相对路径>"，按路径排序，便于与历史清单做 diff。
func (m *defaultMaintenance) GenerateFileManifest(ctx context.Context, libraryPath, outputPath string) (string, error) {
	m.logger.Info("--- 开始生成文件清单 (File Manifest) ---", "library", libraryPath)

	absLibrary, err := filepath.Abs(libraryPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(outputPath, 0755); err != nil {
		return "", fmt.Errorf("无法创建输出目录: %w", err)
	}

	// 1. 设置并发工作池
	var wg sync.WaitGroup
	tasks := make(chan string, m.numWorkers)
	results := make(chan string, m.numWorkers)

	for i := 0; i < m.numWorkers; i++ {
		wg.Add(1)
		go m.manifestWorker(&wg, absLibrary, tasks, results)
	}

	// 单独的协程收集结果，避免并发写
	var lines []string
	collected := make(chan struct{})
	go func() {
		for line := range results {
			lines = append(lines, line)
		}
		close(collected)
	}()

	// 2. 分发任务；fastwalk 的回调是并发调用的，只向通道发送
	conf := &fastwalk.Config{NumWorkers: m.numWorkers}
	walkErr := fastwalk.Walk(conf, absLibrary, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			m.logger.Warn("读取路径失败，已跳过", "path", path, "error", err)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		select {
		case tasks <- path:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	close(tasks)
	wg.Wait()
	close(results)
	<-collected

	if walkErr != nil {
		return "", fmt.Errorf("扫描媒体库失败: %w", walkErr)
	}

	// 3. 写入清单文件
	sort.Slice(lines, func(i, j int) bool { return manifestEntryPath(lines[i]) < manifestEntryPath(lines[j]) })
	manifestFileName := fmt.Sprintf("manifest_%s.txt", time.Now().Format("2006-01-02"))
	manifestPath := filepath.Join(outputPath, manifestFileName)
	file, err := os.Create(manifestPath)
	if err != nil {
		return "", fmt.Errorf("无法创建清单文件: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, line := range lines {
		if _, err := w.WriteString(line); err != nil {
			return "", fmt.Errorf("写入清单文件失败: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("写入清单文件失败: %w", err)
	}

	m.logger.Info("--- 文件清单生成完毕 ---", "path", manifestPath, "files", len(lines))
	return manifestPath, nil
}

// manifestWorker 是计算哈希并格式化输出的工人
func (m *defaultMaintenance) manifestWorker(wg *sync.WaitGroup, root string, tasks <-chan string, results chan<- string) {
	defer wg.Done()
	for path := range tasks {
		hash, err := hasher.CalculateSHA256(path)
		if err != nil {
			m.logger.Warn("计算文件哈希失败", "path", path, "error", err)
			continue
		}
		relPath, err := filepath.Rel(root, path)
		if err != nil {
			relPath = path
		}
		// 为了可移植性，将路径分隔符统一为 '/'
		results <- fmt.Sprintf("%s *%s\n", hash, filepath.ToSlash(relPath))
	}
}

func manifestEntryPath(line string) string {
	_, path, _ := strings.Cut(line, " *")
	return path
}

// BackupDatabase 调用 mongodump 工具来备份数据库，返回归档文件路径
func (m *defaultMaintenance) BackupDatabase(ctx context.Context, dbURI, dbName, outputPath string) (string, error) {
	m.logger.Info("--- 开始执行数据库备份 ---")

	// 检查 mongodump 命令是否存在
	if _, err := exec.LookPath("mongodump"); err != nil {
		m.logger.Error("在系统 PATH 中找不到 'mongodump' 命令，请确保已正确安装 MongoDB Database Tools")
		return "", fmt.Errorf("'mongodump' command not found in PATH")
	}
	if err := os.MkdirAll(outputPath, 0755); err != nil {
		return "", fmt.Errorf("无法创建输出目录: %w", err)
	}

	backupFileName := fmt.Sprintf("db_backup_%s.gz", time.Now().Format("2006-01-02_150405"))
	archiveFile := filepath.Join(outputPath, backupFileName)
	m.logger.Info("数据库备份文件将被保存到", "path", archiveFile)

	cmd := exec.CommandContext(ctx, "mongodump",
		"--uri", dbURI,
		"--db", dbName,
		"--archive="+archiveFile,
		"--gzip",
	)
	// mongodump 把进度写到 stderr
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("执行 mongodump 失败: %w", err)
	}

	m.logger.Info("--- 数据库备份成功 ---")
	return archiveFile, nil
}
