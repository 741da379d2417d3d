package task

import (
	"NAS_Gallery/pkg/scanner"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus 定义了任务可能的状态。
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskFinished = errors.New("task already finished")
)

// Task 结构体代表一个后台扫描任务，对外只暴露其快照。
type Task struct {
	ID         string               `json:"id"`
	Root       string               `json:"root"`
	Status     TaskStatus           `json:"status"`
	Processed  int                  `json:"processed"`
	Duplicates int                  `json:"duplicates"`
	Errors     []*scanner.FileError `json:"errors"`
	Message    string               `json:"message,omitempty"`
	StartTime  time.Time            `json:"startTime"`
	EndTime    *time.Time           `json:"endTime,omitempty"`

	cancel context.CancelFunc
}

// Scanner 是任务管理器依赖的扫描能力，由 *scanner.Orchestrator 实现。
type Scanner interface {
	Scan(ctx context.Context, root string, opts ...scanner.ScanOption) (scanner.Result, error)
}

// Manager 结构体是任务管理器。
type Manager struct {
	tasks map[string]*Task
	mu    sync.RWMutex
	wg    sync.WaitGroup

	scanner     Scanner
	defaultRoot string
}

// NewManager 创建并返回一个新的任务管理器实例。
func NewManager(s Scanner, defaultRoot string) *Manager {
	return &Manager{
		tasks:       make(map[string]*Task),
		scanner:     s,
		defaultRoot: defaultRoot,
	}
}

// StartScan 创建一个新的扫描任务，并立即在后台启动它。
// 同一根目录同时只允许一个未结束的任务。
func (m *Manager) StartScan(root string) (string, error) {
	absRoot, err := scanner.ResolveRoot(m.defaultRoot, root)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.tasks {
		if t.Root == absRoot && (t.Status == StatusPending || t.Status == StatusRunning) {
			return "", fmt.Errorf("%w: 任务 %s 正在扫描 %s", scanner.ErrScanInProgress, t.ID, absRoot)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		ID:        uuid.New().String(),
		Root:      absRoot,
		Status:    StatusPending,
		Errors:    []*scanner.FileError{},
		StartTime: time.Now(),
		cancel:    cancel,
	}
	m.tasks[t.ID] = t

	m.wg.Add(1)
	go m.runScan(ctx, t)

	return t.ID, nil
}

// GetTaskStatus 根据任务ID返回任务当前状态的副本。
func (m *Manager) GetTaskStatus(taskID string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, exists := m.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	snapshot := *t
	snapshot.Errors = append(make([]*scanner.FileError, 0, len(t.Errors)), t.Errors...)
	snapshot.cancel = nil
	return &snapshot, nil
}

// Cancel 请求取消任务，扫描会在当前文件处理完后停止。
func (m *Manager) Cancel(taskID string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, exists := m.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if t.Status != StatusPending && t.Status != StatusRunning {
		return fmt.Errorf("%w: %s", ErrTaskFinished, taskID)
	}
	t.cancel()
	return nil
}

// Wait 阻塞直到所有后台任务结束
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown 取消所有未结束的任务并等待它们退出
func (m *Manager) Shutdown() {
	m.mu.RLock()
	for _, t := range m.tasks {
		t.cancel()
	}
	m.mu.RUnlock()
	m.wg.Wait()
}

// runScan 是执行具体扫描工作的内部函数。
func (m *Manager) runScan(ctx context.Context, t *Task) {
	defer m.wg.Done()
	defer t.cancel()

	m.mu.Lock()
	t.Status = StatusRunning
	m.mu.Unlock()

	slog.Info("任务启动", "taskId", t.ID, "root", t.Root)

	res, err := m.scanner.Scan(ctx, t.Root, scanner.WithProgress(func(p scanner.Progress) {
		m.mu.Lock()
		t.Processed = p.Processed
		t.Duplicates = p.Duplicates
		m.mu.Unlock()
	}))

	m.mu.Lock()
	defer m.mu.Unlock()

	t.Processed = res.ProcessedCount
	t.Duplicates = res.Duplicates
	if res.Errors != nil {
		t.Errors = res.Errors
	}
	t.Message = res.Message
	switch {
	case errors.Is(err, scanner.ErrCancelled):
		t.Status = StatusCancelled
	case err != nil:
		t.Status = StatusFailed
		t.Message = err.Error()
	default:
		t.Status = StatusCompleted
	}
	endTime := time.Now()
	t.EndTime = &endTime

	slog.Info("任务结束", "taskId", t.ID, "status", t.Status, "processed", t.Processed, "errors", len(t.Errors))
}
