package scanner

import (
	"NAS_Gallery/config"
	"NAS_Gallery/internal/models"
	"NAS_Gallery/pkg/database"
	"NAS_Gallery/pkg/fingerprint"
	"NAS_Gallery/pkg/hasher"
	"NAS_Gallery/pkg/metrics"
	"NAS_Gallery/pkg/thumbnailer"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result 是一次扫描的最终结果。单个文件的失败记录在 Errors 中，不影响 Status。
type Result struct {
	Status         string       `json:"status"`
	ProcessedCount int          `json:"processed_count"`
	Duplicates     int          `json:"duplicates"`
	Errors         []*FileError `json:"errors"`
	Message        string       `json:"message,omitempty"`
}

// Progress 在每个文件处理完后回调
type Progress struct {
	Processed  int
	Duplicates int
	Failed     int
	Current    string
}

type ScanOption func(*scanOptions)

type scanOptions struct {
	progress func(Progress)
}

// WithProgress 为本次扫描注册进度回调
func WithProgress(fn func(Progress)) ScanOption {
	return func(o *scanOptions) { o.progress = fn }
}

// Orchestrator 驱动逐文件的流水线：
// 哈希 -> 去重 -> 相册/标签解析 -> 缩略图、尺寸、指纹 -> 单事务落库。
type Orchestrator struct {
	cfg       config.ScannerConfig
	store     database.Store
	walker    *Walker
	videoExts map[string]struct{}
	thumbs    *thumbnailer.Generator
	engine    *fingerprint.Engine
	tags      *TagResolver
	pool      *Pool

	mu      sync.Mutex
	running map[string]struct{}
}

func NewOrchestrator(cfg config.ScannerConfig, store database.Store) (*Orchestrator, error) {
	slog.Info("初始化扫描协调器 (Orchestrator)...")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	thumbs, err := thumbnailer.NewGenerator(cfg.ThumbnailDir(), cfg.ThumbnailHeight, cfg.ThumbnailQuality)
	if err != nil {
		return nil, fmt.Errorf("创建 Orchestrator 失败: %w", err)
	}

	o := &Orchestrator{
		cfg:       cfg,
		store:     store,
		walker:    NewWalker(cfg.ImageExtensions, cfg.VideoExtensions),
		videoExts: extSet(cfg.VideoExtensions),
		thumbs:    thumbs,
		engine:    fingerprint.NewEngine(cfg.BlurMaxSize, cfg.BlurXComponents, cfg.BlurYComponents),
		tags:      NewTagResolver(store.Tags(), cfg.TagCacheTTL),
		pool:      NewPool(cfg.WorkerCount),
		running:   make(map[string]struct{}),
	}
	slog.Info("扫描协调器初始化成功", "thumbnailDir", cfg.ThumbnailDir(), "workers", cfg.WorkerCount)
	return o, nil
}

// Close 等待工作池中的任务结束
func (o *Orchestrator) Close() {
	o.pool.Close()
}

// Tags 暴露标签解析器，别名变更后需要调用其 Flush
func (o *Orchestrator) Tags() *TagResolver {
	return o.tags
}

func (o *Orchestrator) acquire(root string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.running[root]; busy {
		return false
	}
	o.running[root] = struct{}{}
	return true
}

func (o *Orchestrator) release(root string) {
	o.mu.Lock()
	delete(o.running, root)
	o.mu.Unlock()
}

// ResolveRoot 把扫描根目录解析为绝对路径。空串表示 library 本身，相对路径相对 library 解析。
// 结果必须位于 library 之下，否则返回 ErrRootOutsideLibrary。
func ResolveRoot(library, root string) (string, error) {
	library, err := filepath.Abs(library)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrRootNotFound, library, err)
	}
	switch {
	case root == "":
		root = library
	case !filepath.IsAbs(root):
		root = filepath.Join(library, root)
	}
	absRoot := filepath.Clean(root)
	rel, err := filepath.Rel(library, absRoot)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s 不在 %s 之下", ErrRootOutsideLibrary, absRoot, library)
	}
	return absRoot, nil
}

// Scan 扫描 root (为空时使用配置中的 rootDir)，root 必须位于 rootDir 之下。
// RelPath 总是相对于 rootDir 计算，扫描子目录与扫描整个库得到的记录一致。
// 只有根目录不可用、同一根目录正在扫描以及取消这几种情况返回 error。
func (o *Orchestrator) Scan(ctx context.Context, root string, opts ...ScanOption) (Result, error) {
	var so scanOptions
	for _, opt := range opts {
		opt(&so)
	}
	library, err := filepath.Abs(o.cfg.RootDir)
	if err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrRootNotFound, o.cfg.RootDir, err)
		return failedResult(err), err
	}
	absRoot, err := ResolveRoot(library, root)
	if err != nil {
		return failedResult(err), err
	}

	if !o.acquire(absRoot) {
		return failedResult(ErrScanInProgress), ErrScanInProgress
	}
	defer o.release(absRoot)

	files, err := o.walker.Files(absRoot)
	if err != nil {
		slog.Error("扫描根目录不可用", "root", absRoot, "error", err)
		metrics.ScansTotal.WithLabelValues(StatusError).Inc()
		return failedResult(err), err
	}

	slog.Info("--- 扫描任务开始 ---", "root", absRoot)
	start := time.Now()
	metrics.ScanInProgress.Inc()
	defer metrics.ScanInProgress.Dec()
	o.tags.Flush()

	res := Result{Status: StatusSuccess, Errors: []*FileError{}}
	for path := range files {
		if ctx.Err() != nil {
			break
		}
		rep := o.processFile(ctx, library, path)
		cancelled := ctx.Err() != nil

		// 已提交的文件即使随后被取消也要计数，否则下次扫描会把它当成重复文件
		switch {
		case rep.duplicate:
			res.Duplicates++
			metrics.DuplicatesTotal.Inc()
		case rep.persisted:
			res.ProcessedCount++
			metrics.FilesProcessedTotal.Inc()
		}
		for _, fe := range rep.errs {
			if cancelled && isCancellation(fe.Err) {
				continue
			}
			slog.Warn("文件处理失败", "path", fe.Path, "stage", fe.Stage, "error", fe.Err)
			metrics.FileFailuresTotal.WithLabelValues(string(fe.Stage)).Inc()
			res.Errors = append(res.Errors, fe)
		}

		if so.progress != nil {
			so.progress(Progress{
				Processed:  res.ProcessedCount,
				Duplicates: res.Duplicates,
				Failed:     len(res.Errors),
				Current:    path,
			})
		}
		if cancelled {
			break
		}
	}

	metrics.ScanDuration.Observe(time.Since(start).Seconds())

	if err := ctx.Err(); err != nil {
		res.Status = StatusError
		res.Message = ErrCancelled.Error()
		metrics.ScansTotal.WithLabelValues(StatusError).Inc()
		slog.Warn("扫描已取消", "root", absRoot, "processed", res.ProcessedCount)
		return res, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	metrics.ScansTotal.WithLabelValues(StatusSuccess).Inc()
	slog.Info("🎉 扫描任务完成",
		"root", absRoot,
		"processed", res.ProcessedCount,
		"duplicates", res.Duplicates,
		"errors", len(res.Errors),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return res, nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func failedResult(err error) Result {
	return Result{Status: StatusError, Errors: []*FileError{}, Message: err.Error()}
}

type fileReport struct {
	duplicate bool
	persisted bool
	errs      []*FileError
}

func (r *fileReport) fail(path string, stage Stage, err error) {
	r.errs = append(r.errs, &FileError{Path: path, Stage: stage, Err: err})
}

// visualInfo 汇总缩略图分支的结果；失败的字段保持零值
type visualInfo struct {
	width    int
	height   int
	blurhash *string
	pHash    string
}

func (o *Orchestrator) processFile(ctx context.Context, root, path string) fileReport {
	var rep fileReport
	start := time.Now()

	var fileHash string
	err := o.pool.Do(ctx, func(context.Context) error {
		var err error
		fileHash, err = hasher.CalculateSHA256(path)
		return err
	})
	if err != nil {
		rep.fail(path, StageHash, err)
		return rep
	}

	exists, err := o.store.Images().ExistsByFileHash(ctx, fileHash)
	if err != nil {
		rep.fail(path, StageCatalogWrite, err)
		return rep
	}
	if exists {
		slog.Debug("重复文件，已跳过", "path", path, "hash", fileHash)
		rep.duplicate = true
		return rep
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rep.fail(path, StageCatalogWrite, err)
		return rep
	}
	placement := ResolveAlbum(rel, o.videoExts)

	// 标签在事务外解析，保证缓存中的标签一定已提交
	tags, err := o.tags.ResolveAll(ctx, rel)
	if err != nil {
		rep.fail(path, StageCatalogWrite, err)
		return rep
	}

	var visual visualInfo
	if placement.MediaType.IsVisual() {
		var errs []*FileError
		visual, errs, err = o.measure(ctx, path, fileHash)
		if err != nil {
			return rep
		}
		rep.errs = append(rep.errs, errs...)
	}

	image := &models.Image{
		FileName:  filepath.Base(path),
		RelPath:   filepath.ToSlash(rel),
		FileHash:  fileHash,
		Width:     visual.width,
		Height:    visual.height,
		Blurhash:  visual.blurhash,
		MediaType: placement.MediaType,
	}
	if err := o.persist(ctx, placement.AlbumPath, image, tags, visual.pHash); err != nil {
		rep.fail(path, StageCatalogWrite, err)
		return rep
	}

	rep.persisted = true
	metrics.FileProcessingDuration.Observe(time.Since(start).Seconds())
	return rep
}

// measure 并发执行缩略图(+blurhash)、尺寸和 pHash 三个分支，任一失败不影响其他分支。
// 只有取消会返回 error。
func (o *Orchestrator) measure(ctx context.Context, path, fileHash string) (visualInfo, []*FileError, error) {
	var v visualInfo
	var thumbErr, blurErr, dimErr, pHashErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.pool.Do(gctx, func(context.Context) error {
			thumbPath, created, err := o.thumbs.Generate(path, fileHash)
			if err != nil {
				thumbErr = err
				metrics.ThumbnailsTotal.WithLabelValues("failed").Inc()
				return nil
			}
			if created {
				metrics.ThumbnailsTotal.WithLabelValues("created").Inc()
			} else {
				metrics.ThumbnailsTotal.WithLabelValues("skipped").Inc()
			}
			hash, err := o.engine.Blurhash(thumbPath)
			if err != nil {
				blurErr = err
				return nil
			}
			v.blurhash = &hash
			return nil
		})
	})
	g.Go(func() error {
		return o.pool.Do(gctx, func(context.Context) error {
			v.width, v.height, dimErr = thumbnailer.Dimensions(path)
			if dimErr != nil {
				v.width, v.height = 0, 0
			}
			return nil
		})
	})
	g.Go(func() error {
		return o.pool.Do(gctx, func(context.Context) error {
			v.pHash, pHashErr = o.engine.PerceptualHash(path)
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return visualInfo{}, nil, err
	}

	var errs []*FileError
	for _, e := range []struct {
		stage Stage
		err   error
	}{
		{StageThumbnail, thumbErr},
		{StageFingerprint, blurErr},
		{StageDimension, dimErr},
		{StageFingerprint, pHashErr},
	} {
		if e.err != nil {
			errs = append(errs, &FileError{Path: path, Stage: e.stage, Err: e.err})
		}
	}
	return v, errs, nil
}

// persist 在一个事务中创建相册 (如需)、关联标签、写入图片和指纹。
func (o *Orchestrator) persist(ctx context.Context, albumPath string, image *models.Image, tags []models.Tag, pHash string) error {
	return o.store.WithTransaction(ctx, func(ctx context.Context, tx database.Store) error {
		album, err := tx.Albums().FindOrCreateByPath(ctx, albumPath, AlbumTitle(albumPath))
		if err != nil {
			return err
		}

		if len(tags) > 0 {
			tagIDs := make([]string, len(tags))
			for i := range tags {
				tagIDs[i] = tags[i].ID
			}
			if err := tx.Albums().AttachTags(ctx, album.ID, tagIDs); err != nil {
				return fmt.Errorf("关联标签失败: %w", err)
			}
		}

		now := time.Now()
		image.AlbumID = album.ID
		image.CreatedAt = now
		image.UpdatedAt = now
		if err := tx.Images().Create(ctx, image); err != nil {
			return fmt.Errorf("写入图片记录失败: %w", err)
		}

		if pHash != "" {
			fp := &models.Fingerprint{
				ImageID:   image.ID,
				AlbumID:   album.ID,
				FileName:  image.FileName,
				PHash:     pHash,
				CreatedAt: now,
			}
			if err := tx.Fingerprints().Create(ctx, fp); err != nil {
				return fmt.Errorf("写入指纹失败: %w", err)
			}
		}

		if image.Blurhash != nil {
			if err := tx.Albums().SetBlurhashIfUnset(ctx, album.ID, *image.Blurhash); err != nil {
				return fmt.Errorf("更新相册 blurhash 失败: %w", err)
			}
		}
		return nil
	})
}

// BackfillFingerprints 为还没有指纹的图片补算 pHash，返回新写入的数量。
// 图片路径按配置的 rootDir 下的 RelPath 还原。
func (o *Orchestrator) BackfillFingerprints(ctx context.Context) (int, error) {
	absRoot, err := filepath.Abs(o.cfg.RootDir)
	if err != nil {
		return 0, err
	}

	images, err := o.store.Images().ListWithoutFingerprint(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("查询缺少指纹的图片失败: %w", err)
	}
	slog.Info("开始补算指纹", "count", len(images))

	created := 0
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return created, fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		exists, err := o.store.Fingerprints().ExistsByImageID(ctx, img.ID)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		path := filepath.Join(absRoot, filepath.FromSlash(img.RelPath))
		var pHash string
		err = o.pool.Do(ctx, func(context.Context) error {
			var err error
			pHash, err = o.engine.PerceptualHash(path)
			return err
		})
		if err != nil {
			if isCancellation(err) {
				return created, fmt.Errorf("%w: %w", ErrCancelled, err)
			}
			slog.Warn("计算指纹失败", "path", path, "error", err)
			metrics.FileFailuresTotal.WithLabelValues(string(StageFingerprint)).Inc()
			continue
		}

		fp := &models.Fingerprint{
			ImageID:   img.ID,
			AlbumID:   img.AlbumID,
			FileName:  img.FileName,
			PHash:     pHash,
			CreatedAt: time.Now(),
		}
		if err := o.store.Fingerprints().Create(ctx, fp); err != nil {
			slog.Warn("写入指纹失败", "path", path, "error", err)
			continue
		}
		created++
		metrics.FingerprintsBackfilledTotal.Inc()
	}
	slog.Info("指纹补算完成", "created", created)
	return created, nil
}
