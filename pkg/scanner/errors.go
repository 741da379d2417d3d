package scanner

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrRootNotFound 扫描根目录不存在或不是目录，整个扫描在处理任何文件之前终止。
	ErrRootNotFound = errors.New("scan root not found")
	// ErrRootOutsideLibrary 扫描根目录不在配置的 rootDir 之下，RelPath 无法还原。
	ErrRootOutsideLibrary = errors.New("scan root outside library root")
	// ErrScanInProgress 同一根目录已有扫描在运行。
	ErrScanInProgress = errors.New("scan already in progress for this root")
	// ErrCancelled 扫描在文件之间检测到取消请求。
	ErrCancelled = errors.New("scan cancelled")
)

// Stage 标识单个文件处理失败发生在哪个阶段
type Stage string

const (
	StageHash         Stage = "hash"
	StageThumbnail    Stage = "thumbnail"
	StageFingerprint  Stage = "fingerprint"
	StageDimension    Stage = "dimension"
	StageCatalogWrite Stage = "catalog_write"
)

// FileError 是单个文件的非致命错误，记录后扫描继续。
type FileError struct {
	Path  string
	Stage Stage
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

func (e *FileError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Path  string `json:"path"`
		Stage Stage  `json:"stage"`
		Error string `json:"error"`
	}{e.Path, e.Stage, e.Err.Error()})
}
