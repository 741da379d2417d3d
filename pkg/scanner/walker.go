package scanner

import (
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Walker 递归枚举根目录下扩展名在白名单内的普通文件。
type Walker struct {
	exts map[string]struct{}
}

func NewWalker(extLists ...[]string) *Walker {
	return &Walker{exts: extSet(extLists...)}
}

// extSet 把扩展名统一为小写并带前导 "."
func extSet(extLists ...[]string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, list := range extLists {
		for _, ext := range list {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			set[ext] = struct{}{}
		}
	}
	return set
}

func (w *Walker) Accepts(path string) bool {
	_, ok := w.exts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Files 检查根目录后返回一个惰性的绝对路径序列，每次遍历都会重新读取文件系统。
// 子目录读取失败只记录日志并跳过，不影响其余部分。
func (w *Walker) Files(root string) (iter.Seq[string], error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRootNotFound, root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRootNotFound, absRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s 不是目录", ErrRootNotFound, absRoot)
	}

	return func(yield func(string) bool) {
		err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == absRoot {
					return err
				}
				slog.Warn("读取路径失败，已跳过", "path", path, "error", err)
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			if !w.Accepts(path) {
				return nil
			}
			if !yield(path) {
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil {
			slog.Error("遍历根目录失败", "root", absRoot, "error", err)
		}
	}, nil
}
