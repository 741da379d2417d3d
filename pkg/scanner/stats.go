package scanner

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultStatsImageExtensions 目录统计默认识别的图片扩展名
var DefaultStatsImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".avif", ".gif", ".bmp"}

// DefaultStatsVideoExtensions 目录统计默认识别的视频扩展名
var DefaultStatsVideoExtensions = []string{".mp4", ".mkv", ".webm", ".mov", ".avi"}

// DirStats 是单个目录 (不递归) 的媒体统计
type DirStats struct {
	PhotoCount int     `json:"photoCount"`
	VideoCount int     `json:"videoCount"`
	TotalSize  int64   `json:"totalSize"`
	FirstImage *string `json:"firstImage"`
}

// ScanDirectory 统计目录下直接包含的图片和视频，不运行完整流水线。
// FirstImage 是按文件名排序后的第一张图片。dir 不存在或不是目录时返回全零统计。
// 指向普通文件的符号链接按目标文件计数。
func ScanDirectory(dir string, imageExts, videoExts []string) (DirStats, error) {
	var stats DirStats
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return stats, nil
	}
	// os.ReadDir 的结果已按文件名排序
	entries, err := os.ReadDir(dir)
	if err != nil {
		return stats, err
	}

	images := extSet(imageExts)
	videos := extSet(videoExts)
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		_, isImage := images[ext]
		_, isVideo := videos[ext]
		if !isImage && !isVideo {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			if info, err = os.Stat(filepath.Join(dir, entry.Name())); err != nil {
				continue
			}
		}
		if !info.Mode().IsRegular() {
			continue
		}

		stats.TotalSize += info.Size()
		if isVideo {
			stats.VideoCount++
			continue
		}
		stats.PhotoCount++
		if stats.FirstImage == nil {
			name := entry.Name()
			stats.FirstImage = &name
		}
	}
	return stats, nil
}
