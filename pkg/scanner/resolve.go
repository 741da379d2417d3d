package scanner

import (
	"NAS_Gallery/internal/models"
	"path"
	"path/filepath"
	"strings"
)

// RootAlbumTitle 是直接位于根目录下的文件所属相册的标题
const RootAlbumTitle = "Root"

// specialFolders 中的子目录会被并入上一级相册，并覆盖媒体类型
var specialFolders = map[string]models.MediaType{
	"selfie": models.MediaSelfie,
	"video":  models.MediaVideo,
	"gif":    models.MediaGif,
}

// Placement 描述一个文件归属的相册路径和媒体类型
type Placement struct {
	AlbumPath string
	MediaType models.MediaType
}

// ResolveAlbum 根据相对路径确定所属相册和媒体类型。
// 返回的 AlbumPath 使用 "/" 分隔，根目录为 "."。
func ResolveAlbum(rel string, videoExts map[string]struct{}) Placement {
	rel = filepath.ToSlash(rel)
	dir := path.Dir(rel)

	if dir != "." {
		if mt, ok := specialFolders[strings.ToLower(path.Base(dir))]; ok {
			return Placement{AlbumPath: path.Dir(dir), MediaType: mt}
		}
	}

	ext := strings.ToLower(path.Ext(rel))
	mt := models.MediaPicture
	if _, ok := videoExts[ext]; ok {
		mt = models.MediaVideo
	} else if ext == ".gif" {
		mt = models.MediaGif
	}
	return Placement{AlbumPath: dir, MediaType: mt}
}

// AlbumTitle 新相册默认以路径的最后一段为标题
func AlbumTitle(albumPath string) string {
	if albumPath == "" || albumPath == "." {
		return RootAlbumTitle
	}
	return path.Base(albumPath)
}
