package scanner

import (
	"NAS_Gallery/internal/models"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveAlbum(t *testing.T) {
	videos := extSet([]string{".mp4", ".mkv"})

	tests := []struct {
		rel       string
		wantAlbum string
		wantType  models.MediaType
	}{
		{"CoserA/AlbumX/video/clip.mp4", "CoserA/AlbumX", models.MediaVideo},
		{"CoserA/AlbumX/Selfie/me.jpg", "CoserA/AlbumX", models.MediaSelfie},
		{"CoserA/AlbumX/GIF/loop.gif", "CoserA/AlbumX", models.MediaGif},
		// 特殊目录决定类型，与扩展名无关
		{"CoserA/AlbumX/video/poster.jpg", "CoserA/AlbumX", models.MediaVideo},
		{"CoserA/AlbumX/a.jpg", "CoserA/AlbumX", models.MediaPicture},
		{"CoserA/AlbumX/a.MKV", "CoserA/AlbumX", models.MediaVideo},
		{"CoserA/AlbumX/a.GIF", "CoserA/AlbumX", models.MediaGif},
		{"CoserA/videos/a.jpg", "CoserA/videos", models.MediaPicture},
		{"a.jpg", ".", models.MediaPicture},
		{"video/clip.mp4", ".", models.MediaVideo},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			got := ResolveAlbum(tt.rel, videos)
			assert.Equal(t, tt.wantAlbum, got.AlbumPath)
			assert.Equal(t, tt.wantType, got.MediaType)
		})
	}
}

func TestAlbumTitle(t *testing.T) {
	assert.Equal(t, RootAlbumTitle, AlbumTitle("."))
	assert.Equal(t, RootAlbumTitle, AlbumTitle(""))
	assert.Equal(t, "AlbumX", AlbumTitle("CoserA/AlbumX"))
	assert.Equal(t, "CoserA", AlbumTitle("CoserA"))
}
