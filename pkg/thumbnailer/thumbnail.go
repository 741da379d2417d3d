package thumbnailer

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	// 匿名导入 image解码器
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const thumbExt = ".jpg"

// Generator 生成固定高度的 JPEG 缩略图，文件以内容哈希命名，
// 已存在的目标文件直接跳过，因此重复扫描几乎没有开销。
type Generator struct {
	dir     string
	height  int
	quality int
}

func NewGenerator(dir string, height, quality int) (*Generator, error) {
	if height <= 0 {
		return nil, fmt.Errorf("缩略图高度必须为正数: %d", height)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("无法创建缩略图目录: %w", err)
	}
	return &Generator{dir: dir, height: height, quality: quality}, nil
}

// PathFor 返回内容哈希对应的缩略图路径
func (g *Generator) PathFor(fileHash string) string {
	return filepath.Join(g.dir, fileHash+thumbExt)
}

// Generate 为 src 生成缩略图。created 为 false 表示目标已存在、未重新编码。
func (g *Generator) Generate(src, fileHash string) (dest string, created bool, err error) {
	dest = g.PathFor(fileHash)
	if _, err := os.Stat(dest); err == nil {
		return dest, false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return dest, false, err
	}

	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return dest, false, fmt.Errorf("解码图片失败: %w", err)
	}
	thumb := Resize(Flatten(img), g.height)

	if err := g.writeAtomic(dest, thumb); err != nil {
		return dest, false, err
	}
	return dest, true, nil
}

// writeAtomic 先写入同目录下的临时文件，再重命名到目标路径。
func (g *Generator) writeAtomic(dest string, img image.Image) error {
	tmp, err := os.CreateTemp(g.dir, ".thumb-*"+thumbExt)
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // 重命名成功后是空操作

	if err := imaging.Encode(tmp, img, imaging.JPEG, imaging.JPEGQuality(g.quality)); err != nil {
		tmp.Close()
		return fmt.Errorf("编码缩略图失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, dest)
}

// Flatten 把带透明通道的图片铺到不透明的白色背景上。
func Flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, imaging.Clone(img), image.Pt(0, 0), 1.0)
}

// Resize 等比缩放到固定高度，宽度四舍五入且至少为 1。
func Resize(img image.Image, height int) image.Image {
	b := img.Bounds()
	if b.Dy() == 0 {
		return img
	}
	width := int(math.Round(float64(height) * float64(b.Dx()) / float64(b.Dy())))
	if width < 1 {
		width = 1
	}
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

// Dimensions 只读取文件头获取原图宽高
func Dimensions(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
