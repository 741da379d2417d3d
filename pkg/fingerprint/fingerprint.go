// Package fingerprint 计算图片的两种视觉指纹：用于前端占位的 blurhash，
// 以及用于近似重复检测的感知哈希。两者互相独立，任一失败都不影响另一个。
package fingerprint

import (
	"NAS_Gallery/pkg/hasher"
	"fmt"

	"github.com/buckket/go-blurhash"
	"github.com/disintegration/imaging"
)

type Engine struct {
	blurMaxSize int
	xComponents int
	yComponents int
}

func NewEngine(blurMaxSize, xComponents, yComponents int) *Engine {
	return &Engine{
		blurMaxSize: blurMaxSize,
		xComponents: xComponents,
		yComponents: yComponents,
	}
}

// Blurhash 从缩略图计算 blurhash；先缩小到 blurMaxSize 以内以加快编码。
func (e *Engine) Blurhash(thumbPath string) (string, error) {
	img, err := imaging.Open(thumbPath)
	if err != nil {
		return "", fmt.Errorf("打开缩略图失败: %w", err)
	}
	small := imaging.Fit(img, e.blurMaxSize, e.blurMaxSize, imaging.Box)
	hash, err := blurhash.Encode(e.xComponents, e.yComponents, small)
	if err != nil {
		return "", fmt.Errorf("blurhash 编码失败: %w", err)
	}
	return hash, nil
}

// PerceptualHash 直接对原图计算 pHash
func (e *Engine) PerceptualHash(srcPath string) (string, error) {
	hash, err := hasher.CalculatePerceptualHash(srcPath)
	if err != nil {
		return "", fmt.Errorf("解码图片失败: %w", err)
	}
	return hash, nil
}
