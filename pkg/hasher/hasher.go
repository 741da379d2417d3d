package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	// 匿名导入 (blank import) image解码器
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/ajdnik/imghash"
	"github.com/ajdnik/imghash/hashtype"
	"github.com/ajdnik/imghash/similarity"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// BlockSize 是流式计算内容哈希时每次读取的字节数。
const BlockSize = 64 * 1024

// CalculateSHA256 以 64 KiB 为块流式读取文件并返回小写十六进制的 SHA-256。
func CalculateSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := sha256.New()
	buf := make([]byte, BlockSize)
	for {
		n, err := file.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CalculatePerceptualHashFromImage 从已解码的 image.Image 对象计算感知哈希，返回十六进制字符串
func CalculatePerceptualHashFromImage(img image.Image) string {
	phasher := imghash.NewPHash()
	return hex.EncodeToString(phasher.Calculate(img))
}

// CalculatePerceptualHash 计算并返回一个图片的感知哈希(pHash)值。
// 解码时按 EXIF 方向校正，扫描入库和以图搜图必须走同一条解码路径。
func CalculatePerceptualHash(filePath string) (string, error) {
	img, err := imaging.Open(filePath, imaging.AutoOrientation(true))
	if err != nil {
		return "", err
	}
	return CalculatePerceptualHashFromImage(img), nil
}

// PHashDistance 返回两个十六进制 pHash 之间的汉明距离。
func PHashDistance(a, b string) (int, error) {
	h1, err := hex.DecodeString(a)
	if err != nil {
		return 0, fmt.Errorf("无效的 pHash '%s': %w", a, err)
	}
	h2, err := hex.DecodeString(b)
	if err != nil {
		return 0, fmt.Errorf("无效的 pHash '%s': %w", b, err)
	}
	if len(h1) != len(h2) {
		return 0, fmt.Errorf("pHash 长度不一致: %d != %d", len(a), len(b))
	}
	return int(similarity.Hamming(hashtype.Binary(h1), hashtype.Binary(h2))), nil
}
