package models

import (
	"time"
)

// MediaType 是媒体文件的类别，取值为封闭集合。
type MediaType string

const (
	MediaPicture MediaType = "P"
	MediaVideo   MediaType = "V"
	MediaSelfie  MediaType = "S"
	MediaGif     MediaType = "G"
)

func (m MediaType) String() string { return string(m) }

// IsVisual 视频不参与缩略图、尺寸和指纹计算。
func (m MediaType) IsVisual() bool { return m != MediaVideo }

// TagCategory 标签分类
type TagCategory string

const (
	TagSeries    TagCategory = "series"
	TagCharacter TagCategory = "character"
	TagCoser     TagCategory = "coser"
	TagOther     TagCategory = "other"
)

// TagCategories 按展示顺序列出所有分类。
var TagCategories = []TagCategory{TagSeries, TagCharacter, TagCoser, TagOther}

func (c TagCategory) Valid() bool {
	switch c {
	case TagSeries, TagCharacter, TagCoser, TagOther:
		return true
	}
	return false
}

// Timestamps 嵌入到其他模型中，用于追踪创建和更新时间。
type Timestamps struct {
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Album 对应媒体库中的一个相册目录。
// Path 是相对于扫描根目录、使用 "/" 分隔的路径，全库唯一。
type Album struct {
	ID       string  `bson:"_id" json:"id" gorm:"primaryKey;size:36"`
	Path     string  `bson:"path" json:"path" gorm:"uniqueIndex;size:1024;not null"`
	Title    string  `bson:"title" json:"title" gorm:"size:255;not null"`
	Blurhash *string `bson:"blurhash,omitempty" json:"blurhash,omitempty" gorm:"size:255"`

	// TagIDs 在 MongoDB 中直接以数组存储；SQLite 使用 album_tags 关联表。
	TagIDs []string `bson:"tagIds" json:"tagIds" gorm:"-"`

	Timestamps `bson:",inline" gorm:"embedded"`
}

func (Album) TableName() string { return "albums" }

// Image 代表一个去重后的媒体文件。FileHash 是全库唯一的去重键。
type Image struct {
	ID       string `bson:"_id" json:"id" gorm:"primaryKey;size:36"`
	AlbumID  string `bson:"albumId" json:"albumId" gorm:"index:idx_album_file;size:36;not null"`
	FileName string `bson:"fileName" json:"fileName" gorm:"index:idx_album_file;size:512;not null"`

	// RelPath 是源文件相对于扫描根目录的路径，特殊子目录 (video/selfie/gif) 也包含在内。
	RelPath  string `bson:"relPath" json:"relPath" gorm:"size:2048;not null"`
	FileHash string `bson:"fileHash" json:"fileHash" gorm:"uniqueIndex;size:64;not null"`

	// 未测量或视频时为 0
	Width     int       `bson:"width" json:"width"`
	Height    int       `bson:"height" json:"height"`
	Blurhash  *string   `bson:"blurhash,omitempty" json:"blurhash,omitempty" gorm:"size:255"`
	MediaType MediaType `bson:"mediaType" json:"mediaType" gorm:"size:1;not null;default:P"`

	Timestamps `bson:",inline" gorm:"embedded"`
}

func (Image) TableName() string { return "images" }

type Tag struct {
	ID       string      `bson:"_id" json:"id" gorm:"primaryKey;size:36"`
	Name     string      `bson:"name" json:"name" gorm:"uniqueIndex;size:255;not null"`
	Category TagCategory `bson:"category" json:"category" gorm:"index;size:16;not null;default:other"`

	// Initial 是名称转写为 ASCII 后的首字母 (A-Z)，否则为 "#"，用于按字母浏览。
	Initial string `bson:"initial" json:"initial" gorm:"size:1"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

func (Tag) TableName() string { return "tags" }

// TagAlias 把别名映射到唯一的规范标签，例如 "Arknights" -> "明日方舟"。
type TagAlias struct {
	ID    string `bson:"_id" json:"id" gorm:"primaryKey;size:36"`
	Alias string `bson:"alias" json:"alias" gorm:"uniqueIndex;size:255;not null"`
	TagID string `bson:"tagId" json:"tagId" gorm:"index;size:36;not null"`
}

func (TagAlias) TableName() string { return "tag_aliases" }

// Fingerprint 保存一张图片的感知哈希，用于近似重复检测。
type Fingerprint struct {
	ID        string    `bson:"_id" json:"id" gorm:"primaryKey;size:36"`
	ImageID   string    `bson:"imageId" json:"imageId" gorm:"uniqueIndex;size:36;not null"`
	AlbumID   string    `bson:"albumId" json:"albumId" gorm:"index;size:36;not null"`
	FileName  string    `bson:"fileName" json:"fileName" gorm:"size:512;not null"`
	PHash     string    `bson:"phash" json:"phash" gorm:"column:phash;index;size:64;not null"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

func (Fingerprint) TableName() string { return "fingerprints" }
