package database

import (
	"NAS_Gallery/internal/models"
	"context"
)

// Store 是一个顶层接口，它组合了所有特定数据模型的存储接口。
// 查找类方法在记录不存在时返回 (nil, nil)。
type Store interface {
	Albums() AlbumStore
	Images() ImageStore
	Tags() TagStore
	Fingerprints() FingerprintStore
	EnsureIndexes(ctx context.Context) error

	// WithTransaction 在一个事务中执行 fn；fn 内必须使用传入的 ctx 和 tx。
	// 底层不支持事务时直接执行 fn。
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
	Close(ctx context.Context) error
}

// AlbumStore 定义了所有与 Album 模型相关的数据库操作。
type AlbumStore interface {
	// FindOrCreateByPath 按唯一路径查找相册，不存在时以 title 创建。
	FindOrCreateByPath(ctx context.Context, path, title string) (*models.Album, error)
	GetByID(ctx context.Context, id string) (*models.Album, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.Album, error)
	List(ctx context.Context, page, limit int) ([]models.Album, int64, error)
	// AttachTags 是幂等的并集操作
	AttachTags(ctx context.Context, albumID string, tagIDs []string) error
	// SetBlurhashIfUnset 只在相册当前没有 blurhash 时写入
	SetBlurhashIfUnset(ctx context.Context, albumID, blurhash string) error
}

// ImageStore 定义了所有与 Image 模型相关的数据库操作。
type ImageStore interface {
	ExistsByFileHash(ctx context.Context, hash string) (bool, error)
	Create(ctx context.Context, image *models.Image) error
	GetByID(ctx context.Context, id string) (*models.Image, error)
	ListByAlbumID(ctx context.Context, albumID string, page, limit int) ([]models.Image, int64, error)
	// ListWithoutFingerprint 返回尚未计算感知哈希的非视频图片，limit <= 0 表示不限制。
	ListWithoutFingerprint(ctx context.Context, limit int) ([]models.Image, error)
}

// TagStore 定义了标签与别名相关的数据库操作。
type TagStore interface {
	// FindAlias 返回别名指向的规范标签
	FindAlias(ctx context.Context, alias string) (*models.Tag, error)
	GetByName(ctx context.Context, name string) (*models.Tag, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.Tag, error)
	Create(ctx context.Context, tag *models.Tag) error
	CreateAlias(ctx context.Context, alias, tagID string) (*models.TagAlias, error)
	List(ctx context.Context) ([]models.Tag, error)
}

// FingerprintStore 定义了感知哈希相关的数据库操作。
type FingerprintStore interface {
	ExistsByImageID(ctx context.Context, imageID string) (bool, error)
	Create(ctx context.Context, fp *models.Fingerprint) error
	FindByPHash(ctx context.Context, pHash string, limit int) ([]models.Fingerprint, error)
	List(ctx context.Context) ([]models.Fingerprint, error)
}
