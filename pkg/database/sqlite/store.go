package sqlite

import (
	"NAS_Gallery/internal/models"
	"NAS_Gallery/pkg/database"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Store 是 database.Store 接口基于 GORM + SQLite 的嵌入式实现。
type Store struct {
	db *gorm.DB
}

var _ database.Store = (*Store)(nil)

// albumTag 是相册与标签多对多关系的关联表
type albumTag struct {
	AlbumID string `gorm:"primaryKey;size:36"`
	TagID   string `gorm:"primaryKey;size:36;index"`
}

func (albumTag) TableName() string { return "album_tags" }

type albumStore struct{ db *gorm.DB }
type imageStore struct{ db *gorm.DB }
type tagStore struct{ db *gorm.DB }
type fingerprintStore struct{ db *gorm.DB }

// NewStore 打开 (必要时创建) path 指向的 SQLite 数据库文件。
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("无法创建数据库目录: %w", err)
		}
	}
	dsn := path + "?_busy_timeout=5000&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// 扫描期间为单写者，限制为一个连接以避免 SQLITE_BUSY
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	slog.Info("SQLite 数据库已打开", "path", path)
	return &Store{db: db}, nil
}

func (s *Store) Albums() database.AlbumStore             { return &albumStore{db: s.db} }
func (s *Store) Images() database.ImageStore             { return &imageStore{db: s.db} }
func (s *Store) Tags() database.TagStore                 { return &tagStore{db: s.db} }
func (s *Store) Fingerprints() database.FingerprintStore { return &fingerprintStore{db: s.db} }

// EnsureIndexes 通过 AutoMigrate 建表并创建模型标签中声明的索引。
func (s *Store) EnsureIndexes(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&models.Album{},
		&models.Image{},
		&models.Tag{},
		&models.TagAlias{},
		&models.Fingerprint{},
		&albumTag{},
	)
	if err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	return nil
}

func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx database.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &Store{db: tx})
	})
}

func (s *Store) Close(_ context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newID() string {
	return uuid.NewString()
}

// first 把 ErrRecordNotFound 转换为 (nil, nil)
func first[T any](q *gorm.DB) (*T, error) {
	var row T
	if err := q.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// --- albumStore 方法实现 ---

func (a *albumStore) loadTagIDs(ctx context.Context, albums []models.Album) error {
	if len(albums) == 0 {
		return nil
	}
	ids := make([]string, len(albums))
	index := make(map[string]int, len(albums))
	for i := range albums {
		ids[i] = albums[i].ID
		index[albums[i].ID] = i
		albums[i].TagIDs = []string{}
	}
	var links []albumTag
	if err := a.db.WithContext(ctx).Where("album_id IN ?", ids).Order("tag_id").Find(&links).Error; err != nil {
		return err
	}
	for _, l := range links {
		i := index[l.AlbumID]
		albums[i].TagIDs = append(albums[i].TagIDs, l.TagID)
	}
	return nil
}

func (a *albumStore) FindOrCreateByPath(ctx context.Context, path, title string) (*models.Album, error) {
	var album models.Album
	err := a.db.WithContext(ctx).
		Where("path = ?", path).
		Attrs(models.Album{ID: newID(), Path: path, Title: title}).
		FirstOrCreate(&album).Error
	if err != nil {
		return nil, fmt.Errorf("查找或创建相册 '%s' 失败: %w", path, err)
	}
	albums := []models.Album{album}
	if err := a.loadTagIDs(ctx, albums); err != nil {
		return nil, err
	}
	return &albums[0], nil
}

func (a *albumStore) GetByID(ctx context.Context, id string) (*models.Album, error) {
	album, err := first[models.Album](a.db.WithContext(ctx).Where("id = ?", id))
	if err != nil || album == nil {
		return nil, err
	}
	albums := []models.Album{*album}
	if err := a.loadTagIDs(ctx, albums); err != nil {
		return nil, err
	}
	return &albums[0], nil
}

func (a *albumStore) GetByIDs(ctx context.Context, ids []string) ([]models.Album, error) {
	albums := []models.Album{}
	if len(ids) == 0 {
		return albums, nil
	}
	if err := a.db.WithContext(ctx).Where("id IN ?", ids).Find(&albums).Error; err != nil {
		return nil, err
	}
	return albums, a.loadTagIDs(ctx, albums)
}

func (a *albumStore) List(ctx context.Context, page, limit int) ([]models.Album, int64, error) {
	var total int64
	if err := a.db.WithContext(ctx).Model(&models.Album{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var albums []models.Album
	err := a.db.WithContext(ctx).Order("path").Offset((page - 1) * limit).Limit(limit).Find(&albums).Error
	if err != nil {
		return nil, 0, err
	}
	return albums, total, a.loadTagIDs(ctx, albums)
}

func (a *albumStore) AttachTags(ctx context.Context, albumID string, tagIDs []string) error {
	if len(tagIDs) == 0 {
		return nil
	}
	links := make([]albumTag, 0, len(tagIDs))
	for _, id := range tagIDs {
		links = append(links, albumTag{AlbumID: albumID, TagID: id})
	}
	return a.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error
}

func (a *albumStore) SetBlurhashIfUnset(ctx context.Context, albumID, blurhash string) error {
	return a.db.WithContext(ctx).Model(&models.Album{}).
		Where("id = ? AND (blurhash IS NULL OR blurhash = '')", albumID).
		Update("blurhash", blurhash).Error
}

// --- imageStore 方法实现 ---

func (i *imageStore) ExistsByFileHash(ctx context.Context, hash string) (bool, error) {
	var n int64
	err := i.db.WithContext(ctx).Model(&models.Image{}).Where("file_hash = ?", hash).Limit(1).Count(&n).Error
	return n > 0, err
}

func (i *imageStore) Create(ctx context.Context, image *models.Image) error {
	if image.ID == "" {
		image.ID = newID()
	}
	return i.db.WithContext(ctx).Create(image).Error
}

func (i *imageStore) GetByID(ctx context.Context, id string) (*models.Image, error) {
	return first[models.Image](i.db.WithContext(ctx).Where("id = ?", id))
}

func (i *imageStore) ListByAlbumID(ctx context.Context, albumID string, page, limit int) ([]models.Image, int64, error) {
	var total int64
	q := i.db.WithContext(ctx).Model(&models.Image{}).Where("album_id = ?", albumID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var images []models.Image
	err := i.db.WithContext(ctx).Where("album_id = ?", albumID).
		Order("file_name").Offset((page - 1) * limit).Limit(limit).Find(&images).Error
	if err != nil {
		return nil, 0, err
	}
	return images, total, nil
}

func (i *imageStore) ListWithoutFingerprint(ctx context.Context, limit int) ([]models.Image, error) {
	q := i.db.WithContext(ctx).
		Select("images.*").
		Joins("LEFT JOIN fingerprints ON fingerprints.image_id = images.id").
		Where("fingerprints.id IS NULL AND images.media_type <> ?", models.MediaVideo).
		Order("images.id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var images []models.Image
	if err := q.Find(&images).Error; err != nil {
		return nil, err
	}
	return images, nil
}

// --- tagStore 方法实现 ---

func (t *tagStore) FindAlias(ctx context.Context, alias string) (*models.Tag, error) {
	return first[models.Tag](t.db.WithContext(ctx).
		Select("tags.*").
		Joins("JOIN tag_aliases ON tag_aliases.tag_id = tags.id").
		Where("tag_aliases.alias = ?", alias))
}

func (t *tagStore) GetByName(ctx context.Context, name string) (*models.Tag, error) {
	return first[models.Tag](t.db.WithContext(ctx).Where("name = ?", name))
}

func (t *tagStore) GetByIDs(ctx context.Context, ids []string) ([]models.Tag, error) {
	tags := []models.Tag{}
	if len(ids) == 0 {
		return tags, nil
	}
	err := t.db.WithContext(ctx).Where("id IN ?", ids).Order("name").Find(&tags).Error
	return tags, err
}

func (t *tagStore) Create(ctx context.Context, tag *models.Tag) error {
	if tag.ID == "" {
		tag.ID = newID()
	}
	return t.db.WithContext(ctx).Create(tag).Error
}

func (t *tagStore) CreateAlias(ctx context.Context, alias, tagID string) (*models.TagAlias, error) {
	a := &models.TagAlias{ID: newID(), Alias: alias, TagID: tagID}
	if err := t.db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

func (t *tagStore) List(ctx context.Context) ([]models.Tag, error) {
	var tags []models.Tag
	err := t.db.WithContext(ctx).Order("name").Find(&tags).Error
	return tags, err
}

// --- fingerprintStore 方法实现 ---

func (f *fingerprintStore) ExistsByImageID(ctx context.Context, imageID string) (bool, error) {
	var n int64
	err := f.db.WithContext(ctx).Model(&models.Fingerprint{}).Where("image_id = ?", imageID).Limit(1).Count(&n).Error
	return n > 0, err
}

func (f *fingerprintStore) Create(ctx context.Context, fp *models.Fingerprint) error {
	if fp.ID == "" {
		fp.ID = newID()
	}
	return f.db.WithContext(ctx).Create(fp).Error
}

func (f *fingerprintStore) FindByPHash(ctx context.Context, pHash string, limit int) ([]models.Fingerprint, error) {
	var fps []models.Fingerprint
	err := f.db.WithContext(ctx).Where("phash = ?", pHash).Limit(limit).Find(&fps).Error
	return fps, err
}

func (f *fingerprintStore) List(ctx context.Context) ([]models.Fingerprint, error) {
	var fps []models.Fingerprint
	err := f.db.WithContext(ctx).Order("image_id").Find(&fps).Error
	return fps, err
}
