package mongo

import (
	"NAS_Gallery/config"
	"NAS_Gallery/internal/models"
	"NAS_Gallery/pkg/database"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store 是 database.Store 接口的MongoDB实现。
type Store struct {
	client       *mongo.Client
	db           *mongo.Database
	transactions bool

	albums       *albumStore
	images       *imageStore
	tags         *tagStore
	fingerprints *fingerprintStore
}

// 确保 Store 实现了 database.Store 接口 (编译时检查)
var _ database.Store = (*Store)(nil)

type albumStore struct {
	coll *mongo.Collection
}

type imageStore struct {
	coll *mongo.Collection
}

type tagStore struct {
	coll    *mongo.Collection
	aliases *mongo.Collection
}

type fingerprintStore struct {
	coll *mongo.Collection
}

// NewStore 创建并返回一个新的 Store 实例，并建立与MongoDB的连接。
func NewStore(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	slog.Info("正在连接到 MongoDB...", "uri", cfg.URI)
	clientCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(clientCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(clientCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	slog.Info("MongoDB 连接成功")

	db := client.Database(cfg.Name)
	return &Store{
		client:       client,
		db:           db,
		transactions: cfg.Transactions,
		albums:       &albumStore{coll: db.Collection("albums")},
		images:       &imageStore{coll: db.Collection("images")},
		tags:         &tagStore{coll: db.Collection("tags"), aliases: db.Collection("tag_aliases")},
		fingerprints: &fingerprintStore{coll: db.Collection("fingerprints")},
	}, nil
}

func (s *Store) Albums() database.AlbumStore             { return s.albums }
func (s *Store) Images() database.ImageStore             { return s.images }
func (s *Store) Tags() database.TagStore                 { return s.tags }
func (s *Store) Fingerprints() database.FingerprintStore { return s.fingerprints }

// WithTransaction 需要副本集支持；database.transactions 关闭时退化为直接执行。
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx database.Store) error) error {
	if !s.transactions {
		return fn(ctx, s)
	}
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("无法开启会话: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, s)
	})
	return err
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// DropAllCollections 删除当前数据库中的所有已知集合，主要用于测试环境的重置。
func (s *Store) DropAllCollections(ctx context.Context) error {
	slog.Warn("正在删除所有集合...", "database", s.db.Name())
	for _, coll := range []*mongo.Collection{s.albums.coll, s.images.coll, s.tags.coll, s.tags.aliases, s.fingerprints.coll} {
		if err := coll.Drop(ctx); err != nil {
			slog.Error("删除集合失败", "collection", coll.Name(), "error", err)
			return err
		}
	}
	return nil
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	slog.Info("正在确保数据库索引存在...")
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.albums.coll: {
			{Keys: bson.D{{Key: "path", Value: 1}}, Options: options.Index().SetUnique(true).SetName("idx_path_unique")},
		},
		s.images.coll: {
			{Keys: bson.D{{Key: "fileHash", Value: 1}}, Options: options.Index().SetUnique(true).SetName("idx_filehash_unique")},
			{Keys: bson.D{{Key: "albumId", Value: 1}, {Key: "fileName", Value: 1}}, Options: options.Index().SetName("idx_albumid_filename")},
		},
		s.tags.coll: {
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true).SetName("idx_name_unique")},
			{Keys: bson.D{{Key: "category", Value: 1}}, Options: options.Index().SetName("idx_category")},
		},
		s.tags.aliases: {
			{Keys: bson.D{{Key: "alias", Value: 1}}, Options: options.Index().SetUnique(true).SetName("idx_alias_unique")},
		},
		s.fingerprints.coll: {
			{Keys: bson.D{{Key: "imageId", Value: 1}}, Options: options.Index().SetUnique(true).SetName("idx_imageid_unique")},
			{Keys: bson.D{{Key: "phash", Value: 1}}, Options: options.Index().SetName("idx_phash")},
		},
	}
	for coll, idx := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, idx); err != nil {
			slog.Error("创建索引失败", "collection", coll.Name(), "error", err)
			return err
		}
		slog.Info("集合索引已验证/创建。", "collection", coll.Name())
	}
	return nil
}

func newID() string {
	return primitive.NewObjectID().Hex()
}

// findOne 统一处理 ErrNoDocuments：不存在返回 (nil, nil)
func findOne[T any](ctx context.Context, coll *mongo.Collection, filter interface{}) (*T, error) {
	var doc T
	err := coll.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter interface{}, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []T
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// --- albumStore 方法实现 ---

// FindOrCreateByPath 使用 Upsert 模式原子性地查找或创建相册。
func (a *albumStore) FindOrCreateByPath(ctx context.Context, path, title string) (*models.Album, error) {
	now := time.Now()
	filter := bson.M{"path": path}
	// "$setOnInsert" 只在插入新文档时生效，已有相册的标题和 blurhash 保持不变。
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":       newID(),
			"title":     title,
			"tagIds":    bson.A{},
			"createdAt": now,
			"updatedAt": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var album models.Album
	if err := a.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&album); err != nil {
		return nil, fmt.Errorf("Upsert album '%s' 失败: %w", path, err)
	}
	return &album, nil
}

func (a *albumStore) GetByID(ctx context.Context, id string) (*models.Album, error) {
	return findOne[models.Album](ctx, a.coll, bson.M{"_id": id})
}

func (a *albumStore) GetByIDs(ctx context.Context, ids []string) ([]models.Album, error) {
	if len(ids) == 0 {
		return []models.Album{}, nil
	}
	return findAll[models.Album](ctx, a.coll, bson.M{"_id": bson.M{"$in": ids}})
}

func (a *albumStore) List(ctx context.Context, page, limit int) ([]models.Album, int64, error) {
	skip := (page - 1) * limit
	findOpts := options.Find().SetSkip(int64(skip)).SetLimit(int64(limit)).SetSort(bson.D{{Key: "path", Value: 1}})
	albums, err := findAll[models.Album](ctx, a.coll, bson.D{}, findOpts)
	if err != nil {
		return nil, 0, err
	}
	total, err := a.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return nil, 0, err
	}
	return albums, total, nil
}

func (a *albumStore) AttachTags(ctx context.Context, albumID string, tagIDs []string) error {
	if len(tagIDs) == 0 {
		return nil
	}
	update := bson.M{
		"$addToSet": bson.M{"tagIds": bson.M{"$each": tagIDs}},
		"$set":      bson.M{"updatedAt": time.Now()},
	}
	res, err := a.coll.UpdateOne(ctx, bson.M{"_id": albumID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("相册 %s 不存在", albumID)
	}
	return nil
}

func (a *albumStore) SetBlurhashIfUnset(ctx context.Context, albumID, blurhash string) error {
	// {"blurhash": nil} 同时匹配字段缺失和显式 null
	filter := bson.M{
		"_id": albumID,
		"$or": bson.A{bson.M{"blurhash": nil}, bson.M{"blurhash": ""}},
	}
	update := bson.M{"$set": bson.M{"blurhash": blurhash, "updatedAt": time.Now()}}
	_, err := a.coll.UpdateOne(ctx, filter, update)
	return err
}

// --- imageStore 方法实现 ---

func (i *imageStore) ExistsByFileHash(ctx context.Context, hash string) (bool, error) {
	n, err := i.coll.CountDocuments(ctx, bson.M{"fileHash": hash}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (i *imageStore) Create(ctx context.Context, image *models.Image) error {
	if image.ID == "" {
		image.ID = newID()
	}
	image.CreatedAt = time.Now()
	image.UpdatedAt = image.CreatedAt
	_, err := i.coll.InsertOne(ctx, image)
	return err
}

func (i *imageStore) GetByID(ctx context.Context, id string) (*models.Image, error) {
	return findOne[models.Image](ctx, i.coll, bson.M{"_id": id})
}

func (i *imageStore) ListByAlbumID(ctx context.Context, albumID string, page, limit int) ([]models.Image, int64, error) {
	skip := (page - 1) * limit
	filter := bson.M{"albumId": albumID}
	findOpts := options.Find().SetSkip(int64(skip)).SetLimit(int64(limit)).SetSort(bson.M{"fileName": 1})
	images, err := findAll[models.Image](ctx, i.coll, filter, findOpts)
	if err != nil {
		return nil, 0, err
	}
	total, err := i.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return images, total, nil
}

func (i *imageStore) ListWithoutFingerprint(ctx context.Context, limit int) ([]models.Image, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"mediaType": bson.M{"$ne": models.MediaVideo}}}},
		bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "fingerprints"},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "imageId"},
			{Key: "as", Value: "fp"},
		}}},
		bson.D{{Key: "$match", Value: bson.M{"fp": bson.M{"$size": 0}}}},
		bson.D{{Key: "$project", Value: bson.M{"fp": 0}}},
		bson.D{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: int64(limit)}})
	}

	cursor, err := i.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var images []models.Image
	if err = cursor.All(ctx, &images); err != nil {
		return nil, err
	}
	return images, nil
}

// --- tagStore 方法实现 ---

func (t *tagStore) FindAlias(ctx context.Context, alias string) (*models.Tag, error) {
	a, err := findOne[models.TagAlias](ctx, t.aliases, bson.M{"alias": alias})
	if err != nil || a == nil {
		return nil, err
	}
	return findOne[models.Tag](ctx, t.coll, bson.M{"_id": a.TagID})
}

func (t *tagStore) GetByName(ctx context.Context, name string) (*models.Tag, error) {
	return findOne[models.Tag](ctx, t.coll, bson.M{"name": name})
}

func (t *tagStore) GetByIDs(ctx context.Context, ids []string) ([]models.Tag, error) {
	if len(ids) == 0 {
		return []models.Tag{}, nil
	}
	return findAll[models.Tag](ctx, t.coll, bson.M{"_id": bson.M{"$in": ids}})
}

func (t *tagStore) Create(ctx context.Context, tag *models.Tag) error {
	if tag.ID == "" {
		tag.ID = newID()
	}
	tag.CreatedAt = time.Now()
	_, err := t.coll.InsertOne(ctx, tag)
	return err
}

func (t *tagStore) CreateAlias(ctx context.Context, alias, tagID string) (*models.TagAlias, error) {
	a := &models.TagAlias{ID: newID(), Alias: alias, TagID: tagID}
	if _, err := t.aliases.InsertOne(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (t *tagStore) List(ctx context.Context) ([]models.Tag, error) {
	return findAll[models.Tag](ctx, t.coll, bson.D{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
}

// --- fingerprintStore 方法实现 ---

func (f *fingerprintStore) ExistsByImageID(ctx context.Context, imageID string) (bool, error) {
	n, err := f.coll.CountDocuments(ctx, bson.M{"imageId": imageID}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (f *fingerprintStore) Create(ctx context.Context, fp *models.Fingerprint) error {
	if fp.ID == "" {
		fp.ID = newID()
	}
	fp.CreatedAt = time.Now()
	_, err := f.coll.InsertOne(ctx, fp)
	return err
}

func (f *fingerprintStore) FindByPHash(ctx context.Context, pHash string, limit int) ([]models.Fingerprint, error) {
	return findAll[models.Fingerprint](ctx, f.coll, bson.M{"phash": pHash}, options.Find().SetLimit(int64(limit)))
}

func (f *fingerprintStore) List(ctx context.Context) ([]models.Fingerprint, error) {
	return findAll[models.Fingerprint](ctx, f.coll, bson.D{})
}
