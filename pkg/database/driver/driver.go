package driver

import (
	"NAS_Gallery/config"
	"NAS_Gallery/pkg/database"
	"NAS_Gallery/pkg/database/mongo"
	"NAS_Gallery/pkg/database/sqlite"
	"context"
	"fmt"
)

// Open 根据 database.driver 选择目录存储实现，并确保索引存在。
func Open(ctx context.Context, cfg config.DatabaseConfig) (database.Store, error) {
	var (
		db  database.Store
		err error
	)
	switch cfg.Driver {
	case "mongo", "mongodb":
		db, err = mongo.NewStore(ctx, cfg)
	case "sqlite", "":
		db, err = sqlite.NewStore(cfg.Path)
	default:
		return nil, fmt.Errorf("%w: 未知的数据库驱动 '%s'", config.ErrInvalidConfig, cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("无法连接到数据库: %w", err)
	}
	if err := db.EnsureIndexes(ctx); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("无法创建/验证数据库索引: %w", err)
	}
	return db, nil
}
