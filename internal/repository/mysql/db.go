package mysql

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/shopfront/internal/config"
	"github.com/example/shopfront/internal/datamodels/cart"
	"github.com/example/shopfront/internal/datamodels/chat"
	"github.com/example/shopfront/internal/datamodels/user"
)

// Open 连接 MySQL 并自动迁移表结构
func Open(cfg *config.MySQLConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		// 唯一键冲突翻译成 gorm.ErrDuplicatedKey
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}
	if err := db.AutoMigrate(&user.User{}, &chat.Message{}, &cart.Cart{}, &cart.Item{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if log != nil {
		log.Info("mysql ready")
	}
	return db, nil
}
