package sqlstore

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/sailchat/internal/config"
	"github.com/example/sailchat/internal/datamodels/chat"
)

var (
	db   *gorm.DB
	once sync.Once
)

// Init 初始化全局 GORM 实例并自动迁移聊天表结构
func Init(cfg *config.DatabaseConfig) *gorm.DB {
	once.Do(func() {
		var err error
		db, err = Open(cfg)
		if err != nil {
			zap.L().Fatal("failed to connect database", zap.String("driver", cfg.Driver), zap.Error(err))
		}
		if err = Migrate(db); err != nil {
			zap.L().Fatal("auto migrate failed", zap.Error(err))
		}
	})
	return db
}

// DB 获取全局 DB
func DB() *gorm.DB {
	return db
}

// Open 按 driver 选择方言并配置连接池
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		// 本地开发与测试；内存库需配合 MaxOpenConns=1
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	gdb, err := gorm.Open(dialector, GormConfig(cfg.LogLevel))
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	return gdb, nil
}

// GormConfig 统一的 GORM 配置：翻译方言错误、UTC 毫秒时间戳
func GormConfig(level string) *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(parseLogLevel(level)),
		NowFunc:        Now,
	}
}

// Now 存储层使用的当前时间
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Migrate 迁移聊天相关表；商品与用户表归各自子系统管理
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&chat.Thread{}, &chat.Participant{}, &chat.Message{})
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	}
	return logger.Warn
}
