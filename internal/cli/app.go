package cli

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"expo-engine/backend/config"
	"expo-engine/backend/internal/repository"
	"expo-engine/backend/internal/service"
	"expo-engine/backend/pkg/database"
	applogger "expo-engine/backend/pkg/logger"
	"expo-engine/backend/pkg/redis"
)

// app 命令执行期间共享的依赖
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
	rdb    *redis.Client
	repo   *repository.Repository
	svc    *service.Service
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := applogger.NewLogger(&cfg.Log, "expoctl")
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, logger, nil
}

// newDBApp 只连接数据库，供迁移命令使用
func newDBApp() (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}
	return &app{cfg: cfg, logger: logger, db: db}, nil
}

// newApp 组装完整的 Service；Redis 不可用时检测不加锁
func newApp() (*app, error) {
	a, err := newDBApp()
	if err != nil {
		return nil, err
	}

	var locker service.DetectionLocker
	if rdb, err := redis.NewClient(&a.cfg.Redis, a.logger); err != nil {
		a.logger.Warn("Redis 连接失败，检测将不加互斥锁", zap.Error(err))
	} else {
		a.rdb = rdb
		locker = rdb
	}

	a.repo = repository.NewRepository(a.db)
	a.svc = service.NewService(a.cfg, a.repo, locker, nil, a.logger)
	return a, nil
}

// Close 释放连接
func (a *app) Close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
	a.logger.Sync()
}
