package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/example/sailchat/internal/config"
	"github.com/example/sailchat/internal/logger"
	"github.com/example/sailchat/internal/repository/sqlstore"
	"github.com/example/sailchat/internal/service"
	"github.com/example/sailchat/internal/snapshot"
)

func main() {
	configPath := flag.String("config", "", "path to config file (yaml/json/toml)")
	once := flag.Bool("once", false, "run a single pass and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	log, err := logger.Init(&cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db := sqlstore.Init(&cfg.Database)
	chatSvc := service.NewChatService(sqlstore.NewChatRepository(db), service.WithTxTimeout(cfg.Chat.TxTimeout))
	resolver := snapshot.NewResolver(sqlstore.NewListingRepository(db), sqlstore.NewUserRepository(db), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interval := cfg.Sync.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	log.Info("listing availability sync started", zap.Duration("interval", interval))

	// 立即执行一次
	syncAll(ctx, chatSvc, resolver)
	if *once {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			syncAll(ctx, chatSvc, resolver)
		}
	}
}

func syncAll(ctx context.Context, chatSvc *service.ChatService, resolver *snapshot.Resolver) {
	start := time.Now()
	res, err := chatSvc.SyncListingAvailability(ctx, 0, resolver)
	if err != nil {
		zap.L().Error("listing availability sync failed", zap.Error(err))
		return
	}
	zap.L().Info("listing availability synced",
		zap.Int("listings", res.Listings),
		zap.Int("threads_updated", res.Updated),
		zap.Duration("took", time.Since(start)))
}
