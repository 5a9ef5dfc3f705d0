package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/kataras/iris/v12"
	"go.uber.org/zap"

	"github.com/example/sailchat/internal/auth"
	"github.com/example/sailchat/internal/datamodels/chat"
	"github.com/example/sailchat/internal/config"
	"github.com/example/sailchat/internal/infra/mq"
	"github.com/example/sailchat/internal/infra/redis"
	"github.com/example/sailchat/internal/logger"
	"github.com/example/sailchat/internal/middleware"
	"github.com/example/sailchat/internal/notify"
	"github.com/example/sailchat/internal/repository/sqlstore"
	"github.com/example/sailchat/internal/server"
	"github.com/example/sailchat/internal/service"
	"github.com/example/sailchat/internal/snapshot"
)

func main() {
	configPath := flag.String("config", "", "path to config file (yaml/json/toml)")
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
	redisClient := redis.Init(&cfg.Redis)
	mqConn := mq.Init(&cfg.RabbitMQ)
	defer mqConn.Close()

	publisher, err := mq.NewPublisher(mqConn, cfg.RabbitMQ.Queue)
	if err != nil {
		log.Fatal("failed to open notification publisher", zap.Error(err))
	}
	defer publisher.Close()
	dispatcher := notify.NewDispatcher(publisher, cfg.Notify)

	chatSvc := service.NewChatService(
		sqlstore.NewChatRepository(db),
		service.WithNotifier(dispatcher),
		service.WithTxTimeout(cfg.Chat.TxTimeout),
		service.WithPolicy(chat.Policy{
			MaxAttachments:     cfg.Chat.MaxAttachments,
			MaxBodyLength:      cfg.Chat.MaxBodyLength,
			AllowedURLPrefixes: cfg.Chat.AttachmentURLPrefixes,
		}),
	)
	resolver := snapshot.NewResolver(
		sqlstore.NewListingRepository(db),
		sqlstore.NewUserRepository(db),
		redis.NewSnapshotCache(redisClient, cfg.Cache.UserTTL),
	)

	app := iris.New()
	server.RegisterRoutes(app, server.Deps{
		Chat:     chatSvc,
		Resolver: resolver,
		Auth:     auth.NewAuthenticator(&cfg.JWT, auth.NewTokenCache(redisClient, 0)),
		Limiter:  middleware.NewUserLimiter(cfg.RateLimit),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown failed", zap.Error(err))
		}
	}()

	addr := cfg.Server.Addr()
	log.Info("chat api listening", zap.String("addr", addr))
	if err := app.Run(iris.Addr(addr), iris.WithoutInterruptHandler); err != nil && !errors.Is(err, iris.ErrServerClosed) {
		log.Error("failed to run chat api", zap.Error(err))
	}

	// 已提交消息的通知尽量投递完再退出
	drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := dispatcher.Close(drainCtx); err != nil {
		log.Warn("notification dispatcher did not drain", zap.Error(err))
	}
}
