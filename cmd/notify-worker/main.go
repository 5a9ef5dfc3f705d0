package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/example/sailchat/internal/config"
	"github.com/example/sailchat/internal/infra/mq"
	"github.com/example/sailchat/internal/infra/redis"
	"github.com/example/sailchat/internal/logger"
	"github.com/example/sailchat/internal/notify"
)

const prefetch = 32

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

	mqConn := mq.Init(&cfg.RabbitMQ)
	defer mqConn.Close()
	redisClient := redis.Init(&cfg.Redis)

	consumer := notify.NewConsumer(redis.NewDeduper(redisClient), notify.NewLogPusher(log), cfg.Notify.DedupeTTL)

	ch, msgs, err := mq.Consume(mqConn, cfg.RabbitMQ.Queue, prefetch)
	if err != nil {
		log.Fatal("failed to consume", zap.String("queue", cfg.RabbitMQ.Queue), zap.Error(err))
	}
	defer ch.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("notify worker started, waiting for messages...", zap.String("queue", cfg.RabbitMQ.Queue))
	for {
		select {
		case <-ctx.Done():
			log.Info("notify worker stopping")
			return
		case d, ok := <-msgs:
			if !ok {
				log.Warn("delivery channel closed")
				return
			}
			err := consumer.Handle(ctx, d.Body)
			switch {
			case err == nil:
				_ = d.Ack(false)
			case errors.Is(err, notify.ErrMalformedJob):
				log.Warn("invalid notification dropped", zap.Error(err))
				// 消息格式错误，拒绝并丢弃
				_ = d.Nack(false, false)
			default:
				log.Warn("push failed, requeue", zap.Error(err))
				_ = d.Nack(false, true)
			}
		}
	}
}
