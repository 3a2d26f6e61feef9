package ratelimit

import (
	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/connectpay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ratelimit",
	fx.Provide(NewLockerFromConfig),
)

func NewLockerFromConfig(cfg config.Config, log *zap.Logger) Locker {
	if cfg.RedisAddr == "" {
		log.Info("redis not configured, using in-process locks")
		return NewLocalLocker()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	return NewRedisLocker(client)
}
