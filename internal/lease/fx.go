package lease

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/cashback/internal/clock"
	"github.com/smallbiznis/cashback/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("lease",
	fx.Provide(NewLocker),
)

// NewLocker prefers Redis when it is configured and falls back to the database.
func NewLocker(lc fx.Lifecycle, cfg config.Config, conn *gorm.DB, clk clock.Clock, log *zap.Logger) Locker {
	if !cfg.Redis.Enabled() {
		log.Info("lease.backend", zap.String("backend", "database"))
		return NewDBLocker(conn, clk)
	}

	log.Info("lease.backend", zap.String("backend", "redis"), zap.String("addr", cfg.Redis.Addr))
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return NewRedisLocker(client, cfg.AppName+":job-lease:")
}
