package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cashback/internal/clock"
	"github.com/smallbiznis/cashback/internal/config"
	"github.com/smallbiznis/cashback/internal/dunning"
	"github.com/smallbiznis/cashback/internal/invoice"
	"github.com/smallbiznis/cashback/internal/lease"
	"github.com/smallbiznis/cashback/internal/merchant"
	"github.com/smallbiznis/cashback/internal/notification"
	"github.com/smallbiznis/cashback/internal/observability"
	"github.com/smallbiznis/cashback/internal/plan"
	"github.com/smallbiznis/cashback/internal/scheduler"
	"github.com/smallbiznis/cashback/internal/subscription"
	"github.com/smallbiznis/cashback/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// infra is the configuration, telemetry and storage every command needs.
func infra() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		db.Module,
		clock.Module,
	)
}

// billing wires the domains behind the scheduler jobs.
func billing() fx.Option {
	return fx.Options(
		fx.Provide(RegisterSnowflake),
		plan.Module,
		merchant.Module,
		subscription.Module,
		invoice.Module,
		dunning.Module,
		notification.Module,
		lease.Module,
		scheduler.Module,
	)
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
