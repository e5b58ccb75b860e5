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
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domains behind the jobs
		plan.Module,
		merchant.Module,
		subscription.Module,
		invoice.Module,
		dunning.Module,
		notification.Module,
		lease.Module,

		// No HTTP surface, loop only
		scheduler.Module,
		scheduler.Loop,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
