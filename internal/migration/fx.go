package migration

import (
	"strings"

	"github.com/smallbiznis/cashback/internal/config"
	invoicedomain "github.com/smallbiznis/cashback/internal/invoice/domain"
	"github.com/smallbiznis/cashback/internal/lease"
	merchantdomain "github.com/smallbiznis/cashback/internal/merchant/domain"
	plandomain "github.com/smallbiznis/cashback/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/cashback/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Apply),
)

// Apply brings the schema up to date. Postgres uses the versioned SQL
// migrations; other dialects are auto-migrated from the models.
func Apply(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if strings.EqualFold(cfg.DBType, "postgres") {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
		version, dirty, err := Version(sqlDB)
		if err != nil {
			return err
		}
		log.Info("migration.applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return nil
	}

	if err := conn.AutoMigrate(Models()...); err != nil {
		return err
	}
	log.Info("migration.auto_migrated", zap.String("dialect", cfg.DBType))
	return nil
}

// Models lists every persisted model in dependency order.
func Models() []any {
	return []any{
		&merchantdomain.Merchant{},
		&plandomain.Plan{},
		&subscriptiondomain.Subscription{},
		&subscriptiondomain.StatusTransition{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceSequence{},
		&lease.JobLease{},
	}
}
