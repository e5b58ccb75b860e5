package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/smallbiznis/cashback/internal/invoice/format"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const DefaultInvoiceNumberTemplate = "INV-{YYYY}{MM}-{SEQ6}"

// BillingConfig holds the tunables operators change without a deploy.
type BillingConfig struct {
	GraceDays             int    `mapstructure:"graceDays"`
	SuspensionDays        int    `mapstructure:"suspensionDays"`
	ReminderDays          int    `mapstructure:"reminderDays"`
	InvoiceNumberTemplate string `mapstructure:"invoiceNumberTemplate"`
	// BillSuspended keeps invoicing delinquent and suspended subscriptions.
	BillSuspended         bool   `mapstructure:"billSuspended"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		GraceDays:             3,
		SuspensionDays:        15,
		ReminderDays:          1,
		InvoiceNumberTemplate: DefaultInvoiceNumberTemplate,
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder wraps a fixed config; used by tests and one-shot runs.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/cashback")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CASHBACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.graceDays", defaults.GraceDays)
	v.SetDefault("billing.suspensionDays", defaults.SuspensionDays)
	v.SetDefault("billing.reminderDays", defaults.ReminderDays)
	v.SetDefault("billing.invoiceNumberTemplate", defaults.InvoiceNumberTemplate)
	v.SetDefault("billing.billSuspended", defaults.BillSuspended)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := ValidateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Warn("billing.config.reload_failed", zap.Error(err))
			return
		}
		if err := ValidateBillingConfig(updated); err != nil {
			log.Warn("billing.config.invalid", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing.config.reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func ValidateBillingConfig(cfg BillingConfig) error {
	if cfg.GraceDays < 0 {
		return errors.New("billing.graceDays cannot be negative")
	}
	if cfg.SuspensionDays <= cfg.GraceDays {
		return errors.New("billing.suspensionDays must be greater than billing.graceDays")
	}
	if cfg.ReminderDays <= 0 {
		return errors.New("billing.reminderDays must be positive")
	}
	if strings.TrimSpace(cfg.InvoiceNumberTemplate) == "" {
		return errors.New("billing.invoiceNumberTemplate cannot be empty")
	}
	if err := format.ValidateTemplate(cfg.InvoiceNumberTemplate); err != nil {
		return fmt.Errorf("billing.invoiceNumberTemplate: %w", err)
	}
	return nil
}
