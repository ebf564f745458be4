package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PayoutConfig is the hot-reloadable payout program policy shared by all tenants.
type PayoutConfig struct {
	DefaultMinPayoutCents      int64
	TaxReportingThresholdCents int64
	Fees                       map[string]int64
}

func DefaultPayoutConfig() PayoutConfig {
	return PayoutConfig{
		DefaultMinPayoutCents:      5000,
		TaxReportingThresholdCents: 60000,
		Fees: map[string]int64{
			"stripe_connect": 0,
			"paypal":         0,
			"bank_wire":      2500,
			"check":          0,
			"manual":         0,
		},
	}
}

// FeeFor returns the flat fee for a payout method type. Unknown types are free.
func (c PayoutConfig) FeeFor(methodType string) int64 {
	if c.Fees == nil {
		return 0
	}
	return c.Fees[strings.ToLower(strings.TrimSpace(methodType))]
}

type PayoutConfigHolder struct {
	current atomic.Value // holds PayoutConfig
}

// NewStaticPayoutConfigHolder returns a holder that never reloads.
func NewStaticPayoutConfigHolder(cfg PayoutConfig) *PayoutConfigHolder {
	holder := &PayoutConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPayoutConfigHolder(cfg Config, log *zap.Logger) (*PayoutConfigHolder, error) {
	log = log.Named("payout.config")
	v := viper.New()

	if cfg.PayoutConfigPath != "" {
		v.SetConfigFile(cfg.PayoutConfigPath)
	} else {
		v.SetConfigName("payout")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/commissionrail")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("COMMISSIONRAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPayoutConfig()
	v.SetDefault("payout.default_min_payout_cents", defaults.DefaultMinPayoutCents)
	v.SetDefault("payout.tax_reporting_threshold_cents", defaults.TaxReportingThresholdCents)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	current, err := decodePayoutConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &PayoutConfigHolder{}
	holder.current.Store(current)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodePayoutConfig(v)
			if err != nil {
				log.Warn("invalid payout config ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("payout config reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *PayoutConfigHolder) Get() PayoutConfig {
	return h.current.Load().(PayoutConfig)
}

func decodePayoutConfig(v *viper.Viper) (PayoutConfig, error) {
	cfg := PayoutConfig{
		DefaultMinPayoutCents:      v.GetInt64("payout.default_min_payout_cents"),
		TaxReportingThresholdCents: v.GetInt64("payout.tax_reporting_threshold_cents"),
		Fees:                       map[string]int64{},
	}
	for method, fee := range DefaultPayoutConfig().Fees {
		cfg.Fees[method] = fee
	}
	for method := range v.GetStringMap("payout.fees") {
		cfg.Fees[strings.ToLower(method)] = v.GetInt64("payout.fees." + method)
	}
	if err := validatePayoutConfig(cfg); err != nil {
		return PayoutConfig{}, err
	}
	return cfg, nil
}

func validatePayoutConfig(cfg PayoutConfig) error {
	if cfg.DefaultMinPayoutCents < 0 {
		return errors.New("payout.default_min_payout_cents cannot be negative")
	}
	if cfg.TaxReportingThresholdCents < 0 {
		return errors.New("payout.tax_reporting_threshold_cents cannot be negative")
	}
	for method, fee := range cfg.Fees {
		if fee < 0 {
			return fmt.Errorf("payout.fees.%s cannot be negative", method)
		}
	}
	return nil
}
