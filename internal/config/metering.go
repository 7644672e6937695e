package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// MeteringConfig is the usage gate policy. It can be edited at runtime
// through metering.yml.
type MeteringConfig struct {
	FreeDailyLimit int64  `mapstructure:"freeDailyLimit"`
	Timezone       string `mapstructure:"timezone"`
}

func DefaultMeteringConfig() MeteringConfig {
	return MeteringConfig{
		FreeDailyLimit: 5,
		Timezone:       "UTC",
	}
}

// Location resolves the timezone that defines the calendar day for the
// free daily allowance.
func (c MeteringConfig) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(c.Timezone))
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

type MeteringConfigHolder struct {
	current atomic.Value // holds MeteringConfig
}

// NewStaticMeteringConfigHolder returns a holder that never reloads.
func NewStaticMeteringConfigHolder(cfg MeteringConfig) *MeteringConfigHolder {
	holder := &MeteringConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewMeteringConfigHolder(log *zap.Logger) (*MeteringConfigHolder, error) {
	log = log.Named("config.metering")
	v := viper.New()

	v.SetConfigName("metering")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/creditledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CREDITLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultMeteringConfig()
	v.SetDefault("metering.freeDailyLimit", defaults.FreeDailyLimit)
	v.SetDefault("metering.timezone", defaults.Timezone)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg MeteringConfig
	if err := v.UnmarshalKey("metering", &cfg); err != nil {
		return nil, err
	}
	if err := validateMeteringConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticMeteringConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated MeteringConfig
		if err := v.UnmarshalKey("metering", &updated); err != nil {
			log.Warn("metering config reload failed", zap.Error(err))
			return
		}
		if err := validateMeteringConfig(updated); err != nil {
			log.Warn("invalid metering config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("metering config reloaded",
			zap.String("file", e.Name),
			zap.Int64("free_daily_limit", updated.FreeDailyLimit),
		)
	})

	return holder, nil
}

func (h *MeteringConfigHolder) Get() MeteringConfig {
	return h.current.Load().(MeteringConfig)
}

func validateMeteringConfig(cfg MeteringConfig) error {
	if cfg.FreeDailyLimit < 0 {
		return fmt.Errorf("metering.freeDailyLimit must be >= 0, got %d", cfg.FreeDailyLimit)
	}
	if _, err := time.LoadLocation(strings.TrimSpace(cfg.Timezone)); err != nil {
		return fmt.Errorf("metering.timezone: %w", err)
	}
	return nil
}
