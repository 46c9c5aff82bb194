package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PostingConfig tunes which sales the daily posting job picks up.
type PostingConfig struct {
	SaleTypes          []string `mapstructure:"saleTypes"`
	QualifyingStatuses []string `mapstructure:"qualifyingStatuses"`
	Timezone           string   `mapstructure:"timezone"`
}

func DefaultPostingConfig() PostingConfig {
	return PostingConfig{
		SaleTypes:          []string{"sale"},
		QualifyingStatuses: []string{"completed", "posted"},
		Timezone:           "UTC",
	}
}

type PostingConfigHolder struct {
	current atomic.Value // holds PostingConfig
}

// NewStaticPostingConfigHolder returns a holder that never reloads.
func NewStaticPostingConfigHolder(cfg PostingConfig) *PostingConfigHolder {
	holder := &PostingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPostingConfigHolder(log *zap.Logger) (*PostingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("posting")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/hera")
	v.AddConfigPath(".")

	v.SetEnvPrefix("HERA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPostingConfig()
	v.SetDefault("posting.saleTypes", defaults.SaleTypes)
	v.SetDefault("posting.qualifyingStatuses", defaults.QualifyingStatuses)
	v.SetDefault("posting.timezone", defaults.Timezone)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg PostingConfig
	if err := v.UnmarshalKey("posting", &cfg); err != nil {
		return nil, err
	}
	if err := validatePostingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticPostingConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	log = log.Named("config.posting")
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PostingConfig
		if err := v.UnmarshalKey("posting", &updated); err != nil {
			log.Warn("posting config reload failed", zap.Error(err))
			return
		}
		if err := validatePostingConfig(updated); err != nil {
			log.Warn("invalid posting config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("posting config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PostingConfigHolder) Get() PostingConfig {
	if h == nil {
		return DefaultPostingConfig()
	}
	return h.current.Load().(PostingConfig)
}

func validatePostingConfig(cfg PostingConfig) error {
	if len(cfg.SaleTypes) == 0 {
		return errors.New("posting.saleTypes cannot be empty")
	}
	if len(cfg.QualifyingStatuses) == 0 {
		return errors.New("posting.qualifyingStatuses cannot be empty")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return errors.New("posting.timezone is not a valid IANA zone")
	}
	return nil
}
