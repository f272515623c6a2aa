package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Load policies for a batch. Atomic wraps dimension and fact writes in a
// single transaction; best-effort commits row by row and leaves partial
// writes behind on failure.
const (
	LoadPolicyAtomic     = "atomic"
	LoadPolicyBestEffort = "besteffort"
)

// PipelineConfig carries the tunable transform policy, loaded from
// starmart.yml with STARMART_* env overrides.
type PipelineConfig struct {
	AllowedEvents  []string `mapstructure:"allowedEvents"`
	LoadPolicy     string   `mapstructure:"loadPolicy"`
	EventAmountMax float64  `mapstructure:"eventAmountMax"`
	SaleAmountMax  float64  `mapstructure:"saleAmountMax"`
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		AllowedEvents:  []string{"pageview", "signup", "purchase"},
		LoadPolicy:     LoadPolicyAtomic,
		EventAmountMax: 250_000,
		SaleAmountMax:  5_000_000,
	}
}

// NewPipelineConfig reads starmart.yml if present, falling back to defaults.
func NewPipelineConfig() (PipelineConfig, error) {
	v := viper.New()

	v.SetConfigName("starmart")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/starmart")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STARMART")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPipelineConfig()
	v.SetDefault("pipeline.allowedEvents", defaults.AllowedEvents)
	v.SetDefault("pipeline.loadPolicy", defaults.LoadPolicy)
	v.SetDefault("pipeline.eventAmountMax", defaults.EventAmountMax)
	v.SetDefault("pipeline.saleAmountMax", defaults.SaleAmountMax)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return PipelineConfig{}, err
		}
	}

	var cfg PipelineConfig
	if err := v.UnmarshalKey("pipeline", &cfg); err != nil {
		return PipelineConfig{}, err
	}
	if err := validatePipelineConfig(cfg); err != nil {
		return PipelineConfig{}, err
	}
	return cfg, nil
}

func validatePipelineConfig(cfg PipelineConfig) error {
	if len(cfg.AllowedEvents) == 0 {
		return errors.New("pipeline.allowedEvents must not be empty")
	}
	switch cfg.LoadPolicy {
	case LoadPolicyAtomic, LoadPolicyBestEffort:
	default:
		return errors.New("pipeline.loadPolicy must be atomic or besteffort")
	}
	return nil
}

// AllowsEvent reports whether a canonicalized event label is accepted.
func (c PipelineConfig) AllowsEvent(event string) bool {
	for _, allowed := range c.AllowedEvents {
		if event == allowed {
			return true
		}
	}
	return false
}
