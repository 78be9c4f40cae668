// Package config loads runtime configuration: defaults, then an optional
// config.yaml, then RISK_-prefixed environment variables, highest wins.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration for the risk API.
type Config struct {
	Port          int    `mapstructure:"port"`
	SnapshotPath  string `mapstructure:"snapshot_path"`
	ModelPath     string `mapstructure:"model_path"`
	KnowledgePath string `mapstructure:"knowledge_path"`

	Gateway GatewayConfig `mapstructure:"gateway"`
	Policy  PolicyConfig  `mapstructure:"policy"`
}

// GatewayConfig configures the explanation gateway connection.
type GatewayConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PolicyConfig exposes the decision-policy knobs. The defaults are the
// canonical set; overriding them in production requires retuning against the
// trained model.
type PolicyConfig struct {
	HighThreshold    float64 `mapstructure:"high_threshold"`
	MediumThreshold  float64 `mapstructure:"medium_threshold"`
	NewDeviceBoost   float64 `mapstructure:"new_device_boost"`
	NewLocationBoost float64 `mapstructure:"new_location_boost"`
	ZScoreLimit      float64 `mapstructure:"zscore_limit"`
	RapidWindowSecs  float64 `mapstructure:"rapid_window_secs"`
	OddHourBefore    int     `mapstructure:"odd_hour_before"`
	RareLocationFreq float64 `mapstructure:"rare_location_freq"`
}

// Load reads the configuration. A missing config file is fine; a malformed
// one is not.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("port", 8080)
	v.SetDefault("snapshot_path", "data/transactions.csv")
	v.SetDefault("model_path", "data/model/risk_model.json")
	v.SetDefault("knowledge_path", "data/knowledge/risk_explanations.txt")

	v.SetDefault("gateway.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.model", "llama-3.1-8b-instant")
	v.SetDefault("gateway.timeout", 10*time.Second)

	v.SetDefault("policy.high_threshold", 0.7)
	v.SetDefault("policy.medium_threshold", 0.4)
	v.SetDefault("policy.new_device_boost", 0.10)
	v.SetDefault("policy.new_location_boost", 0.15)
	v.SetDefault("policy.zscore_limit", 3.0)
	v.SetDefault("policy.rapid_window_secs", 300.0)
	v.SetDefault("policy.odd_hour_before", 5)
	v.SetDefault("policy.rare_location_freq", 0.10)

	v.SetEnvPrefix("risk")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		// Only a missing file is tolerated.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
