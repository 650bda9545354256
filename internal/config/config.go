package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Hedging  HedgingConfig  `mapstructure:"hedging"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"` // sqlite file path
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`
	ExpireHour int    `mapstructure:"expire_hour"`
}

// HedgingConfig carries the tunables of the lifecycle engine.
type HedgingConfig struct {
	// Orders at or above this amount require approval before quoting.
	ApprovalThreshold string `mapstructure:"approval_threshold"`
	// Interval of the background sweep (expiry + due settlements), seconds.
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads config.yaml from the working directory, with ATLAS_ prefixed
// environment variables overriding file values (ATLAS_SERVER_PORT etc).
// Missing files are fine; defaults cover every key.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ATLAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", "8080")
	v.SetDefault("database.path", "atlas.db")
	v.SetDefault("jwt.secret", "atlas-secret-key")
	v.SetDefault("jwt.expire_hour", 24)
	v.SetDefault("hedging.approval_threshold", "100000")
	v.SetDefault("hedging.sweep_interval_seconds", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
