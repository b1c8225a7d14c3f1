package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DataPath string        `mapstructure:"data_path"`
	Tracker  TrackerConfig `mapstructure:"tracker"`
	Runner   RunnerConfig  `mapstructure:"runner"`
	History  HistoryConfig `mapstructure:"history"`
}

// TrackerConfig configures the issue tracker lookup
type TrackerConfig struct {
	Field         string        `mapstructure:"field"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond int           `mapstructure:"rate_per_second"`
}

// RunnerConfig configures process launching
type RunnerConfig struct {
	WorkingDir string `mapstructure:"working_dir"`
}

// HistoryConfig configures the run history store
type HistoryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

var AppConfig Config

const (
	configName = "config"
	configType = "json"
	envPrefix  = "SHELLARGS"
)

// InitConfig loads configuration into AppConfig. An explicit file wins;
// otherwise $SHELLARGS_CONFIG_PATH or ~/.shellargs is searched and a default
// config file is written there when none exists.
func InitConfig(explicitFile string) error {
	configPath, err := configDir()
	if err != nil {
		return err
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(configPath)

	if explicitFile != "" {
		viper.SetConfigFile(explicitFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", explicitFile, err)
		}
	} else {
		viper.AddConfigPath(configPath)
		viper.SetConfigName(configName)
		viper.SetConfigType(configType)

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("failed to read config file: %w", err)
			}
			if err := os.MkdirAll(configPath, 0755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := viper.WriteConfigAs(filepath.Join(configPath, configName+"."+configType)); err != nil {
				return fmt.Errorf("failed to write default config file: %w", err)
			}
		}
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(AppConfig); err != nil {
		return err
	}

	if err := os.MkdirAll(AppConfig.DataPath, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	return nil
}

// Validate checks values that viper cannot type-check on its own
func Validate(c Config) error {
	if c.DataPath == "" {
		return fmt.Errorf("data_path must not be empty")
	}
	if c.Tracker.Field == "" {
		return fmt.Errorf("tracker.field must not be empty")
	}
	if c.Tracker.Timeout <= 0 {
		return fmt.Errorf("tracker.timeout must be positive, got %s", c.Tracker.Timeout)
	}
	if c.Tracker.RatePerSecond <= 0 {
		return fmt.Errorf("tracker.rate_per_second must be positive, got %d", c.Tracker.RatePerSecond)
	}
	return nil
}

func SetDataPath(path string) error {
	viper.Set("data_path", path)
	return viper.WriteConfig()
}

func configDir() (string, error) {
	if p := os.Getenv(envPrefix + "_CONFIG_PATH"); p != "" {
		return p, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".shellargs"), nil
}

func setDefaults(configPath string) {
	viper.SetDefault("data_path", filepath.Join(configPath, "data"))
	viper.SetDefault("tracker.field", "RepoMos")
	viper.SetDefault("tracker.timeout", "30s")
	viper.SetDefault("tracker.rate_per_second", 10)
	viper.SetDefault("runner.working_dir", ".")
	viper.SetDefault("history.enabled", true)
}
