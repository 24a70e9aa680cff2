// Package config loads the tool configuration from cadsync.yaml, the
// environment and an optional local .env file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"cadsync/internal/database"
)

// Config is the full tool configuration. Enterprise is optional; when its
// host is empty the audit step is skipped.
type Config struct {
	Catalog    database.Config
	GIS        database.Config
	Enterprise database.Config

	OutDir string `mapstructure:"out_dir"`
	Schema string
	Table  string
}

// Load reads configuration from path (or the default search locations when
// path is empty) with CADSYNC_-prefixed environment overrides.
func Load(path string) (Config, error) {
	// Local development convenience, same as the .env handling around the
	// source datasets: values already in the environment win.
	_ = database.LoadEnvFile(".env")

	v := viper.New()
	v.SetEnvPrefix("CADSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("out_dir", "out")
	v.SetDefault("schema", "gis_layers")
	v.SetDefault("table", "blocks_and_parcels")
	v.SetDefault("catalog.port", "5432")
	v.SetDefault("gis.port", "5432")
	v.SetDefault("enterprise.port", "1521")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cadsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/cadsync")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// Running purely off the environment is fine; an explicit --config
		// that cannot be read is not.
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
