package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. GTDETL_STORAGE_DSN.
const EnvPrefix = "GTDETL"

// LoadDotEnv loads .env style files into the process environment. Missing
// files are skipped; variables already set are not overridden.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return errors.Wrapf(err, "load env file %s", p)
		}
	}
	return nil
}

// NewViper returns a viper instance with defaults and env binding set up.
// The CLI binds its flags onto the same instance.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("job", "gtd_star")
	v.SetDefault("source.kind", "csv")
	v.SetDefault("clean.fill_measures", true)
	v.SetDefault("clean.drop_unknown_dates", false)
	v.SetDefault("clean.explode_weapons", false)
	v.SetDefault("storage.kind", "sqlite")
	v.SetDefault("storage.dsn", "file:terrorismo_gtd.db")
	v.SetDefault("runtime.batch_size", 500)
	v.SetDefault("runtime.atomic_reload", false)
	v.SetDefault("metrics.backend", "none")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads a JSON or YAML pipeline document (by extension) and applies
// GTDETL_* overrides.
func Load(path string) (Pipeline, error) {
	v := NewViper()
	return LoadWith(v, path)
}

// LoadWith is Load on a caller-provided viper instance. An empty path uses
// defaults and environment only.
func LoadWith(v *viper.Viper, path string) (Pipeline, error) {
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Pipeline{}, errors.Wrapf(err, "read config %s", path)
		}
	}

	var p Pipeline
	if err := v.Unmarshal(&p); err != nil {
		return Pipeline{}, errors.Wrap(err, "decode config")
	}
	p.Storage.DSN = os.ExpandEnv(p.Storage.DSN)
	if p.Source.Mongo != nil {
		p.Source.Mongo.URI = os.ExpandEnv(p.Source.Mongo.URI)
	}
	return p, nil
}
