package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load fills cfg from the process environment using its `env` and
// `envDefault` struct tags:
//
//	type Config struct {
//	    HTTPPort       int    `env:"STOREFRONT_HTTP_PORT" envDefault:"8010"`
//	    StorageBackend string `env:"STORAGE_BACKEND" envDefault:"memory"`
//	}
func Load(cfg any) error {
	return LoadFrom(cfg, nil)
}

// LoadFrom is Load with an explicit environment map. A nil map reads the
// process environment.
func LoadFrom(cfg any, environment map[string]string) error {
	opts := env.Options{}
	if environment != nil {
		opts.Environment = environment
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
