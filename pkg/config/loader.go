package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Validator is implemented by config structs that check cross-field rules
// after parsing. Load calls Validate and returns its error unchanged.
type Validator interface {
	Validate() error
}

// Load parses process environment variables into cfg using `env` and
// `envDefault` struct tags, then runs cfg.Validate when implemented.
//
//	type Config struct {
//	    Port   int    `env:"HTTP_PORT" envDefault:"4000"`
//	    Secret string `env:"JWT_ACCESS_SECRET,required,notEmpty"`
//	}
func Load(cfg any) error {
	return load(cfg, env.Options{})
}

// LoadFromMap behaves like Load but reads variables from vars instead of the
// process environment.
func LoadFromMap(cfg any, vars map[string]string) error {
	return load(cfg, env.Options{Environment: vars})
}

func load(cfg any, opts env.Options) error {
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
	}
	return nil
}
