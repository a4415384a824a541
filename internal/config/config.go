// Package config loads Config from the environment, the way gohan's
// models.Config is loaded at startup via kelseyhightower/envconfig.
package config

import (
	"github.com/kelseyhightower/envconfig"

	"varda/internal/normalize"
)

// Config is the full set of environment-driven settings this engine reads
// at startup, plus the ambient keys for the database and broker it
// actually runs against.
type Config struct {
	Store struct {
		DataDir              string `envconfig:"VARDA_DATA_DIR" default:"./data"`
		SecondaryDataDir     string `envconfig:"VARDA_SECONDARY_DATA_DIR"`
		SecondaryDataByUser  bool   `envconfig:"VARDA_SECONDARY_DATA_BY_USER"`
		MaxContentLength     int64  `envconfig:"VARDA_MAX_CONTENT_LENGTH" default:"1073741824"`
	}
	Reference struct {
		Genome                 string `envconfig:"VARDA_GENOME"`
		ReferenceMismatchAbort bool   `envconfig:"VARDA_REFERENCE_MISMATCH_ABORT" default:"true"`
	}
	HTTP struct {
		CORSAllowOrigin string `envconfig:"VARDA_CORS_ALLOW_ORIGIN" default:"*"`
		URLPrefix       string `envconfig:"VARDA_API_URL_PREFIX" default:"/api"`
		Port            string `envconfig:"VARDA_HTTP_PORT" default:"8080"`
	}
	DB struct {
		Driver string `envconfig:"VARDA_DB_DRIVER" default:"sqlite"`
		DSN    string `envconfig:"VARDA_DB_DSN" default:":memory:"`
	}
	Broker struct {
		DSN string `envconfig:"VARDA_BROKER_DSN"`
	}
	LogLevel string `envconfig:"VARDA_LOG_LEVEL" default:"info"`
}

// Load reads Config from the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ReferenceMismatchPolicy translates the REFERENCE_MISMATCH_ABORT flag into
// the normalize package's policy enum.
func (c Config) ReferenceMismatchPolicy() normalize.ReferenceMismatchPolicy {
	if c.Reference.ReferenceMismatchAbort {
		return normalize.AbortOnMismatch
	}
	return normalize.DropOnMismatch
}
