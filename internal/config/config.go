// Package config provides configuration loading for embedd.
//
// Configuration is loaded from a YAML file, then overridden by
// EMBEDD_-prefixed environment variables, with hardcoded defaults for
// everything left unset.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/embedd/internal/embeddings"
)

// Config holds the complete embedd configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Models  ModelsConfig  `koanf:"models"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// ModelsConfig holds model registry and backend configuration.
type ModelsConfig struct {
	// Dir is where model weights and tokenizer files are cached.
	Dir string `koanf:"dir"`

	// Per-category default model names, used when a request omits the
	// model field.
	DenseDefault           string `koanf:"dense_default"`
	SparseDefault          string `koanf:"sparse_default"`
	LateInteractionDefault string `koanf:"late_interaction_default"`

	// Per-category registry capacities. A category's least-recently-used
	// idle model is evicted when its capacity is exceeded.
	DenseCapacity           int `koanf:"dense_capacity"`
	SparseCapacity          int `koanf:"sparse_capacity"`
	LateInteractionCapacity int `koanf:"late_interaction_capacity"`

	// MaxLength is the maximum input sequence length for all backends.
	MaxLength int `koanf:"max_length"`

	// Warmup eagerly loads the three default models at startup.
	Warmup bool `koanf:"warmup"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// NewDefaultConfig returns the configuration defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Models: ModelsConfig{
			Dir:                     defaultModelsDir(),
			DenseDefault:            embeddings.DefaultDenseModel,
			SparseDefault:           embeddings.DefaultSparseModel,
			LateInteractionDefault:  embeddings.DefaultLateInteractionModel,
			DenseCapacity:           2,
			SparseCapacity:          1,
			LateInteractionCapacity: 1,
			MaxLength:               512,
			Warmup:                  true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func defaultModelsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "models")
	}
	return filepath.Join(home, ".cache", "embedd", "models")
}

// Validate checks the configuration tree for invalid values.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if c.Models.Dir == "" {
		errs = append(errs, errors.New("models.dir is required"))
	}
	if c.Models.DenseCapacity < 1 {
		errs = append(errs, fmt.Errorf("models.dense_capacity %d must be positive", c.Models.DenseCapacity))
	}
	if c.Models.SparseCapacity < 1 {
		errs = append(errs, fmt.Errorf("models.sparse_capacity %d must be positive", c.Models.SparseCapacity))
	}
	if c.Models.LateInteractionCapacity < 1 {
		errs = append(errs, fmt.Errorf("models.late_interaction_capacity %d must be positive", c.Models.LateInteractionCapacity))
	}
	if c.Models.MaxLength < 1 {
		errs = append(errs, fmt.Errorf("models.max_length %d must be positive", c.Models.MaxLength))
	}
	if c.Models.DenseDefault == "" || c.Models.SparseDefault == "" || c.Models.LateInteractionDefault == "" {
		errs = append(errs, errors.New("all category default models are required"))
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be json or console", c.Logging.Format))
	}

	return errors.Join(errs...)
}
