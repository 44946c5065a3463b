// Package config loads relmap settings from relmap.yaml, RELMAP_ environment
// variables and defaults, in increasing order of precedence: defaults, file,
// environment. Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/roach88/relmap/internal/dialect"
)

// Keys.
const (
	KeyDialect    = "dialect"
	KeyDatabase   = "database"
	KeyAuditLimit = "audit_limit"
	KeyLazy       = "lazy"
)

// AppFs is the filesystem configuration files are read from.
var AppFs = afero.NewOsFs()

// Config holds the resolved settings.
type Config struct {
	// Dialect is the registered dialect name.
	Dialect string
	// Database is the sqlite path or the DSN of a server database.
	Database string
	// AuditLimit is the longest value stored per change-log row; longer
	// values are chunked and 0 disables chunking. Nil leaves the dialect's
	// own limit in place.
	AuditLimit *int
	// Lazy includes lazy sub-records in loads and writes.
	Lazy bool
}

// New returns a viper instance with relmap defaults and environment
// bindings, reading path when set or relmap.yaml from the working directory.
func New(path string) *viper.Viper {
	v := viper.New()
	v.SetFs(AppFs)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("relmap")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("RELMAP")
	v.AutomaticEnv()

	v.SetDefault(KeyDialect, dialect.SQLite)
	v.SetDefault(KeyDatabase, "relmap.db")
	v.SetDefault(KeyLazy, false)
	return v
}

// Load reads the configuration. A missing default file is not an error; a
// missing explicit file is.
func Load(path string) (*Config, error) {
	v := New(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper resolves and validates the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Dialect:  v.GetString(KeyDialect),
		Database: v.GetString(KeyDatabase),
		Lazy:     v.GetBool(KeyLazy),
	}
	if _, err := dialect.ByName(cfg.Dialect); err != nil {
		return nil, err
	}
	if v.IsSet(KeyAuditLimit) {
		n := v.GetInt(KeyAuditLimit)
		if n != 0 && n < 2 {
			return nil, fmt.Errorf("%s must be 0 (unlimited) or at least 2, got %d", KeyAuditLimit, n)
		}
		cfg.AuditLimit = &n
	}
	return cfg, nil
}
