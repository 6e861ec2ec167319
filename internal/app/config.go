package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the full runtime configuration. It can be loaded from YAML and is
// then overridden by explicitly set flags.
type Config struct {
	Addr             string        `yaml:"addr"`
	DBDriver         string        `yaml:"db_driver"`
	DBPath           string        `yaml:"db_path"`
	DBDSN            string        `yaml:"db_dsn"`
	PublicRoot       string        `yaml:"public_root"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
	AuditBodyCap     int           `yaml:"audit_body_cap"`
	AdminAPIKey      string        `yaml:"admin_api_key"`
	WebhookURL       string        `yaml:"webhook_url"`
	WebhookSecret    string        `yaml:"webhook_secret"`
	DispatchInterval time.Duration `yaml:"dispatch_interval"`
	VerboseSQL       bool          `yaml:"verbose_sql"`
}

func DefaultConfig() Config {
	return Config{
		Addr:             ":8080",
		DBDriver:         DriverSQLite,
		DBPath:           "./clientvault.sqlite",
		PublicRoot:       "./wwwroot",
		MaxUploadBytes:   512 << 20,
		AuditBodyCap:     1 << 20,
		DispatchInterval: 2 * time.Second,
	}
}

// LoadConfigFile decodes the YAML file at path over base, so keys missing
// from the file keep their base values.
func LoadConfigFile(path string, base Config) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	cfg := base
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.DBDriver) {
	case DriverSQLite:
		if strings.TrimSpace(c.DBPath) == "" {
			errs = append(errs, errors.New("db path is required for sqlite"))
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DBDSN) == "" {
			errs = append(errs, errors.New("db dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported db driver %q", c.DBDriver))
	}
	if strings.TrimSpace(c.PublicRoot) == "" {
		errs = append(errs, errors.New("public root is required"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max upload bytes must be positive"))
	}
	if c.AuditBodyCap <= 0 {
		errs = append(errs, errors.New("audit body cap must be positive"))
	}
	if c.WebhookSecret != "" && c.WebhookURL == "" {
		errs = append(errs, errors.New("webhook secret set without webhook url"))
	}
	return errors.Join(errs...)
}
