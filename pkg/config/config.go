package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the file-backed part of the service configuration. Vault
// address, token and listen address come from flags; the role set, the
// database location and the CORS policy live here so deployments can
// change them without a rebuild.
type Config struct {
	KVMount        string   `yaml:"kv_mount"`        // KV v2 mount for static secrets
	DatabaseEngine string   `yaml:"database_engine"` // database secrets engine mount
	Roles          []Role   `yaml:"roles"`
	Postgres       Postgres `yaml:"postgres"`
	CORS           CORS     `yaml:"cors"`
}

// Role is a database engine role served through the credential cache.
type Role struct {
	Name       string `yaml:"name"`
	SecretType string `yaml:"secret_type"`
	Rotation   string `yaml:"rotation"`

	// VerifyConnection probes the database with each freshly issued
	// credential and reports the outcome in response metadata.
	VerifyConnection bool `yaml:"verify_connection"`

	// ResponseFields are merged into the credential payload on the way
	// out, e.g. host/port/database for clients that need a full DSN.
	ResponseFields map[string]string `yaml:"response_fields,omitempty"`
}

type Postgres struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default mirrors the reference deployment: a readonly and an admin
// role against a local dev database, browser UI on localhost:3000.
func Default() *Config {
	return &Config{
		KVMount:        "secret",
		DatabaseEngine: "database",
		Roles: []Role{
			{
				Name:             "readonly",
				SecretType:       "dynamic_database_credentials",
				Rotation:         "automatic_1h",
				VerifyConnection: true,
				ResponseFields: map[string]string{
					"host":     "postgres",
					"port":     "5432",
					"database": "devdb",
				},
			},
			{
				Name:             "admin",
				SecretType:       "dynamic_database_admin_credentials",
				Rotation:         "automatic_1h",
				VerifyConnection: true,
			},
		},
		Postgres: Postgres{
			Host:     "postgres",
			Port:     "5432",
			Database: "devdb",
			User:     "devuser",
			Password: "devpass",
			SSLMode:  "disable",
		},
		CORS: CORS{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

// FromFile loads a config file over the defaults.
func FromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening config file: %w", err)
	}
	defer file.Close()

	cfg := Default()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("error decoding config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if len(cfg.Roles) == 0 {
		return fmt.Errorf("at least one database role must be configured")
	}
	seen := make(map[string]bool, len(cfg.Roles))
	for i := range cfg.Roles {
		role := &cfg.Roles[i]
		if role.Name == "" {
			return fmt.Errorf("role %d has no name", i)
		}
		if seen[role.Name] {
			return fmt.Errorf("role %q configured twice", role.Name)
		}
		seen[role.Name] = true

		if role.SecretType == "" {
			role.SecretType = fmt.Sprintf("dynamic_database_%s_credentials", role.Name)
		}
		if role.Rotation == "" {
			role.Rotation = "automatic_1h"
		}
	}
	return nil
}

// RoleNames returns the configured role names in declaration order.
func (cfg *Config) RoleNames() []string {
	names := make([]string, len(cfg.Roles))
	for i, role := range cfg.Roles {
		names[i] = role.Name
	}
	return names
}
