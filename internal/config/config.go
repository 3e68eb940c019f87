// Package config loads the facet configuration from facet.yml and the
// environment, including the declared entity model.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/facet-dev/facet/internal/entity"
)

// Config represents the facet configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Model    []EntityConfig `mapstructure:"model"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	APIPrefix string `mapstructure:"api_prefix"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL          string `mapstructure:"url"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// RedisConfig represents the optional external-id store configuration.
// An empty address keeps external-id mapping in memory.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MetadataConfig controls the projection metadata cache
type MetadataConfig struct {
	Preload bool `mapstructure:"preload"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// AuditConfig controls audit stamping
type AuditConfig struct {
	// DefaultUser is stamped when no request principal is available.
	DefaultUser string `mapstructure:"default_user"`
}

// EntityConfig declares one persisted type in the model section
type EntityConfig struct {
	Name         string           `mapstructure:"name"`
	Table        string           `mapstructure:"table"`
	TableID      string           `mapstructure:"table_id"`
	Identity     string           `mapstructure:"identity"`
	InstanceName string           `mapstructure:"instance_name"`
	Audited      bool             `mapstructure:"audited"`
	Properties   []PropertyConfig `mapstructure:"properties"`
}

// PropertyConfig declares one property of an entity
type PropertyConfig struct {
	Name     string `mapstructure:"name"`
	Column   string `mapstructure:"column"`
	Type     string `mapstructure:"type"`
	Required bool   `mapstructure:"required"`
	// Target is the related entity's table id for reference properties.
	Target string `mapstructure:"target"`
}

// Load loads the configuration from facet.yml or facet.yaml
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_prefix", "/api")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("metadata.preload", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)
	v.SetDefault("audit.default_user", "system")

	v.SetConfigName("facet")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/facet")

	v.SetEnvPrefix("FACET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// DatabaseURL returns the database URL from config or environment
func (c *Config) DatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return c.Database.URL
}

// BuildRegistry converts the declared model into a class registry
func (c *Config) BuildRegistry() (*entity.Registry, error) {
	registry := entity.NewRegistry()

	for _, ec := range c.Model {
		if ec.Name == "" || ec.Table == "" || ec.TableID == "" {
			return nil, fmt.Errorf("model entity %q: name, table, and table_id are required", ec.Name)
		}

		class := entity.NewClass(ec.Name, ec.Table)
		class.TableID = ec.TableID
		class.Audited = ec.Audited
		class.InstanceNameProperty = ec.InstanceName
		if ec.Identity != "" {
			class.IdentityProperty = ec.Identity
		}

		for _, pc := range ec.Properties {
			kind, err := entity.ParsePropertyKind(pc.Type)
			if err != nil {
				return nil, fmt.Errorf("model entity %q property %q: %w", ec.Name, pc.Name, err)
			}
			if kind == entity.PropReference && pc.Target == "" {
				return nil, fmt.Errorf("model entity %q property %q: reference properties need a target", ec.Name, pc.Name)
			}
			class.AddProperty(&entity.Property{
				Name:     pc.Name,
				Column:   pc.Column,
				Kind:     kind,
				Required: pc.Required,
				Target:   pc.Target,
			})
		}

		if err := registry.Register(class); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Server.APIPrefix != "" {
		if !strings.HasPrefix(cfg.Server.APIPrefix, "/") {
			return fmt.Errorf("server.api_prefix must start with '/', got: %s", cfg.Server.APIPrefix)
		}
		if strings.HasSuffix(cfg.Server.APIPrefix, "/") {
			return fmt.Errorf("server.api_prefix must not end with '/', got: %s", cfg.Server.APIPrefix)
		}
	}
	return nil
}
