package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "ADMINREST"

// Config keys
const (
	cfgKeyDatabaseDriver  = "database.driver"
	cfgKeyDatabaseDSN     = "database.dsn"
	cfgKeyServerAddr      = "server.addr"
	cfgKeyServerBasePath  = "server.base_path"
	cfgKeyPagingDefault   = "paging.default_size"
	cfgKeyPagingMax       = "paging.max_size"
	cfgKeyMessagesFile    = "messages.file"
	cfgKeyLogLevel        = "log.level"
	cfgKeyLogFormat       = "log.format"
	cfgKeyTelemetryURL    = "telemetry.endpoint"
	cfgKeyTelemetryName   = "telemetry.service_name"
	cfgKeyServerTiming    = "telemetry.server_timing"
	cfgKeyDetailedTracing = "telemetry.detailed_db_tracing"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

// Config is the decoded adminserver configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Paging    PagingConfig    `mapstructure:"paging"`
	Messages  MessagesConfig  `mapstructure:"messages"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Scopes    []ScopeConfig   `mapstructure:"scopes"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type ServerConfig struct {
	Addr     string `mapstructure:"addr"`
	BasePath string `mapstructure:"base_path"`
}

type PagingConfig struct {
	DefaultSize int `mapstructure:"default_size"`
	MaxSize     int `mapstructure:"max_size"`
}

type MessagesConfig struct {
	File string `mapstructure:"file"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig enables OTLP export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint          string `mapstructure:"endpoint"`
	ServiceName       string `mapstructure:"service_name"`
	ServerTiming      bool   `mapstructure:"server_timing"`
	DetailedDBTracing bool   `mapstructure:"detailed_db_tracing"`
}

// ScopeConfig declares a specification scope on a demo repository:
//
//	scopes:
//	  - repository: customer
//	    name: berlin
//	    where: city = ?
//	    args: [Berlin]
type ScopeConfig struct {
	Repository string        `mapstructure:"repository"`
	Name       string        `mapstructure:"name"`
	Where      string        `mapstructure:"where"`
	Args       []interface{} `mapstructure:"args"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(cfgKeyDatabaseDriver, driverSQLite)
	v.SetDefault(cfgKeyDatabaseDSN, "file:adminserver.db?_foreign_keys=on")
	v.SetDefault(cfgKeyServerAddr, ":8080")
	v.SetDefault(cfgKeyServerBasePath, "/rest")
	v.SetDefault(cfgKeyPagingDefault, 10)
	v.SetDefault(cfgKeyPagingMax, 1000)
	v.SetDefault(cfgKeyMessagesFile, "")
	v.SetDefault(cfgKeyLogLevel, "info")
	v.SetDefault(cfgKeyLogFormat, "text")
	v.SetDefault(cfgKeyTelemetryURL, "")
	v.SetDefault(cfgKeyTelemetryName, "adminserver")
	v.SetDefault(cfgKeyServerTiming, true)
	v.SetDefault(cfgKeyDetailedTracing, false)
}

// loadConfig reads the optional config file and ADMINREST_* environment overrides
// (ADMINREST_SERVER_ADDR overrides server.addr).
func loadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	switch c.Database.Driver {
	case driverSQLite, driverPostgres:
	default:
		errs = append(errs, fmt.Errorf("%s must be %s or %s, got %q", cfgKeyDatabaseDriver, driverSQLite, driverPostgres, c.Database.Driver))
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, fmt.Errorf("%s is required", cfgKeyDatabaseDSN))
	}
	if c.Paging.DefaultSize < 1 || c.Paging.MaxSize < c.Paging.DefaultSize {
		errs = append(errs, fmt.Errorf("paging sizes must satisfy 1 <= %s <= %s", cfgKeyPagingDefault, cfgKeyPagingMax))
	}
	for i, sc := range c.Scopes {
		if sc.Repository == "" || sc.Name == "" || strings.TrimSpace(sc.Where) == "" {
			errs = append(errs, fmt.Errorf("scopes[%d] needs repository, name and where", i))
		}
	}
	return errors.Join(errs...)
}
