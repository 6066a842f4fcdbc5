package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// WIDGETS_DATABASE_DSN overrides database.dsn.
const EnvPrefix = "WIDGETS"

// DefaultFile is the config file name looked up when none is given.
const DefaultFile = "widgets.yaml"

// Drivers accepted in database.driver.
var Drivers = []string{"sqlite", "postgres", "mysql", "mssql"}

// Config represents the top-level widgets configuration file.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Auth     AuthConfig     `yaml:"auth" mapstructure:"auth"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
	MCP      MCPConfig      `yaml:"mcp" mapstructure:"mcp"`

	// File is the config file that was read, empty when running on defaults.
	File string `yaml:"-" mapstructure:"-"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string          `yaml:"host" mapstructure:"host"`
	Port            int             `yaml:"port" mapstructure:"port"`
	ShutdownTimeout string          `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	CORS            CORSConfig      `yaml:"cors" mapstructure:"cors"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins" mapstructure:"origins"`
}

// RateLimitConfig caps requests per client IP. Zero disables the limit.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// DatabaseConfig selects the database holding keys and widgets.
type DatabaseConfig struct {
	Driver string     `yaml:"driver" mapstructure:"driver"`
	DSN    string     `yaml:"dsn" mapstructure:"dsn"`
	Pool   PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig controls the connection pool. Ignored for sqlite.
type PoolConfig struct {
	MaxOpenConns    int    `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// AuthConfig controls authentication settings.
type AuthConfig struct {
	JWTSecret               string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	JWTExpiry               string `yaml:"jwt_expiry" mapstructure:"jwt_expiry"`
	APIKeyHeader            string `yaml:"api_key_header" mapstructure:"api_key_header"`
	PerKeyRequestsPerMinute int    `yaml:"per_key_requests_per_minute" mapstructure:"per_key_requests_per_minute"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MCPConfig controls the MCP (Model Context Protocol) server.
type MCPConfig struct {
	Transport string `yaml:"transport" mapstructure:"transport"`
	Port      int    `yaml:"port" mapstructure:"port"`
}

// Default returns a Config pre-filled with sensible defaults.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "30s",
			CORS:            CORSConfig{Origins: []string{"*"}},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    filepath.Join(home, ".widgets", "widgets.db"),
			Pool: PoolConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: "5m",
			},
		},
		Auth: AuthConfig{
			JWTExpiry:    "1h",
			APIKeyHeader: "X-API-Key",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		MCP: MCPConfig{
			Transport: "stdio",
			Port:      3001,
		},
	}
}

// setDefaults registers every key with v so AutomaticEnv can override keys
// that are absent from the file.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.cors.origins", d.Server.CORS.Origins)
	v.SetDefault("server.rate_limit.requests_per_minute", d.Server.RateLimit.RequestsPerMinute)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.pool.max_open_conns", d.Database.Pool.MaxOpenConns)
	v.SetDefault("database.pool.max_idle_conns", d.Database.Pool.MaxIdleConns)
	v.SetDefault("database.pool.conn_max_lifetime", d.Database.Pool.ConnMaxLifetime)
	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.jwt_expiry", d.Auth.JWTExpiry)
	v.SetDefault("auth.api_key_header", d.Auth.APIKeyHeader)
	v.SetDefault("auth.per_key_requests_per_minute", d.Auth.PerKeyRequestsPerMinute)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("mcp.transport", d.MCP.Transport)
	v.SetDefault("mcp.port", d.MCP.Port)
}

// Configure prepares v for Load: defaults, WIDGETS_* environment overrides
// and the config file search path. An explicit path disables the search.
func Configure(v *viper.Viper, path string) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		return
	}
	v.SetConfigName(strings.TrimSuffix(DefaultFile, ".yaml"))
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.widgets")
}

// Load reads the config file (if any) into v, expanding ${VAR_NAME}
// references, and returns the validated effective configuration. A missing
// file is not an error when no explicit path was configured.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if file := v.ConfigFileUsed(); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// Expand environment variables: ${VAR_NAME}
		content := os.ExpandEnv(string(data))
		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewBufferString(content)); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would only fail later at runtime.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(Drivers, c.Database.Driver) {
		errs = append(errs, fmt.Errorf("database.driver: unsupported driver %q (available: %s)",
			c.Database.Driver, strings.Join(Drivers, ", ")))
	}
	if c.Database.Driver != "sqlite" && c.Database.DSN == "" {
		errs = append(errs, fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", c.Server.Port))
	}
	if c.Auth.APIKeyHeader == "" {
		errs = append(errs, errors.New("auth.api_key_header must not be empty"))
	}

	durations := []struct{ key, value string }{
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"database.pool.conn_max_lifetime", c.Database.Pool.ConnMaxLifetime},
		{"auth.jwt_expiry", c.Auth.JWTExpiry},
	}
	for _, d := range durations {
		if _, err := parseDuration(d.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.key, err))
		}
	}

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if f := strings.ToLower(c.Logging.Format); f != "" && f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}
	if t := c.MCP.Transport; t != "" && t != "stdio" && t != "http" {
		errs = append(errs, fmt.Errorf("mcp.transport: unknown transport %q", t))
	}

	return errors.Join(errs...)
}

// parseDuration treats an empty string as zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// ShutdownTimeout returns server.shutdown_timeout, defaulting to 30s.
func (c *Config) ShutdownTimeout() time.Duration {
	d, _ := parseDuration(c.Server.ShutdownTimeout)
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

// JWTExpiry returns auth.jwt_expiry, defaulting to one hour.
func (c *Config) JWTExpiry() time.Duration {
	d, _ := parseDuration(c.Auth.JWTExpiry)
	if d <= 0 {
		return time.Hour
	}
	return d
}

// ConnMaxLifetime returns database.pool.conn_max_lifetime.
func (c *Config) ConnMaxLifetime() time.Duration {
	d, _ := parseDuration(c.Database.Pool.ConnMaxLifetime)
	return d
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Redacted returns a copy safe to print: secrets and DSN credentials are
// masked.
func (c *Config) Redacted() *Config {
	cp := *c
	cp.Server.CORS.Origins = slices.Clone(c.Server.CORS.Origins)
	if cp.Auth.JWTSecret != "" {
		cp.Auth.JWTSecret = "********"
	}
	if cp.Database.Driver != "sqlite" && cp.Database.DSN != "" {
		cp.Database.DSN = "********"
	}
	return &cp
}

// Marshal encodes the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// WriteDefault writes the default configuration to a YAML file. It refuses to
// overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	data, err := Default().Marshal()
	if err != nil {
		return err
	}
	header := []byte("# widgets configuration\n# Environment variables: WIDGETS_<SECTION>_<KEY>, e.g. WIDGETS_DATABASE_DSN\n")
	return os.WriteFile(path, append(header, data...), 0644)
}
