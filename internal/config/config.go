// Package config handles storefront configuration using Viper.
//
// Values come from, in increasing priority: defaults, the YAML config file,
// a .env file in the working directory, and STOREFRONT_* environment
// variables (dots become underscores, so backend.base_url is
// STOREFRONT_BACKEND_BASE_URL).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/felixgeelhaar/storefront/internal/auth"
	sferrors "github.com/felixgeelhaar/storefront/internal/errors"
	"github.com/felixgeelhaar/storefront/internal/storage"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STOREFRONT"

// Config holds the application configuration.
type Config struct {
	Backend BackendConfig `mapstructure:"backend" yaml:"backend"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	OAuth   OAuthConfig   `mapstructure:"oauth" yaml:"oauth"`
	Guard   GuardConfig   `mapstructure:"guard" yaml:"guard"`
	Events  EventsConfig  `mapstructure:"events" yaml:"events"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-" yaml:"-"`
}

// BackendConfig locates the auth API.
type BackendConfig struct {
	BaseURL  string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RetryMax int           `mapstructure:"retry_max" yaml:"retry_max"`
}

// StorageConfig selects where sessions are persisted.
type StorageConfig struct {
	Driver    string `mapstructure:"driver" yaml:"driver"`
	Path      string `mapstructure:"path" yaml:"path"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
	Secret    string `mapstructure:"secret" yaml:"secret,omitempty"`
}

// RedisConfig configures the redis storage driver.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password,omitempty"`
	DB       int           `mapstructure:"db" yaml:"db"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// ServerConfig configures `storefront serve`.
type ServerConfig struct {
	Address         string        `mapstructure:"address" yaml:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	SecureCookies   bool          `mapstructure:"secure_cookies" yaml:"secure_cookies"`
	VisitorTTL      time.Duration `mapstructure:"visitor_ttl" yaml:"visitor_ttl"`
	MaxVisitors     int           `mapstructure:"max_visitors" yaml:"max_visitors"`
	LoginRate       float64       `mapstructure:"login_rate" yaml:"login_rate"`
	LoginBurst      int           `mapstructure:"login_burst" yaml:"login_burst"`

	AddressLoginRate  float64 `mapstructure:"address_login_rate" yaml:"address_login_rate"`
	AddressLoginBurst int     `mapstructure:"address_login_burst" yaml:"address_login_burst"`
}

// OAuthConfig configures the redirect sign-in flow.
type OAuthConfig struct {
	RedirectURI string `mapstructure:"redirect_uri" yaml:"redirect_uri"`
	DefaultRole string `mapstructure:"default_role" yaml:"default_role"`
}

// GuardConfig configures route guard redirects.
type GuardConfig struct {
	SignInPath   string `mapstructure:"sign_in_path" yaml:"sign_in_path"`
	FallbackPath string `mapstructure:"fallback_path" yaml:"fallback_path"`
}

// EventsConfig configures session event publishing. An empty URL disables it.
type EventsConfig struct {
	AMQPURL  string `mapstructure:"amqp_url" yaml:"amqp_url,omitempty"`
	Exchange string `mapstructure:"exchange" yaml:"exchange"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "storefront", "config.yaml")
}

// Load reads configuration from file and environment. An empty configPath
// looks for the default file and tolerates its absence; an explicit path
// must exist.
func Load(configPath string) (*Config, error) {
	// .env is best-effort: missing is fine, values never override the real env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, sferrors.NewConfigParseError(".env", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else if def := DefaultPath(); def != "" {
		v.AddConfigPath(filepath.Dir(def))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound) && configPath == "":
		case errors.Is(err, fs.ErrNotExist):
			return nil, sferrors.New(sferrors.ErrCodeConfigNotFound, fmt.Sprintf("config file not found: %s", configPath)).
				WithSuggestion("Check the --config path or omit it to use defaults")
		default:
			return nil, sferrors.NewConfigParseError(configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, sferrors.NewConfigParseError(v.ConfigFileUsed(), err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.Storage.Path = expandHome(cfg.Storage.Path)

	return &cfg, nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "http://localhost:8080/api/")
	v.SetDefault("backend.timeout", 15*time.Second)
	v.SetDefault("backend.retry_max", 2)

	v.SetDefault("storage.driver", storage.DriverFile)
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.namespace", "storefront.auth")
	v.SetDefault("storage.secret", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 30*24*time.Hour)

	v.SetDefault("server.address", ":3000")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.secure_cookies", false)
	v.SetDefault("server.visitor_ttl", 30*time.Minute)
	v.SetDefault("server.max_visitors", 10000)
	v.SetDefault("server.login_rate", 0.2)
	v.SetDefault("server.login_burst", 5)
	v.SetDefault("server.address_login_rate", 1.0)
	v.SetDefault("server.address_login_burst", 20)

	v.SetDefault("oauth.redirect_uri", "http://localhost:3000/auth/callback")
	v.SetDefault("oauth.default_role", string(auth.RoleCustomer))

	v.SetDefault("guard.sign_in_path", "/sign-in")
	v.SetDefault("guard.fallback_path", "/")

	v.SetDefault("events.amqp_url", "")
	v.SetDefault("events.exchange", "storefront.sessions")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// Validate checks required values and their formats.
func (c *Config) Validate() error {
	var problems []string

	if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("backend.base_url %q must be an absolute URL", c.Backend.BaseURL))
	}
	if c.Backend.RetryMax < 0 {
		problems = append(problems, "backend.retry_max must not be negative")
	}

	switch strings.ToLower(c.Storage.Driver) {
	case storage.DriverFile, storage.DriverMemory:
	case storage.DriverRedis:
		if c.Redis.Addr == "" {
			problems = append(problems, "redis.addr is required for the redis storage driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("storage.driver %q must be one of file, memory, redis", c.Storage.Driver))
	}
	if c.Storage.Namespace == "" {
		problems = append(problems, "storage.namespace is required")
	}

	if c.OAuth.DefaultRole != "" {
		if _, err := auth.ParseRole(c.OAuth.DefaultRole); err != nil {
			problems = append(problems, fmt.Sprintf("oauth.default_role: %v", err))
		}
	}
	for key, path := range map[string]string{"guard.sign_in_path": c.Guard.SignInPath, "guard.fallback_path": c.Guard.FallbackPath} {
		if !strings.HasPrefix(path, "/") {
			problems = append(problems, fmt.Sprintf("%s %q must start with /", key, path))
		}
	}
	if c.Server.MaxVisitors <= 0 {
		problems = append(problems, "server.max_visitors must be positive")
	}

	if len(problems) > 0 {
		return sferrors.NewConfigInvalidError(strings.Join(problems, "; "))
	}
	return nil
}

// StorageOptions converts the storage sections for storage.Open.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Driver: c.Storage.Driver,
		Path:   c.Storage.Path,
		Secret: c.Storage.Secret,
		Redis: storage.RedisOptions{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			TTL:      c.Redis.TTL,
		},
	}
}

// DefaultRole returns the configured OAuth role, or customer.
func (c *Config) DefaultRole() auth.Role {
	role, err := auth.ParseRole(c.OAuth.DefaultRole)
	if err != nil {
		return auth.RoleCustomer
	}
	return role
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.Storage.Secret = mask(c.Storage.Secret)
	c.Redis.Password = mask(c.Redis.Password)
	if u, err := url.Parse(c.Events.AMQPURL); err == nil && u.User != nil {
		u.User = url.User(u.User.Username())
		c.Events.AMQPURL = u.String()
	}
	return c
}
