package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// DevJWTSecret signs tokens when no secret is configured outside production.
	DevJWTSecret = "dev_secret_change_me"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	App struct {
		Env string
	}
	Server struct {
		Addr         string
		ReadTimeout  time.Duration
		WriteTimeout time.Duration
	}
	Database struct {
		Path string
	}
	Auth struct {
		JWTSecret  string
		TokenTTL   time.Duration
		BcryptCost int
	}
	Log struct {
		Level  string
		Format string
	}
	Backup struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
		Interval  time.Duration
		Keep      int
	}
	AWS struct {
		Profile string
	}

	// UsingDevSecret is set when the development signing secret was filled in.
	UsingDevSecret bool `mapstructure:"-"`
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	// real environment variables win over .env entries
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("NOTEKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.env", EnvDevelopment)
	v.SetDefault("server.addr", "0.0.0.0:5000")
	v.SetDefault("server.readtimeout", 15*time.Second)
	v.SetDefault("server.writetimeout", 15*time.Second)
	v.SetDefault("database.path", "data/notes.db")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.tokenttl", 7*24*time.Hour)
	v.SetDefault("auth.bcryptcost", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("backup.bucket", "")
	v.SetDefault("backup.keyprefix", "notekeeper-backups")
	v.SetDefault("backup.region", "us-east-1")
	v.SetDefault("backup.endpoint", "")
	v.SetDefault("backup.interval", 24*time.Hour)
	v.SetDefault("backup.keep", 7)
	v.SetDefault("aws.profile", "")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate normalizes the configuration and rejects settings that are unsafe
// for the selected environment. A production deployment must bring its own
// signing secret.
func (c *Config) Validate() error {
	c.App.Env = strings.ToLower(strings.TrimSpace(c.App.Env))
	if c.App.Env == "" {
		c.App.Env = EnvDevelopment
	}
	if c.App.Env != EnvDevelopment && c.App.Env != EnvProduction {
		return fmt.Errorf("unknown app env %q", c.App.Env)
	}

	secret := strings.TrimSpace(c.Auth.JWTSecret)
	switch {
	case c.App.Env == EnvProduction && secret == "":
		return fmt.Errorf("auth jwt secret is required in production")
	case c.App.Env == EnvProduction && secret == DevJWTSecret:
		return fmt.Errorf("auth jwt secret must not be the development default in production")
	case secret == "":
		c.Auth.JWTSecret = DevJWTSecret
		c.UsingDevSecret = true
	}

	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth token ttl must be positive")
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Backup.Keep < 1 {
		c.Backup.Keep = 1
	}
	return nil
}

// IsProduction reports whether the production posture is active.
func (c Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}
