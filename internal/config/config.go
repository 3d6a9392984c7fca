// Package config loads process configuration from environment variables.
//
// Everything the server needs is read once, in Load, and passed down as a
// plain struct. No other package calls os.Getenv.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// minSecretLength mirrors the check in auth.NewTokenService so a bad secret
// fails at config time with an env-var-shaped message.
const minSecretLength = 16

type Config struct {
	Port int

	StoreDriver   string
	DBPath        string
	MongoURI      string
	MongoDatabase string

	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int

	UploadDir      string
	MaxUploadBytes int64

	CORSOrigins []string

	GitHub GitHubConfig

	LogLevel  slog.Level
	LogFormat string
}

// GitHubConfig is optional. When ClientID is empty, GitHub sign-in routes are not registered.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// Enabled reports whether GitHub sign-in is configured.
func (g GitHubConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// Load reads the environment and validates it.
//
// JWT_SECRET has no default: a server without a configured signing key
// refuses to start.
func Load() (Config, error) {
	var env envReader
	cfg := Config{
		Port:           env.integer("PORT", 4444),
		StoreDriver:    strings.ToLower(envString("STORE_DRIVER", DriverSQLite)),
		DBPath:         envString("DB_PATH", "data/blog.db"),
		MongoURI:       os.Getenv("MONGODB_URI"),
		MongoDatabase:  envString("MONGODB_DATABASE", "blog"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		TokenTTL:       env.duration("TOKEN_TTL", 30*24*time.Hour),
		BcryptCost:     env.integer("BCRYPT_COST", 12),
		UploadDir:      envString("UPLOAD_DIR", "uploads"),
		MaxUploadBytes: int64(env.integer("MAX_UPLOAD_BYTES", 10<<20)),
		CORSOrigins:    envList("CORS_ORIGINS", []string{"*"}),
		GitHub: GitHubConfig{
			ClientID:     os.Getenv("GITHUB_CLIENT_ID"),
			ClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
			CallbackURL:  os.Getenv("GITHUB_CALLBACK_URL"),
		},
		LogLevel:  env.level("LOG_LEVEL", slog.LevelInfo),
		LogFormat: strings.ToLower(envString("LOG_FORMAT", "text")),
	}

	if cfg.GitHub.CallbackURL == "" {
		cfg.GitHub.CallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	if err := cfg.validate(env.errs); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate checks the loaded values. parseErrs are the variables that could
// not be parsed at all; they are reported alongside the range checks.
func (c Config) validate(parseErrs []error) error {
	errs := append([]error(nil), parseErrs...)

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if len(c.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLength))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	switch c.StoreDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH must not be empty"))
		}
	case DriverMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required when STORE_DRIVER=mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not one of sqlite, mongo", c.StoreDriver))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST %d must be between 4 and 31", c.BcryptCost))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envReader parses typed environment variables and remembers every value
// that did not parse, so Load can report them all at once.
type envReader struct {
	errs []error
}

func (e *envReader) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s %q is not an integer", key, v))
		return def
	}
	return n
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s %q is not a duration such as 720h or 30m", key, v))
		return def
	}
	return d
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func (e *envReader) level(key string, def slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s %q is not one of debug, info, warn, error", key, v))
		return def
	}
	return lvl
}
