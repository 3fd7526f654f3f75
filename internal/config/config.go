package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/carmarket/server/internal/auth"
	"github.com/carmarket/server/internal/model"
	"github.com/joho/godotenv"
)

// CodeConfig overrides the code policy of one purpose. Zero values keep the built-in policy.
type CodeConfig struct {
	Length      int           `env:"LENGTH"`
	TTL         time.Duration `env:"TTL"`
	Charset     string        `env:"CHARSET"`
	MaxAttempts int           `env:"MAX_ATTEMPTS"`
}

// Policy converts the overrides into an auth.CodePolicy.
func (c CodeConfig) Policy() auth.CodePolicy {
	return auth.CodePolicy{Length: c.Length, TTL: c.TTL, Charset: c.Charset, MaxAttempts: c.MaxAttempts}
}

// Config holds the application configuration
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	Port        string `env:"PORT" envDefault:"8080"`
	JWTSecret   string `env:"JWT_SECRET,required,notEmpty"`
	CodeSalt    string `env:"CODE_SALT,required,notEmpty"`
	DevMode     bool   `env:"DEV_MODE"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"24h"`
	PasswordHasher string        `env:"PASSWORD_HASHER" envDefault:"bcrypt"`
	BcryptCost     int           `env:"BCRYPT_COST" envDefault:"10"`

	// GrantsFile replaces the built-in grant table when set.
	GrantsFile string `env:"GRANTS_FILE"`

	EmailCode CodeConfig `envPrefix:"EMAIL_CODE_"`
	PhoneCode CodeConfig `envPrefix:"PHONE_CODE_"`
	ResetCode CodeConfig `envPrefix:"RESET_CODE_"`

	CodeRequestsPerWindow int           `env:"CODE_REQUESTS_PER_WINDOW" envDefault:"3"`
	CodeAttemptsPerWindow int           `env:"CODE_ATTEMPTS_PER_WINDOW" envDefault:"10"`
	CodeRequestWindow     time.Duration `env:"CODE_REQUEST_WINDOW" envDefault:"10m"`
}

// CodePolicies returns the configured policy overrides keyed by purpose.
func (c *Config) CodePolicies() map[model.Purpose]auth.CodePolicy {
	return map[model.Purpose]auth.CodePolicy{
		model.PurposeEmailVerify:   c.EmailCode.Policy(),
		model.PurposePhoneVerify:   c.PhoneCode.Policy(),
		model.PurposePasswordReset: c.ResetCode.Policy(),
	}
}

// Load reads .env files when present and then the process environment; env vars win.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env", "server/.env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
	return Parse()
}

// Parse reads configuration from environment variables only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.PasswordHasher {
	case "bcrypt", "argon2id":
	default:
		return fmt.Errorf("PASSWORD_HASHER must be bcrypt or argon2id, got %q", c.PasswordHasher)
	}
	if c.CodeRequestsPerWindow <= 0 {
		return fmt.Errorf("CODE_REQUESTS_PER_WINDOW must be positive")
	}
	if c.CodeAttemptsPerWindow <= 0 {
		return fmt.Errorf("CODE_ATTEMPTS_PER_WINDOW must be positive")
	}
	if c.CodeRequestWindow <= 0 {
		return fmt.Errorf("CODE_REQUEST_WINDOW must be positive")
	}
	return nil
}
