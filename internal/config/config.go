package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level rencie.yaml configuration. Secrets are
// never stored in the file; fields ending in Env name the environment
// variable that carries the value.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Mail     MailConfig     `yaml:"mail"`
	LLM      LLMConfig      `yaml:"llm"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig selects the zap profile.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// PostgresConfig locates the account database.
type PostgresConfig struct {
	DSNEnv string `yaml:"dsn_env"`
}

// RedisConfig locates the checkpoint/OTP store.
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
}

// AuthConfig controls tokens and account provisioning defaults.
type AuthConfig struct {
	JWTSecretEnv     string `yaml:"jwt_secret_env"`
	AccountSecretEnv string `yaml:"account_secret_env"`
	TokenTTLHours    int    `yaml:"token_ttl_hours"`
	OpeningBalance   int64  `yaml:"opening_balance"`
	Currency         string `yaml:"currency"`
}

// MailConfig controls outbound email.
type MailConfig struct {
	From      string `yaml:"from"`
	Endpoint  string `yaml:"endpoint"`
	APIKeyEnv string `yaml:"api_key_env"`
	QueueSize int    `yaml:"queue_size"`
	Workers   int    `yaml:"workers"`
}

// LLMConfig points at the OpenAI-compatible chat completion backend.
type LLMConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// Load reads a rencie.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info"},
		Postgres: PostgresConfig{
			DSNEnv: "DATABASE_URL",
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PasswordEnv: "REDIS_PASSWORD",
		},
		Auth: AuthConfig{
			JWTSecretEnv:     "JWT_SECRET",
			AccountSecretEnv: "ACCOUNT_SECRET",
			TokenTTLHours:    24,
			OpeningBalance:   50_000_000,
			Currency:         "NGN",
		},
		Mail: MailConfig{
			From:      "onboarding@rencie.dev",
			APIKeyEnv: "RESEND_API_KEY",
			QueueSize: 256,
			Workers:   4,
		},
		LLM: LLMConfig{
			Model:     "llama-3.3-70b-versatile",
			APIKeyEnv: "GROQ_API_KEY",
		},
	}
}

// Secret resolves an env-named secret, returning an error that names the
// variable when it is unset.
func Secret(envName string) (string, error) {
	if envName == "" {
		return "", fmt.Errorf("secret environment variable name is empty")
	}
	v := os.Getenv(envName)
	if v == "" {
		return "", fmt.Errorf("environment variable %s is not set", envName)
	}
	return v, nil
}
