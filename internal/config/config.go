// config - источник загрузки конфигурации replay-клиента.
//
// Источники (по убыванию приоритета):
//  1. явный путь --config;
//  2. CONFIG_PATH;
//  3. ./local.yaml;
//  4. только ENV (cleanenv).
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env         string            `yaml:"env" env:"ENV" env-default:"local"`
	API         APIConfig         `yaml:"api"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Replays     ReplaysConfig     `yaml:"replays"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// APIConfig — параметры подключения к replay-API.
type APIConfig struct {
	BaseURL   string        `yaml:"base_url"   env:"API_BASE_URL"   env-default:"http://localhost:8000"`
	Timeout   time.Duration `yaml:"timeout"    env:"API_TIMEOUT"    env-default:"30s"`
	UserAgent string        `yaml:"user_agent" env:"API_USER_AGENT" env-default:"replay-client"`
}

// CredentialsConfig — путь к файлу с персистентными учётными данными.
type CredentialsConfig struct {
	Path string `yaml:"path" env:"CREDENTIALS_PATH" env-default:"credentials.json"`
}

// ReplaysConfig — дефолты стора реплеев.
type ReplaysConfig struct {
	PageSize int `yaml:"page_size" env:"REPLAYS_PAGE_SIZE" env-default:"20"`
}

// MetricsConfig — опциональный HTTP для Prometheus (пустой host выключает).
type MetricsConfig struct {
	Host string `yaml:"host" env:"METRICS_HOST" env-default:""`
	Port string `yaml:"port" env:"METRICS_PORT" env-default:"9090"`
}

func (m MetricsConfig) Enabled() bool { return m.Host != "" }

func (m MetricsConfig) Addr() string { return net.JoinHostPort(m.Host, m.Port) }

// MustLoad — паника при ошибке загрузки.
func MustLoad(path string) *Config {
	cfg, err := Load(path)

	if err != nil {
		panic(err)
	}

	return cfg
}

func Load(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 1) --config
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml
	if _, err := os.Stat("local.yaml"); err == nil {
		if err := cleanenv.ReadConfig("local.yaml", &cfg); err != nil {
			return nil, fmt.Errorf("failed to read local.yaml: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 4) только ENV
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}
	return &cfg, nil
}
