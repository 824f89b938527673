package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP struct {
		Port int `yaml:"port"`
	} `yaml:"http"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	API struct {
		BaseURL         string  `yaml:"base_url"`
		APIKey          string  `yaml:"api_key"`
		CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
		TimeoutSeconds  int     `yaml:"timeout_seconds"`
		RatePerSecond   float64 `yaml:"rate_per_second"`
		RateBurst       int     `yaml:"rate_burst"`
	} `yaml:"api"`

	Cache struct {
		Size       int `yaml:"size"`
		TTLSeconds int `yaml:"ttl_seconds"`
	} `yaml:"cache"`

	Sessions struct {
		IdleTimeoutMinutes int `yaml:"idle_timeout_minutes"`
	} `yaml:"sessions"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	FacilityConfigPath string `yaml:"facility_config_path"`
}

// Load reads the YAML config at path. A .env file next to the working
// directory is loaded first so ${ENV_VAR} placeholders can refer to it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.FacilityConfigPath == "" {
		cfg.FacilityConfigPath = "configs/facility.yaml"
	}

	return &cfg, nil
}

// LoadFacility loads the facility settings referenced by the config.
func (c *Config) LoadFacility() (*FacilityConfig, error) {
	return LoadFacilityConfig(c.FacilityConfigPath)
}

func (c *Config) HTTPPort() int {
	if c.HTTP.Port <= 0 {
		return 8080
	}
	return c.HTTP.Port
}

func (c *Config) APICacheTTL() time.Duration {
	if c.API.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.API.CacheTTLSeconds) * time.Second
}

func (c *Config) APITimeout() time.Duration {
	if c.API.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// APIRate returns the upstream request rate and burst. Zero rate means
// unlimited.
func (c *Config) APIRate() (perSecond float64, burst int) {
	burst = c.API.RateBurst
	if burst <= 0 {
		burst = 10
	}
	return c.API.RatePerSecond, burst
}

func (c *Config) CacheSize() int {
	if c.Cache.Size <= 0 {
		return 256
	}
	return c.Cache.Size
}

func (c *Config) CacheTTL() time.Duration {
	if c.Cache.TTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

func (c *Config) SessionIdleTimeout() time.Duration {
	if c.Sessions.IdleTimeoutMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Sessions.IdleTimeoutMinutes) * time.Minute
}

func (c *Config) HealthCheckPort() int {
	if c.Monitoring.HealthCheckPort <= 0 {
		return 8090
	}
	return c.Monitoring.HealthCheckPort
}

func (c *Config) PrometheusPort() int {
	if c.Monitoring.PrometheusPort <= 0 {
		return 9090
	}
	return c.Monitoring.PrometheusPort
}
