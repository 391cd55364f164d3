package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the relay configuration. Values come from defaults, then the
// optional YAML file, then environment variables.
type Config struct {
	Server struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	OBS struct {
		Host           string        `yaml:"host"`
		Password       string        `yaml:"password"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		ReconnectWait  time.Duration `yaml:"reconnect_wait"`
	} `yaml:"obs"`

	Transition struct {
		CloseDelay time.Duration `yaml:"close_delay"`
		OpenDelay  time.Duration `yaml:"open_delay"`
	} `yaml:"transition"`

	Cocktails []string `yaml:"cocktails"`

	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = 1337
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.OBS.Host = "localhost:4444"
	cfg.OBS.RequestTimeout = 5 * time.Second
	cfg.OBS.ReconnectWait = 5 * time.Second
	cfg.Transition.CloseDelay = 2100 * time.Millisecond
	cfg.Transition.OpenDelay = 1000 * time.Millisecond
	cfg.Cocktails = []string{"suikerwater", "espressoMartini", "rockstarMartini"}
	cfg.NATS.SubjectPrefix = "workshop"
	cfg.Log.Level = "info"
	cfg.Log.Pretty = true
	return cfg
}

// Load reads the YAML file at path (a missing file is not an error) and
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnvAsInt("RELAY_PORT", c.Server.Port)
	c.OBS.Host = getEnv("OBS_HOST", c.OBS.Host)
	c.OBS.Password = getEnv("OBS_PASSWORD", c.OBS.Password)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Pretty = getEnvAsBool("LOG_PRETTY", c.Log.Pretty)
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.OBS.Host == "" {
		return errors.New("obs host is required")
	}
	if c.Transition.CloseDelay < 0 || c.Transition.OpenDelay < 0 {
		return errors.New("transition delays must not be negative")
	}

	if len(c.Cocktails) == 0 {
		return errors.New("at least one cocktail is required")
	}
	seen := make(map[string]bool, len(c.Cocktails))
	for _, id := range c.Cocktails {
		if id == "" || id == "null" || id == "none" {
			return fmt.Errorf("invalid cocktail id %q", id)
		}
		if seen[id] {
			return fmt.Errorf("duplicate cocktail id %q", id)
		}
		seen[id] = true
	}
	return nil
}

// Addr returns the listen address of the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
