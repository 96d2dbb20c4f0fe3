package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Mode  string `yaml:"mode"`
		Level string `yaml:"level"`
	} `yaml:"log"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	// SQLite is used when no MySQL DSN is configured.
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	Queue struct {
		// "asynq" dispatches generation runs through redis, "local" runs them in-process.
		Mode        string `yaml:"mode"`
		Concurrency int    `yaml:"concurrency"`
	} `yaml:"queue"`
	Control struct {
		// "redis" or "memory"
		Backend string `yaml:"backend"`
		Prefix  string `yaml:"prefix"`
	} `yaml:"control"`
	MinIO struct {
		Endpoint      string `yaml:"endpoint"`
		AccessKey     string `yaml:"access_key"`
		SecretKey     string `yaml:"secret_key"`
		Bucket        string `yaml:"bucket"`
		UseSSL        bool   `yaml:"use_ssl"`
		Domain        string `yaml:"domain"`
		MirrorOutputs bool   `yaml:"mirror_outputs"`
	} `yaml:"minio"`
	Pipeline  Pipeline         `yaml:"pipeline"`
	Render    RenderConfig     `yaml:"render"`
	Providers []ProviderConfig `yaml:"providers"`
}

// Pipeline holds polling cadence and per-capability wait budgets.
type Pipeline struct {
	PollInterval     time.Duration `yaml:"poll_interval"`
	VideoTimeout     time.Duration `yaml:"video_timeout"`
	VoiceoverTimeout time.Duration `yaml:"voiceover_timeout"`
	ImageTimeout     time.Duration `yaml:"image_timeout"`
	RenderTimeout    time.Duration `yaml:"render_timeout"`
}

type RenderConfig struct {
	Backend   string `yaml:"backend"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	FPS       int    `yaml:"fps"`
}

// ProviderConfig seeds a ProviderEntry and builds its adapter. Priority and
// enablement are only seeded once; afterwards the store is authoritative.
type ProviderConfig struct {
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind"`
	Capability string `yaml:"capability"`
	Priority   int    `yaml:"priority"`
	Enabled    bool   `yaml:"enabled"`
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Model      string `yaml:"model"`
	Voice      string `yaml:"voice"`
}

// APIKey resolves the provider secret from the environment.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

func (r RenderConfig) APIKey() string {
	if r.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(r.APIKeyEnv)
}

var AppConfig *Config

func InitConfig() {
	// .env is optional, secrets may come from the real environment
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env: %v", err)
	}
	path := os.Getenv("VIDEOFACTORY_CONFIG")
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	AppConfig = cfg
}

// Load reads and decodes a YAML config file and fills in defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	cfg := &Config{}
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "videofactory.db"
	}
	if c.Queue.Mode == "" {
		c.Queue.Mode = "asynq"
	}
	if c.Queue.Concurrency <= 0 {
		c.Queue.Concurrency = 5
	}
	if c.Control.Backend == "" {
		c.Control.Backend = "redis"
	}
	if c.Control.Prefix == "" {
		c.Control.Prefix = "videofactory"
	}
	c.Pipeline = c.Pipeline.WithDefaults()
	if c.Render.Backend == "" {
		c.Render.Backend = "mock"
	}
	if c.Render.FPS == 0 {
		c.Render.FPS = 25
	}
}

// WithDefaults returns a copy with zero durations replaced by the stock budgets.
func (p Pipeline) WithDefaults() Pipeline {
	if p.PollInterval <= 0 {
		p.PollInterval = 5 * time.Second
	}
	if p.VideoTimeout <= 0 {
		p.VideoTimeout = 300 * time.Second
	}
	if p.VoiceoverTimeout <= 0 {
		p.VoiceoverTimeout = 120 * time.Second
	}
	if p.ImageTimeout <= 0 {
		p.ImageTimeout = 120 * time.Second
	}
	if p.RenderTimeout <= 0 {
		p.RenderTimeout = 600 * time.Second
	}
	return p
}
