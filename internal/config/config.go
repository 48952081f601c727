package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	PublicBaseURL  string        `yaml:"public_base_url"` // used to build feed and media urls
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`     // rendered feed cache
	JobTTL   time.Duration `yaml:"job_ttl"` // job status read cache
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
}

type AIConfig struct {
	Provider        string `yaml:"provider"` // openai | gemini | noop
	OpenAIKey       string `yaml:"openai_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	AzureEndpoint   string `yaml:"azure_endpoint"`
	AzureAPIVersion string `yaml:"azure_api_version"`
	GeminiKey       string `yaml:"gemini_key"`
	GeminiURL       string `yaml:"gemini_url"`
	DefaultModel    string `yaml:"default_model"`
	GeminiModel     string `yaml:"gemini_model"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
	PromptTokens    int    `yaml:"prompt_tokens"`
	ConcurrentLimit int    `yaml:"concurrent_limit"` // max concurrent AI calls
}

type SpeechConfig struct {
	Provider string        `yaml:"provider"` // azure | noop
	Key      string        `yaml:"key"`
	Region   string        `yaml:"region"`
	Endpoint string        `yaml:"endpoint"`
	Voice    string        `yaml:"voice"`
	Language string        `yaml:"language"`
	Pitch    string        `yaml:"pitch"`
	Rate     string        `yaml:"rate"`
	Timeout  time.Duration `yaml:"timeout"`
	MaxChunk int           `yaml:"max_chunk"`
}

type StorageConfig struct {
	Provider        string        `yaml:"provider"` // gcs | local
	Bucket          string        `yaml:"bucket"`
	CredentialsFile string        `yaml:"credentials_file"`
	PublicBaseURL   string        `yaml:"public_base_url"`
	PublicACL       bool          `yaml:"public_acl"`
	LocalDir        string        `yaml:"local_dir"`
	Attempts        int           `yaml:"attempts"`
	BackoffBase     time.Duration `yaml:"backoff_base"`
}

type FeedConfig struct {
	DefaultImage string        `yaml:"default_image"`
	RateLimit    int           `yaml:"rate_limit"` // submissions per owner per window
	RateWindow   time.Duration `yaml:"rate_window"`
	ListLimit    int           `yaml:"list_limit"`
}

type WorkerConfig struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	StaleAfter   time.Duration `yaml:"stale_after"`
}

type NotifyConfig struct {
	TelegramToken string  `yaml:"telegram_token"`
	ChatIDs       []int64 `yaml:"chat_ids"`
	OnlyFailures  bool    `yaml:"only_failures"`
}

type PodcastsConfig struct {
	Feeds    []string      `yaml:"feeds"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	AI       AIConfig       `yaml:"ai"`
	Speech   SpeechConfig   `yaml:"speech"`
	Storage  StorageConfig  `yaml:"storage"`
	Feed     FeedConfig     `yaml:"feed"`
	Worker   WorkerConfig   `yaml:"worker"`
	Notify   NotifyConfig   `yaml:"notify"`
	Podcasts PodcastsConfig `yaml:"podcasts"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the -config and -dev flags and loads the file.
func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()
	return Load(configPath, dev)
}

// Load parses the YAML file at path. ${VAR} references are expanded from the
// environment before parsing so secrets can stay out of the file.
func Load(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.PublicBaseURL == "" {
		cfg.Server.PublicBaseURL = "http://localhost" + cfg.Server.Addr
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL, 5*time.Minute)
	cfg.Redis.JobTTL = normalizeTTL(cfg.Redis.JobTTL, 30*time.Second)

	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
		if cfg.Runtime.Dev && cfg.AI.OpenAIKey == "" && cfg.AI.GeminiKey == "" {
			cfg.AI.Provider = "noop"
		}
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.GeminiModel == "" {
		cfg.AI.GeminiModel = "gemini-2.0-flash"
	}
	if cfg.AI.PromptTokens <= 0 {
		cfg.AI.PromptTokens = 3000
	}
	if cfg.AI.MaxOutputTokens <= 0 {
		cfg.AI.MaxOutputTokens = 512
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 4
	}

	if cfg.Speech.Provider == "" {
		cfg.Speech.Provider = "azure"
		if cfg.Runtime.Dev && cfg.Speech.Key == "" {
			cfg.Speech.Provider = "noop"
		}
	}
	if cfg.Speech.Timeout <= 0 {
		cfg.Speech.Timeout = 5 * time.Minute
	}
	if cfg.Speech.MaxChunk <= 0 {
		cfg.Speech.MaxChunk = 5000
	}

	if cfg.Storage.Provider == "" {
		cfg.Storage.Provider = "gcs"
		if cfg.Runtime.Dev && cfg.Storage.Bucket == "" {
			cfg.Storage.Provider = "local"
		}
	}
	if cfg.Storage.LocalDir == "" {
		cfg.Storage.LocalDir = "_output"
	}
	if cfg.Storage.Attempts <= 0 {
		cfg.Storage.Attempts = 3
	}
	if cfg.Storage.BackoffBase <= 0 {
		cfg.Storage.BackoffBase = 2 * time.Second
	}

	if cfg.Feed.RateLimit <= 0 {
		cfg.Feed.RateLimit = 20
	}
	if cfg.Feed.RateWindow <= 0 {
		cfg.Feed.RateWindow = time.Hour
	}
	if cfg.Feed.ListLimit <= 0 {
		cfg.Feed.ListLimit = 50
	}

	if cfg.Worker.Workers <= 0 {
		cfg.Worker.Workers = 4
	}
	if cfg.Worker.PollInterval <= 0 {
		cfg.Worker.PollInterval = 2 * time.Second
	}
	if cfg.Worker.StaleAfter <= 0 {
		cfg.Worker.StaleAfter = 30 * time.Minute
	}
	cfg.Podcasts.CacheTTL = normalizeTTL(cfg.Podcasts.CacheTTL, 10*time.Minute)
}

// validate is minimal: dev mode runs without any external service.
func (cfg *Config) validate() error {
	if cfg.Runtime.Dev {
		return nil
	}
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if cfg.Speech.Provider == "azure" && (cfg.Speech.Key == "" || (cfg.Speech.Region == "" && cfg.Speech.Endpoint == "")) {
		return errors.New("speech.key and speech.region are required")
	}
	if cfg.Storage.Provider == "gcs" && cfg.Storage.Bucket == "" {
		return errors.New("storage.bucket is required")
	}
	switch cfg.AI.Provider {
	case "openai":
		if cfg.AI.OpenAIKey == "" {
			return errors.New("ai.openai_key is required")
		}
	case "gemini":
		if cfg.AI.GeminiKey == "" {
			return errors.New("ai.gemini_key is required")
		}
	}
	return nil
}

func normalizeTTL(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
