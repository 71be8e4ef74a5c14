package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inaiurai/gateway/internal/models"
	"github.com/inaiurai/gateway/internal/providers"
)

// PathEnv names the optional YAML config file.
const PathEnv = "CONFIG_PATH"

const (
	DefaultPort            = "8080"
	DefaultLogLevel        = "info"
	DefaultUpstreamTimeout = 60 * time.Second
	DefaultRetryDelay      = 5 * time.Second
	DefaultInitialCredits  = 50
	DefaultUsageWorkers    = 4
	DefaultGeminiModel     = "gemini-2.5-flash"
	DefaultOpenRouterModel = "google/gemini-2.0-flash:free"
	DefaultOpenAIModel     = "gpt-4o-mini"
)

// ProviderConfig is the environment-level default for one vendor.
type ProviderConfig struct {
	APIKey  string `yaml:"apiKey"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"baseURL"`
}

// Config represents configuration loaded from YAML and the environment.
type Config struct {
	Port            string        `yaml:"port"`
	DatabaseURL     string        `yaml:"databaseURL"`
	LogLevel        string        `yaml:"logLevel"`
	JWTSecret       string        `yaml:"jwtSecret"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
	RedisAddr       string        `yaml:"redisAddr"`
	RedisPassword   string        `yaml:"redisPassword"`
	UpstreamTimeout time.Duration `yaml:"upstreamTimeout"`
	RetryDelay      time.Duration `yaml:"retryDelay"`
	InitialCredits  int           `yaml:"initialCredits"`
	UsageWorkers    int           `yaml:"usageWorkers"`
	Providers       struct {
		Gemini     ProviderConfig `yaml:"gemini"`
		OpenRouter ProviderConfig `yaml:"openrouter"`
		OpenAI     ProviderConfig `yaml:"openai"`
	} `yaml:"providers"`
}

// Load reads path (or $CONFIG_PATH) when set, then applies environment
// overrides and defaults, and validates the result. A missing path is not
// an error; configuration may come from the environment alone.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"PORT":               &cfg.Port,
		"DATABASE_URL":       &cfg.DatabaseURL,
		"LOG_LEVEL":          &cfg.LogLevel,
		"JWT_SECRET":         &cfg.JWTSecret,
		"REDIS_ADDR":         &cfg.RedisAddr,
		"REDIS_PASSWORD":     &cfg.RedisPassword,
		"GEMINI_API_KEY":     &cfg.Providers.Gemini.APIKey,
		"GEMINI_MODEL":       &cfg.Providers.Gemini.Model,
		"OPENROUTER_API_KEY": &cfg.Providers.OpenRouter.APIKey,
		"OPENROUTER_MODEL":   &cfg.Providers.OpenRouter.Model,
		"OPENAI_API_KEY":     &cfg.Providers.OpenAI.APIKey,
		"OPENAI_MODEL":       &cfg.Providers.OpenAI.Model,
	}
	for key, dst := range str {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	for key, dst := range map[string]*time.Duration{
		"UPSTREAM_TIMEOUT": &cfg.UpstreamTimeout,
		"RETRY_DELAY":      &cfg.RetryDelay,
	} {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	for key, dst := range map[string]*int{
		"INITIAL_CREDITS": &cfg.InitialCredits,
		"USAGE_WORKERS":   &cfg.UsageWorkers,
	} {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.UpstreamTimeout == 0 {
		cfg.UpstreamTimeout = DefaultUpstreamTimeout
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.InitialCredits == 0 {
		cfg.InitialCredits = DefaultInitialCredits
	}
	if cfg.UsageWorkers == 0 {
		cfg.UsageWorkers = DefaultUsageWorkers
	}
	if cfg.Providers.Gemini.Model == "" {
		cfg.Providers.Gemini.Model = DefaultGeminiModel
	}
	if cfg.Providers.OpenRouter.Model == "" {
		cfg.Providers.OpenRouter.Model = DefaultOpenRouterModel
	}
	if cfg.Providers.OpenAI.Model == "" {
		cfg.Providers.OpenAI.Model = DefaultOpenAIModel
	}
}

func validate(cfg Config) error {
	var errs []error
	if cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("databaseURL is required"))
	}
	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("jwtSecret is required"))
	}
	if cfg.UpstreamTimeout < 0 || cfg.RetryDelay < 0 {
		errs = append(errs, errors.New("durations must be positive"))
	}
	if cfg.InitialCredits < 0 {
		errs = append(errs, errors.New("initialCredits must be >= 0"))
	}
	if cfg.UsageWorkers < 0 {
		errs = append(errs, errors.New("usageWorkers must be >= 0"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ProviderDefaults returns the environment fallbacks in priority order.
// Vendors without a key are included; the resolver skips them.
func (c Config) ProviderDefaults() []models.ProviderChoice {
	return []models.ProviderChoice{
		{Provider: models.ProviderGemini, APIKey: c.Providers.Gemini.APIKey, ModelName: c.Providers.Gemini.Model},
		{Provider: models.ProviderOpenRouter, APIKey: c.Providers.OpenRouter.APIKey, ModelName: c.Providers.OpenRouter.Model},
		{Provider: models.ProviderOpenAI, APIKey: c.Providers.OpenAI.APIKey, ModelName: c.Providers.OpenAI.Model},
	}
}

func (c Config) Endpoints() providers.Endpoints {
	return providers.Endpoints{
		GeminiBaseURL:     c.Providers.Gemini.BaseURL,
		OpenAIBaseURL:     c.Providers.OpenAI.BaseURL,
		OpenRouterBaseURL: c.Providers.OpenRouter.BaseURL,
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
