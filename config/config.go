package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Addr         string        `yaml:"addr" validate:"required"`
	ReadTimeout  time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gt=0"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" validate:"gt=0"`
}

type CatalogConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// ScoringConfig holds the knobs that differed between historical copies of
// the matcher. Defaults reproduce the lenient variant; the strict variant is
// InclusionFloor 0.5, BaseConfidence 0.5, DefaultConfidence 0.5.
type ScoringConfig struct {
	BaseConfidence    float64       `yaml:"base_confidence" validate:"gte=0,lte=1"`
	DefaultConfidence float64       `yaml:"default_confidence" validate:"gte=0,lte=1"`
	InclusionFloor    float64       `yaml:"inclusion_floor" validate:"gte=0,lte=1"`
	MatchThreshold    float64       `yaml:"match_threshold" validate:"gt=0,lte=1"`
	Limit             int           `yaml:"limit" validate:"gte=0"`
	RequiredFields    []string      `yaml:"required_fields" validate:"min=1,dive,required"`
	CacheTTL          time.Duration `yaml:"cache_ttl" validate:"gte=0"`
}

type ChatConfig struct {
	RequiredFields []string `yaml:"required_fields" validate:"min=1,dive,required"`
	HistoryLimit   int      `yaml:"history_limit" validate:"gte=2"`
}

type LLMConfig struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url" validate:"required,url"`
	Model      string        `yaml:"model" validate:"required"`
	MaxTokens  int           `yaml:"max_tokens" validate:"gt=0"`
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxRetries int           `yaml:"max_retries" validate:"gte=0,lte=10"`
	RetryDelay time.Duration `yaml:"retry_delay" validate:"gte=0"`
}

type InsightsConfig struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url" validate:"required,url"`
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
	CacheTTL   time.Duration `yaml:"cache_ttl" validate:"gte=0"`
	MaxRetries int           `yaml:"max_retries" validate:"gte=0,lte=10"`
	RetryDelay time.Duration `yaml:"retry_delay" validate:"gte=0"`
}

// RedisConfig selects the cache backend. An empty Addr keeps the in-memory cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

type RateLimitConfig struct {
	Requests int           `yaml:"requests" validate:"gt=0"`
	Window   time.Duration `yaml:"window" validate:"gt=0"`
}

type LogConfig struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Chat      ChatConfig      `yaml:"chat"`
	LLM       LLMConfig       `yaml:"llm"`
	Insights  InsightsConfig  `yaml:"insights"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

// FormRequiredFields is the gate applied to form submissions.
var FormRequiredFields = []string{
	"propertyValue",
	"propertyType",
	"propertyLocation",
	"downPaymentPercent",
	"creditScore",
}

// ChatRequiredFields is the gate applied when chat triggers a re-score.
var ChatRequiredFields = []string{
	"propertyValue",
	"propertyType",
	"creditScore",
	"downPaymentPercent",
	"investmentExperience",
}

var knownFields = map[string]bool{
	"propertyValue":        true,
	"propertyType":         true,
	"propertyLocation":     true,
	"downPaymentPercent":   true,
	"propertyVacant":       true,
	"currentRent":          true,
	"creditScore":          true,
	"investmentExperience": true,
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Catalog: CatalogConfig{
			Path: "testdata/lenders.json",
		},
		Scoring: ScoringConfig{
			BaseConfidence:    0.25,
			DefaultConfidence: 0.25,
			InclusionFloor:    0.1,
			MatchThreshold:    0.6,
			Limit:             0,
			RequiredFields:    append([]string(nil), FormRequiredFields...),
			CacheTTL:          10 * time.Minute,
		},
		Chat: ChatConfig{
			RequiredFields: append([]string(nil), ChatRequiredFields...),
			HistoryLimit:   20,
		},
		LLM: LLMConfig{
			BaseURL:    "https://api.openai.com/v1",
			Model:      "gpt-4o-mini",
			MaxTokens:  600,
			Timeout:    25 * time.Second,
			MaxRetries: 2,
			RetryDelay: time.Second,
		},
		Insights: InsightsConfig{
			BaseURL:    "https://api.remine.com/v1",
			Timeout:    25 * time.Second,
			CacheTTL:   time.Hour,
			MaxRetries: 2,
			RetryDelay: time.Second,
		},
		RateLimit: RateLimitConfig{
			Requests: 100,
			Window:   15 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path on top of Default, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, eris.Wrapf(err, "config: read %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, eris.Wrapf(err, "config: parse %s", path)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = getEnv("DEALDESK_ADDR", c.Server.Addr)
	c.Catalog.Path = getEnv("DEALDESK_CATALOG", c.Catalog.Path)

	// The AI gateway key wins over a direct OpenAI key.
	if key := os.Getenv("AI_GATEWAY_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.BaseURL = getEnv("AI_GATEWAY_BASE_URL", "https://ai-gateway.vercel.sh/v1")
	} else {
		c.LLM.APIKey = getEnv("OPENAI_API_KEY", c.LLM.APIKey)
		c.LLM.BaseURL = getEnv("OPENAI_BASE_URL", c.LLM.BaseURL)
	}
	c.LLM.Model = getEnv("OPENAI_MODEL", c.LLM.Model)

	c.Insights.APIKey = getEnv("REMINE_API_KEY", c.Insights.APIKey)
	c.Insights.BaseURL = getEnv("REMINE_API_BASE_URL", c.Insights.BaseURL)
	c.Insights.Timeout = getEnvDuration("REMINE_API_TIMEOUT", c.Insights.Timeout)
	c.Insights.CacheTTL = getEnvDuration("REMINE_CACHE_TTL", c.Insights.CacheTTL)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)

	c.RateLimit.Requests = getEnvInt("RATE_LIMIT_MAX_REQUESTS", c.RateLimit.Requests)
	c.RateLimit.Window = getEnvDuration("RATE_LIMIT_WINDOW", c.RateLimit.Window)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

var validate = validator.New()

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fe.Namespace()+" failed "+fe.Tag())
			}
			return eris.Errorf("config: validation failed: %s", strings.Join(msgs, "; "))
		}
		return eris.Wrap(err, "config: validation failed")
	}

	var errs []string
	if c.Scoring.InclusionFloor > c.Scoring.MatchThreshold {
		errs = append(errs, "scoring.inclusion_floor must not exceed scoring.match_threshold")
	}
	for _, f := range c.Scoring.RequiredFields {
		if !knownFields[f] {
			errs = append(errs, "scoring.required_fields: unknown field "+f)
		}
	}
	for _, f := range c.Chat.RequiredFields {
		if !knownFields[f] {
			errs = append(errs, "chat.required_fields: unknown field "+f)
		}
	}
	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or bare milliseconds ("30000").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
