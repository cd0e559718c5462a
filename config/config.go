package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Model backends.
const (
	ModelLocal  = "local"  // OpenAI-compatible inference server (vLLM, Ollama, ...)
	ModelHosted = "hosted" // Gemini API
)

// Search backends.
const (
	SearchKeyword  = "keyword"  // keyword search API + summarizing model
	SearchGrounded = "grounded" // Gemini generation with built-in Google Search grounding
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Model   ModelConfig   `mapstructure:"model"`
	Search  SearchConfig  `mapstructure:"search"`
	Session SessionConfig `mapstructure:"session"`
	Log     LogConfig     `mapstructure:"log"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port        string `mapstructure:"port"`
	FrontendDir string `mapstructure:"frontend_dir"`
	Environment string `mapstructure:"environment" validate:"oneof=development production test"`
}

type AgentConfig struct {
	MaxResearchLoops        int `mapstructure:"max_research_loops" validate:"min=0"`
	InitialSearchQueryCount int `mapstructure:"initial_search_query_count" validate:"min=1"`
	// MaxConcurrency bounds the number of research tasks running at once in a wave; 0 means unbounded.
	MaxConcurrency int `mapstructure:"max_concurrency" validate:"min=0"`
	MaxTransitions int `mapstructure:"max_transitions" validate:"min=4"`
}

type ModelConfig struct {
	Type                string        `mapstructure:"type" validate:"oneof=local hosted"`
	QueryGeneratorModel string        `mapstructure:"query_generator_model" validate:"required"`
	ReasoningModel      string        `mapstructure:"reasoning_model" validate:"required"`
	LocalModel          string        `mapstructure:"local_model"`
	APIKey              string        `mapstructure:"api_key"`
	BaseURL             string        `mapstructure:"base_url"`
	GoogleAPIKey        string        `mapstructure:"google_api_key"`
	MaxRetries          int           `mapstructure:"max_retries" validate:"min=0"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

type SearchConfig struct {
	Type              string        `mapstructure:"type" validate:"oneof=keyword grounded"`
	Provider          string        `mapstructure:"provider" validate:"oneof=tavily brave"`
	TavilyAPIKey      string        `mapstructure:"tavily_api_key"`
	TavilyDepth       string        `mapstructure:"tavily_depth" validate:"oneof=basic advanced"`
	BraveAPIKey       string        `mapstructure:"brave_api_key"`
	MaxResults        int           `mapstructure:"max_results" validate:"min=1,max=20"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

type SessionConfig struct {
	Backend       string        `mapstructure:"backend" validate:"oneof=memory redis"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level    string `mapstructure:"level" validate:"oneof=debug info warn error"`
	FilePath string `mapstructure:"file_path"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Endpoint    string `mapstructure:"endpoint"`
}

// IsProduction reports whether the server runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8123")
	v.SetDefault("server.frontend_dir", "../frontend/dist")
	v.SetDefault("server.environment", "development")

	v.SetDefault("agent.max_research_loops", 2)
	v.SetDefault("agent.initial_search_query_count", 3)
	v.SetDefault("agent.max_concurrency", 0)
	v.SetDefault("agent.max_transitions", 64)

	v.SetDefault("model.type", ModelLocal)
	v.SetDefault("model.query_generator_model", "gemini-2.0-flash")
	v.SetDefault("model.reasoning_model", "gemini-2.5-flash")
	v.SetDefault("model.local_model", "Qwen/Qwen3-32B")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.base_url", "http://localhost:8000/v1")
	v.SetDefault("model.google_api_key", "")
	v.SetDefault("model.max_retries", 2)
	v.SetDefault("model.timeout", 120*time.Second)

	v.SetDefault("search.type", SearchKeyword)
	v.SetDefault("search.provider", "tavily")
	v.SetDefault("search.tavily_api_key", "")
	v.SetDefault("search.tavily_depth", "basic")
	v.SetDefault("search.brave_api_key", "")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.requests_per_second", 1.0)
	v.SetDefault("search.timeout", 15*time.Second)

	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.redis_addr", "localhost:6379")
	v.SetDefault("session.redis_password", "")
	v.SetDefault("session.ttl", 24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_path", "logs/agent.log")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "research-agent")
	v.SetDefault("tracing.endpoint", "localhost:4318")
}

// Credentials keep the variable names the agent has always used so existing .env files work.
func bindCredentials(v *viper.Viper) error {
	binds := map[string][]string{
		"model.api_key":               {"RESEARCH_MODEL_API_KEY", "MODEL_API_KEY"},
		"model.base_url":              {"RESEARCH_MODEL_BASE_URL", "MODEL_API_URL"},
		"model.google_api_key":        {"RESEARCH_MODEL_GOOGLE_API_KEY", "GOOGLE_API_KEY"},
		"model.query_generator_model": {"RESEARCH_MODEL_QUERY_GENERATOR_MODEL", "GEMINI_MODEL_NAME"},
		"search.tavily_api_key":       {"RESEARCH_SEARCH_TAVILY_API_KEY", "TAVILY_API_KEY"},
		"search.brave_api_key":        {"RESEARCH_SEARCH_BRAVE_API_KEY", "BRAVE_API_KEY"},
		"session.redis_password":      {"RESEARCH_SESSION_REDIS_PASSWORD", "REDIS_PASSWORD"},
		"server.port":                 {"RESEARCH_SERVER_PORT", "PORT"},
	}
	for key, envs := range binds {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// Load reads configuration from defaults, an optional YAML file, a .env file and the environment,
// in increasing order of precedence. An empty path skips the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindCredentials(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// normalize maps the provider names used by the chat app onto the canonical ones.
func (c *Config) normalize() {
	switch strings.ToLower(strings.TrimSpace(c.Model.Type)) {
	case "vllm", "openai", "ollama", ModelLocal:
		c.Model.Type = ModelLocal
	case "gemini", "google", ModelHosted:
		c.Model.Type = ModelHosted
	}
	switch strings.ToLower(strings.TrimSpace(c.Search.Type)) {
	case "tavily":
		c.Search.Type = SearchKeyword
		c.Search.Provider = "tavily"
	case "brave":
		c.Search.Type = SearchKeyword
		c.Search.Provider = "brave"
	case "google", SearchGrounded:
		c.Search.Type = SearchGrounded
	case SearchKeyword:
		c.Search.Type = SearchKeyword
	}
	c.Search.Provider = strings.ToLower(c.Search.Provider)
	c.Log.Level = strings.ToLower(c.Log.Level)
}

var validate = validator.New()

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Search.Type == SearchGrounded && c.Model.GoogleAPIKey == "" {
		return errors.New("invalid config: grounded search requires model.google_api_key (GOOGLE_API_KEY)")
	}
	if c.Model.Type == ModelHosted && c.Model.GoogleAPIKey == "" {
		return errors.New("invalid config: hosted model requires model.google_api_key (GOOGLE_API_KEY)")
	}
	return nil
}

// Default returns the built-in defaults without reading files or the environment.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	_ = v.Unmarshal(&c)
	return c
}
