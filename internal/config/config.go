// Package config loads pagewatch settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/FranksOps/pagewatch/internal/fingerprint"
	"github.com/spf13/viper"
)

// Backends lists the accepted store.backend values.
var Backends = []string{"sqlite", "postgres", "json", "csv", "memory"}

// Config is the full pagewatch configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	Sites  SitesConfig  `mapstructure:"sites"`
	Store  StoreConfig  `mapstructure:"store"`
	LLM    LLMConfig    `mapstructure:"llm"`
	Fetch  FetchConfig  `mapstructure:"fetch"`
	Crawl  CrawlConfig  `mapstructure:"crawl"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// CORSOrigins lists the origins allowed to call the API from a browser.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LogConfig selects the slog level and handler format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SitesConfig locates the registry of monitored pages.
type SitesConfig struct {
	File string `mapstructure:"file"`
}

// StoreConfig selects the history backend. DSN is a file or directory path
// for the file backends and a connection string for postgres.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
}

// LLMConfig configures the language model used for explanations. An empty
// APIKey disables it.
type LLMConfig struct {
	Provider      string        `mapstructure:"provider"`
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxInputChars int           `mapstructure:"max_input_chars"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	Temperature   float64       `mapstructure:"temperature"`
}

// FetchConfig tunes how pages are fetched.
type FetchConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	Fingerprint       string        `mapstructure:"fingerprint"`
	UserAgents        []string      `mapstructure:"user_agents"`
	Proxies           []string      `mapstructure:"proxies"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Jitter            float64       `mapstructure:"jitter"`
	RespectRobots     bool          `mapstructure:"respect_robots"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
	MaxRedirects      int           `mapstructure:"max_redirects"`
}

// CrawlConfig bounds batch crawls.
type CrawlConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3001")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("sites.file", "data/sites.yaml")

	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.dsn", "data/history.db")

	v.SetDefault("llm.provider", "OpenAI")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", "8s")
	v.SetDefault("llm.max_input_chars", 50000)
	v.SetDefault("llm.max_tokens", 220)
	v.SetDefault("llm.temperature", 0.2)

	v.SetDefault("fetch.timeout", "8s")
	v.SetDefault("fetch.fingerprint", string(fingerprint.ProfileGo))
	v.SetDefault("fetch.user_agents", []string{})
	v.SetDefault("fetch.proxies", []string{})
	v.SetDefault("fetch.requests_per_second", 0)
	v.SetDefault("fetch.jitter", 0)
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.max_body_bytes", 10<<20)
	v.SetDefault("fetch.max_redirects", 10)

	v.SetDefault("crawl.concurrency", 3)
}

// bare environment names honoured alongside the PAGEWATCH_ ones.
var envAliases = map[string][]string{
	"llm.api_key":  {"PAGEWATCH_LLM_API_KEY", "OPENAI_API_KEY"},
	"llm.model":    {"PAGEWATCH_LLM_MODEL", "OPENAI_MODEL"},
	"llm.base_url": {"PAGEWATCH_LLM_BASE_URL", "OPENAI_BASE_URL"},
	"server.addr":  {"PAGEWATCH_SERVER_ADDR", "PORT"},
}

// Load reads configuration. path may be empty, in which case pagewatch.yaml
// is looked up in the working directory and ./config, and its absence is not
// an error. Environment variables override the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PAGEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("pagewatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// PORT carries a bare port number.
	if cfg.Server.Addr != "" && !strings.Contains(cfg.Server.Addr, ":") {
		cfg.Server.Addr = ":" + cfg.Server.Addr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the rest of the program cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(Backends, c.Store.Backend) {
		errs = append(errs, fmt.Errorf("store.backend %q must be one of %s", c.Store.Backend, strings.Join(Backends, ", ")))
	}
	if c.Store.Backend != "memory" && c.Store.DSN == "" {
		errs = append(errs, errors.New("store.dsn is required"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout must be positive"))
	}
	if c.LLM.MaxInputChars <= 0 {
		errs = append(errs, errors.New("llm.max_input_chars must be positive"))
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, errors.New("llm.max_tokens must be positive"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, errors.New("llm.temperature must be within [0, 2]"))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch.timeout must be positive"))
	}
	if _, err := fingerprint.Parse(c.Fetch.Fingerprint); err != nil {
		errs = append(errs, fmt.Errorf("fetch.fingerprint: %w", err))
	}
	if c.Fetch.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("fetch.requests_per_second must not be negative"))
	}
	if c.Fetch.Jitter < 0 || c.Fetch.Jitter > 1 {
		errs = append(errs, errors.New("fetch.jitter must be within [0, 1]"))
	}
	if c.Crawl.Concurrency <= 0 {
		errs = append(errs, errors.New("crawl.concurrency must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps a log.level value to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q must be debug, info, warn or error", s)
	}
	return l, nil
}
