// Package config provides configuration loading and validation for the brief pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv   = "BRIEF_CONFIG"
	storageEnv      = "BRIEF_STORAGE"
	dataDirEnv      = "BRIEF_DATA_DIR"
	thresholdEnv    = "BRIEF_THRESHOLD"
	geminiKeyEnv    = "GEMINI_API_KEY"
	searchKeyEnv    = "GOOGLE_SEARCH_API_KEY"
	searchCXEnv     = "GOOGLE_SEARCH_CX"
	xBearerEnv      = "X_BEARER_TOKEN"
	databaseURLEnv  = "DATABASE_URL"
	publishDirEnv   = "BRIEF_PUBLISH_DIR"
	serverAddrEnv   = "BRIEF_ADDR"
	defaultDataDir  = "./data"
	defaultBriefDir = "./briefs"
)

// Storage drivers.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds every tunable of a run.
type Config struct {
	Scoring     ScoringConfig     `yaml:"scoring"`
	Expansion   ExpansionConfig   `yaml:"expansion"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Sources     SourcesConfig     `yaml:"sources"`
	Preferences PreferencesConfig `yaml:"preferences"`
	Storage     StorageConfig     `yaml:"storage"`
	LLM         LLMConfig         `yaml:"llm"`
	Search      SearchConfig      `yaml:"search"`
	Social      SocialConfig      `yaml:"social"`
	Publish     PublishConfig     `yaml:"publish"`
	Trace       TraceConfig       `yaml:"trace"`
	Server      ServerConfig      `yaml:"server"`
}

// Weights are the relative factor weights of the relevance score.
// The score is sum(w*f)/sum(w), so only their ratios matter.
type Weights struct {
	TopicMatch float64 `yaml:"topic_match" validate:"gte=0"`
	Recency    float64 `yaml:"recency" validate:"gte=0"`
	SourceBias float64 `yaml:"source_bias" validate:"gte=0"`
	PersonaFit float64 `yaml:"persona_fit" validate:"gte=0"`
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.TopicMatch + w.Recency + w.SourceBias + w.PersonaFit
}

// ScoringConfig configures relevance scoring and acceptance.
type ScoringConfig struct {
	Weights         Weights       `yaml:"weights"`
	Threshold       float64       `yaml:"threshold" validate:"gte=0,lte=1"`
	RecencyHalfLife time.Duration `yaml:"recency_half_life" validate:"gt=0"`
	UnknownRecency  float64       `yaml:"unknown_recency" validate:"gte=0,lte=1"`
	MaxItems        int           `yaml:"max_items" validate:"gte=1"`
}

// ExpansionConfig configures topic expansion.
type ExpansionConfig struct {
	MaxSubtopics int `yaml:"max_subtopics" validate:"gte=1"`
}

// FetchConfig configures the fetch worker pool.
type FetchConfig struct {
	Concurrency        int           `yaml:"concurrency" validate:"gte=1"`
	Timeout            time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxItemsPerRequest int           `yaml:"max_items_per_request" validate:"gte=1"`
	RatePerSecond      float64       `yaml:"rate_per_second" validate:"gte=0"`
	UserAgent          string        `yaml:"user_agent"`
}

// SourcesConfig selects which source types are resolved.
type SourcesConfig struct {
	News       bool     `yaml:"news"`
	Social     bool     `yaml:"social"`
	WebSearch  bool     `yaml:"web_search"`
	Feeds      []string `yaml:"feeds" validate:"dive,url"`
	Websites   []string `yaml:"websites" validate:"dive,url"`
	Subreddits []string `yaml:"subreddits"`
	UseBrowser bool     `yaml:"use_browser"`
}

// PreferencesConfig configures how runs update the profile.
type PreferencesConfig struct {
	RecentTopicsCapacity int     `yaml:"recent_topics_capacity" validate:"gte=1"`
	BiasStep             float64 `yaml:"bias_step" validate:"gt=0,lte=1"`
	InferTraits          bool    `yaml:"infer_traits"`
}

// StorageConfig selects the profile and trace backend.
type StorageConfig struct {
	Driver      string `yaml:"driver" validate:"oneof=file sqlite postgres"`
	Dir         string `yaml:"dir"`
	SQLitePath  string `yaml:"sqlite_path"`
	DatabaseURL string `yaml:"database_url" validate:"required_if=Driver postgres"`
}

// LLMConfig configures the reasoning capability.
type LLMConfig struct {
	APIKey   string `yaml:"api_key"`
	Tier     string `yaml:"tier" validate:"oneof=lite standard advanced"`
	Disabled bool   `yaml:"disabled"`
}

// Enabled reports whether the capability should be constructed.
func (c LLMConfig) Enabled() bool {
	return !c.Disabled && c.APIKey != ""
}

// SearchConfig holds Custom Search credentials.
type SearchConfig struct {
	APIKey string `yaml:"api_key"`
	CX     string `yaml:"cx"`
}

// SocialConfig holds X API settings.
type SocialConfig struct {
	BearerToken string `yaml:"bearer_token"`
	Endpoint    string `yaml:"endpoint"`
}

// PublishConfig configures the file publisher.
type PublishConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// TraceConfig configures the JSONL trace log used by the file driver.
type TraceConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// RatePerSecond and Burst bound requests per client address.
	RatePerSecond float64 `yaml:"rate_per_second" validate:"gte=0"`
	Burst         int     `yaml:"burst" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Scoring: ScoringConfig{
			Weights: Weights{
				TopicMatch: 0.5,
				Recency:    0.2,
				SourceBias: 0.15,
				PersonaFit: 0.15,
			},
			Threshold:       0.6,
			RecencyHalfLife: 72 * time.Hour,
			UnknownRecency:  0.5,
			MaxItems:        20,
		},
		Expansion: ExpansionConfig{MaxSubtopics: 5},
		Fetch: FetchConfig{
			Concurrency:        4,
			Timeout:            15 * time.Second,
			MaxItemsPerRequest: 25,
			RatePerSecond:      5,
			UserAgent:          "daily-brief/1.0",
		},
		Sources: SourcesConfig{News: true},
		Preferences: PreferencesConfig{
			RecentTopicsCapacity: 50,
			BiasStep:             0.1,
			InferTraits:          true,
		},
		Storage: StorageConfig{
			Driver:     DriverFile,
			Dir:        defaultDataDir,
			SQLitePath: defaultDataDir + "/brief.db",
		},
		LLM:     LLMConfig{Tier: "standard"},
		Social:  SocialConfig{Endpoint: "https://api.x.com/2/tweets/search/recent"},
		Publish: PublishConfig{Enabled: true, Dir: defaultBriefDir},
		Trace:   TraceConfig{Path: defaultDataDir + "/traces.jsonl"},
		Server:  ServerConfig{Addr: ":8080", RatePerSecond: 2, Burst: 10},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (or
// $BRIEF_CONFIG when path is empty), then environment overrides. The result
// is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		// Decoding onto the defaults keeps every key the file omits.
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(storageEnv); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv(dataDirEnv); v != "" {
		c.Storage.Dir = v
		c.Storage.SQLitePath = v + "/brief.db"
		c.Trace.Path = v + "/traces.jsonl"
	}
	if v := os.Getenv(thresholdEnv); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", thresholdEnv, err)
		}
		c.Scoring.Threshold = f
	}
	if v := os.Getenv(geminiKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(searchKeyEnv); v != "" {
		c.Search.APIKey = v
	}
	if v := os.Getenv(searchCXEnv); v != "" {
		c.Search.CX = v
	}
	if v := os.Getenv(xBearerEnv); v != "" {
		c.Social.BearerToken = v
	}
	if v := os.Getenv(databaseURLEnv); v != "" {
		c.Storage.DatabaseURL = v
	}
	if v := os.Getenv(publishDirEnv); v != "" {
		c.Publish.Dir = v
	}
	if v := os.Getenv(serverAddrEnv); v != "" {
		c.Server.Addr = v
	}
	return nil
}

var validate = validator.New()

// Validate checks field ranges and cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("config error: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("config error: %w", err)
	}
	if c.Scoring.Weights.Sum() <= 0 {
		return fmt.Errorf("config error: scoring weights must have a positive sum")
	}
	return nil
}
