package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the retrieval core.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Segmenter SegmenterConfig `mapstructure:"segmenter"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	WebAug    WebAugConfig    `mapstructure:"web_augmentation"`
	Search    SearchConfig    `mapstructure:"web_search"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// LLMConfig configures the completion/embedding provider.
type LLMConfig struct {
	Provider        string        `mapstructure:"provider"` // openai
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	CompletionModel string        `mapstructure:"completion_model"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// StorageConfig contains database configurations.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN assembles a Postgres connection string from the configured parts.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig contains Redis settings for the query-embedding cache.
type RedisConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Host    string        `mapstructure:"host"`
	Port    string        `mapstructure:"port"`
	Pass    string        `mapstructure:"pass"`
	DB      int           `mapstructure:"db"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// SegmenterConfig controls document chunking.
type SegmenterConfig struct {
	MaxTokens         int           `mapstructure:"max_tokens"`
	MinTokens         int           `mapstructure:"min_tokens"`
	ParallelThreshold int           `mapstructure:"parallel_threshold_bytes"`
	Workers           int           `mapstructure:"workers"`
	SectionTimeout    time.Duration `mapstructure:"section_timeout"`
}

// RetrievalConfig tunes the hybrid ANN search and scoring.
type RetrievalConfig struct {
	Limit                 int           `mapstructure:"limit"`
	OversampleFactor      int           `mapstructure:"oversample_factor"`
	EFSearch              int           `mapstructure:"ef_search"`
	ReducedEFSearch       int           `mapstructure:"reduced_ef_search"`
	ReducedOversample     int           `mapstructure:"reduced_oversample"`
	ExactFallbackPool     int           `mapstructure:"exact_fallback_pool"`
	SearchTimeout         time.Duration `mapstructure:"search_timeout"`
	MaxExpectedDistance   float64       `mapstructure:"max_expected_distance"`
	RecencyDecayPerYear   float64       `mapstructure:"recency_decay_per_year"`
	MinRecencyWeight      float64       `mapstructure:"min_recency_weight"`
	AuthoritySource       string        `mapstructure:"authority_source"`
	AuthorityBoost        float64       `mapstructure:"authority_boost"`
	MinInternalCandidates int           `mapstructure:"min_internal_candidates"`
}

// WebAugConfig controls the live web augmentation pipeline.
type WebAugConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	SearchResults        int           `mapstructure:"search_results"`
	TargetPages          int           `mapstructure:"target_pages"`
	ExtractOversample    int           `mapstructure:"extract_oversample"`
	MaxExtractChars      int           `mapstructure:"max_extract_chars"`
	MinExtractChars      int           `mapstructure:"min_extract_chars"`
	VerifyWorkers        int           `mapstructure:"verify_workers"`
	ExtractWorkers       int           `mapstructure:"extract_workers"`
	VerifyTimeout        time.Duration `mapstructure:"verify_timeout"`
	FetchTimeout         time.Duration `mapstructure:"fetch_timeout"`
	PipelineTimeout      time.Duration `mapstructure:"pipeline_timeout"`
	AuthoritativeDomains []string      `mapstructure:"authoritative_domains"`
	BlockedHosts         []string      `mapstructure:"blocked_hosts"`
	LocaleTLD            string        `mapstructure:"locale_tld"`
}

// SearchConfig configures the external web search provider.
type SearchConfig struct {
	Provider     string `mapstructure:"provider"` // serper or brave
	SerperAPIKey string `mapstructure:"serper_api_key"`
	BraveAPIKey  string `mapstructure:"brave_api_key"`
}

// LoadConfig reads configuration from file and environment. It panics on
// unreadable config, matching startup-time fail-fast behaviour.
func LoadConfig(path string) *Config {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".fiscora"))
		}
	}
	v.SetEnvPrefix("FISCORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			panic(fmt.Sprintf("read config: %v", err))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("unmarshal config: %v", err))
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.default_timeout", 60*time.Second)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.completion_model", "gpt-4o-mini")
	v.SetDefault("llm.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 1500)
	v.SetDefault("llm.timeout", 90*time.Second)

	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.redis.ttl", 24*time.Hour)

	v.SetDefault("segmenter.max_tokens", 1000)
	v.SetDefault("segmenter.min_tokens", 600)
	v.SetDefault("segmenter.parallel_threshold_bytes", 400_000)
	v.SetDefault("segmenter.workers", 4)
	v.SetDefault("segmenter.section_timeout", 30*time.Second)

	v.SetDefault("retrieval.limit", 8)
	v.SetDefault("retrieval.oversample_factor", 5)
	v.SetDefault("retrieval.ef_search", 80)
	v.SetDefault("retrieval.reduced_ef_search", 40)
	v.SetDefault("retrieval.reduced_oversample", 2)
	v.SetDefault("retrieval.exact_fallback_pool", 2000)
	v.SetDefault("retrieval.search_timeout", 8*time.Second)
	v.SetDefault("retrieval.max_expected_distance", 1.0)
	v.SetDefault("retrieval.recency_decay_per_year", 0.05)
	v.SetDefault("retrieval.min_recency_weight", 0.7)
	v.SetDefault("retrieval.authority_source", "Belastingdienst")
	v.SetDefault("retrieval.authority_boost", 1.15)
	v.SetDefault("retrieval.min_internal_candidates", 2)

	v.SetDefault("web_augmentation.enabled", true)
	v.SetDefault("web_augmentation.search_results", 20)
	v.SetDefault("web_augmentation.target_pages", 3)
	v.SetDefault("web_augmentation.extract_oversample", 6)
	v.SetDefault("web_augmentation.max_extract_chars", 8000)
	v.SetDefault("web_augmentation.min_extract_chars", 400)
	v.SetDefault("web_augmentation.verify_workers", 8)
	v.SetDefault("web_augmentation.extract_workers", 4)
	v.SetDefault("web_augmentation.verify_timeout", 5*time.Second)
	v.SetDefault("web_augmentation.fetch_timeout", 12*time.Second)
	v.SetDefault("web_augmentation.pipeline_timeout", 45*time.Second)
	v.SetDefault("web_augmentation.authoritative_domains", []string{
		"belastingdienst.nl",
		"rijksoverheid.nl",
		"wetten.overheid.nl",
		"overheid.nl",
		"kvk.nl",
	})
	v.SetDefault("web_augmentation.blocked_hosts", []string{
		"facebook.com",
		"twitter.com",
		"x.com",
		"instagram.com",
		"linkedin.com",
		"youtube.com",
		"pinterest.com",
	})
	v.SetDefault("web_augmentation.locale_tld", ".nl")

	v.SetDefault("web_search.provider", "serper")
}
