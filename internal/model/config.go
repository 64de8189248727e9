package model

import "time"

// Config is the process configuration assembled from defaults, the config
// file, IOCSCORE_* environment variables and CLI flags
type Config struct {
	RulesFile  string `yaml:"rules_file" json:"rules_file" mapstructure:"rules_file"` // empty uses DefaultRules
	ModelFile  string `yaml:"model_file" json:"model_file" mapstructure:"model_file"` // empty starts in rule-only mode
	WatchRules bool   `yaml:"watch_rules" json:"watch_rules" mapstructure:"watch_rules"`

	Cache        CacheConfig        `yaml:"cache" json:"cache" mapstructure:"cache"`
	Store        StoreConfig        `yaml:"store" json:"store" mapstructure:"store"`
	Enrichment   EnrichmentConfig   `yaml:"enrichment" json:"enrichment" mapstructure:"enrichment"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" json:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" json:"rate_limiting" mapstructure:"rate_limiting"`
	Server       ServerConfig       `yaml:"server" json:"server" mapstructure:"server"`
	Logging      LoggingConfig      `yaml:"logging" json:"logging" mapstructure:"logging"`
	LLM          LLMConfig          `yaml:"llm" json:"llm" mapstructure:"llm"`
	Telemetry    TelemetryConfig    `yaml:"telemetry" json:"telemetry" mapstructure:"telemetry"`
}

// CacheConfig configures the result cache layers
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	MemoryTTL time.Duration `yaml:"memory_ttl" json:"memory_ttl" mapstructure:"memory_ttl"`
	BoltPath  string        `yaml:"bolt_path" json:"bolt_path" mapstructure:"bolt_path"` // empty disables the persistent layer
	BoltTTL   time.Duration `yaml:"bolt_ttl" json:"bolt_ttl" mapstructure:"bolt_ttl"`
}

// StoreConfig selects the indicator store
type StoreConfig struct {
	Driver string `yaml:"driver" json:"driver" mapstructure:"driver"` // memory or sqlite
	DSN    string `yaml:"dsn" json:"dsn" mapstructure:"dsn"`
}

// EnrichmentConfig points at local enrichment databases
type EnrichmentConfig struct {
	GeoIPDatabases []string `yaml:"geoip_databases" json:"geoip_databases" mapstructure:"geoip_databases"` // MaxMind City/Country/ASN .mmdb files
	StaticTables   []string `yaml:"static_tables" json:"static_tables" mapstructure:"static_tables"`       // YAML WHOIS/inventory exports
}

// ConcurrencyConfig sizes the batch importer
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" json:"workers" mapstructure:"workers"`
}

// RateLimitingConfig throttles batch scoring per feed
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second" mapstructure:"requests_per_second"` // 0 disables
	BurstSize         int     `yaml:"burst_size" json:"burst_size" mapstructure:"burst_size"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Listen       string        `yaml:"listen" json:"listen" mapstructure:"listen"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" mapstructure:"write_timeout"`
}

// LoggingConfig mirrors logger.Config
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" mapstructure:"level"`
	Debug  bool   `yaml:"debug" json:"debug" mapstructure:"debug"`
	Output string `yaml:"output" json:"output" mapstructure:"output"`
}

// LLMConfig configures the optional analyst narrative
type LLMConfig struct {
	Provider  string `yaml:"provider" json:"provider" mapstructure:"provider"` // openai, anthropic, ollama, "" (disabled)
	Model     string `yaml:"model" json:"model" mapstructure:"model"`
	APIKey    string `yaml:"-" json:"-" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url,omitempty" json:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" json:"timeout" mapstructure:"timeout"` // seconds
	Strict    bool   `yaml:"strict" json:"strict" mapstructure:"strict"`
	MaxTokens int    `yaml:"max_tokens" json:"max_tokens" mapstructure:"max_tokens"`

	HTTPProxy  string `yaml:"http_proxy,omitempty" json:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" json:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" json:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// TelemetryConfig configures the OTLP metrics exporter
type TelemetryConfig struct {
	Enabled        bool              `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Endpoint       string            `yaml:"endpoint" json:"endpoint" mapstructure:"endpoint"` // host:port of the collector
	Insecure       bool              `yaml:"insecure" json:"insecure" mapstructure:"insecure"`
	Headers        map[string]string `yaml:"headers,omitempty" json:"headers,omitempty" mapstructure:"headers"`
	ExportInterval time.Duration     `yaml:"export_interval" json:"export_interval" mapstructure:"export_interval"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		WatchRules: true,
		Cache: CacheConfig{
			Enabled:   true,
			MemoryTTL: 30 * time.Minute,
			BoltTTL:   24 * time.Hour,
		},
		Store: StoreConfig{
			Driver: "memory",
		},
		Concurrency: ConcurrencyConfig{
			Workers: 8,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 0,
			BurstSize:         50,
		},
		Server: ServerConfig{
			Listen:       ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
		},
		LLM: LLMConfig{
			Timeout:   30,
			Strict:    true,
			MaxTokens: 600,
		},
		Telemetry: TelemetryConfig{
			Endpoint:       "localhost:4317",
			Insecure:       true,
			ExportInterval: 15 * time.Second,
		},
	}
}
