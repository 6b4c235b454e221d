// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Corpus, Postgres, Indexer, Search, Redis, Kafka, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Corpus   CorpusConfig   `yaml:"corpus"`
	Postgres PostgresConfig `yaml:"postgres"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings. RateLimit is the number of
// requests per minute allowed per client address; 0 disables limiting.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RateLimit       int           `yaml:"rateLimit"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
}

// CorpusConfig selects where verses are loaded from. Source is "csv" or
// "postgres".
type CorpusConfig struct {
	Source  string        `yaml:"source"`
	CSVPath string        `yaml:"csvPath"`
	Table   string        `yaml:"table"`
	Columns CorpusColumns `yaml:"columns"`
}

// CorpusColumns names the locator and text columns of the dataset.
type CorpusColumns struct {
	Group    string `yaml:"group"`
	Subgroup string `yaml:"subgroup"`
	Position string `yaml:"position"`
	Text     string `yaml:"text"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	LoadAttempts    int           `yaml:"loadAttempts"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// IndexerConfig controls the build phase. Workers <= 0 means one worker per
// CPU. TokenPattern is "whitespace" or "word".
type IndexerConfig struct {
	Workers       int    `yaml:"workers"`
	Normalize     bool   `yaml:"normalize"`
	TokenPattern  string `yaml:"tokenPattern"`
	StopWordsFile string `yaml:"stopWordsFile"`
}

// SearchConfig bounds queries. MaxSubgroup and MaxPosition are input
// validation limits for the HTTP layer only.
type SearchConfig struct {
	DefaultTopN int `yaml:"defaultTopN"`
	MaxResults  int `yaml:"maxResults"`
	MaxSubgroup int `yaml:"maxSubgroup"`
	MaxPosition int `yaml:"maxPosition"`
}

// RedisConfig holds Redis connection and caching parameters. Timeout bounds
// a single cache round trip.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
	Timeout  time.Duration `yaml:"timeout"`
}

// KafkaConfig holds the broker list and the topic query events go to.
type KafkaConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	QueryTopic    string        `yaml:"queryTopic"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	EventBuffer   int           `yaml:"eventBuffer"`
	BatchSize     int           `yaml:"batchSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig toggles logging of build-phase span trees.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with defaults for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       600,
			CORSOrigins:     []string{"*"},
		},
		Corpus: CorpusConfig{
			Source:  "csv",
			CSVPath: "data/t_bbe.csv",
			Table:   "t_bbe",
			Columns: CorpusColumns{
				Group:    "b",
				Subgroup: "c",
				Position: "v",
				Text:     "t",
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "verses",
			User:            "verses",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			LoadAttempts:    3,
		},
		Indexer: IndexerConfig{
			Workers:      0,
			Normalize:    true,
			TokenPattern: "whitespace",
		},
		Search: SearchConfig{
			DefaultTopN: 10,
			MaxResults:  50,
			MaxSubgroup: 150,
			MaxPosition: 176,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
			Timeout:  100 * time.Millisecond,
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			QueryTopic:    "verse-queries",
			ConsumerGroup: "verse-analytics",
			EventBuffer:   10000,
			BatchSize:     100,
			FlushInterval: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects configurations the recommender cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Corpus.Source {
	case "csv":
		if c.Corpus.CSVPath == "" {
			errs = append(errs, errors.New("corpus.csvPath is required for the csv source"))
		}
	case "postgres":
		if c.Corpus.Table == "" {
			errs = append(errs, errors.New("corpus.table is required for the postgres source"))
		}
	default:
		errs = append(errs, fmt.Errorf("corpus.source must be csv or postgres, got %q", c.Corpus.Source))
	}
	switch c.Indexer.TokenPattern {
	case "whitespace", "word":
	default:
		errs = append(errs, fmt.Errorf("indexer.tokenPattern must be whitespace or word, got %q", c.Indexer.TokenPattern))
	}
	if c.Search.MaxResults < 1 {
		errs = append(errs, errors.New("search.maxResults must be at least 1"))
	}
	if c.Search.DefaultTopN < 1 || c.Search.DefaultTopN > c.Search.MaxResults {
		errs = append(errs, fmt.Errorf("search.defaultTopN must be within 1..%d", c.Search.MaxResults))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, errors.New("server.rateLimit must not be negative"))
	}
	if c.Search.MaxSubgroup < 1 || c.Search.MaxPosition < 1 {
		errs = append(errs, errors.New("search.maxSubgroup and search.maxPosition must be positive"))
	}
	return errors.Join(errs...)
}

// applyEnvOverrides reads VR_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VR_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("VR_CORPUS_SOURCE"); v != "" {
		cfg.Corpus.Source = v
	}
	if v := os.Getenv("VR_CORPUS_CSV_PATH"); v != "" {
		cfg.Corpus.CSVPath = v
	}
	if v := os.Getenv("VR_CORPUS_TABLE"); v != "" {
		cfg.Corpus.Table = v
	}
	if v := os.Getenv("VR_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("VR_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("VR_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("VR_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("VR_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("VR_INDEXER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.Workers = n
		}
	}
	if v := os.Getenv("VR_SEARCH_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.MaxResults = n
		}
	}
	if v := os.Getenv("VR_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("VR_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("VR_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("VR_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("VR_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("VR_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VR_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
