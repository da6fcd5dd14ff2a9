// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (ANSER_* at runtime)
//  2. Config file (anser.yaml in the working directory or /etc/anser)
//  3. Default values
//
// Provider credentials and model names are loaded here once and injected into
// adapter constructors as explicit structs. Nothing in the rest of the tree
// reads the environment directly, which is what lets tests substitute stub
// adapters.
//
// Security: passwords and API keys carry `json:"-"` so serialized configs
// never leak secrets. Tag any new sensitive field the same way.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates a required provider API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidDimension indicates the embedding dimension is unsupported.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidBatchSize indicates the embedding batch size is out of range.
	ErrInvalidBatchSize = errors.New("invalid batch size")

	// ErrInvalidChunkSize indicates the chunk size budget is out of range.
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrInvalidTopK indicates the retrieval result count is out of range.
	ErrInvalidTopK = errors.New("invalid top k")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidTimeout indicates a provider timeout is non-positive.
	ErrInvalidTimeout = errors.New("invalid timeout")
)

// Supported embedding dimensions. The vector column has a fixed width, so a
// deployment picks exactly one of these and never mixes models within it.
const (
	DimensionMiniLM = 384
	DimensionLarge  = 1536
)

// Default model identifiers.
const (
	DefaultEmbeddingModel  = "sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2"
	DefaultGenerationModel = "gemini-2.5-flash"
)

// Embedding configures the embedding provider adapter.
type Embedding struct {
	Endpoint  string        `mapstructure:"endpoint" json:"endpoint"`
	APIKey    string        `mapstructure:"api_key" json:"-"`
	Model     string        `mapstructure:"model" json:"model"`
	Dimension int           `mapstructure:"dimension" json:"dimension"`
	BatchSize int           `mapstructure:"batch_size" json:"batch_size"`
	Timeout   time.Duration `mapstructure:"timeout" json:"timeout"`

	// RequestsPerSecond bounds calls to the provider. Zero disables limiting.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" json:"requests_per_second"`
}

// Generation configures the text generation adapter.
type Generation struct {
	APIKey  string        `mapstructure:"api_key" json:"-"`
	Model   string        `mapstructure:"model" json:"model"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
}

// Retrieval configures query-time behavior.
type Retrieval struct {
	TopK int `mapstructure:"top_k" json:"top_k"`
}

// Ingestion configures document processing.
type Ingestion struct {
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`
}

// Config stores the full application configuration.
type Config struct {
	Addr string `mapstructure:"addr" json:"addr"`

	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"-"`
	PostgresDBName   string `mapstructure:"postgres_dbname" json:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode" json:"postgres_sslmode"`

	Embedding  Embedding  `mapstructure:"embedding" json:"embedding"`
	Generation Generation `mapstructure:"generation" json:"generation"`
	Retrieval  Retrieval  `mapstructure:"retrieval" json:"retrieval"`
	Ingestion  Ingestion  `mapstructure:"ingestion" json:"ingestion"`

	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("anser")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/anser")

	v.SetEnvPrefix("ANSER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// No file is fine; env and defaults carry the configuration.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", "127.0.0.1:8080")

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "anser")
	v.SetDefault("postgres_dbname", "anser")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("embedding.endpoint", "https://router.huggingface.co/hf-inference/models")
	v.SetDefault("embedding.model", DefaultEmbeddingModel)
	v.SetDefault("embedding.dimension", DimensionMiniLM)
	v.SetDefault("embedding.batch_size", 32)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.requests_per_second", 10.0)

	v.SetDefault("generation.model", DefaultGenerationModel)
	v.SetDefault("generation.timeout", 60*time.Second)

	v.SetDefault("retrieval.top_k", 5)

	v.SetDefault("ingestion.chunk_size", 1000)
	v.SetDefault("ingestion.chunk_overlap", 0)

	v.SetDefault("log_level", "info")
}

// PostgresConnectionString returns the DSN for pgx.
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresUser,
		quoteDSNValue(c.PostgresPassword),
		c.PostgresDBName,
		c.PostgresSSLMode,
	)
}

// PostgresURL returns the URL form used by golang-migrate.
func (c *Config) PostgresURL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:     c.PostgresDBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.PostgresSSLMode),
	}
	return u.String()
}

// quoteDSNValue quotes a value for key=value DSN format so passwords with
// spaces or quotes parse correctly.
func quoteDSNValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

// parseDatabaseURL applies DATABASE_URL on top of the individual postgres_*
// settings. Cloud deployments commonly provide only the URL.
func (c *Config) parseDatabaseURL() error {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil
	}

	parsed, err := url.Parse(dbURL)
	if err != nil {
		return fmt.Errorf("invalid DATABASE_URL: %w", err)
	}

	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return fmt.Errorf("DATABASE_URL must start with postgres:// or postgresql://, got %q", parsed.Scheme)
	}

	if host := parsed.Hostname(); host != "" {
		c.PostgresHost = host
	}
	if portStr := parsed.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid port in DATABASE_URL: %w", err)
		}
		c.PostgresPort = port
	}
	if parsed.User != nil {
		if user := parsed.User.Username(); user != "" {
			c.PostgresUser = user
		}
		if password, ok := parsed.User.Password(); ok {
			c.PostgresPassword = password
		}
	}
	if parsed.Path != "" {
		c.PostgresDBName = strings.TrimPrefix(parsed.Path, "/")
	}
	if sslmode := parsed.Query().Get("sslmode"); sslmode != "" {
		c.PostgresSSLMode = sslmode
	}

	return nil
}
