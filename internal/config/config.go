package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Qdrant   QdrantConfig   `mapstructure:"qdrant"`
	Embed    EmbedConfig    `mapstructure:"embedding"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Search   SearchConfig   `mapstructure:"search"`
	Index    IndexConfig    `mapstructure:"index"`
	Media    MediaConfig    `mapstructure:"media"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // postgres or sqlite
	DSN    string `mapstructure:"dsn"`
	Path   string `mapstructure:"path"` // sqlite file path

	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
}

// EmbedConfig describes the embedding provider and the vector spaces it
// populates. Dimensions and distance are configuration, not contract; they
// must match whatever the configured model guarantees.
type EmbedConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	Distance   string `mapstructure:"distance"` // cosine or dot
	TextSpace  string `mapstructure:"text_space"`
	ImageSpace string `mapstructure:"image_space"`
}

type MetadataConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type SearchConfig struct {
	TextPrefetchLimit  int           `mapstructure:"text_prefetch_limit"`
	ImagePrefetchLimit int           `mapstructure:"image_prefetch_limit"`
	PageSize           int           `mapstructure:"page_size"`
	RRFK               int           `mapstructure:"rrf_k"`
	DuplicateThreshold float32       `mapstructure:"duplicate_threshold"`
	PopularWindow      time.Duration `mapstructure:"popular_window"`
	PopularCacheTTL    time.Duration `mapstructure:"popular_cache_ttl"`
}

type IndexConfig struct {
	PacingDelay time.Duration `mapstructure:"pacing_delay"`
}

type MediaConfig struct {
	HostBaseURL string `mapstructure:"host_base_url"`
	HostToken   string `mapstructure:"host_token"`

	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Region    string `mapstructure:"s3_region"`
	S3UseSSL    bool   `mapstructure:"s3_use_ssl"`
	PublicURL   string `mapstructure:"public_url"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DSN returns the database connection string for the configured driver.
func (c *DatabaseConfig) ResolvedDSN() string {
	if c.Driver == "sqlite" {
		if c.Path != "" {
			return c.Path
		}
	}
	return c.DSN
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/memexpert.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "memexpert")
	v.SetDefault("embedding.base_url", "https://api.jina.ai/v1/embeddings")
	v.SetDefault("embedding.model", "jina-clip-v2")
	v.SetDefault("embedding.dimensions", 1024)
	v.SetDefault("embedding.distance", "cosine")
	v.SetDefault("embedding.text_space", "text-dense")
	v.SetDefault("embedding.image_space", "image")
	v.SetDefault("metadata.enabled", true)
	v.SetDefault("metadata.model", "gpt-4o-2024-11-20")
	v.SetDefault("metadata.base_url", "https://api.openai.com/v1")
	v.SetDefault("search.text_prefetch_limit", 100)
	v.SetDefault("search.image_prefetch_limit", 100)
	v.SetDefault("search.page_size", 50)
	v.SetDefault("search.rrf_k", 60)
	v.SetDefault("search.duplicate_threshold", 0.99)
	v.SetDefault("search.popular_window", 72*time.Hour)
	v.SetDefault("search.popular_cache_ttl", time.Minute)
	v.SetDefault("index.pacing_delay", 500*time.Millisecond)
	v.SetDefault("media.s3_bucket", "memexpert")
	v.SetDefault("media.s3_use_ssl", false)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.dsn", "DATABASE_URL")
	v.BindEnv("qdrant.host", "QDRANT_HOST")
	v.BindEnv("qdrant.port", "QDRANT_PORT")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("embedding.api_key", "JINA_API_KEY")
	v.BindEnv("metadata.api_key", "OPENAI_API_KEY")
	v.BindEnv("metadata.base_url", "OPENAI_BASE_URL")
	v.BindEnv("media.host_base_url", "MEDIA_HOST_BASE_URL")
	v.BindEnv("media.host_token", "MEDIA_HOST_TOKEN")
	v.BindEnv("media.s3_endpoint", "S3_ENDPOINT")
	v.BindEnv("media.s3_access_key", "S3_ACCESS_KEY")
	v.BindEnv("media.s3_secret_key", "S3_SECRET_KEY")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
