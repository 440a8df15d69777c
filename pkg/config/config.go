package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Mongo     MongoConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Embedding EmbeddingConfig
	Search    SearchConfig
	Storage   StorageConfig
	Upload    UploadConfig
	Cache     CacheConfig
	Metrics   MetricsConfig
}

type MongoConfig struct {
	URI             string
	Database        string
	EventCollection string
	ConnectTimeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// EmbeddingConfig points at the external embedding provider and tunes
// the background backfill of missing vectors.
type EmbeddingConfig struct {
	Enabled  bool
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration

	BackfillEnabled  bool
	BackfillInterval time.Duration
	BackfillBatch    int
	BackfillWorkers  int
}

// SearchConfig tunes the vector index and the brute-force fallback.
type SearchConfig struct {
	IndexName         string
	VectorPath        string
	CandidateFloor    int
	CandidateFactor   int
	FallbackScanLimit int
}

// StorageConfig configures the MinIO-backed image blob store.
type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	PublicURL string
}

// UploadConfig bounds upload body size and controls the content-type
// dispatch default applied when a request carries no usable Content-Type.
type UploadConfig struct {
	MaxBodyBytes       int64
	DefaultContentType string
}

// CacheConfig gates the redis read-through cache on list endpoints.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// MetricsConfig gates the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Mongo = MongoConfig{
		URI:             v.GetString("MONGO_URI"),
		Database:        v.GetString("MONGO_DATABASE"),
		EventCollection: v.GetString("MONGO_EVENT_COLLECTION"),
		ConnectTimeout:  parseDuration(v.GetString("MONGO_CONNECT_TIMEOUT"), 10*time.Second),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Embedding = EmbeddingConfig{
		Enabled:  v.GetBool("EMBEDDING_ENABLED"),
		Endpoint: v.GetString("EMBEDDING_ENDPOINT"),
		APIKey:   v.GetString("EMBEDDING_API_KEY"),
		Model:    v.GetString("EMBEDDING_MODEL"),
		Timeout:  parseDuration(v.GetString("EMBEDDING_TIMEOUT"), 30*time.Second),

		BackfillEnabled:  v.GetBool("EMBEDDING_BACKFILL_ENABLED"),
		BackfillInterval: parseDuration(v.GetString("EMBEDDING_BACKFILL_INTERVAL"), 10*time.Minute),
		BackfillBatch:    v.GetInt("EMBEDDING_BACKFILL_BATCH"),
		BackfillWorkers:  v.GetInt("EMBEDDING_BACKFILL_WORKERS"),
	}

	cfg.Search = SearchConfig{
		IndexName:         v.GetString("VECTOR_INDEX_NAME"),
		VectorPath:        v.GetString("VECTOR_INDEX_PATH"),
		CandidateFloor:    v.GetInt("VECTOR_CANDIDATE_FLOOR"),
		CandidateFactor:   v.GetInt("VECTOR_CANDIDATE_FACTOR"),
		FallbackScanLimit: v.GetInt("VECTOR_FALLBACK_SCAN_LIMIT"),
	}

	cfg.Storage = StorageConfig{
		Enabled:   v.GetBool("STORAGE_ENABLED"),
		Endpoint:  v.GetString("STORAGE_ENDPOINT"),
		AccessKey: v.GetString("STORAGE_ACCESS_KEY"),
		SecretKey: v.GetString("STORAGE_SECRET_KEY"),
		UseSSL:    v.GetBool("STORAGE_USE_SSL"),
		Bucket:    v.GetString("STORAGE_BUCKET"),
		PublicURL: v.GetString("STORAGE_PUBLIC_URL"),
	}

	maxBody := v.GetInt64("UPLOAD_MAX_BODY_BYTES")
	if maxBody <= 0 {
		maxBody = 50 * 1024 * 1024
	}
	cfg.Upload = UploadConfig{
		MaxBodyBytes:       maxBody,
		DefaultContentType: v.GetString("UPLOAD_DEFAULT_CONTENT_TYPE"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_CACHE"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), 5*time.Minute),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "school_portal")
	v.SetDefault("MONGO_EVENT_COLLECTION", "schedules")
	v.SetDefault("MONGO_CONNECT_TIMEOUT", "10s")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("EMBEDDING_ENABLED", true)
	v.SetDefault("EMBEDDING_ENDPOINT", "")
	v.SetDefault("EMBEDDING_API_KEY", "")
	v.SetDefault("EMBEDDING_MODEL", "text-embedding-3-small")
	v.SetDefault("EMBEDDING_TIMEOUT", "30s")
	v.SetDefault("EMBEDDING_BACKFILL_ENABLED", false)
	v.SetDefault("EMBEDDING_BACKFILL_INTERVAL", "10m")
	v.SetDefault("EMBEDDING_BACKFILL_BATCH", 50)
	v.SetDefault("EMBEDDING_BACKFILL_WORKERS", 2)

	v.SetDefault("VECTOR_INDEX_NAME", "schedule_vector_index")
	v.SetDefault("VECTOR_INDEX_PATH", "embedding")
	v.SetDefault("VECTOR_CANDIDATE_FLOOR", 100)
	v.SetDefault("VECTOR_CANDIDATE_FACTOR", 10)
	v.SetDefault("VECTOR_FALLBACK_SCAN_LIMIT", 500)

	v.SetDefault("STORAGE_ENABLED", false)
	v.SetDefault("STORAGE_ENDPOINT", "localhost:9000")
	v.SetDefault("STORAGE_ACCESS_KEY", "")
	v.SetDefault("STORAGE_SECRET_KEY", "")
	v.SetDefault("STORAGE_USE_SSL", false)
	v.SetDefault("STORAGE_BUCKET", "schedule-images")
	v.SetDefault("STORAGE_PUBLIC_URL", "")

	v.SetDefault("UPLOAD_MAX_BODY_BYTES", 50*1024*1024)
	v.SetDefault("UPLOAD_DEFAULT_CONTENT_TYPE", "multipart/form-data")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("CACHE_TTL", "5m")
	v.SetDefault("ENABLE_METRICS", false)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
