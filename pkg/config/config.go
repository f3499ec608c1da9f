package config

import (
	"errors"
	"fmt"
	"io/fs"
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

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Allocation AllocationConfig
	Scoring    ScoringConfig
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	Namespace string
}

// JWTConfig describes tokens issued by the identity service. This service only verifies them.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AllocationConfig tunes allocation runs, their queue and their artifacts.
type AllocationConfig struct {
	Enabled            bool
	LockTTL            time.Duration
	RunTimeout         time.Duration
	DefaultMaxIter     int
	QueueWorkers       int
	QueueBuffer        int
	QueueRetries       int
	QueueRetryDelay    time.Duration
	ArtifactDir        string
	SignedURLSecret    string
	SignedURLTTL       time.Duration
	LogRetention       time.Duration
	CleanupInterval    time.Duration
	RunCacheTTL        time.Duration
	InsertChunkSize    int
	DistributedLocking bool
}

// ScoringConfig holds the fallback weights and where runtime profiles come from.
type ScoringConfig struct {
	ProfileName             string
	ProfileFile             string
	Capacity                int
	HardRule                int
	PreferredRoom           int
	PreferredCharacteristic int
	HistoricalPerAllocation int
	HistoricalMaxCap        int
	EnrollmentDivisor       int
	EnrollmentCap           int
	SpecificRoomPriority    int
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:            v.GetString("DB_HOST"),
		Port:            v.GetInt("DB_PORT"),
		User:            v.GetString("DB_USER"),
		Password:        v.GetString("DB_PASSWORD"),
		Name:            v.GetString("DB_NAME"),
		SSLMode:         v.GetString("DB_SSL_MODE"),
		MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		ConnMaxLifetime: parseDuration(v.GetString("DB_CONN_MAX_LIFETIME"), 30*time.Minute),
	}

	cfg.Redis = RedisConfig{
		Enabled:   v.GetBool("REDIS_ENABLED"),
		Host:      v.GetString("REDIS_HOST"),
		Port:      v.GetInt("REDIS_PORT"),
		Password:  v.GetString("REDIS_PASSWORD"),
		DB:        v.GetInt("REDIS_DB"),
		Namespace: v.GetString("REDIS_NAMESPACE"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Allocation = AllocationConfig{
		Enabled:            v.GetBool("ENABLE_ALLOCATION"),
		LockTTL:            parseDuration(v.GetString("ALLOCATION_LOCK_TTL"), 30*time.Minute),
		RunTimeout:         parseDuration(v.GetString("ALLOCATION_RUN_TIMEOUT"), 20*time.Minute),
		DefaultMaxIter:     v.GetInt("ALLOCATION_MAX_ITERATIONS"),
		QueueWorkers:       v.GetInt("ALLOCATION_QUEUE_WORKERS"),
		QueueBuffer:        v.GetInt("ALLOCATION_QUEUE_BUFFER"),
		QueueRetries:       v.GetInt("ALLOCATION_QUEUE_RETRIES"),
		QueueRetryDelay:    parseDuration(v.GetString("ALLOCATION_QUEUE_RETRY_DELAY"), 30*time.Second),
		ArtifactDir:        v.GetString("ALLOCATION_ARTIFACT_DIR"),
		SignedURLSecret:    v.GetString("ALLOCATION_SIGNED_URL_SECRET"),
		SignedURLTTL:       parseDuration(v.GetString("ALLOCATION_SIGNED_URL_TTL"), time.Hour),
		LogRetention:       parseDuration(v.GetString("ALLOCATION_LOG_RETENTION"), 30*24*time.Hour),
		CleanupInterval:    parseDuration(v.GetString("ALLOCATION_CLEANUP_INTERVAL"), 6*time.Hour),
		RunCacheTTL:        parseDuration(v.GetString("ALLOCATION_RUN_CACHE_TTL"), 10*time.Minute),
		InsertChunkSize:    v.GetInt("ALLOCATION_INSERT_CHUNK"),
		DistributedLocking: v.GetBool("ALLOCATION_DISTRIBUTED_LOCK"),
	}

	cfg.Scoring = ScoringConfig{
		ProfileName:             v.GetString("SCORING_PROFILE"),
		ProfileFile:             v.GetString("SCORING_PROFILE_FILE"),
		Capacity:                v.GetInt("SCORING_CAPACITY"),
		HardRule:                v.GetInt("SCORING_HARD_RULE"),
		PreferredRoom:           v.GetInt("SCORING_PREFERRED_ROOM"),
		PreferredCharacteristic: v.GetInt("SCORING_PREFERRED_CHARACTERISTIC"),
		HistoricalPerAllocation: v.GetInt("SCORING_HISTORICAL_PER_ALLOCATION"),
		HistoricalMaxCap:        v.GetInt("SCORING_HISTORICAL_MAX_CAP"),
		EnrollmentDivisor:       v.GetInt("SCORING_ENROLLMENT_DIVISOR"),
		EnrollmentCap:           v.GetInt("SCORING_ENROLLMENT_CAP"),
		SpecificRoomPriority:    v.GetInt("SCORING_SPECIFIC_ROOM_PRIORITY"),
	}

	if cfg.Env == EnvProduction && cfg.Allocation.SignedURLSecret == "dev_allocation_secret" {
		return nil, errors.New("ALLOCATION_SIGNED_URL_SECRET must be set in production")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "room_allocation")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")

	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_NAMESPACE", "room-allocation")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_ALLOCATION", true)
	v.SetDefault("ALLOCATION_LOCK_TTL", "30m")
	v.SetDefault("ALLOCATION_RUN_TIMEOUT", "20m")
	v.SetDefault("ALLOCATION_MAX_ITERATIONS", 0)
	v.SetDefault("ALLOCATION_QUEUE_WORKERS", 1)
	v.SetDefault("ALLOCATION_QUEUE_BUFFER", 16)
	v.SetDefault("ALLOCATION_QUEUE_RETRIES", 3)
	v.SetDefault("ALLOCATION_QUEUE_RETRY_DELAY", "30s")
	v.SetDefault("ALLOCATION_ARTIFACT_DIR", "./artifacts")
	v.SetDefault("ALLOCATION_SIGNED_URL_SECRET", "dev_allocation_secret")
	v.SetDefault("ALLOCATION_SIGNED_URL_TTL", "1h")
	v.SetDefault("ALLOCATION_LOG_RETENTION", "720h")
	v.SetDefault("ALLOCATION_CLEANUP_INTERVAL", "6h")
	v.SetDefault("ALLOCATION_RUN_CACHE_TTL", "10m")
	v.SetDefault("ALLOCATION_INSERT_CHUNK", 500)
	v.SetDefault("ALLOCATION_DISTRIBUTED_LOCK", true)

	v.SetDefault("SCORING_PROFILE", "default")
	v.SetDefault("SCORING_PROFILE_FILE", "")
	v.SetDefault("SCORING_CAPACITY", 4)
	v.SetDefault("SCORING_HARD_RULE", 8)
	v.SetDefault("SCORING_PREFERRED_ROOM", 4)
	v.SetDefault("SCORING_PREFERRED_CHARACTERISTIC", 4)
	v.SetDefault("SCORING_HISTORICAL_PER_ALLOCATION", 1)
	v.SetDefault("SCORING_HISTORICAL_MAX_CAP", 8)
	v.SetDefault("SCORING_ENROLLMENT_DIVISOR", 10)
	v.SetDefault("SCORING_ENROLLMENT_CAP", 20)
	v.SetDefault("SCORING_SPECIFIC_ROOM_PRIORITY", 1000)
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
