package config

import (
	"errors"
	"os"
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

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Bulletins BulletinConfig
	Jobs      JobsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// BulletinConfig drives computation policies and the printed bulletin identity.
type BulletinConfig struct {
	InstitutionName   string
	SchoolYear        string
	LogoPath          string
	SignatureTitles   []string
	SignaturePaths    []string
	CoefficientPolicy string
	RankStrategy      string
	ComputeWorkers    int
	CacheEnabled      bool
	CacheTTL          time.Duration
	CSVSeparator      string
}

// JobsConfig configures asynchronous class bulletin generation.
type JobsConfig struct {
	Enabled           bool
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	ResultTTL         time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
	StudentWorkers    int
}

const dotenvFile = ".env"

// Load reads configuration from the environment, layered over an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if _, err := os.Stat(dotenvFile); err == nil {
		v.SetConfigFile(dotenvFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Bulletins = BulletinConfig{
		InstitutionName:   v.GetString("BULLETIN_INSTITUTION_NAME"),
		SchoolYear:        v.GetString("BULLETIN_SCHOOL_YEAR"),
		LogoPath:          v.GetString("BULLETIN_LOGO_PATH"),
		SignatureTitles:   splitAndTrim(v.GetString("BULLETIN_SIGNATURE_TITLES")),
		SignaturePaths:    splitKeepEmpty(v.GetString("BULLETIN_SIGNATURE_PATHS")),
		CoefficientPolicy: strings.ToLower(v.GetString("BULLETIN_COEFFICIENT_POLICY")),
		RankStrategy:      strings.ToLower(v.GetString("BULLETIN_RANK_STRATEGY")),
		ComputeWorkers:    v.GetInt("BULLETIN_COMPUTE_WORKERS"),
		CacheEnabled:      v.GetBool("BULLETIN_CACHE_ENABLED"),
		CacheTTL:          parseDuration(v.GetString("BULLETIN_CACHE_TTL"), 10*time.Minute),
		CSVSeparator:      v.GetString("BULLETIN_CSV_SEPARATOR"),
	}

	cfg.Jobs = JobsConfig{
		Enabled:           v.GetBool("ENABLE_BULLETIN_JOBS"),
		StorageDir:        v.GetString("BULLETIN_JOBS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("BULLETIN_JOBS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("BULLETIN_JOBS_SIGNED_URL_TTL"), 24*time.Hour),
		ResultTTL:         parseDuration(v.GetString("BULLETIN_JOBS_RESULT_TTL"), 72*time.Hour),
		CleanupInterval:   parseDuration(v.GetString("BULLETIN_JOBS_CLEANUP_INTERVAL"), time.Hour),
		WorkerConcurrency: v.GetInt("BULLETIN_JOBS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("BULLETIN_JOBS_WORKER_RETRIES"),
		StudentWorkers:    v.GetInt("BULLETIN_JOBS_STUDENT_WORKERS"),
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
	v.SetDefault("DB_NAME", "sma_bulletins")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("BULLETIN_INSTITUTION_NAME", "")
	v.SetDefault("BULLETIN_SCHOOL_YEAR", "")
	v.SetDefault("BULLETIN_LOGO_PATH", "")
	v.SetDefault("BULLETIN_SIGNATURE_TITLES", "Le Professeur principal,Le Chef d'établissement")
	v.SetDefault("BULLETIN_SIGNATURE_PATHS", "")
	v.SetDefault("BULLETIN_COEFFICIENT_POLICY", "first_entry")
	v.SetDefault("BULLETIN_RANK_STRATEGY", "sequential")
	v.SetDefault("BULLETIN_COMPUTE_WORKERS", 8)
	v.SetDefault("BULLETIN_CACHE_ENABLED", true)
	v.SetDefault("BULLETIN_CACHE_TTL", "10m")
	v.SetDefault("BULLETIN_CSV_SEPARATOR", ";")

	v.SetDefault("ENABLE_BULLETIN_JOBS", true)
	v.SetDefault("BULLETIN_JOBS_STORAGE_DIR", "./bulletins")
	v.SetDefault("BULLETIN_JOBS_SIGNED_URL_SECRET", "dev_bulletins_secret")
	v.SetDefault("BULLETIN_JOBS_SIGNED_URL_TTL", "24h")
	v.SetDefault("BULLETIN_JOBS_RESULT_TTL", "72h")
	v.SetDefault("BULLETIN_JOBS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("BULLETIN_JOBS_WORKER_CONCURRENCY", 1)
	v.SetDefault("BULLETIN_JOBS_WORKER_RETRIES", 2)
	v.SetDefault("BULLETIN_JOBS_STUDENT_WORKERS", 4)
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

// splitKeepEmpty splits a positional list where blanks mean "not provided".
func splitKeepEmpty(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}
