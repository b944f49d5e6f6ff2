package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "tamaco-dev-secret"

type Config struct {
	AppEnv   string
	APIPort  string
	LogLevel string
	JWTKey   []byte
	JWTExp   time.Duration

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBConnStr  string

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuditQueueName string
	// EmbeddedAuditWorker runs the audit worker inside the API process; disable it when cmd/worker runs separately.
	EmbeddedAuditWorker bool
	StatsCacheKey       string
	StatsCacheTTL       time.Duration

	CORSOrigins    []string
	RequestTimeout time.Duration

	SeedAdminLogin    string
	SeedAdminPassword string
}

// IsProduction reports whether error details must be hidden from clients.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		APIPort:  getEnv("API_PORT", "3000"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		JWTKey:   []byte(getEnv("JWT_SECRET", defaultJWTSecret)),
		JWTExp:   time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 24)) * time.Hour,

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "tamaco"),
		DBSslMode:  getEnv("DB_SSLMODE", "disable"),

		DBMaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
		DBMaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBConnMaxLifetime: time.Duration(getEnvAsInt("DB_CONN_MAX_LIFETIME_MINUTES", 5)) * time.Minute,

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		AuditQueueName:      getEnv("AUDIT_QUEUE_NAME", "tamaco:audit"),
		EmbeddedAuditWorker: getEnvAsBool("AUDIT_WORKER_EMBEDDED", true),
		StatsCacheKey:       getEnv("STATS_CACHE_KEY", "tamaco:tasks:stats"),
		StatsCacheTTL:       time.Duration(getEnvAsInt("STATS_CACHE_TTL_SECONDS", 60)) * time.Second,

		CORSOrigins:    getEnvAsList("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		RequestTimeout: time.Duration(getEnvAsInt("REQUEST_TIMEOUT_SECONDS", 60)) * time.Second,

		SeedAdminLogin:    getEnv("ADMIN_LOGIN", "admin"),
		SeedAdminPassword: getEnv("ADMIN_PASSWORD", "admin123"),
	}

	cfg.DBConnStr = getEnv("DATABASE_URL", "")
	if cfg.DBConnStr == "" {
		cfg.DBConnStr = "host=" + cfg.DBHost +
			" port=" + cfg.DBPort +
			" user=" + cfg.DBUser +
			" password=" + cfg.DBPassword +
			" dbname=" + cfg.DBName +
			" sslmode=" + cfg.DBSslMode
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.IsProduction() && string(c.JWTKey) == defaultJWTSecret {
		return errors.New("config: JWT_SECRET must be set in production")
	}
	if c.JWTExp <= 0 {
		return errors.New("config: JWT_EXPIRATION_HOURS must be positive")
	}
	if c.DBMaxOpenConns < 1 {
		return errors.New("config: DB_MAX_OPEN_CONNS must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(strings.TrimSpace(getEnv(key, ""))); err == nil {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
