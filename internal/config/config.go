package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppName  string
	AppEnv   string
	AppPort  string
	LogLevel string

	DB       DBConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Worker   WorkerConfig
}

type DBConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host          string
	Port          string
	RedisPassword string
	RedisDB       string
	TTL           time.Duration
}

type RabbitMQConfig struct {
	URL string
}

type WorkerConfig struct {
	Count       int
	MetricsAddr string
}

func Load() *Config {
	return &Config{
		AppName:  getEnv("APP_NAME", "user-directory"),
		AppEnv:   getEnv("APP_ENV", "development"),
		AppPort:  getEnv("APP_PORT", "8081"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DB: DBConfig{
			URL:      os.Getenv("DATABASE_URL"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "directory"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},

		Redis: RedisConfig{
			Host:          os.Getenv("REDIS_HOST"),
			Port:          getEnv("REDIS_PORT", "6379"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       getEnv("REDIS_DB", "0"),
			TTL:           getDuration("CACHE_TTL", 5*time.Minute),
		},

		RabbitMQ: RabbitMQConfig{
			URL: os.Getenv("RABBITMQ_URL"),
		},

		Worker: WorkerConfig{
			Count:       getInt("WORKER_COUNT", 3),
			MetricsAddr: getEnv("WORKER_METRICS_ADDR", ":8088"),
		},
	}
}

// IsProduction reports whether APP_ENV selects production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// DSN returns DATABASE_URL when set, otherwise a keyword/value DSN built from the DB_* parts.
func (c *DBConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// Target describes the database without credentials, for logs.
func (c *DBConfig) Target() string {
	if c.URL != "" {
		return "DATABASE_URL"
	}
	return fmt.Sprintf("%s:%s/%s", c.Host, c.Port, c.Name)
}

// Enabled reports whether a Redis host was configured.
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
