package postgres

import (
	"fmt"
	"os"
	"strconv"
)

type PostgresConfig struct {
	// URL wins over the discrete fields when set.
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxOpenConns int
	MaxIdleConns int
}

func NewPostgresConfig(fallbackDBName string) *PostgresConfig {
	var postgres PostgresConfig

	postgres.URL = getEnv("DATABASE_URL", "")
	postgres.Host = getEnv("POSTGRES_HOSTS", "localhost")
	postgres.Port = getEnv("POSTGRES_PORT", "5452")
	postgres.User = getEnv("POSTGRES_USER", "user")
	postgres.Password = getEnv("POSTGRES_PASSWORD", "pass")
	postgres.DBName = getEnv("POSTGRES_DATABASE", fallbackDBName)
	postgres.SSLMode = getEnv("POSTGRES_SSLMODE", "disable")
	postgres.MaxOpenConns = getEnvInt("POSTGRES_MAX_OPEN_CONNS", 20)
	postgres.MaxIdleConns = getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5)

	return &postgres
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func GetConnString(options *PostgresConfig) string {
	if options.URL != "" {
		return options.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", options.Host, options.Port, options.User, options.Password, options.DBName, options.SSLMode)
}

// GetMigrateURL renders the config as a URL, the only form golang-migrate accepts.
func GetMigrateURL(options *PostgresConfig) string {
	if options.URL != "" {
		return options.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", options.User, options.Password, options.Host, options.Port, options.DBName, options.SSLMode)
}
