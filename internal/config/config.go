package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string

	HTTPAddr string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ExchangeBaseURL     string
	CommodityBaseURL    string
	ExchangeCacheTTLSec int

	GoCardlessBaseURL string
	EtherscanBaseURL  string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "finanze"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "sqlite"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "finanze.db"),
		DBUser:            getenv("DATABASE_USER", "finanze"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 2),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 8),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
		RedisDB:       getenvInt("REDIS_DB", 0),

		ExchangeBaseURL:     getenv("EXCHANGE_BASE_URL", "https://cdn.jsdelivr.net/npm/@fawazahmed0/currency-api@latest/v1"),
		CommodityBaseURL:    getenv("COMMODITY_BASE_URL", "https://api.gold-api.com"),
		ExchangeCacheTTLSec: getenvInt("EXCHANGE_CACHE_TTL", 7200),

		GoCardlessBaseURL: getenv("GOCARDLESS_BASE_URL", "https://bankaccountdata.gocardless.com"),
		EtherscanBaseURL:  getenv("ETHERSCAN_BASE_URL", "https://api.etherscan.io"),
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
