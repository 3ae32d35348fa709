package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config 应用配置
type Config struct {
	Env            string
	AppSecret      string
	DBDriver       string
	DatabaseURL    string
	RedisURL       string
	IdentityExpiry time.Duration
	ViewIdleTTL    time.Duration
	StoreTimeout   time.Duration
	Port           string
	LogFile        string
}

const defaultSecret = "your-secret-key-change-in-production"

// Load 加载配置
func Load() *Config {
	expiryHours, _ := strconv.Atoi(getEnv("IDENTITY_EXPIRY_HOURS", "720"))
	idleMinutes, _ := strconv.Atoi(getEnv("VIEW_IDLE_MINUTES", "10"))
	storeTimeout, _ := strconv.Atoi(getEnv("STORE_TIMEOUT_SECONDS", "10"))

	driver := getEnv("DB_DRIVER", "postgres")
	dbURL := getEnv("SQLITE_PATH", "cinelist.db")
	if driver != "sqlite" {
		dbUser := getEnv("DB_USER", "postgres")
		dbPass := getEnv("DB_PASSWORD", "postgres")
		dbHost := getEnv("DB_HOST", "localhost")
		dbPort := getEnv("DB_PORT", "5432")
		dbName := getEnv("DB_NAME", "cinelist")
		dbSSL := getEnv("DB_SSLMODE", "disable")

		dbURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			dbUser, dbPass, dbHost, dbPort, dbName, dbSSL)
	}

	appSecret := getEnv("APP_SECRET", defaultSecret)
	if getEnv("APP_ENV", "development") == "production" && appSecret == defaultSecret {
		fmt.Println("【严重警告】生产环境正在使用默认密钥！请立即设置 APP_SECRET 环境变量。")
	}

	if idleMinutes <= 0 {
		idleMinutes = 10
	}
	if storeTimeout <= 0 {
		storeTimeout = 10
	}

	return &Config{
		Env:            getEnv("APP_ENV", "development"),
		AppSecret:      appSecret,
		DBDriver:       driver,
		DatabaseURL:    dbURL,
		RedisURL:       getEnv("REDIS_URL", ""),
		IdentityExpiry: time.Duration(expiryHours) * time.Hour,
		ViewIdleTTL:    time.Duration(idleMinutes) * time.Minute,
		StoreTimeout:   time.Duration(storeTimeout) * time.Second,
		Port:           getEnv("PORT", "5005"),
		LogFile:        getEnv("LOG_FILE", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
