package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	DefaultLocation       string
	ReportCacheTTLSeconds int
	BackupDir             string
	BackupIntervalMinutes int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, err := strconv.Atoi(getEnv("REPORT_CACHE_TTL_SECONDS", "30"))
	if err != nil || ttl < 1 {
		ttl = 30
	}
	backupInterval, err := strconv.Atoi(getEnv("BACKUP_INTERVAL_MINUTES", "60"))
	if err != nil || backupInterval < 1 {
		backupInterval = 60
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		DefaultLocation:       getEnv("DEFAULT_LOCATION", "STORE"),
		ReportCacheTTLSeconds: ttl,
		BackupDir:             os.Getenv("BACKUP_DIR"),
		BackupIntervalMinutes: backupInterval,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
