package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	Port           string
	AdminPort      string
	StoreDriver    string
	DBPath         string
	SeedFile       string
	PublicURL      string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	GinMode        string
	LogLevel       string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first; real environment variables win.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("failed to read .env file")
	}
	return FromEnv()
}

// FromEnv reads the configuration from the environment only.
func FromEnv() *Config {
	return &Config{
		Port:           envOrDefault("PORT", "8080"),
		AdminPort:      envOrDefault("ADMIN_PORT", "9090"),
		StoreDriver:    envOrDefault("STORE_DRIVER", "bbolt"),
		DBPath:         envOrDefault("DB_PATH", "/data/timepick.db"),
		SeedFile:       os.Getenv("SEED_FILE"),
		PublicURL:      os.Getenv("PUBLIC_URL"),
		CORSOrigins:    envList("CORS_ORIGINS", []string{"*"}),
		RateLimitRPS:   envOrDefaultFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: envOrDefaultInt("RATE_LIMIT_BURST", 20),
		GinMode:        envOrDefault("GIN_MODE", "release"),
		LogLevel:       envOrDefault("LOG_LEVEL", "info"),
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// envList splits a comma separated variable, dropping empty items.
func envList(key string, fallback []string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
