package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr           string
	RequestTimeout     time.Duration
	LogLevel           string
	LogFormat          string
	UserAgent          string
	DefaultPageSize    int
	DebounceDelay      time.Duration
	USDAEndpoint       string
	USDAAPIKey         string
	OFFSearchEndpoint  string
	OFFProductEndpoint string
	EdamamEndpoint     string
	EdamamAppID        string
	EdamamAppKey       string
	RedisURL           string
	HistoryMaxEntries  int
	ProviderRatePerSec float64
	ProviderRateBurst  int
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		RequestTimeout:     time.Duration(getEnvInt("SEARCH_TIMEOUT_SECONDS", 10)) * time.Second,
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent:          getEnv("SEARCH_USER_AGENT", "foodlog-search/1.0"),
		DefaultPageSize:    getEnvInt("SEARCH_PAGE_SIZE", 25),
		DebounceDelay:      time.Duration(getEnvInt("SEARCH_DEBOUNCE_MS", 500)) * time.Millisecond,
		USDAEndpoint:       getEnv("SEARCH_PROVIDER_USDA_ENDPOINT", "https://api.nal.usda.gov/fdc/v1/foods/search"),
		USDAAPIKey:         strings.TrimSpace(os.Getenv("USDA_API_KEY")),
		OFFSearchEndpoint:  getEnv("SEARCH_PROVIDER_OFF_ENDPOINT", "https://world.openfoodfacts.org/cgi/search.pl"),
		OFFProductEndpoint: getEnv("SEARCH_PROVIDER_OFF_PRODUCT_ENDPOINT", "https://world.openfoodfacts.org/api/v2/product"),
		EdamamEndpoint:     getEnv("SEARCH_PROVIDER_EDAMAM_ENDPOINT", "https://api.edamam.com/api/food-database/v2/parser"),
		EdamamAppID:        strings.TrimSpace(os.Getenv("EDAMAM_APP_ID")),
		EdamamAppKey:       strings.TrimSpace(os.Getenv("EDAMAM_APP_KEY")),
		RedisURL:           getEnv("REDIS_URL", ""),
		HistoryMaxEntries:  getEnvInt("HISTORY_MAX_ENTRIES", 200),
		ProviderRatePerSec: getEnvFloat("SEARCH_PROVIDER_RATE_PER_SEC", 4),
		ProviderRateBurst:  getEnvInt("SEARCH_PROVIDER_RATE_BURST", 8),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
