package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	StoreID               string
	TerminalID            string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	DiscountPercent       float64
	TaxRatePercent        float64
	QRISWindowSeconds     int
	PopularTTLSeconds     int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	qrisWindow, err := strconv.Atoi(getEnv("QRIS_WINDOW_SECONDS", "300"))
	if err != nil || qrisWindow < 1 {
		qrisWindow = 300
	}
	popularTTL, err := strconv.Atoi(getEnv("POPULAR_TTL_SECONDS", "60"))
	if err != nil || popularTTL < 1 {
		popularTTL = 60
	}
	discount, err := strconv.ParseFloat(getEnv("DISCOUNT_PERCENT", "0"), 64)
	if err != nil || discount < 0 || discount > 100 {
		discount = 0
	}
	taxRate, err := strconv.ParseFloat(getEnv("TAX_RATE_PERCENT", "0"), 64)
	if err != nil || taxRate < 0 || taxRate > 100 {
		taxRate = 0
	}

	cfg := Config{
		StoreID:               getEnv("DEFAULT_STORE_ID", "main-store"),
		TerminalID:            getEnv("TERMINAL_ID", "kasir-1"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		DiscountPercent:       discount,
		TaxRatePercent:        taxRate,
		QRISWindowSeconds:     qrisWindow,
		PopularTTLSeconds:     popularTTL,
	}

	return cfg
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
