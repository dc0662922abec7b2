package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port                 string
	DatabaseURL          string
	NoShowGrace          time.Duration
	NoShowInterval       time.Duration
	NoShowBatchSize      int
	RateLimitPerMinute   int
	RateLimitBurst       int
	StationRatePerMinute int
	StationRateBurst     int
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3004"
	}

	return Config{
		Port:                 port,
		DatabaseURL:          os.Getenv("DB_DSN"),
		NoShowGrace:          readDurationSeconds("NO_SHOW_GRACE_SECONDS", 300),
		NoShowInterval:       readDurationSeconds("NO_SHOW_SCAN_INTERVAL_SECONDS", 30),
		NoShowBatchSize:      readInt("NO_SHOW_BATCH_SIZE", 100),
		RateLimitPerMinute:   readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:       readInt("RATE_LIMIT_BURST", 30),
		StationRatePerMinute: readInt("STATION_RATE_LIMIT_PER_MIN", 300),
		StationRateBurst:     readInt("STATION_RATE_LIMIT_BURST", 60),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
