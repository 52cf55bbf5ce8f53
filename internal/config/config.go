package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every runtime knob for the API process.
type Config struct {
	HTTPAddr       string
	DatabaseDSN    string
	AuthSecret     string
	TokenTTL       time.Duration
	CookieMaxAge   time.Duration
	CEPBaseURL     string
	RequestTimeout time.Duration
	RateBurst      int
	RatePerSecond  int
}

// Load reads configuration from the environment, optionally preloading a .env file.
func Load() Config {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	return Config{
		HTTPAddr:       getenv("VACENF_HTTP_ADDR", ":3333"),
		DatabaseDSN:    os.Getenv("VACENF_PG_DSN"),
		AuthSecret:     os.Getenv("VACENF_AUTH_SECRET"),
		TokenTTL:       getenvDuration("VACENF_TOKEN_TTL", 12*time.Hour),
		CookieMaxAge:   getenvDuration("VACENF_COOKIE_MAX_AGE", 30*24*time.Hour),
		CEPBaseURL:     getenv("VACENF_CEP_BASE_URL", "https://viacep.com.br/ws"),
		RequestTimeout: getenvDuration("VACENF_REQUEST_TIMEOUT", 10*time.Second),
		RateBurst:      getenvInt("VACENF_RATE_BURST", 20),
		RatePerSecond:  getenvInt("VACENF_RATE_PER_SECOND", 10),
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}
