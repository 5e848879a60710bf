package config

import (
	"os"
	"strconv"
)

type Config struct {
	APIPort  string
	LogLevel string

	StoragePath    string
	MaxUploadBytes int64

	MinTextLayerChars      int
	LowQualityOCRChars     int
	OCRTimeoutSeconds      int
	OCRLanguage            string
	PreprocessMaxDimension int
	PDFRenderDPI           int
	GrammarFile            string

	// PostgresDSN and NATSURL are optional; empty disables the audit log and analysis events.
	PostgresDSN string

	NATSURL     string
	NATSSubject string

	APIRateLimitRPS       float64
	APIRateLimitBurst     int
	APIMaxInFlight        int
	APIBackpressureWaitMS int

	OCRBreakerEnabled            bool
	OCRBreakerMinRequests        int
	OCRBreakerFailureRatio       float64
	OCRBreakerOpenTimeoutSeconds int
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		StoragePath:    mustEnv("STORAGE_PATH", "./data/scratch"),
		MaxUploadBytes: int64(mustEnvInt("MAX_UPLOAD_BYTES", 10<<20)),

		MinTextLayerChars:      mustEnvInt("MIN_TEXT_LAYER_CHARS", 50),
		LowQualityOCRChars:     mustEnvInt("LOW_QUALITY_OCR_CHARS", 400),
		OCRTimeoutSeconds:      mustEnvInt("OCR_TIMEOUT_SECONDS", 8),
		OCRLanguage:            mustEnv("OCR_LANGUAGE", "eng"),
		PreprocessMaxDimension: mustEnvInt("PREPROCESS_MAX_DIMENSION", 3000),
		PDFRenderDPI:           mustEnvInt("PDF_RENDER_DPI", 300),
		GrammarFile:            mustEnv("GRAMMAR_FILE", ""),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "reports.analyzed"),

		APIRateLimitRPS:       mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst:     mustEnvInt("API_RATE_LIMIT_BURST", 10),
		APIMaxInFlight:        mustEnvInt("API_MAX_IN_FLIGHT", 4),
		APIBackpressureWaitMS: mustEnvInt("API_BACKPRESSURE_WAIT_MS", 250),

		OCRBreakerEnabled:            mustEnvBool("OCR_BREAKER_ENABLED", true),
		OCRBreakerMinRequests:        mustEnvInt("OCR_BREAKER_MIN_REQUESTS", 5),
		OCRBreakerFailureRatio:       mustEnvFloat("OCR_BREAKER_FAILURE_RATIO", 0.6),
		OCRBreakerOpenTimeoutSeconds: mustEnvInt("OCR_BREAKER_OPEN_TIMEOUT_SECONDS", 30),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
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

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
