package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// App
	Env      string
	LogLevel string

	// Server
	APIPort       string
	BackendAPIKey string // API key for the status endpoints (empty = no auth, dev mode)
	FrontendURL   string // Allowed CORS origin (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Local files
	PDFsPath   string
	TXTsPath   string
	AudiosPath string

	// LLM (text normalization)
	LLMProvider          string // "openai" or "gemini"
	OpenAIKey            string
	LLMModel             string
	GeminiKey            string
	GeminiModel          string
	LLMRequestsPerSecond float64
	NormalizeConcurrency int

	// Google Cloud
	GCSBucketName     string
	GCloudProjectID   string
	GoogleAccessToken string // Static bearer token override, skips ADC lookup
	TTSURL            string
	TTSProgressURL    string
	TTSPollInterval   time.Duration
	TTSMaxWait        time.Duration
	TTSDeleteRemote   bool

	// Worker
	MaxConcurrentJobs int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:                  getEnv("APP_ENV", "development"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		APIPort:              getEnv("API_PORT", "8080"),
		BackendAPIKey:        getEnv("BACKEND_API_KEY", ""),
		FrontendURL:          getEnv("FRONTEND_URL", ""),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		RedisURL:             getEnv("REDIS_URL", "redis://localhost:6379"),
		PDFsPath:             getEnv("PDFS_PATH", "files/pdfs"),
		TXTsPath:             getEnv("TXTS_PATH", "files/txts"),
		AudiosPath:           getEnv("AUDIOS_PATH", "files/audios"),
		LLMProvider:          getEnv("LLM_PROVIDER", "openai"),
		OpenAIKey:            getEnv("OPENAI_API_KEY", ""),
		LLMModel:             getEnv("LLM_MODEL", "gpt-4.1"),
		GeminiKey:            getEnv("GEMINI_API_KEY", ""),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		LLMRequestsPerSecond: getEnvFloat("LLM_REQUESTS_PER_SECOND", 2),
		NormalizeConcurrency: getEnvInt("NORMALIZE_CONCURRENCY", 4),
		GCSBucketName:        getEnv("GCS_BUCKET_NAME", ""),
		GCloudProjectID:      getEnv("GCLOUD_PROJECT_ID", ""),
		GoogleAccessToken:    getEnv("GOOGLE_ACCESS_TOKEN", ""),
		TTSURL:               getEnv("GCLOUD_TTS_URL", ""),
		TTSProgressURL:       getEnv("GCLOUD_TTS_PROGRESS_CHECK_URL", ""),
		// Interval is configured in milliseconds, max wait in seconds
		TTSPollInterval:   time.Duration(getEnvInt("TTS_PROGRESS_REPORT_INTERVAL", 5000)) * time.Millisecond,
		TTSMaxWait:        time.Duration(getEnvInt("TTS_MAX_WAIT", 2*60*60)) * time.Second,
		TTSDeleteRemote:   getEnvBool("TTS_DELETE_REMOTE_AUDIO", false),
		MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", 2),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadSynthesis loads only what a direct synthesis run needs. Used by the
// CLI when no database, queue or LLM is involved.
func LoadSynthesis() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:               getEnv("APP_ENV", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		AudiosPath:        getEnv("AUDIOS_PATH", "files/audios"),
		GCSBucketName:     getEnv("GCS_BUCKET_NAME", ""),
		GCloudProjectID:   getEnv("GCLOUD_PROJECT_ID", ""),
		GoogleAccessToken: getEnv("GOOGLE_ACCESS_TOKEN", ""),
		TTSURL:            getEnv("GCLOUD_TTS_URL", ""),
		TTSProgressURL:    getEnv("GCLOUD_TTS_PROGRESS_CHECK_URL", ""),
		TTSPollInterval:   time.Duration(getEnvInt("TTS_PROGRESS_REPORT_INTERVAL", 5000)) * time.Millisecond,
		TTSMaxWait:        time.Duration(getEnvInt("TTS_MAX_WAIT", 2*60*60)) * time.Second,
		TTSDeleteRemote:   getEnvBool("TTS_DELETE_REMOTE_AUDIO", false),
	}

	if err := cfg.validateSynthesis(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDatabase loads only what schema migrations need.
func LoadDatabase() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:         getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	switch c.LLMProvider {
	case "openai":
		if c.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	case "gemini":
		if c.GeminiKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q (allowed: openai, gemini)", c.LLMProvider)
	}

	if c.NormalizeConcurrency < 1 {
		return fmt.Errorf("NORMALIZE_CONCURRENCY must be at least 1")
	}

	return c.validateSynthesis()
}

func (c *Config) validateSynthesis() error {
	if c.GCSBucketName == "" {
		return fmt.Errorf("GCS_BUCKET_NAME is required")
	}

	if c.GCloudProjectID == "" {
		return fmt.Errorf("GCLOUD_PROJECT_ID is required")
	}

	if c.TTSURL == "" || c.TTSProgressURL == "" {
		return fmt.Errorf("GCLOUD_TTS_URL and GCLOUD_TTS_PROGRESS_CHECK_URL are required")
	}

	if c.TTSPollInterval <= 0 {
		return fmt.Errorf("TTS_PROGRESS_REPORT_INTERVAL must be positive")
	}

	return nil
}

// IsDevelopment reports whether the app runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}
