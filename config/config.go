package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/marmotkit/Gold/storage"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	ServerPort int

	BackendURL     string
	BackendTimeout time.Duration
	DebounceWindow time.Duration

	// DatabaseURL необязателен; без него черновики не сохраняются.
	DatabaseURL   string
	DraftInterval time.Duration

	R2 storage.CloudflareR2UploaderConfig

	LogLevel           string
	LogFormat          string
	CORSAllowedOrigins []string
}

// DraftsEnabled сообщает, настроена ли база для черновиков.
func (c *Config) DraftsEnabled() bool {
	return c.DatabaseURL != ""
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	backendURL := os.Getenv("BACKEND_URL")
	if backendURL == "" {
		return nil, fmt.Errorf("BACKEND_URL environment variable is not set")
	}
	if u, err := url.Parse(backendURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("BACKEND_URL must be an absolute http(s) URL, got %q", backendURL)
	}

	backendTimeout, err := durationEnv("BACKEND_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	debounce, err := durationEnv("DEBOUNCE_WINDOW", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	draftInterval, err := durationEnv("DRAFT_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	logFormat := strings.ToLower(envOr("LOG_FORMAT", "json"))
	if logFormat != "json" && logFormat != "text" {
		return nil, fmt.Errorf("LOG_FORMAT must be json or text, got %q", logFormat)
	}

	cfg := &Config{
		ServerPort:     port,
		BackendURL:     backendURL,
		BackendTimeout: backendTimeout,
		DebounceWindow: debounce,
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DraftInterval:  draftInterval,
		R2: storage.CloudflareR2UploaderConfig{
			AccountID:       os.Getenv("R2_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
			BucketName:      os.Getenv("R2_BUCKET_NAME"),
			PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
		},
		LogLevel:           envOr("LOG_LEVEL", "info"),
		LogFormat:          logFormat,
		CORSAllowedOrigins: listEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}

func listEnv(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
