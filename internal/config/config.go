package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProfileContainer = "container"
	ProfileLocal     = "local"
)

// Config is assembled from the environment once at startup and passed down
// explicitly; nothing reads os.Getenv after Load returns.
type Config struct {
	Profile  string
	HTTPAddr string

	// Session lifecycle.
	SessionRegistryPath string
	SessionTTL          time.Duration
	SweepInterval       time.Duration
	SigningSecret       string
	TokenIssuer         string
	TokenAudience       string

	// Uploads.
	UploadDir        string
	MaxUploadBytes   int64
	AllowedFileTypes []string

	// LLM backend.
	OllamaBaseURL     string
	OllamaModel       string
	OllamaTemperature float64
	OllamaMaxTokens   int
	OllamaTimeout     time.Duration

	// Ephemeral database. Empty means in-memory SQLite.
	DatabaseURL string

	// Rate limiting. Empty RedisAddr means the local in-process limiter.
	RedisAddr        string
	APIRateLimitRPM  int
	AuthRateLimitRPM int

	CORSOrigins []string

	// Observability.
	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracesEnabled         bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration
	EnableOTelHTTP            bool

	LogFormat string
	LogLevel  string

	ShutdownTimeout          time.Duration
	ShutdownHTTPDrainTimeout time.Duration
}

func (c *Config) SessionTTLHours() int {
	return int(c.SessionTTL / time.Hour)
}

// Load reads configuration from the environment, applying an optional .env
// file first (existing environment wins). The outcome is recorded as a
// metric, keyed by profile and error class.
func Load(ctx context.Context) (*Config, error) {
	cfg, err := load()
	profile := ""
	if cfg != nil {
		profile = cfg.Profile
	}
	if err != nil {
		recordConfigLoadEvent(ctx, profile, "error", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigLoadEvent(ctx, profile, "success", "none")
	return cfg, nil
}

func load() (*Config, error) {
	if err := loadEnvFile(envString("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{
		Profile:             normalizeProfile(envString("DEPLOYMENT_PROFILE", ProfileLocal)),
		HTTPAddr:            envString("HTTP_ADDR", ":8000"),
		SessionRegistryPath: envString("SESSION_REGISTRY_PATH", "sessions.json"),
		SigningSecret:       envString("SECRET_KEY", ""),
		TokenIssuer:         envString("TOKEN_ISSUER", "legal-research-sandbox"),
		TokenAudience:       envString("TOKEN_AUDIENCE", "sandbox-api"),
		UploadDir:           envString("UPLOAD_DIR", "/tmp/sandbox/uploads"),
		OllamaBaseURL:       envString("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:         envString("OLLAMA_MODEL", "llama3:8b"),
		DatabaseURL:         envString("DATABASE_URL", ""),
		RedisAddr:           envString("REDIS_ADDR", ""),

		OTELServiceName:          envString("OTEL_SERVICE_NAME", "legal-research-sandbox"),
		OTELEnvironment:          envString("OTEL_ENVIRONMENT", "dev"),
		OTELExporterOTLPEndpoint: envString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		LogFormat: envString("LOG_FORMAT", "text"),
		LogLevel:  envString("LOG_LEVEL", "info"),
	}

	var err error
	parse := func(name string, fn func() error) {
		if err != nil {
			return
		}
		if ferr := fn(); ferr != nil {
			err = fmt.Errorf("parse %s: %w", name, ferr)
		}
	}

	parse("SESSION_TTL", func() (e error) { cfg.SessionTTL, e = envDuration("SESSION_TTL", 72*time.Hour); return })
	parse("SESSION_SWEEP_INTERVAL", func() (e error) {
		cfg.SweepInterval, e = envDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute)
		return
	})
	parse("MAX_FILE_SIZE_MB", func() (e error) {
		mb, e := envInt("MAX_FILE_SIZE_MB", 100)
		cfg.MaxUploadBytes = int64(mb) << 20
		return e
	})
	parse("OLLAMA_TEMPERATURE", func() (e error) {
		cfg.OllamaTemperature, e = envFloat("OLLAMA_TEMPERATURE", 0.7)
		return
	})
	parse("OLLAMA_MAX_TOKENS", func() (e error) { cfg.OllamaMaxTokens, e = envInt("OLLAMA_MAX_TOKENS", 4096); return })
	parse("OLLAMA_TIMEOUT", func() (e error) { cfg.OllamaTimeout, e = envDuration("OLLAMA_TIMEOUT", 30*time.Second); return })
	parse("API_RATE_LIMIT_RPM", func() (e error) { cfg.APIRateLimitRPM, e = envInt("API_RATE_LIMIT_RPM", 300); return })
	parse("AUTH_RATE_LIMIT_RPM", func() (e error) { cfg.AuthRateLimitRPM, e = envInt("AUTH_RATE_LIMIT_RPM", 30); return })
	parse("OTEL_METRICS_ENABLED", func() (e error) { cfg.OTELMetricsEnabled, e = envBool("OTEL_METRICS_ENABLED", false); return })
	parse("OTEL_TRACES_ENABLED", func() (e error) { cfg.OTELTracesEnabled, e = envBool("OTEL_TRACES_ENABLED", false); return })
	parse("OTEL_LOGS_ENABLED", func() (e error) { cfg.OTELLogsEnabled, e = envBool("OTEL_LOGS_ENABLED", false); return })
	parse("OTEL_EXPORTER_OTLP_INSECURE", func() (e error) {
		cfg.OTELExporterOTLPInsecure, e = envBool("OTEL_EXPORTER_OTLP_INSECURE", true)
		return
	})
	parse("OTEL_METRICS_EXPORT_INTERVAL", func() (e error) {
		cfg.OTELMetricsExportInterval, e = envDuration("OTEL_METRICS_EXPORT_INTERVAL", 15*time.Second)
		return
	})
	parse("ENABLE_OTEL_HTTP", func() (e error) { cfg.EnableOTelHTTP, e = envBool("ENABLE_OTEL_HTTP", false); return })
	parse("SHUTDOWN_TIMEOUT", func() (e error) { cfg.ShutdownTimeout, e = envDuration("SHUTDOWN_TIMEOUT", 15*time.Second); return })
	parse("SHUTDOWN_HTTP_DRAIN_TIMEOUT", func() (e error) {
		cfg.ShutdownHTTPDrainTimeout, e = envDuration("SHUTDOWN_HTTP_DRAIN_TIMEOUT", 5*time.Second)
		return
	})
	if err != nil {
		return nil, err
	}

	cfg.AllowedFileTypes = envList("ALLOWED_FILE_TYPES", []string{".pdf", ".txt", ".docx"})
	cfg.CORSOrigins = envList("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:8000"})

	if cfg.SigningSecret == "" && cfg.Profile == ProfileLocal {
		cfg.SigningSecret = "local-dev-secret-do-not-use-in-container-0000"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var problems []string
	if c.Profile != ProfileContainer && c.Profile != ProfileLocal {
		problems = append(problems, fmt.Sprintf("DEPLOYMENT_PROFILE must be %q or %q", ProfileContainer, ProfileLocal))
	}
	if len(c.SigningSecret) < 32 {
		problems = append(problems, "SECRET_KEY must be at least 32 characters")
	}
	if c.SessionTTL <= 0 {
		problems = append(problems, "SESSION_TTL must be positive")
	}
	if c.SweepInterval <= 0 {
		problems = append(problems, "SESSION_SWEEP_INTERVAL must be positive")
	}
	if c.Profile == ProfileContainer && c.SessionRegistryPath == "" {
		problems = append(problems, "SESSION_REGISTRY_PATH is required in the container profile")
	}
	if c.MaxUploadBytes <= 0 {
		problems = append(problems, "MAX_FILE_SIZE_MB must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("validate config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func normalizeProfile(profile string) string {
	return strings.ToLower(strings.TrimSpace(profile))
}

// loadEnvFile applies KEY=VALUE lines from path without overriding variables
// already present in the environment. A missing file is not an error.
func loadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open env file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, value)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read env file: %w", err)
	}
	return nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	return strconv.Atoi(strings.TrimSpace(v))
}

func envFloat(key string, fallback float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(strings.TrimSpace(v), 64)
}

func envBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	return strconv.ParseBool(strings.TrimSpace(v))
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.New("duration must not be negative")
	}
	return d, nil
}

func envList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
