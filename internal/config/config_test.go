package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

// clearSandboxEnv points ENV_FILE at an empty temp file so a developer's real
// .env cannot leak into the test.
func clearSandboxEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	for _, key := range []string{
		"DEPLOYMENT_PROFILE", "HTTP_ADDR", "SECRET_KEY", "SESSION_REGISTRY_PATH",
		"SESSION_TTL", "SESSION_SWEEP_INTERVAL", "MAX_FILE_SIZE_MB",
		"ALLOWED_FILE_TYPES", "ALLOWED_ORIGINS", "DATABASE_URL", "REDIS_ADDR",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaultsLocalProfile(t *testing.T) {
	clearSandboxEnv(t)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Profile != ProfileLocal {
		t.Fatalf("expected local profile by default, got %q", cfg.Profile)
	}
	if cfg.HTTPAddr != ":8000" {
		t.Fatalf("unexpected addr %q", cfg.HTTPAddr)
	}
	if cfg.SessionTTL != 72*time.Hour {
		t.Fatalf("unexpected session ttl %v", cfg.SessionTTL)
	}
	if cfg.SessionTTLHours() != 72 {
		t.Fatalf("unexpected ttl hours %d", cfg.SessionTTLHours())
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Fatalf("unexpected sweep interval %v", cfg.SweepInterval)
	}
	if cfg.MaxUploadBytes != 100<<20 {
		t.Fatalf("unexpected upload cap %d", cfg.MaxUploadBytes)
	}
	if len(cfg.AllowedFileTypes) != 3 {
		t.Fatalf("unexpected allowed types %v", cfg.AllowedFileTypes)
	}
	// The local profile gets a development signing secret so the server can
	// boot without configuration.
	if len(cfg.SigningSecret) < 32 {
		t.Fatalf("expected development secret, got %q", cfg.SigningSecret)
	}
}

func TestLoadContainerProfileRequiresSecret(t *testing.T) {
	clearSandboxEnv(t)
	t.Setenv("DEPLOYMENT_PROFILE", "container")

	if _, err := Load(context.Background()); err == nil {
		t.Fatal("expected container profile without SECRET_KEY to fail validation")
	}
}

func TestLoadContainerProfileWithSecret(t *testing.T) {
	clearSandboxEnv(t)
	t.Setenv("DEPLOYMENT_PROFILE", "Container")
	t.Setenv("SECRET_KEY", strings.Repeat("s", 48))
	t.Setenv("SESSION_TTL", "24h")
	t.Setenv("SESSION_SWEEP_INTERVAL", "1m")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Profile != ProfileContainer {
		t.Fatalf("profile should be normalized, got %q", cfg.Profile)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("unexpected session ttl %v", cfg.SessionTTL)
	}
	if cfg.SweepInterval != time.Minute {
		t.Fatalf("unexpected sweep interval %v", cfg.SweepInterval)
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	clearSandboxEnv(t)
	t.Setenv("SESSION_TTL", "three days")

	_, err := Load(context.Background())
	if err == nil {
		t.Fatal("expected parse error for malformed SESSION_TTL")
	}
	if got := classifyConfigLoadError(err); got != "parse" {
		t.Fatalf("expected parse error class, got %q (%v)", got, err)
	}
}

func TestLoadRejectsUnknownProfile(t *testing.T) {
	clearSandboxEnv(t)
	t.Setenv("DEPLOYMENT_PROFILE", "staging")

	_, err := Load(context.Background())
	if err == nil {
		t.Fatal("expected unknown profile to fail validation")
	}
	if got := classifyConfigLoadError(err); got != "validation" {
		t.Fatalf("expected validation error class, got %q (%v)", got, err)
	}
}

func TestLoadEnvFilePreservesExistingEnvironment(t *testing.T) {
	clearSandboxEnv(t)
	file := filepath.Join(t.TempDir(), "test.env")
	content := "# sandbox overrides\nHTTP_ADDR=:9999\nSESSION_SWEEP_INTERVAL=\"90s\"\n"
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ENV_FILE", file)
	t.Setenv("HTTP_ADDR", ":7777")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPAddr != ":7777" {
		t.Fatalf("real environment must win over env file, got %q", cfg.HTTPAddr)
	}
	if cfg.SweepInterval != 90*time.Second {
		t.Fatalf("expected env file value applied, got %v", cfg.SweepInterval)
	}
}

func TestClassifyConfigLoadError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "none", err: nil, want: "none"},
		{name: "validation", err: errors.New("validate config: SECRET_KEY must be at least 32 characters"), want: "validation"},
		{name: "parse", err: errors.New("parse SESSION_TTL: invalid duration"), want: "parse"},
		{name: "other", err: errors.New("read env file: permission denied"), want: "load"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyConfigLoadError(tc.err); got != tc.want {
				t.Fatalf("classifyConfigLoadError()=%q want %q", got, tc.want)
			}
		})
	}
}

func TestMetricProfile(t *testing.T) {
	if got := metricProfile("  ConTainer  "); got != "container" {
		t.Fatalf("expected container, got %q", got)
	}
	if got := metricProfile("   "); got != "unknown" {
		t.Fatalf("expected unknown, got %q", got)
	}
}

func FuzzMetricProfileRobustness(f *testing.F) {
	f.Add("  ConTainer  ")
	f.Add("   ")
	f.Add("")
	f.Add(strings.Repeat("A", 4096))

	f.Fuzz(func(t *testing.T, raw string) {
		if len(raw) > 8192 {
			raw = raw[:8192]
		}

		got := metricProfile(raw)
		if got == "" {
			t.Fatal("metric profile must not be empty")
		}
		if strings.TrimSpace(raw) == "" && got != "unknown" {
			t.Fatalf("expected unknown for blank input, got %q", got)
		}
		if utf8.ValidString(raw) && !utf8.ValidString(got) {
			t.Fatalf("metric profile must stay valid UTF-8: %q", got)
		}
		if again := metricProfile(raw); got != again {
			t.Fatalf("metricProfile must be deterministic: first=%q second=%q", got, again)
		}
	})
}
