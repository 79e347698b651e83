package common

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadEnvFileMissingIsNoop(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}

func TestLoadEnvFileLoadsAndPreservesExisting(t *testing.T) {
	t.Setenv("SANDBOX_EXISTING", "from-env")
	file := filepath.Join(t.TempDir(), "test.env")
	content := "# comment\nSANDBOX_EXISTING=from-file\nSANDBOX_NEW=hello\nSANDBOX_QUOTED=\"secret\"\nBROKEN_LINE\n"
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	if err := LoadEnvFile(file); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if got := os.Getenv("SANDBOX_EXISTING"); got != "from-env" {
		t.Fatalf("expected existing var to be preserved, got %q", got)
	}
	if got := os.Getenv("SANDBOX_NEW"); got != "hello" {
		t.Fatalf("unexpected SANDBOX_NEW=%q", got)
	}
	if got := os.Getenv("SANDBOX_QUOTED"); got != "secret" {
		t.Fatalf("unexpected SANDBOX_QUOTED=%q", got)
	}
}

func TestLoadEnvFileReadError(t *testing.T) {
	dir := t.TempDir()
	if err := LoadEnvFile(dir); err == nil {
		t.Fatal("expected error when path is a directory")
	}
}

func FuzzLoadEnvFileRobustness(f *testing.F) {
	f.Add([]byte("KEY=value\nANOTHER=ok\n"))
	f.Add([]byte("NO_EQUALS\n# comment\n QUOTED = \"x\" \n"))
	f.Add(bytes.Repeat([]byte("A"), 70000))

	f.Fuzz(func(t *testing.T, content []byte) {
		if len(content) > 200000 {
			content = content[:200000]
		}

		file := filepath.Join(t.TempDir(), "fuzz.env")
		if err := os.WriteFile(file, content, 0o600); err != nil {
			t.Fatalf("write env file: %v", err)
		}

		classify := func(err error) string {
			if err == nil {
				return "none"
			}
			msg := err.Error()
			switch {
			case strings.Contains(msg, "open env file:"):
				return "open"
			case strings.Contains(msg, "read env file:"):
				return "read"
			default:
				return "other"
			}
		}

		c1 := classify(LoadEnvFile(file))
		c2 := classify(LoadEnvFile(file))
		if c1 != c2 {
			t.Fatalf("error classification must be deterministic: first=%q second=%q", c1, c2)
		}
		if c1 == "other" {
			t.Fatalf("unexpected error class %q", c1)
		}
	})
}
