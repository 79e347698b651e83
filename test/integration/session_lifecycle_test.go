package integration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/legalsandbox/research-backend/internal/domain"
	"github.com/legalsandbox/research-backend/internal/llm"
	"github.com/legalsandbox/research-backend/internal/provision"
	"github.com/legalsandbox/research-backend/internal/registry"
	"github.com/legalsandbox/research-backend/internal/repository"
	"github.com/legalsandbox/research-backend/internal/security"
	"github.com/legalsandbox/research-backend/internal/service"
	"github.com/legalsandbox/research-backend/internal/store"
)

func newRepoForTest(t *testing.T) repository.EphemeralRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Conversation{}, &domain.Message{}, &domain.Document{}); err != nil {
		t.Fatalf("migrate ephemeral schema: %v", err)
	}
	return repository.NewEphemeralRepository(db)
}

// The full provision-to-expiry arc: credentials written by the provisioning
// tool, loaded at boot, used to log in, then invalidated by session expiry
// with the sweeper clearing leftover data.
func TestProvisionedSessionLifecycle(t *testing.T) {
	registryPath := filepath.Join(t.TempDir(), "sessions.json")

	creds, err := provision.Run(provision.Options{
		RegistryPath: registryPath,
		Count:        2,
		TTL:          72 * time.Hour,
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if len(creds) != 2 {
		t.Fatalf("expected 2 credentials, got %d", len(creds))
	}

	sessions, err := registry.Load(registryPath)
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 registry entries, got %d", len(sessions))
	}
	for _, s := range sessions {
		for _, c := range creds {
			if s.SessionID == c.SessionID && s.PasswordHash == c.Password {
				t.Fatal("registry must never hold the cleartext password")
			}
		}
	}

	start := time.Now()
	clock := start
	now := func() time.Time { return clock }

	st := store.NewSessionStore(sessions).WithClock(now)
	repo := newRepoForTest(t)
	tokens := security.NewTokenManager("legal-research-sandbox", "sandbox-api", "abcdefghijklmnopqrstuvwxyz123456")
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	auth := service.NewAuthService(st, tokens, repo, 72, discard).WithClock(now)
	sweeper := store.NewSweeper(st, repo, 5*time.Minute, discard)

	ctx := context.Background()
	cred := creds[0]

	result, err := auth.Login(ctx, cred.Username, cred.Password)
	if err != nil {
		t.Fatalf("login with provisioned credentials: %v", err)
	}
	claims, err := tokens.Parse(result.AccessToken)
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if claims.SessionID != cred.SessionID {
		t.Fatalf("token session %q does not match provisioned %q", claims.SessionID, cred.SessionID)
	}

	// Seed some session data, then let the session age out.
	chat := service.NewChatService(repo, staticModel{"noted"})
	if _, err := chat.Send(ctx, cred.SessionID, "", "remember this", nil); err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	clock = start.Add(73 * time.Hour)

	if _, err := auth.Login(ctx, cred.Username, cred.Password); !errors.Is(err, service.ErrInvalidCredentials) {
		t.Fatalf("expired session must not log in, got %v", err)
	}
	if _, err := auth.Status(cred.SessionID); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expired session must read as absent, got %v", err)
	}

	evicted := sweeper.SweepOnce(ctx)
	if evicted != 2 {
		t.Fatalf("expected both provisioned sessions evicted, got %d", evicted)
	}
	convs, err := repo.ListConversations(ctx, cred.SessionID)
	if err != nil {
		t.Fatalf("list conversations after sweep: %v", err)
	}
	if len(convs) != 0 {
		t.Fatalf("sweeper must clear ephemeral data, found %d conversations", len(convs))
	}
}

func TestProvisionMergePreservesExistingSessions(t *testing.T) {
	registryPath := filepath.Join(t.TempDir(), "sessions.json")

	first, err := provision.Run(provision.Options{RegistryPath: registryPath, Count: 1, TTL: 72 * time.Hour})
	if err != nil {
		t.Fatalf("first provision: %v", err)
	}
	if _, err := provision.Run(provision.Options{RegistryPath: registryPath, Count: 1, TTL: 72 * time.Hour, Merge: true}); err != nil {
		t.Fatalf("merge provision: %v", err)
	}

	sessions, err := registry.Load(registryPath)
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected merge to keep existing entries, got %d", len(sessions))
	}

	found := false
	for _, s := range sessions {
		if s.SessionID == first[0].SessionID {
			found = true
		}
	}
	if !found {
		t.Fatal("merge lost the original session")
	}
}

type staticModel struct{ reply string }

func (m staticModel) Chat(context.Context, []llm.Message) (string, error) { return m.reply, nil }
