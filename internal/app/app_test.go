package app

import (
	"context"
	"testing"
	"time"

	"github.com/sharesphere/spherecore/internal/engine"
	"github.com/sharesphere/spherecore/internal/models"
	"github.com/sharesphere/spherecore/pkg/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Store:   config.StoreConfig{Backend: config.BackendMemory, TxTimeout: time.Second},
		Ranking: config.RankingConfig{DefaultLimit: 10, MaxLimit: 50},
		Logging: config.LoggingConfig{Level: "INFO"},
	}
}

func TestNewMemoryBackend(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if a.Engine == nil {
		t.Fatal("Engine is nil")
	}
	if len(a.Checks) != 0 {
		t.Errorf("Checks = %d, want none without postgres or redis", len(a.Checks))
	}

	u, err := a.Engine.Users.CreateUser(ctx, engine.NewUser{Subject: "sub-1", Username: "alice", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	promoted, err := a.Engine.Users.PromoteAdmin(ctx, "alice")
	if err != nil {
		t.Fatalf("PromoteAdmin() error = %v", err)
	}
	if promoted.ID != u.ID || promoted.AdminRole != models.AdminRoleAdmin {
		t.Errorf("PromoteAdmin() = %+v, want admin %d", promoted, u.ID)
	}
}

func TestCloseIsRepeatable(t *testing.T) {
	calls := 0
	a := &App{closers: []func() error{func() error { calls++; return nil }}}
	a.Close()
	a.Close()
	if calls != 1 {
		t.Errorf("closer ran %d times, want 1", calls)
	}
}
