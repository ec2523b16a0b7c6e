package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		GRPCPort: 0,
		DBPath:   filepath.Join(t.TempDir(), "tracker.db"),
	}
}

func TestNewAndAddr(t *testing.T) {
	server, err := New(testOptions(t))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { _ = server.listener.Close() })

	if server.Addr() == "" {
		t.Fatal("expected a bound listener address")
	}
	if server.Service() == nil {
		t.Fatal("expected a wired service")
	}
	if server.tickInterval != DefaultTickInterval {
		t.Fatalf("tick interval = %v, want default %v", server.tickInterval, DefaultTickInterval)
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	server, err := New(testOptions(t))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v, want nil on graceful stop", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestNewWithHTTPListener(t *testing.T) {
	opts := testOptions(t)
	opts.HTTPAddr = "127.0.0.1:0"
	server, err := New(opts)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() {
		_ = server.listener.Close()
		_ = server.httpListener.Close()
	})

	if server.httpListener == nil || server.httpServer == nil {
		t.Fatal("expected HTTP listener and server")
	}
}

func TestNewRejectsBadLootTiers(t *testing.T) {
	opts := testOptions(t)
	opts.LootTiersPath = filepath.Join(t.TempDir(), "missing.csv")

	if _, err := New(opts); err == nil {
		t.Fatal("expected error for missing loot tier file")
	}
}

func TestNewLoadsLootTiers(t *testing.T) {
	tiersPath := filepath.Join(t.TempDir(), "tiers.csv")
	data := "name,min_level,max_level\nStarter Cache,1,10\nVeteran Cache,11,20\n"
	if err := os.WriteFile(tiersPath, []byte(data), 0o600); err != nil {
		t.Fatalf("write tiers: %v", err)
	}

	rewards, err := loadRewardConfig(tiersPath)
	if err != nil {
		t.Fatalf("load reward config: %v", err)
	}
	if len(rewards.LootTiers) != 2 {
		t.Fatalf("loot tiers = %d, want 2", len(rewards.LootTiers))
	}
	if rewards.CurrencyPerLevelHour != 10 {
		t.Fatalf("currency rate = %d, want default 10", rewards.CurrencyPerLevelHour)
	}
}

func TestOpenTrackerStoreCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "tracker.db")
	store, err := openTrackerStore(path)
	if err != nil {
		t.Fatalf("open tracker store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("parent dir not created: %v", err)
	}
}
