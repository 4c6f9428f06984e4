package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvFile(filepath.Join(t.TempDir(), "missing.env")))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != defaultPort {
		t.Errorf("expected default port %q, got %q", defaultPort, cfg.Server.Port)
	}
	if cfg.Orders.ExpiryWindow != defaultExpiryWindow {
		t.Errorf("expected expiry window %v, got %v", defaultExpiryWindow, cfg.Orders.ExpiryWindow)
	}
	if cfg.Orders.SweepInterval != defaultSweepInterval {
		t.Errorf("expected sweep interval %v, got %v", defaultSweepInterval, cfg.Orders.SweepInterval)
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	contents := "PORT=9090\nORDER_EXPIRY_WINDOW=48h\nORDER_SWEEP_INTERVAL=30m\n# comment\nREDIS_ADDR=localhost:6379\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(path))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %q", cfg.Server.Port)
	}
	if cfg.Orders.ExpiryWindow != 48*time.Hour {
		t.Errorf("expected 48h expiry window, got %v", cfg.Orders.ExpiryWindow)
	}
	if cfg.Orders.SweepInterval != 30*time.Minute {
		t.Errorf("expected 30m sweep interval, got %v", cfg.Orders.SweepInterval)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("expected redis addr from file, got %q", cfg.Redis.Addr)
	}
}

func TestLoadProcessEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("PORT=9090\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("PORT", "7070")

	cfg, err := Load(context.Background(), WithEnvFile(path))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected process env to win, got %q", cfg.Server.Port)
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "secret://projects/demo/secrets/jwt")

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref != "secret://projects/demo/secrets/jwt" {
			t.Fatalf("unexpected secret ref %q", ref)
		}
		return "resolved-value", nil
	})

	cfg, err := Load(context.Background(),
		WithEnvFile(filepath.Join(t.TempDir(), "missing.env")),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Auth.JWTSecret != "resolved-value" {
		t.Errorf("expected resolved secret, got %q", cfg.Auth.JWTSecret)
	}
}

func TestLoadSecretWithoutResolverFails(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "secret://projects/demo/secrets/jwt")

	_, err := Load(context.Background(), WithEnvFile(filepath.Join(t.TempDir(), "missing.env")))
	if err == nil {
		t.Fatal("expected error when secret reference has no resolver")
	}
}

func TestLoadRejectsSweepIntervalBeyondWindow(t *testing.T) {
	t.Setenv("ORDER_EXPIRY_WINDOW", "1h")
	t.Setenv("ORDER_SWEEP_INTERVAL", "2h")

	_, err := Load(context.Background(), WithEnvFile(filepath.Join(t.TempDir(), "missing.env")))
	if err == nil {
		t.Fatal("expected error when sweep interval exceeds expiry window")
	}
	if errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected error type: %v", err)
	}
}
