package config

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile       = ".env"
	defaultPort          = "8080"
	defaultReadTimeout   = 15 * time.Second
	defaultWriteTimeout  = 30 * time.Second
	defaultIdleTimeout   = 120 * time.Second
	defaultExpiryWindow  = 72 * time.Hour
	defaultSweepInterval = time.Hour
	defaultLockTTL       = 10 * time.Second
	secretScheme         = "secret://"
)

// Config captures runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firestore FirestoreConfig
	Redis     RedisConfig
	Auth      AuthConfig
	PubSub    PubSubConfig
	Orders    OrdersConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// RedisConfig stores the distributed lock backend parameters. An empty Addr
// selects the in-process lock guard instead.
type RedisConfig struct {
	Addr     string
	Password string
	LockTTL  time.Duration
}

// AuthConfig holds the HMAC secret used to validate upstream-issued tokens.
type AuthConfig struct {
	JWTSecret string
}

// PubSubConfig names the topic order lifecycle events are published to.
// An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID  string
	OrderTopic string
}

// OrdersConfig tunes the order lifecycle: how long an unpaid order stays
// payable, and how often the expiration sweeper runs. The sweep interval is a
// deployment knob, not a correctness requirement, as long as it stays well
// below the expiry window.
type OrdersConfig struct {
	ExpiryWindow  time.Duration
	SweepInterval time.Duration
}

// SecretResolver resolves secret:// references into secret values.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to the SecretResolver interface.
type SecretResolverFunc func(ctx context.Context, ref string) (string, error)

// Resolve implements SecretResolver.
func (f SecretResolverFunc) Resolve(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// Option customises Load behaviour.
type Option func(*loader)

type loader struct {
	envFile  string
	resolver SecretResolver
	values   map[string]string
}

// WithEnvFile overrides the dotenv file consulted before process env vars.
func WithEnvFile(path string) Option {
	return func(l *loader) {
		if strings.TrimSpace(path) != "" {
			l.envFile = path
		}
	}
}

// WithSecretResolver installs the resolver used for secret:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(l *loader) {
		l.resolver = resolver
	}
}

// Load builds the Config from the environment, applying dotenv fallbacks and
// resolving secret:// references when a resolver is supplied.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	l := &loader{envFile: defaultEnvFile}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	fileValues, err := readEnvFile(l.envFile)
	if err != nil {
		return Config{}, err
	}
	l.values = fileValues

	jwtSecret, err := l.value(ctx, "AUTH_JWT_SECRET")
	if err != nil {
		return Config{}, err
	}
	redisPassword, err := l.value(ctx, "REDIS_PASSWORD")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         l.stringValue("PORT", defaultPort),
			ReadTimeout:  l.durationValue("SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: l.durationValue("SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  l.durationValue("SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    l.stringValue("FIRESTORE_PROJECT_ID", l.stringValue("GOOGLE_CLOUD_PROJECT", "")),
			EmulatorHost: l.stringValue("FIRESTORE_EMULATOR_HOST", ""),
		},
		Redis: RedisConfig{
			Addr:     l.stringValue("REDIS_ADDR", ""),
			Password: redisPassword,
			LockTTL:  l.durationValue("REDIS_LOCK_TTL", defaultLockTTL),
		},
		Auth: AuthConfig{
			JWTSecret: jwtSecret,
		},
		PubSub: PubSubConfig{
			ProjectID:  l.stringValue("PUBSUB_PROJECT_ID", l.stringValue("GOOGLE_CLOUD_PROJECT", "")),
			OrderTopic: l.stringValue("PUBSUB_ORDER_TOPIC", ""),
		},
		Orders: OrdersConfig{
			ExpiryWindow:  l.durationValue("ORDER_EXPIRY_WINDOW", defaultExpiryWindow),
			SweepInterval: l.durationValue("ORDER_SWEEP_INTERVAL", defaultSweepInterval),
		},
	}

	if cfg.Orders.ExpiryWindow <= 0 {
		return Config{}, fmt.Errorf("config: ORDER_EXPIRY_WINDOW must be positive")
	}
	if cfg.Orders.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("config: ORDER_SWEEP_INTERVAL must be positive")
	}
	if cfg.Orders.SweepInterval >= cfg.Orders.ExpiryWindow {
		return Config{}, fmt.Errorf("config: ORDER_SWEEP_INTERVAL must be shorter than ORDER_EXPIRY_WINDOW")
	}

	return cfg, nil
}

func (l *loader) raw(key string) (string, bool) {
	if value, ok := os.LookupEnv(key); ok {
		return value, true
	}
	value, ok := l.values[key]
	return value, ok
}

func (l *loader) stringValue(key, fallback string) string {
	if value, ok := l.raw(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func (l *loader) durationValue(key string, fallback time.Duration) time.Duration {
	raw, ok := l.raw(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(strings.TrimSpace(raw)); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

// value resolves a key that may point at a secret reference.
func (l *loader) value(ctx context.Context, key string) (string, error) {
	raw := l.stringValue(key, "")
	if !strings.HasPrefix(raw, secretScheme) {
		return raw, nil
	}
	if l.resolver == nil {
		return "", fmt.Errorf("config: %s references a secret but no resolver is configured", key)
	}
	resolved, err := l.resolver.Resolve(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("config: resolve %s: %w", key, err)
	}
	return resolved, nil
}

func readEnvFile(path string) (map[string]string, error) {
	values := make(map[string]string)
	if strings.TrimSpace(path) == "" {
		return values, nil
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return values, nil
		}
		return nil, fmt.Errorf("config: open env file %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if key != "" {
			values[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read env file %s: %w", path, err)
	}
	return values, nil
}
