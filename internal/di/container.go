package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/journeyforge/api/internal/handlers"
	"github.com/journeyforge/api/internal/platform/auth"
	"github.com/journeyforge/api/internal/platform/config"
	pfirestore "github.com/journeyforge/api/internal/platform/firestore"
	"github.com/journeyforge/api/internal/platform/jobs"
	"github.com/journeyforge/api/internal/platform/lock"
	"github.com/journeyforge/api/internal/platform/requestctx"
	firestorerepo "github.com/journeyforge/api/internal/repositories/firestore"
	"github.com/journeyforge/api/internal/services"
)

const meterName = "github.com/journeyforge/api/orders"

// Container wires configuration into the running service graph and owns the
// clients that need closing on shutdown.
type Container struct {
	Config config.Config
	Logger *zap.Logger

	Firestore *pfirestore.Provider

	Orders   services.OrderService
	Users    services.UserDirectory
	Journeys services.JourneyCatalog

	Authenticator *auth.Authenticator
	Sweeper       *jobs.Sweeper
	Health        *handlers.HealthHandlers

	redisClient  *redis.Client
	pubsubClient *pubsub.Client
}

// NewContainer constructs the full dependency graph from configuration.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Container{
		Config:    cfg,
		Logger:    logger,
		Firestore: pfirestore.NewProvider(cfg.Firestore),
	}

	unitOfWork, err := firestorerepo.NewUnitOfWork(c.Firestore)
	if err != nil {
		return nil, fmt.Errorf("container: %w", err)
	}
	orderRepo, err := firestorerepo.NewOrderRepository(c.Firestore)
	if err != nil {
		return nil, fmt.Errorf("container: %w", err)
	}
	grantRepo, err := firestorerepo.NewUserJourneyRepository(c.Firestore)
	if err != nil {
		return nil, fmt.Errorf("container: %w", err)
	}
	journeyRepo, err := firestorerepo.NewJourneyRepository(c.Firestore)
	if err != nil {
		return nil, fmt.Errorf("container: %w", err)
	}
	userRepo, err := firestorerepo.NewUserRepository(c.Firestore)
	if err != nil {
		return nil, fmt.Errorf("container: %w", err)
	}

	guard, err := c.buildGuard(cfg)
	if err != nil {
		return nil, err
	}

	events, err := c.buildEventPublisher(ctx, cfg)
	if err != nil {
		return nil, err
	}

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:       orderRepo,
		Grants:       grantRepo,
		Journeys:     journeyRepo,
		UnitOfWork:   unitOfWork,
		Guard:        guard,
		Events:       events,
		Logger:       serviceLogger(logger),
		Meter:        otel.Meter(meterName),
		ExpiryWindow: cfg.Orders.ExpiryWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("container: order service: %w", err)
	}
	c.Orders = orders

	c.Users, err = services.NewUserDirectory(userRepo)
	if err != nil {
		return nil, fmt.Errorf("container: user directory: %w", err)
	}
	c.Journeys, err = services.NewJourneyCatalog(journeyRepo)
	if err != nil {
		return nil, fmt.Errorf("container: journey catalog: %w", err)
	}

	c.Authenticator, err = auth.NewAuthenticator(cfg.Auth.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("container: authenticator: %w", err)
	}

	c.Sweeper, err = jobs.NewSweeper(jobs.SweeperDeps{
		Orders:   orders,
		Interval: cfg.Orders.SweepInterval,
		Logger:   logger.Named("sweeper"),
		Meter:    otel.Meter(meterName),
	})
	if err != nil {
		return nil, fmt.Errorf("container: sweeper: %w", err)
	}

	c.Health = handlers.NewHealthHandlers(c.readinessChecks()...)
	return c, nil
}

// Router assembles the HTTP surface over the wired handlers.
func (c *Container) Router(mw ...func(http.Handler) http.Handler) http.Handler {
	orderHandlers := handlers.NewOrderHandlers(c.Authenticator, c.Orders, c.Users, c.Journeys)
	return handlers.NewRouter(
		handlers.WithMiddlewares(mw...),
		handlers.WithHealthHandlers(c.Health),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithUserRoutes(orderHandlers.UserRoutes),
	)
}

// Close releases the clients owned by the container.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.pubsubClient != nil {
		if err := c.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pubsub close: %w", err))
		}
	}
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Firestore != nil {
		if err := c.Firestore.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("firestore close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// buildGuard prefers the Redis guard when an address is configured; single
// node deployments fall back to the in-process guard.
func (c *Container) buildGuard(cfg config.Config) (lock.Guard, error) {
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		c.Logger.Info("redis not configured, using in-process purchaser lock")
		return lock.NewMemoryGuard(), nil
	}

	c.redisClient = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	guard, err := lock.NewRedisGuard(c.redisClient, lock.WithTTL(cfg.Redis.LockTTL))
	if err != nil {
		return nil, fmt.Errorf("container: redis guard: %w", err)
	}
	return guard, nil
}

func (c *Container) buildEventPublisher(ctx context.Context, cfg config.Config) (services.OrderEventPublisher, error) {
	projectID := strings.TrimSpace(cfg.PubSub.ProjectID)
	topicID := strings.TrimSpace(cfg.PubSub.OrderTopic)
	if projectID == "" || topicID == "" {
		c.Logger.Info("pubsub not configured, order events disabled")
		return nil, nil
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("container: pubsub client: %w", err)
	}
	c.pubsubClient = client

	publisher, err := jobs.NewPubSubOrderPublisher(client.Topic(topicID))
	if err != nil {
		return nil, fmt.Errorf("container: order publisher: %w", err)
	}
	return publisher, nil
}

func (c *Container) readinessChecks() []handlers.ReadinessCheck {
	checks := []handlers.ReadinessCheck{{
		Name: "firestore",
		Check: func(ctx context.Context) error {
			_, err := c.Firestore.Client(ctx)
			return err
		},
	}}
	if c.redisClient != nil {
		checks = append(checks, handlers.ReadinessCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return c.redisClient.Ping(ctx).Err()
			},
		})
	}
	return checks
}

// serviceLogger bridges the services' logging callback onto the
// request-scoped zap logger, falling back to the process logger.
func serviceLogger(base *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.Logger(ctx)
		if logger == nil {
			logger = base
		}
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(event, zapFields...)
	}
}
