package initializer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/remittance/infra"
	"github.com/amirasaad/remittance/infra/cache"
	infraeventbus "github.com/amirasaad/remittance/infra/eventbus"
	"github.com/amirasaad/remittance/infra/provider/exchangerateapi"
	"github.com/amirasaad/remittance/infra/provider/mockpayment"
	"github.com/amirasaad/remittance/infra/provider/ozowpayment"
	"github.com/amirasaad/remittance/infra/provider/payfastpayment"
	"github.com/amirasaad/remittance/infra/provider/stripepayment"
	infrarepo "github.com/amirasaad/remittance/infra/repository"
	"github.com/amirasaad/remittance/pkg/app"
	"github.com/amirasaad/remittance/pkg/config"
	"github.com/amirasaad/remittance/pkg/domain/events"
	"github.com/amirasaad/remittance/pkg/domain/payment"
	"github.com/amirasaad/remittance/pkg/eventbus"
	"github.com/amirasaad/remittance/pkg/fees"
	"github.com/amirasaad/remittance/pkg/gateway"
	"github.com/amirasaad/remittance/pkg/kvstore"
	provider "github.com/amirasaad/remittance/pkg/provider/payment"
	"github.com/redis/go-redis/v9"
)

// Cleanup releases connections opened by InitializeDependencies.
type Cleanup func()

// InitializeDependencies initializes all the application dependencies
func InitializeDependencies(cfg *config.App) (*app.Deps, Cleanup, error) {
	logger := setupLogger(cfg.Log)
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("cleanup failed", "error", err)
			}
		}
	}

	db, err := infra.NewDBConnection(cfg.DB, cfg.Env)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		return nil, nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		closers = append(closers, sqlDB.Close)
	}
	if cfg.DB.AutoMigrate {
		if err := infra.RunMigrations(db, cfg.DB.MigrationsPath); err != nil {
			cleanup()
			return nil, nil, err
		}
		logger.Info("Database migrations applied", "path", cfg.DB.MigrationsPath)
	}

	store, client := initStore(cfg, logger)
	if client != nil {
		closers = append(closers, client.Close)
	}

	bus, err := initEventBus(cfg, client, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to initialize event bus: %w", err)
	}
	if c, ok := bus.(interface{ Close() error }); ok {
		closers = append(closers, c.Close)
	}

	deps := &app.Deps{
		Uow:              infrarepo.NewUoW(db),
		EventBus:         bus,
		Store:            store,
		Webhooks:         initWebhooks(cfg.PaymentProviders, logger),
		PaymentProviders: initPaymentProviders(cfg, logger),
		RateSource:       initRateSource(cfg, store, logger),
		Logger:           logger,
	}
	return deps, cleanup, nil
}

// initStore prefers Redis and falls back to process memory, which is only
// correct for a single instance.
func initStore(cfg *config.App, logger *slog.Logger) (kvstore.Store, *redis.Client) {
	if cfg.Redis == nil || cfg.Redis.URL == "" {
		logger.Warn("⚠️ Redis not configured, using in-memory store")
		return cache.NewMemoryStore(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := cache.NewRedisStore(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Warn("⚠️ Redis unavailable, using in-memory store", "error", err)
		return cache.NewMemoryStore(), nil
	}
	logger.Info("Redis store connected", "key_prefix", cfg.Redis.KeyPrefix)
	return store, store.Client()
}

// initEventBus builds the configured bus. An explicitly requested driver
// that cannot be built is an error rather than a silent downgrade.
func initEventBus(cfg *config.App, client *redis.Client, logger *slog.Logger) (eventbus.Bus, error) {
	driver := "memory"
	if cfg.EventBus != nil && cfg.EventBus.Driver != "" {
		driver = cfg.EventBus.Driver
	}
	switch driver {
	case "memory":
		return infraeventbus.NewWithMemory(logger), nil
	case "redis":
		if client == nil {
			return nil, errors.New("redis event bus requires a reachable REDIS_URL")
		}
		return infraeventbus.NewWithRedis(client, cfg.EventBus.Stream, cfg.EventBus.GroupID, events.Factories, logger)
	case "kafka":
		return infraeventbus.NewWithKafka(infraeventbus.KafkaConfig{
			Brokers:     cfg.EventBus.KafkaBrokers,
			GroupID:     cfg.EventBus.GroupID,
			TopicPrefix: cfg.EventBus.Stream,
		}, events.Factories, logger)
	default:
		return nil, fmt.Errorf("unsupported event bus driver %q", driver)
	}
}

// initWebhooks registers a verifier for every provider with credentials.
func initWebhooks(cfg *config.PaymentProviders, logger *slog.Logger) *gateway.Registry {
	registry := gateway.NewRegistry()
	if cfg == nil {
		return registry
	}
	if cfg.Stripe != nil && cfg.Stripe.SigningSecret != "" {
		registry.Register(gateway.NewStripe(cfg.Stripe.SigningSecret))
	}
	if cfg.Ozow != nil && cfg.Ozow.PrivateKey != "" {
		registry.Register(gateway.NewOzow(cfg.Ozow.PrivateKey))
	}
	if cfg.PayFast != nil && cfg.PayFast.MerchantID != "" {
		registry.Register(gateway.NewPayFast(cfg.PayFast.Passphrase))
	}
	for _, gw := range payment.Gateways {
		if _, err := registry.Get(gw); err != nil {
			logger.Warn("⚠️ webhooks disabled for provider, no credentials", "provider", gw)
		}
	}
	return registry
}

// initPaymentProviders registers outbound processors. Outside production,
// providers without credentials are served by the mock so the flow can be
// exercised locally.
func initPaymentProviders(cfg *config.App, logger *slog.Logger) *provider.Service {
	pp := cfg.PaymentProviders
	svc := provider.NewService(pp.HTTPTimeout, logger)
	configured := map[payment.Gateway]bool{}
	if pp.Stripe != nil && pp.Stripe.ApiKey != "" {
		svc.Register(stripepayment.New(pp.Stripe, logger))
		configured[payment.GatewayStripe] = true
	}
	if pp.Ozow != nil && pp.Ozow.SiteCode != "" {
		svc.Register(ozowpayment.New(pp.Ozow, logger))
		configured[payment.GatewayOzow] = true
	}
	if pp.PayFast != nil && pp.PayFast.MerchantID != "" {
		svc.Register(payfastpayment.New(pp.PayFast, logger))
		configured[payment.GatewayPayFast] = true
	}
	for _, gw := range payment.Gateways {
		if configured[gw] {
			continue
		}
		if cfg.Env == "production" {
			logger.Warn("⚠️ payments disabled for provider, no credentials", "provider", gw)
			continue
		}
		logger.Warn("⚠️ using mock payment provider", "provider", gw)
		svc.Register(mockpayment.NewMockPaymentProvider(gw))
	}
	return svc
}

// initRateSource wraps the exchange-rate API in the shared cache. Without
// an API key only same-currency sends can be quoted.
func initRateSource(cfg *config.App, store kvstore.Store, logger *slog.Logger) fees.RateSource {
	if cfg.ExchangeRateAPIProviders == nil || cfg.ExchangeRateAPIProviders.ExchangeRateApi == nil ||
		cfg.ExchangeRateAPIProviders.ExchangeRateApi.ApiKey == "" {
		logger.Warn("⚠️ exchange rate API not configured, cross-currency quotes disabled")
		return nil
	}
	api := exchangerateapi.New(cfg.ExchangeRateAPIProviders.ExchangeRateApi, logger)
	return fees.NewCachedRateSource(
		api,
		store,
		cfg.ExchangeRateCache.TTL,
		cfg.ExchangeRateCache.Prefix,
		logger,
	)
}
