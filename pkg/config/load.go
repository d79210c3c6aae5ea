package config

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Load reads the first environment file found among envFilePath (searched
// upwards from the working directory) and then processes the environment.
func Load(envFilePath ...string) (*App, error) {
	logger := slog.Default()
	logger.Info("Loading environment variables")

	for _, path := range envFilePath {
		foundPath, err := FindEnvTest(path)
		if err != nil {
			logger.Debug("Environment file not found", "path", path, "error", err)
			continue
		}
		if err := godotenv.Load(foundPath); err != nil {
			logger.Error("Failed to load environment file", "path", foundPath, "error", err)
			continue
		}
		logger.Info("Loaded environment from file", "path", foundPath)
		return loadFromEnv()
	}

	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using process environment")
	}
	return loadFromEnv()
}

func loadFromEnv() (*App, error) {
	var cfg App
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	slog.Default().Info("App config loaded",
		"env", cfg.Env,
		"db", maskValue(cfg.DB.Url),
		"event_bus", cfg.EventBus.Driver,
		"fee_bps", cfg.Fee.ServiceFeeBps,
		"kyc_base_currency", cfg.KYC.BaseCurrency,
		"provider_timeout", cfg.PaymentProviders.HTTPTimeout,
		"stripe_key", maskValue(cfg.PaymentProviders.Stripe.ApiKey),
		"ozow_key", maskValue(cfg.PaymentProviders.Ozow.PrivateKey),
		"payfast_passphrase", maskValue(cfg.PaymentProviders.PayFast.Passphrase),
		"exchange_api_key", maskValue(cfg.ExchangeRateAPIProviders.ExchangeRateApi.ApiKey),
	)
	return &cfg, nil
}

func maskValue(key string) string {
	if len(key) <= 6 {
		return "****"
	}
	return key[:2] + "****" + key[len(key)-4:]
}
