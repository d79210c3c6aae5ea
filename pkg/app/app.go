package app

import (
	"fmt"
	"log/slog"

	"github.com/amirasaad/remittance/pkg/config"
	"github.com/amirasaad/remittance/pkg/eventbus"
	"github.com/amirasaad/remittance/pkg/fees"
	"github.com/amirasaad/remittance/pkg/gateway"
	"github.com/amirasaad/remittance/pkg/kvstore"
	"github.com/amirasaad/remittance/pkg/kyc"
	"github.com/amirasaad/remittance/pkg/ledger"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/amirasaad/remittance/pkg/notification"
	provider "github.com/amirasaad/remittance/pkg/provider/payment"
	"github.com/amirasaad/remittance/pkg/repository"
	paymentsvc "github.com/amirasaad/remittance/pkg/service/payment"
)

// Deps contains the infrastructure the services are built on.
type Deps struct {
	Uow      repository.UnitOfWork
	EventBus eventbus.Bus
	Store    kvstore.Store
	// Webhooks verifies and normalizes inbound provider notifications.
	Webhooks *gateway.Registry
	// PaymentProviders starts outbound charges.
	PaymentProviders *provider.Service
	RateSource       fees.RateSource
	// Sender delivers notifications; LogSender when nil.
	Sender notification.Sender
	Logger *slog.Logger
}

type App struct {
	Deps           *Deps
	Config         *config.App
	KYC            *kyc.Enforcer
	Ledger         *ledger.Writer
	Reconciler     *ledger.Reconciler
	PaymentService *paymentsvc.Service
	Notifications  *notification.Dispatcher
}

func New(deps *Deps, cfg *config.App) (*App, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Sender == nil {
		deps.Sender = notification.LogSender{Logger: deps.Logger}
	}

	schedule, err := fees.NewSchedule(fees.FlatRate(cfg.Fee.ServiceFeeBps, cfg.Fee.FlatFee), nil)
	if err != nil {
		return nil, fmt.Errorf("fee schedule: %w", err)
	}
	base := money.Code(cfg.KYC.BaseCurrency)
	if !base.IsValid() {
		return nil, fmt.Errorf("kyc base currency %q is not supported", cfg.KYC.BaseCurrency)
	}

	app := &App{
		Deps:   deps,
		Config: cfg,
	}
	app.KYC = kyc.New(
		deps.Uow,
		deps.RateSource,
		base,
		kyc.LimitsFromConfig(cfg.KYC),
		deps.Logger.With("component", "kyc"),
	)
	app.Ledger = ledger.NewWriter(app.KYC, deps.Logger.With("component", "ledger"))
	app.Reconciler = ledger.NewReconciler(
		deps.Webhooks,
		deps.Uow,
		app.Ledger,
		deps.EventBus,
		deps.Logger.With("component", "reconciler"),
	)
	app.PaymentService = paymentsvc.New(
		deps.EventBus,
		deps.Uow,
		deps.PaymentProviders,
		app.KYC,
		app.Ledger,
		paymentsvc.NewQuoter(schedule, deps.RateSource, deps.Store, cfg.Fee.QuoteTTL),
		deps.Logger.With("component", "payment"),
	)
	app.Notifications = notification.NewDispatcher(
		deps.Sender,
		deps.Store,
		deps.Logger.With("component", "notification"),
	)
	app.setupEventBus()
	return app, nil
}
