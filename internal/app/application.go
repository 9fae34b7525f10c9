package app

import (
	"context"
	"fmt"

	"github.com/blr-market/marketplace/internal/app/notify"
	accountssvc "github.com/blr-market/marketplace/internal/app/services/accounts"
	listingssvc "github.com/blr-market/marketplace/internal/app/services/listings"
	offerssvc "github.com/blr-market/marketplace/internal/app/services/offers"
	"github.com/blr-market/marketplace/internal/app/storage"
	"github.com/blr-market/marketplace/internal/app/storage/memory"
	"github.com/blr-market/marketplace/internal/app/system"
	"github.com/blr-market/marketplace/internal/config"
	"github.com/blr-market/marketplace/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Accounts storage.AccountStore
	Listings storage.ListingStore
	Offers   storage.OfferStore
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Accounts *accountssvc.Service
	Listings *listingssvc.Service
	Offers   *offerssvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, cfg *config.Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if cfg == nil {
		cfg = &config.Config{}
	}

	mem := memory.New()
	if stores.Accounts == nil {
		stores.Accounts = mem
	}
	if stores.Listings == nil {
		stores.Listings = mem
	}
	if stores.Offers == nil {
		stores.Offers = mem
	}

	allowed := cfg.Market.AllowedUsernames
	if len(allowed) == 0 {
		allowed = config.DefaultAllowedUsernames
	}
	operator := cfg.Market.OperatorUsername
	if operator == "" {
		operator = "BLR"
	}

	relay := notify.NewFromConfig(cfg.Mail, log)

	acctService := accountssvc.New(stores.Accounts, allowed, operator, log)
	listingService := listingssvc.New(stores.Listings, log)
	offerService := offerssvc.New(stores.Offers, stores.Listings, stores.Accounts, relay, cfg.Mail.Oversight, log)

	manager := system.NewManager()
	for _, name := range []string{"accounts", "listings", "offers"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	schedule := cfg.Market.ExpiryInterval
	if schedule == "" {
		schedule = "@every 1m"
	}
	sweeper := listingssvc.NewSweeper(stores.Listings, schedule, log)
	if err := manager.Register(sweeper); err != nil {
		return nil, fmt.Errorf("register %s: %w", sweeper.Name(), err)
	}

	return &Application{
		manager:  manager,
		log:      log,
		Accounts: acctService,
		Listings: listingService,
		Offers:   offerService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
