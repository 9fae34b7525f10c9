package listings

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/blr-market/marketplace/internal/app/metrics"
	"github.com/blr-market/marketplace/internal/app/storage"
	"github.com/blr-market/marketplace/pkg/logger"
)

// Sweeper periodically transitions open listings past their deadline to the
// expired status. It implements the system.Service lifecycle.
type Sweeper struct {
	store    storage.ListingStore
	schedule string
	log      *logger.Logger
	cron     *cron.Cron
}

// NewSweeper creates a sweeper firing on the given cron schedule, e.g.
// "@every 1m".
func NewSweeper(store storage.ListingStore, schedule string, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("listing-expiry")
	}
	return &Sweeper{store: store, schedule: schedule, log: log}
}

// Name identifies the sweeper to the service manager.
func (s *Sweeper) Name() string { return "listing-expiry" }

// Start schedules the sweep and runs one immediately so restarts do not leave
// stale open listings until the first tick.
func (s *Sweeper) Start(_ context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("schedule %q: %w", s.schedule, err)
	}
	s.cron = c
	c.Start()
	go s.sweep()
	s.log.WithField("schedule", s.schedule).Info("listing expiry sweeper started")
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish, bounded
// by ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	expired, err := s.store.ExpireListings(ctx, time.Now().UTC())
	if err != nil {
		s.log.WithError(err).Error("listing expiry sweep failed")
		return
	}
	if expired > 0 {
		metrics.RecordListingsExpired(expired)
		s.log.WithField("expired", expired).Info("listings expired")
	}
}
