package session

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pragati-platform/identity/pkg/observability"
)

// Sweeper periodically deletes expired sessions so the store does not
// accumulate dead records. Revoked-but-unexpired sessions are kept on
// purpose; they are what makes revocation stick.
type Sweeper struct {
	store  Store
	logger *observability.Logger
	cron   *cron.Cron
}

// NewSweeper builds a sweeper for the given store.
func NewSweeper(store Store, logger *observability.Logger) *Sweeper {
	return &Sweeper{store: store, logger: logger}
}

// Run executes one sweep immediately.
func (s *Sweeper) Run(ctx context.Context) {
	removed, err := s.store.DeleteExpired(ctx, time.Now())
	if err != nil {
		s.logger.WithError(err).Error("session sweep failed")
		return
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("swept expired sessions")
	}
}

// Start schedules sweeps on the given cron spec (e.g. "@every 10m")
// and begins running them. Returns an error for a bad spec.
func (s *Sweeper) Start(spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.Run(ctx)
	})
	if err != nil {
		return err
	}
	c.Start()
	s.cron = c
	return nil
}

// Stop halts scheduled sweeps and waits for a running one to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
