package scheduler

import (
	"context"

	"order-intake/internal/logging"

	"github.com/robfig/cron/v3"
)

// Purger removes trash entries past the retention window
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// TrashSweeper runs PurgeExpired on a cron schedule. It is optional: with an
// empty schedule expiry only happens lazily when the trash is listed.
type TrashSweeper struct {
	cron      *cron.Cron
	purger    Purger
	spec      string
	isRunning bool
}

// NewTrashSweeper creates a new sweeper
func NewTrashSweeper(p Purger, spec string) *TrashSweeper {
	return &TrashSweeper{
		cron:   cron.New(),
		purger: p,
		spec:   spec,
	}
}

// Start registers the sweep job and starts the cron runner
func (s *TrashSweeper) Start() error {
	log := logging.For("scheduler")
	if s.spec == "" {
		log.Info("Scheduler: trash sweep disabled, expiry runs when the trash is listed")
		return nil
	}

	_, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.RunNow(context.Background()); err != nil {
			log.Errorf("Scheduler: trash sweep failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.isRunning = true
	log.Infof("Scheduler: trash sweep started (cron: %s)", s.spec)
	return nil
}

// Stop stops the cron runner and waits for a running sweep
func (s *TrashSweeper) Stop() {
	if s.isRunning {
		<-s.cron.Stop().Done()
		s.isRunning = false
		logging.For("scheduler").Info("Scheduler: trash sweep stopped")
	}
}

// RunNow purges expired trash immediately
func (s *TrashSweeper) RunNow(ctx context.Context) (int, error) {
	n, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		return n, err
	}
	if n > 0 {
		logging.For("scheduler").Infof("Scheduler: trash sweep purged %d expired order(s)", n)
	}
	return n, nil
}
