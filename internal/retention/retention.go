// Package retention periodically prunes broadcast notifications that
// every eligible agent has already read and that have aged out.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/Yuzori/l-Agence/internal/agency"
	"github.com/Yuzori/l-Agence/internal/logger"
)

type Config struct {
	// Cron is a standard 5-field expression; empty disables the sweeper.
	Cron   string
	MaxAge time.Duration
	Clock  func() time.Time
}

type Sweeper struct {
	cfg   Config
	store agency.API
}

func NewSweeper(store agency.API, cfg Config) (*Sweeper, error) {
	if cfg.Cron != "" && !gronx.New().IsValid(cfg.Cron) {
		return nil, fmt.Errorf("invalid retention cron %q", cfg.Cron)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Sweeper{cfg: cfg, store: store}, nil
}

// Run blocks until ctx is cancelled, sweeping at each cron tick. A nil
// receiver or empty cron returns immediately.
func (s *Sweeper) Run(ctx context.Context) {
	if s == nil || s.cfg.Cron == "" {
		return
	}
	logger.Info("retention_started", "cron", s.cfg.Cron, "max_age", s.cfg.MaxAge.String())
	for {
		next, err := gronx.NextTickAfter(s.cfg.Cron, s.cfg.Clock(), false)
		if err != nil {
			logger.Error("retention_schedule_failed", "cron", s.cfg.Cron, "error", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}
		s.Sweep()
	}
}

// Sweep runs a single pruning pass.
func (s *Sweeper) Sweep() {
	pruned, err := s.store.PruneReadBroadcasts(s.cfg.MaxAge)
	if err != nil {
		logger.Error("retention_sweep_failed", "error", err)
		return
	}
	if pruned > 0 {
		logger.Info("retention_swept", "pruned", pruned)
	}
}
