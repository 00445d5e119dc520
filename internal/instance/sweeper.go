package instance

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper runs Service.Sweep on a fixed interval until its context ends.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	log      *slog.Logger
}

func NewSweeper(svc *Service, interval time.Duration, log *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{svc: svc, interval: interval, log: log}
}

// Run sweeps once immediately, then on every tick.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.Info("instance sweeper started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("instance sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	res, err := s.svc.Sweep(ctx)
	if err != nil {
		s.log.Error("instance sweep failed", "err", err)
		return res, err
	}
	if res.Opened+res.Closed+res.Published > 0 {
		s.log.Info("instance sweep", "opened", res.Opened, "closed", res.Closed, "published", res.Published)
	}
	return res, nil
}
