package payment

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper runs the reconciliation sweep at a fixed interval until its
// context is cancelled.
type Sweeper struct {
	svc      *Service
	interval time.Duration
}

func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	return &Sweeper{svc: svc, interval: interval}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			repaired, err := s.svc.Sweep(ctx)
			if err != nil {
				slog.Error("reconciliation sweep failed", "error", err)
				continue
			}

			if repaired > 0 {
				slog.Info("reconciliation sweep repaired payments", "count", repaired)
			}
		}
	}
}
