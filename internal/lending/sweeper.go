package lending

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper runs CheckOverdue on a fixed interval inside the server process.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	logger   *zap.Logger
}

func NewSweeper(svc *Service, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{svc: svc, interval: interval, logger: logger}
}

// Run sweeps once immediately and then every interval until ctx is done.
// A non-positive interval disables the sweeper and Run returns at once.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	s.logger.Info("overdue sweeper started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("overdue sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.svc.CheckOverdue(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("overdue sweep failed", zap.Error(err))
		}
		return
	}
	s.logger.Debug("overdue sweep done", zap.Int64("updated", n))
}
