package availability

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Sweeper returns lapsed reservations to the open pool.
type Sweeper struct {
	slots  SlotStore
	logger *zap.Logger
}

func NewSweeper(slots SlotStore, logger *zap.Logger) *Sweeper {
	return &Sweeper{slots: slots, logger: logger}
}

// Sweep reopens every reserved slot whose reserved_until is before now and
// returns how many were released. Running it again without new expirations
// releases nothing.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	released, err := s.slots.ReleaseExpiredReservations(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("release expired reservations: %w", err)
	}

	if released > 0 {
		s.logger.Info("expired reservations released", zap.Int("released", released), zap.Time("now", now))
	} else {
		s.logger.Debug("no expired reservations", zap.Time("now", now))
	}
	return released, nil
}
