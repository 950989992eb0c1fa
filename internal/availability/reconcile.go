package availability

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type ReconcileResult struct {
	Booked   int
	Reopened int
}

// Reconciler aligns slot status with the appointments attached to slots.
// Appointments without a slot are ignored.
type Reconciler struct {
	slots  SlotStore
	logger *zap.Logger
}

func NewReconciler(slots SlotStore, logger *zap.Logger) *Reconciler {
	return &Reconciler{slots: slots, logger: logger}
}

// Reconcile books open or reserved slots that carry a live appointment and
// reopens booked slots that no longer carry one, for slots starting in
// [from, to].
func (r *Reconciler) Reconcile(ctx context.Context, from, to time.Time) (ReconcileResult, error) {
	var res ReconcileResult

	booked, err := r.slots.MarkSlotsBookedByAppointments(ctx, from, to)
	if err != nil {
		return res, fmt.Errorf("mark booked slots: %w", err)
	}
	res.Booked = booked

	reopened, err := r.slots.ReopenOrphanedBookings(ctx, from, to)
	if err != nil {
		return res, fmt.Errorf("reopen orphaned bookings: %w", err)
	}
	res.Reopened = reopened

	r.logger.Info("slot reconciliation finished",
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int("booked", res.Booked),
		zap.Int("reopened", res.Reopened),
	)
	return res, nil
}
