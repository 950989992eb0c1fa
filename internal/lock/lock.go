// Package lock provides short-lived mutual exclusion keyed by string, backed
// by Redis across processes or by an in-process table.
package lock

import (
	"context"
	"errors"
	"fmt"
)

var ErrLockNotAcquired = errors.New("lock not acquired")

// Locker guards a critical section identified by key. It does not wait: if
// the key is held elsewhere fn is not run and ErrLockNotAcquired is returned.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// PairKey identifies the slot set of one doctor at one facility.
func PairKey(facilityID, doctorID int64) string {
	return fmt.Sprintf("lock:slots:facility:%d:doctor:%d", facilityID, doctorID)
}

func SlotKey(slotID int64) string {
	return fmt.Sprintf("lock:slot:%d", slotID)
}
