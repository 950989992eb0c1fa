package availability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// seedSlots writes n consecutive 30 minute open slots for pair (1,1) and
// returns them in start order.
func seedSlots(t *testing.T, store *MemoryStore, n int) []Slot {
	t.Helper()
	ctx := context.Background()

	drafts := make([]SlotDraft, n)
	start := at(2025, 1, 6, 9, 0, 0)
	for i := range drafts {
		drafts[i] = SlotDraft{
			FacilityID: 1,
			DoctorID:   1,
			StartAt:    start.Add(time.Duration(i) * 30 * time.Minute),
			EndAt:      start.Add(time.Duration(i+1) * 30 * time.Minute),
			Status:     SlotOpen,
			Capacity:   1,
		}
	}
	_, err := store.InsertSlots(ctx, drafts)
	require.NoError(t, err)

	slots, err := store.FindSlots(ctx, 1, 1, start, start.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, slots, n)
	return slots
}

func reserveUntil(t *testing.T, store *MemoryStore, id int64, until time.Time) {
	t.Helper()
	_, err := store.TransitionSlot(context.Background(), id, []SlotStatus{SlotOpen}, SlotReserved, &until)
	require.NoError(t, err)
}

func TestSweeper_ReleasesOnlyExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	slots := seedSlots(t, store, 3)
	now := at(2025, 1, 5, 12, 0, 0)

	reserveUntil(t, store, slots[0].ID, now.Add(-time.Second))
	reserveUntil(t, store, slots[1].ID, now.Add(time.Second))
	_, err := store.TransitionSlot(ctx, slots[2].ID, []SlotStatus{SlotOpen}, SlotBooked, nil)
	require.NoError(t, err)

	released, err := NewSweeper(store, zap.NewNop()).Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	expired, err := store.GetSlot(ctx, slots[0].ID)
	require.NoError(t, err)
	assert.Equal(t, SlotOpen, expired.Status)
	assert.Nil(t, expired.ReservedUntil)

	live, err := store.GetSlot(ctx, slots[1].ID)
	require.NoError(t, err)
	assert.Equal(t, SlotReserved, live.Status)
	require.NotNil(t, live.ReservedUntil)

	booked, err := store.GetSlot(ctx, slots[2].ID)
	require.NoError(t, err)
	assert.Equal(t, SlotBooked, booked.Status)
}

func TestSweeper_ExactDeadlineIsNotExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	slots := seedSlots(t, store, 1)
	now := at(2025, 1, 5, 12, 0, 0)
	reserveUntil(t, store, slots[0].ID, now)

	released, err := NewSweeper(store, zap.NewNop()).Sweep(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, released)
}

func TestSweeper_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	slots := seedSlots(t, store, 2)
	now := at(2025, 1, 5, 12, 0, 0)
	reserveUntil(t, store, slots[0].ID, now.Add(-time.Minute))
	reserveUntil(t, store, slots[1].ID, now.Add(-time.Hour))

	sweeper := NewSweeper(store, zap.NewNop())

	released, err := sweeper.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, released)

	released, err = sweeper.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, released)
}
