package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/lock"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func at(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, time.UTC)
}

func tod(t *testing.T, s string) TimeOfDay {
	t.Helper()
	v, err := ParseTimeOfDay(s)
	require.NoError(t, err)
	return v
}

func ptr[T any](v T) *T { return &v }

// mondayRule is a Monday 09:00-10:00 rule cut into 30 minute slots.
func mondayRule(t *testing.T, facilityID, doctorID int64) Rule {
	return Rule{
		FacilityID:          facilityID,
		DoctorID:            doctorID,
		DayOfWeek:           int(time.Monday),
		StartTime:           tod(t, "09:00"),
		EndTime:             tod(t, "10:00"),
		SlotDurationMinutes: 30,
		Active:              true,
	}
}

func createRule(t *testing.T, store RuleStore, rule Rule) Rule {
	t.Helper()
	require.NoError(t, store.CreateRule(context.Background(), &rule))
	return rule
}

func newTestWriter(store SlotStore, batchSize int) *BatchWriter {
	return NewBatchWriter(store, lock.NewLocalLocker(), batchSize, zap.NewNop())
}

// faultyStore fails selected operations for one facility/doctor pair and
// counts insert statements.
type faultyStore struct {
	*MemoryStore
	failFacility int64
	failDoctor   int64
	findErr      error
	insertErr    error
	insertCalls  int
}

var errStoreDown = errors.New("store unavailable")

func (f *faultyStore) FindSlots(ctx context.Context, facilityID, doctorID int64, from, to time.Time) ([]Slot, error) {
	if f.findErr != nil && facilityID == f.failFacility && doctorID == f.failDoctor {
		return nil, f.findErr
	}
	return f.MemoryStore.FindSlots(ctx, facilityID, doctorID, from, to)
}

func (f *faultyStore) InsertSlots(ctx context.Context, drafts []SlotDraft) (int, error) {
	f.insertCalls++
	if f.insertErr != nil && len(drafts) > 0 &&
		drafts[0].FacilityID == f.failFacility && drafts[0].DoctorID == f.failDoctor {
		return 0, f.insertErr
	}
	return f.MemoryStore.InsertSlots(ctx, drafts)
}

func seedPatient(t *testing.T, store AppointmentStore) int64 {
	t.Helper()
	p := Patient{Name: "Ann Patient"}
	require.NoError(t, store.CreatePatient(context.Background(), &p))
	return p.ID
}
