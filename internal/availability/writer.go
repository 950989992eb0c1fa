package availability

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/lock"
)

const DefaultBatchSize = 500

// BatchWriter inserts slot drafts without creating duplicates. For each
// facility/doctor pair it loads the slots already stored in the drafts'
// window, drops drafts whose exact window exists, and inserts the rest in
// fixed-size chunks. The load-then-insert sequence runs under the pair lock.
type BatchWriter struct {
	slots     SlotStore
	locker    lock.Locker
	batchSize int
	logger    *zap.Logger
}

func NewBatchWriter(slots SlotStore, locker lock.Locker, batchSize int, logger *zap.Logger) *BatchWriter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &BatchWriter{
		slots:     slots,
		locker:    locker,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Write returns the number of slots actually inserted. A failed duplicate
// lookup aborts the write for that pair; nothing is inserted blind.
func (w *BatchWriter) Write(ctx context.Context, drafts []SlotDraft) (int, error) {
	if len(drafts) == 0 {
		return 0, nil
	}

	groups := make(map[pairKey][]SlotDraft)
	for _, d := range drafts {
		k := pairKey{facilityID: d.FacilityID, doctorID: d.DoctorID}
		groups[k] = append(groups[k], d)
	}

	pairs := make([]pairKey, 0, len(groups))
	for k := range groups {
		pairs = append(pairs, k)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].facilityID != pairs[j].facilityID {
			return pairs[i].facilityID < pairs[j].facilityID
		}
		return pairs[i].doctorID < pairs[j].doctorID
	})

	total := 0
	for _, pk := range pairs {
		var inserted int
		err := w.locker.WithLock(ctx, lock.PairKey(pk.facilityID, pk.doctorID), func(ctx context.Context) error {
			n, err := w.writePair(ctx, pk, groups[pk])
			inserted = n
			return err
		})
		total += inserted
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (w *BatchWriter) writePair(ctx context.Context, pk pairKey, drafts []SlotDraft) (int, error) {
	from, to := draftWindow(drafts)

	existing, err := w.slots.FindSlots(ctx, pk.facilityID, pk.doctorID, from, to)
	if err != nil {
		return 0, fmt.Errorf("load existing slots for facility %d doctor %d: %w", pk.facilityID, pk.doctorID, err)
	}

	seen := make(map[slotKey]struct{}, len(existing)+len(drafts))
	for _, s := range existing {
		seen[keyOf(s.StartAt, s.EndAt)] = struct{}{}
	}

	fresh := make([]SlotDraft, 0, len(drafts))
	for _, d := range drafts {
		k := keyOf(d.StartAt, d.EndAt)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		fresh = append(fresh, d)
	}

	w.logger.Debug("slot drafts deduplicated",
		zap.Int64("facility_id", pk.facilityID),
		zap.Int64("doctor_id", pk.doctorID),
		zap.Int("drafts", len(drafts)),
		zap.Int("existing", len(existing)),
		zap.Int("to_insert", len(fresh)),
	)

	inserted := 0
	for start := 0; start < len(fresh); start += w.batchSize {
		end := start + w.batchSize
		if end > len(fresh) {
			end = len(fresh)
		}

		n, err := w.slots.InsertSlots(ctx, fresh[start:end])
		inserted += n
		if err != nil {
			return inserted, fmt.Errorf("insert slot batch %d-%d: %w", start, end, err)
		}
	}
	return inserted, nil
}
