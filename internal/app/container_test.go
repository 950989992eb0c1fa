package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/availability"
	"github.com/hackgods/clinic-slot-scheduling/internal/config"
)

func memoryConfig() config.Config {
	return config.Config{
		StoreBackend:          config.StoreMemory,
		LockBackend:           config.LockLocal,
		ReservationTTL:        10 * time.Minute,
		SlotLockTTL:           5 * time.Second,
		GenerationLockTTL:     time.Minute,
		GenerationHorizonDays: 30,
		GenerationWorkers:     2,
		InsertBatchSize:       500,
		Location:              time.UTC,
	}
}

func TestNewContainer_MemoryGeneratesSlots(t *testing.T) {
	ctx := context.Background()

	var results []availability.RuleResult
	c, err := NewContainer(ctx, memoryConfig(), zap.NewNop(), WithProgress(func(r availability.RuleResult) {
		results = append(results, r)
	}))
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.Pool)
	assert.Nil(t, c.Redis)

	start, err := availability.ParseTimeOfDay("09:00")
	require.NoError(t, err)
	end, err := availability.ParseTimeOfDay("10:00")
	require.NoError(t, err)
	require.NoError(t, c.Store.CreateRule(ctx, &availability.Rule{
		FacilityID:          1,
		DoctorID:            1,
		DayOfWeek:           int(time.Monday),
		StartTime:           start,
		EndTime:             end,
		SlotDurationMinutes: 30,
		Active:              true,
	}))

	summary, err := c.Generator.Run(ctx, availability.GenerateRequest{
		Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, 8, summary.TotalSlotsCreated)
	assert.Len(t, results, 1)
}

func TestNewContainer_RedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.LockBackend = config.LockRedis
	cfg.RedisAddr = mr.Addr()

	c, err := NewContainer(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()
	assert.NotNil(t, c.Redis)
}

func TestContainer_HorizonRequest(t *testing.T) {
	c := &Container{Config: memoryConfig()}
	req := c.HorizonRequest(time.Date(2025, 1, 10, 15, 30, 0, 0, time.UTC))

	assert.Equal(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), req.Start)
	assert.Equal(t, time.Date(2025, 2, 9, 0, 0, 0, 0, time.UTC), req.End)
	assert.Nil(t, req.FacilityID)
	assert.Nil(t, req.DoctorID)
}
