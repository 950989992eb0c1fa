package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/config"
	"github.com/hackgods/clinic-slot-scheduling/internal/db"
	"github.com/hackgods/clinic-slot-scheduling/internal/logging"
)

const (
	facilityCount        = 10
	doctorsPerFacility   = 10
	patientCount         = 9000
	exceptionProbability = 0.2
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load error", zap.Error(err))
	}
	if cfg.StoreBackend != config.StorePostgres {
		zap.NewExample().Fatal("seed needs STORE_BACKEND=postgres")
	}

	logger := logging.New(cfg.Env).Named("seed")
	defer func() { _ = logger.Sync() }()
	logger.Info("seed starting")

	ctx := context.Background()

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN, cfg.DBMaxConns)
	cancel()
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	migrator, err := db.NewMigrator(pool, logger)
	if err != nil {
		logger.Fatal("init migrator", zap.Error(err))
	}
	if err := migrator.Up(ctx); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	_ = migrator.Close()

	gofakeit.Seed(time.Now().UnixNano())

	s := &seeder{pool: pool, logger: logger, loc: cfg.Location}

	facilities, err := s.seedFacilities(ctx, facilityCount)
	if err != nil {
		logger.Fatal("seed facilities", zap.Error(err))
	}
	doctors, err := s.seedDoctors(ctx, facilityCount*doctorsPerFacility)
	if err != nil {
		logger.Fatal("seed doctors", zap.Error(err))
	}
	if err := s.seedRules(ctx, facilities, doctors); err != nil {
		logger.Fatal("seed rules", zap.Error(err))
	}
	if err := s.seedPatients(ctx, patientCount); err != nil {
		logger.Fatal("seed patients", zap.Error(err))
	}

	logger.Info("seed complete")
}

type seeder struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	loc    *time.Location
}

func (s *seeder) seedFacilities(ctx context.Context, count int) ([]int64, error) {
	s.logger.Info("seeding facilities", zap.Int("count", count))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	services := []string{"Consultation", "Follow-up", "Vaccination", "Check-up", "Lab review"}

	ids := make([]int64, 0, count)
	for i := 0; i < count; i++ {
		var id int64
		name := fmt.Sprintf("%s %s Clinic", gofakeit.City(), gofakeit.StreetSuffix())
		if err := tx.QueryRow(ctx, `INSERT INTO facilities (name) VALUES ($1) RETURNING id`, name).Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)

		for _, svc := range services {
			_, err := tx.Exec(ctx, `
				INSERT INTO service_offerings (facility_id, name, duration_minutes)
				VALUES ($1, $2, $3)
			`, id, svc, []int{15, 20, 30}[gofakeit.Number(0, 2)])
			if err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *seeder) seedDoctors(ctx context.Context, count int) ([]int64, error) {
	s.logger.Info("seeding doctors", zap.Int("count", count))

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]int64, 0, count)
	for i := 0; i < count; i++ {
		var id int64
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		if err := tx.QueryRow(ctx, `
			INSERT INTO doctors (name, specialty) VALUES ($1, $2) RETURNING id
		`, name, spec).Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

// seedRules gives every doctor weekday morning and afternoon sessions at one
// facility, and blocks a random day within the next month for some of them.
func (s *seeder) seedRules(ctx context.Context, facilities, doctors []int64) error {
	s.logger.Info("seeding availability rules", zap.Int("doctors", len(doctors)))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	sessions := []struct{ start, end time.Duration }{
		{9 * time.Hour, 12 * time.Hour},
		{13 * time.Hour, 17 * time.Hour},
	}

	rules, exceptions := 0, 0
	for i, doctorID := range doctors {
		facilityID := facilities[i%len(facilities)]
		duration := []int{15, 20, 30}[gofakeit.Number(0, 2)]

		for dow := 1; dow <= 5; dow++ {
			if gofakeit.Float64() < 0.2 {
				continue
			}
			for _, sess := range sessions {
				_, err := tx.Exec(ctx, `
					INSERT INTO availability_rules (
						doctor_id, facility_id, day_of_week, start_time, end_time, slot_duration_minutes, meta
					)
					VALUES ($1, $2, $3, $4, $5, $6, $7)
				`, doctorID, facilityID, int16(dow),
					pgtype.Time{Microseconds: sess.start.Microseconds(), Valid: true},
					pgtype.Time{Microseconds: sess.end.Microseconds(), Valid: true},
					duration,
					map[string]any{"room": fmt.Sprintf("%d%s", gofakeit.Number(1, 4), gofakeit.RandomString([]string{"A", "B", "C"}))},
				)
				if err != nil {
					return err
				}
				rules++
			}
		}

		if gofakeit.Float64() < exceptionProbability {
			day := time.Now().In(s.loc).AddDate(0, 0, gofakeit.Number(1, 30))
			start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.loc)
			_, err := tx.Exec(ctx, `
				INSERT INTO availability_exceptions (facility_id, doctor_id, start_at, end_at, type, reason)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, facilityID, doctorID, start, start.Add(24*time.Hour-time.Second),
				gofakeit.RandomString([]string{"blocked", "override", "emergency"}),
				gofakeit.RandomString([]string{"annual leave", "conference", "sick day", "training"}),
			)
			if err != nil {
				return err
			}
			exceptions++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.logger.Info("rules seeded", zap.Int("rules", rules), zap.Int("exceptions", exceptions))
	return nil
}

func (s *seeder) seedPatients(ctx context.Context, count int) error {
	s.logger.Info("seeding patients", zap.Int("count", count))

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (name, email) VALUES ($1, $2)
			`, gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		s.logger.Info("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}

	return nil
}
