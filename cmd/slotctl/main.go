package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/app"
	"github.com/hackgods/clinic-slot-scheduling/internal/availability"
	"github.com/hackgods/clinic-slot-scheduling/internal/config"
	"github.com/hackgods/clinic-slot-scheduling/internal/db"
	"github.com/hackgods/clinic-slot-scheduling/internal/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "slotctl",
		Short:         "Operator tooling for availability slots",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(migrateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logging.New(cfg.Env), nil
}

// resolveRange turns optional YYYY-MM-DD flags into an inclusive date range.
// from defaults to today, to defaults to from plus horizonDays.
func resolveRange(from, to string, loc *time.Location, now time.Time, horizonDays int) (time.Time, time.Time, error) {
	start := availability.StartOfDay(now.In(loc))
	if from != "" {
		t, err := time.ParseInLocation(time.DateOnly, from, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from %q, expected YYYY-MM-DD", from)
		}
		start = t
	}

	end := start.AddDate(0, 0, horizonDays)
	if to != "" {
		t, err := time.ParseInLocation(time.DateOnly, to, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to %q, expected YYYY-MM-DD", to)
		}
		end = t
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to %s is before --from %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	return start, end, nil
}

func optionalID(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

func generateCmd() *cobra.Command {
	var (
		facilityID int64
		doctorID   int64
		from       string
		to         string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate slots from active availability rules",
		Long: `Generate slots for every active rule, optionally narrowed to one
facility and/or doctor. Existing slots are never duplicated, so the command
is safe to rerun over overlapping ranges.

Examples:
  slotctl generate                                   # today + 30 days, all rules
  slotctl generate --facility 3 --doctor 12
  slotctl generate --from 2025-01-01 --to 2025-01-31`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			start, end, err := resolveRange(from, to, cfg.Location, time.Now(), cfg.GenerationHorizonDays)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var mu sync.Mutex
			progress := func(res availability.RuleResult) {
				mu.Lock()
				defer mu.Unlock()
				if res.Err != nil {
					fmt.Fprintf(out, "rule %d (facility %d, doctor %d): FAILED: %v\n",
						res.Rule.ID, res.Rule.FacilityID, res.Rule.DoctorID, res.Err)
					return
				}
				fmt.Fprintf(out, "rule %d (facility %d, doctor %d): %d dates, %d blocked, %d slots created\n",
					res.Rule.ID, res.Rule.FacilityID, res.Rule.DoctorID, res.Dates, res.BlockedDates, res.Created)
			}

			c, err := app.NewContainer(cmd.Context(), cfg, logger, app.WithProgress(progress))
			if err != nil {
				return err
			}
			defer c.Close()

			fmt.Fprintf(out, "generating slots %s .. %s\n", start.Format(time.DateOnly), end.Format(time.DateOnly))

			summary, err := c.Generator.Run(context.WithoutCancel(cmd.Context()), availability.GenerateRequest{
				FacilityID: optionalID(facilityID),
				DoctorID:   optionalID(doctorID),
				Start:      start,
				End:        end,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "done: %d rules processed, %d failed, %d slots created\n",
				summary.RulesProcessed, summary.RulesFailed, summary.TotalSlotsCreated)
			if summary.RulesFailed > 0 {
				return fmt.Errorf("%d rules failed", summary.RulesFailed)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&facilityID, "facility", 0, "Only rules of this facility")
	cmd.Flags().Int64Var(&doctorID, "doctor", 0, "Only rules of this doctor")
	cmd.Flags().StringVar(&from, "from", "", "First date (YYYY-MM-DD), default today")
	cmd.Flags().StringVar(&to, "to", "", "Last date (YYYY-MM-DD), default from + horizon")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Release reservations whose hold has expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			c, err := app.NewContainer(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()

			released, err := c.Sweeper.Sweep(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "released %d expired reservations\n", released)
			return nil
		},
	}
}

func reconcileCmd() *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Align slot status with the appointments attached to slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			start, end, err := resolveRange(from, to, cfg.Location, time.Now(), cfg.GenerationHorizonDays)
			if err != nil {
				return err
			}

			c, err := app.NewContainer(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.Reconciler.Reconcile(cmd.Context(), start, end.AddDate(0, 0, 1).Add(-time.Second))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "booked %d slots, reopened %d slots\n", res.Booked, res.Reopened)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "First date (YYYY-MM-DD), default today")
	cmd.Flags().StringVar(&to, "to", "", "Last date (YYYY-MM-DD), default from + horizon")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	withMigrator := func(cmd *cobra.Command, fn func(context.Context, *db.Migrator) error) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		if cfg.StoreBackend != config.StorePostgres {
			return fmt.Errorf("migrations need STORE_BACKEND=%s", config.StorePostgres)
		}

		pool, err := db.ConnectPostgres(cmd.Context(), cfg.PostgresDSN, cfg.DBMaxConns)
		if err != nil {
			return err
		}
		defer pool.Close()

		m, err := db.NewMigrator(pool, logger)
		if err != nil {
			return err
		}
		defer func() { _ = m.Close() }()

		return fn(cmd.Context(), m)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				return m.Up(ctx)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				v, err := m.Version(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
				return nil
			})
		},
	})

	return cmd
}
