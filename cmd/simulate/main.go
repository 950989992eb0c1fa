package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/config"
	"github.com/hackgods/clinic-slot-scheduling/internal/db"
	"github.com/hackgods/clinic-slot-scheduling/internal/logging"
)

// Simulator drives concurrent reserve/book traffic against a running
// api-server to exercise the per-slot locking.

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	ReserveRatio float64
	BookRatio    float64
	SearchRatio  float64
	SlotLimit    int
	PatientLimit int
	PostgresDSN  string
}

type DataPool struct {
	Slots      []int64
	Facilities []int64
	Patients   []int64
	mu         sync.RWMutex
	reserved   []int64 // slots this run reserved and has not booked yet
}

func (dp *DataPool) AddReserved(id int64) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.reserved = append(dp.reserved, id)
}

// TakeReserved removes and returns a random reserved slot.
func (dp *DataPool) TakeReserved(rng *rand.Rand) (int64, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.reserved) == 0 {
		return 0, false
	}
	idx := rng.Intn(len(dp.reserved))
	id := dp.reserved[idx]
	dp.reserved[idx] = dp.reserved[len(dp.reserved)-1]
	dp.reserved = dp.reserved[:len(dp.reserved)-1]
	return id, true
}

func (dp *DataPool) RandomPatient(rng *rand.Rand) int64 {
	return dp.Patients[rng.Intn(len(dp.Patients))]
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]

	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Reserve OperationMetrics
	Book    OperationMetrics
	Search  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  *zap.Logger
}

func main() {
	logger := logging.New(os.Getenv("APP_ENV")).Named("simulate")
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig(logger)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("reserve", cfg.ReserveRatio),
		zap.Float64("book", cfg.BookRatio),
		zap.Float64("search", cfg.SearchRatio),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, 4)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}

	logger.Info("data loaded",
		zap.Int("slots", len(dataPool.Slots)),
		zap.Int("patients", len(dataPool.Patients)),
		zap.Int("facilities", len(dataPool.Facilities)),
	)

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig(logger *zap.Logger) SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load base config", zap.Error(err))
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		ReserveRatio: getFloat("SIM_RESERVE_RATIO", 0.5),
		BookRatio:    getFloat("SIM_BOOK_RATIO", 0.2),
		SearchRatio:  getFloat("SIM_SEARCH_RATIO", 0.3),
		SlotLimit:    getInt("SIM_SLOT_LIMIT", 2400),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 1000),
		PostgresDSN:  baseCfg.PostgresDSN,
	}

	// Normalize ratios
	total := cfg.ReserveRatio + cfg.BookRatio + cfg.SearchRatio
	if total > 0 {
		cfg.ReserveRatio /= total
		cfg.BookRatio /= total
		cfg.SearchRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT id FROM availability_slots
		WHERE status = 'open' AND start_at > now()
		ORDER BY start_at
		LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Slots = append(dataPool.Slots, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = pool.Query(ctx, `SELECT id FROM patients ORDER BY id LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = pool.Query(ctx, `SELECT id FROM facilities`)
	if err != nil {
		return nil, fmt.Errorf("load facilities: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Facilities = append(dataPool.Facilities, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Slots) == 0 {
		return nil, fmt.Errorf("no open slots loaded, run slotctl generate first")
	}
	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run the seeder first")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("starting simulation", zap.Duration("duration", s.config.Duration), zap.Int("workers", s.config.Workers))

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.ReserveRatio:
				s.doReserve(ctx, rng)
			case r < s.config.ReserveRatio+s.config.BookRatio:
				s.doBook(ctx, rng)
			default:
				s.doSearch(ctx, rng)
			}
		}
	}
}

// post sends a POST with an optional JSON body and reports success and
// conflict.
func (s *Simulator) post(ctx context.Context, url string, body any) (time.Duration, bool, bool) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, false, false
		}
	}

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return latency, false, false
	}
	defer resp.Body.Close()
	return latency, resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusConflict
}

func (s *Simulator) doReserve(ctx context.Context, rng *rand.Rand) {
	slotID := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	latency, success, conflict := s.post(ctx, fmt.Sprintf("%s/slots/%d/reserve", s.config.APIBaseURL, slotID), nil)
	if success {
		s.pool.AddReserved(slotID)
	}
	s.metrics.Reserve.Record(latency, success, conflict)
}

func (s *Simulator) doBook(ctx context.Context, rng *rand.Rand) {
	slotID, ok := s.pool.TakeReserved(rng)
	if !ok {
		return
	}

	body := map[string]int64{"patient_id": s.pool.RandomPatient(rng)}
	latency, success, conflict := s.post(ctx, fmt.Sprintf("%s/slots/%d/book", s.config.APIBaseURL, slotID), body)
	s.metrics.Book.Record(latency, success, conflict)
}

func (s *Simulator) doSearch(ctx context.Context, rng *rand.Rand) {
	url := s.config.APIBaseURL + "/slots?limit=20"
	if len(s.pool.Facilities) > 0 {
		url += fmt.Sprintf("&facility_id=%d", s.pool.Facilities[rng.Intn(len(s.pool.Facilities))])
	}

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.Search.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Reserve", &s.metrics.Reserve)
	printOperationReport("Book", &s.metrics.Book)
	printOperationReport("Search", &s.metrics.Search)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
