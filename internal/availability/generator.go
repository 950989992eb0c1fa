package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// GenerateRequest selects the rules and the inclusive date range of a run.
type GenerateRequest struct {
	FacilityID *int64
	DoctorID   *int64
	Start      time.Time
	End        time.Time
}

// RuleResult describes what one rule contributed to a run.
type RuleResult struct {
	Rule         Rule
	Dates        int
	BlockedDates int
	Drafts       int
	Created      int
	Err          error
}

type RuleFailure struct {
	RuleID int64
	Err    error
}

// Summary aggregates a run. RulesProcessed counts every rule attempted,
// failed ones included.
type Summary struct {
	RulesProcessed    int
	RulesFailed       int
	TotalSlotsCreated int
	DatesBlocked      int
	Failures          []RuleFailure
}

type GeneratorOption func(*Generator)

// WithWorkers processes up to n facility/doctor pairs concurrently.
func WithWorkers(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.workers = n
		}
	}
}

// WithLocation sets the wall clock in which dates and rule times are combined.
func WithLocation(loc *time.Location) GeneratorOption {
	return func(g *Generator) {
		if loc != nil {
			g.loc = loc
		}
	}
}

// WithProgress registers a callback invoked after each rule. With more than
// one worker it may be called concurrently.
func WithProgress(fn func(RuleResult)) GeneratorOption {
	return func(g *Generator) {
		g.progress = fn
	}
}

// Generator turns active rules into stored slots.
type Generator struct {
	rules      RuleStore
	exceptions ExceptionStore
	writer     *BatchWriter
	logger     *zap.Logger
	workers    int
	loc        *time.Location
	progress   func(RuleResult)
}

func NewGenerator(rules RuleStore, exceptions ExceptionStore, writer *BatchWriter, logger *zap.Logger, opts ...GeneratorOption) *Generator {
	g := &Generator{
		rules:      rules,
		exceptions: exceptions,
		writer:     writer,
		logger:     logger,
		workers:    1,
		loc:        time.UTC,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run generates slots for every active rule matching the request. A rule that
// fails is logged and reported in the summary; the other rules still run.
// Only failing to load the rules aborts the run.
func (g *Generator) Run(ctx context.Context, req GenerateRequest) (Summary, error) {
	start := StartOfDay(req.Start.In(g.loc))
	end := StartOfDay(req.End.In(g.loc))
	if end.Before(start) {
		return Summary{}, fmt.Errorf("generation range end %s is before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	rules, err := g.rules.ListRules(ctx, RuleFilter{
		FacilityID: req.FacilityID,
		DoctorID:   req.DoctorID,
		ActiveOnly: true,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("list active rules: %w", err)
	}

	g.logger.Info("slot generation started",
		zap.String("start", start.Format(time.DateOnly)),
		zap.String("end", end.Format(time.DateOnly)),
		zap.Int("rules", len(rules)),
		zap.Int("workers", g.workers),
	)

	// Rules of the same pair share a lock, so they run one after another in
	// the same worker; distinct pairs may run in parallel.
	groups := groupByPair(rules)
	results := make([][]RuleResult, len(groups))

	// A group returns its first rule failure; errgroup.Group has no shared
	// context, so a failing group never cancels the others.
	var eg errgroup.Group
	eg.SetLimit(g.workers)
	for i, group := range groups {
		eg.Go(func() error {
			out := make([]RuleResult, 0, len(group))
			var firstErr error
			for _, rule := range group {
				res := g.generateForRule(ctx, rule, start, end)
				if g.progress != nil {
					g.progress(res)
				}
				if res.Err != nil && firstErr == nil {
					firstErr = fmt.Errorf("rule %d: %w", rule.ID, res.Err)
				}
				out = append(out, res)
			}
			results[i] = out
			return firstErr
		})
	}
	waitErr := eg.Wait()

	var summary Summary
	for _, group := range results {
		for _, res := range group {
			summary.RulesProcessed++
			summary.TotalSlotsCreated += res.Created
			summary.DatesBlocked += res.BlockedDates
			if res.Err != nil {
				summary.RulesFailed++
				summary.Failures = append(summary.Failures, RuleFailure{RuleID: res.Rule.ID, Err: res.Err})
			}
		}
	}

	fields := []zap.Field{
		zap.Int("rules_processed", summary.RulesProcessed),
		zap.Int("rules_failed", summary.RulesFailed),
		zap.Int("dates_blocked", summary.DatesBlocked),
		zap.Int("total_slots_created", summary.TotalSlotsCreated),
	}
	if waitErr != nil {
		g.logger.Warn("slot generation finished with failures", append(fields, zap.NamedError("first_failure", waitErr))...)
	} else {
		g.logger.Info("slot generation finished", fields...)
	}

	return summary, nil
}

func (g *Generator) generateForRule(ctx context.Context, rule Rule, start, end time.Time) RuleResult {
	res := RuleResult{Rule: rule}
	log := g.logger.With(
		zap.Int64("rule_id", rule.ID),
		zap.Int64("facility_id", rule.FacilityID),
		zap.Int64("doctor_id", rule.DoctorID),
	)

	dates := ExpandDates(rule.DayOfWeek, start, end)
	res.Dates = len(dates)
	if len(dates) == 0 {
		log.Debug("no matching dates in range", zap.Int("day_of_week", rule.DayOfWeek))
		return res
	}

	rangeEnd := end.AddDate(0, 0, 1).Add(-time.Second)
	exceptions, err := g.exceptions.ListExceptionsForRule(ctx, rule, start, rangeEnd)
	if err != nil {
		res.Err = fmt.Errorf("load exceptions: %w", err)
		log.Error("rule generation failed", zap.Error(res.Err))
		return res
	}
	resolver := NewExceptionResolver(exceptions)

	var drafts []SlotDraft
	for _, date := range dates {
		if ex, blocked := resolver.BlockingException(rule, date); blocked {
			res.BlockedDates++
			log.Debug("date blocked by exception",
				zap.String("date", date.Format(time.DateOnly)),
				zap.Int64("exception_id", ex.ID),
				zap.String("exception_type", string(ex.Type)),
				zap.String("reason", ex.Reason),
			)
			continue
		}
		drafts = append(drafts, Synthesize(rule, date)...)
	}
	res.Drafts = len(drafts)

	created, err := g.writer.Write(ctx, drafts)
	res.Created = created
	if err != nil {
		res.Err = fmt.Errorf("write slots: %w", err)
		log.Error("rule generation failed", zap.Int("created_before_failure", created), zap.Error(res.Err))
		return res
	}

	log.Info("rule processed",
		zap.Int("dates", res.Dates),
		zap.Int("blocked_dates", res.BlockedDates),
		zap.Int("drafts", res.Drafts),
		zap.Int("created", res.Created),
	)
	return res
}

func groupByPair(rules []Rule) [][]Rule {
	index := make(map[pairKey]int)
	var groups [][]Rule
	for _, r := range rules {
		k := pairKey{facilityID: r.FacilityID, doctorID: r.DoctorID}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}
	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool { return g[i].ID < g[j].ID })
	}
	return groups
}
