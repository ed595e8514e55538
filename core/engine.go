package core

import (
	"cmp"
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/attendrisk/attendrisk/core/agg"
	"github.com/attendrisk/attendrisk/core/algo"
	"github.com/attendrisk/attendrisk/schema"
	"github.com/rs/zerolog"
)

// BatchObserver is notified once per finished evaluation, including cancelled ones.
type BatchObserver interface {
	ObserveBatch(result *schema.BatchResult, elapsed time.Duration)
}

// Engine runs the attendance pipeline. It holds no per-evaluation state, so one
// Engine may evaluate several terms concurrently.
type Engine struct {
	predictor Predictor
	workers   int
	logger    zerolog.Logger
	observer  BatchObserver
}

// Option configures an Engine.
type Option func(*Engine)

// WithPredictor injects an external predictor. Without one the rule model scores.
func WithPredictor(p Predictor) Option {
	return func(e *Engine) { e.predictor = p }
}

// WithSerializedPredictor injects a stateful predictor that must not be called concurrently.
func WithSerializedPredictor(p Predictor) Option {
	return func(e *Engine) { e.predictor = Serialized(p) }
}

// WithWorkers sets the number of per-student workers.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithObserver registers a batch observer.
func WithObserver(o BatchObserver) Option {
	return func(e *Engine) { e.observer = o }
}

// NewEngine creates an engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		workers: runtime.GOMAXPROCS(0),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// studentOutcome is what one worker hands back for one student.
type studentOutcome struct {
	report  schema.RiskReport
	records int
	failure *schema.StudentFailure
}

// Evaluate turns raw term data into one ranked RiskReport per student.
// An invalid configuration returns a *ConfigurationError before any input is read.
// Malformed inputs and predictor failures never abort the batch; they are counted in
// the summary. When ctx is cancelled no further students are started, and the partial
// result is returned together with the context error.
func (e *Engine) Evaluate(ctx context.Context, data schema.TermData, cfg schema.EngineConfig) (*schema.BatchResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	start := time.Now()

	events, stats := Normalize(data, cfg)
	for _, s := range stats.Skipped {
		e.logger.Debug().Int("index", s.Index).Str("source", string(s.Source)).Str("reason", s.Reason).Msg("skipped event")
	}

	byStudent := agg.GroupByStudent(events)
	students := agg.Students(byStudent, cfg)
	rule := algo.NewRuleModel(cfg.EffectiveWeights())

	jobCh := make(chan string)
	outCh := make(chan studentOutcome, len(students))
	var wg sync.WaitGroup
	for range min(e.workers, max(1, len(students))) {
		wg.Go(func() {
			for id := range jobCh {
				outCh <- e.evaluateStudent(id, byStudent[id], cfg, rule)
			}
		})
	}

	dispatched := 0
dispatch:
	for _, id := range students {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobCh <- id:
			dispatched++
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobCh)
	wg.Wait()
	close(outCh)

	result := &schema.BatchResult{
		Reports: make([]schema.RiskReport, 0, dispatched),
		Summary: schema.BatchSummary{
			StudentCount:           len(students),
			SkippedEventCount:      len(stats.Skipped),
			FilteredDetectionCount: stats.FilteredDetections,
			UnevaluatedCount:       len(students) - dispatched,
			Cancelled:              dispatched < len(students),
			Skipped:                stats.Skipped,
		},
	}
	for out := range outCh {
		result.Summary.ProcessedSessionCount += out.records
		if out.failure != nil {
			result.Summary.Failed = append(result.Summary.Failed, *out.failure)
			continue
		}
		if out.report.FallbackScored {
			result.Summary.FallbackScoredCount++
		}
		result.Reports = append(result.Reports, out.report)
	}
	result.Reports = algo.RankReports(result.Reports, 0)
	slices.SortFunc(result.Summary.Failed, func(a, b schema.StudentFailure) int {
		return cmp.Compare(a.StudentID, b.StudentID)
	})

	elapsed := time.Since(start)
	e.logger.Info().
		Int("students", result.Summary.StudentCount).
		Int("reports", len(result.Reports)).
		Int("skipped_events", result.Summary.SkippedEventCount).
		Int("fallback_scored", result.Summary.FallbackScoredCount).
		Bool("cancelled", result.Summary.Cancelled).
		Dur("elapsed", elapsed).
		Msg("evaluation finished")
	if e.observer != nil {
		e.observer.ObserveBatch(result, elapsed)
	}

	if result.Summary.Cancelled {
		return result, context.Cause(ctx)
	}
	return result, nil
}

// evaluateStudent runs aggregation through explanation for one student.
// A panic becomes a StudentFailure instead of reaching the other workers.
func (e *Engine) evaluateStudent(studentID string, events []schema.PresenceEvent, cfg schema.EngineConfig, rule *algo.RuleModel) (out studentOutcome) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Str("student_id", studentID).Interface("panic", r).Msg("student evaluation failed")
			out = studentOutcome{failure: &schema.StudentFailure{StudentID: studentID, Reason: fmt.Sprintf("%v", r)}}
		}
	}()

	records := agg.AggregateStudent(studentID, events, cfg)
	summary := agg.SummarizeStudent(studentID, records, cfg)
	features := BuildFeatures(summary, cfg)

	pred := predict(e.predictor, rule, features)
	if pred.err != nil {
		e.logger.Warn().Err(pred.err).Str("student_id", studentID).Msg("predictor unavailable, using rule model")
	}

	return studentOutcome{
		records: len(records),
		report: schema.RiskReport{
			StudentID:      studentID,
			RiskScore:      pred.score,
			RiskLabel:      algo.Label(pred.score, cfg.RiskCutoffs),
			Explanation:    Explain(features, pred.attribution),
			FallbackScored: pred.fallback,
			Summary:        summary,
			Features:       features,
			Outlook:        ComputeOutlook(summary, cfg),
		},
	}
}
