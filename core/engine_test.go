package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/attendrisk/attendrisk/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// termStart is the start of the first test session.
var termStart = time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)

// testSessions returns n daily one-hour sessions named s1..sn.
func testSessions(n int) []schema.SessionWindow {
	sessions := make([]schema.SessionWindow, n)
	for i := range n {
		start := termStart.AddDate(0, 0, i)
		sessions[i] = schema.SessionWindow{ID: fmt.Sprintf("s%d", i+1), Start: start, End: start.Add(time.Hour)}
	}
	return sessions
}

// testConfig returns the default configuration over n sessions of a term planned for planned sessions.
func testConfig(n, planned int) schema.EngineConfig {
	cfg := schema.DefaultEngineConfig()
	cfg.Sessions = testSessions(n)
	cfg.PlannedSessions = planned
	return cfg
}

// stamp formats a time offset from the start of session i (1-based).
func stamp(i int, offset time.Duration) string {
	return termStart.AddDate(0, 0, i-1).Add(offset).Format(time.RFC3339)
}

// termFixture has alice attending everything through the camera, bob missing
// everything, carol only on the roster and one broken log line.
func termFixture() schema.TermData {
	var data schema.TermData
	for i := 1; i <= 4; i++ {
		data.Detections = append(data.Detections, schema.VisionDetection{
			FrameTimestamp:     stamp(i, 2*time.Minute),
			StudentID:          "alice",
			DetectorConfidence: 0.95,
		})
		data.Logs = append(data.Logs, schema.LogRecord{
			StudentID:  "bob",
			SessionID:  fmt.Sprintf("s%d", i),
			Timestamp:  stamp(i, 0),
			StatusHint: "absent",
		})
	}
	data.Logs = append(data.Logs, schema.LogRecord{StudentID: "dave", SessionID: "s1", Timestamp: "yesterday"})
	return data
}

func fixtureConfig() schema.EngineConfig {
	cfg := testConfig(4, 8)
	cfg.Roster = []string{"carol"}
	return cfg
}

type recordingObserver struct {
	mu      sync.Mutex
	results []*schema.BatchResult
}

func (o *recordingObserver) ObserveBatch(result *schema.BatchResult, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result)
}

func TestEngineEvaluate(t *testing.T) {
	observer := &recordingObserver{}
	engine := NewEngine(WithWorkers(2), WithObserver(observer))

	result, err := engine.Evaluate(context.Background(), termFixture(), fixtureConfig())
	require.NoError(t, err)
	require.Len(t, result.Reports, 3)

	// bob and carol tie on score and are ordered by ID
	assert.Equal(t, "bob", result.Reports[0].StudentID)
	assert.Equal(t, "carol", result.Reports[1].StudentID)
	assert.Equal(t, "alice", result.Reports[2].StudentID)

	bob := result.Reports[0]
	assert.Equal(t, schema.AtRiskLabel, bob.RiskLabel)
	assert.Equal(t, 0, bob.Summary.AttendedSessions)
	assert.Equal(t, 4, bob.Summary.TotalSessions)
	assert.Equal(t, schema.FeatureMarginToThreshold, bob.Explanation[0].Factor)
	assert.False(t, bob.Outlook.Recoverable)

	alice := result.Reports[2]
	assert.Equal(t, schema.SafeLabel, alice.RiskLabel)
	assert.InDelta(t, 1.0, alice.Summary.CurrentPercentage, 1e-9)
	assert.Equal(t, 4, alice.Outlook.SessionsRemaining)
	assert.True(t, alice.Outlook.Recoverable)
	assert.Less(t, alice.RiskScore, bob.RiskScore)

	summary := result.Summary
	assert.Equal(t, 3, summary.StudentCount)
	assert.Equal(t, 1, summary.SkippedEventCount)
	assert.Equal(t, 12, summary.ProcessedSessionCount)
	assert.Equal(t, 0, summary.FallbackScoredCount)
	assert.Equal(t, 0, summary.UnevaluatedCount)
	assert.False(t, summary.Cancelled)
	require.Len(t, summary.Skipped, 1)
	assert.Equal(t, schema.LogSource, summary.Skipped[0].Source)
	assert.Equal(t, 4, summary.Skipped[0].Index)

	require.Len(t, observer.results, 1)
	assert.Same(t, result, observer.results[0])
}

func TestEngineEvaluate_ConfigurationError(t *testing.T) {
	cfg := fixtureConfig()
	cfg.RequiredPercentage = 1.5

	result, err := NewEngine().Evaluate(context.Background(), termFixture(), cfg)
	assert.Nil(t, result)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "required_percentage", cfgErr.Field)
}

func TestEngineEvaluate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	observer := &recordingObserver{}

	result, err := NewEngine(WithObserver(observer)).Evaluate(ctx, termFixture(), fixtureConfig())
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.True(t, result.Summary.Cancelled)
	assert.Equal(t, 3, result.Summary.UnevaluatedCount)
	assert.Empty(t, result.Reports)
	assert.Len(t, observer.results, 1)
}

func TestEngineEvaluate_EmptyInput(t *testing.T) {
	result, err := NewEngine().Evaluate(context.Background(), schema.TermData{}, testConfig(3, 0))
	require.NoError(t, err)
	assert.Empty(t, result.Reports)
	assert.Equal(t, 0, result.Summary.StudentCount)
}

func TestEngineEvaluate_Deterministic(t *testing.T) {
	data := termFixture()
	cfg := fixtureConfig()
	expected, err := NewEngine(WithWorkers(1)).Evaluate(context.Background(), data, cfg)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(7, 11))
	for workers := 1; workers <= 8; workers *= 2 {
		shuffled := schema.TermData{
			Logs:       append([]schema.LogRecord(nil), data.Logs...),
			Detections: append([]schema.VisionDetection(nil), data.Detections...),
		}
		rng.Shuffle(len(shuffled.Detections), func(i, j int) {
			shuffled.Detections[i], shuffled.Detections[j] = shuffled.Detections[j], shuffled.Detections[i]
		})

		got, err := NewEngine(WithWorkers(workers)).Evaluate(context.Background(), shuffled, cfg)
		require.NoError(t, err)
		assert.Equal(t, expected.Reports, got.Reports, "workers=%d", workers)
	}
}

func TestEngineEvaluate_PredictorFallback(t *testing.T) {
	failing := PredictorFunc(func(f schema.RiskFeatures) (float64, error) {
		if f.StudentID == "alice" {
			return 0, errors.New("model server down")
		}
		return 0.5, nil
	})

	result, err := NewEngine(WithPredictor(failing)).Evaluate(context.Background(), termFixture(), fixtureConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Summary.FallbackScoredCount)

	alice, ok := result.FindReport("alice")
	require.True(t, ok)
	assert.True(t, alice.FallbackScored)
	assert.Equal(t, schema.SafeLabel, alice.RiskLabel)

	bob, ok := result.FindReport("bob")
	require.True(t, ok)
	assert.False(t, bob.FallbackScored)
	assert.InDelta(t, 0.5, bob.RiskScore, 1e-9)
	assert.Equal(t, schema.WatchLabel, bob.RiskLabel)
}

func TestEngineEvaluate_SerializedPredictor(t *testing.T) {
	var mu sync.Mutex
	active, peak := 0, 0
	p := PredictorFunc(func(schema.RiskFeatures) (float64, error) {
		mu.Lock()
		active++
		peak = max(peak, active)
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return 0.1, nil
	})

	result, err := NewEngine(WithWorkers(4), WithSerializedPredictor(p)).Evaluate(context.Background(), termFixture(), fixtureConfig())
	require.NoError(t, err)
	assert.Len(t, result.Reports, 3)
	assert.Equal(t, 1, peak)
}

func TestEvaluateStudent_PanicBecomesFailure(t *testing.T) {
	e := NewEngine()
	// A nil rule model panics inside the pipeline
	out := e.evaluateStudent("zoe", nil, testConfig(2, 0), nil)
	require.NotNil(t, out.failure)
	assert.Equal(t, "zoe", out.failure.StudentID)
	assert.NotEmpty(t, out.failure.Reason)
}

func TestNewEngine_Options(t *testing.T) {
	e := NewEngine(WithWorkers(0))
	assert.Positive(t, e.workers)

	e = NewEngine(WithWorkers(3))
	assert.Equal(t, 3, e.workers)
	assert.Nil(t, e.predictor)
}

func BenchmarkEngineEvaluate(b *testing.B) {
	cfg := testConfig(40, 60)
	var data schema.TermData
	for s := range 200 {
		for i := 1; i <= 40; i++ {
			if (s+i)%5 == 0 {
				continue
			}
			data.Detections = append(data.Detections, schema.VisionDetection{
				FrameTimestamp:     stamp(i, time.Duration(s%20)*time.Minute),
				StudentID:          fmt.Sprintf("student-%03d", s),
				DetectorConfidence: 0.9,
			})
		}
	}
	engine := NewEngine()
	b.ResetTimer()
	for b.Loop() {
		if _, err := engine.Evaluate(context.Background(), data, cfg); err != nil {
			b.Fatal(err)
		}
	}
}
