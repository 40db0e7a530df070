package learning

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/program-extract/internal/model"
)

var testTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestProvideFeedback_UnknownKey(t *testing.T) {
	e := newTestEngine(t, NewMemoryStore(), DefaultConfig())
	rec, err := e.ProvideFeedback(context.Background(), "missing", true, nil)
	assert.Nil(t, rec)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrHistoryNotFound))
}

func TestProvideFeedback_ConfirmingSuccessKeepsCounts(t *testing.T) {
	store := NewMemoryStore()
	e := newTestEngine(t, store, DefaultConfig())
	ctx := context.Background()
	key := e.RecordExtraction(ctx, attempt("https://a.org", "phone", "pattern-matching", "305-555-1234", 0.9, ""))

	rec, err := e.ProvideFeedback(ctx, key, true, nil)
	require.NoError(t, err)
	assert.Nil(t, rec)

	perf, _ := e.Performance("phone", "pattern-matching")
	assert.Equal(t, 1, perf.Attempts)
	assert.Equal(t, 1, perf.Successes)
	assert.Equal(t, 0, perf.Failures)
	hist := e.History(HistoryFilter{})
	require.Len(t, hist, 1)
	assert.True(t, hist[0].Verified)
	require.NotNil(t, hist[0].Feedback)
	assert.True(t, hist[0].Feedback.IsCorrect)
	assert.Equal(t, int64(2), store.Revision())
}

func TestProvideFeedback_CorrectionSeedsPattern(t *testing.T) {
	e := newTestEngine(t, NewMemoryStore(), DefaultConfig())
	ctx := context.Background()
	key := e.RecordExtraction(ctx, attempt("https://a.org", "license", "pattern-matching", "12345", 0.8, ""))

	rec, err := e.ProvideFeedback(ctx, key, false, "License #67890")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.CorrectionDifferentValue, rec.Analysis.Type)
	assert.Equal(t, "a.org", rec.Domain)
	assert.NotEmpty(t, rec.SuggestedPattern)

	perf, _ := e.Performance("license", "pattern-matching")
	assert.Equal(t, 1, perf.Attempts)
	assert.Equal(t, 0, perf.Successes)
	assert.Equal(t, 1, perf.Failures)

	best := e.patterns.BestPatterns("license", 1)
	require.Len(t, best, 1)
	assert.Equal(t, rec.SuggestedPattern, best[0].Pattern.String())
	assert.Len(t, e.state.Corrections["license"], 1)
}

func TestProvideFeedback_RepeatedRejection(t *testing.T) {
	e := newTestEngine(t, NewMemoryStore(), DefaultConfig())
	ctx := context.Background()
	key := e.RecordExtraction(ctx, attempt("https://lakeside.org", "insurance", "fuzzy-matching", "Aetna", 0.8, ""))

	rec := e.GetOptimizedStrategy("insurance", "lakeside.org")
	require.Equal(t, BasisDomain, rec.Basis)
	assert.Equal(t, []string{"fuzzy-matching"}, rec.StrategyNames())

	for range 3 {
		_, err := e.ProvideFeedback(ctx, key, false, nil)
		require.NoError(t, err)
	}

	perf, _ := e.Performance("insurance", "fuzzy-matching")
	assert.Equal(t, 1, perf.Attempts)
	assert.Equal(t, 0, perf.Successes)
	assert.Equal(t, 1, perf.Failures)

	stats, ok := e.Profile("lakeside.org")
	require.True(t, ok)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 0, stats.Successful)

	rec = e.GetOptimizedStrategy("insurance", "lakeside.org")
	assert.Equal(t, BasisNone, rec.Basis)
	assert.Empty(t, rec.Strategies)

	warnings := e.GetFieldWarnings("insurance", "lakeside.org")
	require.Len(t, warnings, 1)
	assert.Equal(t, WarningHighFailureRate, warnings[0].Type)
	assert.InDelta(t, 1.0, warnings[0].Rate, 0.0001)
	assert.Equal(t, "fuzzy-matching fails 100% of 1 attempts for insurance", warnings[0].Message)
}

func TestProvideFeedback_VerdictReplacesPrevious(t *testing.T) {
	e := newTestEngine(t, NewMemoryStore(), DefaultConfig())
	ctx := context.Background()
	key := e.RecordExtraction(ctx, attempt("https://lakeside.org", "phone", "pattern-matching", "305-555-1234", 0.9, ""))
	e.RecordExtraction(ctx, attempt("https://lakeside.org", "phone", "pattern-matching", "305-555-1234", 0.7, ""))

	_, err := e.ProvideFeedback(ctx, key, false, "305-555-0000")
	require.NoError(t, err)
	_, err = e.ProvideFeedback(ctx, key, false, "305-555-9999")
	require.NoError(t, err)

	require.Len(t, e.state.Corrections["phone"], 1)
	assert.Equal(t, "305-555-9999", e.state.Corrections["phone"][0].Corrected)
	assert.Equal(t, key, e.state.Corrections["phone"][0].HistoryKey)

	perf, _ := e.Performance("phone", "pattern-matching")
	assert.Equal(t, 2, perf.Attempts)
	assert.Equal(t, 1, perf.Successes)
	assert.Equal(t, 1, perf.Failures)

	rec := e.GetOptimizedStrategy("phone", "lakeside.org")
	require.Equal(t, BasisDomain, rec.Basis)
	require.Len(t, rec.Strategies, 1)
	assert.Equal(t, 1, rec.Strategies[0].Count)
	assert.InDelta(t, 0.7, rec.Strategies[0].AvgConfidence, 0.0001)

	// Reversing the verdict restores the success and clears the correction.
	_, err = e.ProvideFeedback(ctx, key, true, nil)
	require.NoError(t, err)
	assert.Empty(t, e.state.Corrections["phone"])

	perf, _ = e.Performance("phone", "pattern-matching")
	assert.Equal(t, 2, perf.Successes)
	assert.Equal(t, 0, perf.Failures)

	rec = e.GetOptimizedStrategy("phone", "lakeside.org")
	require.Len(t, rec.Strategies, 1)
	assert.Equal(t, 2, rec.Strategies[0].Count)
	assert.InDelta(t, 0.8, rec.Strategies[0].AvgConfidence, 0.0001)
}

func TestGetFieldWarnings_FrequentCorrections(t *testing.T) {
	e := newTestEngine(t, nil, DefaultConfig())
	ctx := context.Background()
	corrections := []any{"Aetna", []string{"Aetna", "Cigna"}, "aetna", ""}
	for i, c := range corrections {
		url := "https://a.org"
		if i == 3 {
			url = "https://b.org"
		}
		key := e.RecordExtraction(ctx, attempt(url, "insurance", "table-extraction", "AETNA", 0.9, ""))
		_, err := e.ProvideFeedback(ctx, key, false, c)
		require.NoError(t, err)
	}
	e.RecordExtraction(ctx, attempt("https://a.org", "insurance", "table-extraction", "Aetna", 0.9, ""))

	var w Warning
	for _, x := range e.GetFieldWarnings("insurance", "a.org") {
		if x.Type == WarningFrequentCorrections {
			w = x
		}
	}
	require.Equal(t, WarningFrequentCorrections, w.Type)
	assert.Equal(t, 4, w.Count)
	assert.Equal(t, 3, w.DomainCount)
	assert.Equal(t, map[string]int{
		model.CorrectionCaseDifference:  2,
		model.CorrectionArrayDifference: 1,
		model.CorrectionFalsePositive:   1,
	}, w.CorrectionTypes)
}

func TestAnalyzeCorrection(t *testing.T) {
	tests := []struct {
		name      string
		original  any
		corrected any
		want      string
	}{
		{"missed", nil, "Aetna", model.CorrectionMissed},
		{"missed empty list", []string{}, []string{"Aetna"}, model.CorrectionMissed},
		{"false positive", "Aetna", "", model.CorrectionFalsePositive},
		{"case", "sunrise recovery", "Sunrise Recovery", model.CorrectionCaseDifference},
		{"partial", "Sunrise", "Sunrise Recovery Center", model.CorrectionPartialMatch},
		{"different", "305-555-1234", "786-555-9876", model.CorrectionDifferentValue},
		{"arrays", []string{"Aetna", "Medicaid"}, []string{"Aetna", "Cigna"}, model.CorrectionArrayDifference},
		{"decoded arrays", []any{"Detox"}, []any{"Detox", "IOP"}, model.CorrectionArrayDifference},
		{"string to array", "Aetna", []string{"Aetna", "Cigna"}, model.CorrectionArrayDifference},
		{"identical", "Aetna", "Aetna", model.CorrectionUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AnalyzeCorrection(tt.original, tt.corrected).Type)
		})
	}
}

func TestAnalyzeCorrection_Details(t *testing.T) {
	a := AnalyzeCorrection([]string{"Aetna", "Medicaid"}, []string{"aetna", "Cigna"})
	assert.Equal(t, []string{"Cigna"}, a.Added)
	assert.Equal(t, []string{"Medicaid"}, a.Removed)
	assert.InDelta(t, 1.0/3.0, a.Similarity, 1e-9)

	d := AnalyzeCorrection("kitten", "sitting")
	assert.Equal(t, model.CorrectionDifferentValue, d.Type)
	assert.InDelta(t, 1-3.0/7.0, d.Similarity, 1e-9)

	assert.InDelta(t, 1.0, AnalyzeCorrection("Aetna", "Aetna").Similarity, 1e-9)
}
