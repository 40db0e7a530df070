package learning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/program-extract/internal/model"
)

// seedNetwork records three sites: a.org and b.org share their shape,
// c.org only knows the phone field.
func seedNetwork(t *testing.T) *Engine {
	t.Helper()
	e := newTestEngine(t, NewMemoryStore(), DefaultConfig())
	e.RecordExtractions(context.Background(), []Attempt{
		attempt("https://a.org", "phone", "pattern-matching", "305-555-1234", 0.9, "header"),
		attempt("https://a.org", "insurance", "table-extraction", []string{"Aetna"}, 0.6, ""),
		attempt("https://b.org", "phone", "pattern-matching", "305-555-2222", 0.8, "header"),
		attempt("https://b.org", "insurance", "table-extraction", []string{"Cigna"}, 0.8, ""),
		attempt("https://c.org", "phone", "pattern-matching", "305-555-3333", 0.95, "header"),
	})
	return e
}

func TestGetOptimizedStrategy_DomainEvidence(t *testing.T) {
	e := seedNetwork(t)
	rec := e.GetOptimizedStrategy("phone", "a.org")

	assert.Equal(t, BasisDomain, rec.Basis)
	assert.Equal(t, []string{"pattern-matching"}, rec.StrategyNames())
	assert.InDelta(t, 0.9, rec.Confidence, 1e-9)
	assert.Equal(t, []string{"header"}, rec.Locations)
}

func TestGetOptimizedStrategy_BorrowsFromSimilarSites(t *testing.T) {
	e := seedNetwork(t)
	rec := e.GetOptimizedStrategy("insurance", "c.org")

	require.Equal(t, BasisSimilar, rec.Basis)
	require.Len(t, rec.Strategies, 1)
	assert.Equal(t, "table-extraction", rec.Strategies[0].Strategy)
	assert.Equal(t, 2, rec.Strategies[0].Count)
	assert.InDelta(t, 0.7, rec.Confidence, 1e-9)
}

func TestGetOptimizedStrategy_GlobalAndNone(t *testing.T) {
	e := seedNetwork(t)

	rec := e.GetOptimizedStrategy("insurance", "new.org")
	assert.Equal(t, BasisGlobal, rec.Basis)
	assert.Equal(t, []string{"table-extraction"}, rec.StrategyNames())
	assert.InDelta(t, 0.7, rec.Confidence, 1e-9)

	rec = e.GetOptimizedStrategy("license", "a.org")
	assert.Equal(t, BasisNone, rec.Basis)
	assert.Empty(t, rec.Strategies)
	assert.Zero(t, rec.Confidence)
}

func TestGetOptimizedStrategy_TiesBreakByPriority(t *testing.T) {
	e := newTestEngine(t, nil, DefaultConfig())
	e.RecordExtractions(context.Background(), []Attempt{
		attempt("https://d.org", "phone", "pattern-matching", "305-555-1234", 0.9, ""),
		attempt("https://d.org", "phone", "structured-data", "305-555-1234", 0.9, ""),
	})
	rec := e.GetOptimizedStrategy("phone", "d.org")
	assert.Equal(t, []string{"structured-data", "pattern-matching"}, rec.StrategyNames())
}

func TestGetOptimizedStrategy_IsReadOnly(t *testing.T) {
	store := NewMemoryStore()
	e := newTestEngine(t, store, DefaultConfig())
	e.RecordExtraction(context.Background(), attempt("https://a.org", "phone", "pattern-matching", "305-555-1234", 0.9, "header"))
	rev := store.Revision()

	first := e.GetOptimizedStrategy("phone", "a.org")
	second := e.GetOptimizedStrategy("phone", "a.org")
	assert.Equal(t, first, second)
	assert.Equal(t, rev, store.Revision())
	assert.Len(t, e.History(HistoryFilter{}), 1)
}

func TestGetOptimizedStrategy_ConfidenceGrowsWithBetterResults(t *testing.T) {
	e := newTestEngine(t, nil, DefaultConfig())
	prev := 0.0
	for _, c := range []float64{0.6, 0.7, 0.8, 0.9, 0.95} {
		e.RecordExtraction(context.Background(), attempt("https://x.org", "phone", "pattern-matching", "305-555-1234", c, ""))
		rec := e.GetOptimizedStrategy("phone", "x.org")
		assert.GreaterOrEqual(t, rec.Confidence, prev)
		prev = rec.Confidence
	}
}

func TestGetOptimizedStrategy_TopPatterns(t *testing.T) {
	e := newTestEngine(t, nil, DefaultConfig())
	var batch []Attempt
	for i, c := range []float64{0.9, 0.8, 0.7, 0.6, 0.5, 0.4} {
		a := attempt("https://a.org", "license", "pattern-matching", "X", c, "")
		a.Context.Pattern = string(rune('a'+i)) + "-license"
		batch = append(batch, a)
	}
	e.RecordExtractions(context.Background(), batch)

	rec := e.GetOptimizedStrategy("license", "a.org")
	require.Len(t, rec.Patterns, 5)
	assert.Equal(t, "a-license", rec.Patterns[0].Pattern)
	assert.Equal(t, "e-license", rec.Patterns[4].Pattern)
}

func TestFindSimilarSites(t *testing.T) {
	e := seedNetwork(t)

	sims := e.FindSimilarSites("a.org")
	require.Len(t, sims, 2)
	assert.Equal(t, "b.org", sims[0].Domain)
	assert.InDelta(t, 1.0, sims[0].Similarity, 1e-9)
	assert.Equal(t, "c.org", sims[1].Domain)
	assert.InDelta(t, 0.75, sims[1].Similarity, 1e-9)
	assert.InDelta(t, 1.0, sims[1].SuccessRate, 1e-9)

	assert.Nil(t, e.FindSimilarSites("unknown.org"))
}

func TestProfileSimilarity_EmptyProfiles(t *testing.T) {
	a := model.NewSiteProfile("a.org", testTime)
	b := model.NewSiteProfile("b.org", testTime)
	assert.Zero(t, ProfileSimilarity(a, b))
}

func TestGetFieldWarnings_HighFailureRate(t *testing.T) {
	e := newTestEngine(t, nil, DefaultConfig())
	e.RecordExtractions(context.Background(), []Attempt{
		attempt("https://a.org", "insurance", "fuzzy-matching", "Aetna", 0.2, ""),
		attempt("https://b.org", "insurance", "fuzzy-matching", "Aetna", 0.3, ""),
		attempt("https://c.org", "insurance", "fuzzy-matching", "Aetna", 0.1, ""),
		attempt("https://d.org", "insurance", "fuzzy-matching", "Aetna", 0.8, ""),
		attempt("https://a.org", "insurance", "table-extraction", "Aetna", 0.2, ""),
		attempt("https://a.org", "insurance", "table-extraction", "Aetna", 0.9, ""),
	})

	warnings := e.GetFieldWarnings("insurance", "")
	require.Len(t, warnings, 1)
	w := warnings[0]
	assert.Equal(t, WarningHighFailureRate, w.Type)
	assert.Equal(t, "fuzzy-matching", w.Strategy)
	assert.InDelta(t, 0.75, w.Rate, 1e-9)
	assert.Equal(t, 4, w.Count)

	assert.Empty(t, e.GetFieldWarnings("phone", ""))
}
