package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/program-extract/internal/antipattern"
	"github.com/sells-group/program-extract/internal/confidence"
	"github.com/sells-group/program-extract/internal/extract"
	"github.com/sells-group/program-extract/internal/learning"
	"github.com/sells-group/program-extract/internal/metrics"
	"github.com/sells-group/program-extract/internal/model"
	"github.com/sells-group/program-extract/internal/pattern"
	"github.com/sells-group/program-extract/internal/registry"
)

const homeHTML = `<!DOCTYPE html>
<html><head>
<title>Sunrise Recovery | Miami Drug Rehab</title>
<meta name="generator" content="WordPress 6.4">
<script type="application/ld+json">{"@context":"https://schema.org","@type":"MedicalClinic",
 "name":"Sunrise Recovery Center","telephone":"+1 (305) 555-1234",
 "address":{"@type":"PostalAddress","streetAddress":"100 Biscayne Blvd","addressLocality":"Miami","addressRegion":"FL","postalCode":"33132"}}</script>
</head><body>
<header><nav><a href="/">Home</a><a href="/programs/">Programs</a></nav></header>
<main>
<section class="hero"><h1>Sunrise Recovery Center</h1><p>Call us today at <a href="tel:3055551234">(305) 555-1234</a></p></section>
<h2>Levels of Care</h2>
<ul><li>Medical detox</li><li>Residential treatment</li><li>Intensive outpatient program</li></ul>
<h2>Insurance</h2>
<table><caption>Insurance Accepted</caption>
<tr><th>Carrier</th><th>Status</th></tr>
<tr><td>Aetna</td><td>In network</td></tr>
<tr><td>Medicaid</td><td>Not accepted</td></tr>
</table>
</main>
<footer><address>100 Biscayne Blvd, Miami, FL 33132</address></footer>
</body></html>`

const contactText = `Contact Sunrise Recovery
Email our admissions team at admissions@sunriserecovery.com for a confidential assessment.`

func homePage() model.Page {
	return model.Page{URL: "https://www.sunriserecovery.com/", HTML: homeHTML, StatusCode: 200}
}

type mockEnhancer struct {
	mock.Mock
}

func (m *mockEnhancer) Enhance(ctx context.Context, pageURL, text string, fields []*model.Field) ([]model.CandidateResult, error) {
	args := m.Called(ctx, pageURL, text, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CandidateResult), args.Error(1)
}

type fixture struct {
	pipeline *Pipeline
	learning *learning.Engine
	store    *learning.MemoryStore
	patterns *pattern.Engine
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()
	fields := registry.Default()
	scorer := confidence.NewScorer(fields)
	ext := extract.New(fields, scorer)
	pe := pattern.NewEngine()
	st := learning.NewMemoryStore()
	learn := learning.New(st, learning.DefaultConfig(),
		learning.WithPatternEngine(pe),
		learning.WithPriority(ext.Priority),
	)
	require.NoError(t, learn.Load(context.Background()))

	opts = append([]Option{WithPatternEngine(pe)}, opts...)
	p := New(cfg, fields, ext, scorer, antipattern.New(antipattern.Policy{}), learn, opts...)
	return &fixture{pipeline: p, learning: learn, store: st, patterns: pe}
}

func phaseNames(res *Result) []string {
	names := make([]string, len(res.Phases))
	for i, ph := range res.Phases {
		names[i] = ph.Name
	}
	return names
}

func TestRun_NoPages(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.pipeline.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoPages)
}

func TestRun_ExclusionConnectivesAreFiltered(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"except", "We accept Aetna and Cigna, except Medicaid."},
		{"but not", "We accept Aetna and Cigna, but not Medicaid."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			res, err := f.pipeline.Run(context.Background(),
				model.Page{URL: "https://lakesidetreatment.org/insurance", Text: tt.text})
			require.NoError(t, err)

			ins, ok := res.Fields[registry.FieldInsurance]
			require.True(t, ok)
			assert.ElementsMatch(t, []string{"Aetna", "Cigna"}, ins.Values())

			var flagged bool
			for _, is := range res.Issues {
				if is.Field == registry.FieldInsurance && is.Value == "Medicaid" {
					flagged = true
					assert.Equal(t, antipattern.CategoryNotOffered, is.Category)
				}
			}
			assert.True(t, flagged, "excluded value is reported")
		})
	}
}

func TestRun_ExtractsFiltersAndRecords(t *testing.T) {
	f := newFixture(t, Config{MaxConcurrentFields: 4})

	res, err := f.pipeline.Run(context.Background(), homePage())
	require.NoError(t, err)

	assert.Equal(t, "sunriserecovery.com", res.Domain)
	assert.Equal(t, 1, res.PagesAnalyzed)
	assert.Equal(t, []string{"1_parse", "2_plan", "3_extract", "5_filter", "6_score", "7_learn"}, phaseNames(res))
	for _, ph := range res.Phases {
		assert.Equal(t, PhaseComplete, ph.Status, ph.Name)
	}

	phone, ok := res.Fields[registry.FieldPhone]
	require.True(t, ok)
	assert.Equal(t, "305-555-1234", phone.Value)
	assert.Equal(t, confidence.SourceStructuredData, phone.Strategy)

	ins, ok := res.Fields[registry.FieldInsurance]
	require.True(t, ok)
	assert.Contains(t, ins.Values(), "Aetna")
	assert.NotContains(t, ins.Values(), "Medicaid", "negated row is filtered out")

	assert.ElementsMatch(t, []string{"Detox", "Residential", "IOP"}, res.Fields[registry.FieldLevelsOfCare].Values())

	assert.GreaterOrEqual(t, res.Confidence, model.MinConfidence)
	assert.LessOrEqual(t, res.Confidence, model.MaxMergedConfidence)
	assert.GreaterOrEqual(t, res.QualityConfidence, model.MinConfidence)
	assert.Greater(t, res.Completeness, 0.0)

	for id := range res.Fields {
		assert.NotEmpty(t, res.HistoryKeys[id], id)
	}
	hist := f.learning.History(learning.HistoryFilter{Field: registry.FieldPhone})
	require.NotEmpty(t, hist)
	var winner *model.HistoryEntry
	for i := range hist {
		if hist[i].Key == res.HistoryKeys[registry.FieldPhone] {
			winner = &hist[i]
		}
	}
	require.NotNil(t, winner)
	assert.Equal(t, confidence.SourceStructuredData, winner.Strategy)

	assert.Equal(t, int64(1), f.store.Revision(), "one save per run")
	assert.NotEmpty(t, f.patterns.BestPatterns(registry.FieldPhone, 5))
}

func TestRun_LearningInformsNextRun(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	before := f.learning.GetOptimizedStrategy(registry.FieldPhone, "sunriserecovery.com")
	assert.Equal(t, learning.BasisNone, before.Basis)

	_, err := f.pipeline.Run(ctx, homePage())
	require.NoError(t, err)

	after := f.learning.GetOptimizedStrategy(registry.FieldPhone, "sunriserecovery.com")
	assert.Equal(t, learning.BasisDomain, after.Basis)
	assert.Contains(t, after.StrategyNames(), confidence.SourceStructuredData)

	res, err := f.pipeline.Run(ctx, homePage())
	require.NoError(t, err)
	assert.Equal(t, "305-555-1234", res.Fields[registry.FieldPhone].Value)
	assert.Equal(t, int64(2), f.store.Revision())
}

func TestRun_MergesAcrossPages(t *testing.T) {
	f := newFixture(t, Config{})

	res, err := f.pipeline.Run(context.Background(),
		homePage(),
		model.Page{URL: "https://www.sunriserecovery.com/contact", Text: contactText},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, res.PagesAnalyzed)

	email, ok := res.Fields[registry.FieldEmail]
	require.True(t, ok)
	assert.Equal(t, "admissions@sunriserecovery.com", email.Value)
	assert.Equal(t, "305-555-1234", res.Fields[registry.FieldPhone].Value)
}

func TestRun_EnhancerFillsMissingFields(t *testing.T) {
	enh := &mockEnhancer{}
	enh.On("Enhance", mock.Anything, "https://www.sunriserecovery.com/", mock.Anything,
		mock.MatchedBy(func(fields []*model.Field) bool {
			var hasEmail, hasPhone bool
			for _, f := range fields {
				hasEmail = hasEmail || f.ID == registry.FieldEmail
				hasPhone = hasPhone || f.ID == registry.FieldPhone
			}
			return hasEmail && !hasPhone
		}),
	).Return([]model.CandidateResult{{
		Field:      registry.FieldEmail,
		Value:      "intake@sunriserecovery.com",
		Strategy:   confidence.SourceAI,
		Confidence: 0.6,
		Context: model.ExtractionContext{
			Source:          confidence.SourceAI,
			SurroundingText: "Reach intake@sunriserecovery.com any time.",
			URL:             "https://www.sunriserecovery.com/",
			Domain:          "sunriserecovery.com",
		},
	}}, nil)

	m := metrics.New()
	f := newFixture(t, Config{AIEnhance: true}, WithEnhancer(enh), WithMetrics(m))
	res, err := f.pipeline.Run(context.Background(), homePage())
	require.NoError(t, err)

	assert.True(t, res.AIEnhanced)
	assert.Contains(t, phaseNames(res), "4_enhance")
	email, ok := res.Fields[registry.FieldEmail]
	require.True(t, ok)
	assert.Equal(t, confidence.SourceAI, email.Strategy)
	assert.LessOrEqual(t, email.Confidence, 0.7)
	assert.InDelta(t, 1, testutil.ToFloat64(m.EnhancedFields), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RunsTotal.WithLabelValues("ok")), 1e-9)
	enh.AssertExpectations(t)
}

func TestRun_EnhancerErrorIsNotFatal(t *testing.T) {
	enh := &mockEnhancer{}
	enh.On("Enhance", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("anthropic: overloaded"))

	f := newFixture(t, Config{AIEnhance: true}, WithEnhancer(enh))
	res, err := f.pipeline.Run(context.Background(), homePage())
	require.NoError(t, err)
	assert.False(t, res.AIEnhanced)
	assert.NotContains(t, res.Fields, registry.FieldEmail)
	assert.Contains(t, res.Fields, registry.FieldPhone)
}

func TestRun_EnhancerDisabledByConfig(t *testing.T) {
	enh := &mockEnhancer{}
	f := newFixture(t, Config{AIEnhance: false}, WithEnhancer(enh))
	_, err := f.pipeline.Run(context.Background(), homePage())
	require.NoError(t, err)
	enh.AssertNotCalled(t, "Enhance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_CancelledContext(t *testing.T) {
	m := metrics.New()
	f := newFixture(t, Config{}, WithMetrics(m))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline.Run(ctx, homePage())
	require.Error(t, err)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RunsTotal.WithLabelValues("error")), 1e-9)
	assert.Zero(t, f.store.Revision(), "nothing recorded for a failed run")
}

func TestRun_UsesClockForDuration(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * 10 * time.Millisecond)
	}
	f := newFixture(t, Config{}, WithClock(clock))
	res, err := f.pipeline.Run(context.Background(), homePage())
	require.NoError(t, err)
	assert.Positive(t, res.DurationMs)
}

func TestStrategyAttempts(t *testing.T) {
	fields := registry.Default()
	care := fields.ByID(registry.FieldLevelsOfCare)
	cands := []model.CandidateResult{
		{Field: care.ID, Value: "Detox", Strategy: "semantic-html", Confidence: 0.8},
		{Field: care.ID, Value: "IOP", Strategy: "semantic-html", Confidence: 0.6},
		{Field: care.ID, Value: "detox", Strategy: "semantic-html", Confidence: 0.9},
		{Field: care.ID, Value: "Detox", Strategy: "pattern-matching", Confidence: 0.4},
	}

	got := strategyAttempts(care, "https://sunrise.org", cands)
	require.Len(t, got, 2)
	assert.Equal(t, "semantic-html", got[0].Strategy)
	assert.Equal(t, []string{"Detox", "IOP"}, got[0].Value)
	assert.InDelta(t, 0.7, got[0].Confidence, 1e-9)
	assert.Equal(t, "pattern-matching", got[1].Strategy)
	assert.InDelta(t, 0.4, got[1].Confidence, 1e-9)

	phone := fields.ByID(registry.FieldPhone)
	single := strategyAttempts(phone, "https://sunrise.org", []model.CandidateResult{
		{Field: phone.ID, Value: "305-555-0000", Strategy: "pattern-matching", Confidence: 0.5},
		{Field: phone.ID, Value: "305-555-1234", Strategy: "pattern-matching", Confidence: 0.8,
			Context: model.ExtractionContext{URL: "https://sunrise.org/contact"}},
	})
	require.Len(t, single, 1)
	assert.Equal(t, "305-555-1234", single[0].Value)
	assert.Equal(t, "https://sunrise.org/contact", single[0].URL)
}
