package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/program-extract/internal/confidence"
	"github.com/sells-group/program-extract/internal/model"
	"github.com/sells-group/program-extract/internal/registry"
)

func newTestExtractor() (*Extractor, *model.FieldRegistry) {
	fields := registry.Default()
	return New(fields, confidence.NewScorer(fields)), fields
}

func cand(field, value, strategy string, conf float64) model.CandidateResult {
	return model.CandidateResult{
		Field:      field,
		Value:      value,
		Strategy:   strategy,
		Confidence: conf,
		Context:    model.ExtractionContext{Source: strategy},
	}
}

func TestNormalize(t *testing.T) {
	fields := registry.Default()
	phone := fields.ByID(registry.FieldPhone)
	ins := fields.ByID(registry.FieldInsurance)

	assert.Equal(t, Normalize(phone, "(305) 555-1234"), Normalize(phone, "305.555.1234"))
	assert.Equal(t, "aetna", Normalize(ins, "AETNA"))
	assert.Equal(t, "blue cross blue shield", Normalize(ins, "  Blue   Cross Blue\tShield "))
}

func TestMergeResults_Empty(t *testing.T) {
	e, fields := newTestExtractor()
	m, ok := e.MergeResults(fields.ByID(registry.FieldPhone), nil)
	assert.False(t, ok)
	assert.Equal(t, registry.FieldPhone, m.Field)
	assert.Nil(t, m.Value)
}

func TestMergeResults_SingleHighestWins(t *testing.T) {
	e, fields := newTestExtractor()
	m, ok := e.MergeResults(fields.ByID(registry.FieldPhone), []model.CandidateResult{
		cand("phone", "305-555-1234", confidence.SourcePattern, 0.80),
		cand("phone", "786-555-0000", confidence.SourceTable, 0.60),
		cand("phone", "305-555-1234", confidence.SourceSemanticHTML, 0.85),
	})
	require.True(t, ok)
	assert.Equal(t, "305-555-1234", m.Value)
	assert.InDelta(t, 0.85, m.Confidence, 1e-9)
	assert.Equal(t, confidence.SourceSemanticHTML, m.Strategy)
	assert.Equal(t, []string{confidence.SourceSemanticHTML, confidence.SourcePattern}, m.Strategies)
}

func TestMergeResults_SingleTieGoesToHigherPriority(t *testing.T) {
	e, fields := newTestExtractor()
	f := fields.ByID(registry.FieldName)

	// Same confidence, listed in both orders.
	for _, order := range [][]model.CandidateResult{
		{cand("name", "Harbor House", confidence.SourceTable, 0.8), cand("name", "Harbor House Recovery", confidence.SourceSemanticHTML, 0.8)},
		{cand("name", "Harbor House Recovery", confidence.SourceSemanticHTML, 0.8), cand("name", "Harbor House", confidence.SourceTable, 0.8)},
	} {
		m, ok := e.MergeResults(f, order)
		require.True(t, ok)
		assert.Equal(t, "Harbor House Recovery", m.Value)
		assert.Equal(t, confidence.SourceSemanticHTML, m.Strategy)
	}
}

func TestMergeResults_SingleClamped(t *testing.T) {
	e, fields := newTestExtractor()
	f := fields.ByID(registry.FieldPhone)

	m, _ := e.MergeResults(f, []model.CandidateResult{cand("phone", "305-555-1234", confidence.SourceStructuredData, 0.99)})
	assert.InDelta(t, model.MaxMergedConfidence, m.Confidence, 1e-9)

	m, _ = e.MergeResults(f, []model.CandidateResult{cand("phone", "305-555-1234", confidence.SourceFuzzy, 0.02)})
	assert.InDelta(t, model.MinConfidence, m.Confidence, 1e-9)
}

func TestMergeResults_MultiDedupesCaseInsensitively(t *testing.T) {
	e, fields := newTestExtractor()
	m, ok := e.MergeResults(fields.ByID(registry.FieldInsurance), []model.CandidateResult{
		cand("insurance", "Aetna", confidence.SourcePattern, 0.8),
		cand("insurance", "aetna", confidence.SourceTable, 0.7),
	})
	require.True(t, ok)
	require.Len(t, m.Items, 1)

	item := m.Items[0]
	assert.Equal(t, "Aetna", item.Value, "first literal is kept")
	// mean(0.8, 0.7) + 0.05 per agreeing strategy
	assert.InDelta(t, 0.85, item.Confidence, 1e-9)
	assert.Equal(t, []string{confidence.SourcePattern, confidence.SourceTable}, item.Strategies)
	assert.Equal(t, "pattern-matching,table-extraction", item.Context.Source)
	assert.True(t, item.Context.IsRepeated)
	assert.Equal(t, []string{"Aetna"}, m.Value)
}

func TestMergeResults_MultiPerStrategyMax(t *testing.T) {
	e, fields := newTestExtractor()
	m, ok := e.MergeResults(fields.ByID(registry.FieldInsurance), []model.CandidateResult{
		cand("insurance", "Cigna", confidence.SourcePattern, 0.5),
		cand("insurance", "Cigna", confidence.SourcePattern, 0.7),
	})
	require.True(t, ok)
	require.Len(t, m.Items, 1)
	assert.InDelta(t, 0.75, m.Items[0].Confidence, 1e-9)
}

func TestMergeResults_MultiBounds(t *testing.T) {
	e, fields := newTestExtractor()
	m, ok := e.MergeResults(fields.ByID(registry.FieldInsurance), []model.CandidateResult{
		cand("insurance", "Aetna", confidence.SourceStructuredData, 0.99),
		cand("insurance", "Aetna", confidence.SourcePattern, 0.95),
		cand("insurance", "Aetna", confidence.SourceTable, 0.95),
		cand("insurance", "Medicaid", confidence.SourcePattern, 0.01),
	})
	require.True(t, ok)
	require.Len(t, m.Items, 2)
	for _, it := range m.Items {
		assert.GreaterOrEqual(t, it.Confidence, model.MinConfidence)
		assert.LessOrEqual(t, it.Confidence, model.MaxMergedConfidence)
	}
	assert.InDelta(t, model.MaxMergedConfidence, m.Items[0].Confidence, 1e-9)
	assert.GreaterOrEqual(t, m.Confidence, model.MinConfidence)
	assert.LessOrEqual(t, m.Confidence, model.MaxMergedConfidence)
	assert.Equal(t, confidence.SourceStructuredData, m.Strategy)
}

func TestMergeResults_MultiSkipsEmptyValues(t *testing.T) {
	e, fields := newTestExtractor()
	_, ok := e.MergeResults(fields.ByID(registry.FieldInsurance), []model.CandidateResult{
		cand("insurance", "  ", confidence.SourcePattern, 0.8),
	})
	assert.False(t, ok)
}
