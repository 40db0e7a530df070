package antipattern

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/program-extract/internal/model"
)

func newTestFilter(p Policy) *Filter {
	f := New(p)
	f.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return f
}

func single(field, value string, conf float64, text string) model.MergedResult {
	return model.MergedResult{
		Field:      field,
		Value:      value,
		Confidence: conf,
		Strategy:   "pattern-matching",
		Context:    model.ExtractionContext{SurroundingText: text},
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want Flags
	}{
		{"plain", "We provide residential and PHP care", Flags{}},
		{"negated", "We do not offer outpatient services", Flags{Negated: true, Categories: []string{CategoryNotOffered}}},
		{"contraction", "We don't accept Medicaid", Flags{Negated: true, Categories: []string{CategoryNotOffered}}},
		{"referral", "For detox we refer clients to a local hospital", Flags{Referral: true, Categories: []string{CategoryReferrals}}},
		{"future", "Sober living coming soon", Flags{Future: true, Categories: []string{CategoryFuture}}},
		{"conditional", "Medication management if clinically appropriate", Flags{Conditional: true, Categories: []string{CategoryConditional}}},
		{"external", "Detox is provided at a partner facility", Flags{External: true, Categories: []string{CategoryExternal}}},
		{"competitor", "Unlike other centers we stay with you", Flags{Competitor: true, Categories: []string{CategoryCompetitor}}},
		{"except clause", "except Medicaid.", Flags{Negated: true, Categories: []string{CategoryNotOffered}}},
		{"but not clause", "but not Medicaid", Flags{Negated: true, Categories: []string{CategoryNotOffered}}},
		{"exception clause", "with the exception of Tricare", Flags{Negated: true, Categories: []string{CategoryNotOffered}}},
		{"except mid-sentence is not a clause head", "Open daily except holidays", Flags{}},
		{"but without not", "but provide residential care", Flags{}},
		{"empty", "", Flags{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Classify(tt.text)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want.Categories) > 0, got.Any())
		})
	}
}

func TestDetectZone(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ZoneExclusions, DetectZone("Exclusions", "Detox"))
	assert.Equal(t, ZoneReferral, DetectZone("Referral Partners", ""))
	assert.Equal(t, ZoneLimitations, DetectZone("Admission Criteria", ""))
	assert.Equal(t, ZoneExclusions, DetectZone("", "Exclusions: eating disorders"))
	assert.Equal(t, ZoneReferral, DetectZone("", "we can refer you for inpatient care"))
	assert.Equal(t, ZoneLimitations, DetectZone("", "admission is limited to adults"))
	assert.Equal(t, "", DetectZone("Our Programs", "Residential treatment for adults"))
}

func TestFilter_FilterExtractedData(t *testing.T) {
	t.Parallel()

	f := newTestFilter(Policy{})

	t.Run("negated multi-value item is dropped", func(t *testing.T) {
		t.Parallel()
		data := map[string]model.MergedResult{
			"levelsOfCare": {
				Field: "levelsOfCare",
				Items: []model.MergedItem{
					{Value: "Outpatient", Confidence: 0.8, Context: model.ExtractionContext{SurroundingText: "We do not offer outpatient services"}},
					{Value: "Residential", Confidence: 0.8, Context: model.ExtractionContext{SurroundingText: "provide residential and PHP care"}},
					{Value: "PHP", Confidence: 0.7, Context: model.ExtractionContext{SurroundingText: "provide residential and PHP care"}},
				},
			},
		}
		res := f.FilterExtractedData(data)
		require.Contains(t, res.Fields, "levelsOfCare")
		got := res.Fields["levelsOfCare"]
		assert.Equal(t, []string{"Residential", "PHP"}, got.Value)
		assert.InDelta(t, 0.75, got.Confidence, 0.0001)
		require.Len(t, res.Issues, 1)
		assert.Equal(t, CategoryNotOffered, res.Issues[0].Category)
		assert.Equal(t, "Outpatient", res.Issues[0].Value)
	})

	t.Run("exclusion zone wins regardless of value text", func(t *testing.T) {
		t.Parallel()
		mr := single("accreditation", "Joint Commission", 0.9, "Joint Commission accredited")
		mr.Context.Header = "Exclusions"
		res := f.FilterExtractedData(map[string]model.MergedResult{"accreditation": mr})
		assert.Empty(t, res.Fields)
		assert.Equal(t, []string{"accreditation"}, res.Excluded)
		require.Len(t, res.Issues, 1)
		assert.Equal(t, ZoneExclusions, res.Issues[0].Category)
	})

	t.Run("all items excluded drops the field", func(t *testing.T) {
		t.Parallel()
		data := map[string]model.MergedResult{
			"insurance": {Field: "insurance", Items: []model.MergedItem{
				{Value: "Medicaid", Confidence: 0.8, Context: model.ExtractionContext{SurroundingText: "We no longer accept Medicaid"}},
			}},
		}
		res := f.FilterExtractedData(data)
		assert.NotContains(t, res.Fields, "insurance")
		assert.Equal(t, []string{"insurance"}, res.Excluded)
	})

	t.Run("clause led by an exclusion connective is dropped", func(t *testing.T) {
		t.Parallel()
		data := map[string]model.MergedResult{
			"insurance": {Field: "insurance", Items: []model.MergedItem{
				{Value: "Aetna", Confidence: 0.75, Context: model.ExtractionContext{SurroundingText: "We accept Aetna and Cigna"}},
				{Value: "Medicaid", Confidence: 0.75, Context: model.ExtractionContext{SurroundingText: "except Medicaid."}},
				{Value: "Tricare", Confidence: 0.75, Context: model.ExtractionContext{SurroundingText: "but not Tricare"}},
			}},
		}
		res := f.FilterExtractedData(data)
		require.Contains(t, res.Fields, "insurance")
		assert.Equal(t, []string{"Aetna"}, res.Fields["insurance"].Value)
		require.Len(t, res.Issues, 2)
		for _, is := range res.Issues {
			assert.Equal(t, CategoryNotOffered, is.Category)
		}
	})

	t.Run("future reduces confidence", func(t *testing.T) {
		t.Parallel()
		res := f.FilterExtractedData(map[string]model.MergedResult{
			"amenities": single("amenities", "Pool", 0.9, "A pool is coming soon"),
		})
		require.Contains(t, res.Fields, "amenities")
		assert.InDelta(t, 0.27, res.Fields["amenities"].Confidence, 0.0001)
		assert.Empty(t, res.Issues)
	})

	t.Run("reduction respects floor", func(t *testing.T) {
		t.Parallel()
		res := f.FilterExtractedData(map[string]model.MergedResult{
			"amenities": single("amenities", "Gym", 0.2, "a gym is coming soon, if clinically appropriate"),
		})
		assert.InDelta(t, 0.1, res.Fields["amenities"].Confidence, 0.0001)
	})

	t.Run("competitor mention flags but keeps", func(t *testing.T) {
		t.Parallel()
		res := f.FilterExtractedData(map[string]model.MergedResult{
			"modalities": single("modalities", "CBT", 0.8, "Unlike other centers we use CBT"),
		})
		assert.Contains(t, res.Fields, "modalities")
		require.Len(t, res.Issues, 1)
		assert.Equal(t, CategoryCompetitor, res.Issues[0].Category)
		assert.Equal(t, model.SeverityLow, res.Issues[0].Severity)
	})

	t.Run("limitations zone keeps with medium issue", func(t *testing.T) {
		t.Parallel()
		res := f.FilterExtractedData(map[string]model.MergedResult{
			"population": single("population", "Adults", 0.8, "Admission is limited to adults"),
		})
		assert.Contains(t, res.Fields, "population")
		require.Len(t, res.Issues, 1)
		assert.Equal(t, ZoneLimitations, res.Issues[0].Category)
		assert.Equal(t, model.SeverityMedium, res.Issues[0].Severity)
	})

	t.Run("missing context fails open by default", func(t *testing.T) {
		t.Parallel()
		res := f.FilterExtractedData(map[string]model.MergedResult{
			"phone": single("phone", "305-555-1234", 0.85, ""),
		})
		assert.Contains(t, res.Fields, "phone")
		assert.Empty(t, res.Issues)
	})
}

func TestFilter_FailClosed(t *testing.T) {
	t.Parallel()

	f := newTestFilter(Policy{FailClosed: true})
	res := f.FilterExtractedData(map[string]model.MergedResult{
		"phone": single("phone", "305-555-1234", 0.85, ""),
		"name":  single("name", "Sunrise Recovery", 0.9, "Welcome to Sunrise Recovery"),
	})
	assert.NotContains(t, res.Fields, "phone")
	assert.Contains(t, res.Fields, "name")
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "missing_context", res.Issues[0].Category)
	assert.Equal(t, model.SeverityLow, res.Issues[0].Severity)
}

func TestRedFlags(t *testing.T) {
	t.Parallel()

	f := newTestFilter(Policy{})
	res := f.FilterExtractedData(map[string]model.MergedResult{
		"insurance":  single("insurance", "most major insurance", 0.6, "We accept most major insurance"),
		"modalities": single("modalities", "Holistic", 0.6, "Our holistic approach guarantees lasting recovery"),
		"name":       single("name", "Sunrise", 0.9, "Copyright 2019 Sunrise Recovery"),
		"staff":      single("staff", "Dr. Smith", 0.7, "Meet Dr. Smith!!"),
	})
	assert.Len(t, res.Fields, 4)

	bySeverity := map[string]model.Severity{}
	for _, is := range res.Issues {
		bySeverity[is.Category] = is.Severity
	}
	assert.Equal(t, map[string]model.Severity{
		FlagVague:          model.SeverityLow,
		FlagConcerning:     model.SeverityHigh,
		FlagOutdated:       model.SeverityMedium,
		FlagUnprofessional: model.SeverityMedium,
	}, bySeverity)

	t.Run("recent copyright is not outdated", func(t *testing.T) {
		t.Parallel()
		issues := redFlagIssues("name", "Sunrise", "© 2015-2024 Sunrise Recovery", f.now())
		assert.Empty(t, issues)
	})
}

func TestFilter_OverallConfidence(t *testing.T) {
	t.Parallel()

	f := newTestFilter(Policy{})
	full := map[string]model.MergedResult{
		"name":         {Value: "Sunrise"},
		"address":      {Value: "1 Main St"},
		"phone":        {Value: "305-555-1234"},
		"levelsOfCare": {Items: []model.MergedItem{{Value: "Detox"}}},
		"insurance":    {Items: []model.MergedItem{{Value: "Aetna"}}},
	}

	assert.InDelta(t, 0.8, f.OverallConfidence(full, nil), 0.0001)

	medium := []model.Issue{{Severity: model.SeverityMedium}, {Severity: model.SeverityMedium}, {Severity: model.SeverityMedium}}
	assert.InDelta(t, 0.8*0.8*0.8*0.8, f.OverallConfidence(full, medium), 0.0001)

	mixed := []model.Issue{{Severity: model.SeverityHigh}, {Severity: model.SeverityLow}}
	assert.InDelta(t, 0.8*0.5*0.9, f.OverallConfidence(full, mixed), 0.0001)

	partial := map[string]model.MergedResult{"name": {Value: "Sunrise"}, "phone": {Value: "305-555-1234"}}
	assert.InDelta(t, 0.8*2.0/5.0, f.OverallConfidence(partial, nil), 0.0001)

	assert.InDelta(t, 0.1, f.OverallConfidence(map[string]model.MergedResult{}, nil), 0.0001)
}
