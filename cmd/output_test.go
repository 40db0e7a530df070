package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/program-extract/internal/learning"
	"github.com/sells-group/program-extract/internal/model"
	"github.com/sells-group/program-extract/internal/pipeline"
)

func TestFormatResult(t *testing.T) {
	res := &pipeline.Result{
		URL:               "https://sunrise.org",
		Confidence:        0.72,
		QualityConfidence: 0.8,
		Completeness:      0.6,
		Fields: map[string]model.MergedResult{
			"phone":     {Value: "305-555-1234", Confidence: 0.9, Strategy: "structured-data"},
			"insurance": {Value: []any{"Aetna", "Cigna"}, Confidence: 0.7, Strategy: "table-extraction"},
		},
		HistoryKeys: map[string]string{"phone": "0123456789abcdef"},
		Issues: []model.Issue{
			{Field: "insurance", Severity: model.SeverityMedium, Message: "Medicaid is listed as not accepted"},
		},
	}

	var buf bytes.Buffer
	formatResult(&buf, res)
	out := buf.String()

	assert.Contains(t, out, "0.72 (quality 0.80)")
	assert.Contains(t, out, "60%")
	assert.Contains(t, out, "Aetna; Cigna")
	assert.Contains(t, out, "01234567")
	assert.NotContains(t, out, "0123456789abcdef")
	assert.Contains(t, out, "Medicaid is listed as not accepted")
	// Fields are sorted by name.
	assert.Less(t, strings.Index(out, "insurance"), strings.Index(out, "phone"))
}

func TestFormatRecommendation(t *testing.T) {
	var buf bytes.Buffer
	formatRecommendation(&buf, learning.Recommendation{
		Field: "phone", Domain: "sunrise.org", Basis: learning.BasisSimilar,
		Strategies: []learning.RankedStrategy{{Strategy: "pattern-matching", Count: 4, AvgConfidence: 0.85}},
		Locations:  []string{"header", "footer"},
	})
	out := buf.String()
	assert.Contains(t, out, "similar")
	assert.Contains(t, out, "header, footer")
	assert.Regexp(t, `pattern-matching\s+4\s+0\.85`, out)
}

func TestFormatSimilarAndWarnings(t *testing.T) {
	var buf bytes.Buffer
	formatSimilar(&buf, []learning.SimilarSite{{Domain: "lakeside.org", Similarity: 1, SuccessRate: 0.5}})
	assert.Contains(t, buf.String(), "lakeside.org")

	buf.Reset()
	formatWarnings(&buf, []learning.Warning{{Type: learning.WarningHighFailureRate, Message: "fuzzy-matching fails 100% of 3 attempts for phone"}})
	assert.Equal(t, "[high-failure-rate] fuzzy-matching fails 100% of 3 attempts for phone\n", buf.String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "abc", truncateID("abc"))
}

func TestServeCmd_PortValidated(t *testing.T) {
	setupConfig(t)
	cfg.Server.Port = 0

	_, err := runCommand(t, serveCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, map[string]string{"status": "ok"}))
	assert.Equal(t, "{\n  \"status\": \"ok\"\n}\n", buf.String())
}
