package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/program-extract/internal/learning"
)

// seedHistory records one phone attempt in the configured store and returns
// its history key.
func seedHistory(t *testing.T) string {
	t.Helper()
	env, err := initEnv(context.Background(), "query")
	require.NoError(t, err)
	defer env.Close()
	return env.Learning.RecordExtraction(context.Background(), learning.Attempt{
		URL: "https://sunrise.org", Field: "phone", Strategy: "pattern-matching",
		Value: "305-555-1234", Confidence: 0.9,
	})
}

func resetFeedbackFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		feedbackKey, feedbackCorrect, feedbackWrong, feedbackValues = "", false, false, nil
	})
}

func TestCorrectedValue(t *testing.T) {
	assert.Nil(t, correctedValue(nil))
	assert.Equal(t, "x", correctedValue([]string{"x"}))
	assert.Equal(t, []any{"Aetna", "Cigna"}, correctedValue([]string{"Aetna", "Cigna"}))
}

func TestFeedbackCmd_FlagValidation(t *testing.T) {
	resetFeedbackFlags(t)
	setupConfig(t)
	feedbackKey = "k"

	_, err := runCommand(t, feedbackCmd)
	assert.ErrorContains(t, err, "exactly one of --correct or --wrong")

	feedbackCorrect, feedbackWrong = true, true
	_, err = runCommand(t, feedbackCmd)
	assert.ErrorContains(t, err, "exactly one of --correct or --wrong")

	feedbackWrong = false
	feedbackValues = []string{"x"}
	_, err = runCommand(t, feedbackCmd)
	assert.ErrorContains(t, err, "--value only applies with --wrong")
}

func TestFeedbackCmd_UnknownKey(t *testing.T) {
	resetFeedbackFlags(t)
	setupConfig(t)
	feedbackKey = "missing"
	feedbackCorrect = true

	_, err := runCommand(t, feedbackCmd)
	assert.ErrorContains(t, err, "history entry not found")
}

func TestFeedbackCmd_CorrectionPersists(t *testing.T) {
	resetFeedbackFlags(t)
	setupConfig(t)
	key := seedHistory(t)

	feedbackKey = key
	feedbackWrong = true
	feedbackValues = []string{"305-555-9999"}
	out, err := runCommand(t, feedbackCmd)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, "recorded", body["status"])
	assert.Contains(t, body, "correction")

	// A fresh engine over the same store sees the verdict.
	env, err := initEnv(context.Background(), "query")
	require.NoError(t, err)
	defer env.Close()
	hist := env.Learning.History(learning.HistoryFilter{Field: "phone"})
	require.Len(t, hist, 1)
	assert.True(t, hist[0].Verified)
	require.NotNil(t, hist[0].Feedback)
	assert.False(t, hist[0].Feedback.IsCorrect)
}

func TestQueryCommands(t *testing.T) {
	setupConfig(t)
	seedHistory(t)
	t.Cleanup(func() { queryField, queryDomain, queryJSON = "", "", false })

	queryField, queryDomain = "phone", "https://www.sunrise.org/"
	out, err := runCommand(t, strategyCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "Basis:")
	assert.Contains(t, out, "domain")
	assert.Contains(t, out, "pattern-matching")

	queryJSON = true
	out, err = runCommand(t, strategyCmd)
	require.NoError(t, err)
	var rec learning.Recommendation
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "sunrise.org", rec.Domain)
	assert.Equal(t, learning.BasisDomain, rec.Basis)

	queryJSON = false
	out, err = runCommand(t, similarCmd)
	require.NoError(t, err)
	assert.Equal(t, "no similar sites\n", out)

	out, err = runCommand(t, warningsCmd)
	require.NoError(t, err)
	assert.Equal(t, "no warnings\n", out)
}

func TestHistoryCmd_CSVAndXLSX(t *testing.T) {
	setupConfig(t)
	key := seedHistory(t)
	t.Cleanup(func() { historyFormat, historyOutput, historyDomain, historyField, historyLimit = "csv", "", "", "", 0 })

	historyFormat = "csv"
	out, err := runCommand(t, historyCmd)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "key,timestamp,url"))
	assert.True(t, strings.HasPrefix(lines[1], key+","))

	historyFormat = "xlsx"
	_, err = runCommand(t, historyCmd)
	assert.ErrorContains(t, err, "--output is required for xlsx")

	historyOutput = filepath.Join(t.TempDir(), "history.xlsx")
	_, err = runCommand(t, historyCmd)
	require.NoError(t, err)
	info, err := os.Stat(historyOutput)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	historyFormat = "parquet"
	_, err = runCommand(t, historyCmd)
	assert.ErrorContains(t, err, `unknown format "parquet"`)
}
