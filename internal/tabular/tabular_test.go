package tabular

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/program-extract/internal/model"
)

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "urls.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadCSV(t *testing.T) {
	rows, err := ReadCSV(context.Background(), strings.NewReader("a, b\n# skipped\nc,d,e\n"), CSVOptions{Comment: '#', TrimSpace: true})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d", "e"}}, rows)
}

func TestReadCSV_Malformed(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader("\"unterminated\n"), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read row")
}

func TestReadCSV_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadCSV(ctx, strings.NewReader("a\nb\n"), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []string{"k", "v"}, [][]string{{"1", "a, b"}}))
	assert.Equal(t, "k,v\n1,\"a, b\"\n", buf.String())
}

func TestXLSX_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.xlsx")
	require.NoError(t, WriteXLSX(path, "history", []string{"field", "value"}, [][]string{{"phone", "305-555-1234"}}))

	rows, err := ReadXLSX(path, XLSXOptions{SheetName: "history"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"field", "value"}, {"phone", "305-555-1234"}}, rows)

	rows, err = ReadXLSX(path, XLSXOptions{SkipRows: 1})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestReadXLSX_Errors(t *testing.T) {
	path := createTestXLSX(t, [][]string{{"url"}})

	_, err := ReadXLSX(path, XLSXOptions{SheetName: "missing"})
	assert.ErrorContains(t, err, `sheet "missing" not found`)

	_, err = ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	assert.ErrorContains(t, err, "out of range")

	_, err = ReadXLSX(filepath.Join(t.TempDir(), "nope.xlsx"), XLSXOptions{})
	assert.ErrorContains(t, err, "xlsx: open file")
}

func TestReadURLs(t *testing.T) {
	ctx := context.Background()

	t.Run("text", func(t *testing.T) {
		path := writeFile(t, "urls.txt", "https://a.org\n\n# comment\n  https://b.org  \n")
		urls, err := ReadURLs(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.org", "https://b.org"}, urls)
	})

	t.Run("csv with header", func(t *testing.T) {
		path := writeFile(t, "urls.csv", "name,Website\nA,https://a.org\nB,\nC,https://c.org\n")
		urls, err := ReadURLs(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.org", "https://c.org"}, urls)
	})

	t.Run("csv without header", func(t *testing.T) {
		path := writeFile(t, "urls.csv", "https://a.org,x\nhttps://b.org\n")
		urls, err := ReadURLs(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.org", "https://b.org"}, urls)
	})

	t.Run("xlsx", func(t *testing.T) {
		path := createTestXLSX(t, [][]string{{"Name", "URL"}, {"A", "https://a.org"}, {"B"}})
		urls, err := ReadURLs(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.org"}, urls)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadURLs(ctx, filepath.Join(t.TempDir(), "nope.txt"))
		assert.ErrorContains(t, err, "urls: open file")
	})
}

func TestHistoryRows(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := HistoryRows([]model.HistoryEntry{
		{
			Key: "k1", Timestamp: ts, URL: "https://sunrise.org", Domain: "sunrise.org",
			Field: "insurance", Strategy: "keyword-proximity", Value: []any{"Aetna", "Cigna"},
			Confidence: 0.8125, Context: model.ExtractionContext{Location: "main"},
		},
		{
			Key: "k2", Timestamp: ts, Field: "phone", Strategy: "pattern-matching", Value: "305-555-1234",
			Verified: true, Feedback: &model.Feedback{IsCorrect: false, CorrectedValue: "305-555-9999"},
		},
	})

	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Len(t, r, len(HistoryHeader))
	}
	assert.Equal(t, []string{
		"k1", "2026-03-01T12:00:00Z", "https://sunrise.org", "sunrise.org", "insurance",
		"keyword-proximity", "Aetna; Cigna", "0.812", "main", "false", "", "",
	}, rows[0])
	assert.Equal(t, "true", rows[1][9])
	assert.Equal(t, "false", rows[1][10])
	assert.Equal(t, "305-555-9999", rows[1][11])
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{[]string{"a", "b"}, "a; b"},
		{0.5, "0.5"},
		{true, "true"},
		{map[string]any{"a": 1}, `{"a":1}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatValue(tt.in))
	}
}
