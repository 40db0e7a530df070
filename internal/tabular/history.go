package tabular

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/sells-group/program-extract/internal/model"
)

// HistoryHeader is the column layout of an exported history.
var HistoryHeader = []string{
	"key", "timestamp", "url", "domain", "field", "strategy", "value",
	"confidence", "location", "verified", "correct", "corrected_value",
}

// HistoryRows flattens entries into rows matching HistoryHeader.
func HistoryRows(entries []model.HistoryEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, h := range entries {
		correct, corrected := "", ""
		if h.Feedback != nil {
			correct = strconv.FormatBool(h.Feedback.IsCorrect)
			corrected = FormatValue(h.Feedback.CorrectedValue)
		}
		rows = append(rows, []string{
			h.Key,
			h.Timestamp.UTC().Format(time.RFC3339),
			h.URL,
			h.Domain,
			h.Field,
			h.Strategy,
			FormatValue(h.Value),
			strconv.FormatFloat(h.Confidence, 'f', 3, 64),
			h.Context.Location,
			strconv.FormatBool(h.Verified),
			correct,
			corrected,
		})
	}
	return rows
}

// FormatValue renders an extracted value as a single cell. Lists are joined
// with "; ".
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []string:
		return strings.Join(t, "; ")
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, FormatValue(e))
		}
		return strings.Join(parts, "; ")
	case float64, int, bool:
		return fmt.Sprint(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
