package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"

	"github.com/sells-group/program-extract/internal/learning"
	"github.com/sells-group/program-extract/internal/pipeline"
	"github.com/sells-group/program-extract/internal/tabular"
)

// writeJSON pretty-prints v to out.
func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatResult writes the fields of one extraction as a table followed by
// its issues.
func formatResult(out io.Writer, res *pipeline.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "URL:\t%s\n", res.URL)
	_, _ = fmt.Fprintf(w, "Confidence:\t%.2f (quality %.2f)\n", res.Confidence, res.QualityConfidence)
	_, _ = fmt.Fprintf(w, "Completeness:\t%.0f%%\n", res.Completeness*100)
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "FIELD\tVALUE\tCONF\tSTRATEGY\tKEY")
	_, _ = fmt.Fprintln(w, "-----\t-----\t----\t--------\t---")

	names := make([]string, 0, len(res.Fields))
	for name := range res.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f := res.Fields[name]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\n",
			name,
			truncate(tabular.FormatValue(f.Value), 60),
			f.Confidence,
			f.Strategy,
			truncateID(res.HistoryKeys[name]),
		)
	}
	_ = w.Flush()

	if len(res.Issues) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SEVERITY\tFIELD\tISSUE")
	for _, is := range res.Issues {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", is.Severity, is.Field, is.Message)
	}
	_ = w.Flush()
}

// formatRecommendation writes a strategy recommendation.
func formatRecommendation(out io.Writer, rec learning.Recommendation) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Field:\t%s\n", rec.Field)
	_, _ = fmt.Fprintf(w, "Domain:\t%s\n", rec.Domain)
	_, _ = fmt.Fprintf(w, "Basis:\t%s\n", rec.Basis)
	if len(rec.Locations) > 0 {
		_, _ = fmt.Fprintf(w, "Locations:\t%s\n", strings.Join(rec.Locations, ", "))
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "STRATEGY\tCOUNT\tAVG_CONF")
	for _, s := range rec.Strategies {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%.2f\n", s.Strategy, s.Count, s.AvgConfidence)
	}
	_ = w.Flush()
}

// formatSimilar writes similar sites.
func formatSimilar(out io.Writer, sites []learning.SimilarSite) {
	if len(sites) == 0 {
		_, _ = fmt.Fprintln(out, "no similar sites")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DOMAIN\tSIMILARITY\tSUCCESS_RATE")
	for _, s := range sites {
		_, _ = fmt.Fprintf(w, "%s\t%.2f\t%.2f\n", s.Domain, s.Similarity, s.SuccessRate)
	}
	_ = w.Flush()
}

// formatWarnings writes field warnings.
func formatWarnings(out io.Writer, warnings []learning.Warning) {
	if len(warnings) == 0 {
		_, _ = fmt.Fprintln(out, "no warnings")
		return
	}
	for _, wa := range warnings {
		_, _ = fmt.Fprintf(out, "[%s] %s\n", wa.Type, wa.Message)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
