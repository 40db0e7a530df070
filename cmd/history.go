package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/program-extract/internal/learning"
	"github.com/sells-group/program-extract/internal/model"
	"github.com/sells-group/program-extract/internal/tabular"
)

var (
	historyFormat string
	historyOutput string
	historyDomain string
	historyField  string
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Export the extraction history as CSV or XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyFormat == "xlsx" && historyOutput == "" {
			return eris.New("--output is required for xlsx")
		}

		env, err := initEnv(cmd.Context(), "query")
		if err != nil {
			return err
		}
		defer env.Close()

		entries := env.Learning.History(learning.HistoryFilter{
			Domain: model.DomainOf(historyDomain),
			Field:  historyField,
			Limit:  historyLimit,
		})
		if err := exportHistory(cmd.OutOrStdout(), entries, historyFormat, historyOutput); err != nil {
			return err
		}
		zap.L().Info("history exported", zap.Int("entries", len(entries)), zap.String("format", historyFormat))
		return nil
	},
}

// exportHistory writes entries in format to path, or to out when path is
// empty (csv only).
func exportHistory(out io.Writer, entries []model.HistoryEntry, format, path string) error {
	rows := tabular.HistoryRows(entries)
	switch format {
	case "xlsx":
		return tabular.WriteXLSX(path, "history", tabular.HistoryHeader, rows)
	case "csv":
		if path != "" {
			f, err := os.Create(path)
			if err != nil {
				return eris.Wrap(err, "create output")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}
		return tabular.WriteCSV(out, tabular.HistoryHeader, rows)
	default:
		return eris.Errorf("unknown format %q (csv or xlsx)", format)
	}
}

func init() {
	historyCmd.Flags().StringVar(&historyFormat, "format", "csv", "export format: csv or xlsx")
	historyCmd.Flags().StringVar(&historyOutput, "output", "", "output path (default stdout for csv)")
	historyCmd.Flags().StringVar(&historyDomain, "domain", "", "only entries for this domain")
	historyCmd.Flags().StringVar(&historyField, "field", "", "only entries for this field")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "most recent N entries (0 for all)")
	rootCmd.AddCommand(historyCmd)
}
