package main

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/program-extract/internal/model"
	"github.com/sells-group/program-extract/internal/pipeline"
	"github.com/sells-group/program-extract/internal/scrape"
	"github.com/sells-group/program-extract/internal/tabular"
)

var (
	batchInput       string
	batchOutput      string
	batchConcurrency int
)

type batchFetcher interface {
	ScrapeAll(ctx context.Context, urls []string, maxConcurrent int) []scrape.Outcome
}

type pageExtractor interface {
	Run(ctx context.Context, pages ...model.Page) (*pipeline.Result, error)
}

// batchLine is one NDJSON output record.
type batchLine struct {
	URL    string           `json:"url"`
	Error  string           `json:"error,omitempty"`
	Result *pipeline.Result `json:"result,omitempty"`
}

// batchSummary counts batch outcomes.
type batchSummary struct {
	Total      int
	Extracted  int
	FetchErr   int
	ExtractErr int
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Extract program facts for a list of center URLs",
	Long:  "Reads URLs from a text, CSV or XLSX file, fetches them politely per domain, and writes one JSON line per URL.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if batchConcurrency > 0 {
			cfg.Fetch.MaxConcurrent = batchConcurrency
		}

		env, err := initEnv(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		urls, err := tabular.ReadURLs(ctx, batchInput)
		if err != nil {
			return eris.Wrap(err, "read batch input")
		}
		if len(urls) == 0 {
			return eris.Errorf("no urls in %s", batchInput)
		}

		out := cmd.OutOrStdout()
		if batchOutput != "" {
			f, err := os.Create(batchOutput)
			if err != nil {
				return eris.Wrap(err, "create output")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		sum, err := runBatch(ctx, urls, env.Fetcher, env.Pipeline, cfg.Fetch.MaxConcurrent, out)
		zap.L().Info("batch complete",
			zap.Int("total", sum.Total),
			zap.Int("extracted", sum.Extracted),
			zap.Int("fetch_errors", sum.FetchErr),
			zap.Int("extract_errors", sum.ExtractErr),
		)
		return err
	},
}

// runBatch fetches urls, then extracts each fetched page with at most
// concurrency runs in flight. A failed URL is reported in its output line
// and does not stop the batch; only a write failure or cancellation does.
func runBatch(ctx context.Context, urls []string, fetcher batchFetcher, ext pageExtractor, concurrency int, out io.Writer) (batchSummary, error) {
	sum := batchSummary{Total: len(urls)}
	outcomes := fetcher.ScrapeAll(ctx, urls, concurrency)

	var mu sync.Mutex
	enc := json.NewEncoder(out)
	write := func(line batchLine) error {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(line); err != nil {
			return eris.Wrap(err, "write result")
		}
		return nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for _, o := range outcomes {
		g.Go(func() error {
			if o.Err != nil {
				mu.Lock()
				sum.FetchErr++
				mu.Unlock()
				return write(batchLine{URL: o.URL, Error: o.Err.Error()})
			}

			res, err := ext.Run(gCtx, o.Result.Page)
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				zap.L().Warn("batch: extraction failed", zap.String("url", o.URL), zap.Error(err))
				mu.Lock()
				sum.ExtractErr++
				mu.Unlock()
				return write(batchLine{URL: o.URL, Error: err.Error()})
			}

			mu.Lock()
			sum.Extracted++
			mu.Unlock()
			return write(batchLine{URL: o.URL, Result: res})
		})
	}
	return sum, g.Wait()
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "input", "", "file of URLs: .txt, .csv or .xlsx (required)")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "NDJSON output path (default stdout)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max concurrent fetches and extractions (default from config)")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}
