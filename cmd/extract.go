package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/program-extract/internal/model"
	"github.com/sells-group/program-extract/internal/pipeline"
	"github.com/sells-group/program-extract/internal/scrape"
)

var (
	extractURLs   []string
	extractFiles  []string
	extractText   string
	extractDomain string
	extractFormat string
	extractFast   bool
)

// pageFetcher retrieves a page by URL.
type pageFetcher interface {
	Scrape(ctx context.Context, targetURL string) (*scrape.Result, error)
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract program facts from one center's pages",
	Long:  "Fetches each --url, reads each --file, or takes --text, treats them as pages of one site, and prints the extracted fields.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(extractURLs) == 0 && len(extractFiles) == 0 && extractText == "" {
			return eris.New("one of --url, --file or --text is required")
		}
		if extractFormat != "json" && extractFormat != "table" {
			return eris.Errorf("unknown format %q (json or table)", extractFormat)
		}
		if extractFast {
			cfg.Extract.FastMode = true
		}

		ctx := cmd.Context()
		env, err := initEnv(ctx, "extract")
		if err != nil {
			return err
		}
		defer env.Close()

		pages, err := collectPages(ctx, env.Fetcher)
		if err != nil {
			return err
		}

		res, err := env.Pipeline.Run(ctx, pages...)
		if err != nil {
			return eris.Wrap(err, "extract")
		}

		zap.L().Info("extraction complete",
			zap.String("domain", res.Domain),
			zap.Int("fields_found", len(res.Fields)),
			zap.Int("issues", len(res.Issues)),
			zap.Float64("confidence", res.Confidence),
		)
		return printResult(cmd.OutOrStdout(), res, extractFormat)
	},
}

// collectPages builds the pages named by the extract flags. Files ending in
// .html or .htm are read as HTML; other files and --text as plain text.
func collectPages(ctx context.Context, fetcher pageFetcher) ([]model.Page, error) {
	base := pageBase(extractDomain)
	var pages []model.Page

	for _, u := range extractURLs {
		res, err := fetcher.Scrape(ctx, u)
		if err != nil {
			return nil, eris.Wrapf(err, "fetch %s", u)
		}
		pages = append(pages, res.Page)
	}

	for _, path := range extractFiles {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "read %s", path)
		}
		p := model.Page{URL: base + "/" + filepath.Base(path)}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".html", ".htm":
			p.HTML = string(b)
		default:
			p.Text = string(b)
		}
		pages = append(pages, p)
	}

	if extractText != "" {
		pages = append(pages, model.Page{URL: base, Text: extractText})
	}
	return pages, nil
}

// pageBase turns --domain into the URL given to local pages.
func pageBase(domain string) string {
	domain = strings.TrimSuffix(strings.TrimSpace(domain), "/")
	switch {
	case domain == "":
		return "https://local.invalid"
	case strings.Contains(domain, "://"):
		return domain
	default:
		return "https://" + domain
	}
}

func printResult(out io.Writer, res *pipeline.Result, format string) error {
	if format == "table" {
		formatResult(out, res)
		return nil
	}
	return writeJSON(out, res)
}

func init() {
	extractCmd.Flags().StringArrayVar(&extractURLs, "url", nil, "page URL to fetch (repeatable)")
	extractCmd.Flags().StringArrayVar(&extractFiles, "file", nil, "local HTML or text file (repeatable)")
	extractCmd.Flags().StringVar(&extractText, "text", "", "page text")
	extractCmd.Flags().StringVar(&extractDomain, "domain", "", "site domain for --file and --text pages")
	extractCmd.Flags().StringVar(&extractFormat, "format", "json", "output format: json or table")
	extractCmd.Flags().BoolVar(&extractFast, "fast", false, "stop each field's cascade at the first confident hit")
	rootCmd.AddCommand(extractCmd)
}
