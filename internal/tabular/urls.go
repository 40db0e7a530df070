package tabular

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// urlHeaders are the column names recognised as the URL column.
var urlHeaders = []string{"url", "website", "site", "homepage"}

// ReadURLs returns the URLs listed in path. A .csv or .xlsx file is read
// from the column named url (or website, site, homepage), falling back to
// the first column when no header matches. Any other file is read one URL
// per line. Blank lines and lines starting with # are skipped.
func ReadURLs(ctx context.Context, path string) ([]string, error) {
	var rows [][]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "urls: open file")
		}
		defer f.Close() //nolint:errcheck
		rows, err = ReadCSV(ctx, f, CSVOptions{Comment: '#', TrimSpace: true})
		if err != nil {
			return nil, err
		}
	case ".xlsx":
		var err error
		rows, err = ReadXLSX(path, XLSXOptions{})
		if err != nil {
			return nil, err
		}
	default:
		return readLines(path)
	}
	return urlColumn(rows), nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "urls: open file")
	}
	defer f.Close() //nolint:errcheck

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "urls: read lines")
	}
	return out, nil
}

func urlColumn(rows [][]string) []string {
	if len(rows) == 0 {
		return nil
	}
	col, start := 0, 0
	for i, h := range rows[0] {
		if matchHeader(h) {
			col, start = i, 1
			break
		}
	}

	var out []string
	for _, r := range rows[start:] {
		if col >= len(r) {
			continue
		}
		v := strings.TrimSpace(r[col])
		if v == "" || strings.HasPrefix(v, "#") {
			continue
		}
		out = append(out, v)
	}
	return out
}

func matchHeader(h string) bool {
	h = strings.ToLower(strings.TrimSpace(h))
	for _, want := range urlHeaders {
		if h == want {
			return true
		}
	}
	return false
}
