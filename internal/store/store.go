// Package store persists the learning state in SQLite or Postgres. The
// snapshot is kept as one row per section in a learning_state table so a
// save rewrites every section in a single transaction.
package store

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	"github.com/sells-group/program-extract/internal/learning"
	"github.com/sells-group/program-extract/internal/model"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config selects and configures the backing store.
type Config struct {
	Driver      string      `yaml:"driver" mapstructure:"driver"`
	Path        string      `yaml:"path" mapstructure:"path"`
	DatabaseURL string      `yaml:"database_url" mapstructure:"database_url"`
	Pool        *PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// Open returns a migrated store for cfg.Driver.
func Open(ctx context.Context, cfg Config) (learning.Store, error) {
	switch cfg.Driver {
	case DriverMemory:
		return learning.NewMemoryStore(), nil
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: postgres requires a database url")
		}
		s, err := NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close() //nolint:errcheck
			return nil, err
		}
		return s, nil
	case DriverSQLite, "":
		path := cfg.Path
		if path == "" {
			path = "learning.db"
		}
		s, err := NewSQLite(path)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close() //nolint:errcheck
			return nil, err
		}
		return s, nil
	}
	return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
}

// metaRow carries the revision and timestamp of the whole snapshot.
const metaRow = "meta"

type section struct {
	name string
	ptr  func(s *model.LearningSnapshot) any
}

var sections = []section{
	{"pattern_performance", func(s *model.LearningSnapshot) any { return &s.PatternPerformance }},
	{"site_profiles", func(s *model.LearningSnapshot) any { return &s.SiteProfiles }},
	{"field_strategies", func(s *model.LearningSnapshot) any { return &s.FieldStrategies }},
	{"history", func(s *model.LearningSnapshot) any { return &s.History }},
	{"corrections", func(s *model.LearningSnapshot) any { return &s.Corrections }},
	{"patterns", func(s *model.LearningSnapshot) any { return &s.Patterns }},
}

type meta struct {
	Timestamp time.Time `json:"timestamp"`
}

type row struct {
	name string
	data []byte
}

// encodeSnapshot returns one row per section plus the meta row.
func encodeSnapshot(snap *model.LearningSnapshot) ([]row, error) {
	rows := make([]row, 0, len(sections)+1)
	for _, sec := range sections {
		data, err := json.Marshal(sec.ptr(snap))
		if err != nil {
			return nil, eris.Wrapf(err, "store: encode %s", sec.name)
		}
		rows = append(rows, row{name: sec.name, data: data})
	}
	data, err := json.Marshal(meta{Timestamp: snap.Timestamp})
	if err != nil {
		return nil, eris.Wrap(err, "store: encode meta")
	}
	return append(rows, row{name: metaRow, data: data}), nil
}

// decodeRow folds one stored row into snap. Unknown rows are ignored so an
// older binary can read a newer table.
func decodeRow(snap *model.LearningSnapshot, name string, data []byte, revision int64) error {
	if name == metaRow {
		var m meta
		if err := json.Unmarshal(data, &m); err != nil {
			return eris.Wrap(err, "store: decode meta")
		}
		snap.Timestamp = m.Timestamp
		snap.Revision = revision
		return nil
	}
	for _, sec := range sections {
		if sec.name != name {
			continue
		}
		if err := json.Unmarshal(data, sec.ptr(snap)); err != nil {
			return eris.Wrapf(err, "store: decode %s", name)
		}
	}
	return nil
}
