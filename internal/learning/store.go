package learning

import (
	"context"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	"github.com/sells-group/program-extract/internal/model"
)

// Store is the durable home of the learning state. Implementations treat the
// snapshot as an opaque blob, must not retain the pointer passed to Save, and
// report through SaveStatus.Overwrote when another writer saved after the
// snapshot's revision was loaded. Writes are last-writer-wins.
type Store interface {
	Load(ctx context.Context) (*model.LearningSnapshot, error)
	Save(ctx context.Context, snap *model.LearningSnapshot) (model.SaveStatus, error)
	Close() error
}

// MemoryStore keeps the encoded snapshot in memory. Several engines sharing one
// MemoryStore behave like sessions sharing a durable store.
type MemoryStore struct {
	mu       sync.Mutex
	data     []byte
	revision int64
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load decodes the last saved snapshot, or returns an empty one.
func (m *MemoryStore) Load(_ context.Context) (*model.LearningSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := model.NewLearningSnapshot()
	if len(m.data) == 0 {
		return snap, nil
	}
	if err := json.Unmarshal(m.data, snap); err != nil {
		return nil, eris.Wrap(err, "memory store: decode snapshot")
	}
	snap.Normalize()
	return snap, nil
}

// Save encodes snap and bumps the revision.
func (m *MemoryStore) Save(_ context.Context, snap *model.LearningSnapshot) (model.SaveStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := model.SaveStatus{
		Revision:  m.revision + 1,
		Overwrote: m.revision > snap.Revision,
	}
	out := *snap
	out.Revision = status.Revision
	data, err := json.Marshal(&out)
	if err != nil {
		return model.SaveStatus{}, eris.Wrap(err, "memory store: encode snapshot")
	}
	m.data = data
	m.revision = status.Revision
	return status, nil
}

// Revision returns the revision of the last save.
func (m *MemoryStore) Revision() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revision
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
