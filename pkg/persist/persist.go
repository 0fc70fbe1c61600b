// Package persist checkpoints players so a crash or restart loses at most
// one checkpoint period of progress.
package persist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sasha-s/go-deadlock"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/opd-ai/go-starsector/pkg/entity"
)

// ErrNotFound is returned when no checkpoint exists for a player
var ErrNotFound = errors.New("checkpoint not found")

// Record is one persisted player
type Record struct {
	ID     entity.ID `msgpack:"id"`
	Sector int       `msgpack:"sector"`
	Data   []byte    `msgpack:"data"`
}

// Store saves and loads player records
type Store interface {
	Save(ctx context.Context, r Record) error
	Load(ctx context.Context, id entity.ID) (Record, error)
}

// Encode serializes p as it stands in sector
func Encode(p *entity.Player, sector int) (Record, error) {
	data, err := msgpack.Marshal(p)
	if err != nil {
		return Record{}, fmt.Errorf("encode player %d: %w", p.ID, err)
	}
	return Record{ID: p.ID, Sector: sector, Data: data}, nil
}

// Decode rebuilds the player held by r
func Decode(r Record) (*entity.Player, error) {
	var p entity.Player
	if err := msgpack.Unmarshal(r.Data, &p); err != nil {
		return nil, fmt.Errorf("decode player %d: %w", r.ID, err)
	}
	return &p, nil
}

// MemoryStore keeps records in a map
type MemoryStore struct {
	mu      deadlock.RWMutex
	records map[entity.ID]Record
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[entity.ID]Record)}
}

// Save implements Store
func (m *MemoryStore) Save(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Data = append([]byte(nil), r.Data...)
	m.records[r.ID] = r
	return nil
}

// Load implements Store
func (m *MemoryStore) Load(_ context.Context, id entity.ID) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return Record{}, fmt.Errorf("player %d: %w", id, ErrNotFound)
	}
	return r, nil
}

// Len returns the number of stored records
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// FileStore writes one file per player. Each write goes to a temporary file
// that is renamed over the old checkpoint, so a reader never sees a torn record.
type FileStore struct {
	Dir string
}

// NewFileStore creates dir if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (f *FileStore) path(id entity.ID) string {
	return filepath.Join(f.Dir, strconv.FormatUint(uint64(id), 10)+".ckpt")
}

// Save implements Store
func (f *FileStore) Save(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := msgpack.Marshal(&r)
	if err != nil {
		return fmt.Errorf("encode record %d: %w", r.ID, err)
	}

	tmp, err := os.CreateTemp(f.Dir, ".ckpt-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint %d: %w", r.ID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync checkpoint %d: %w", r.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint %d: %w", r.ID, err)
	}
	if err := os.Rename(tmp.Name(), f.path(r.ID)); err != nil {
		return fmt.Errorf("commit checkpoint %d: %w", r.ID, err)
	}
	return nil
}

// Load implements Store
func (f *FileStore) Load(ctx context.Context, id entity.ID) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	data, err := os.ReadFile(f.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, fmt.Errorf("player %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("read checkpoint %d: %w", id, err)
	}
	var r Record
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode checkpoint %d: %w", id, err)
	}
	return r, nil
}
