// pkg/peer/directory.go
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/sasha-s/go-deadlock"

	"github.com/opd-ai/go-starsector/pkg/logging"
)

// Entry describes one live peer
type Entry struct {
	Name             string    `json:"name"`
	ControlSubject   string    `json:"controlSubject"`
	BroadcastSubject string    `json:"broadcastSubject"`
	PublicAddr       string    `json:"publicAddr"`
	Seen             time.Time `json:"seen"`
}

// NewEntry fills in the subjects a peer called name listens on
func NewEntry(name, publicAddr string) Entry {
	return Entry{
		Name:             name,
		ControlSubject:   name,
		BroadcastSubject: broadcastPrefix,
		PublicAddr:       publicAddr,
	}
}

// Directory is the shared list of live peers
type Directory interface {
	Announce(ctx context.Context, e Entry) error
	Live(ctx context.Context) ([]Entry, error)
}

// MemoryDirectory keeps entries in process and forgets any entry not
// announced within Timeout.
type MemoryDirectory struct {
	Timeout time.Duration
	Now     func() time.Time

	mu      deadlock.Mutex
	entries map[string]Entry
}

// NewMemoryDirectory creates a directory that uses the wall clock
func NewMemoryDirectory(timeout time.Duration) *MemoryDirectory {
	return &MemoryDirectory{Timeout: timeout, Now: time.Now, entries: make(map[string]Entry)}
}

// Announce implements Directory
func (d *MemoryDirectory) Announce(_ context.Context, e Entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e.Seen = d.Now()
	d.entries[e.Name] = e
	return nil
}

// Live implements Directory
func (d *MemoryDirectory) Live(_ context.Context) ([]Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.Now()
	var out []Entry
	for _, name := range slices.Sorted(maps.Keys(d.entries)) {
		e := d.entries[name]
		if now.Sub(e.Seen) > d.Timeout {
			delete(d.entries, name)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// KVDirectory stores entries in a JetStream key-value bucket whose TTL
// expires peers that stop announcing.
type KVDirectory struct {
	kv jetstream.KeyValue
}

// NewKVDirectory opens or creates the bucket
func NewKVDirectory(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration) (*KVDirectory, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "live simulation peers",
		TTL:         ttl,
		History:     1,
	})
	if err != nil {
		return nil, logging.WrapError(err, "open peer directory", "bucket", bucket)
	}
	return &KVDirectory{kv: kv}, nil
}

// Announce implements Directory
func (d *KVDirectory) Announce(ctx context.Context, e Entry) error {
	e.Seen = time.Now().UTC()
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := d.kv.Put(ctx, e.Name, data); err != nil {
		return fmt.Errorf("announce %s: %w", e.Name, err)
	}
	return nil
}

// Live implements Directory
func (d *KVDirectory) Live(ctx context.Context) ([]Entry, error) {
	keys, err := d.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	slices.Sort(keys)
	out := make([]Entry, 0, len(keys))
	for _, key := range keys {
		kve, err := d.kv.Get(ctx, key)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read peer %s: %w", key, err)
		}
		var e Entry
		if err := json.Unmarshal(kve.Value(), &e); err != nil {
			continue
		}
		e.Seen = kve.Created()
		out = append(out, e)
	}
	return out, nil
}

// Heartbeat announces e immediately and then every interval until ctx ends
func Heartbeat(ctx context.Context, dir Directory, e Entry, interval time.Duration, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.Discard()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := dir.Announce(ctx, e); err != nil && ctx.Err() == nil {
			logger.Warn(ctx, "peer announce failed", "peer", e.Name, "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Roster caches the directory so the tick loop can look peers up without
// touching the network.
type Roster struct {
	dir Directory

	mu      deadlock.RWMutex
	entries map[string]Entry
	err     error
}

// NewRoster creates an empty cache over dir
func NewRoster(dir Directory) *Roster {
	return &Roster{dir: dir, entries: make(map[string]Entry)}
}

// Refresh reloads the cache from the directory
func (r *Roster) Refresh(ctx context.Context) error {
	live, err := r.dir.Live(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	if err != nil {
		return err
	}
	r.entries = make(map[string]Entry, len(live))
	for _, e := range live {
		r.entries[e.Name] = e
	}
	return nil
}

// Run refreshes every interval until ctx ends
func (r *Roster) Run(ctx context.Context, interval time.Duration, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.Discard()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
			logger.Warn(ctx, "peer directory refresh failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Lookup returns the cached entry for name
func (r *Roster) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Entries returns every cached entry in name order
func (r *Roster) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, name := range slices.Sorted(maps.Keys(r.entries)) {
		out = append(out, r.entries[name])
	}
	return out
}

// Healthy reports the error of the last refresh, if any
func (r *Roster) Healthy() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}
