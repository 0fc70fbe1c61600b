// Package session keeps the per-connection data that is not part of the
// simulated world: who a connection controls, what it has selected and
// which sectors it may warp to.
package session

import (
	"errors"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"

	"github.com/opd-ai/go-starsector/pkg/engine"
	"github.com/opd-ai/go-starsector/pkg/entity"
	"github.com/opd-ai/go-starsector/pkg/sector"
)

var (
	// ErrDuplicateSession is returned when a session id or player is registered twice
	ErrDuplicateSession = errors.New("session already registered")
	// ErrNotOwner is returned when a connection acts on a player it does not control
	ErrNotOwner = errors.New("player not owned by session")
)

// Session is everything one connection carries between ticks
type Session struct {
	ID       string
	PlayerID entity.ID
	Name     string
	Sector   sector.ID

	Target             entity.Target
	Secondary          int
	PendingActivations []int
	Controls           engine.Controls

	KnownRecipes map[string]struct{}
	Visited      map[sector.ID]struct{}
}

// New creates a session for a freshly spawned player in sector
func New(playerID entity.ID, name string, sec sector.ID) *Session {
	return &Session{
		ID:           uuid.NewString(),
		PlayerID:     playerID,
		Name:         name,
		Sector:       sec,
		Secondary:    -1,
		KnownRecipes: make(map[string]struct{}),
		Visited:      map[sector.ID]struct{}{sec: {}},
	}
}

// Owns reports whether this session controls playerID
func (s *Session) Owns(playerID entity.ID) bool {
	return s != nil && s.PlayerID != 0 && s.PlayerID == playerID
}

// Visit records sec as reachable by warp and makes it the current sector
func (s *Session) Visit(sec sector.ID) {
	s.Sector = sec
	s.Visited[sec] = struct{}{}
}

// QueueActivation remembers a one-shot slot activation for the next tick
func (s *Session) QueueActivation(slot int) {
	if !slices.Contains(s.PendingActivations, slot) {
		s.PendingActivations = append(s.PendingActivations, slot)
	}
}

// TakeActivations returns and clears the queued activations
func (s *Session) TakeActivations() []int {
	out := s.PendingActivations
	s.PendingActivations = nil
	return out
}

// Snapshot is the wire and transfer form of a session
type Snapshot struct {
	ID           string          `json:"id" msgpack:"id"`
	PlayerID     entity.ID       `json:"playerId" msgpack:"playerId"`
	Name         string          `json:"name" msgpack:"name"`
	Sector       sector.ID       `json:"sector" msgpack:"sector"`
	Target       entity.Target   `json:"target" msgpack:"target"`
	Secondary    int             `json:"secondary" msgpack:"secondary"`
	Controls     engine.Controls `json:"controls" msgpack:"controls"`
	KnownRecipes []string        `json:"knownRecipes" msgpack:"knownRecipes"`
	Visited      []sector.ID     `json:"visited" msgpack:"visited"`
}

// Snapshot copies the session with its sets flattened into sorted arrays
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:           s.ID,
		PlayerID:     s.PlayerID,
		Name:         s.Name,
		Sector:       s.Sector,
		Target:       s.Target,
		Secondary:    s.Secondary,
		Controls:     s.Controls,
		KnownRecipes: slices.Sorted(maps.Keys(s.KnownRecipes)),
		Visited:      slices.Sorted(maps.Keys(s.Visited)),
	}
}

// FromSnapshot rebuilds a session. Pending activations are never carried.
func FromSnapshot(snap Snapshot) *Session {
	s := &Session{
		ID:           snap.ID,
		PlayerID:     snap.PlayerID,
		Name:         snap.Name,
		Sector:       snap.Sector,
		Target:       snap.Target,
		Secondary:    snap.Secondary,
		Controls:     snap.Controls,
		KnownRecipes: make(map[string]struct{}, len(snap.KnownRecipes)),
		Visited:      make(map[sector.ID]struct{}, len(snap.Visited)+1),
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	for _, r := range snap.KnownRecipes {
		s.KnownRecipes[r] = struct{}{}
	}
	for _, v := range snap.Visited {
		s.Visited[v] = struct{}{}
	}
	s.Visited[s.Sector] = struct{}{}
	return s
}

// Registry indexes live sessions by connection id and player id
type Registry struct {
	mu       deadlock.RWMutex
	byID     map[string]*Session
	byPlayer map[entity.ID]*Session
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[string]*Session),
		byPlayer: make(map[entity.ID]*Session),
	}
}

// Add registers s. Neither its id nor its player may already be present.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[s.ID]; ok {
		return ErrDuplicateSession
	}
	if _, ok := r.byPlayer[s.PlayerID]; ok {
		return ErrDuplicateSession
	}
	r.byID[s.ID] = s
	r.byPlayer[s.PlayerID] = s
	return nil
}

// Remove drops the session with the given id and returns it
func (r *Registry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)
	if r.byPlayer[s.PlayerID] == s {
		delete(r.byPlayer, s.PlayerID)
	}
	return s, true
}

// ByID looks up a session by connection id
func (r *Registry) ByID(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

// ByPlayer looks up the session controlling a player
func (r *Registry) ByPlayer(pid entity.ID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byPlayer[pid]
	return s, ok
}

// Len returns the number of registered sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Each calls fn for every session in ascending session id order. The lock
// is released before fn runs.
func (r *Registry) Each(fn func(*Session)) {
	r.mu.RLock()
	list := slices.Collect(maps.Values(r.byID))
	r.mu.RUnlock()
	slices.SortFunc(list, func(a, b *Session) int { return strings.Compare(a.ID, b.ID) })
	for _, s := range list {
		fn(s)
	}
}
