// Package world holds the mutable per-sector aggregate of every live entity.
// A State is mutated by exactly one tick driver at a time and is never
// shared between sectors.
package world

import (
	"maps"
	"math/rand/v2"
	"slices"
	"sort"

	"github.com/opd-ai/go-starsector/pkg/entity"
)

// SectorKind tags what a sector is used for
type SectorKind string

const (
	Overworld SectorKind = "overworld"
	Tutorial  SectorKind = "tutorial"
	Mission   SectorKind = "mission"
)

// NPC is the handle stored in the side table for every computer-driven player
type NPC interface {
	ID() entity.ID
}

// DelayedAction is a mutation deferred to a future frame
type DelayedAction struct {
	Frame uint64
	Run   func(*State)
}

// State owns every entity table of one sector
type State struct {
	Sector int
	Kind   SectorKind

	Players      map[entity.ID]*entity.Player
	Projectiles  map[entity.ID][]*entity.Ballistic
	Asteroids    map[entity.ID]*entity.Asteroid
	Missiles     map[entity.ID]*entity.Missile
	Mines        map[entity.ID]*entity.Mine
	Collectables map[entity.ID]*entity.Collectable

	// AsteroidsDirty requests a bulk resend of the asteroid table
	AsteroidsDirty bool
	Delayed        []DelayedAction

	// NPCs maps player ids to their behavior controllers
	NPCs map[entity.ID]NPC

	// Rand is the only randomness source used while ticking this sector
	Rand *rand.Rand

	projectileID uint64
}

// New creates an empty sector state with its own seeded random stream
func New(sector int, kind SectorKind, seed uint64) *State {
	return &State{
		Sector:       sector,
		Kind:         kind,
		Players:      make(map[entity.ID]*entity.Player),
		Projectiles:  make(map[entity.ID][]*entity.Ballistic),
		Asteroids:    make(map[entity.ID]*entity.Asteroid),
		Missiles:     make(map[entity.ID]*entity.Missile),
		Mines:        make(map[entity.ID]*entity.Mine),
		Collectables: make(map[entity.ID]*entity.Collectable),
		NPCs:         make(map[entity.ID]NPC),
		Rand:         rand.New(rand.NewPCG(seed, uint64(sector))),
	}
}

// NextID returns a fresh id for a spawned non-player entity
func (s *State) NextID() entity.ID {
	s.projectileID++
	return entity.ID(s.projectileID)
}

// LastID returns the most recently issued id
func (s *State) LastID() uint64 {
	return s.projectileID
}

// AdvanceIDs moves the counter forward so ids issued elsewhere never repeat
func (s *State) AdvanceIDs(last uint64) {
	if last > s.projectileID {
		s.projectileID = last
	}
}

// AddPlayer inserts a player into the sector
func (s *State) AddPlayer(p *entity.Player) {
	s.Players[p.ID] = p
}

// AddNPC inserts a player together with its behavior controller
func (s *State) AddNPC(p *entity.Player, npc NPC) {
	p.IsNPC = true
	s.Players[p.ID] = p
	s.NPCs[p.ID] = npc
}

// RemovePlayer deletes a player and its side-table entry. In-flight
// projectiles keep flying; their parent id simply becomes stale.
func (s *State) RemovePlayer(id entity.ID) (*entity.Player, NPC) {
	p, ok := s.Players[id]
	if !ok {
		return nil, nil
	}
	delete(s.Players, id)
	npc := s.NPCs[id]
	delete(s.NPCs, id)
	return p, npc
}

// AddProjectile appends a projectile under its parent
func (s *State) AddProjectile(b *entity.Ballistic) {
	s.Projectiles[b.Parent] = append(s.Projectiles[b.Parent], b)
}

// ProjectileCount returns the number of live projectiles
func (s *State) ProjectileCount() int {
	n := 0
	for _, list := range s.Projectiles {
		n += len(list)
	}
	return n
}

// Schedule defers fn until frame
func (s *State) Schedule(frame uint64, fn func(*State)) {
	s.Delayed = append(s.Delayed, DelayedAction{Frame: frame, Run: fn})
}

// RunDue runs every action scheduled at or before frame in scheduling
// order. Actions scheduled while running wait for a later call.
func (s *State) RunDue(frame uint64) int {
	var due []DelayedAction
	pending := s.Delayed[:0]
	for _, a := range s.Delayed {
		if a.Frame <= frame {
			due = append(due, a)
		} else {
			pending = append(pending, a)
		}
	}
	s.Delayed = pending
	for _, a := range due {
		a.Run(s)
	}
	return len(due)
}

// ResolveTarget reports whether a selection still points at a live entity
func (s *State) ResolveTarget(t entity.Target) bool {
	if t.IsZero() {
		return false
	}
	switch t.Kind {
	case entity.KindPlayer:
		_, ok := s.Players[t.ID]
		return ok
	case entity.KindAsteroid:
		a, ok := s.Asteroids[t.ID]
		return ok && !a.Depleted
	case entity.KindMissile:
		_, ok := s.Missiles[t.ID]
		return ok
	case entity.KindMine:
		_, ok := s.Mines[t.ID]
		return ok
	case entity.KindCollectable:
		_, ok := s.Collectables[t.ID]
		return ok
	}
	return false
}

func sortedKeys[V any](m map[entity.ID]V) []entity.ID {
	return slices.Sorted(maps.Keys(m))
}

// SortedPlayerIDs returns player ids in ascending order
func (s *State) SortedPlayerIDs() []entity.ID { return sortedKeys(s.Players) }

// SortedProjectileParents returns projectile parent ids in ascending order
func (s *State) SortedProjectileParents() []entity.ID { return sortedKeys(s.Projectiles) }

// SortedAsteroidIDs returns asteroid ids in ascending order
func (s *State) SortedAsteroidIDs() []entity.ID { return sortedKeys(s.Asteroids) }

// SortedMissileIDs returns missile ids in ascending order
func (s *State) SortedMissileIDs() []entity.ID { return sortedKeys(s.Missiles) }

// SortedMineIDs returns mine ids in ascending order
func (s *State) SortedMineIDs() []entity.ID { return sortedKeys(s.Mines) }

// SortedCollectableIDs returns collectable ids in ascending order
func (s *State) SortedCollectableIDs() []entity.ID { return sortedKeys(s.Collectables) }

// SortedNPCIDs returns the ids of every NPC in the side table
func (s *State) SortedNPCIDs() []entity.ID { return sortedKeys(s.NPCs) }

// Snapshot is the per-tick state payload sent to clients in this sector
type Snapshot struct {
	Frame        uint64                 `json:"frame"`
	Players      []*entity.Player       `json:"players"`
	Projectiles  []*entity.Ballistic    `json:"projectiles"`
	Asteroids    []*entity.Asteroid     `json:"asteroids"`
	Effects      []entity.EffectTrigger `json:"effects"`
	Missiles     []*entity.Missile      `json:"missiles"`
	Collectables []*entity.Collectable  `json:"collectables"`
	Mines        []*entity.Mine         `json:"mines"`
}

// Snapshot copies the sector into a wire payload with every list in id order
func (s *State) Snapshot(frame uint64, effects []entity.EffectTrigger) Snapshot {
	snap := Snapshot{
		Frame:        frame,
		Players:      make([]*entity.Player, 0, len(s.Players)),
		Projectiles:  make([]*entity.Ballistic, 0, s.ProjectileCount()),
		Asteroids:    s.AsteroidList(),
		Effects:      effects,
		Missiles:     make([]*entity.Missile, 0, len(s.Missiles)),
		Collectables: s.CollectableList(),
		Mines:        s.MineList(),
	}
	if snap.Effects == nil {
		snap.Effects = []entity.EffectTrigger{}
	}
	for _, id := range s.SortedPlayerIDs() {
		snap.Players = append(snap.Players, s.Players[id].Clone())
	}
	for _, parent := range s.SortedProjectileParents() {
		for _, b := range s.Projectiles[parent] {
			c := *b
			snap.Projectiles = append(snap.Projectiles, &c)
		}
	}
	sort.SliceStable(snap.Projectiles, func(i, j int) bool {
		return snap.Projectiles[i].ID < snap.Projectiles[j].ID
	})
	for _, id := range s.SortedMissileIDs() {
		c := *s.Missiles[id]
		snap.Missiles = append(snap.Missiles, &c)
	}
	return snap
}

// AsteroidList copies the asteroid table in id order
func (s *State) AsteroidList() []*entity.Asteroid {
	out := make([]*entity.Asteroid, 0, len(s.Asteroids))
	for _, id := range s.SortedAsteroidIDs() {
		c := *s.Asteroids[id]
		out = append(out, &c)
	}
	return out
}

// CollectableList copies the collectable table in id order
func (s *State) CollectableList() []*entity.Collectable {
	out := make([]*entity.Collectable, 0, len(s.Collectables))
	for _, id := range s.SortedCollectableIDs() {
		c := *s.Collectables[id]
		c.Cargo = slices.Clone(c.Cargo)
		out = append(out, &c)
	}
	return out
}

// MineList copies the mine table in id order
func (s *State) MineList() []*entity.Mine {
	out := make([]*entity.Mine, 0, len(s.Mines))
	for _, id := range s.SortedMineIDs() {
		c := *s.Mines[id]
		out = append(out, &c)
	}
	return out
}
