// pkg/peer/ownership.go
package peer

import (
	"maps"
	"slices"

	"github.com/sasha-s/go-deadlock"

	"github.com/opd-ai/go-starsector/pkg/sector"
	"github.com/opd-ai/go-starsector/pkg/world"
)

// Claim is the latest known ownership record of one sector. A removed claim
// is a tombstone; it still takes part in ordering.
type Claim struct {
	Sector  sector.ID
	Kind    world.SectorKind
	Server  string
	Version uint64
	Removed bool
}

func (c Claim) newer(version uint64, server string) bool {
	if version != c.Version {
		return version > c.Version
	}
	return server > c.Server
}

// Ownership tracks which server owns every known sector. Updates are
// last-writer-wins on (version, server) so notifications may arrive in any
// order, duplicated or replayed, and every peer converges.
type Ownership struct {
	mu     deadlock.RWMutex
	self   string
	clock  uint64
	claims map[sector.ID]Claim
}

// NewOwnership creates an empty table for the server named self
func NewOwnership(self string) *Ownership {
	return &Ownership{self: self, claims: make(map[sector.ID]Claim)}
}

// Self returns the local server name
func (o *Ownership) Self() string { return o.self }

// tick advances the local clock past everything observed
func (o *Ownership) tick() uint64 {
	o.clock++
	return o.clock
}

// Observe raises the local clock to at least version
func (o *Ownership) Observe(version uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clock = max(o.clock, version)
}

// Claim takes ownership of id at a version newer than anything seen so far
// and returns the notification to broadcast.
func (o *Ownership) Claim(id sector.ID, kind world.SectorKind) SectorNotification {
	o.mu.Lock()
	defer o.mu.Unlock()
	v := o.tick()
	o.claims[id] = Claim{Sector: id, Kind: kind, Server: o.self, Version: v}
	return SectorNotification{Sector: id, SectorKind: kind, Server: o.self, Version: v}
}

// Release gives up a locally owned sector, leaving a tombstone. It reports
// false when the sector is not owned here.
func (o *Ownership) Release(id sector.ID) (SectorRemoval, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.claims[id]
	if !ok || c.Removed || c.Server != o.self {
		return SectorRemoval{}, false
	}
	v := o.tick()
	o.claims[id] = Claim{Sector: id, Kind: c.Kind, Server: o.self, Version: v, Removed: true}
	return SectorRemoval{Sector: id, Server: o.self, Version: v}, true
}

// Apply merges a remote notification and reports whether it changed the table
func (o *Ownership) Apply(n SectorNotification) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clock = max(o.clock, n.Version)
	if c, ok := o.claims[n.Sector]; ok && !c.newer(n.Version, n.Server) {
		return false
	}
	o.claims[n.Sector] = Claim{Sector: n.Sector, Kind: n.SectorKind, Server: n.Server, Version: n.Version}
	return true
}

// ApplyRemoval merges a remote removal and reports whether it changed the table
func (o *Ownership) ApplyRemoval(r SectorRemoval) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clock = max(o.clock, r.Version)
	c, ok := o.claims[r.Sector]
	if ok && !c.newer(r.Version, r.Server) {
		return false
	}
	o.claims[r.Sector] = Claim{Sector: r.Sector, Kind: c.Kind, Server: r.Server, Version: r.Version, Removed: true}
	return true
}

// Owner returns the server that currently owns id
func (o *Ownership) Owner(id sector.ID) (string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	c, ok := o.claims[id]
	if !ok || c.Removed {
		return "", false
	}
	return c.Server, true
}

// Lookup returns the raw claim for id, tombstones included
func (o *Ownership) Lookup(id sector.ID) (Claim, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	c, ok := o.claims[id]
	return c, ok
}

// Owned returns the locally owned sectors in id order
func (o *Ownership) Owned() []sector.ID {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []sector.ID
	for _, id := range slices.Sorted(maps.Keys(o.claims)) {
		if c := o.claims[id]; !c.Removed && c.Server == o.self {
			out = append(out, id)
		}
	}
	return out
}

// Notifications restates every local claim for the periodic broadcast
func (o *Ownership) Notifications() []SectorNotification {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []SectorNotification
	for _, id := range slices.Sorted(maps.Keys(o.claims)) {
		c := o.claims[id]
		if c.Removed || c.Server != o.self {
			continue
		}
		out = append(out, SectorNotification{Sector: id, SectorKind: c.Kind, Server: c.Server, Version: c.Version})
	}
	return out
}
