// pkg/peer/package.go
package peer

import (
	"fmt"

	"github.com/opd-ai/go-starsector/pkg/entity"
	"github.com/opd-ai/go-starsector/pkg/sector"
	"github.com/opd-ai/go-starsector/pkg/session"
	"github.com/opd-ai/go-starsector/pkg/world"
)

// Kind is why a player is being moved to another process
type Kind int

const (
	// Warp is a boundary crossing or a completed long jump
	Warp Kind = iota
	// Respawn places a destroyed player in its home sector
	Respawn
	// Spawn places a newly joined player
	Spawn
)

func (k Kind) String() string {
	switch k {
	case Warp:
		return "warp"
	case Respawn:
		return "respawn"
	case Spawn:
		return "spawn"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Package carries one player and its session to the destination process
type Package struct {
	Key     string           `msgpack:"key"`
	Kind    Kind             `msgpack:"kind"`
	Sector  sector.ID        `msgpack:"sector"`
	Session session.Snapshot `msgpack:"session"`
	Player  entity.Player    `msgpack:"player"`
}

func (p *Package) validate() error {
	switch {
	case p.Key == "":
		return fmt.Errorf("%w: empty key", ErrMalformed)
	case p.Player.ID == 0:
		return fmt.Errorf("%w: empty player", ErrMalformed)
	case p.Session.PlayerID != p.Player.ID:
		return fmt.Errorf("%w: session %d does not match player %d", ErrMalformed, p.Session.PlayerID, p.Player.ID)
	case p.Player.IsNPC:
		return fmt.Errorf("%w: computer players are not transferred", ErrMalformed)
	case p.Kind < Warp || p.Kind > Spawn:
		return fmt.Errorf("%w: %v", ErrMalformed, p.Kind)
	}
	return nil
}

// SectorPackage moves the persistent contents of a whole sector. Live ships
// and projectiles are not part of it; a sector only moves while empty of
// human players and its computer players are dropped.
type SectorPackage struct {
	Sector       sector.ID             `msgpack:"sector"`
	Kind         world.SectorKind      `msgpack:"kind"`
	Asteroids    []*entity.Asteroid    `msgpack:"asteroids"`
	Collectables []*entity.Collectable `msgpack:"collectables"`
	Mines        []*entity.Mine        `msgpack:"mines"`
	Version      uint64                `msgpack:"version"`
	LastID       uint64                `msgpack:"lastId"`
}

// PackSector copies the persistent contents of ws
func PackSector(ws *world.State, version uint64) SectorPackage {
	return SectorPackage{
		Sector:       sector.ID(ws.Sector),
		Kind:         ws.Kind,
		Asteroids:    ws.AsteroidList(),
		Collectables: ws.CollectableList(),
		Mines:        ws.MineList(),
		Version:      version,
		LastID:       ws.LastID(),
	}
}

// Unpack rebuilds a sector state seeded with seed
func (sp *SectorPackage) Unpack(seed uint64) *world.State {
	ws := world.New(int(sp.Sector), sp.Kind, seed)
	ws.AdvanceIDs(sp.LastID)
	for _, a := range sp.Asteroids {
		ws.Asteroids[a.ID] = a
	}
	for _, c := range sp.Collectables {
		ws.Collectables[c.ID] = c
	}
	for _, m := range sp.Mines {
		ws.Mines[m.ID] = m
	}
	ws.AsteroidsDirty = true
	return ws
}
