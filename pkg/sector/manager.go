// pkg/sector/manager.go
package sector

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/opd-ai/go-starsector/pkg/content"
	"github.com/opd-ai/go-starsector/pkg/entity"
	"github.com/opd-ai/go-starsector/pkg/logging"
	"github.com/opd-ai/go-starsector/pkg/physics"
	"github.com/opd-ai/go-starsector/pkg/world"
)

// Errors returned by Warp
var (
	ErrUnknownSector  = errors.New("unknown sector")
	ErrNotVisited     = errors.New("sector has not been visited")
	ErrUnknownPlayer  = errors.New("unknown player")
	ErrAlreadyWarping = errors.New("player is already warping")
	ErrDocked         = errors.New("player is docked")
)

// Bounds is the rectangular extent of a sector, centered on the origin
type Bounds struct {
	Width  float64
	Height float64
}

// Contains reports whether pos lies inside the bounds, edges included
func (b Bounds) Contains(pos physics.Vector2D) bool {
	return math.Abs(pos.X) <= b.Width/2 && math.Abs(pos.Y) <= b.Height/2
}

// Exit returns the edge pos has crossed. When two edges are crossed at once
// the larger overshoot wins, horizontal first on a tie.
func (b Bounds) Exit(pos physics.Vector2D) (Direction, bool) {
	dx := math.Abs(pos.X) - b.Width/2
	dy := math.Abs(pos.Y) - b.Height/2
	if dx <= 0 && dy <= 0 {
		return 0, false
	}
	if dx >= dy {
		if pos.X > 0 {
			return Right, true
		}
		return Left, true
	}
	if pos.Y > 0 {
		return Down, true
	}
	return Up, true
}

// Crossing records a ship that left its sector during the last tick
type Crossing struct {
	PlayerID  entity.ID
	From      ID
	Direction Direction
}

// DetectCrossings lists every ship of ws outside b in ascending id order.
// Stations, docked and warping players never cross.
func DetectCrossings(ws *world.State, defs *content.Tables, b Bounds) []Crossing {
	var out []Crossing
	for _, id := range ws.SortedPlayerIDs() {
		p := ws.Players[id]
		if p.Docked() || p.Warping != nil {
			continue
		}
		if def, ok := defs.Ship(p.DefIndex); !ok || def.IsStation() {
			continue
		}
		if dir, ok := b.Exit(p.Position); ok {
			out = append(out, Crossing{PlayerID: id, From: ID(ws.Sector), Direction: dir})
		}
	}
	return out
}

// Outcome is how a crossing or warp was resolved
type Outcome int

const (
	// Skipped means the player or sector no longer exists
	Skipped Outcome = iota
	// Moved means the player now lives in another local sector
	Moved
	// Remote means the destination belongs to a peer and needs a handoff
	Remote
	// Reflected means there was no neighbor and the ship bounced back
	Reflected
)

func (o Outcome) String() string {
	switch o {
	case Moved:
		return "moved"
	case Remote:
		return "remote"
	case Reflected:
		return "reflected"
	default:
		return "skipped"
	}
}

// Resolution is the result of resolving one crossing or completed warp
type Resolution struct {
	PlayerID entity.ID
	From     ID
	To       ID
	Outcome  Outcome
}

// Info describes a sector to clients
type Info struct {
	ID     ID               `json:"id"`
	Kind   world.SectorKind `json:"kind,omitempty"`
	Server string           `json:"server,omitempty"`
}

// WarpPayload is sent to a client whose player changed sector
type WarpPayload struct {
	To           ID                    `json:"to"`
	Asteroids    []*entity.Asteroid    `json:"asteroids"`
	Collectables []*entity.Collectable `json:"collectables"`
	Mines        []*entity.Mine        `json:"mines"`
	SectorInfos  []Info                `json:"sectorInfos"`
}

// Manager owns the sector states hosted by this process
type Manager struct {
	Graph  *Graph
	Bounds Bounds
	Defs   *content.Tables
	Logger *logging.Logger

	// Describe fills in sector info for sectors this process does not host.
	// When nil only the id is reported.
	Describe func(ID) Info

	sectors map[ID]*world.State
}

// NewManager creates a manager with no hosted sectors
func NewManager(graph *Graph, bounds Bounds, defs *content.Tables, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		Graph:   graph,
		Bounds:  bounds,
		Defs:    defs,
		Logger:  logger,
		sectors: make(map[ID]*world.State),
	}
}

// Host starts hosting ws
func (m *Manager) Host(ws *world.State) {
	m.sectors[ID(ws.Sector)] = ws
}

// Release stops hosting a sector and returns its state
func (m *Manager) Release(id ID) (*world.State, bool) {
	ws, ok := m.sectors[id]
	delete(m.sectors, id)
	return ws, ok
}

// State returns the state of a hosted sector
func (m *Manager) State(id ID) (*world.State, bool) {
	ws, ok := m.sectors[id]
	return ws, ok
}

// IsLocal reports whether this process hosts the sector
func (m *Manager) IsLocal(id ID) bool {
	_, ok := m.sectors[id]
	return ok
}

// IDs returns the hosted sectors in ascending order
func (m *Manager) IDs() []ID {
	return slices.Sorted(maps.Keys(m.sectors))
}

// Locate finds the hosted sector a player currently lives in
func (m *Manager) Locate(pid entity.ID) (ID, bool) {
	for _, id := range m.IDs() {
		if _, ok := m.sectors[id].Players[pid]; ok {
			return id, true
		}
	}
	return 0, false
}

// Resolve applies one crossing
func (m *Manager) Resolve(c Crossing) Resolution {
	res := Resolution{PlayerID: c.PlayerID, From: c.From, To: c.From}
	src, ok := m.sectors[c.From]
	if !ok {
		m.Logger.Warn(context.Background(), "crossing from unhosted sector", "sector", c.From, "player", c.PlayerID)
		return res
	}
	p, ok := src.Players[c.PlayerID]
	if !ok {
		return res
	}

	to, ok := m.Graph.Neighbor(c.From, c.Direction)
	if !ok {
		m.Reflect(p, c.Direction)
		res.Outcome = Reflected
		return res
	}
	res.To = to
	if !m.IsLocal(to) {
		res.Outcome = Remote
		return res
	}
	m.Rewrap(p, c.Direction)
	m.move(src, m.sectors[to], p.ID)
	res.Outcome = Moved
	return res
}

// ResolveAll detects and resolves every crossing of every hosted sector
func (m *Manager) ResolveAll() []Resolution {
	var crossings []Crossing
	for _, id := range m.IDs() {
		crossings = append(crossings, DetectCrossings(m.sectors[id], m.Defs, m.Bounds)...)
	}
	out := make([]Resolution, 0, len(crossings))
	for _, c := range crossings {
		out = append(out, m.Resolve(c))
	}
	return out
}

// Rewrap moves a ship that left through dir to the opposite entry edge
func (m *Manager) Rewrap(p *entity.Player, dir Direction) {
	switch dir {
	case Right:
		p.Position.X -= m.Bounds.Width
	case Left:
		p.Position.X += m.Bounds.Width
	case Down:
		p.Position.Y -= m.Bounds.Height
	case Up:
		p.Position.Y += m.Bounds.Height
	}
	m.clamp(p)
}

// Reflect bounces a ship that left through dir back inside and inverts the
// matching heading component.
func (m *Manager) Reflect(p *entity.Player, dir Direction) {
	hw, hh := m.Bounds.Width/2, m.Bounds.Height/2
	switch dir {
	case Right:
		p.Position.X = 2*hw - p.Position.X
		p.Heading = physics.ReflectX(p.Heading)
		p.Impulse.X = -p.Impulse.X
	case Left:
		p.Position.X = -2*hw - p.Position.X
		p.Heading = physics.ReflectX(p.Heading)
		p.Impulse.X = -p.Impulse.X
	case Down:
		p.Position.Y = 2*hh - p.Position.Y
		p.Heading = physics.ReflectY(p.Heading)
		p.Impulse.Y = -p.Impulse.Y
	case Up:
		p.Position.Y = -2*hh - p.Position.Y
		p.Heading = physics.ReflectY(p.Heading)
		p.Impulse.Y = -p.Impulse.Y
	}
	m.clamp(p)
}

func (m *Manager) clamp(p *entity.Player) {
	hw, hh := m.Bounds.Width/2, m.Bounds.Height/2
	p.Position.X = math.Max(-hw, math.Min(hw, p.Position.X))
	p.Position.Y = math.Max(-hh, math.Min(hh, p.Position.Y))
}

// move transfers a player and its NPC controller between two local states
func (m *Manager) move(src, dst *world.State, pid entity.ID) {
	p, npc := src.RemovePlayer(pid)
	if p == nil {
		return
	}
	if npc != nil {
		dst.AddNPC(p, npc)
	} else {
		dst.AddPlayer(p)
	}
}

// Warp starts a long jump to a previously visited sector
func (m *Manager) Warp(visited map[ID]struct{}, pid entity.ID, from, to ID) error {
	ws, ok := m.sectors[from]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSector, from)
	}
	if !m.Graph.Has(to) {
		return fmt.Errorf("%w: %d", ErrUnknownSector, to)
	}
	if _, ok := visited[to]; !ok {
		return fmt.Errorf("%w: %d", ErrNotVisited, to)
	}
	p, ok := ws.Players[pid]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPlayer, pid)
	}
	if p.Docked() {
		return ErrDocked
	}
	if p.Warping != nil {
		return ErrAlreadyWarping
	}
	p.Warping = &entity.WarpState{To: int(to)}
	return nil
}

// CompleteWarps finishes every warp whose progress reached the ship's warp
// time. Local destinations are moved immediately; remote ones are reported
// for the handoff layer with the player left in place.
func (m *Manager) CompleteWarps() []Resolution {
	var out []Resolution
	for _, from := range m.IDs() {
		ws := m.sectors[from]
		for _, pid := range ws.SortedPlayerIDs() {
			p := ws.Players[pid]
			if p.Warping == nil {
				continue
			}
			def, ok := m.Defs.Ship(p.DefIndex)
			if !ok || p.Warping.Progress < def.WarpFrames {
				continue
			}
			to := ID(p.Warping.To)
			p.Warping = nil
			res := Resolution{PlayerID: pid, From: from, To: to}
			switch {
			case to == from:
				res.Outcome = Moved
			case m.IsLocal(to):
				m.move(ws, m.sectors[to], pid)
				res.Outcome = Moved
			default:
				res.Outcome = Remote
			}
			out = append(out, res)
		}
	}
	return out
}

// Snapshot builds the payload sent to a client entering sector id
func (m *Manager) Snapshot(id ID) (WarpPayload, error) {
	ws, ok := m.sectors[id]
	if !ok {
		return WarpPayload{}, fmt.Errorf("%w: %d", ErrUnknownSector, id)
	}
	return WarpPayload{
		To:           id,
		Asteroids:    ws.AsteroidList(),
		Collectables: ws.CollectableList(),
		Mines:        ws.MineList(),
		SectorInfos:  m.Infos(),
	}, nil
}

// Infos describes every sector of the graph in ascending order
func (m *Manager) Infos() []Info {
	ids := m.Graph.IDs()
	out := make([]Info, 0, len(ids))
	for _, id := range ids {
		switch {
		case m.IsLocal(id):
			out = append(out, Info{ID: id, Kind: m.sectors[id].Kind})
		case m.Describe != nil:
			out = append(out, m.Describe(id))
		default:
			out = append(out, Info{ID: id})
		}
	}
	return out
}
