// pkg/sector/sector_test.go
package sector

import (
	"errors"
	"math"
	"testing"

	"github.com/opd-ai/go-starsector/pkg/content"
	"github.com/opd-ai/go-starsector/pkg/entity"
	"github.com/opd-ai/go-starsector/pkg/physics"
	"github.com/opd-ai/go-starsector/pkg/world"
)

type stubNPC entity.ID

func (s stubNPC) ID() entity.ID { return entity.ID(s) }

func TestDirection_Opposite(t *testing.T) {
	tests := map[Direction]Direction{Up: Down, Down: Up, Left: Right, Right: Left}
	for d, want := range tests {
		if got := d.Opposite(); got != want {
			t.Errorf("%s.Opposite() = %s, expected %s", d, got, want)
		}
	}
}

func TestNewTorus_Wraps(t *testing.T) {
	g := NewTorus(3, 2)
	if err := g.Consistent(); err != nil {
		t.Fatalf("Consistent() = %v", err)
	}

	tests := []struct {
		from ID
		dir  Direction
		want ID
	}{
		{0, Right, 1},
		{2, Right, 0},
		{0, Left, 2},
		{0, Up, 3},
		{4, Down, 1},
	}
	for _, tc := range tests {
		got, ok := g.Neighbor(tc.from, tc.dir)
		if !ok || got != tc.want {
			t.Errorf("Neighbor(%d, %s) = %d, %v; expected %d", tc.from, tc.dir, got, ok, tc.want)
		}
	}
	if len(g.IDs()) != 6 {
		t.Errorf("expected 6 sectors, got %d", len(g.IDs()))
	}
}

func TestNewGrid_HasEdges(t *testing.T) {
	g := NewGrid(2, 2)
	if err := g.Consistent(); err != nil {
		t.Fatalf("Consistent() = %v", err)
	}
	if _, ok := g.Neighbor(0, Left); ok {
		t.Error("a plain grid must not wrap")
	}
	if n, ok := g.Neighbor(0, Down); !ok || n != 2 {
		t.Errorf("Neighbor(0, down) = %d, %v", n, ok)
	}
}

func TestGraph_ConsistentDetectsOneWayEdges(t *testing.T) {
	g := NewGraph()
	g.Connect(1, Right, 2)
	g.edges[2][Left] = 3
	if err := g.Consistent(); !errors.Is(err, ErrInconsistentGraph) {
		t.Errorf("Consistent() = %v, expected ErrInconsistentGraph", err)
	}
}

func TestBounds_Exit(t *testing.T) {
	b := Bounds{Width: 100, Height: 100}
	tests := []struct {
		pos  physics.Vector2D
		want Direction
		ok   bool
	}{
		{physics.Vector2D{X: 0, Y: 0}, 0, false},
		{physics.Vector2D{X: 50, Y: -50}, 0, false},
		{physics.Vector2D{X: 51}, Right, true},
		{physics.Vector2D{X: -60}, Left, true},
		{physics.Vector2D{Y: 70}, Down, true},
		{physics.Vector2D{Y: -51}, Up, true},
		{physics.Vector2D{X: 55, Y: -70}, Up, true},
	}
	for _, tc := range tests {
		got, ok := b.Exit(tc.pos)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("Exit(%+v) = %s, %v; expected %s, %v", tc.pos, got, ok, tc.want, tc.ok)
		}
	}
}

func newManager(graph *Graph, hosted ...int) *Manager {
	m := NewManager(graph, Bounds{Width: 1000, Height: 1000}, content.Default(), nil)
	for _, id := range hosted {
		m.Host(world.New(id, world.Overworld, 1))
	}
	return m
}

func addShip(m *Manager, sector ID, id entity.ID, defIndex int, x, y float64) *entity.Player {
	def, _ := m.Defs.Ship(defIndex)
	p := entity.NewPlayer(id, "pilot", 1, defIndex, def, physics.Vector2D{X: x, Y: y})
	ws, _ := m.State(sector)
	ws.AddPlayer(p)
	return p
}

func TestDetectCrossings_SkipsStationsAndDocked(t *testing.T) {
	m := newManager(NewTorus(2, 1), 0, 1)
	addShip(m, 0, 10, 0, 600, 0)
	addShip(m, 0, 11, 3, 600, 0)
	docked := addShip(m, 0, 12, 0, 600, 0)
	docked.DockedAt = 11
	addShip(m, 0, 13, 0, 0, 0)

	ws, _ := m.State(0)
	got := DetectCrossings(ws, m.Defs, m.Bounds)
	if len(got) != 1 || got[0].PlayerID != 10 || got[0].Direction != Right || got[0].From != 0 {
		t.Errorf("DetectCrossings() = %+v", got)
	}
}

func TestManager_ResolveMovesToLocalNeighbor(t *testing.T) {
	m := newManager(NewTorus(2, 1), 0, 1)
	p := addShip(m, 0, 10, 0, 520, 30)
	src, _ := m.State(0)
	src.AddNPC(p, stubNPC(10))

	res := m.ResolveAll()
	if len(res) != 1 || res[0].Outcome != Moved || res[0].To != 1 {
		t.Fatalf("ResolveAll() = %+v", res)
	}
	dst, _ := m.State(1)
	if _, ok := src.Players[10]; ok {
		t.Error("player still in source sector")
	}
	if _, ok := dst.Players[10]; !ok {
		t.Fatal("player missing from destination sector")
	}
	if _, ok := dst.NPCs[10]; !ok {
		t.Error("NPC controller should follow its player")
	}
	if math.Abs(p.Position.X-(-480)) > 1e-9 || p.Position.Y != 30 {
		t.Errorf("player entered at %+v, expected (-480, 30)", p.Position)
	}
	if got, ok := m.Locate(10); !ok || got != 1 {
		t.Errorf("Locate(10) = %d, %v", got, ok)
	}
}

func TestManager_ResolveRemoteNeighbor(t *testing.T) {
	m := newManager(NewTorus(2, 1), 0)
	addShip(m, 0, 10, 0, -520, 0)

	res := m.ResolveAll()
	if len(res) != 1 || res[0].Outcome != Remote || res[0].To != 1 {
		t.Fatalf("ResolveAll() = %+v", res)
	}
	src, _ := m.State(0)
	if _, ok := src.Players[10]; !ok {
		t.Error("a remote crossing leaves the player for the handoff layer")
	}
}

func TestManager_ResolveReflectsAtEdge(t *testing.T) {
	m := newManager(NewGrid(1, 1), 0)
	p := addShip(m, 0, 10, 0, 530, 0)
	p.Heading = 0

	res := m.ResolveAll()
	if len(res) != 1 || res[0].Outcome != Reflected {
		t.Fatalf("ResolveAll() = %+v", res)
	}
	if p.Position.X != 470 {
		t.Errorf("reflected to x=%v, expected 470", p.Position.X)
	}
	if math.Abs(math.Abs(p.Heading)-math.Pi) > 1e-9 {
		t.Errorf("heading = %v, expected to point back", p.Heading)
	}
}

func TestManager_Warp(t *testing.T) {
	visited := map[ID]struct{}{1: {}}
	tests := []struct {
		name    string
		to      ID
		pid     entity.ID
		wantErr error
	}{
		{"visited", 1, 10, nil},
		{"not visited", 2, 10, ErrNotVisited},
		{"unknown sector", 99, 10, ErrUnknownSector},
		{"unknown player", 1, 77, ErrUnknownPlayer},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newManager(NewTorus(3, 1), 0, 1)
			p := addShip(m, 0, 10, 0, 0, 0)
			err := m.Warp(visited, tc.pid, 0, tc.to)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Warp() error = %v, expected %v", err, tc.wantErr)
			}
			if tc.wantErr == nil && (p.Warping == nil || p.Warping.To != int(tc.to)) {
				t.Errorf("warp state = %+v", p.Warping)
			}
		})
	}
}

func TestManager_CompleteWarps(t *testing.T) {
	m := newManager(NewTorus(3, 1), 0, 1)
	local := addShip(m, 0, 10, 0, 0, 0)
	remote := addShip(m, 0, 11, 0, 0, 0)
	pending := addShip(m, 0, 12, 0, 0, 0)
	def, _ := m.Defs.Ship(0)
	local.Warping = &entity.WarpState{To: 1, Progress: def.WarpFrames}
	remote.Warping = &entity.WarpState{To: 2, Progress: def.WarpFrames}
	pending.Warping = &entity.WarpState{To: 1, Progress: def.WarpFrames - 1}

	res := m.CompleteWarps()
	if len(res) != 2 {
		t.Fatalf("CompleteWarps() = %+v", res)
	}
	if res[0].PlayerID != 10 || res[0].Outcome != Moved || res[1].PlayerID != 11 || res[1].Outcome != Remote {
		t.Errorf("unexpected resolutions %+v", res)
	}
	if local.Warping != nil || remote.Warping != nil || pending.Warping == nil {
		t.Error("only finished warps should be cleared")
	}
	dst, _ := m.State(1)
	if _, ok := dst.Players[10]; !ok {
		t.Error("local warp should move the player")
	}
}

func TestManager_Snapshot(t *testing.T) {
	m := newManager(NewTorus(2, 1), 0)
	m.Describe = func(id ID) Info { return Info{ID: id, Server: "peer-b"} }
	ws, _ := m.State(0)
	ws.Asteroids[5] = &entity.Asteroid{ID: 5, Resources: 10}

	snap, err := m.Snapshot(0)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(snap.Asteroids) != 1 || snap.Asteroids[0].ID != 5 {
		t.Errorf("asteroids = %+v", snap.Asteroids)
	}
	if len(snap.SectorInfos) != 2 || snap.SectorInfos[0].Kind != world.Overworld || snap.SectorInfos[1].Server != "peer-b" {
		t.Errorf("sector infos = %+v", snap.SectorInfos)
	}
	if _, err := m.Snapshot(9); !errors.Is(err, ErrUnknownSector) {
		t.Errorf("Snapshot(9) error = %v", err)
	}
}
