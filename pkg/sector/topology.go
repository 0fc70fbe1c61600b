// Package sector models the grid of sectors that make up the universe: the
// direction-labeled adjacency graph, boundary-crossing detection and the
// in-process movement of ships between sector states.
package sector

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// ID identifies a sector
type ID int

// Direction is one of the four cardinal edges of a sector
type Direction int

const (
	Up Direction = iota
	Down
	Left
	Right
)

var directionNames = [...]string{"up", "down", "left", "right"}

func (d Direction) String() string {
	if d < Up || d > Right {
		return fmt.Sprintf("direction(%d)", int(d))
	}
	return directionNames[d]
}

// Opposite returns the direction pointing back across the same edge
func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	default:
		return Left
	}
}

// Directions lists every direction in a fixed order
var Directions = []Direction{Up, Down, Left, Right}

// ErrInconsistentGraph is returned when an edge has no matching reverse edge
var ErrInconsistentGraph = errors.New("inconsistent sector graph")

// Graph is an undirected sector adjacency graph whose edges carry the
// direction of travel from each endpoint.
type Graph struct {
	edges map[ID]map[Direction]ID
}

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{edges: make(map[ID]map[Direction]ID)}
}

// AddSector registers a sector with no edges
func (g *Graph) AddSector(id ID) {
	if _, ok := g.edges[id]; !ok {
		g.edges[id] = make(map[Direction]ID)
	}
}

// Connect links a to b in direction dir and b back to a in the opposite direction
func (g *Graph) Connect(a ID, dir Direction, b ID) {
	g.AddSector(a)
	g.AddSector(b)
	g.edges[a][dir] = b
	g.edges[b][dir.Opposite()] = a
}

// Neighbor returns the sector reached by leaving id in direction dir
func (g *Graph) Neighbor(id ID, dir Direction) (ID, bool) {
	n, ok := g.edges[id][dir]
	return n, ok
}

// Has reports whether the sector is part of the graph
func (g *Graph) Has(id ID) bool {
	_, ok := g.edges[id]
	return ok
}

// IDs returns every sector in ascending order
func (g *Graph) IDs() []ID {
	return slices.Sorted(maps.Keys(g.edges))
}

// Consistent verifies that every edge has its opposite counterpart
func (g *Graph) Consistent() error {
	for _, a := range g.IDs() {
		for _, dir := range Directions {
			b, ok := g.edges[a][dir]
			if !ok {
				continue
			}
			if back, ok := g.edges[b][dir.Opposite()]; !ok || back != a {
				return fmt.Errorf("%w: %d -%s-> %d has no way back", ErrInconsistentGraph, a, dir, b)
			}
		}
	}
	return nil
}

// GridID returns the id of the sector at col, row in a cols-wide grid
func GridID(cols, col, row int) ID {
	return ID(row*cols + col)
}

// NewGrid builds a cols x rows grid without wraparound. Up decreases the row.
func NewGrid(cols, rows int) *Graph {
	return buildGrid(cols, rows, false)
}

// NewTorus builds a cols x rows grid whose edges wrap around
func NewTorus(cols, rows int) *Graph {
	return buildGrid(cols, rows, true)
}

func buildGrid(cols, rows int, wrap bool) *Graph {
	g := NewGraph()
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			id := GridID(cols, col, row)
			g.AddSector(id)
			if col+1 < cols {
				g.Connect(id, Right, GridID(cols, col+1, row))
			} else if wrap && cols > 1 {
				g.Connect(id, Right, GridID(cols, 0, row))
			}
			if row+1 < rows {
				g.Connect(id, Down, GridID(cols, col, row+1))
			} else if wrap && rows > 1 {
				g.Connect(id, Down, GridID(cols, col, 0))
			}
		}
	}
	return g
}
