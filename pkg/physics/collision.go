// pkg/physics/collision.go
package physics

import "sort"

// Circle represents a circular collision shape
type Circle struct {
	Center Vector2D
	Radius float64
}

// Collides checks if two circles are intersecting
func (c Circle) Collides(other Circle) bool {
	r := c.Radius + other.Radius
	return c.Center.DistanceSquared(other.Center) < r*r
}

// Contains reports whether a point lies strictly inside the circle
func (c Circle) Contains(point Vector2D) bool {
	return c.Center.DistanceSquared(point) < c.Radius*c.Radius
}

// Rect represents an axis-aligned rectangle centered on Center
type Rect struct {
	Center Vector2D
	Width  float64
	Height float64
}

// Contains reports whether point lies within the rectangle (min-inclusive, max-exclusive)
func (r Rect) Contains(point Vector2D) bool {
	return point.X >= r.Center.X-r.Width/2 &&
		point.X < r.Center.X+r.Width/2 &&
		point.Y >= r.Center.Y-r.Height/2 &&
		point.Y < r.Center.Y+r.Height/2
}

// Around returns the square that bounds a circle of the given radius
func Around(center Vector2D, radius float64) Rect {
	return Rect{Center: center, Width: radius * 2, Height: radius * 2}
}

func (r Rect) intersects(other Rect) bool {
	return !(other.Center.X-other.Width/2 > r.Center.X+r.Width/2 ||
		other.Center.X+other.Width/2 < r.Center.X-r.Width/2 ||
		other.Center.Y-other.Height/2 > r.Center.Y+r.Height/2 ||
		other.Center.Y+other.Height/2 < r.Center.Y-r.Height/2)
}

// QuadTree indexes entity ids by position for broad-phase hit tests.
// Points outside the root boundary are kept in an overflow list so that
// entities drifting past a sector edge are never missed.
type QuadTree struct {
	Boundary  Rect
	Capacity  int
	points    []Vector2D
	ids       []uint64
	overflow  []uint64
	divided   bool
	northWest *QuadTree
	northEast *QuadTree
	southWest *QuadTree
	southEast *QuadTree
}

// NewQuadTree creates a new quad tree with the given boundary and capacity
func NewQuadTree(boundary Rect, capacity int) *QuadTree {
	if capacity < 1 {
		capacity = 1
	}
	return &QuadTree{
		Boundary: boundary,
		Capacity: capacity,
		points:   make([]Vector2D, 0, capacity),
		ids:      make([]uint64, 0, capacity),
	}
}

// Insert adds id at point. It always succeeds at the root.
func (qt *QuadTree) Insert(point Vector2D, id uint64) {
	if !qt.insert(point, id) {
		qt.overflow = append(qt.overflow, id)
	}
}

func (qt *QuadTree) insert(point Vector2D, id uint64) bool {
	if !qt.Boundary.Contains(point) {
		return false
	}

	if len(qt.points) < qt.Capacity && !qt.divided {
		qt.points = append(qt.points, point)
		qt.ids = append(qt.ids, id)
		return true
	}

	if !qt.divided {
		qt.subdivide()
	}

	return qt.northWest.insert(point, id) ||
		qt.northEast.insert(point, id) ||
		qt.southWest.insert(point, id) ||
		qt.southEast.insert(point, id)
}

// subdivide splits the quadtree into four quadrants
func (qt *QuadTree) subdivide() {
	x := qt.Boundary.Center.X
	y := qt.Boundary.Center.Y
	w := qt.Boundary.Width / 2
	h := qt.Boundary.Height / 2

	qt.northWest = NewQuadTree(Rect{Center: Vector2D{X: x - w/2, Y: y + h/2}, Width: w, Height: h}, qt.Capacity)
	qt.northEast = NewQuadTree(Rect{Center: Vector2D{X: x + w/2, Y: y + h/2}, Width: w, Height: h}, qt.Capacity)
	qt.southWest = NewQuadTree(Rect{Center: Vector2D{X: x - w/2, Y: y - h/2}, Width: w, Height: h}, qt.Capacity)
	qt.southEast = NewQuadTree(Rect{Center: Vector2D{X: x + w/2, Y: y - h/2}, Width: w, Height: h}, qt.Capacity)
	qt.divided = true
}

// Query returns the ids whose points fall inside area, plus every overflow id,
// sorted ascending and without duplicates.
func (qt *QuadTree) Query(area Rect) []uint64 {
	found := qt.query(area, nil)
	found = append(found, qt.overflow...)
	sort.Slice(found, func(i, j int) bool { return found[i] < found[j] })
	out := found[:0]
	for i, id := range found {
		if i > 0 && found[i-1] == id {
			continue
		}
		out = append(out, id)
	}
	return out
}

func (qt *QuadTree) query(area Rect, found []uint64) []uint64 {
	if !qt.Boundary.intersects(area) {
		return found
	}
	for i, point := range qt.points {
		if area.Contains(point) {
			found = append(found, qt.ids[i])
		}
	}
	if !qt.divided {
		return found
	}
	found = qt.northWest.query(area, found)
	found = qt.northEast.query(area, found)
	found = qt.southWest.query(area, found)
	found = qt.southEast.query(area, found)
	return found
}

// Clear empties the tree while keeping its boundary
func (qt *QuadTree) Clear() {
	qt.points = qt.points[:0]
	qt.ids = qt.ids[:0]
	qt.overflow = qt.overflow[:0]
	qt.divided = false
	qt.northWest, qt.northEast, qt.southWest, qt.southEast = nil, nil, nil, nil
}
