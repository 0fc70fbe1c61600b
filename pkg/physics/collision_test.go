// pkg/physics/collision_test.go
package physics

import (
	"reflect"
	"testing"
)

func TestCircle_Collides(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Circle
		expected bool
	}{
		{"touching", Circle{Center: Vector2D{}, Radius: 5}, Circle{Center: Vector2D{X: 10}, Radius: 5}, false},
		{"overlapping", Circle{Center: Vector2D{}, Radius: 5}, Circle{Center: Vector2D{X: 5}, Radius: 5}, true},
		{"apart", Circle{Center: Vector2D{}, Radius: 5}, Circle{Center: Vector2D{X: 15}, Radius: 5}, false},
		{"concentric", Circle{Center: Vector2D{}, Radius: 3}, Circle{Center: Vector2D{}, Radius: 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Collides(tt.b); got != tt.expected {
				t.Errorf("Collides() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestCircle_Contains(t *testing.T) {
	c := Circle{Center: Vector2D{X: 10, Y: 10}, Radius: 5}
	if !c.Contains(Vector2D{X: 12, Y: 12}) {
		t.Error("expected point inside circle")
	}
	if c.Contains(Vector2D{X: 15, Y: 10}) {
		t.Error("point on the edge must not count as inside")
	}
}

func TestRect_Contains(t *testing.T) {
	r := Rect{Center: Vector2D{}, Width: 10, Height: 10}
	tests := []struct {
		point    Vector2D
		expected bool
	}{
		{Vector2D{X: 0, Y: 0}, true},
		{Vector2D{X: -5, Y: -5}, true},
		{Vector2D{X: 5, Y: 0}, false},
		{Vector2D{X: 0, Y: 6}, false},
	}
	for _, tt := range tests {
		if got := r.Contains(tt.point); got != tt.expected {
			t.Errorf("Contains(%v) = %v, expected %v", tt.point, got, tt.expected)
		}
	}
}

func TestQuadTree_QueryIsSortedAndComplete(t *testing.T) {
	qt := NewQuadTree(Rect{Center: Vector2D{}, Width: 100, Height: 100}, 2)
	qt.Insert(Vector2D{X: 10, Y: 10}, 7)
	qt.Insert(Vector2D{X: 11, Y: 11}, 3)
	qt.Insert(Vector2D{X: 12, Y: 9}, 5)
	qt.Insert(Vector2D{X: -40, Y: -40}, 1)
	qt.Insert(Vector2D{X: 500, Y: 500}, 9) // outside the root, kept as overflow

	got := qt.Query(Around(Vector2D{X: 10, Y: 10}, 5))
	expected := []uint64{3, 5, 7, 9}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Query() = %v, expected %v", got, expected)
	}

	qt.Clear()
	if got := qt.Query(Around(Vector2D{}, 100)); len(got) != 0 {
		t.Errorf("Query() after Clear = %v, expected empty", got)
	}
}
