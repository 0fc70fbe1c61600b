// pkg/physics/heading_test.go
package physics

import (
	"math"
	"testing"
)

func TestNormalizeAngle(t *testing.T) {
	tests := []struct {
		in, expected float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi, math.Pi},
		{2*math.Pi + 0.5, 0.5},
		{-2*math.Pi - 0.5, -0.5},
	}
	for _, tt := range tests {
		if got := NormalizeAngle(tt.in); !almostEqual(got, tt.expected) {
			t.Errorf("NormalizeAngle(%v) = %v, expected %v", tt.in, got, tt.expected)
		}
	}
}

func TestTurnToward(t *testing.T) {
	t.Run("clamped_step", func(t *testing.T) {
		got := TurnToward(0, math.Pi/2, 0.1)
		if !almostEqual(got, 0.1) {
			t.Errorf("TurnToward() = %v, expected 0.1", got)
		}
	})

	t.Run("shortest_way_round", func(t *testing.T) {
		got := TurnToward(math.Pi-0.05, -math.Pi+0.05, 0.2)
		if !almostEqual(got, -math.Pi+0.05) {
			t.Errorf("TurnToward() = %v, expected %v", got, -math.Pi+0.05)
		}
	})
}

func TestHeadingTo(t *testing.T) {
	got := HeadingTo(Vector2D{X: 1, Y: 1}, Vector2D{X: 1, Y: 5})
	if !almostEqual(got, math.Pi/2) {
		t.Errorf("HeadingTo() = %v, expected Pi/2", got)
	}
}

func TestReflect(t *testing.T) {
	if got := ReflectX(0); !almostEqual(got, math.Pi) {
		t.Errorf("ReflectX(0) = %v, expected Pi", got)
	}
	if got := ReflectY(math.Pi / 4); !almostEqual(got, -math.Pi/4) {
		t.Errorf("ReflectY(Pi/4) = %v, expected -Pi/4", got)
	}
}
