// pkg/physics/heading.go
package physics

import "math"

// NormalizeAngle maps an angle into (-Pi, Pi].
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

// HeadingTo returns the heading that points from one position at another.
func HeadingTo(from, to Vector2D) float64 {
	return to.Sub(from).Angle()
}

// AngleDiff returns the signed shortest rotation that turns from into to.
func AngleDiff(from, to float64) float64 {
	return NormalizeAngle(to - from)
}

// TurnToward rotates current toward desired by at most maxStep radians.
func TurnToward(current, desired, maxStep float64) float64 {
	diff := AngleDiff(current, desired)
	if math.Abs(diff) <= maxStep {
		return NormalizeAngle(desired)
	}
	if diff > 0 {
		return NormalizeAngle(current + maxStep)
	}
	return NormalizeAngle(current - maxStep)
}

// ReflectX mirrors a heading across the vertical axis (horizontal bounce).
func ReflectX(heading float64) float64 {
	return NormalizeAngle(math.Pi - heading)
}

// ReflectY mirrors a heading across the horizontal axis (vertical bounce).
func ReflectY(heading float64) float64 {
	return NormalizeAngle(-heading)
}
