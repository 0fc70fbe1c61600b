// pkg/entity/weapon.go
package entity

import (
	"github.com/opd-ai/go-starsector/pkg/physics"
)

// Ballistic is a primary weapon projectile. Projectiles are grouped by
// parent id in the world state.
type Ballistic struct {
	ID         ID               `json:"id" msgpack:"id"`
	Parent     ID               `json:"parent" msgpack:"parent"`
	Team       int              `json:"team" msgpack:"team"`
	Position   physics.Vector2D `json:"position" msgpack:"position"`
	Heading    float64          `json:"heading" msgpack:"heading"`
	Speed      float64          `json:"speed" msgpack:"speed"`
	Damage     float64          `json:"damage" msgpack:"damage"`
	Radius     float64          `json:"radius" msgpack:"radius"`
	FramesLeft int              `json:"frameTillExpire" msgpack:"frameTillExpire"`
}

// Advance moves the projectile one frame along its heading
func (b *Ballistic) Advance() {
	b.Position = b.Position.Add(physics.FromAngle(b.Heading, b.Speed))
}

// Missile is a secondary projectile that accelerates toward its cruise
// speed and may steer toward a guidance target.
type Missile struct {
	ID         ID               `json:"id" msgpack:"id"`
	Parent     ID               `json:"parent" msgpack:"parent"`
	Team       int              `json:"team" msgpack:"team"`
	Position   physics.Vector2D `json:"position" msgpack:"position"`
	Heading    float64          `json:"heading" msgpack:"heading"`
	Speed      float64          `json:"speed" msgpack:"speed"`
	Damage     float64          `json:"damage" msgpack:"damage"`
	Radius     float64          `json:"radius" msgpack:"radius"`
	DefIndex   int              `json:"definitionIndex" msgpack:"definitionIndex"`
	FramesLeft int              `json:"frameTillExpire" msgpack:"frameTillExpire"`
	Target     ID               `json:"target,omitempty" msgpack:"target"`
}

// Advance moves the missile one frame along its heading
func (m *Missile) Advance() {
	m.Position = m.Position.Add(physics.FromAngle(m.Heading, m.Speed))
}

// Collider returns the missile's collision circle
func (m *Missile) Collider() physics.Circle {
	return physics.Circle{Center: m.Position, Radius: m.Radius}
}

// Mine is a stationary proximity charge. It only triggers on other teams.
type Mine struct {
	ID            ID               `json:"id" msgpack:"id"`
	Parent        ID               `json:"parent" msgpack:"parent"`
	Team          int              `json:"team" msgpack:"team"`
	Position      physics.Vector2D `json:"position" msgpack:"position"`
	Damage        float64          `json:"damage" msgpack:"damage"`
	TriggerRadius float64          `json:"radius" msgpack:"radius"`
	DefIndex      int              `json:"definitionIndex" msgpack:"definitionIndex"`
	FramesLeft    int              `json:"frameTillExpire" msgpack:"frameTillExpire"`
}
