// pkg/entity/asteroid.go
package entity

import (
	"github.com/opd-ai/go-starsector/pkg/physics"
)

// Asteroid is a minable rock. Resources never go below zero.
type Asteroid struct {
	ID        ID               `json:"id" msgpack:"id"`
	Position  physics.Vector2D `json:"position" msgpack:"position"`
	Heading   float64          `json:"heading" msgpack:"heading"`
	Resources float64          `json:"resources" msgpack:"resources"`
	DefIndex  int              `json:"definitionIndex" msgpack:"definitionIndex"`
	Depleted  bool             `json:"depleted,omitempty" msgpack:"depleted"`
}

// Extract removes up to amount of resources and returns what was extracted.
// Reaching zero flags the asteroid depleted.
func (a *Asteroid) Extract(amount float64) float64 {
	if a.Depleted || amount <= 0 {
		return 0
	}
	if amount > a.Resources {
		amount = a.Resources
	}
	a.Resources -= amount
	if a.Resources <= 0 {
		a.Resources = 0
		a.Depleted = true
	}
	return amount
}

// Collectable is a free-floating pickup, typically a wreck drop
type Collectable struct {
	ID         ID               `json:"id" msgpack:"id"`
	Position   physics.Vector2D `json:"position" msgpack:"position"`
	Heading    float64          `json:"heading" msgpack:"heading"`
	Cargo      []CargoEntry     `json:"cargo,omitempty" msgpack:"cargo"`
	Credits    int              `json:"credits" msgpack:"credits"`
	Radius     float64          `json:"radius" msgpack:"radius"`
	FramesLeft int              `json:"frameTillExpire" msgpack:"frameTillExpire"`
}
