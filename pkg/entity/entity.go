// pkg/entity/entity.go
package entity

import (
	"encoding/json"
	"fmt"

	"github.com/opd-ai/go-starsector/pkg/physics"
)

// ID is a unique identifier for an entity
type ID uint64

// Kind names an entity table inside a world state
type Kind string

const (
	KindPlayer      Kind = "player"
	KindProjectile  Kind = "projectile"
	KindMissile     Kind = "missile"
	KindMine        Kind = "mine"
	KindCollectable Kind = "collectable"
	KindAsteroid    Kind = "asteroid"
)

// Removal tells clients that an entity left the world
type Removal struct {
	Kind Kind `json:"kind" msgpack:"kind"`
	ID   ID   `json:"id" msgpack:"id"`
}

// AnchorKind selects how an effect endpoint is resolved by the renderer
type AnchorKind string

const (
	AnchorAbsolute AnchorKind = "absolute"
	AnchorPlayer   AnchorKind = "player"
	AnchorAsteroid AnchorKind = "asteroid"
)

// Anchor is one endpoint of an effect. Player and asteroid anchors stay
// attached to the live entity; only absolute anchors carry coordinates.
type Anchor struct {
	Kind     AnchorKind
	Position physics.Vector2D
	Heading  float64
	ID       ID
}

// AbsoluteAnchor pins an effect to a fixed point
func AbsoluteAnchor(pos physics.Vector2D, heading float64) Anchor {
	return Anchor{Kind: AnchorAbsolute, Position: pos, Heading: heading}
}

// PlayerAnchor attaches an effect to a live player
func PlayerAnchor(id ID) Anchor {
	return Anchor{Kind: AnchorPlayer, ID: id}
}

// AsteroidAnchor attaches an effect to a live asteroid
func AsteroidAnchor(id ID) Anchor {
	return Anchor{Kind: AnchorAsteroid, ID: id}
}

type absoluteValue struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
}

type anchorWire struct {
	Kind  AnchorKind      `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the anchor as {kind, value}
func (a Anchor) MarshalJSON() ([]byte, error) {
	var value any
	switch a.Kind {
	case AnchorAbsolute:
		value = absoluteValue{X: a.Position.X, Y: a.Position.Y, Heading: a.Heading}
	case AnchorPlayer, AnchorAsteroid:
		value = a.ID
	default:
		return nil, fmt.Errorf("unknown anchor kind %q", a.Kind)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(anchorWire{Kind: a.Kind, Value: raw})
}

// UnmarshalJSON decodes the {kind, value} form
func (a *Anchor) UnmarshalJSON(data []byte) error {
	var wire anchorWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*a = Anchor{Kind: wire.Kind}
	switch wire.Kind {
	case AnchorAbsolute:
		var v absoluteValue
		if err := json.Unmarshal(wire.Value, &v); err != nil {
			return err
		}
		a.Position = physics.Vector2D{X: v.X, Y: v.Y}
		a.Heading = v.Heading
	case AnchorPlayer, AnchorAsteroid:
		return json.Unmarshal(wire.Value, &a.ID)
	default:
		return fmt.Errorf("unknown anchor kind %q", wire.Kind)
	}
	return nil
}

// EffectTrigger describes a transient visual resolved at draw time
type EffectTrigger struct {
	EffectIndex int     `json:"effectIndex"`
	From        Anchor  `json:"from"`
	To          *Anchor `json:"to,omitempty"`
}

// Target is a selection of another entity, encoded on the wire as [kind, id]
type Target struct {
	Kind Kind `msgpack:"kind"`
	ID   ID   `msgpack:"id"`
}

// IsZero reports whether nothing is selected
func (t Target) IsZero() bool {
	return t.ID == 0
}

// MarshalJSON encodes the target as a two-element array
func (t Target) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{t.Kind, t.ID})
}

// UnmarshalJSON decodes the [kind, id] form
func (t *Target) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("target must be [kind, id]: %w", err)
	}
	if err := json.Unmarshal(raw[0], &t.Kind); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &t.ID)
}
