// pkg/entity/ship.go
package entity

import (
	"github.com/opd-ai/go-starsector/pkg/content"
	"github.com/opd-ai/go-starsector/pkg/physics"
)

// EmptySlot marks an armament slot with nothing equipped
const EmptySlot = -1

// SlotData is the mutable state of one armament slot
type SlotData struct {
	Ammo   int  `json:"ammo" msgpack:"ammo"`
	Active bool `json:"active" msgpack:"active"`
	// Cooldown counts frames since the slot last fired
	Cooldown int `json:"cooldown" msgpack:"cooldown"`
}

// CargoEntry is an amount of one resource carried in the hold
type CargoEntry struct {
	Resource string  `json:"resource" msgpack:"resource"`
	Amount   float64 `json:"amount" msgpack:"amount"`
}

// WarpState tracks an in-progress long jump
type WarpState struct {
	Progress int `json:"progress" msgpack:"progress"`
	To       int `json:"to" msgpack:"to"`
}

// Player is a ship or station instance. It carries everything needed to
// resume simulation after a checkpoint reload or a peer transfer.
type Player struct {
	ID       ID     `json:"id" msgpack:"id"`
	Name     string `json:"name" msgpack:"name"`
	Team     int    `json:"team" msgpack:"team"`
	DefIndex int    `json:"definitionIndex" msgpack:"definitionIndex"`

	Position physics.Vector2D `json:"position" msgpack:"position"`
	Heading  float64          `json:"heading" msgpack:"heading"`
	Speed    float64          `json:"speed" msgpack:"speed"`
	Side     float64          `json:"side" msgpack:"side"`
	Impulse  physics.Vector2D `json:"impulse" msgpack:"impulse"`

	Health float64 `json:"health" msgpack:"health"`
	Energy float64 `json:"energy" msgpack:"energy"`

	Arms    []int        `json:"arms" msgpack:"arms"`
	Slots   []SlotData   `json:"slotData" msgpack:"slotData"`
	Cargo   []CargoEntry `json:"cargo" msgpack:"cargo"`
	Credits int          `json:"credits" msgpack:"credits"`

	DockedAt ID         `json:"docked,omitempty" msgpack:"docked"`
	Warping  *WarpState `json:"warping,omitempty" msgpack:"warping"`
	Cloaked  bool       `json:"cloaked" msgpack:"cloaked"`

	FramesSinceShot int   `json:"sinceLastShot" msgpack:"sinceLastShot"`
	ToFirePrimary   bool  `json:"toFirePrimary" msgpack:"toFirePrimary"`
	Hardpoints      []int `json:"hardpoints,omitempty" msgpack:"hardpoints"`

	IsNPC bool `json:"npc" msgpack:"npc"`
}

// NewPlayer creates a player at full health and energy for the given definition
func NewPlayer(id ID, name string, team, defIndex int, def content.ShipDef, position physics.Vector2D) *Player {
	p := &Player{
		ID:              id,
		Name:            name,
		Team:            team,
		DefIndex:        defIndex,
		Position:        position,
		Health:          def.MaxHealth,
		Energy:          def.MaxEnergy,
		FramesSinceShot: def.PrimaryReload,
	}
	p.FitSlots(def)
	return p
}

// Docked reports whether the player is docked at a station
func (p *Player) Docked() bool {
	return p.DockedAt != 0
}

// Collider returns the player's collision circle
func (p *Player) Collider(def content.ShipDef) physics.Circle {
	return physics.Circle{Center: p.Position, Radius: def.Radius}
}

// ClampVitals keeps health and energy within the definition limits
func (p *Player) ClampVitals(def content.ShipDef) {
	if p.Health > def.MaxHealth {
		p.Health = def.MaxHealth
	}
	if p.Energy > def.MaxEnergy {
		p.Energy = def.MaxEnergy
	}
	if p.Energy < 0 {
		p.Energy = 0
	}
}

// FitSlots resizes arms and slot data to the definition's slot count.
// Existing equipment in surviving slots is kept. Stations also get one
// reload timer per hardpoint.
func (p *Player) FitSlots(def content.ShipDef) {
	n := len(def.Slots)
	arms := make([]int, n)
	slots := make([]SlotData, n)
	for i := range arms {
		arms[i] = EmptySlot
		if i < len(p.Arms) {
			arms[i] = p.Arms[i]
		}
		if i < len(p.Slots) {
			slots[i] = p.Slots[i]
		}
	}
	p.Arms = arms
	p.Slots = slots

	if len(p.Hardpoints) != len(def.Hardpoints) {
		p.Hardpoints = make([]int, len(def.Hardpoints))
		for i, hp := range def.Hardpoints {
			p.Hardpoints[i] = hp.Reload
		}
	}
}

// Equip places an armament in slot i and resets the slot state
func (p *Player) Equip(i, armIndex int, arm content.ArmamentDef) {
	p.Arms[i] = armIndex
	p.Slots[i] = SlotData{Ammo: arm.MaxAmmo, Cooldown: arm.Cooldown}
}

// Stop zeroes all motion
func (p *Player) Stop() {
	p.Speed = 0
	p.Side = 0
	p.Impulse = physics.Vector2D{}
}

// CargoTotal returns the total amount held across all resources
func (p *Player) CargoTotal() float64 {
	total := 0.0
	for _, c := range p.Cargo {
		total += c.Amount
	}
	return total
}

// AddCargo stores up to amount of resource without exceeding capacity
// and returns what was actually stored.
func (p *Player) AddCargo(resource string, amount, capacity float64) float64 {
	room := capacity - p.CargoTotal()
	if room <= 0 || amount <= 0 {
		return 0
	}
	if amount > room {
		amount = room
	}
	for i := range p.Cargo {
		if p.Cargo[i].Resource == resource {
			p.Cargo[i].Amount += amount
			return amount
		}
	}
	p.Cargo = append(p.Cargo, CargoEntry{Resource: resource, Amount: amount})
	return amount
}

// TakeCargo removes up to amount from the hold across resources in order
// and returns the entries removed.
func (p *Player) TakeCargo(amount float64) []CargoEntry {
	var taken []CargoEntry
	kept := p.Cargo[:0]
	for _, c := range p.Cargo {
		if amount <= 0 {
			kept = append(kept, c)
			continue
		}
		n := c.Amount
		if n > amount {
			n = amount
		}
		amount -= n
		taken = append(taken, CargoEntry{Resource: c.Resource, Amount: n})
		if c.Amount-n > 0 {
			kept = append(kept, CargoEntry{Resource: c.Resource, Amount: c.Amount - n})
		}
	}
	p.Cargo = kept
	return taken
}

// Clone returns a deep copy of the player
func (p *Player) Clone() *Player {
	c := *p
	c.Arms = append([]int(nil), p.Arms...)
	c.Slots = append([]SlotData(nil), p.Slots...)
	c.Cargo = append([]CargoEntry(nil), p.Cargo...)
	c.Hardpoints = append([]int(nil), p.Hardpoints...)
	if p.Warping != nil {
		w := *p.Warping
		c.Warping = &w
	}
	return &c
}
