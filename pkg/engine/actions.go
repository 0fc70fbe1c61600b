// pkg/engine/actions.go
package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/opd-ai/go-starsector/pkg/content"
	"github.com/opd-ai/go-starsector/pkg/entity"
	"github.com/opd-ai/go-starsector/pkg/physics"
	"github.com/opd-ai/go-starsector/pkg/world"
)

// Errors returned by the docking actions. Callers log them and drop the action.
var (
	ErrUnknownPlayer       = errors.New("unknown player")
	ErrUnknownStation      = errors.New("unknown station")
	ErrNotStation          = errors.New("target is not a station")
	ErrOutOfRange          = errors.New("station out of range")
	ErrWrongTeam           = errors.New("station belongs to another team")
	ErrNotDocked           = errors.New("player is not docked")
	ErrAlreadyDocked       = errors.New("player is already docked")
	ErrInvalidSlot         = errors.New("invalid slot index")
	ErrUnknownArmament     = errors.New("unknown armament")
	ErrSlotMismatch        = errors.New("armament does not fit slot")
	ErrInsufficientCredits = errors.New("insufficient credits")
)

func (e *Engine) player(ws *world.State, pid entity.ID) (*entity.Player, content.ShipDef, error) {
	p, ok := ws.Players[pid]
	if !ok {
		return nil, content.ShipDef{}, fmt.Errorf("%w: %d", ErrUnknownPlayer, pid)
	}
	def, ok := e.Defs.Ship(p.DefIndex)
	if !ok {
		return nil, content.ShipDef{}, fmt.Errorf("%w: player %d has definition %d", ErrUnknownPlayer, pid, p.DefIndex)
	}
	return p, def, nil
}

func (e *Engine) docked(ws *world.State, pid entity.ID) (*entity.Player, content.ShipDef, error) {
	p, def, err := e.player(ws, pid)
	if err != nil {
		return nil, def, err
	}
	if !p.Docked() {
		return nil, def, ErrNotDocked
	}
	return p, def, nil
}

// Dock attaches a ship to a friendly station within range and stops it
func (e *Engine) Dock(ws *world.State, pid, stationID entity.ID) error {
	p, _, err := e.player(ws, pid)
	if err != nil {
		return err
	}
	if p.Docked() {
		return ErrAlreadyDocked
	}
	station, ok := ws.Players[stationID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownStation, stationID)
	}
	sdef, ok := e.Defs.Ship(station.DefIndex)
	if !ok || !sdef.IsStation() {
		return ErrNotStation
	}
	if station.Team != p.Team {
		return ErrWrongTeam
	}
	if p.Position.Distance(station.Position) > e.Options.DockRange+sdef.Radius {
		return ErrOutOfRange
	}
	p.DockedAt = stationID
	p.Warping = nil
	p.Cloaked = false
	p.Stop()
	return nil
}

// Undock releases a docked ship next to its station. A ship whose station
// is gone is released where it is.
func (e *Engine) Undock(ws *world.State, pid entity.ID) error {
	p, _, err := e.docked(ws, pid)
	if err != nil {
		return err
	}
	if station, ok := ws.Players[p.DockedAt]; ok {
		offset := 0.0
		if sdef, ok := e.Defs.Ship(station.DefIndex); ok {
			offset = sdef.Radius
		}
		p.Position = station.Position.Add(physics.FromAngle(p.Heading, offset))
	}
	p.DockedAt = 0
	return nil
}

// Repair restores as much missing health as the player's credits pay for
// and returns the credits spent.
func (e *Engine) Repair(ws *world.State, pid entity.ID) (int, error) {
	p, def, err := e.docked(ws, pid)
	if err != nil {
		return 0, err
	}
	missing := def.MaxHealth - p.Health
	if missing <= 0 {
		return 0, nil
	}
	rate := e.Options.RepairCostPerHealth
	if rate <= 0 {
		p.Health = def.MaxHealth
		return 0, nil
	}
	cost := int(math.Ceil(missing * rate))
	if cost > p.Credits {
		if p.Credits <= 0 {
			return 0, ErrInsufficientCredits
		}
		cost = p.Credits
		missing = float64(cost) / rate
	}
	p.Credits -= cost
	p.Health = math.Min(def.MaxHealth, p.Health+missing)
	return cost, nil
}

// Equip buys an armament by name into a slot of a docked ship
func (e *Engine) Equip(ws *world.State, pid entity.ID, slot int, name string) error {
	p, def, err := e.docked(ws, pid)
	if err != nil {
		return err
	}
	if slot < 0 || slot >= len(def.Slots) {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	armIndex, ok := e.Defs.ArmamentByName(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownArmament, name)
	}
	arm, _ := e.Defs.Armament(armIndex)
	if !content.Fits(def.Slots[slot], arm) {
		return fmt.Errorf("%w: %q in %s slot", ErrSlotMismatch, name, def.Slots[slot])
	}
	if arm.Price > p.Credits {
		return ErrInsufficientCredits
	}
	if len(p.Arms) != len(def.Slots) {
		p.FitSlots(def)
	}
	p.Credits -= arm.Price
	p.Equip(slot, armIndex, arm)
	return nil
}

// SellCargo converts every priced resource in the hold into credits and
// returns the credits earned. Unpriced resources stay aboard.
func (e *Engine) SellCargo(ws *world.State, pid entity.ID) (int, error) {
	p, _, err := e.docked(ws, pid)
	if err != nil {
		return 0, err
	}
	earned := 0
	kept := p.Cargo[:0]
	for _, c := range p.Cargo {
		price, ok := e.Defs.Price(c.Resource)
		if !ok {
			kept = append(kept, c)
			continue
		}
		earned += int(math.Floor(c.Amount * float64(price)))
	}
	clear(p.Cargo[len(kept):])
	p.Cargo = kept
	p.Credits += earned
	return earned, nil
}

// SpawnAsteroid places a full asteroid of the given definition at a random
// point of the sector.
func (e *Engine) SpawnAsteroid(ws *world.State, defIndex int) *entity.Asteroid {
	def, ok := e.Defs.Asteroid(defIndex)
	if !ok {
		return nil
	}
	half := e.Options.SectorSize / 2
	a := &entity.Asteroid{
		ID: ws.NextID(),
		Position: physics.Vector2D{
			X: (ws.Rand.Float64()*2 - 1) * half,
			Y: (ws.Rand.Float64()*2 - 1) * half,
		},
		Heading:   ws.Rand.Float64() * 2 * math.Pi,
		Resources: def.MaxResources,
		DefIndex:  defIndex,
	}
	ws.Asteroids[a.ID] = a
	ws.AsteroidsDirty = true
	return a
}

// TopUpAsteroids spawns random asteroids until the sector holds count of
// them and returns how many were added.
func (e *Engine) TopUpAsteroids(ws *world.State, count int) int {
	if len(e.Defs.Asteroids) == 0 {
		return 0
	}
	added := 0
	for len(ws.Asteroids) < count {
		if e.SpawnAsteroid(ws, ws.Rand.IntN(len(e.Defs.Asteroids))) == nil {
			break
		}
		added++
	}
	return added
}
