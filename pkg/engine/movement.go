// pkg/engine/movement.go
package engine

import (
	"math"
	"slices"

	"github.com/opd-ai/go-starsector/pkg/content"
	"github.com/opd-ai/go-starsector/pkg/entity"
	"github.com/opd-ai/go-starsector/pkg/physics"
)

// applyInputs updates heading, speed and the primary fire flag
func (r *Resolver) applyInputs() {
	ids := make([]entity.ID, 0, len(r.in.Controls))
	for id := range r.in.Controls {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		p, ok := r.ws.Players[id]
		if !ok || p.Docked() {
			continue
		}
		def, ok := r.ship(p)
		if !ok || def.IsStation() {
			continue
		}
		c := r.in.Controls[id]

		if c.Angle != nil {
			if math.IsNaN(*c.Angle) || math.IsInf(*c.Angle, 0) {
				r.e.Logger.Warn(r.ctx, "dropping non-finite angle input", "player", id)
			} else {
				p.Heading = physics.NormalizeAngle(*c.Angle)
			}
		} else {
			if c.Left {
				p.Heading = physics.NormalizeAngle(p.Heading - def.TurnRate)
			}
			if c.Right {
				p.Heading = physics.NormalizeAngle(p.Heading + def.TurnRate)
			}
		}
		if c.Up {
			p.Speed += def.SpeedStep
		}
		if c.Down {
			p.Speed -= def.SpeedStep
		}
		p.Speed = math.Max(def.MinSpeed, math.Min(def.MaxSpeed, p.Speed))

		p.ToFirePrimary = c.Primary && p.FramesSinceShot >= def.PrimaryReload
	}
}

// simulatePlayers integrates motion and runs every weapon of every undocked player
func (r *Resolver) simulatePlayers() {
	for _, id := range r.ws.SortedPlayerIDs() {
		p, ok := r.ws.Players[id]
		if !ok || p.Docked() {
			continue
		}
		def, ok := r.ship(p)
		if !ok {
			continue
		}
		if def.IsStation() {
			r.simulateStation(p, def)
			continue
		}

		r.integrate(p)
		if p.Warping != nil {
			p.Warping.Progress++
			p.ToFirePrimary = false
			continue
		}
		if p.ToFirePrimary {
			r.firePrimary(p, def)
		}
		r.runSlots(p, def)
	}
}

func (r *Resolver) integrate(p *entity.Player) {
	p.Position = p.Position.
		Add(physics.FromAngle(p.Heading, p.Speed)).
		Add(physics.FromAngle(p.Heading+math.Pi/2, p.Side)).
		Add(p.Impulse)
	p.Impulse = p.Impulse.Scale(r.e.Options.ImpulseDecay)
	if p.Impulse.LengthSquared() < 1e-4 {
		p.Impulse = physics.Vector2D{}
	}
}

// firePrimary spawns one projectile. Not enough energy cancels the shot silently.
func (r *Resolver) firePrimary(p *entity.Player, def content.ShipDef) {
	p.ToFirePrimary = false
	if p.Energy < def.PrimaryEnergy {
		return
	}
	p.Energy -= def.PrimaryEnergy
	p.FramesSinceShot = 0
	r.spawnBallistic(p.ID, p.Team, p.Position, p.Heading, def.PrimarySpeed, def.PrimaryDamage, def.PrimaryRadius, def.PrimaryLife)
}

func (r *Resolver) spawnBallistic(parent entity.ID, team int, pos physics.Vector2D, heading, speed, damage, radius float64, life int) {
	r.ws.AddProjectile(&entity.Ballistic{
		ID:         r.ws.NextID(),
		Parent:     parent,
		Team:       team,
		Position:   pos,
		Heading:    heading,
		Speed:      speed,
		Damage:     damage,
		Radius:     radius,
		FramesLeft: life,
	})
	r.sum.Spawned++
}

// simulateStation spins the station and lets each ready hardpoint fire at
// the nearest visible enemy in range.
func (r *Resolver) simulateStation(p *entity.Player, def content.ShipDef) {
	p.Heading = physics.NormalizeAngle(p.Heading + r.e.Options.StationSpin)
	if len(p.Hardpoints) != len(def.Hardpoints) {
		p.FitSlots(def)
	}
	for i, hp := range def.Hardpoints {
		if p.Hardpoints[i] < hp.Reload {
			continue
		}
		origin := p.Position.Add(physics.Vector2D{X: hp.OffsetX, Y: hp.OffsetY}.Rotate(p.Heading))
		target := r.nearestVisibleEnemy(origin, p.Team, hp.Range)
		if target == nil {
			continue
		}
		heading := physics.HeadingTo(origin, target.Position)
		r.spawnBallistic(p.ID, p.Team, origin, heading, hp.Speed, hp.Damage, hp.Radius, hp.Life)
		p.Hardpoints[i] = 0
	}
}

// nearestVisibleEnemy finds the closest undocked, uncloaked player of another
// team within reach. Ties go to the lower id.
func (r *Resolver) nearestVisibleEnemy(origin physics.Vector2D, team int, reach float64) *entity.Player {
	var best *entity.Player
	bestDist := reach * reach
	for _, id := range r.ws.SortedPlayerIDs() {
		p := r.ws.Players[id]
		if p.Team == team || p.Docked() || p.Cloaked {
			continue
		}
		d := origin.DistanceSquared(p.Position)
		if d <= bestDist && (best == nil || d < bestDist) {
			best, bestDist = p, d
		}
	}
	return best
}

// regenerate restores energy and health of every surviving undocked player
func (r *Resolver) regenerate() {
	for _, id := range r.ws.SortedPlayerIDs() {
		p := r.ws.Players[id]
		if p.Docked() {
			continue
		}
		def, ok := r.e.Defs.Ship(p.DefIndex)
		if !ok {
			continue
		}
		p.Energy += def.EnergyRegen
		p.Health += def.HealthRegen
		p.ClampVitals(def)
	}
}

// bookkeeping advances every reload timer
func (r *Resolver) bookkeeping() {
	for _, id := range r.ws.SortedPlayerIDs() {
		p := r.ws.Players[id]
		p.FramesSinceShot++
		for i := range p.Slots {
			p.Slots[i].Cooldown++
		}
		for i := range p.Hardpoints {
			p.Hardpoints[i]++
		}
	}
}
