// pkg/engine/combat.go
package engine

import (
	"math"

	"github.com/opd-ai/go-starsector/pkg/content"
	"github.com/opd-ai/go-starsector/pkg/entity"
	"github.com/opd-ai/go-starsector/pkg/event"
	"github.com/opd-ai/go-starsector/pkg/physics"
)

// resolveProjectiles advances every projectile, then hit-tests it, then
// counts down its lifetime. A hit on the last frame still counts.
func (r *Resolver) resolveProjectiles() {
	for _, parent := range r.ws.SortedProjectileParents() {
		list := r.ws.Projectiles[parent]
		kept := list[:0]
		for _, b := range list {
			b.Advance()
			if r.projectileHit(b) {
				r.sum.Hits++
				r.sink.Removed(entity.Removal{Kind: entity.KindProjectile, ID: b.ID})
				continue
			}
			if b.FramesLeft <= 0 {
				r.sum.Expired++
				r.sink.Removed(entity.Removal{Kind: entity.KindProjectile, ID: b.ID})
				continue
			}
			b.FramesLeft--
			kept = append(kept, b)
		}
		clear(list[len(kept):])
		if len(kept) == 0 {
			delete(r.ws.Projectiles, parent)
		} else {
			r.ws.Projectiles[parent] = kept
		}
	}
}

func (r *Resolver) projectileHit(b *entity.Ballistic) bool {
	for _, p := range r.candidates(b.Position, 0, b.Team) {
		def, ok := r.e.Defs.Ship(p.DefIndex)
		if !ok {
			continue
		}
		if p.Collider(def).Contains(b.Position) {
			r.applyDamage(p.ID, b.Damage, b.Parent, b.ID)
			return true
		}
	}
	return false
}

// resolveMissiles accelerates, steers and hit-tests every missile
func (r *Resolver) resolveMissiles() {
	for _, id := range r.ws.SortedMissileIDs() {
		m := r.ws.Missiles[id]
		def, ok := r.e.Defs.Missile(m.DefIndex)
		if !ok {
			r.e.Logger.Warn(r.ctx, "missile references unknown definition", "missile", m.ID, "definition", m.DefIndex)
			r.removeMissile(m, -1)
			continue
		}

		if m.Speed < def.CruiseSpeed {
			m.Speed += def.Acceleration
			if m.Speed > def.CruiseSpeed {
				m.Speed = def.CruiseSpeed
			}
		}
		if m.Target != 0 {
			if target, ok := r.ws.Players[m.Target]; ok {
				if !target.Docked() {
					desired := physics.HeadingTo(m.Position, target.Position)
					m.Heading = physics.TurnToward(m.Heading, desired, def.TurnRate)
				}
			} else {
				m.Target = 0
			}
		}
		m.Advance()

		if r.missileHit(m) {
			r.sum.Hits++
			r.removeMissile(m, def.HitEffect)
			continue
		}
		if m.FramesLeft <= 0 {
			r.sum.Expired++
			r.removeMissile(m, def.ExpireEffect)
			continue
		}
		m.FramesLeft--
	}
}

func (r *Resolver) missileHit(m *entity.Missile) bool {
	for _, p := range r.candidates(m.Position, m.Radius, m.Team) {
		def, ok := r.e.Defs.Ship(p.DefIndex)
		if !ok {
			continue
		}
		if p.Collider(def).Collides(m.Collider()) {
			r.applyDamage(p.ID, m.Damage, m.Parent, m.ID)
			return true
		}
	}
	return false
}

func (r *Resolver) removeMissile(m *entity.Missile, effect int) {
	delete(r.ws.Missiles, m.ID)
	if effect >= 0 {
		r.sink.Effect(entity.EffectTrigger{EffectIndex: effect, From: entity.AbsoluteAnchor(m.Position, m.Heading)})
	}
	r.sink.Removed(entity.Removal{Kind: entity.KindMissile, ID: m.ID})
}

// resolveMines detonates mines with an enemy inside their trigger radius
func (r *Resolver) resolveMines() {
	for _, id := range r.ws.SortedMineIDs() {
		m := r.ws.Mines[id]
		trigger := physics.Circle{Center: m.Position, Radius: m.TriggerRadius}
		var victim *entity.Player
		for _, p := range r.candidates(m.Position, m.TriggerRadius, m.Team) {
			def, ok := r.e.Defs.Ship(p.DefIndex)
			if ok && trigger.Collides(p.Collider(def)) {
				victim = p
				break
			}
		}

		if victim != nil {
			r.sum.Hits++
			effect := content.EffectMineBlast
			if def, ok := r.e.Defs.Mine(m.DefIndex); ok {
				effect = def.Effect
			}
			delete(r.ws.Mines, m.ID)
			r.sink.Effect(entity.EffectTrigger{EffectIndex: effect, From: entity.AbsoluteAnchor(m.Position, 0)})
			r.sink.Removed(entity.Removal{Kind: entity.KindMine, ID: m.ID})
			r.applyDamage(victim.ID, m.Damage, m.Parent, m.ID)
			continue
		}
		if m.FramesLeft <= 0 {
			r.sum.Expired++
			delete(r.ws.Mines, m.ID)
			r.sink.Removed(entity.Removal{Kind: entity.KindMine, ID: m.ID})
			continue
		}
		m.FramesLeft--
	}
}

// resolveCollectables hands pickups to the first overlapping ship
func (r *Resolver) resolveCollectables() {
	for _, id := range r.ws.SortedCollectableIDs() {
		c := r.ws.Collectables[id]
		area := physics.Circle{Center: c.Position, Radius: c.Radius}
		for _, raw := range r.e.index.Query(physics.Around(c.Position, c.Radius+r.maxRadius)) {
			p, ok := r.ws.Players[entity.ID(raw)]
			if !ok || p.Docked() {
				continue
			}
			def, ok := r.e.Defs.Ship(p.DefIndex)
			if !ok || def.IsStation() || !area.Collides(p.Collider(def)) {
				continue
			}
			r.pickUp(p, def, c)
			break
		}
		if _, ok := r.ws.Collectables[id]; !ok {
			continue
		}
		if c.FramesLeft <= 0 {
			r.sum.Expired++
			delete(r.ws.Collectables, id)
			r.sink.Removed(entity.Removal{Kind: entity.KindCollectable, ID: id})
			continue
		}
		c.FramesLeft--
	}
}

func (r *Resolver) pickUp(p *entity.Player, def content.ShipDef, c *entity.Collectable) {
	p.Credits += c.Credits
	c.Credits = 0
	left := c.Cargo[:0]
	for _, entry := range c.Cargo {
		stored := p.AddCargo(entry.Resource, entry.Amount, def.CargoCapacity)
		if rest := entry.Amount - stored; rest > 0 {
			left = append(left, entity.CargoEntry{Resource: entry.Resource, Amount: rest})
		}
	}
	c.Cargo = left
	if len(c.Cargo) > 0 {
		return
	}
	delete(r.ws.Collectables, c.ID)
	r.sink.Effect(entity.EffectTrigger{EffectIndex: content.EffectPickup, From: entity.PlayerAnchor(p.ID)})
	r.sink.Removed(entity.Removal{Kind: entity.KindCollectable, ID: c.ID})
}

// applyDamage hurts a player and resolves its death. A target that is
// already gone makes this a no-op, so simultaneous lethal hits only ever
// kill once. It reports whether the hit was lethal.
func (r *Resolver) applyDamage(target entity.ID, amount float64, killer, source entity.ID) bool {
	p, ok := r.ws.Players[target]
	if !ok {
		return false
	}
	p.Health -= amount
	r.e.Bus.Publish(event.NewCollisionEvent(r.ws, uint64(target), uint64(source)))
	if p.Health > 0 {
		return false
	}
	r.kill(p, killer)
	return true
}

func (r *Resolver) kill(p *entity.Player, killer entity.ID) {
	r.ws.RemovePlayer(p.ID)
	r.sink.Effect(entity.EffectTrigger{
		EffectIndex: content.EffectExplosion,
		From:        entity.AbsoluteAnchor(p.Position, p.Heading),
	})
	r.sink.Removed(entity.Removal{Kind: entity.KindPlayer, ID: p.ID})
	r.dropWreck(p)
	r.sum.Deaths = append(r.sum.Deaths, p.ID)
	r.sink.PlayerDied(p, killer)
	r.e.Bus.Publish(event.NewDeathEvent(r.ws, uint64(p.ID), uint64(killer), r.ws.Sector, p.IsNPC))
}

// dropWreck leaves a share of the dead player's cargo and credits behind
func (r *Resolver) dropWreck(p *entity.Player) {
	share := r.e.Options.WreckShare
	credits := int(float64(p.Credits) * share)
	cargo := p.TakeCargo(p.CargoTotal() * share)
	if credits <= 0 && len(cargo) == 0 {
		return
	}
	p.Credits -= credits
	c := &entity.Collectable{
		ID:         r.ws.NextID(),
		Position:   p.Position,
		Heading:    r.ws.Rand.Float64() * 2 * math.Pi,
		Cargo:      cargo,
		Credits:    credits,
		Radius:     r.e.Options.WreckRadius,
		FramesLeft: r.e.Options.WreckFrames,
	}
	r.ws.Collectables[c.ID] = c
	r.sum.Spawned++
}
