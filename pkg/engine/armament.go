// pkg/engine/armament.go
package engine

import (
	"slices"

	"github.com/opd-ai/go-starsector/pkg/content"
	"github.com/opd-ai/go-starsector/pkg/entity"
	"github.com/opd-ai/go-starsector/pkg/event"
	"github.com/opd-ai/go-starsector/pkg/physics"
	"github.com/opd-ai/go-starsector/pkg/world"
)

// Use is one armament slot being driven for one frame
type Use struct {
	Player *entity.Player
	Ship   content.ShipDef
	Arm    content.ArmamentDef
	Slot   *entity.SlotData
	Target entity.Target
}

// ArmamentBehavior is implemented once per weapon family. Frame runs every
// tick for passive and toggle armaments; Activate runs when the slot is
// fired. Both must leave the player untouched when they cannot act.
type ArmamentBehavior interface {
	Frame(r *Resolver, u Use)
	Activate(r *Resolver, u Use)
}

// BehaviorFor returns the implementation of an armament family
func BehaviorFor(kind content.BehaviorKind) ArmamentBehavior {
	switch kind {
	case content.BehaviorShield:
		return shieldBehavior{}
	case content.BehaviorLaser:
		return laserBehavior{}
	case content.BehaviorMining:
		return miningBehavior{}
	case content.BehaviorMissile:
		return missileBehavior{}
	case content.BehaviorMine:
		return mineBehavior{}
	case content.BehaviorCloak:
		return cloakBehavior{}
	case content.BehaviorBooster:
		return boosterBehavior{}
	case content.BehaviorRepairer:
		return repairerBehavior{}
	}
	return nil
}

// runSlots drives every equipped slot of p
func (r *Resolver) runSlots(p *entity.Player, def content.ShipDef) {
	if len(p.Arms) != len(def.Slots) || len(p.Slots) != len(def.Slots) {
		p.FitSlots(def)
	}
	selected, hasSelection := r.in.Secondaries[p.ID]
	if hasSelection && (selected < 0 || selected >= len(p.Arms)) {
		r.e.Logger.Warn(r.ctx, "dropping out-of-range secondary selection", "player", p.ID, "slot", selected)
		hasSelection = false
	}
	held := r.in.Controls[p.ID].Secondary
	pending := r.in.Activations[p.ID]
	for _, i := range pending {
		if i < 0 || i >= len(p.Arms) {
			r.e.Logger.Warn(r.ctx, "dropping out-of-range secondary activation", "player", p.ID, "slot", i)
		}
	}
	target := r.in.Targets[p.ID]
	if !target.IsZero() && !r.ws.ResolveTarget(target) {
		r.e.Logger.Debug(r.ctx, "ignoring stale target", "player", p.ID, "target", target.ID)
		target = entity.Target{}
	}

	for i, armIndex := range p.Arms {
		if armIndex == entity.EmptySlot {
			continue
		}
		arm, ok := r.e.Defs.Armament(armIndex)
		if !ok {
			r.e.Logger.Warn(r.ctx, "slot holds unknown armament", "player", p.ID, "slot", i, "armament", armIndex)
			continue
		}
		behavior := BehaviorFor(arm.Behavior)
		if behavior == nil {
			continue
		}
		u := Use{Player: p, Ship: def, Arm: arm, Slot: &p.Slots[i], Target: target}
		if arm.Usage != content.UsageActive {
			behavior.Frame(r, u)
		}
		if arm.Usage == content.UsagePassive {
			continue
		}
		if (held && hasSelection && selected == i) || slices.Contains(pending, i) {
			behavior.Activate(r, u)
		}
		if _, alive := r.ws.Players[p.ID]; !alive {
			return
		}
	}
}

// ready reports whether the slot can fire now
func ready(u Use) bool {
	if u.Slot.Cooldown < u.Arm.Cooldown {
		return false
	}
	if u.Player.Energy < u.Arm.EnergyCost {
		return false
	}
	if u.Arm.MaxAmmo > 0 && u.Slot.Ammo <= 0 {
		return false
	}
	return true
}

// spend pays for one activation
func spend(u Use) {
	u.Player.Energy -= u.Arm.EnergyCost
	u.Slot.Cooldown = 0
	if u.Arm.MaxAmmo > 0 {
		u.Slot.Ammo--
	}
}

// targetPlayer resolves a player selection that is hostile and visible
func (r *Resolver) targetPlayer(u Use) (*entity.Player, bool) {
	if u.Target.Kind != entity.KindPlayer {
		return nil, false
	}
	t, ok := r.ws.Players[u.Target.ID]
	if !ok || t.ID == u.Player.ID || t.Team == u.Player.Team || t.Docked() || t.Cloaked {
		return nil, false
	}
	return t, true
}

type shieldBehavior struct{}

// Frame converts energy into hull while below max health
func (shieldBehavior) Frame(r *Resolver, u Use) {
	p := u.Player
	if p.Health >= u.Ship.MaxHealth || p.Energy < u.Arm.EnergyCost {
		return
	}
	p.Energy -= u.Arm.EnergyCost
	p.Health = min(u.Ship.MaxHealth, p.Health+u.Arm.Amount)
}

func (shieldBehavior) Activate(*Resolver, Use) {}

type laserBehavior struct{}

func (laserBehavior) Frame(*Resolver, Use) {}

// Activate hits the selected enemy instantly if it is within range
func (laserBehavior) Activate(r *Resolver, u Use) {
	t, ok := r.targetPlayer(u)
	if !ok || u.Player.Position.Distance(t.Position) > u.Arm.Range || !ready(u) {
		return
	}
	spend(u)
	to := entity.PlayerAnchor(t.ID)
	r.sink.Effect(entity.EffectTrigger{EffectIndex: u.Arm.Effect, From: entity.PlayerAnchor(u.Player.ID), To: &to})
	r.sum.Hits++
	r.applyDamage(t.ID, u.Arm.Damage, u.Player.ID, u.Player.ID)
}

type miningBehavior struct{}

func (miningBehavior) Frame(*Resolver, Use) {}

// Activate extracts resources from the selected asteroid into the hold
func (miningBehavior) Activate(r *Resolver, u Use) {
	if u.Target.Kind != entity.KindAsteroid {
		return
	}
	a, ok := r.ws.Asteroids[u.Target.ID]
	if !ok || a.Depleted || !ready(u) {
		return
	}
	def, ok := r.e.Defs.Asteroid(a.DefIndex)
	if !ok {
		r.e.Logger.Warn(r.ctx, "asteroid references unknown definition", "asteroid", a.ID, "definition", a.DefIndex)
		return
	}
	if u.Player.Position.Distance(a.Position) > u.Arm.Range+def.Radius {
		return
	}
	spend(u)
	mined := a.Extract(u.Arm.Amount)
	u.Player.AddCargo(def.Resource, mined, u.Ship.CargoCapacity)
	r.sum.Mined += mined
	to := entity.AsteroidAnchor(a.ID)
	r.sink.Effect(entity.EffectTrigger{EffectIndex: u.Arm.Effect, From: entity.PlayerAnchor(u.Player.ID), To: &to})
	if a.Depleted {
		r.depleteAsteroid(a)
	}
}

// depleteAsteroid removes an exhausted asteroid and schedules a replacement
func (r *Resolver) depleteAsteroid(a *entity.Asteroid) {
	delete(r.ws.Asteroids, a.ID)
	r.ws.AsteroidsDirty = true
	r.sink.Removed(entity.Removal{Kind: entity.KindAsteroid, ID: a.ID})
	r.e.Bus.Publish(&event.BaseEvent{EventType: event.AsteroidDepleted, Source: r.ws})

	defIndex := a.DefIndex
	r.ws.Schedule(r.frame+r.e.Options.AsteroidRespawnFrames, func(ws *world.State) {
		r.e.SpawnAsteroid(ws, defIndex)
	})
}

type missileBehavior struct{}

func (missileBehavior) Frame(*Resolver, Use) {}

// Activate launches a missile, guided at the selected player when there is one
func (missileBehavior) Activate(r *Resolver, u Use) {
	def, ok := r.e.Defs.Missile(u.Arm.Missile)
	if !ok || !ready(u) {
		return
	}
	spend(u)
	p := u.Player
	m := &entity.Missile{
		ID:         r.ws.NextID(),
		Parent:     p.ID,
		Team:       p.Team,
		Position:   p.Position,
		Heading:    p.Heading,
		Speed:      def.Speed,
		Damage:     def.Damage,
		Radius:     def.Radius,
		DefIndex:   u.Arm.Missile,
		FramesLeft: def.Life,
	}
	if t, ok := r.targetPlayer(u); ok {
		m.Target = t.ID
	}
	r.ws.Missiles[m.ID] = m
	r.sum.Spawned++
}

type mineBehavior struct{}

func (mineBehavior) Frame(*Resolver, Use) {}

// Activate drops a mine at the ship's position
func (mineBehavior) Activate(r *Resolver, u Use) {
	def, ok := r.e.Defs.Mine(u.Arm.Mine)
	if !ok || !ready(u) {
		return
	}
	spend(u)
	m := &entity.Mine{
		ID:            r.ws.NextID(),
		Parent:        u.Player.ID,
		Team:          u.Player.Team,
		Position:      u.Player.Position,
		Damage:        def.Damage,
		TriggerRadius: def.TriggerRadius,
		DefIndex:      u.Arm.Mine,
		FramesLeft:    def.Life,
	}
	r.ws.Mines[m.ID] = m
	r.sum.Spawned++
}

type cloakBehavior struct{}

// Frame drains energy while the cloak is up and drops it when energy runs out
func (cloakBehavior) Frame(_ *Resolver, u Use) {
	p := u.Player
	if !u.Slot.Active {
		p.Cloaked = false
		return
	}
	if p.Energy < u.Arm.EnergyCost {
		u.Slot.Active = false
		p.Cloaked = false
		return
	}
	p.Energy -= u.Arm.EnergyCost
	p.Cloaked = true
}

// Activate flips the cloak. Raising it needs enough energy for one frame.
func (cloakBehavior) Activate(_ *Resolver, u Use) {
	if u.Slot.Cooldown < u.Arm.Cooldown {
		return
	}
	if !u.Slot.Active && u.Player.Energy < u.Arm.EnergyCost {
		return
	}
	u.Slot.Active = !u.Slot.Active
	u.Slot.Cooldown = 0
	if !u.Slot.Active {
		u.Player.Cloaked = false
	}
}

type boosterBehavior struct{}

func (boosterBehavior) Frame(*Resolver, Use) {}

// Activate kicks the ship forward along its heading
func (boosterBehavior) Activate(r *Resolver, u Use) {
	if !ready(u) {
		return
	}
	spend(u)
	p := u.Player
	p.Impulse = p.Impulse.Add(physics.FromAngle(p.Heading, u.Arm.Amount))
}

type repairerBehavior struct{}

// Frame burns cargo to patch the hull while damaged
func (repairerBehavior) Frame(r *Resolver, u Use) {
	p := u.Player
	if p.Health >= u.Ship.MaxHealth || p.CargoTotal() <= 0 || p.Energy < u.Arm.EnergyCost {
		return
	}
	p.Energy -= u.Arm.EnergyCost
	used := 0.0
	for _, c := range p.TakeCargo(u.Arm.Amount) {
		used += c.Amount
	}
	p.Health = min(u.Ship.MaxHealth, p.Health+used*r.e.Options.RepairPerCargo)
}

func (repairerBehavior) Activate(*Resolver, Use) {}
