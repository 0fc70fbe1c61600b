// pkg/npc/states.go
package npc

import (
	"math"

	"github.com/opd-ai/go-starsector/pkg/content"
	"github.com/opd-ai/go-starsector/pkg/entity"
	"github.com/opd-ai/go-starsector/pkg/physics"
)

const (
	arriveDistance = 100
	closeDistance  = 250
	aimTolerance   = 0.3
	strafeAngle    = 0.6
	strafePeriod   = 90
	mineDistance   = 300
)

// pilot bundles what a state needs about the controlled ship
type pilot struct {
	c   *Controller
	env *Env
	p   *entity.Player
	def content.ShipDef
}

func (c *Controller) pilot(env *Env) (pilot, bool) {
	p, ok := env.World.Players[c.PlayerID]
	if !ok {
		return pilot{}, false
	}
	def, ok := env.Defs.Ship(p.DefIndex)
	if !ok {
		return pilot{}, false
	}
	return pilot{c: c, env: env, p: p, def: def}, true
}

func (pl pilot) target() (*entity.Player, bool) {
	if pl.c.Target == 0 {
		return nil, false
	}
	t, ok := pl.env.World.Players[pl.c.Target]
	return t, ok
}

// steer turns toward heading using the same left/right keys a player has
func (pl pilot) steer(heading float64) {
	diff := physics.AngleDiff(pl.p.Heading, heading)
	switch {
	case diff > pl.def.TurnRate/2:
		pl.c.Controls.Right = true
	case diff < -pl.def.TurnRate/2:
		pl.c.Controls.Left = true
	}
}

// throttle nudges speed toward want
func (pl pilot) throttle(want float64) {
	switch {
	case pl.p.Speed < want-pl.def.SpeedStep/2:
		pl.c.Controls.Up = true
	case pl.p.Speed > want+pl.def.SpeedStep/2:
		pl.c.Controls.Down = true
	}
}

func (pl pilot) primaryRange() float64 {
	return pl.def.PrimarySpeed * float64(pl.def.PrimaryLife)
}

func (pl pilot) facing(t *entity.Player) bool {
	return math.Abs(physics.AngleDiff(pl.p.Heading, physics.HeadingTo(pl.p.Position, t.Position))) < aimTolerance
}

// firePrimary holds the trigger when the target is lined up and in range
func (pl pilot) firePrimary(t *entity.Player) {
	if pl.facing(t) && pl.p.Position.Distance(t.Position) <= pl.primaryRange() {
		pl.c.Controls.Primary = true
	}
}

// secondaryRange is how close a target must be for an armament to be worth firing
func secondaryRange(defs *content.Tables, arm content.ArmamentDef) float64 {
	if arm.Range > 0 {
		return arm.Range
	}
	switch arm.Behavior {
	case content.BehaviorMissile:
		if m, ok := defs.Missile(arm.Missile); ok {
			return m.CruiseSpeed * float64(m.Life) / 2
		}
	case content.BehaviorMine:
		return mineDistance
	}
	return 0
}

// slot returns the first equipped slot of one of the given behaviors that
// is affordable and has ammo
func (pl pilot) slot(behaviors ...content.BehaviorKind) (int, content.ArmamentDef, bool) {
	for i, armIndex := range pl.p.Arms {
		if armIndex == entity.EmptySlot || i >= len(pl.p.Slots) {
			continue
		}
		arm, ok := pl.env.Defs.Armament(armIndex)
		if !ok {
			continue
		}
		for _, b := range behaviors {
			if arm.Behavior != b {
				continue
			}
			if pl.p.Energy < arm.EnergyCost || (arm.MaxAmmo > 0 && pl.p.Slots[i].Ammo <= 0) {
				continue
			}
			return i, arm, true
		}
	}
	return -1, content.ArmamentDef{}, false
}

// fireSecondary selects and holds the first offensive secondary in range
func (pl pilot) fireSecondary(t *entity.Player) {
	i, arm, ok := pl.slot(content.BehaviorLaser, content.BehaviorMissile)
	if !ok || pl.p.Position.Distance(t.Position) > secondaryRange(pl.env.Defs, arm) {
		return
	}
	pl.c.Secondary = i
	pl.c.Controls.Secondary = true
}

// dropMine leaves a mine when the target is close behind or beside
func (pl pilot) dropMine(t *entity.Player) {
	i, _, ok := pl.slot(content.BehaviorMine)
	if ok && pl.p.Position.Distance(t.Position) <= mineDistance {
		pl.c.Activations = append(pl.c.Activations, i)
	}
}

// randomPoint picks a point inside the central part of the sector
func randomPoint(env *Env) physics.Vector2D {
	return physics.Vector2D{
		X: (env.Dice.Float64()*2 - 1) * env.Bounds.Width * 0.4,
		Y: (env.Dice.Float64()*2 - 1) * env.Bounds.Height * 0.4,
	}
}

// strafeSide picks the initial strafing side
func strafeSide(env *Env) float64 {
	if env.Dice.Float64() < 0.5 {
		return -1
	}
	return 1
}

type idleState struct{}

func (idleState) Kind() Kind { return Idle }

func (idleState) OnEnter(*Controller, *Env) Memory { return Memory{} }

func (idleState) Process(c *Controller, env *Env) {
	if pl, ok := c.pilot(env); ok {
		pl.throttle(0)
	}
}

type wanderState struct{}

func (wanderState) Kind() Kind { return PassiveWander }

func (wanderState) OnEnter(_ *Controller, env *Env) Memory {
	return Memory{Waypoint: randomPoint(env)}
}

// Process cruises to the waypoint and flags completion on arrival
func (wanderState) Process(c *Controller, env *Env) {
	pl, ok := c.pilot(env)
	if !ok {
		return
	}
	if c.Memory.Completed || pl.p.Position.Distance(c.Memory.Waypoint) <= arriveDistance {
		c.Memory.Completed = true
		pl.throttle(0)
		return
	}
	pl.steer(physics.HeadingTo(pl.p.Position, c.Memory.Waypoint))
	pl.throttle(pl.def.MaxSpeed / 2)
}

type swarmState struct {
	strafing bool
}

func (s swarmState) Kind() Kind {
	if s.strafing {
		return StrafingSwarm
	}
	return SwarmCombat
}

func (s swarmState) OnEnter(_ *Controller, env *Env) Memory {
	if s.strafing {
		return Memory{Direction: strafeSide(env)}
	}
	return Memory{}
}

// Process closes on the target and fires everything that bears
func (s swarmState) Process(c *Controller, env *Env) {
	pl, ok := c.pilot(env)
	if !ok {
		return
	}
	t, ok := pl.target()
	if !ok {
		pl.throttle(0)
		return
	}
	c.Memory.Frames++
	toTarget := physics.HeadingTo(pl.p.Position, t.Position)
	dist := pl.p.Position.Distance(t.Position)

	heading := toTarget
	if s.strafing {
		if c.Memory.Frames%strafePeriod == 0 {
			c.Memory.Direction = -c.Memory.Direction
		}
		if dist < pl.primaryRange()/2 && c.Memory.Frames%strafePeriod > strafePeriod/3 {
			heading = toTarget + c.Memory.Direction*strafeAngle
		}
	}
	pl.steer(heading)
	if dist > pl.primaryRange()*0.6 {
		pl.throttle(pl.def.MaxSpeed)
	} else {
		pl.throttle(pl.def.MaxSpeed / 2)
	}

	pl.firePrimary(t)
	pl.fireSecondary(t)
	pl.dropMine(t)
}

type fleeState struct {
	strafing bool
}

func (s fleeState) Kind() Kind {
	if s.strafing {
		return StrafingRunAway
	}
	return RunAway
}

func (s fleeState) OnEnter(_ *Controller, env *Env) Memory {
	if s.strafing {
		return Memory{Direction: strafeSide(env)}
	}
	return Memory{}
}

// Process flies directly away from the target while still shooting what it can
func (s fleeState) Process(c *Controller, env *Env) {
	pl, ok := c.pilot(env)
	if !ok {
		return
	}
	t, ok := pl.target()
	if !ok {
		return
	}
	c.Memory.Frames++
	away := physics.HeadingTo(t.Position, pl.p.Position)
	if s.strafing {
		if c.Memory.Frames%(strafePeriod/2) == 0 {
			c.Memory.Direction = -c.Memory.Direction
		}
		away += c.Memory.Direction * strafeAngle
	}
	pl.steer(away)
	pl.throttle(pl.def.MaxSpeed)
	pl.firePrimary(t)
	pl.fireSecondary(t)
	pl.dropMine(t)
}

type maneuverState struct{}

func (maneuverState) Kind() Kind { return RandomManeuver }

// OnEnter rolls a duration and an initial heading
func (maneuverState) OnEnter(_ *Controller, env *Env) Memory {
	return Memory{
		Frames:    60 + int(env.Dice.Float64()*120),
		Direction: physics.NormalizeAngle(env.Dice.Float64() * 2 * math.Pi),
	}
}

// Process jinks at full speed until the duration runs out
func (maneuverState) Process(c *Controller, env *Env) {
	pl, ok := c.pilot(env)
	if !ok {
		return
	}
	if c.Memory.Frames <= 0 {
		c.Memory.Completed = true
		return
	}
	c.Memory.Frames--
	if c.Memory.Frames%30 == 0 {
		c.Memory.Direction = physics.NormalizeAngle(c.Memory.Direction + (env.Dice.Float64()-0.5)*math.Pi)
	}
	pl.steer(c.Memory.Direction)
	pl.throttle(pl.def.MaxSpeed)
	if t, ok := pl.target(); ok {
		pl.firePrimary(t)
	}
}
