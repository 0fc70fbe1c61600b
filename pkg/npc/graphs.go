// pkg/npc/graphs.go
package npc

import (
	"github.com/opd-ai/go-starsector/pkg/content"
)

// Roll probabilities, checked once per evaluation
const (
	wanderChance   = 0.005
	maneuverChance = 0.01
	rejoinChance   = 0.005
	refleeChance   = 0.002
)

// HasTarget holds while the controller tracks an enemy
func HasTarget(_ *Env, c *Controller) bool {
	return c.Target != 0
}

// LostTarget holds once no enemy is tracked
func LostTarget(env *Env, c *Controller) bool {
	return !HasTarget(env, c)
}

// Completed holds when the active state flagged itself done
func Completed(_ *Env, c *Controller) bool {
	return c.Memory.Completed
}

// Chance holds with probability p on each check
func Chance(p float64) Trigger {
	return func(env *Env, _ *Controller) bool {
		return env.Dice.Float64() < p
	}
}

// Any holds when one of triggers holds, checked left to right
func Any(triggers ...Trigger) Trigger {
	return func(env *Env, c *Controller) bool {
		for _, t := range triggers {
			if t(env, c) {
				return true
			}
		}
		return false
	}
}

// All holds when every trigger holds, checked left to right
func All(triggers ...Trigger) Trigger {
	return func(env *Env, c *Controller) bool {
		for _, t := range triggers {
			if !t(env, c) {
				return false
			}
		}
		return true
	}
}

// VeryClose holds when the target is within ramming distance
func VeryClose(env *Env, c *Controller) bool {
	pl, ok := c.pilot(env)
	if !ok {
		return false
	}
	t, ok := pl.target()
	return ok && pl.p.Position.Distance(t.Position) < closeDistance
}

// Weak holds below a third of max health
func Weak(env *Env, c *Controller) bool {
	pl, ok := c.pilot(env)
	return ok && pl.p.Health < pl.def.MaxHealth/3
}

// Recovered holds above a third of max health
func Recovered(env *Env, c *Controller) bool {
	pl, ok := c.pilot(env)
	return ok && pl.p.Health > pl.def.MaxHealth/3
}

func buildGraph(swarm, flee Kind) *Graph {
	g := NewGraph(Idle).
		AddState(idleState{}).
		AddState(wanderState{}).
		AddState(swarmState{strafing: swarm == StrafingSwarm}).
		AddState(fleeState{strafing: flee == StrafingRunAway}).
		AddState(maneuverState{})

	g.AddTransition(Idle, swarm, HasTarget).
		AddTransition(Idle, PassiveWander, Chance(wanderChance))

	g.AddTransition(PassiveWander, swarm, HasTarget).
		AddTransition(PassiveWander, Idle, Completed)

	g.AddTransition(swarm, Idle, LostTarget).
		AddTransition(swarm, RandomManeuver, All(VeryClose, Chance(maneuverChance))).
		AddTransition(swarm, flee, Weak)

	g.AddTransition(flee, Idle, LostTarget).
		AddTransition(flee, swarm, Recovered).
		AddTransition(flee, flee, Chance(refleeChance))

	g.AddTransition(RandomManeuver, Idle, LostTarget).
		AddTransition(RandomManeuver, swarm, Any(Completed, Chance(rejoinChance)))
	return g
}

// BasicGraph is the plain swarm-and-flee behavior
func BasicGraph() *Graph {
	return buildGraph(SwarmCombat, RunAway)
}

// StrafingGraph swaps in the strafing combat and flight states
func StrafingGraph() *Graph {
	return buildGraph(StrafingSwarm, StrafingRunAway)
}

// AssassinGraph is the strafing graph with opportunistic secondary fire and
// cloak management on every evaluation.
func AssassinGraph() *Graph {
	return StrafingGraph().
		AddHook(OpportunisticFire(0.5)).
		AddHook(CloakControl(1500, 0.6, 0.2))
}

// OpportunisticFire fires the first offensive secondary at the target
// whenever it is in range and energy is above the given share of max.
func OpportunisticFire(minEnergy float64) Hook {
	return func(env *Env, c *Controller) {
		pl, ok := c.pilot(env)
		if !ok || pl.p.Energy < pl.def.MaxEnergy*minEnergy {
			return
		}
		if t, ok := pl.target(); ok {
			pl.fireSecondary(t)
		}
	}
}

// CloakControl raises the cloak when an enemy is within reach and energy is
// above raise, and drops it when energy falls below lower.
func CloakControl(reach, raise, lower float64) Hook {
	return func(env *Env, c *Controller) {
		pl, ok := c.pilot(env)
		if !ok {
			return
		}
		for i, armIndex := range pl.p.Arms {
			arm, ok := env.Defs.Armament(armIndex)
			if !ok || arm.Behavior != content.BehaviorCloak || i >= len(pl.p.Slots) {
				continue
			}
			active := pl.p.Slots[i].Active
			energy := pl.p.Energy / pl.def.MaxEnergy
			t, hasTarget := pl.target()
			near := hasTarget && pl.p.Position.Distance(t.Position) <= reach
			if (!active && near && energy > raise) || (active && energy < lower) {
				c.Activations = append(c.Activations, i)
			}
			return
		}
	}
}
