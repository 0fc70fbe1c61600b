// Package npc drives computer-controlled ships with small finite state
// machines. Each controller owns its current state and that state's memory,
// and produces the same engine inputs a human pilot would send.
package npc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/opd-ai/go-starsector/pkg/content"
	"github.com/opd-ai/go-starsector/pkg/engine"
	"github.com/opd-ai/go-starsector/pkg/entity"
	"github.com/opd-ai/go-starsector/pkg/logging"
	"github.com/opd-ai/go-starsector/pkg/physics"
	"github.com/opd-ai/go-starsector/pkg/sector"
	"github.com/opd-ai/go-starsector/pkg/world"
)

// EffectiveInfinity is a scan range with no limit
const EffectiveInfinity = math.MaxFloat64

// DefaultScanRange is how far an ordinary NPC looks for enemies
const DefaultScanRange = 2500

// Kind names a behavior state
type Kind int

const (
	Idle Kind = iota
	PassiveWander
	SwarmCombat
	StrafingSwarm
	RunAway
	StrafingRunAway
	RandomManeuver
)

var kindNames = [...]string{"idle", "passive-wander", "swarm", "strafing-swarm", "run-away", "strafing-run-away", "random-maneuver"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Memory is the scratch data of the active state. It is replaced every time
// a state is entered, including re-entry into the same state.
type Memory struct {
	Waypoint  physics.Vector2D
	Completed bool
	Frames    int
	Direction float64
}

// Dice is the random source for behavior rolls
type Dice interface {
	Float64() float64
}

// Env is everything a controller may look at during one evaluation
type Env struct {
	World  *world.State
	Defs   *content.Tables
	Sector sector.ID
	Bounds sector.Bounds
	Dice   Dice
	Logger *logging.Logger
}

// State is one node of a behavior graph
type State interface {
	Kind() Kind
	OnEnter(c *Controller, env *Env) Memory
	Process(c *Controller, env *Env)
}

// Trigger decides whether a transition fires
type Trigger func(env *Env, c *Controller) bool

// Transition leaves the current state for To when Trigger holds
type Transition struct {
	To      Kind
	Trigger Trigger
}

// Hook runs on every evaluation whether or not a transition fires
type Hook func(env *Env, c *Controller)

// Graph is a set of states with ordered transitions
type Graph struct {
	states      map[Kind]State
	transitions map[Kind][]Transition
	hooks       []Hook
	initial     Kind
}

// NewGraph creates an empty graph starting in initial
func NewGraph(initial Kind) *Graph {
	return &Graph{
		states:      make(map[Kind]State),
		transitions: make(map[Kind][]Transition),
		initial:     initial,
	}
}

// AddState registers a state, replacing any previous state of the same kind
func (g *Graph) AddState(s State) *Graph {
	g.states[s.Kind()] = s
	return g
}

// AddTransition appends a transition out of from. Transitions are checked
// in the order they were added and the first one that holds wins.
func (g *Graph) AddTransition(from, to Kind, trigger Trigger) *Graph {
	g.transitions[from] = append(g.transitions[from], Transition{To: to, Trigger: trigger})
	return g
}

// AddHook appends a per-evaluation hook
func (g *Graph) AddHook(h Hook) *Graph {
	g.hooks = append(g.hooks, h)
	return g
}

// ErrUnknownState is returned when a graph has no state for its initial kind
var ErrUnknownState = errors.New("graph has no such state")

// Controller drives one NPC player
type Controller struct {
	PlayerID  entity.ID
	Graph     *Graph
	Current   Kind
	Memory    Memory
	Target    entity.ID
	ScanRange float64

	// Outputs of the last evaluation
	Controls    engine.Controls
	Secondary   int
	Activations []int
}

// ID implements world.NPC
func (c *Controller) ID() entity.ID { return c.PlayerID }

// New creates a controller for p, equips its deterministic loadout and
// enters the graph's initial state.
func New(p *entity.Player, graph *Graph, env *Env) (*Controller, error) {
	if _, ok := graph.states[graph.initial]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownState, graph.initial)
	}
	def, ok := env.Defs.Ship(p.DefIndex)
	if !ok {
		return nil, fmt.Errorf("unknown ship definition %d", p.DefIndex)
	}
	Loadout(p, def, env.Defs)
	c := &Controller{
		PlayerID:  p.ID,
		Graph:     graph,
		ScanRange: DefaultScanRange,
		Secondary: -1,
	}
	c.enter(graph.initial, env)
	return c, nil
}

// Loadout fills every slot with an NPC-eligible armament. The choice is a
// pure function of the player id and ship definition.
func Loadout(p *entity.Player, def content.ShipDef, defs *content.Tables) {
	rng := rand.New(rand.NewPCG(uint64(p.ID), uint64(p.DefIndex)))
	p.FitSlots(def)
	for i, slot := range def.Slots {
		var candidates []int
		for j, arm := range defs.Armaments {
			if arm.NPCEligible && content.Fits(slot, arm) {
				candidates = append(candidates, j)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		pick := candidates[rng.IntN(len(candidates))]
		arm, _ := defs.Armament(pick)
		p.Equip(i, pick, arm)
	}
}

// Spawn creates an NPC ship and registers it in the sector's side table
func Spawn(env *Env, id entity.ID, defIndex, team int, pos physics.Vector2D, graph *Graph) (*Controller, error) {
	def, ok := env.Defs.Ship(defIndex)
	if !ok {
		return nil, fmt.Errorf("unknown ship definition %d", defIndex)
	}
	p := entity.NewPlayer(id, fmt.Sprintf("%s %d", def.Name, id), team, defIndex, def, pos)
	p.IsNPC = true
	c, err := New(p, graph, env)
	if err != nil {
		return nil, err
	}
	env.World.AddNPC(p, c)
	return c, nil
}

func (c *Controller) enter(k Kind, env *Env) {
	c.Current = k
	c.Memory = Memory{}
	if s, ok := c.Graph.states[k]; ok {
		c.Memory = s.OnEnter(c, env)
	}
}

// Evaluate runs one decision step: target acquisition, the active state,
// the hooks and then the transitions.
func (c *Controller) Evaluate(env *Env) {
	c.Controls = engine.Controls{}
	c.Secondary = -1
	c.Activations = c.Activations[:0]

	p, ok := env.World.Players[c.PlayerID]
	if !ok {
		return
	}
	c.acquire(p, env.World)

	if s, ok := c.Graph.states[c.Current]; ok {
		s.Process(c, env)
	}
	for _, h := range c.Graph.hooks {
		h(env, c)
	}
	for _, t := range c.Graph.transitions[c.Current] {
		if t.Trigger(env, c) {
			c.enter(t.To, env)
			break
		}
	}
}

// acquire keeps the current target while it stays valid, otherwise picks
// the nearest visible enemy in scan range.
func (c *Controller) acquire(p *entity.Player, ws *world.State) {
	if c.Target != 0 {
		if t, ok := ws.Players[c.Target]; ok && c.visible(p, t) {
			return
		}
		c.Target = 0
	}
	best := math.Inf(1)
	for _, id := range ws.SortedPlayerIDs() {
		t := ws.Players[id]
		if !c.visible(p, t) {
			continue
		}
		if d := p.Position.DistanceSquared(t.Position); d < best {
			best = d
			c.Target = id
		}
	}
}

func (c *Controller) visible(p, t *entity.Player) bool {
	if t.ID == p.ID || t.Team == p.Team || t.Docked() || t.Cloaked {
		return false
	}
	if c.ScanRange >= EffectiveInfinity {
		return true
	}
	return p.Position.Distance(t.Position) <= c.ScanRange
}

// Drive evaluates every controller of ws in id order and returns the
// resulting inputs for the next tick.
func Drive(ws *world.State, base Env) engine.Inputs {
	env := &base
	env.World = ws
	env.Sector = sector.ID(ws.Sector)
	if env.Dice == nil {
		env.Dice = ws.Rand
	}
	in := engine.NewInputs()
	for _, id := range ws.SortedNPCIDs() {
		c, ok := ws.NPCs[id].(*Controller)
		if !ok {
			if env.Logger != nil {
				env.Logger.Warn(context.Background(), "side table holds a foreign controller", "player", id)
			}
			continue
		}
		c.Evaluate(env)
		in.Controls[id] = c.Controls
		if c.Target != 0 {
			in.Targets[id] = entity.Target{Kind: entity.KindPlayer, ID: c.Target}
		}
		if c.Secondary >= 0 {
			in.Secondaries[id] = c.Secondary
		}
		if len(c.Activations) > 0 {
			in.Activations[id] = append([]int(nil), c.Activations...)
		}
	}
	return in
}
