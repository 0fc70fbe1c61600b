// Package engine advances one sector by one fixed timestep: input application,
// movement, weapon fire, projectile/missile/mine resolution, damage, death,
// regeneration and reload bookkeeping. Iteration always follows ascending id
// order and every random draw comes from the sector's own stream, so identical
// inputs on identical states produce identical results.
package engine

import (
	"context"
	"slices"

	"github.com/opd-ai/go-starsector/pkg/content"
	"github.com/opd-ai/go-starsector/pkg/entity"
	"github.com/opd-ai/go-starsector/pkg/event"
	"github.com/opd-ai/go-starsector/pkg/logging"
	"github.com/opd-ai/go-starsector/pkg/physics"
	"github.com/opd-ai/go-starsector/pkg/world"
)

// Controls is the held-key state of one player
type Controls struct {
	Up        bool     `json:"up"`
	Down      bool     `json:"down"`
	Left      bool     `json:"left"`
	Right     bool     `json:"right"`
	Primary   bool     `json:"primary"`
	Secondary bool     `json:"secondary"`
	Angle     *float64 `json:"angle,omitempty" msgpack:"angle,omitempty"`
}

// Inputs is everything buffered for one tick, keyed by player id
type Inputs struct {
	Controls    map[entity.ID]Controls
	Targets     map[entity.ID]entity.Target
	Secondaries map[entity.ID]int
	Activations map[entity.ID][]int
}

// NewInputs returns an empty input set
func NewInputs() Inputs {
	return Inputs{
		Controls:    make(map[entity.ID]Controls),
		Targets:     make(map[entity.ID]entity.Target),
		Secondaries: make(map[entity.ID]int),
		Activations: make(map[entity.ID][]int),
	}
}

// Merge copies every entry of other into in, overwriting on conflict
func (in Inputs) Merge(other Inputs) {
	for id, c := range other.Controls {
		in.Controls[id] = c
	}
	for id, t := range other.Targets {
		in.Targets[id] = t
	}
	for id, s := range other.Secondaries {
		in.Secondaries[id] = s
	}
	for id, a := range other.Activations {
		in.Activations[id] = append(in.Activations[id], a...)
	}
}

// Sink receives everything a tick emits
type Sink interface {
	Effect(entity.EffectTrigger)
	Removed(entity.Removal)
	PlayerDied(p *entity.Player, killer entity.ID)
}

// Death pairs a destroyed player with whoever landed the final hit
type Death struct {
	Player *entity.Player
	Killer entity.ID
}

// Recorder is a Sink that keeps everything in memory
type Recorder struct {
	Effects  []entity.EffectTrigger
	Removals []entity.Removal
	Deaths   []Death
}

// Effect implements Sink
func (r *Recorder) Effect(e entity.EffectTrigger) { r.Effects = append(r.Effects, e) }

// Removed implements Sink
func (r *Recorder) Removed(rm entity.Removal) { r.Removals = append(r.Removals, rm) }

// PlayerDied implements Sink
func (r *Recorder) PlayerDied(p *entity.Player, killer entity.ID) {
	r.Deaths = append(r.Deaths, Death{Player: p, Killer: killer})
}

// Reset empties the recorder while keeping its buffers
func (r *Recorder) Reset() {
	r.Effects = r.Effects[:0]
	r.Removals = r.Removals[:0]
	r.Deaths = r.Deaths[:0]
}

// Summary counts what happened during one tick
type Summary struct {
	Frame   uint64
	Spawned int
	Hits    int
	Expired int
	Mined   float64
	Deaths  []entity.ID
}

// Options tunes engine behavior that is not part of the content tables
type Options struct {
	// SectorSize is the width and height of a sector centered on the origin
	SectorSize            float64
	StationSpin           float64
	ImpulseDecay          float64
	AsteroidRespawnFrames uint64
	WreckFrames           int
	WreckShare            float64
	WreckRadius           float64
	DockRange             float64
	RepairCostPerHealth   float64
	RepairPerCargo        float64
}

// DefaultOptions returns the standard tuning
func DefaultOptions() Options {
	return Options{
		SectorSize:            10000,
		StationSpin:           0.002,
		ImpulseDecay:          0.95,
		AsteroidRespawnFrames: 60 * 60,
		WreckFrames:           60 * 120,
		WreckShare:            0.5,
		WreckRadius:           15,
		DockRange:             200,
		RepairCostPerHealth:   1,
		RepairPerCargo:        20,
	}
}

// Engine resolves ticks for any number of sector states
type Engine struct {
	Defs    *content.Tables
	Logger  *logging.Logger
	Bus     *event.Bus
	Options Options

	index *physics.QuadTree
}

// New creates an engine. A nil logger or bus is replaced by a silent one.
func New(defs *content.Tables, logger *logging.Logger, bus *event.Bus) *Engine {
	if logger == nil {
		logger = logging.Discard()
	}
	if bus == nil {
		bus = event.NewEventBus()
	}
	return &Engine{
		Defs:    defs,
		Logger:  logger,
		Bus:     bus,
		Options: DefaultOptions(),
	}
}

// Resolver carries the state of one Tick call
type Resolver struct {
	e     *Engine
	ws    *world.State
	frame uint64
	in    Inputs
	sink  Sink
	sum   Summary
	ctx   context.Context

	maxRadius float64
}

// Tick advances ws by one frame
func (e *Engine) Tick(ws *world.State, frame uint64, in Inputs, sink Sink) Summary {
	if in.Controls == nil {
		in = NewInputs()
	}
	r := &Resolver{
		e:     e,
		ws:    ws,
		frame: frame,
		in:    in,
		sink:  sink,
		sum:   Summary{Frame: frame},
		ctx:   context.Background(),
	}

	ws.RunDue(frame)
	r.applyInputs()
	r.simulatePlayers()
	r.buildIndex()
	r.resolveProjectiles()
	r.resolveMissiles()
	r.resolveMines()
	r.resolveCollectables()
	r.regenerate()
	r.bookkeeping()

	slices.Sort(r.sum.Deaths)
	return r.sum
}

// ship looks up a player's definition, logging a consistency warning on failure
func (r *Resolver) ship(p *entity.Player) (content.ShipDef, bool) {
	def, ok := r.e.Defs.Ship(p.DefIndex)
	if !ok {
		r.e.Logger.Warn(r.ctx, "player references unknown ship definition",
			"player", p.ID, "definition", p.DefIndex, "sector", r.ws.Sector)
	}
	return def, ok
}

// buildIndex indexes every targetable player for broad-phase hit tests
func (r *Resolver) buildIndex() {
	size := r.e.Options.SectorSize
	if r.e.index == nil {
		r.e.index = physics.NewQuadTree(physics.Rect{Width: size, Height: size}, 8)
	} else {
		r.e.index.Clear()
	}
	r.maxRadius = 0
	for _, id := range r.ws.SortedPlayerIDs() {
		p := r.ws.Players[id]
		if p.Docked() {
			continue
		}
		def, ok := r.e.Defs.Ship(p.DefIndex)
		if !ok {
			continue
		}
		if def.Radius > r.maxRadius {
			r.maxRadius = def.Radius
		}
		r.e.index.Insert(p.Position, uint64(id))
	}
}

// candidates returns live, undocked enemies of team near pos in id order
func (r *Resolver) candidates(pos physics.Vector2D, reach float64, team int) []*entity.Player {
	var out []*entity.Player
	for _, raw := range r.e.index.Query(physics.Around(pos, reach+r.maxRadius)) {
		p, ok := r.ws.Players[entity.ID(raw)]
		if !ok || p.Docked() || p.Team == team {
			continue
		}
		out = append(out, p)
	}
	return out
}
