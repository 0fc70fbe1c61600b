// pkg/event/event.go
package event

import (
	"sync"
)

// Type represents the type of event
type Type string

// Simulation event types
const (
	PlayerSpawned     Type = "player_spawned"
	PlayerDied        Type = "player_died"
	PlayerJoined      Type = "player_joined"
	PlayerLeft        Type = "player_left"
	EntityCollision   Type = "entity_collision"
	AsteroidDepleted  Type = "asteroid_depleted"
	SectorChanged     Type = "sector_changed"
	TransferCompleted Type = "transfer_completed"
	TransferFailed    Type = "transfer_failed"
	SectorPanicked    Type = "sector_panicked"
)

// Event is the base interface for all events
type Event interface {
	GetType() Type
	GetSource() interface{}
}

// BaseEvent provides common functionality for all events
type BaseEvent struct {
	EventType Type
	Source    interface{}
}

// GetType returns the event type
func (e *BaseEvent) GetType() Type {
	return e.EventType
}

// GetSource returns the event source
func (e *BaseEvent) GetSource() interface{} {
	return e.Source
}

// Handler is a function that handles events
type Handler func(Event)

type registration struct {
	id      uint64
	handler Handler
}

// Bus manages event subscriptions and dispatching
type Bus struct {
	handlers map[Type][]registration
	nextID   uint64
	mu       sync.RWMutex
}

// Subscription identifies one registered handler. Cancel removes it;
// cancelling twice is harmless.
type Subscription struct {
	ID     uint64
	Cancel func()
}

// NewEventBus creates a new event bus
func NewEventBus() *Bus {
	return &Bus{
		handlers: make(map[Type][]registration),
		nextID:   1,
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType Type, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[eventType] = append(b.handlers[eventType], registration{id: id, handler: handler})
	return &Subscription{
		ID:     id,
		Cancel: func() { b.unsubscribe(eventType, id) },
	}
}

func (b *Bus) unsubscribe(eventType Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[eventType]
	for i, r := range regs {
		if r.id == id {
			b.handlers[eventType] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(b.handlers[eventType]) == 0 {
		delete(b.handlers, eventType)
	}
}

// Publish sends an event to all subscribed handlers in subscription order
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	regs := append([]registration(nil), b.handlers[event.GetType()]...)
	b.mu.RUnlock()

	for _, r := range regs {
		r.handler(event)
	}
}

// Specific event implementations

// PlayerEvent describes a player entering or leaving a sector
type PlayerEvent struct {
	BaseEvent
	PlayerID uint64
	TeamID   int
	Sector   int
}

// NewPlayerEvent creates a new player event
func NewPlayerEvent(eventType Type, source interface{}, playerID uint64, teamID, sector int) *PlayerEvent {
	return &PlayerEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		PlayerID: playerID,
		TeamID:   teamID,
		Sector:   sector,
	}
}

// DeathEvent reports a destroyed player and who landed the final hit
type DeathEvent struct {
	BaseEvent
	PlayerID uint64
	KillerID uint64
	Sector   int
	NPC      bool
}

// NewDeathEvent creates a new death event
func NewDeathEvent(source interface{}, playerID, killerID uint64, sector int, npc bool) *DeathEvent {
	return &DeathEvent{
		BaseEvent: BaseEvent{
			EventType: PlayerDied,
			Source:    source,
		},
		PlayerID: playerID,
		KillerID: killerID,
		Sector:   sector,
		NPC:      npc,
	}
}

// CollisionEvent contains information about entity collisions
type CollisionEvent struct {
	BaseEvent
	EntityA uint64
	EntityB uint64
}

// NewCollisionEvent creates a new collision event
func NewCollisionEvent(source interface{}, entityA, entityB uint64) *CollisionEvent {
	return &CollisionEvent{
		BaseEvent: BaseEvent{
			EventType: EntityCollision,
			Source:    source,
		},
		EntityA: entityA,
		EntityB: entityB,
	}
}

// SectorEvent describes a player moving between sectors
type SectorEvent struct {
	BaseEvent
	PlayerID uint64
	From     int
	To       int
}

// NewSectorEvent creates a new sector change event
func NewSectorEvent(source interface{}, playerID uint64, from, to int) *SectorEvent {
	return &SectorEvent{
		BaseEvent: BaseEvent{
			EventType: SectorChanged,
			Source:    source,
		},
		PlayerID: playerID,
		From:     from,
		To:       to,
	}
}

// TransferEvent reports the outcome of a peer handoff
type TransferEvent struct {
	BaseEvent
	PlayerID  uint64
	Peer      string
	Retryable bool
	Err       error
}

// NewTransferEvent creates a transfer event. A nil err means success.
func NewTransferEvent(source interface{}, playerID uint64, peer string, retryable bool, err error) *TransferEvent {
	eventType := TransferCompleted
	if err != nil {
		eventType = TransferFailed
	}
	return &TransferEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		PlayerID:  playerID,
		Peer:      peer,
		Retryable: retryable,
		Err:       err,
	}
}

// PanicEvent reports a sector whose tick panicked and was skipped
type PanicEvent struct {
	BaseEvent
	Sector    int
	Recovered interface{}
}

// NewPanicEvent creates a new sector panic event
func NewPanicEvent(source interface{}, sector int, recovered interface{}) *PanicEvent {
	return &PanicEvent{
		BaseEvent: BaseEvent{
			EventType: SectorPanicked,
			Source:    source,
		},
		Sector:    sector,
		Recovered: recovered,
	}
}
