// pkg/network/protocol.go
package network

import (
	"encoding/json"
	"fmt"

	"github.com/opd-ai/go-starsector/pkg/engine"
	"github.com/opd-ai/go-starsector/pkg/entity"
	"github.com/opd-ai/go-starsector/pkg/sector"
)

// Inbound message types
const (
	TypeLogin               = "login"
	TypeResume              = "resume"
	TypeInput               = "input"
	TypeAngle               = "angle"
	TypeTarget              = "target"
	TypeSecondary           = "secondary"
	TypeSecondaryActivation = "secondaryActivation"
	TypeWarp                = "warp"
	TypeDock                = "dock"
	TypeUndock              = "undock"
	TypeRepair              = "repair"
	TypeEquip               = "equip"
	TypeSell                = "sell"
)

// Outbound message types
const (
	TypeWelcome  = "welcome"
	TypeState    = "state"
	TypeRedirect = "redirect"
	TypeError    = "error"
)

// Inbound is the envelope of every client message
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v. An absent payload leaves v untouched.
func (in Inbound) Decode(v any) error {
	if len(in.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(in.Payload, v); err != nil {
		return fmt.Errorf("bad %s payload: %w", in.Type, err)
	}
	return nil
}

// Message is the envelope of every server message
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// LoginPayload starts a new session. A non-zero ID asks for the player's
// last checkpoint.
type LoginPayload struct {
	Name string    `json:"name"`
	Team int       `json:"team"`
	ID   entity.ID `json:"id,omitempty"`
}

// ResumePayload claims a player handed over by another server
type ResumePayload struct {
	Key string `json:"key"`
}

// Every action names the player it acts on. A zero ID means the session's
// own player; anything else must match it.

// InputPayload carries the held-key state
type InputPayload struct {
	ID entity.ID `json:"id,omitempty"`
	engine.Controls
}

// AnglePayload sets the heading directly
type AnglePayload struct {
	ID    entity.ID `json:"id,omitempty"`
	Angle float64   `json:"angle"`
}

// TargetPayload selects a target. The zero target clears it.
type TargetPayload struct {
	ID     entity.ID     `json:"id,omitempty"`
	Target entity.Target `json:"target"`
}

// SlotPayload selects or activates a secondary slot
type SlotPayload struct {
	ID    entity.ID `json:"id,omitempty"`
	Index int       `json:"index"`
}

// WarpRequest starts a long jump
type WarpRequest struct {
	ID     entity.ID `json:"id,omitempty"`
	WarpTo sector.ID `json:"warpTo"`
}

// DockPayload docks at a station
type DockPayload struct {
	ID        entity.ID `json:"id,omitempty"`
	StationID entity.ID `json:"stationId"`
}

// EquipPayload buys an armament into a slot
type EquipPayload struct {
	ID       entity.ID `json:"id,omitempty"`
	Slot     int       `json:"slot"`
	Armament string    `json:"armament"`
}

// PlayerPayload is used by undock, repair and sell
type PlayerPayload struct {
	ID entity.ID `json:"id,omitempty"`
}

// WelcomePayload tells a client which player it controls
type WelcomePayload struct {
	PlayerID  entity.ID `json:"playerId"`
	SessionID string    `json:"sessionId"`
	Sector    sector.ID `json:"sector"`
	Team      int       `json:"team"`
}

// RedirectPayload sends a client to the server that now owns its player
type RedirectPayload struct {
	Address string `json:"address"`
	Key     string `json:"key"`
}

// ErrorPayload reports a rejected message
type ErrorPayload struct {
	Message string `json:"message"`
}

func errorMessage(err error) Message {
	return Message{Type: TypeError, Payload: ErrorPayload{Message: err.Error()}}
}
