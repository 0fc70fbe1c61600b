// Package validation checks client messages before they reach the simulation.
// Everything here is a pure function of its input and the content tables, so
// a rejected message never mutates state.
package validation

import (
	"encoding/json"
	"fmt"
	"html"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/opd-ai/go-starsector/pkg/content"
	"github.com/opd-ai/go-starsector/pkg/entity"
)

// Message size and content limits
const (
	MaxMessageSize    = 64 * 1024
	MaxPlayerNameLen  = 32
	MaxMessagesPerSec = 120
	MaxTeams          = 2
)

var validPlayerNameChars = regexp.MustCompile(`^[a-zA-Z0-9\s\-_.<>()]+$`)

// MessageValidator checks raw frames and rate limits each client
type MessageValidator struct {
	rateLimiter *RateLimiter
}

// NewMessageValidator creates a validator allowing MaxMessagesPerSec per client.
// Input arrives every frame at 60 Hz, so the budget is per second.
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{
		rateLimiter: NewRateLimiter(MaxMessagesPerSec, time.Second),
	}
}

// Close releases resources used by the message validator
func (v *MessageValidator) Close() {
	if v.rateLimiter != nil {
		v.rateLimiter.Close()
	}
}

// Forget drops the rate limiting state of a disconnected client
func (v *MessageValidator) Forget(clientID string) {
	v.rateLimiter.Forget(clientID)
}

// ValidateMessage validates a raw message against size and format constraints
func (v *MessageValidator) ValidateMessage(data []byte, clientID string) error {
	if len(data) > MaxMessageSize {
		return fmt.Errorf("message too large: %d bytes (max %d)", len(data), MaxMessageSize)
	}
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON format")
	}
	if !v.rateLimiter.Allow(clientID) {
		return fmt.Errorf("rate limit exceeded: max %d messages per second", MaxMessagesPerSec)
	}
	return nil
}

// ValidatePlayerName validates and sanitizes a player name
func ValidatePlayerName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("player name cannot be empty")
	}
	if len(name) > MaxPlayerNameLen {
		return "", fmt.Errorf("player name too long: %d characters (max %d)", len(name), MaxPlayerNameLen)
	}
	if !utf8.ValidString(name) {
		return "", fmt.Errorf("player name contains invalid UTF-8 characters")
	}

	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("player name cannot be only whitespace")
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("player name contains control characters")
		}
	}
	if !validPlayerNameChars.MatchString(trimmed) {
		return "", fmt.Errorf("player name contains invalid characters (only alphanumeric, spaces, hyphens, underscores, and basic punctuation allowed)")
	}

	return html.EscapeString(trimmed), nil
}

// ValidateTeamID checks that a human player picked one of the playable teams
func ValidateTeamID(teamID int) error {
	if teamID < 1 || teamID > MaxTeams {
		return fmt.Errorf("invalid team ID: %d (must be 1-%d)", teamID, MaxTeams)
	}
	return nil
}

// ValidateAngle rejects headings that are not finite numbers
func ValidateAngle(angle float64) error {
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return fmt.Errorf("invalid angle: %v", angle)
	}
	return nil
}

// ValidateSlotIndex checks a secondary slot index against the ship definition.
// When allowNone is set, -1 deselects.
func ValidateSlotIndex(def content.ShipDef, slot int, allowNone bool) error {
	if allowNone && slot == -1 {
		return nil
	}
	if slot < 0 || slot >= len(def.Slots) {
		return fmt.Errorf("invalid slot index: %d (ship has %d slots)", slot, len(def.Slots))
	}
	return nil
}

// ValidateArmament resolves an armament by name and checks that it fits
// the given slot of the ship.
func ValidateArmament(defs *content.Tables, def content.ShipDef, slot int, name string) (int, error) {
	if err := ValidateSlotIndex(def, slot, false); err != nil {
		return 0, err
	}
	idx, ok := defs.ArmamentByName(name)
	if !ok {
		return 0, fmt.Errorf("unknown armament %q", name)
	}
	arm, _ := defs.Armament(idx)
	if !content.Fits(def.Slots[slot], arm) {
		return 0, fmt.Errorf("armament %q does not fit slot %d", name, slot)
	}
	return idx, nil
}

// ValidateTarget checks the kind of a target selection. The zero target
// clears the selection.
func ValidateTarget(t entity.Target) error {
	if t.IsZero() {
		return nil
	}
	switch t.Kind {
	case entity.KindPlayer, entity.KindAsteroid:
		return nil
	default:
		return fmt.Errorf("invalid target kind %q", t.Kind)
	}
}
