// Package peer spreads sectors across several server processes. It covers
// the static partition, a liveness directory, a request/reply and broadcast
// transport, last-writer-wins sector ownership, and the player handoff that
// moves a ship between processes without ever duplicating or losing it.
package peer

import (
	"errors"
	"fmt"
	"slices"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/opd-ai/go-starsector/pkg/entity"
	"github.com/opd-ai/go-starsector/pkg/sector"
	"github.com/opd-ai/go-starsector/pkg/world"
)

var (
	// ErrBadPartition is returned when sectors do not split evenly across peers
	ErrBadPartition = errors.New("sectors cannot be partitioned evenly")
	// ErrPeerUnavailable is returned when a peer cannot be reached
	ErrPeerUnavailable = errors.New("peer unavailable")
	// ErrNoRoute is returned when no live peer owns a sector
	ErrNoRoute = errors.New("no route to sector")
	// ErrRemote wraps an error reported by the remote handler
	ErrRemote = errors.New("remote error")
	// ErrTransferExpired is returned for an unknown, claimed or expired key
	ErrTransferExpired = errors.New("transfer expired")
	// ErrInFlight is returned when a player is already being handed off
	ErrInFlight = errors.New("transfer already in flight")
	// ErrUnknownPlayer is returned when the player is not in the source sector
	ErrUnknownPlayer = errors.New("unknown player")
	// ErrMalformed is returned for a package that fails validation
	ErrMalformed = errors.New("malformed transfer")
)

// Topics
const (
	TopicPlayerTransfer     = "player-transfer"
	TopicSectorTransfer     = "sector-transfer"
	TopicSectorNotification = "sector-notification"
	TopicSectorRemoval      = "sector-removal"
	TopicPlayerSector       = "player-sector"
)

// Partition returns the sectors owned by peer index out of peers. Sectors are
// sorted and dealt out in contiguous runs.
func Partition(sectors []sector.ID, peers, index int) ([]sector.ID, error) {
	if peers <= 0 || index < 0 || index >= peers {
		return nil, fmt.Errorf("%w: peer %d of %d", ErrBadPartition, index, peers)
	}
	if len(sectors)%peers != 0 {
		return nil, fmt.Errorf("%w: %d sectors over %d peers", ErrBadPartition, len(sectors), peers)
	}
	sorted := slices.Clone(sectors)
	slices.Sort(sorted)
	per := len(sorted) / peers
	return sorted[index*per : (index+1)*per], nil
}

// SectorNotification announces that Server owns Sector as of Version
type SectorNotification struct {
	Sector     sector.ID        `json:"sector" msgpack:"sector"`
	SectorKind world.SectorKind `json:"sectorKind" msgpack:"sectorKind"`
	Server     string           `json:"server" msgpack:"server"`
	Version    uint64           `json:"version" msgpack:"version"`
}

// SectorRemoval announces that Server gave up Sector as of Version
type SectorRemoval struct {
	Sector  sector.ID `json:"sector" msgpack:"sector"`
	Server  string    `json:"server" msgpack:"server"`
	Version uint64    `json:"version" msgpack:"version"`
}

// Offline is the PlayerSector value announced when a player logs out
const Offline sector.ID = -1

// PlayerSector announces where a player now lives
type PlayerSector struct {
	ID     entity.ID `json:"id" msgpack:"id"`
	Sector sector.ID `json:"sector" msgpack:"sector"`
}

// Encode serializes a peer message
func Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Decode deserializes a peer message into v
func Decode(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
