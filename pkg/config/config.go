// pkg/config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// GameConfig contains configuration for one simulation server
type GameConfig struct {
	ServerName    string           `json:"serverName"`
	PublicAddress string           `json:"publicAddress"`
	ContentFile   string           `json:"contentFile"`
	Grid          GridConfig       `json:"grid"`
	Peers         PeerConfig       `json:"peers"`
	NetworkConfig NetworkConfig    `json:"network"`
	NPC           NPCConfig        `json:"npc"`
	Tasks         TaskConfig       `json:"tasks"`
	Checkpoint    CheckpointConfig `json:"checkpoint"`
	MaxPlayers    int              `json:"maxPlayers"`
	Seed          uint64           `json:"seed"`
}

// GridConfig describes the sector layout
type GridConfig struct {
	Cols       int     `json:"cols"`
	Rows       int     `json:"rows"`
	Wraparound bool    `json:"wraparound"`
	SectorSize float64 `json:"sectorSize"`
}

// Sectors returns the number of sectors in the grid
func (g GridConfig) Sectors() int {
	return g.Cols * g.Rows
}

// PeerConfig places this server within the cluster
type PeerConfig struct {
	Count             int           `json:"count"`
	Index             int           `json:"index"`
	TransferTimeBox   time.Duration `json:"transferTimeBox"`
	DirectoryTTL      time.Duration `json:"directoryTTL"`
	HeartbeatInterval time.Duration `json:"heartbeatInterval"`
	Breaker           RetryPolicy   `json:"breaker"`
}

// RetryPolicy names a circuit breaker and sets how often a call through it
// is attempted. Attempts below 1 mean a single attempt.
type RetryPolicy struct {
	Name     string        `json:"name"`
	Attempts int           `json:"attempts"`
	Delay    time.Duration `json:"delay"`
}

// NetworkConfig contains client-facing network settings
type NetworkConfig struct {
	TickRate      int    `json:"tickRate"`
	TicksPerState int    `json:"ticksPerState"`
	ServerPort    int    `json:"serverPort"`
	ServerAddress string `json:"serverAddress"`
	SendQueue     int    `json:"sendQueue"`
}

// NPCConfig sets the computer-controlled population
type NPCConfig struct {
	PerSector      int     `json:"perSector"`
	AssassinShare  float64 `json:"assassinShare"`
	GuardianTeam   int     `json:"guardianTeam"`
	AsteroidTarget int     `json:"asteroidTarget"`
}

// TaskConfig holds periodic task intervals in frames
type TaskConfig struct {
	GuardianSpawn      uint64 `json:"guardianSpawn"`
	StationRepair      uint64 `json:"stationRepair"`
	Checkpoint         uint64 `json:"checkpoint"`
	AsteroidTopUp      uint64 `json:"asteroidTopUp"`
	TransferSweep      uint64 `json:"transferSweep"`
	OwnershipBroadcast uint64 `json:"ownershipBroadcast"`
}

// CheckpointConfig configures player persistence
type CheckpointConfig struct {
	Directory string      `json:"directory"`
	Retry     RetryPolicy `json:"retry"`
}

// ErrInvalidGameConfig wraps every GameConfig validation failure
var ErrInvalidGameConfig = errors.New("invalid game config")

// LoadConfig loads a configuration from a file
func LoadConfig(path string) (*GameConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves a configuration to a file
func SaveConfig(config *GameConfig, path string) error {
	if config == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidGameConfig)
	}
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the sector grid and the peer partition
func (c *GameConfig) Validate() error {
	switch {
	case c.Grid.Cols <= 0 || c.Grid.Rows <= 0:
		return fmt.Errorf("%w: grid must be at least 1x1, got %dx%d", ErrInvalidGameConfig, c.Grid.Cols, c.Grid.Rows)
	case c.Grid.SectorSize <= 0:
		return fmt.Errorf("%w: sector size must be positive", ErrInvalidGameConfig)
	case c.NetworkConfig.TickRate <= 0:
		return fmt.Errorf("%w: tick rate must be positive", ErrInvalidGameConfig)
	case c.Peers.Count <= 0:
		return fmt.Errorf("%w: peer count must be positive", ErrInvalidGameConfig)
	case c.Peers.Index < 0 || c.Peers.Index >= c.Peers.Count:
		return fmt.Errorf("%w: peer index %d out of range [0, %d)", ErrInvalidGameConfig, c.Peers.Index, c.Peers.Count)
	case c.Grid.Sectors()%c.Peers.Count != 0:
		return fmt.Errorf("%w: %d sectors cannot be split across %d peers", ErrInvalidGameConfig, c.Grid.Sectors(), c.Peers.Count)
	case c.NPC.PerSector < 0:
		return fmt.Errorf("%w: negative NPC population", ErrInvalidGameConfig)
	case c.Peers.Breaker.Delay < 0 || c.Checkpoint.Retry.Delay < 0:
		return fmt.Errorf("%w: retry delay must not be negative", ErrInvalidGameConfig)
	}
	return nil
}

// DefaultConfig returns a default game configuration
func DefaultConfig() *GameConfig {
	return &GameConfig{
		ServerName:    "sector-0",
		PublicAddress: "localhost:4566",
		MaxPlayers:    64,
		Seed:          1,
		Grid: GridConfig{
			Cols:       3,
			Rows:       3,
			Wraparound: true,
			SectorSize: 10000,
		},
		Peers: PeerConfig{
			Count:             1,
			Index:             0,
			TransferTimeBox:   10 * time.Second,
			DirectoryTTL:      15 * time.Second,
			HeartbeatInterval: 5 * time.Second,
			Breaker:           RetryPolicy{Name: "peer-transfer", Attempts: 1},
		},
		NetworkConfig: NetworkConfig{
			TickRate:      60,
			TicksPerState: 1,
			ServerPort:    4566,
			ServerAddress: "localhost:4566",
			SendQueue:     64,
		},
		NPC: NPCConfig{
			PerSector:      4,
			AssassinShare:  0.25,
			GuardianTeam:   0,
			AsteroidTarget: 12,
		},
		Tasks: TaskConfig{
			GuardianSpawn:      60 * 30,
			StationRepair:      60,
			Checkpoint:         60 * 10,
			AsteroidTopUp:      60 * 20,
			TransferSweep:      60 * 5,
			OwnershipBroadcast: 60 * 5,
		},
		Checkpoint: CheckpointConfig{
			Directory: "checkpoints",
			Retry:     RetryPolicy{Name: "checkpoint", Attempts: 3, Delay: time.Second},
		},
	}
}
