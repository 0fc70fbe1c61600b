// pkg/config/env.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names
const (
	EnvServerAddr      = "STARSECTOR_SERVER_ADDR"
	EnvServerPort      = "STARSECTOR_SERVER_PORT"
	EnvServerName      = "STARSECTOR_SERVER_NAME"
	EnvPublicAddr      = "STARSECTOR_PUBLIC_ADDR"
	EnvMaxClients      = "STARSECTOR_MAX_CLIENTS"
	EnvReadTimeout     = "STARSECTOR_READ_TIMEOUT"
	EnvWriteTimeout    = "STARSECTOR_WRITE_TIMEOUT"
	EnvTickRate        = "STARSECTOR_TICK_RATE"
	EnvTicksPerState   = "STARSECTOR_TICKS_PER_STATE"
	EnvSectorSize      = "STARSECTOR_SECTOR_SIZE"
	EnvWraparound      = "STARSECTOR_WRAPAROUND"
	EnvNATSURL         = "STARSECTOR_NATS_URL"
	EnvPeerCount       = "STARSECTOR_PEER_COUNT"
	EnvPeerIndex       = "STARSECTOR_PEER_INDEX"
	EnvHealthPort      = "STARSECTOR_HEALTH_PORT"
	EnvCheckpointDir   = "STARSECTOR_CHECKPOINT_DIR"
	EnvContentFile     = "STARSECTOR_CONTENT_FILE"
	EnvMaxMemoryMB     = "STARSECTOR_MAX_MEMORY_MB"
	EnvShutdownTimeout = "STARSECTOR_SHUTDOWN_TIMEOUT"

	EnvBreakerMaxRequests = "STARSECTOR_CB_MAX_REQUESTS"
	EnvBreakerInterval    = "STARSECTOR_CB_INTERVAL"
	EnvBreakerTimeout     = "STARSECTOR_CB_TIMEOUT"
	EnvBreakerMaxFails    = "STARSECTOR_CB_MAX_CONSECUTIVE_FAILS"
)

// EnvironmentConfig holds deployment settings read from the environment
type EnvironmentConfig struct {
	ServerAddr    string
	ServerPort    int
	ServerName    string
	PublicAddr    string
	MaxClients    int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	TickRate      int
	TicksPerState int
	SectorSize    float64
	Wraparound    bool

	NATSURL    string
	PeerCount  int
	PeerIndex  int
	HealthPort int

	CheckpointDir string
	ContentFile   string

	// Circuit Breaker Configuration
	CircuitBreakerMaxRequests         int
	CircuitBreakerInterval            time.Duration
	CircuitBreakerTimeout             time.Duration
	CircuitBreakerMaxConsecutiveFails int

	MaxMemoryMB     int
	ShutdownTimeout time.Duration
}

// ValidationError reports the first invalid environment setting
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Message)
}

// LoadDotEnv loads an optional .env file. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// LoadConfigFromEnv reads the environment, after loading an optional .env
// from the working directory, and validates the result.
func LoadConfigFromEnv() (*EnvironmentConfig, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	config := &EnvironmentConfig{
		ServerAddr:    getEnvOrDefault(EnvServerAddr, "localhost"),
		ServerPort:    getEnvAsIntOrDefault(EnvServerPort, 4566),
		ServerName:    getEnvOrDefault(EnvServerName, "sector-0"),
		PublicAddr:    getEnvOrDefault(EnvPublicAddr, ""),
		MaxClients:    getEnvAsIntOrDefault(EnvMaxClients, 64),
		ReadTimeout:   getEnvAsDurationOrDefault(EnvReadTimeout, 30*time.Second),
		WriteTimeout:  getEnvAsDurationOrDefault(EnvWriteTimeout, 10*time.Second),
		TickRate:      getEnvAsIntOrDefault(EnvTickRate, 60),
		TicksPerState: getEnvAsIntOrDefault(EnvTicksPerState, 1),
		SectorSize:    getEnvAsFloatOrDefault(EnvSectorSize, 10000),
		Wraparound:    getEnvAsBoolOrDefault(EnvWraparound, true),

		NATSURL:    getEnvOrDefault(EnvNATSURL, ""),
		PeerCount:  getEnvAsIntOrDefault(EnvPeerCount, 1),
		PeerIndex:  getEnvAsIntOrDefault(EnvPeerIndex, 0),
		HealthPort: getEnvAsIntOrDefault(EnvHealthPort, 8080),

		CheckpointDir: getEnvOrDefault(EnvCheckpointDir, "checkpoints"),
		ContentFile:   getEnvOrDefault(EnvContentFile, ""),

		CircuitBreakerMaxRequests:         getEnvAsIntOrDefault(EnvBreakerMaxRequests, 3),
		CircuitBreakerInterval:            getEnvAsDurationOrDefault(EnvBreakerInterval, 60*time.Second),
		CircuitBreakerTimeout:             getEnvAsDurationOrDefault(EnvBreakerTimeout, 30*time.Second),
		CircuitBreakerMaxConsecutiveFails: getEnvAsIntOrDefault(EnvBreakerMaxFails, 5),

		MaxMemoryMB:     getEnvAsIntOrDefault(EnvMaxMemoryMB, 1024),
		ShutdownTimeout: getEnvAsDurationOrDefault(EnvShutdownTimeout, 30*time.Second),
	}
	if config.PublicAddr == "" {
		config.PublicAddr = net.JoinHostPort(config.ServerAddr, strconv.Itoa(config.ServerPort))
	}

	if err := validateEnvironmentConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

func validateEnvironmentConfig(c *EnvironmentConfig) error {
	switch {
	case c.ServerAddr == "":
		return &ValidationError{Field: "ServerAddr", Value: c.ServerAddr, Message: "must not be empty"}
	case c.ServerPort < 1024 || c.ServerPort > 65535:
		return &ValidationError{Field: "ServerPort", Value: c.ServerPort, Message: "must be between 1024 and 65535"}
	case c.MaxClients < 1 || c.MaxClients > 1000:
		return &ValidationError{Field: "MaxClients", Value: c.MaxClients, Message: "must be between 1 and 1000"}
	case c.ReadTimeout < time.Second || c.ReadTimeout > time.Minute:
		return &ValidationError{Field: "ReadTimeout", Value: c.ReadTimeout, Message: "must be between 1s and 1m"}
	case c.WriteTimeout < time.Second || c.WriteTimeout > time.Minute:
		return &ValidationError{Field: "WriteTimeout", Value: c.WriteTimeout, Message: "must be between 1s and 1m"}
	case c.TickRate < 1 || c.TickRate > 240:
		return &ValidationError{Field: "TickRate", Value: c.TickRate, Message: "must be between 1 and 240"}
	case c.TicksPerState < 1:
		return &ValidationError{Field: "TicksPerState", Value: c.TicksPerState, Message: "must be positive"}
	case c.SectorSize < 1000 || c.SectorSize > 100000:
		return &ValidationError{Field: "SectorSize", Value: c.SectorSize, Message: "must be between 1000 and 100000"}
	case c.PeerCount < 1:
		return &ValidationError{Field: "PeerCount", Value: c.PeerCount, Message: "must be positive"}
	case c.PeerIndex < 0 || c.PeerIndex >= c.PeerCount:
		return &ValidationError{Field: "PeerIndex", Value: c.PeerIndex, Message: "must be below the peer count"}
	case c.CircuitBreakerMaxRequests < 1:
		return &ValidationError{Field: "CircuitBreakerMaxRequests", Value: c.CircuitBreakerMaxRequests, Message: "must be positive"}
	case c.CircuitBreakerInterval < time.Second:
		return &ValidationError{Field: "CircuitBreakerInterval", Value: c.CircuitBreakerInterval, Message: "must be at least 1s"}
	case c.CircuitBreakerTimeout < time.Second:
		return &ValidationError{Field: "CircuitBreakerTimeout", Value: c.CircuitBreakerTimeout, Message: "must be at least 1s"}
	case c.CircuitBreakerMaxConsecutiveFails < 1:
		return &ValidationError{Field: "CircuitBreakerMaxConsecutiveFails", Value: c.CircuitBreakerMaxConsecutiveFails, Message: "must be positive"}
	case c.MaxMemoryMB < 0:
		return &ValidationError{Field: "MaxMemoryMB", Value: c.MaxMemoryMB, Message: "must not be negative"}
	}
	return nil
}

// ApplyEnvironmentOverrides copies every explicitly set environment value
// into gameConfig. Unset variables leave the file's values alone.
func ApplyEnvironmentOverrides(gameConfig *GameConfig) error {
	env, err := LoadConfigFromEnv()
	if err != nil {
		return err
	}

	if isSet(EnvServerAddr) || isSet(EnvServerPort) {
		gameConfig.NetworkConfig.ServerAddress = net.JoinHostPort(env.ServerAddr, strconv.Itoa(env.ServerPort))
		gameConfig.NetworkConfig.ServerPort = env.ServerPort
	}
	if isSet(EnvServerName) {
		gameConfig.ServerName = env.ServerName
	}
	if isSet(EnvPublicAddr) || isSet(EnvServerAddr) || isSet(EnvServerPort) {
		gameConfig.PublicAddress = env.PublicAddr
	}
	if isSet(EnvMaxClients) {
		gameConfig.MaxPlayers = env.MaxClients
	}
	if isSet(EnvTickRate) {
		gameConfig.NetworkConfig.TickRate = env.TickRate
	}
	if isSet(EnvTicksPerState) {
		gameConfig.NetworkConfig.TicksPerState = env.TicksPerState
	}
	if isSet(EnvSectorSize) {
		gameConfig.Grid.SectorSize = env.SectorSize
	}
	if isSet(EnvWraparound) {
		gameConfig.Grid.Wraparound = env.Wraparound
	}
	if isSet(EnvPeerCount) {
		gameConfig.Peers.Count = env.PeerCount
	}
	if isSet(EnvPeerIndex) {
		gameConfig.Peers.Index = env.PeerIndex
	}
	if isSet(EnvCheckpointDir) {
		gameConfig.Checkpoint.Directory = env.CheckpointDir
	}
	if isSet(EnvContentFile) {
		gameConfig.ContentFile = env.ContentFile
	}
	return nil
}

func isSet(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}
