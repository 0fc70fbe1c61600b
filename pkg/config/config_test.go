package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if err := config.Validate(); err != nil {
		t.Fatalf("DefaultConfig should validate, got %v", err)
	}
	if config.Grid.Sectors() != 9 {
		t.Errorf("Expected 9 sectors, got %d", config.Grid.Sectors())
	}
	if !config.Grid.Wraparound {
		t.Error("Expected the default grid to wrap")
	}
	if config.NetworkConfig.TickRate != 60 {
		t.Errorf("Expected TickRate 60, got %d", config.NetworkConfig.TickRate)
	}
	if config.NetworkConfig.ServerPort != 4566 {
		t.Errorf("Expected ServerPort 4566, got %d", config.NetworkConfig.ServerPort)
	}
	if config.Peers.TransferTimeBox != 10*time.Second {
		t.Errorf("Expected TransferTimeBox 10s, got %v", config.Peers.TransferTimeBox)
	}
	if got := config.Peers.Breaker; got.Name != "peer-transfer" || got.Attempts != 1 {
		t.Errorf("Expected a single-attempt peer-transfer breaker, got %+v", got)
	}
	if got := config.Checkpoint.Retry; got.Name != "checkpoint" || got.Attempts != 3 || got.Delay != time.Second {
		t.Errorf("Expected checkpoint retries 3 x 1s, got %+v", got)
	}
}

func TestGameConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *GameConfig)
		wantErr bool
	}{
		{"default", func(*GameConfig) {}, false},
		{"three peers split nine sectors", func(c *GameConfig) { c.Peers.Count = 3; c.Peers.Index = 2 }, false},
		{"indivisible partition", func(c *GameConfig) { c.Peers.Count = 2 }, true},
		{"peer index out of range", func(c *GameConfig) { c.Peers.Index = 1 }, true},
		{"empty grid", func(c *GameConfig) { c.Grid.Cols = 0 }, true},
		{"zero sector size", func(c *GameConfig) { c.Grid.SectorSize = 0 }, true},
		{"zero tick rate", func(c *GameConfig) { c.NetworkConfig.TickRate = 0 }, true},
		{"negative npc population", func(c *GameConfig) { c.NPC.PerSector = -1 }, true},
		{"negative checkpoint retry delay", func(c *GameConfig) { c.Checkpoint.Retry.Delay = -time.Second }, true},
		{"negative peer breaker delay", func(c *GameConfig) { c.Peers.Breaker.Delay = -time.Second }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidGameConfig) {
				t.Errorf("Expected ErrInvalidGameConfig, got %v", err)
			}
		})
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "test_config.json")

	testConfig := DefaultConfig()
	testConfig.ServerName = "sector-east"
	testConfig.Grid = GridConfig{Cols: 4, Rows: 2, SectorSize: 8000}
	testConfig.Peers.Count = 2
	testConfig.Peers.Index = 1
	testConfig.NPC.PerSector = 7

	if err := SaveConfig(testConfig, configPath); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loadedConfig, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loadedConfig.ServerName != "sector-east" {
		t.Errorf("Expected ServerName 'sector-east', got '%s'", loadedConfig.ServerName)
	}
	if loadedConfig.Grid != testConfig.Grid {
		t.Errorf("Expected grid %+v, got %+v", testConfig.Grid, loadedConfig.Grid)
	}
	if loadedConfig.Peers != testConfig.Peers {
		t.Errorf("Expected peers %+v, got %+v", testConfig.Peers, loadedConfig.Peers)
	}
	if loadedConfig.NPC.PerSector != 7 {
		t.Errorf("Expected 7 NPCs per sector, got %d", loadedConfig.NPC.PerSector)
	}
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "partial.json")
	if err := os.WriteFile(configPath, []byte(`{"serverName": "solo", "grid": {"cols": 2, "rows": 1, "sectorSize": 5000}}`), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.ServerName != "solo" || config.Grid.Cols != 2 {
		t.Errorf("Expected file values, got %+v", config)
	}
	if config.NetworkConfig.TickRate != 60 {
		t.Errorf("Expected default TickRate 60, got %d", config.NetworkConfig.TickRate)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	invalidPath := filepath.Join(t.TempDir(), "invalid_config.json")
	if err := os.WriteFile(invalidPath, []byte(`{"serverName": "x", invalid json}`), 0o644); err != nil {
		t.Fatalf("Failed to write invalid JSON file: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantMsg string
	}{
		{"FileNotFound", "/path/that/does/not/exist/config.json", "failed to open config file"},
		{"InvalidJSON", invalidPath, "failed to parse config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := LoadConfig(tt.path)
			if err == nil {
				t.Fatal("Expected an error, got nil")
			}
			if config != nil {
				t.Error("Expected nil config on error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Expected error to contain '%s', got '%s'", tt.wantMsg, err.Error())
			}
		})
	}
}

func TestSaveConfig_Errors(t *testing.T) {
	if err := SaveConfig(nil, filepath.Join(t.TempDir(), "nil.json")); !errors.Is(err, ErrInvalidGameConfig) {
		t.Errorf("Expected ErrInvalidGameConfig for a nil config, got %v", err)
	}

	err := SaveConfig(DefaultConfig(), filepath.Join(t.TempDir(), "missing", "dir", "config.json"))
	if err == nil || !strings.Contains(err.Error(), "failed to write config file") {
		t.Errorf("Expected a write error, got %v", err)
	}
}
