// pkg/content/content_test.go
package content

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefault_IsValid(t *testing.T) {
	tables := Default()
	if err := tables.Validate(); err != nil {
		t.Fatalf("Default() tables failed validation: %v", err)
	}
	if _, ok := tables.ArmamentByName("Light laser"); !ok {
		t.Error("expected Light laser in default armaments")
	}
	if _, ok := tables.ArmamentByName("Death ray"); ok {
		t.Error("unknown armament name must not resolve")
	}
}

func TestTables_LookupsRejectOutOfRange(t *testing.T) {
	tables := Default()
	tests := []struct {
		name string
		ok   bool
	}{
		{"ship_negative", func() bool { _, ok := tables.Ship(-1); return ok }()},
		{"ship_past_end", func() bool { _, ok := tables.Ship(len(tables.Ships)); return ok }()},
		{"armament_past_end", func() bool { _, ok := tables.Armament(999); return ok }()},
		{"missile_negative", func() bool { _, ok := tables.Missile(-3); return ok }()},
		{"mine_past_end", func() bool { _, ok := tables.Mine(10); return ok }()},
		{"asteroid_past_end", func() bool { _, ok := tables.Asteroid(10); return ok }()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.ok {
				t.Error("expected lookup to fail")
			}
		})
	}
}

func TestParse_YAML(t *testing.T) {
	doc := `
ships:
  - name: Tug
    kind: ship
    radius: 10
    maxHealth: 30
    maxEnergy: 30
    maxSpeed: 5
    slots: [mining]
armaments:
  - name: Drill
    slot: mining
    behavior: mining
    usage: active
    range: 100
    amount: 1
asteroids:
  - name: Rock
    radius: 20
    maxResources: 10
    resource: Ore
`
	tables, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if tables.Ships[0].Slots[0] != SlotMining {
		t.Errorf("expected mining slot, got %q", tables.Ships[0].Slots[0])
	}
	if i, ok := tables.ArmamentByName("Drill"); !ok || i != 0 {
		t.Errorf("ArmamentByName(Drill) = %d,%v", i, ok)
	}
}

func TestParse_RejectsBrokenReferences(t *testing.T) {
	doc := `
ships:
  - name: Tug
    radius: 10
    maxHealth: 30
armaments:
  - name: Launcher
    slot: normal
    behavior: missile
    missile: 4
`
	_, err := Parse([]byte(doc))
	if !errors.Is(err, ErrInvalidTables) {
		t.Fatalf("expected ErrInvalidTables, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.yaml")
	if err := os.WriteFile(path, []byte("ships:\n  - name: A\n    radius: 1\n    maxHealth: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tables, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if tables.Ships[0].Name != "A" {
		t.Errorf("unexpected ship name %q", tables.Ships[0].Name)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFits(t *testing.T) {
	tables := Default()
	laser, _ := tables.ArmamentByName("Light laser")
	cloak, _ := tables.ArmamentByName("Cloaking device")
	if !Fits(SlotNormal, tables.Armaments[laser]) {
		t.Error("laser should fit a normal slot")
	}
	if Fits(SlotMining, tables.Armaments[laser]) {
		t.Error("laser must not fit a mining slot")
	}
	if !Fits(SlotLarge, tables.Armaments[cloak]) {
		t.Error("utility armaments fit any slot")
	}
}
