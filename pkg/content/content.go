// Package content holds the read-only ship, armament, missile, mine, asteroid
// and recipe tables consumed by the simulation and NPC layers.
package content

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ShipKind separates mobile ships from stations
type ShipKind string

const (
	KindShip    ShipKind = "ship"
	KindStation ShipKind = "station"
)

// SlotKind restricts which armaments may occupy a slot
type SlotKind string

const (
	SlotNormal  SlotKind = "normal"
	SlotUtility SlotKind = "utility"
	SlotMine    SlotKind = "mine"
	SlotLarge   SlotKind = "large"
	SlotMining  SlotKind = "mining"
)

// Usage describes how an armament is driven by the tick
type Usage string

const (
	UsagePassive Usage = "passive"
	UsageActive  Usage = "active"
	UsageToggle  Usage = "toggle"
)

// BehaviorKind selects the armament family implementation
type BehaviorKind string

const (
	BehaviorShield   BehaviorKind = "shield"
	BehaviorLaser    BehaviorKind = "laser"
	BehaviorMining   BehaviorKind = "mining"
	BehaviorMissile  BehaviorKind = "missile"
	BehaviorMine     BehaviorKind = "mine"
	BehaviorCloak    BehaviorKind = "cloak"
	BehaviorBooster  BehaviorKind = "booster"
	BehaviorRepairer BehaviorKind = "repairer"
)

// Hardpoint is a station-mounted auto-firing weapon
type Hardpoint struct {
	OffsetX float64 `yaml:"offsetX"`
	OffsetY float64 `yaml:"offsetY"`
	Reload  int     `yaml:"reload"`
	Range   float64 `yaml:"range"`
	Damage  float64 `yaml:"damage"`
	Speed   float64 `yaml:"speed"`
	Radius  float64 `yaml:"radius"`
	Life    int     `yaml:"life"`
}

// ShipDef contains the static statistics of a ship or station
type ShipDef struct {
	Name          string      `yaml:"name"`
	Kind          ShipKind    `yaml:"kind"`
	Radius        float64     `yaml:"radius"`
	MaxHealth     float64     `yaml:"maxHealth"`
	MaxEnergy     float64     `yaml:"maxEnergy"`
	EnergyRegen   float64     `yaml:"energyRegen"`
	HealthRegen   float64     `yaml:"healthRegen"`
	MinSpeed      float64     `yaml:"minSpeed"`
	MaxSpeed      float64     `yaml:"maxSpeed"`
	SpeedStep     float64     `yaml:"speedStep"`
	TurnRate      float64     `yaml:"turnRate"`
	WarpFrames    int         `yaml:"warpFrames"`
	CargoCapacity float64     `yaml:"cargoCapacity"`
	Price         int         `yaml:"price"`
	Slots         []SlotKind  `yaml:"slots"`
	Hardpoints    []Hardpoint `yaml:"hardpoints"`

	PrimaryReload int     `yaml:"primaryReload"`
	PrimaryDamage float64 `yaml:"primaryDamage"`
	PrimarySpeed  float64 `yaml:"primarySpeed"`
	PrimaryRadius float64 `yaml:"primaryRadius"`
	PrimaryLife   int     `yaml:"primaryLife"`
	PrimaryEnergy float64 `yaml:"primaryEnergy"`
}

// IsStation reports whether the definition describes a station
func (d ShipDef) IsStation() bool {
	return d.Kind == KindStation
}

// ArmamentDef describes an equippable secondary armament
type ArmamentDef struct {
	Name        string       `yaml:"name"`
	Slot        SlotKind     `yaml:"slot"`
	Behavior    BehaviorKind `yaml:"behavior"`
	Usage       Usage        `yaml:"usage"`
	EnergyCost  float64      `yaml:"energyCost"`
	Cooldown    int          `yaml:"cooldown"`
	MaxAmmo     int          `yaml:"maxAmmo"`
	Damage      float64      `yaml:"damage"`
	Range       float64      `yaml:"range"`
	Amount      float64      `yaml:"amount"`
	Effect      int          `yaml:"effect"`
	Missile     int          `yaml:"missile"`
	Mine        int          `yaml:"mine"`
	Price       int          `yaml:"price"`
	NPCEligible bool         `yaml:"npcEligible"`
}

// MissileDef describes a secondary projectile with acceleration and guidance
type MissileDef struct {
	Name         string  `yaml:"name"`
	Speed        float64 `yaml:"speed"`
	CruiseSpeed  float64 `yaml:"cruiseSpeed"`
	Acceleration float64 `yaml:"acceleration"`
	TurnRate     float64 `yaml:"turnRate"`
	Damage       float64 `yaml:"damage"`
	Radius       float64 `yaml:"radius"`
	Life         int     `yaml:"life"`
	HitEffect    int     `yaml:"hitEffect"`
	ExpireEffect int     `yaml:"expireEffect"`
}

// MineDef describes a proximity mine
type MineDef struct {
	Name          string  `yaml:"name"`
	Damage        float64 `yaml:"damage"`
	TriggerRadius float64 `yaml:"triggerRadius"`
	Life          int     `yaml:"life"`
	Effect        int     `yaml:"effect"`
}

// AsteroidDef describes a minable asteroid type
type AsteroidDef struct {
	Name         string  `yaml:"name"`
	Radius       float64 `yaml:"radius"`
	MaxResources float64 `yaml:"maxResources"`
	Resource     string  `yaml:"resource"`
}

// RecipeDef prices a cargo resource at stations
type RecipeDef struct {
	Resource string `yaml:"resource"`
	Price    int    `yaml:"price"`
}

// Effect indices shared by the engine and the renderer
const (
	EffectExplosion = iota
	EffectSmallExplosion
	EffectLaserBeam
	EffectMiningBeam
	EffectMineBlast
	EffectWarp
	EffectPickup
)

// Tables is the full read-only content set
type Tables struct {
	Ships     []ShipDef     `yaml:"ships"`
	Armaments []ArmamentDef `yaml:"armaments"`
	Missiles  []MissileDef  `yaml:"missiles"`
	Mines     []MineDef     `yaml:"mines"`
	Asteroids []AsteroidDef `yaml:"asteroids"`
	Recipes   []RecipeDef   `yaml:"recipes"`

	armamentsByName map[string]int
}

// ErrInvalidTables is returned when cross references do not resolve
var ErrInvalidTables = errors.New("invalid content tables")

// LoadFile reads content tables from a YAML file
func LoadFile(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read content file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content tables and validates them
func Parse(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse content file: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks internal references and builds lookup indices
func (t *Tables) Validate() error {
	if len(t.Ships) == 0 {
		return fmt.Errorf("%w: no ship definitions", ErrInvalidTables)
	}
	t.armamentsByName = make(map[string]int, len(t.Armaments))
	for i, a := range t.Armaments {
		if _, dup := t.armamentsByName[a.Name]; dup {
			return fmt.Errorf("%w: duplicate armament %q", ErrInvalidTables, a.Name)
		}
		t.armamentsByName[a.Name] = i
		switch a.Behavior {
		case BehaviorMissile:
			if a.Missile < 0 || a.Missile >= len(t.Missiles) {
				return fmt.Errorf("%w: armament %q references missile %d", ErrInvalidTables, a.Name, a.Missile)
			}
		case BehaviorMine:
			if a.Mine < 0 || a.Mine >= len(t.Mines) {
				return fmt.Errorf("%w: armament %q references mine %d", ErrInvalidTables, a.Name, a.Mine)
			}
		case BehaviorShield, BehaviorLaser, BehaviorMining, BehaviorCloak, BehaviorBooster, BehaviorRepairer:
		default:
			return fmt.Errorf("%w: armament %q has unknown behavior %q", ErrInvalidTables, a.Name, a.Behavior)
		}
	}
	for _, s := range t.Ships {
		if s.Radius <= 0 || s.MaxHealth <= 0 {
			return fmt.Errorf("%w: ship %q needs a positive radius and health", ErrInvalidTables, s.Name)
		}
	}
	return nil
}

// Ship returns the ship definition at index i
func (t *Tables) Ship(i int) (ShipDef, bool) {
	if i < 0 || i >= len(t.Ships) {
		return ShipDef{}, false
	}
	return t.Ships[i], true
}

// ShipByName returns the index of a ship definition
func (t *Tables) ShipByName(name string) (int, bool) {
	for i, s := range t.Ships {
		if s.Name == name {
			return i, true
		}
	}
	return 0, false
}

// Armament returns the armament definition at index i
func (t *Tables) Armament(i int) (ArmamentDef, bool) {
	if i < 0 || i >= len(t.Armaments) {
		return ArmamentDef{}, false
	}
	return t.Armaments[i], true
}

// ArmamentByName resolves an armament name to its index
func (t *Tables) ArmamentByName(name string) (int, bool) {
	if t.armamentsByName == nil {
		_ = t.Validate()
	}
	i, ok := t.armamentsByName[name]
	return i, ok
}

// Missile returns the missile definition at index i
func (t *Tables) Missile(i int) (MissileDef, bool) {
	if i < 0 || i >= len(t.Missiles) {
		return MissileDef{}, false
	}
	return t.Missiles[i], true
}

// Mine returns the mine definition at index i
func (t *Tables) Mine(i int) (MineDef, bool) {
	if i < 0 || i >= len(t.Mines) {
		return MineDef{}, false
	}
	return t.Mines[i], true
}

// Asteroid returns the asteroid definition at index i
func (t *Tables) Asteroid(i int) (AsteroidDef, bool) {
	if i < 0 || i >= len(t.Asteroids) {
		return AsteroidDef{}, false
	}
	return t.Asteroids[i], true
}

// Price returns the station buy price of a cargo resource
func (t *Tables) Price(resource string) (int, bool) {
	for _, r := range t.Recipes {
		if r.Resource == resource {
			return r.Price, true
		}
	}
	return 0, false
}

// Fits reports whether an armament may be equipped in a slot kind.
// Utility armaments fit any slot; everything else needs an exact match.
func Fits(slot SlotKind, a ArmamentDef) bool {
	return a.Slot == slot || a.Slot == SlotUtility
}
