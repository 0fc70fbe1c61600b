// pkg/content/defaults.go
package content

// Default returns the built-in content tables used when no content file is configured
func Default() *Tables {
	t := &Tables{
		Ships: []ShipDef{
			{
				Name: "Spartan", Kind: KindShip, Radius: 20,
				MaxHealth: 100, MaxEnergy: 100, EnergyRegen: 0.1, HealthRegen: 0,
				MinSpeed: -2, MaxSpeed: 10, SpeedStep: 0.2, TurnRate: 0.05,
				WarpFrames: 120, CargoCapacity: 100, Price: 0,
				Slots:         []SlotKind{SlotMining, SlotNormal},
				PrimaryReload: 20, PrimaryDamage: 10, PrimarySpeed: 15, PrimaryRadius: 2, PrimaryLife: 60, PrimaryEnergy: 5,
			},
			{
				Name: "Fighter", Kind: KindShip, Radius: 18,
				MaxHealth: 60, MaxEnergy: 80, EnergyRegen: 0.08, HealthRegen: 0.01,
				MinSpeed: -2, MaxSpeed: 12, SpeedStep: 0.3, TurnRate: 0.07,
				WarpFrames: 120, CargoCapacity: 20, Price: 500,
				Slots:         []SlotKind{SlotNormal, SlotNormal},
				PrimaryReload: 15, PrimaryDamage: 6, PrimarySpeed: 18, PrimaryRadius: 2, PrimaryLife: 50, PrimaryEnergy: 3,
			},
			{
				Name: "Striker", Kind: KindShip, Radius: 24,
				MaxHealth: 160, MaxEnergy: 150, EnergyRegen: 0.12, HealthRegen: 0,
				MinSpeed: -1, MaxSpeed: 8, SpeedStep: 0.15, TurnRate: 0.04,
				WarpFrames: 150, CargoCapacity: 60, Price: 1500,
				Slots:         []SlotKind{SlotNormal, SlotLarge, SlotMine, SlotUtility},
				PrimaryReload: 25, PrimaryDamage: 14, PrimarySpeed: 14, PrimaryRadius: 3, PrimaryLife: 70, PrimaryEnergy: 6,
			},
			{
				Name: "Outpost", Kind: KindStation, Radius: 120,
				MaxHealth: 5000, MaxEnergy: 1000, EnergyRegen: 1, HealthRegen: 0.2,
				Slots: []SlotKind{},
				Hardpoints: []Hardpoint{
					{OffsetX: 80, OffsetY: 0, Reload: 30, Range: 1500, Damage: 12, Speed: 20, Radius: 3, Life: 80},
					{OffsetX: -80, OffsetY: 0, Reload: 30, Range: 1500, Damage: 12, Speed: 20, Radius: 3, Life: 80},
					{OffsetX: 0, OffsetY: 80, Reload: 45, Range: 2000, Damage: 20, Speed: 25, Radius: 4, Life: 90},
				},
			},
		},
		Armaments: []ArmamentDef{
			{Name: "Basic mining laser", Slot: SlotMining, Behavior: BehaviorMining, Usage: UsageActive,
				EnergyCost: 0.5, Cooldown: 0, Range: 400, Amount: 0.5, Effect: EffectMiningBeam, Price: 0},
			{Name: "Basic shield booster", Slot: SlotNormal, Behavior: BehaviorShield, Usage: UsagePassive,
				EnergyCost: 0.2, Amount: 0.1, Price: 200, NPCEligible: true},
			{Name: "Light laser", Slot: SlotNormal, Behavior: BehaviorLaser, Usage: UsageActive,
				EnergyCost: 8, Cooldown: 30, Damage: 7, Range: 600, Effect: EffectLaserBeam, Price: 400, NPCEligible: true},
			{Name: "Javelin missile", Slot: SlotNormal, Behavior: BehaviorMissile, Usage: UsageActive,
				EnergyCost: 4, Cooldown: 45, MaxAmmo: 10, Missile: 0, Price: 600, NPCEligible: true},
			{Name: "Heavy torpedo", Slot: SlotLarge, Behavior: BehaviorMissile, Usage: UsageActive,
				EnergyCost: 20, Cooldown: 120, MaxAmmo: 4, Missile: 1, Price: 1200, NPCEligible: true},
			{Name: "Proximity mine", Slot: SlotMine, Behavior: BehaviorMine, Usage: UsageActive,
				EnergyCost: 5, Cooldown: 60, MaxAmmo: 5, Mine: 0, Price: 300, NPCEligible: true},
			{Name: "Cloaking device", Slot: SlotUtility, Behavior: BehaviorCloak, Usage: UsageToggle,
				EnergyCost: 0.3, Price: 2000},
			{Name: "Afterburner", Slot: SlotUtility, Behavior: BehaviorBooster, Usage: UsageActive,
				EnergyCost: 10, Cooldown: 90, Amount: 12, Price: 350, NPCEligible: true},
			{Name: "Hull patcher", Slot: SlotUtility, Behavior: BehaviorRepairer, Usage: UsagePassive,
				Amount: 0.05, Price: 800},
		},
		Missiles: []MissileDef{
			{Name: "Javelin", Speed: 4, CruiseSpeed: 20, Acceleration: 0.5, TurnRate: 0.06,
				Damage: 25, Radius: 6, Life: 180, HitEffect: EffectExplosion, ExpireEffect: EffectSmallExplosion},
			{Name: "Torpedo", Speed: 2, CruiseSpeed: 12, Acceleration: 0.2, TurnRate: 0,
				Damage: 90, Radius: 12, Life: 300, HitEffect: EffectExplosion, ExpireEffect: EffectExplosion},
		},
		Mines: []MineDef{
			{Name: "Proximity", Damage: 40, TriggerRadius: 60, Life: 3600, Effect: EffectMineBlast},
		},
		Asteroids: []AsteroidDef{
			{Name: "Prifecite rock", Radius: 40, MaxResources: 500, Resource: "Prifecite"},
			{Name: "Russanite rock", Radius: 60, MaxResources: 800, Resource: "Russanite"},
		},
		Recipes: []RecipeDef{
			{Resource: "Prifecite", Price: 2},
			{Resource: "Russanite", Price: 4},
		},
	}
	if err := t.Validate(); err != nil {
		panic(err)
	}
	return t
}
