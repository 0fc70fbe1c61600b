// pkg/entity/entity_test.go
package entity

import (
	"encoding/json"
	"testing"

	"github.com/opd-ai/go-starsector/pkg/physics"
)

func TestAnchor_JSONShape(t *testing.T) {
	tests := []struct {
		name     string
		anchor   Anchor
		expected string
	}{
		{
			name:     "player",
			anchor:   PlayerAnchor(42),
			expected: `{"kind":"player","value":42}`,
		},
		{
			name:     "asteroid",
			anchor:   AsteroidAnchor(7),
			expected: `{"kind":"asteroid","value":7}`,
		},
		{
			name:     "absolute",
			anchor:   AbsoluteAnchor(physics.Vector2D{X: 1.5, Y: -2}, 0.25),
			expected: `{"kind":"absolute","value":{"x":1.5,"y":-2,"heading":0.25}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.anchor)
			if err != nil {
				t.Fatalf("Marshal() failed: %v", err)
			}
			if string(data) != tt.expected {
				t.Errorf("Marshal() = %s, expected %s", data, tt.expected)
			}

			var decoded Anchor
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("Unmarshal() failed: %v", err)
			}
			if decoded != tt.anchor {
				t.Errorf("Unmarshal() = %+v, expected %+v", decoded, tt.anchor)
			}
		})
	}
}

func TestAnchor_UnknownKind(t *testing.T) {
	if _, err := json.Marshal(Anchor{Kind: "planet"}); err == nil {
		t.Error("expected error for unknown anchor kind")
	}
	var a Anchor
	if err := json.Unmarshal([]byte(`{"kind":"planet","value":1}`), &a); err == nil {
		t.Error("expected error decoding unknown anchor kind")
	}
}

func TestEffectTrigger_OmitsMissingTarget(t *testing.T) {
	data, err := json.Marshal(EffectTrigger{EffectIndex: 3, From: PlayerAnchor(1)})
	if err != nil {
		t.Fatal(err)
	}
	expected := `{"effectIndex":3,"from":{"kind":"player","value":1}}`
	if string(data) != expected {
		t.Errorf("Marshal() = %s, expected %s", data, expected)
	}
}

func TestAsteroid_Extract(t *testing.T) {
	a := &Asteroid{ID: 1, Resources: 1}

	if got := a.Extract(0.5); got != 0.5 {
		t.Errorf("first Extract() = %v, expected 0.5", got)
	}
	if got := a.Extract(0.75); got != 0.5 {
		t.Errorf("second Extract() = %v, expected 0.5", got)
	}
	if a.Resources != 0 || !a.Depleted {
		t.Errorf("expected depleted asteroid at 0, got resources=%v depleted=%v", a.Resources, a.Depleted)
	}
	if got := a.Extract(1); got != 0 {
		t.Errorf("Extract() on depleted asteroid = %v, expected 0", got)
	}
}

func TestTarget_JSON(t *testing.T) {
	var target Target
	if err := json.Unmarshal([]byte(`["asteroid", 12]`), &target); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if target.Kind != KindAsteroid || target.ID != 12 {
		t.Errorf("Unmarshal() = %+v", target)
	}
	if err := json.Unmarshal([]byte(`{"kind":"player"}`), &target); err == nil {
		t.Error("expected error for object form")
	}
}
