// pkg/session/session_test.go
package session

import (
	"errors"
	"reflect"
	"testing"

	"github.com/opd-ai/go-starsector/pkg/entity"
	"github.com/opd-ai/go-starsector/pkg/sector"
)

func TestSession_Owns(t *testing.T) {
	s := New(5, "ace", 0)
	tests := []struct {
		name string
		s    *Session
		pid  entity.ID
		want bool
	}{
		{"own player", s, 5, true},
		{"other player", s, 6, false},
		{"zero id", &Session{}, 0, false},
		{"nil session", nil, 5, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.s.Owns(tc.pid); got != tc.want {
				t.Errorf("Owns(%d) = %v, expected %v", tc.pid, got, tc.want)
			}
		})
	}
}

func TestSession_SnapshotRoundTrip(t *testing.T) {
	s := New(5, "ace", 3)
	s.Visit(1)
	s.Visit(7)
	s.KnownRecipes["hull plate"] = struct{}{}
	s.KnownRecipes["alloy"] = struct{}{}
	s.Target = entity.Target{Kind: entity.KindPlayer, ID: 9}
	s.QueueActivation(2)

	snap := s.Snapshot()
	if !reflect.DeepEqual(snap.Visited, []sector.ID{1, 3, 7}) {
		t.Errorf("Visited = %v, expected sorted [1 3 7]", snap.Visited)
	}
	if !reflect.DeepEqual(snap.KnownRecipes, []string{"alloy", "hull plate"}) {
		t.Errorf("KnownRecipes = %v", snap.KnownRecipes)
	}

	back := FromSnapshot(snap)
	if back.ID != s.ID || back.PlayerID != 5 || back.Sector != 7 || back.Target != s.Target {
		t.Errorf("restored session = %+v", back)
	}
	if !reflect.DeepEqual(back.Visited, s.Visited) {
		t.Errorf("Visited = %v, expected %v", back.Visited, s.Visited)
	}
	if len(back.PendingActivations) != 0 {
		t.Error("pending activations must not survive a snapshot")
	}
}

func TestFromSnapshot_AlwaysVisitsCurrentSector(t *testing.T) {
	back := FromSnapshot(Snapshot{PlayerID: 1, Sector: 4})
	if _, ok := back.Visited[4]; !ok {
		t.Error("current sector should be in the visited set")
	}
	if back.ID == "" {
		t.Error("expected a generated session id")
	}
}

func TestSession_Activations(t *testing.T) {
	s := New(1, "a", 0)
	s.QueueActivation(1)
	s.QueueActivation(1)
	s.QueueActivation(3)
	got := s.TakeActivations()
	if !reflect.DeepEqual(got, []int{1, 3}) {
		t.Errorf("TakeActivations() = %v", got)
	}
	if len(s.TakeActivations()) != 0 {
		t.Error("activations should be cleared after taking them")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := &Session{ID: "b", PlayerID: 1}
	b := &Session{ID: "a", PlayerID: 2}
	if err := r.Add(a); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := r.Add(b); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := r.Add(&Session{ID: "c", PlayerID: 1}); !errors.Is(err, ErrDuplicateSession) {
		t.Errorf("duplicate player error = %v", err)
	}
	if err := r.Add(&Session{ID: "a", PlayerID: 3}); !errors.Is(err, ErrDuplicateSession) {
		t.Errorf("duplicate id error = %v", err)
	}

	if got, ok := r.ByPlayer(2); !ok || got != b {
		t.Errorf("ByPlayer(2) = %v, %v", got, ok)
	}
	if got, ok := r.ByID("b"); !ok || got != a {
		t.Errorf("ByID(b) = %v, %v", got, ok)
	}

	var order []string
	r.Each(func(s *Session) { order = append(order, s.ID) })
	if !reflect.DeepEqual(order, []string{"a", "b"}) {
		t.Errorf("Each order = %v", order)
	}

	if _, ok := r.Remove("b"); !ok {
		t.Fatal("Remove(b) failed")
	}
	if _, ok := r.ByPlayer(1); ok {
		t.Error("removed session still indexed by player")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, expected 1", r.Len())
	}
	if _, ok := r.Remove("b"); ok {
		t.Error("second Remove should report nothing removed")
	}
}
