// pkg/peer/directory_test.go
package peer

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryDirectory_Expiry(t *testing.T) {
	now := time.Unix(0, 0)
	dir := NewMemoryDirectory(15 * time.Second)
	dir.Now = func() time.Time { return now }
	ctx := context.Background()

	dir.Announce(ctx, NewEntry("beta", "b:1"))
	now = now.Add(10 * time.Second)
	dir.Announce(ctx, NewEntry("alpha", "a:1"))

	live, _ := dir.Live(ctx)
	if len(live) != 2 || live[0].Name != "alpha" || live[1].Name != "beta" {
		t.Fatalf("Live() = %+v", live)
	}
	if live[1].ControlSubject != "beta" || live[1].BroadcastSubject != "broadcast" {
		t.Errorf("entry subjects = %+v", live[1])
	}

	now = now.Add(6 * time.Second)
	live, _ = dir.Live(ctx)
	if len(live) != 1 || live[0].Name != "alpha" {
		t.Errorf("Live() after beta went quiet = %+v", live)
	}
}

func TestHeartbeat_AnnouncesBeforeStopping(t *testing.T) {
	dir := NewMemoryDirectory(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Heartbeat(ctx, dir, NewEntry("alpha", "a:1"), time.Hour, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Heartbeat() error = %v", err)
	}
	if live, _ := dir.Live(context.Background()); len(live) != 1 {
		t.Errorf("Live() = %+v, expected one announcement", live)
	}
}

type brokenDirectory struct{}

func (brokenDirectory) Announce(context.Context, Entry) error { return errors.New("down") }
func (brokenDirectory) Live(context.Context) ([]Entry, error) { return nil, errors.New("down") }

func TestRoster(t *testing.T) {
	dir := NewMemoryDirectory(time.Minute)
	ctx := context.Background()
	dir.Announce(ctx, NewEntry("beta", "b:1"))
	dir.Announce(ctx, NewEntry("alpha", "a:1"))

	r := NewRoster(dir)
	if _, ok := r.Lookup("alpha"); ok {
		t.Error("an unrefreshed roster must be empty")
	}
	if err := r.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if e, ok := r.Lookup("beta"); !ok || e.PublicAddr != "b:1" {
		t.Errorf("Lookup(beta) = %+v, %v", e, ok)
	}
	if entries := r.Entries(); len(entries) != 2 || entries[0].Name != "alpha" {
		t.Errorf("Entries() = %+v", entries)
	}
	if r.Healthy() != nil {
		t.Error("roster should be healthy")
	}

	broken := NewRoster(brokenDirectory{})
	if err := broken.Refresh(ctx); err == nil || broken.Healthy() == nil {
		t.Error("a failing directory must mark the roster unhealthy")
	}
}

func TestMemoryTransport(t *testing.T) {
	hub := NewHub()
	a, b, c := hub.Transport("a"), hub.Transport("b"), hub.Transport("c")
	ctx := context.Background()

	b.Handle("echo", func(_ context.Context, data []byte) ([]byte, error) { return data, nil })
	b.Handle("fail", func(context.Context, []byte) ([]byte, error) { return nil, errors.New("nope") })

	got := map[string]int{}
	for name, tr := range map[string]*MemoryTransport{"a": a, "b": b, "c": c} {
		name := name
		tr.Subscribe("news", func([]byte) { got[name]++ })
	}

	tests := []struct {
		name  string
		peer  string
		topic string
		want  error
	}{
		{"reply", "b", "echo", nil},
		{"remote error", "b", "fail", ErrRemote},
		{"no handler", "b", "missing", ErrPeerUnavailable},
		{"unknown peer", "z", "echo", ErrPeerUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := a.Request(ctx, tt.peer, tt.topic, []byte("hi"))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Request() error = %v, expected %v", err, tt.want)
			}
			if tt.want == nil && string(out) != "hi" {
				t.Errorf("Request() = %q", out)
			}
		})
	}

	hub.Down("c")
	if err := a.Publish("news", []byte("x")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got["a"] != 1 || got["b"] != 1 || got["c"] != 0 {
		t.Errorf("deliveries = %v, expected a and b only", got)
	}
	if _, err := c.Request(ctx, "b", "echo", nil); !errors.Is(err, ErrPeerUnavailable) {
		t.Errorf("Request() from a downed peer error = %v", err)
	}

	hub.Up("c")
	a.Publish("news", nil)
	if got["c"] != 1 {
		t.Errorf("peer c missed a broadcast after coming back")
	}
}
