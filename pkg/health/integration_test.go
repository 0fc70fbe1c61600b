// pkg/health/integration_test.go
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opd-ai/go-starsector/pkg/config"
	"github.com/opd-ai/go-starsector/pkg/content"
	"github.com/opd-ai/go-starsector/pkg/logging"
	"github.com/opd-ai/go-starsector/pkg/network"
	"github.com/opd-ai/go-starsector/pkg/peer"
)

// unreachableDirectory fails every call like a disconnected NATS KV bucket
type unreachableDirectory struct{}

func (unreachableDirectory) Announce(context.Context, peer.Entry) error {
	return errors.New("directory unreachable")
}

func (unreachableDirectory) Live(context.Context) ([]peer.Entry, error) {
	return nil, errors.New("directory unreachable")
}

// TestHealthCheckIntegration wires the checks to a real scheduler, game
// server and peer roster
func TestHealthCheckIntegration(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Grid = config.GridConfig{Cols: 1, Rows: 1, SectorSize: 1000}
	cfg.NPC.PerSector = 0

	u, err := network.NewUniverse(cfg, content.Default(), logging.Discard())
	if err != nil {
		t.Fatalf("NewUniverse() error = %v", err)
	}
	sched := network.NewScheduler(u, cfg.NetworkConfig.TickRate, 16, logging.Discard())
	server := network.NewGameServer(sched, cfg, nil, logging.Discard())
	roster := peer.NewRoster(unreachableDirectory{})

	healthChecker := NewHealthChecker()
	healthChecker.AddCheck(NewTickLoopHealthCheck(sched.Alive, time.Second))
	healthChecker.AddCheck(NewListenerHealthCheck(server.ListenerAddress))
	healthChecker.AddCheck(NewDirectoryHealthCheck(roster.Healthy))

	t.Run("health checks before server start", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		health := healthChecker.CheckHealth(ctx)

		if health.Checks["tick_loop"].Status != StatusUnhealthy {
			t.Error("Tick loop should be unhealthy before the first tick")
		}
		if health.Checks["listener"].Status != StatusUnhealthy {
			t.Error("Listener should be unhealthy before serving")
		}
		if health.Checks["peer_directory"].Status != StatusHealthy {
			t.Error("Directory should be healthy until a refresh fails")
		}
		if health.Status != StatusUnhealthy {
			t.Error("Overall status should be unhealthy before server start")
		}
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- server.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-served
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !server.Listening() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	sched.Step(context.Background())

	t.Run("health checks after server start", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/ready", nil)
		w := httptest.NewRecorder()

		healthChecker.ReadinessHandler(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected status code %d, got %d", http.StatusOK, w.Code)
		}

		var response HealthStatus
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		for name, check := range response.Checks {
			if check.Status != StatusHealthy {
				t.Errorf("Check %s unhealthy: %s", name, check.Message)
			}
		}
	})

	t.Run("directory failure", func(t *testing.T) {
		if err := roster.Refresh(context.Background()); err == nil {
			t.Fatal("Refresh() should fail against an unreachable directory")
		}
		health := healthChecker.CheckHealth(context.Background())
		if health.Checks["peer_directory"].Status != StatusUnhealthy {
			t.Error("Directory should be unhealthy after a failed refresh")
		}
		if health.Status != StatusUnhealthy {
			t.Error("Overall status should follow the directory")
		}
	})
}

// TestHealthCheckWithFailures checks the readiness report of a failing component
func TestHealthCheckWithFailures(t *testing.T) {
	healthChecker := NewHealthChecker()

	failingCheck := &mockHealthCheck{
		name:    "failing_component",
		healthy: false,
		err:     fmt.Errorf("component is down"),
	}
	healthChecker.AddCheck(failingCheck)

	t.Run("readiness endpoint with failures", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/ready", nil)
		w := httptest.NewRecorder()

		healthChecker.ReadinessHandler(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status code %d, got %d", http.StatusServiceUnavailable, w.Code)
		}

		var response HealthStatus
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if response.Status != StatusUnhealthy {
			t.Errorf("Expected status 'unhealthy', got %s", response.Status)
		}
		if response.Checks["failing_component"].Message != "component is down" {
			t.Errorf("Unexpected message %q", response.Checks["failing_component"].Message)
		}
	})
}

// TestMemoryHealthCheckIntegration reads the real heap
func TestMemoryHealthCheckIntegration(t *testing.T) {
	healthChecker := NewHealthChecker()
	healthChecker.AddCheck(NewMemoryHealthCheck(10000, nil))

	t.Run("memory check with high limit", func(t *testing.T) {
		health := healthChecker.CheckHealth(context.Background())
		if health.Checks["memory"].Status != StatusHealthy {
			t.Errorf("Memory check should be healthy with high limit, got: %s",
				health.Checks["memory"].Message)
		}
	})

	healthChecker.RemoveCheck("memory")
	healthChecker.AddCheck(NewMemoryHealthCheck(50, func() int64 { return 100 }))

	t.Run("memory check with low limit", func(t *testing.T) {
		health := healthChecker.CheckHealth(context.Background())
		if health.Checks["memory"].Status != StatusUnhealthy {
			t.Error("Memory check should be unhealthy with low limit")
		}
		if health.Status != StatusUnhealthy {
			t.Error("Overall status should be unhealthy due to memory limit")
		}
	})
}
