// Package health serves the liveness and readiness probes of a sector
// server. Readiness runs every registered check: the tick loop is advancing,
// the game listener is bound, the peer directory answers and memory stays
// under its limit.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status values reported by the probes
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// readinessTimeout bounds one readiness request
const readinessTimeout = 5 * time.Second

// HealthCheck is one component probe
type HealthCheck interface {
	// Name returns the unique name of this health check
	Name() string
	// Check returns an error if the component is unhealthy
	Check(ctx context.Context) error
}

// HealthStatus is the aggregated readiness report
type HealthStatus struct {
	Status string                     `json:"status"`
	Checks map[string]ComponentHealth `json:"checks"`
}

// ComponentHealth is the result of one check
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthChecker holds the registered checks
type HealthChecker struct {
	checks map[string]HealthCheck
	mu     sync.RWMutex
}

// NewHealthChecker creates an empty checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]HealthCheck),
	}
}

// AddCheck registers a check, replacing any check with the same name
func (hc *HealthChecker) AddCheck(check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[check.Name()] = check
}

// RemoveCheck removes a check by name
func (hc *HealthChecker) RemoveCheck(name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	delete(hc.checks, name)
}

// CheckHealth runs every check concurrently. The overall status is healthy
// only if all of them pass.
func (hc *HealthChecker) CheckHealth(ctx context.Context) HealthStatus {
	hc.mu.RLock()
	checks := make([]HealthCheck, 0, len(hc.checks))
	for _, c := range hc.checks {
		checks = append(checks, c)
	}
	hc.mu.RUnlock()

	status := HealthStatus{
		Status: StatusHealthy,
		Checks: make(map[string]ComponentHealth, len(checks)),
	}
	var mu sync.Mutex
	var g errgroup.Group
	for _, check := range checks {
		g.Go(func() error {
			result := ComponentHealth{Status: StatusHealthy}
			if err := check.Check(ctx); err != nil {
				result = ComponentHealth{Status: StatusUnhealthy, Message: err.Error()}
			}
			mu.Lock()
			defer mu.Unlock()
			status.Checks[check.Name()] = result
			if result.Status != StatusHealthy {
				status.Status = StatusUnhealthy
			}
			return nil
		})
	}
	g.Wait()
	return status
}

// LivenessHandler answers 200 while the process can serve HTTP at all
func (hc *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

// ReadinessHandler runs every check and answers 503 if any of them fails
func (hc *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	health := hc.CheckHealth(ctx)

	w.Header().Set("Content-Type", "application/json")
	if health.Status == StatusHealthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(health)
}

// Handler serves /health and /ready
func (hc *HealthChecker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hc.LivenessHandler)
	mux.HandleFunc("/ready", hc.ReadinessHandler)
	return mux
}

// TickLoopHealthCheck fails when the simulation has stopped ticking
type TickLoopHealthCheck struct {
	alive  func(maxAge time.Duration) error
	maxAge time.Duration
}

// NewTickLoopHealthCheck checks that alive reports a tick within maxAge
func NewTickLoopHealthCheck(alive func(maxAge time.Duration) error, maxAge time.Duration) *TickLoopHealthCheck {
	return &TickLoopHealthCheck{alive: alive, maxAge: maxAge}
}

// Name implements HealthCheck
func (t *TickLoopHealthCheck) Name() string {
	return "tick_loop"
}

// Check implements HealthCheck
func (t *TickLoopHealthCheck) Check(ctx context.Context) error {
	if err := t.alive(t.maxAge); err != nil {
		return fmt.Errorf("tick loop stalled: %w", err)
	}
	return nil
}

// ListenerHealthCheck fails until the game listener is bound
type ListenerHealthCheck struct {
	listenerAddr func() string
}

// NewListenerHealthCheck creates a listener check
func NewListenerHealthCheck(listenerAddr func() string) *ListenerHealthCheck {
	return &ListenerHealthCheck{listenerAddr: listenerAddr}
}

// Name implements HealthCheck
func (n *ListenerHealthCheck) Name() string {
	return "listener"
}

// Check implements HealthCheck
func (n *ListenerHealthCheck) Check(ctx context.Context) error {
	if n.listenerAddr() == "" {
		return fmt.Errorf("game listener is not active")
	}
	return nil
}

// DirectoryHealthCheck fails when the peer directory has not been read
// recently
type DirectoryHealthCheck struct {
	healthy func() error
}

// NewDirectoryHealthCheck wraps a directory status function
func NewDirectoryHealthCheck(healthy func() error) *DirectoryHealthCheck {
	return &DirectoryHealthCheck{healthy: healthy}
}

// Name implements HealthCheck
func (d *DirectoryHealthCheck) Name() string {
	return "peer_directory"
}

// Check implements HealthCheck
func (d *DirectoryHealthCheck) Check(ctx context.Context) error {
	if err := d.healthy(); err != nil {
		return fmt.Errorf("peer directory: %w", err)
	}
	return nil
}

// MemoryHealthCheck fails when heap usage exceeds a limit
type MemoryHealthCheck struct {
	maxMemoryMB    int64
	getMemoryUsage func() int64
}

// NewMemoryHealthCheck creates a memory check. A nil usage function reads
// the runtime heap.
func NewMemoryHealthCheck(maxMemoryMB int64, getMemoryUsage func() int64) *MemoryHealthCheck {
	if getMemoryUsage == nil {
		getMemoryUsage = HeapMB
	}
	return &MemoryHealthCheck{
		maxMemoryMB:    maxMemoryMB,
		getMemoryUsage: getMemoryUsage,
	}
}

// Name implements HealthCheck
func (m *MemoryHealthCheck) Name() string {
	return "memory"
}

// Check implements HealthCheck
func (m *MemoryHealthCheck) Check(ctx context.Context) error {
	currentMB := m.getMemoryUsage()
	if currentMB > m.maxMemoryMB {
		return fmt.Errorf("memory usage %dMB exceeds limit %dMB", currentMB, m.maxMemoryMB)
	}
	return nil
}

// HeapMB returns the allocated heap in megabytes
func HeapMB() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.Alloc / 1024 / 1024)
}
