// pkg/persist/checkpointer.go
package persist

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/opd-ai/go-starsector/pkg/entity"
	"github.com/opd-ai/go-starsector/pkg/logging"
	"github.com/opd-ai/go-starsector/pkg/world"
)

// Retrier runs an operation with retries, typically through a circuit breaker
type Retrier interface {
	ExecuteWithRetry(ctx context.Context, op func() error) error
}

// Checkpointer snapshots human players on the tick goroutine and writes
// them in the background. A failed batch is logged and simply rewritten on
// the next period; the live state is never touched.
type Checkpointer struct {
	Store   Store
	Retrier Retrier
	Logger  *logging.Logger

	inflight atomic.Bool
	wg       sync.WaitGroup
	saved    atomic.Int64
	failed   atomic.Int64
}

// NewCheckpointer creates a checkpointer. A nil retrier runs each write once.
func NewCheckpointer(store Store, retrier Retrier, logger *logging.Logger) *Checkpointer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Checkpointer{Store: store, Retrier: retrier, Logger: logger}
}

// Collect encodes every human player of the given sectors. It must run on
// the goroutine that owns the states.
func (c *Checkpointer) Collect(ctx context.Context, states ...*world.State) []Record {
	var out []Record
	for _, ws := range states {
		for _, id := range ws.SortedPlayerIDs() {
			p := ws.Players[id]
			if p.IsNPC {
				continue
			}
			r, err := Encode(p, ws.Sector)
			if err != nil {
				c.Logger.Warn(ctx, "skipping checkpoint", "player", id, "error", err)
				continue
			}
			out = append(out, r)
		}
	}
	return out
}

// Checkpoint collects the given sectors and writes the batch in the
// background. It returns false without collecting when the previous batch is
// still being written.
func (c *Checkpointer) Checkpoint(ctx context.Context, states ...*world.State) bool {
	if !c.inflight.CompareAndSwap(false, true) {
		c.Logger.Debug(ctx, "previous checkpoint still in flight")
		return false
	}
	batch := c.Collect(ctx, states...)
	if len(batch) == 0 {
		c.inflight.Store(false)
		return true
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.inflight.Store(false)
		c.write(ctx, batch)
	}()
	return true
}

func (c *Checkpointer) write(ctx context.Context, batch []Record) {
	for _, r := range batch {
		save := func() error { return c.Store.Save(ctx, r) }
		var err error
		if c.Retrier != nil {
			err = c.Retrier.ExecuteWithRetry(ctx, save)
		} else {
			err = save()
		}
		if err != nil {
			c.failed.Add(1)
			c.Logger.Error(ctx, "checkpoint write failed", err, "player", r.ID, "sector", r.Sector)
			continue
		}
		c.saved.Add(1)
	}
}

// Retire writes one player that is leaving this process without a session,
// such as a disconnected player. The write runs in the background.
func (c *Checkpointer) Retire(ctx context.Context, p *entity.Player, sector int) {
	r, err := Encode(p, sector)
	if err != nil {
		c.Logger.Warn(ctx, "cannot retire player", "player", p.ID, "error", err)
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.write(ctx, []Record{r})
	}()
}

// Wait blocks until the in-flight batch and retired players have been written
func (c *Checkpointer) Wait() {
	c.wg.Wait()
}

// Stats returns how many records were written and how many failed
func (c *Checkpointer) Stats() (saved, failed int64) {
	return c.saved.Load(), c.failed.Load()
}
