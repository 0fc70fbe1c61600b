// pkg/peer/handoff.go
package peer

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"

	"github.com/opd-ai/go-starsector/pkg/entity"
	"github.com/opd-ai/go-starsector/pkg/logging"
	"github.com/opd-ai/go-starsector/pkg/sector"
	"github.com/opd-ai/go-starsector/pkg/session"
	"github.com/opd-ai/go-starsector/pkg/world"
)

// ErrOccupied is returned when a sector with human players is asked to move
var ErrOccupied = errors.New("sector has human players")

// Breaker guards calls to other peers
type Breaker interface {
	Execute(ctx context.Context, op func() error) error
	Open() bool
}

type passthrough struct{}

func (passthrough) Execute(_ context.Context, op func() error) error { return op() }
func (passthrough) Open() bool                                       { return false }

// Result is the outcome of one outbound player transfer. On success the
// client must reconnect to Address and resume with Key. On failure Player
// must be put back into its source sector.
type Result struct {
	Player    *entity.Player
	Session   session.Snapshot
	From      sector.ID
	To        sector.ID
	Kind      Kind
	Key       string
	Address   string
	Err       error
	Retryable bool
}

// SectorResult is the outcome of one outbound sector transfer. On failure
// State must be hosted again.
type SectorResult struct {
	Sector sector.ID
	To     string
	State  *world.State
	Err    error
}

type outbound struct {
	result Result
}

type inbound struct {
	pkg     Package
	expires time.Time
}

// Handoff moves players and sectors between peers. The tick goroutine calls
// Begin and Poll; remote peers reach Accept through the transport; clients
// reach Claim when they reconnect.
//
// A player is live in exactly one place at a time: Begin removes it from the
// source sector, the destination only admits it through a single-use Claim,
// and the client learns the claim key only after the source has let go.
// When the request fails the source takes the player back and any package
// the destination may still hold is never claimed and expires.
type Handoff struct {
	Self      string
	Transport Transport
	Ownership *Ownership
	Roster    *Roster
	Breaker   Breaker
	TimeBox   time.Duration
	Seed      uint64
	Now       func() time.Time
	Logger    *logging.Logger

	mu          deadlock.Mutex
	holding     map[entity.ID]*outbound
	results     []Result
	sectorsOut  map[sector.ID]*world.State
	sectorDone  []SectorResult
	arrivals    []*world.State
	pending     map[string]inbound
	whereabouts map[entity.ID]sector.ID

	wg sync.WaitGroup
}

// NewHandoff creates a handoff for the peer named by ownership
func NewHandoff(t Transport, own *Ownership, roster *Roster, breaker Breaker, timeBox time.Duration, logger *logging.Logger) *Handoff {
	if breaker == nil {
		breaker = passthrough{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handoff{
		Self:        own.Self(),
		Transport:   t,
		Ownership:   own,
		Roster:      roster,
		Breaker:     breaker,
		TimeBox:     timeBox,
		Now:         time.Now,
		Logger:      logger,
		holding:     make(map[entity.ID]*outbound),
		sectorsOut:  make(map[sector.ID]*world.State),
		pending:     make(map[string]inbound),
		whereabouts: make(map[entity.ID]sector.ID),
	}
}

// Register installs the request handlers and broadcast subscriptions
func (h *Handoff) Register() error {
	if err := h.Transport.Handle(TopicPlayerTransfer, h.Accept); err != nil {
		return err
	}
	if err := h.Transport.Handle(TopicSectorTransfer, h.AcceptSector); err != nil {
		return err
	}
	if err := h.Transport.Subscribe(TopicSectorNotification, h.onNotification); err != nil {
		return err
	}
	if err := h.Transport.Subscribe(TopicSectorRemoval, h.onRemoval); err != nil {
		return err
	}
	return h.Transport.Subscribe(TopicPlayerSector, h.onPlayerSector)
}

// Route returns the peer entry that owns sector to
func (h *Handoff) Route(to sector.ID) (Entry, error) {
	owner, ok := h.Ownership.Owner(to)
	if !ok || owner == h.Self {
		return Entry{}, fmt.Errorf("%w: %d", ErrNoRoute, to)
	}
	e, ok := h.Roster.Lookup(owner)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %d owned by %s which is not live", ErrNoRoute, to, owner)
	}
	return e, nil
}

// Begin removes player pid from ws and sends it to the owner of sector to
// in the background. Errors returned here leave ws untouched.
func (h *Handoff) Begin(ctx context.Context, ws *world.State, pid entity.ID, snap session.Snapshot, to sector.ID, kind Kind) error {
	route, err := h.Route(to)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.holding[pid]; ok {
		return fmt.Errorf("%w: player %d", ErrInFlight, pid)
	}
	p, ok := ws.Players[pid]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPlayer, pid)
	}
	snap.Sector = to
	pkg := Package{
		Key:     uuid.NewString(),
		Kind:    kind,
		Sector:  to,
		Session: snap,
		Player:  *p.Clone(),
	}
	if err := pkg.validate(); err != nil {
		return err
	}
	data, err := Encode(pkg)
	if err != nil {
		return err
	}

	ws.RemovePlayer(pid)
	ob := &outbound{result: Result{
		Player:  p,
		Session: snap,
		From:    sector.ID(ws.Sector),
		To:      to,
		Kind:    kind,
		Key:     pkg.Key,
		Address: route.PublicAddr,
	}}
	h.holding[pid] = ob

	h.Logger.Debug(ctx, "handoff started", "player", pid, "from", ws.Sector, "to", to, "peer", route.Name, "kind", kind)
	h.wg.Add(1)
	go h.send(ctx, ob, route.Name, data)
	return nil
}

func (h *Handoff) send(ctx context.Context, ob *outbound, peer string, data []byte) {
	defer h.wg.Done()
	reqCtx, cancel := context.WithTimeout(ctx, h.TimeBox)
	defer cancel()

	err := h.Breaker.Execute(reqCtx, func() error {
		reply, err := h.Transport.Request(reqCtx, peer, TopicPlayerTransfer, data)
		if err != nil {
			return err
		}
		if string(reply) != ob.result.Key {
			return fmt.Errorf("%w: destination acknowledged %q", ErrRemote, reply)
		}
		return nil
	})

	res := ob.result
	if err != nil {
		res.Err = err
		res.Key = ""
		res.Address = ""
		res.Retryable = h.Breaker.Open() ||
			errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, ErrPeerUnavailable)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, res)
}

// Poll returns every transfer that finished since the last call. Successful
// results carry the redirect for the client; failed results hand the player
// back to the caller for reinsertion.
func (h *Handoff) Poll() []Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.results
	h.results = nil
	for _, r := range out {
		delete(h.holding, r.Player.ID)
	}
	slices.SortFunc(out, func(a, b Result) int { return cmp.Compare(a.Player.ID, b.Player.ID) })
	return out
}

// InFlight reports how many players are held awaiting a reply
func (h *Handoff) InFlight() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.holding)
}

// Accept is the player-transfer handler. It buffers the package until the
// client claims it and replies with the key. Replays of the same key are
// acknowledged again without being buffered twice.
func (h *Handoff) Accept(ctx context.Context, data []byte) ([]byte, error) {
	var pkg Package
	if err := Decode(data, &pkg); err != nil {
		return nil, err
	}
	if err := pkg.validate(); err != nil {
		return nil, err
	}
	if owner, ok := h.Ownership.Owner(pkg.Sector); !ok || owner != h.Self {
		return nil, fmt.Errorf("%w: %d is not hosted by %s", ErrNoRoute, pkg.Sector, h.Self)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.pending[pkg.Key]; ok {
		return []byte(pkg.Key), nil
	}
	for key, in := range h.pending {
		if in.pkg.Player.ID == pkg.Player.ID {
			delete(h.pending, key)
		}
	}
	h.pending[pkg.Key] = inbound{pkg: pkg, expires: h.Now().Add(h.TimeBox)}
	h.Logger.Debug(ctx, "transfer buffered", "player", pkg.Player.ID, "sector", pkg.Sector, "kind", pkg.Kind)
	return []byte(pkg.Key), nil
}

// Claim hands out a buffered package exactly once
func (h *Handoff) Claim(key string) (Package, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	in, ok := h.pending[key]
	if !ok {
		return Package{}, false
	}
	delete(h.pending, key)
	if h.Now().After(in.expires) {
		return Package{}, false
	}
	return in.pkg, true
}

// Sweep drops every buffered package that expired before now
func (h *Handoff) Sweep(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for key, in := range h.pending {
		if now.After(in.expires) {
			delete(h.pending, key)
			n++
		}
	}
	if n > 0 {
		h.Logger.Info(context.Background(), "unclaimed transfers expired", "count", n)
	}
	return n
}

// Pending reports how many packages await a claim
func (h *Handoff) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// BeginSector sends the contents of ws to peer to. The caller must already
// have stopped hosting ws. Computer players are dropped.
func (h *Handoff) BeginSector(ctx context.Context, ws *world.State, to string) error {
	id := sector.ID(ws.Sector)
	for _, p := range ws.Players {
		if !p.IsNPC {
			return fmt.Errorf("%w: %d", ErrOccupied, id)
		}
	}
	claim, ok := h.Ownership.Lookup(id)
	if !ok || claim.Removed || claim.Server != h.Self {
		return fmt.Errorf("%w: %d is not owned by %s", ErrNoRoute, id, h.Self)
	}
	if _, ok := h.Roster.Lookup(to); !ok {
		return fmt.Errorf("%w: %s is not live", ErrNoRoute, to)
	}
	data, err := Encode(PackSector(ws, claim.Version))
	if err != nil {
		return err
	}

	h.mu.Lock()
	if _, ok := h.sectorsOut[id]; ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: sector %d", ErrInFlight, id)
	}
	h.sectorsOut[id] = ws
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		reqCtx, cancel := context.WithTimeout(ctx, h.TimeBox)
		defer cancel()
		err := h.Breaker.Execute(reqCtx, func() error {
			_, err := h.Transport.Request(reqCtx, to, TopicSectorTransfer, data)
			return err
		})
		res := SectorResult{Sector: id, To: to, Err: err}
		if err != nil {
			res.State = ws
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.sectorsOut, id)
		h.sectorDone = append(h.sectorDone, res)
	}()
	return nil
}

// PollSectors returns every sector transfer that finished since the last call
func (h *Handoff) PollSectors() []SectorResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.sectorDone
	h.sectorDone = nil
	return out
}

// AcceptSector is the sector-transfer handler. The new state is queued for
// the tick goroutine and ownership is claimed above the sender's version.
func (h *Handoff) AcceptSector(ctx context.Context, data []byte) ([]byte, error) {
	var sp SectorPackage
	if err := Decode(data, &sp); err != nil {
		return nil, err
	}
	h.Ownership.Observe(sp.Version)
	ws := sp.Unpack(h.Seed)

	h.mu.Lock()
	h.arrivals = append(h.arrivals, ws)
	h.mu.Unlock()

	n := h.Ownership.Claim(sp.Sector, sp.Kind)
	if err := h.Broadcast(TopicSectorNotification, n); err != nil {
		h.Logger.Warn(ctx, "sector notification failed", "sector", sp.Sector, "error", err)
	}
	h.Logger.Info(ctx, "sector received", "sector", sp.Sector, "version", n.Version)
	return nil, nil
}

// Arrivals returns every sector received since the last call
func (h *Handoff) Arrivals() []*world.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.arrivals
	h.arrivals = nil
	return out
}

// Broadcast encodes v and publishes it on topic
func (h *Handoff) Broadcast(topic string, v any) error {
	data, err := Encode(v)
	if err != nil {
		return err
	}
	return h.Transport.Publish(topic, data)
}

// AnnounceOwnership restates every local claim
func (h *Handoff) AnnounceOwnership() error {
	var errs []error
	for _, n := range h.Ownership.Notifications() {
		errs = append(errs, h.Broadcast(TopicSectorNotification, n))
	}
	return errors.Join(errs...)
}

// Whereabouts returns the last announced sector of a player
func (h *Handoff) Whereabouts(id entity.ID) (sector.ID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.whereabouts[id]
	return s, ok
}

func (h *Handoff) onNotification(data []byte) {
	var n SectorNotification
	if err := Decode(data, &n); err != nil {
		h.Logger.Warn(context.Background(), "dropping sector notification", "error", err)
		return
	}
	if h.Ownership.Apply(n) {
		h.Logger.Debug(context.Background(), "sector owner changed", "sector", n.Sector, "server", n.Server, "version", n.Version)
	}
}

func (h *Handoff) onRemoval(data []byte) {
	var r SectorRemoval
	if err := Decode(data, &r); err != nil {
		h.Logger.Warn(context.Background(), "dropping sector removal", "error", err)
		return
	}
	h.Ownership.ApplyRemoval(r)
}

func (h *Handoff) onPlayerSector(data []byte) {
	var ps PlayerSector
	if err := Decode(data, &ps); err != nil {
		h.Logger.Warn(context.Background(), "dropping player location", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if ps.Sector == Offline {
		delete(h.whereabouts, ps.ID)
		return
	}
	h.whereabouts[ps.ID] = ps.Sector
}

// Wait blocks until every background request has finished
func (h *Handoff) Wait() {
	h.wg.Wait()
}
