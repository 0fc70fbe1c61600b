// pkg/peer/transport.go
package peer

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sasha-s/go-deadlock"

	"github.com/opd-ai/go-starsector/pkg/logging"
)

const (
	broadcastPrefix = "broadcast"
	errorHeader     = "Error"
)

// ReplyHandler answers a request addressed to this peer
type ReplyHandler func(ctx context.Context, data []byte) ([]byte, error)

// Handler consumes a broadcast message
type Handler func(data []byte)

// Transport moves bytes between peers. Requests are addressed to one peer by
// name; broadcasts reach every peer, the sender included.
type Transport interface {
	Request(ctx context.Context, peer, topic string, data []byte) ([]byte, error)
	Publish(topic string, data []byte) error
	Handle(topic string, h ReplyHandler) error
	Subscribe(topic string, h Handler) error
	Close() error
}

// NATSTransport implements Transport over a NATS connection
type NATSTransport struct {
	conn   *nats.Conn
	self   string
	logger *logging.Logger

	mu   deadlock.Mutex
	subs []*nats.Subscription
}

// NewNATSTransport binds a transport for the peer named self to conn
func NewNATSTransport(conn *nats.Conn, self string, logger *logging.Logger) *NATSTransport {
	if logger == nil {
		logger = logging.Discard()
	}
	return &NATSTransport{conn: conn, self: self, logger: logger}
}

func requestSubject(peer, topic string) string { return peer + "." + topic }
func broadcastSubject(topic string) string     { return broadcastPrefix + "." + topic }

// Request implements Transport
func (t *NATSTransport) Request(ctx context.Context, peer, topic string, data []byte) ([]byte, error) {
	msg := nats.NewMsg(requestSubject(peer, topic))
	msg.Data = data
	reply, err := t.conn.RequestMsgWithContext(ctx, msg)
	switch {
	case errors.Is(err, nats.ErrNoResponders):
		return nil, fmt.Errorf("%w: %s", ErrPeerUnavailable, peer)
	case err != nil:
		return nil, err
	}
	if msg := reply.Header.Get(errorHeader); msg != "" {
		return nil, fmt.Errorf("%w: %s", ErrRemote, msg)
	}
	return reply.Data, nil
}

// Publish implements Transport
func (t *NATSTransport) Publish(topic string, data []byte) error {
	return t.conn.Publish(broadcastSubject(topic), data)
}

// Handle implements Transport
func (t *NATSTransport) Handle(topic string, h ReplyHandler) error {
	sub, err := t.conn.Subscribe(requestSubject(t.self, topic), func(m *nats.Msg) {
		out, err := h(context.Background(), m.Data)
		reply := nats.NewMsg(m.Reply)
		if err != nil {
			reply.Header.Set(errorHeader, err.Error())
		} else {
			reply.Data = out
		}
		if err := m.RespondMsg(reply); err != nil {
			t.logger.Warn(context.Background(), "peer reply failed", "topic", topic, "error", err)
		}
	})
	if err != nil {
		return logging.WrapError(err, "handle topic", "topic", topic)
	}
	t.track(sub)
	return nil
}

// Subscribe implements Transport
func (t *NATSTransport) Subscribe(topic string, h Handler) error {
	sub, err := t.conn.Subscribe(broadcastSubject(topic), func(m *nats.Msg) {
		h(m.Data)
	})
	if err != nil {
		return logging.WrapError(err, "subscribe topic", "topic", topic)
	}
	t.track(sub)
	return nil
}

func (t *NATSTransport) track(sub *nats.Subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = append(t.subs, sub)
}

// Close drains every subscription. The connection itself belongs to the caller.
func (t *NATSTransport) Close() error {
	t.mu.Lock()
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Drain(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Hub connects in-process transports. Taking a peer down makes it
// unreachable for requests and deaf to broadcasts.
type Hub struct {
	mu    deadlock.RWMutex
	peers map[string]*MemoryTransport
	down  map[string]bool
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{peers: make(map[string]*MemoryTransport), down: make(map[string]bool)}
}

// Transport returns the transport of the peer called name, creating it on first use
func (h *Hub) Transport(name string) *MemoryTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.peers[name]; ok {
		return t
	}
	t := &MemoryTransport{
		hub:      h,
		name:     name,
		handlers: make(map[string]ReplyHandler),
		subs:     make(map[string][]Handler),
	}
	h.peers[name] = t
	return t
}

// Down takes a peer offline
func (h *Hub) Down(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.down[name] = true
}

// Up brings a peer back online
func (h *Hub) Up(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.down, name)
}

func (h *Hub) reachable(name string) (*MemoryTransport, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.peers[name]
	return t, ok && !h.down[name]
}

func (h *Hub) live() []*MemoryTransport {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*MemoryTransport, 0, len(h.peers))
	for name, t := range h.peers {
		if !h.down[name] {
			out = append(out, t)
		}
	}
	return out
}

// MemoryTransport implements Transport inside one process. Handlers run on
// the caller's goroutine.
type MemoryTransport struct {
	hub  *Hub
	name string

	mu       deadlock.RWMutex
	handlers map[string]ReplyHandler
	subs     map[string][]Handler
}

// Request implements Transport
func (t *MemoryTransport) Request(ctx context.Context, peer, topic string, data []byte) ([]byte, error) {
	if _, ok := t.hub.reachable(t.name); !ok {
		return nil, fmt.Errorf("%w: %s is offline", ErrPeerUnavailable, t.name)
	}
	dst, ok := t.hub.reachable(peer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPeerUnavailable, peer)
	}
	dst.mu.RLock()
	h, ok := dst.handlers[topic]
	dst.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s does not handle %s", ErrPeerUnavailable, peer, topic)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := h(ctx, append([]byte(nil), data...))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRemote, err.Error())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Publish implements Transport
func (t *MemoryTransport) Publish(topic string, data []byte) error {
	if _, ok := t.hub.reachable(t.name); !ok {
		return fmt.Errorf("%w: %s is offline", ErrPeerUnavailable, t.name)
	}
	for _, dst := range t.hub.live() {
		dst.mu.RLock()
		subs := append([]Handler(nil), dst.subs[topic]...)
		dst.mu.RUnlock()
		for _, h := range subs {
			h(append([]byte(nil), data...))
		}
	}
	return nil
}

// Handle implements Transport
func (t *MemoryTransport) Handle(topic string, h ReplyHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[topic] = h
	return nil
}

// Subscribe implements Transport
func (t *MemoryTransport) Subscribe(topic string, h Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs[topic] = append(t.subs[topic], h)
	return nil
}

// Close implements Transport
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = make(map[string]ReplyHandler)
	t.subs = make(map[string][]Handler)
	return nil
}
