// pkg/network/server.go
package network

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opd-ai/go-starsector/pkg/config"
	"github.com/opd-ai/go-starsector/pkg/logging"
	"github.com/opd-ai/go-starsector/pkg/validation"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	// wsDisconnectWait bounds how long a closing connection waits for room
	// in the command queue
	wsDisconnectWait = 5 * time.Second
)

// ErrBusy is sent when the command queue is full and a message was dropped
var ErrBusy = errors.New("server busy, message dropped")

// GameServer accepts websocket clients and feeds their messages to the
// scheduler
type GameServer struct {
	Scheduler    *Scheduler
	Validator    *validation.MessageValidator
	Upgrader     websocket.Upgrader
	Logger       *logging.Logger
	SendQueue    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// PingInterval must stay below ReadTimeout
	PingInterval time.Duration
	MaxClients   int

	nextConn atomic.Uint64
	open     atomic.Int64

	mu   sync.Mutex
	ctx  context.Context
	addr net.Addr
}

// NewGameServer creates a websocket server for the scheduler's universe
func NewGameServer(sched *Scheduler, cfg *config.GameConfig, env *config.EnvironmentConfig, logger *logging.Logger) *GameServer {
	if logger == nil {
		logger = logging.NewLogger()
	}
	g := &GameServer{
		Scheduler:    sched,
		Validator:    validation.NewMessageValidator(),
		Logger:       logger,
		SendQueue:    cfg.NetworkConfig.SendQueue,
		ReadTimeout:  wsReadTimeout,
		WriteTimeout: wsWriteTimeout,
		MaxClients:   cfg.MaxPlayers,
	}
	if env != nil {
		if env.ReadTimeout > 0 {
			g.ReadTimeout = env.ReadTimeout
		}
		if env.WriteTimeout > 0 {
			g.WriteTimeout = env.WriteTimeout
		}
		if env.MaxClients > 0 {
			g.MaxClients = env.MaxClients
		}
	}
	if g.SendQueue <= 0 {
		g.SendQueue = 64
	}
	g.PingInterval = g.ReadTimeout * 9 / 10
	g.Upgrader = websocket.Upgrader{
		CheckOrigin:       g.validOrigin,
		EnableCompression: true,
	}
	return g
}

// validOrigin accepts same-origin, localhost and non-browser clients
func (g *GameServer) validOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	host := u.Hostname()
	if host == "localhost" || host == "127.0.0.1" {
		return true
	}
	g.Logger.Warn(r.Context(), "rejected websocket origin", "origin", origin)
	return false
}

// Handler returns the HTTP handler serving /ws
func (g *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.ServeWS)
	return mux
}

func (g *GameServer) context() context.Context {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ctx == nil {
		return context.Background()
	}
	return g.ctx
}

// ServeWS upgrades one connection and starts its pumps
func (g *GameServer) ServeWS(w http.ResponseWriter, r *http.Request) {
	if n := g.open.Add(1); g.MaxClients > 0 && n > int64(g.MaxClients) {
		g.open.Add(-1)
		http.Error(w, ErrServerFull.Error(), http.StatusServiceUnavailable)
		return
	}
	conn, err := g.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.open.Add(-1)
		g.Logger.Warn(r.Context(), "websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	ctx := g.context()
	c := &wsClient{
		id:     ConnID(g.nextConn.Add(1)),
		conn:   conn,
		send:   make(chan []byte, g.SendQueue),
		done:   make(chan struct{}),
		logger: g.Logger,
	}
	if err := g.Scheduler.Enqueue(ctx, func(_ context.Context, u *Universe) { u.Connect(c.id, c) }); err != nil {
		g.open.Add(-1)
		conn.Close()
		return
	}
	g.Logger.Info(ctx, "client connected", "conn", c.id, "remote", r.RemoteAddr)

	go g.writePump(c)
	go g.readPump(ctx, c)
}

// readPump validates and queues every message of one client
func (g *GameServer) readPump(ctx context.Context, c *wsClient) {
	key := strconv.FormatUint(uint64(c.id), 10)
	defer func() {
		g.Validator.Forget(key)
		wait, cancel := context.WithTimeout(context.WithoutCancel(ctx), wsDisconnectWait)
		defer cancel()
		if err := g.Scheduler.Enqueue(wait, func(ctx context.Context, u *Universe) { u.Disconnect(ctx, c.id) }); err != nil {
			g.Logger.Error(ctx, "disconnect lost", err, "conn", c.id)
		}
		c.Close()
		c.conn.Close()
		g.open.Add(-1)
		g.Logger.Info(ctx, "client disconnected", "conn", c.id, "dropped", c.dropped.Load())
	}()

	c.conn.SetReadLimit(validation.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(g.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(g.ReadTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.Logger.Warn(ctx, "websocket read failed", "conn", c.id, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(g.ReadTimeout))

		if err := g.Validator.ValidateMessage(data, key); err != nil {
			g.Logger.Debug(ctx, "dropping client message", "conn", c.id, "error", err)
			c.Send(errorMessage(err))
			continue
		}
		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.Send(errorMessage(err))
			continue
		}
		if !g.Scheduler.Submit(g.command(ctx, c.id, in)) {
			c.Send(errorMessage(ErrBusy))
		}
	}
}

// command turns a message into tick work. Checkpoint loads happen here so
// the tick goroutine never waits on the store.
func (g *GameServer) command(ctx context.Context, id ConnID, in Inbound) Command {
	if in.Type == TypeLogin {
		var lp LoginPayload
		if err := in.Decode(&lp); err == nil && lp.ID != 0 {
			restored, err := g.Scheduler.Universe.Restore(ctx, lp.ID)
			return func(ctx context.Context, u *Universe) {
				if err == nil {
					err = u.Login(ctx, id, lp, restored)
				}
				if err != nil {
					u.Reject(ctx, id, in.Type, err)
				}
			}
		}
	}
	return func(ctx context.Context, u *Universe) { u.Handle(ctx, id, in) }
}

// writePump writes queued frames and pings. When the client is closed it
// flushes what is still queued, such as a redirect, before the close frame.
func (g *GameServer) writePump(c *wsClient) {
	ticker := time.NewTicker(g.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(g.WriteTimeout))
		return c.conn.WriteMessage(kind, data)
	}
	for {
		select {
		case data := <-c.send:
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			for len(c.send) > 0 {
				if err := write(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}
			write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Serve accepts clients on ln until ctx is cancelled
func (g *GameServer) Serve(ctx context.Context, ln net.Listener) error {
	g.mu.Lock()
	g.ctx = ctx
	g.addr = ln.Addr()
	g.mu.Unlock()

	srv := &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: wsWriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	g.Logger.Info(ctx, "game server listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), wsDisconnectWait)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		g.Validator.Close()
		return err
	case err := <-errCh:
		g.Validator.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// ListenAndServe listens on addr and serves until ctx is cancelled
func (g *GameServer) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return logging.WrapError(err, "failed to start server", "addr", addr)
	}
	return g.Serve(ctx, ln)
}

// ListenerAddress returns the bound address, or "" before Serve
func (g *GameServer) ListenerAddress() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.addr == nil {
		return ""
	}
	return g.addr.String()
}

// Listening reports whether the server has bound its address
func (g *GameServer) Listening() bool {
	return g.ListenerAddress() != ""
}

// wsClient is the Outbox of one websocket connection. Frames are encoded
// by the tick goroutine and queued; a full queue drops frames for this
// client only.
type wsClient struct {
	id      ConnID
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
	logger  *logging.Logger
}

// Send implements Outbox
func (c *wsClient) Send(m Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	data, err := json.Marshal(m)
	if err != nil {
		c.logger.Error(context.Background(), "cannot encode message", err, "conn", c.id, "type", m.Type)
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Close implements Outbox
func (c *wsClient) Close() {
	c.once.Do(func() { close(c.done) })
}
