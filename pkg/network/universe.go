// pkg/network/universe.go
package network

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opd-ai/go-starsector/pkg/config"
	"github.com/opd-ai/go-starsector/pkg/content"
	"github.com/opd-ai/go-starsector/pkg/engine"
	"github.com/opd-ai/go-starsector/pkg/entity"
	"github.com/opd-ai/go-starsector/pkg/event"
	"github.com/opd-ai/go-starsector/pkg/logging"
	"github.com/opd-ai/go-starsector/pkg/npc"
	"github.com/opd-ai/go-starsector/pkg/peer"
	"github.com/opd-ai/go-starsector/pkg/persist"
	"github.com/opd-ai/go-starsector/pkg/physics"
	"github.com/opd-ai/go-starsector/pkg/sector"
	"github.com/opd-ai/go-starsector/pkg/session"
	"github.com/opd-ai/go-starsector/pkg/validation"
	"github.com/opd-ai/go-starsector/pkg/world"
)

// Errors reported to clients
var (
	ErrServerFull      = errors.New("server full")
	ErrNotLoggedIn     = errors.New("login required")
	ErrAlreadyLoggedIn = errors.New("already logged in")
	ErrUnknownType     = errors.New("unknown message type")
	ErrPlayerOnline    = errors.New("player is already online")
	ErrInTransit       = errors.New("player is in transit")
	ErrNoSectors       = errors.New("no hosted sectors")
)

const (
	// spawnOffset places new and respawned ships just outside the station
	spawnOffset = 300
	// stationRepairShare is the fraction of health and energy a station
	// regains per repair period
	stationRepairShare = 0.05
	// guardianSpread keeps spawned guardians away from the sector edges
	guardianSpread = 0.8
)

// ConnID identifies one client connection
type ConnID uint64

// Outbox is the send side of a client connection. Send must not block and
// reports false when the message was dropped.
type Outbox interface {
	Send(Message) bool
	Close()
}

// Restored is a checkpointed player loaded ahead of login
type Restored struct {
	Player *entity.Player
	Sector sector.ID
}

type client struct {
	out     Outbox
	session *session.Session
}

// Universe is every sector hosted by this server together with the
// connected sessions, the handoff to other peers and persistence. All of
// its methods run on the tick goroutine.
type Universe struct {
	Config       *config.GameConfig
	Defs         *content.Tables
	Engine       *engine.Engine
	Sectors      *sector.Manager
	Sessions     *session.Registry
	Ownership    *peer.Ownership
	Handoff      *peer.Handoff
	Checkpointer *persist.Checkpointer
	Bus          *event.Bus
	Logger       *logging.Logger
	Now          func() time.Time

	frame     uint64
	clients   map[ConnID]*client
	players   map[entity.ID]ConnID
	recorders map[sector.ID]*engine.Recorder
	stations  map[sector.ID]entity.ID
	nextID    entity.ID
	npcEnv    npc.Env

	stationDef   int
	starterDef   int
	guardianDefs []int
}

// NewUniverse builds the sector graph, takes this peer's share of it and
// populates every owned sector with its station, guardians and asteroids.
// Handoff and Checkpointer are left for the caller to attach.
func NewUniverse(cfg *config.GameConfig, defs *content.Tables, logger *logging.Logger) (*Universe, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := defs.Validate(); err != nil {
		return nil, err
	}

	graph := sector.NewGrid(cfg.Grid.Cols, cfg.Grid.Rows)
	if cfg.Grid.Wraparound {
		graph = sector.NewTorus(cfg.Grid.Cols, cfg.Grid.Rows)
	}
	owned, err := peer.Partition(graph.IDs(), cfg.Peers.Count, cfg.Peers.Index)
	if err != nil {
		return nil, err
	}

	bus := event.NewEventBus()
	eng := engine.New(defs, logger, bus)
	eng.Options.SectorSize = cfg.Grid.SectorSize
	bounds := sector.Bounds{Width: cfg.Grid.SectorSize, Height: cfg.Grid.SectorSize}

	u := &Universe{
		Config:    cfg,
		Defs:      defs,
		Engine:    eng,
		Sectors:   sector.NewManager(graph, bounds, defs, logger),
		Sessions:  session.NewRegistry(),
		Ownership: peer.NewOwnership(cfg.ServerName),
		Bus:       bus,
		Logger:    logger,
		Now:       time.Now,
		clients:   make(map[ConnID]*client),
		players:   make(map[entity.ID]ConnID),
		recorders: make(map[sector.ID]*engine.Recorder),
		stations:  make(map[sector.ID]entity.ID),
		nextID:    entity.ID(cfg.Peers.Index+1) << 40,
		npcEnv:    npc.Env{Defs: defs, Bounds: bounds, Logger: logger},
	}
	if err := u.pickShips(); err != nil {
		return nil, err
	}
	u.Sectors.Describe = u.describe

	for _, id := range owned {
		ws := world.New(int(id), world.Overworld, cfg.Seed)
		u.furnish(ws)
		u.Engine.TopUpAsteroids(ws, cfg.NPC.AsteroidTarget)
		u.Sectors.Host(ws)
		u.Ownership.Claim(id, ws.Kind)
	}
	logger.Info(context.Background(), "universe ready",
		"server", cfg.ServerName,
		"sectors", len(owned),
		"grid", fmt.Sprintf("%dx%d", cfg.Grid.Cols, cfg.Grid.Rows),
	)
	return u, nil
}

// pickShips chooses the station, starter and guardian hulls from the tables
func (u *Universe) pickShips() error {
	u.stationDef, u.starterDef = -1, -1
	var ships []int
	for i, def := range u.Defs.Ships {
		switch {
		case def.IsStation():
			if u.stationDef < 0 {
				u.stationDef = i
			}
		case def.Price == 0 && u.starterDef < 0:
			u.starterDef = i
			ships = append(ships, i)
		default:
			u.guardianDefs = append(u.guardianDefs, i)
			ships = append(ships, i)
		}
	}
	if u.stationDef < 0 || len(ships) == 0 {
		return fmt.Errorf("%w: need a station and at least one ship", content.ErrInvalidTables)
	}
	if u.starterDef < 0 {
		u.starterDef = ships[0]
	}
	if len(u.guardianDefs) == 0 {
		u.guardianDefs = ships
	}
	return nil
}

// Frame returns the next frame to be simulated
func (u *Universe) Frame() uint64 {
	return u.frame
}

func (u *Universe) newID() entity.ID {
	u.nextID++
	return u.nextID
}

// pilotID draws a human player id that stays unique across peers and
// restarts. Computer players use the counter range below 1<<52, and every id
// stays exact in a JSON number.
func pilotID() entity.ID {
	id := uuid.New()
	return entity.ID(1<<52 | binary.BigEndian.Uint64(id[:8])>>12)
}

// StationTeam is the team whose station anchors sector id
func StationTeam(id sector.ID) int {
	return 1 + int(id)%validation.MaxTeams
}

func (u *Universe) guardianTeam(id sector.ID) int {
	if t := u.Config.NPC.GuardianTeam; t > 0 {
		return t
	}
	return StationTeam(id)
}

func spawnPoint() physics.Vector2D {
	return physics.Vector2D{X: 0, Y: spawnOffset}
}

func (u *Universe) describe(id sector.ID) sector.Info {
	info := sector.Info{ID: id}
	if c, ok := u.Ownership.Lookup(id); ok && !c.Removed {
		info.Kind = c.Kind
		info.Server = c.Server
	}
	return info
}

// furnish gives a sector its station and tops up its guardians
func (u *Universe) furnish(ws *world.State) {
	u.spawnStation(ws)
	u.spawnGuardians(ws)
}

func (u *Universe) spawnStation(ws *world.State) {
	id := sector.ID(ws.Sector)
	def, _ := u.Defs.Ship(u.stationDef)
	p := entity.NewPlayer(u.newID(), fmt.Sprintf("%s %d", def.Name, id), StationTeam(id), u.stationDef, def, physics.Vector2D{})
	p.IsNPC = true
	npc.Loadout(p, def, u.Defs)
	ws.AddPlayer(p)
	u.stations[id] = p.ID
}

// spawnGuardians adds computer ships until the sector holds PerSector of them
func (u *Universe) spawnGuardians(ws *world.State) int {
	id := sector.ID(ws.Sector)
	env := u.npcEnv
	env.World = ws
	env.Sector = id
	env.Dice = ws.Rand
	half := u.Config.Grid.SectorSize / 2 * guardianSpread

	added := 0
	for len(ws.NPCs) < u.Config.NPC.PerSector {
		defIndex := u.guardianDefs[ws.Rand.IntN(len(u.guardianDefs))]
		pos := physics.Vector2D{
			X: (ws.Rand.Float64()*2 - 1) * half,
			Y: (ws.Rand.Float64()*2 - 1) * half,
		}
		if _, err := npc.Spawn(&env, u.newID(), defIndex, u.guardianTeam(id), pos, u.guardianGraph(ws)); err != nil {
			u.Logger.Warn(context.Background(), "guardian spawn failed", "sector", id, "error", err)
			break
		}
		added++
	}
	return added
}

func (u *Universe) guardianGraph(ws *world.State) *npc.Graph {
	if ws.Rand.Float64() < u.Config.NPC.AssassinShare {
		return npc.AssassinGraph()
	}
	if ws.Rand.IntN(2) == 0 {
		return npc.BasicGraph()
	}
	return npc.StrafingGraph()
}

// repairStations heals every station a little and rebuilds destroyed ones
func (u *Universe) repairStations() {
	for _, id := range u.Sectors.IDs() {
		ws, _ := u.Sectors.State(id)
		p, ok := ws.Players[u.stations[id]]
		if !ok {
			u.spawnStation(ws)
			continue
		}
		def, _ := u.Defs.Ship(p.DefIndex)
		p.Health += def.MaxHealth * stationRepairShare
		p.Energy += def.MaxEnergy * stationRepairShare
		p.ClampVitals(def)
	}
}

// newPilot creates a human ship with the free starter loadout
func (u *Universe) newPilot(id entity.ID, name string, team int) *entity.Player {
	def, _ := u.Defs.Ship(u.starterDef)
	p := entity.NewPlayer(id, name, team, u.starterDef, def, spawnPoint())
	for i, slot := range def.Slots {
		for j, arm := range u.Defs.Armaments {
			if arm.Price == 0 && content.Fits(slot, arm) {
				p.Equip(i, j, arm)
				break
			}
		}
	}
	return p
}

// home picks the sector a team spawns in, preferring one hosted here
func (u *Universe) home(team int) sector.ID {
	for _, id := range u.Sectors.IDs() {
		if StationTeam(id) == team {
			return id
		}
	}
	ids := u.Sectors.Graph.IDs()
	for _, id := range ids {
		if StationTeam(id) == team {
			return id
		}
	}
	return ids[0]
}

// entry returns a hosted sector to place a player in before it moves on
func (u *Universe) entry(want sector.ID) (*world.State, error) {
	if ws, ok := u.Sectors.State(want); ok {
		return ws, nil
	}
	ids := u.Sectors.IDs()
	if len(ids) == 0 {
		return nil, ErrNoSectors
	}
	ws, _ := u.Sectors.State(ids[0])
	return ws, nil
}

func (u *Universe) recorder(id sector.ID) *engine.Recorder {
	r, ok := u.recorders[id]
	if !ok {
		r = &engine.Recorder{}
		u.recorders[id] = r
	}
	return r
}

// Connect registers a new client connection
func (u *Universe) Connect(conn ConnID, out Outbox) {
	u.clients[conn] = &client{out: out}
}

// Disconnect drops a connection. Its player leaves the world and is
// written to the checkpoint store.
func (u *Universe) Disconnect(ctx context.Context, conn ConnID) {
	c, ok := u.clients[conn]
	if !ok {
		return
	}
	delete(u.clients, conn)
	c.out.Close()
	s := c.session
	if s == nil {
		return
	}
	u.Sessions.Remove(s.ID)
	delete(u.players, s.PlayerID)

	team := 0
	if at, ok := u.Sectors.Locate(s.PlayerID); ok {
		ws, _ := u.Sectors.State(at)
		p, _ := ws.RemovePlayer(s.PlayerID)
		team = p.Team
		if u.Checkpointer != nil {
			u.Checkpointer.Retire(ctx, p, int(at))
		}
		u.announce(ctx, s.PlayerID, peer.Offline)
	}
	u.Logger.Info(ctx, "player left", "player", s.PlayerID, "session", s.ID)
	u.Bus.Publish(event.NewPlayerEvent(event.PlayerLeft, u, uint64(s.PlayerID), team, int(s.Sector)))
}

// Clients returns the number of open connections
func (u *Universe) Clients() int {
	return len(u.clients)
}

// Handle applies one client message. Rejected messages are logged and
// answered with an error message; they never change the world.
func (u *Universe) Handle(ctx context.Context, conn ConnID, in Inbound) {
	c, ok := u.clients[conn]
	if !ok {
		return
	}
	if err := u.dispatch(ctx, conn, c, in); err != nil {
		u.Reject(ctx, conn, in.Type, err)
	}
}

// Reject logs a refused message and reports it to the client
func (u *Universe) Reject(ctx context.Context, conn ConnID, msgType string, err error) {
	u.Logger.Warn(ctx, "message rejected", "conn", conn, "type", msgType, "error", err)
	if c, ok := u.clients[conn]; ok {
		c.out.Send(errorMessage(err))
	}
}

func (u *Universe) dispatch(ctx context.Context, conn ConnID, c *client, in Inbound) error {
	switch in.Type {
	case TypeLogin:
		var lp LoginPayload
		if err := in.Decode(&lp); err != nil {
			return err
		}
		var restored *Restored
		if lp.ID != 0 {
			r, err := u.Restore(ctx, lp.ID)
			if err != nil {
				return err
			}
			restored = r
		}
		return u.Login(ctx, conn, lp, restored)
	case TypeResume:
		var rp ResumePayload
		if err := in.Decode(&rp); err != nil {
			return err
		}
		return u.Resume(ctx, conn, rp.Key)
	}
	if c.session == nil {
		return ErrNotLoggedIn
	}
	return u.act(c.session, in)
}

// Restore loads a player's last checkpoint. It only reads the store, so it
// may run off the tick goroutine.
func (u *Universe) Restore(ctx context.Context, id entity.ID) (*Restored, error) {
	if u.Checkpointer == nil {
		return nil, fmt.Errorf("%w: %d", persist.ErrNotFound, id)
	}
	r, err := u.Checkpointer.Store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := persist.Decode(r)
	if err != nil {
		return nil, err
	}
	return &Restored{Player: p, Sector: sector.ID(r.Sector)}, nil
}

// Login starts a session for a new pilot or a restored checkpoint. A pilot
// whose sector lives on another peer is sent there right away.
func (u *Universe) Login(ctx context.Context, conn ConnID, lp LoginPayload, restored *Restored) error {
	c, ok := u.clients[conn]
	if !ok {
		return nil
	}
	if c.session != nil {
		return ErrAlreadyLoggedIn
	}
	if u.Sessions.Len() >= u.Config.MaxPlayers {
		return ErrServerFull
	}
	name, err := validation.ValidatePlayerName(lp.Name)
	if err != nil {
		return err
	}

	var (
		p    *entity.Player
		dest sector.ID
		kind peer.Kind
	)
	if restored != nil {
		p = restored.Player
		if err := u.offline(p.ID); err != nil {
			return err
		}
		p.Name = name
		p.IsNPC = false
		p.DockedAt = 0
		p.Warping = nil
		if def, ok := u.Defs.Ship(p.DefIndex); ok {
			p.FitSlots(def)
		}
		dest, kind = restored.Sector, peer.Warp
		if !u.Sectors.Graph.Has(dest) {
			dest, kind = u.home(p.Team), peer.Spawn
			p.Position = spawnPoint()
		}
	} else {
		if err := validation.ValidateTeamID(lp.Team); err != nil {
			return err
		}
		p = u.newPilot(pilotID(), name, lp.Team)
		dest, kind = u.home(lp.Team), peer.Spawn
	}

	ws, err := u.entry(dest)
	if err != nil {
		return err
	}
	at := sector.ID(ws.Sector)
	s := session.New(p.ID, p.Name, at)
	if err := u.Sessions.Add(s); err != nil {
		return err
	}
	ws.AddPlayer(p)
	c.session = s
	u.players[p.ID] = conn

	u.Logger.Info(ctx, "player joined", "player", p.ID, "name", p.Name, "team", p.Team, "sector", at)
	u.Bus.Publish(event.NewPlayerEvent(event.PlayerJoined, u, uint64(p.ID), p.Team, int(at)))
	c.out.Send(Message{Type: TypeWelcome, Payload: WelcomePayload{PlayerID: p.ID, SessionID: s.ID, Sector: at, Team: p.Team}})
	u.sendWarp(c, at)
	u.announce(ctx, p.ID, at)

	if at != dest {
		if err := u.begin(ctx, ws, s, dest, kind); err != nil {
			u.Logger.Warn(ctx, "cannot reach home sector", "player", p.ID, "sector", dest, "error", err)
		}
	}
	return nil
}

// offline rejects a restore of a player that is live here or on a peer
func (u *Universe) offline(id entity.ID) error {
	if _, ok := u.players[id]; ok {
		return ErrPlayerOnline
	}
	if _, ok := u.Sectors.Locate(id); ok {
		return ErrPlayerOnline
	}
	if u.Handoff == nil {
		return nil
	}
	if at, ok := u.Handoff.Whereabouts(id); ok {
		if owner, ok := u.Ownership.Owner(at); ok && owner != u.Ownership.Self() {
			return ErrPlayerOnline
		}
	}
	return nil
}

// Resume admits a player handed over by a peer. The key is single use.
func (u *Universe) Resume(ctx context.Context, conn ConnID, key string) error {
	c, ok := u.clients[conn]
	if !ok {
		return nil
	}
	if c.session != nil {
		return ErrAlreadyLoggedIn
	}
	if u.Handoff == nil {
		return peer.ErrTransferExpired
	}
	pkg, ok := u.Handoff.Claim(key)
	if !ok {
		return peer.ErrTransferExpired
	}

	ws, err := u.entry(pkg.Sector)
	if err != nil {
		u.Logger.Error(ctx, "claimed transfer has nowhere to go", err, "player", pkg.Player.ID)
		return err
	}
	p := pkg.Player.Clone()
	p.IsNPC = false
	switch pkg.Kind {
	case peer.Warp:
		if dir, ok := u.Sectors.Bounds.Exit(p.Position); ok {
			u.Sectors.Rewrap(p, dir)
		}
	default:
		p.Position = spawnPoint()
		p.Stop()
	}

	at := sector.ID(ws.Sector)
	s := session.FromSnapshot(pkg.Session)
	if _, dup := u.Sessions.ByID(s.ID); dup {
		s.ID = uuid.NewString()
	}
	s.Visit(at)
	if err := u.Sessions.Add(s); err != nil {
		return err
	}
	ws.AddPlayer(p)
	c.session = s
	u.players[p.ID] = conn

	u.Logger.Info(ctx, "player resumed", "player", p.ID, "sector", at, "kind", pkg.Kind)
	u.Bus.Publish(event.NewPlayerEvent(event.PlayerJoined, u, uint64(p.ID), p.Team, int(at)))
	c.out.Send(Message{Type: TypeWelcome, Payload: WelcomePayload{PlayerID: p.ID, SessionID: s.ID, Sector: at, Team: p.Team}})
	u.sendWarp(c, at)
	u.announce(ctx, p.ID, at)
	return nil
}

// controlled returns the sector and ship of the player a session acts on
func (u *Universe) controlled(s *session.Session, id entity.ID) (*world.State, *entity.Player, error) {
	if id != 0 && !s.Owns(id) {
		return nil, nil, fmt.Errorf("%w: %d", session.ErrNotOwner, id)
	}
	ws, ok := u.Sectors.State(s.Sector)
	if !ok {
		return nil, nil, ErrInTransit
	}
	p, ok := ws.Players[s.PlayerID]
	if !ok {
		return nil, nil, ErrInTransit
	}
	return ws, p, nil
}

// act applies an in-game action of a logged in session
func (u *Universe) act(s *session.Session, in Inbound) error {
	switch in.Type {
	case TypeInput:
		var ip InputPayload
		if err := in.Decode(&ip); err != nil {
			return err
		}
		if _, _, err := u.controlled(s, ip.ID); err != nil {
			return err
		}
		if ip.Angle != nil {
			if err := validation.ValidateAngle(*ip.Angle); err != nil {
				return err
			}
		}
		s.Controls = ip.Controls
	case TypeAngle:
		var ap AnglePayload
		if err := in.Decode(&ap); err != nil {
			return err
		}
		if _, _, err := u.controlled(s, ap.ID); err != nil {
			return err
		}
		if err := validation.ValidateAngle(ap.Angle); err != nil {
			return err
		}
		s.Controls.Angle = &ap.Angle
	case TypeTarget:
		var tp TargetPayload
		if err := in.Decode(&tp); err != nil {
			return err
		}
		if _, _, err := u.controlled(s, tp.ID); err != nil {
			return err
		}
		if err := validation.ValidateTarget(tp.Target); err != nil {
			return err
		}
		s.Target = tp.Target
	case TypeSecondary, TypeSecondaryActivation:
		var sp SlotPayload
		if err := in.Decode(&sp); err != nil {
			return err
		}
		_, p, err := u.controlled(s, sp.ID)
		if err != nil {
			return err
		}
		def, _ := u.Defs.Ship(p.DefIndex)
		if in.Type == TypeSecondary {
			if err := validation.ValidateSlotIndex(def, sp.Index, true); err != nil {
				return err
			}
			s.Secondary = sp.Index
			return nil
		}
		if err := validation.ValidateSlotIndex(def, sp.Index, false); err != nil {
			return err
		}
		s.QueueActivation(sp.Index)
	case TypeWarp:
		var wr WarpRequest
		if err := in.Decode(&wr); err != nil {
			return err
		}
		if _, _, err := u.controlled(s, wr.ID); err != nil {
			return err
		}
		return u.Sectors.Warp(s.Visited, s.PlayerID, s.Sector, wr.WarpTo)
	case TypeDock:
		var dp DockPayload
		if err := in.Decode(&dp); err != nil {
			return err
		}
		ws, p, err := u.controlled(s, dp.ID)
		if err != nil {
			return err
		}
		return u.Engine.Dock(ws, p.ID, dp.StationID)
	case TypeEquip:
		var ep EquipPayload
		if err := in.Decode(&ep); err != nil {
			return err
		}
		ws, p, err := u.controlled(s, ep.ID)
		if err != nil {
			return err
		}
		def, _ := u.Defs.Ship(p.DefIndex)
		if _, err := validation.ValidateArmament(u.Defs, def, ep.Slot, ep.Armament); err != nil {
			return err
		}
		return u.Engine.Equip(ws, p.ID, ep.Slot, ep.Armament)
	case TypeUndock, TypeRepair, TypeSell:
		var pp PlayerPayload
		if err := in.Decode(&pp); err != nil {
			return err
		}
		ws, p, err := u.controlled(s, pp.ID)
		if err != nil {
			return err
		}
		switch in.Type {
		case TypeUndock:
			return u.Engine.Undock(ws, p.ID)
		case TypeRepair:
			_, err = u.Engine.Repair(ws, p.ID)
		default:
			_, err = u.Engine.SellCargo(ws, p.ID)
		}
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, in.Type)
	}
	return nil
}

// sessionsBySector groups the live sessions by their current sector
func (u *Universe) sessionsBySector() map[sector.ID][]*session.Session {
	out := make(map[sector.ID][]*session.Session)
	u.Sessions.Each(func(s *session.Session) {
		out[s.Sector] = append(out[s.Sector], s)
	})
	return out
}

// inputs merges NPC decisions with the buffered input of every human in ws
func (u *Universe) inputs(ctx context.Context, ws *world.State, humans []*session.Session) engine.Inputs {
	in := npc.Drive(ws, u.npcEnv)
	for _, s := range humans {
		pid := s.PlayerID
		if _, ok := ws.Players[pid]; !ok {
			continue
		}
		in.Controls[pid] = s.Controls
		if !s.Target.IsZero() {
			if ws.ResolveTarget(s.Target) {
				in.Targets[pid] = s.Target
			} else {
				u.Logger.Debug(ctx, "clearing stale target", "player", pid, "target", s.Target.ID)
				s.Target = entity.Target{}
			}
		}
		if s.Secondary >= 0 {
			in.Secondaries[pid] = s.Secondary
		}
		if a := s.TakeActivations(); len(a) > 0 {
			in.Activations[pid] = a
		}
	}
	return in
}

// Tick advances every hosted sector by one frame and then settles
// crossings, warps, handoffs and periodic work.
func (u *Universe) Tick(ctx context.Context) {
	if u.Handoff != nil {
		for _, ws := range u.Handoff.Arrivals() {
			u.furnish(ws)
			u.Sectors.Host(ws)
		}
	}

	bySector := u.sessionsBySector()
	for _, id := range u.Sectors.IDs() {
		ws, _ := u.Sectors.State(id)
		rec := u.recorder(id)
		seen := len(rec.Deaths)
		u.tickSector(ctx, id, ws, bySector[id])
		// Deaths recorded before a panic still need their respawn
		for _, d := range rec.Deaths[seen:] {
			if !d.Player.IsNPC {
				u.respawn(ctx, ws, d.Player)
			}
		}
	}

	for _, r := range u.Sectors.ResolveAll() {
		u.settle(ctx, r)
	}
	for _, r := range u.Sectors.CompleteWarps() {
		u.settle(ctx, r)
	}
	if u.Handoff != nil {
		u.pollHandoffs(ctx)
		u.pollSectors(ctx)
	}
	u.periodic(ctx)

	if n := uint64(max(u.Config.NetworkConfig.TicksPerState, 1)); u.frame%n == 0 {
		u.broadcastState()
	}
	u.frame++
}

// tickSector drives the sector's NPCs and runs one sector tick. A panic in
// either is contained to the sector: it is logged, published and the rest
// of the sector's frame is skipped.
func (u *Universe) tickSector(ctx context.Context, id sector.ID, ws *world.State, humans []*session.Session) {
	defer func() {
		if r := recover(); r != nil {
			u.Logger.Error(ctx, "sector tick panicked", fmt.Errorf("panic: %v", r), "sector", id, "frame", u.frame)
			u.Bus.Publish(event.NewPanicEvent(u, int(id), r))
		}
	}()
	in := u.inputs(ctx, ws, humans)
	u.Engine.Tick(ws, u.frame, in, u.recorder(id))
}

// respawn puts a destroyed human back at its team's home with its credits
func (u *Universe) respawn(ctx context.Context, ws *world.State, dead *entity.Player) {
	s, ok := u.Sessions.ByPlayer(dead.ID)
	if !ok {
		return
	}
	p := u.newPilot(dead.ID, dead.Name, dead.Team)
	p.Credits = dead.Credits

	home := u.home(dead.Team)
	if hws, ok := u.Sectors.State(home); ok {
		hws.AddPlayer(p)
		from := s.Sector
		s.Target = entity.Target{}
		if home != from {
			u.moved(ctx, s, from, home)
		}
		return
	}
	ws.AddPlayer(p)
	if err := u.begin(ctx, ws, s, home, peer.Respawn); err != nil {
		u.Logger.Warn(ctx, "respawning in place", "player", p.ID, "home", home, "error", err)
	}
}

// moved updates a session whose player now lives in another local sector
func (u *Universe) moved(ctx context.Context, s *session.Session, from, to sector.ID) {
	s.Visit(to)
	if conn, ok := u.players[s.PlayerID]; ok {
		u.sendWarp(u.clients[conn], to)
	}
	u.announce(ctx, s.PlayerID, to)
	u.Bus.Publish(event.NewSectorEvent(u, uint64(s.PlayerID), int(from), int(to)))
}

// settle finishes one crossing or warp resolved by the sector manager
func (u *Universe) settle(ctx context.Context, r sector.Resolution) {
	s, human := u.Sessions.ByPlayer(r.PlayerID)
	switch r.Outcome {
	case sector.Moved:
		if human && r.To != r.From {
			u.moved(ctx, s, r.From, r.To)
		}
	case sector.Remote:
		ws, ok := u.Sectors.State(r.From)
		if !ok {
			return
		}
		p, ok := ws.Players[r.PlayerID]
		if !ok {
			return
		}
		if !human {
			u.bounce(p)
			return
		}
		if err := u.begin(ctx, ws, s, r.To, peer.Warp); err != nil {
			u.Logger.Warn(ctx, "handoff refused", "player", r.PlayerID, "to", r.To, "error", err)
			u.bounce(p)
			u.notify(r.PlayerID, fmt.Errorf("sector %d unavailable: %w", r.To, err))
		}
	}
}

// bounce reflects a ship that is outside its sector back inside
func (u *Universe) bounce(p *entity.Player) {
	if dir, ok := u.Sectors.Bounds.Exit(p.Position); ok {
		u.Sectors.Reflect(p, dir)
	}
}

func (u *Universe) begin(ctx context.Context, ws *world.State, s *session.Session, to sector.ID, kind peer.Kind) error {
	if u.Handoff == nil {
		return fmt.Errorf("%w: %d", peer.ErrNoRoute, to)
	}
	return u.Handoff.Begin(ctx, ws, s.PlayerID, s.Snapshot(), to, kind)
}

// pollHandoffs redirects clients whose transfer succeeded and takes back
// players whose transfer failed
func (u *Universe) pollHandoffs(ctx context.Context) {
	for _, res := range u.Handoff.Poll() {
		pid := res.Player.ID
		conn, connected := u.players[pid]
		u.Bus.Publish(event.NewTransferEvent(u, uint64(pid), res.Address, res.Retryable, res.Err))

		if res.Err == nil {
			u.Logger.Info(ctx, "player handed off", "player", pid, "to", res.To, "kind", res.Kind)
			if !connected {
				u.retire(ctx, res.Player, res.To)
				continue
			}
			c := u.clients[conn]
			c.out.Send(Message{Type: TypeRedirect, Payload: RedirectPayload{Address: res.Address, Key: res.Key}})
			u.Sessions.Remove(c.session.ID)
			delete(u.players, pid)
			delete(u.clients, conn)
			c.out.Close()
			continue
		}

		u.Logger.Warn(ctx, "handoff failed", "player", pid, "to", res.To, "retryable", res.Retryable, "error", res.Err)
		if !connected {
			u.retire(ctx, res.Player, res.From)
			continue
		}
		ws, err := u.entry(res.From)
		if err != nil {
			u.Logger.Error(ctx, "failed handoff has nowhere to return", err, "player", pid)
			u.retire(ctx, res.Player, res.From)
			continue
		}
		at := sector.ID(ws.Sector)
		ws.AddPlayer(res.Player)
		u.bounce(res.Player)
		if s := u.clients[conn].session; s.Sector != at {
			u.moved(ctx, s, s.Sector, at)
		}
		msg := fmt.Errorf("transfer to sector %d failed", res.To)
		if res.Retryable {
			msg = fmt.Errorf("transfer to sector %d failed, try again", res.To)
		}
		u.notify(pid, msg)
	}
}

// pollSectors hosts again every sector whose transfer failed
func (u *Universe) pollSectors(ctx context.Context) {
	for _, sr := range u.Handoff.PollSectors() {
		if sr.Err == nil {
			u.Logger.Info(ctx, "sector handed off", "sector", sr.Sector, "peer", sr.To)
			continue
		}
		u.Logger.Warn(ctx, "sector transfer failed", "sector", sr.Sector, "peer", sr.To, "error", sr.Err)
		u.Sectors.Host(sr.State)
		u.stations[sr.Sector] = u.stationIn(sr.State)
	}
}

// TransferSector hands a sector without human players to another peer.
// The sector stops ticking here immediately and comes back if the peer
// refuses it.
func (u *Universe) TransferSector(ctx context.Context, id sector.ID, to string) error {
	if u.Handoff == nil {
		return fmt.Errorf("%w: %d", peer.ErrNoRoute, id)
	}
	ws, ok := u.Sectors.State(id)
	if !ok {
		return fmt.Errorf("%w: %d", sector.ErrUnknownSector, id)
	}
	for _, p := range ws.Players {
		if !p.IsNPC {
			return fmt.Errorf("%w: %d", peer.ErrOccupied, id)
		}
	}
	u.unhost(id)
	if err := u.Handoff.BeginSector(ctx, ws, to); err != nil {
		u.Sectors.Host(ws)
		u.stations[id] = u.stationIn(ws)
		return err
	}
	return nil
}

func (u *Universe) stationIn(ws *world.State) entity.ID {
	for _, id := range ws.SortedPlayerIDs() {
		if ws.Players[id].DefIndex == u.stationDef {
			return id
		}
	}
	return 0
}

func (u *Universe) unhost(id sector.ID) {
	u.Sectors.Release(id)
	delete(u.recorders, id)
	delete(u.stations, id)
}

// releaseLost stops hosting sectors another peer has taken over. A sector
// with human players stays until they have left.
func (u *Universe) releaseLost(ctx context.Context) {
	for _, id := range u.Sectors.IDs() {
		owner, ok := u.Ownership.Owner(id)
		if !ok || owner == u.Ownership.Self() {
			continue
		}
		ws, _ := u.Sectors.State(id)
		occupied := false
		for _, p := range ws.Players {
			occupied = occupied || !p.IsNPC
		}
		if occupied {
			continue
		}
		u.unhost(id)
		u.Logger.Info(ctx, "released sector", "sector", id, "owner", owner)
	}
}

// periodic runs the every-N-frames maintenance tasks
func (u *Universe) periodic(ctx context.Context) {
	t := u.Config.Tasks
	every := func(n uint64) bool { return n > 0 && u.frame%n == 0 }

	if every(t.GuardianSpawn) {
		for _, id := range u.Sectors.IDs() {
			ws, _ := u.Sectors.State(id)
			u.spawnGuardians(ws)
		}
	}
	if every(t.StationRepair) {
		u.repairStations()
	}
	if every(t.AsteroidTopUp) {
		for _, id := range u.Sectors.IDs() {
			ws, _ := u.Sectors.State(id)
			u.Engine.TopUpAsteroids(ws, u.Config.NPC.AsteroidTarget)
		}
	}
	if every(t.Checkpoint) && u.Checkpointer != nil {
		u.Checkpointer.Checkpoint(ctx, u.states()...)
	}
	if u.Handoff == nil {
		return
	}
	if every(t.TransferSweep) {
		u.Handoff.Sweep(u.Now())
	}
	if every(t.OwnershipBroadcast) {
		if err := u.Handoff.AnnounceOwnership(); err != nil {
			u.Logger.Warn(ctx, "ownership broadcast failed", "error", err)
		}
		u.releaseLost(ctx)
	}
}

func (u *Universe) states() []*world.State {
	ids := u.Sectors.IDs()
	out := make([]*world.State, 0, len(ids))
	for _, id := range ids {
		ws, _ := u.Sectors.State(id)
		out = append(out, ws)
	}
	return out
}

// broadcastState sends every client the snapshot of its sector
func (u *Universe) broadcastState() {
	bySector := u.sessionsBySector()
	for _, id := range u.Sectors.IDs() {
		ws, _ := u.Sectors.State(id)
		rec := u.recorder(id)
		if humans := bySector[id]; len(humans) > 0 {
			msg := Message{Type: TypeState, Payload: ws.Snapshot(u.frame, rec.Effects)}
			for _, s := range humans {
				if conn, ok := u.players[s.PlayerID]; ok {
					u.clients[conn].out.Send(msg)
				}
			}
		}
		ws.AsteroidsDirty = false
		rec.Reset()
	}
}

func (u *Universe) sendWarp(c *client, id sector.ID) {
	payload, err := u.Sectors.Snapshot(id)
	if err != nil {
		return
	}
	c.out.Send(Message{Type: TypeWarp, Payload: payload})
}

// notify sends an error message to the client controlling pid, if any
func (u *Universe) notify(pid entity.ID, err error) {
	if conn, ok := u.players[pid]; ok {
		u.clients[conn].out.Send(errorMessage(err))
	}
}

// announce tells every peer where a player now lives
func (u *Universe) announce(ctx context.Context, pid entity.ID, at sector.ID) {
	if u.Handoff == nil {
		return
	}
	if err := u.Handoff.Broadcast(peer.TopicPlayerSector, peer.PlayerSector{ID: pid, Sector: at}); err != nil {
		u.Logger.Warn(ctx, "player location broadcast failed", "player", pid, "error", err)
	}
}

func (u *Universe) retire(ctx context.Context, p *entity.Player, at sector.ID) {
	if u.Checkpointer != nil {
		u.Checkpointer.Retire(ctx, p, int(at))
	}
}

// Shutdown settles in-flight transfers, writes a final checkpoint and closes
// every connection
func (u *Universe) Shutdown(ctx context.Context) {
	if u.Handoff != nil {
		u.Handoff.Wait()
		u.pollHandoffs(ctx)
		u.pollSectors(ctx)
	}
	if u.Checkpointer != nil {
		u.Checkpointer.Wait()
		u.Checkpointer.Checkpoint(ctx, u.states()...)
		u.Checkpointer.Wait()
	}
	for conn, c := range u.clients {
		c.out.Close()
		delete(u.clients, conn)
	}
	u.Logger.Info(ctx, "universe stopped", "frame", u.frame)
}
