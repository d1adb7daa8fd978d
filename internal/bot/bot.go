// Package bot runs a headless client whose behaviour is a Lua script. Each
// Bot is a server.Service: Start connects and ticks until Stop.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/remeh/sizedwaitgroup"
	"go.uber.org/zap"

	"github.com/cory-johannsen/edgemultiplay/internal/client"
	"github.com/cory-johannsen/edgemultiplay/internal/config"
	"github.com/cory-johannsen/edgemultiplay/internal/events"
	"github.com/cory-johannsen/edgemultiplay/internal/game/room"
	"github.com/cory-johannsen/edgemultiplay/internal/game/spatial"
	"github.com/cory-johannsen/edgemultiplay/internal/protocol"
	"github.com/cory-johannsen/edgemultiplay/internal/scripting"
)

// ErrNotPlaying is returned to scripts that broadcast before the local
// player has spawned.
var ErrNotPlaying = errors.New("bot: local player has not spawned")

// Bot drives one client from one script VM.
type Bot struct {
	id       string
	logger   *zap.Logger
	client   *client.Client
	scripts  *scripting.Manager
	cfg      config.ClientConfig
	interval time.Duration
	gate     *sizedwaitgroup.SizedWaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// New builds a bot named id from opts and loads its script into scripts.
// gate bounds how many bots may be connecting at once; nil means unbounded.
//
// Precondition: id must be unique within scripts; logger and scripts must be non-nil.
// Postcondition: Returns a Bot ready to Start, or an error if the script fails to load.
func New(logger *zap.Logger, id string, cfg *config.Config, opts client.Options, scripts *scripting.Manager, gate *sizedwaitgroup.SizedWaitGroup) (*Bot, error) {
	if opts.PlayerName == "" {
		opts.PlayerName = id
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		id:       id,
		logger:   logger,
		client:   client.New(logger.Named("client"), opts),
		scripts:  scripts,
		cfg:      cfg.Client,
		interval: cfg.Client.TickInterval,
		gate:     gate,
		ctx:      ctx,
		cancel:   cancel,
	}
	if err := scripts.LoadFile(id, cfg.Bot.Script, cfg.Bot.InstructionLimit, b.host()); err != nil {
		cancel()
		return nil, fmt.Errorf("bot %s: %w", id, err)
	}
	b.subscribe()
	return b, nil
}

// ID returns the bot's name.
func (b *Bot) ID() string { return b.id }

// Client returns the underlying client.
func (b *Bot) Client() *client.Client { return b.client }

func (b *Bot) host() *scripting.Host {
	c := b.client
	return &scripting.Host{
		PlayerID: c.Session().PlayerID,
		IsMaster: c.LocalPlayerIsMaster,
		JoinOrCreateRoom: func(maxPlayers, minPlayers int) error {
			if maxPlayers <= 0 {
				maxPlayers = b.cfg.MaxPlayers
			}
			if minPlayers <= 0 {
				minPlayers = b.cfg.MinPlayersToStart
			}
			return c.Rooms().JoinOrCreateRoom(room.Request{Avatar: b.cfg.Avatar}, maxPlayers, minPlayers)
		},
		ExitRoom: c.Rooms().ExitRoom,
		Broadcast: func(ev scripting.EventInfo) error {
			local, ok := c.Players().Local()
			if !ok {
				return ErrNotPlaying
			}
			return local.BroadcastData(ev.Name, ev.Strings, ev.Ints, ev.Floats, ev.Bools)
		},
		Move: func(x, y, z float64) {
			if local, ok := c.Players().Local(); ok {
				local.Transform.SetPosition(spatial.Vec3{X: x, Y: y, Z: z})
			}
		},
		Position: func() (float64, float64, float64) {
			local, ok := c.Players().Local()
			if !ok {
				return 0, 0, 0
			}
			p := local.Transform.Position()
			return p.X, p.Y, p.Z
		},
	}
}

func eventInfo(ev protocol.GamePlayEvent) scripting.EventInfo {
	return scripting.EventInfo{
		Name:     ev.EventName,
		SenderID: ev.SenderID,
		Strings:  ev.StringData,
		Ints:     ev.IntegerData,
		Floats:   ev.FloatData,
		Bools:    ev.BooleanData,
	}
}

// subscribe forwards client hooks to the script. Hooks fire on the tick
// goroutine, so script calls never overlap for one bot.
func (b *Bot) subscribe() {
	s := b.client.Surface()
	s.Registered.Subscribe(func(r events.Registered) {
		b.scripts.OnRegistered(b.id, r.PlayerID)
	})
	s.GameStarted.Subscribe(func(r protocol.Room) {
		b.scripts.OnGameStart(b.id, r.RoomID, b.client.Session().PlayerIndex())
	})
	forward := func(ev protocol.GamePlayEvent) {
		b.scripts.OnEvent(b.id, eventInfo(ev))
	}
	s.EventReceived.Subscribe(forward)
	s.UDPEventReceived.Subscribe(forward)
	s.PlayerLeft.Subscribe(func(p events.PlayerLeft) {
		b.scripts.OnPlayerLeft(b.id, p.PlayerID)
	})
}

// Start connects and ticks the client and script until Stop is called or the
// connection fails.
//
// Postcondition: The client is disconnected and the script unloaded.
func (b *Bot) Start() error {
	defer b.scripts.Unload(b.id)

	if err := b.connect(); err != nil {
		return err
	}
	defer b.client.Disconnect()
	if b.ctx.Err() != nil {
		return nil
	}
	b.logger.Info("bot connected")

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-b.ctx.Done():
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			if err := b.client.Tick(dt); err != nil {
				return fmt.Errorf("bot %s: %w", b.id, err)
			}
			b.scripts.OnTick(b.id, dt)
		}
	}
}

func (b *Bot) connect() error {
	if b.gate != nil {
		if err := b.gate.AddWithContext(b.ctx); err != nil {
			// Stopped while waiting for a slot.
			return nil
		}
		defer b.gate.Done()
	}
	if err := b.client.Connect(b.ctx); err != nil {
		if b.ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("bot %s: %w", b.id, err)
	}
	return nil
}

// Stop ends Start. It is idempotent.
func (b *Bot) Stop() {
	b.once.Do(b.cancel)
}
