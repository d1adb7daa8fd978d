// Package client composes the session, transport, room directory, player
// registry and observation engine into one tick-driven multiplayer client.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/edgemultiplay/internal/events"
	"github.com/cory-johannsen/edgemultiplay/internal/game/observe"
	"github.com/cory-johannsen/edgemultiplay/internal/game/player"
	"github.com/cory-johannsen/edgemultiplay/internal/game/room"
	"github.com/cory-johannsen/edgemultiplay/internal/game/session"
	"github.com/cory-johannsen/edgemultiplay/internal/protocol"
	"github.com/cory-johannsen/edgemultiplay/internal/transport"
)

// ErrConnectionLost is returned by Tick when the reliable channel closed
// underneath a live session. The session has been reset.
var ErrConnectionLost = errors.New("client: connection lost")

// Options configures a Client.
type Options struct {
	Endpoint transport.Endpoint
	// PlayerName is sent with room requests. Empty lets the server or the
	// registry name the player.
	PlayerName string
	// Spawn is the avatar and spawn table configuration. Nil selects
	// player.DefaultSpawnConfig.
	Spawn *player.SpawnConfig
	// Factory instantiates observables announced by peers. Nil selects
	// observe.TransformFactory.
	Factory observe.Factory
	// Discovery supplies the datagram endpoint when Endpoint.UseLocalHost is
	// false. Nil uses Endpoint.Host and Endpoint.UnreliablePort.
	Discovery  transport.Discovery
	Reliable   transport.ReliableDialer
	Unreliable transport.UnreliableDialer
}

// Client is a single player's connection to the relay server.
//
// Connect, Disconnect, Tick, Run and every send must be called from one
// goroutine; hooks fire on that goroutine.
type Client struct {
	logger    *zap.Logger
	endpoint  transport.Endpoint
	discovery transport.Discovery

	sess    *session.Session
	conn    *transport.Manager
	rooms   *room.Directory
	players *player.Registry
	engine  *observe.Engine
	surface *events.Surface

	// ctx bounds the channels opened after Connect.
	ctx   context.Context
	fatal error
}

// New creates a disconnected Client.
//
// Precondition: logger must not be nil.
func New(logger *zap.Logger, opts Options) *Client {
	spawn := opts.Spawn
	if spawn == nil {
		spawn = player.DefaultSpawnConfig()
	}
	c := &Client{
		logger:    logger,
		endpoint:  opts.Endpoint,
		discovery: opts.Discovery,
		sess:      session.New(),
		surface:   events.NewSurface(),
		ctx:       context.Background(),
	}
	c.sess.SetPlayerName(opts.PlayerName)
	c.conn = transport.NewManager(logger.Named("transport"), opts.Reliable, opts.Unreliable)
	c.rooms = room.NewDirectory(logger.Named("room"), c.sess, c)
	c.players = player.NewRegistry(logger.Named("player"), spawn, c.surface, c)
	c.engine = observe.NewEngine(logger.Named("observe"), c.sess, c, opts.Factory, c.surface)
	return c
}

// Surface returns the client's hooks.
func (c *Client) Surface() *events.Surface { return c.surface }

// Session returns the session state.
func (c *Client) Session() *session.Session { return c.sess }

// Rooms returns the room directory.
func (c *Client) Rooms() *room.Directory { return c.rooms }

// Players returns the player registry.
func (c *Client) Players() *player.Registry { return c.players }

// Observation returns the observation engine.
func (c *Client) Observation() *observe.Engine { return c.engine }

// Transport returns the connection manager.
func (c *Client) Transport() *transport.Manager { return c.conn }

// LocalPlayerIsMaster reports whether the local player holds index 0 in a
// started game.
func (c *Client) LocalPlayerIsMaster() bool { return c.sess.IsMaster() }

// Connect opens the reliable channel. Success fires Connected; failure fires
// ConnectionFailed and returns the *transport.ConnectError. There is no retry.
//
// Precondition: the session is Disconnected.
func (c *Client) Connect(ctx context.Context) error {
	if st := c.sess.State(); st != session.Disconnected {
		return fmt.Errorf("client: connect in state %s: %w", st, transport.ErrAlreadyConnected)
	}
	if err := c.conn.Connect(ctx, c.endpoint); err != nil {
		c.logger.Warn("connection failed", zap.Error(err))
		c.surface.ConnectionFailed.Emit(events.ConnectionFailed{Reason: err.Error()})
		return err
	}
	if err := c.sess.Transition(session.Connected); err != nil {
		c.conn.Disconnect()
		return err
	}
	c.ctx = ctx
	c.fatal = nil
	c.surface.Connected.Emit(events.Signal{})
	return nil
}

// Disconnect closes both channels, destroys every entity and observer and
// resets the session. It is idempotent.
func (c *Client) Disconnect() {
	c.conn.Disconnect()
	c.players.Clear()
	c.engine.Reset()
	c.sess.Reset()
}

// SendReliable encodes msg in the text envelope and writes it to the
// reliable channel.
func (c *Client) SendReliable(msg protocol.Message) error {
	data, err := protocol.EncodeWrapped(msg)
	if err != nil {
		return err
	}
	return c.conn.SendReliable(data)
}

func (c *Client) stamp(ev protocol.GamePlayEvent) (protocol.GamePlayEvent, error) {
	roomID := c.sess.RoomID()
	if roomID == "" {
		return ev, room.ErrNotInRoom
	}
	ev.RoomID = roomID
	ev.SenderID = c.sess.PlayerID()
	return ev, nil
}

// BroadcastReliable sends ev to the room over the reliable channel, stamped
// with the room and sender IDs.
func (c *Client) BroadcastReliable(ev protocol.GamePlayEvent) error {
	ev, err := c.stamp(ev)
	if err != nil {
		return err
	}
	return c.SendReliable(&ev)
}

// BroadcastUnreliable sends ev to the room as a datagram, stamped with the
// room and sender IDs. It is a no-op while the datagram channel is closed.
func (c *Client) BroadcastUnreliable(ev protocol.GamePlayEvent) error {
	ev, err := c.stamp(ev)
	if err != nil {
		return err
	}
	data, err := protocol.Encode(&ev)
	if err != nil {
		return err
	}
	return c.conn.SendUnreliable(data)
}

// Tick drains the reliable queue, then the unreliable queue, then advances
// the observation engine by dt.
//
// Postcondition: Returns a *player.ConfigError once spawning has failed, or
// ErrConnectionLost when the server closed the reliable channel. Both are
// fatal; later calls return the same error.
func (c *Client) Tick(dt time.Duration) error {
	if c.fatal != nil {
		return c.fatal
	}
	for _, data := range c.conn.ReliableInbox().Drain() {
		c.handleReliable(data)
		if c.fatal != nil {
			return c.fatal
		}
	}
	for _, data := range c.conn.UnreliableInbox().Drain() {
		c.handleUnreliable(data)
	}
	c.engine.Tick(dt)

	if c.sess.State() != session.Disconnected && !c.conn.Connected() {
		c.logger.Warn("reliable channel lost", zap.String("player_id", c.sess.PlayerID()))
		c.Disconnect()
		c.fatal = ErrConnectionLost
		return c.fatal
	}
	return nil
}

// Run ticks every interval until ctx is cancelled or Tick fails.
//
// Precondition: interval must be > 0.
// Postcondition: Returns nil on cancellation, otherwise the fatal tick error.
func (c *Client) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("client: tick interval must be > 0, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			if err := c.Tick(dt); err != nil {
				return err
			}
		}
	}
}
