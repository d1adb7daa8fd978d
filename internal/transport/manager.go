package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/edgemultiplay/internal/protocol"
)

const localHost = "127.0.0.1"

// ErrAlreadyConnected is returned by Connect while a reliable channel is open.
var ErrAlreadyConnected = errors.New("transport: already connected")

// ErrNotConnected is returned by SendReliable without an open reliable channel.
var ErrNotConnected = errors.New("transport: not connected")

// ConnectError reports a failure to open the reliable channel.
type ConnectError struct {
	Reason string
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: connect failed: %s: %v", e.Reason, e.Err)
	}
	return "transport: connect failed: " + e.Reason
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Endpoint addresses the relay server.
type Endpoint struct {
	// UseLocalHost overrides Host with 127.0.0.1 for both channels.
	UseLocalHost   bool
	Host           string
	ReliablePort   int
	UnreliablePort int
	Path           string
	// Timeout bounds the reliable handshake; zero means no extra bound.
	Timeout time.Duration
}

// ResolvedHost returns the host both channels dial.
func (e Endpoint) ResolvedHost() string {
	if e.UseLocalHost {
		return localHost
	}
	return e.Host
}

// URL returns the websocket URL of the reliable channel.
func (e Endpoint) URL() (string, error) {
	host := e.ResolvedHost()
	if host == "" {
		return "", errors.New("empty host")
	}
	if e.ReliablePort <= 0 || e.ReliablePort > 65535 {
		return "", fmt.Errorf("reliable port %d out of range", e.ReliablePort)
	}
	path := e.Path
	if path == "" {
		path = "/"
	}
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(host, strconv.Itoa(e.ReliablePort)), Path: path}
	return u.String(), nil
}

type channel struct {
	cancel context.CancelFunc
	group  *errgroup.Group
	live   atomic.Bool
}

func (c *channel) stop() {
	c.cancel()
	_ = c.group.Wait()
}

// Manager owns both channels and their inbound queues.
//
// Connect, OpenUnreliable, CloseUnreliable and Disconnect must be called from
// one goroutine. Sends may be called from that goroutine only.
type Manager struct {
	logger     *zap.Logger
	reliableD  ReliableDialer
	unreliable UnreliableDialer

	reliableIn   *Inbox
	unreliableIn *Inbox

	writeMu  deadlock.Mutex
	rconn    ReliableConn
	rchan    *channel
	uconn    UnreliableConn
	uchan    *channel
	endpoint Endpoint
}

// NewManager creates a Manager.
//
// Precondition: logger must not be nil. Nil dialers select the websocket and
// UDP defaults.
func NewManager(logger *zap.Logger, reliable ReliableDialer, unreliable UnreliableDialer) *Manager {
	if reliable == nil {
		reliable = WebsocketDialer{}
	}
	if unreliable == nil {
		unreliable = UDPDialer{}
	}
	return &Manager{
		logger:       logger,
		reliableD:    reliable,
		unreliable:   unreliable,
		reliableIn:   NewInbox(),
		unreliableIn: NewInbox(),
	}
}

// ReliableInbox returns the reliable channel's inbound queue.
func (m *Manager) ReliableInbox() *Inbox { return m.reliableIn }

// UnreliableInbox returns the unreliable channel's inbound queue.
func (m *Manager) UnreliableInbox() *Inbox { return m.unreliableIn }

// Endpoint returns the endpoint of the last successful Connect.
func (m *Manager) Endpoint() Endpoint { return m.endpoint }

// Connected reports whether the reliable read pump is running.
func (m *Manager) Connected() bool {
	return m.rchan != nil && m.rchan.live.Load()
}

// UnreliableOpen reports whether the datagram channel is live.
func (m *Manager) UnreliableOpen() bool {
	return m.uchan != nil && m.uchan.live.Load()
}

// Connect opens the reliable channel and starts its read pump. The pump runs
// until ctx is cancelled, the server closes the channel, or Disconnect.
//
// Precondition: no reliable channel is open.
// Postcondition: On success the channel is live; otherwise a *ConnectError is
// returned and nothing is retained.
func (m *Manager) Connect(ctx context.Context, ep Endpoint) error {
	if m.rconn != nil {
		return ErrAlreadyConnected
	}
	wsURL, err := ep.URL()
	if err != nil {
		return &ConnectError{Reason: "malformed address", Err: err}
	}

	dialCtx := ctx
	if ep.Timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, ep.Timeout)
		defer cancel()
	}
	start := time.Now()
	conn, err := m.reliableD.Dial(dialCtx, wsURL)
	if err != nil {
		return &ConnectError{Reason: "dial " + wsURL, Err: err}
	}
	m.logger.Info("reliable channel open",
		zap.String("url", wsURL),
		zap.Duration("elapsed", time.Since(start)),
	)

	m.rconn = conn
	m.endpoint = ep
	m.rchan = m.startPump(ctx, "reliable", conn, func() ([]byte, error) {
		return conn.ReadMessage()
	}, m.reliableIn)
	return nil
}

// OpenUnreliable opens the datagram channel to host:port from localPort and
// starts its read pump. While a channel is live a second call is a no-op.
func (m *Manager) OpenUnreliable(ctx context.Context, host string, port, localPort int) error {
	if m.UnreliableOpen() {
		return nil
	}
	if m.uchan != nil {
		m.CloseUnreliable()
	}
	remote := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := m.unreliable.Dial(ctx, remote, localPort)
	if err != nil {
		return fmt.Errorf("opening unreliable channel to %s: %w", remote, err)
	}
	m.logger.Info("unreliable channel open",
		zap.String("remote", remote),
		zap.Int("local_port", localPort),
	)

	m.uconn = conn
	buf := make([]byte, udpReadBuffer)
	m.uchan = m.startPump(ctx, "unreliable", conn, func() ([]byte, error) {
		for {
			n, err := conn.Read(buf)
			if err == nil {
				return append([]byte(nil), buf[:n]...), nil
			}
			// ICMP port-unreachable surfaces as a read error on a connected
			// socket; only a closed socket ends the pump.
			if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil, err
			}
			m.logger.Debug("datagram read failed", zap.Error(err))
		}
	}, m.unreliableIn)
	return nil
}

type closer interface{ Close() error }

// startPump reads frames into inbox until the channel fails or is stopped.
// The second group member closes the connection to unblock the reader.
func (m *Manager) startPump(ctx context.Context, name string, conn closer, read func() ([]byte, error), inbox *Inbox) *channel {
	pctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(pctx)
	ch := &channel{cancel: cancel, group: g}
	ch.live.Store(true)

	g.Go(func() error {
		defer ch.live.Store(false)
		for {
			data, err := read()
			if err != nil {
				if gctx.Err() == nil {
					m.logger.Info("channel closed by peer",
						zap.String("channel", name),
						zap.Error(err),
					)
				}
				return err
			}
			if len(data) == 0 {
				continue
			}
			inbox.Push(data)
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		ch.live.Store(false)
		_ = conn.Close()
		return nil
	})
	return ch
}

// SendReliable writes one frame to the reliable channel.
func (m *Manager) SendReliable(data []byte) error {
	if !m.Connected() {
		return ErrNotConnected
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := m.rconn.WriteMessage(data); err != nil {
		return fmt.Errorf("sending reliable frame: %w", err)
	}
	return nil
}

// SendUnreliable writes one datagram. It is a no-op while the datagram
// channel is not live. Datagrams above protocol.MaxDatagramSize are sent but
// logged.
func (m *Manager) SendUnreliable(data []byte) error {
	if !m.UnreliableOpen() {
		return nil
	}
	if len(data) > protocol.MaxDatagramSize {
		m.logger.Warn("oversize datagram",
			zap.Int("size", len(data)),
			zap.Int("limit", protocol.MaxDatagramSize),
		)
	}
	if _, err := m.uconn.Write(data); err != nil {
		return fmt.Errorf("sending datagram: %w", err)
	}
	return nil
}

// CloseUnreliable stops the datagram pump and releases its socket.
func (m *Manager) CloseUnreliable() {
	if m.uchan == nil {
		return
	}
	m.uchan.stop()
	m.uchan = nil
	m.uconn = nil
	m.unreliableIn.Drain()
	m.logger.Debug("unreliable channel closed")
}

// Disconnect closes both channels and clears the inbound queues. It is
// idempotent.
func (m *Manager) Disconnect() {
	m.CloseUnreliable()
	if m.rchan == nil {
		return
	}
	m.rchan.stop()
	m.rchan = nil
	m.rconn = nil
	m.reliableIn.Drain()
	m.logger.Info("reliable channel closed")
}
