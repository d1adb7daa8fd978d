package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// udpReadBuffer is the largest datagram the unreliable pump accepts.
const udpReadBuffer = 2048

const closeGrace = time.Second

// ReliableConn is an open message-oriented reliable channel.
type ReliableConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// ReliableDialer opens reliable channels.
type ReliableDialer interface {
	Dial(ctx context.Context, url string) (ReliableConn, error)
}

// UnreliableConn is an open datagram channel bound to one remote address.
type UnreliableConn interface {
	Read(buf []byte) (int, error)
	Write(data []byte) (int, error)
	Close() error
}

// UnreliableDialer opens datagram channels.
type UnreliableDialer interface {
	Dial(ctx context.Context, remote string, localPort int) (UnreliableConn, error)
}

// Discovery resolves the relay's datagram endpoint when the client is not
// configured for a local-host relay.
type Discovery interface {
	UnreliableEndpoint(ctx context.Context) (host string, port int, err error)
}

// WebsocketDialer dials the reliable channel with gorilla/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
}

// Dial opens a websocket text channel to url.
func (d WebsocketDialer) Dial(ctx context.Context, url string) (ReliableConn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake refused with status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(closeGrace))
	return c.conn.Close()
}

// UDPDialer dials the unreliable channel over UDP.
type UDPDialer struct{}

// Dial binds localPort (0 for ephemeral) and connects to remote.
func (UDPDialer) Dial(ctx context.Context, remote string, localPort int) (UnreliableConn, error) {
	d := net.Dialer{LocalAddr: &net.UDPAddr{Port: localPort}}
	conn, err := d.DialContext(ctx, "udp", remote)
	if err != nil {
		return nil, err
	}
	return conn.(*net.UDPConn), nil
}
