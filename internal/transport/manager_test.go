package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// echoServer upgrades every request and echoes text frames back.
func echoServer(t *testing.T) (host string, port int) {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	h, p, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	port, err = strconv.Atoi(p)
	require.NoError(t, err)
	return h, port
}

func waitFrames(t *testing.T, inbox *Inbox, n int) [][]byte {
	t.Helper()
	var got [][]byte
	require.Eventually(t, func() bool {
		got = append(got, inbox.Drain()...)
		return len(got) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestEndpoint_URL(t *testing.T) {
	u, err := Endpoint{Host: "relay.example", ReliablePort: 3000, Path: "/ws"}.URL()
	require.NoError(t, err)
	assert.Equal(t, "ws://relay.example:3000/ws", u)

	u, err = Endpoint{UseLocalHost: true, Host: "ignored", ReliablePort: 3000}.URL()
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:3000/", u)

	_, err = Endpoint{ReliablePort: 3000}.URL()
	assert.Error(t, err)
	_, err = Endpoint{Host: "h", ReliablePort: 70000}.URL()
	assert.Error(t, err)
}

func TestManager_ConnectMalformed(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t), nil, nil)
	err := m.Connect(context.Background(), Endpoint{Host: "", ReliablePort: 3000})
	var cerr *ConnectError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "malformed address", cerr.Reason)
	assert.False(t, m.Connected())
}

func TestManager_ConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	m := NewManager(zaptest.NewLogger(t), nil, nil)
	err = m.Connect(context.Background(), Endpoint{Host: "127.0.0.1", ReliablePort: port, Timeout: time.Second})
	var cerr *ConnectError
	require.True(t, errors.As(err, &cerr))
	assert.False(t, m.Connected())
}

func TestManager_HandshakeRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)
	h, p, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	port, _ := strconv.Atoi(p)

	m := NewManager(zaptest.NewLogger(t), nil, nil)
	err = m.Connect(context.Background(), Endpoint{Host: h, ReliablePort: port})
	var cerr *ConnectError
	require.True(t, errors.As(err, &cerr))
	assert.Contains(t, cerr.Error(), "403")
}

func TestManager_ReliableEcho(t *testing.T) {
	host, port := echoServer(t)
	m := NewManager(zaptest.NewLogger(t), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, m.Connect(ctx, Endpoint{Host: host, ReliablePort: port}))
	assert.True(t, m.Connected())
	assert.ErrorIs(t, m.Connect(ctx, Endpoint{Host: host, ReliablePort: port}), ErrAlreadyConnected)

	require.NoError(t, m.SendReliable([]byte("one")))
	require.NoError(t, m.SendReliable([]byte("two")))
	got := waitFrames(t, m.ReliableInbox(), 2)
	assert.Equal(t, [][]byte{[]byte("one"), []byte("two")}, got)

	m.Disconnect()
	m.Disconnect()
	assert.False(t, m.Connected())
	assert.ErrorIs(t, m.SendReliable([]byte("late")), ErrNotConnected)
}

func TestManager_SendUnreliableWithoutChannelIsNoop(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t), nil, nil)
	assert.NoError(t, m.SendUnreliable([]byte("x")))
	m.CloseUnreliable()
}

func TestManager_UnreliableLoopback(t *testing.T) {
	relay, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { relay.Close() })
	relayPort := relay.LocalAddr().(*net.UDPAddr).Port

	go func() {
		buf := make([]byte, udpReadBuffer)
		for {
			n, addr, err := relay.ReadFromUDP(buf)
			if err != nil {
				return
			}
			_, _ = relay.WriteToUDP(append([]byte("echo:"), buf[:n]...), addr)
		}
	}()

	m := NewManager(zaptest.NewLogger(t), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, m.OpenUnreliable(ctx, "127.0.0.1", relayPort, 0))
	require.True(t, m.UnreliableOpen())
	require.NoError(t, m.OpenUnreliable(ctx, "127.0.0.1", relayPort, 0), "second open is a no-op")

	require.NoError(t, m.SendUnreliable([]byte("ping")))
	got := waitFrames(t, m.UnreliableInbox(), 1)
	assert.Equal(t, "echo:ping", string(got[0]))

	big := make([]byte, 600)
	assert.NoError(t, m.SendUnreliable(big))

	m.CloseUnreliable()
	assert.False(t, m.UnreliableOpen())
	assert.NoError(t, m.SendUnreliable([]byte("dropped")))
}
