package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			ReliablePort:   3000,
			UnreliablePort: 5000,
			Path:           "/",
			UseLocalHost:   true,
			ConnectTimeout: 10 * time.Second,
		},
		Client: ClientConfig{
			TickInterval: 16 * time.Millisecond,
			MaxPlayers:   2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Bot: BotConfig{
			Count:       1,
			Concurrency: 4,
		},
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestServerAddrs(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "127.0.0.1:3000", cfg.Server.ReliableAddr())
	assert.Equal(t, "127.0.0.1:5000", cfg.Server.UnreliableAddr())
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := LoadFromViper(Defaults())
	require.NoError(t, err)
	assert.Equal(t, DefaultReliablePort, cfg.Server.ReliablePort)
	assert.Equal(t, DefaultUnreliablePort, cfg.Server.UnreliablePort)
	assert.Equal(t, 16*time.Millisecond, cfg.Client.TickInterval)
	assert.Equal(t, 2, cfg.Client.MaxPlayers)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	err := os.WriteFile(path, []byte(`
server:
  host: relay.example.com
  reliable_port: 3100
  unreliable_port: 5100
  path: /ws
  use_local_host: false
client:
  tick_interval: 20ms
  player_name: Alice
  max_players: 4
  min_players_to_start: 2
logging:
  level: debug
  format: console
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "relay.example.com", cfg.Server.Host)
	assert.Equal(t, 3100, cfg.Server.ReliablePort)
	assert.Equal(t, "/ws", cfg.Server.Path)
	assert.False(t, cfg.Server.UseLocalHost)
	assert.Equal(t, 20*time.Millisecond, cfg.Client.TickInterval)
	assert.Equal(t, "Alice", cfg.Client.PlayerName)
	assert.Equal(t, 2, cfg.Client.MinPlayersToStart)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestValidateLoggingLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := validConfig()
		cfg.Logging.Level = level
		assert.NoError(t, cfg.Validate(), "level %q should be valid", level)
	}
	cfg := validConfig()
	cfg.Logging.Level = "trace"
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingFileNeedsSize(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.File = "client.log"
	cfg.Logging.MaxSizeMB = 0
	assert.Error(t, cfg.Validate())

	cfg.Logging.MaxSizeMB = 10
	assert.NoError(t, cfg.Validate())
}

func TestValidateServerHostEmpty(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Host = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateMaxPlayersTooSmall(t *testing.T) {
	cfg := validConfig()
	cfg.Client.MaxPlayers = 1
	assert.Error(t, cfg.Validate())
}

func TestValidateMinExceedsMax(t *testing.T) {
	cfg := validConfig()
	cfg.Client.MaxPlayers = 2
	cfg.Client.MinPlayersToStart = 3
	assert.Error(t, cfg.Validate())
}

func TestValidateTickInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Client.TickInterval = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateBotConcurrency(t *testing.T) {
	cfg := validConfig()
	cfg.Bot.Concurrency = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateAggregatesViolations(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Host = ""
	cfg.Logging.Level = "loud"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.host")
	assert.Contains(t, err.Error(), "logging.level")
}

// Property-based tests

func TestPropertyValidPortRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.IntRange(1, 65535).Draw(t, "port")
		cfg := validConfig()
		cfg.Server.ReliablePort = port
		cfg.Server.UnreliablePort = port
		if err := cfg.Validate(); err != nil {
			t.Fatalf("valid port %d rejected: %v", port, err)
		}
	})
}

func TestPropertyInvalidPortRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.OneOf(
			rapid.IntRange(-1000, 0),
			rapid.IntRange(65536, 100000),
		).Draw(t, "port")
		cfg := validConfig()
		cfg.Server.UnreliablePort = port
		if err := cfg.Validate(); err == nil {
			t.Fatalf("invalid port %d accepted", port)
		}
	})
}

func TestPropertyMinPlayersNeverExceedsMax(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxPlayers := rapid.IntRange(2, 64).Draw(t, "max_players")
		minPlayers := rapid.IntRange(0, 128).Draw(t, "min_players")
		cfg := validConfig()
		cfg.Client.MaxPlayers = maxPlayers
		cfg.Client.MinPlayersToStart = minPlayers
		err := cfg.Validate()
		if minPlayers <= maxPlayers && err != nil {
			t.Fatalf("min=%d max=%d rejected: %v", minPlayers, maxPlayers, err)
		}
		if minPlayers > maxPlayers && err == nil {
			t.Fatalf("min=%d > max=%d accepted", minPlayers, maxPlayers)
		}
	})
}
