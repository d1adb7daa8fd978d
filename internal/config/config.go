// Package config provides Viper-based configuration loading for the edgemultiplay client.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default relay server ports.
const (
	DefaultReliablePort   = 3000
	DefaultUnreliablePort = 5000
)

// ServerConfig holds the relay server endpoint settings.
type ServerConfig struct {
	// Host is the relay server address (hostname or IP).
	Host string `mapstructure:"host"`
	// ReliablePort is the websocket port for room and session messages.
	ReliablePort int `mapstructure:"reliable_port"`
	// UnreliablePort is the UDP port for transform sync datagrams.
	UnreliablePort int `mapstructure:"unreliable_port"`
	// Path is the websocket URL path.
	Path string `mapstructure:"path"`
	// UseLocalHost selects the locally configured host and ports over discovery.
	UseLocalHost bool `mapstructure:"use_local_host"`
	// ConnectTimeout bounds the websocket handshake.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// ReliableAddr returns the "host:port" websocket address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) ReliableAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.ReliablePort)
}

// UnreliableAddr returns the "host:port" UDP address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) UnreliableAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.UnreliablePort)
}

// ClientConfig holds per-client gameplay defaults.
type ClientConfig struct {
	// TickInterval is the duration between dispatcher ticks.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// PlayerName is the display name sent with room requests. Empty means "Player N".
	PlayerName string `mapstructure:"player_name"`
	// Avatar is the spawn template index sent with room requests.
	Avatar int `mapstructure:"avatar"`
	// MaxPlayers is the room capacity requested on create.
	MaxPlayers int `mapstructure:"max_players"`
	// MinPlayersToStart is the member count that starts the game. 0 means MaxPlayers.
	MinPlayersToStart int `mapstructure:"min_players_to_start"`
}

// SpawnConfig points at the spawn template file.
type SpawnConfig struct {
	// File is the path to the YAML spawn template and spawn table file.
	File string `mapstructure:"file"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// File, when non-empty, sends log output to a rotating file instead of stderr.
	File string `mapstructure:"file"`
	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files kept.
	MaxBackups int `mapstructure:"max_backups"`
	// MaxAgeDays is the retention period for rotated files.
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// BotConfig holds settings for the headless scripted client.
type BotConfig struct {
	// Script is the Lua behaviour file. Empty runs the built-in join-and-idle behaviour.
	Script string `mapstructure:"script"`
	// Count is the number of bot clients to run.
	Count int `mapstructure:"count"`
	// Concurrency bounds how many bots connect at the same time.
	Concurrency int `mapstructure:"concurrency"`
	// InstructionLimit caps Lua opcodes per hook call. 0 uses the scripting default.
	InstructionLimit int `mapstructure:"instruction_limit"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Client  ClientConfig  `mapstructure:"client"`
	Spawn   SpawnConfig   `mapstructure:"spawn"`
	Logging LoggingConfig `mapstructure:"logging"`
	Bot     BotConfig     `mapstructure:"bot"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateClient(c.Client); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateBot(c.Bot); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Host == "" {
		errs = append(errs, "server.host must not be empty")
	}
	if !validPort(s.ReliablePort) {
		errs = append(errs, fmt.Sprintf("server.reliable_port must be 1-65535, got %d", s.ReliablePort))
	}
	if !validPort(s.UnreliablePort) {
		errs = append(errs, fmt.Sprintf("server.unreliable_port must be 1-65535, got %d", s.UnreliablePort))
	}
	if s.ConnectTimeout < 0 {
		errs = append(errs, "server.connect_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateClient(c ClientConfig) error {
	var errs []string
	if c.TickInterval <= 0 {
		errs = append(errs, "client.tick_interval must be > 0")
	}
	if c.Avatar < 0 {
		errs = append(errs, fmt.Sprintf("client.avatar must be >= 0, got %d", c.Avatar))
	}
	if c.MaxPlayers < 2 {
		errs = append(errs, fmt.Sprintf("client.max_players must be >= 2, got %d", c.MaxPlayers))
	}
	if c.MinPlayersToStart < 0 {
		errs = append(errs, fmt.Sprintf("client.min_players_to_start must be >= 0, got %d", c.MinPlayersToStart))
	}
	if c.MinPlayersToStart > c.MaxPlayers {
		errs = append(errs, "client.min_players_to_start must not exceed client.max_players")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	if l.File != "" && l.MaxSizeMB < 1 {
		return fmt.Errorf("logging.max_size_mb must be >= 1 when logging.file is set, got %d", l.MaxSizeMB)
	}
	return nil
}

func validateBot(b BotConfig) error {
	if b.Count < 0 {
		return fmt.Errorf("bot.count must be >= 0, got %d", b.Count)
	}
	if b.Concurrency < 1 {
		return errors.New("bot.concurrency must be >= 1")
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with EDGE_ prefix
	v.SetEnvPrefix("EDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance carrying only the built-in defaults.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.reliable_port", DefaultReliablePort)
	v.SetDefault("server.unreliable_port", DefaultUnreliablePort)
	v.SetDefault("server.path", "/")
	v.SetDefault("server.use_local_host", true)
	v.SetDefault("server.connect_timeout", "10s")

	v.SetDefault("client.tick_interval", "16ms")
	v.SetDefault("client.player_name", "")
	v.SetDefault("client.avatar", 0)
	v.SetDefault("client.max_players", 2)
	v.SetDefault("client.min_players_to_start", 0)

	v.SetDefault("spawn.file", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 7)

	v.SetDefault("bot.script", "")
	v.SetDefault("bot.count", 1)
	v.SetDefault("bot.concurrency", 4)
	v.SetDefault("bot.instruction_limit", 0)
}
