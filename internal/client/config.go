package client

import (
	"fmt"

	"github.com/cory-johannsen/edgemultiplay/internal/config"
	"github.com/cory-johannsen/edgemultiplay/internal/game/player"
	"github.com/cory-johannsen/edgemultiplay/internal/transport"
)

// EndpointFromConfig maps the server section onto a transport endpoint.
func EndpointFromConfig(s config.ServerConfig) transport.Endpoint {
	return transport.Endpoint{
		UseLocalHost:   s.UseLocalHost,
		Host:           s.Host,
		ReliablePort:   s.ReliablePort,
		UnreliablePort: s.UnreliablePort,
		Path:           s.Path,
		Timeout:        s.ConnectTimeout,
	}
}

// OptionsFromConfig builds client options from cfg, loading the spawn file
// when one is configured.
//
// Precondition: cfg must be validated.
// Postcondition: Returns options with a validated spawn configuration, or an
// error if the spawn file cannot be loaded.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	opts := Options{
		Endpoint:   EndpointFromConfig(cfg.Server),
		PlayerName: cfg.Client.PlayerName,
	}
	if cfg.Spawn.File == "" {
		opts.Spawn = player.DefaultSpawnConfig()
		return opts, nil
	}
	spawn, err := player.LoadSpawnConfig(cfg.Spawn.File)
	if err != nil {
		return Options{}, fmt.Errorf("loading spawn config: %w", err)
	}
	opts.Spawn = spawn
	return opts, nil
}
