package player

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/edgemultiplay/internal/game/spatial"
	"github.com/cory-johannsen/edgemultiplay/internal/protocol"
)

// ConfigError reports a spawn configuration that cannot render the room the
// server assigned. It is fatal to the client's run loop.
type ConfigError struct {
	PlayerID string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("player: spawning %q: %s", e.PlayerID, e.Reason)
}

// ObservableTemplate describes the transform sync attached to a player avatar.
type ObservableTemplate struct {
	Mode                string  `yaml:"mode"`
	InterpolatePosition bool    `yaml:"interpolate_position"`
	InterpolateRotation bool    `yaml:"interpolate_rotation"`
	InterpolationFactor float64 `yaml:"interpolation_factor"`
}

// SyncMode parses Mode.
func (o ObservableTemplate) SyncMode() (protocol.SyncMode, error) {
	return protocol.ParseSyncMode(o.Mode)
}

// Template is one spawnable avatar, selected by a player's avatar index.
type Template struct {
	Name string `yaml:"name"`
	// Observable, when set, syncs the avatar's transform as the owner's
	// first observable on every peer.
	Observable *ObservableTemplate `yaml:"observable"`
}

// SpawnConfig holds the avatar templates and the per-playerIndex spawn table.
//
// Invariant: Templates is indexed by avatar; SpawnPoints by playerIndex.
type SpawnConfig struct {
	Templates   []Template                    `yaml:"templates"`
	SpawnPoints []spatial.PositionAndRotation `yaml:"spawn_points"`
}

// Validate checks that the configuration can spawn at least one player.
//
// Postcondition: nil return guarantees at least one template with a non-empty
// name, at least one spawn point, and that every observable template has a
// known sync mode and a non-negative interpolation factor.
func (c *SpawnConfig) Validate() error {
	var errs []error
	if len(c.Templates) == 0 {
		errs = append(errs, errors.New("templates must not be empty"))
	}
	if len(c.SpawnPoints) == 0 {
		errs = append(errs, errors.New("spawn_points must not be empty"))
	}
	for i, t := range c.Templates {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("templates[%d]: name must not be empty", i))
		}
		if t.Observable == nil {
			continue
		}
		if _, err := t.Observable.SyncMode(); err != nil {
			errs = append(errs, fmt.Errorf("templates[%d] %q: %w", i, t.Name, err))
		}
		if t.Observable.InterpolationFactor < 0 {
			errs = append(errs, fmt.Errorf("templates[%d] %q: interpolation_factor must be >= 0", i, t.Name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("spawn config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseSpawnConfig decodes and validates YAML spawn configuration.
func ParseSpawnConfig(data []byte) (*SpawnConfig, error) {
	var c SpawnConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing spawn config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadSpawnConfig reads and validates the spawn configuration at path.
//
// Precondition: path must name a readable YAML file.
// Postcondition: Returns a validated *SpawnConfig or a non-nil error.
func LoadSpawnConfig(path string) (*SpawnConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading spawn config %q: %w", path, err)
	}
	c, err := ParseSpawnConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// DefaultSpawnConfig is a single capsule template and four spawn points on a
// square around the origin.
func DefaultSpawnConfig() *SpawnConfig {
	return &SpawnConfig{
		Templates: []Template{{
			Name: "capsule",
			Observable: &ObservableTemplate{
				Mode:                protocol.SyncPositionAndRotation.String(),
				InterpolatePosition: true,
				InterpolateRotation: true,
				InterpolationFactor: 15,
			},
		}},
		SpawnPoints: []spatial.PositionAndRotation{
			{Position: spatial.Vec3{X: -5, Z: -5}},
			{Position: spatial.Vec3{X: 5, Z: -5}, Rotation: spatial.Vec3{Y: 90}},
			{Position: spatial.Vec3{X: 5, Z: 5}, Rotation: spatial.Vec3{Y: 180}},
			{Position: spatial.Vec3{X: -5, Z: 5}, Rotation: spatial.Vec3{Y: 270}},
		},
	}
}
