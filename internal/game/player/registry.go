package player

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/edgemultiplay/internal/events"
	"github.com/cory-johannsen/edgemultiplay/internal/game/spatial"
	"github.com/cory-johannsen/edgemultiplay/internal/protocol"
)

// Registry owns the entities of the current room. It is used from the tick
// goroutine only.
type Registry struct {
	logger   *zap.Logger
	cfg      *SpawnConfig
	surface  *events.Surface
	net      Broadcaster
	entities []*Entity
}

// NewRegistry creates an empty Registry.
//
// Precondition: every argument must be non-nil; cfg must be validated.
func NewRegistry(logger *zap.Logger, cfg *SpawnConfig, surface *events.Surface, net Broadcaster) *Registry {
	return &Registry{logger: logger, cfg: cfg, surface: surface, net: net}
}

// Config returns the spawn configuration.
func (r *Registry) Config() *SpawnConfig { return r.cfg }

// Spawn instantiates the entity for p. A player that already has an entity
// is returned unchanged.
//
// Precondition: p.PlayerID must be non-empty.
// Postcondition: Returns the entity, or a *ConfigError when the avatar index
// or player index is outside the configured tables.
func (r *Registry) Spawn(p protocol.Player, roomID string, isLocal bool) (*Entity, error) {
	if e := r.find(p.PlayerID); e != nil {
		return e, nil
	}
	if p.PlayerAvatar < 0 || p.PlayerAvatar >= len(r.cfg.Templates) {
		return nil, &ConfigError{
			PlayerID: p.PlayerID,
			Reason:   fmt.Sprintf("avatar index %d outside %d templates", p.PlayerAvatar, len(r.cfg.Templates)),
		}
	}
	if p.PlayerIndex < 0 || p.PlayerIndex >= len(r.cfg.SpawnPoints) {
		return nil, &ConfigError{
			PlayerID: p.PlayerID,
			Reason:   fmt.Sprintf("player index %d outside %d spawn points", p.PlayerIndex, len(r.cfg.SpawnPoints)),
		}
	}

	name := p.PlayerName
	if name == "" {
		name = fmt.Sprintf("Player %d", p.PlayerIndex+1)
	}
	point := r.cfg.SpawnPoints[p.PlayerIndex]
	transform := spatial.NewTransform(name, point.Position, point.Rotation)
	transform.SetKinematic(!isLocal)

	e := &Entity{
		Player:    p,
		RoomID:    roomID,
		Name:      name,
		IsLocal:   isLocal,
		Template:  r.cfg.Templates[p.PlayerAvatar],
		Transform: transform,
		net:       r.net,
	}
	e.listen(r.surface)
	r.entities = append(r.entities, e)

	r.logger.Info("player spawned",
		zap.String("player_id", p.PlayerID),
		zap.String("name", name),
		zap.Int("player_index", p.PlayerIndex),
		zap.String("template", e.Template.Name),
		zap.Bool("local", isLocal),
	)
	return e, nil
}

func (r *Registry) find(playerID string) *Entity {
	for _, e := range r.entities {
		if e.Player.PlayerID == playerID {
			return e
		}
	}
	return nil
}

// Has reports whether playerID has an entity.
func (r *Registry) Has(playerID string) bool {
	return r.find(playerID) != nil
}

// Get returns the entity for playerID. A miss is logged.
func (r *Registry) Get(playerID string) (*Entity, bool) {
	if e := r.find(playerID); e != nil {
		return e, true
	}
	r.logger.Warn("player entity not found", zap.String("player_id", playerID))
	return nil, false
}

// GetByIndex returns the entity whose player has the given index. A miss is logged.
func (r *Registry) GetByIndex(index int) (*Entity, bool) {
	for _, e := range r.entities {
		if e.Player.PlayerIndex == index {
			return e, true
		}
	}
	r.logger.Warn("player entity not found", zap.Int("player_index", index))
	return nil, false
}

// Local returns the local player's entity.
func (r *Registry) Local() (*Entity, bool) {
	for _, e := range r.entities {
		if e.IsLocal {
			return e, true
		}
	}
	return nil, false
}

// All returns the entities in spawn order.
func (r *Registry) All() []*Entity {
	return append([]*Entity(nil), r.entities...)
}

// Len returns the number of spawned entities.
func (r *Registry) Len() int { return len(r.entities) }

// Destroy removes playerID's entity and its subscriptions.
//
// Postcondition: Returns false if no entity existed.
func (r *Registry) Destroy(playerID string) bool {
	for i, e := range r.entities {
		if e.Player.PlayerID != playerID {
			continue
		}
		e.stopListening()
		r.entities = append(r.entities[:i:i], r.entities[i+1:]...)
		r.logger.Info("player destroyed", zap.String("player_id", playerID))
		return true
	}
	return false
}

// Clear destroys every entity.
func (r *Registry) Clear() {
	for _, e := range r.entities {
		e.stopListening()
	}
	if len(r.entities) > 0 {
		r.logger.Info("players cleared", zap.Int("count", len(r.entities)))
	}
	r.entities = nil
}
