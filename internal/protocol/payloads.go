package protocol

import (
	"fmt"

	"github.com/cory-johannsen/edgemultiplay/internal/game/spatial"
)

// Reserved event names used by the observation engine.
const (
	EventObserverSync         = "EdgeMultiplayObserver"
	EventNewObservableCreated = "NewObservableCreated"
	EventOwnershipChange      = "ObservableOwnershipChange"
	EventTakeOverObservable   = "TakeOverObservable"
	EventOwnershipRequest     = "OwnershipRequest"
)

// IsSyncControl reports whether name is a reliable-channel ownership or
// registration event routed to the observation engine.
func IsSyncControl(name string) bool {
	switch name {
	case EventNewObservableCreated, EventOwnershipChange, EventTakeOverObservable, EventOwnershipRequest:
		return true
	}
	return false
}

// SyncMode selects which transform components an observable synchronizes.
type SyncMode int

const (
	SyncPosition SyncMode = iota
	SyncRotation
	SyncPositionAndRotation
	SyncLocalPosition
	SyncLocalRotation
	SyncLocalPositionAndRotation
)

// Valid reports whether m is a known mode.
func (m SyncMode) Valid() bool {
	return m >= SyncPosition && m <= SyncLocalPositionAndRotation
}

// HasPosition reports whether m carries a position.
func (m SyncMode) HasPosition() bool {
	switch m {
	case SyncPosition, SyncPositionAndRotation, SyncLocalPosition, SyncLocalPositionAndRotation:
		return true
	}
	return false
}

// HasRotation reports whether m carries a rotation.
func (m SyncMode) HasRotation() bool {
	switch m {
	case SyncRotation, SyncPositionAndRotation, SyncLocalRotation, SyncLocalPositionAndRotation:
		return true
	}
	return false
}

// IsLocal reports whether m reads and writes local-space components.
func (m SyncMode) IsLocal() bool {
	return m >= SyncLocalPosition && m <= SyncLocalPositionAndRotation
}

// FloatCount is the number of floats a sync payload carries for m.
func (m SyncMode) FloatCount() int {
	n := 0
	if m.HasPosition() {
		n += 3
	}
	if m.HasRotation() {
		n += 3
	}
	return n
}

func (m SyncMode) String() string {
	switch m {
	case SyncPosition:
		return "position"
	case SyncRotation:
		return "rotation"
	case SyncPositionAndRotation:
		return "position_and_rotation"
	case SyncLocalPosition:
		return "local_position"
	case SyncLocalRotation:
		return "local_rotation"
	case SyncLocalPositionAndRotation:
		return "local_position_and_rotation"
	default:
		return fmt.Sprintf("SyncMode(%d)", int(m))
	}
}

// ParseSyncMode maps a config string to a SyncMode.
func ParseSyncMode(s string) (SyncMode, error) {
	for m := SyncPosition; m <= SyncLocalPositionAndRotation; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown sync mode %q", s)
}

// PayloadError reports a reserved event whose arrays do not match its contract.
type PayloadError struct {
	EventName string
	Reason    string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("protocol: malformed %s payload: %s", e.EventName, e.Reason)
}

func requireLens(ev GamePlayEvent, strs, ints, floats, bools int) error {
	switch {
	case len(ev.StringData) < strs:
		return &PayloadError{ev.EventName, fmt.Sprintf("stringData has %d entries, want %d", len(ev.StringData), strs)}
	case len(ev.IntegerData) < ints:
		return &PayloadError{ev.EventName, fmt.Sprintf("integerData has %d entries, want %d", len(ev.IntegerData), ints)}
	case len(ev.FloatData) < floats:
		return &PayloadError{ev.EventName, fmt.Sprintf("floatData has %d entries, want %d", len(ev.FloatData), floats)}
	case len(ev.BooleanData) < bools:
		return &PayloadError{ev.EventName, fmt.Sprintf("booleanData has %d entries, want %d", len(ev.BooleanData), bools)}
	}
	return nil
}

// ObserverSync is one transform snapshot for an observable, sent unreliably.
//
//	stringData  [ownerId]
//	integerData [syncMode, index]
//	floatData   position (3), rotation (3), or position then rotation (6)
type ObserverSync struct {
	OwnerID  string
	Index    int
	Mode     SyncMode
	Position spatial.Vec3
	Rotation spatial.Vec3
}

// Event encodes s as a GamePlayEvent.
func (s ObserverSync) Event() GamePlayEvent {
	floats := make([]float64, 0, 6)
	if s.Mode.HasPosition() {
		floats = append(floats, s.Position.Slice()...)
	}
	if s.Mode.HasRotation() {
		floats = append(floats, s.Rotation.Slice()...)
	}
	return GamePlayEvent{
		EventName:   EventObserverSync,
		StringData:  []string{s.OwnerID},
		IntegerData: []int{int(s.Mode), s.Index},
		FloatData:   floats,
	}
}

// ParseObserverSync decodes an EdgeMultiplayObserver event.
func ParseObserverSync(ev GamePlayEvent) (ObserverSync, error) {
	if err := requireLens(ev, 1, 2, 0, 0); err != nil {
		return ObserverSync{}, err
	}
	mode := SyncMode(ev.IntegerData[0])
	if !mode.Valid() {
		return ObserverSync{}, &PayloadError{ev.EventName, fmt.Sprintf("invalid sync mode %d", ev.IntegerData[0])}
	}
	if err := requireLens(ev, 1, 2, mode.FloatCount(), 0); err != nil {
		return ObserverSync{}, err
	}
	s := ObserverSync{OwnerID: ev.StringData[0], Mode: mode, Index: ev.IntegerData[1]}
	off := 0
	if mode.HasPosition() {
		s.Position = ev.MustVector3At(off)
		off += 3
	}
	if mode.HasRotation() {
		s.Rotation = ev.MustVector3At(off)
	}
	return s, nil
}

// NewObservable announces an observable created at runtime so peers mirror it.
//
//	stringData  [prefab, ownerId]
//	integerData [syncMode, index]
//	floatData   [px, py, pz, rx, ry, rz, interpolationFactor]
//	booleanData [interpolatePosition, interpolateRotation, squattingAllowed]
type NewObservable struct {
	Prefab              string
	OwnerID             string
	Index               int
	Mode                SyncMode
	Position            spatial.Vec3
	Rotation            spatial.Vec3
	InterpolationFactor float64
	InterpolatePosition bool
	InterpolateRotation bool
	SquattingAllowed    bool
}

// Event encodes n as a GamePlayEvent.
func (n NewObservable) Event() GamePlayEvent {
	floats := append(n.Position.Slice(), n.Rotation.Slice()...)
	floats = append(floats, n.InterpolationFactor)
	return GamePlayEvent{
		EventName:   EventNewObservableCreated,
		StringData:  []string{n.Prefab, n.OwnerID},
		IntegerData: []int{int(n.Mode), n.Index},
		FloatData:   floats,
		BooleanData: []bool{n.InterpolatePosition, n.InterpolateRotation, n.SquattingAllowed},
	}
}

// ParseNewObservable decodes a NewObservableCreated event.
func ParseNewObservable(ev GamePlayEvent) (NewObservable, error) {
	if err := requireLens(ev, 2, 2, 7, 3); err != nil {
		return NewObservable{}, err
	}
	mode := SyncMode(ev.IntegerData[0])
	if !mode.Valid() {
		return NewObservable{}, &PayloadError{ev.EventName, fmt.Sprintf("invalid sync mode %d", ev.IntegerData[0])}
	}
	return NewObservable{
		Prefab:              ev.StringData[0],
		OwnerID:             ev.StringData[1],
		Mode:                mode,
		Index:               ev.IntegerData[1],
		Position:            ev.MustVector3At(0),
		Rotation:            ev.MustVector3At(3),
		InterpolationFactor: ev.FloatData[6],
		InterpolatePosition: ev.BooleanData[0],
		InterpolateRotation: ev.BooleanData[1],
		SquattingAllowed:    ev.BooleanData[2],
	}, nil
}

// OwnershipChange re-homes an observable from one owner's list to another's.
//
//	stringData  [oldOwnerId, newOwnerId]
//	integerData [oldIndex]
type OwnershipChange struct {
	OldOwnerID string
	NewOwnerID string
	OldIndex   int
}

// Event encodes c as a GamePlayEvent.
func (c OwnershipChange) Event() GamePlayEvent {
	return GamePlayEvent{
		EventName:   EventOwnershipChange,
		StringData:  []string{c.OldOwnerID, c.NewOwnerID},
		IntegerData: []int{c.OldIndex},
	}
}

// ParseOwnershipChange decodes an ObservableOwnershipChange event.
func ParseOwnershipChange(ev GamePlayEvent) (OwnershipChange, error) {
	if err := requireLens(ev, 2, 1, 0, 0); err != nil {
		return OwnershipChange{}, err
	}
	return OwnershipChange{OldOwnerID: ev.StringData[0], NewOwnerID: ev.StringData[1], OldIndex: ev.IntegerData[0]}, nil
}

// OwnershipClaim is the payload shared by TakeOverObservable and OwnershipRequest.
//
//	stringData  [ownerId, requesterId]
//	integerData [index]
type OwnershipClaim struct {
	// Forced is true for TakeOverObservable and false for OwnershipRequest.
	Forced      bool
	OwnerID     string
	RequesterID string
	Index       int
}

// Event encodes c as a GamePlayEvent.
func (c OwnershipClaim) Event() GamePlayEvent {
	name := EventOwnershipRequest
	if c.Forced {
		name = EventTakeOverObservable
	}
	return GamePlayEvent{
		EventName:   name,
		StringData:  []string{c.OwnerID, c.RequesterID},
		IntegerData: []int{c.Index},
	}
}

// ParseOwnershipClaim decodes a TakeOverObservable or OwnershipRequest event.
func ParseOwnershipClaim(ev GamePlayEvent) (OwnershipClaim, error) {
	if ev.EventName != EventTakeOverObservable && ev.EventName != EventOwnershipRequest {
		return OwnershipClaim{}, &PayloadError{ev.EventName, "not an ownership claim"}
	}
	if err := requireLens(ev, 2, 1, 0, 0); err != nil {
		return OwnershipClaim{}, err
	}
	return OwnershipClaim{
		Forced:      ev.EventName == EventTakeOverObservable,
		OwnerID:     ev.StringData[0],
		RequesterID: ev.StringData[1],
		Index:       ev.IntegerData[0],
	}, nil
}
