package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/cory-johannsen/edgemultiplay/internal/game/spatial"
)

// GamePlayEvent is the generic room-scoped event. Consumers read the parallel
// arrays by a per-event convention; the codec never validates their lengths.
type GamePlayEvent struct {
	RoomID      string    `json:"roomId"`
	SenderID    string    `json:"senderId"`
	EventName   string    `json:"eventName"`
	StringData  []string  `json:"stringData"`
	IntegerData []int     `json:"integerData"`
	FloatData   []float64 `json:"floatData"`
	BooleanData []bool    `json:"booleanData"`
}

// gamePlayEventWire omits nil arrays but keeps empty ones, so that an empty
// array survives a round trip as empty and a nil one as nil.
type gamePlayEventWire struct {
	RoomID      string     `json:"roomId"`
	SenderID    string     `json:"senderId"`
	EventName   string     `json:"eventName"`
	StringData  *[]string  `json:"stringData,omitempty"`
	IntegerData *[]int     `json:"integerData,omitempty"`
	FloatData   *[]float64 `json:"floatData,omitempty"`
	BooleanData *[]bool    `json:"booleanData,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e GamePlayEvent) MarshalJSON() ([]byte, error) {
	w := gamePlayEventWire{RoomID: e.RoomID, SenderID: e.SenderID, EventName: e.EventName}
	if e.StringData != nil {
		w.StringData = &e.StringData
	}
	if e.IntegerData != nil {
		w.IntegerData = &e.IntegerData
	}
	if e.FloatData != nil {
		w.FloatData = &e.FloatData
	}
	if e.BooleanData != nil {
		w.BooleanData = &e.BooleanData
	}
	return json.Marshal(w)
}

// IndexError reports a read past the end of one of an event's arrays.
type IndexError struct {
	EventName string
	Array     string
	Index     int
	Len       int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("protocol: event %q %s[%d] out of range (len %d)", e.EventName, e.Array, e.Index, e.Len)
}

func (e GamePlayEvent) indexErr(array string, i, n int) error {
	return &IndexError{EventName: e.EventName, Array: array, Index: i, Len: n}
}

// StringAt returns StringData[i].
func (e GamePlayEvent) StringAt(i int) (string, error) {
	if i < 0 || i >= len(e.StringData) {
		return "", e.indexErr("stringData", i, len(e.StringData))
	}
	return e.StringData[i], nil
}

// IntAt returns IntegerData[i].
func (e GamePlayEvent) IntAt(i int) (int, error) {
	if i < 0 || i >= len(e.IntegerData) {
		return 0, e.indexErr("integerData", i, len(e.IntegerData))
	}
	return e.IntegerData[i], nil
}

// FloatAt returns FloatData[i].
func (e GamePlayEvent) FloatAt(i int) (float64, error) {
	if i < 0 || i >= len(e.FloatData) {
		return 0, e.indexErr("floatData", i, len(e.FloatData))
	}
	return e.FloatData[i], nil
}

// BoolAt returns BooleanData[i].
func (e GamePlayEvent) BoolAt(i int) (bool, error) {
	if i < 0 || i >= len(e.BooleanData) {
		return false, e.indexErr("booleanData", i, len(e.BooleanData))
	}
	return e.BooleanData[i], nil
}

// Vector3At reads three consecutive floats starting at start.
func (e GamePlayEvent) Vector3At(start int) (spatial.Vec3, error) {
	if start < 0 || len(e.FloatData) < start+3 {
		return spatial.Vec3{}, e.indexErr("floatData", start+2, len(e.FloatData))
	}
	return spatial.Vec3{X: e.FloatData[start], Y: e.FloatData[start+1], Z: e.FloatData[start+2]}, nil
}

// PositionAndRotationAt reads a position followed by Euler angles starting at start.
func (e GamePlayEvent) PositionAndRotationAt(start int) (spatial.PositionAndRotation, error) {
	pos, err := e.Vector3At(start)
	if err != nil {
		return spatial.PositionAndRotation{}, err
	}
	rot, err := e.Vector3At(start + 3)
	if err != nil {
		return spatial.PositionAndRotation{}, err
	}
	return spatial.PositionAndRotation{Position: pos, Rotation: rot}, nil
}

// MustVector3At is Vector3At for callers whose sender contract guarantees the layout.
// It panics on a short array.
func (e GamePlayEvent) MustVector3At(start int) spatial.Vec3 {
	v, err := e.Vector3At(start)
	if err != nil {
		panic(err)
	}
	return v
}

// MustPositionAndRotationAt panics on a short array.
func (e GamePlayEvent) MustPositionAndRotationAt(start int) spatial.PositionAndRotation {
	pr, err := e.PositionAndRotationAt(start)
	if err != nil {
		panic(err)
	}
	return pr
}

// NewEvent returns an event carrying only a name.
func NewEvent(name string) GamePlayEvent {
	return GamePlayEvent{EventName: name}
}

// PositionEvent carries a position in floatData[0:3].
func PositionEvent(name string, position spatial.Vec3) GamePlayEvent {
	return GamePlayEvent{EventName: name, FloatData: position.Slice()}
}

// RotationEvent carries Euler angles in floatData[0:3].
func RotationEvent(name string, eulers spatial.Vec3) GamePlayEvent {
	return GamePlayEvent{EventName: name, FloatData: eulers.Slice()}
}

// PositionAndRotationEvent carries a position in floatData[0:3] and Euler angles in floatData[3:6].
func PositionAndRotationEvent(name string, position, eulers spatial.Vec3) GamePlayEvent {
	return GamePlayEvent{EventName: name, FloatData: append(position.Slice(), eulers.Slice()...)}
}

// IntegersEvent carries a list of integers.
func IntegersEvent(name string, values []int) GamePlayEvent {
	return GamePlayEvent{EventName: name, IntegerData: append([]int(nil), values...)}
}

// FloatsEvent carries a list of floats.
func FloatsEvent(name string, values []float64) GamePlayEvent {
	return GamePlayEvent{EventName: name, FloatData: append([]float64(nil), values...)}
}

// StartProbe is the first datagram sent after the unreliable channel opens so the
// relay learns the client's public UDP endpoint.
func StartProbe() GamePlayEvent {
	return GamePlayEvent{StringData: []string{"Start"}}
}
