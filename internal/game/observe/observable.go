// Package observe keeps transform-bearing objects synchronized across the
// room. Every observable has exactly one owner, the only peer that sends its
// transform; all other peers apply what they receive.
package observe

import (
	"github.com/google/uuid"

	"github.com/cory-johannsen/edgemultiplay/internal/game/spatial"
	"github.com/cory-johannsen/edgemultiplay/internal/protocol"
)

// Target is the transform an observable reads and writes.
type Target interface {
	Position() spatial.Vec3
	SetPosition(spatial.Vec3)
	Rotation() spatial.Vec3
	SetRotation(spatial.Vec3)
	LocalPosition() spatial.Vec3
	SetLocalPosition(spatial.Vec3)
	LocalRotation() spatial.Vec3
	SetLocalRotation(spatial.Vec3)
}

// Kinematic is implemented by targets whose local simulation must be
// suspended while another peer owns them.
type Kinematic interface {
	SetKinematic(bool)
}

// Options configures a registration.
type Options struct {
	Mode                protocol.SyncMode
	InterpolatePosition bool
	InterpolateRotation bool
	// InterpolationFactor scales elapsed seconds into the lerp fraction.
	InterpolationFactor float64
	// SquattingAllowed lets a non-owner force a takeover.
	SquattingAllowed bool
	// Prefab names what peers instantiate for an announced observable.
	Prefab string
}

// Observable is a registered transform-sync binding.
type Observable struct {
	id     uuid.UUID
	target Target
	opts   Options

	ownerID string
	index   int

	sent         bool
	lastPosition spatial.Vec3
	lastRotation spatial.Vec3

	recvPosition spatial.Vec3
	recvRotation spatial.Vec3
}

func newObservable(target Target, opts Options) *Observable {
	o := &Observable{id: uuid.New(), target: target, opts: opts, index: -1}
	o.recvPosition, o.recvRotation = o.read()
	return o
}

// ID is a local identity; it is never sent on the wire.
func (o *Observable) ID() uuid.UUID { return o.id }

// Target returns the synchronized transform.
func (o *Observable) Target() Target { return o.target }

// OwnerID returns the current owner's player ID, or "" for an unclaimed orphan.
func (o *Observable) OwnerID() string { return o.ownerID }

// Index returns the position in the owner's list, or -1 while unowned. It
// changes whenever that list changes.
func (o *Observable) Index() int { return o.index }

// Mode returns the sync mode.
func (o *Observable) Mode() protocol.SyncMode { return o.opts.Mode }

// Options returns the registration options.
func (o *Observable) Options() Options { return o.opts }

// SquattingAllowed reports whether non-owners may force a takeover.
func (o *Observable) SquattingAllowed() bool { return o.opts.SquattingAllowed }

// Received returns the latest snapshot received from the owner.
func (o *Observable) Received() (position, rotation spatial.Vec3) {
	return o.recvPosition, o.recvRotation
}

// read returns the target's position and rotation in the mode's space.
func (o *Observable) read() (spatial.Vec3, spatial.Vec3) {
	if o.opts.Mode.IsLocal() {
		return o.target.LocalPosition(), o.target.LocalRotation()
	}
	return o.target.Position(), o.target.Rotation()
}

func (o *Observable) write(position, rotation spatial.Vec3) {
	if o.opts.Mode.IsLocal() {
		if o.opts.Mode.HasPosition() {
			o.target.SetLocalPosition(position)
		}
		if o.opts.Mode.HasRotation() {
			o.target.SetLocalRotation(rotation)
		}
		return
	}
	if o.opts.Mode.HasPosition() {
		o.target.SetPosition(position)
	}
	if o.opts.Mode.HasRotation() {
		o.target.SetRotation(rotation)
	}
}

// dirty reports whether the target differs from the last sent snapshot in any
// synchronized component. Comparison is exact.
func (o *Observable) dirty() bool {
	if !o.sent {
		return true
	}
	pos, rot := o.read()
	if o.opts.Mode.HasPosition() && pos != o.lastPosition {
		return true
	}
	if o.opts.Mode.HasRotation() && rot != o.lastRotation {
		return true
	}
	return false
}

// snapshot builds the outbound sync payload and records it as last sent.
func (o *Observable) snapshot() protocol.ObserverSync {
	pos, rot := o.read()
	o.sent = true
	o.lastPosition, o.lastRotation = pos, rot
	return protocol.ObserverSync{
		OwnerID:  o.ownerID,
		Index:    o.index,
		Mode:     o.opts.Mode,
		Position: pos,
		Rotation: rot,
	}
}

// receive stores the components of s that its mode carries.
func (o *Observable) receive(s protocol.ObserverSync) {
	if s.Mode.HasPosition() {
		o.recvPosition = s.Position
	}
	if s.Mode.HasRotation() {
		o.recvRotation = s.Rotation
	}
}

// apply moves the target toward the received snapshot. dt is elapsed seconds.
func (o *Observable) apply(dt float64) {
	pos, rot := o.read()
	t := dt * o.opts.InterpolationFactor
	if o.opts.Mode.HasPosition() {
		if o.opts.InterpolatePosition {
			pos = spatial.Lerp(pos, o.recvPosition, t)
		} else {
			pos = o.recvPosition
		}
	}
	if o.opts.Mode.HasRotation() {
		if o.opts.InterpolateRotation {
			rot = spatial.LerpAngles(rot, o.recvRotation, t)
		} else {
			rot = o.recvRotation
		}
	}
	o.write(pos, rot)
}

// setAuthority makes the target kinematic unless the local peer owns it.
func (o *Observable) setAuthority(local bool) {
	if k, ok := o.target.(Kinematic); ok {
		k.SetKinematic(!local)
	}
	if local {
		// A new owner starts from its own state; force the first send.
		o.sent = false
	} else {
		o.recvPosition, o.recvRotation = o.read()
	}
}

// Observer is one owner's ordered observable list.
type Observer struct {
	OwnerID     string
	observables []*Observable
}

// Observables returns the list in index order.
func (ob *Observer) Observables() []*Observable {
	return append([]*Observable(nil), ob.observables...)
}

// Len returns the number of observables.
func (ob *Observer) Len() int { return len(ob.observables) }

// At returns the observable at index.
func (ob *Observer) At(index int) (*Observable, bool) {
	if index < 0 || index >= len(ob.observables) {
		return nil, false
	}
	return ob.observables[index], true
}

func (ob *Observer) add(o *Observable) {
	o.ownerID = ob.OwnerID
	ob.observables = append(ob.observables, o)
	o.index = len(ob.observables) - 1
}

func (ob *Observer) remove(o *Observable) bool {
	for i, cur := range ob.observables {
		if cur == o {
			ob.observables = append(ob.observables[:i:i], ob.observables[i+1:]...)
			ob.reindex()
			return true
		}
	}
	return false
}

// reindex restores index == list position for every member.
func (ob *Observer) reindex() {
	for i, o := range ob.observables {
		o.index = i
	}
}
