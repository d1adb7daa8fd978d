package observe

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/edgemultiplay/internal/events"
	"github.com/cory-johannsen/edgemultiplay/internal/game/spatial"
	"github.com/cory-johannsen/edgemultiplay/internal/protocol"
)

var (
	// ErrNotOwner is returned when a non-owner attempts an owner-only operation.
	ErrNotOwner = errors.New("observe: local player does not own the observable")
	// ErrSquattingNotAllowed is returned by RequestOwnershipTakeover for
	// observables registered without SquattingAllowed.
	ErrSquattingNotAllowed = errors.New("observe: observable does not allow takeover")
	// ErrUnowned is returned for operations on an unclaimed orphan.
	ErrUnowned = errors.New("observe: observable has no owner")
)

// Broadcaster sends gameplay events to the room. The implementation stamps
// room and sender IDs.
type Broadcaster interface {
	BroadcastReliable(ev protocol.GamePlayEvent) error
	BroadcastUnreliable(ev protocol.GamePlayEvent) error
}

// SessionView is the session state the engine consults.
type SessionView interface {
	PlayerID() string
	Playing() bool
	FirstMember() (protocol.Player, bool)
}

// Factory instantiates the target of an observable announced by a peer.
type Factory interface {
	New(prefab string, position, rotation spatial.Vec3) (Target, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(prefab string, position, rotation spatial.Vec3) (Target, error)

// New calls f.
func (f FactoryFunc) New(prefab string, position, rotation spatial.Vec3) (Target, error) {
	return f(prefab, position, rotation)
}

// TransformFactory creates a bare root transform named after the prefab.
var TransformFactory = FactoryFunc(func(prefab string, position, rotation spatial.Vec3) (Target, error) {
	return spatial.NewTransform(prefab, position, rotation), nil
})

// Engine holds every observer in the room. It is used from the tick
// goroutine only.
type Engine struct {
	logger  *zap.Logger
	sess    SessionView
	net     Broadcaster
	factory Factory
	surface *events.Surface

	observers map[string]*Observer
	orphans   []*Observable
}

// NewEngine creates an empty Engine. A nil factory selects TransformFactory.
//
// Precondition: logger, sess, net, and surface must not be nil.
func NewEngine(logger *zap.Logger, sess SessionView, net Broadcaster, factory Factory, surface *events.Surface) *Engine {
	if factory == nil {
		factory = TransformFactory
	}
	return &Engine{
		logger:    logger,
		sess:      sess,
		net:       net,
		factory:   factory,
		surface:   surface,
		observers: make(map[string]*Observer),
	}
}

func (e *Engine) isLocal(ownerID string) bool {
	local := e.sess.PlayerID()
	return local != "" && ownerID == local
}

func (e *Engine) observer(ownerID string, create bool) *Observer {
	ob, ok := e.observers[ownerID]
	if !ok && create {
		ob = &Observer{OwnerID: ownerID}
		e.observers[ownerID] = ob
	}
	return ob
}

// Observer returns ownerID's observer.
func (e *Engine) Observer(ownerID string) (*Observer, bool) {
	ob, ok := e.observers[ownerID]
	return ob, ok
}

// Lookup returns ownerID's observable at index.
func (e *Engine) Lookup(ownerID string, index int) (*Observable, bool) {
	ob, ok := e.observers[ownerID]
	if !ok {
		return nil, false
	}
	return ob.At(index)
}

// Orphans returns the registered orphans, claimed or not.
func (e *Engine) Orphans() []*Observable {
	return append([]*Observable(nil), e.orphans...)
}

// Register appends target to ownerID's list.
//
// When announce is true and the local player owns the observable, peers are
// told to instantiate opts.Prefab and mirror it. Objects every peer already
// has, such as player avatars, are registered with announce false.
//
// Precondition: opts.Mode must be valid.
// Postcondition: Index() equals the previous list length.
func (e *Engine) Register(ownerID string, target Target, opts Options, announce bool) (*Observable, error) {
	if !opts.Mode.Valid() {
		return nil, fmt.Errorf("observe: invalid sync mode %d", int(opts.Mode))
	}
	if ownerID == "" {
		return nil, ErrUnowned
	}
	o := newObservable(target, opts)
	e.observer(ownerID, true).add(o)
	o.setAuthority(e.isLocal(ownerID))

	e.logger.Debug("observable registered",
		zap.String("owner_id", ownerID),
		zap.Int("index", o.index),
		zap.Stringer("mode", opts.Mode),
	)

	if announce && e.isLocal(ownerID) {
		pos, rot := o.read()
		ev := protocol.NewObservable{
			Prefab:              opts.Prefab,
			OwnerID:             ownerID,
			Index:               o.index,
			Mode:                opts.Mode,
			Position:            pos,
			Rotation:            rot,
			InterpolationFactor: opts.InterpolationFactor,
			InterpolatePosition: opts.InterpolatePosition,
			InterpolateRotation: opts.InterpolateRotation,
			SquattingAllowed:    opts.SquattingAllowed,
		}.Event()
		if err := e.net.BroadcastReliable(ev); err != nil {
			return o, fmt.Errorf("announcing observable: %w", err)
		}
	}
	return o, nil
}

// RegisterOrphan registers a scene object that no player owns yet. Orphans
// are claimed by the lowest-indexed member when the game starts, in
// registration order, so every peer assigns the same indices.
func (e *Engine) RegisterOrphan(target Target, opts Options) (*Observable, error) {
	if !opts.Mode.Valid() {
		return nil, fmt.Errorf("observe: invalid sync mode %d", int(opts.Mode))
	}
	o := newObservable(target, opts)
	e.orphans = append(e.orphans, o)
	if e.sess.Playing() {
		e.ClaimOrphans()
	}
	return o, nil
}

// ClaimOrphans assigns every unclaimed orphan to the member with the lowest
// player index still in the room. It is a no-op until the game has started.
func (e *Engine) ClaimOrphans() {
	if !e.sess.Playing() {
		return
	}
	first, ok := e.sess.FirstMember()
	if !ok {
		e.logger.Warn("no room member to claim orphans")
		return
	}
	for _, o := range e.orphans {
		if o.ownerID != "" {
			continue
		}
		e.observer(first.PlayerID, true).add(o)
		o.setAuthority(e.isLocal(first.PlayerID))
		e.logger.Debug("orphan claimed",
			zap.String("owner_id", first.PlayerID),
			zap.Int("index", o.index),
		)
	}
}

func (e *Engine) unclaimed() bool {
	for _, o := range e.orphans {
		if o.ownerID == "" {
			return true
		}
	}
	return false
}

// Tick hands orphans whose owner left to the remaining members. It then sends
// dirty locally-owned observables and moves the rest toward their received
// snapshots.
func (e *Engine) Tick(dt time.Duration) {
	seconds := dt.Seconds()
	playing := e.sess.Playing()
	if playing && e.unclaimed() {
		e.ClaimOrphans()
	}
	for ownerID, ob := range e.observers {
		local := e.isLocal(ownerID)
		for _, o := range ob.observables {
			if !local {
				o.apply(seconds)
				continue
			}
			if !playing || !o.dirty() {
				continue
			}
			if err := e.net.BroadcastUnreliable(o.snapshot().Event()); err != nil {
				e.logger.Warn("sending observable sync failed",
					zap.String("owner_id", ownerID),
					zap.Int("index", o.index),
					zap.Error(err),
				)
			}
		}
	}
}

// ApplySync stores an inbound EdgeMultiplayObserver snapshot. Echoes of the
// local player's own sends, snapshots for locally-owned observables, and
// snapshots whose sender is not the observable's current owner are ignored.
// Malformed payloads are logged and dropped.
func (e *Engine) ApplySync(ev protocol.GamePlayEvent) {
	if e.isLocal(ev.SenderID) {
		return
	}
	s, err := protocol.ParseObserverSync(ev)
	if err != nil {
		e.logger.Warn("dropping malformed sync", zap.String("sender_id", ev.SenderID), zap.Error(err))
		return
	}
	if s.OwnerID != ev.SenderID {
		e.logger.Debug("dropping sync from non-owner",
			zap.String("sender_id", ev.SenderID),
			zap.String("owner_id", s.OwnerID),
		)
		return
	}
	o, ok := e.Lookup(s.OwnerID, s.Index)
	if !ok {
		e.logger.Debug("sync for unknown observable",
			zap.String("owner_id", s.OwnerID),
			zap.Int("index", s.Index),
		)
		return
	}
	if e.isLocal(o.ownerID) {
		return
	}
	o.receive(s)
}

// HandleControl routes a reserved reliable event: mirror creation, ownership
// change, forced takeover, or ownership request.
func (e *Engine) HandleControl(ev protocol.GamePlayEvent) {
	var err error
	switch ev.EventName {
	case protocol.EventNewObservableCreated:
		err = e.handleNewObservable(ev)
	case protocol.EventOwnershipChange:
		err = e.handleOwnershipChange(ev)
	case protocol.EventTakeOverObservable, protocol.EventOwnershipRequest:
		err = e.handleClaim(ev)
	default:
		err = fmt.Errorf("not a sync-control event: %q", ev.EventName)
	}
	if err != nil {
		e.logger.Warn("dropping sync-control event",
			zap.String("event", ev.EventName),
			zap.String("sender_id", ev.SenderID),
			zap.Error(err),
		)
	}
}

func (e *Engine) handleNewObservable(ev protocol.GamePlayEvent) error {
	if e.isLocal(ev.SenderID) {
		return nil
	}
	n, err := protocol.ParseNewObservable(ev)
	if err != nil {
		return err
	}
	if n.OwnerID != ev.SenderID {
		return fmt.Errorf("sender %q announced observable for %q", ev.SenderID, n.OwnerID)
	}
	target, err := e.factory.New(n.Prefab, n.Position, n.Rotation)
	if err != nil {
		return fmt.Errorf("instantiating %q: %w", n.Prefab, err)
	}
	o, err := e.Register(n.OwnerID, target, Options{
		Mode:                n.Mode,
		InterpolatePosition: n.InterpolatePosition,
		InterpolateRotation: n.InterpolateRotation,
		InterpolationFactor: n.InterpolationFactor,
		SquattingAllowed:    n.SquattingAllowed,
		Prefab:              n.Prefab,
	}, false)
	if err != nil {
		return err
	}
	if o.index != n.Index {
		e.logger.Warn("mirrored observable index differs from owner's",
			zap.String("owner_id", n.OwnerID),
			zap.Int("owner_index", n.Index),
			zap.Int("local_index", o.index),
		)
	}
	return nil
}

func (e *Engine) handleOwnershipChange(ev protocol.GamePlayEvent) error {
	if e.isLocal(ev.SenderID) {
		return nil
	}
	c, err := protocol.ParseOwnershipChange(ev)
	if err != nil {
		return err
	}
	if c.OldOwnerID != ev.SenderID {
		return fmt.Errorf("sender %q is not owner %q", ev.SenderID, c.OldOwnerID)
	}
	o, ok := e.Lookup(c.OldOwnerID, c.OldIndex)
	if !ok {
		return fmt.Errorf("no observable %s[%d]", c.OldOwnerID, c.OldIndex)
	}
	e.rehome(o, c.NewOwnerID)
	return nil
}

func (e *Engine) handleClaim(ev protocol.GamePlayEvent) error {
	claim, err := protocol.ParseOwnershipClaim(ev)
	if err != nil {
		return err
	}
	if claim.RequesterID != ev.SenderID {
		return fmt.Errorf("sender %q claimed for %q", ev.SenderID, claim.RequesterID)
	}
	if !e.isLocal(claim.OwnerID) {
		return nil
	}
	o, ok := e.Lookup(claim.OwnerID, claim.Index)
	if !ok {
		return fmt.Errorf("no observable %s[%d]", claim.OwnerID, claim.Index)
	}
	if !claim.Forced {
		e.surface.OwnershipRequested.Emit(claim)
		return nil
	}
	if !o.opts.SquattingAllowed {
		return ErrSquattingNotAllowed
	}
	return e.ChangeOwnership(o, claim.RequesterID)
}

// rehome moves o to newOwnerID's list and re-indexes both lists.
func (e *Engine) rehome(o *Observable, newOwnerID string) (oldOwnerID string, oldIndex int) {
	oldOwnerID, oldIndex = o.ownerID, o.index
	if old := e.observer(oldOwnerID, false); old != nil {
		old.remove(o)
	}
	e.observer(newOwnerID, true).add(o)
	o.setAuthority(e.isLocal(newOwnerID))
	e.logger.Info("observable ownership changed",
		zap.String("old_owner_id", oldOwnerID),
		zap.Int("old_index", oldIndex),
		zap.String("new_owner_id", newOwnerID),
		zap.Int("new_index", o.index),
	)
	return oldOwnerID, oldIndex
}

// ChangeOwnership transfers o to newOwnerID and tells the room.
//
// Precondition: the local player owns o.
// Postcondition: o is last in newOwnerID's list; both lists are re-indexed.
func (e *Engine) ChangeOwnership(o *Observable, newOwnerID string) error {
	if !e.isLocal(o.ownerID) {
		return ErrNotOwner
	}
	if newOwnerID == o.ownerID {
		return nil
	}
	oldOwnerID, oldIndex := e.rehome(o, newOwnerID)
	ev := protocol.OwnershipChange{OldOwnerID: oldOwnerID, NewOwnerID: newOwnerID, OldIndex: oldIndex}.Event()
	if err := e.net.BroadcastReliable(ev); err != nil {
		return fmt.Errorf("broadcasting ownership change: %w", err)
	}
	return nil
}

// RequestOwnershipTakeover asks the owner to hand o over unconditionally.
//
// Precondition: o allows squatting.
func (e *Engine) RequestOwnershipTakeover(o *Observable) error {
	if !o.opts.SquattingAllowed {
		return ErrSquattingNotAllowed
	}
	return e.claim(o, true)
}

// RequestOwnership asks the owner for o; the owner decides through the
// OwnershipRequested hook.
func (e *Engine) RequestOwnership(o *Observable) error {
	return e.claim(o, false)
}

func (e *Engine) claim(o *Observable, forced bool) error {
	if o.ownerID == "" {
		return ErrUnowned
	}
	if e.isLocal(o.ownerID) {
		return nil
	}
	ev := protocol.OwnershipClaim{
		Forced:      forced,
		OwnerID:     o.ownerID,
		RequesterID: e.sess.PlayerID(),
		Index:       o.index,
	}.Event()
	if err := e.net.BroadcastReliable(ev); err != nil {
		return fmt.Errorf("broadcasting %s: %w", ev.EventName, err)
	}
	return nil
}

// RemoveOwner drops ownerID's observer. Orphans it held become unclaimed
// until the next Tick hands them to the remaining lowest-indexed member.
func (e *Engine) RemoveOwner(ownerID string) {
	ob, ok := e.observers[ownerID]
	if !ok {
		return
	}
	for _, o := range ob.observables {
		o.ownerID = ""
		o.index = -1
	}
	delete(e.observers, ownerID)
	e.logger.Debug("observer removed", zap.String("owner_id", ownerID), zap.Int("observables", ob.Len()))
}

// Reset drops every observer and returns orphans to the unclaimed state.
func (e *Engine) Reset() {
	for id := range e.observers {
		e.RemoveOwner(id)
	}
}
