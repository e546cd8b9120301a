package mesh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BioHazard786/huddle/internal/chat"
	"github.com/BioHazard786/huddle/internal/media"
	"github.com/BioHazard786/huddle/internal/protocol"
)

// Options wires an Orchestrator to its collaborators.
type Options struct {
	Room       RoomClient
	Identity   IdentitySource
	Negotiator Negotiator

	// Chat receives relayed chat lines. A fresh log is used when nil.
	Chat *chat.Log

	// AttemptTimeout bounds each originate or answer. Zero means no bound.
	AttemptTimeout time.Duration
}

// StartOptions describes the room to enter.
type StartOptions struct {
	Room        string
	DisplayName string
	Media       MediaProvider

	// AllowNoMedia continues without local media when Media fails.
	AllowNoMedia bool
}

// Orchestrator keeps exactly one media link per remote participant.
//
// The participant that was in the room first always originates toward the
// newer one; the newer one only answers. Every identity moves through
// Unlinked -> Pending -> Linked -> Unlinked and each row is torn down by
// exactly one path: peer departure, failure, or Stop.
type Orchestrator struct {
	room       RoomClient
	identity   IdentitySource
	negotiator Negotiator
	chat       *chat.Log
	timeout    time.Duration

	// swapMu serializes media swaps with link completion so every link
	// ends up sending the current source.
	swapMu sync.Mutex

	mu          sync.Mutex
	self        string
	roomID      string
	displayName string
	source      media.Source
	started     bool
	stopped     bool
	entries     map[string]*entry
	names       map[string]string
	nextToken   uint64

	// departed remembers recent leaves. Offers and membership reach us on
	// different channels, so an offer can be handled after its sender's
	// leave; such offers are rejected.
	departed     map[string]uint64
	departedLog  []departure
	departedNext uint64

	mediaReady chan struct{}

	// ctx is the parent of every attempt; Stop cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	events chan Event
	done   chan struct{}
}

// New creates an idle orchestrator.
func New(opts Options) *Orchestrator {
	log := opts.Chat
	if log == nil {
		log = chat.NewLog()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		room:       opts.Room,
		identity:   opts.Identity,
		negotiator: opts.Negotiator,
		chat:       log,
		timeout:    opts.AttemptTimeout,
		entries:    make(map[string]*entry),
		names:      make(map[string]string),
		departed:   make(map[string]uint64),
		mediaReady: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan Event, eventBuffer),
		done:       make(chan struct{}),
	}
}

// Start acquires the connection identity and local media concurrently,
// joins the room as soon as the identity is known, and returns once media
// is ready. Links are only negotiated after that point. On failure every
// acquired resource is released.
func (o *Orchestrator) Start(ctx context.Context, opts StartOptions) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return ErrStopped
	}
	if o.started {
		o.mu.Unlock()
		return NewError("start", errors.New("already started"))
	}
	o.started = true
	o.mu.Unlock()

	type mediaResult struct {
		src media.Source
		err error
	}
	mediaCh := make(chan mediaResult, 1)
	go func() {
		if opts.Media == nil {
			mediaCh <- mediaResult{err: ErrNoMedia}
			return
		}
		src, err := opts.Media(ctx)
		mediaCh <- mediaResult{src: src, err: err}
	}()

	// abandon stops whatever media shows up after an early return.
	abandon := func(err error) error {
		go func() {
			if res := <-mediaCh; res.src != nil {
				res.src.Stop()
			}
		}()
		o.Stop()
		return err
	}

	id, err := o.identity.WaitIdentity(ctx)
	if err != nil {
		return abandon(NewError("acquire identity", err))
	}

	o.mu.Lock()
	o.self = id
	o.roomID = opts.Room
	o.displayName = opts.DisplayName
	o.mu.Unlock()

	if err := o.room.Join(opts.Room, id, opts.DisplayName); err != nil {
		return abandon(NewError("join room", err))
	}
	slog.Info("joined room", "room", opts.Room, "peer", id)

	var res mediaResult
	select {
	case res = <-mediaCh:
	case <-ctx.Done():
		return abandon(NewError("acquire media", ctx.Err()))
	case <-o.done:
		return abandon(ErrStopped)
	}

	if res.err != nil {
		if !opts.AllowNoMedia {
			o.Stop()
			return NewError("acquire media", res.err)
		}
		slog.Warn("continuing without local media", "error", res.err)
		res.src = media.NoMedia{}
	}

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		res.src.Stop()
		return ErrStopped
	}
	o.source = res.src
	close(o.mediaReady)
	o.mu.Unlock()

	return nil
}

// PeerJoined originates a link toward a participant that arrived after us.
// Repeated notifications for a known identity are ignored.
func (o *Orchestrator) PeerJoined(peer protocol.Participant) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped || peer.PeerID == "" || peer.PeerID == o.self {
		return
	}
	// Membership events arrive in order, so a join after a leave is a
	// genuine return.
	delete(o.departed, peer.PeerID)
	if peer.DisplayName != "" {
		o.names[peer.PeerID] = peer.DisplayName
	}
	if _, ok := o.entries[peer.PeerID]; ok {
		return
	}

	o.startAttemptLocked(peer.PeerID, Originated, nil)
}

// Incoming answers an inbound attempt. If the identity already has a link
// or a pending attempt, the call is still answered so the caller is not
// left hanging, but its stream is discarded.
func (o *Orchestrator) Incoming(a Attempt) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := a.PeerID()
	if o.stopped || id == "" || id == o.self {
		a.Reject()
		return
	}
	if _, gone := o.departed[id]; gone {
		a.Reject()
		slog.Debug("offer from departed peer rejected", "peer", id)
		return
	}

	if e, ok := o.entries[id]; ok {
		o.wg.Add(1)
		go o.answerDuplicate(id, e.token, e.ctx, a)
		return
	}

	o.startAttemptLocked(id, Accepted, a)
}

// PeerLeft tears down the link or cancels the pending attempt for the
// identity, and turns away any of its offers still in flight.
func (o *Orchestrator) PeerLeft(peerID string) {
	o.mu.Lock()
	if o.stopped || peerID == "" {
		o.mu.Unlock()
		return
	}
	e, ok := o.entries[peerID]
	if ok {
		delete(o.entries, peerID)
	}
	delete(o.names, peerID)
	o.markDepartedLocked(peerID)
	o.mu.Unlock()

	if !ok {
		return
	}

	o.teardown(peerID, e)
	slog.Info("peer left", "peer", peerID, "state", e.state)
}

// Stop releases everything the session holds: pending attempts, links,
// local media and the registry connection. Calls after the first are no-ops.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil
	}
	o.stopped = true
	entries := o.entries
	o.entries = make(map[string]*entry)
	src := o.source
	o.source = nil
	o.mu.Unlock()

	close(o.done)
	o.cancel()

	for id, e := range entries {
		o.teardown(id, e)
	}

	// Attempts observe cancellation and close whatever they produced.
	o.wg.Wait()

	if src != nil {
		src.Stop()
	}

	var err error
	if o.room != nil {
		err = o.room.Close()
	}
	slog.Info("session stopped", "links", len(entries))
	return err
}

// ToggleLocalAudio flips the audio flag on the shared source and returns
// the new state.
func (o *Orchestrator) ToggleLocalAudio() (bool, error) {
	return o.toggle(media.Source.AudioEnabled, media.Source.SetAudioEnabled)
}

// ToggleLocalVideo flips the video flag on the shared source and returns
// the new state.
func (o *Orchestrator) ToggleLocalVideo() (bool, error) {
	return o.toggle(media.Source.VideoEnabled, media.Source.SetVideoEnabled)
}

func (o *Orchestrator) toggle(get func(media.Source) bool, set func(media.Source, bool)) (bool, error) {
	o.swapMu.Lock()
	defer o.swapMu.Unlock()

	o.mu.Lock()
	src := o.source
	o.mu.Unlock()

	if src == nil {
		return false, ErrNoMedia
	}
	on := !get(src)
	set(src, on)
	return on, nil
}

// ReplaceLocalMedia makes src the source for future links and swaps the
// outgoing tracks of every existing link in place. The previous source is
// returned to the caller, who may restore it later; it is not stopped.
func (o *Orchestrator) ReplaceLocalMedia(src media.Source) (media.Source, error) {
	if src == nil {
		return nil, ErrNoSource
	}

	o.swapMu.Lock()
	defer o.swapMu.Unlock()

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil, ErrStopped
	}
	prev := o.source
	if prev == nil {
		o.mu.Unlock()
		return nil, ErrNotStarted
	}
	o.source = src

	var calls []Call
	for _, e := range o.entries {
		if e.link != nil {
			calls = append(calls, e.link.calls()...)
		}
		calls = append(calls, e.shadows...)
	}
	o.mu.Unlock()

	var errs []error
	for _, c := range calls {
		if err := c.ReplaceSource(src); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.PeerID(), err))
		}
	}
	return prev, errors.Join(errs...)
}

// SendChat relays text to everyone in the room, ourselves included.
func (o *Orchestrator) SendChat(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	o.mu.Lock()
	room, name, stopped := o.roomID, o.displayName, o.stopped
	o.mu.Unlock()

	if stopped {
		return ErrStopped
	}
	if room == "" {
		return ErrNotStarted
	}
	return o.room.Chat(room, text, name)
}

// Self is the identity assigned by the registry.
func (o *Orchestrator) Self() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.self
}

// Source is the current local media source, nil before Start completes.
func (o *Orchestrator) Source() media.Source {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.source
}

// State reports where the identity is in the link lifecycle.
func (o *Orchestrator) State(peerID string) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.entries[peerID]; ok {
		return e.state
	}
	return Unlinked
}

// Links returns the established links sorted by identity.
func (o *Orchestrator) Links() []Link {
	o.mu.Lock()
	defer o.mu.Unlock()

	links := make([]Link, 0, len(o.entries))
	for _, e := range o.entries {
		if e.link != nil {
			links = append(links, *e.link)
		}
	}
	sort.Slice(links, func(i, j int) bool { return links[i].PeerID < links[j].PeerID })
	return links
}

// Pending counts attempts still negotiating.
func (o *Orchestrator) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := 0
	for _, e := range o.entries {
		if e.state == Pending {
			n++
		}
	}
	return n
}

// Chat is the session's chat history.
func (o *Orchestrator) Chat() *chat.Log {
	return o.chat
}

// Events streams session changes for display.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// Done is closed when Stop begins.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// startAttemptLocked records a Pending row and launches its task.
// Caller holds mu.
func (o *Orchestrator) startAttemptLocked(peerID string, dir Direction, a Attempt) {
	o.nextToken++
	ctx, cancel := context.WithCancel(o.ctx)
	e := &entry{
		state:     Pending,
		direction: dir,
		token:     o.nextToken,
		ctx:       ctx,
		cancel:    cancel,
	}
	o.entries[peerID] = e

	o.wg.Add(1)
	go o.runAttempt(peerID, e.token, ctx, dir, a)
	slog.Debug("link attempt started", "peer", peerID, "direction", dir)
}

func (o *Orchestrator) runAttempt(peerID string, token uint64, ctx context.Context, dir Direction, a Attempt) {
	defer o.wg.Done()

	select {
	case <-o.mediaReady:
	case <-ctx.Done():
		if a != nil {
			a.Reject()
		}
		o.complete(peerID, token, nil, nil, ctx.Err())
		return
	}

	src := o.Source()
	if src == nil {
		if a != nil {
			a.Reject()
		}
		o.complete(peerID, token, nil, nil, ErrStopped)
		return
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	var (
		call Call
		err  error
	)
	if dir == Originated {
		call, err = o.negotiator.Originate(ctx, peerID, src)
	} else {
		call, err = o.negotiator.Answer(ctx, a, src)
	}

	o.complete(peerID, token, src, call, err)
}

// complete applies an attempt's outcome if its row is still current.
// Stale results are closed on the spot.
func (o *Orchestrator) complete(peerID string, token uint64, used media.Source, call Call, err error) {
	o.swapMu.Lock()
	defer o.swapMu.Unlock()

	o.mu.Lock()
	e, ok := o.entries[peerID]
	if !ok || e.token != token || o.stopped {
		o.mu.Unlock()
		if call != nil {
			closeCalls([]Call{call})
		}
		return
	}

	if err != nil {
		// A duplicate answered while we were failing can still serve.
		if len(e.shadows) > 0 {
			call, e.shadows = e.shadows[0], e.shadows[1:]
			e.direction = Accepted
		} else {
			delete(o.entries, peerID)
			o.mu.Unlock()
			e.cancel()
			slog.Warn("link attempt failed", "peer", peerID, "error", err)
			o.emit(Event{Kind: EventLinkFailed, PeerID: peerID, Err: err})
			return
		}
	}

	link := &Link{
		PeerID:      peerID,
		DisplayName: o.nameLocked(peerID),
		Direction:   e.direction,
		Stream:      call.Stream(),
		call:        call,
		shadows:     e.shadows,
	}
	e.state = Linked
	e.link = link
	e.shadows = nil
	current := o.source
	snapshot := *link
	shadows := link.shadows
	rowCtx := e.ctx
	o.mu.Unlock()

	releaseStreams(shadows)

	o.wg.Add(1)
	go o.watch(peerID, token, rowCtx, call)

	if current != nil && current != used {
		if err := call.ReplaceSource(current); err != nil {
			slog.Warn("replace media on new link", "peer", peerID, "error", err)
		}
	}

	slog.Info("link established", "peer", peerID, "direction", link.Direction)
	o.emit(Event{Kind: EventLinkUp, PeerID: peerID, Link: snapshot})
}

// watch removes a link whose call dies after it was established. The row
// context ends the watch when the link is torn down some other way.
func (o *Orchestrator) watch(peerID string, token uint64, ctx context.Context, call Call) {
	defer o.wg.Done()

	select {
	case <-ctx.Done():
		return
	case <-call.Done():
	}

	o.mu.Lock()
	e, ok := o.entries[peerID]
	if !ok || e.token != token || e.link == nil || e.link.call != call || o.stopped {
		o.mu.Unlock()
		return
	}
	delete(o.entries, peerID)
	o.mu.Unlock()

	e.cancel()
	e.link.close()
	slog.Warn("link lost", "peer", peerID)
	o.emit(Event{Kind: EventLinkFailed, PeerID: peerID, Link: *e.link, Err: ErrLinkLost})
}

// answerDuplicate answers an extra inbound call for an identity that
// already has a row and attaches it as a shadow of that row.
func (o *Orchestrator) answerDuplicate(peerID string, token uint64, ctx context.Context, a Attempt) {
	defer o.wg.Done()

	select {
	case <-o.mediaReady:
	case <-ctx.Done():
		a.Reject()
		return
	}

	src := o.Source()
	if src == nil {
		a.Reject()
		return
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	call, err := o.negotiator.Answer(ctx, a, src)
	if err != nil {
		slog.Debug("duplicate call failed", "peer", peerID, "error", err)
		return
	}

	o.mu.Lock()
	e, ok := o.entries[peerID]
	if !ok || e.token != token || o.stopped {
		o.mu.Unlock()
		closeCalls([]Call{call})
		return
	}
	linked := e.link != nil
	if linked {
		e.link.shadows = append(e.link.shadows, call)
	} else {
		e.shadows = append(e.shadows, call)
	}
	o.mu.Unlock()

	if linked {
		releaseStreams([]Call{call})
	}
	slog.Debug("duplicate call kept as shadow", "peer", peerID)
}

// teardown cancels and closes a row that has already been removed.
func (o *Orchestrator) teardown(peerID string, e *entry) {
	e.cancel()
	closeCalls(e.shadows)
	if e.link != nil {
		e.link.close()
		o.emit(Event{Kind: EventLinkDown, PeerID: peerID, Link: *e.link})
	}
}

// releaseStreams discards the received media of shadow calls.
func releaseStreams(calls []Call) {
	for _, c := range calls {
		if s := c.Stream(); s != nil {
			s.Release()
		}
	}
}

// departedLimit bounds the departed set. Stale offers trail their sender's
// leave by moments, so only recent departures matter.
const departedLimit = 256

type departure struct {
	peerID string
	seq    uint64
}

// markDepartedLocked records a leave, forgetting the oldest beyond
// departedLimit. Caller holds mu.
func (o *Orchestrator) markDepartedLocked(peerID string) {
	o.departedNext++
	o.departed[peerID] = o.departedNext
	o.departedLog = append(o.departedLog, departure{peerID: peerID, seq: o.departedNext})

	for len(o.departedLog) > departedLimit {
		old := o.departedLog[0]
		o.departedLog = o.departedLog[1:]
		if o.departed[old.peerID] == old.seq {
			delete(o.departed, old.peerID)
		}
	}
}

func (o *Orchestrator) nameLocked(peerID string) string {
	if name, ok := o.names[peerID]; ok {
		return name
	}
	return "Remote User"
}
