package rtc

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/huddle/internal/media"
	"github.com/BioHazard786/huddle/internal/mesh"
	"github.com/BioHazard786/huddle/internal/protocol"
)

// SignalSender relays negotiation data through the registry.
type SignalSender interface {
	SendSignal(sig *protocol.SignalPayload) error
}

// Options configures a Negotiator.
type Options struct {
	Config  pion.Configuration
	Signals SignalSender

	// API defaults to NewAPI(nil).
	API *pion.API
}

// Negotiator runs offer/answer exchanges over the registry's signal relay.
// Each exchange is a call identified by a fresh call ID, so a retried
// attempt never mixes with a stale one.
type Negotiator struct {
	api     *pion.API
	config  pion.Configuration
	signals SignalSender

	mu       sync.Mutex
	calls    map[string]*call
	attempts map[string]*attempt
	closed   bool

	incoming chan mesh.Attempt
}

// New creates a negotiator. Feed it signals with HandleSignal or Run.
func New(opts Options) (*Negotiator, error) {
	api := opts.API
	if api == nil {
		var err error
		if api, err = NewAPI(nil); err != nil {
			return nil, err
		}
	}
	return &Negotiator{
		api:      api,
		config:   opts.Config,
		signals:  opts.Signals,
		calls:    make(map[string]*call),
		attempts: make(map[string]*attempt),
		incoming: make(chan mesh.Attempt, 32),
	}, nil
}

// Incoming yields offers from other participants, waiting to be answered
// or rejected.
func (n *Negotiator) Incoming() <-chan mesh.Attempt {
	return n.incoming
}

// Run feeds signals into the negotiator until ctx ends or the channel
// closes.
func (n *Negotiator) Run(ctx context.Context, signals <-chan *protocol.SignalPayload) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if err := n.HandleSignal(sig); err != nil {
				slog.Debug("signal ignored", "from", sig.From, "type", sig.Type, "error", err)
			}
		}
	}
}

// HandleSignal routes one relayed signal to its call.
func (n *Negotiator) HandleSignal(sig *protocol.SignalPayload) error {
	if sig == nil {
		return ErrUnexpectedSignal
	}

	switch sig.Type {
	case protocol.SignalOffer:
		return n.handleOffer(sig)

	case protocol.SignalAnswer:
		c := n.lookupCall(sig.CallID)
		if c == nil {
			return ErrUnknownCall
		}
		return c.setRemote(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: sig.SDP})

	case protocol.SignalCandidate:
		if sig.Candidate == nil {
			return ErrUnexpectedSignal
		}
		cand := fromWire(sig.Candidate)
		if c := n.lookupCall(sig.CallID); c != nil {
			return c.addCandidate(cand)
		}
		n.mu.Lock()
		defer n.mu.Unlock()
		if a, ok := n.attempts[sig.CallID]; ok {
			a.candidates = append(a.candidates, cand)
			return nil
		}
		return ErrUnknownCall

	default:
		return ErrUnexpectedSignal
	}
}

func (n *Negotiator) handleOffer(sig *protocol.SignalPayload) error {
	a := &attempt{n: n, id: sig.CallID, peer: sig.From, sdp: sig.SDP}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	if _, ok := n.calls[sig.CallID]; ok {
		n.mu.Unlock()
		return ErrUnexpectedSignal
	}
	if _, ok := n.attempts[sig.CallID]; ok {
		n.mu.Unlock()
		return ErrUnexpectedSignal
	}
	n.attempts[sig.CallID] = a
	n.mu.Unlock()

	select {
	case n.incoming <- a:
		return nil
	default:
		a.Reject()
		slog.Warn("incoming call dropped", "peer", sig.From)
		return nil
	}
}

// Originate offers a call to peerID and waits for the connection.
func (n *Negotiator) Originate(ctx context.Context, peerID string, src media.Source) (mesh.Call, error) {
	c, err := n.newCall(uuid.NewString(), peerID, src)
	if err != nil {
		return nil, mesh.NewError("create peer connection", err)
	}
	if err := n.track(c); err != nil {
		c.Close()
		return nil, err
	}

	if err := c.attachTracks(src); err != nil {
		c.Close()
		return nil, mesh.NewError("add tracks", err)
	}

	offer, err := c.pc.CreateOffer(nil)
	if err == nil {
		err = c.pc.SetLocalDescription(offer)
	}
	if err != nil {
		c.Close()
		return nil, mesh.NewError("create offer", err)
	}

	if err := c.describe(protocol.SignalOffer); err != nil {
		c.Close()
		return nil, mesh.NewError("send offer", err)
	}

	if err := c.wait(ctx); err != nil {
		c.Close()
		return nil, mesh.WrapError("originate", err, peerID)
	}
	return c, nil
}

// Answer accepts an attempt from Incoming and waits for the connection.
func (n *Negotiator) Answer(ctx context.Context, ma mesh.Attempt, src media.Source) (mesh.Call, error) {
	a, ok := ma.(*attempt)
	if !ok || a.n != n {
		return nil, ErrForeignAttempt
	}

	c, err := n.newCall(a.id, a.peer, src)
	if err != nil {
		return nil, mesh.NewError("create peer connection", err)
	}
	if err := n.adopt(a, c); err != nil {
		c.Close()
		return nil, err
	}

	if err := c.setRemote(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: a.sdp}); err != nil {
		c.Close()
		return nil, mesh.NewError("set remote description", err)
	}

	if err := c.attachTracks(src); err != nil {
		c.Close()
		return nil, mesh.NewError("add tracks", err)
	}

	answer, err := c.pc.CreateAnswer(nil)
	if err == nil {
		err = c.pc.SetLocalDescription(answer)
	}
	if err != nil {
		c.Close()
		return nil, mesh.NewError("create answer", err)
	}

	if err := c.describe(protocol.SignalAnswer); err != nil {
		c.Close()
		return nil, mesh.NewError("send answer", err)
	}

	if err := c.wait(ctx); err != nil {
		c.Close()
		return nil, mesh.WrapError("answer", err, a.peer)
	}
	return c, nil
}

// Close tears down every call and rejects queued attempts.
func (n *Negotiator) Close() {
	n.mu.Lock()
	n.closed = true
	calls := make([]*call, 0, len(n.calls))
	for _, c := range n.calls {
		calls = append(calls, c)
	}
	n.attempts = make(map[string]*attempt)
	n.mu.Unlock()

	for _, c := range calls {
		c.Close()
	}
}

// Calls counts live peer connections.
func (n *Negotiator) Calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func (n *Negotiator) track(c *call) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	n.calls[c.id] = c
	return nil
}

// adopt turns a claimed attempt into a live call in one step, so no
// candidate can fall between the two tables.
func (n *Negotiator) adopt(a *attempt, c *call) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	if n.attempts[a.id] != a {
		return ErrAttemptClaimed
	}
	delete(n.attempts, a.id)
	c.candidates = a.candidates
	n.calls[c.id] = c
	return nil
}

// forget drops c from the call table unless another call holds its id.
func (n *Negotiator) forget(c *call) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.calls[c.id] == c {
		delete(n.calls, c.id)
	}
}

func (n *Negotiator) lookupCall(id string) *call {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[id]
}

// attempt is an offer that has not been answered yet.
type attempt struct {
	n    *Negotiator
	id   string
	peer string
	sdp  string

	// candidates arrive ahead of the answer; guarded by n.mu.
	candidates []pion.ICECandidateInit
}

func (a *attempt) PeerID() string { return a.peer }

func (a *attempt) Reject() {
	a.n.mu.Lock()
	defer a.n.mu.Unlock()
	if a.n.attempts[a.id] == a {
		delete(a.n.attempts, a.id)
	}
}
