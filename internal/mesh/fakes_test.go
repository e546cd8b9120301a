package mesh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/huddle/internal/media"
)

type fakeIdentity struct {
	id  string
	err error
}

func (f fakeIdentity) WaitIdentity(ctx context.Context) (string, error) {
	return f.id, f.err
}

type fakeRoom struct {
	mu      sync.Mutex
	joins   []string
	chats   []string
	closed  int
	joinErr error
}

func (r *fakeRoom) Join(room, peerID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joins = append(r.joins, room+"/"+peerID+"/"+name)
	return r.joinErr
}

func (r *fakeRoom) Chat(room, text, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats = append(r.chats, text)
	return nil
}

func (r *fakeRoom) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *fakeRoom) closeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type fakeSource struct {
	id      string
	audioOn atomic.Bool
	videoOn atomic.Bool
	stopped atomic.Int32
}

func newFakeSource(id string) *fakeSource {
	s := &fakeSource{id: id}
	s.audioOn.Store(true)
	s.videoOn.Store(true)
	return s
}

func (s *fakeSource) ID() string                    { return s.id }
func (s *fakeSource) AudioTrack() webrtc.TrackLocal { return nil }
func (s *fakeSource) VideoTrack() webrtc.TrackLocal { return nil }
func (s *fakeSource) AudioEnabled() bool            { return s.audioOn.Load() }
func (s *fakeSource) VideoEnabled() bool            { return s.videoOn.Load() }
func (s *fakeSource) SetAudioEnabled(on bool)       { s.audioOn.Store(on) }
func (s *fakeSource) SetVideoEnabled(on bool)       { s.videoOn.Store(on) }
func (s *fakeSource) RequestKeyframe()              {}
func (s *fakeSource) Stop()                         { s.stopped.Add(1) }

type fakeCall struct {
	peer   string
	stream *media.RemoteStream

	mu       sync.Mutex
	closed   int
	sources  []media.Source
	replaced []media.Source

	done     chan struct{}
	doneOnce sync.Once
}

func newFakeCall(peer string, src media.Source) *fakeCall {
	return &fakeCall{
		peer:    peer,
		stream:  media.NewRemoteStream(peer),
		sources: []media.Source{src},
		done:    make(chan struct{}),
	}
}

func (c *fakeCall) Done() <-chan struct{} { return c.done }

// drop simulates the connection failing after it was established.
func (c *fakeCall) drop() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *fakeCall) PeerID() string              { return c.peer }
func (c *fakeCall) Stream() *media.RemoteStream { return c.stream }

func (c *fakeCall) ReplaceSource(src media.Source) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replaced = append(c.replaced, src)
	c.sources = append(c.sources, src)
	return nil
}

func (c *fakeCall) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	c.drop()
	return nil
}

func (c *fakeCall) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// sending is the source the call currently transmits.
func (c *fakeCall) sending() media.Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sources[len(c.sources)-1]
}

type fakeAttempt struct {
	peer     string
	rejected atomic.Bool
}

func (a *fakeAttempt) PeerID() string { return a.peer }
func (a *fakeAttempt) Reject()        { a.rejected.Store(true) }

var errHandshake = errors.New("handshake failed")

// fakeNegotiator resolves attempts immediately unless a gate is set for
// the peer, in which case it waits for the gate to close.
type fakeNegotiator struct {
	mu         sync.Mutex
	gates      map[string]chan struct{}
	fail       map[string]error
	ignoreCtx  bool
	originated []string
	answered   []string
	calls      []*fakeCall
}

func newFakeNegotiator() *fakeNegotiator {
	return &fakeNegotiator{
		gates: make(map[string]chan struct{}),
		fail:  make(map[string]error),
	}
}

func (n *fakeNegotiator) gate(peer string) chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	g := make(chan struct{})
	n.gates[peer] = g
	return g
}

func (n *fakeNegotiator) failWith(peer string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fail[peer] = err
}

func (n *fakeNegotiator) Originate(ctx context.Context, peerID string, src media.Source) (Call, error) {
	n.mu.Lock()
	n.originated = append(n.originated, peerID)
	n.mu.Unlock()
	return n.resolve(ctx, peerID, src)
}

func (n *fakeNegotiator) Answer(ctx context.Context, a Attempt, src media.Source) (Call, error) {
	n.mu.Lock()
	n.answered = append(n.answered, a.PeerID())
	n.mu.Unlock()
	return n.resolve(ctx, a.PeerID(), src)
}

func (n *fakeNegotiator) resolve(ctx context.Context, peerID string, src media.Source) (Call, error) {
	n.mu.Lock()
	g := n.gates[peerID]
	ignore := n.ignoreCtx
	n.mu.Unlock()

	if g != nil {
		if ignore {
			<-g
		} else {
			select {
			case <-g:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.fail[peerID]; err != nil {
		return nil, err
	}
	c := newFakeCall(peerID, src)
	n.calls = append(n.calls, c)
	return c, nil
}

func (n *fakeNegotiator) counts() (originated, answered int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.originated), len(n.answered)
}

func (n *fakeNegotiator) allCalls() []*fakeCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*fakeCall(nil), n.calls...)
}
