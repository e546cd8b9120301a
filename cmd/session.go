package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BioHazard786/huddle/internal/config"
	"github.com/BioHazard786/huddle/internal/media"
	"github.com/BioHazard786/huddle/internal/mesh"
	"github.com/BioHazard786/huddle/internal/protocol"
	"github.com/BioHazard786/huddle/internal/rtc"
	"github.com/BioHazard786/huddle/internal/signaling"
)

var ErrNoScreen = errors.New("no screen source configured, pass --screen")

// Session wires the registry connection, the negotiator and the mesh
// orchestrator of one participant.
type Session struct {
	Config     *config.Config
	Client     *signaling.Client
	Handler    *signaling.Handler
	Negotiator *rtc.Negotiator
	Mesh       *mesh.Orchestrator

	screenPath string

	mu     sync.Mutex
	camera media.Source
	screen *media.LocalSource

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	runErr chan error
}

// NewSession connects to the registry and prepares the session.
func NewSession(ctx context.Context, cfg *config.Config, screenPath string) (*Session, error) {
	codec, err := protocol.Lookup(cfg.Codec)
	if err != nil {
		return nil, err
	}

	client := signaling.NewClient(cfg.WebSocketURL(), codec)
	if err := client.Connect(ctx); err != nil {
		return nil, mesh.NewError("connect to server", err)
	}

	handler := signaling.NewHandler(client)
	go handler.Start()

	neg, err := rtc.New(rtc.Options{
		Config:  rtc.Configuration(cfg),
		Signals: client,
	})
	if err != nil {
		client.Close()
		return nil, mesh.NewError("create negotiator", err)
	}

	orch := mesh.New(mesh.Options{
		Room:           client,
		Identity:       handler,
		Negotiator:     neg,
		AttemptTimeout: cfg.NegotiationTimeout,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	return &Session{
		Config:     cfg,
		Client:     client,
		Handler:    handler,
		Negotiator: neg,
		Mesh:       orch,
		screenPath: screenPath,
		ctx:        runCtx,
		cancel:     cancel,
		runErr:     make(chan error, 1),
	}, nil
}

// Start begins dispatching registry traffic and joins room.
func (s *Session) Start(ctx context.Context, room, name string, provider mesh.MediaProvider, allowNoMedia bool) error {
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.Negotiator.Run(s.ctx, s.Handler.Signal)
	}()
	go func() {
		defer s.wg.Done()
		s.runErr <- s.Mesh.Run(s.ctx, mesh.Feed{
			Membership:   s.Handler.Membership,
			Participants: s.Handler.Participants,
			Chat:         s.Handler.Chat,
			Incoming:     s.Negotiator.Incoming(),
			Errors:       s.Handler.Error,
		})
	}()

	err := s.Mesh.Start(ctx, mesh.StartOptions{
		Room:         room,
		DisplayName:  name,
		Media:        provider,
		AllowNoMedia: allowNoMedia,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.camera = s.Mesh.Source()
	s.mu.Unlock()
	return nil
}

// Ended yields the reason the session stopped on its own, such as a lost
// registry connection.
func (s *Session) Ended() <-chan error {
	return s.runErr
}

func (s *Session) Self() string                    { return s.Mesh.Self() }
func (s *Session) Links() []mesh.Link              { return s.Mesh.Links() }
func (s *Session) ToggleLocalAudio() (bool, error) { return s.Mesh.ToggleLocalAudio() }
func (s *Session) ToggleLocalVideo() (bool, error) { return s.Mesh.ToggleLocalVideo() }
func (s *Session) SendChat(text string) error      { return s.Mesh.SendChat(text) }

// ToggleScreenShare swaps the outgoing video between the camera and the
// configured screen recording. The microphone keeps flowing either way.
func (s *Session) ToggleScreenShare() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.screen != nil {
		if _, err := s.Mesh.ReplaceLocalMedia(s.camera); err != nil {
			return true, err
		}
		s.screen.Stop()
		s.screen = nil
		return false, nil
	}

	if s.screenPath == "" {
		return false, ErrNoScreen
	}
	mime, err := media.ProbeIVF(s.screenPath)
	if err != nil {
		return false, err
	}
	screen, err := media.NewLocalSource(media.Options{StreamID: "screen", Video: true, VideoMimeType: mime})
	if err != nil {
		return false, err
	}

	if _, err := s.Mesh.ReplaceLocalMedia(media.Overlay{Base: s.camera, Top: screen}); err != nil {
		screen.Stop()
		return false, err
	}
	s.screen = screen

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := media.PlayIVF(s.ctx, screen, s.screenPath, true); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("screen playback stopped", "error", err)
		}
	}()
	return true, nil
}

// Close leaves the room and releases everything. Safe to call more than once.
func (s *Session) Close() error {
	err := s.Mesh.Stop()
	s.Negotiator.Close()
	s.cancel()
	s.Client.Close()

	s.mu.Lock()
	if s.camera != nil {
		s.camera.Stop()
	}
	if s.screen != nil {
		s.screen.Stop()
	}
	s.mu.Unlock()

	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("leave room: %w", err)
	}
	return nil
}
