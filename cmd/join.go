package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/huddle/internal/config"
	"github.com/BioHazard786/huddle/internal/logging"
	"github.com/BioHazard786/huddle/internal/media"
	"github.com/BioHazard786/huddle/internal/mesh"
	"github.com/BioHazard786/huddle/internal/ui"
)

var (
	flagServer   string
	flagCodec    string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagName     string
	flagVideo    string
	flagAudio    string
	flagScreen   string
	flagNoMedia  bool
	flagHeadless bool
	flagLogFile  string
)

var errNoMediaFiles = errors.New("no media given, pass --video and/or --audio, or --no-media")

var joinCmd = &cobra.Command{
	Use:     "join <room>",
	Aliases: []string{"j"},
	Short:   "Join a meeting room",
	Long: `Join a room and exchange audio/video with everyone in it.

Local media is read from files: an IVF recording for video and an Ogg/Opus
recording for audio, both played in a loop.

Examples:
  huddle join standup --name Alice --video cam.ivf --audio mic.ogg
  huddle join standup --name Bob --no-media
  huddle join standup --server wss://huddle.example.org/ws --relay --turn turn:turn.example.org:3478`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return joinRoom(cmd.Context(), args[0])
	},
}

func init() {
	f := joinCmd.Flags()
	f.StringVarP(&flagServer, "server", "s", "", "registry websocket URL (env HUDDLE_SERVER)")
	f.StringVar(&flagCodec, "codec", "", "wire codec: json or msgpack (env HUDDLE_CODEC)")
	f.StringVar(&flagSTUN, "stun", "", "STUN server URL (env STUN_SERVER)")
	f.StringVar(&flagTURN, "turn", "", "TURN server URL (env TURN_SERVER)")
	f.StringVar(&flagTURNUser, "turn-user", "", "TURN username (env TURN_USERNAME)")
	f.StringVar(&flagTURNPass, "turn-pass", "", "TURN password (env TURN_PASSWORD)")
	f.BoolVar(&flagRelay, "relay", false, "only use TURN relay candidates (env FORCE_RELAY)")
	f.StringVarP(&flagName, "name", "n", "", "display name shown to others")
	f.StringVar(&flagVideo, "video", "", "IVF file used as the camera")
	f.StringVar(&flagAudio, "audio", "", "Ogg/Opus file used as the microphone")
	f.StringVar(&flagScreen, "screen", "", "IVF file shared with ctrl+s")
	f.BoolVar(&flagNoMedia, "no-media", false, "join without sending media")
	f.BoolVar(&flagHeadless, "headless", false, "print events instead of the interactive view; stdin lines are sent as chat")
	f.StringVar(&flagLogFile, "log-file", "", "write logs to this file")

	rootCmd.AddCommand(joinCmd)
}

func joinRoom(parent context.Context, room string) error {
	closeLog, err := setupJoinLogging()
	if err != nil {
		return err
	}
	defer closeLog()

	cfg, err := config.Load(config.Options{
		ServerURL:  flagServer,
		Codec:      flagCodec,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
	})
	if err != nil {
		return mesh.NewError("load config", err)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sp := ui.NewConnectionSpinner("Connecting to registry...")
	sp.Start()
	session, err := NewSession(ctx, cfg, flagScreen)
	if err != nil {
		sp.Error("Could not reach the registry")
		return err
	}
	defer session.Close()

	sp.UpdateMessage("Joining " + room + "...")
	if err := session.Start(ctx, room, flagName, filePlayback(session), flagNoMedia); err != nil {
		sp.Error("Could not join " + room)
		return err
	}
	sp.Success(fmt.Sprintf("Joined %s as %s", room, session.Self()))

	src := session.Mesh.Source()
	if flagHeadless {
		return runHeadless(ctx, session)
	}

	model := ui.NewRoomModel(session, session.Mesh.Events(), session.Mesh.Done(), ui.RoomState{
		Room:        room,
		DisplayName: flagName,
		Audio:       src.AudioEnabled(),
		Video:       src.VideoEnabled(),
	})
	go func() {
		// A lost connection or a signal ends the view.
		select {
		case <-ctx.Done():
		case <-session.Ended():
		}
		session.Mesh.Stop()
	}()
	return ui.RunRoom(model)
}

// setupJoinLogging keeps logs off the interactive view.
func setupJoinLogging() (func(), error) {
	level, format := logLevel(), os.Getenv("LOG_FORMAT")
	switch {
	case flagLogFile != "":
		f, err := os.OpenFile(flagLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logging.Setup(f, level, format)
		return func() { f.Close() }, nil
	case !flagHeadless:
		logging.Setup(io.Discard, level, format)
	}
	return func() {}, nil
}

// filePlayback builds the local source from the --video and --audio files
// and keeps them playing until the session ends.
func filePlayback(s *Session) mesh.MediaProvider {
	return func(ctx context.Context) (media.Source, error) {
		if flagNoMedia {
			return media.NoMedia{}, nil
		}
		if flagVideo == "" && flagAudio == "" {
			return nil, errNoMediaFiles
		}

		opts := media.Options{StreamID: "camera", Audio: flagAudio != "", Video: flagVideo != ""}
		if flagVideo != "" {
			mime, err := media.ProbeIVF(flagVideo)
			if err != nil {
				return nil, fmt.Errorf("video: %w", err)
			}
			opts.VideoMimeType = mime
		}
		if flagAudio != "" {
			if _, err := os.Stat(flagAudio); err != nil {
				return nil, fmt.Errorf("audio: %w", err)
			}
		}

		src, err := media.NewLocalSource(opts)
		if err != nil {
			return nil, err
		}

		play := func(kind string, fn func(context.Context, *media.LocalSource, string, bool) error, path string) {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				if err := fn(s.ctx, src, path, true); err != nil && !errors.Is(err, context.Canceled) {
					slog.Warn("playback stopped", "kind", kind, "error", err)
				}
			}()
		}
		if flagVideo != "" {
			play("video", media.PlayIVF, flagVideo)
		}
		if flagAudio != "" {
			play("audio", media.PlayOgg, flagAudio)
		}
		return src, nil
	}
}

func runHeadless(ctx context.Context, s *Session) error {
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if err := s.SendChat(scanner.Text()); err != nil && !errors.Is(err, mesh.ErrEmptyMessage) {
				ui.PrintError(err.Error())
			}
		}
	}()

	self := s.Self()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-s.Ended():
			if errors.Is(err, mesh.ErrStopped) {
				return nil
			}
			return err
		case ev := <-s.Mesh.Events():
			switch ev.Kind {
			case mesh.EventLinkUp:
				ui.PrintSuccess(fmt.Sprintf("%s %s connected (%s)", ui.IconPeer, ev.Link.DisplayName, ev.Link.Direction))
			case mesh.EventLinkDown:
				ui.PrintInfof("%s left", ev.Link.DisplayName)
			case mesh.EventLinkFailed:
				ui.PrintWarning(fmt.Sprintf("could not connect to %s: %v", ev.PeerID, ev.Err))
			case mesh.EventChat:
				fmt.Fprintln(ui.Output, ui.FormatChatLine(ev.Chat, self))
			case mesh.EventError:
				ui.PrintError(ev.Err.Error())
			}
		}
	}
}
