package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pion/logging"
	"github.com/spf13/cobra"

	"github.com/visavis/visavis/pkg/match"
	"github.com/visavis/visavis/pkg/media"
	"github.com/visavis/visavis/pkg/service"
	"github.com/visavis/visavis/pkg/state"
	"github.com/visavis/visavis/pkg/visavis"
)

// NewRunCmd returns the command that joins the matching pool and runs
// until interrupted.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Join the pool and talk to strangers",
		PreRunE: loadConfig,
		RunE:    runNode,
	}

	AddRunFlags(cmd)

	return cmd
}

// AddRunFlags adds flags to the run command.
func AddRunFlags(cmd *cobra.Command) {
	// Network
	cmd.Flags().String("relay", _config.RelayURL, "Presence relay websocket URL")
	cmd.Flags().String("broker", _config.BrokerURL, "Session broker websocket URL")
	cmd.Flags().String("region", _config.Region, "Optional region hint sent to the relay")
	cmd.Flags().StringSlice("stun", _config.STUN, "STUN server URLs")

	// Media
	cmd.Flags().Bool("no-video", _config.NoVideo, "Run without a camera")
	cmd.Flags().Bool("no-audio", _config.NoAudio, "Run without a microphone")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for the diagnostics service, empty to disable")

	// Node configuration
	cmd.Flags().Duration("watchdog", _config.Watchdog, "Time before a stalled handshake is skipped")
	cmd.Flags().String("log", _config.LogLevel, "trace, debug, info, warn, error, disabled")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	return bindFlagsLoadViper(cmd)
}

func runNode(cmd *cobra.Command, args []string) error {
	loggerFactory := newLoggerFactory(_config.LogLevel)

	node, err := visavis.New(visavis.Config{
		RelayURL:   _config.RelayURL,
		Region:     _config.Region,
		BrokerURL:  _config.BrokerURL,
		ICEServers: _config.STUN,
		Media: media.Config{
			DisableVideo: _config.NoVideo,
			DisableAudio: _config.NoAudio,
		},
		WatchdogTimeout: _config.Watchdog,
		OnMessageReceived: func(text string) {
			fmt.Printf("partner: %s\n", text)
		},
		OnReactionReceived: func(r match.Reaction) {
			fmt.Printf("partner reacted with %s\n", r)
		},
		OnStatusChanged: func(s state.Status) {
			fmt.Printf("[%s]\n", s)
		},
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := node.Start(ctx); err != nil {
		return err
	}
	defer node.Stop()

	var svc *service.Service
	if _config.ServiceAddr != "" {
		svc = service.New(_config.ServiceAddr, node, loggerFactory)
		go func() {
			if err := svc.Serve(); err != nil {
				fmt.Fprintf(os.Stderr, "diagnostics service: %v\n", err)
			}
		}()
	}

	fmt.Println("type to chat, /skip for a new partner, /react <name>, /mute, /unmute")

	go readCommands(ctx, node)

	<-ctx.Done()

	if svc != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancelShutdown()

		if err := svc.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "diagnostics service shutdown: %v\n", err)
		}
	}

	return nil
}

// readCommands turns stdin lines into node verbs. Anything that is not
// a /command goes to the current partner as chat.
func readCommands(ctx context.Context, node *visavis.Node) {
	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":

		case line == "/skip":
			node.Skip()

		case strings.HasPrefix(line, "/react"):
			name := strings.TrimSpace(strings.TrimPrefix(line, "/react"))

			r, ok := match.ParseReaction(name)
			if !ok {
				fmt.Printf("unknown reaction %q, try one of heart, laugh, wave, fire\n", name)
				continue
			}

			node.SendReaction(r)

		case line == "/mute":
			if err := node.SetAudioEnabled(false); err != nil {
				fmt.Fprintf(os.Stderr, "mute: %v\n", err)
			}

		case line == "/unmute":
			if err := node.SetAudioEnabled(true); err != nil {
				fmt.Fprintf(os.Stderr, "unmute: %v\n", err)
			}

		default:
			node.SendChat(line)
		}
	}
}

func newLoggerFactory(level string) *logging.DefaultLoggerFactory {
	f := logging.NewDefaultLoggerFactory()

	switch strings.ToLower(level) {
	case "trace":
		f.DefaultLogLevel = logging.LogLevelTrace
	case "debug":
		f.DefaultLogLevel = logging.LogLevelDebug
	case "warn":
		f.DefaultLogLevel = logging.LogLevelWarn
	case "error":
		f.DefaultLogLevel = logging.LogLevelError
	case "disabled":
		f.DefaultLogLevel = logging.LogLevelDisabled
	default:
		f.DefaultLogLevel = logging.LogLevelInfo
	}

	return f
}
