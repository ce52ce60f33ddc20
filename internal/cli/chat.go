package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/Strangers/internal/chat"
	"github.com/BioHazard786/Strangers/internal/config"
	"github.com/BioHazard786/Strangers/internal/logging"
	"github.com/BioHazard786/Strangers/internal/ui"
)

const (
	connectTimeout  = 10 * time.Second
	connectAttempts = 3
)

var (
	flagServer    string
	flagSTUN      string
	flagTURN      string
	flagTURNUser  string
	flagTURNPass  string
	flagRelay     bool
	flagP2P       bool
	flagNoRequeue bool
	flagLogFile   string
)

var chatCmd = &cobra.Command{
	Use:     "chat",
	Aliases: []string{"c"},
	Short:   "Start chatting with a random stranger",
	Long: `Connect to the matchmaking server and chat with whoever is waiting.

Examples:
  strangers chat
  strangers chat --server wss://strangers.example.com
  strangers chat --no-requeue --log-file /tmp/strangers.log`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := config.ClientOptions{
			ServerURL:  flagServer,
			STUNServer: flagSTUN,
			TURNServer: flagTURN,
			TURNUser:   flagTURNUser,
			TURNPass:   flagTURNPass,
			ForceRelay: flagRelay,
		}
		if cmd.Flags().Changed("p2p") {
			opts.P2P = &flagP2P
		}
		if flagNoRequeue {
			requeue := false
			opts.AutoRequeue = &requeue
		}
		return runChat(cmd.Context(), opts)
	},
}

func runChat(ctx context.Context, opts config.ClientOptions) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return fmt.Errorf("chat needs an interactive terminal")
	}

	cfg, err := config.LoadClient(opts)
	if err != nil {
		return err
	}

	logger, closeLog, err := chatLogger(flagLogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	fmt.Println()
	sp := ui.NewConnectionSpinner("Connecting to server...")
	sp.Start()

	conv, err := connect(ctx, cfg, logger)
	if err != nil {
		sp.Error("Could not reach " + cfg.ServerURL)
		return err
	}
	defer conv.Close()
	sp.Success("Connected to " + cfg.ServerURL)

	model := ui.NewChatModel(conv, conv.Events())
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("chat UI: %w", err)
	}

	if err := model.Err(); err != nil {
		return err
	}
	ui.PrintInfo("Bye!")
	return nil
}

// connect dials the server, retrying transient failures a few times.
func connect(ctx context.Context, cfg *config.Client, logger *slog.Logger) (*chat.Conversation, error) {
	return backoff.Retry(ctx, func() (*chat.Conversation, error) {
		dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		conv := chat.New(cfg, logger)
		if err := conv.Start(dialCtx); err != nil {
			logger.Debug("connect attempt failed", "error", err)
			return nil, err
		}
		return conv, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(connectAttempts),
	)
}

// chatLogger sends logs to path, or discards them since the TUI owns the
// terminal.
func chatLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	level := logging.ParseLevel(os.Getenv("LOG_LEVEL"), slog.LevelDebug)
	logger := logging.New(f, level, os.Getenv("LOG_FORMAT"))
	return logger, func() { f.Close() }, nil
}

func init() {
	chatCmd.Flags().StringVar(&flagServer, "server", "", "Matchmaking server URL")
	chatCmd.Flags().StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	chatCmd.Flags().StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	chatCmd.Flags().StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	chatCmd.Flags().StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	chatCmd.Flags().BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
	chatCmd.Flags().BoolVar(&flagP2P, "p2p", true, "Send messages peer-to-peer when possible")
	chatCmd.Flags().BoolVar(&flagNoRequeue, "no-requeue", false, "Don't look for a new stranger after the partner leaves")
	chatCmd.Flags().StringVar(&flagLogFile, "log-file", "", "Write debug logs to this file")
}
