package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Karniz-UI/NewEraV4Fix/cmd/newera/internal"
	"github.com/Karniz-UI/NewEraV4Fix/cmd/newera/internal/onboard"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/bus"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/channels"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/config"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/lifecycle"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/logger"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/store"
)

const shutdownTimeout = 15 * time.Second

func NewRunCommand() *cobra.Command {
	var debug bool
	var console bool

	cmd := &cobra.Command{
		Use:     "run",
		Aliases: []string{"r"},
		Short:   "Connect and serve owner commands",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), debug, console)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVar(&console, "console", false, "Use the local console instead of Telegram")

	return cmd
}

func runBot(parent context.Context, debug, console bool) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if err := internal.SetupLogging(cfg, debug); err != nil {
		return err
	}
	transport := cfg.Transport
	if console {
		transport = config.TransportConsole
	}

	fmt.Println(internal.Banner())

	pid := lifecycle.NewPIDFile(filepath.Join(cfg.DataPath(), "newera.pid"))
	if err := pid.Acquire(); err != nil {
		return err
	}
	defer pid.Release()

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return err
	}

	sess, err := st.Session(parent, transport)
	if errors.Is(err, store.ErrNoSession) {
		logger.InfoCF("run", "No session found, starting onboarding", map[string]any{"transport": transport})
		sess, err = onboard.Run(parent, st, cfg, transport, onboard.Terminal{})
	}
	if err != nil {
		_ = st.Close()
		return err
	}

	mb := bus.NewMessageBusSize(cfg.Dispatch.QueueSize)
	ch, err := newChannel(cfg, sess, mb)
	if err != nil {
		_ = st.Close()
		return err
	}

	ctrl, err := lifecycle.New(lifecycle.Options{
		Config:     cfg,
		Session:    sess,
		Store:      st,
		Channel:    ch,
		Bus:        mb,
		ConfigPath: internal.GetConfigPath(),
	})
	if err != nil {
		_ = st.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome, runErr := ctrl.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	ctrl.Shutdown(shutdownCtx)
	cancel()

	logger.InfoCF("run", "Bot stopped", map[string]any{"outcome": outcome.String()})

	switch outcome {
	case lifecycle.OutcomeRestart:
		pid.Release()
		if err := lifecycle.Reexec(); err != nil {
			return fmt.Errorf("restart: %w", err)
		}
		return nil
	case lifecycle.OutcomeDisconnected:
		return &internal.ExitError{Code: outcome.ExitCode(), Err: runErr}
	default:
		return runErr
	}
}

func newChannel(cfg *config.Config, sess store.Session, mb *bus.MessageBus) (channels.Channel, error) {
	switch sess.Transport {
	case config.TransportTelegram:
		owner, err := strconv.ParseInt(sess.OwnerID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid owner id %q: %w", sess.OwnerID, err)
		}
		ch, err := channels.NewTelegramChannel(cfg.Telegram, sess.Secret, owner, mb)
		if err != nil {
			return nil, err
		}
		ch.SetMaxDownloadBytes(cfg.Plugins.MaxSourceBytes)
		return ch, nil
	case config.TransportConsole:
		return channels.NewConsoleChannel(mb, channels.ConsoleOptions{
			Prompt:      sess.Prefix + " » ",
			HistoryFile: filepath.Join(cfg.DataPath(), ".console_history"),
			MaxBytes:    cfg.Plugins.MaxSourceBytes,
		}), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", sess.Transport)
	}
}
