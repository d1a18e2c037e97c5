package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/envsense/internal/groutine"
	"github.com/srg/envsense/pkg/config"
	"golang.org/x/term"
)

// setup loads --config and builds the logger for a command
func setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	logger, err := configureLogger(cmd, "verbose", cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// signalContext is cancelled on Ctrl+C or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// isInteractive reports whether r is a terminal
func isInteractive(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// activations turns Enter presses on an interactive input into activation events.
// A non-interactive input yields exactly one event, so scripted runs connect at once.
func activations(ctx context.Context, in io.Reader, prompt io.Writer, interactive bool) <-chan struct{} {
	events := make(chan struct{}, 1)
	if !interactive {
		events <- struct{}{}
		close(events)
		return events
	}

	groutine.Go(ctx, "activation-input", func(ctx context.Context) {
		defer close(events)
		_, _ = io.WriteString(prompt, "Press Enter to connect, Ctrl+C to quit\n")
		lines := bufio.NewScanner(in)
		for lines.Scan() {
			select {
			case events <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
	})
	return events
}
