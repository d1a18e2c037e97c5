package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/envsense/internal/devicefactory"
	"github.com/srg/envsense/internal/display"
	"github.com/srg/envsense/internal/session"
	"github.com/srg/envsense/internal/trigger"
	"github.com/srg/envsense/pkg/config"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Select the sensor, connect and report discovery",
	Long: `Selects the configured sensor, connects to it and reports every discovery step.
On a terminal the connection starts when Enter is pressed; otherwise it starts at once.
Values received while connected are rendered on the display board.`,
	Args: cobra.NoArgs,
	RunE: runConnect,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Subscribe to every characteristic and show live values",
	Long: `Accepts the first connectable device, subscribes to every characteristic of the
allowed services (optional_services, or the configured service plus environmental sensing)
and re-renders the display board on each notification until Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var (
	connectJSON   bool
	connectFollow bool
	watchJSON     bool
)

func init() {
	connectCmd.Flags().BoolVar(&connectJSON, "json", false, "Print the connect report as JSON")
	connectCmd.Flags().BoolVar(&connectFollow, "follow", false, "Stay connected and render updates until Ctrl+C")
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "Print board changes as JSON lines")
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	return runSession(cmd, cfg, logger, connectFollow, connectJSON)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	cfg.Strategy = "open"
	return runSession(cmd, cfg, logger, true, watchJSON)
}

// runSession wires config, board, session and trigger together. It returns after the
// first activation unless follow is set.
func runSession(cmd *cobra.Command, cfg *config.Config, logger *logrus.Logger, follow bool, asJSON bool) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	out := cmd.OutOrStdout()
	printer := &boardPrinter{out: out, json: asJSON}
	board := cfg.NewBoard(display.OnChange(func(e display.Element) {
		if follow {
			printer.changed(e)
		}
	}))
	printer.board = board

	sess := session.New(devicefactory.NewCentral(logger), cfg.SessionOptions(board), logger)
	defer func() {
		if err := sess.Close(); err != nil {
			logger.WithError(err).Error("failed to close session")
		}
	}()

	listenCtx, stopListening := context.WithCancel(ctx)
	defer stopListening()

	conn := &reportingConnector{
		sess:    sess,
		out:     out,
		json:    asJSON,
		timeout: cfg.ConnectTimeout,
	}
	if !follow {
		conn.onConnected = stopListening
	}
	trig := trigger.New(conn, logger)

	interactive := isInteractive(cmd.InOrStdin())
	trig.Listen(listenCtx, activations(listenCtx, cmd.InOrStdin(), cmd.ErrOrStderr(), interactive))

	// interactive failures were logged by the trigger and the user quit afterwards
	if err := conn.lastError(); err != nil && !interactive {
		return err
	}
	if follow && sess.State() == session.StateSubscribed {
		<-ctx.Done()
	}
	return nil
}

// reportingConnector prints the connect report before handing it to the trigger
type reportingConnector struct {
	sess    *session.Session
	out     io.Writer
	json    bool
	timeout time.Duration

	// called after a successful connect
	onConnected func()

	mu  sync.Mutex
	err error
}

func (c *reportingConnector) Connect(ctx context.Context) (*session.ConnectReport, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	report, err := c.sess.Connect(ctx)

	c.mu.Lock()
	c.err = err
	c.mu.Unlock()

	if err != nil {
		return report, err
	}
	if perr := printReport(c.out, report, c.json); perr != nil {
		return report, perr
	}
	if c.onConnected != nil {
		c.onConnected()
	}
	return report, nil
}

func (c *reportingConnector) lastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func printReport(w io.Writer, report *session.ConnectReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(w, "%s %s (%s, %s)\n", color.GreenString("Connected to"), report.Device, report.Address, report.Strategy)
	for _, o := range report.Outcomes {
		mark := color.GreenString("ok")
		if !o.OK() {
			mark = color.RedString("FAILED")
		}
		target := o.Service
		if o.Characteristic != "" {
			target = o.Characteristic
		}
		fmt.Fprintf(w, "  %-9s %s %s\n", o.Step, target, mark)
		if !o.OK() {
			fmt.Fprintf(w, "            %s\n", o.Error)
		}
	}
	return nil
}

// boardPrinter renders the board after every change
type boardPrinter struct {
	out   io.Writer
	json  bool
	board *display.Board

	mu sync.Mutex
}

func (p *boardPrinter) changed(e display.Element) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.json {
		_ = json.NewEncoder(p.out).Encode(e)
		return
	}
	fmt.Fprintln(p.out)
	_ = p.board.Render(p.out)
}
