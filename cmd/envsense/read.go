package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/envsense/inspector"
	"github.com/srg/envsense/internal/device"
	"github.com/srg/envsense/internal/devicefactory"
	"github.com/srg/envsense/internal/session"
	"github.com/srg/envsense/pkg/config"
)

var readCmd = &cobra.Command{
	Use:   "read <characteristic-uuid>",
	Short: "Read one characteristic",
	Long: `Connects to the sensor, reads one characteristic and prints its value.

The value is decoded like the display board does: 4-byte little-endian float, or unsigned
integer when the characteristic key is listed in integer_keys. Use --format hex for the raw bytes.`,
	Example: `  envsense read 19B10041-E8F2-537E-4F6C-D104768A1215
  envsense read 2A6E --format hex`,
	Args: cobra.ExactArgs(1),
	RunE: runRead,
}

var (
	readFormat string
)

func init() {
	readCmd.Flags().StringVar(&readFormat, "format", "value", "Output format: value, hex")
}

func runRead(cmd *cobra.Command, args []string) error {
	uuids, err := device.ValidateUUID(args[0])
	if err != nil {
		return fmt.Errorf("invalid characteristic UUID: %w", err)
	}
	uuid := uuids[0]

	format := strings.ToLower(readFormat)
	if format != "value" && format != "hex" {
		return fmt.Errorf("invalid format %q (want value or hex)", readFormat)
	}

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	restrictTo(cfg, uuid)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	progress := NewProgressPrinter(cmd.ErrOrStderr(), "Reading", "Connecting", "Processing results", "Failed")
	progress.Start()
	defer progress.Stop()

	value, err := inspector.WithSession(ctx, devicefactory.NewCentral(logger), cfg.SessionOptions(nil),
		&inspector.InspectOptions{ConnectTimeout: cfg.ConnectTimeout}, logger, progress.Callback(),
		func(sess *session.Session, _ *session.ConnectReport) (session.Value, error) {
			return sess.ReadCharacteristic(ctx, uuid)
		})
	progress.Stop()
	if err != nil {
		return err
	}

	return printValue(cmd, cfg, uuid, value, format)
}

// restrictTo limits a filtered session to one characteristic
func restrictTo(cfg *config.Config, uuid string) {
	if strategy, _ := cfg.SessionStrategy(); strategy == session.StrategyFiltered {
		cfg.CharacteristicUUIDs = []string{uuid}
	}
}

func printValue(cmd *cobra.Command, cfg *config.Config, uuid string, value session.Value, format string) error {
	out := cmd.OutOrStdout()
	if format == "hex" || len(value) < 4 {
		_, err := fmt.Fprintln(out, hex.EncodeToString(value))
		return err
	}

	text, err := session.FormatValue(session.ElementKey(uuid), value, cfg.IntegerKeys)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, text)
	return err
}

