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
)

var writeCmd = &cobra.Command{
	Use:   "write <characteristic-uuid> <hex-value>",
	Short: "Write one characteristic",
	Long: `Connects to the sensor and writes raw bytes, given as hex, to one characteristic.
Spaces and colons between bytes are ignored.`,
	Example: `  envsense write 19B10041-E8F2-537E-4F6C-D104768A1215 01000000
  envsense write 19B10041-E8F2-537E-4F6C-D104768A1215 "01 00 00 00"`,
	Args: cobra.ExactArgs(2),
	RunE: runWrite,
}

func runWrite(cmd *cobra.Command, args []string) error {
	uuids, err := device.ValidateUUID(args[0])
	if err != nil {
		return fmt.Errorf("invalid characteristic UUID: %w", err)
	}
	uuid := uuids[0]

	data, err := parseHex(args[1])
	if err != nil {
		return err
	}

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	restrictTo(cfg, uuid)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	progress := NewProgressPrinter(cmd.ErrOrStderr(), "Writing", "Connecting", "Processing results", "Failed")
	progress.Start()
	defer progress.Stop()

	_, err = inspector.WithSession(ctx, devicefactory.NewCentral(logger), cfg.SessionOptions(nil),
		&inspector.InspectOptions{ConnectTimeout: cfg.ConnectTimeout}, logger, progress.Callback(),
		func(sess *session.Session, _ *session.ConnectReport) (struct{}, error) {
			return struct{}{}, sess.WriteCharacteristic(ctx, uuid, data)
		})
	progress.Stop()
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(data), args[0])
	return err
}

// parseHex accepts "0a0b", "0a 0b" and "0a:0b"
func parseHex(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "", "0x", "", "0X", "").Replace(s)
	if clean == "" {
		return nil, fmt.Errorf("empty value")
	}
	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex value %q: %w", s, err)
	}
	return data, nil
}
