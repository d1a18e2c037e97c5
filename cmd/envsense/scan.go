package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/envsense/internal/device"
	"github.com/srg/envsense/internal/devicefactory"
	"github.com/srg/envsense/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List advertising devices a session could select",
	Long: `Scans for connectable devices and lists them, strongest signal first.
By default every device is listed; --filtered applies the same service and name filters
as a filtered session request.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFiltered bool
	scanJSON     bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (defaults to scan_timeout from the config)")
	scanCmd.Flags().BoolVar(&scanFiltered, "filtered", false, "Only list devices a filtered session would select")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print devices as JSON")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	duration := scanDuration
	if duration <= 0 {
		duration = cfg.ScanTimeout
	}

	var opts device.RequestOptions
	if scanFiltered {
		opts.Filters = []string{cfg.ServiceUUID}
		if cfg.NameFilter {
			opts.Name = cfg.DeviceName
		}
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	ctx, cancelScan := context.WithTimeout(ctx, duration)
	defer cancelScan()

	progress := NewProgressPrinter(cmd.ErrOrStderr(), "Scanning", "Scanning", "Processing results")
	progress.Start()
	defer progress.Stop()

	s := scanner.NewScanner(devicefactory.NewCentral(logger), logger)
	entries, err := s.Scan(ctx, opts, progress.Callback())
	progress.Stop()
	if err != nil {
		return err
	}

	if scanJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	return printEntries(cmd, entries)
}

func printEntries(cmd *cobra.Command, entries []scanner.Entry) error {
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "No devices found")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES")
	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = "-"
		}
		services := device.NormalizeUUIDs(e.Services)
		for i, u := range services {
			services[i] = device.ShortenUUID(u)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, e.Address, rssiString(e.RSSI), strings.Join(services, ","))
	}
	return w.Flush()
}

// rssiString colors the signal strength like a signal bar would
func rssiString(rssi int) string {
	s := fmt.Sprintf("%d", rssi)
	switch {
	case rssi >= -60:
		return color.GreenString(s)
	case rssi >= -80:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}
