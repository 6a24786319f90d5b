package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/soilsense/internal/device"
	"github.com/srg/soilsense/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for soil probes",
	Long: `Scan for SoilSense probes advertising nearby.

By default only devices advertising the configured probe name are shown;
use --all to list every BLE device in range.`,
	RunE: runScan,
}

var (
	scanDuration  time.Duration
	scanFormat    string
	scanAll       bool
	scanAllowList []string
	scanBlockList []string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().BoolVarP(&scanAll, "all", "a", false, "Show all BLE devices, not just soil probes")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}

	cfg := loadConfig(cmd)
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	s, err := scanner.NewScanner(logger)
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	opts := &scanner.ScanOptions{
		Duration:        scanDuration,
		DuplicateFilter: true,
		AllowList:       scanAllowList,
		BlockList:       scanBlockList,
	}
	if !scanAll {
		opts.NameFilter = cfg.DeviceName
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Listen for Ctrl+C to cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, cancelling scan...")
		cancel()
	}()

	progress := NewCountdownProgressPrinter("Scanning for soil probes", "Scanning", scanDuration, "Processing results")
	progress.Start()
	defer progress.Stop()

	// Surface discoveries as they happen, not only in the final table.
	stopLive := make(chan struct{})
	liveDone := make(chan struct{})
	go func() {
		defer close(liveDone)
		for {
			select {
			case ev, ok := <-s.Events():
				if !ok {
					return
				}
				if ev.Type != scanner.EventNew || scanFormat != "table" {
					continue
				}
				d := ev.DeviceInfo
				fmt.Printf("%sfound %s (%s) %d dBm\n", clearLineSequence, d.Name(), d.Address(), d.RSSI())
			case <-stopLive:
				return
			}
		}
	}()

	devices, err := s.Scan(ctx, opts, progress.Callback())
	close(stopLive)
	<-liveDone
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("scan failed")
		return err
	}

	if m := s.EventMetrics(); m.Overwritten > 0 {
		logger.WithField("dropped_events", m.Overwritten).Debug("Event stream overran the live display")
	}

	progress.Stop()
	return displayDevices(devices)
}

func displayDevices(devices map[string]device.DeviceInfo) error {
	if len(devices) == 0 {
		fmt.Println("No soil probes discovered")
		return nil
	}

	devList := make([]device.DeviceInfo, 0, len(devices))
	for _, d := range devices {
		devList = append(devList, d)
	}
	sort.Slice(devList, func(i, j int) bool {
		return devList[i].RSSI() > devList[j].RSSI()
	})

	if scanFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		type deviceJSON struct {
			Name     string   `json:"name"`
			Address  string   `json:"address"`
			RSSI     int      `json:"rssi"`
			Services []string `json:"services"`
		}
		out := make([]deviceJSON, len(devList))
		for i, d := range devList {
			out[i] = deviceJSON{
				Name:     d.Name(),
				Address:  d.Address(),
				RSSI:     d.RSSI(),
				Services: d.AdvertisedServices(),
			}
		}
		return encoder.Encode(out)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, d := range devList {
		name := truncateDisplay(d.Name(), 20)
		shortened := make([]string, len(d.AdvertisedServices()))
		for i, svc := range d.AdvertisedServices() {
			shortened[i] = device.ShortenUUID(svc)
		}
		services := truncateDisplay(strings.Join(shortened, ","), 30)
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\n", name, d.Address(), d.RSSI(), services)
	}
	return w.Flush()
}

// truncateDisplay shortens s to at most max runes, ellipsis included.
// Advertised names are arbitrary UTF-8; byte slicing could split a rune.
func truncateDisplay(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
