package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/soilsense/internal/probe"
	"github.com/srg/soilsense/internal/report"
	"github.com/srg/soilsense/internal/sensor"
	"github.com/srg/soilsense/internal/session"
	"github.com/srg/soilsense/internal/trend"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor a soil probe with live readings",
	Long: `Connect to a soil probe and poll temperature, moisture, and pH until
interrupted. Readings print as they arrive together with a rolling trend
sparkline.`,
	RunE: runMonitor,
}

var (
	monitorDuration time.Duration
	monitorWindow   int
	monitorShowLog  bool
)

func init() {
	monitorCmd.Flags().DurationVarP(&monitorDuration, "duration", "d", 0, "Stop after this long (0 = until Ctrl+C)")
	monitorCmd.Flags().IntVarP(&monitorWindow, "window", "w", 24, "Readings kept in the trend window")
	monitorCmd.Flags().BoolVar(&monitorShowLog, "session-log", false, "Print the session log on exit")
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig(cmd)
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	collector, err := trend.NewCollector(256, monitorWindow)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	readings := make(chan struct{}, 1)
	closed := make(chan error, 1)

	manager := session.NewManager(probe.NewDiscoverer(logger), session.Config{
		DeviceName:       cfg.DeviceName,
		PollInterval:     cfg.PollInterval,
		DiscoveryTimeout: cfg.ScanTimeout,
		Logger:           logger,
		OnReading: func(r sensor.Reading) {
			collector.Add(r)
			select {
			case readings <- struct{}{}:
			default:
			}
		},
		OnClosed: func(err error) { closed <- err },
	})

	progress := NewProgressPrinter(fmt.Sprintf("Looking for %q", cfg.DeviceName), "Scanning")
	progress.Start()
	err = manager.Connect(context.Background())
	progress.Stop()
	if err != nil {
		return err
	}
	defer manager.Disconnect()

	fmt.Printf("Connected. Polling every %s, Ctrl+C to stop.\n\n", cfg.PollInterval)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var timeout <-chan time.Time
	if monitorDuration > 0 {
		timer := time.NewTimer(monitorDuration)
		defer timer.Stop()
		timeout = timer.C
	}

	var closeErr error
loop:
	for {
		select {
		case <-readings:
			printWindow(collector.Drain())
		case <-sigCh:
			fmt.Println("\nCtrl+C pressed, disconnecting...")
			manager.Disconnect()
		case <-timeout:
			manager.Disconnect()
		case closeErr = <-closed:
			break loop
		}
	}

	if monitorShowLog {
		fmt.Println("\nSession log:")
		for _, entry := range manager.Log().Entries() {
			fmt.Printf("  %s  %s\n", entry.Timestamp.Format("15:04:05"), entry.Message)
		}
	}
	if dropped := collector.Overwritten(); dropped > 0 {
		logger.WithField("dropped", dropped).Warn("Display fell behind; some readings were not shown")
	}

	if closeErr != nil {
		return closeErr
	}
	return nil
}

var monitorTimeColor = color.New(color.Faint)

// printWindow prints the newest reading and the trend over the window.
func printWindow(window []sensor.Reading) {
	if len(window) == 0 {
		return
	}
	r := window[len(window)-1]

	_, _ = monitorTimeColor.Printf("%s  ", r.Timestamp.Format("15:04:05"))
	fmt.Printf("%-28s", r.String())
	fmt.Printf("  t %s  m %s  pH %s\n",
		report.Sparkline(trend.Series(window, trend.Temperature)),
		report.Sparkline(trend.Series(window, trend.Moisture)),
		report.Sparkline(trend.Series(window, trend.PH)))
}
