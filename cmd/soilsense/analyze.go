package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/soilsense/internal/analysis"
	"github.com/srg/soilsense/internal/config"
	"github.com/srg/soilsense/internal/probe"
	"github.com/srg/soilsense/internal/report"
	"github.com/srg/soilsense/internal/sensor"
	"github.com/srg/soilsense/internal/session"
	"github.com/srg/soilsense/internal/store"
	"github.com/srg/soilsense/internal/weather"
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a soil reading and get planting recommendations",
	Long: `Take one reading from the probe (or values given with --manual), enrich it
with the current local weather, and submit it to the analysis backend. The
result is saved to history and printed as a report.`,
	RunE: runAnalyze,
}

var (
	analyzeManual    string
	analyzeImagePath string
	analyzeNotes     string
	analyzeNoWeather bool
)

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeManual, "manual", "m", "", "Skip the probe and use \"temp,moisture,ph\" values")
	analyzeCmd.Flags().StringVarP(&analyzeImagePath, "image", "i", "", "Attach a photo of the plot")
	analyzeCmd.Flags().StringVar(&analyzeNotes, "notes", "", "Extra context for the analysis")
	analyzeCmd.Flags().BoolVar(&analyzeNoWeather, "no-weather", false, "Skip weather enrichment")
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig(cmd)
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	var image []byte
	var imageMIME string
	if analyzeImagePath != "" {
		image, err = os.ReadFile(analyzeImagePath)
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}
		imageMIME = mime.TypeByExtension(filepath.Ext(analyzeImagePath))
	}

	cmd.SilenceUsage = true

	var reading sensor.Reading
	if analyzeManual != "" {
		reading, err = parseManualReading(analyzeManual)
		if err != nil {
			return err
		}
	} else {
		reading, err = pollOnce(cfg, logger)
		if err != nil {
			return err
		}
		fmt.Printf("Reading: %s\n", reading.String())
	}
	if err := reading.Validate(); err != nil {
		return fmt.Errorf("implausible reading: %w", err)
	}

	soil := analysis.SoilData{
		Temperature: reading.Temperature,
		Moisture:    reading.Moisture,
		PH:          reading.PH,
		Notes:       analyzeNotes,
	}

	if !analyzeNoWeather {
		if cond, ok := weather.NewClient(logger).Current(cmd.Context()); ok {
			soil.Weather = cond.String()
			soil.Location = strings.TrimSuffix(cond.City+", "+cond.Country, ", ")
		} else {
			fmt.Println("Weather lookup failed; continuing without it.")
		}
	}

	client, err := analysis.NewClient(cmd.Context(), cfg.GeminiAPIKey, cfg.Model, cfg.Language, logger)
	if err != nil {
		return err
	}

	progress := NewProgressPrinter("Analyzing soil", "Waiting for the backend", "Done")
	progress.Start()
	result, err := client.AnalyzeSoil(cmd.Context(), soil, image, imageMIME)
	progress.Stop()
	if err != nil {
		return err
	}

	s, err := store.NewStore(historyPath(cfg), logger)
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := s.SaveAnalysis(soil, result)
	if err != nil {
		return err
	}

	rec, ok := s.GetAnalysis(id)
	if !ok {
		return fmt.Errorf("analysis %s was saved but cannot be read back", id)
	}
	report.Render(os.Stdout, rec)
	fmt.Printf("Saved as %s. Ask follow-up questions with: soilsense chat\n", id[:8])
	return nil
}

// pollOnce runs a minimal session: connect, take the immediate reading,
// disconnect.
func pollOnce(cfg *config.Config, logger *logrus.Logger) (sensor.Reading, error) {
	readings := make(chan sensor.Reading, 1)
	closed := make(chan error, 1)

	manager := session.NewManager(probe.NewDiscoverer(logger), session.Config{
		DeviceName:       cfg.DeviceName,
		PollInterval:     cfg.PollInterval,
		DiscoveryTimeout: cfg.ScanTimeout,
		Logger:           logger,
		OnReading: func(r sensor.Reading) {
			select {
			case readings <- r:
			default:
			}
		},
		OnClosed: func(err error) { closed <- err },
	})

	progress := NewProgressPrinter(fmt.Sprintf("Looking for %q", cfg.DeviceName), "Scanning")
	progress.Start()
	err := manager.Connect(context.Background())
	progress.Stop()
	if err != nil {
		return sensor.Reading{}, err
	}

	select {
	case r := <-readings:
		manager.Disconnect()
		return r, nil
	case err := <-closed:
		if err == nil {
			err = fmt.Errorf("session closed before a reading arrived")
		}
		return sensor.Reading{}, err
	case <-time.After(cfg.PollInterval + session.DefaultReadTimeout*3):
		manager.Disconnect()
		return sensor.Reading{}, fmt.Errorf("timed out waiting for a reading")
	}
}

func parseManualReading(s string) (sensor.Reading, error) {
	var r sensor.Reading
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return r, fmt.Errorf("--manual wants \"temp,moisture,ph\", got %q", s)
	}
	if _, err := fmt.Sscanf(strings.TrimSpace(parts[0]), "%f", &r.Temperature); err != nil {
		return r, fmt.Errorf("bad temperature %q", parts[0])
	}
	if _, err := fmt.Sscanf(strings.TrimSpace(parts[1]), "%f", &r.Moisture); err != nil {
		return r, fmt.Errorf("bad moisture %q", parts[1])
	}
	if _, err := fmt.Sscanf(strings.TrimSpace(parts[2]), "%f", &r.PH); err != nil {
		return r, fmt.Errorf("bad pH %q", parts[2])
	}
	return r, nil
}

// historyPath resolves the SQLite location.
func historyPath(cfg *config.Config) string {
	if cfg.HistoryPath != "" {
		return cfg.HistoryPath
	}
	return filepath.Join(filepath.Dir(config.DefaultPath()), "soilsense.db")
}
