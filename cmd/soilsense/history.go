package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/soilsense/internal/report"
	"github.com/srg/soilsense/internal/store"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse stored analyses",
	Long: `List stored soil analyses newest first, with per-metric trend sparklines.
A single analysis can be shown in full with --show, and the whole history
can be exported as a standalone HTML report with --html.`,
	RunE: runHistory,
}

var (
	historyLimit    int
	historyShowID   string
	historyHTMLPath string
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Show at most this many analyses (0 = all)")
	historyCmd.Flags().StringVar(&historyShowID, "show", "", "Show one analysis in full (ID prefix)")
	historyCmd.Flags().StringVar(&historyHTMLPath, "html", "", "Export the listing as HTML to this file")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig(cmd)
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	s, err := store.NewStore(historyPath(cfg), logger)
	if err != nil {
		return err
	}
	defer s.Close()

	if historyShowID != "" {
		rec, err := findByPrefix(s, historyShowID)
		if err != nil {
			return err
		}
		report.Render(os.Stdout, rec)
		return nil
	}

	records := s.ListAnalyses(historyLimit)

	if historyHTMLPath != "" {
		f, err := os.Create(historyHTMLPath)
		if err != nil {
			return fmt.Errorf("failed to create HTML export: %w", err)
		}
		defer f.Close()
		if err := report.ExportHTML(f, records); err != nil {
			return fmt.Errorf("failed to write HTML export: %w", err)
		}
		fmt.Printf("Exported %d analyses to %s\n", len(records), historyHTMLPath)
		return nil
	}

	report.RenderHistory(os.Stdout, records)
	return nil
}

// findByPrefix resolves an ID prefix against the stored history.
func findByPrefix(s *store.Store, prefix string) (*store.Record, error) {
	if rec, ok := s.GetAnalysis(prefix); ok {
		return rec, nil
	}

	var match *store.Record
	for _, rec := range s.ListAnalyses(0) {
		if strings.HasPrefix(rec.ID, prefix) {
			if match != nil {
				return nil, fmt.Errorf("ID prefix %q is ambiguous", prefix)
			}
			r := rec
			match = &r
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no analysis with ID %q", prefix)
	}
	return match, nil
}
