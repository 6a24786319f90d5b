// Package report renders analyses for the terminal and exports them as HTML.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/srg/soilsense/internal/store"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	labelColor   = color.New(color.FgWhite, color.Bold)
	goodColor    = color.New(color.FgGreen, color.Bold)
	okColor      = color.New(color.FgYellow, color.Bold)
	badColor     = color.New(color.FgRed, color.Bold)
	dimColor     = color.New(color.Faint)
)

// scoreColor picks a color band for the 0-100 quality score.
func scoreColor(score int) *color.Color {
	switch {
	case score >= 70:
		return goodColor
	case score >= 40:
		return okColor
	default:
		return badColor
	}
}

// buildSections assembles the report body in display order.
func buildSections(rec *store.Record) *orderedmap.OrderedMap[string, []string] {
	sections := orderedmap.New[string, []string]()

	readings := []string{
		fmt.Sprintf("Temperature  %.2f °C", rec.Soil.Temperature),
		fmt.Sprintf("Moisture     %.2f %%", rec.Soil.Moisture),
		fmt.Sprintf("pH           %.2f", rec.Soil.PH),
	}
	if rec.Soil.Weather != "" {
		readings = append(readings, fmt.Sprintf("Weather      %s", rec.Soil.Weather))
	}
	sections.Set("Readings", readings)

	sections.Set("Interpretation", wrapText(rec.Result.Interpretation, 76))

	var plants []string
	for _, p := range rec.Result.Plants {
		plants = append(plants, fmt.Sprintf("%s — %s", p.Name, p.Reasoning))
		for _, tip := range p.CareTips {
			plants = append(plants, fmt.Sprintf("  care: %s", tip))
		}
		if len(p.IdealConditions) > 0 {
			plants = append(plants, fmt.Sprintf("  ideal: %s", strings.Join(p.IdealConditions, "; ")))
		}
	}
	sections.Set("Recommended plants", plants)

	if len(rec.Result.Amendments) > 0 {
		var amendments []string
		for _, a := range rec.Result.Amendments {
			line := a.Name
			if a.Purpose != "" {
				line += " — " + a.Purpose
			}
			if a.ApplicationRate != "" {
				line += fmt.Sprintf(" (%s)", a.ApplicationRate)
			}
			amendments = append(amendments, line)
		}
		sections.Set("Amendments", amendments)
	}

	return sections
}

// Render writes a colored terminal report for one analysis.
func Render(w io.Writer, rec *store.Record) {
	_, _ = headingColor.Fprintf(w, "Soil analysis %s\n", rec.ID[:8])
	_, _ = dimColor.Fprintf(w, "%s\n\n", rec.CreatedAt.Local().Format("2006-01-02 15:04"))

	_, _ = labelColor.Fprint(w, "Score: ")
	_, _ = scoreColor(rec.Result.Score).Fprintf(w, "%d/100\n\n", rec.Result.Score)

	sections := buildSections(rec)
	for pair := sections.Oldest(); pair != nil; pair = pair.Next() {
		_, _ = headingColor.Fprintln(w, pair.Key)
		for _, line := range pair.Value {
			fmt.Fprintf(w, "  %s\n", line)
		}
		fmt.Fprintln(w)
	}
}

// RenderHistory writes a compact history listing with per-metric trends.
func RenderHistory(w io.Writer, records []store.Record) {
	if len(records) == 0 {
		_, _ = dimColor.Fprintln(w, "No analyses recorded yet.")
		return
	}

	_, _ = headingColor.Fprintf(w, "History (%d analyses, newest first)\n\n", len(records))
	for _, rec := range records {
		_, _ = dimColor.Fprintf(w, "%s  ", rec.CreatedAt.Local().Format("2006-01-02 15:04"))
		fmt.Fprintf(w, "%s  ", rec.ID[:8])
		_, _ = scoreColor(rec.Result.Score).Fprintf(w, "%3d", rec.Result.Score)
		fmt.Fprintf(w, "  %.1f°C  %.1f%%  pH %.1f\n",
			rec.Soil.Temperature, rec.Soil.Moisture, rec.Soil.PH)
	}

	// Trends read oldest-to-newest, history is stored newest first.
	n := len(records)
	temps := make([]float64, n)
	moist := make([]float64, n)
	phs := make([]float64, n)
	scores := make([]float64, n)
	for i, rec := range records {
		temps[n-1-i] = rec.Soil.Temperature
		moist[n-1-i] = rec.Soil.Moisture
		phs[n-1-i] = rec.Soil.PH
		scores[n-1-i] = float64(rec.Result.Score)
	}

	fmt.Fprintln(w)
	_, _ = headingColor.Fprintln(w, "Trends")
	fmt.Fprintf(w, "  score        %s\n", Sparkline(scores))
	fmt.Fprintf(w, "  temperature  %s\n", Sparkline(temps))
	fmt.Fprintf(w, "  moisture     %s\n", Sparkline(moist))
	fmt.Fprintf(w, "  ph           %s\n", Sparkline(phs))
}

// wrapText breaks a paragraph into lines no longer than width.
func wrapText(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	line := words[0]
	for _, word := range words[1:] {
		if len(line)+1+len(word) > width {
			lines = append(lines, line)
			line = word
			continue
		}
		line += " " + word
	}
	return append(lines, line)
}
