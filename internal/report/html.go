package report

import (
	"html/template"
	"io"
	"strings"

	"github.com/srg/soilsense/internal/store"
)

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Soil analysis report</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 48rem; margin: 2rem auto; color: #222; }
h1 { font-size: 1.4rem; }
h2 { font-size: 1.1rem; border-bottom: 1px solid #ddd; padding-bottom: .2rem; }
table { border-collapse: collapse; }
td, th { padding: .3rem .8rem; border: 1px solid #ddd; text-align: left; }
.score { font-size: 2rem; font-weight: bold; }
.good { color: #1a7f37; } .ok { color: #b08800; } .bad { color: #cf222e; }
.meta { color: #777; font-size: .9rem; }
</style>
</head>
<body>
{{range .}}
<h1>Soil analysis {{.ShortID}}</h1>
<p class="meta">{{.Date}}</p>
<p class="score {{.ScoreClass}}">{{.Record.Result.Score}}/100</p>
<h2>Readings</h2>
<table>
<tr><th>Temperature</th><td>{{printf "%.2f" .Record.Soil.Temperature}} °C</td></tr>
<tr><th>Moisture</th><td>{{printf "%.2f" .Record.Soil.Moisture}} %</td></tr>
<tr><th>pH</th><td>{{printf "%.2f" .Record.Soil.PH}}</td></tr>
{{if .Record.Soil.Weather}}<tr><th>Weather</th><td>{{.Record.Soil.Weather}}</td></tr>{{end}}
</table>
<h2>Interpretation</h2>
<p>{{.Record.Result.Interpretation}}</p>
<h2>Recommended plants</h2>
<ul>
{{range .Record.Result.Plants}}
<li><strong>{{.Name}}</strong> — {{.Reasoning}}{{if .CareTips}}<br><em>Care:</em> {{join .CareTips "; "}}{{end}}{{if .IdealConditions}}<br><em>Ideal:</em> {{join .IdealConditions "; "}}{{end}}</li>
{{end}}
</ul>
{{if .Record.Result.Amendments}}
<h2>Amendments</h2>
<ul>
{{range .Record.Result.Amendments}}
<li><strong>{{.Name}}</strong>{{if .Purpose}} — {{.Purpose}}{{end}}{{if .ApplicationRate}} ({{.ApplicationRate}}){{end}}</li>
{{end}}
</ul>
{{end}}
{{end}}
</body>
</html>
`))

type htmlRecord struct {
	Record     store.Record
	ShortID    string
	Date       string
	ScoreClass string
}

// ExportHTML writes a standalone HTML report covering the given analyses.
func ExportHTML(w io.Writer, records []store.Record) error {
	view := make([]htmlRecord, len(records))
	for i, rec := range records {
		class := "bad"
		switch {
		case rec.Result.Score >= 70:
			class = "good"
		case rec.Result.Score >= 40:
			class = "ok"
		}
		view[i] = htmlRecord{
			Record:     rec,
			ShortID:    rec.ID[:8],
			Date:       rec.CreatedAt.Local().Format("2006-01-02 15:04"),
			ScoreClass: class,
		}
	}
	return htmlTemplate.Execute(w, view)
}
