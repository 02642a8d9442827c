// Package report summarizes a target's crawl history and renders it as JSON,
// text or HTML.
package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"text/template"
	"time"

	"github.com/FranksOps/pagewatch/internal/explain"
	"github.com/FranksOps/pagewatch/internal/storage"
)

// Summary aggregates one target's history.
type Summary struct {
	ID              string         `json:"id"`
	URL             string         `json:"url"`
	Label           string         `json:"label"`
	TotalCrawls     int            `json:"totalCrawls"`
	Changes         int            `json:"changes"`
	Unchanged       int            `json:"unchanged"`
	ModelCount      int            `json:"modelCount"`
	FallbackCount   int            `json:"fallbackCount"`
	ByModel         map[string]int `json:"byModel"`
	FallbackReasons map[string]int `json:"fallbackReasons"`
	FirstCrawl      time.Time      `json:"firstCrawl"`
	LastCrawl       time.Time      `json:"lastCrawl"`
	Span            time.Duration  `json:"-"`
	SpanSeconds     float64        `json:"spanSeconds"`
	// Length of the latest snapshot minus the length of the first.
	NetLengthChange int `json:"netLengthChange"`
}

// GenerateSummary folds entries, in storage order, into a Summary.
func GenerateSummary(entries []*storage.HistoryEntry) Summary {
	s := Summary{
		ByModel:         make(map[string]int),
		FallbackReasons: make(map[string]int),
	}
	if len(entries) == 0 {
		return s
	}

	first, last := entries[0], entries[len(entries)-1]
	s.ID, s.URL, s.Label = last.ID, last.URL, last.Label
	s.FirstCrawl, s.LastCrawl = first.CrawledAt, first.CrawledAt

	for _, e := range entries {
		s.TotalCrawls++
		if e.Meta.ChangeRatio != nil {
			s.Changes++
		}
		if e.Reason != nil && *e.Reason == explain.ReasonNoChanges {
			s.Unchanged++
		}
		if e.UsedFallback {
			s.FallbackCount++
			if e.Reason != nil {
				s.FallbackReasons[*e.Reason]++
			}
		} else {
			s.ModelCount++
			if e.Model != nil {
				s.ByModel[*e.Model]++
			}
		}
		if e.CrawledAt.Before(s.FirstCrawl) {
			s.FirstCrawl = e.CrawledAt
		}
		if e.CrawledAt.After(s.LastCrawl) {
			s.LastCrawl = e.CrawledAt
		}
	}

	s.Span = s.LastCrawl.Sub(s.FirstCrawl)
	s.SpanSeconds = s.Span.Seconds()
	s.NetLengthChange = last.Meta.NewLength - first.Meta.NewLength
	return s
}

// WriteJSON writes the summary as indented JSON.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

const textTmpl = `{{.Label}}
{{.URL}} ({{.ID}})
------------------
Crawls:        {{.TotalCrawls}}{{if .TotalCrawls}} from {{.FirstCrawl.Format "2006-01-02 15:04:05"}} to {{.LastCrawl.Format "2006-01-02 15:04:05"}} ({{.Span}}){{end}}
Changes:       {{.Changes}}
Unchanged:     {{.Unchanged}}
Length drift:  {{.NetLengthChange}} characters
Model:         {{.ModelCount}}
{{- range $model, $count := .ByModel}}
  {{$model}}: {{$count}}
{{- end}}
Fallback:      {{.FallbackCount}}
{{- range $reason, $count := .FallbackReasons}}
  {{$reason}}: {{$count}}
{{- end}}
`

var textReport = template.Must(template.New("textReport").Parse(textTmpl))

// WriteText writes a human-readable summary.
func WriteText(w io.Writer, summary Summary) error {
	if err := textReport.Execute(w, summary); err != nil {
		return fmt.Errorf("render text summary: %w", err)
	}
	return nil
}

// WriteEntriesText writes entries, in the order given, as a plain-text log.
func WriteEntriesText(w io.Writer, entries []*storage.HistoryEntry) error {
	for _, e := range entries {
		source := "fallback"
		if !e.UsedFallback && e.Model != nil {
			source = *e.Model
		}
		if _, err := fmt.Fprintf(w, "%s  [%s]  %+d chars\n", e.CrawledAt.Format(time.RFC3339), source, e.Meta.LengthDiff); err != nil {
			return err
		}
		if e.Reason != nil {
			if _, err := fmt.Fprintf(w, "  reason: %s\n", *e.Reason); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s\n\n", e.Explanation); err != nil {
			return err
		}
	}
	return nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Summary.Label}} · history</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; max-width: 960px; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 16px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 120px; }
  .stat-val { font-size: 22px; font-weight: bold; }
  .entry { border-left: 4px solid #4a90d9; padding: 8px 16px; margin: 16px 0; }
  .entry.fallback { border-color: #d9a04a; }
  .meta { color: #777; font-size: 13px; }
  .explanation { white-space: pre-wrap; }
</style>
</head>
<body>
  <h1>{{.Summary.Label}}</h1>
  <p><a href="{{.Summary.URL}}">{{.Summary.URL}}</a></p>

  <div class="stat-card"><div>Crawls</div><div class="stat-val">{{.Summary.TotalCrawls}}</div></div>
  <div class="stat-card"><div>Changes</div><div class="stat-val">{{.Summary.Changes}}</div></div>
  <div class="stat-card"><div>Model</div><div class="stat-val">{{.Summary.ModelCount}}</div></div>
  <div class="stat-card"><div>Fallback</div><div class="stat-val">{{.Summary.FallbackCount}}</div></div>

  {{- range .Entries}}
  <div class="entry{{if .UsedFallback}} fallback{{end}}">
    <div class="meta">
      {{.CrawledAt.Format "2006-01-02 15:04:05 MST"}}
      · {{if .UsedFallback}}fallback{{else if .Model}}{{deref .Model}}{{end}}
      · {{.Meta.OldLength}} → {{.Meta.NewLength}} chars
      {{- if .Reason}} · {{deref .Reason}}{{end}}
    </div>
    <div class="explanation">{{.Explanation}}</div>
  </div>
  {{- else}}
  <p>No crawls recorded yet.</p>
  {{- end}}
</body>
</html>
`

var htmlReport = htmltemplate.Must(htmltemplate.New("htmlReport").Funcs(htmltemplate.FuncMap{
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}).Parse(htmlTmpl))

// WriteHTML renders a timeline page: the summary followed by entries in the
// order given (callers usually pass newest first).
func WriteHTML(w io.Writer, summary Summary, entries []*storage.HistoryEntry) error {
	data := struct {
		Summary Summary
		Entries []*storage.HistoryEntry
	}{summary, entries}
	if err := htmlReport.Execute(w, data); err != nil {
		return fmt.Errorf("render html history: %w", err)
	}
	return nil
}
