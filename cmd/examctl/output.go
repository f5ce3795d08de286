package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/stemsi/exstem-grading/internal/model"
	"github.com/stemsi/exstem-grading/internal/service"
	"golang.org/x/term"
)

// printer renders command output as an aligned table for people or JSON for
// scripts. "auto" picks the table only when stdout is a terminal.
type printer struct {
	w    io.Writer
	json bool
}

func newPrinter(w io.Writer, format string) *printer {
	switch format {
	case "json":
		return &printer{w: w, json: true}
	case "table":
		return &printer{w: w}
	}
	f, ok := w.(*os.File)
	return &printer{w: w, json: !ok || !term.IsTerminal(int(f.Fd()))}
}

func (p *printer) encode(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) table(header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	for i, h := range header {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, h)
	}
	fmt.Fprintln(tw)
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, cell)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func (p *printer) keyValues(kv [][2]string) error {
	if p.json {
		m := make(map[string]string, len(kv))
		for _, pair := range kv {
			m[pair[0]] = pair[1]
		}
		return p.encode(m)
	}
	rows := make([][]string, len(kv))
	for i, pair := range kv {
		rows[i] = []string{pair[0], pair[1]}
	}
	return p.table([]string{"KEY", "VALUE"}, rows)
}

func (p *printer) sweepReport(r service.SweepReport) error {
	if p.json {
		return p.encode(r)
	}
	return p.keyValues([][2]string{
		{"scanned", strconv.Itoa(r.Scanned)},
		{"resolved", strconv.Itoa(r.Resolved)},
		{"skipped", strconv.Itoa(r.Skipped)},
		{"failed", strconv.Itoa(r.Failed)},
		{"partial", strconv.FormatBool(r.Partial)},
		{"elapsed", r.Elapsed.Round(time.Millisecond).String()},
	})
}

func (p *printer) attempt(a *model.Attempt) error {
	if p.json {
		return p.encode(a)
	}
	kv := [][2]string{
		{"id", a.ID.String()},
		{"user_id", strconv.Itoa(a.UserID)},
		{"exam_id", a.ExamID.String()},
		{"status", string(a.Status)},
		{"resolved_as", string(a.ResolvedAs)},
		{"late", strconv.FormatBool(a.Late)},
		{"answered", strconv.Itoa(len(a.Answers))},
	}
	if a.Score != nil {
		kv = append(kv, [2]string{"score", strconv.FormatFloat(*a.Score, 'f', 2, 64)})
	}
	if a.Passed != nil {
		kv = append(kv, [2]string{"passed", strconv.FormatBool(*a.Passed)})
	}
	return p.keyValues(kv)
}

func (p *printer) results(results []model.Result, total int64) error {
	if p.json {
		return p.encode(struct {
			Total   int64          `json:"total"`
			Results []model.Result `json:"results"`
		}{total, results})
	}
	rows := make([][]string, len(results))
	for i, r := range results {
		publishedAt := "-"
		if r.PublishedAt != nil {
			publishedAt = r.PublishedAt.Format(time.RFC3339)
		}
		rows[i] = []string{
			r.ID.String(),
			strconv.Itoa(r.UserID),
			r.ExamID.String(),
			strconv.FormatFloat(r.Score, 'f', 2, 64),
			strconv.FormatBool(r.Passed),
			strconv.FormatBool(r.IsPublished),
			publishedAt,
		}
	}
	if err := p.table([]string{"ID", "USER", "EXAM", "SCORE", "PASSED", "PUBLISHED", "PUBLISHED_AT"}, rows); err != nil {
		return err
	}
	_, err := fmt.Fprintf(p.w, "%d of %d\n", len(results), total)
	return err
}
