package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/devlens/devlens/pkg/types"
)

// printer writes human-readable output, colored only on a terminal.
type printer struct {
	w     io.Writer
	bold  *color.Color
	cyan  *color.Color
	green *color.Color
	dim   *color.Color
}

func newPrinter(w io.Writer) *printer {
	p := &printer{
		w:     w,
		bold:  color.New(color.Bold),
		cyan:  color.New(color.FgCyan, color.Bold),
		green: color.New(color.FgGreen),
		dim:   color.New(color.Faint),
	}
	colorOutput := false
	if f, ok := w.(*os.File); ok {
		colorOutput = isatty.IsTerminal(f.Fd())
	}
	if !colorOutput {
		for _, c := range []*color.Color{p.bold, p.cyan, p.green, p.dim} {
			c.DisableColor()
		}
	}
	return p
}

func (p *printer) section(title string) {
	p.cyan.Fprintf(p.w, "\n%s\n", title)
}

func (p *printer) field(label string, value interface{}) {
	fmt.Fprintf(p.w, "  %-22s %v\n", label+":", value)
}

func (p *printer) printf(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format, args...)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) analysis(a *types.Analysis) {
	p.section("Overview")
	p.field("Rows", a.RowCount)
	p.field("Records", a.RecordCount)
	if ov := a.Overview; ov != nil {
		p.field("Active users", ov.ActiveUsers)
		p.field("Unique contents", ov.UniqueContents)
		p.field("Top verb", valueOr(ov.TopVerb, "-"))
	}

	if f := a.Funnel; f != nil {
		p.section("Sessions")
		p.field("Total sessions", f.TotalSessions)
		p.field("Avg duration (min)", fmt.Sprintf("%.2f", f.AvgSessionDuration))
		p.field("Avg events/session", fmt.Sprintf("%.2f", f.AvgEventsPerSession))

		p.section("Funnel")
		for _, step := range f.FunnelSteps {
			p.printf("  %-14s %6d  %6.1f%%  drop-off %5.1f%%\n", step.Stage, step.Count, step.Rate*100, step.DropOff*100)
		}
	}

	if l := a.LSA; l != nil {
		p.section("Significant transitions")
		if len(l.SignificantTransitions) == 0 {
			p.dim.Fprintln(p.w, "  none")
		}
		for _, t := range l.SignificantTransitions {
			p.printf("  %s -> %s  ", t.From, t.To)
			p.green.Fprintf(p.w, "z=%.2f\n", t.Z)
		}
	}
}

func (p *printer) records(recs []*types.AnalysisRecord) {
	if len(recs) == 0 {
		p.dim.Fprintln(p.w, "no saved analyses")
		return
	}
	p.bold.Fprintf(p.w, "%-36s  %-24s  %8s  %s\n", "ID", "SOURCE", "RECORDS", "CREATED")
	for _, r := range recs {
		p.printf("%-36s  %-24s  %8d  %s\n", r.ID, truncate(r.SourceFile, 24), r.RecordCount,
			r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
}

func (p *printer) counts(title string, counts map[string]int) {
	p.section(title)
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		p.printf("  %-18s %d\n", k, counts[k])
	}
}

func valueOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
