package runner

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/kuitang/persona-e2e/internal/results"
)

var (
	// Colors
	Primary = lipgloss.Color("#1cc2e3")
	Green   = lipgloss.Color("#10B981")
	Red     = lipgloss.Color("#EF4444")
	Yellow  = lipgloss.Color("#F59E0B")
	Gray    = lipgloss.Color("#6B7280")

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary)

	PassStyle = lipgloss.NewStyle().Foreground(Green)
	FailStyle = lipgloss.NewStyle().Bold(true).Foreground(Red)
	SkipStyle = lipgloss.NewStyle().Foreground(Yellow)
	DimStyle  = lipgloss.NewStyle().Foreground(Gray)
)

// Column defines a table column with a header and optional width.
type Column struct {
	Header string
	Width  int // 0 means no padding
}

// Table writes aligned rows to W.
type Table struct {
	W       io.Writer
	Columns []Column
	Indent  string
}

// NewTable creates a table writing to w.
func NewTable(w io.Writer, columns ...Column) *Table {
	return &Table{W: w, Columns: columns, Indent: "  "}
}

// PrintHeader prints the styled header row and separator line.
func (t *Table) PrintHeader() {
	headers := make([]string, len(t.Columns))
	totalWidth := len(t.Indent)
	for i, col := range t.Columns {
		if col.Width > 0 {
			headers[i] = HeaderStyle.Render(fmt.Sprintf("%-*s", col.Width, col.Header))
			totalWidth += col.Width + 2
		} else {
			headers[i] = HeaderStyle.Render(col.Header)
			totalWidth += len(col.Header) + 2
		}
	}
	fmt.Fprintln(t.W)
	fmt.Fprintf(t.W, "%s%s\n", t.Indent, strings.Join(headers, "  "))
	fmt.Fprintln(t.W, strings.Repeat("-", totalWidth))
}

// PrintRow prints values aligned to the column widths. Styles apply after
// padding so escape codes do not upset the alignment.
func (t *Table) PrintRow(styles []lipgloss.Style, values ...string) {
	cells := make([]string, len(values))
	for i, val := range values {
		cell := val
		if i < len(t.Columns) && t.Columns[i].Width > 0 {
			cell = fmt.Sprintf("%-*s", t.Columns[i].Width, Truncate(val, t.Columns[i].Width))
		}
		if i < len(styles) {
			cell = styles[i].Render(cell)
		}
		cells[i] = cell
	}
	fmt.Fprintf(t.W, "%s%s\n", t.Indent, strings.Join(cells, "  "))
}

// Truncate shortens a string to max runes with an ellipsis.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func statusStyle(s results.Status) lipgloss.Style {
	switch s {
	case results.Passed:
		return PassStyle
	case results.Skipped:
		return SkipStyle
	default:
		return FailStyle
	}
}

// WriteReport prints one row per outcome followed by the failures with their
// diagnostics and a one-line verdict.
func WriteReport(w io.Writer, run results.Run, outcomes []results.Outcome) {
	sorted := slices.Clone(outcomes)
	slices.SortStableFunc(sorted, func(a, b results.Outcome) int {
		return strings.Compare(a.Env+"\x00"+a.Scenario+"\x00"+a.Browser, b.Env+"\x00"+b.Scenario+"\x00"+b.Browser)
	})

	fmt.Fprintf(w, "%s %s\n", HeaderStyle.Render("Run"), run.ID)
	if run.Pattern != "" {
		fmt.Fprintf(w, "%s\n", DimStyle.Render("tests: "+run.Pattern))
	}

	t := NewTable(w,
		Column{Header: "ENV", Width: 6},
		Column{Header: "SCENARIO", Width: 26},
		Column{Header: "BROWSER", Width: 9},
		Column{Header: "STATUS", Width: 8},
		Column{Header: "TIME"},
	)
	t.PrintHeader()
	for _, o := range sorted {
		t.PrintRow([]lipgloss.Style{{}, {}, {}, statusStyle(o.Status), DimStyle},
			o.Env, o.Scenario, o.Browser, string(o.Status), o.Duration.Round(time.Millisecond).String())
	}

	summary := results.Summarize(run.ID, outcomes)
	if len(summary.Failures) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, FailStyle.Render("Failures"))
		for _, f := range summary.Failures {
			fmt.Fprintf(w, "  %s %s/%s\n", FailStyle.Render("✗"), f.Env, f.Scenario+" ("+f.Browser+")")
			fmt.Fprintf(w, "    %s\n", firstLine(f.Error))
			for _, u := range f.URLs {
				fmt.Fprintf(w, "    %s\n", DimStyle.Render(u))
			}
		}
	}

	fmt.Fprintln(w)
	verdict := PassStyle.Render("PASS")
	if !summary.Success {
		verdict = FailStyle.Render("FAIL")
	}
	fmt.Fprintf(w, "%s  %d passed, %d failed, %d skipped\n", verdict, summary.Passed, summary.Failed, summary.Skipped)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
