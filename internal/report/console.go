package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/defenseunicorns/uds-preflight-scan/pkg/types"
)

const ruleWidth = 80

// Check is the outcome of one pre-requisite check.
type Check struct {
	Name   string
	OK     bool
	Detail string
}

// Printer renders scan progress and summaries for a human reader.
type Printer struct {
	w             io.Writer
	terminalWidth int
}

// NewPrinter returns a Printer writing to w. A terminalWidth <= 0 means w is not a terminal,
// in which case colors and box-drawing characters are disabled.
func NewPrinter(w io.Writer, terminalWidth int) *Printer {
	if terminalWidth <= 0 {
		text.DisableColors()
	}
	return &Printer{w: w, terminalWidth: terminalWidth}
}

func (p *Printer) newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.w)
	if p.terminalWidth > 0 {
		t.SetStyle(table.StyleRounded)
		t.SetAllowedRowLength(p.terminalWidth)
	}
	t.Style().Options.DoNotColorBordersAndSeparators = true
	return t
}

func statusColor(s types.Status) text.Colors {
	switch s {
	case types.StatusPassed:
		return text.Colors{text.FgGreen}
	case types.StatusFailed:
		return text.Colors{text.FgRed, text.Bold}
	default:
		return text.Colors{text.FgYellow}
	}
}

// verdictColor colors only a passing verdict green; anything else is red.
func verdictColor(s types.Status) text.Colors {
	if s == types.StatusPassed {
		return text.Colors{text.FgGreen, text.Bold}
	}
	return text.Colors{text.FgRed, text.Bold}
}

// PrintImage prints the per-image block: the header line, the test case table in scan order,
// the verdict and the elapsed time.
func (p *Printer) PrintImage(res *types.ImageScanResult) {
	fmt.Fprintf(p.w, "\nScanning image: %s\n", res.Target.DisplayName())
	fmt.Fprintln(p.w, strings.Repeat("=", ruleWidth))

	if res.Err != nil {
		fmt.Fprintf(p.w, "%s %v\n", text.Colors{text.FgRed}.Sprint("Scan error:"), res.Err)
	} else {
		t := p.newTable()
		t.AppendHeader(table.Row{"Image Name", "Test Case", "Status", "Has Modified Files"})
		for _, r := range res.Rows {
			t.AppendRow(table.Row{r.ImageName, r.TestCase, statusColor(r.Status).Sprint(string(r.Status)), r.ModifiedFiles})
		}
		if t.Length() != 0 {
			t.Render()
		}
	}

	if res.ExitErr != nil {
		fmt.Fprintf(p.w, "preflight exited with error: %v\n", res.ExitErr)
	}
	if res.Verdict != "" {
		fmt.Fprintf(p.w, "Verdict: %s\n", verdictColor(res.Verdict).Sprint(string(res.Verdict)))
	}
	fmt.Fprintf(p.w, "Time elapsed: %.3f seconds\n", res.Elapsed.Seconds())
}

// PrintSummary prints the totals for the whole run.
func (p *Printer) PrintSummary(results []*types.ImageScanResult, elapsed time.Duration) {
	failed := 0
	var rows []types.Row
	for _, res := range results {
		if res.Failed() {
			failed++
		}
		rows = append(rows, res.Rows...)
	}
	counts := Count(rows)

	fmt.Fprintln(p.w, strings.Repeat("-", ruleWidth))
	fmt.Fprintf(p.w, "Total Images Scanned: %d\n", len(results))
	if failed > 0 {
		fmt.Fprintf(p.w, "%s %d\n", text.Colors{text.FgRed}.Sprint("Failed Scans:"), failed)
	}
	fmt.Fprintf(p.w, "Test Cases: %d %s, %d %s, %d %s\n",
		counts[types.StatusFailed], statusColor(types.StatusFailed).Sprint(string(types.StatusFailed)),
		counts[types.StatusNotApplicable], statusColor(types.StatusNotApplicable).Sprint(string(types.StatusNotApplicable)),
		counts[types.StatusPassed], statusColor(types.StatusPassed).Sprint(string(types.StatusPassed)))
	fmt.Fprintf(p.w, "Total Scan Time: %s\n", FormatDuration(elapsed))
	fmt.Fprintln(p.w, strings.Repeat("-", ruleWidth))
}

// PrintChecks prints the pre-requisite check table.
func (p *Printer) PrintChecks(checks []Check) {
	t := p.newTable()
	t.AppendHeader(table.Row{"Pre-requisite", "Result", "Detail"})
	for _, c := range checks {
		result := text.Colors{text.FgGreen}.Sprint("OK")
		if !c.OK {
			result = text.Colors{text.FgRed, text.Bold}.Sprint("NOK")
		}
		t.AppendRow(table.Row{c.Name, result, c.Detail})
	}
	t.Render()
}

// FormatDuration renders d as HHh:MMm:SSs, truncated to whole seconds.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02dh:%02dm:%02ds", total/3600, (total%3600)/60, total%60)
}
