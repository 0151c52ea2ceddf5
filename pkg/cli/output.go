package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
)

// Slow step threshold
const slowThreshold = 5 * time.Second

// printer renders live progress and the run summary.
type printer struct {
	out io.Writer

	pass, fail, warn, skip, muted, bold lipgloss.Style
}

// newPrinter styles output for out. Colors are dropped when disabled, when
// NO_COLOR is set, or when out is not a terminal.
func newPrinter(out io.Writer, colors bool) *printer {
	p := &printer{out: out}
	if !colors || os.Getenv("NO_COLOR") != "" {
		plain := lipgloss.NewStyle()
		p.pass, p.fail, p.warn, p.skip, p.muted, p.bold = plain, plain, plain, plain, plain, plain
		return p
	}
	r := lipgloss.NewRenderer(out)
	p.pass = r.NewStyle().Foreground(lipgloss.Color("2"))
	p.fail = r.NewStyle().Foreground(lipgloss.Color("1"))
	p.warn = r.NewStyle().Foreground(lipgloss.Color("3"))
	p.skip = r.NewStyle().Foreground(lipgloss.Color("6"))
	p.muted = r.NewStyle().Foreground(lipgloss.Color("8"))
	p.bold = r.NewStyle().Bold(true)
	return p
}

func (p *printer) scenarioStart(idx, total int, name, file string) {
	fmt.Fprintf(p.out, "\n  %s %s", p.skip.Render(fmt.Sprintf("[%d/%d]", idx+1, total)), p.bold.Render(name))
	if file != "" {
		fmt.Fprintf(p.out, " (%s)", file)
	}
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, strings.Repeat("─", 60))
}

func (p *printer) stepComplete(res core.StepResult) {
	desc := res.Label
	dur := formatDuration(res.Duration)

	switch res.Status {
	case core.StatusPassed:
		symbol, style := "✓", p.pass
		durText := "(" + dur + ")"
		if res.Duration >= slowThreshold && res.Command != "manualCheckpoint" {
			symbol, style = "⚠", p.warn
			durText = p.warn.Render(durText)
		}
		fmt.Fprintf(p.out, "    %s %s %s\n", style.Render(symbol), desc, durText)
	case core.StatusSkipped:
		fmt.Fprintf(p.out, "    %s %s\n", p.skip.Render("-"), p.muted.Render(desc+" (skipped)"))
	default:
		symbol := "✗"
		if res.Status == core.StatusErrored {
			symbol = "!"
		}
		fmt.Fprintf(p.out, "    %s %s (%s)\n", p.fail.Render(symbol), desc, dur)
		if res.Message != "" {
			fmt.Fprintf(p.out, "      %s %s\n", p.muted.Render("╰─"), res.Message)
		}
	}
}

func (p *printer) scenarioEnd(res core.ScenarioResult) {
	line := fmt.Sprintf("%s %s", res.Name, p.muted.Render(formatDuration(res.Duration)))
	switch res.Status {
	case core.ScenarioPassed:
		fmt.Fprintf(p.out, "%s %s\n", p.pass.Render("✓"), line)
	case core.ScenarioFailed:
		fmt.Fprintf(p.out, "%s %s\n", p.fail.Render("✗"), line)
	default:
		fmt.Fprintf(p.out, "%s %s\n", p.fail.Render("⊘"), line)
		if res.Error != "" && len(res.Steps) == 0 {
			fmt.Fprintf(p.out, "  %s %s\n", p.muted.Render("╰─"), res.Error)
		}
	}
}

// summary prints step totals and a per-scenario table.
func (p *printer) summary(result *core.RunResult) {
	var total, passed, failed, skipped int
	for _, sc := range result.Scenarios {
		total += sc.TotalSteps
		passed += sc.PassedSteps
		failed += sc.FailedSteps
		skipped += sc.SkippedSteps
	}

	fmt.Fprintln(p.out)
	if passed > 0 {
		fmt.Fprintf(p.out, "  %s (%s)\n", p.pass.Render(fmt.Sprintf("%d steps passing", passed)), formatDuration(result.Duration))
	}
	if failed > 0 {
		fmt.Fprintf(p.out, "  %s\n", p.fail.Render(fmt.Sprintf("%d steps failing", failed)))
	}
	if skipped > 0 {
		fmt.Fprintf(p.out, "  %s\n", p.skip.Render(fmt.Sprintf("%d steps skipped", skipped)))
	}
	fmt.Fprintln(p.out)

	statusCol := 1
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Scenario", "Status", "Steps", "Pass", "Fail", "Skip", "Duration").
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			if row < 0 || col != statusCol || row >= len(result.Scenarios) {
				return style
			}
			return p.statusStyle(result.Scenarios[row].Status).Padding(0, 1)
		})
	for _, sc := range result.Scenarios {
		name := sc.Name
		if len(name) > 40 {
			name = name[:37] + "..."
		}
		t.Row(name, statusLabel(sc.Status),
			strconv.Itoa(sc.TotalSteps), strconv.Itoa(sc.PassedSteps),
			strconv.Itoa(sc.FailedSteps), strconv.Itoa(sc.SkippedSteps),
			formatDuration(sc.Duration))
	}
	t.Row(p.bold.Render("TOTAL"), fmt.Sprintf("%d/%d", result.PassedScenarios, result.TotalScenarios),
		strconv.Itoa(total), strconv.Itoa(passed), strconv.Itoa(failed), strconv.Itoa(skipped),
		formatDuration(result.Duration))
	fmt.Fprintln(p.out, t.Render())

	if result.Error != "" {
		fmt.Fprintf(p.out, "\n  %s %s\n", p.fail.Render("run stopped:"), result.Error)
	}
}

func (p *printer) statusStyle(s core.ScenarioStatus) lipgloss.Style {
	switch s {
	case core.ScenarioPassed:
		return p.pass
	case core.ScenarioFailed:
		return p.fail
	}
	return p.warn
}

func statusLabel(s core.ScenarioStatus) string {
	switch s {
	case core.ScenarioPassed:
		return "✓ PASS"
	case core.ScenarioFailed:
		return "✗ FAIL"
	}
	return "⊘ ABORT"
}

// formatDuration shows milliseconds below one second, seconds below one
// minute, and minutes with seconds otherwise.
func formatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}
