package progress

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/elsanchez/resfetch/internal/domain"
)

// Styles with adaptive colors for light/dark backgrounds
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "63", Dark: "205"}).
			MarginLeft(2)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "250"})

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "9"}).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "34", Dark: "10"}).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "178", Dark: "11"})

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "63", Dark: "205"})

	keyStyle = lipgloss.NewStyle().Width(32)
)

// View renders the run
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("resfetch") + "\n\n")

	for _, k := range m.order {
		b.WriteString("  " + m.row(m.tasks[k]) + "\n")
	}

	queued, running, done := m.counts()
	elapsed := time.Since(m.started).Round(time.Second)
	b.WriteString("\n" + helpStyle.Render(fmt.Sprintf("  %d done • %d running • %d queued • %s", done, running, queued, elapsed)))

	switch {
	case m.finished:
		b.WriteString("\n")
	case m.quitting:
		b.WriteString("\n" + warnStyle.Render("  Canceling: waiting for active requests...") + "\n")
	default:
		b.WriteString("\n" + helpStyle.Render("  q cancel") + "\n")
	}

	return b.String()
}

func (m Model) row(t *task) string {
	name := keyStyle.Render(truncate(t.key, 30))

	switch t.state {
	case stateQueued:
		return helpStyle.Render("·") + " " + name + helpStyle.Render("queued")
	case stateRunning:
		if t.total > 0 {
			pct := float64(t.written) / float64(t.total)
			return m.spinner.View() + name + m.bar.ViewAs(min(pct, 1)) + " " + humanBytes(t.written)
		}
		if t.written > 0 {
			return m.spinner.View() + name + humanBytes(t.written)
		}
		return m.spinner.View() + name + helpStyle.Render("discovering")
	}

	return outcomeIcon(t.result.Outcome) + " " + name + outcomeText(t)
}

func outcomeIcon(o domain.Outcome) string {
	switch o {
	case domain.OutcomeComplete:
		return successStyle.Render("✓")
	case domain.OutcomeSkipped:
		return successStyle.Render("=")
	case domain.OutcomeNothingFound, domain.OutcomeCanceled:
		return warnStyle.Render("○")
	default:
		return errorStyle.Render("✗")
	}
}

func outcomeText(t *task) string {
	res := t.result
	switch res.Outcome {
	case domain.OutcomeComplete:
		return successStyle.Render("complete") + " " + humanBytes(res.Download.BytesWritten) + " " + helpStyle.Render(res.Download.FinalPath)
	case domain.OutcomeSkipped:
		return "skipped " + helpStyle.Render(res.Download.FinalPath)
	case domain.OutcomeNothingFound:
		return warnStyle.Render("nothing found") + helpStyle.Render(fmt.Sprintf(" (%d templates)", res.Discovery.TemplatesTried()))
	case domain.OutcomeCanceled:
		return warnStyle.Render("canceled")
	}

	msg := res.Error
	if msg == "" {
		msg = res.Download.Error
	}
	return errorStyle.Render(string(res.Outcome)) + " " + helpStyle.Render(truncate(msg, 60))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
