package dashboard

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Iron-Ham/apihub/internal/coordination"
	"github.com/Iron-Ham/apihub/internal/health"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Column headers shared by the live table and the static render.
var Columns = []string{
	"API", "CIRCUIT", "HEALTH", "SCORE", "TOKENS",
	"TOTAL", "OK", "FAILED", "LIMITED", "OPEN", "AVG LATENCY", "RECENT",
}

// Column indexes colored by state.
const (
	colCircuit = 1
	colHealth  = 2
)

// Rows converts export into table rows, sorted by API name.
func Rows(export coordination.Export) [][]string {
	rows := make([][]string, 0, len(export.APIs))
	for _, name := range export.Names() {
		s := export.APIs[name]
		m := s.Metrics
		rows = append(rows, []string{
			name,
			s.CircuitState.String(),
			s.HealthStatus.String(),
			formatScore(s),
			fmt.Sprintf("%.0f/%d", s.AvailableTokens, s.Capacity),
			strconv.FormatInt(m.TotalRequests, 10),
			strconv.FormatInt(m.SuccessfulRequests, 10),
			strconv.FormatInt(m.FailedRequests, 10),
			strconv.FormatInt(m.RateLimitedRequests, 10),
			strconv.FormatInt(m.CircuitOpenRequests, 10),
			FormatLatency(m.AverageLatency),
			FormatLatency(s.RecentLatency()),
		})
	}
	return rows
}

func formatScore(s coordination.APISnapshot) string {
	if s.HealthStatus == health.StatusUnknown {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", s.HealthScore*100)
}

// FormatLatency renders d at a precision suited to its size.
func FormatLatency(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Millisecond:
		return d.Round(time.Microsecond).String()
	case d < time.Second:
		return d.Round(100 * time.Microsecond).String()
	default:
		return d.Round(time.Millisecond).String()
	}
}

// Render draws export as a table. Styled output uses borders and colors;
// plain output is tab-aligned text suitable for pipes.
func Render(export coordination.Export, styled bool) string {
	rows := Rows(export)
	if len(rows) == 0 {
		return "No APIs registered.\n"
	}
	if !styled {
		return renderPlain(rows)
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(BorderColor)).
		Headers(Columns...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return Header
			}
			if row < 0 || row >= len(rows) {
				return Cell
			}
			snap := export.APIs[rows[row][0]]
			switch col {
			case colCircuit:
				return Cell.Foreground(StateColor(snap.CircuitState))
			case colHealth:
				return Cell.Foreground(HealthColor(snap.HealthStatus))
			}
			return Cell
		})
	return t.String() + "\n"
}

func renderPlain(rows [][]string) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(Columns, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
	return sb.String()
}
