// Package dashboard renders coordination hub snapshots: a live bubbletea
// view that polls a running server, and a static table for one-shot CLI
// output.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/apihub/internal/circuit"
	"github.com/Iron-Ham/apihub/internal/coordination"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Fetcher retrieves the current snapshot. *server.Client satisfies it.
type Fetcher interface {
	Snapshot(ctx context.Context) (coordination.Export, error)
}

// Resetter forces a circuit breaker closed. *server.Client satisfies it.
type Resetter interface {
	Reset(ctx context.Context, name string) error
}

// Client is what the live dashboard needs from a server.
type Client interface {
	Fetcher
	Resetter
}

const (
	// DefaultInterval is the polling interval when none is given.
	DefaultInterval = time.Second
	fetchTimeout    = 5 * time.Second
)

// Messages

type tickMsg time.Time

type snapshotMsg struct {
	export coordination.Export
	err    error
}

type resetMsg struct {
	api string
	err error
}

// Model is the bubbletea model of the live dashboard.
type Model struct {
	client   Client
	source   string
	interval time.Duration

	table   table.Model
	export  coordination.Export
	err     error
	notice  string
	updated time.Time
	width   int
}

// New creates a dashboard polling client every interval. source is shown
// in the header, typically the server URL.
func New(client Client, source string, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultInterval
	}

	cols := make([]table.Column, len(Columns))
	for i, title := range Columns {
		cols[i] = table.Column{Title: title, Width: columnWidth(title)}
	}
	t := table.New(
		table.WithColumns(cols),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(BorderColor).
		BorderBottom(true).
		Bold(true).
		Foreground(PrimaryColor)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#F9FAFB")).
		Background(lipgloss.Color("#1F2937")).
		Bold(false)
	t.SetStyles(s)

	return Model{
		client:   client,
		source:   source,
		interval: interval,
		table:    t,
	}
}

func columnWidth(title string) int {
	switch title {
	case "API":
		return 16
	case "CIRCUIT", "HEALTH", "TOKENS", "AVG LATENCY", "RECENT":
		return 11
	default:
		return max(len(title), 7)
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) fetch() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		export, err := client.Snapshot(ctx)
		return snapshotMsg{export: export, err: err}
	}
}

func (m Model) reset(api string) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		return resetMsg{api: api, err: client.Reset(ctx, api)}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		case "x":
			if api := m.SelectedAPI(); api != "" {
				return m, m.reset(api)
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		// Title, status line, and help take six lines.
		m.table.SetHeight(max(msg.Height-6, 3))
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetch(), m.tick())

	case snapshotMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.export = msg.export
		m.updated = msg.export.Timestamp
		m.table.SetRows(toTableRows(Rows(msg.export)))
		return m, nil

	case resetMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("reset %s failed: %v", msg.api, msg.err)
			return m, nil
		}
		m.notice = fmt.Sprintf("circuit for %s reset", msg.api)
		return m, m.fetch()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func toTableRows(rows [][]string) []table.Row {
	out := make([]table.Row, len(rows))
	for i, r := range rows {
		out[i] = table.Row(r)
	}
	return out
}

// SelectedAPI returns the API under the cursor, or "" when the table is empty.
func (m Model) SelectedAPI() string {
	row := m.table.SelectedRow()
	if len(row) == 0 {
		return ""
	}
	return row[0]
}

// Err returns the most recent fetch error, if any.
func (m Model) Err() error { return m.err }

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(Title.Render("apihub") + Muted.Render("  "+m.source))
	b.WriteString("\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.helpLine())
	if m.width > 0 {
		return lipgloss.NewStyle().MaxWidth(m.width).Render(b.String())
	}
	return b.String()
}

func (m Model) statusLine() string {
	if m.err != nil {
		return Error.Render("fetch failed: " + m.err.Error())
	}
	if m.updated.IsZero() {
		return Muted.Render("waiting for first snapshot...")
	}

	open, halfOpen := 0, 0
	for _, s := range m.export.APIs {
		switch s.CircuitState {
		case circuit.StateOpen:
			open++
		case circuit.StateHalfOpen:
			halfOpen++
		}
	}
	parts := []string{fmt.Sprintf("%d APIs", len(m.export.APIs))}
	if open > 0 {
		parts = append(parts, lipgloss.NewStyle().Foreground(RedColor).Render(fmt.Sprintf("%d open", open)))
	}
	if halfOpen > 0 {
		parts = append(parts, lipgloss.NewStyle().Foreground(AmberColor).Render(fmt.Sprintf("%d half-open", halfOpen)))
	}
	parts = append(parts, Muted.Render("updated "+m.updated.Local().Format("15:04:05")))
	if m.notice != "" {
		parts = append(parts, m.notice)
	}
	return strings.Join(parts, "  ")
}

func (m Model) helpLine() string {
	keys := []struct{ key, desc string }{
		{"↑/↓", "select"},
		{"x", "reset circuit"},
		{"r", "refresh"},
		{"q", "quit"},
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = HelpKey.Render(k.key) + " " + k.desc
	}
	return HelpBar.Render(strings.Join(parts, "  "))
}

// Run starts the dashboard on the terminal and blocks until the user quits.
func Run(client Client, source string, interval time.Duration) error {
	p := tea.NewProgram(New(client, source, interval), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
