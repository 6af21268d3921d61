package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"dolphinenv/pkg/eventlog"
)

// pollInterval refreshes the table even when no file event arrives.
const pollInterval = 2 * time.Second

// newMonitorCmd creates the "dolphinenv monitor" subcommand.
func newMonitorCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Live table of sessions from the event log",
		Long: "Shows one row per session with its last event, refreshed when the\n" +
			"event database changes and every two seconds. Keys: r refresh, q quit.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
				return fmt.Errorf("create home: %w", err)
			}
			// The alt screen owns stdout; watcher warnings go to a file.
			logFile, err := tea.LogToFile(filepath.Join(cfg.Home, "monitor.log"), "monitor: ")
			if err != nil {
				return fmt.Errorf("open monitor log: %w", err)
			}
			defer logFile.Close()

			watcher := initWatcher(cfg.EventDB)
			if watcher != nil {
				defer watcher.Close()
			}
			p := tea.NewProgram(newMonitorModel(cfg.EventDB, watcher),
				tea.WithAltScreen(), tea.WithContext(cmd.Context()),
				tea.WithInput(cmd.InOrStdin()), tea.WithOutput(cmd.OutOrStdout()))
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("run monitor: %w", err)
			}
			return nil
		},
	}
}

type summariesMsg struct {
	rows []eventlog.Summary
	err  error
	at   time.Time
}

type monitorTickMsg struct{}

// monitorModel is the bubbletea model of the monitor.
type monitorModel struct {
	dbPath  string
	watcher *fsnotify.Watcher
	theme   Theme
	table   table.Model

	summaries []eventlog.Summary
	err       error
	updated   time.Time
	now       func() time.Time
}

func newMonitorModel(dbPath string, watcher *fsnotify.Watcher) monitorModel {
	theme := DefaultTheme()
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Session", Width: 8},
			{Title: "Run", Width: 10},
			{Title: "Last event", Width: 12},
			{Title: "Age", Width: 10},
			{Title: "Events", Width: 8},
			{Title: "Steps", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(theme.Muted).
		BorderBottom(true).
		Bold(true).
		Foreground(theme.Primary)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("0")).
		Background(theme.Secondary).
		Bold(false)
	t.SetStyles(styles)

	return monitorModel{
		dbPath:  dbPath,
		watcher: watcher,
		theme:   theme,
		table:   t,
		now:     time.Now,
	}
}

func fetchSummaries(dbPath string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r, err := eventlog.NewReader(dbPath)
		if err != nil {
			return summariesMsg{err: err, at: time.Now()}
		}
		defer r.Close()
		rows, err := r.Summaries(ctx)
		return summariesMsg{rows: rows, err: err, at: time.Now()}
	}
}

func monitorTick() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg { return monitorTickMsg{} })
}

// Init implements tea.Model.
func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(fetchSummaries(m.dbPath), monitorTick(), waitForChange(m.watcher, m.dbPath))
}

// Update implements tea.Model.
func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, fetchSummaries(m.dbPath)
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		// Title, detail line and status bar take five rows.
		m.table.SetHeight(max(3, msg.Height-5))

	case summariesMsg:
		m.err = msg.err
		m.updated = msg.at
		if msg.err == nil {
			m.summaries = msg.rows
			m.table.SetRows(m.rows())
		}

	case fsChangeMsg:
		return m, tea.Batch(fetchSummaries(m.dbPath), waitForChange(m.watcher, m.dbPath))

	case monitorTickMsg:
		// Ages move even when nothing is written.
		m.table.SetRows(m.rows())
		return m, tea.Batch(fetchSummaries(m.dbPath), monitorTick())
	}
	return m, nil
}

func (m monitorModel) rows() []table.Row {
	now := m.now()
	out := make([]table.Row, 0, len(m.summaries))
	for _, s := range m.summaries {
		out = append(out, table.Row{
			strconv.Itoa(s.SessionID),
			shortRun(s.RunID),
			s.LastType,
			formatAge(now.Sub(s.LastAt)),
			strconv.Itoa(s.Events),
			strconv.Itoa(s.Steps),
		})
	}
	return out
}

// View implements tea.Model.
func (m monitorModel) View() string {
	var b strings.Builder
	title := lipgloss.NewStyle().Bold(true).Foreground(m.theme.Primary)
	muted := lipgloss.NewStyle().Foreground(m.theme.Muted)

	b.WriteString(title.Render("dolphinenv sessions"))
	b.WriteString("  ")
	b.WriteString(muted.Render(m.dbPath))
	b.WriteString("\n\n")

	if len(m.summaries) == 0 {
		b.WriteString(muted.Render("No sessions recorded yet"))
		b.WriteString("\n")
	} else {
		b.WriteString(m.table.View())
		b.WriteString("\n")
		b.WriteString(m.detail())
		b.WriteString("\n")
	}

	b.WriteString(m.statusBar())
	return b.String()
}

// detail describes the selected session, coloured by its last event.
func (m monitorModel) detail() string {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.summaries) {
		return ""
	}
	s := m.summaries[i]
	style := lipgloss.NewStyle().Foreground(m.theme.statusColor(s.LastType))
	return style.Render(fmt.Sprintf("session %d: %s %s ago (run %s)",
		s.SessionID, s.LastType, formatAge(m.now().Sub(s.LastAt)), s.RunID))
}

func (m monitorModel) statusBar() string {
	muted := lipgloss.NewStyle().Foreground(m.theme.Muted)
	if m.err != nil {
		errStyle := lipgloss.NewStyle().Foreground(m.theme.Error)
		return errStyle.Render("error: "+m.err.Error()) + muted.Render("  r refresh · q quit")
	}
	mode := "watching"
	if m.watcher == nil {
		mode = "polling"
	}
	updated := "never"
	if !m.updated.IsZero() {
		updated = m.updated.Format("15:04:05")
	}
	return muted.Render(fmt.Sprintf("%s · updated %s · r refresh · q quit", mode, updated))
}

// formatAge renders a duration at one-unit granularity.
func formatAge(d time.Duration) string {
	switch {
	case d < 0:
		return "0s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
