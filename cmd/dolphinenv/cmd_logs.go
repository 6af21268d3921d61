package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"dolphinenv/pkg/eventlog"
)

// logsOptions holds the flags of the logs command.
type logsOptions struct {
	tail      int
	follow    bool
	eventType string
	interval  time.Duration
}

// newLogsCmd creates the "dolphinenv logs" subcommand.
func newLogsCmd(load configLoader) *cobra.Command {
	opts := logsOptions{interval: time.Second}

	cmd := &cobra.Command{
		Use:   "logs [session-id]",
		Short: "Query and tail the session event log",
		Long:  "Displays events from the session event log.\nOptionally filter by session id and follow new events.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := eventlog.Filter{Type: opts.eventType, Limit: opts.tail}
			if len(args) == 1 {
				id, err := strconv.Atoi(args[0])
				if err != nil || id < 0 {
					return fmt.Errorf("invalid session id %q", args[0])
				}
				filter.SessionID = &id
			}

			cfg, err := load()
			if err != nil {
				return err
			}
			r, err := eventlog.NewReader(cfg.EventDB)
			if err != nil {
				return fmt.Errorf("open event log: %w", err)
			}
			defer r.Close()

			w := cmd.OutOrStdout()
			st := newEventStyles(isTerminal(w))
			if opts.follow {
				return followLogs(cmd.Context(), r, w, st, filter, opts.interval)
			}
			return printLogs(cmd.Context(), r, w, st, filter)
		},
	}

	cmd.Flags().IntVar(&opts.tail, "tail", 20, "number of recent events to show (0 = all)")
	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "poll for new events every second")
	cmd.Flags().StringVar(&opts.eventType, "type", "", "only show events of this type (connect, step, kill, ...)")
	return cmd
}

// printLogs displays the events matching filter.
func printLogs(ctx context.Context, r *eventlog.Reader, w io.Writer, st eventStyles, filter eventlog.Filter) error {
	events, err := r.Query(ctx, filter)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(w, "no events found")
		return nil
	}
	for _, e := range events {
		formatEvent(w, st, e)
	}
	return nil
}

// followLogs prints the initial tail, then polls for events with a larger id.
func followLogs(ctx context.Context, r *eventlog.Reader, w io.Writer, st eventStyles, filter eventlog.Filter, every time.Duration) error {
	events, err := r.Query(ctx, filter)
	if err != nil {
		return err
	}
	var last int64
	for _, e := range events {
		formatEvent(w, st, e)
		last = e.ID
	}

	filter.Limit = 0
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			filter.AfterID = last
			events, err := r.Query(ctx, filter)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			for _, e := range events {
				formatEvent(w, st, e)
				last = e.ID
			}
		}
	}
}

// formatEvent writes: timestamp | session | type | run | payload
func formatEvent(w io.Writer, st eventStyles, e eventlog.Event) {
	fmt.Fprintf(w, "%s | %-10s | %s | %s | %s\n",
		e.CreatedAt.Local().Format("2006-01-02 15:04:05.000"),
		fmt.Sprintf("session %d", e.SessionID),
		st.render(e.Type, fmt.Sprintf("%-10s", e.Type)),
		shortRun(e.RunID),
		e.Payload)
}

// shortRun trims a uuid run id to its first group.
func shortRun(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// eventStyles colours event types; the zero value renders plain text.
type eventStyles struct {
	color  bool
	byType map[string]lipgloss.Style
}

func newEventStyles(color bool) eventStyles {
	if !color {
		return eventStyles{}
	}
	theme := DefaultTheme()
	fg := func(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }
	return eventStyles{
		color: true,
		byType: map[string]lipgloss.Style{
			eventlog.TypeConnect:    fg(theme.Success),
			eventlog.TypeReset:      fg(theme.Secondary),
			eventlog.TypeStep:       fg(theme.Muted),
			eventlog.TypeDisconnect: fg(theme.Primary),
			eventlog.TypeExit:       fg(theme.Warning),
			eventlog.TypeKill:       fg(theme.Error),
			eventlog.TypeTimeout:    fg(theme.Error).Bold(true),
		},
	}
}

func (s eventStyles) render(typ, text string) string {
	if !s.color {
		return text
	}
	if style, ok := s.byType[typ]; ok {
		return style.Render(text)
	}
	return text
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
