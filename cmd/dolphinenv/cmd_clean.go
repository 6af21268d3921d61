package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"dolphinenv/pkg/channel"
)

// newCleanCmd creates the "dolphinenv clean" subcommand.
func newCleanCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "clean <session-id>...",
		Short: "Remove the named pipes left behind by sessions",
		Long: `Removes main_pipe, command_pipe and waiting_pipe for each session id under
the configured pipe root, and the session directory when it is then empty.
Safe to run when nothing is there.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int, 0, len(args))
			for _, a := range args {
				id, err := strconv.Atoi(a)
				if err != nil || id < 0 {
					return fmt.Errorf("invalid session id %q", a)
				}
				ids = append(ids, id)
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			return cleanSessions(cmd.OutOrStdout(), cfg.PipePath, ids)
		},
	}
}

func cleanSessions(w io.Writer, root string, ids []int) error {
	for _, id := range ids {
		pair := channel.Open(root, id)
		if _, err := os.Stat(pair.Dir()); errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(w, "session %d: nothing to clean\n", id)
			continue
		}
		if err := pair.Remove(); err != nil {
			return fmt.Errorf("session %d: %w", id, err)
		}
		fmt.Fprintf(w, "session %d: removed pipes in %s\n", id, pair.Dir())
	}
	return nil
}
