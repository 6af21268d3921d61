package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dolphinenv/internal/version"
	"dolphinenv/pkg/config"
)

// newRootCmd creates the root dolphinenv command with all subcommands attached.
func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "dolphinenv",
		Short: "Drive a Dolphin emulator instance as a step-able environment",
		Long: "dolphinenv runs the driver side of the named-pipe control protocol:\n" +
			"it launches an emulator, steps it with controller input, reads frames\n" +
			"and memory, and records each session's lifecycle in an event log.",
		Version:       fmt.Sprintf("dolphinenv %s", version.Full()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (.yaml or .toml; default ./"+config.DefaultFile+" when present)")

	load := func() (*config.Config, error) {
		return config.LoadOrDefault(configPath)
	}

	cmd.AddCommand(
		newRunCmd(load),
		newEmulateCmd(),
		newLogsCmd(load),
		newMonitorCmd(load),
		newCleanCmd(load),
		newVersionCmd(),
	)
	return cmd
}

// configLoader resolves the configuration once flags are parsed.
type configLoader func() (*config.Config, error)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the dolphinenv version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dolphinenv %s\n", version.Full())
		},
	}
}
