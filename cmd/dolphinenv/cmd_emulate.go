package main

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"dolphinenv/pkg/protocol"
	"dolphinenv/pkg/script"
	"dolphinenv/pkg/sim"
)

// emulateOptions holds the flags of the emulate command. The --script flag
// mirrors dolphin-emu's launch contract; the sim host has nothing to load.
type emulateOptions struct {
	script      string
	host        string
	width       int
	height      int
	fps         float64
	endPolicy   string
	reportEvery int
}

// newEmulateCmd creates the "dolphinenv emulate" subcommand.
func newEmulateCmd() *cobra.Command {
	opts := emulateOptions{}

	cmd := &cobra.Command{
		Use:   "emulate --script SCRIPT IMAGE",
		Short: "Serve the emulator side of the protocol",
		Long: `Reads the ["<pipe_root>", <id>] handshake line from stdin, provisions the
session's pipes and serves DoAction, GetFrame, GetState, SetPointer,
ReadMemory, WriteMemory and End requests until End or a signal.

It accepts the same arguments dolphin-emu is launched with, so a session can
select it as its emulator command.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.host != "sim" {
				return fmt.Errorf("host %q is not available; only the sim host runs outside dolphin-emu", opts.host)
			}
			if opts.width <= 0 || opts.height <= 0 {
				return fmt.Errorf("frame size must be positive, got %dx%d", opts.width, opts.height)
			}
			policy, err := script.ParseEndPolicy(opts.endPolicy)
			if err != nil {
				return err
			}

			hs, err := script.ReadHandshake(cmd.InOrStdin())
			if err != nil {
				return err
			}
			logger := log.New(cmd.ErrOrStderr(), fmt.Sprintf("script[%d]: ", hs.ID), log.LstdFlags|log.Lmicroseconds)
			logger.Printf("serving %s (script %q) on %s", args[0], opts.script, hs.Root)

			var interval time.Duration
			if opts.fps > 0 {
				interval = time.Duration(float64(time.Second) / opts.fps)
			}
			host := sim.New(sim.Config{
				Width:         uint32(opts.width),  //nolint:gosec // checked positive above
				Height:        uint32(opts.height), //nolint:gosec // checked positive above
				FrameInterval: interval,
			})
			loop := script.New(host, script.Config{
				Root:        hs.Root,
				ID:          hs.ID,
				EndPolicy:   policy,
				ReportEvery: opts.reportEvery,
				Logger:      logger,
			})
			return loop.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&opts.script, "script", "", "scripting entry point (ignored by the sim host)")
	cmd.Flags().StringVar(&opts.host, "host", "sim", "scripting host implementation")
	cmd.Flags().IntVar(&opts.width, "width", protocol.DefaultFrameWidth, "frame width")
	cmd.Flags().IntVar(&opts.height, "height", protocol.DefaultFrameHeight, "frame height")
	cmd.Flags().Float64Var(&opts.fps, "fps", 0, "frames per second to pace at (0 = unpaced)")
	cmd.Flags().StringVar(&opts.endPolicy, "end-policy", "drain", "after End: drain (keep advancing) or exit")
	cmd.Flags().IntVar(&opts.reportEvery, "report-every", script.DefaultReportEvery, "steps between throughput logs (<0 disables)")
	return cmd
}
