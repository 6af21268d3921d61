package main

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"dolphinenv/pkg/action"
	"dolphinenv/pkg/config"
	"dolphinenv/pkg/discimage"
	"dolphinenv/pkg/eventlog"
	"dolphinenv/pkg/protocol"
	"dolphinenv/pkg/session"
)

// runOptions holds the flags of the run command.
type runOptions struct {
	steps     int
	framesDir string
	hold      string

	// sim launches this binary's emulate command instead of dolphin-emu.
	sim    bool
	width  int
	height int

	// exe and env are injectable for tests.
	exe string
	env []string
}

// newRunCmd creates the "dolphinenv run" subcommand.
func newRunCmd(load configLoader) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect, step holding a button, save frames, then shut down",
		Long: `Launches the emulator for the first configured session id, steps it
--steps times with the --hold button pressed on GameCube port 0, writes each
frame to --frames-dir as PNG, releases the button for one more step, sends
End and kills the emulator.

With --sim the emulator is this binary's own "emulate --host sim" command,
so the whole protocol can be exercised without dolphin-emu.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if opts.sim && opts.exe == "" {
				if opts.exe, err = os.Executable(); err != nil {
					return fmt.Errorf("locate executable: %w", err)
				}
			}
			return runDemo(cmd.Context(), cfg, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().IntVar(&opts.steps, "steps", 200, "number of steps with the button held")
	cmd.Flags().StringVar(&opts.framesDir, "frames-dir", "", "write each step's frame as PNG into this directory")
	cmd.Flags().StringVar(&opts.hold, "hold", "A", "GameCube button held while stepping")
	cmd.Flags().BoolVar(&opts.sim, "sim", false, "use the built-in software emulator")
	cmd.Flags().IntVar(&opts.width, "width", protocol.DefaultFrameWidth, "frame width for --sim")
	cmd.Flags().IntVar(&opts.height, "height", protocol.DefaultFrameHeight, "frame height for --sim")
	return cmd
}

func runDemo(ctx context.Context, cfg *config.Config, opts runOptions, stdout, stderr io.Writer) error {
	if opts.steps < 0 {
		return fmt.Errorf("--steps must not be negative, got %d", opts.steps)
	}
	pad := action.NewGameCube()
	if err := pad.Press(opts.hold); err != nil {
		return fmt.Errorf("--hold: %w", err)
	}
	if opts.framesDir != "" {
		if err := os.MkdirAll(opts.framesDir, 0o750); err != nil {
			return fmt.Errorf("create frames dir: %w", err)
		}
	}

	scfg, err := sessionConfig(cfg, opts)
	if err != nil {
		return err
	}
	scfg.Logger = log.New(stderr, "session: ", log.LstdFlags|log.Lmicroseconds)

	rec, err := eventlog.Create(ctx, cfg.EventDB)
	if err != nil {
		fmt.Fprintf(stderr, "warning: event log disabled: %v\n", err)
	} else {
		defer rec.Close()
		scfg.Recorder = rec
	}

	s, err := session.New(scfg)
	if err != nil {
		return err
	}
	defer func() {
		fmt.Fprintln(stdout, "Killing emulator")
		if cerr := s.Close(); cerr != nil {
			fmt.Fprintf(stderr, "warning: close session: %v\n", cerr)
		}
	}()

	if err := s.Connect(ctx); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Connected to emulator (session %d, run %s, pid %d)\n", s.ID(), s.RunID(), s.PID())

	for i := range opts.steps {
		frame, err := s.StepAction(ctx, pad)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if opts.framesDir != "" {
			path := filepath.Join(opts.framesDir, fmt.Sprintf("frame_%04d.png", i))
			if err := savePNG(path, frame); err != nil {
				return err
			}
		}
	}
	fmt.Fprintf(stdout, "Stepped %d times holding %s\n", opts.steps, opts.hold)

	if err := pad.Release(opts.hold); err != nil {
		return err
	}
	if _, err := s.StepAction(ctx, pad); err != nil {
		return fmt.Errorf("release step: %w", err)
	}

	fmt.Fprintln(stdout, "Disconnecting from emulator")
	return s.Disconnect(ctx)
}

// sessionConfig maps the file configuration onto a session. With --sim the
// image is passed through untouched; otherwise archives are extracted into
// the home cache.
func sessionConfig(cfg *config.Config, opts runOptions) (session.Config, error) {
	scfg := session.Config{
		ID:             cfg.FirstID(),
		PipeRoot:       cfg.PipePath,
		Script:         cfg.ScriptPath,
		Image:          cfg.ISOPath,
		Env:            opts.env,
		Home:           cfg.Home,
		RequestTimeout: cfg.RequestTimeout.Std(),
	}

	if opts.sim {
		policy, err := cfg.Policy()
		if err != nil {
			return scfg, err
		}
		scfg.Command = []string{
			opts.exe, "emulate",
			"--host", "sim",
			"--width", strconv.Itoa(opts.width),
			"--height", strconv.Itoa(opts.height),
			"--end-policy", policy.String(),
		}
		if scfg.Image == "" {
			scfg.Image = "sim"
		}
		return scfg, nil
	}

	if cfg.ScriptPath == "" {
		return scfg, errors.New("SCRIPT_PATH is not configured")
	}
	image, err := discimage.Resolve(cfg.ISOPath, filepath.Join(cfg.Home, "images"))
	if err != nil {
		return scfg, err
	}
	scfg.Image = image
	scfg.Command = cfg.EmulatorCommand()
	return scfg, nil
}

func savePNG(path string, frame protocol.Frame) error {
	f, err := os.Create(path) //nolint:gosec // path is under the user's frames dir
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, frame.Image()); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
