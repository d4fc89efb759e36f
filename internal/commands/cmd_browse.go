package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/colonyops/kennel/internal/data/sweep"
	"github.com/colonyops/kennel/internal/kennel"
	"github.com/colonyops/kennel/internal/profiler"
	"github.com/colonyops/kennel/internal/tui"
)

type BrowseCmd struct {
	flags *Flags
	app   *kennel.App

	printAddress bool
}

// NewBrowseCmd creates a new browse command
func NewBrowseCmd(flags *Flags, app *kennel.App) *BrowseCmd {
	return &BrowseCmd{flags: flags, app: app}
}

// Flags returns the browser flags for registration on the root command
func (cmd *BrowseCmd) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "profiler-port",
			Usage:       "enable pprof and metrics HTTP endpoints on the specified port (e.g., 6060)",
			Sources:     cli.EnvVars("KENNEL_PROFILER_PORT"),
			Destination: &cmd.flags.ProfilerPort,
		},
		&cli.BoolFlag{
			Name:        "print-address",
			Usage:       "print the last address on exit",
			Destination: &cmd.printAddress,
		},
	}
}

// Register adds the browse command to the application
func (cmd *BrowseCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "browse",
		Usage:     "Open the interactive browser",
		UsageText: "kennel browse [address]",
		Description: `Opens the terminal browser at an address, or at the first collection.

The address bar follows every filter, search, sort, view and selection change,
so the printed address (--print-address) reopens the same screen.`,
		Flags:         cmd.Flags(),
		ShellComplete: CollectionCompleter(cmd.flags, "/"),
		Action:        cmd.Run,
	})

	return app
}

// Run executes the browser. Exported for use as default command.
func (cmd *BrowseCmd) Run(ctx context.Context, c *cli.Command) error {
	if _, err := openApp(cmd.flags, cmd.app)(ctx, c); err != nil {
		return err
	}
	defer func() { _ = closeApp(cmd.app)(ctx, c) }()

	if cmd.flags.ProfilerPort > 0 {
		profServer, err := profiler.New(cmd.flags.ProfilerPort, log.With().Str("cmp", "profiler").Logger())
		if err != nil {
			return err
		}
		if err := profServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start profiler: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := profServer.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("failed to shutdown profiler server")
			}
		}()
		log.Info().
			Str("url", fmt.Sprintf("http://%s/debug/pprof/", profServer.Addr())).
			Msg("profiler endpoint available")
	}

	cmd.app.StartSweeper(sweep.DefaultInterval)

	cfg := cmd.app.Config
	engine, err := cmd.app.Engine(tui.Threshold(cfg))
	if err != nil {
		return err
	}

	width, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		width, height = 80, 24
	}

	addr := ""
	if arg := c.Args().First(); arg != "" {
		addr = normalizeAddress(arg, "")
	}

	m, err := tui.New(ctx, engine, cfg, tui.Options{
		Address: addr,
		Width:   width,
		Height:  height,
		Log:     log.With().Str("cmp", "tui").Logger(),
	})
	if err != nil {
		return err
	}

	p := tea.NewProgram(m, tea.WithContext(ctx))
	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("run tui: %w", err)
	}

	if cmd.printAddress {
		if model, ok := finalModel.(tui.Model); ok {
			_, _ = fmt.Fprintln(c.Root().Writer, model.Address())
		}
	}
	return nil
}
