package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/kennel/internal/commands"
	"github.com/colonyops/kennel/internal/core/config"
	"github.com/colonyops/kennel/internal/core/styles"
	"github.com/colonyops/kennel/internal/kennel"
	"github.com/colonyops/kennel/pkg/logutils"
)

func main() {
	ctx := context.Background()

	var (
		logCloser func()
		kennelApp = &kennel.App{}
	)

	flags := &commands.Flags{}

	app := &cli.Command{
		Name:      "kennel",
		Usage:     "Browse entity collections from the terminal",
		UsageText: "kennel [global options] command [command options]",
		Description: `Kennel is a windowed browser for large entity collections.

Every screen is an address such as /pets?type=dogs&sort=name-desc/doggo that
can be shared, printed with 'kennel ls', or served to other instances with
'kennel serve'.

Run 'kennel' with no arguments to open the interactive browser.
Run 'kennel --memory' to try it with generated demo data.`,
		Version: versionString(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("KENNEL_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file, - for stderr (defaults to <data-dir>/kennel.log)",
				Sources:     cli.EnvVars("KENNEL_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("KENNEL_CONFIG"),
				Value:       commands.DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory",
				Sources:     cli.EnvVars("KENNEL_DATA_DIR"),
				Value:       commands.DefaultDataDir(),
				Destination: &flags.DataDir,
			},
			&cli.BoolFlag{
				Name:        "memory",
				Usage:       "serve generated demo data from memory",
				Sources:     cli.EnvVars("KENNEL_MEMORY"),
				Destination: &flags.Memory,
			},
			&cli.IntFlag{
				Name:        "demo-count",
				Usage:       "number of demo pets generated with --memory",
				Destination: &flags.DemoCount,
			},
			&cli.StringFlag{
				Name:        "endpoint",
				Usage:       "read entities from a running 'kennel serve' (e.g., http://127.0.0.1:7420)",
				Sources:     cli.EnvVars("KENNEL_ENDPOINT"),
				Destination: &flags.Endpoint,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			cfg, err := config.Read(flags.ConfigPath, flags.DataDir)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			flags.Config = cfg

			// Always log to a file; the terminal belongs to the browser
			logFile := flags.LogFile
			if logFile == "" {
				logFile = cfg.LogFile()
			}

			logger, closer, err := logutils.New(flags.LogLevel, logFile)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger
			logCloser = closer

			// Unknown theme names are reported by validation
			if palette, ok := styles.GetPalette(cfg.TUI.Theme); ok {
				styles.SetTheme(palette)
			}

			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if logCloser != nil {
				logCloser()
			}
			return nil
		},
	}

	browseCmd := commands.NewBrowseCmd(flags, kennelApp)

	app = browseCmd.Register(app)
	app = commands.NewLsCmd(flags, kennelApp).Register(app)
	app = commands.NewResolveCmd(flags, kennelApp).Register(app)
	app = commands.NewSeedCmd(flags, kennelApp).Register(app)
	app = commands.NewServeCmd(flags, kennelApp).Register(app)
	app = commands.NewDictCmd(flags, kennelApp).Register(app)
	app = commands.NewDBCmd(flags, kennelApp).Register(app)
	app = commands.NewConfigValidateCmd(flags).Register(app)

	// Register browser flags on root command
	app.Flags = append(app.Flags, browseCmd.Flags()...)

	// Set the browser as default action when no subcommand is provided
	app.Action = func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() > 0 && !commands.LooksLikeAddress(c.Args().First()) {
			return fmt.Errorf("unknown command %q. Run 'kennel --help' for usage", c.Args().First())
		}
		return browseCmd.Run(ctx, c)
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "\nkennel: %v\n", err)
		os.Exit(1)
	}
}
