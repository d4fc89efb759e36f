package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/kennel/internal/data/sweep"
	"github.com/colonyops/kennel/internal/kennel"
	"github.com/colonyops/kennel/internal/server"
)

type ServeCmd struct {
	flags *Flags
	app   *kennel.App

	addr    string
	pprof   bool
	timeout time.Duration
}

// NewServeCmd creates a new serve command
func NewServeCmd(flags *Flags, app *kennel.App) *ServeCmd {
	return &ServeCmd{flags: flags, app: app}
}

// Register adds the serve command to the application
func (cmd *ServeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "serve",
		Usage:     "Serve the entity provider over HTTP",
		UsageText: "kennel serve [--addr host:port] [--pprof]",
		Description: `Serves pages, entity lookups, dictionary values and address parsing over
HTTP, plus /metrics and /healthz. Other kennel instances read from it with
--endpoint.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address (defaults to server.addr from config)",
				Sources:     cli.EnvVars("KENNEL_SERVER_ADDR"),
				Destination: &cmd.addr,
			},
			&cli.BoolFlag{
				Name:        "pprof",
				Usage:       "mount pprof handlers under /debug",
				Destination: &cmd.pprof,
			},
			&cli.DurationFlag{
				Name:        "request-timeout",
				Usage:       "per request timeout",
				Value:       30 * time.Second,
				Destination: &cmd.timeout,
			},
		},
		Before: openApp(cmd.flags, cmd.app),
		After:  closeApp(cmd.app),
		Action: cmd.run,
	})

	return app
}

func (cmd *ServeCmd) run(ctx context.Context, c *cli.Command) error {
	addr := cmd.addr
	if addr == "" {
		addr = cmd.app.Config.Server.Addr
	}

	srv, err := server.New(cmd.app.Provider, cmd.app.Config.Collections, cmd.app.Resolver,
		log.With().Str("cmp", "server").Logger(),
		server.Options{Profiling: cmd.pprof, RequestTimeout: cmd.timeout})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.app.StartSweeper(sweep.DefaultInterval)

	if err := srv.Start(ctx, addr); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.Root().Writer, "listening on http://%s\n", srv.Addr())

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
