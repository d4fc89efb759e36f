package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/kennel/internal/kennel"
)

// openApp returns a Before hook that validates the loaded config and fills
// app. Commands that only read configuration skip it.
func openApp(flags *Flags, app *kennel.App) cli.BeforeFunc {
	return func(ctx context.Context, c *cli.Command) (context.Context, error) {
		if err := flags.Config.Validate(); err != nil {
			return ctx, fmt.Errorf("invalid config: %w", err)
		}
		opened, err := kennel.Open(ctx, flags.Config, kennel.Options{
			Memory:    flags.Memory,
			DemoCount: flags.DemoCount,
			Endpoint:  flags.Endpoint,
		}, log.Logger)
		if err != nil {
			return ctx, err
		}
		*app = *opened
		return ctx, nil
	}
}

// closeApp returns the matching After hook.
func closeApp(app *kennel.App) cli.AfterFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if err := app.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
			return err
		}
		return nil
	}
}
