package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/kennel/internal/kennel"
	"github.com/colonyops/kennel/pkg/iojson"
)

type DBCmd struct {
	flags *Flags
	app   *kennel.App

	jsonOutput bool
}

// NewDBCmd creates a new db command
func NewDBCmd(flags *Flags, app *kennel.App) *DBCmd {
	return &DBCmd{flags: flags, app: app}
}

// Register adds the db command to the application
func (cmd *DBCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:   "db",
		Usage:  "Inspect the database schema",
		Before: openApp(cmd.flags, cmd.app),
		After:  closeApp(cmd.app),
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "List schema migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "json",
						Usage:       "output as JSON",
						Destination: &cmd.jsonOutput,
					},
				},
				Action: cmd.runStatus,
			},
			{
				Name:      "down",
				Usage:     "Revert the last N migrations",
				UsageText: "kennel db down <n>",
				Action:    cmd.runDown,
			},
		},
	})

	return app
}

var errNoDatabase = errors.New("no database in use (--memory or --endpoint)")

func (cmd *DBCmd) runStatus(ctx context.Context, c *cli.Command) error {
	if cmd.app.DB == nil {
		return errNoDatabase
	}
	status, err := cmd.app.DB.MigrationStatus(ctx)
	if err != nil {
		return err
	}

	if cmd.jsonOutput {
		return iojson.WriteWith(c.Root().Writer, c.Root().ErrWriter, status)
	}

	w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
	for _, s := range status {
		applied := "pending"
		if s.AppliedAt != nil {
			applied = s.AppliedAt.Format("2006-01-02 15:04:05")
		}
		_, _ = fmt.Fprintf(w, "%04d\t%s\t%s\n", s.Version, s.Name, applied)
	}
	return w.Flush()
}

func (cmd *DBCmd) runDown(ctx context.Context, c *cli.Command) error {
	if cmd.app.DB == nil {
		return errNoDatabase
	}
	n, err := strconv.Atoi(c.Args().First())
	if err != nil {
		return fmt.Errorf("usage: %s", c.UsageText)
	}
	return cmd.app.DB.MigrateDown(ctx, n)
}
