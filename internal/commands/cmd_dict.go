package commands

import (
	"context"
	"fmt"
	"slices"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/kennel"
	"github.com/colonyops/kennel/pkg/iojson"
)

type DictCmd struct {
	flags *Flags
	app   *kennel.App

	table  string
	reader iojson.FileReader[[]entity.Record]
}

// NewDictCmd creates a new dict command
func NewDictCmd(flags *Flags, app *kennel.App) *DictCmd {
	return &DictCmd{flags: flags, app: app}
}

// Register adds the dict command to the application
func (cmd *DictCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "dict",
		Usage: "Manage the shared dictionary bucket",
		Description: `Dictionary tables (pet types, breeds, countries...) can be published to an
S3 bucket. Instances configured with remote.kind: s3 resolve labels missing
from their local store against it.`,
		Before: openApp(cmd.flags, cmd.app),
		After:  closeApp(cmd.app),
		Commands: []*cli.Command{
			{
				Name:      "publish",
				Usage:     "Publish dictionary tables to the bucket",
				UsageText: "kennel dict publish [--table name [-f file]]",
				Description: `Without --table every dictionary table referenced by a collection filter is
published from the local store. With --table and -f (or stdin) a JSON array of
records is published as that table. Files ending in .yaml are read as YAML.`,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "table",
						Aliases:     []string{"t"},
						Usage:       "table to publish",
						Destination: &cmd.table,
					},
					cmd.reader.Flag(),
				},
				Action: cmd.runPublish,
			},
			{
				Name:   "ls",
				Usage:  "List published tables",
				Action: cmd.runList,
			},
		},
	})

	return app
}

func (cmd *DictCmd) runPublish(ctx context.Context, c *cli.Command) error {
	src, err := cmd.app.Bucket(ctx)
	if err != nil {
		return err
	}

	if cmd.table != "" && cmd.reader.Available() {
		records, err := cmd.reader.Read()
		if err != nil {
			return err
		}
		if err := src.Publish(ctx, cmd.table, records); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(c.Root().Writer, "%s: %d records\n", cmd.table, len(records))
		return nil
	}

	tables := cmd.dictionaryTables()
	if cmd.table != "" {
		tables = []string{cmd.table}
	}
	if len(tables) == 0 {
		return fmt.Errorf("no collection filter references a dictionary table")
	}

	for _, table := range tables {
		records, err := cmd.app.Records(ctx, table)
		if err != nil {
			return fmt.Errorf("read %s: %w", table, err)
		}
		if err := src.Publish(ctx, table, records); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(c.Root().Writer, "%s: %d records\n", table, len(records))
	}
	return nil
}

func (cmd *DictCmd) runList(ctx context.Context, c *cli.Command) error {
	src, err := cmd.app.Bucket(ctx)
	if err != nil {
		return err
	}
	tables, err := src.Tables(ctx)
	if err != nil {
		return err
	}
	for _, t := range tables {
		_, _ = fmt.Fprintln(c.Root().Writer, t)
	}
	return nil
}

func (cmd *DictCmd) dictionaryTables() []string {
	var tables []string
	for _, col := range cmd.app.Config.Collections {
		for _, t := range col.DictionaryTables() {
			if !slices.Contains(tables, t) {
				tables = append(tables, t)
			}
		}
	}
	return tables
}
