package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/kennel/internal/browser"
	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/kennel"
	"github.com/colonyops/kennel/pkg/iojson"
)

type LsCmd struct {
	flags *Flags
	app   *kennel.App

	// flags
	jsonOutput bool
	jsonLines  bool
	pages      int
	width      int
}

// NewLsCmd creates a new ls command
func NewLsCmd(flags *Flags, app *kennel.App) *LsCmd {
	return &LsCmd{flags: flags, app: app}
}

// Register adds the ls command to the application
func (cmd *LsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "ls",
		Usage:     "List the entities at an address",
		UsageText: "kennel ls [--pages N] [--json|--jsonl] <address>",
		Description: `Opens an address the same way the browser does and prints the loaded rows.

The address may be a bare collection ("pets") or a full address with filters,
search, sort and view ("/pets?type=dogs&sort=name-desc"). Labels in the address
are resolved to ids before the provider is queried.

Use --pages to load more than the first page.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON",
				Destination: &cmd.jsonOutput,
			},
			&cli.BoolFlag{
				Name:        "jsonl",
				Usage:       "output one JSON record per line",
				Destination: &cmd.jsonLines,
			},
			&cli.IntFlag{
				Name:        "pages",
				Usage:       "number of pages to load",
				Value:       1,
				Destination: &cmd.pages,
			},
			&cli.IntFlag{
				Name:        "width",
				Usage:       "container width in columns used to pick the layout",
				Value:       80,
				Destination: &cmd.width,
			},
		},
		ShellComplete: CollectionCompleter(cmd.flags, "/"),
		Before:        openApp(cmd.flags, cmd.app),
		After:         closeApp(cmd.app),
		Action:        cmd.run,
	})

	return app
}

type lsOutput struct {
	Address  string          `json:"address"`
	Total    int             `json:"total"`
	Exact    bool            `json:"exact"`
	HasMore  bool            `json:"has_more"`
	Warnings []string        `json:"warnings,omitempty"`
	Records  []entity.Record `json:"records"`
}

func (cmd *LsCmd) run(ctx context.Context, c *cli.Command) error {
	addr := normalizeAddress(c.Args().First(), cmd.flags.Config.Collections[0].ID)

	engine, err := cmd.app.Engine(0)
	if err != nil {
		return err
	}
	engine.Measure(browser.Measurement{Width: cmd.width * cmd.flags.Config.TUI.CellWidth})

	u, err := engine.Open(ctx, addr)
	if err != nil {
		return fmt.Errorf("open %s: %w", addr, err)
	}
	if err := engine.Run(ctx, u); err != nil {
		return err
	}
	for i := 1; i < cmd.pages; i++ {
		cur := engine.Cursor()
		if !cur.HasMore || cur.Err != nil {
			break
		}
		if err := engine.Run(ctx, engine.RequestMore()); err != nil {
			return err
		}
	}

	cur := engine.Cursor()
	if cur.Err != nil {
		return fmt.Errorf("fetch %s: %w", engine.Address(), cur.Err)
	}

	if cmd.jsonLines {
		return iojson.WriteLines(c.Root().Writer, cur.Entities)
	}
	if cmd.jsonOutput {
		return iojson.WriteWith(c.Root().Writer, c.Root().ErrWriter, lsOutput{
			Address:  engine.Address(),
			Total:    cur.Total,
			Exact:    cur.TotalReal,
			HasMore:  cur.HasMore,
			Warnings: engine.Warnings(),
			Records:  cur.Entities,
		})
	}

	for _, w := range engine.Warnings() {
		_, _ = fmt.Fprintf(c.Root().ErrWriter, "warning: %s\n", w)
	}
	if len(cur.Entities) == 0 {
		_, _ = fmt.Fprintf(c.Root().ErrWriter, "No results at %s\n", engine.Address())
		return nil
	}
	return writeRecords(c.Root().Writer, engine.Collection().Fields, cur.Entities)
}

// LooksLikeAddress reports whether a positional argument is an address rather
// than a subcommand.
func LooksLikeAddress(arg string) bool { return strings.HasPrefix(arg, "/") }

// normalizeAddress turns a bare collection id into an address. An empty
// argument opens fallback.
func normalizeAddress(arg, fallback string) string {
	switch {
	case arg == "":
		return "/" + fallback
	case strings.HasPrefix(arg, "/"):
		return arg
	default:
		return "/" + arg
	}
}

func writeRecords(out io.Writer, fields []string, records []entity.Record) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	header := append([]string{"ID", "NAME"}, upper(fields)...)
	_, _ = fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, r := range records {
		row := []string{r.ID, r.Name}
		for _, f := range fields {
			row = append(row, r.Field(f))
		}
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}

	return w.Flush()
}

func upper(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(s)
	}
	return out
}
