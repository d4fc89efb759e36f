package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/kennel/internal/kennel"
	"github.com/colonyops/kennel/pkg/iojson"
)

type ResolveCmd struct {
	flags *Flags
	app   *kennel.App

	reverse    bool
	jsonOutput bool
}

// NewResolveCmd creates a new resolve command
func NewResolveCmd(flags *Flags, app *kennel.App) *ResolveCmd {
	return &ResolveCmd{flags: flags, app: app}
}

// Register adds the resolve command to the application
func (cmd *ResolveCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "resolve",
		Usage:     "Translate filter labels to ids and back",
		UsageText: "kennel resolve [--reverse] <collection> key=value...",
		Description: `Resolves the dictionary filters of a collection the way addresses are parsed.

With --reverse the values are ids and the labels are printed.
Keys may be a filter slug or its field id.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "reverse",
				Aliases:     []string{"r"},
				Usage:       "resolve ids to labels",
				Destination: &cmd.reverse,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON",
				Destination: &cmd.jsonOutput,
			},
		},
		ShellComplete: CollectionCompleter(cmd.flags, ""),
		Before:        openApp(cmd.flags, cmd.app),
		After:         closeApp(cmd.app),
		Action:        cmd.run,
	})

	return app
}

type resolution struct {
	Field string `json:"field"`
	Input string `json:"input"`
	Value string `json:"value"`
	Found bool   `json:"found"`
}

func (cmd *ResolveCmd) run(ctx context.Context, c *cli.Command) error {
	args := c.Args().Slice()
	if len(args) < 2 {
		return fmt.Errorf("usage: %s", c.UsageText)
	}

	col, ok := cmd.app.Config.Collection(args[0])
	if !ok {
		return fmt.Errorf("unknown collection %q", args[0])
	}
	sync := col.Synchronizer(cmd.app.Resolver, cmd.app.Log)

	out := make([]resolution, 0, len(args)-1)
	for _, arg := range args[1:] {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("invalid argument %q: expected key=value", arg)
		}
		field, ok := sync.FieldByKey(key)
		if !ok {
			return fmt.Errorf("collection %s has no filter %q", col.ID, key)
		}
		if !field.IsDictionary() {
			out = append(out, resolution{Field: field.ID, Input: value, Value: value, Found: true})
			continue
		}

		res := resolution{Field: field.ID, Input: value}
		if cmd.reverse {
			label, err := cmd.app.Resolver.LabelFor(ctx, field.Ref(), value)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", arg, err)
			}
			res.Value, res.Found = label, label != value
		} else {
			id, found, err := cmd.app.Resolver.IDFor(ctx, field.Ref(), value)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", arg, err)
			}
			res.Value, res.Found = id, found
		}
		out = append(out, res)
	}

	if cmd.jsonOutput {
		return iojson.WriteWith(c.Root().Writer, c.Root().ErrWriter, out)
	}

	w := c.Root().Writer
	for _, r := range out {
		if !r.Found {
			_, _ = fmt.Fprintf(w, "%s=%s\t(not found)\n", r.Field, r.Input)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s=%s\n", r.Field, r.Value)
	}
	return nil
}
