package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"
)

// CollectionCompleter returns a ShellCompleteFunc that suggests configured
// collections as positional completions. With prefix set, suggestions are
// addresses ("/pets") rather than bare ids.
//
// When the user's last typed argument starts with "-", it falls back to the
// default flag completion behavior.
func CollectionCompleter(flags *Flags, prefix string) cli.ShellCompleteFunc {
	return func(ctx context.Context, cmd *cli.Command) {
		if args := cmd.Args(); args.Present() {
			last := args.Slice()[args.Len()-1]
			if strings.HasPrefix(last, "-") {
				cli.DefaultCompleteWithFlags(ctx, cmd)
				return
			}
		}

		if flags.Config == nil {
			return
		}

		w := cmd.Root().Writer
		for _, col := range flags.Config.Collections {
			_, _ = fmt.Fprintln(w, prefix+col.ID)
		}
	}
}
