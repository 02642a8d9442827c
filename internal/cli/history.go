package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/FranksOps/pagewatch/internal/report"
	"github.com/FranksOps/pagewatch/internal/storage"
	"github.com/FranksOps/pagewatch/internal/target"
	"github.com/spf13/cobra"
)

func newHistoryCommand(app *App) *cobra.Command {
	var (
		summary bool
		format  string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "history <id|url>",
		Short: "Show the recorded history of a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := app.open(ctx, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			t, err := rt.registry.Resolve(args[0])
			if errors.Is(err, target.ErrUnknownTarget) && looksLikeURL(args[0]) {
				t, err = target.New(args[0], "")
			}
			if err != nil && !errors.Is(err, target.ErrUnknownTarget) {
				return err
			}
			if err != nil {
				// Unregistered ids may still have history.
				t = target.Target{ID: args[0]}
			}

			entries := rt.history.Read(ctx, t.ID)
			s := report.GenerateSummary(entries)
			if s.ID == "" {
				s.ID, s.URL, s.Label = t.ID, t.URL, t.Label
			}

			newest := storage.Newest(entries)
			if limit > 0 && len(newest) > limit {
				newest = newest[:limit]
			}

			out := cmd.OutOrStdout()
			switch strings.ToLower(format) {
			case "json":
				if summary {
					return report.WriteJSON(out, s)
				}
				return writeEntriesJSON(out, newest)
			case "html":
				return report.WriteHTML(out, s, newest)
			case "text", "":
				if summary {
					return report.WriteText(out, s)
				}
				if len(newest) == 0 {
					fmt.Fprintf(out, "no history for %s\n", t.ID)
					return nil
				}
				return report.WriteEntriesText(out, newest)
			default:
				return fmt.Errorf("unknown format %q (text, json, html)", format)
			}
		},
	}

	cmd.Flags().BoolVar(&summary, "summary", false, "print aggregate statistics instead of entries")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json or html")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n entries, newest first")
	return cmd
}
