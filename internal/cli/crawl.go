package cli

import (
	"errors"
	"fmt"

	"github.com/FranksOps/pagewatch/internal/target"
	"github.com/spf13/cobra"
)

func newCrawlCommand(app *App) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "crawl [id|url...]",
		Short: "Fetch targets once and record what changed",
		Long: "Crawl fetches each named target, or every registered target with --all, " +
			"and appends a history entry per page. A URL that is not registered is crawled ad hoc under its derived id.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("pass target ids or urls, or --all")
			}

			ctx := cmd.Context()
			rt, err := app.open(ctx, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			targets := rt.registry.List()
			if !all {
				targets, err = resolveTargets(rt.registry, args)
				if err != nil {
					return err
				}
			}
			if len(targets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no targets registered")
				return nil
			}

			failed := 0
			out := cmd.OutOrStdout()
			for _, o := range rt.pipeline.RunAll(ctx, targets) {
				if o.Err != nil {
					failed++
					fmt.Fprintf(out, "FAIL  %s  %s: %v\n", o.Target.ID, o.Target.URL, o.Err)
					continue
				}
				source := "fallback"
				if !o.Entry.UsedFallback && o.Entry.Model != nil {
					source = *o.Entry.Model
				}
				fmt.Fprintf(out, "OK    %s  %s  [%s]\n%s\n", o.Target.ID, o.Target.URL, source, o.Entry.Explanation)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d crawls failed", failed, len(targets))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "crawl every registered target")
	return cmd
}

func resolveTargets(registry *target.Registry, args []string) ([]target.Target, error) {
	targets := make([]target.Target, 0, len(args))
	for _, arg := range args {
		t, err := registry.Resolve(arg)
		if err == nil {
			targets = append(targets, t)
			continue
		}
		if !errors.Is(err, target.ErrUnknownTarget) || !looksLikeURL(arg) {
			return nil, err
		}
		t, err = target.New(arg, "")
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}
