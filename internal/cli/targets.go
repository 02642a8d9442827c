package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/FranksOps/pagewatch/internal/scraper"
	"github.com/FranksOps/pagewatch/internal/storage"
	"github.com/FranksOps/pagewatch/internal/target"
	"github.com/spf13/cobra"
)

func newTargetsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "Manage the monitored pages",
	}
	cmd.AddCommand(
		newTargetsListCommand(app),
		newTargetsAddCommand(app),
		newTargetsImportCommand(app),
	)
	return cmd
}

func newTargetsListCommand(app *App) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered targets with their ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := target.LoadRegistry(app.Config.Sites.File)
			if err != nil {
				return err
			}
			targets := registry.List()

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(targets)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tLABEL\tURL")
			for _, t := range targets {
				fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Label, t.URL)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newTargetsAddCommand(app *App) *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Register a page to monitor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !looksLikeURL(args[0]) {
				return fmt.Errorf("%q is not an http(s) url", args[0])
			}
			registry, err := target.LoadRegistry(app.Config.Sites.File)
			if err != nil {
				return err
			}
			t, added, err := registry.Add(args[0], label)
			if err != nil {
				return err
			}
			if !added {
				fmt.Fprintf(cmd.OutOrStdout(), "already registered: %s\n", t.ID)
				return nil
			}
			if err := registry.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s  %s\n", t.ID, t.URL)
			return nil
		},
	}

	cmd.Flags().StringVarP(&label, "label", "l", "", "display name (defaults to the url)")
	return cmd
}

func newTargetsImportCommand(app *App) *cobra.Command {
	var (
		limit  int
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "import-sitemap <site|sitemap-url>",
		Short: "Register every page listed in a site's sitemaps",
		Long: "import-sitemap reads the sitemaps a site advertises in robots.txt (or /sitemap.xml), " +
			"or a sitemap given by url, and registers the pages it lists.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !looksLikeURL(args[0]) {
				return fmt.Errorf("%q is not an http(s) url", args[0])
			}

			registry, err := target.LoadRegistry(app.Config.Sites.File)
			if err != nil {
				return err
			}
			fetcher, err := NewFetcher(app.Config.Fetch, app.Logger)
			if err != nil {
				return err
			}
			reader := scraper.NewSitemapReader(fetcher, app.Logger)

			var pages []string
			if isSitemapURL(args[0]) {
				pages, err = reader.URLs(ctx, args[0])
			} else {
				pages, err = reader.Discover(ctx, args[0])
			}
			if err != nil {
				return err
			}

			added := 0
			for _, page := range pages {
				if limit > 0 && added >= limit {
					break
				}
				t, ok, err := registry.Add(page, "")
				if err != nil {
					app.Logger.Warn("skipping sitemap entry", "url", page, "error", err)
					continue
				}
				if ok {
					added++
					fmt.Fprintf(cmd.OutOrStdout(), "added %s  %s\n", t.ID, t.URL)
				}
			}

			if !dryRun && added > 0 {
				if err := registry.Save(); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d new of %d listed\n", added, len(pages))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "register at most n new pages")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pages without saving")
	return cmd
}

func looksLikeURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// isSitemapURL reports whether s points at a sitemap document rather than a
// site root.
func isSitemapURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	return strings.HasSuffix(p, ".xml") || strings.HasSuffix(p, ".xml.gz") || strings.Contains(p, "sitemap")
}

func writeEntriesJSON(w io.Writer, entries []*storage.HistoryEntry) error {
	if entries == nil {
		entries = []*storage.HistoryEntry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}
