package cli

import (
	"github.com/FranksOps/pagewatch/internal/api"
	"github.com/spf13/cobra"
)

func newServeCommand(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := app.open(ctx, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			if addr == "" {
				addr = app.Config.Server.Addr
			}
			app.Logger.Info("monitoring", "targets", len(rt.registry.List()), "store", app.Config.Store.Backend)

			srv := api.New(api.Config{
				Registry:    rt.registry,
				History:     rt.history,
				Crawler:     rt.pipeline,
				Logger:      app.Logger,
				CORSOrigins: app.Config.Server.CORSOrigins,
			})
			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
