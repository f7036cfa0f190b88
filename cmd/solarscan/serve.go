package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jengzang/solarscan-backend-go/internal/app"
	"github.com/jengzang/solarscan-backend-go/internal/logging"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(false)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Server.Port = port
			}
			logging.SetDefault(logger)

			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen address, e.g. :8080")
	return cmd
}
