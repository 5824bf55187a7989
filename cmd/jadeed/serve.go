package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/GoCodeAlone/modular"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.application(cmd.OutOrStdout(), serverModules())
			if err != nil {
				return err
			}
			// Organizations announce themselves as tenants through this service.
			tenants := modular.NewStandardTenantService(app.Logger())
			if err := app.RegisterService("tenantService", tenants); err != nil {
				return fmt.Errorf("failed to register tenant service: %w", err)
			}
			if err := app.Init(); err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			if err := app.Start(); err != nil {
				return fmt.Errorf("failed to start application: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			app.Logger().Info("Shutting down")
			if err := app.Stop(); err != nil {
				return fmt.Errorf("failed to stop application: %w", err)
			}
			return nil
		},
	}
}
