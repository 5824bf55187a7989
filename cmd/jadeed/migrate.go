package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hadibuxm/jadeed/internal/platform/store"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.application(cmd.ErrOrStderr(), coreModules())
			if err != nil {
				return err
			}
			if err := app.Init(); err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer func() { _ = app.Stop() }()

			var migrations *store.Module
			if err := app.GetService("store.migrations", &migrations); err != nil {
				return fmt.Errorf("failed to get migration service: %w", err)
			}
			if _, err := migrations.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s)\n", migrations.Applied())
			return nil
		},
	}
}
