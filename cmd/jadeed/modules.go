package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/GoCodeAlone/modular"
	"github.com/GoCodeAlone/modular/modules/chimux"
	"github.com/GoCodeAlone/modular/modules/database"
	"github.com/GoCodeAlone/modular/modules/httpclient"
	"github.com/GoCodeAlone/modular/modules/httpserver"
	"github.com/spf13/cobra"

	"github.com/hadibuxm/jadeed/internal/accounting"
	"github.com/hadibuxm/jadeed/internal/accounts"
	"github.com/hadibuxm/jadeed/internal/aiengine"
	"github.com/hadibuxm/jadeed/internal/github"
	"github.com/hadibuxm/jadeed/internal/jira"
	"github.com/hadibuxm/jadeed/internal/organizations"
	"github.com/hadibuxm/jadeed/internal/platform/activity"
	"github.com/hadibuxm/jadeed/internal/platform/secrets"
	"github.com/hadibuxm/jadeed/internal/platform/store"
	"github.com/hadibuxm/jadeed/internal/productmgmt"

	// SQL drivers selectable through database.connections.*.driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// coreModules open the database and apply migrations. Every command needs
// them.
func coreModules() []modular.Module {
	return []modular.Module{
		database.NewModule(),
		secrets.NewModule(nil),
		store.NewModule(),
	}
}

// serverModules is the full module set of the HTTP API.
func serverModules() []modular.Module {
	return append(coreModules(),
		activity.NewModule(),
		httpclient.NewHTTPClientModule(),
		newRequestLogModule(),
		chimux.NewChiMuxModule(),
		httpserver.NewHTTPServerModule(),
		accounts.NewModule(),
		organizations.NewModule(),
		accounting.NewModule(),
		jira.NewModule(),
		github.NewModule(),
		productmgmt.NewModule(),
		aiengine.NewModule(),
		newRootModule(),
	)
}

func newModulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List the modules served by the API with their dependencies and services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MODULE\tDEPENDS ON\tPROVIDES")
			for _, m := range serverModules() {
				var deps, provides []string
				if d, ok := m.(modular.DependencyAware); ok {
					deps = d.Dependencies()
				}
				if s, ok := m.(modular.ServiceAware); ok {
					for _, p := range s.ProvidesServices() {
						provides = append(provides, p.Name)
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Name(), orDash(deps), orDash(provides))
			}
			return tw.Flush()
		},
	}
}

func orDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}
