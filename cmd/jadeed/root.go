package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/GoCodeAlone/modular"
	"github.com/GoCodeAlone/modular/feeders"
	"github.com/spf13/cobra"
)

// Version information, set at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var errUnknownLogFormat = errors.New("unknown log format")

// AppConfig is the root config section.
type AppConfig struct {
	Name string `yaml:"name" json:"name" env:"NAME" default:"Jadeed" desc:"Application name"`
}

type rootOptions struct {
	configPath string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "jadeed",
		Short: "Jadeed - multi-tenant business backend",
		Long: `Jadeed serves the accounting, organization, integration and product
management APIs from a single binary.`,
		Version:       fmt.Sprintf("%s (commit: %s, built on: %s)", Version, Commit, Date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "Path to the YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newCreateDemoOrgCmd(opts))
	cmd.AddCommand(newModulesCmd())
	return cmd
}

func newLogger(format string, w io.Writer) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownLogFormat, format)
	}
}

// application creates an observable application fed from the config file
// and the environment, with modules registered in order.
func (o *rootOptions) application(w io.Writer, modules []modular.Module) (*modular.ObservableApplication, error) {
	logger, err := newLogger(o.logFormat, w)
	if err != nil {
		return nil, err
	}
	modular.ConfigFeeders = []modular.Feeder{
		feeders.NewYamlFeeder(o.configPath),
		feeders.NewEnvFeeder(),
	}
	app := modular.NewObservableApplication(modular.NewStdConfigProvider(&AppConfig{}), logger)
	for _, m := range modules {
		app.RegisterModule(m)
	}
	return app, nil
}
