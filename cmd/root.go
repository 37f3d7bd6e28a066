// Package cmd defines and implements the CLI commands for the entityproc
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/registrar-data/entityproc/internal/app"
	"github.com/registrar-data/entityproc/internal/config"
	"github.com/registrar-data/entityproc/internal/logging"
	"github.com/registrar-data/entityproc/internal/registry"
)

var cfgFile string

// version is stamped at build time via -ldflags.
var version = "dev"

// exitCode is set by subcommands that finish cleanly but must still signal
// failure to the calling workflow, such as an exhausted retrieval. Returning
// an error from RunE would skip the PersistentPostRun teardown, so the code
// travels out of band instead.
var exitCode int

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the surface commands need from the application container. It is an
// interface so tests can inject a fake via the newApp factory.
type App interface {
	Close()
	GetLogger() *zap.Logger
	GetConfig() config.Config
	NewRequestID() (string, error)
	Run(ctx context.Context, req registry.Request) registry.Outcome
	Emit(req registry.Request, outcome registry.Outcome) (string, error)
}

// newApp is the application factory. It's a variable so tests can replace it
// with a mock factory.
var newApp = func(ctx context.Context) (App, error) {
	return app.NewApp(ctx)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entityproc",
		Short: "Retrieves a single business entity filing from the state registry portal.",
		Long: `entityproc drives a real browser through the state registry's search
portal, waits out the anti-bot challenge, and extracts one entity's filing
details into a JSON document. It is built to run as a single step of a batch
workflow: one invocation, one control number, one output file.`,
		Version:      version,
		SilenceUsage: true,

		// Runs after config is loaded and before the subcommand's RunE; the
		// application is built here and injected through the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cobra.OnInitialize(func() {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		}
		config.InitConfig()
	})

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., /etc/entityproc, $HOME/.entityproc)")

	cmd.AddCommand(newFetchCmd())

	return cmd
}

// resolveApp retrieves the App injected by the root command's PreRun hook.
func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		logging.L.Fatal("Command execution failed", zap.Error(err))
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
