package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/escape-alarm/internal/config"
	"github.com/oshokin/escape-alarm/internal/version"
)

var (
	// cfgPath stores the configuration file path.
	cfgPath string

	// rootCmd represents the base escape-alarm command.
	rootCmd = &cobra.Command{
		Use:   version.Name,
		Short: "Alarm lifecycle engine for escaped inmate alerts.",
		Long: `Runs and operates the alarm lifecycle engine of the surveillance dashboard.

The engine tracks active "escaped inmate detected" alarms, sounds the siren in
cycles of 10 minutes on and 5 minutes off while any alarm is active, and drops
alarms once the backend reports them resolved.

Use "serve" to run the engine; the other commands talk to a running engine over gRPC.`,
		SilenceUsage: true,
	}
)

// Execute runs the escape-alarm CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGTERM or SIGINT.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().
		StringVarP(&cfgPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
}
