package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/escape-alarm/internal/service/server"
)

var (
	// serveOptions collects flag overrides for the engine.
	serveOptions server.Options

	// serveCmd runs the engine with its gRPC and HTTP servers.
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the alarm engine.",
		Long: `Starts the alarm engine with its gRPC API, HTTP API, SSE stream and metrics.

Listen addresses come from the configuration file unless overridden by flags.
Only one engine may run per pid file so a host never sounds two sirens.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signalContext()
			defer stop()

			options := serveOptions
			options.ConfigPath = cfgPath

			return server.Run(ctx, &options)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	serveCmd.Flags().StringVar(&serveOptions.GRPCAddress, "grpc-addr", "", "gRPC listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveOptions.HTTPAddress, "http-addr", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveOptions.PIDFile, "pid-file", "", "single-instance marker path (overrides config)")

	rootCmd.AddCommand(serveCmd)
}
