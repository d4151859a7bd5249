package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/oshokin/escape-alarm/internal/domain/alarm"
	"github.com/oshokin/escape-alarm/internal/service/client"
)

var (
	// serverAddress overrides the engine gRPC address for operator commands.
	serverAddress string

	// triggerPayload is the raw JSON alert payload.
	triggerPayload string
	// triggerFields are extra key=value payload entries.
	triggerFields []string
	// triggerID is the alert ID to use instead of a generated one.
	triggerID string
	// triggerRetry keeps pushing until the engine accepts the alarm.
	triggerRetry bool

	// statusJSON prints the snapshot as JSON.
	statusJSON bool
	// watchPlain prints snapshot lines instead of the interactive indicator.
	watchPlain bool

	triggerCmd = &cobra.Command{
		Use:   "trigger",
		Short: "Raise an escaped inmate alarm.",
		Long: `Raises an alarm on the running engine and shows it as the visible alarm.

The payload is a JSON object, extended by --field key=value entries.
Without --id or an alert_id in the payload the engine assigns a fresh ID.
Re-triggering an existing ID replaces that alarm.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, err := client.ParsePayload(triggerPayload, triggerFields, triggerID)
			if err != nil {
				return err
			}

			return withRunner(cmd, func(ctx context.Context, r *client.Runner) error {
				return r.Trigger(ctx, payload, triggerRetry)
			})
		},
	}

	resolveCmd = &cobra.Command{
		Use:   "resolve <alert-id>",
		Short: "Resolve one alarm.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, func(ctx context.Context, r *client.Runner) error {
				return r.Resolve(ctx, alarm.AlertID(args[0]))
			})
		},
	}

	dismissCmd = &cobra.Command{
		Use:   "dismiss",
		Short: "Hide the visible alarm; the siren keeps its cycle.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRunner(cmd, func(ctx context.Context, r *client.Runner) error {
				return r.Dismiss(ctx)
			})
		},
	}

	stopAllCmd = &cobra.Command{
		Use:   "stop-all",
		Short: "Clear every alarm and silence the siren.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRunner(cmd, func(ctx context.Context, r *client.Runner) error {
				return r.StopAll(ctx)
			})
		},
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Print the current alarm state.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRunner(cmd, func(ctx context.Context, r *client.Runner) error {
				return r.Status(ctx, statusJSON)
			})
		},
	}

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Show the live alarm indicator.",
		Long: `Follows the engine state. The interactive indicator shows the alarm count,
the siren state and the visible alarm; press d to dismiss it, s to stop all
alarms and q to quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRunner(cmd, func(ctx context.Context, r *client.Runner) error {
				return r.Watch(ctx, watchPlain)
			})
		},
	}
)

// withRunner connects to the engine, runs fn and closes the connection.
func withRunner(cmd *cobra.Command, fn func(context.Context, *client.Runner) error) error {
	ctx, stop := signalContext()
	defer stop()

	r, err := client.Connect(ctx, &client.Options{
		ConfigPath:    cfgPath,
		ServerAddress: serverAddress,
		Output:        cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	defer func() {
		_ = r.Close()
	}()

	return fn(ctx, r)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	for _, c := range []*cobra.Command{triggerCmd, resolveCmd, dismissCmd, stopAllCmd, statusCmd, watchCmd} {
		c.Flags().StringVarP(&serverAddress, "server", "s", "", "engine gRPC address (overrides config)")
		rootCmd.AddCommand(c)
	}

	triggerCmd.Flags().StringVarP(&triggerPayload, "payload", "p", "", "alert payload as a JSON object")
	triggerCmd.Flags().StringArrayVarP(&triggerFields, "field", "f", nil, "extra payload entry as key=value")
	triggerCmd.Flags().StringVar(&triggerID, "id", "", "alert ID")
	triggerCmd.Flags().BoolVarP(&triggerRetry, "retry", "r", false, "retry every second until the engine accepts the alarm")

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the snapshot as JSON")
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "print one line per state change")
}
