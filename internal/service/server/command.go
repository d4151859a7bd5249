package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/multierr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	api "github.com/oshokin/escape-alarm/internal/api/grpc/alarm"
	httpapi "github.com/oshokin/escape-alarm/internal/api/http"
	"github.com/oshokin/escape-alarm/internal/backend"
	"github.com/oshokin/escape-alarm/internal/config"
	"github.com/oshokin/escape-alarm/internal/logger"
	"github.com/oshokin/escape-alarm/internal/metrics"
	"github.com/oshokin/escape-alarm/internal/playback"
	"github.com/oshokin/escape-alarm/internal/service/engine"
	"github.com/oshokin/escape-alarm/internal/service/instance"
)

// shutdownTimeout bounds graceful shutdown of the engine and servers.
const shutdownTimeout = 10 * time.Second

// Options controls the engine process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// GRPCAddress overrides the gRPC listen address from the settings.
	GRPCAddress string
	// HTTPAddress overrides the HTTP listen address from the settings.
	HTTPAddress string
	// PIDFile overrides the single-instance marker path.
	PIDFile string
}

// Run starts the engine and its servers and blocks until ctx is cancelled or
// a server fails. Shutdown errors are combined into the returned error.
func Run(ctx context.Context, opts *Options) (err error) {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}

	sink := configureLogging(settings)

	defer func() {
		err = multierr.Append(err, sink.Close())
	}()

	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "escape-alarm")

	marker, err := instance.Acquire(ctx, settings.PIDFile)
	if err != nil {
		return fmt.Errorf("claim instance marker: %w", err)
	}

	defer func() {
		err = multierr.Append(err, marker.Release())
	}()

	backendClient, err := backend.New(
		settings.BackendURL,
		backend.WithTimeout(settings.Timeout),
		backend.WithToken(settings.BackendToken),
	)
	if err != nil {
		return fmt.Errorf("create backend client: %w", err)
	}

	device := openSiren(ctx, settings)
	if closer, ok := device.(io.Closer); ok {
		defer func() {
			err = multierr.Append(err, closer.Close())
		}()
	}

	collector := metrics.New()

	svc := engine.New(ctx, device, backendClient,
		engine.WithDurations(settings.Sounding, settings.Silent),
		engine.WithPollInterval(settings.PollInterval),
		engine.WithRecorder(collector),
	)

	// Setup TCP listeners for both APIs.
	lc := net.ListenConfig{}

	grpcListener, err := lc.Listen(ctx, "tcp", settings.GRPCAddress)
	if err != nil {
		return multierr.Append(fmt.Errorf("listen on %s: %w", settings.GRPCAddress, err), svc.Close(ctx))
	}

	httpListener, err := lc.Listen(ctx, "tcp", settings.HTTPAddress)
	if err != nil {
		return multierr.Combine(
			fmt.Errorf("listen on %s: %w", settings.HTTPAddress, err),
			grpcListener.Close(),
			svc.Close(ctx),
		)
	}

	// Create and configure gRPC server with the engine and health services.
	grpcServer := grpc.NewServer()
	api.RegisterAlarmEngineServer(grpcServer, api.NewServer(svc))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)

	httpServer := &http.Server{
		Handler:           httpapi.NewServer(ctx, svc, httpapi.WithMetrics(collector.Handler())).Router(),
		ReadHeaderTimeout: settings.Timeout,
	}

	logger.InfoKV(ctx, "Escape alarm engine listening",
		"grpc_address", grpcListener.Addr().String(),
		"http_address", httpListener.Addr().String(),
		"backend_url", settings.BackendURL,
		"poll_interval", settings.PollInterval,
	)

	serveErrors := make(chan error, 2)

	go func() {
		if serveErr := grpcServer.Serve(grpcListener); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			serveErrors <- fmt.Errorf("serve gRPC: %w", serveErr)
			return
		}

		serveErrors <- nil
	}()

	go func() {
		if serveErr := httpServer.Serve(httpListener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			serveErrors <- fmt.Errorf("serve HTTP: %w", serveErr)
			return
		}

		serveErrors <- nil
	}()

	var runErr error

	select {
	case <-ctx.Done():
	case runErr = <-serveErrors:
	}

	logger.Info(ctx, "Shutting down escape alarm engine")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	healthServer.Shutdown()

	// Closing the engine first ends the Watch and SSE streams so the servers can drain.
	err = multierr.Combine(
		runErr,
		svc.Close(shutdownCtx),
		httpServer.Shutdown(shutdownCtx),
	)

	grpcServer.GracefulStop()

	logger.Info(ctx, "Escape alarm engine stopped")

	return err
}

// loadSettings reads the settings file and applies command line overrides.
func loadSettings(opts *Options) (*config.Config, error) {
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if opts.GRPCAddress != "" {
		settings.GRPCAddress = opts.GRPCAddress
	}

	if opts.HTTPAddress != "" {
		settings.HTTPAddress = opts.HTTPAddress
	}

	if opts.PIDFile != "" {
		settings.PIDFile = opts.PIDFile
	}

	return settings, nil
}

// configureLogging applies the configured level and file sink to the global
// logger. It returns the sink to close on shutdown, nil without a log file.
func configureLogging(settings *config.Config) *logger.FileSink {
	if level, ok := logger.ParseLogLevel(settings.LogLevel); ok {
		logger.SetLevel(level)
	}

	if settings.LogFile == "" {
		return nil
	}

	sink := &logger.FileSink{Path: settings.LogFile}
	logger.SetLogger(logger.NewWithSink(logger.AtomicLevel(), sink))

	return sink
}

// openSiren opens the speaker, falling back to a silent device so alarms are
// still tracked when audio is unavailable.
func openSiren(ctx context.Context, settings *config.Config) playback.Device {
	speaker, err := playback.NewSpeaker(settings.SirenFile, settings.Volume)
	if err != nil {
		logger.WarnKV(ctx, "Siren unavailable, alarms will be silent", "siren_file", settings.SirenFile, "error", err)

		return playback.Unavailable{Reason: err}
	}

	return speaker
}
