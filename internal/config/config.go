package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the escape-alarm commands.
type Config struct {
	// GRPCAddress is where the engine serves its gRPC API and where clients dial.
	GRPCAddress string `yaml:"grpc_addr"`
	// HTTPAddress is where the engine serves HTTP, SSE and metrics.
	HTTPAddress string `yaml:"http_addr"`
	// BackendURL is the base URL of the surveillance backend.
	BackendURL string `yaml:"backend_url"`
	// BackendToken is an optional bearer token for the backend alert listing.
	BackendToken string `yaml:"backend_token,omitempty"`
	// Timeout is the duration for network operations and RPC calls.
	Timeout time.Duration `yaml:"timeout"`
	// PollInterval is the period of the resolution poller.
	PollInterval time.Duration `yaml:"poll_interval"`
	// Sounding is how long the siren plays before a silent pause.
	Sounding time.Duration `yaml:"sounding"`
	// Silent is how long the silent pause lasts.
	Silent time.Duration `yaml:"silent"`
	// SirenFile is the WAV asset looped while sounding.
	SirenFile string `yaml:"siren_file"`
	// Volume is the playback volume in the (0, 1] range.
	Volume float64 `yaml:"volume"`
	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level,omitempty"`
	// LogFile enables a rotating log file when set.
	LogFile string `yaml:"log_file,omitempty"`
	// PIDFile marks a running engine to keep a single siren per host.
	PIDFile string `yaml:"pid_file"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "escape-alarm-settings.yaml"

	// DefaultGRPCAddress is the default gRPC listen and dial address.
	DefaultGRPCAddress = "127.0.0.1:50061"

	// DefaultHTTPAddress is the default HTTP listen address.
	DefaultHTTPAddress = "127.0.0.1:8089"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultPollInterval is how often resolved alerts are reconciled.
	DefaultPollInterval = 10 * time.Second

	// DefaultSounding is the length of the audible phase.
	DefaultSounding = 10 * time.Minute

	// DefaultSilent is the length of the silent phase.
	DefaultSilent = 5 * time.Minute

	// DefaultSirenFile is the siren asset looked up next to the binary.
	DefaultSirenFile = "siren.wav"

	// DefaultVolume is the playback volume of the siren.
	DefaultVolume = 0.7

	// DefaultPIDFilename is the default single-instance marker.
	DefaultPIDFilename = "escape-alarm.pid"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errBackendURLRequired is returned when the backend URL is missing.
	errBackendURLRequired = errors.New("backend URL must be provided")
	// errVolumeOutOfRange is returned for volumes outside (0, 1].
	errVolumeOutOfRange = errors.New("volume must be in the (0, 1] range")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions, the file may hold a backend token.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the settings for required fields and fills defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	applyDefaults(cfg)

	if cfg.BackendURL == "" {
		return errBackendURLRequired
	}

	if _, err := url.ParseRequestURI(cfg.BackendURL); err != nil {
		return fmt.Errorf("invalid backend URL: %w", err)
	}

	if _, err := net.ResolveTCPAddr("tcp", cfg.GRPCAddress); err != nil {
		return fmt.Errorf("invalid gRPC address: %w", err)
	}

	if _, _, err := net.SplitHostPort(cfg.HTTPAddress); err != nil {
		return fmt.Errorf("invalid HTTP address: %w", err)
	}

	if cfg.Volume <= 0 || cfg.Volume > 1 {
		return fmt.Errorf("%w: %v", errVolumeOutOfRange, cfg.Volume)
	}

	return nil
}

// applyDefaults fills zero values with the package defaults.
func applyDefaults(cfg *Config) {
	if cfg.GRPCAddress == "" {
		cfg.GRPCAddress = DefaultGRPCAddress
	}

	if cfg.HTTPAddress == "" {
		cfg.HTTPAddress = DefaultHTTPAddress
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	if cfg.Sounding <= 0 {
		cfg.Sounding = DefaultSounding
	}

	if cfg.Silent <= 0 {
		cfg.Silent = DefaultSilent
	}

	if cfg.SirenFile == "" {
		cfg.SirenFile = DefaultSirenFile
	}

	if cfg.Volume == 0 {
		cfg.Volume = DefaultVolume
	}

	if cfg.PIDFile == "" {
		cfg.PIDFile = DefaultPIDFilename
	}
}
