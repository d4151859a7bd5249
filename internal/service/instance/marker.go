package instance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	ps "github.com/mitchellh/go-ps"

	"github.com/oshokin/escape-alarm/internal/logger"
)

// markerPermissions are the file mode bits of a new marker.
const markerPermissions = 0o600

// ErrAlreadyRunning is returned when a live process holds the marker.
var ErrAlreadyRunning = errors.New("another instance is already running")

// processFinder looks a process up by PID; nil means it does not exist.
type processFinder func(pid int) (ps.Process, error)

// Marker is an acquired PID marker file.
type Marker struct {
	// path is the marker location.
	path string
	// pid is the PID written into the marker.
	pid int
}

// Acquire claims the marker at path for the current process.
func Acquire(ctx context.Context, path string) (*Marker, error) {
	return acquire(ctx, path, ps.FindProcess)
}

func acquire(ctx context.Context, path string, find processFinder) (*Marker, error) {
	ctx = logger.WithKV(ctx, "pid_file", path)
	pid := os.Getpid()

	if err := checkExisting(ctx, path, pid, find); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, markerPermissions)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: marker %s appeared concurrently", ErrAlreadyRunning, path)
		}

		return nil, fmt.Errorf("create marker: %w", err)
	}

	if _, err = file.WriteString(strconv.Itoa(pid)); err != nil {
		_ = file.Close()
		_ = os.Remove(path)

		return nil, fmt.Errorf("write marker: %w", err)
	}

	if err = file.Close(); err != nil {
		return nil, fmt.Errorf("close marker: %w", err)
	}

	logger.DebugKV(ctx, "Instance marker acquired", "pid", pid)

	return &Marker{path: path, pid: pid}, nil
}

// Path returns the marker location.
func (m *Marker) Path() string {
	return m.path
}

// Release removes the marker if it still names this process.
func (m *Marker) Release() error {
	if m == nil {
		return nil
	}

	owner, err := readPID(m.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("read marker: %w", err)
	case owner != m.pid:
		return nil
	}

	if err = os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove marker: %w", err)
	}

	return nil
}

// checkExisting fails when the marker names a live instance and removes it
// when it is stale.
func checkExisting(ctx context.Context, path string, self int, find processFinder) error {
	owner, err := readPID(path)

	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		logger.WarnKV(ctx, "Unreadable instance marker, replacing", "error", err)
	case owner == self:
		// Left by an earlier run that had the same PID, e.g. PID 1 in a container.
		logger.InfoKV(ctx, "Instance marker holds our own pid, replacing", "stale_pid", owner)
	default:
		running, findErr := sameExecutableRunning(owner, self, find)
		if findErr != nil {
			return fmt.Errorf("inspect process %d: %w", owner, findErr)
		}

		if running {
			return fmt.Errorf("%w: pid %d", ErrAlreadyRunning, owner)
		}

		logger.InfoKV(ctx, "Stale instance marker found, replacing", "stale_pid", owner)
	}

	if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale marker: %w", err)
	}

	return nil
}

// sameExecutableRunning reports whether pid is alive and runs the same
// executable as self. PID reuse by unrelated programs counts as stale.
func sameExecutableRunning(pid, self int, find processFinder) (bool, error) {
	process, err := find(pid)
	if err != nil {
		return false, err
	}

	if process == nil {
		return false, nil
	}

	current, err := find(self)
	if err != nil || current == nil {
		// Without our own entry the names cannot be compared; trust the PID.
		return true, nil //nolint:nilerr // A live owner is enough to refuse startup.
	}

	return process.Executable() == current.Executable(), nil
}

// readPID parses the PID stored in a marker.
func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid %q", strings.TrimSpace(string(data)))
	}

	return pid, nil
}
