package shutdown

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jdziat/jobsuite/pkg/core"
	"github.com/jdziat/jobsuite/pkg/index"
)

// SentinelExt is the extension of stop sentinel files.
const SentinelExt = ".stop"

// SentinelPath derives the sentinel location from a status index path.
func SentinelPath(indexPath string) string {
	return strings.TrimSuffix(indexPath, filepath.Ext(indexPath)) + SentinelExt
}

// Requested reports whether a stop sentinel exists for indexPath.
func Requested(indexPath string) bool {
	_, err := os.Stat(SentinelPath(indexPath))
	return err == nil
}

// Signal asks the suite that owns indexPath to stop.
//
// It fails with a *core.ShutdownError when the index cannot be read
// (core.ErrInvalidIndex), the suite is not running or its process is gone
// (core.ErrNotRunning), or a stop was already requested
// (core.ErrAlreadyRequested).
func Signal(indexPath string) error {
	snap, err := index.Read(indexPath)
	if err != nil {
		return &core.ShutdownError{IndexPath: indexPath, Err: err}
	}
	if snap.State == core.StateStopping {
		return &core.ShutdownError{IndexPath: indexPath, Err: core.ErrAlreadyRequested}
	}
	if snap.State != core.StateRunning {
		return &core.ShutdownError{IndexPath: indexPath,
			Err: fmt.Errorf("%w: suite %s is %s", core.ErrNotRunning, snap.Namespace, snap.State)}
	}
	if !snap.OwnerAlive() {
		return &core.ShutdownError{IndexPath: indexPath,
			Err: fmt.Errorf("%w: process %d is gone", core.ErrNotRunning, snap.PID)}
	}

	path := SentinelPath(indexPath)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return &core.ShutdownError{IndexPath: indexPath, Err: core.ErrAlreadyRequested}
		}
		return &core.ShutdownError{IndexPath: indexPath, Err: err}
	}
	_, werr := fmt.Fprintf(f, "pid=%d\nrequested=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339Nano))
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(path)
		return &core.ShutdownError{IndexPath: indexPath, Err: werr}
	}
	return nil
}
