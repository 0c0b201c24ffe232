// Package process holds OS-level helpers for browser processes: killing a
// browser together with its renderers when a graceful close fails, and
// reaping orphaned children when the service runs as PID 1 in a container.
package process

import "errors"

// ErrInvalidPID is returned for pids that do not name a child process.
var ErrInvalidPID = errors.New("invalid pid")
