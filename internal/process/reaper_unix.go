//go:build !windows

package process

import (
	"os"
	"sync"

	"github.com/ramr/go-reaper"
)

var reaperOnce sync.Once

// StartReaper reaps zombie children when this process is PID 1, as it is in
// most container images that lack an init. It reports whether a reaper was
// started. Safe to call more than once.
func StartReaper() bool {
	if !IsInit() {
		return false
	}
	reaperOnce.Do(func() {
		go reaper.Reap()
	})
	return true
}

// IsInit reports whether this process is PID 1.
func IsInit() bool {
	return os.Getpid() == 1
}
