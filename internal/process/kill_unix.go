//go:build !windows

package process

import (
	"fmt"
	"syscall"
)

// Kill sends SIGKILL to the process group led by pid. Browsers started by the
// drivers lead their own group, so renderers go with them. A pid that leads no
// group is killed on its own.
func Kill(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPID, pid)
	}
	if err := syscall.Kill(-pid, syscall.SIGKILL); err == nil {
		return nil
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("killing pid %d: %w", pid, err)
	}
	return nil
}

// Alive reports whether pid exists. Unreaped zombies count as alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}
