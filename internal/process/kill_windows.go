//go:build windows

package process

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// Kill terminates pid and its child processes with taskkill.
func Kill(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPID, pid)
	}
	if err := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).Run(); err != nil {
		return fmt.Errorf("killing pid %d: %w", pid, err)
	}
	return nil
}

// Alive reports whether a handle to pid can be opened.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}
