//go:build windows

package process

// StartReaper is a no-op on Windows.
func StartReaper() bool { return false }

// IsInit is always false on Windows.
func IsInit() bool { return false }
