//go:build !windows

package lifecycle

import (
	"fmt"
	"os"
	"syscall"
)

// Reexec replaces the process image with a fresh copy of the running
// binary and the same arguments. It only returns on failure.
func Reexec() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	return syscall.Exec(exe, os.Args, os.Environ())
}
