//go:build windows

package lifecycle

import (
	"fmt"
	"os"
	"os/exec"
)

// Reexec starts a fresh copy of the running binary with the same
// arguments. The caller must exit once it returns nil.
func Reexec() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	return cmd.Start()
}
