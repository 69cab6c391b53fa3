package lifecycle

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/utils"
)

// PIDFile keeps two bots from serving the same data directory.
type PIDFile struct {
	path string
	mu   sync.Mutex
}

func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Acquire writes the current pid. It fails with *RunningError when a live
// process other than this one holds the file. A re-executed process keeps
// its pid and therefore its claim.
func (p *PIDFile) Acquire() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pid, err := p.read(); err == nil && pid != os.Getpid() && processAlive(pid) {
		return &RunningError{PID: pid, Path: p.path}
	}
	if err := utils.WriteFileAtomic(p.path, []byte(strconv.Itoa(os.Getpid())), 0o644, 0o700); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Release removes the file if it still names this process.
func (p *PIDFile) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pid, err := p.read(); err == nil && pid == os.Getpid() {
		_ = os.Remove(p.path)
	}
}

// Read returns the recorded pid, or 0.
func (p *PIDFile) Read() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	pid, err := p.read()
	if err != nil {
		return 0
	}
	return pid
}

func (p *PIDFile) read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}
	return pid, nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks existence without delivering anything.
	return proc.Signal(syscall.Signal(0)) == nil
}

// RunningError is returned by Acquire when another instance is live.
type RunningError struct {
	PID  int
	Path string
}

func (e *RunningError) Error() string {
	return fmt.Sprintf("another instance is running with PID %d (PID file: %s)", e.PID, e.Path)
}
