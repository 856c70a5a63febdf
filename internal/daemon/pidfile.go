// Package daemon tracks a background `tagger serve` process through a PID file.
package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrAlreadyRunning is returned by Acquire when a live process holds the PID file.
var ErrAlreadyRunning = errors.New("server already running")

// PIDFile manages a PID file for daemon process tracking.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Write writes the current process's PID to the file.
func (p *PIDFile) Write() error {
	return p.WritePID(os.Getpid())
}

// WritePID writes the given PID to the file, creating its directory if needed.
func (p *PIDFile) WritePID(pid int) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return errors.Wrap(err, "create PID file directory")
	}
	return os.WriteFile(p.Path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// Read reads the PID from the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, errors.Wrap(err, "invalid PID file content")
	}
	return pid, nil
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}

// Acquire records pid in the file unless another live process already holds it.
// A file left behind by a dead process is overwritten.
func (p *PIDFile) Acquire(pid int) error {
	if held, running := p.IsRunning(); running && held != pid {
		return errors.WithDetailf(ErrAlreadyRunning, "pid %d", held)
	}
	return p.WritePID(pid)
}

// Release removes the file if it still names pid. It is a no-op otherwise, so a
// process never deletes a file that a newer server has taken over.
func (p *PIDFile) Release(pid int) error {
	held, err := p.Read()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if held != pid {
		return nil
	}
	return p.Remove()
}
