// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package toolchain runs external shader compilers and manages the
// scoped temporary workspaces their inputs and outputs live in.
//
// Backends never link compilers in; they materialize source files into
// a Workspace, invoke the tool through a Runner, and read the artifact
// back. The Runner is an interface so tests can substitute a fake
// compiler, and a Workspace removes its directory on Close unless the
// caller asked for a persistent dump location.
package toolchain

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
)

// Runner executes one external command in a working directory and
// returns its combined stdout and stderr. A non-zero exit status is
// returned as the error, with the captured output still filled in so
// callers can surface compiler diagnostics.
type Runner interface {
	Run(dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(dir, name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Workspace is a scoped directory for one patch operation. A private
// workspace lives under the OS temp root, named with a random token so
// concurrent patch operations never collide, and is removed on Close.
// A dump workspace lives at a caller-chosen path and survives Close
// for offline inspection.
type Workspace struct {
	dir  string
	keep bool
	done bool
}

// NewWorkspace creates the workspace directory. With an empty dumpDir
// a private temp directory is created; otherwise dumpDir is created
// (if needed) and kept after Close.
func NewWorkspace(dumpDir string) (*Workspace, error) {
	if dumpDir != "" {
		if err := os.MkdirAll(dumpDir, 0o755); err != nil {
			return nil, fmt.Errorf("create dump directory: %w", err)
		}
		return &Workspace{dir: dumpDir, keep: true}, nil
	}

	dir := filepath.Join(os.TempDir(), "psopack-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace directory: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace directory path.
func (w *Workspace) Dir() string { return w.dir }

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// WriteFile materializes a file inside the workspace.
func (w *Workspace) WriteFile(name string, data []byte) error {
	if err := os.WriteFile(w.Path(name), data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// ReadFile reads a file from the workspace.
func (w *Workspace) ReadFile(name string) ([]byte, error) {
	data, err := os.ReadFile(w.Path(name))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// Close removes a private workspace directory. Dump workspaces are
// kept. Close is idempotent and must run on every exit path.
func (w *Workspace) Close() error {
	if w.done || w.keep {
		w.done = true
		return nil
	}
	w.done = true
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("remove workspace directory: %w", err)
	}
	return nil
}
