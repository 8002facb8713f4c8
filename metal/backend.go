// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package metal

import (
	"io"

	"github.com/gogpu/psopack/backend"
	"github.com/gogpu/psopack/signature"
	"github.com/gogpu/psopack/toolchain"
)

// MaxBufferArgs is the size of the Metal buffer argument table.
// Vertex buffers are placed at the top of this range.
const MaxBufferArgs = 31

// Slot kinds of the Metal argument tables.
const (
	kindBuffer signature.SlotKind = iota
	kindTexture
	kindSampler
)

// ClassMap maps resource classes onto Metal argument tables: both
// buffer classes share the buffer table, textures and samplers have
// their own.
func ClassMap(c signature.ResourceClass) signature.SlotKind {
	switch c {
	case signature.ClassTexture:
		return kindTexture
	case signature.ClassSampler:
		return kindSampler
	default:
		return kindBuffer
	}
}

// Options configures the Metal backend.
type Options struct {
	// Compiler is the compiler command and its fixed leading
	// arguments.
	Compiler []string

	// CompileFlags are extra per-build compile options inserted before
	// the source and output paths.
	CompileFlags []string

	// Preprocessor is an optional command run over the materialized
	// source before compilation. The source path is appended as the
	// last argument. A non-zero exit status fails the patch.
	Preprocessor []string

	// Diagnostics receives captured tool output. Nil discards it.
	Diagnostics io.Writer
}

// DefaultOptions returns the standard xcrun-based toolchain setup.
func DefaultOptions() Options {
	return Options{
		Compiler: []string{"xcrun", "-sdk", "macosx", "metal"},
	}
}

// Backend is the Metal archiver backend.
type Backend struct {
	opts   Options
	runner toolchain.Runner
}

// New creates a Metal backend with the given options and process
// runner.
func New(opts Options, runner toolchain.Runner) *Backend {
	if len(opts.Compiler) == 0 {
		opts.Compiler = DefaultOptions().Compiler
	}
	return &Backend{opts: opts, runner: runner}
}

func init() {
	backend.Register(backend.TargetMetal, func(runner toolchain.Runner) backend.Backend {
		return New(DefaultOptions(), runner)
	})
}

// Target implements backend.Backend.
func (b *Backend) Target() backend.Target { return backend.TargetMetal }

// Allocate implements backend.Backend.
func (b *Backend) Allocate(sigs []*signature.Signature) (*signature.Allocation, error) {
	return signature.Allocate(sigs, ClassMap)
}
