// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package vulkan implements the Vulkan-style archiver backend.
//
// SPIR-V binds resources through descriptor sets: the set index is the
// signature's ordinal position in binding-index order, and bindings
// within a set share one flat namespace regardless of resource class
// or stage. The shared allocator runs with a class map that collapses
// every class onto a single slot kind.
//
// Patching rewrites the layout(set = X, binding = Y) qualifiers on
// declarations named in the shader's symbolic resource table and
// compiles GLSL to SPIR-V with glslangValidator.
package vulkan

import (
	"io"

	"github.com/gogpu/psopack/backend"
	"github.com/gogpu/psopack/signature"
	"github.com/gogpu/psopack/toolchain"
)

// ClassMap collapses every resource class onto the single descriptor
// binding namespace a set provides.
func ClassMap(signature.ResourceClass) signature.SlotKind { return 0 }

// Options configures the Vulkan backend.
type Options struct {
	// Compiler is the compiler command and its fixed leading
	// arguments.
	Compiler []string

	// CompileFlags are extra per-build compile options.
	CompileFlags []string

	// Preprocessor is an optional command run over the materialized
	// source before compilation.
	Preprocessor []string

	// Diagnostics receives captured tool output. Nil discards it.
	Diagnostics io.Writer
}

// DefaultOptions returns the standard glslangValidator setup.
func DefaultOptions() Options {
	return Options{
		Compiler: []string{"glslangValidator", "-V"},
	}
}

// Backend is the Vulkan archiver backend.
type Backend struct {
	opts   Options
	runner toolchain.Runner
}

// New creates a Vulkan backend with the given options and process
// runner.
func New(opts Options, runner toolchain.Runner) *Backend {
	if len(opts.Compiler) == 0 {
		opts.Compiler = DefaultOptions().Compiler
	}
	return &Backend{opts: opts, runner: runner}
}

func init() {
	backend.Register(backend.TargetVulkan, func(runner toolchain.Runner) backend.Backend {
		return New(DefaultOptions(), runner)
	})
}

// Target implements backend.Backend.
func (b *Backend) Target() backend.Target { return backend.TargetVulkan }

// Allocate implements backend.Backend.
func (b *Backend) Allocate(sigs []*signature.Signature) (*signature.Allocation, error) {
	return signature.Allocate(sigs, ClassMap)
}
