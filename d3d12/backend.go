// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package d3d12 implements the Direct3D12-style archiver backend.
//
// HLSL binds resources through typed registers (b/t/s/u) qualified by
// a register space. Every signature occupies its own space — its
// ordinal position in binding-index order — so registers never collide
// across signatures and no cross-signature shifting is required; the
// shared allocator still validates and orders the set, and register
// assignment within a signature follows declaration order per register
// type, shared across stages.
//
// Patching rewrites the register(x#, space#) annotations on
// declarations named in the shader's symbolic resource table and
// compiles with dxc.
package d3d12

import (
	"fmt"
	"io"

	"github.com/gogpu/psopack/backend"
	"github.com/gogpu/psopack/signature"
	"github.com/gogpu/psopack/toolchain"
)

// RegisterType represents the HLSL register type.
type RegisterType uint8

const (
	// RegisterTypeB is for constant buffers (cbuffer).
	RegisterTypeB RegisterType = iota

	// RegisterTypeT is for textures and shader resource views.
	RegisterTypeT

	// RegisterTypeS is for samplers.
	RegisterTypeS

	// RegisterTypeU is for unordered access views (UAV).
	RegisterTypeU
)

// String returns the single-character register prefix.
func (rt RegisterType) String() string {
	switch rt {
	case RegisterTypeB:
		return "b"
	case RegisterTypeT:
		return "t"
	case RegisterTypeS:
		return "s"
	case RegisterTypeU:
		return "u"
	default:
		return "b"
	}
}

// registerType maps a resource class to its HLSL register type.
func registerType(c signature.ResourceClass) RegisterType {
	switch c {
	case signature.ClassUniformBuffer:
		return RegisterTypeB
	case signature.ClassTexture:
		return RegisterTypeT
	case signature.ClassSampler:
		return RegisterTypeS
	default:
		return RegisterTypeU
	}
}

// ClassMap maps resource classes onto the four register kinds.
func ClassMap(c signature.ResourceClass) signature.SlotKind {
	return signature.SlotKind(registerType(c))
}

// ShaderModel represents a DirectX Shader Model version.
type ShaderModel uint8

const (
	// ShaderModel5_1 provides improved resource binding.
	ShaderModel5_1 ShaderModel = iota

	// ShaderModel6_0 introduces wave intrinsics and DXIL (default).
	ShaderModel6_0

	// ShaderModel6_6 adds 64-bit atomics and dynamic resources.
	ShaderModel6_6
)

// ProfileSuffix returns the shader profile suffix for this model,
// e.g. "6_0", used to construct profiles like "vs_6_0".
func (sm ShaderModel) ProfileSuffix() string {
	switch sm {
	case ShaderModel5_1:
		return "5_1"
	case ShaderModel6_6:
		return "6_6"
	default:
		return "6_0"
	}
}

// profile returns the dxc target profile for a stage.
func (sm ShaderModel) profile(stage signature.Stage) string {
	var prefix string
	switch stage {
	case signature.StageVertex:
		prefix = "vs"
	case signature.StageHull:
		prefix = "hs"
	case signature.StageDomain:
		prefix = "ds"
	case signature.StageGeometry:
		prefix = "gs"
	case signature.StagePixel:
		prefix = "ps"
	default:
		prefix = "cs"
	}
	return fmt.Sprintf("%s_%s", prefix, sm.ProfileSuffix())
}

// Options configures the Direct3D12 backend.
type Options struct {
	// Compiler is the compiler command and its fixed leading
	// arguments.
	Compiler []string

	// CompileFlags are extra per-build compile options.
	CompileFlags []string

	// Preprocessor is an optional command run over the materialized
	// source before compilation.
	Preprocessor []string

	// ShaderModel selects the target profile version.
	ShaderModel ShaderModel

	// Diagnostics receives captured tool output. Nil discards it.
	Diagnostics io.Writer
}

// DefaultOptions returns the standard dxc toolchain setup.
func DefaultOptions() Options {
	return Options{
		Compiler:    []string{"dxc"},
		ShaderModel: ShaderModel6_0,
	}
}

// Backend is the Direct3D12 archiver backend.
type Backend struct {
	opts   Options
	runner toolchain.Runner
}

// New creates a Direct3D12 backend with the given options and process
// runner.
func New(opts Options, runner toolchain.Runner) *Backend {
	if len(opts.Compiler) == 0 {
		opts.Compiler = DefaultOptions().Compiler
	}
	return &Backend{opts: opts, runner: runner}
}

func init() {
	backend.Register(backend.TargetD3D12, func(runner toolchain.Runner) backend.Backend {
		return New(DefaultOptions(), runner)
	})
}

// Target implements backend.Backend.
func (b *Backend) Target() backend.Target { return backend.TargetD3D12 }

// Allocate implements backend.Backend.
func (b *Backend) Allocate(sigs []*signature.Signature) (*signature.Allocation, error) {
	return signature.Allocate(sigs, ClassMap)
}
