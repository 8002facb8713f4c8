// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package backend defines the capability interface a graphics backend
// implements to participate in pipeline archiving: patching a shader's
// resource references to allocator-assigned slots and querying the
// final binding table without running the full patch pipeline.
//
// Concrete backends live in their own packages (metal, d3d12, vulkan)
// and register themselves here, selected by Target at build-request
// time. The binding allocator itself is backend-agnostic and lives in
// the signature package; backends only contribute their class map and
// their native binding syntax.
package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/psopack/serial"
	"github.com/gogpu/psopack/signature"
	"github.com/gogpu/psopack/toolchain"
)

// Target identifies a graphics backend.
type Target uint8

const (
	// TargetMetal is the Metal-style backend (argument-table slots).
	TargetMetal Target = iota

	// TargetD3D12 is the Direct3D12-style backend (registers/spaces).
	TargetD3D12

	// TargetVulkan is the Vulkan-style backend (sets/bindings).
	TargetVulkan
)

// String returns the backend name.
func (t Target) String() string {
	switch t {
	case TargetMetal:
		return "metal"
	case TargetD3D12:
		return "d3d12"
	case TargetVulkan:
		return "vulkan"
	default:
		return "unknown"
	}
}

// ParseTarget parses a backend name as printed by String.
func ParseTarget(name string) (Target, error) {
	switch name {
	case "metal":
		return TargetMetal, nil
	case "d3d12":
		return TargetD3D12, nil
	case "vulkan":
		return TargetVulkan, nil
	default:
		return 0, fmt.Errorf("unknown backend %q", name)
	}
}

// ResourceRef is one entry of a shader's symbolic resource table: a
// resource the shader references by name, to be resolved against the
// pipeline's signatures.
type ResourceRef struct {
	// Name is the resource name as declared in a signature.
	Name string

	// AltName is the spelling used in the shader source when it
	// differs from Name (e.g. a renamed constant buffer). Empty means
	// the source uses Name directly.
	AltName string

	// Class is the resource class.
	Class signature.ResourceClass
}

// SourceName returns the spelling to look for in shader source.
func (r ResourceRef) SourceName() string {
	if r.AltName != "" {
		return r.AltName
	}
	return r.Name
}

// ShaderIR is one shader stage's intermediate form as consumed by a
// backend patcher: source text in the backend's own language plus the
// parsed symbolic resource table. A shader without a resource table is
// passed through with its original byte code or source unchanged.
type ShaderIR struct {
	// Name identifies the shader in errors and archive keys.
	Name string

	// Stage is the shader stage.
	Stage signature.Stage

	// EntryPoint is the entry function name.
	EntryPoint string

	// Source is the backend-language source text.
	Source string

	// Resources is the symbolic resource table. Empty means the shader
	// needs no patching.
	Resources []ResourceRef

	// ByteCode is precompiled byte code, used unchanged when the
	// shader carries no symbolic resource table.
	ByteCode []byte

	// GroupSize is the compute dispatch group size; meaningful only
	// for compute-stage shaders.
	GroupSize [3]uint32
}

// Binding is one row of the flattened binding table returned by Query:
// the final backend slot a named resource was assigned.
type Binding struct {
	// Name is the resource name.
	Name string

	// Class is the resource class.
	Class signature.ResourceClass

	// Slot is the backend binding number (argument-table slot,
	// register, or binding index).
	Slot uint32

	// Space is the register space or descriptor set; always 0 on
	// backends with a single flat namespace per stage.
	Space uint32

	// Stages is the set of stages the binding is visible to.
	Stages signature.StageMask
}

// QueryAttribs narrows a resource-binding query.
type QueryAttribs struct {
	// Stages filters bindings by stage; zero means all stages.
	Stages signature.StageMask

	// NumVertexBuffers is the number of vertex buffers the pipeline
	// binds. Backends that expose vertex buffers as ordinary resource
	// slots append implicit bindings for them.
	NumVertexBuffers uint32
}

// Backend patches shaders and answers binding queries for one target.
// Implementations must guarantee that Query returns exactly the
// bindings Patch bakes into byte code for the same signature set.
type Backend interface {
	// Target returns the backend identifier.
	Target() Target

	// Allocate runs the shared binding allocator under this backend's
	// class map.
	Allocate(sigs []*signature.Signature) (*signature.Allocation, error)

	// Patch rewrites the shader's resource references to allocated
	// slots, invokes the external compiler inside ws, and returns the
	// serialized record. The caller owns ws and its cleanup.
	Patch(ir *ShaderIR, alloc *signature.Allocation, ws *toolchain.Workspace) (*serial.ShaderRecord, error)

	// Query computes the final flattened binding table for the
	// signature set without compiling anything.
	Query(sigs []*signature.Signature, attribs QueryAttribs) ([]Binding, error)
}

// Constructor builds a backend with the given process runner.
type Constructor func(runner toolchain.Runner) Backend

var (
	registryMu sync.RWMutex
	registry   = map[Target]Constructor{}
)

// Register makes a backend constructor available for selection by
// target. Backend packages call it from init.
func Register(t Target, c Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[t]; dup {
		panic("backend: Register called twice for target " + t.String())
	}
	registry[t] = c
}

// New constructs the registered backend for a target.
func New(t Target, runner toolchain.Runner) (Backend, error) {
	registryMu.RLock()
	c, ok := registry[t]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no backend registered for target %q", t)
	}
	return c(runner), nil
}

// Targets returns the registered targets in ascending order.
func Targets() []Target {
	registryMu.RLock()
	defer registryMu.RUnlock()
	targets := make([]Target, 0, len(registry))
	for t := range registry {
		targets = append(targets, t)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	return targets
}
