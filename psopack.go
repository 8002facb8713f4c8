// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package psopack offline-compiles and archives GPU pipeline state:
// shader byte code plus resource-binding metadata, deployable across
// structurally different graphics backends from a single source
// description.
//
// A build request names a pipeline, its shader stages and the resource
// signatures they bind against. Building allocates non-overlapping
// binding ranges across the signatures, patches every stage's resource
// references to the allocated slots, invokes the backend's native
// compiler, and packs the results into an archive keyed by backend and
// object name.
//
// Example usage:
//
//	arc := archive.New()
//	err := psopack.BuildPipeline(arc, psopack.BuildRequest{
//	    PipelineName: "GBuffer PSO",
//	    Target:       backend.TargetMetal,
//	    Signatures:   []*signature.Signature{materialSig},
//	    Stages:       []*backend.ShaderIR{vs, ps},
//	}, psopack.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	blob := arc.Finalize().Encode()
//
// The allocator and serializer are pure computations; the patcher
// performs blocking file and process I/O. Builds for different
// pipelines or backends may run concurrently as long as each uses its
// own workspace (which BuildPipeline guarantees) and writes into the
// archive under external synchronization or into per-worker archives
// merged afterwards.
package psopack

import (
	"fmt"
	"path/filepath"

	"github.com/gogpu/psopack/archive"
	"github.com/gogpu/psopack/backend"
	"github.com/gogpu/psopack/serial"
	"github.com/gogpu/psopack/signature"
	"github.com/gogpu/psopack/toolchain"

	// Register the built-in backends.
	_ "github.com/gogpu/psopack/d3d12"
	_ "github.com/gogpu/psopack/metal"
	_ "github.com/gogpu/psopack/vulkan"
)

// BuildRequest describes one pipeline to patch and archive.
type BuildRequest struct {
	// PipelineName keys the pipeline's records in the archive. Must
	// not be empty.
	PipelineName string

	// Target selects the backend.
	Target backend.Target

	// Stages are the pipeline's shader stages, at most one per stage.
	Stages []*backend.ShaderIR

	// Signatures are the resource signatures the stages bind against.
	// When empty, a default signature is generated from the union of
	// the stages' resource tables.
	Signatures []*signature.Signature

	// DumpDir, when non-empty, preserves each stage's patched source
	// and artifacts under DumpDir/<stage> for offline inspection.
	// When empty, private workspaces are used and removed.
	DumpDir string
}

// Options configures a build.
type Options struct {
	// Runner executes external compiler processes. Defaults to
	// toolchain.ExecRunner.
	Runner toolchain.Runner

	// Backend overrides registry lookup with a pre-configured backend,
	// e.g. one with custom compiler options. Its target must match the
	// request.
	Backend backend.Backend
}

func (o Options) backendFor(target backend.Target) (backend.Backend, error) {
	if o.Backend != nil {
		if o.Backend.Target() != target {
			return nil, backend.NewError(backend.ErrContractViolation, target, "",
				"options backend targets %s", o.Backend.Target())
		}
		return o.Backend, nil
	}
	runner := o.Runner
	if runner == nil {
		runner = toolchain.ExecRunner{}
	}
	return backend.New(target, runner)
}

// BuildPipeline patches every stage of the request for its target
// backend and inserts the resulting records into the archive: one
// record per signature (shared across pipelines by name), one per
// shader stage under "<pipeline>/<stage>", and finally the pipeline
// record under the pipeline name. The pipeline record is inserted
// last, so its presence marks the pipeline complete.
//
// On failure nothing of the failed pipeline is inserted and any
// private workspaces are removed.
func BuildPipeline(arc *archive.Archive, req BuildRequest, opts Options) error {
	if arc == nil {
		return backend.NewError(backend.ErrContractViolation, req.Target, "",
			"archive must not be nil")
	}
	if req.PipelineName == "" {
		return backend.NewError(backend.ErrContractViolation, req.Target, "",
			"pipeline name must not be empty")
	}
	if len(req.Stages) == 0 {
		return backend.NewError(backend.ErrContractViolation, req.Target, "",
			"pipeline %q has no shader stages", req.PipelineName)
	}

	b, err := opts.backendFor(req.Target)
	if err != nil {
		return err
	}

	sigs := req.Signatures
	if len(sigs) == 0 {
		def, defErr := defaultSignature(req)
		if defErr != nil {
			return fmt.Errorf("pipeline %q: %w", req.PipelineName, defErr)
		}
		sigs = []*signature.Signature{def}
	}

	alloc, err := b.Allocate(sigs)
	if err != nil {
		return fmt.Errorf("pipeline %q: %w", req.PipelineName, err)
	}

	type entry struct {
		key  string
		blob []byte
	}
	var pending []entry

	pipeline := &serial.PipelineRecord{Name: req.PipelineName}
	for _, sig := range alloc.Signatures {
		pipeline.SignatureNames = append(pipeline.SignatureNames, sig.Name())

		key := "signature/" + sig.Name()
		blob := serial.NewSignatureRecord(sig).Encode()
		if existing, ok := arc.Get(req.Target, key); ok {
			// Signatures are shared across pipelines by name; the same
			// name must mean the same description.
			if string(existing) != string(blob) {
				return backend.NewError(backend.ErrContractViolation, req.Target, "",
					"pipeline %q: signature name %q reused with a different description",
					req.PipelineName, sig.Name())
			}
			continue
		}
		pending = append(pending, entry{key: key, blob: blob})
	}

	seen := map[signature.Stage]bool{}
	for _, ir := range req.Stages {
		if ir == nil {
			return backend.NewError(backend.ErrContractViolation, req.Target, "",
				"pipeline %q has a nil shader stage", req.PipelineName)
		}
		if seen[ir.Stage] {
			return backend.NewError(backend.ErrContractViolation, req.Target, ir.Name,
				"pipeline %q declares the %s stage twice", req.PipelineName, ir.Stage)
		}
		seen[ir.Stage] = true

		record, patchErr := patchStage(b, ir, alloc, req)
		if patchErr != nil {
			return fmt.Errorf("pipeline %q: %w", req.PipelineName, patchErr)
		}

		key := req.PipelineName + "/" + ir.Stage.String()
		pipeline.StageKeys = append(pipeline.StageKeys, key)
		pending = append(pending, entry{key: key, blob: record.Encode()})
	}

	pending = append(pending, entry{key: req.PipelineName, blob: pipeline.Encode()})
	for _, e := range pending {
		if putErr := arc.Put(req.Target, e.key, e.blob); putErr != nil {
			return fmt.Errorf("pipeline %q: %w", req.PipelineName, putErr)
		}
	}
	return nil
}

// patchStage runs one stage's patch inside its own scoped workspace.
// The workspace is removed on every exit path unless the request names
// a dump directory.
func patchStage(b backend.Backend, ir *backend.ShaderIR, alloc *signature.Allocation, req BuildRequest) (*serial.ShaderRecord, error) {
	dumpDir := ""
	if req.DumpDir != "" {
		dumpDir = filepath.Join(req.DumpDir, ir.Stage.String())
	}

	ws, err := toolchain.NewWorkspace(dumpDir)
	if err != nil {
		return nil, backend.WrapError(backend.ErrIOFailure, b.Target(), ir.Name, err,
			"create workspace")
	}
	defer ws.Close()

	return b.Patch(ir, alloc, ws)
}

// QueryResourceBindings computes the final flattened binding table a
// caller can build a native binding layout from, without compiling
// anything. The result is identical to the bindings BuildPipeline
// bakes into byte code for the same signature set and target.
func QueryResourceBindings(target backend.Target, sigs []*signature.Signature, attribs backend.QueryAttribs, opts Options) ([]backend.Binding, error) {
	b, err := opts.backendFor(target)
	if err != nil {
		return nil, err
	}
	return b.Query(sigs, attribs)
}

// defaultSignature generates a signature from the union of the request
// stages' symbolic resource tables, in first-appearance order, when
// the request supplies none.
func defaultSignature(req BuildRequest) (*signature.Signature, error) {
	var order []string
	merged := map[string]*signature.ResourceDesc{}

	for _, ir := range req.Stages {
		if ir == nil {
			continue
		}
		for _, ref := range ir.Resources {
			if existing, ok := merged[ref.Name]; ok {
				if existing.Class != ref.Class {
					return nil, backend.NewError(backend.ErrContractViolation, req.Target, ir.Name,
						"resource %q declared as both %s and %s",
						ref.Name, existing.Class, ref.Class)
				}
				existing.Stages |= ir.Stage.Mask()
				continue
			}
			merged[ref.Name] = &signature.ResourceDesc{
				Name:      ref.Name,
				Class:     ref.Class,
				ArraySize: 1,
				Stages:    ir.Stage.Mask(),
			}
			order = append(order, ref.Name)
		}
	}

	resources := make([]signature.ResourceDesc, len(order))
	for i, name := range order {
		resources[i] = *merged[name]
	}
	return signature.New("Default signature of "+req.PipelineName, 0, resources)
}
