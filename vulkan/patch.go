// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package vulkan

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gogpu/psopack/backend"
	"github.com/gogpu/psopack/serial"
	"github.com/gogpu/psopack/signature"
	"github.com/gogpu/psopack/toolchain"
)

// stageExtension returns the glslangValidator source extension that
// identifies the shader stage.
func stageExtension(stage signature.Stage) string {
	switch stage {
	case signature.StageVertex:
		return ".vert"
	case signature.StageHull:
		return ".tesc"
	case signature.StageDomain:
		return ".tese"
	case signature.StageGeometry:
		return ".geom"
	case signature.StagePixel:
		return ".frag"
	default:
		return ".comp"
	}
}

// resolvedBinding is one symbolic resource resolved to its descriptor
// set and binding.
type resolvedBinding struct {
	ref     backend.ResourceRef
	set     uint32
	binding uint32
}

// resolve computes each table entry's set (the signature's ordinal in
// binding-index order) and binding (flat declaration-order slot within
// the set).
func (b *Backend) resolve(ir *backend.ShaderIR, alloc *signature.Allocation) ([]resolvedBinding, error) {
	resolved := make([]resolvedBinding, 0, len(ir.Resources))
	for _, ref := range ir.Resources {
		found := false
		for set, sig := range alloc.Signatures {
			slots := sig.Slots(ClassMap)
			for r, res := range sig.Resources() {
				if res.Name != ref.Name {
					continue
				}
				if !res.Stages.Has(ir.Stage) {
					return nil, backend.NewError(backend.ErrRemapFailed, b.Target(), ir.Name,
						"resource %q is not declared for the %s stage", ref.Name, ir.Stage)
				}
				resolved = append(resolved, resolvedBinding{
					ref:     ref,
					set:     uint32(set),
					binding: slots[r],
				})
				found = true
				break
			}
			if found {
				break
			}
		}
		if !found {
			return nil, backend.NewError(backend.ErrRemapFailed, b.Target(), ir.Name,
				"resource %q not found in any signature", ref.Name)
		}
	}
	return resolved, nil
}

// rewrite patches the layout qualifier of every resolved resource.
func (b *Backend) rewrite(ir *backend.ShaderIR, resolved []resolvedBinding) (string, error) {
	src := ir.Source
	for _, rb := range resolved {
		pattern := regexp.MustCompile(
			`(layout\s*\(\s*set\s*=\s*)\d+(\s*,\s*binding\s*=\s*)\d+(\s*\))([^;{]*\b` +
				regexp.QuoteMeta(rb.ref.SourceName()) + `\b)`)

		replacement := fmt.Sprintf("${1}%d${2}%d${3}${4}", rb.set, rb.binding)
		replaced := pattern.ReplaceAllString(src, replacement)
		if replaced == src && !pattern.MatchString(src) {
			return "", backend.NewError(backend.ErrRemapFailed, b.Target(), ir.Name,
				"no layout(set, binding) qualifier found for resource %q", rb.ref.SourceName())
		}
		src = replaced
	}
	if strings.TrimSpace(src) == "" {
		return "", backend.NewError(backend.ErrRemapFailed, b.Target(), ir.Name,
			"resource remap produced empty source")
	}
	return src, nil
}

// Patch implements backend.Backend.
func (b *Backend) Patch(ir *backend.ShaderIR, alloc *signature.Allocation, ws *toolchain.Workspace) (*serial.ShaderRecord, error) {
	if ir == nil || alloc == nil || ws == nil {
		return nil, backend.NewError(backend.ErrContractViolation, backend.TargetVulkan, "",
			"Patch requires a shader, an allocation and a workspace")
	}

	record := &serial.ShaderRecord{Stage: ir.Stage}
	if ir.Stage == signature.StageCompute {
		record.GroupSize = ir.GroupSize
	}

	if len(ir.Resources) == 0 && len(ir.ByteCode) > 0 {
		record.ByteCode = ir.ByteCode
		return record, nil
	}

	src := ir.Source
	if len(ir.Resources) > 0 {
		resolved, err := b.resolve(ir, alloc)
		if err != nil {
			return nil, err
		}
		src, err = b.rewrite(ir, resolved)
		if err != nil {
			return nil, err
		}
	}

	byteCode, err := b.compile(ir, src, ws)
	if err != nil {
		return nil, err
	}
	record.ByteCode = byteCode
	return record, nil
}

// compile materializes src into the workspace, runs the optional
// preprocessor and glslangValidator, and reads the SPIR-V back.
func (b *Backend) compile(ir *backend.ShaderIR, src string, ws *toolchain.Workspace) ([]byte, error) {
	srcFile := "shader" + stageExtension(ir.Stage)
	outFile := "shader.spv"

	if err := ws.WriteFile(srcFile, []byte(src)); err != nil {
		return nil, backend.WrapError(backend.ErrIOFailure, b.Target(), ir.Name, err,
			"materialize shader source")
	}

	if len(b.opts.Preprocessor) > 0 {
		args := append(append([]string(nil), b.opts.Preprocessor[1:]...), ws.Path(srcFile))
		out, err := b.runner.Run(ws.Dir(), b.opts.Preprocessor[0], args...)
		b.diagnostics(out)
		if err != nil {
			return nil, backend.WrapError(backend.ErrIOFailure, b.Target(), ir.Name, err,
				"preprocessor failed: %s", strings.TrimSpace(string(out)))
		}
	}

	args := append(append([]string(nil), b.opts.Compiler[1:]...), b.opts.CompileFlags...)
	args = append(args, "-o", ws.Path(outFile), ws.Path(srcFile))
	out, err := b.runner.Run(ws.Dir(), b.opts.Compiler[0], args...)
	b.diagnostics(out)
	if err != nil {
		return nil, backend.WrapError(backend.ErrIOFailure, b.Target(), ir.Name, err,
			"glslangValidator failed: %s", strings.TrimSpace(string(out)))
	}

	byteCode, err := ws.ReadFile(outFile)
	if err != nil {
		return nil, backend.WrapError(backend.ErrIOFailure, b.Target(), ir.Name, err,
			"read compiled artifact")
	}
	if len(byteCode) == 0 {
		return nil, backend.NewError(backend.ErrEmptyArtifact, b.Target(), ir.Name,
			"compiler succeeded but produced an empty artifact")
	}
	return byteCode, nil
}

func (b *Backend) diagnostics(out []byte) {
	if b.opts.Diagnostics != nil && len(out) > 0 {
		b.opts.Diagnostics.Write(out) //nolint:errcheck // best-effort diagnostics
	}
}

// Query implements backend.Backend. Sets and bindings come from the
// same resolution rules the patcher uses.
func (b *Backend) Query(sigs []*signature.Signature, attribs backend.QueryAttribs) ([]backend.Binding, error) {
	alloc, err := b.Allocate(sigs)
	if err != nil {
		return nil, err
	}

	stages := attribs.Stages
	if stages == 0 {
		stages = signature.MaskAll
	}

	var bindings []backend.Binding
	for set, sig := range alloc.Signatures {
		slots := sig.Slots(ClassMap)
		for r, res := range sig.Resources() {
			if res.Stages&stages == 0 {
				continue
			}
			bindings = append(bindings, backend.Binding{
				Name:   res.Name,
				Class:  res.Class,
				Slot:   slots[r],
				Space:  uint32(set),
				Stages: res.Stages,
			})
		}
	}
	return bindings, nil
}
