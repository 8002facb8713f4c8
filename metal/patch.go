// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package metal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gogpu/psopack/backend"
	"github.com/gogpu/psopack/serial"
	"github.com/gogpu/psopack/signature"
	"github.com/gogpu/psopack/toolchain"
)

// attrName returns the MSL binding attribute for a resource class.
func attrName(c signature.ResourceClass) string {
	switch c {
	case signature.ClassTexture:
		return "texture"
	case signature.ClassSampler:
		return "sampler"
	default:
		return "buffer"
	}
}

// resolvedSlot is one symbolic resource resolved to its final argument
// slot for the shader's stage.
type resolvedSlot struct {
	ref  backend.ResourceRef
	slot uint32
}

// resolve computes the final argument slot of every resource in the
// shader's symbolic table: the owning signature's base offset for the
// shader stage and slot kind, plus the resource's local slot.
func (b *Backend) resolve(ir *backend.ShaderIR, alloc *signature.Allocation) ([]resolvedSlot, error) {
	resolved := make([]resolvedSlot, 0, len(ir.Resources))
	for _, ref := range ir.Resources {
		found := false
		for i, sig := range alloc.Signatures {
			slots := sig.StageSlots(ClassMap)
			for r, res := range sig.Resources() {
				if res.Name != ref.Name {
					continue
				}
				if !res.Stages.Has(ir.Stage) {
					return nil, backend.NewError(backend.ErrRemapFailed, b.Target(), ir.Name,
						"resource %q is not declared for the %s stage", ref.Name, ir.Stage)
				}
				base := alloc.Bases[i].Get(ir.Stage, ClassMap(res.Class))
				resolved = append(resolved, resolvedSlot{
					ref:  ref,
					slot: base + slots[r][ir.Stage],
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

// rewrite patches the binding attribute of every resolved resource in
// the MSL source. Every table entry must match at least one attribute
// or the remap has failed.
func (b *Backend) rewrite(ir *backend.ShaderIR, resolved []resolvedSlot) (string, error) {
	src := ir.Source
	for _, rs := range resolved {
		attr := attrName(rs.ref.Class)
		pattern := regexp.MustCompile(
			`(\b` + regexp.QuoteMeta(rs.ref.SourceName()) + `\s*\[\[\s*` + attr + `\s*\(\s*)\d+(\s*\)\s*\]\])`)

		replaced := pattern.ReplaceAllString(src, fmt.Sprintf("${1}%d${2}", rs.slot))
		if replaced == src && !pattern.MatchString(src) {
			return "", backend.NewError(backend.ErrRemapFailed, b.Target(), ir.Name,
				"no [[%s(n)]] attribute found for resource %q", attr, rs.ref.SourceName())
		}
		src = replaced
	}
	if strings.TrimSpace(src) == "" {
		return "", backend.NewError(backend.ErrRemapFailed, b.Target(), ir.Name,
			"resource remap produced empty source")
	}
	return src, nil
}

// Patch implements backend.Backend. See the package comment for the
// full sequence; the caller owns the workspace and its cleanup.
func (b *Backend) Patch(ir *backend.ShaderIR, alloc *signature.Allocation, ws *toolchain.Workspace) (*serial.ShaderRecord, error) {
	if ir == nil || alloc == nil || ws == nil {
		return nil, backend.NewError(backend.ErrContractViolation, backend.TargetMetal, "",
			"Patch requires a shader, an allocation and a workspace")
	}

	record := &serial.ShaderRecord{Stage: ir.Stage}
	if ir.Stage == signature.StageCompute {
		record.GroupSize = ir.GroupSize
	}

	// Shaders without a symbolic resource table pass through: keep the
	// supplied byte code, or compile the source unchanged.
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
		for _, rs := range resolved {
			if ClassMap(rs.ref.Class) != kindBuffer {
				continue
			}
			record.BufferRemaps = append(record.BufferRemaps, serial.BufferRemap{
				Name:    rs.ref.Name,
				AltName: rs.ref.SourceName(),
				Space:   rs.slot,
			})
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
// preprocessor and the Metal compiler, and reads the artifact back.
func (b *Backend) compile(ir *backend.ShaderIR, src string, ws *toolchain.Workspace) ([]byte, error) {
	srcFile := sourceFileName(ir.Name)
	outFile := srcFile + ".air"

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
	args = append(args, "-c", ws.Path(srcFile), "-o", ws.Path(outFile))
	out, err := b.runner.Run(ws.Dir(), b.opts.Compiler[0], args...)
	b.diagnostics(out)
	if err != nil {
		return nil, backend.WrapError(backend.ErrIOFailure, b.Target(), ir.Name, err,
			"metal compiler failed: %s", strings.TrimSpace(string(out)))
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

// sourceFileName derives a workspace file name from the shader name.
func sourceFileName(name string) string {
	if name == "" {
		return "shader.metal"
	}
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
	return sanitized + ".metal"
}
