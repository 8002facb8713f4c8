// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package vulkan

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/psopack/backend"
	"github.com/gogpu/psopack/signature"
	"github.com/gogpu/psopack/toolchain"
)

type fakeRunner struct {
	calls    [][]string
	failWith error
	output   []byte
	artifact []byte
	source   string
}

func (f *fakeRunner) Run(dir, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.failWith != nil {
		return f.output, f.failWith
	}
	for i, arg := range args {
		if arg == "-o" && i+1 < len(args) {
			if err := os.WriteFile(args[i+1], f.artifact, 0o600); err != nil {
				return nil, err
			}
		}
	}
	if len(args) > 0 {
		if data, err := os.ReadFile(args[len(args)-1]); err == nil {
			f.source = string(data)
		}
	}
	return f.output, nil
}

func newWorkspace(t *testing.T) *toolchain.Workspace {
	t.Helper()
	ws, err := toolchain.NewWorkspace("")
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

const glslSource = `#version 450
layout(set = 0, binding = 0) uniform FrameData { mat4 viewProj; } frame;
layout(set = 0, binding = 0) uniform sampler2D gAlbedo;
layout(set = 0, binding = 0) buffer Particles { vec4 pos[]; } particles;

void main() {}
`

func vulkanSignatures(t *testing.T) []*signature.Signature {
	t.Helper()
	sig0, err := signature.New("frame", 0, []signature.ResourceDesc{
		{Name: "FrameData", Class: signature.ClassUniformBuffer, ArraySize: 1, Stages: signature.MaskPixel},
	})
	require.NoError(t, err)
	sig1, err := signature.New("scene", 1, []signature.ResourceDesc{
		{Name: "gAlbedo", Class: signature.ClassTexture, ArraySize: 1, Stages: signature.MaskPixel},
		{Name: "Particles", Class: signature.ClassStorageBuffer, ArraySize: 1, Stages: signature.MaskPixel},
	})
	require.NoError(t, err)
	return []*signature.Signature{sig0, sig1}
}

func pixelIR() *backend.ShaderIR {
	return &backend.ShaderIR{
		Name:   "ps",
		Stage:  signature.StagePixel,
		Source: glslSource,
		Resources: []backend.ResourceRef{
			{Name: "FrameData", Class: signature.ClassUniformBuffer},
			{Name: "gAlbedo", Class: signature.ClassTexture},
			{Name: "Particles", Class: signature.ClassStorageBuffer},
		},
	}
}

func TestPatchAssignsSetsAndBindings(t *testing.T) {
	runner := &fakeRunner{artifact: []byte("SPV")}
	b := New(Options{Compiler: []string{"glslangValidator", "-V"}}, runner)

	alloc, err := b.Allocate(vulkanSignatures(t))
	require.NoError(t, err)

	record, err := b.Patch(pixelIR(), alloc, newWorkspace(t))
	require.NoError(t, err)
	assert.Equal(t, []byte("SPV"), record.ByteCode)

	// Set index is the signature ordinal; bindings share one flat
	// namespace per set in declaration order.
	assert.Contains(t, runner.source, "layout(set = 0, binding = 0) uniform FrameData")
	assert.Contains(t, runner.source, "layout(set = 1, binding = 0) uniform sampler2D gAlbedo")
	assert.Contains(t, runner.source, "layout(set = 1, binding = 1) buffer Particles")
}

func TestPatchUsesStageExtension(t *testing.T) {
	runner := &fakeRunner{artifact: []byte{1}}
	b := New(Options{Compiler: []string{"glslangValidator", "-V"}}, runner)

	alloc, err := b.Allocate(nil)
	require.NoError(t, err)

	ir := &backend.ShaderIR{
		Name:   "cs",
		Stage:  signature.StageCompute,
		Source: "#version 450\nvoid main() {}",
	}
	_, err = b.Patch(ir, alloc, newWorkspace(t))
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	srcArg := runner.calls[0][len(runner.calls[0])-1]
	assert.True(t, strings.HasSuffix(srcArg, ".comp"), "got %q", srcArg)
}

func TestPatchCompilerFailure(t *testing.T) {
	runner := &fakeRunner{failWith: errors.New("exit status 1"), output: []byte("ERROR: 0:3")}
	b := New(Options{Compiler: []string{"glslangValidator", "-V"}}, runner)

	alloc, err := b.Allocate(vulkanSignatures(t))
	require.NoError(t, err)

	_, err = b.Patch(pixelIR(), alloc, newWorkspace(t))
	require.Error(t, err)

	var patchErr *backend.Error
	require.ErrorAs(t, err, &patchErr)
	assert.Equal(t, backend.ErrIOFailure, patchErr.Kind)
}

func TestPatchMissingLayoutQualifier(t *testing.T) {
	b := New(Options{Compiler: []string{"glslangValidator", "-V"}}, &fakeRunner{artifact: []byte{1}})
	alloc, err := b.Allocate(vulkanSignatures(t))
	require.NoError(t, err)

	ir := pixelIR()
	ir.Source = "#version 450\nvoid main() {}"

	_, err = b.Patch(ir, alloc, newWorkspace(t))
	require.Error(t, err)

	var patchErr *backend.Error
	require.ErrorAs(t, err, &patchErr)
	assert.Equal(t, backend.ErrRemapFailed, patchErr.Kind)
}

func TestQueryMatchesPatch(t *testing.T) {
	sigs := vulkanSignatures(t)
	b := New(Options{}, nil)

	bindings, err := b.Query(sigs, backend.QueryAttribs{Stages: signature.MaskPixel})
	require.NoError(t, err)

	want := map[string][2]uint32{
		"FrameData": {0, 0}, // binding, set
		"gAlbedo":   {0, 1},
		"Particles": {1, 1},
	}
	require.Len(t, bindings, len(want))
	for _, bind := range bindings {
		expected, ok := want[bind.Name]
		require.True(t, ok, "unexpected binding %q", bind.Name)
		assert.Equal(t, expected[0], bind.Slot, "binding of %q", bind.Name)
		assert.Equal(t, expected[1], bind.Space, "set of %q", bind.Name)
	}
}
