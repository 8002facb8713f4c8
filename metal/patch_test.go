// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package metal

import (
	"errors"
	"os"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/psopack/backend"
	"github.com/gogpu/psopack/signature"
	"github.com/gogpu/psopack/toolchain"
)

// fakeRunner stands in for the external Metal toolchain. It records
// every invocation, captures the source file passed via -c, and writes
// the configured artifact to the -o path.
type fakeRunner struct {
	calls    [][]string
	output   []byte
	failWith error
	artifact []byte
	source   string
}

func (f *fakeRunner) Run(dir, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.failWith != nil {
		return f.output, f.failWith
	}
	for i := 0; i+1 < len(args); i++ {
		switch args[i] {
		case "-c":
			data, err := os.ReadFile(args[i+1])
			if err != nil {
				return nil, err
			}
			f.source = string(data)
		case "-o":
			if err := os.WriteFile(args[i+1], f.artifact, 0o600); err != nil {
				return nil, err
			}
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

func testSignatures(t *testing.T) []*signature.Signature {
	t.Helper()
	sig0, err := signature.New("globals", 0, []signature.ResourceDesc{
		{Name: "gTexture", Class: signature.ClassTexture, ArraySize: 1, Stages: signature.MaskPixel},
		{Name: "gSampler", Class: signature.ClassSampler, ArraySize: 1, Stages: signature.MaskPixel},
	})
	require.NoError(t, err)

	sig1, err := signature.New("material", 1, []signature.ResourceDesc{
		{Name: "cbMaterial", Class: signature.ClassUniformBuffer, ArraySize: 1, Stages: signature.MaskPixel},
		{Name: "gDetail", Class: signature.ClassTexture, ArraySize: 1, Stages: signature.MaskPixel},
	})
	require.NoError(t, err)

	return []*signature.Signature{sig0, sig1}
}

const pixelSource = `fragment float4 ps_main(
    constant MaterialData& cbMaterial [[buffer(0)]],
    texture2d<float> gTexture [[texture(0)]],
    texture2d<float> gDetail [[texture(0)]],
    sampler gSampler [[sampler(0)]])
{
    return float4(0.0);
}
`

func pixelIR() *backend.ShaderIR {
	return &backend.ShaderIR{
		Name:       "ps",
		Stage:      signature.StagePixel,
		EntryPoint: "ps_main",
		Source:     pixelSource,
		Resources: []backend.ResourceRef{
			{Name: "cbMaterial", Class: signature.ClassUniformBuffer},
			{Name: "gTexture", Class: signature.ClassTexture},
			{Name: "gDetail", Class: signature.ClassTexture},
			{Name: "gSampler", Class: signature.ClassSampler},
		},
	}
}

func TestPatchRewritesAttributes(t *testing.T) {
	runner := &fakeRunner{artifact: []byte("AIR")}
	b := New(Options{Compiler: []string{"metal-cc"}}, runner)

	alloc, err := b.Allocate(testSignatures(t))
	require.NoError(t, err)

	record, err := b.Patch(pixelIR(), alloc, newWorkspace(t))
	require.NoError(t, err)
	assert.Equal(t, []byte("AIR"), record.ByteCode)

	// gTexture is signature 0 slot 0; gDetail comes after signature
	// 0's texture total; cbMaterial is the first pixel-stage buffer.
	assert.Contains(t, runner.source, "cbMaterial [[buffer(0)]]")
	assert.Contains(t, runner.source, "gTexture [[texture(0)]]")
	assert.Contains(t, runner.source, "gDetail [[texture(1)]]")
	assert.Contains(t, runner.source, "gSampler [[sampler(0)]]")

	require.Len(t, record.BufferRemaps, 1)
	assert.Equal(t, "cbMaterial", record.BufferRemaps[0].Name)
	assert.Equal(t, uint32(0), record.BufferRemaps[0].Space)
}

func TestPatchSecondSignatureShifts(t *testing.T) {
	// Scenario: signature 0 declares one pixel-stage texture, signature
	// 1 declares one pixel-stage buffer. The buffer's slot must be
	// signature 0's post-advance buffer counter, which is 0 because
	// signature 0 declares no buffers in that stage.
	sig0, err := signature.New("tex", 0, []signature.ResourceDesc{
		{Name: "gTex", Class: signature.ClassTexture, ArraySize: 1, Stages: signature.MaskPixel},
	})
	require.NoError(t, err)
	sig1, err := signature.New("buf", 1, []signature.ResourceDesc{
		{Name: "cb", Class: signature.ClassUniformBuffer, ArraySize: 1, Stages: signature.MaskPixel},
	})
	require.NoError(t, err)

	runner := &fakeRunner{artifact: []byte{1}}
	b := New(Options{Compiler: []string{"metal-cc"}}, runner)
	alloc, err := b.Allocate([]*signature.Signature{sig0, sig1})
	require.NoError(t, err)

	ir := &backend.ShaderIR{
		Name:  "ps",
		Stage: signature.StagePixel,
		Source: `fragment float4 ps(texture2d<float> gTex [[texture(7)]],
    constant B& cb [[buffer(7)]]) { return float4(0.0); }`,
		Resources: []backend.ResourceRef{
			{Name: "gTex", Class: signature.ClassTexture},
			{Name: "cb", Class: signature.ClassUniformBuffer},
		},
	}

	_, err = b.Patch(ir, alloc, newWorkspace(t))
	require.NoError(t, err)
	assert.Contains(t, runner.source, "gTex [[texture(0)]]")
	assert.Contains(t, runner.source, "cb [[buffer(0)]]")
}

func TestPatchAlternateSpelling(t *testing.T) {
	sig, err := signature.New("s", 0, []signature.ResourceDesc{
		{Name: "Constants", Class: signature.ClassUniformBuffer, ArraySize: 1, Stages: signature.MaskVertex},
	})
	require.NoError(t, err)

	runner := &fakeRunner{artifact: []byte{1}}
	b := New(Options{Compiler: []string{"metal-cc"}}, runner)
	alloc, err := b.Allocate([]*signature.Signature{sig})
	require.NoError(t, err)

	ir := &backend.ShaderIR{
		Name:  "vs",
		Stage: signature.StageVertex,
		Source: `vertex float4 vs(constant C& Constants_mtl [[buffer(9)]]) {
    return float4(0.0); }`,
		Resources: []backend.ResourceRef{
			{Name: "Constants", AltName: "Constants_mtl", Class: signature.ClassUniformBuffer},
		},
	}

	record, err := b.Patch(ir, alloc, newWorkspace(t))
	require.NoError(t, err)
	assert.Contains(t, runner.source, "Constants_mtl [[buffer(0)]]")

	require.Len(t, record.BufferRemaps, 1)
	assert.Equal(t, "Constants", record.BufferRemaps[0].Name)
	assert.Equal(t, "Constants_mtl", record.BufferRemaps[0].AltName)
}

func TestPatchUnknownResource(t *testing.T) {
	b := New(Options{Compiler: []string{"metal-cc"}}, &fakeRunner{artifact: []byte{1}})
	alloc, err := b.Allocate(testSignatures(t))
	require.NoError(t, err)

	ir := pixelIR()
	ir.Resources = append(ir.Resources, backend.ResourceRef{Name: "gMissing", Class: signature.ClassTexture})

	_, err = b.Patch(ir, alloc, newWorkspace(t))
	requireKind(t, err, backend.ErrRemapFailed)
}

func TestPatchNoMatchingAttribute(t *testing.T) {
	sig, err := signature.New("s", 0, []signature.ResourceDesc{
		{Name: "cb", Class: signature.ClassUniformBuffer, ArraySize: 1, Stages: signature.MaskVertex},
	})
	require.NoError(t, err)

	b := New(Options{Compiler: []string{"metal-cc"}}, &fakeRunner{artifact: []byte{1}})
	alloc, err := b.Allocate([]*signature.Signature{sig})
	require.NoError(t, err)

	ir := &backend.ShaderIR{
		Name:      "vs",
		Stage:     signature.StageVertex,
		Source:    `vertex float4 vs() { return float4(0.0); }`,
		Resources: []backend.ResourceRef{{Name: "cb", Class: signature.ClassUniformBuffer}},
	}

	_, err = b.Patch(ir, alloc, newWorkspace(t))
	requireKind(t, err, backend.ErrRemapFailed)
}

func TestPatchCompilerFailure(t *testing.T) {
	runner := &fakeRunner{
		failWith: errors.New("exit status 1"),
		output:   []byte("error: expected expression"),
	}
	b := New(Options{Compiler: []string{"metal-cc"}}, runner)
	alloc, err := b.Allocate(testSignatures(t))
	require.NoError(t, err)

	_, err = b.Patch(pixelIR(), alloc, newWorkspace(t))
	requireKind(t, err, backend.ErrIOFailure)
	assert.Contains(t, err.Error(), "expected expression")
}

func TestPatchEmptyArtifact(t *testing.T) {
	b := New(Options{Compiler: []string{"metal-cc"}}, &fakeRunner{})
	alloc, err := b.Allocate(testSignatures(t))
	require.NoError(t, err)

	_, err = b.Patch(pixelIR(), alloc, newWorkspace(t))
	requireKind(t, err, backend.ErrEmptyArtifact)
}

func TestPatchPreprocessorFailure(t *testing.T) {
	runner := &fakeRunner{failWith: errors.New("exit status 2"), output: []byte("bad include")}
	b := New(Options{
		Compiler:     []string{"metal-cc"},
		Preprocessor: []string{"mslpp", "--strict"},
	}, runner)
	alloc, err := b.Allocate(testSignatures(t))
	require.NoError(t, err)

	_, err = b.Patch(pixelIR(), alloc, newWorkspace(t))
	requireKind(t, err, backend.ErrIOFailure)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "mslpp", runner.calls[0][0])
	assert.Equal(t, "--strict", runner.calls[0][1])
}

func TestPatchPassthroughByteCode(t *testing.T) {
	runner := &fakeRunner{}
	b := New(Options{Compiler: []string{"metal-cc"}}, runner)
	alloc, err := b.Allocate(nil)
	require.NoError(t, err)

	ir := &backend.ShaderIR{
		Name:     "precompiled",
		Stage:    signature.StageVertex,
		ByteCode: []byte("AIR-precompiled"),
	}

	record, err := b.Patch(ir, alloc, newWorkspace(t))
	require.NoError(t, err)
	assert.Equal(t, []byte("AIR-precompiled"), record.ByteCode)
	assert.Empty(t, runner.calls)
}

func TestPatchComputeGroupSize(t *testing.T) {
	b := New(Options{Compiler: []string{"metal-cc"}}, &fakeRunner{artifact: []byte{1}})
	alloc, err := b.Allocate(nil)
	require.NoError(t, err)

	ir := &backend.ShaderIR{
		Name:      "cs",
		Stage:     signature.StageCompute,
		Source:    `kernel void cs() {}`,
		GroupSize: [3]uint32{16, 16, 1},
	}

	record, err := b.Patch(ir, alloc, newWorkspace(t))
	require.NoError(t, err)
	assert.Equal(t, [3]uint32{16, 16, 1}, record.GroupSize)
}

func TestPatchNilArguments(t *testing.T) {
	b := New(Options{Compiler: []string{"metal-cc"}}, &fakeRunner{})
	_, err := b.Patch(nil, nil, nil)
	requireKind(t, err, backend.ErrContractViolation)
}

// TestQueryMatchesPatchedSource pins the cross-consistency invariant:
// the binding table returned by Query must equal the slots the patcher
// actually bakes into the shader source.
func TestQueryMatchesPatchedSource(t *testing.T) {
	runner := &fakeRunner{artifact: []byte{1}}
	b := New(Options{Compiler: []string{"metal-cc"}}, runner)

	sigs := testSignatures(t)
	alloc, err := b.Allocate(sigs)
	require.NoError(t, err)

	_, err = b.Patch(pixelIR(), alloc, newWorkspace(t))
	require.NoError(t, err)

	patched := map[string]uint32{}
	attrRe := regexp.MustCompile(`(\w+)\s*\[\[\s*(?:buffer|texture|sampler)\s*\(\s*(\d+)\s*\)\s*\]\]`)
	for _, m := range attrRe.FindAllStringSubmatch(runner.source, -1) {
		slot, convErr := strconv.Atoi(m[2])
		require.NoError(t, convErr)
		patched[m[1]] = uint32(slot)
	}

	bindings, err := b.Query(sigs, backend.QueryAttribs{Stages: signature.MaskPixel})
	require.NoError(t, err)
	require.Len(t, bindings, 4)
	for _, binding := range bindings {
		assert.Equal(t, patched[binding.Name], binding.Slot, "binding %q", binding.Name)
	}
}

func requireKind(t *testing.T, err error, kind backend.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	var patchErr *backend.Error
	require.ErrorAs(t, err, &patchErr)
	assert.Equal(t, kind, patchErr.Kind)
}
