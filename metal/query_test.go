// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package metal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/psopack/backend"
	"github.com/gogpu/psopack/signature"
)

func TestQueryPerStageSlots(t *testing.T) {
	sig, err := signature.New("s", 0, []signature.ResourceDesc{
		{Name: "cbFrame", Class: signature.ClassUniformBuffer, ArraySize: 1, Stages: signature.MaskVertex | signature.MaskPixel},
		{Name: "cbObject", Class: signature.ClassUniformBuffer, ArraySize: 1, Stages: signature.MaskVertex},
	})
	require.NoError(t, err)

	b := New(Options{}, nil)
	bindings, err := b.Query([]*signature.Signature{sig}, backend.QueryAttribs{})
	require.NoError(t, err)

	// cbFrame appears once per stage; each stage has its own slot
	// namespace, so it is slot 0 in both.
	bySlot := map[string]map[signature.StageMask]uint32{}
	for _, bind := range bindings {
		if bySlot[bind.Name] == nil {
			bySlot[bind.Name] = map[signature.StageMask]uint32{}
		}
		bySlot[bind.Name][bind.Stages] = bind.Slot
	}

	assert.Equal(t, uint32(0), bySlot["cbFrame"][signature.MaskVertex])
	assert.Equal(t, uint32(0), bySlot["cbFrame"][signature.MaskPixel])
	assert.Equal(t, uint32(1), bySlot["cbObject"][signature.MaskVertex])
}

func TestQueryImplicitVertexBuffers(t *testing.T) {
	b := New(Options{}, nil)

	bindings, err := b.Query(nil, backend.QueryAttribs{
		Stages:           signature.MaskVertex,
		NumVertexBuffers: 2,
	})
	require.NoError(t, err)
	require.Len(t, bindings, 2)

	// Two vertex buffers occupy the top of the argument table.
	assert.Equal(t, "VertexBuffer0", bindings[0].Name)
	assert.Equal(t, uint32(MaxBufferArgs-2), bindings[0].Slot)
	assert.Equal(t, "VertexBuffer1", bindings[1].Name)
	assert.Equal(t, uint32(MaxBufferArgs-1), bindings[1].Slot)
}

func TestQueryRejectsTooManyVertexBuffers(t *testing.T) {
	b := New(Options{}, nil)

	_, err := b.Query(nil, backend.QueryAttribs{
		Stages:           signature.MaskVertex,
		NumVertexBuffers: MaxBufferArgs + 9,
	})
	require.Error(t, err)

	var bErr *backend.Error
	require.ErrorAs(t, err, &bErr)
	assert.Equal(t, backend.ErrContractViolation, bErr.Kind)
}

func TestQueryRejectsVertexBufferCollision(t *testing.T) {
	// A 30-slot vertex-stage buffer array reaches slot 29; two implicit
	// vertex buffers reserve [29, 31), so the ranges collide.
	sig, err := signature.New("s", 0, []signature.ResourceDesc{
		{Name: "bigArr", Class: signature.ClassStorageBuffer, ArraySize: 30, Stages: signature.MaskVertex},
	})
	require.NoError(t, err)

	b := New(Options{}, nil)
	_, err = b.Query([]*signature.Signature{sig}, backend.QueryAttribs{
		Stages:           signature.MaskVertex,
		NumVertexBuffers: 2,
	})
	require.Error(t, err)

	var bErr *backend.Error
	require.ErrorAs(t, err, &bErr)
	assert.Equal(t, backend.ErrContractViolation, bErr.Kind)

	// One slot fewer fits exactly: explicit slots [0, 29), implicit
	// slots [29, 31).
	small, err := signature.New("s2", 0, []signature.ResourceDesc{
		{Name: "arr", Class: signature.ClassStorageBuffer, ArraySize: 29, Stages: signature.MaskVertex},
	})
	require.NoError(t, err)

	bindings, err := b.Query([]*signature.Signature{small}, backend.QueryAttribs{
		Stages:           signature.MaskVertex,
		NumVertexBuffers: 2,
	})
	require.NoError(t, err)
	require.Len(t, bindings, 3)
	assert.Equal(t, uint32(MaxBufferArgs-2), bindings[1].Slot)
}

func TestQueryStageFilter(t *testing.T) {
	sig, err := signature.New("s", 0, []signature.ResourceDesc{
		{Name: "gTex", Class: signature.ClassTexture, ArraySize: 1, Stages: signature.MaskPixel},
	})
	require.NoError(t, err)

	b := New(Options{}, nil)
	bindings, err := b.Query([]*signature.Signature{sig}, backend.QueryAttribs{
		Stages: signature.MaskVertex,
	})
	require.NoError(t, err)
	assert.Empty(t, bindings)
}

func TestQueryIdempotent(t *testing.T) {
	sigs := testSignatures(t)
	b := New(Options{}, nil)

	first, err := b.Query(sigs, backend.QueryAttribs{})
	require.NoError(t, err)
	second, err := b.Query(sigs, backend.QueryAttribs{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestQueryRejectsDuplicateBindingIndices(t *testing.T) {
	a, err := signature.New("a", 0, nil)
	require.NoError(t, err)
	dup, err := signature.New("b", 0, nil)
	require.NoError(t, err)

	b := New(Options{}, nil)
	_, err = b.Query([]*signature.Signature{a, dup}, backend.QueryAttribs{})
	require.Error(t, err)

	var sigErr *signature.Error
	require.ErrorAs(t, err, &sigErr)
	assert.Equal(t, signature.ErrDuplicateBindingIndex, sigErr.Kind)
}
