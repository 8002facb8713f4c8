// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	valid := ResourceDesc{Name: "cb", Class: ClassUniformBuffer, ArraySize: 1, Stages: MaskVertex}

	tests := []struct {
		name      string
		sigName   string
		index     uint8
		resources []ResourceDesc
		wantKind  ErrorKind
	}{
		{
			name:     "empty signature name",
			sigName:  "",
			wantKind: ErrInvalidName,
		},
		{
			name:     "binding index out of range",
			sigName:  "sig",
			index:    MaxSignatures,
			wantKind: ErrBindingIndexOutOfRange,
		},
		{
			name:      "empty resource name",
			sigName:   "sig",
			resources: []ResourceDesc{{Class: ClassTexture, ArraySize: 1, Stages: MaskPixel}},
			wantKind:  ErrInvalidResource,
		},
		{
			name:      "zero array size",
			sigName:   "sig",
			resources: []ResourceDesc{{Name: "tex", Class: ClassTexture, Stages: MaskPixel}},
			wantKind:  ErrInvalidResource,
		},
		{
			name:      "no stages",
			sigName:   "sig",
			resources: []ResourceDesc{{Name: "tex", Class: ClassTexture, ArraySize: 1}},
			wantKind:  ErrInvalidResource,
		},
		{
			name:      "duplicate resource name",
			sigName:   "sig",
			resources: []ResourceDesc{valid, valid},
			wantKind:  ErrDuplicateResourceName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.sigName, tt.index, tt.resources)
			require.Error(t, err)

			var sigErr *Error
			require.ErrorAs(t, err, &sigErr)
			assert.Equal(t, tt.wantKind, sigErr.Kind)
		})
	}
}

func TestNewCopiesResources(t *testing.T) {
	resources := []ResourceDesc{
		{Name: "cb", Class: ClassUniformBuffer, ArraySize: 1, Stages: MaskVertex},
	}
	sig, err := New("sig", 0, resources)
	require.NoError(t, err)

	resources[0].Name = "mutated"
	assert.Equal(t, "cb", sig.Resource(0).Name)
}

func TestStageSlotsPerStage(t *testing.T) {
	// A resource shared by two stages gets an independent slot in each
	// stage's namespace.
	sig, err := New("sig", 0, []ResourceDesc{
		{Name: "vsOnly", Class: ClassUniformBuffer, ArraySize: 1, Stages: MaskVertex},
		{Name: "shared", Class: ClassUniformBuffer, ArraySize: 1, Stages: MaskVertex | MaskPixel},
		{Name: "psOnly", Class: ClassUniformBuffer, ArraySize: 1, Stages: MaskPixel},
	})
	require.NoError(t, err)

	slots := sig.StageSlots(func(ResourceClass) SlotKind { return 0 })
	require.Len(t, slots, 3)

	assert.Equal(t, uint32(0), slots[0][StageVertex])
	assert.Equal(t, uint32(1), slots[1][StageVertex])
	assert.Equal(t, uint32(0), slots[1][StagePixel])
	assert.Equal(t, uint32(1), slots[2][StagePixel])
}

func TestStageSlotsArraysAdvance(t *testing.T) {
	sig, err := New("sig", 0, []ResourceDesc{
		{Name: "texArr", Class: ClassTexture, ArraySize: 4, Stages: MaskPixel},
		{Name: "tex", Class: ClassTexture, ArraySize: 1, Stages: MaskPixel},
	})
	require.NoError(t, err)

	slots := sig.StageSlots(func(ResourceClass) SlotKind { return 0 })
	assert.Equal(t, uint32(0), slots[0][StagePixel])
	assert.Equal(t, uint32(4), slots[1][StagePixel])

	totals := sig.StageTotals(func(ResourceClass) SlotKind { return 0 })
	assert.Equal(t, uint32(5), totals.Get(StagePixel, 0))
}

func TestSlotsStageAgnostic(t *testing.T) {
	sig, err := New("sig", 0, []ResourceDesc{
		{Name: "cb", Class: ClassUniformBuffer, ArraySize: 1, Stages: MaskVertex},
		{Name: "tex", Class: ClassTexture, ArraySize: 1, Stages: MaskPixel},
		{Name: "cb2", Class: ClassUniformBuffer, ArraySize: 1, Stages: MaskPixel},
	})
	require.NoError(t, err)

	// Distinguish buffers from textures: cb and cb2 share the buffer
	// namespace across stages, tex has its own.
	slots := sig.Slots(func(c ResourceClass) SlotKind {
		if c == ClassTexture {
			return 1
		}
		return 0
	})
	assert.Equal(t, []uint32{0, 0, 1}, slots)
}

func TestStageMask(t *testing.T) {
	m := MaskVertex | MaskCompute
	assert.True(t, m.Has(StageVertex))
	assert.True(t, m.Has(StageCompute))
	assert.False(t, m.Has(StagePixel))
	assert.Equal(t, []Stage{StageVertex, StageCompute}, m.Stages())
}
