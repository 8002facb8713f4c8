// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package signature

import (
	"slices"
)

// MaxSlotKinds is the maximum number of slot kinds a backend may
// distinguish. Metal uses three (buffer, texture, sampler), Direct3D12
// uses four register types, Vulkan uses one flat namespace.
const MaxSlotKinds = 4

// SlotKind identifies one backend-specific binding namespace, e.g. the
// Metal buffer argument table or the HLSL t-register range.
type SlotKind uint8

// ClassMap maps a resource class to the slot kind it occupies on a
// particular backend. The returned kind must be < MaxSlotKinds.
type ClassMap func(ResourceClass) SlotKind

// Counters accumulates per-stage, per-kind resource slot counts. The
// allocator reads the counters as a signature's base offsets, then
// advances them by the signature's own totals, so after processing
// signatures in binding-index order the counters equal the sum of all
// slot counts processed so far.
type Counters [NumStages][MaxSlotKinds]uint32

// Add accumulates other into c.
func (c *Counters) Add(other Counters) {
	for stage := range c {
		for kind := range c[stage] {
			c[stage][kind] += other[stage][kind]
		}
	}
}

// Get returns the count for a stage/kind pair.
func (c *Counters) Get(stage Stage, kind SlotKind) uint32 {
	return c[stage][kind]
}

// Allocation is the result of allocating binding ranges across an
// ordered signature set.
type Allocation struct {
	// Signatures is sorted by ascending binding index.
	Signatures []*Signature

	// Bases holds each signature's base offsets, parallel to
	// Signatures. A resource at local slot k in Signatures[i] resolves
	// to global slot Bases[i][stage][kind] + k.
	Bases []Counters
}

// Allocate validates and sorts the signatures by binding index, then
// computes each signature's base offsets under the given class map.
//
// Base offsets are monotonically non-decreasing in binding index for a
// fixed stage and kind, and the slot ranges of two signatures never
// overlap for the same stage and kind. A signature with no resources
// contributes a zero-width shift.
//
// Exceeding MaxSignatures or passing duplicate binding indices is a
// caller contract violation and fails before any allocation happens.
func Allocate(sigs []*Signature, m ClassMap) (*Allocation, error) {
	if len(sigs) > MaxSignatures {
		return nil, NewError(ErrTooManySignatures,
			"%d signatures exceed the maximum of %d", len(sigs), MaxSignatures)
	}

	var used [MaxSignatures]bool
	for _, sig := range sigs {
		if sig == nil {
			return nil, NewError(ErrNilSignature, "nil signature in allocation request")
		}
		if used[sig.BindingIndex()] {
			return nil, NewError(ErrDuplicateBindingIndex,
				"multiple signatures use binding index %d", sig.BindingIndex())
		}
		used[sig.BindingIndex()] = true
	}

	sorted := make([]*Signature, len(sigs))
	copy(sorted, sigs)
	slices.SortStableFunc(sorted, func(a, b *Signature) int {
		return int(a.BindingIndex()) - int(b.BindingIndex())
	})

	bases := make([]Counters, len(sorted))
	var ctr Counters
	for i, sig := range sorted {
		bases[i] = ctr
		ctr.Add(sig.StageTotals(m))
	}

	return &Allocation{
		Signatures: sorted,
		Bases:      bases,
	}, nil
}

// SpaceOf returns the ordinal position of sig within the allocation,
// which register/space and set/binding backends use as the signature's
// space or descriptor set index. Returns -1 if sig is not part of the
// allocation.
func (a *Allocation) SpaceOf(sig *Signature) int {
	for i, s := range a.Signatures {
		if s == sig {
			return i
		}
	}
	return -1
}
