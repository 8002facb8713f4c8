// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package metal

import (
	"fmt"

	"github.com/gogpu/psopack/backend"
	"github.com/gogpu/psopack/signature"
)

// Query implements backend.Backend. It runs the shared allocator over
// the signature set and flattens the result into one row per resource
// per stage. When the query covers the vertex stage and the pipeline
// binds vertex buffers, implicit bindings for them are appended at the
// top of the buffer argument range; they are ordinary buffer slots on
// this backend, not a separate binding class.
//
// The slots returned here are by construction the same the patcher
// bakes into byte code: both go through Allocate and StageSlots.
func (b *Backend) Query(sigs []*signature.Signature, attribs backend.QueryAttribs) ([]backend.Binding, error) {
	alloc, err := b.Allocate(sigs)
	if err != nil {
		return nil, err
	}

	stages := attribs.Stages
	if stages == 0 {
		stages = signature.MaskAll
	}

	// Implicit vertex buffers occupy the top of the buffer argument
	// table; the reserved range must fit and must not reach down into
	// the allocator-assigned slots.
	if stages.Has(signature.StageVertex) && attribs.NumVertexBuffers > 0 {
		if attribs.NumVertexBuffers > MaxBufferArgs {
			return nil, backend.NewError(backend.ErrContractViolation, b.Target(), "",
				"%d vertex buffers exceed the %d-slot buffer argument table",
				attribs.NumVertexBuffers, MaxBufferArgs)
		}
		var used uint32
		for _, sig := range alloc.Signatures {
			totals := sig.StageTotals(ClassMap)
			used += totals.Get(signature.StageVertex, kindBuffer)
		}
		if used > MaxBufferArgs-attribs.NumVertexBuffers {
			return nil, backend.NewError(backend.ErrContractViolation, b.Target(), "",
				"vertex-stage buffers use %d slots, colliding with the %d reserved for vertex buffers",
				used, attribs.NumVertexBuffers)
		}
	}

	var bindings []backend.Binding
	for i, sig := range alloc.Signatures {
		slots := sig.StageSlots(ClassMap)
		for r, res := range sig.Resources() {
			for _, stage := range res.Stages.Stages() {
				if !stages.Has(stage) {
					continue
				}
				base := alloc.Bases[i].Get(stage, ClassMap(res.Class))
				bindings = append(bindings, backend.Binding{
					Name:   res.Name,
					Class:  res.Class,
					Slot:   base + slots[r][stage],
					Stages: stage.Mask(),
				})
			}
		}
	}

	if stages.Has(signature.StageVertex) {
		for i := uint32(0); i < attribs.NumVertexBuffers; i++ {
			bindings = append(bindings, backend.Binding{
				Name:   fmt.Sprintf("VertexBuffer%d", i),
				Class:  signature.ClassStorageBuffer,
				Slot:   MaxBufferArgs - attribs.NumVertexBuffers + i,
				Stages: signature.MaskVertex,
			})
		}
	}

	return bindings, nil
}
