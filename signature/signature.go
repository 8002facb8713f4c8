// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package signature

// MaxSignatures is the maximum number of resource signatures a pipeline
// may reference. Binding indices must be in [0, MaxSignatures).
const MaxSignatures = 8

// Signature is an immutable, ordered set of shader resource
// declarations treated as one bindable unit. Signatures own no GPU
// resources; they exist to drive binding allocation and to be archived
// alongside the pipelines that reference them.
type Signature struct {
	name         string
	bindingIndex uint8
	resources    []ResourceDesc
}

// New validates the descriptors and creates an immutable signature.
// Resource names must be unique and non-empty, array sizes must be at
// least 1, and every resource must declare at least one stage.
func New(name string, bindingIndex uint8, resources []ResourceDesc) (*Signature, error) {
	if name == "" {
		return nil, NewError(ErrInvalidName, "signature name must not be empty")
	}
	if bindingIndex >= MaxSignatures {
		return nil, NewError(ErrBindingIndexOutOfRange,
			"signature %q: binding index %d exceeds maximum %d", name, bindingIndex, MaxSignatures-1)
	}

	seen := make(map[string]struct{}, len(resources))
	for _, res := range resources {
		if res.Name == "" {
			return nil, NewError(ErrInvalidResource, "signature %q: resource with empty name", name)
		}
		if res.ArraySize == 0 {
			return nil, NewError(ErrInvalidResource,
				"signature %q: resource %q has zero array size", name, res.Name)
		}
		if res.Class >= NumClasses {
			return nil, NewError(ErrInvalidResource,
				"signature %q: resource %q has invalid class %d", name, res.Name, res.Class)
		}
		if res.Stages == 0 {
			return nil, NewError(ErrInvalidResource,
				"signature %q: resource %q declares no shader stages", name, res.Name)
		}
		if _, dup := seen[res.Name]; dup {
			return nil, NewError(ErrDuplicateResourceName,
				"signature %q: resource %q declared more than once", name, res.Name)
		}
		seen[res.Name] = struct{}{}
	}

	owned := make([]ResourceDesc, len(resources))
	copy(owned, resources)

	return &Signature{
		name:         name,
		bindingIndex: bindingIndex,
		resources:    owned,
	}, nil
}

// Name returns the signature name.
func (s *Signature) Name() string { return s.name }

// BindingIndex returns the binding-set index ordering this signature
// within a pipeline.
func (s *Signature) BindingIndex() uint8 { return s.bindingIndex }

// ResourceCount returns the number of resource declarations.
func (s *Signature) ResourceCount() int { return len(s.resources) }

// Resource returns the i-th resource declaration.
func (s *Signature) Resource(i int) ResourceDesc { return s.resources[i] }

// Resources returns the resource declarations in declaration order.
// The returned slice must not be modified.
func (s *Signature) Resources() []ResourceDesc { return s.resources }

// StageSlots computes the local slot of every resource for every stage
// it is declared in, under the given class map. Slots are assigned in
// declaration order, independently per stage and slot kind; an array
// resource advances the running slot by its array size. The entry for
// a stage the resource does not declare is meaningless.
func (s *Signature) StageSlots(m ClassMap) [][NumStages]uint32 {
	slots := make([][NumStages]uint32, len(s.resources))
	var ctr Counters
	for i, res := range s.resources {
		kind := m(res.Class)
		for _, stage := range res.Stages.Stages() {
			slots[i][stage] = ctr[stage][kind]
			ctr[stage][kind] += res.ArraySize
		}
	}
	return slots
}

// StageTotals computes per-stage, per-kind resource slot totals under
// the given class map. The allocator advances its counters by these
// totals after recording a signature's base offsets.
func (s *Signature) StageTotals(m ClassMap) Counters {
	var ctr Counters
	for _, res := range s.resources {
		kind := m(res.Class)
		for _, stage := range res.Stages.Stages() {
			ctr[stage][kind] += res.ArraySize
		}
	}
	return ctr
}

// Slots computes stage-agnostic local slots: one slot per resource,
// assigned in declaration order per slot kind regardless of stage
// masks. Backends whose binding namespace is shared across stages
// within a signature (register/space and set/binding models) use this
// layout.
func (s *Signature) Slots(m ClassMap) []uint32 {
	slots := make([]uint32, len(s.resources))
	var ctr [MaxSlotKinds]uint32
	for i, res := range s.resources {
		kind := m(res.Class)
		slots[i] = ctr[kind]
		ctr[kind] += res.ArraySize
	}
	return slots
}
