// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package signature

import "fmt"

// ResourceClass categorizes a shader resource declaration.
type ResourceClass uint8

const (
	// ClassUniformBuffer is a constant/uniform buffer.
	ClassUniformBuffer ResourceClass = iota

	// ClassStorageBuffer is a read-write (storage/UAV) buffer.
	ClassStorageBuffer

	// ClassTexture is a sampled or storage texture.
	ClassTexture

	// ClassSampler is a sampler state object.
	ClassSampler

	// NumClasses is the number of resource classes.
	NumClasses
)

// String returns a human-readable class name.
func (c ResourceClass) String() string {
	switch c {
	case ClassUniformBuffer:
		return "UniformBuffer"
	case ClassStorageBuffer:
		return "StorageBuffer"
	case ClassTexture:
		return "Texture"
	case ClassSampler:
		return "Sampler"
	default:
		return "Unknown"
	}
}

// ParseClass parses a class name as printed by String.
func ParseClass(name string) (ResourceClass, error) {
	for c := ResourceClass(0); c < NumClasses; c++ {
		if c.String() == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown resource class %q", name)
}

// Stage identifies a single shader stage. It doubles as an index into
// per-stage counter tables.
type Stage uint8

const (
	StageVertex Stage = iota
	StageHull
	StageDomain
	StageGeometry
	StagePixel
	StageCompute

	// NumStages is the number of shader stages.
	NumStages
)

// String returns a human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageHull:
		return "hull"
	case StageDomain:
		return "domain"
	case StageGeometry:
		return "geometry"
	case StagePixel:
		return "pixel"
	case StageCompute:
		return "compute"
	default:
		return "unknown"
	}
}

// ParseStage parses a stage name as printed by String.
func ParseStage(name string) (Stage, error) {
	for s := Stage(0); s < NumStages; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown shader stage %q", name)
}

// Mask returns the single-stage mask for s.
func (s Stage) Mask() StageMask {
	return StageMask(1) << s
}

// StageMask is a bitmask of shader stages.
type StageMask uint8

const (
	MaskVertex   = StageMask(1) << StageVertex
	MaskHull     = StageMask(1) << StageHull
	MaskDomain   = StageMask(1) << StageDomain
	MaskGeometry = StageMask(1) << StageGeometry
	MaskPixel    = StageMask(1) << StagePixel
	MaskCompute  = StageMask(1) << StageCompute

	// MaskAll selects every stage.
	MaskAll = StageMask(1)<<NumStages - 1
)

// Has reports whether the mask includes stage s.
func (m StageMask) Has(s Stage) bool {
	return m&s.Mask() != 0
}

// Stages returns the stages present in the mask, in stage order.
func (m StageMask) Stages() []Stage {
	stages := make([]Stage, 0, NumStages)
	for s := Stage(0); s < NumStages; s++ {
		if m.Has(s) {
			stages = append(stages, s)
		}
	}
	return stages
}

// ResourceDesc describes one named shader resource within a signature.
// Array resources occupy ArraySize consecutive slots starting at the
// resource's local slot.
type ResourceDesc struct {
	// Name uniquely identifies the resource within its signature.
	Name string

	// Class is the resource class.
	Class ResourceClass

	// ArraySize is the number of array elements; 1 for non-arrays.
	ArraySize uint32

	// Stages is the set of shader stages that reference the resource.
	Stages StageMask
}
