// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package signature defines the backend-agnostic shader resource model:
// resource descriptors, resource signatures, and the binding allocator
// that assigns non-overlapping binding ranges to an ordered set of
// signatures.
//
// A Signature is an immutable, ordered list of named resource
// declarations plus a binding index that orders signatures within a
// pipeline. The allocator sorts signatures by binding index and walks
// them in order, accumulating per-stage, per-slot-kind counters; each
// signature's base offsets are the counter values before its own
// resources are added. A resource at local slot k in signature i thus
// resolves to global slot base[i][stage][kind] + k, and no two
// signatures ever overlap for the same stage and kind.
//
// Backends distinguish different slot kinds (Metal splits buffers,
// textures and samplers; Vulkan uses one flat binding namespace per
// set), so slot layout and allocation are parameterized by a ClassMap
// rather than duplicated per backend.
package signature
