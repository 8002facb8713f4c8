// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package metal implements the Metal-style archiver backend.
//
// Metal binds resources through per-stage argument tables: buffers,
// textures and samplers each have their own slot range, and every
// shader stage has an independent namespace. The backend therefore
// distinguishes three slot kinds and computes binding slots per stage
// through the shared allocator.
//
// Patching rewrites the [[buffer(n)]], [[texture(n)]] and
// [[sampler(n)]] attributes attached to parameters named in the
// shader's symbolic resource table, materializes the rewritten MSL
// into a scoped workspace, optionally runs a user preprocessor,
// invokes the Metal compiler (xcrun metal by default) and reads the
// .air artifact back.
//
// Vertex buffers occupy the top of the buffer argument range
// ([MaxBufferArgs-n, MaxBufferArgs)), so signature resources allocate
// upward from slot 0 and never collide with them. Query exposes those
// implicit bindings as ordinary rows of the binding table.
package metal
