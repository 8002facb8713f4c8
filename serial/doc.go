// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package serial implements the two-pass binary serializer used by the
// pipeline archive, plus the record codecs layered on top of it.
//
// A Serializer runs in one of three modes. Measure accumulates the
// exact byte size the encoding will need; Write fills a preallocated
// buffer of that size; Read decodes. The same record-visiting code
// runs in every mode, so a measured size is correct by construction.
// Encode helpers run the measure pass, allocate, run the write pass
// and assert that the write landed exactly on the measured size.
//
// All integers are fixed-width little-endian. Strings and byte slices
// are length-prefixed with a uint32. Field order is part of the
// archive format and must not change between passes or releases.
package serial
