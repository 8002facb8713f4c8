// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package serial

import (
	"encoding/binary"
	"fmt"
)

// Mode selects what a Serializer does with the fields it visits.
type Mode uint8

const (
	// Measure accumulates the total encoded size without writing.
	Measure Mode = iota

	// Write encodes fields into a preallocated buffer.
	Write

	// Read decodes fields from a buffer.
	Read
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case Measure:
		return "Measure"
	case Write:
		return "Write"
	case Read:
		return "Read"
	default:
		return "Unknown"
	}
}

// Serializer visits record fields in one of the three modes. Writing
// past the end of the buffer is a programming-contract violation (the
// measure pass computed the exact size) and panics. A truncated read
// sets a sticky error instead, since decode input may come from
// outside the process.
type Serializer struct {
	mode Mode
	buf  []byte
	pos  int
	size int
	err  error
}

// NewMeasurer creates a measure-mode serializer.
func NewMeasurer() *Serializer {
	return &Serializer{mode: Measure}
}

// NewWriter creates a write-mode serializer over buf.
func NewWriter(buf []byte) *Serializer {
	return &Serializer{mode: Write, buf: buf}
}

// NewReader creates a read-mode serializer over buf.
func NewReader(buf []byte) *Serializer {
	return &Serializer{mode: Read, buf: buf}
}

// Mode returns the serializer mode.
func (s *Serializer) Mode() Mode { return s.mode }

// Size returns the measured size in measure mode, and the number of
// bytes consumed or produced otherwise.
func (s *Serializer) Size() int {
	if s.mode == Measure {
		return s.size
	}
	return s.pos
}

// End reports whether the serializer consumed or filled its buffer
// exactly. Always false in measure mode.
func (s *Serializer) End() bool {
	return s.mode != Measure && s.pos == len(s.buf)
}

// Err returns the sticky read error, if any.
func (s *Serializer) Err() error { return s.err }

// advance reserves n bytes and returns the write/read window, or nil
// when measuring or after a read error.
func (s *Serializer) advance(n int) []byte {
	switch s.mode {
	case Measure:
		s.size += n
		return nil
	case Write:
		if s.pos+n > len(s.buf) {
			panic(fmt.Sprintf("serial: write of %d bytes at offset %d overruns measured size %d",
				n, s.pos, len(s.buf)))
		}
	case Read:
		if s.err != nil {
			return nil
		}
		if s.pos+n > len(s.buf) {
			s.err = fmt.Errorf("serial: truncated input: need %d bytes at offset %d, have %d",
				n, s.pos, len(s.buf)-s.pos)
			return nil
		}
	}
	window := s.buf[s.pos : s.pos+n]
	s.pos += n
	return window
}

// Uint8 serializes a single byte.
func (s *Serializer) Uint8(v *uint8) {
	w := s.advance(1)
	if w == nil {
		return
	}
	if s.mode == Write {
		w[0] = *v
	} else {
		*v = w[0]
	}
}

// Uint32 serializes a fixed-width 32-bit integer.
func (s *Serializer) Uint32(v *uint32) {
	w := s.advance(4)
	if w == nil {
		return
	}
	if s.mode == Write {
		binary.LittleEndian.PutUint32(w, *v)
	} else {
		*v = binary.LittleEndian.Uint32(w)
	}
}

// Uint64 serializes a fixed-width 64-bit integer.
func (s *Serializer) Uint64(v *uint64) {
	w := s.advance(8)
	if w == nil {
		return
	}
	if s.mode == Write {
		binary.LittleEndian.PutUint64(w, *v)
	} else {
		*v = binary.LittleEndian.Uint64(w)
	}
}

// Bytes serializes a uint32-length-prefixed byte slice.
func (s *Serializer) Bytes(v *[]byte) {
	length := uint32(len(*v))
	s.Uint32(&length)
	if s.mode == Read {
		if s.err != nil {
			return
		}
		// Validate before allocating so corrupt input cannot trigger
		// absurd allocations.
		if int(length) > len(s.buf)-s.pos {
			s.err = fmt.Errorf("serial: truncated input: need %d bytes at offset %d, have %d",
				length, s.pos, len(s.buf)-s.pos)
			return
		}
		*v = make([]byte, length)
	}
	w := s.advance(int(length))
	if w == nil {
		return
	}
	if s.mode == Write {
		copy(w, *v)
	} else {
		copy(*v, w)
	}
}

// String serializes a uint32-length-prefixed string.
func (s *Serializer) String(v *string) {
	length := uint32(len(*v))
	s.Uint32(&length)
	w := s.advance(int(length))
	if w == nil {
		return
	}
	if s.mode == Write {
		copy(w, *v)
	} else {
		*v = string(w)
	}
}

// Count serializes a uint32 element count. When reading, the count is
// validated against the minimum encoded element size so corrupt input
// cannot trigger absurd allocations.
func (s *Serializer) Count(v *uint32, minElemSize int) {
	s.Uint32(v)
	if s.mode == Read && s.err == nil {
		if int(*v)*minElemSize > len(s.buf)-s.pos {
			s.err = fmt.Errorf("serial: element count %d at offset %d exceeds remaining input", *v, s.pos)
		}
	}
}

// encode runs the measure pass, allocates the exact buffer, runs the
// write pass and asserts measure/write symmetry.
func encode(visit func(*Serializer)) []byte {
	m := NewMeasurer()
	visit(m)

	buf := make([]byte, m.Size())
	w := NewWriter(buf)
	visit(w)
	if !w.End() {
		panic(fmt.Sprintf("serial: write pass produced %d bytes, measure pass computed %d",
			w.Size(), m.Size()))
	}
	return buf
}
