// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package archive implements the keyed container patched pipeline
// blobs accumulate into, and the portable bundle format it flattens
// to.
//
// An Archive maps (backend target, object key) to an immutable blob.
// Keys are written once: inserting a duplicate is a contract
// violation, never a silent overwrite, and a failed insert leaves the
// archive untouched. The archive is not internally synchronized;
// concurrent writers must serialize access or shard archives and
// merge.
package archive

import (
	"fmt"
	"sort"

	"github.com/gogpu/psopack/backend"
	"github.com/gogpu/psopack/serial"
)

// ErrorKind categorizes archive contract violations.
type ErrorKind uint8

const (
	// ErrDuplicateKey indicates a key was inserted twice.
	ErrDuplicateKey ErrorKind = iota

	// ErrEmptyKey indicates an empty object key.
	ErrEmptyKey

	// ErrEmptyBlob indicates an attempt to insert a zero-length blob.
	ErrEmptyBlob

	// ErrBadFormat indicates bundle bytes with a wrong magic, version
	// or structure.
	ErrBadFormat
)

// String returns a human-readable error kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrDuplicateKey:
		return "DuplicateKey"
	case ErrEmptyKey:
		return "EmptyKey"
	case ErrEmptyBlob:
		return "EmptyBlob"
	case ErrBadFormat:
		return "BadFormat"
	default:
		return "Unknown"
	}
}

// Error represents an archive contract violation or a malformed
// bundle.
type Error struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("archive %s: %s", e.Kind, e.Message)
}

// newError creates an archive error.
func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Key addresses one blob in the archive.
type Key struct {
	// Target is the backend the blob was built for.
	Target backend.Target

	// Name is the object key, e.g. "GBuffer PSO/pixel".
	Name string
}

// String returns "target:name".
func (k Key) String() string {
	return k.Target.String() + ":" + k.Name
}

// Archive is an append-only multimap from key to blob, built
// incrementally as pipelines are patched.
type Archive struct {
	entries map[Key][]byte
}

// New creates an empty archive.
func New() *Archive {
	return &Archive{entries: make(map[Key][]byte)}
}

// Put inserts a blob under (target, name). The blob is copied, so the
// caller may reuse its slice afterwards. Duplicate keys fail with a
// contract violation and leave the archive unchanged.
func (a *Archive) Put(target backend.Target, name string, blob []byte) error {
	if name == "" {
		return newError(ErrEmptyKey, "object key must not be empty")
	}
	if len(blob) == 0 {
		return newError(ErrEmptyBlob, "blob for %q must not be empty", name)
	}
	key := Key{Target: target, Name: name}
	if _, exists := a.entries[key]; exists {
		return newError(ErrDuplicateKey, "key %q already present", key)
	}
	a.entries[key] = append([]byte(nil), blob...)
	return nil
}

// Get returns the blob stored under (target, name).
func (a *Archive) Get(target backend.Target, name string) ([]byte, bool) {
	blob, ok := a.entries[Key{Target: target, Name: name}]
	return blob, ok
}

// Len returns the number of stored blobs.
func (a *Archive) Len() int { return len(a.entries) }

// Keys returns all keys sorted by target then name.
func (a *Archive) Keys() []Key {
	keys := make([]Key, 0, len(a.entries))
	for k := range a.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Target != keys[j].Target {
			return keys[i].Target < keys[j].Target
		}
		return keys[i].Name < keys[j].Name
	})
	return keys
}

// Finalize snapshots the archive into an immutable bundle. Later
// inserts into the archive do not affect the bundle.
func (a *Archive) Finalize() *Bundle {
	keys := a.Keys()
	entries := make([]bundleEntry, len(keys))
	for i, k := range keys {
		entries[i] = bundleEntry{
			Target: uint8(k.Target),
			Name:   k.Name,
			Blob:   a.entries[k],
		}
	}
	return &Bundle{entries: entries}
}

const (
	bundleMagic   = uint32(0x52415350) // "PSAR" little-endian
	bundleVersion = uint32(1)
)

type bundleEntry struct {
	Target uint8
	Name   string
	Blob   []byte
}

// Bundle is an immutable, serializable snapshot of an archive,
// suitable for persistence and cross-process loading.
type Bundle struct {
	entries []bundleEntry
}

// Len returns the number of entries.
func (b *Bundle) Len() int { return len(b.entries) }

// Get returns the blob stored under (target, name).
func (b *Bundle) Get(target backend.Target, name string) ([]byte, bool) {
	for _, e := range b.entries {
		if backend.Target(e.Target) == target && e.Name == name {
			return e.Blob, true
		}
	}
	return nil, false
}

// Keys returns the bundle keys in serialized order.
func (b *Bundle) Keys() []Key {
	keys := make([]Key, len(b.entries))
	for i, e := range b.entries {
		keys[i] = Key{Target: backend.Target(e.Target), Name: e.Name}
	}
	return keys
}

// serialize visits the bundle in its on-disk order: magic, version,
// entry count, then entries sorted by target and name. Measure and
// write passes only; decoding lives in DecodeBundle, which validates
// the header before trusting the entry list.
func (b *Bundle) serialize(s *serial.Serializer) {
	magic := bundleMagic
	version := bundleVersion
	s.Uint32(&magic)
	s.Uint32(&version)

	count := uint32(len(b.entries))
	s.Uint32(&count)
	for i := range b.entries {
		e := &b.entries[i]
		s.Uint8(&e.Target)
		s.String(&e.Name)
		s.Bytes(&e.Blob)
	}
}

// Encode serializes the bundle with the two-pass measure/write
// serializer.
func (b *Bundle) Encode() []byte {
	m := serial.NewMeasurer()
	b.serialize(m)

	buf := make([]byte, m.Size())
	w := serial.NewWriter(buf)
	b.serialize(w)
	if !w.End() {
		panic(fmt.Sprintf("archive: bundle write produced %d bytes, measure computed %d",
			w.Size(), m.Size()))
	}
	return buf
}

// DecodeBundle reads a bundle produced by Encode, validating magic and
// version.
func DecodeBundle(buf []byte) (*Bundle, error) {
	b := &Bundle{}
	s := serial.NewReader(buf)

	var magic, version uint32
	s.Uint32(&magic)
	s.Uint32(&version)
	if err := s.Err(); err != nil {
		return nil, newError(ErrBadFormat, "truncated header: %v", err)
	}
	if magic != bundleMagic {
		return nil, newError(ErrBadFormat, "bad magic 0x%08X", magic)
	}
	if version != bundleVersion {
		return nil, newError(ErrBadFormat, "unsupported version %d", version)
	}

	count := uint32(0)
	s.Count(&count, 9)
	if s.Err() == nil {
		b.entries = make([]bundleEntry, count)
		for i := range b.entries {
			e := &b.entries[i]
			s.Uint8(&e.Target)
			s.String(&e.Name)
			s.Bytes(&e.Blob)
		}
	}
	if err := s.Err(); err != nil {
		return nil, newError(ErrBadFormat, "truncated entries: %v", err)
	}
	if !s.End() {
		return nil, newError(ErrBadFormat, "%d trailing bytes", len(buf)-s.Size())
	}
	return b, nil
}
