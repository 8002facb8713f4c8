// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package source resolves logical shader names to source text through
// an ordered list of providers. Providers are plain io/fs filesystems,
// so directories, embedded files and in-memory maps all work.
//
// Resolution tries providers in order and returns the first hit.
// Misses in earlier providers are silent by design (layered fallback
// search); only when every provider misses does an error surface, and
// a caller probing for optional sources can opt into suppressing even
// that.
package source

import (
	"errors"
	"fmt"
	"io/fs"
)

// ErrNotFound reports that no provider could supply the requested
// name. Callers using Probe check for it with errors.Is.
var ErrNotFound = errors.New("source not found")

// Factory resolves logical shader names against layered providers.
type Factory struct {
	providers []fs.FS
	subst     map[string]string
}

// NewFactory creates a factory that searches the given filesystems in
// order.
func NewFactory(providers ...fs.FS) *Factory {
	return &Factory{providers: providers}
}

// Substitute registers a name substitution: requests for logical are
// served under actual instead. Substitution applies before provider
// lookup.
func (f *Factory) Substitute(logical, actual string) {
	if f.subst == nil {
		f.subst = make(map[string]string)
	}
	f.subst[logical] = actual
}

// Resolve returns the source bytes for a logical name. All providers
// are tried in order; if every one misses, the error wraps ErrNotFound
// and names the request.
func (f *Factory) Resolve(name string) ([]byte, error) {
	if actual, ok := f.subst[name]; ok {
		name = actual
	}
	for _, provider := range f.providers {
		data, err := fs.ReadFile(provider, name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("resolve %q: %w", name, err)
		}
	}
	return nil, fmt.Errorf("resolve %q: %w", name, ErrNotFound)
}

// Probe is the silent form of Resolve: a miss returns (nil, false)
// with no error, for layered fallback search over optional sources.
// I/O failures other than a missing file still surface.
func (f *Factory) Probe(name string) ([]byte, bool, error) {
	data, err := f.Resolve(name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}
