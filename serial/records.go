// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package serial

import (
	"fmt"

	"github.com/gogpu/psopack/signature"
)

// decode runs a record's visitor over a reader and enforces that the
// input was consumed exactly: the format is order-sensitive, so
// trailing bytes mean a corrupt or mismatched record.
func decode(buf []byte, visit func(*Serializer)) error {
	s := NewReader(buf)
	visit(s)
	if err := s.Err(); err != nil {
		return err
	}
	if !s.End() {
		return fmt.Errorf("serial: %d trailing bytes after record", len(buf)-s.Size())
	}
	return nil
}

// BufferRemap records that a buffer-class resource is spelled
// differently in the patched shader source, and which numeric space
// (backend argument slot) it was assigned.
type BufferRemap struct {
	// Name is the resource name as declared in the signature.
	Name string

	// AltName is the spelling used in the backend shader source.
	AltName string

	// Space is the backend-assigned numeric space or slot.
	Space uint32
}

// ShaderRecord is the serialized form of one patched shader: final
// byte code plus the auxiliary metadata a loader needs to build native
// binding tables. Field order is part of the archive format.
type ShaderRecord struct {
	// Stage is the shader stage the record was patched for.
	Stage signature.Stage

	// ByteCode is the backend compiler output.
	ByteCode []byte

	// BufferRemaps lists buffer resources whose source spelling or
	// numeric space differ from the signature declaration.
	BufferRemaps []BufferRemap

	// GroupSize is the compute dispatch group size. Only serialized
	// for compute-stage records.
	GroupSize [3]uint32
}

// Serialize visits every field of the record. The same call is used
// for the measure, write and read passes.
func (r *ShaderRecord) Serialize(s *Serializer) {
	stage := uint8(r.Stage)
	s.Uint8(&stage)
	r.Stage = signature.Stage(stage)

	s.Bytes(&r.ByteCode)

	count := uint32(len(r.BufferRemaps))
	s.Count(&count, 12)
	if s.Mode() == Read {
		if s.Err() != nil {
			return
		}
		r.BufferRemaps = make([]BufferRemap, count)
	}
	for i := range r.BufferRemaps {
		remap := &r.BufferRemaps[i]
		s.String(&remap.Name)
		s.String(&remap.AltName)
		s.Uint32(&remap.Space)
	}

	if r.Stage == signature.StageCompute {
		for i := range r.GroupSize {
			s.Uint32(&r.GroupSize[i])
		}
	}
}

// Encode serializes the record into a freshly allocated buffer.
func (r *ShaderRecord) Encode() []byte {
	return encode(r.Serialize)
}

// DecodeShaderRecord decodes a record produced by Encode.
func DecodeShaderRecord(buf []byte) (*ShaderRecord, error) {
	r := &ShaderRecord{}
	if err := decode(buf, r.Serialize); err != nil {
		return nil, err
	}
	return r, nil
}

// SignatureRecord is the serialized form of a resource signature.
// Signatures referenced by a pipeline are archived once under their
// own key and referenced by name from pipeline records.
type SignatureRecord struct {
	Name         string
	BindingIndex uint8
	Resources    []signature.ResourceDesc
}

// NewSignatureRecord captures a signature's description.
func NewSignatureRecord(sig *signature.Signature) *SignatureRecord {
	return &SignatureRecord{
		Name:         sig.Name(),
		BindingIndex: sig.BindingIndex(),
		Resources:    sig.Resources(),
	}
}

// Signature reconstructs the immutable signature the record describes.
func (r *SignatureRecord) Signature() (*signature.Signature, error) {
	return signature.New(r.Name, r.BindingIndex, r.Resources)
}

// Serialize visits every field of the record.
func (r *SignatureRecord) Serialize(s *Serializer) {
	s.String(&r.Name)
	s.Uint8(&r.BindingIndex)

	count := uint32(len(r.Resources))
	s.Count(&count, 10)
	if s.Mode() == Read {
		if s.Err() != nil {
			return
		}
		r.Resources = make([]signature.ResourceDesc, count)
	}
	for i := range r.Resources {
		res := &r.Resources[i]
		s.String(&res.Name)

		class := uint8(res.Class)
		s.Uint8(&class)
		res.Class = signature.ResourceClass(class)

		s.Uint32(&res.ArraySize)

		stages := uint8(res.Stages)
		s.Uint8(&stages)
		res.Stages = signature.StageMask(stages)
	}
}

// Encode serializes the record into a freshly allocated buffer.
func (r *SignatureRecord) Encode() []byte {
	return encode(r.Serialize)
}

// DecodeSignatureRecord decodes a record produced by Encode.
func DecodeSignatureRecord(buf []byte) (*SignatureRecord, error) {
	r := &SignatureRecord{}
	if err := decode(buf, r.Serialize); err != nil {
		return nil, err
	}
	return r, nil
}

// PipelineRecord ties a pipeline's archived shader records and
// signature records together. It is inserted last, once every stage
// has been patched, so its presence marks the pipeline complete.
type PipelineRecord struct {
	// Name is the pipeline name.
	Name string

	// SignatureNames lists the signatures the pipeline was allocated
	// against, in binding-index order. Each is archived under the
	// "signature/<name>" key.
	SignatureNames []string

	// StageKeys lists the archive keys of the pipeline's patched
	// shader records, in the order the stages were patched.
	StageKeys []string
}

// Serialize visits every field of the record.
func (r *PipelineRecord) Serialize(s *Serializer) {
	s.String(&r.Name)

	sigCount := uint32(len(r.SignatureNames))
	s.Count(&sigCount, 4)
	if s.Mode() == Read {
		if s.Err() != nil {
			return
		}
		r.SignatureNames = make([]string, sigCount)
	}
	for i := range r.SignatureNames {
		s.String(&r.SignatureNames[i])
	}

	stageCount := uint32(len(r.StageKeys))
	s.Count(&stageCount, 4)
	if s.Mode() == Read {
		if s.Err() != nil {
			return
		}
		r.StageKeys = make([]string, stageCount)
	}
	for i := range r.StageKeys {
		s.String(&r.StageKeys[i])
	}
}

// Encode serializes the record into a freshly allocated buffer.
func (r *PipelineRecord) Encode() []byte {
	return encode(r.Serialize)
}

// DecodePipelineRecord decodes a record produced by Encode.
func DecodePipelineRecord(buf []byte) (*PipelineRecord, error) {
	r := &PipelineRecord{}
	if err := decode(buf, r.Serialize); err != nil {
		return nil, err
	}
	return r, nil
}
