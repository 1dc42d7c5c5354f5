/*
   Copyright 2022 The Erigon contributors

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

// Package pefwire defines the on-disk container format for a partitioned
// Elias-Fano sequence: the 40-byte file header, the skip-index arrays,
// and the arithmetic that locates the payload within the byte stream.
// It knows nothing about how individual blocks are encoded - that's
// package eliasfano's job - only about the envelope around them.
package pefwire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic is the fixed 4-byte tag at the start of every container.
var Magic = [4]byte{'P', 'E', 'F', '1'}

// Version is the only container version this package understands.
const Version = 1

// HeaderSize is the fixed on-disk size, in bytes, of the Sequence header.
const HeaderSize = 40

var (
	// ErrBadMagic is returned when the leading 4 bytes don't match Magic.
	ErrBadMagic = errors.New("pefwire: bad magic")
	// ErrBadVersion is returned when the header's version field is one
	// this package doesn't know how to read.
	ErrBadVersion = errors.New("pefwire: unsupported version")
	// ErrTruncated is returned when the byte stream is shorter than the
	// header declares it should be.
	ErrTruncated = errors.New("pefwire: truncated stream")
	// ErrBadHeader is returned for structurally inconsistent headers
	// (e.g. a payload_offset that doesn't match n_blocks).
	ErrBadHeader = errors.New("pefwire: malformed header")
)

// Header is the fixed-width metadata at the front of a container.
type Header struct {
	Version       uint32
	NElem         uint64
	BlockSize     uint32
	NBlocks       uint64
	PayloadOffset uint64
}

// SkipPayloadOffset returns the byte offset at which the payload begins,
// given n_blocks: 40-byte header, then n_blocks*8 block_last values,
// then n_blocks*8 block_offset values.
func SkipPayloadOffset(nBlocks uint64) uint64 {
	return uint64(HeaderSize) + 16*nBlocks
}

// AppendBytes appends the 40-byte header, then blockLast, then
// blockOffset (each n_blocks uint64s, little-endian) to buf.
func (h Header) AppendBytes(buf []byte, blockLast, blockOffset []uint64) []byte {
	var hdr [HeaderSize]byte
	copy(hdr[0:4], Magic[:])
	binary.LittleEndian.PutUint32(hdr[4:8], h.Version)
	binary.LittleEndian.PutUint64(hdr[8:16], h.NElem)
	binary.LittleEndian.PutUint32(hdr[16:20], h.BlockSize)
	// hdr[20:24] reserved, left zero
	binary.LittleEndian.PutUint64(hdr[24:32], h.NBlocks)
	binary.LittleEndian.PutUint64(hdr[32:40], h.PayloadOffset)
	buf = append(buf, hdr[:]...)

	for _, v := range blockLast {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		buf = append(buf, b[:]...)
	}
	for _, v := range blockOffset {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		buf = append(buf, b[:]...)
	}
	return buf
}

// Read parses a Header plus its skip-index arrays from the front of
// data. It returns the header and the two skip arrays.
func Read(data []byte) (Header, []uint64, []uint64, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, nil, nil, fmt.Errorf("%w: have %d bytes, need at least %d", ErrTruncated, len(data), HeaderSize)
	}
	if [4]byte(data[0:4]) != Magic {
		return h, nil, nil, ErrBadMagic
	}
	h.Version = binary.LittleEndian.Uint32(data[4:8])
	if h.Version != Version {
		return h, nil, nil, fmt.Errorf("%w: got %d, want %d", ErrBadVersion, h.Version, Version)
	}
	h.NElem = binary.LittleEndian.Uint64(data[8:16])
	h.BlockSize = binary.LittleEndian.Uint32(data[16:20])
	h.NBlocks = binary.LittleEndian.Uint64(data[24:32])
	h.PayloadOffset = binary.LittleEndian.Uint64(data[32:40])

	wantOffset := SkipPayloadOffset(h.NBlocks)
	if h.PayloadOffset != wantOffset {
		return h, nil, nil, fmt.Errorf("%w: payload_offset=%d, expected %d for n_blocks=%d", ErrBadHeader, h.PayloadOffset, wantOffset, h.NBlocks)
	}
	if uint64(len(data)) < h.PayloadOffset {
		return h, nil, nil, fmt.Errorf("%w: skip index truncated: have %d bytes, need %d", ErrTruncated, len(data), h.PayloadOffset)
	}

	blockLast := make([]uint64, h.NBlocks)
	blockOffset := make([]uint64, h.NBlocks)
	off := HeaderSize
	for i := range blockLast {
		blockLast[i] = binary.LittleEndian.Uint64(data[off:])
		off += 8
	}
	for i := range blockOffset {
		blockOffset[i] = binary.LittleEndian.Uint64(data[off:])
		off += 8
	}

	return h, blockLast, blockOffset, nil
}
