/*
   Copyright 2022 The Erigon Authors
   This file is part of Erigon.

   Erigon is free software: you can redistribute it and/or modify
   it under the terms of the GNU Lesser General Public License as published by
   the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   Erigon is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
   GNU Lesser General Public License for more details.

   You should have received a copy of the GNU Lesser General Public License
   along with Erigon. If not, see <http://www.gnu.org/licenses/>.
*/

// Package eliasfano implements the Elias-Fano encoding of one
// non-decreasing run of up to a few thousand uint64 values: a self
// contained compressed block with a fixed 40-byte header, a packed low
// bit buffer, and a positional-unary high bit buffer.
package eliasfano

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/gopef/pef/bitio"
)

// ErrEmptyBlock is returned by Encode when asked to build a block from
// zero elements. A well-formed Sequence never triggers this: the
// partitioner only ever emits non-empty runs.
var ErrEmptyBlock = errors.New("eliasfano: cannot encode an empty block")

// ErrCorrupt is returned by the streaming decoder when the invariant
// that every emitted element has a corresponding set high-bit doesn't
// hold - i.e. NextOneAtOrAfter ran out of bits before n_elem values were
// produced. This can only happen against a hand-corrupted or truncated
// buffer; a block built by Encode never triggers it.
var ErrCorrupt = errors.New("eliasfano: corrupt block (high bits exhausted before n_elem reached)")

// ErrRangeTooLarge is returned by Encode when a block's value span
// covers the entire uint64 domain (first == 0, last == math.MaxUint64)
// and chooseL selects l == 0: range_hi would then be 2^64, which has no
// uint64 representation.
var ErrRangeTooLarge = errors.New("eliasfano: block value range too large to encode with l == 0")

// HeaderSize is the fixed on-disk size, in bytes, of a block header.
const HeaderSize = 40

// Header is the fixed-width metadata that precedes a block's low/high
// buffers on disk.
type Header struct {
	NElem       uint32
	L           uint8 // low-bit width
	Floor       uint64
	LowWords    uint64
	HighWords   uint64
	HighBitsLen uint64
}

// Block is one self-contained Elias-Fano-coded run.
type Block struct {
	Header
	Low  []uint64 // LowWords words, NElem*L packed bits, LSB-first
	High []uint64 // HighWords words, exactly NElem set bits, positional unary
}

// chooseL implements spec's choose_l(range, n): floor(log2(range/n)),
// or 0 when n == 0 or range/n == 0. For n values spread roughly
// uniformly over range, this balances low-bit and high-bit storage -
// the textbook Elias-Fano split point.
func chooseL(rng, n uint64) uint8 {
	if n == 0 {
		return 0
	}
	avg := rng / n
	if avg == 0 {
		return 0
	}
	return uint8(bits.Len64(avg) - 1)
}

// Encode builds a Block from n >= 1 non-decreasing values. The caller
// must ensure values is non-decreasing; Encode does not re-check it
// (the partitioning layer above already validates the whole input once).
func Encode(values []uint64) (*Block, error) {
	n := len(values)
	if n == 0 {
		return nil, ErrEmptyBlock
	}

	floor := values[0]
	last := values[n-1]
	span := last - floor // never overflows: values is non-decreasing, so last >= floor
	rng := span + 1
	if span == math.MaxUint64 {
		rng = math.MaxUint64 // true range is 2^64; clamp since chooseL only cares about its magnitude
	}
	l := chooseL(rng, uint64(n))

	var lw bitio.Writer
	if l > 0 {
		for _, v := range values {
			lw.Put(v-floor, l)
		}
	}
	lowWords := lw.Flush()

	var rangeHi uint64
	switch {
	case l > 0:
		rangeHi = (span >> l) + 1 // == ceil(rng/2^l), computed from span to avoid rng's own overflow
	case span == math.MaxUint64:
		return nil, ErrRangeTooLarge
	default:
		rangeHi = rng
	}
	bitsHi := uint64(n) + rangeHi
	highWords := make([]uint64, (bitsHi+63)/64)
	for i, v := range values {
		hi := (v - floor) >> l
		pos := hi + uint64(i)
		highWords[pos/64] |= uint64(1) << (pos % 64)
	}

	return &Block{
		Header: Header{
			NElem:       uint32(n),
			L:           l,
			Floor:       floor,
			LowWords:    uint64(len(lowWords)),
			HighWords:   uint64(len(highWords)),
			HighBitsLen: bitsHi,
		},
		Low:  lowWords,
		High: highWords,
	}, nil
}

// AppendBytes appends the block's on-disk representation (40-byte
// header, then Low, then High, all little-endian) to buf and returns
// the extended slice.
func (b *Block) AppendBytes(buf []byte) []byte {
	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], b.NElem)
	hdr[4] = b.L
	// hdr[5:8] reserved, left zero
	binary.LittleEndian.PutUint64(hdr[8:16], b.Floor)
	binary.LittleEndian.PutUint64(hdr[16:24], b.LowWords)
	binary.LittleEndian.PutUint64(hdr[24:32], b.HighWords)
	binary.LittleEndian.PutUint64(hdr[32:40], b.HighBitsLen)
	buf = append(buf, hdr[:]...)

	for _, w := range b.Low {
		var wb [8]byte
		binary.LittleEndian.PutUint64(wb[:], w)
		buf = append(buf, wb[:]...)
	}
	for _, w := range b.High {
		var wb [8]byte
		binary.LittleEndian.PutUint64(wb[:], w)
		buf = append(buf, wb[:]...)
	}
	return buf
}

// ByteSize returns the on-disk size, in bytes, of this block's encoding.
func (b *Block) ByteSize() int {
	return HeaderSize + int(b.LowWords)*8 + int(b.HighWords)*8
}

// PeekHeader parses just a block's 40-byte header from the front of
// data, without reading its low/high bodies. Used by the skip-index
// merge logic to read a block's floor without materializing it.
func PeekHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("eliasfano: truncated header: have %d bytes, need %d", len(data), HeaderSize)
	}
	return Header{
		NElem:       binary.LittleEndian.Uint32(data[0:4]),
		L:           data[4],
		Floor:       binary.LittleEndian.Uint64(data[8:16]),
		LowWords:    binary.LittleEndian.Uint64(data[16:24]),
		HighWords:   binary.LittleEndian.Uint64(data[24:32]),
		HighBitsLen: binary.LittleEndian.Uint64(data[32:40]),
	}, nil
}

// ReadBlock parses one block starting at data[0], returning the block
// and the number of bytes consumed.
func ReadBlock(data []byte) (*Block, int, error) {
	h, err := PeekHeader(data)
	if err != nil {
		return nil, 0, err
	}
	need := HeaderSize + int(h.LowWords)*8 + int(h.HighWords)*8
	if len(data) < need {
		return nil, 0, fmt.Errorf("eliasfano: truncated body: have %d bytes, need %d", len(data), need)
	}

	off := HeaderSize
	var low []uint64 // stays nil when LowWords == 0, as Encode leaves it
	if h.LowWords > 0 {
		low = make([]uint64, h.LowWords)
	}
	for i := range low {
		low[i] = binary.LittleEndian.Uint64(data[off:])
		off += 8
	}
	high := make([]uint64, h.HighWords)
	for i := range high {
		high[i] = binary.LittleEndian.Uint64(data[off:])
		off += 8
	}

	return &Block{Header: h, Low: low, High: high}, need, nil
}

// Decode materializes every value in the block. Streaming via NewDecoder
// is preferred for large blocks; Decode is a convenience on top of it.
func (b *Block) Decode() ([]uint64, error) {
	out := make([]uint64, 0, b.NElem)
	d := b.NewDecoder()
	for d.HasNext() {
		v, err := d.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Decoder is a restartable, lazy producer of a block's values, in
// ascending order. Constructible as a value; call Reset to reuse it
// against a different block without allocating.
type Decoder struct {
	block     *Block
	i         uint32
	hasPrev   bool
	prevHiPos uint64
	low       bitio.Reader
}

// NewDecoder returns a Decoder positioned at the first element.
func (b *Block) NewDecoder() *Decoder {
	d := &Decoder{}
	d.Reset(b)
	return d
}

// Reset repositions the decoder at the first element of block.
func (d *Decoder) Reset(block *Block) {
	d.block = block
	d.i = 0
	d.hasPrev = false
	d.prevHiPos = 0
	d.low = *bitio.NewReader(block.Low)
}

// HasNext reports whether another element remains.
func (d *Decoder) HasNext() bool {
	return d.i < d.block.NElem
}

// Next returns the next element in ascending order.
func (d *Decoder) Next() (uint64, error) {
	if !d.HasNext() {
		return 0, fmt.Errorf("eliasfano: decoder exhausted")
	}
	start := uint64(0)
	if d.hasPrev {
		start = d.prevHiPos + 1
	}
	pos, ok := bitio.NextOneAtOrAfter(d.block.High, start)
	if !ok {
		return 0, ErrCorrupt
	}
	hi := pos - uint64(d.i)
	var lo uint64
	if d.block.L > 0 {
		lo = d.low.Get(d.block.L)
	}
	d.prevHiPos = pos
	d.hasPrev = true
	d.i++
	return d.block.Floor + ((hi << d.block.L) | lo), nil
}

// Close is a no-op; Decoder holds no external resources.
func (d *Decoder) Close() {}
