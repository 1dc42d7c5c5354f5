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

// Package pef implements Partitioned Elias-Fano coding of a non-decreasing
// sequence of uint64 values: a vector of independently Elias-Fano coded
// blocks, a per-block skip index for random access, and set-algebra
// (intersection, union) implemented by merging block decoders and
// exploiting the skip index to avoid decoding blocks that can't
// contribute to the result.
//
// A Sequence is immutable once built: every set operation returns a new
// Sequence rather than mutating either operand, and it is safe to query
// a single Sequence from multiple goroutines as long as each caller
// drives its own decoder.
package pef

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/edsrzf/mmap-go"
	log "github.com/erigontech/erigon-lib/log/v3"
	"golang.org/x/sync/errgroup"

	"github.com/gopef/pef/eliasfano"
	"github.com/gopef/pef/stream"
)

// DefaultBlockSize is used by New when the caller passes 0.
const DefaultBlockSize = 256

// Sequence is a partitioned, Elias-Fano-compressed view of a
// non-decreasing run of uint64 values.
type Sequence struct {
	nElem       uint64
	blockSize   uint32
	blockLast   []uint64 // max element of block i, len == n_blocks
	blockOffset []uint64 // byte offset of block i's header within payload
	payload     []byte   // concatenated EFBlock encodings

	mapped mmap.MMap // non-nil only when loaded via LoadFile
}

// New partitions values into blocks of at most blockSize elements each,
// Elias-Fano-codes each block, and builds the skip index over them.
// values must be non-decreasing; this is checked eagerly, before any
// block is built. blockSize == 0 defaults to DefaultBlockSize.
func New(values []uint64, blockSize uint32) (*Sequence, error) {
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			return nil, fmt.Errorf("%w: values[%d]=%d < values[%d]=%d", ErrNotSorted, i, values[i], i-1, values[i-1])
		}
	}
	seq, err := buildFromStream(stream.Array(values), blockSize)
	if err != nil {
		return nil, err
	}
	log.Debug("pef: built sequence", "n_elem", seq.nElem, "block_size", seq.blockSize, "n_blocks", len(seq.blockLast))
	return seq, nil
}

// buildFromStream consumes an already-sorted, already-deduplicated-or-not
// ascending stream and chunks it into blockSize-sized EFBlocks. Used
// both by New (over a plain slice) and by the set-algebra engine (over a
// merged stream of two sequences' block decoders).
func buildFromStream(it stream.Uno[uint64], blockSize uint32) (*Sequence, error) {
	defer it.Close()

	chunk := make([]uint64, 0, blockSize)
	var blockLast, blockOffset []uint64
	var payload []byte
	var nElem uint64

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		blk, err := eliasfano.Encode(chunk)
		if err != nil {
			return err
		}
		blockOffset = append(blockOffset, uint64(len(payload)))
		blockLast = append(blockLast, chunk[len(chunk)-1])
		payload = blk.AppendBytes(payload)
		chunk = chunk[:0]
		return nil
	}

	for it.HasNext() {
		v, err := it.Next()
		if err != nil {
			return nil, err
		}
		chunk = append(chunk, v)
		nElem++
		if uint32(len(chunk)) == blockSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return &Sequence{
		nElem:       nElem,
		blockSize:   blockSize,
		blockLast:   blockLast,
		blockOffset: blockOffset,
		payload:     payload,
	}, nil
}

// NElem returns the total number of elements in the sequence.
func (s *Sequence) NElem() uint64 { return s.nElem }

// BlockSize returns the maximum number of elements per block.
func (s *Sequence) BlockSize() uint32 { return s.blockSize }

// NBlocks returns the number of blocks.
func (s *Sequence) NBlocks() uint64 { return uint64(len(s.blockLast)) }

// blockFloor returns block i's minimum element by peeking its header,
// without decoding its body.
func (s *Sequence) blockFloor(i int) (uint64, error) {
	h, err := eliasfano.PeekHeader(s.payload[s.blockOffset[i]:])
	if err != nil {
		return 0, err
	}
	return h.Floor, nil
}

func (s *Sequence) readBlock(i int) (*eliasfano.Block, error) {
	blk, _, err := eliasfano.ReadBlock(s.payload[s.blockOffset[i]:])
	if err != nil {
		return nil, fmt.Errorf("pef: block %d: %w", i, err)
	}
	return blk, nil
}

// DecodeBlock materializes every element of block i.
func (s *Sequence) DecodeBlock(i int) ([]uint64, error) {
	if i < 0 || uint64(i) >= s.NBlocks() {
		return nil, ErrIndexOutOfRange
	}
	blk, err := s.readBlock(i)
	if err != nil {
		return nil, err
	}
	return blk.Decode()
}

// Decode materializes the whole sequence, decoding blocks concurrently
// (read-only, so safe against an immutable Sequence) and concatenating
// the results in order.
func (s *Sequence) Decode() ([]uint64, error) {
	nBlocks := len(s.blockLast)
	if nBlocks == 0 {
		return nil, nil
	}
	results := make([][]uint64, nBlocks)
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < nBlocks; i++ {
		i := i
		g.Go(func() error {
			vals, err := s.DecodeBlock(i)
			if err != nil {
				return err
			}
			results[i] = vals
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make([]uint64, 0, s.nElem)
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// Get returns the element at global index i. It streams the containing
// block up to the (k+1)-th output rather than materializing the whole
// block, so it stays cheap for small k even with a large block size.
func (s *Sequence) Get(i uint64) (uint64, error) {
	if i >= s.nElem {
		return 0, ErrIndexOutOfRange
	}
	b := i / uint64(s.blockSize)
	k := i % uint64(s.blockSize)

	blk, err := s.readBlock(int(b))
	if err != nil {
		return 0, err
	}
	dec := blk.NewDecoder()
	var v uint64
	for j := uint64(0); j <= k; j++ {
		if !dec.HasNext() {
			return 0, fmt.Errorf("pef: get(%d): %w", i, eliasfano.ErrCorrupt)
		}
		v, err = dec.Next()
		if err != nil {
			return 0, err
		}
	}
	return v, nil
}

// Contains reports whether q is a member of the sequence.
func (s *Sequence) Contains(q uint64) bool {
	if s.nElem == 0 {
		return false
	}
	b := sort.Search(len(s.blockLast), func(i int) bool { return s.blockLast[i] >= q })
	if b == len(s.blockLast) {
		return false
	}
	if b > 0 {
		floor, err := s.blockFloor(b)
		if err != nil || floor > q {
			return false
		}
	}
	blk, err := s.readBlock(b)
	if err != nil {
		return false
	}
	dec := blk.NewDecoder()
	for dec.HasNext() {
		v, err := dec.Next()
		if err != nil {
			return false
		}
		if v == q {
			return true
		}
		if v > q {
			return false
		}
	}
	return false
}

// Seek returns the first element >= v, and whether one exists.
func (s *Sequence) Seek(v uint64) (uint64, bool) {
	if s.nElem == 0 {
		return 0, false
	}
	b := sort.Search(len(s.blockLast), func(i int) bool { return s.blockLast[i] >= v })
	if b == len(s.blockLast) {
		return 0, false
	}
	blk, err := s.readBlock(b)
	if err != nil {
		return 0, false
	}
	dec := blk.NewDecoder()
	for dec.HasNext() {
		val, err := dec.Next()
		if err != nil {
			return 0, false
		}
		if val >= v {
			return val, true
		}
	}
	return 0, false
}

// Min returns the smallest element, and whether the sequence is non-empty.
func (s *Sequence) Min() (uint64, bool) {
	if s.nElem == 0 {
		return 0, false
	}
	floor, err := s.blockFloor(0)
	if err != nil {
		return 0, false
	}
	return floor, true
}

// Max returns the largest element, and whether the sequence is non-empty.
func (s *Sequence) Max() (uint64, bool) {
	if s.nElem == 0 {
		return 0, false
	}
	return s.blockLast[len(s.blockLast)-1], true
}

// Iterator returns a lazy forward walk over every element, without
// materializing the whole sequence at once. The walk is single-pass;
// each call to Iterator starts a new one at the first element.
func (s *Sequence) Iterator() stream.Uno[uint64] {
	return newBlockChain(s, allBlockIndices(len(s.blockLast)))
}

// Close releases resources held by a Sequence loaded via LoadFile. It is
// a no-op for sequences built with New or loaded via LoadBytes.
func (s *Sequence) Close() error {
	if s.mapped != nil {
		return s.mapped.Unmap()
	}
	return nil
}

func allBlockIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
