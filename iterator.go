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

package pef

import (
	"github.com/gopef/pef/eliasfano"
	"github.com/gopef/pef/stream"
)

// blockChain streams the concatenation of a chosen list of blocks, in
// the order given, without materializing any of them up front. It
// reuses a single eliasfano.Decoder value across blocks (construct as a
// value, call Reset) instead of allocating a decoder per block; each
// block's words are still copied out by readBlock.
type blockChain struct {
	seq    *Sequence
	blocks []int
	next   int // index into blocks of the block dec is currently positioned over, +1
	dec    eliasfano.Decoder
	ready  bool
	err    error
}

func newBlockChain(seq *Sequence, blocks []int) *blockChain {
	c := &blockChain{seq: seq, blocks: blocks}
	c.advance()
	return c
}

// advance positions dec over the next block that still has elements,
// skipping any block indices already exhausted (never happens in
// practice, since the partitioner forbids empty blocks, but advance
// tolerates it regardless of how the block list was built).
func (c *blockChain) advance() {
	for c.next < len(c.blocks) {
		idx := c.blocks[c.next]
		c.next++
		blk, err := c.seq.readBlock(idx)
		if err != nil {
			c.err = err
			c.ready = false
			return
		}
		c.dec.Reset(blk)
		if c.dec.HasNext() {
			c.ready = true
			return
		}
	}
	c.ready = false
}

func (c *blockChain) HasNext() bool {
	if c.err != nil {
		return true
	}
	for c.ready && !c.dec.HasNext() {
		c.advance()
	}
	return c.ready && c.dec.HasNext()
}

func (c *blockChain) Next() (uint64, error) {
	if c.err != nil {
		return 0, c.err
	}
	if !c.ready || !c.dec.HasNext() {
		return 0, stream.ErrIteratorExhausted
	}
	return c.dec.Next()
}

func (c *blockChain) Close() {}

// reverseBlockChain walks every block in descending order, and within
// each block walks its decoded values back to front. There's no
// separate on-disk reverse representation: just a forward decode of one
// block at a time held in a small buffer and walked backward.
type reverseBlockChain struct {
	seq      *Sequence
	blockIdx int
	buf      []uint64
	pos      int
	err      error
}

func newReverseBlockChain(seq *Sequence) *reverseBlockChain {
	c := &reverseBlockChain{seq: seq, blockIdx: len(seq.blockLast) - 1, pos: -1}
	c.loadBlock()
	return c
}

func (c *reverseBlockChain) loadBlock() {
	for c.blockIdx >= 0 {
		vals, err := c.seq.DecodeBlock(c.blockIdx)
		c.blockIdx--
		if err != nil {
			c.err = err
			return
		}
		if len(vals) > 0 {
			c.buf = vals
			c.pos = len(vals) - 1
			return
		}
	}
	c.buf = nil
	c.pos = -1
}

func (c *reverseBlockChain) HasNext() bool {
	return c.err != nil || c.pos >= 0
}

func (c *reverseBlockChain) Next() (uint64, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.pos < 0 {
		return 0, stream.ErrIteratorExhausted
	}
	v := c.buf[c.pos]
	c.pos--
	if c.pos < 0 {
		c.loadBlock()
	}
	return v, nil
}

func (c *reverseBlockChain) Close() {}

// ReverseDecode returns a lazy, descending walk over every element.
func (s *Sequence) ReverseDecode() stream.Uno[uint64] {
	return newReverseBlockChain(s)
}
