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
	log "github.com/erigontech/erigon-lib/log/v3"

	"github.com/gopef/pef/stream"
)

// Intersect returns a new Sequence holding the elements present in both
// s and other. The result's block size is taken from s (the left
// operand), asymmetric and intentional. Blocks of either operand whose
// value ranges cannot overlap the other operand's range are skipped
// entirely, never decoded.
func (s *Sequence) Intersect(other *Sequence) (*Sequence, error) {
	if s.nElem == 0 || other.nElem == 0 {
		return emptySequence(s.blockSize), nil
	}

	aBlocks, bBlocks, err := overlappingBlocks(s, other)
	if err != nil {
		return nil, err
	}
	log.Debug("pef: intersect narrowed by skip index",
		"a_total", len(s.blockLast), "a_considered", len(aBlocks),
		"b_total", len(other.blockLast), "b_considered", len(bBlocks))
	if len(aBlocks) == 0 {
		return emptySequence(s.blockSize), nil
	}

	left := newBlockChain(s, aBlocks)
	right := newBlockChain(other, bBlocks)
	merged := stream.Intersect[uint64](left, right)
	return buildFromStream(merged, s.blockSize)
}

// UnionWith returns a new Sequence holding every element present in s,
// in other, or in both (duplicates across the two collapse to a single
// emission). The result's block size is taken from s.
func (s *Sequence) UnionWith(other *Sequence) (*Sequence, error) {
	left := newBlockChain(s, allBlockIndices(len(s.blockLast)))
	right := newBlockChain(other, allBlockIndices(len(other.blockLast)))
	merged := stream.Union[uint64](left, right)
	return buildFromStream(merged, s.blockSize)
}

func emptySequence(blockSize uint32) *Sequence {
	return &Sequence{blockSize: blockSize}
}

// overlappingBlocks performs the joint skip-index walk described for
// the set-algebra engine: advance whichever side's current block ends
// before the other side's current block begins, and record a pair of
// block indices whenever their value ranges overlap. Returns the
// (deduplicated, ascending) list of block indices on each side worth
// decoding at all.
func overlappingBlocks(a, b *Sequence) ([]int, []int, error) {
	var aBlocks, bBlocks []int
	ai, bi := 0, 0
	for ai < len(a.blockLast) && bi < len(b.blockLast) {
		aFloor, err := a.blockFloor(ai)
		if err != nil {
			return nil, nil, err
		}
		bFloor, err := b.blockFloor(bi)
		if err != nil {
			return nil, nil, err
		}
		aLast, bLast := a.blockLast[ai], b.blockLast[bi]

		if aLast < bFloor {
			ai++
			continue
		}
		if bLast < aFloor {
			bi++
			continue
		}

		if len(aBlocks) == 0 || aBlocks[len(aBlocks)-1] != ai {
			aBlocks = append(aBlocks, ai)
		}
		if len(bBlocks) == 0 || bBlocks[len(bBlocks)-1] != bi {
			bBlocks = append(bBlocks, bi)
		}

		switch {
		case aLast < bLast:
			ai++
		case bLast < aLast:
			bi++
		default:
			ai++
			bi++
		}
	}
	return aBlocks, bBlocks, nil
}
