/*
   Copyright 2021 The Erigon Authors
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

// Package stream is a small, composable iterator abstraction used by the
// set-algebra engine to merge block decoders without materializing whole
// blocks.
//
//	for s.HasNext() {
//		v, err := s.Next()
//		if err != nil {
//			return err
//		}
//	}
//
// Invariants:
//  1. HasNext is idempotent.
//  2. Values are always produced in ascending order by every stream in
//     this package - there is no descending variant, since every
//     sequence this module deals with is non-decreasing by construction.
package stream

import (
	"cmp"
	"errors"
)

// ErrIteratorExhausted is returned by Next when there are no more
// elements to produce. Well-behaved callers check HasNext first and
// never see it; it exists for implementations that want a uniform error
// path.
var ErrIteratorExhausted = errors.New("stream: iterator exhausted")

// Uno produces a single ascending stream of values.
type Uno[V any] interface {
	Next() (V, error)
	HasNext() bool
	Close()
}

// Closer is implemented by streams that hold resources worth releasing
// explicitly (block decoders in this module hold none, but composed
// streams forward Close() to their children regardless).
type Closer interface {
	Close()
}

// Empty is a Uno that never has a next value.
type Empty[V any] struct{}

func (Empty[V]) HasNext() bool        { return false }
func (Empty[V]) Next() (v V, err error) { return v, err }
func (Empty[V]) Close()               {}

// Array returns a Uno over a plain slice, in order.
func Array[V any](arr []V) *ArrStream[V] { return &ArrStream[V]{arr: arr} }

// ArrStream is a Uno over a slice held in memory.
type ArrStream[V any] struct {
	arr []V
	i   int
}

func (it *ArrStream[V]) HasNext() bool { return it.i < len(it.arr) }
func (it *ArrStream[V]) Close()        {}
func (it *ArrStream[V]) Next() (V, error) {
	if !it.HasNext() {
		var zero V
		return zero, ErrIteratorExhausted
	}
	v := it.arr[it.i]
	it.i++
	return v, nil
}

// dedupe collapses consecutive equal values from src into one emission.
// Since every stream in this package is non-decreasing, "consecutive"
// and "all" coincide: this is enough to turn a stream that may repeat
// values (as New permits on its input) into one with set semantics,
// which is what Union and Intersect are specified against.
type dedupe[T cmp.Ordered] struct {
	src     Uno[T]
	has     bool
	cur     T
	hasLast bool
	last    T
	err     error
}

func newDedupe[T cmp.Ordered](src Uno[T]) *dedupe[T] {
	d := &dedupe[T]{src: src}
	d.advance()
	return d
}

func (d *dedupe[T]) advance() {
	for {
		if d.err != nil || !d.src.HasNext() {
			d.has = false
			return
		}
		v, err := d.src.Next()
		if err != nil {
			d.err = err
			d.has = false
			return
		}
		if d.hasLast && v == d.last {
			continue
		}
		d.cur, d.last, d.hasLast, d.has = v, v, true, true
		return
	}
}

func (d *dedupe[T]) HasNext() bool { return d.err != nil || d.has }

func (d *dedupe[T]) Next() (res T, err error) {
	if d.err != nil {
		return res, d.err
	}
	if !d.has {
		return res, ErrIteratorExhausted
	}
	v := d.cur
	d.advance()
	return v, nil
}

func (d *dedupe[T]) Close() {
	if c, ok := d.src.(Closer); ok {
		c.Close()
	}
}

// union merges x and y in ascending order, producing every value present
// in x, in y, or in both; a value present in both is emitted once.
type union[T cmp.Ordered] struct {
	x, y       Uno[T]
	xHas, yHas bool
	xNext, yNext T
	err        error
}

// Union returns all elements that are in x, in y, or in both (A u B).
// Both operands are deduplicated first (via dedupe), so a value repeated
// within x or within y, or shared across x and y, is emitted exactly once.
func Union[T cmp.Ordered](x, y Uno[T]) Uno[T] {
	if x == nil && y == nil {
		return &Empty[T]{}
	}
	if x == nil {
		return newDedupe(y)
	}
	if y == nil {
		return newDedupe(x)
	}
	xd, yd := newDedupe(x), newDedupe(y)
	if !xd.HasNext() {
		return yd
	}
	if !yd.HasNext() {
		return xd
	}
	m := &union[T]{x: xd, y: yd}
	m.advanceX()
	m.advanceY()
	return m
}

func (m *union[T]) HasNext() bool {
	return m.err != nil || m.xHas || m.yHas
}

func (m *union[T]) advanceX() {
	if m.err != nil {
		return
	}
	m.xHas = m.x.HasNext()
	if m.xHas {
		m.xNext, m.err = m.x.Next()
	}
}

func (m *union[T]) advanceY() {
	if m.err != nil {
		return
	}
	m.yHas = m.y.HasNext()
	if m.yHas {
		m.yNext, m.err = m.y.Next()
	}
}

func (m *union[T]) Next() (res T, err error) {
	if m.err != nil {
		return res, m.err
	}
	switch {
	case m.xHas && m.yHas:
		switch {
		case m.xNext < m.yNext:
			v := m.xNext
			m.advanceX()
			return v, nil
		case m.xNext == m.yNext:
			v := m.xNext
			m.advanceX()
			m.advanceY()
			return v, nil
		default:
			v := m.yNext
			m.advanceY()
			return v, nil
		}
	case m.xHas:
		v := m.xNext
		m.advanceX()
		return v, nil
	default:
		v := m.yNext
		m.advanceY()
		return v, nil
	}
}

func (m *union[T]) Close() {
	if c, ok := m.x.(Closer); ok {
		c.Close()
	}
	if c, ok := m.y.(Closer); ok {
		c.Close()
	}
}

// intersected merges x and y in ascending order, producing only values
// present in both.
type intersected[T cmp.Ordered] struct {
	x, y         Uno[T]
	xHas, yHas   bool
	xNext, yNext T
	err          error
}

// Intersect returns only elements present in both x and y (A n B). Both
// operands are deduplicated first (via dedupe), so a value repeated
// within x or within y is counted once, not matched once per repeat.
func Intersect[T cmp.Ordered](x, y Uno[T]) Uno[T] {
	if x == nil || y == nil {
		return &Empty[T]{}
	}
	xd, yd := newDedupe(x), newDedupe(y)
	if !xd.HasNext() || !yd.HasNext() {
		return &Empty[T]{}
	}
	m := &intersected[T]{x: xd, y: yd}
	m.advance()
	return m
}

func (m *intersected[T]) HasNext() bool {
	return m.err != nil || (m.xHas && m.yHas)
}

func (m *intersected[T]) advanceX() {
	if m.err != nil {
		return
	}
	m.xHas = m.x.HasNext()
	if m.xHas {
		m.xNext, m.err = m.x.Next()
	}
}

func (m *intersected[T]) advanceY() {
	if m.err != nil {
		return
	}
	m.yHas = m.y.HasNext()
	if m.yHas {
		m.yNext, m.err = m.y.Next()
	}
}

// advance moves both cursors forward by one matched pair, then skips
// ahead until they next agree on a value (or one of them runs out).
func (m *intersected[T]) advance() {
	m.advanceX()
	m.advanceY()
	for m.err == nil && m.xHas && m.yHas {
		if m.xNext == m.yNext {
			return
		}
		if m.xNext < m.yNext {
			m.advanceX()
		} else {
			m.advanceY()
		}
	}
	m.xHas = false
}

func (m *intersected[T]) Next() (res T, err error) {
	if m.err != nil {
		return res, m.err
	}
	v := m.xNext
	m.advance()
	return v, nil
}

func (m *intersected[T]) Close() {
	if c, ok := m.x.(Closer); ok {
		c.Close()
	}
	if c, ok := m.y.(Closer); ok {
		c.Close()
	}
}
