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

import "errors"

var (
	// ErrIndexOutOfRange is returned by DecodeBlock and Get when the
	// requested index doesn't exist.
	ErrIndexOutOfRange = errors.New("pef: index out of range")

	// ErrNotSorted is returned by New when the input is not
	// non-decreasing. Detected eagerly, before any block is built.
	ErrNotSorted = errors.New("pef: input values are not non-decreasing")
)
