/*
Copyright © 2024 the TEF authors.
This file is part of TEF.

TEF is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

TEF is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with TEF.  If not, see <http://www.gnu.org/licenses/>.
*/

package tef

import "errors"

var (
	// ErrEmptyGrid indicates that a mask has no rows or no columns.
	ErrEmptyGrid = errors.New("tef: grid must have at least one row and one column")
	// ErrNonRectangular indicates mask rows of differing lengths.
	ErrNonRectangular = errors.New("tef: all mask rows must have the same length")
	// ErrUnknownSection indicates a request for a section that was not defined.
	ErrUnknownSection = errors.New("tef: unknown section")
	// ErrUnknownSegment indicates a request for a segment that is not in a data set.
	ErrUnknownSegment = errors.New("tef: unknown segment")
	// ErrUnknownRiver indicates a request for a river that is not in a data set.
	ErrUnknownRiver = errors.New("tef: unknown river")
	// ErrOutOfBounds indicates a location or index outside of the grid.
	ErrOutOfBounds = errors.New("tef: location is outside of the grid")
	// ErrLand indicates a location that falls on the land mask.
	ErrLand = errors.New("tef: location is on the land mask")
	// ErrAmbiguousSign indicates a two-layer decomposition where neither
	// layer is saltier than the other, so the inflowing layer is undefined.
	ErrAmbiguousSign = errors.New("tef: ambiguous two-layer sign")
)
