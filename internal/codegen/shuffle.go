// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.
package codegen

import "github.com/wareya/bbae/internal/ir"

// Move is one source-to-destination placement the parallel move resolver
// must realize, passing a block-argument value from a predecessor block's
// terminator into the successor block's argument location (spec.md §4.7).
type Move struct {
	From    ir.Location
	To      ir.Location
	IsFloat bool
}

// ResolveShuffle orders a set of simultaneous moves into a sequence safe to
// emit one at a time, breaking cycles with the reserved scratch register
// (spec.md §4.6's IntScratch/FloatScratch). This is the textbook parallel
// register-shuffle algorithm: repeatedly emit any move whose destination
// nothing else still reads, then break remaining cycles through scratch.
func ResolveShuffle(moves []Move) []Move {
	pending := make([]Move, 0, len(moves))
	for _, m := range moves {
		if m.From != m.To {
			pending = append(pending, m)
		}
	}

	var out []Move
	for len(pending) > 0 {
		progressed := false
		for i := 0; i < len(pending); i++ {
			m := pending[i]
			if !isSource(pending, m.To, i) {
				out = append(out, m)
				pending = append(pending[:i], pending[i+1:]...)
				progressed = true
				break
			}
		}
		if progressed {
			continue
		}
		// Every remaining move's destination is also some other move's
		// source: a pure cycle. Break it by rotating the first move's
		// source through the scratch register.
		m := pending[0]
		scratch := ir.RegLocation(IntScratch)
		if m.IsFloat {
			scratch = ir.RegLocation(FloatScratch)
		}
		out = append(out, Move{From: m.From, To: scratch, IsFloat: m.IsFloat})
		pending[0].From = scratch
		// Re-run: the cycle is now broken because m.From's original value
		// lives in scratch and m.To is free to be overwritten next pass.
	}
	return out
}

// isSource reports whether loc is read as a From by any pending move other
// than the one at skipIdx.
func isSource(pending []Move, loc ir.Location, skipIdx int) bool {
	for i, m := range pending {
		if i == skipIdx {
			continue
		}
		if m.From == loc {
			return true
		}
	}
	return false
}
