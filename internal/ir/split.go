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
package ir

import "github.com/wareya/bbae/internal/utils"

// SplitBlocks is spec.md §4.2's block splitter. The grammar this parser
// accepts (explicit `block NAME` sections, one terminator line per
// section) already guarantees every block ends in exactly one terminator
// and that `if` is always last, so there is nothing left to split for
// parser-produced IR. This pass still walks every function and asserts
// that invariant, so any future IR producer that builds blocks directly
// (skipping the line parser) is caught immediately instead of silently
// violating spec.md §3's "if is always the last statement" rule.
func SplitBlocks(prog *Program) {
	for _, f := range prog.Functions {
		for _, b := range f.Blocks {
			utils.Assert(b.Term != OpInvalid, "block %s.%s has no terminator", f.Name, b.Name)
			if b.Term == OpIf {
				utils.Assert(len(b.Targets) == 2, "if terminator needs two targets")
			}
		}
	}
}
