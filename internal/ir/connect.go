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

// ConnectEdges is the edge connector of spec.md §4.3: it wires every
// block's CFG predecessor/successor lists from its terminator's already-
// resolved target pointers. Label resolution itself happens during
// parsing (this parser resolves block names to *Block eagerly rather than
// deferring to a separate label-resolution pass); this pass is what makes
// the resulting graph actually walkable by later passes, and re-deriving
// it from terminators means it can be safely re-run after the block
// splitter and the optimizer rewrite terminators.
func ConnectEdges(prog *Program) {
	for _, f := range prog.Functions {
		for _, b := range f.Blocks {
			b.Preds = nil
			b.Succs = nil
		}
		for _, b := range f.Blocks {
			switch b.Term {
			case OpGoto:
				b.ConnectTo(b.Targets[0])
			case OpIf:
				b.ConnectTo(b.Targets[0])
				b.ConnectTo(b.Targets[1])
			case OpReturn:
				// no successors
			}
		}
	}
}
