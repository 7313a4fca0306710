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
package opt

import "github.com/wareya/bbae/internal/ir"

// removeUnusedBlockArgs implements spec.md §4.4.3: iteratively remove any
// block argument with no uses, or whose only uses feed a self-loop jump
// back to its own defining block in the same argument position, together
// with the corresponding operand on every incoming terminator. Iterates
// to a fixed point and returns the number of rounds that made progress.
func (o *Optimizer) removeUnusedBlockArgs(f *ir.Function) int {
	ir.ConnectEdges(o.Prog)
	rounds := 0
	for {
		changedAny := false
		for _, b := range f.Blocks {
			if b == f.Entry() {
				continue // entry "arguments" are the function's real parameters
			}
			for i := len(b.Args) - 1; i >= 0; i-- {
				arg := b.Args[i]
				if isRemovableArg(b, arg, i) {
					removeBlockArg(f, b, i)
					changedAny = true
				}
			}
		}
		rounds++
		if !changedAny {
			break
		}
	}
	return rounds - 1
}

// isRemovableArg reports whether arg at position i in b has no uses, or
// only uses that are themselves the i-th argument of a goto/if arm
// targeting b from b itself (a self-loop passing the value back
// unchanged). Passing a block argument onward through TargetArgs is not
// recorded in Value.Uses/UseBlocks (those track only statement operands
// and `if` conditions), so the self-loop condition has to be checked by
// walking b's own outgoing targets directly: arg is removable only if it
// has no direct statement/condition use, and every outgoing occurrence of
// it at position i targets b itself rather than some other block.
func isRemovableArg(b *ir.Block, arg *ir.Value, i int) bool {
	if len(arg.Uses) != 0 || len(arg.UseBlocks) != 0 {
		return false
	}
	for ti, t := range b.Targets {
		args := b.TargetArgs[ti]
		if i >= len(args) || args[i] != arg {
			continue
		}
		if t != b {
			return false
		}
	}
	return true
}

// removeBlockArg deletes the argument at position i from b and the
// corresponding positional operand from every incoming terminator arm
// that targets b.
func removeBlockArg(f *ir.Function, b *ir.Block, i int) {
	b.Args = append(b.Args[:i], b.Args[i+1:]...)
	for _, pred := range f.Blocks {
		for ti, t := range pred.Targets {
			if t != b {
				continue
			}
			args := pred.TargetArgs[ti]
			if i < len(args) {
				pred.TargetArgs[ti] = append(args[:i], args[i+1:]...)
			}
		}
	}
}
