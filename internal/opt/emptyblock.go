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

// removeEmptyBlocks implements spec.md §4.4.1: a block consisting of
// exactly one `goto` is eliminated, its predecessors redirected straight
// to its successor with its own goto's arguments substituted positionally
// for any use of this block's own block-arguments in the predecessor's
// operand list.
func (o *Optimizer) removeEmptyBlocks(f *ir.Function) int {
	ir.ConnectEdges(o.Prog)
	removed := 0
	changed := true
	for changed {
		changed = false
		for i := 1; i < len(f.Blocks); i++ { // never eliminate the entry block
			b := f.Blocks[i]
			if !isEmptyGotoBlock(b) {
				continue
			}
			succ := b.Targets[0]
			succArgs := b.TargetArgs[0]
			for _, pred := range append([]*ir.Block{}, b.Preds...) {
				retargetTerminator(pred, b, succ, succArgs)
			}
			f.RemoveBlock(b)
			removed++
			changed = true
			ir.ConnectEdges(o.Prog)
			break
		}
	}
	return removed
}

func isEmptyGotoBlock(b *ir.Block) bool {
	return len(b.Stmts) == 0 && b.Term == ir.OpGoto
}

// retargetTerminator rewrites every arm of pred's terminator that jumps to
// oldTarget so it jumps to newTarget instead, substituting oldTarget's
// own block-argument values (as named by the removed block's goto) for
// any occurrence of oldTarget's arguments in pred's argument list.
func retargetTerminator(pred, oldTarget, newTarget *ir.Block, newArgs []*ir.Value) {
	for i, t := range pred.Targets {
		if t != oldTarget {
			continue
		}
		pred.Targets[i] = newTarget
		passedArgs := pred.TargetArgs[i]
		substituted := make([]*ir.Value, len(newArgs))
		for j, a := range newArgs {
			substituted[j] = substituteBlockArg(oldTarget, passedArgs, a)
		}
		pred.TargetArgs[i] = substituted
	}
}

// substituteBlockArg resolves one argument expression from the removed
// block's own goto: if it refers to one of the removed block's own
// parameters, substitute the value the predecessor actually passed in
// that position; otherwise it's a value from outside (e.g. a constant),
// used as-is.
func substituteBlockArg(removed *ir.Block, passedArgs []*ir.Value, expr *ir.Value) *ir.Value {
	for i, param := range removed.Args {
		if param == expr {
			return passedArgs[i]
		}
	}
	return expr
}
