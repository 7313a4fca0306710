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

// Package opt implements the fixed four-pass optimization pipeline of
// spec.md §4.4, generalized from the teacher's ssa.Optimizer (which
// iterates its passes to a fixed point; this pipeline instead runs each
// pass exactly once, in order, per spec.md §4.4's closing paragraph).
package opt

import (
	"fmt"

	"github.com/wareya/bbae/internal/ir"
)

// Optimizer drives the pipeline over one Program. Debug mirrors the
// teacher's Optimizer.Debug trace flag.
type Optimizer struct {
	Prog  *ir.Program
	Debug bool
}

func (o *Optimizer) trace(format string, args ...interface{}) {
	if o.Debug {
		fmt.Printf(format+"\n", args...)
	}
}

// Run executes the fixed pipeline of spec.md §4.4: empty-block removal,
// mem2reg, unused-block-argument removal to a fixed point, then inlining.
// Each named pass runs exactly once except unused-block-argument removal,
// which iterates internally to a fixed point as spec.md §4.4.3 specifies.
func (o *Optimizer) Run() {
	for _, f := range o.Prog.Functions {
		o.trace("optimizing %s", f.Name)
		removedEmpty := o.removeEmptyBlocks(f)
		o.trace("  empty-block removal: %d removed", removedEmpty)
	}
	for _, f := range o.Prog.Functions {
		promoted := o.mem2reg(f)
		o.trace("mem2reg(%s): %d slots promoted", f.Name, promoted)
	}
	for _, f := range o.Prog.Functions {
		rounds := o.removeUnusedBlockArgs(f)
		o.trace("unused-arg removal(%s): %d rounds", f.Name, rounds)
	}
	o.inlineCalls()
	ir.ConnectEdges(o.Prog)
}
