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

import (
	"fmt"

	"github.com/wareya/bbae/internal/ir"
)

// mem2reg implements spec.md §4.4.2. Every non-escaping stack slot (one
// whose every use is a direct load or store of its own address, the
// legalizer having already forced any other consumer through a mov) is
// threaded through as an extra block argument on every block, appended in
// the same position on every incoming terminator's argument list — this
// repository appends consistently on both ends rather than prepending
// the parameter and appending the argument, since only positional
// agreement between the two, not front/back placement, is load-bearing.
func (o *Optimizer) mem2reg(f *ir.Function) int {
	promoted := 0
	for _, slot := range append([]*ir.StackSlot{}, f.Slots...) {
		if !slotEscapes(f, slot) {
			o.promoteSlot(f, slot)
			promoted++
		}
	}
	return promoted
}

// slotEscapes reports whether slot's address is used anywhere besides the
// pointer position of a load or store.
func slotEscapes(f *ir.Function, slot *ir.StackSlot) bool {
	for _, b := range f.Blocks {
		for _, s := range b.Stmts {
			for i, op := range s.Operands {
				if op.Kind != ir.OperandValue || op.Value == nil || op.Value.Kind != ir.VStackAddr {
					continue
				}
				if op.Value.Slot != slot {
					continue
				}
				if s.Op == ir.OpLoad && i == 1 {
					continue
				}
				if s.Op == ir.OpStore && i == 0 {
					continue
				}
				return true
			}
		}
	}
	return false
}

func (o *Optimizer) promoteSlot(f *ir.Function, slot *ir.StackSlot) {
	t := slot.Type
	entry := f.Entry()

	currentAtStart := map[*ir.Block]*ir.Value{}
	for _, b := range f.Blocks {
		if b == entry {
			continue
		}
		argName := fmt.Sprintf("%%%s.m2r%d", slot.Name, b.ID)
		arg := &ir.Value{ID: len(b.Args), Kind: ir.VArg, Type: t, ArgName: argName}
		b.Args = append(b.Args, arg)
		currentAtStart[b] = arg
	}

	for _, b := range f.Blocks {
		var current *ir.Value
		if b == entry {
			o.Prog.CurBlock = b
			zero := o.Prog.NewConst(t, 0)
			// NewStatement appends mov to b.Stmts via AddStmt; undo that and
			// reinsert it at the front instead, since the zero-init must
			// precede every other statement in the entry block.
			mov := o.Prog.NewStatement(ir.OpMov, t, ir.ValueOperand(zero))
			b.Stmts = append([]*ir.Statement{mov}, b.Stmts[:len(b.Stmts)-1]...)
			current = mov.Output
		} else {
			current = currentAtStart[b]
		}
		current = promoteInBlock(o.Prog, b, slot, current)

		for i := range b.Targets {
			b.TargetArgs[i] = append(b.TargetArgs[i], current)
		}
	}

	removeSlot(f, slot)
}

// promoteInBlock rewrites load/store of slot's address within b into
// mov, tracking the shadowed current value as spec.md §4.4.2 describes,
// and returns the value live at the end of the block.
func promoteInBlock(prog *ir.Program, b *ir.Block, slot *ir.StackSlot, current *ir.Value) *ir.Value {
	for _, s := range b.Stmts {
		ptrPos := -1
		for i, op := range s.Operands {
			if op.Kind == ir.OperandValue && op.Value != nil && op.Value.Kind == ir.VStackAddr && op.Value.Slot == slot {
				ptrPos = i
			}
		}
		if ptrPos < 0 {
			continue
		}
		switch s.Op {
		case ir.OpLoad:
			s.Op = ir.OpMov
			s.Operands = []ir.Operand{ir.ValueOperand(current)}
			current.AddUse(s)
		case ir.OpStore:
			val := s.Operands[1].Value
			s.Op = ir.OpMov
			s.Operands = []ir.Operand{ir.ValueOperand(val)}
			out := prog.NewValue(val.Type)
			out.Producer = s
			s.Output = out
			current = out
		}
	}
	return current
}

func removeSlot(f *ir.Function, slot *ir.StackSlot) {
	for i, s := range f.Slots {
		if s == slot {
			f.Slots = append(f.Slots[:i], f.Slots[i+1:]...)
			return
		}
	}
}
