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

const inlineStatementBudget = 100

var inlineCounter int

// inlineCalls implements spec.md §4.4.4: inline every call site whose
// callee is statically known, makes no calls of its own, and has at most
// 100 statements. The callee is deep-cloned via remap tables (never
// pointer-chasing recursion) so the clone's SSA single-definition
// invariant holds automatically.
func (o *Optimizer) inlineCalls() {
	for _, f := range o.Prog.Functions {
		for {
			site := findInlineSite(o.Prog, f)
			if site == nil {
				break
			}
			o.inlineOne(f, site)
		}
	}
}

type callSite struct {
	block *ir.Block
	index int
	stmt  *ir.Statement
	callee *ir.Function
}

func findInlineSite(prog *ir.Program, f *ir.Function) *callSite {
	for _, b := range f.Blocks {
		for i, s := range b.Stmts {
			if s.Op != ir.OpCall && s.Op != ir.OpCallEval {
				continue
			}
			name := s.Operands[0].Text
			callee := prog.FindFunction(name)
			if callee == nil || callee == f {
				continue
			}
			if calleeMakesCalls(callee) {
				continue
			}
			if countStatements(callee) > inlineStatementBudget {
				continue
			}
			return &callSite{block: b, index: i, stmt: s, callee: callee}
		}
	}
	return nil
}

func calleeMakesCalls(f *ir.Function) bool {
	for _, b := range f.Blocks {
		for _, s := range b.Stmts {
			if s.Op == ir.OpCall || s.Op == ir.OpCallEval {
				return true
			}
		}
	}
	return false
}

func countStatements(f *ir.Function) int {
	n := 0
	for _, b := range f.Blocks {
		n += len(b.Stmts)
	}
	return n
}

// inlineOne performs one inlining transformation per spec.md §4.4.4.
func (o *Optimizer) inlineOne(f *ir.Function, site *callSite) {
	inlineCounter++
	prefix := fmt.Sprintf("ic%d_", inlineCounter)

	liveAcross := liveValuesAcross(f, site.stmt)
	spillSlots := map[*ir.Value]*ir.StackSlot{}
	for _, v := range liveAcross {
		slot := f.NewSlot(fmt.Sprintf("%sspill%d", prefix, v.ID), v.Type)
		spillSlots[v] = slot
	}

	split := f.NewBlock(prefix + "cont")
	split.Term = site.block.Term
	split.Targets = site.block.Targets
	split.TargetArgs = site.block.TargetArgs
	split.TermOperands = site.block.TermOperands
	split.Ctrl = site.block.Ctrl

	tail := append([]*ir.Statement{}, site.block.Stmts[site.index+1:]...)
	site.block.Stmts = site.block.Stmts[:site.index]
	for _, s := range tail {
		split.AddStmt(s)
	}

	for v, slot := range spillSlots {
		addr := &ir.Value{ID: o.nextID(), Kind: ir.VStackAddr, Type: ir.IPtr, Slot: slot}
		store := &ir.Statement{ID: o.nextID(), Op: ir.OpStore, Operands: []ir.Operand{ir.ValueOperand(addr), ir.ValueOperand(v)}, Block: site.block}
		v.AddUse(store)
		site.block.Stmts = append(site.block.Stmts, store)
	}

	var retArg *ir.Value
	if site.stmt.Output != nil {
		retArg = &ir.Value{ID: o.nextID(), Kind: ir.VArg, Type: site.stmt.Output.Type, ArgName: prefix + "ret"}
		split.Args = append([]*ir.Value{retArg}, split.Args...)
		site.stmt.Output.ReplaceAllUses(retArg)
	}

	for v, slot := range spillSlots {
		loadAddr := &ir.Value{ID: o.nextID(), Kind: ir.VStackAddr, Type: ir.IPtr, Slot: slot}
		loaded := o.Prog.NewValue(v.Type)
		load := &ir.Statement{ID: o.nextID(), Op: ir.OpLoad, Operands: []ir.Operand{ir.TypeOperand(v.Type), ir.ValueOperand(loadAddr)}, Output: loaded, Block: split}
		loaded.Producer = load
		split.Stmts = append([]*ir.Statement{load}, split.Stmts...)
		replaceUsesAfter(v, site.stmt, loaded)
	}

	cloneEntry := o.cloneCallee(f, site, prefix, split, retArg)

	site.block.SetGoto(cloneEntry, nil)
}

func (o *Optimizer) nextID() int {
	v := o.Prog.NewValue(ir.None)
	return v.ID
}

// liveValuesAcross conservatively approximates spec.md §4.4.4's "spill
// every live-across-call SSA value": any SSA value produced before call
// with at least one use positioned after it.
func liveValuesAcross(f *ir.Function, call *ir.Statement) []*ir.Value {
	var live []*ir.Value
	seen := map[*ir.Value]bool{}
	for _, b := range f.Blocks {
		for _, s := range b.Stmts {
			if s.Output == nil || s.Output.Kind != ir.VSSA || s.ID >= call.ID {
				continue
			}
			for _, u := range s.Output.Uses {
				if u.ID > call.ID && !seen[s.Output] {
					live = append(live, s.Output)
					seen[s.Output] = true
				}
			}
		}
	}
	return live
}

func replaceUsesAfter(v *ir.Value, call *ir.Statement, replacement *ir.Value) {
	for _, u := range append([]*ir.Statement{}, v.Uses...) {
		if u.ID <= call.ID {
			continue
		}
		for i, op := range u.Operands {
			if op.Kind == ir.OperandValue && op.Value == v {
				v.RemoveUse(u)
				u.Operands[i].Value = replacement
				replacement.AddUse(u)
			}
		}
	}
}

// cloneCallee deep-clones site.callee's blocks/statements/values/slots via
// remap tables, binding its formal arguments directly to the call's
// actual argument values (no cloning needed there since they're read-only
// inputs), rewrites its returns into gotos to split, and moves its slots
// into f. Returns the cloned entry block.
func (o *Optimizer) cloneCallee(f *ir.Function, site *callSite, prefix string, split *ir.Block, retArg *ir.Value) *ir.Block {
	callee := site.callee
	blockMap := map[*ir.Block]*ir.Block{}
	valueMap := map[*ir.Value]*ir.Value{}
	slotMap := map[*ir.StackSlot]*ir.StackSlot{}

	for i, arg := range callee.Args {
		valueMap[arg] = site.stmt.Operands[1+i].Value
	}
	for _, slot := range callee.Slots {
		ns := f.NewSlot(prefix+slot.Name, slot.Type)
		slotMap[slot] = ns
	}
	for _, b := range callee.Blocks {
		nb := f.NewBlock(prefix + b.Name)
		blockMap[b] = nb
		for _, a := range b.Args {
			na := &ir.Value{ID: o.nextID(), Kind: ir.VArg, Type: a.Type, ArgName: prefix + a.ArgName}
			valueMap[a] = na
			nb.Args = append(nb.Args, na)
		}
	}

	for _, b := range callee.Blocks {
		nb := blockMap[b]
		for _, s := range b.Stmts {
			ns := cloneStatement(o.Prog, s, valueMap, slotMap, nb)
			nb.AddStmt(ns)
		}
		cloneTerminator(b, nb, blockMap, valueMap, split, retArg)
	}

	return blockMap[callee.Entry()]
}

func cloneValue(prog *ir.Program, v *ir.Value, valueMap map[*ir.Value]*ir.Value, slotMap map[*ir.StackSlot]*ir.StackSlot) *ir.Value {
	if v == nil {
		return nil
	}
	if mapped, ok := valueMap[v]; ok {
		return mapped
	}
	switch v.Kind {
	case ir.VConst:
		nv := prog.NewConst(v.Type, v.Bits)
		valueMap[v] = nv
		return nv
	case ir.VStackAddr:
		nv := &ir.Value{ID: prog.NewValue(ir.None).ID, Kind: ir.VStackAddr, Type: v.Type, Slot: slotMap[v.Slot]}
		valueMap[v] = nv
		return nv
	default:
		// SSA value not yet cloned because it's produced later in the same
		// block; callers clone statements in order so this should not
		// normally happen for well-formed (non-cyclic) IR within a block.
		nv := prog.NewValue(v.Type)
		valueMap[v] = nv
		return nv
	}
}

func cloneStatement(prog *ir.Program, s *ir.Statement, valueMap map[*ir.Value]*ir.Value, slotMap map[*ir.StackSlot]*ir.StackSlot, block *ir.Block) *ir.Statement {
	ns := &ir.Statement{ID: prog.NewValue(ir.None).ID, Op: s.Op, Block: block}
	for _, op := range s.Operands {
		switch op.Kind {
		case ir.OperandValue:
			nv := cloneValue(prog, op.Value, valueMap, slotMap)
			ns.Operands = append(ns.Operands, ir.ValueOperand(nv))
			nv.AddUse(ns)
		case ir.OperandType:
			ns.Operands = append(ns.Operands, ir.TypeOperand(op.Type))
		case ir.OperandText:
			ns.Operands = append(ns.Operands, ir.TextOperand(op.Text))
		case ir.OperandSeparator:
			ns.Operands = append(ns.Operands, ir.SepOperand())
		}
	}
	if s.Output != nil {
		out := prog.NewValue(s.Output.Type)
		out.Producer = ns
		ns.Output = out
		valueMap[s.Output] = out
	}
	return ns
}

func cloneTerminator(b, nb *ir.Block, blockMap map[*ir.Block]*ir.Block, valueMap map[*ir.Value]*ir.Value, split *ir.Block, retArg *ir.Value) {
	switch b.Term {
	case ir.OpReturn:
		var args []*ir.Value
		if retArg != nil && len(b.TermOperands) > 0 {
			args = []*ir.Value{valueMap[b.TermOperands[0]]}
		}
		nb.SetGoto(split, args)
	case ir.OpGoto:
		target := blockMap[b.Targets[0]]
		args := remapValues(b.TargetArgs[0], valueMap)
		nb.SetGoto(target, args)
	case ir.OpIf:
		cond := valueMap[b.Ctrl]
		tt := blockMap[b.Targets[0]]
		ft := blockMap[b.Targets[1]]
		targs := remapValues(b.TargetArgs[0], valueMap)
		fargs := remapValues(b.TargetArgs[1], valueMap)
		nb.SetIf(cond, tt, ft, targs, fargs)
	}
}

func remapValues(vs []*ir.Value, valueMap map[*ir.Value]*ir.Value) []*ir.Value {
	out := make([]*ir.Value, len(vs))
	for i, v := range vs {
		out[i] = valueMap[v]
	}
	return out
}
