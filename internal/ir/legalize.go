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

// LegalizeFunction applies spec.md §4.5's two per-statement rules to every
// statement already in f. Passes that synthesize new statements (the
// optimizer, the inliner) call LegalizeStatement directly on each new
// statement as they build it, mirroring "run as each statement is
// appended" — this whole-function entry point is for legalizing IR that
// arrived already built, e.g. straight out of the parser.
func LegalizeFunction(prog *Program, f *Function) {
	for _, b := range f.Blocks {
		prog.CurBlock = b
		// Copy the slice since LegalizeStatement may insert before stmts.
		stmts := append([]*Statement{}, b.Stmts...)
		for _, s := range stmts {
			LegalizeStatement(prog, b, s)
		}
	}
}

// LegalizeStatement rewrites s in place, inserting materializing `mov`
// statements immediately before it as needed.
func LegalizeStatement(prog *Program, b *Block, s *Statement) {
	legalizeStackAddrs(prog, b, s)
	legalizeImmediates(prog, b, s)
}

// legalizeStackAddrs implements rule 1: a STACKADDR operand feeding
// anything but {load, store, mov} must first be materialized into an SSA
// register value via a `mov`.
func legalizeStackAddrs(prog *Program, b *Block, s *Statement) {
	if s.Op == OpLoad || s.Op == OpStore || s.Op == OpMov {
		return
	}
	for i, op := range s.Operands {
		if op.Kind != OperandValue || op.Value == nil || op.Value.Kind != VStackAddr {
			continue
		}
		mov := insertBefore(prog, b, s, OpMov, IPtr, ValueOperand(op.Value))
		s.ReplaceValueAt(i, mov.Output)
	}
}

// legalizeImmediates implements rule 2: a CONST operand in a position the
// opcode disallows must be materialized into an SSA register value.
func legalizeImmediates(prog *Program, b *Block, s *Statement) {
	info := s.Op.Info()
	valuePos := 0
	for i, op := range s.Operands {
		if op.Kind != OperandValue || op.Value == nil {
			continue
		}
		if op.Value.Kind == VConst && valuePos < 8 && !info.ImmAllowed[valuePos] {
			mov := insertBefore(prog, b, s, OpMov, op.Value.Type, ValueOperand(op.Value))
			s.ReplaceValueAt(i, mov.Output)
		}
		valuePos++
	}
}

// insertBefore splices a new statement into b immediately before s,
// wiring its sole operand's use edge and allocating its output value.
func insertBefore(prog *Program, b *Block, s *Statement, op Op, outType *Type, operand Operand) *Statement {
	stmt := &Statement{ID: prog.nextStmtID(), Op: op, Operands: []Operand{operand}, Block: b}
	if operand.Kind == OperandValue && operand.Value != nil {
		operand.Value.AddUse(stmt)
	}
	out := prog.NewValue(outType)
	out.Producer = stmt
	stmt.Output = out

	for i, st := range b.Stmts {
		if st == s {
			b.Stmts = append(b.Stmts[:i], append([]*Statement{stmt}, b.Stmts[i:]...)...)
			return stmt
		}
	}
	b.Stmts = append(b.Stmts, stmt)
	return stmt
}
