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

import "testing"

func mustParse(t *testing.T, src string) *Program {
	t.Helper()
	prog, err := ParseProgram(src)
	if err != nil {
		t.Fatalf("ParseProgram failed: %v", err)
	}
	SplitBlocks(prog)
	ConnectEdges(prog)
	if err := Verify(prog); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	return prog
}

func TestParseSimpleReturn(t *testing.T) {
	prog := mustParse(t, `
func main returns i64
	return 42i64
endfunc
`)
	if len(prog.Functions) != 1 {
		t.Fatalf("expected 1 function, got %d", len(prog.Functions))
	}
	f := prog.Functions[0]
	if f.Name != "main" || !f.RetType.Equal(I64) {
		t.Fatalf("unexpected function header: %s %s", f.Name, f.RetType)
	}
	entry := f.Entry()
	if entry.Term != OpReturn || len(entry.TermOperands) != 1 {
		t.Fatalf("expected single-value return terminator, got %s", entry.TermString())
	}
	if !IsConst(entry.TermOperands[0]) || int64(entry.TermOperands[0].Bits) != 42 {
		t.Fatalf("expected constant 42, got %s", entry.TermOperands[0])
	}
}

func TestParseArithmeticAndArgs(t *testing.T) {
	prog := mustParse(t, `
func add returns i64
arg a i64
arg b i64
	%sum = add a, b
	return %sum
endfunc
`)
	f := prog.Functions[0]
	if len(f.Args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(f.Args))
	}
	entry := f.Entry()
	if len(entry.Stmts) != 1 || entry.Stmts[0].Op != OpAdd {
		t.Fatalf("expected single add statement, got %v", entry.Stmts)
	}
	out := entry.Stmts[0].Output
	if out.NumUses() != 1 {
		t.Fatalf("expected sum to be used once (by return), got %d", out.NumUses())
	}
}

func TestParseStackSlotAndIf(t *testing.T) {
	prog := mustParse(t, `
func main returns i64
stack_slot counter i64
	store &counter, 0i64
	goto loop
block loop
	%v = load i64, &counter
	%c = cmp_lt %v, 3i64
	if %c goto body else done
block body
	%next = add %v, 1i64
	store &counter, %next
	goto loop
block done
	%final = load i64, &counter
	return %final
endfunc
`)
	f := prog.Functions[0]
	if len(f.Slots) != 1 {
		t.Fatalf("expected one stack slot, got %d", len(f.Slots))
	}
	loop := f.FindBlock("loop")
	if loop == nil || loop.Term != OpIf {
		t.Fatalf("expected loop block ending in if")
	}
	if len(loop.Preds) != 2 {
		t.Fatalf("expected loop to have 2 predecessors (entry, body), got %d", len(loop.Preds))
	}
}

func TestParseRejectsUndefinedReference(t *testing.T) {
	_, err := ParseProgram(`
func main returns i64
	return %nope
endfunc
`)
	if err == nil {
		t.Fatalf("expected an error for an undefined reference")
	}
	ce, ok := AsCompileError(err)
	if !ok || ce.Kind != ErrParseUndefinedReference {
		t.Fatalf("expected ErrParseUndefinedReference, got %v", err)
	}
}

func TestParseRejectsRedefinition(t *testing.T) {
	_, err := ParseProgram(`
func main returns i64
	%x = mov 1i64
	%x = mov 2i64
	return %x
endfunc
`)
	if err == nil {
		t.Fatalf("expected an error for redefining %%x")
	}
	ce, ok := AsCompileError(err)
	if !ok || ce.Kind != ErrParseRedefinition {
		t.Fatalf("expected ErrParseRedefinition, got %v", err)
	}
}

func TestInferOutputTypeForComparison(t *testing.T) {
	prog := mustParse(t, `
func main returns i64
	%c = cmp_eq 1i64, 1i64
	%r = uint_to_float f64, %c
	return 0i64
endfunc
`)
	entry := prog.Functions[0].Entry()
	cmp := entry.Stmts[0]
	if !cmp.Output.Type.Equal(I8) {
		t.Fatalf("comparison output should be i8, got %s", cmp.Output.Type)
	}
	conv := entry.Stmts[1]
	if !conv.Output.Type.Equal(F64) {
		t.Fatalf("uint_to_float output should inherit the type operand, got %s", conv.Output.Type)
	}
}
