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

import (
	"testing"

	"github.com/wareya/bbae/internal/ir"
)

func mustParse(t *testing.T, src string) *ir.Program {
	t.Helper()
	prog, err := ir.ParseProgram(src)
	if err != nil {
		t.Fatalf("ParseProgram failed: %v", err)
	}
	ir.SplitBlocks(prog)
	ir.ConnectEdges(prog)
	if err := ir.Verify(prog); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	return prog
}

// TestAssignArgsSysVOrder checks that function arguments are pre-bound to
// the SysV integer/float argument registers in declaration order.
func TestAssignArgsSysVOrder(t *testing.T) {
	prog := mustParse(t, `
func f returns i64
arg a i64
arg b i64
arg c f64
	return a
endfunc
`)
	f := prog.Functions[0]
	alloc := NewAllocator(ABISysV, Layout(f, 0))
	alloc.assignArgs(f)

	wantReg := []int{RDI, RSI}
	for i, want := range wantReg {
		loc, ok := alloc.Location(f.Args[i])
		if !ok || !loc.IsReg() || loc.Reg != want {
			t.Fatalf("arg %d: expected reg %d, got %v (ok=%v)", i, want, loc, ok)
		}
	}
	loc, ok := alloc.Location(f.Args[2])
	if !ok || !loc.IsReg() || loc.Reg != XMM0 {
		t.Fatalf("float arg: expected xmm0, got %v (ok=%v)", loc, ok)
	}
}

// TestReuseCandidateOnLastUse covers spec.md §4.6's output-register-reuse
// rule: `%y = add %x, %x` should bind y to x's own register, since x's last
// (second) use is exactly this statement and add is commutative.
func TestReuseCandidateOnLastUse(t *testing.T) {
	prog := mustParse(t, `
func main returns i64
	%x = mov 5i64
	%y = add %x, %x
	return %y
endfunc
`)
	f := prog.Functions[0]
	entry := f.Entry()
	xVal := entry.Stmts[0].Output
	yVal := entry.Stmts[1].Output

	alloc := NewAllocator(ABISysV, Layout(f, 0))
	alloc.AllocateFunction(f)

	xLoc, ok := alloc.Location(xVal)
	if !ok || !xLoc.IsReg() {
		t.Fatalf("expected x to have a register location, got %v (ok=%v)", xLoc, ok)
	}
	yLoc, ok := alloc.Location(yVal)
	if !ok || !yLoc.IsReg() {
		t.Fatalf("expected y to have a register location, got %v (ok=%v)", yLoc, ok)
	}
	if yLoc.Reg != xLoc.Reg {
		t.Fatalf("expected y to reuse x's register %d, got %d", xLoc.Reg, yLoc.Reg)
	}
}

// TestSpillVictimPicksFurthestNextUse is a white-box test of the spill
// victim rule: among two register-resident values, the one with more
// remaining uses ("far", 4 left) gets spilled, not the one with fewer
// ("near", 1 left).
func TestSpillVictimPicksFurthestNextUse(t *testing.T) {
	frame := &Frame{SlotOffsets: map[*ir.StackSlot]int{}, SpillBase: -8}
	a := NewAllocator(ABISysV, frame)

	near := &ir.Value{ID: 1, Kind: ir.VSSA, Type: ir.I64}
	far := &ir.Value{ID: 2, Kind: ir.VSSA, Type: ir.I64}
	dummy := &ir.Statement{ID: 99}
	for i := 0; i < 3; i++ {
		near.AddUse(dummy)
	}
	for i := 0; i < 5; i++ {
		far.AddUse(dummy)
	}

	a.actives[near] = &Interval{Value: near, Loc: ir.RegLocation(RAX), AllocedUses: 2} // 1 use remaining
	a.actives[far] = &Interval{Value: far, Loc: ir.RegLocation(RCX), AllocedUses: 1}   // 4 uses remaining

	freed := a.spillVictim(false)
	if freed.Reg != RCX {
		t.Fatalf("expected far's register (rcx=%d) to be freed, got %v", RCX, freed)
	}
	if !a.actives[far].Loc.IsSpill() {
		t.Fatalf("expected far to be moved to a spill slot, got %v", a.actives[far].Loc)
	}
	if a.actives[near].Loc != ir.RegLocation(RAX) {
		t.Fatalf("expected near to keep its register, got %v", a.actives[near].Loc)
	}
}

// TestBlockArgInheritsPredecessorRegister covers spec.md §4.6's
// block-argument allocation: an argument inherits the register its single
// predecessor already passes in that position, when that register is free
// in the successor's fresh working state.
func TestBlockArgInheritsPredecessorRegister(t *testing.T) {
	prog := ir.NewProgram()
	f := prog.NewFunction("f", ir.I64)
	entry := f.NewBlock("entry")
	next := f.NewBlock("next")

	prog.CurBlock = entry
	v := prog.NewConst(ir.I64, 7)
	nextArg := &ir.Value{ID: prog.NewValue(ir.None).ID, Kind: ir.VArg, Type: ir.I64, ArgName: "v"}
	next.Args = []*ir.Value{nextArg}
	entry.SetGoto(next, []*ir.Value{v})
	next.SetReturn(nextArg)

	ir.ConnectEdges(prog)

	alloc := NewAllocator(ABISysV, Layout(f, 0))
	// Simulate entry having already allocated v to rbx and finished its block.
	alloc.final[v] = ir.RegLocation(RBX)
	alloc.assignBlockArgs(next)

	loc, ok := alloc.Location(nextArg)
	if !ok || !loc.IsReg() || loc.Reg != RBX {
		t.Fatalf("expected nextArg to inherit rbx, got %v (ok=%v)", loc, ok)
	}
}
