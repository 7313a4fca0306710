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
	"github.com/wareya/bbae/internal/ir"
)

// Interval tracks one value's current allocation state during a block's
// scan, mirroring the teacher's lsra.go vocabulary (Interval, workList,
// actives) generalized from global-liveness LSRA to the per-block model
// spec.md §4.6 actually specifies.
type Interval struct {
	Value       *ir.Value
	Loc         ir.Location
	AllocedUses int // how many of Value's uses have been consumed so far
}

// Allocator performs per-block linear-scan register allocation (spec.md
// §4.6); its spill victim is chosen by outstanding use count (see
// spillVictim).
type Allocator struct {
	ABI   ABIKind
	Frame *Frame

	actives map[*ir.Value]*Interval
	// final records every value's last-known location after its defining
	// block finished processing, so a later block can still ask "what
	// register did the predecessor leave this in" for inheritance
	// (spec.md §4.6's block-argument allocation) after `actives` itself
	// has been reset for the new block's own occupancy tracking.
	final  map[*ir.Value]ir.Location
	spillN int
	// fn is the function AllocateFunction is processing; bind records the
	// integer registers it hands out in fn.WrittenRegs.
	fn *ir.Function
}

func NewAllocator(abi ABIKind, frame *Frame) *Allocator {
	return &Allocator{ABI: abi, Frame: frame, actives: map[*ir.Value]*Interval{}, final: map[*ir.Value]ir.Location{}}
}

// AllocateFunction assigns machine locations to every value defined in f,
// walking blocks in their existing order (spec.md §4.6 is explicitly
// per-block, not a global fixed point).
func (a *Allocator) AllocateFunction(f *ir.Function) {
	a.fn = f
	for i, b := range f.Blocks {
		a.actives = map[*ir.Value]*Interval{}
		if i == 0 {
			a.assignArgs(f)
		} else {
			a.assignBlockArgs(b)
		}
		for _, s := range b.Stmts {
			a.allocateStatement(f, b, s)
			a.freeDeadValues()
		}
		for v, iv := range a.actives {
			a.final[v] = iv.Loc
		}
	}
}

// assignArgs implements spec.md §4.6's "entry-block allocation": function
// arguments are pre-assigned by walking the ABI state machine in
// declaration order.
func (a *Allocator) assignArgs(f *ir.Function) {
	state := NewArgState(a.ABI)
	for _, arg := range f.Args {
		loc := state.Next(arg.Type)
		if loc.IsReg {
			a.bind(arg, ir.RegLocation(loc.Reg))
		} else {
			a.bind(arg, ir.SpillLocation(loc.Offset))
		}
	}
}

// assignBlockArgs implements spec.md §4.6's block-argument allocation:
// each argument tries to inherit the register an untouched predecessor
// already passes in that position, falling back to the first free
// register of the correct class.
func (a *Allocator) assignBlockArgs(b *ir.Block) {
	for i, arg := range b.Args {
		loc, ok := a.inheritedLoc(b, i)
		if !ok {
			loc = a.firstFree(arg.Type)
		}
		a.bind(arg, loc)
	}
}

func (a *Allocator) inheritedLoc(b *ir.Block, argIdx int) (ir.Location, bool) {
	for _, pred := range b.Preds {
		for ti, t := range pred.Targets {
			if t != b || argIdx >= len(pred.TargetArgs[ti]) {
				continue
			}
			src := pred.TargetArgs[ti][argIdx]
			if loc, ok := a.final[src]; ok && !a.occupied(loc) {
				return loc, true
			}
		}
	}
	return ir.Location{}, false
}

func (a *Allocator) occupied(loc ir.Location) bool {
	for _, iv := range a.actives {
		if iv.Loc == loc {
			return true
		}
	}
	return false
}

// allocateStatement implements spec.md §4.6's per-statement rule: reuse a
// last-used operand's register when legal, otherwise take the first free
// register, otherwise spill the active value with the most uses left.
func (a *Allocator) allocateStatement(f *ir.Function, b *ir.Block, s *ir.Statement) {
	a.consumeOperands(s)
	a.applyClobbers(f, s)
	if s.Output == nil {
		return
	}

	if reuse, ok := a.reuseCandidate(s); ok {
		a.bind(s.Output, reuse)
		return
	}

	class := s.Output.Type.IsFloat()
	loc, ok := a.tryFree(class)
	if !ok {
		loc = a.spillVictim(class)
	}
	a.bind(s.Output, loc)
}

// consumeOperands increments each operand's alloced-use counter; when it
// reaches the value's total use count, the register becomes eligible for
// reuse/freeing.
func (a *Allocator) consumeOperands(s *ir.Statement) {
	for _, v := range s.Values() {
		if iv, ok := a.actives[v]; ok {
			iv.AllocedUses++
		}
	}
}

// reuseCandidate implements the output-register-reuse rule: an operand
// at its last use, of the correct class, may donate its register to the
// statement's output. Commutative opcodes consider every operand position;
// non-commutative opcodes only the first.
func (a *Allocator) reuseCandidate(s *ir.Statement) (ir.Location, bool) {
	vals := s.Values()
	info := s.Op.Info()
	limit := 1
	if info.Commutative {
		limit = len(vals)
	}
	for i, v := range vals {
		if i >= limit {
			break
		}
		iv, ok := a.actives[v]
		if !ok || iv.AllocedUses < v.NumUses() {
			continue
		}
		if v.Type.IsFloat() != s.Output.Type.IsFloat() {
			continue
		}
		return iv.Loc, true
	}
	return ir.Location{}, false
}

func (a *Allocator) tryFree(isFloat bool) (ir.Location, bool) {
	pool := AllocatableIntRegs
	if isFloat {
		pool = AllocatableFloatRegs
	}
	for _, r := range pool {
		loc := ir.RegLocation(r)
		if !a.occupied(loc) {
			return loc, true
		}
	}
	return ir.Location{}, false
}

func (a *Allocator) firstFree(t *ir.Type) ir.Location {
	loc, ok := a.tryFree(t.IsFloat())
	if ok {
		return loc
	}
	return a.spillVictim(t.IsFloat())
}

// spillVictim spills whichever currently active register-resident value of
// the requested class has the most outstanding uses (a value with no use
// left counts as the largest), as measured by nextUseDistance. It does not
// look at where in the block those uses are, so the victim is not
// necessarily the value whose next use is furthest away.
func (a *Allocator) spillVictim(isFloat bool) ir.Location {
	var victim *Interval
	furthest := -1
	for _, iv := range a.actives {
		if iv.Value.Type.IsFloat() != isFloat {
			continue
		}
		if !iv.Loc.IsReg() {
			continue
		}
		dist := a.nextUseDistance(iv.Value)
		if dist > furthest {
			furthest = dist
			victim = iv
		}
	}
	if victim == nil {
		// No reg-resident value of this class: spill to a fresh stack
		// slot directly.
		a.spillN += 8
		return ir.SpillLocation(a.Frame.SpillBase - a.spillN)
	}
	freedLoc := victim.Loc
	a.spillN += 8
	victim.Loc = ir.SpillLocation(a.Frame.SpillBase - a.spillN)
	return freedLoc
}

func (a *Allocator) nextUseDistance(v *ir.Value) int {
	remaining := v.NumUses() - a.actives[v].AllocedUses
	if remaining <= 0 {
		return 1 << 30
	}
	return remaining
}

// applyClobbers implements spec.md §4.6's clobber rules: before the output
// is chosen (so the output can still be given a freed clobbered register),
// any live value occupying a clobbered register that outlives this
// statement is spilled before the statement executes.
func (a *Allocator) applyClobbers(f *ir.Function, s *ir.Statement) {
	for _, reg := range clobberSet(s) {
		f.WrittenRegs[reg] = true
		for _, iv := range a.actives {
			if iv.Loc == ir.RegLocation(reg) && a.nextUseDistance(iv.Value) < (1<<30) {
				a.spillN += 8
				iv.Loc = ir.SpillLocation(a.Frame.SpillBase - a.spillN)
			}
		}
	}
}

// clobberSet implements spec.md §4.6's opcode-specific rules excerpt. The
// hardware div/idiv instruction always overwrites both the accumulator and
// the data register (quotient in RAX, remainder in RDX) regardless of
// which half the statement actually wants, so both must be declared
// clobbered for div and rem alike; the byte form declares only RAX, since
// an 8-bit division operates on AX alone and never touches RDX.
func clobberSet(s *ir.Statement) []int {
	switch s.Op {
	case ir.OpDiv, ir.OpIDiv, ir.OpRem, ir.OpIRem:
		if s.Output != nil && s.Output.Type.Size() == 1 {
			return []int{RAX}
		}
		return []int{RAX, RDX}
	case ir.OpShl, ir.OpShr, ir.OpSar:
		vals := s.Values()
		if len(vals) == 2 && vals[1].Kind != ir.VConst {
			return []int{RCX}
		}
		return nil
	case ir.OpCall, ir.OpCallEval:
		return append(append([]int{}, CallerSavedInt()...), CallerSavedFloat()...)
	default:
		return nil
	}
}

func (a *Allocator) bind(v *ir.Value, loc ir.Location) {
	if a.fn != nil && loc.IsReg() && !v.Type.IsFloat() {
		a.fn.WrittenRegs[loc.Reg] = true
	}
	a.actives[v] = &Interval{Value: v, Loc: loc}
}

func (a *Allocator) freeDeadValues() {
	for v, iv := range a.actives {
		if iv.AllocedUses >= v.NumUses() {
			a.final[v] = iv.Loc
			delete(a.actives, v)
		}
	}
}

// SpillBytes reports how many bytes of spill area the allocation pass
// consumed, so the caller can finalize the frame's total size once
// allocation is complete (frame layout must happen before allocation to
// fix SpillBase, but the spill count itself is only known afterward).
func (a *Allocator) SpillBytes() int { return a.spillN }

// Location looks up a value's assigned machine location; callers must
// call this only after AllocateFunction has processed the value's
// defining block.
func (a *Allocator) Location(v *ir.Value) (ir.Location, bool) {
	if iv, ok := a.actives[v]; ok {
		return iv.Loc, true
	}
	loc, ok := a.final[v]
	return loc, ok
}
