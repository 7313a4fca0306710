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

// simulateMoves applies a resolved move list as sequential register copies,
// the same order the encoder would emit them in.
func simulateMoves(moves []Move, initial map[ir.Location]string) map[ir.Location]string {
	state := map[ir.Location]string{}
	for k, v := range initial {
		state[k] = v
	}
	for _, m := range moves {
		state[m.To] = state[m.From]
	}
	return state
}

func TestResolveShuffleDropsNoOpMoves(t *testing.T) {
	a := ir.RegLocation(RAX)
	out := ResolveShuffle([]Move{{From: a, To: a}})
	if len(out) != 0 {
		t.Fatalf("expected a move to itself to be dropped entirely, got %v", out)
	}
}

// TestResolveShuffleOrdersChainCorrectly: x->y, y->z must execute in
// reverse order (y->z first) since overwriting y first would destroy the
// value that y->z still needs to read.
func TestResolveShuffleOrdersChainCorrectly(t *testing.T) {
	x := ir.RegLocation(RAX)
	y := ir.RegLocation(RBX)
	z := ir.RegLocation(RCX)
	moves := []Move{{From: x, To: y}, {From: y, To: z}}
	out := ResolveShuffle(moves)

	final := simulateMoves(out, map[ir.Location]string{x: "X", y: "Y", z: "Z"})
	if final[y] != "X" || final[z] != "Y" {
		t.Fatalf("chain shuffle produced wrong result: y=%v z=%v", final[y], final[z])
	}
}

// TestResolveShuffleBreaksThreeCycle covers the textbook pathological case:
// a pure rotation (a->b, b->c, c->a) has no move whose destination is
// nobody else's source, so the resolver must break it via the scratch
// register and still produce the correct rotated result.
func TestResolveShuffleBreaksThreeCycle(t *testing.T) {
	a := ir.RegLocation(RAX)
	b := ir.RegLocation(RBX)
	c := ir.RegLocation(RCX)
	moves := []Move{{From: a, To: b}, {From: b, To: c}, {From: c, To: a}}
	out := ResolveShuffle(moves)

	final := simulateMoves(out, map[ir.Location]string{a: "A", b: "B", c: "C"})
	if final[a] != "C" || final[b] != "A" || final[c] != "B" {
		t.Fatalf("3-cycle rotation produced wrong result: %v", final)
	}

	scratch := ir.RegLocation(IntScratch)
	usedScratch := false
	for _, m := range out {
		if m.To == scratch || m.From == scratch {
			usedScratch = true
		}
	}
	if !usedScratch {
		t.Fatalf("expected the 3-cycle to be broken via the scratch register, got %v", out)
	}
}

// TestResolveShuffleBreaksFourCycle extends the 3-cycle case to a 4-register
// rotation, since the cycle-breaking path must generalize past the smallest
// pathological case rather than happening to work only for exactly 3.
func TestResolveShuffleBreaksFourCycle(t *testing.T) {
	a := ir.RegLocation(RAX)
	b := ir.RegLocation(RBX)
	c := ir.RegLocation(RCX)
	d := ir.RegLocation(RDX)
	moves := []Move{{From: a, To: b}, {From: b, To: c}, {From: c, To: d}, {From: d, To: a}}
	out := ResolveShuffle(moves)

	final := simulateMoves(out, map[ir.Location]string{a: "A", b: "B", c: "C", d: "D"})
	if final[a] != "D" || final[b] != "A" || final[c] != "B" || final[d] != "C" {
		t.Fatalf("4-cycle rotation produced wrong result: %v", final)
	}

	scratch := ir.RegLocation(IntScratch)
	usedScratch := false
	for _, m := range out {
		if m.To == scratch || m.From == scratch {
			usedScratch = true
		}
	}
	if !usedScratch {
		t.Fatalf("expected the 4-cycle to be broken via the scratch register, got %v", out)
	}
}

func TestResolveShuffleFloatCycleUsesFloatScratch(t *testing.T) {
	a := ir.RegLocation(XMM0)
	b := ir.RegLocation(XMM1)
	moves := []Move{{From: a, To: b, IsFloat: true}, {From: b, To: a, IsFloat: true}}
	out := ResolveShuffle(moves)

	scratch := ir.RegLocation(FloatScratch)
	usedScratch := false
	for _, m := range out {
		if m.To == scratch || m.From == scratch {
			usedScratch = true
		}
	}
	if !usedScratch {
		t.Fatalf("expected the float 2-cycle to be broken via the float scratch register, got %v", out)
	}
}
