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
package jit

import (
	"testing"

	"github.com/wareya/bbae/internal/codegen"
)

func compileAndRun(t *testing.T, src string, a, b int64) int64 {
	t.Helper()
	prog, err := Construct(src)
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}
	prog.Optimize()
	if err := prog.Lower(codegen.ABISysV); err != nil {
		t.Fatalf("Lower failed: %v", err)
	}
	defer func() {
		if err := prog.Free(); err != nil {
			t.Fatalf("Free failed: %v", err)
		}
	}()

	addr, ok := prog.Symbol("main")
	if !ok {
		t.Fatalf("main symbol not found")
	}
	return CallInt2(addr, a, b)
}

// TestProgramReturnsConstant covers the simplest possible JIT round trip:
// construct, optimize, lower, run, free.
func TestProgramReturnsConstant(t *testing.T) {
	got := compileAndRun(t, `
func main returns i64
	return 42i64
endfunc
`, 0, 0)
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

// TestProgramAddsArguments exercises the SysV argument-register binding
// path end to end through the real encoder and allocator.
func TestProgramAddsArguments(t *testing.T) {
	got := compileAndRun(t, `
func main returns i64
arg a i64
arg b i64
	%sum = add a, b
	return %sum
endfunc
`, 3, 4)
	if got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}

// TestProgramInlinesCallEval runs the call_eval inlining pipeline all the
// way to execution: after Optimize the callee must be inlined away, and
// the computed result must still be correct.
func TestProgramInlinesCallEval(t *testing.T) {
	got := compileAndRun(t, `
func double returns i64
arg x i64
	%r = add x, x
	return %r
endfunc

func main returns i64
arg a i64
	%v = call_eval double, a
	%r = add %v, 1i64
	return %r
endfunc
`, 10, 0)
	if got != 21 {
		t.Fatalf("expected 21, got %d", got)
	}
}

// TestProgramLoopSumsToFixedPoint mirrors the documented mem2reg scenario
// through the full pipeline: a stack-slot accumulator promoted to a
// register, threaded through a loop's block arguments, producing the
// correct sum once actually executed.
func TestProgramLoopSumsToFixedPoint(t *testing.T) {
	got := compileAndRun(t, `
func main returns i64
stack_slot sum i64
stack_slot i i64
	store &sum, 0i64
	store &i, 1i64
	goto loop
block loop
	%iv = load i64, &i
	%cond = cmp_lt %iv, 11i64
	if %cond goto body else done
block body
	%sv = load i64, &sum
	%nsum = add %sv, %iv
	store &sum, %nsum
	%ni = add %iv, 1i64
	store &i, %ni
	goto loop
block done
	%final = load i64, &sum
	return %final
endfunc
`, 0, 0)
	if got != 55 {
		t.Fatalf("expected 55, got %d", got)
	}
}
