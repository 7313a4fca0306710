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

// Command bbae is the thin CLI wrapper of spec.md §6: read a textual IR
// file, run the fixed pipeline, print a debug disassembly, look up `main`
// and call it. Grounded on the teacher's main.go (a two-line argument
// check handing off to compile.CompileTheWorld), generalized to drive this
// back-end's Construct/Optimize/Lower/Free JIT API instead.
package main

import (
	"fmt"
	"os"

	"golang.org/x/arch/x86/x86asm"

	"github.com/wareya/bbae/internal/codegen"
	"github.com/wareya/bbae/internal/ir"
	"github.com/wareya/bbae/internal/jit"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Println("Usage: bbae <file.ir>")
		os.Exit(1)
	}

	source, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	prog, err := jit.Construct(string(source))
	if err != nil {
		reportAndExit(err)
	}
	prog.Optimize()
	if err := prog.Lower(codegen.DefaultABI()); err != nil {
		reportAndExit(err)
	}
	defer prog.Free()

	disassemble(prog)

	addr, ok := prog.Symbol("main")
	if !ok {
		fmt.Fprintln(os.Stderr, "error: no `main` function defined")
		os.Exit(1)
	}

	// spec.md §6: main is always called as fn(int,int) -> int|double; this
	// CLI always passes 0,0 since it has no way to forward further
	// arguments from the command line without a richer calling convention.
	result := jit.CallInt2(addr, 0, 0)
	fmt.Println(result)
}

// disassemble prints every compiled function's bytes via x86asm, the same
// debug aid the `prog` CLI promises in spec.md §6. Purely informational:
// a decode failure partway through silently ends that function's listing
// rather than aborting the run.
func disassemble(prog *jit.Program) {
	code := prog.CodeBytes()
	for name, off := range prog.Symbols() {
		fmt.Printf("; %s:\n", name)
		pos := off
		for pos < len(code) {
			inst, err := x86asm.Decode(code[pos:], 64)
			if err != nil || inst.Len == 0 {
				break
			}
			fmt.Printf("  %#06x  %s\n", pos, x86asm.GNUSyntax(inst, uint64(pos), nil))
			pos += inst.Len
			if inst.Op == x86asm.RET {
				break
			}
		}
	}
}

func reportAndExit(err error) {
	if ce, ok := ir.AsCompileError(err); ok {
		fmt.Fprintf(os.Stderr, "compile error: %s\n", ce.Error())
	} else {
		fmt.Fprintf(os.Stderr, "compile error: %v\n", err)
	}
	os.Exit(1)
}
