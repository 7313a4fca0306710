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
	"unsafe"

	"github.com/wareya/bbae/internal/codegen"
	"github.com/wareya/bbae/internal/ir"
	"github.com/wareya/bbae/internal/opt"
)

// Program is spec.md §6's "JIT API": construct, optimize, lower, free, in
// that fixed order. It owns the two placed memory regions (code and
// static data) once Lower has run.
type Program struct {
	ir *ir.Program

	code    *Memory
	data    *Memory
	symbols map[string]int // function name -> byte offset within code
}

// Construct parses textual IR into a Program, runs the block splitter's
// checks and wires CFG edges, but does not run the optimizer (spec.md §6's
// first of four operations).
func Construct(text string) (*Program, error) {
	prog, err := ir.ParseProgram(text)
	if err != nil {
		return nil, err
	}
	ir.SplitBlocks(prog)
	ir.ConnectEdges(prog)
	if err := ir.Verify(prog); err != nil {
		return nil, err
	}
	return &Program{ir: prog}, nil
}

// Optimize runs the fixed optimization pipeline (spec.md §4.4), the second
// of the JIT API's four operations.
func (p *Program) Optimize() {
	o := &opt.Optimizer{Prog: p.ir}
	o.Run()
}

// Lower legalizes, allocates registers, emits machine code for every
// function, resolves relocations, and places the result into executable
// memory near the process (spec.md §4.5-§4.8), the third of the JIT API's
// four operations.
func (p *Program) Lower(abi codegen.ABIKind) error {
	for _, f := range p.ir.Functions {
		ir.LegalizeFunction(p.ir, f)
	}

	buf := codegen.NewEncoder()
	symbols := map[string]int{}
	var relocs []ir.Relocation
	for _, f := range p.ir.Functions {
		alloc := codegen.NewAllocator(abi, codegen.Layout(f, 0))
		frame := alloc.Frame
		alloc.AllocateFunction(f)
		frame.FinalizeSpill(alloc.SpillBytes())

		em := codegen.NewEmitter(p.ir, alloc, frame, abi)
		entry := buf.Len() + em.EmitFunction(f)
		symbols[f.Name] = entry
		// em.Enc holds this function's own bytes at offset 0; splice them
		// into the shared buffer and rebase its relocation sites.
		base := buf.Len()
		buf.Buf = append(buf.Buf, em.Enc.Buf...)
		for _, r := range em.CallRelocs {
			r.SiteOffset += base
			relocs = append(relocs, r)
		}
	}

	statics := map[*ir.StaticData]int{}
	var staticBytes []byte
	for _, s := range p.ir.Statics {
		statics[s] = len(staticBytes)
		staticBytes = append(staticBytes, s.Bytes...)
	}

	codeMem, err := AllocNear(len(buf.Buf))
	if err != nil {
		return ir.NewError(ir.ErrJITNoNearMemory, 0, "jit: %v", err)
	}
	dataMem, err := AllocNear(len(staticBytes))
	if err != nil {
		codeMem.Release()
		return ir.NewError(ir.ErrJITNoNearMemory, 0, "jit: %v", err)
	}

	// Every locally defined function resolves against its own placed
	// address; relocations against names absent from this table are
	// genuinely external and are left for the caller to supply.
	resolvedSymbols := map[string]uintptr{}
	for name, off := range symbols {
		resolvedSymbols[name] = codeMem.Addr() + uintptr(off)
	}

	resolver := &codegen.Resolver{
		Module: &codegen.Module{
			Code:        buf.Buf,
			FuncOffsets: symbols,
			Statics:     statics,
			StaticBytes: staticBytes,
			Relocations: relocs,
		},
		CodeBase:   codeMem.Addr(),
		StaticBase: dataMem.Addr(),
		Symbols:    resolvedSymbols,
	}
	resolver.Resolve()

	codeMem.Write(resolver.Module.Code)
	if err := codeMem.Finalize(); err != nil {
		return err
	}
	if len(staticBytes) > 0 {
		dataMem.Write(staticBytes)
		if err := dataMem.Finalize(); err != nil {
			return err
		}
	}

	p.code = codeMem
	p.data = dataMem
	p.symbols = symbols
	return nil
}

// CodeBytes exposes the placed code region's contents for debug
// disassembly (spec.md §6's CLI wrapper); callers must not mutate it.
func (p *Program) CodeBytes() []byte {
	return p.code.Bytes()
}

// Symbols exposes the function-name-to-offset table for debug
// disassembly.
func (p *Program) Symbols() map[string]int {
	return p.symbols
}

// Symbol looks up a compiled function's entry point as a raw address, to
// be passed to CallInt2 or CallFloat2. The caller is responsible for
// knowing the function's actual arity and types; spec.md §6's CLI only
// ever needs the `(i64, i64) -> i64` and `(i64, i64) -> f64` shapes.
func (p *Program) Symbol(name string) (uintptr, bool) {
	off, ok := p.symbols[name]
	if !ok {
		return 0, false
	}
	return p.code.Addr() + uintptr(off), true
}

// CallInt2 invokes a compiled `(i64, i64) -> i64` function by raw address,
// the shape spec.md §6's CLI wrapper uses.
func CallInt2(addr uintptr, a, b int64) int64 {
	code := &addr
	fn := *(*func(int64, int64) int64)(unsafe.Pointer(&code))
	return fn(a, b)
}

// CallFloat2 invokes a compiled `(i64, i64) -> f64` function by raw
// address.
func CallFloat2(addr uintptr, a, b int64) float64 {
	code := &addr
	fn := *(*func(int64, int64) float64)(unsafe.Pointer(&code))
	return fn(a, b)
}

// Free releases every JIT-allocated memory region (spec.md §6's fourth
// operation). The Program must not be used afterward.
func (p *Program) Free() error {
	var firstErr error
	if p.code != nil {
		if err := p.code.Release(); err != nil {
			firstErr = err
		}
	}
	if p.data != nil {
		if err := p.data.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
