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
	"github.com/wareya/bbae/internal/utils"
)

// Module is the finished output of codegen: one flat machine-code buffer
// shared by every function, a symbol table mapping function names to their
// entry offset, and the outstanding relocation log (spec.md §4.7/§4.8).
type Module struct {
	Code        []byte
	FuncOffsets map[string]int
	Statics     map[*ir.StaticData]int // offset within StaticBytes
	StaticBytes []byte
	Relocations []ir.Relocation
}

// Resolver patches every relocation in a finished Module once every
// function's code offset and every static blob's data offset is known,
// per spec.md §4.7's three-table description (labels, statics, symbols).
type Resolver struct {
	Module     *Module
	CodeBase   uintptr // runtime address Module.Code will be copied to
	StaticBase uintptr // runtime address Module.StaticBytes will be copied to
	Symbols    map[string]uintptr
}

// Resolve patches every RELOC site in place. Block-targeted relocations
// are resolved by the per-function emitter before this ever runs (a block
// label is always in the same code buffer, so a PC-relative rel32 needs no
// knowledge of final load addresses); this resolver exists for the two
// relocation kinds whose target lives in a different section or object
// entirely: statics (code -> data section) and external symbols (code ->
// libc/runtime address), both of which need the absolute runtime
// placement decided by internal/jit before the displacement is known.
func (r *Resolver) Resolve() {
	for _, reloc := range r.Module.Relocations {
		var target uintptr
		switch reloc.Target.Kind {
		case ir.RelocStatic:
			off, ok := r.Module.Statics[reloc.Target.Static]
			utils.Assert(ok, "unresolved static %q", reloc.Target.Static.Name)
			target = r.StaticBase + uintptr(off)
		case ir.RelocSymbol:
			addr, ok := r.Symbols[reloc.Target.Symbol]
			utils.Assert(ok, "unresolved external symbol %q", reloc.Target.Symbol)
			target = addr
		default:
			utils.Assert(false, "resolver saw a block relocation; those must be patched before linking")
			continue
		}

		site := r.CodeBase + uintptr(reloc.SiteOffset)
		var value int64
		if reloc.PCRelative {
			value = int64(target) - int64(site) - int64(reloc.Width)
		} else {
			value = int64(target)
		}
		patchAt(r.Module.Code, reloc.SiteOffset, value, reloc.Width)
	}
}

func patchAt(buf []byte, offset int, value int64, width int) {
	switch width {
	case 1:
		buf[offset] = byte(value)
	case 4:
		v := int32(value)
		buf[offset] = byte(v)
		buf[offset+1] = byte(v >> 8)
		buf[offset+2] = byte(v >> 16)
		buf[offset+3] = byte(v >> 24)
	case 8:
		for i := 0; i < 8; i++ {
			buf[offset+i] = byte(value >> (8 * i))
		}
	default:
		utils.Assert(false, "unsupported relocation width %d", width)
	}
}
