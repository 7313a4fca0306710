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

// TestResolveStaticPCRelative covers the code->data-section case: a
// PC-relative rel32 load of a static blob, patched once both sections have
// been assigned runtime addresses.
func TestResolveStaticPCRelative(t *testing.T) {
	static := &ir.StaticData{ID: 0, Name: "greeting", Bytes: []byte("hi")}

	code := make([]byte, 16)
	mod := &Module{
		Code:        code,
		FuncOffsets: map[string]int{},
		Statics:     map[*ir.StaticData]int{static: 0},
		StaticBytes: static.Bytes,
		Relocations: []ir.Relocation{
			{
				SiteOffset: 10,
				Target:     ir.RelocTarget{Kind: ir.RelocStatic, Static: static},
				Width:      4,
				PCRelative: true,
			},
		},
	}
	res := &Resolver{
		Module:     mod,
		CodeBase:   0x1000,
		StaticBase: 0x2000,
	}
	res.Resolve()

	site := res.CodeBase + 10
	target := res.StaticBase
	want := int32(int64(target) - int64(site) - 4)
	got := int32(mod.Code[10]) | int32(mod.Code[11])<<8 | int32(mod.Code[12])<<16 | int32(mod.Code[13])<<24
	if got != want {
		t.Fatalf("static PC-relative patch: got %d, want %d", got, want)
	}
}

// TestResolveSymbolAbsolute covers the code->external-symbol case: an
// absolute 8-byte address patch (used by movabs-style symbol loads), not
// PC-relative.
func TestResolveSymbolAbsolute(t *testing.T) {
	code := make([]byte, 16)
	mod := &Module{
		Code:        code,
		FuncOffsets: map[string]int{},
		Statics:     map[*ir.StaticData]int{},
		Relocations: []ir.Relocation{
			{
				SiteOffset: 0,
				Target:     ir.RelocTarget{Kind: ir.RelocSymbol, Symbol: "malloc"},
				Width:      8,
				PCRelative: false,
			},
		},
	}
	res := &Resolver{
		Module:   mod,
		CodeBase: 0x1000,
		Symbols:  map[string]uintptr{"malloc": 0xDEADBEEF},
	}
	res.Resolve()

	var got uint64
	for i := 0; i < 8; i++ {
		got |= uint64(mod.Code[i]) << (8 * i)
	}
	if got != 0xDEADBEEF {
		t.Fatalf("symbol absolute patch: got %#x, want %#x", got, 0xDEADBEEF)
	}
}

// TestResolvePanicsOnUnresolvedStatic ensures a static missing from the
// offset table is caught rather than silently patched with a bogus address.
func TestResolvePanicsOnUnresolvedStatic(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Resolve to panic on an unknown static")
		}
	}()

	static := &ir.StaticData{ID: 0, Name: "missing"}
	mod := &Module{
		Code:    make([]byte, 8),
		Statics: map[*ir.StaticData]int{},
		Relocations: []ir.Relocation{
			{SiteOffset: 0, Target: ir.RelocTarget{Kind: ir.RelocStatic, Static: static}, Width: 4, PCRelative: true},
		},
	}
	(&Resolver{Module: mod}).Resolve()
}
