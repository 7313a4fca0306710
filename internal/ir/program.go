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

// StaticData is a named blob of initialized data emitted into the binary's
// read-only/data section (spec.md §3), referenced from code via a RELOC
// (relocation, spec.md §4.7).
type StaticData struct {
	ID    int
	Name  string
	Bytes []byte
}

// Relocation is a deferred fixup recorded during codegen (spec.md §4.7):
// the byte offset in the emitted buffer that must be patched once the
// final address of Target (a label, a StaticData blob, or an external
// symbol name) is known.
type Relocation struct {
	SiteOffset int
	Target     RelocTarget
	Width      int // 1, 4 or 8 bytes
	PCRelative bool
}

type RelocTargetKind int

const (
	RelocBlock RelocTargetKind = iota
	RelocStatic
	RelocSymbol
)

type RelocTarget struct {
	Kind   RelocTargetKind
	Block  *Block
	Static *StaticData
	Symbol string
}

// Program owns every Function and StaticData blob, plus the construction
// cursor (CurFunc/CurBlock) used while building IR top-to-bottom and the
// deferred relocation log populated during codegen (spec.md §3/§4.7).
type Program struct {
	Functions []*Function
	Statics   []*StaticData

	CurFunc  *Function
	CurBlock *Block

	Relocations []Relocation

	nextID int
	Trace  bool
}

func NewProgram() *Program {
	return &Program{}
}

func (p *Program) nextStmtID() int {
	p.nextID++
	return p.nextID
}

// NewFunction creates and registers a function, making it the construction
// cursor's current function.
func (p *Program) NewFunction(name string, retType *Type) *Function {
	f := &Function{ID: len(p.Functions), Name: name, RetType: retType, Program: p, WrittenRegs: map[int]bool{}}
	p.Functions = append(p.Functions, f)
	p.CurFunc = f
	return f
}

func (p *Program) FindFunction(name string) *Function {
	for _, f := range p.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func (p *Program) NewStatic(name string, bytes []byte) *StaticData {
	s := &StaticData{ID: len(p.Statics), Name: name, Bytes: bytes}
	p.Statics = append(p.Statics, s)
	return s
}

// NewValue allocates a fresh SSA value of type t; the caller sets its
// Producer.
func (p *Program) NewValue(t *Type) *Value {
	return &Value{ID: p.nextStmtID(), Kind: VSSA, Type: t}
}

// NewConst allocates a constant value carrying bits.
func (p *Program) NewConst(t *Type, bits uint64) *Value {
	return &Value{ID: p.nextStmtID(), Kind: VConst, Type: t, Bits: bits}
}

// NewStatement appends a new statement to the construction cursor's
// current block, wiring operand use-edges and allocating an output value
// if the opcode has one.
func (p *Program) NewStatement(op Op, outType *Type, operands ...Operand) *Statement {
	s := &Statement{ID: p.nextStmtID(), Op: op, Operands: operands}
	for _, o := range operands {
		if o.Kind == OperandValue && o.Value != nil {
			o.Value.AddUse(s)
		}
	}
	if op.Info().HasOutput {
		out := p.NewValue(outType)
		out.Producer = s
		s.Output = out
	}
	p.CurBlock.AddStmt(s)
	return s
}

func (p *Program) String() string {
	out := ""
	for _, f := range p.Functions {
		out += f.String()
	}
	return out
}
