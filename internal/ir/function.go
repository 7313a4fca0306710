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

import (
	"fmt"
	"strings"
)

// StackSlot is a named, fixed-size, fixed-alignment local storage location
// (spec.md §3). Its address is taken with a VStackAddr value; mem2reg
// (spec.md §4.4.2) replaces whole-slot load/store traffic with SSA values
// when no address of the slot escapes.
type StackSlot struct {
	ID     int
	Name   string
	Type   *Type
	// FrameOffset is filled in by the frame layout pass (spec.md §4.6),
	// negative relative to RBP.
	FrameOffset int
}

// Function owns its argument list, stack slots, and blocks. The first
// entry of Blocks is always the entry block (spec.md §3).
type Function struct {
	ID      int
	Name    string
	RetType *Type
	Args    []*Value
	Slots   []*StackSlot
	Blocks  []*Block

	Program *Program

	// FrameSize is not filled in by the frame layout pass, which keeps the
	// frame size in codegen.Frame.Size instead; it stays 0.
	FrameSize int
	// WrittenRegs records which callee-saved registers this function's
	// body writes, so the prologue/epilogue only save/restore those
	// (mirrors original_source's Function.written_registers bitmap).
	WrittenRegs map[int]bool
}

func (f *Function) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

func (f *Function) NewBlock(name string) *Block {
	b := &Block{ID: len(f.Blocks), Name: name, Func: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// RemoveBlock deletes b from the function's block list. Callers must have
// already disconnected its CFG edges and emptied its statement list.
func (f *Function) RemoveBlock(b *Block) {
	for i, blk := range f.Blocks {
		if blk == b {
			f.Blocks = append(f.Blocks[:i], f.Blocks[i+1:]...)
			return
		}
	}
}

func (f *Function) FindBlock(name string) *Block {
	for _, b := range f.Blocks {
		if b.Name == name {
			return b
		}
	}
	return nil
}

func (f *Function) FindSlot(name string) *StackSlot {
	for _, s := range f.Slots {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func (f *Function) NewSlot(name string, t *Type) *StackSlot {
	s := &StackSlot{ID: len(f.Slots), Name: name, Type: t}
	f.Slots = append(f.Slots, s)
	return s
}

func (f *Function) String() string {
	var sb strings.Builder
	argStrs := make([]string, len(f.Args))
	for i, a := range f.Args {
		argStrs[i] = fmt.Sprintf("%s %s", a.Type, a.ArgName)
	}
	fmt.Fprintf(&sb, "func %s(%s) %s {\n", f.Name, strings.Join(argStrs, ", "), f.RetType)
	for _, s := range f.Slots {
		fmt.Fprintf(&sb, "  stack_slot %s %s\n", s.Type, s.Name)
	}
	for _, b := range f.Blocks {
		sb.WriteString(b.String())
	}
	sb.WriteString("}\n")
	return sb.String()
}
