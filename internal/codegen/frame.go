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

// Frame holds the final stack layout of a function: each stack slot's
// offset from RBP, the spill area used by the register allocator, and
// the aligned total frame size (spec.md §4.7's prologue description).
type Frame struct {
	SlotOffsets map[*ir.StackSlot]int
	SpillBase   int // offset of the first spill byte, negative from RBP
	Size        int
}

// Layout assigns negative-from-RBP offsets to every stack slot and
// reserves spillBytes more beneath them for register-allocator spills,
// then aligns the total to 16 bytes (the x86-64 SysV/Windows stack
// alignment requirement at a call boundary).
func Layout(f *ir.Function, spillBytes int) *Frame {
	fr := &Frame{SlotOffsets: map[*ir.StackSlot]int{}}
	offset := 0
	for _, slot := range f.Slots {
		size := slot.Type.Size()
		align := size
		if align == 0 {
			align = 8
		}
		offset = utils.Align(offset+size, align)
		fr.SlotOffsets[slot] = -offset
		slot.FrameOffset = -offset
	}
	fr.SpillBase = -utils.Align(offset, 8)
	offset = utils.Align(offset, 8) + spillBytes
	fr.Size = utils.Align(offset, 16)
	return fr
}

// FinalizeSpill recomputes the total frame size once the register
// allocator has reported how many spill bytes it actually used; Layout
// itself is called with spillBytes=0 since the allocator needs SpillBase
// fixed before it can run at all.
func (fr *Frame) FinalizeSpill(spillBytes int) {
	fr.Size = utils.Align(-fr.SpillBase+spillBytes, 16)
}
