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
	"runtime"

	"github.com/wareya/bbae/internal/ir"
)

// ABIKind selects one of spec.md §4.6's two supported calling conventions.
type ABIKind int

const (
	ABISysV ABIKind = iota
	ABIWindows
)

// DefaultABI mirrors the teacher's runtime.GOOS switch in ArgReg, but as
// an explicit value the caller can override rather than a hard-wired
// branch (spec.md §2a's configuration guidance).
func DefaultABI() ABIKind {
	if runtime.GOOS == "windows" {
		return ABIWindows
	}
	return ABISysV
}

var sysvIntArgs = []int{RDI, RSI, RDX, RCX, R8, R9}
var sysvFloatArgs = []int{XMM0, XMM1, XMM2, XMM3, XMM4, XMM5, XMM6, XMM7}
var winIntArgs = []int{RCX, RDX, R8, R9}
var winFloatArgs = []int{XMM0, XMM1, XMM2, XMM3}

// ArgState walks the ABI's argument-placement state machine in
// declaration order, spec.md §4.6's "entry-block allocation" / ABI
// description. Integer and float argument slots advance independently
// under SysV; under Windows a single shared slot index selects the
// register pair (RCX/XMM0, etc) per the "by slot" rule.
type ArgState struct {
	abi ABIKind

	intIdx   int
	floatIdx int
	slotIdx  int // Windows only: shared int/float slot counter

	stackOffset int // next stack-passed argument's offset from RBP
}

func NewArgState(abi ABIKind) *ArgState {
	s := &ArgState{abi: abi}
	if abi == ABIWindows {
		s.stackOffset = 48
	} else {
		s.stackOffset = 16
	}
	return s
}

// ArgLoc is either a register (IsReg true) or a stack slot at Offset
// bytes from RBP.
type ArgLoc struct {
	IsReg   bool
	Reg     int
	IsFloat bool
	Offset  int
}

// Next advances the state machine for one argument of type t and returns
// its location.
func (s *ArgState) Next(t *ir.Type) ArgLoc {
	isFloat := t.IsFloat()
	if s.abi == ABIWindows {
		if s.slotIdx < 4 {
			idx := s.slotIdx
			s.slotIdx++
			if isFloat {
				return ArgLoc{IsReg: true, Reg: winFloatArgs[idx], IsFloat: true}
			}
			return ArgLoc{IsReg: true, Reg: winIntArgs[idx]}
		}
		s.slotIdx++
		off := s.stackOffset
		s.stackOffset += 8
		return ArgLoc{Offset: off, IsFloat: isFloat}
	}
	// SysV: separate integer/float counters, spilling to the stack once
	// a class is exhausted.
	if isFloat {
		if s.floatIdx < len(sysvFloatArgs) {
			r := sysvFloatArgs[s.floatIdx]
			s.floatIdx++
			return ArgLoc{IsReg: true, Reg: r, IsFloat: true}
		}
	} else if s.intIdx < len(sysvIntArgs) {
		r := sysvIntArgs[s.intIdx]
		s.intIdx++
		return ArgLoc{IsReg: true, Reg: r}
	}
	off := s.stackOffset
	s.stackOffset += 8
	return ArgLoc{Offset: off, IsFloat: isFloat}
}

// ReturnReg reports the register a value of type t is returned in.
func ReturnReg(t *ir.Type) (reg int, isFloat bool) {
	if t.IsFloat() {
		return XMM0, true
	}
	return RAX, false
}
