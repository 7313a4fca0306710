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

// Verify walks prog and checks the invariants of spec.md §3, mirroring the
// teacher's VerifyHIR debug pass. It returns the first violation found, or
// nil if the program is well-formed.
func Verify(prog *Program) error {
	for _, f := range prog.Functions {
		if len(f.Blocks) == 0 {
			return NewError(ErrIRInvariant, 0, "function %s has no blocks", f.Name)
		}
		for _, b := range f.Blocks {
			if err := verifyBlock(f, b); err != nil {
				return err
			}
		}
	}
	return nil
}

func verifyBlock(f *Function, b *Block) error {
	if b.Term == OpInvalid {
		return NewError(ErrIRInvariant, 0, "block %s.%s has no terminator", f.Name, b.Name)
	}
	for _, s := range b.Stmts {
		if s.Op.IsTerminator() {
			return NewError(ErrIRInvariant, 0, "terminator %s found mid-block in %s.%s", s.Op, f.Name, b.Name)
		}
		for _, op := range s.Operands {
			if op.Kind != OperandValue || op.Value == nil {
				continue
			}
			if op.Value.Kind == VSSA && !valueUsedBy(op.Value, s) {
				return NewError(ErrIRInvariant, 0, "use edge missing for value %s in %s.%s", op.Value, f.Name, b.Name)
			}
		}
		if s.Output != nil && s.Output.Kind == VSSA && s.Output.Producer != s {
			return NewError(ErrIRInvariant, 0, "SSA value %s does not list its producer", s.Output)
		}
	}
	for _, target := range b.Targets {
		if target.Func != f {
			return NewError(ErrIRInvariant, 0, "terminator in %s.%s targets a block outside its function", f.Name, b.Name)
		}
	}
	return nil
}

func valueUsedBy(v *Value, s *Statement) bool {
	for _, u := range v.Uses {
		if u == s {
			return true
		}
	}
	return false
}
