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

	"github.com/pkg/errors"
)

// ErrorKind is the closed taxonomy of spec.md §7.
type ErrorKind int

const (
	ErrParseSyntax ErrorKind = iota
	ErrParseRedefinition
	ErrParseUndefinedReference
	ErrIRInvariant
	ErrRegallocExhausted
	ErrEncoderOperandShape
	ErrRelocationOutOfRange
	ErrJITNoNearMemory
)

func (k ErrorKind) String() string {
	switch k {
	case ErrParseSyntax:
		return "PARSE_SYNTAX"
	case ErrParseRedefinition:
		return "PARSE_REDEFINITION"
	case ErrParseUndefinedReference:
		return "PARSE_UNDEFINED_REFERENCE"
	case ErrIRInvariant:
		return "IR_INVARIANT"
	case ErrRegallocExhausted:
		return "REGALLOC_EXHAUSTED"
	case ErrEncoderOperandShape:
		return "ENCODER_OPERAND_SHAPE"
	case ErrRelocationOutOfRange:
		return "RELOCATION_OUT_OF_RANGE"
	case ErrJITNoNearMemory:
		return "JIT_NO_NEAR_MEMORY"
	default:
		return "UNKNOWN"
	}
}

// CompileError wraps one of the closed error kinds with the source
// position (line number, 1-based, 0 if not applicable) and a message. It
// is always returned wrapped by github.com/pkg/errors, so the error also
// carries the stack of the point where it was built; the CLI prints only
// the message and exits.
type CompileError struct {
	Kind    ErrorKind
	Line    int
	Message string
	cause   error
}

func (e *CompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s at line %d: %s", e.Kind, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CompileError) Unwrap() error { return e.cause }

// NewError builds a stack-carrying CompileError.
func NewError(kind ErrorKind, line int, format string, args ...interface{}) error {
	ce := &CompileError{Kind: kind, Line: line, Message: fmt.Sprintf(format, args...)}
	return errors.WithStack(ce)
}

// WrapError attaches a closed error kind to an underlying cause, preserving
// its stack via errors.Wrap.
func WrapError(kind ErrorKind, line int, cause error, format string, args ...interface{}) error {
	ce := &CompileError{Kind: kind, Line: line, Message: fmt.Sprintf(format, args...), cause: cause}
	return errors.Wrap(ce, ce.Message)
}

// AsCompileError unwraps err looking for a *CompileError, which the CLI's
// reportAndExit uses to print a closed-taxonomy error.
func AsCompileError(err error) (*CompileError, bool) {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
