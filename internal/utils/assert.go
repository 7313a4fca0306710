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
package utils

import "fmt"

// Assert panics with a formatted message if cond is false. Used pervasively
// to encode IR invariants (spec.md §3) that must never be violated by a
// correct pass; violating one is a compiler bug, not a user-facing error.
func Assert(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

func Unimplement(what string) {
	panic(fmt.Sprintf("not implemented: %s", what))
}

func ShouldNotReachHere() {
	panic("should not reach here")
}

func Abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Align rounds n up to the nearest multiple of align (align must be a power of two).
func Align(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

func InsertAt[T any](slice []T, index int, e T) []T {
	if index == len(slice) {
		return append(slice, e)
	}
	res := make([]T, len(slice)+1)
	copy(res[:index], slice[:index])
	res[index] = e
	copy(res[index+1:], slice[index:])
	return res
}

func RemoveAt[T any](slice []T, index int) []T {
	return append(slice[:index], slice[index+1:]...)
}
