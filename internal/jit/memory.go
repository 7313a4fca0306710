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

// Package jit implements spec.md §4.8/§6: placing emitted machine code in
// executable memory near the running process (so PC-relative calls to
// already-linked Go/C functions fit a 32-bit displacement) and running it.
// The placement search is a direct Go port of original_source's
// mmap_near_process (src/jitify.h): walk outward from the anchor address
// in 64KiB steps, alternating above and below, until mmap with
// MAP_FIXED_NOREPLACE succeeds or a 2GiB search radius is exhausted.
package jit

import (
	"reflect"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	pageRound    = 1 << 16
	searchRadius = 1 << 31
)

// placementAnchor is the scan origin for alloc_near_executable: any
// function in this package's own code, so the distance from JIT'd code to
// already-linked process code stays within a 32-bit signed displacement.
// Per spec.md §4.8, taking the address of a Go function for this purpose
// requires reflect.ValueOf(...).Pointer() rather than a direct conversion,
// since Go forbids converting func values to uintptr.
func placementAnchor() {}

func anchorAddr() uintptr {
	return reflect.ValueOf(placementAnchor).Pointer()
}

// Memory is one placed executable region. Once Finalize has marked it
// executable it must not be written again; the Go runtime and the OS
// kernel are both free to assume RX pages are immutable, and the garbage
// collector must never be allowed to scan it as managed memory (spec.md
// §4.8's "non-GC memory" requirement) — hence the raw mmap rather than a
// make([]byte, ...) allocation.
type Memory struct {
	addr   uintptr
	length int
	final  bool
}

// AllocNear reserves a read-write region at least `size` bytes long,
// within searchRadius of this package's own code, rounded up to a 64KiB
// boundary (mirrors jitify.h's alloc_near_executable, including the
// alternating-direction walk and MAP_FIXED_NOREPLACE semantics).
func AllocNear(size int) (*Memory, error) {
	if size <= 0 {
		size = 1
	}
	length := ((size + pageRound - 1) / pageRound) * pageRound
	anchor := anchorAddr()
	start := (anchor >> 16) << 16

	if addr, err := mmapFixed(start, length); err == nil {
		return &Memory{addr: addr, length: length}, nil
	}

	up, down := start, start
	for (up - start) < searchRadius {
		up += pageRound
		down -= pageRound
		if addr, err := mmapFixed(up, length); err == nil {
			return &Memory{addr: addr, length: length}, nil
		}
		if addr, err := mmapFixed(down, length); err == nil {
			return &Memory{addr: addr, length: length}, nil
		}
	}
	return nil, errors.Errorf("jit: failed to find an executable-adjacent mapping within %d bytes of %#x", searchRadius, anchor)
}

// mmapFixed requests anonymous read-write memory at the exact address
// `addr`, matching jitify.h's MAP_FIXED_NOREPLACE call (Go's
// golang.org/x/sys/unix does not expose a fixed-address Mmap wrapper that
// returns a []byte, since Go's GC cannot be told about arbitrary mappings,
// so this goes through the raw syscall directly).
func mmapFixed(addr uintptr, length int) (uintptr, error) {
	flags := unix.MAP_ANON | unix.MAP_PRIVATE | unix.MAP_FIXED_NOREPLACE
	got, _, errno := unix.Syscall6(unix.SYS_MMAP, addr, uintptr(length),
		uintptr(unix.PROT_READ|unix.PROT_WRITE), uintptr(flags), ^uintptr(0), 0)
	if errno != 0 {
		return 0, errno
	}
	if got != addr {
		unix.Syscall6(unix.SYS_MUNMAP, got, uintptr(length), 0, 0, 0, 0)
		return 0, errors.Errorf("jit: kernel placed mapping at %#x instead of requested %#x", got, addr)
	}
	return got, nil
}

// Write copies code to the start of the region. Must be called before
// Finalize.
func (m *Memory) Write(code []byte) {
	if m.final {
		panic("jit: Memory.Write after Finalize")
	}
	if len(code) > m.length {
		panic("jit: code does not fit in the reserved region")
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(m.addr)), m.length)
	copy(dst, code)
}

// Addr returns the runtime base address of the region.
func (m *Memory) Addr() uintptr { return m.addr }

// Bytes exposes the region's contents read-only, for debug disassembly.
func (m *Memory) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(m.addr)), m.length)
}

// EntryFunc returns a callable of the zero-argument, no-return shape for
// the code at offset; nothing in this repository calls it (the tests and
// the CLI use the typed CallInt2 helper instead).
func (m *Memory) EntryFunc(offset int) func() {
	p := m.addr + uintptr(offset)
	code := &p
	return *(*func())(unsafe.Pointer(&code))
}

// Finalize mprotects the region read+execute and freezes it against
// further writes, per jitify.h's mark_as_executable.
func (m *Memory) Finalize() error {
	data := unsafe.Slice((*byte)(unsafe.Pointer(m.addr)), m.length)
	if err := unix.Mprotect(data, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return errors.Wrap(err, "jit: mprotect RX")
	}
	m.final = true
	return nil
}

// Release unmaps the region (jitify.h's free_near_executable). Safe to
// call whether or not Finalize ran.
func (m *Memory) Release() error {
	_, _, errno := unix.Syscall6(unix.SYS_MUNMAP, m.addr, uintptr(m.length), 0, 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
