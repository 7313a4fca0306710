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
// Package utils collects small helpers: bit sets, a generic set, and the
// panicking assertions used throughout the compiler. The other packages
// use only Assert and Align from here.
package utils

// BitMap is a fixed-size bit vector. No other package in this repository
// uses it.
type BitMap struct {
	data []uint8
	size int
}

func NewBitMap(size int) *BitMap {
	return &BitMap{
		data: make([]uint8, (size+7)/8),
		size: size,
	}
}

func (bm *BitMap) Size() int {
	return bm.size
}

func (bm *BitMap) Set(i int) {
	ei := i / 8
	bm.data[ei] = bm.data[ei] | (1 << uint8(i%8))
}

func (bm *BitMap) Reset(i int) {
	ei := i / 8
	bm.data[ei] = bm.data[ei] & (^(1 << uint8(i%8)))
}

func (bm *BitMap) IsSet(i int) bool {
	return (bm.data[i/8] & (1 << uint8(i%8))) != uint8(0)
}

// Unite performs bm |= o, returning whether bm changed.
func (bm *BitMap) Unite(o *BitMap) bool {
	Assert(bm.size == o.size, "bitmap size mismatch")
	changed := false
	for i := range bm.data {
		nv := bm.data[i] | o.data[i]
		if nv != bm.data[i] {
			bm.data[i] = nv
			changed = true
		}
	}
	return changed
}

// Remove performs bm &^= o, returning whether bm changed.
func (bm *BitMap) Remove(o *BitMap) bool {
	Assert(bm.size == o.size, "bitmap size mismatch")
	changed := false
	for i := range bm.data {
		nv := bm.data[i] &^ o.data[i]
		if nv != bm.data[i] {
			bm.data[i] = nv
			changed = true
		}
	}
	return changed
}

func (bm *BitMap) SetFrom(o *BitMap) bool {
	Assert(bm.size == o.size, "bitmap size mismatch")
	changed := false
	for i := range o.data {
		if o.data[i] != bm.data[i] {
			bm.data[i] = o.data[i]
			changed = true
		}
	}
	return changed
}

func (bm *BitMap) Copy() *BitMap {
	nd := make([]uint8, len(bm.data))
	copy(nd, bm.data)
	return &BitMap{data: nd, size: bm.size}
}

func (bm *BitMap) String() string {
	s := "{"
	for i := 0; i < bm.size; i++ {
		if bm.IsSet(i) {
			if len(s) > 1 {
				s += " "
			}
			s += itoa(i)
		}
	}
	return s + "}"
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
