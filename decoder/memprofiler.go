// Copyright 2017 XUEQIU.COM
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package decoder

import (
	"math/bits"
	"math/rand"
	"strconv"
	"time"
)

const (
	// redis shares the string objects of 0..9999
	sharedIntegers = 10000

	skiplistMaxLevel = 32
	skiplistP        = 0.25
)

// MemProfiler estimates the memory redis needs to hold a value.
// The numbers are approximations of a 64 bit (or 32 bit) build using jemalloc.
type MemProfiler struct {
	PointerSize uint64
	LongSize    uint64

	rnd        *rand.Rand
	expiryKeys uint64
}

// NewMemProfiler returns a profiler for a 64 bit server. rnd drives the
// skiplist level estimate; nil seeds one from the clock.
func NewMemProfiler(rnd *rand.Rand) *MemProfiler {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &MemProfiler{PointerSize: 8, LongSize: 8, rnd: rnd}
}

// SetArchBits switches pointer and long sizes for redis-bits=32 dumps.
func (m *MemProfiler) SetArchBits(arch int) {
	if arch == 32 {
		m.PointerSize, m.LongSize = 4, 4
		return
	}
	m.PointerSize, m.LongSize = 8, 8
}

// ExpiryKeys is the number of keys charged with an expiry entry.
func (m *MemProfiler) ExpiryKeys() uint64 {
	return m.expiryKeys
}

// TopLevelObjOverhead is the cost of a key in the main dict.
func (m *MemProfiler) TopLevelObjOverhead(key []byte, expiry int64) uint64 {
	return m.HashTableEntryOverHead() + m.SizeofString(key) + m.RobjOverHead() + m.KeyExpiryOverHead(expiry)
}

// KeyExpiryOverHead is the expires dict entry of a key with a ttl.
func (m *MemProfiler) KeyExpiryOverHead(expiry int64) uint64 {
	if expiry <= 0 {
		return 0
	}
	m.expiryKeys++
	return m.HashTableEntryOverHead() + 8
}

func (m *MemProfiler) RobjOverHead() uint64 {
	return 4 + 4 + 24 + 4 + m.PointerSize
}

// SizeofString is the sds allocation for s. Integers that redis keeps
// as shared objects cost nothing.
func (m *MemProfiler) SizeofString(s []byte) uint64 {
	if n, err := strconv.ParseInt(string(s), 10, 64); err == nil && n > 0 && n < sharedIntegers {
		return 0
	}
	l := uint64(len(s))
	switch {
	case l < 1<<5:
		return m.MallocOverhead(l + 1 + 1)
	case l < 1<<8:
		return m.MallocOverhead(l + 1 + 2 + 1)
	case l < 1<<16:
		return m.MallocOverhead(l + 1 + 4 + 1)
	case l < 1<<32:
		return m.MallocOverhead(l + 1 + 8 + 1)
	}
	return m.MallocOverhead(l + 1 + 16 + 1)
}

// MallocOverhead rounds size up to the jemalloc size class that serves it.
func (m *MemProfiler) MallocOverhead(size uint64) uint64 {
	if size <= 8 {
		return 8
	}
	if size <= 128 {
		return (size + 15) &^ 15
	}
	// four classes per doubling above 128
	step := (uint64(1) << uint(bits.Len64(size-1))) / 8
	return (size + step - 1) / step * step
}

// HashTableOverHead is a dict with n entries: the dict struct, two tables
// and the bucket array, assuming it is 2/3 full on average.
func (m *MemProfiler) HashTableOverHead(n uint64) uint64 {
	return 4*m.PointerSize + 7*m.LongSize + 4 + uint64(float64(NextPowerOf2(n)*m.PointerSize)*1.5)
}

func (m *MemProfiler) HashTableEntryOverHead() uint64 {
	return 2*m.PointerSize + 8
}

func (m *MemProfiler) LinkedListOverHead() uint64 {
	return m.LongSize + 5*m.PointerSize
}

func (m *MemProfiler) LinkedListEntryOverHead() uint64 {
	return 3 * m.PointerSize
}

// QuickListOverHead is the quicklist header plus one quicklistNode per node.
func (m *MemProfiler) QuickListOverHead(nodes uint64) uint64 {
	return 40 + nodes*(4*m.PointerSize+m.LongSize+8)
}

func (m *MemProfiler) SkipListOverHead(n uint64) uint64 {
	return 2*m.PointerSize + m.HashTableOverHead(n) + 2*m.PointerSize + 16
}

// SkipListEntryOverHead draws a level for the node, so successive calls differ.
func (m *MemProfiler) SkipListEntryOverHead() uint64 {
	return m.HashTableEntryOverHead() + 2*m.PointerSize + 8 + (m.PointerSize+8)*m.RandomLevel()
}

// RandomLevel mirrors zslRandomLevel.
func (m *MemProfiler) RandomLevel() uint64 {
	level := uint64(1)
	for level < skiplistMaxLevel && float64(m.rnd.Int63()&0xFFFF) < skiplistP*0xFFFF {
		level++
	}
	return level
}

func (m *MemProfiler) StreamOverhead() uint64 {
	return 2*m.PointerSize + 8 + 16 + m.PointerSize + 16
}

// SizeofStreamRadixTree estimates a rax holding n keys.
func (m *MemProfiler) SizeofStreamRadixTree(n uint64) uint64 {
	nodes := uint64(float64(n) * 2.5)
	return 16*n + nodes*4 + nodes*30*m.LongSize
}

// StreamCG is one streamCG struct.
func (m *MemProfiler) StreamCG() uint64 {
	return 2*m.PointerSize + 16
}

// StreamNACK is n streamNACK entries.
func (m *MemProfiler) StreamNACK(n uint64) uint64 {
	return n * (m.PointerSize + 16)
}

func (m *MemProfiler) StreamConsumer(name []byte) uint64 {
	return 2*m.PointerSize + 8 + m.SizeofString(name)
}

// ElemLen is the length reported for an element: 8 for integers, the byte
// length otherwise.
func (m *MemProfiler) ElemLen(elem []byte) uint64 {
	if _, err := strconv.ParseInt(string(elem), 10, 64); err == nil {
		return 8
	}
	return uint64(len(elem))
}

// NextPowerOf2 is the smallest power of two strictly greater than n.
func NextPowerOf2(n uint64) uint64 {
	power := uint64(1)
	for power <= n {
		power <<= 1
	}
	return power
}
