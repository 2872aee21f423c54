package rdbtest

import (
	"encoding/binary"
	"math"
)

// ZlStr is a ziplist string entry (header and payload, no prevlen).
func ZlStr(s string) []byte {
	n := len(s)
	switch {
	case n < 1<<6:
		return append([]byte{byte(n)}, s...)
	case n < 1<<14:
		return append([]byte{0x40 | byte(n>>8), byte(n)}, s...)
	}
	p := []byte{0x80, 0, 0, 0, 0}
	binary.BigEndian.PutUint32(p[1:], uint32(n))
	return append(p, s...)
}

// ZlInt is a ziplist integer entry using the smallest encoding.
func ZlInt(v int64) []byte {
	switch {
	case v >= 0 && v <= 12:
		return []byte{0xF1 + byte(v)}
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return []byte{0xFE, byte(int8(v))}
	case v >= math.MinInt16 && v <= math.MaxInt16:
		p := []byte{0xC0, 0, 0}
		binary.LittleEndian.PutUint16(p[1:], uint16(int16(v)))
		return p
	case v >= -(1<<23) && v < 1<<23:
		u := uint32(int32(v))
		return []byte{0xF0, byte(u), byte(u >> 8), byte(u >> 16)}
	case v >= math.MinInt32 && v <= math.MaxInt32:
		p := []byte{0xD0, 0, 0, 0, 0}
		binary.LittleEndian.PutUint32(p[1:], uint32(int32(v)))
		return p
	}
	p := []byte{0xE0, 0, 0, 0, 0, 0, 0, 0, 0}
	binary.LittleEndian.PutUint64(p[1:], uint64(v))
	return p
}

// Ziplist assembles entries made by ZlStr/ZlInt into a ziplist blob.
func Ziplist(entries ...[]byte) []byte {
	return ziplist(uint16(len(entries)), entries)
}

// ZiplistUnknownCount is Ziplist with the 65535 "count unknown" header.
func ZiplistUnknownCount(entries ...[]byte) []byte {
	return ziplist(math.MaxUint16, entries)
}

func ziplist(count uint16, entries [][]byte) []byte {
	body := []byte{}
	prev := 0
	tail := 10
	for _, e := range entries {
		tail = 10 + len(body)
		if prev < 254 {
			body = append(body, byte(prev))
		} else {
			p := []byte{254, 0, 0, 0, 0}
			binary.LittleEndian.PutUint32(p[1:], uint32(prev))
			body = append(body, p...)
		}
		body = append(body, e...)
		prev = len(e) + 1
	}
	out := make([]byte, 10, 10+len(body)+1)
	binary.LittleEndian.PutUint32(out[0:], uint32(10+len(body)+1))
	binary.LittleEndian.PutUint32(out[4:], uint32(tail))
	binary.LittleEndian.PutUint16(out[8:], count)
	out = append(out, body...)
	return append(out, 0xFF)
}

// LpStr is a listpack string entry without its backlen.
func LpStr(s string) []byte {
	n := len(s)
	switch {
	case n < 64:
		return append([]byte{0x80 | byte(n)}, s...)
	case n < 4096:
		return append([]byte{0xE0 | byte(n>>8), byte(n)}, s...)
	}
	p := []byte{0xF0, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(p[1:], uint32(n))
	return append(p, s...)
}

// LpInt is a listpack integer entry using the smallest encoding.
func LpInt(v int64) []byte {
	switch {
	case v >= 0 && v <= 127:
		return []byte{byte(v)}
	case v >= -4096 && v <= 4095:
		u := uint16(v) & 0x1fff
		return []byte{0xC0 | byte(u>>8), byte(u)}
	case v >= math.MinInt16 && v <= math.MaxInt16:
		p := []byte{0xF1, 0, 0}
		binary.LittleEndian.PutUint16(p[1:], uint16(int16(v)))
		return p
	case v >= -(1<<23) && v < 1<<23:
		u := uint32(int32(v))
		return []byte{0xF2, byte(u), byte(u >> 8), byte(u >> 16)}
	case v >= math.MinInt32 && v <= math.MaxInt32:
		p := []byte{0xF3, 0, 0, 0, 0}
		binary.LittleEndian.PutUint32(p[1:], uint32(int32(v)))
		return p
	}
	p := []byte{0xF4, 0, 0, 0, 0, 0, 0, 0, 0}
	binary.LittleEndian.PutUint64(p[1:], uint64(v))
	return p
}

// Listpack assembles entries made by LpStr/LpInt into a listpack blob.
func Listpack(entries ...[]byte) []byte {
	return listpack(uint16(len(entries)), entries)
}

// ListpackUnknownCount is Listpack with the 65535 "count unknown" header.
func ListpackUnknownCount(entries ...[]byte) []byte {
	return listpack(math.MaxUint16, entries)
}

func listpack(count uint16, entries [][]byte) []byte {
	body := []byte{}
	for _, e := range entries {
		body = append(body, e...)
		body = append(body, backlen(len(e))...)
	}
	out := make([]byte, 6, 6+len(body)+1)
	binary.LittleEndian.PutUint32(out[0:], uint32(6+len(body)+1))
	binary.LittleEndian.PutUint16(out[4:], count)
	out = append(out, body...)
	return append(out, 0xFF)
}

func backlen(l int) []byte {
	switch {
	case l <= 127:
		return []byte{byte(l)}
	case l < 16383:
		return []byte{byte(l >> 7), byte(l&127) | 128}
	case l < 2097151:
		return make([]byte, 3)
	case l < 268435455:
		return make([]byte, 4)
	}
	return make([]byte, 5)
}

// Intset encodes vals with the given width (2, 4 or 8).
func Intset(width int, vals ...int64) []byte {
	out := make([]byte, 8, 8+width*len(vals))
	binary.LittleEndian.PutUint32(out[0:], uint32(width))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(vals)))
	return appendInts(out, width, vals)
}

// LegacyIntset uses the old u16 count layout.
func LegacyIntset(width int, vals ...int64) []byte {
	out := make([]byte, 6, 6+width*len(vals))
	binary.LittleEndian.PutUint32(out[0:], uint32(width))
	binary.LittleEndian.PutUint16(out[4:], uint16(len(vals)))
	return appendInts(out, width, vals)
}

func appendInts(out []byte, width int, vals []int64) []byte {
	for _, v := range vals {
		p := make([]byte, width)
		switch width {
		case 2:
			binary.LittleEndian.PutUint16(p, uint16(int16(v)))
		case 4:
			binary.LittleEndian.PutUint32(p, uint32(int32(v)))
		case 8:
			binary.LittleEndian.PutUint64(p, uint64(v))
		}
		out = append(out, p...)
	}
	return out
}

// Zipmap encodes alternating field, value strings. Every value gets free
// bytes of padding.
func Zipmap(free int, pairs ...string) []byte {
	n := len(pairs) / 2
	if n > 253 {
		n = 254
	}
	out := []byte{byte(n)}
	for i, s := range pairs {
		out = append(out, zipmapLen(len(s))...)
		if i%2 == 1 {
			out = append(out, byte(free))
		}
		out = append(out, s...)
		if i%2 == 1 {
			out = append(out, make([]byte, free)...)
		}
	}
	return append(out, 0xFF)
}

func zipmapLen(n int) []byte {
	if n < 254 {
		return []byte{byte(n)}
	}
	p := []byte{254, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(p[1:], uint32(n))
	return p
}
