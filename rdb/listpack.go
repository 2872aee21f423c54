package rdb

import (
	"encoding/binary"
	"math"

	"github.com/juju/errors"

	"github.com/919927181/rdbmem/rdb/core/structure"
)

const (
	lpHdrNumeleUnknown = math.MaxUint16
	lpEOF              = 0xFF

	lpEncoding7BitUint     = 0
	lpEncoding7BitUintMask = 0x80

	lpEncoding6BitStr     = 0x80
	lpEncoding6BitStrMask = 0xC0

	lpEncoding13BitInt     = 0xC0
	lpEncoding13BitIntMask = 0xE0

	lpEncoding12BitStr     = 0xE0
	lpEncoding12BitStrMask = 0xF0

	lpEncoding16BitInt = 0xF1
	lpEncoding24BitInt = 0xF2
	lpEncoding32BitInt = 0xF3
	lpEncoding64BitInt = 0xF4
	lpEncoding32BitStr = 0xF0
)

// readListpack decodes every entry of a listpack blob. Integer entries are
// returned in their decimal string form.
func readListpack(blob []byte) ([][]byte, error) {
	c := structure.NewCursor(blob)
	if err := c.Skip(4); err != nil { // total bytes
		return nil, wrapEncodingError(err, "listpack header")
	}
	count, err := c.ReadUint16()
	if err != nil {
		return nil, wrapEncodingError(err, "listpack header")
	}

	var entries [][]byte
	if count != lpHdrNumeleUnknown {
		entries = make([][]byte, 0, count)
	}
	for i := 0; count == lpHdrNumeleUnknown || i < int(count); i++ {
		if count == lpHdrNumeleUnknown {
			b, err := c.PeekByte()
			if err != nil {
				return nil, wrapEncodingError(err, "listpack entry %d", i)
			}
			if b == lpEOF {
				break
			}
		}
		entry, err := readListpackEntry(c)
		if err != nil {
			return nil, errors.Annotatef(err, "listpack entry %d", i)
		}
		entries = append(entries, entry)
	}

	end, err := c.ReadByte()
	if err != nil {
		return nil, wrapEncodingError(err, "listpack end marker")
	}
	if end != lpEOF {
		return nil, newEncodingError("invalid listpack end marker 0x%02x", end)
	}
	return entries, nil
}

func readListpackEntry(c *structure.Cursor) ([]byte, error) {
	b, err := c.ReadByte()
	if err != nil {
		return nil, wrapEncodingError(err, "encoding byte")
	}

	var (
		val      []byte
		entryLen int // encoding plus payload, sizes the backlen trailer
	)
	switch {
	case b&lpEncoding7BitUintMask == lpEncoding7BitUint:
		val, entryLen = formatInt(int64(b&0x7f)), 1
	case b&lpEncoding6BitStrMask == lpEncoding6BitStr:
		n := int(b & 0x3f)
		if val, err = readCursorBytes(c, n); err != nil {
			return nil, err
		}
		entryLen = 1 + n
	case b&lpEncoding13BitIntMask == lpEncoding13BitInt:
		b1, err := c.ReadByte()
		if err != nil {
			return nil, wrapEncodingError(err, "13 bit int")
		}
		uv := uint64(b&0x1f)<<8 | uint64(b1)
		val, entryLen = formatInt(signExtend(uv, 13)), 2
	case b&lpEncoding12BitStrMask == lpEncoding12BitStr:
		b1, err := c.ReadByte()
		if err != nil {
			return nil, wrapEncodingError(err, "12 bit length")
		}
		n := int(b&0x0f)<<8 | int(b1)
		if val, err = readCursorBytes(c, n); err != nil {
			return nil, err
		}
		entryLen = 2 + n
	case b == lpEncoding16BitInt:
		p, err := c.ReadBytes(2)
		if err != nil {
			return nil, wrapEncodingError(err, "16 bit int")
		}
		val, entryLen = formatInt(int64(int16(binary.LittleEndian.Uint16(p)))), 3
	case b == lpEncoding24BitInt:
		p, err := c.ReadBytes(3)
		if err != nil {
			return nil, wrapEncodingError(err, "24 bit int")
		}
		uv := uint64(p[0]) | uint64(p[1])<<8 | uint64(p[2])<<16
		val, entryLen = formatInt(signExtend(uv, 24)), 4
	case b == lpEncoding32BitInt:
		p, err := c.ReadBytes(4)
		if err != nil {
			return nil, wrapEncodingError(err, "32 bit int")
		}
		val, entryLen = formatInt(int64(int32(binary.LittleEndian.Uint32(p)))), 5
	case b == lpEncoding64BitInt:
		p, err := c.ReadBytes(8)
		if err != nil {
			return nil, wrapEncodingError(err, "64 bit int")
		}
		val, entryLen = formatInt(int64(binary.LittleEndian.Uint64(p))), 9
	case b == lpEncoding32BitStr:
		n, err := c.ReadUint32()
		if err != nil {
			return nil, wrapEncodingError(err, "32 bit length")
		}
		if val, err = readCursorBytes(c, int(n)); err != nil {
			return nil, err
		}
		entryLen = 5 + int(n)
	default:
		return nil, newEncodingError("unknown listpack encoding 0x%02x", b)
	}

	if err := c.Skip(lpBacklenSize(entryLen)); err != nil {
		return nil, wrapEncodingError(err, "backlen")
	}
	return val, nil
}

// lpBacklenSize is the number of bytes lpEncodeBacklen uses for an entry of l bytes.
func lpBacklenSize(l int) int {
	switch {
	case l <= 127:
		return 1
	case l < 16383:
		return 2
	case l < 2097151:
		return 3
	case l < 268435455:
		return 4
	}
	return 5
}

// signExtend interprets the low bits of uv as a two's complement integer.
func signExtend(uv uint64, bits uint) int64 {
	shift := 64 - bits
	return int64(uv<<shift) >> shift
}
