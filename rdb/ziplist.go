package rdb

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/juju/errors"

	"github.com/919927181/rdbmem/rdb/core/structure"
)

const (
	zipStr06B = 0
	zipStr14B = 1
	zipStr32B = 2

	zipInt16B = 0xc0
	zipInt32B = 0xd0
	zipInt64B = 0xe0
	zipInt24B = 0xf0
	zipInt8B  = 0xfe

	zipBigPrevLen = 254
	zipEnd        = 0xff

	// a count of 65535 means the header does not know and the list must be walked
	zipLenUnknown = math.MaxUint16
)

// readZiplist decodes every entry of a ziplist blob. Integer entries are
// returned in their decimal string form.
func readZiplist(blob []byte) ([][]byte, error) {
	c := structure.NewCursor(blob)
	if err := c.Skip(8); err != nil { // zlbytes and zltail
		return nil, wrapEncodingError(err, "ziplist header")
	}
	count, err := c.ReadUint16()
	if err != nil {
		return nil, wrapEncodingError(err, "ziplist header")
	}

	var entries [][]byte
	if count != zipLenUnknown {
		entries = make([][]byte, 0, count)
	}
	for i := 0; count == zipLenUnknown || i < int(count); i++ {
		if count == zipLenUnknown {
			b, err := c.PeekByte()
			if err != nil {
				return nil, wrapEncodingError(err, "ziplist entry %d", i)
			}
			if b == zipEnd {
				break
			}
		}
		entry, err := readZiplistEntry(c)
		if err != nil {
			return nil, errors.Annotatef(err, "ziplist entry %d", i)
		}
		entries = append(entries, entry)
	}

	end, err := c.ReadByte()
	if err != nil {
		return nil, wrapEncodingError(err, "ziplist end marker")
	}
	if end != zipEnd {
		return nil, newEncodingError("invalid ziplist end marker 0x%02x", end)
	}
	return entries, nil
}

func readZiplistEntry(c *structure.Cursor) ([]byte, error) {
	prevLen, err := c.ReadByte()
	if err != nil {
		return nil, wrapEncodingError(err, "prevlen")
	}
	if prevLen == zipBigPrevLen {
		if err := c.Skip(4); err != nil {
			return nil, wrapEncodingError(err, "prevlen")
		}
	}

	header, err := c.ReadByte()
	if err != nil {
		return nil, wrapEncodingError(err, "entry header")
	}
	switch header >> 6 {
	case zipStr06B:
		return readCursorBytes(c, int(header&0x3f))
	case zipStr14B:
		b, err := c.ReadByte()
		if err != nil {
			return nil, wrapEncodingError(err, "14 bit length")
		}
		return readCursorBytes(c, (int(header&0x3f)<<8)|int(b))
	case zipStr32B:
		n, err := c.ReadUint32BE()
		if err != nil {
			return nil, wrapEncodingError(err, "32 bit length")
		}
		return readCursorBytes(c, int(n))
	}

	switch {
	case header == zipInt16B:
		b, err := c.ReadBytes(2)
		if err != nil {
			return nil, wrapEncodingError(err, "int16")
		}
		return formatInt(int64(int16(binary.LittleEndian.Uint16(b)))), nil
	case header == zipInt32B:
		b, err := c.ReadBytes(4)
		if err != nil {
			return nil, wrapEncodingError(err, "int32")
		}
		return formatInt(int64(int32(binary.LittleEndian.Uint32(b)))), nil
	case header == zipInt64B:
		b, err := c.ReadBytes(8)
		if err != nil {
			return nil, wrapEncodingError(err, "int64")
		}
		return formatInt(int64(binary.LittleEndian.Uint64(b))), nil
	case header == zipInt24B:
		b, err := c.ReadBytes(3)
		if err != nil {
			return nil, wrapEncodingError(err, "int24")
		}
		v := int32(uint32(b[0])<<8|uint32(b[1])<<16|uint32(b[2])<<24) >> 8
		return formatInt(int64(v)), nil
	case header == zipInt8B:
		b, err := c.ReadByte()
		if err != nil {
			return nil, wrapEncodingError(err, "int8")
		}
		return formatInt(int64(int8(b))), nil
	case header >= 0xf1 && header <= 0xfd:
		return formatInt(int64(header&0x0f) - 1), nil
	}
	return nil, newEncodingError("unknown ziplist header byte 0x%02x", header)
}

func readCursorBytes(c *structure.Cursor, n int) ([]byte, error) {
	b, err := c.ReadBytes(n)
	if err != nil {
		return nil, wrapEncodingError(err, "string of %d bytes", n)
	}
	return b, nil
}

func formatInt(v int64) []byte {
	return []byte(strconv.FormatInt(v, 10))
}
