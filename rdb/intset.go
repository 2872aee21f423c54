package rdb

import (
	"encoding/binary"

	"github.com/919927181/rdbmem/rdb/core/structure"
)

// readIntset decodes an intset blob. Current layout is u32 width, u32 count;
// some old files carry a u16 count, which is accepted when only that
// interpretation matches the blob size.
func readIntset(blob []byte) ([][]byte, error) {
	c := structure.NewCursor(blob)
	width, err := c.ReadUint32()
	if err != nil {
		return nil, wrapEncodingError(err, "intset header")
	}
	if width != 2 && width != 4 && width != 8 {
		return nil, newEncodingError("unknown intset encoding width %d", width)
	}
	count, err := c.ReadUint32()
	if err != nil {
		return nil, wrapEncodingError(err, "intset header")
	}

	dataStart := 8
	if uint64(dataStart)+uint64(count)*uint64(width) != uint64(len(blob)) {
		legacy := uint64(binary.LittleEndian.Uint16(blob[4:6]))
		if 6+legacy*uint64(width) != uint64(len(blob)) {
			return nil, newEncodingError("intset of %d bytes cannot hold %d entries of width %d", len(blob), count, width)
		}
		count, dataStart = uint32(legacy), 6
	}

	c = structure.NewCursor(blob[dataStart:])
	entries := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		b, err := c.ReadBytes(int(width))
		if err != nil {
			return nil, wrapEncodingError(err, "intset entry %d", i)
		}
		var v int64
		switch width {
		case 2:
			v = int64(int16(binary.LittleEndian.Uint16(b)))
		case 4:
			v = int64(int32(binary.LittleEndian.Uint32(b)))
		case 8:
			v = int64(binary.LittleEndian.Uint64(b))
		}
		entries = append(entries, formatInt(v))
	}
	return entries, nil
}
