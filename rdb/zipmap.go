package rdb

import (
	"github.com/919927181/rdbmem/rdb/core/structure"
)

const (
	zipmapBigLen = 254
	zipmapEnd    = 255
)

// readZipmap decodes a zipmap blob into alternating field, value entries.
// The zmlen header is only a hint (it saturates at 254), so pairs are
// counted by walking the blob.
func readZipmap(blob []byte) ([][]byte, error) {
	c := structure.NewCursor(blob)
	if _, err := c.ReadByte(); err != nil { // zmlen
		return nil, wrapEncodingError(err, "zipmap header")
	}

	var entries [][]byte
	for {
		field, end, err := readZipmapItem(c, false)
		if err != nil {
			return nil, err
		}
		if end {
			return entries, nil
		}
		value, end, err := readZipmapItem(c, true)
		if err != nil {
			return nil, err
		}
		if end {
			return nil, newEncodingError("zipmap field %q has no value", field)
		}
		entries = append(entries, field, value)
	}
}

func readZipmapItem(c *structure.Cursor, isValue bool) ([]byte, bool, error) {
	b, err := c.ReadByte()
	if err != nil {
		return nil, false, wrapEncodingError(err, "zipmap length")
	}
	var n int
	switch {
	case b == zipmapEnd:
		return nil, true, nil
	case b == zipmapBigLen:
		l, err := c.ReadUint32()
		if err != nil {
			return nil, false, wrapEncodingError(err, "zipmap length")
		}
		n = int(l)
	default:
		n = int(b)
	}

	var free byte
	if isValue {
		if free, err = c.ReadByte(); err != nil {
			return nil, false, wrapEncodingError(err, "zipmap free byte")
		}
	}
	item, err := readCursorBytes(c, n)
	if err != nil {
		return nil, false, err
	}
	if err := c.Skip(int(free)); err != nil {
		return nil, false, wrapEncodingError(err, "zipmap padding")
	}
	return item, false, nil
}
