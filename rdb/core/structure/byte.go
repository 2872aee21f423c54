package structure

import (
	"encoding/binary"

	"github.com/juju/errors"
)

// ErrShortBlob is the cause of every read past the end of a blob.
var ErrShortBlob = errors.New("structure: read past end of blob")

// Cursor reads a container blob (ziplist, listpack, zipmap, intset) front to back.
type Cursor struct {
	buf []byte
	pos int
}

func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Pos is the offset of the next unread byte.
func (c *Cursor) Pos() int {
	return c.pos
}

func (c *Cursor) Len() int {
	return len(c.buf)
}

func (c *Cursor) Remaining() int {
	return len(c.buf) - c.pos
}

func (c *Cursor) ReadByte() (byte, error) {
	if c.pos >= len(c.buf) {
		return 0, errors.Annotatef(ErrShortBlob, "need 1 byte at offset %d of %d", c.pos, len(c.buf))
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

// PeekByte returns the next byte without consuming it.
func (c *Cursor) PeekByte() (byte, error) {
	if c.pos >= len(c.buf) {
		return 0, errors.Annotatef(ErrShortBlob, "need 1 byte at offset %d of %d", c.pos, len(c.buf))
	}
	return c.buf[c.pos], nil
}

// ReadBytes returns the next n bytes. The result aliases the blob.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.buf) {
		return nil, errors.Annotatef(ErrShortBlob, "need %d bytes at offset %d of %d", n, c.pos, len(c.buf))
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *Cursor) Skip(n int) error {
	_, err := c.ReadBytes(n)
	return err
}

func (c *Cursor) ReadUint16() (uint16, error) {
	b, err := c.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *Cursor) ReadUint32() (uint32, error) {
	b, err := c.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *Cursor) ReadUint32BE() (uint32, error) {
	b, err := c.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (c *Cursor) ReadUint64() (uint64, error) {
	b, err := c.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}
