package structure

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorReads(t *testing.T) {
	c := NewCursor([]byte{0x01, 0x02, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0xaa, 0xbb})

	b, err := c.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), b)

	u16, err := c.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(2), u16)

	u32, err := c.ReadUint32BE()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x04000000), u32)

	assert.Equal(t, 7, c.Pos())
	require.NoError(t, c.Skip(3))

	p, err := c.PeekByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), p)
	assert.Equal(t, 10, c.Pos())

	rest, err := c.ReadBytes(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0xaa, 0xbb}, rest)
	assert.Equal(t, 0, c.Remaining())
	assert.Equal(t, 13, c.Len())
}

func TestCursorOutOfRange(t *testing.T) {
	c := NewCursor([]byte{0x01, 0x02, 0x03})

	_, err := c.ReadUint64()
	require.Error(t, err)
	assert.Equal(t, ErrShortBlob, errors.Cause(err))
	assert.Equal(t, 0, c.Pos(), "failed reads must not move the cursor")

	_, err = c.ReadBytes(-1)
	assert.Equal(t, ErrShortBlob, errors.Cause(err))

	require.NoError(t, c.Skip(3))
	_, err = c.ReadByte()
	assert.Equal(t, ErrShortBlob, errors.Cause(err))
	_, err = c.PeekByte()
	assert.Equal(t, ErrShortBlob, errors.Cause(err))
}
