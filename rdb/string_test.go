package rdb

import (
	"bytes"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/919927181/rdbmem/internal/rdbtest"
)

func testDecode(p []byte) *decode {
	return newDecode(bytes.NewReader(p), nil, nil)
}

func TestReadLength(t *testing.T) {
	for _, n := range []uint64{0, 1, 63, 64, 16383, 16384, math.MaxUint32, math.MaxUint32 + 1} {
		d := testDecode(rdbtest.New().Length(n).Build())
		got, special, err := d.readLength()
		require.NoError(t, err, "length %d", n)
		assert.False(t, special)
		assert.Equal(t, n, got)
	}
}

func TestReadLengthForms(t *testing.T) {
	cases := []struct {
		in      []byte
		want    uint64
		special bool
	}{
		{[]byte{0x0A}, 10, false},
		{[]byte{0x42, 0xBC}, 700, false},
		{[]byte{0x80, 0x00, 0x01, 0x00, 0x00}, 65536, false},
		{[]byte{0xC0}, rdbEncInt8, true},
		{[]byte{0xC3}, rdbEncLZF, true},
	}
	for _, c := range cases {
		got, special, err := testDecode(c.in).readLength()
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
		assert.Equal(t, c.special, special)
	}
}

func TestReadLengthUnknownForm(t *testing.T) {
	_, _, err := testDecode([]byte{0x82}).readLength()
	require.Error(t, err)
	assert.True(t, IsEncodingError(err))
}

func TestReadPlainLengthRejectsSpecial(t *testing.T) {
	_, err := testDecode([]byte{0xC0}).readPlainLength()
	assert.True(t, IsEncodingError(err))
}

func TestReadString(t *testing.T) {
	cases := []struct {
		in   []byte
		want string
	}{
		{rdbtest.New().String("hello").Build(), "hello"},
		{rdbtest.New().String("").Build(), ""},
		{[]byte{0xC0, 0x7B}, "123"},
		{[]byte{0xC0, 0xFF}, "-1"},
		{rdbtest.New().Int16(-300).Build(), "-300"},
		{rdbtest.New().Int32(70000).Build(), "70000"},
		{rdbtest.New().LZF([]byte{2, 'a', 'b', 'c', 0x80, 2}, 9).Build(), "abcabcabc"},
	}
	for _, c := range cases {
		got, err := testDecode(c.in).readString()
		require.NoError(t, err)
		assert.Equal(t, c.want, string(got))
	}
}

func TestReadStringLZFLengthMismatch(t *testing.T) {
	in := rdbtest.New().LZF([]byte{2, 'a', 'b', 'c'}, 5).Build()
	_, err := testDecode(in).readString()
	require.Error(t, err)
	assert.True(t, IsEncodingError(err))
}

func TestReadStringUnknownEncoding(t *testing.T) {
	_, err := testDecode([]byte{0xC4}).readString()
	assert.True(t, IsEncodingError(err))
}

func TestReadStringTruncated(t *testing.T) {
	_, err := testDecode([]byte{0x05, 'a', 'b'}).readString()
	require.Error(t, err)
	assert.True(t, IsIOError(err))
}

func TestReadStringLengthOutOfRange(t *testing.T) {
	_, err := testDecode(rdbtest.New().Length(1 << 63).Build()).readString()
	require.Error(t, err)
	assert.True(t, IsEncodingError(err))
}

func TestReadStringDeclaredLengthTruncated(t *testing.T) {
	in := []byte{0x80, 0xFF, 0xFF, 0xFF, 0xFF, 'a', 'b'}
	_, err := testDecode(in).readString()
	require.Error(t, err)
	assert.True(t, IsIOError(err))
	assert.Equal(t, io.ErrUnexpectedEOF, errors.Cause(err).(*Error).Err)
}

func TestReadStringLarge(t *testing.T) {
	value := strings.Repeat("x", 3*skipChunk+7)
	in := rdbtest.New().String(value).String("next").Build()
	d := testDecode(in)
	got, err := d.readString()
	require.NoError(t, err)
	assert.Equal(t, value, string(got))
	got, err = d.readString()
	require.NoError(t, err)
	assert.Equal(t, "next", string(got))
	assert.Equal(t, int64(len(in)), d.readCount)
}

func TestReadStringLZFLengthOutOfRange(t *testing.T) {
	for _, ulen := range []uint64{1 << 63, 1 << 40} {
		in := rdbtest.New().Byte(0xC3).Length(4).Length(ulen).Raw([]byte{2, 'a', 'b', 'c'}).Build()
		_, err := testDecode(in).readString()
		require.Error(t, err)
		assert.True(t, IsEncodingError(err), "ulen %d", ulen)
	}
}

func TestSkipStringKeepsPosition(t *testing.T) {
	in := rdbtest.New().
		String("skipped").
		Int32(5).
		LZF([]byte{2, 'a', 'b', 'c', 0x80, 2}, 9).
		String("next").
		Build()
	d := testDecode(in)
	for i := 0; i < 3; i++ {
		require.NoError(t, d.skipString())
	}
	got, err := d.readString()
	require.NoError(t, err)
	assert.Equal(t, "next", string(got))
	assert.Equal(t, int64(len(in)), d.readCount)
}

func TestReadFloat64(t *testing.T) {
	f, err := testDecode(rdbtest.New().FloatString("1.5").Build()).readFloat64()
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)

	f, err = testDecode([]byte{253}).readFloat64()
	require.NoError(t, err)
	assert.True(t, math.IsNaN(f))

	f, err = testDecode([]byte{254}).readFloat64()
	require.NoError(t, err)
	assert.True(t, math.IsInf(f, 1))

	f, err = testDecode([]byte{255}).readFloat64()
	require.NoError(t, err)
	assert.True(t, math.IsInf(f, -1))

	_, err = testDecode(rdbtest.New().FloatString("x1").Build()).readFloat64()
	assert.True(t, IsEncodingError(err))
}

func TestReadBinaryFloats(t *testing.T) {
	f, err := testDecode(rdbtest.New().Float64(-2.25).Build()).readBinaryFloat64()
	require.NoError(t, err)
	assert.Equal(t, -2.25, f)

	g, err := testDecode(rdbtest.New().Float32(0.5).Build()).readBinaryFloat32()
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), g)
}
