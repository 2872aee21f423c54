package rdb

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/juju/errors"

	"github.com/919927181/rdbmem/rdb/lzf"
)

const (
	rdb6bitLen  = 0
	rdb14bitLen = 1
	rdb32bitLen = 0x80
	rdb64bitLen = 0x81
	rdbEncVal   = 3

	rdbEncInt8  = 0
	rdbEncInt16 = 1
	rdbEncInt32 = 2
	rdbEncLZF   = 3
)

// readLength reads an encoded length. special is true when the top two bits
// are 11 and the returned value names a string encoding instead.
func (d *decode) readLength() (uint64, bool, error) {
	b, err := d.readByte()
	if err != nil {
		return 0, false, errors.Trace(err)
	}
	// The first two bits of the first byte are used to indicate the length encoding type
	switch (b & 0xc0) >> 6 {
	case rdb6bitLen:
		return uint64(b & 0x3f), false, nil
	case rdb14bitLen:
		bb, err := d.readByte()
		if err != nil {
			return 0, false, errors.Trace(err)
		}
		return (uint64(b&0x3f) << 8) | uint64(bb), false, nil
	case rdbEncVal:
		return uint64(b & 0x3f), true, nil
	}
	switch b {
	case rdb32bitLen:
		if err := d.readFull(d.intBuf[:4]); err != nil {
			return 0, false, errors.Trace(err)
		}
		return uint64(binary.BigEndian.Uint32(d.intBuf)), false, nil
	case rdb64bitLen:
		if err := d.readFull(d.intBuf); err != nil {
			return 0, false, errors.Trace(err)
		}
		return binary.BigEndian.Uint64(d.intBuf), false, nil
	}
	return 0, false, newEncodingError("unknown length encoding 0x%02x", b)
}

// readPlainLength is readLength for places where a special value is invalid.
func (d *decode) readPlainLength() (uint64, error) {
	n, special, err := d.readLength()
	if err != nil {
		return 0, errors.Trace(err)
	}
	if special {
		return 0, newEncodingError("unexpected encoded value %d where a length was expected", n)
	}
	return n, nil
}

func (d *decode) readString() ([]byte, error) {
	length, special, err := d.readLength()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if !special {
		str, err := d.readBytes(length)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return str, nil
	}

	switch length {
	case rdbEncInt8:
		b, err := d.readByte()
		if err != nil {
			return nil, errors.Trace(err)
		}
		return []byte(strconv.FormatInt(int64(int8(b)), 10)), nil
	case rdbEncInt16:
		i, err := d.readUint16()
		if err != nil {
			return nil, errors.Trace(err)
		}
		return []byte(strconv.FormatInt(int64(int16(i)), 10)), nil
	case rdbEncInt32:
		i, err := d.readUint32()
		if err != nil {
			return nil, errors.Trace(err)
		}
		return []byte(strconv.FormatInt(int64(int32(i)), 10)), nil
	case rdbEncLZF:
		clen, err := d.readPlainLength()
		if err != nil {
			return nil, errors.Trace(err)
		}
		ulen, err := d.readPlainLength()
		if err != nil {
			return nil, errors.Trace(err)
		}
		compressed, err := d.readBytes(clen)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if ulen > uint64(len(compressed))*lzf.MaxExpansion {
			return nil, newEncodingError("lzf string of %d bytes cannot expand to %d", clen, ulen)
		}
		out, err := lzf.Decompress(compressed, int(ulen))
		if err != nil {
			return nil, wrapEncodingError(err, "lzf string")
		}
		if uint64(len(out)) != ulen {
			return nil, newEncodingError("decompressed string length %d didn't match expected length %d", len(out), ulen)
		}
		return out, nil
	}
	return nil, newEncodingError("unknown string encoding %d", length)
}

// skipString consumes an encoded string without materializing it.
func (d *decode) skipString() error {
	length, special, err := d.readLength()
	if err != nil {
		return errors.Trace(err)
	}
	if !special {
		return errors.Trace(d.skipBytes(length))
	}
	switch length {
	case rdbEncInt8:
		return errors.Trace(d.skipBytes(1))
	case rdbEncInt16:
		return errors.Trace(d.skipBytes(2))
	case rdbEncInt32:
		return errors.Trace(d.skipBytes(4))
	case rdbEncLZF:
		clen, err := d.readPlainLength()
		if err != nil {
			return errors.Trace(err)
		}
		if _, err := d.readPlainLength(); err != nil {
			return errors.Trace(err)
		}
		return errors.Trace(d.skipBytes(clen))
	}
	return newEncodingError("unknown string encoding %d", length)
}

func (d *decode) readUint16() (uint16, error) {
	if err := d.readFull(d.intBuf[:2]); err != nil {
		return 0, errors.Trace(err)
	}
	return binary.LittleEndian.Uint16(d.intBuf), nil
}

func (d *decode) readUint32() (uint32, error) {
	if err := d.readFull(d.intBuf[:4]); err != nil {
		return 0, errors.Trace(err)
	}
	return binary.LittleEndian.Uint32(d.intBuf), nil
}

func (d *decode) readUint64() (uint64, error) {
	if err := d.readFull(d.intBuf); err != nil {
		return 0, errors.Trace(err)
	}
	return binary.LittleEndian.Uint64(d.intBuf), nil
}

func (d *decode) readBinaryFloat64() (float64, error) {
	v, err := d.readUint64()
	if err != nil {
		return 0, errors.Trace(err)
	}
	return math.Float64frombits(v), nil
}

func (d *decode) readBinaryFloat32() (float32, error) {
	v, err := d.readUint32()
	if err != nil {
		return 0, errors.Trace(err)
	}
	return math.Float32frombits(v), nil
}

// Doubles are saved as strings prefixed by an unsigned
// 8 bit integer specifying the length of the representation.
// This 8 bit integer has special values in order to specify the following
// conditions:
// 253: not a number
// 254: + inf
// 255: - inf
func (d *decode) readFloat64() (float64, error) {
	length, err := d.readByte()
	if err != nil {
		return 0, errors.Trace(err)
	}
	switch length {
	case 253:
		return math.NaN(), nil
	case 254:
		return math.Inf(1), nil
	case 255:
		return math.Inf(-1), nil
	}
	buf := make([]byte, length)
	if err := d.readFull(buf); err != nil {
		return 0, errors.Trace(err)
	}
	f, err := strconv.ParseFloat(string(buf), 64)
	if err != nil {
		return 0, wrapEncodingError(err, "bad float %q", buf)
	}
	return f, nil
}

func (d *decode) skipFloat64() error {
	length, err := d.readByte()
	if err != nil {
		return errors.Trace(err)
	}
	if length >= 253 {
		return nil
	}
	return errors.Trace(d.skipBytes(uint64(length)))
}
