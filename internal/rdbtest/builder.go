// Package rdbtest writes RDB byte streams for tests.
package rdbtest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/919927181/rdb/crc64"
)

const moduleCharSet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// Builder appends RDB primitives. Methods return the builder so records chain.
type Builder struct {
	buf bytes.Buffer
}

func New() *Builder {
	return &Builder{}
}

// Header writes the magic and a 4 digit version.
func (b *Builder) Header(version int) *Builder {
	fmt.Fprintf(&b.buf, "REDIS%04d", version)
	return b
}

func (b *Builder) Byte(v byte) *Builder {
	b.buf.WriteByte(v)
	return b
}

func (b *Builder) Raw(p []byte) *Builder {
	b.buf.Write(p)
	return b
}

// Length writes n in the shortest of the four length forms.
func (b *Builder) Length(n uint64) *Builder {
	switch {
	case n < 1<<6:
		b.buf.WriteByte(byte(n))
	case n < 1<<14:
		b.buf.WriteByte(byte(n>>8) | 0x40)
		b.buf.WriteByte(byte(n))
	case n <= math.MaxUint32:
		b.buf.WriteByte(0x80)
		var p [4]byte
		binary.BigEndian.PutUint32(p[:], uint32(n))
		b.buf.Write(p[:])
	default:
		b.buf.WriteByte(0x81)
		var p [8]byte
		binary.BigEndian.PutUint64(p[:], n)
		b.buf.Write(p[:])
	}
	return b
}

func (b *Builder) String(s string) *Builder {
	return b.Bytes(len(s), []byte(s))
}

// Bytes writes a raw length-prefixed string; n is the declared length.
func (b *Builder) Bytes(n int, p []byte) *Builder {
	b.Length(uint64(n))
	b.buf.Write(p)
	return b
}

func (b *Builder) Int8(v int8) *Builder {
	b.buf.WriteByte(0xC0)
	b.buf.WriteByte(byte(v))
	return b
}

func (b *Builder) Int16(v int16) *Builder {
	b.buf.WriteByte(0xC1)
	return b.Uint16(uint16(v))
}

func (b *Builder) Int32(v int32) *Builder {
	b.buf.WriteByte(0xC2)
	return b.Uint32(uint32(v))
}

// LZF writes an already compressed block declaring ulen uncompressed bytes.
func (b *Builder) LZF(compressed []byte, ulen int) *Builder {
	b.buf.WriteByte(0xC3)
	b.Length(uint64(len(compressed)))
	b.Length(uint64(ulen))
	b.buf.Write(compressed)
	return b
}

func (b *Builder) Uint16(v uint16) *Builder {
	var p [2]byte
	binary.LittleEndian.PutUint16(p[:], v)
	b.buf.Write(p[:])
	return b
}

func (b *Builder) Uint32(v uint32) *Builder {
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], v)
	b.buf.Write(p[:])
	return b
}

func (b *Builder) Uint64(v uint64) *Builder {
	var p [8]byte
	binary.LittleEndian.PutUint64(p[:], v)
	b.buf.Write(p[:])
	return b
}

func (b *Builder) Float64(f float64) *Builder {
	return b.Uint64(math.Float64bits(f))
}

func (b *Builder) Float32(f float32) *Builder {
	return b.Uint32(math.Float32bits(f))
}

// FloatString writes a legacy string encoded score.
func (b *Builder) FloatString(s string) *Builder {
	b.buf.WriteByte(byte(len(s)))
	b.buf.WriteString(s)
	return b
}

func (b *Builder) Aux(key, value string) *Builder {
	return b.Byte(250).String(key).String(value)
}

func (b *Builder) SelectDB(n int) *Builder {
	return b.Byte(254).Length(uint64(n))
}

func (b *Builder) ResizeDB(keys, expires uint64) *Builder {
	return b.Byte(251).Length(keys).Length(expires)
}

func (b *Builder) ExpiryMs(ms int64) *Builder {
	return b.Byte(252).Uint64(uint64(ms))
}

func (b *Builder) ExpirySec(sec uint32) *Builder {
	return b.Byte(253).Uint32(sec)
}

func (b *Builder) Idle(seconds uint64) *Builder {
	return b.Byte(248).Length(seconds)
}

func (b *Builder) Freq(f byte) *Builder {
	return b.Byte(249).Byte(f)
}

// Key writes an object type tag and the key name. The value follows.
func (b *Builder) Key(typ byte, key string) *Builder {
	return b.Byte(typ).String(key)
}

// StringKey writes a complete string key=value record.
func (b *Builder) StringKey(key, value string) *Builder {
	return b.Key(0, key).String(value)
}

// EOF writes the EOF opcode. Follow with Checksum for version 5 and later.
func (b *Builder) EOF() *Builder {
	return b.Byte(255)
}

// Checksum appends the CRC64 of everything written so far.
func (b *Builder) Checksum() *Builder {
	return b.Uint64(crc64.Digest(b.buf.Bytes()))
}

// Build returns a copy of the bytes written so far.
func (b *Builder) Build() []byte {
	return append([]byte(nil), b.buf.Bytes()...)
}

// ModuleID packs a 9 character module name and encoding version.
func ModuleID(name string, encver uint64) uint64 {
	var id uint64
	for i := 0; i < len(name); i++ {
		id = id<<6 | uint64(strings.IndexByte(moduleCharSet, name[i]))
	}
	return id<<10 | encver
}

// StreamID is the 16 byte big endian form of ms-seq used in stream PELs and node keys.
func StreamID(ms, seq uint64) []byte {
	p := make([]byte, 16)
	binary.BigEndian.PutUint64(p, ms)
	binary.BigEndian.PutUint64(p[8:], seq)
	return p
}

// Dump wraps an object payload (type byte plus value) the way the DUMP command does.
func Dump(payload []byte, version uint16) []byte {
	out := append([]byte(nil), payload...)
	var v [2]byte
	binary.LittleEndian.PutUint16(v[:], version)
	out = append(out, v[:]...)
	var sum [8]byte
	binary.LittleEndian.PutUint64(sum[:], crc64.Digest(out))
	return append(out, sum[:]...)
}
