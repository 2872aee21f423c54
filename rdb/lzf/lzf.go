// Package lzf decompresses the LZF blocks used for large RDB strings.
package lzf

import "github.com/juju/errors"

// MaxExpansion bounds the output produced per input byte: the longest
// back reference is 3 bytes long and yields 264 bytes.
const MaxExpansion = 88

var (
	ErrInsufficientBuffer = errors.New("lzf: insufficient output buffer")
	ErrDataCorruption     = errors.New("lzf: data corruption")
)

// Decompress expands in into a buffer of outLen bytes. The returned slice is
// truncated to the bytes actually produced; callers compare its length with
// the declared uncompressed length.
func Decompress(in []byte, outLen int) ([]byte, error) {
	if outLen < 0 || outLen > len(in)*MaxExpansion {
		return nil, errors.Annotatef(ErrInsufficientBuffer, "%d input bytes cannot expand to %d", len(in), outLen)
	}
	out := make([]byte, outLen)
	var i, o int

	for i < len(in) {
		ctrl := int(in[i])
		i++

		if ctrl < 1<<5 { // literal run
			ctrl++
			if o+ctrl > outLen {
				return nil, errors.Annotatef(ErrInsufficientBuffer, "literal run of %d at %d", ctrl, o)
			}
			if i+ctrl > len(in) {
				return nil, errors.Annotatef(ErrDataCorruption, "literal run of %d past input end", ctrl)
			}
			copy(out[o:o+ctrl], in[i:i+ctrl])
			i += ctrl
			o += ctrl
			continue
		}

		// back reference
		length := ctrl >> 5
		ref := o - ((ctrl & 0x1f) << 8) - 1
		if i >= len(in) {
			return nil, errors.Annotate(ErrDataCorruption, "truncated back reference")
		}
		if length == 7 {
			length += int(in[i])
			i++
			if i >= len(in) {
				return nil, errors.Annotate(ErrDataCorruption, "truncated back reference")
			}
		}
		ref -= int(in[i])
		i++

		if o+length+2 > outLen {
			return nil, errors.Annotatef(ErrInsufficientBuffer, "back reference of %d at %d", length+2, o)
		}
		if ref < 0 {
			return nil, errors.Annotatef(ErrDataCorruption, "back reference before start of output (%d)", ref)
		}
		// source and destination may overlap, copy byte by byte
		for x := 0; x < length+2; x++ {
			out[o+x] = out[ref+x]
		}
		o += length + 2
	}

	return out[:o], nil
}
