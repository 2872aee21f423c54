package rdb

import (
	"encoding/binary"
	"strconv"

	"github.com/juju/errors"

	"github.com/919927181/rdbmem/rdb/core/types"
)

// 读取redisObject, dispatching on the object type tag
func (d *decode) readObject(key []byte, typ types.ValueType) error {
	expiry := d.expiry
	switch typ {
	case types.TypeString:
		value, err := d.readString()
		if err != nil {
			return errors.Trace(err)
		}
		d.event.Set(key, value, expiry, d.info)
	case types.TypeList:
		length, err := d.readPlainLength()
		if err != nil {
			return errors.Trace(err)
		}
		d.event.StartList(key, int64(length), expiry, d.info)
		for ; length > 0; length-- {
			value, err := d.readString()
			if err != nil {
				return errors.Trace(err)
			}
			d.event.Rpush(key, value)
		}
		d.event.EndList(key)
	case types.TypeSet:
		cardinality, err := d.readPlainLength()
		if err != nil {
			return errors.Trace(err)
		}
		d.event.StartSet(key, int64(cardinality), expiry, d.info)
		for ; cardinality > 0; cardinality-- {
			member, err := d.readString()
			if err != nil {
				return errors.Trace(err)
			}
			d.event.Sadd(key, member)
		}
		d.event.EndSet(key)
	case types.TypeZSet, types.TypeZSet2:
		cardinality, err := d.readPlainLength()
		if err != nil {
			return errors.Trace(err)
		}
		d.event.StartZSet(key, int64(cardinality), expiry, d.info)
		for ; cardinality > 0; cardinality-- {
			member, err := d.readString()
			if err != nil {
				return errors.Trace(err)
			}
			var score float64
			if typ == types.TypeZSet2 {
				score, err = d.readBinaryFloat64()
			} else {
				score, err = d.readFloat64()
			}
			if err != nil {
				return errors.Trace(err)
			}
			d.event.Zadd(key, score, member)
		}
		d.event.EndZSet(key)
	case types.TypeHash:
		length, err := d.readPlainLength()
		if err != nil {
			return errors.Trace(err)
		}
		d.event.StartHash(key, int64(length), expiry, d.info)
		for ; length > 0; length-- {
			field, err := d.readString()
			if err != nil {
				return errors.Trace(err)
			}
			value, err := d.readString()
			if err != nil {
				return errors.Trace(err)
			}
			d.event.Hset(key, field, value)
		}
		d.event.EndHash(key)
	case types.TypeHashZipMap:
		return errors.Trace(d.readCompactHash(key, readZipmap))
	case types.TypeHashZipList:
		return errors.Trace(d.readCompactHash(key, readZiplist))
	case types.TypeHashListPack:
		return errors.Trace(d.readCompactHash(key, readListpack))
	case types.TypeListZipList:
		blob, entries, err := d.readBlob(readZiplist)
		if err != nil {
			return errors.Trace(err)
		}
		d.info.SizeOfValue = len(blob)
		d.event.StartList(key, int64(len(entries)), expiry, d.info)
		for _, e := range entries {
			d.event.Rpush(key, e)
		}
		d.event.EndList(key)
	case types.TypeSetIntSet:
		return errors.Trace(d.readCompactSet(key, readIntset))
	case types.TypeSetListPack:
		return errors.Trace(d.readCompactSet(key, readListpack))
	case types.TypeZSetZipList:
		return errors.Trace(d.readCompactZSet(key, readZiplist))
	case types.TypeZSetListPack:
		return errors.Trace(d.readCompactZSet(key, readListpack))
	case types.TypeListQuickList:
		return errors.Trace(d.readQuickList(key, false))
	case types.TypeListQuickList2:
		return errors.Trace(d.readQuickList(key, true))
	case types.TypeStreamListPacks, types.TypeStreamListPacks2, types.TypeStreamListPacks3:
		return errors.Trace(d.readStream(key, typ, true))
	case types.TypeModule:
		return newEncodingError("pre-GA module values (type 6) cannot be parsed without the module")
	case types.TypeModule2:
		return errors.Trace(d.readModule(key, true))
	default:
		return newEncodingError("unsupported object type %d", byte(typ))
	}
	return nil
}

type blobCodec func([]byte) ([][]byte, error)

func (d *decode) readBlob(codec blobCodec) ([]byte, [][]byte, error) {
	blob, err := d.readString()
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	entries, err := codec(blob)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	return blob, entries, nil
}

func (d *decode) readCompactHash(key []byte, codec blobCodec) error {
	blob, entries, err := d.readBlob(codec)
	if err != nil {
		return errors.Trace(err)
	}
	if len(entries)%2 != 0 {
		return newEncodingError("%s hash has odd entry count %d", d.info.Encoding, len(entries))
	}
	d.info.SizeOfValue = len(blob)
	d.event.StartHash(key, int64(len(entries)/2), d.expiry, d.info)
	for i := 0; i < len(entries); i += 2 {
		d.event.Hset(key, entries[i], entries[i+1])
	}
	d.event.EndHash(key)
	return nil
}

func (d *decode) readCompactSet(key []byte, codec blobCodec) error {
	blob, entries, err := d.readBlob(codec)
	if err != nil {
		return errors.Trace(err)
	}
	d.info.SizeOfValue = len(blob)
	d.event.StartSet(key, int64(len(entries)), d.expiry, d.info)
	for _, e := range entries {
		d.event.Sadd(key, e)
	}
	d.event.EndSet(key)
	return nil
}

func (d *decode) readCompactZSet(key []byte, codec blobCodec) error {
	blob, entries, err := d.readBlob(codec)
	if err != nil {
		return errors.Trace(err)
	}
	if len(entries)%2 != 0 {
		return newEncodingError("%s zset has odd entry count %d", d.info.Encoding, len(entries))
	}
	scores := make([]float64, len(entries)/2)
	for i := range scores {
		if scores[i], err = parseCompactScore(entries[2*i+1]); err != nil {
			return errors.Annotatef(err, "member %q", entries[2*i])
		}
	}
	d.info.SizeOfValue = len(blob)
	d.event.StartZSet(key, int64(len(scores)), d.expiry, d.info)
	for i, score := range scores {
		d.event.Zadd(key, score, entries[2*i])
	}
	d.event.EndZSet(key)
	return nil
}

// parseCompactScore parses a score stored in a ziplist or listpack. Scores
// that are not valid floats but fit in two bytes are read as a little
// endian int16, as old writers did.
func parseCompactScore(raw []byte) (float64, error) {
	if f, err := strconv.ParseFloat(string(raw), 64); err == nil {
		return f, nil
	}
	if len(raw) >= 1 && len(raw) <= 2 {
		var b [2]byte
		copy(b[:], raw)
		return float64(int16(binary.LittleEndian.Uint16(b[:]))), nil
	}
	return 0, newEncodingError("invalid sorted set score %q", raw)
}

// readQuickList reads quicklist (ziplist nodes) and quicklist2 (plain or listpack nodes).
func (d *decode) readQuickList(key []byte, v2 bool) error {
	nodes, err := d.readPlainLength()
	if err != nil {
		return errors.Trace(err)
	}
	d.info.Nodes = nodes
	d.event.StartList(key, -1, d.expiry, d.info)
	for i := uint64(0); i < nodes; i++ {
		container := uint64(QuickListNodePacked)
		if v2 {
			if container, err = d.readPlainLength(); err != nil {
				return errors.Trace(err)
			}
		}
		switch container {
		case QuickListNodePlain:
			value, err := d.readString()
			if err != nil {
				return errors.Trace(err)
			}
			d.event.ListNode(key, QuickListNode{Container: QuickListNodePlain, Encoding: "plain", Size: len(value), Count: 1})
			d.event.Rpush(key, value)
		case QuickListNodePacked:
			codec, encoding := blobCodec(readZiplist), types.EncZiplist
			if v2 {
				codec, encoding = readListpack, types.EncListpack
			}
			blob, entries, err := d.readBlob(codec)
			if err != nil {
				return errors.Annotatef(err, "quicklist node %d", i)
			}
			d.event.ListNode(key, QuickListNode{Container: QuickListNodePacked, Encoding: encoding, Size: len(blob), Count: len(entries)})
			for _, e := range entries {
				d.event.Rpush(key, e)
			}
		default:
			return newEncodingError("unknown quicklist node container %d", container)
		}
	}
	d.event.EndList(key)
	return nil
}

// skipObject consumes a value without calling the Decoder.
func (d *decode) skipObject(key []byte, typ types.ValueType) error {
	switch typ {
	case types.TypeString,
		types.TypeHashZipMap, types.TypeListZipList, types.TypeSetIntSet,
		types.TypeZSetZipList, types.TypeHashZipList,
		types.TypeHashListPack, types.TypeZSetListPack, types.TypeSetListPack:
		return errors.Trace(d.skipString())
	case types.TypeList, types.TypeSet, types.TypeListQuickList:
		return errors.Trace(d.skipStrings(1))
	case types.TypeHash:
		return errors.Trace(d.skipStrings(2))
	case types.TypeZSet, types.TypeZSet2:
		n, err := d.readPlainLength()
		if err != nil {
			return errors.Trace(err)
		}
		for ; n > 0; n-- {
			if err := d.skipString(); err != nil {
				return errors.Trace(err)
			}
			if typ == types.TypeZSet2 {
				err = d.skipBytes(8)
			} else {
				err = d.skipFloat64()
			}
			if err != nil {
				return errors.Trace(err)
			}
		}
		return nil
	case types.TypeListQuickList2:
		n, err := d.readPlainLength()
		if err != nil {
			return errors.Trace(err)
		}
		for ; n > 0; n-- {
			if _, err := d.readPlainLength(); err != nil {
				return errors.Trace(err)
			}
			if err := d.skipString(); err != nil {
				return errors.Trace(err)
			}
		}
		return nil
	case types.TypeStreamListPacks, types.TypeStreamListPacks2, types.TypeStreamListPacks3:
		return errors.Trace(d.readStream(key, typ, false))
	case types.TypeModule2:
		return errors.Trace(d.readModule(key, false))
	case types.TypeModule:
		return newEncodingError("pre-GA module values (type 6) cannot be parsed without the module")
	}
	return newEncodingError("unsupported object type %d", byte(typ))
}

// skipStrings skips a length followed by length*per strings.
func (d *decode) skipStrings(per uint64) error {
	n, err := d.readPlainLength()
	if err != nil {
		return errors.Trace(err)
	}
	for i := uint64(0); i < n*per; i++ {
		if err := d.skipString(); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
