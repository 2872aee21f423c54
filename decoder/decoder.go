// Copyright 2017 XUEQIU.COM
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package decoder

import (
	"math/rand"
	"os"
	"strconv"
	"sync"

	"github.com/juju/errors"

	"github.com/919927181/rdbmem/internal/log"
	"github.com/919927181/rdbmem/rdb"
	"github.com/919927181/rdbmem/rdb/core/types"
	"github.com/919927181/rdbmem/rdb/nopdecoder"
)

// Record is the memory estimate of one redis key
type Record struct {
	Database           int
	Key                string
	Type               string
	Encoding           string
	Bytes              uint64
	NumOfElem          uint64
	LenOfLargestElem   uint64
	FieldOfLargestElem string
	Expiry             int64
	Idle               uint64
	Freq               int
}

// recordBuilder accumulates the record of the key being streamed between a
// Start* and its End* callback.
type recordBuilder struct {
	rec       *Record
	info      *rdb.Info
	plainNode bool
}

func (b *recordBuilder) add(n uint64) {
	b.rec.Bytes += n
}

func (b *recordBuilder) largest(elem []byte, l uint64) {
	if l > b.rec.LenOfLargestElem {
		b.rec.FieldOfLargestElem = string(elem)
		b.rec.LenOfLargestElem = l
	}
}

const defaultChannelSize = 1024

// Option configures a Decoder.
type Option func(*Decoder)

// WithChannelSize sets the capacity of Entries.
func WithChannelSize(n int) Option {
	return func(d *Decoder) {
		d.chanSize = n
	}
}

// WithRand sets the source of the skiplist level estimate.
func WithRand(rnd *rand.Rand) Option {
	return func(d *Decoder) {
		d.rnd = rnd
	}
}

// WithParseOptions passes options to rdb.Decode in DecodeFile.
func WithParseOptions(opts ...rdb.Option) Option {
	return func(d *Decoder) {
		d.parseOpts = append(d.parseOpts, opts...)
	}
}

// Decoder decode rdb file and publishes one Record per key on Entries
type Decoder struct {
	Entries chan *Record
	m       *MemProfiler

	usedMem int64
	ctime   int64
	rdbVer  int //rdb file version
	valkey  bool
	db      int

	cur *recordBuilder

	chanSize  int
	rnd       *rand.Rand
	parseOpts []rdb.Option
	closeOnce sync.Once

	nopdecoder.NopDecoder
}

// NewDecoder new a rdb decoder
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{chanSize: defaultChannelSize}
	for _, opt := range opts {
		opt(d)
	}
	d.Entries = make(chan *Record, d.chanSize)
	d.m = NewMemProfiler(d.rnd)
	return d
}

// DecodeFile parses the rdb file at path. Entries is closed when it returns.
func (d *Decoder) DecodeFile(path string) error {
	defer d.close()
	f, err := os.Open(path)
	if err != nil {
		return errors.Annotatef(err, "open rdb file")
	}
	defer f.Close()
	if err := rdb.Decode(f, d, d.parseOpts...); err != nil {
		return errors.Annotatef(err, "decode %s", path)
	}
	return nil
}

func (d *Decoder) close() {
	d.closeOnce.Do(func() {
		close(d.Entries)
	})
}

func (d *Decoder) GetTimestamp() int64 {
	return d.ctime
}

func (d *Decoder) GetUsedMem() int64 {
	return d.usedMem
}

// ExpiryKeys is the number of keys with a ttl seen so far.
func (d *Decoder) ExpiryKeys() uint64 {
	return d.m.ExpiryKeys()
}

// IsValkey reports whether the file carried a valkey-ver aux field.
func (d *Decoder) IsValkey() bool {
	return d.valkey
}

func (d *Decoder) StartRDB(ver int) {
	d.rdbVer = ver
}

func (d *Decoder) StartDatabase(n int) {
	d.db = n
}

func (d *Decoder) AuxField(key, value []byte) {
	switch string(key) {
	case "ctime":
		n, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			log.Warnf("decoder: ParseInt(%s): %v", value, err)
		}
		d.ctime = n
	case "used-mem":
		n, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			log.Warnf("decoder: ParseInt(%s): %v", value, err)
		}
		d.usedMem = n
	case "redis-bits":
		bits, err := strconv.Atoi(string(value))
		if err != nil {
			log.Warnf("decoder: bad redis-bits %q", value)
			return
		}
		d.m.SetArchBits(bits)
	case "valkey-ver":
		d.valkey = true
	}
}

// EndRDB is called when parsing of the RDB file is complete.
func (d *Decoder) EndRDB() {
	d.close()
}

func (d *Decoder) start(key []byte, typ string, expiry int64, info *rdb.Info) *recordBuilder {
	d.cur = &recordBuilder{
		rec: &Record{
			Database: d.db,
			Key:      string(key),
			Type:     typ,
			Encoding: info.Encoding,
			Bytes:    d.m.TopLevelObjOverhead(key, expiry),
			Expiry:   expiry,
			Idle:     info.Idle,
			Freq:     info.Freq,
		},
		info: info,
	}
	return d.cur
}

func (d *Decoder) emit() {
	d.Entries <- d.cur.rec
	d.cur = nil
}

// legacyRobj is true for files written before values were stored as plain sds.
func (d *Decoder) legacyRobj() bool {
	return d.rdbVer < 8
}

// Set is called once for each string key.
func (d *Decoder) Set(key, value []byte, expiry int64, info *rdb.Info) {
	b := d.start(key, types.String, expiry, info)
	b.add(d.m.SizeofString(value))
	b.rec.NumOfElem = d.m.ElemLen(value)
	d.emit()
}

// StartHash is called at the beginning of a hash.
// Hset will be called exactly length times before EndHash.
func (d *Decoder) StartHash(key []byte, length, expiry int64, info *rdb.Info) {
	b := d.start(key, types.Hash, expiry, info)
	b.rec.NumOfElem = uint64(length)
	switch info.Encoding {
	case types.EncHashtable:
		b.add(d.m.HashTableOverHead(uint64(length)))
	case types.EncZipmap, types.EncZiplist, types.EncListpack:
		b.add(d.m.MallocOverhead(uint64(info.SizeOfValue)))
	default:
		panic(rdb.UnknownEncoding(types.Hash, info.Encoding))
	}
}

// Hset is called once for each field=value pair in a hash.
func (d *Decoder) Hset(key, field, value []byte) {
	b := d.cur
	b.largest(field, d.m.ElemLen(field)+d.m.ElemLen(value))
	if b.info.Encoding != types.EncHashtable {
		return
	}
	b.add(d.m.SizeofString(field))
	b.add(d.m.SizeofString(value))
	b.add(d.m.HashTableEntryOverHead())
	if d.legacyRobj() {
		b.add(2 * d.m.RobjOverHead())
	}
}

// EndHash is called when there are no more fields in a hash.
func (d *Decoder) EndHash(key []byte) {
	d.emit()
}

// StartSet is called at the beginning of a set.
// Sadd will be called exactly cardinality times before EndSet.
func (d *Decoder) StartSet(key []byte, cardinality, expiry int64, info *rdb.Info) {
	b := d.start(key, types.Set, expiry, info)
	b.rec.NumOfElem = uint64(cardinality)
	switch info.Encoding {
	case types.EncHashtable:
		b.add(d.m.HashTableOverHead(uint64(cardinality)))
	case types.EncIntset, types.EncListpack:
		b.add(d.m.MallocOverhead(uint64(info.SizeOfValue)))
	default:
		panic(rdb.UnknownEncoding(types.Set, info.Encoding))
	}
}

// Sadd is called once for each member of a set.
func (d *Decoder) Sadd(key, member []byte) {
	b := d.cur
	b.largest(member, d.m.ElemLen(member))
	if b.info.Encoding != types.EncHashtable {
		return
	}
	b.add(d.m.SizeofString(member))
	b.add(d.m.HashTableEntryOverHead())
	if d.legacyRobj() {
		b.add(d.m.RobjOverHead())
	}
}

// EndSet is called when there are no more fields in a set.
func (d *Decoder) EndSet(key []byte) {
	d.emit()
}

// StartList is called at the beginning of a list.
// For quicklists length is -1; elements are counted as they arrive.
func (d *Decoder) StartList(key []byte, length, expiry int64, info *rdb.Info) {
	b := d.start(key, types.List, expiry, info)
	switch info.Encoding {
	case types.EncLinkedList, types.EncQuicklist:
	case types.EncZiplist:
		b.add(d.m.MallocOverhead(uint64(info.SizeOfValue)))
	default:
		panic(rdb.UnknownEncoding(types.List, info.Encoding))
	}
}

// ListNode charges the allocation of a packed quicklist node. Plain nodes
// are charged per element in Rpush.
func (d *Decoder) ListNode(key []byte, node rdb.QuickListNode) {
	b := d.cur
	b.plainNode = node.Container == rdb.QuickListNodePlain
	if !b.plainNode {
		b.add(d.m.MallocOverhead(uint64(node.Size)))
	}
}

// Rpush is called once for each value in a list.
func (d *Decoder) Rpush(key, value []byte) {
	b := d.cur
	b.rec.NumOfElem++
	b.largest(value, d.m.ElemLen(value))

	switch b.info.Encoding {
	case types.EncQuicklist:
		if b.plainNode {
			b.add(d.m.SizeofString(value))
		}
	case types.EncLinkedList:
		b.add(d.m.LinkedListEntryOverHead())
		if _, err := strconv.ParseInt(string(value), 10, 32); err != nil {
			b.add(d.m.SizeofString(value))
		}
		if d.legacyRobj() {
			b.add(d.m.RobjOverHead())
		}
	}
}

// EndList is called when there are no more values in a list.
func (d *Decoder) EndList(key []byte) {
	b := d.cur
	switch b.info.Encoding {
	case types.EncQuicklist:
		b.add(d.m.QuickListOverHead(b.info.Nodes))
	case types.EncLinkedList:
		b.add(d.m.LinkedListOverHead())
	}
	d.emit()
}

// StartZSet is called at the beginning of a sorted set.
// Zadd will be called exactly cardinality times before EndZSet.
func (d *Decoder) StartZSet(key []byte, cardinality, expiry int64, info *rdb.Info) {
	b := d.start(key, types.SortedSet, expiry, info)
	b.rec.NumOfElem = uint64(cardinality)
	switch info.Encoding {
	case types.EncSkiplist:
		b.add(d.m.SkipListOverHead(uint64(cardinality)))
	case types.EncZiplist, types.EncListpack:
		b.add(d.m.MallocOverhead(uint64(info.SizeOfValue)))
	default:
		panic(rdb.UnknownEncoding(types.SortedSet, info.Encoding))
	}
}

// Zadd is called once for each member of a sorted set.
func (d *Decoder) Zadd(key []byte, score float64, member []byte) {
	b := d.cur
	b.largest(member, d.m.ElemLen(member))
	if b.info.Encoding != types.EncSkiplist {
		return
	}
	b.add(8) // sizeof(score)
	b.add(d.m.SizeofString(member))
	b.add(d.m.SkipListEntryOverHead())
	if d.legacyRobj() {
		b.add(d.m.RobjOverHead())
	}
}

// EndZSet is called when there are no more members in a sorted set.
func (d *Decoder) EndZSet(key []byte) {
	d.emit()
}

func (d *Decoder) StartStream(key []byte, cardinality, expiry int64, info *rdb.Info) {
	b := d.start(key, types.Stream, expiry, info)
	b.add(d.m.StreamOverhead())
	b.add(d.m.SizeofStreamRadixTree(uint64(cardinality)))
}

func (d *Decoder) StreamListPack(key, id, listpack []byte) {
	d.cur.add(d.m.MallocOverhead(uint64(len(listpack))))
}

func (d *Decoder) EndStream(key []byte, meta *rdb.StreamMeta) {
	b := d.cur
	b.rec.NumOfElem = meta.Length
	for _, g := range meta.Groups {
		pending := uint64(len(g.Pending))
		b.add(d.m.StreamCG())
		b.add(d.m.SizeofStreamRadixTree(pending))
		b.add(d.m.StreamNACK(pending))

		for _, c := range g.Consumers {
			b.add(d.m.StreamConsumer(c.Name))
			b.add(d.m.SizeofStreamRadixTree(uint64(len(c.Pending))))
		}
	}
	d.emit()
}

// StartModule charges the module value pointer. The payload is charged by
// its serialized size in EndModule.
func (d *Decoder) StartModule(key []byte, moduleName string, expiry int64, info *rdb.Info) bool {
	b := d.start(key, types.Module, expiry, info)
	b.add(9)
	b.rec.Encoding = moduleName
	return false
}

func (d *Decoder) EndModule(key []byte, bufferSize int64, raw []byte) {
	d.cur.add(uint64(bufferSize))
	d.emit()
}

func (d *Decoder) FunctionLoad(engine, libName, code []byte) {
	log.Debugf("decoder: function library %s (%s), %d bytes of code not accounted", libName, engine, len(code))
}
