// Package rdb implements parsing of the Redis RDB file format.
package rdb

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"math"
	"strconv"

	"github.com/919927181/rdb/crc64"
	humanize "github.com/dustin/go-humanize"
	"github.com/juju/errors"

	"github.com/919927181/rdbmem/internal/log"
	"github.com/919927181/rdbmem/rdb/core/types"
)

// Info describes the value a Start* callback is about to stream.
type Info struct {
	Encoding    string
	Idle        uint64
	Freq        int
	SizeOfValue int    // blob size for ziplist, listpack, intset and zipmap values
	Nodes       uint64 // node count for quicklists
}

// QuickListNode is announced before the elements of each quicklist node.
type QuickListNode struct {
	Container int    // QuickListNodePlain or QuickListNodePacked
	Encoding  string // "ziplist", "listpack" or "plain"
	Size      int    // bytes of the node payload
	Count     int    // elements in the node
}

// quicklist node container formats
const (
	QuickListNodePlain  = 1 // QUICKLIST_NODE_CONTAINER_PLAIN
	QuickListNodePacked = 2 // QUICKLIST_NODE_CONTAINER_PACKED
)

// A Decoder must be implemented to parse a RDB file.
type Decoder interface {
	// StartRDB is called when parsing of a valid RDB file starts.
	StartRDB(ver int)
	// AuxField is called for each AUX metadata pair.
	AuxField(key, value []byte)
	// StartDatabase is called when database n starts.
	// Once a database starts, another database will not start until EndDatabase is called.
	StartDatabase(n int)
	// DbSize is the RESIZEDB hint of the current database.
	DbSize(dbSize, expiresSize uint64)
	// Set is called once for each string key.
	Set(key, value []byte, expiry int64, info *Info)
	// StartHash is called at the beginning of a hash.
	// Hset will be called exactly length times before EndHash.
	StartHash(key []byte, length, expiry int64, info *Info)
	// Hset is called once for each field=value pair in a hash.
	Hset(key, field, value []byte)
	// EndHash is called when there are no more fields in a hash.
	EndHash(key []byte)
	// StartSet is called at the beginning of a set.
	// Sadd will be called exactly cardinality times before EndSet.
	StartSet(key []byte, cardinality, expiry int64, info *Info)
	// Sadd is called once for each member of a set.
	Sadd(key, member []byte)
	// EndSet is called when there are no more fields in a set.
	EndSet(key []byte)
	// StartList is called at the beginning of a list.
	// Rpush will be called exactly length times before EndList.
	// For quicklists length is -1 and info.Nodes holds the node count.
	StartList(key []byte, length, expiry int64, info *Info)
	// ListNode is called before the elements of each quicklist node.
	ListNode(key []byte, node QuickListNode)
	// Rpush is called once for each value in a list.
	Rpush(key, value []byte)
	// EndList is called when there are no more values in a list.
	EndList(key []byte)
	// StartZSet is called at the beginning of a sorted set.
	// Zadd will be called exactly cardinality times before EndZSet.
	StartZSet(key []byte, cardinality, expiry int64, info *Info)
	// Zadd is called once for each member of a sorted set.
	Zadd(key []byte, score float64, member []byte)
	// EndZSet is called when there are no more members in a sorted set.
	EndZSet(key []byte)
	// StartStream is called at the beginning of a stream.
	// StreamListPack will be called exactly cardinality times before EndStream.
	StartStream(key []byte, cardinality, expiry int64, info *Info)
	// StreamListPack is called once for each (master id, listpack) node of a stream.
	StreamListPack(key, id, listpack []byte)
	// EndStream delivers the stream metadata and its consumer groups.
	EndStream(key []byte, meta *StreamMeta)
	// StartModule is called at the beginning of a module value.
	// Returning true asks for the raw bytes of the value in EndModule.
	StartModule(key []byte, moduleName string, expiry int64, info *Info) bool
	// HandleModuleData is called once for each item of the module opcode stream.
	HandleModuleData(key []byte, item ModuleItem)
	// EndModule is called after the module EOF opcode. raw is nil unless requested.
	EndModule(key []byte, bufferSize int64, raw []byte)
	// FunctionLoad is called for each function library.
	FunctionLoad(engine, libName, code []byte)
	// EndDatabase is called at the end of a database.
	EndDatabase(n int)
	// EndRDB is called when parsing of the RDB file is complete.
	EndRDB()
}

const (
	minRDBVersion = 1
	maxRDBVersion = 12

	rdbOpCodeSlotInfo  = 244 // RDB_OPCODE_SLOT_INFO: slot info
	rdbOpCodeFunction2 = 245 // RDB_OPCODE_FUNCTION2: function library data
	rdbOpCodeFunction  = 246 // RDB_OPCODE_FUNCTION_PRE_GA: old function library data for 7.0 rc1 and rc2
	rdbOpCodeModuleAux = 247 // RDB_OPCODE_MODULE_AUX: Module auxiliary data.
	rdbOpCodeIdle      = 248 // RDB_OPCODE_IDLE: LRU idle time.
	rdbOpCodeFreq      = 249 // RDB_OPCODE_FREQ: LFU frequency.
	rdbOpCodeAux       = 250 // RDB_OPCODE_AUX: RDB aux field.
	rdbOpCodeResizeDB  = 251 // RDB_OPCODE_RESIZEDB: Hash table resize hint.
	rdbOpCodeExpiryMS  = 252 // RDB_OPCODE_EXPIRETIME_MS: Expire time in milliseconds.
	rdbOpCodeExpiry    = 253 // RDB_OPCODE_EXPIRETIME: Old expire time in seconds.
	rdbOpCodeSelectDB  = 254 // RDB_OPCODE_SELECTDB: DB number of the following keys.
	rdbOpCodeEOF       = 255 // RDB_OPCODE_EOF: End of the RDB file.
)

type evictionPolicy int

const (
	policyUnknown evictionPolicy = iota
	policyLRU
	policyLFU
)

func (p evictionPolicy) String() string {
	switch p {
	case policyLRU:
		return "lru"
	case policyLFU:
		return "lfu"
	}
	return "none"
}

// Decode parses a RDB file from r and calls the decode hooks on d.
// Events delivered before an error stay valid; nothing is retracted.
func Decode(r io.Reader, d Decoder, opts ...Option) (err error) {
	dec := newDecode(r, d, opts)
	defer recoverPanic(&err)
	return dec.decode()
}

// DecodeDump decodes a payload produced by the Redis DUMP command. The dump
// does not contain the database, key or expiry, so they must be passed in
// (zero values are fine).
func DecodeDump(dump []byte, db int, key []byte, expiry int64, d Decoder, opts ...Option) (err error) {
	version, err := verifyDump(dump)
	if err != nil {
		return errors.Trace(err)
	}

	dec := newDecode(bytes.NewReader(dump[1:len(dump)-10]), d, opts)
	defer recoverPanic(&err)

	dec.rdbVersion = version
	dec.event.StartRDB(version)
	dec.db, dec.dbStarted = db, true
	dec.event.StartDatabase(db)
	dec.expiry = expiry
	if err := dec.readKeyValue(key, types.ValueType(dump[0])); err != nil {
		return errors.Trace(err)
	}
	if _, err := dec.r.ReadByte(); err != io.EOF {
		return newFormatError("dump payload has %d trailing bytes", dec.r.Buffered()+1)
	}
	dec.event.EndDatabase(db)
	dec.event.EndRDB()
	return nil
}

// verifyDump checks the 2 byte version and the CRC64 trailer of a DUMP payload.
func verifyDump(d []byte) (int, error) {
	if len(d) < 11 {
		return 0, newFormatError("invalid dump length %d", len(d))
	}
	version := int(binary.LittleEndian.Uint16(d[len(d)-10:]))
	if version < minRDBVersion || version > maxRDBVersion {
		return 0, newFormatError("invalid dump version %d", version)
	}
	if binary.LittleEndian.Uint64(d[len(d)-8:]) != crc64.Digest(d[:len(d)-8]) {
		return 0, newFormatError("invalid dump CRC checksum")
	}
	return version, nil
}

// recoverPanic turns a panic raised by a sink (UnknownEncoding) into the parse error.
func recoverPanic(err *error) {
	p := recover()
	if p == nil {
		return
	}
	if e, ok := p.(error); ok {
		*err = errors.Trace(e)
		return
	}
	*err = errors.Errorf("rdb: panic: %v", p)
}

type decode struct {
	event  Decoder
	r      *bufio.Reader
	intBuf []byte
	one    [1]byte
	opts   options

	rdbVersion int
	db         int
	dbStarted  bool
	valkey     bool

	expiry  int64
	lruIdle uint64
	lfuFreq int
	hasIdle bool
	hasFreq bool
	policy  evictionPolicy

	info *Info

	crc       hash.Hash64   // running checksum, nil unless verifying
	rec       *bytes.Buffer // raw module bytes, nil unless recording
	readCount int64
}

func newDecode(r io.Reader, d Decoder, opts []Option) *decode {
	dec := &decode{
		event:  d,
		r:      bufio.NewReader(r),
		intBuf: make([]byte, 8),
		opts:   newOptions(opts),
	}
	if dec.opts.verifyChecksum {
		dec.crc = crc64.New()
	}
	return dec
}

// 解码，得到objType，根据objType来执行相应的解码动作
func (d *decode) decode() error {
	if err := d.checkHeader(); err != nil {
		return errors.Trace(err)
	}
	d.event.StartRDB(d.rdbVersion)
	for {
		op, err := d.readByte()
		if err != nil {
			return errors.Trace(err)
		}
		switch op {
		case rdbOpCodeFreq:
			if err := d.setEvictionPolicy(policyLFU); err != nil {
				return errors.Trace(err)
			}
			b, err := d.readByte()
			if err != nil {
				return errors.Trace(err)
			}
			d.lfuFreq = int(b)
			d.hasFreq = true
		case rdbOpCodeIdle:
			if err := d.setEvictionPolicy(policyLRU); err != nil {
				return errors.Trace(err)
			}
			idle, _, err := d.readLength()
			if err != nil {
				return errors.Trace(err)
			}
			d.lruIdle = idle
			d.hasIdle = true
		case rdbOpCodeAux:
			auxKey, err := d.readString()
			if err != nil {
				return errors.Trace(err)
			}
			auxVal, err := d.readString()
			if err != nil {
				return errors.Trace(err)
			}
			d.handleAux(auxKey, auxVal)
		case rdbOpCodeResizeDB:
			dbSize, _, err := d.readLength()
			if err != nil {
				return errors.Trace(err)
			}
			expiresSize, _, err := d.readLength()
			if err != nil {
				return errors.Trace(err)
			}
			d.event.DbSize(dbSize, expiresSize)
		case rdbOpCodeExpiryMS:
			ms, err := d.readUint64()
			if err != nil {
				return errors.Trace(err)
			}
			d.expiry = int64(ms)
		case rdbOpCodeExpiry:
			sec, err := d.readUint32()
			if err != nil {
				return errors.Trace(err)
			}
			d.expiry = int64(sec) * 1000
		case rdbOpCodeSelectDB:
			db, _, err := d.readLength()
			if err != nil {
				return errors.Trace(err)
			}
			if d.dbStarted {
				d.event.EndDatabase(d.db)
			}
			d.db, d.dbStarted = int(db), true
			d.event.StartDatabase(d.db)
		case rdbOpCodeSlotInfo:
			if err := d.readSlotInfo(); err != nil {
				return errors.Trace(err)
			}
		case rdbOpCodeModuleAux:
			if err := d.readModuleAux(); err != nil {
				return errors.Trace(err)
			}
		case rdbOpCodeFunction:
			if err := d.readFunctionPreGA(); err != nil {
				return errors.Trace(err)
			}
		case rdbOpCodeFunction2:
			if err := d.readFunction2(); err != nil {
				return errors.Trace(err)
			}
		case rdbOpCodeEOF:
			return errors.Trace(d.finish())
		default:
			key, err := d.readString()
			if err != nil {
				return errors.Trace(err)
			}
			if err := d.readKeyValue(key, types.ValueType(op)); err != nil {
				return errors.Annotatef(err, "key %q", key)
			}
			d.resetKeyState()
		}
	}
}

func (d *decode) checkHeader() error {
	header := make([]byte, 9)
	if err := d.readFull(header); err != nil {
		return errors.Trace(err)
	}
	if !bytes.Equal(header[:5], []byte("REDIS")) {
		return newFormatError("invalid magic %q", header[:5])
	}
	version, err := strconv.Atoi(string(header[5:]))
	if err != nil {
		return newFormatError("invalid version %q", header[5:])
	}
	if version < minRDBVersion || version > maxRDBVersion {
		return newFormatError("unsupported RDB version %d", version)
	}
	d.rdbVersion = version
	return nil
}

// finish handles the EOF opcode and the optional trailing checksum.
func (d *decode) finish() error {
	log.Debugf("rdb: reached EOF opcode, %s", d)
	if d.dbStarted {
		d.event.EndDatabase(d.db)
	}
	d.event.EndRDB()
	if d.rdbVersion < 5 {
		return nil
	}

	var computed uint64
	if d.crc != nil {
		computed = d.crc.Sum64()
	}
	// the checksum itself is not part of the checksummed bytes
	sum := make([]byte, 8)
	n, err := io.ReadFull(d.r, sum)
	if err == io.EOF && n == 0 {
		if d.opts.verifyChecksum {
			return newFormatError("checksum missing")
		}
		log.Warnf("rdb: checksum missing after EOF opcode (version %d)", d.rdbVersion)
		return nil
	}
	if err != nil {
		return errors.Trace(newIOError(err))
	}
	if !d.opts.verifyChecksum {
		return nil
	}
	expected := binary.LittleEndian.Uint64(sum)
	if expected == 0 {
		log.Debugf("rdb: checksum disabled by server, not verified")
		return nil
	}
	if expected != computed {
		return newFormatError("checksum mismatch: file %016x, computed %016x", expected, computed)
	}
	return nil
}

func (d *decode) handleAux(key, value []byte) {
	d.event.AuxField(key, value)
	switch string(key) {
	case "valkey-ver":
		d.valkey = true
		log.Debugf("rdb: valkey-ver=%s", value)
	case "redis-ver", "redis-bits", "ctime", "aof-base":
		log.Debugf("rdb: %s=%s", key, value)
	case "used-mem":
		n, err := strconv.ParseUint(string(value), 10, 64)
		if err != nil {
			log.Warnf("rdb: bad used-mem %q: %v", value, err)
			return
		}
		log.Debugf("rdb: used-mem=%s", humanize.Bytes(n))
	}
}

func (d *decode) readSlotInfo() error {
	var v [3]uint64
	for i := range v {
		n, _, err := d.readLength()
		if err != nil {
			return errors.Trace(err)
		}
		v[i] = n
	}
	log.Debugf("rdb: slot info slot=%d size=%d expires=%d", v[0], v[1], v[2])
	return nil
}

// setEvictionPolicy records which of IDLE/FREQ this file uses. The first
// one seen decides; mixing them, or repeating one before a key, is fatal.
func (d *decode) setEvictionPolicy(p evictionPolicy) error {
	if d.hasIdle || d.hasFreq {
		return newEncodingError("more than one idle/freq opcode before a key")
	}
	if d.policy == policyUnknown {
		d.policy = p
		return nil
	}
	if d.policy != p {
		return newEncodingError("eviction policy switched from %s to %s", d.policy, p)
	}
	return nil
}

func (d *decode) resetKeyState() {
	d.expiry = 0
	d.lruIdle = 0
	d.lfuFreq = 0
	d.hasIdle = false
	d.hasFreq = false
}

// readKeyValue reads the value of key, or skips it when the filter rejects it.
func (d *decode) readKeyValue(key []byte, typ types.ValueType) error {
	kind, ok := typ.Kind()
	if !ok {
		return newEncodingError("unsupported object type %d", byte(typ))
	}
	if d.opts.filter != nil {
		meta := &KeyMeta{
			Database: d.db,
			Type:     kind.Type,
			Key:      key,
			Expiry:   d.expiry,
			Idle:     d.lruIdle,
			Freq:     d.lfuFreq,
		}
		if !d.opts.filter.Accept(meta, d.opts.now()) {
			log.Debugf("rdb: skip key %q db=%d type=%s", key, d.db, kind.Type)
			return errors.Trace(d.skipObject(key, typ))
		}
	}
	d.info = &Info{
		Encoding: kind.Encoding,
		Idle:     d.lruIdle,
		Freq:     d.lfuFreq,
	}
	return errors.Trace(d.readObject(key, typ))
}

// All reads from the stream go through readByte and readFull so the
// checksum and module recorder see every byte exactly once.

func (d *decode) track(p []byte) {
	d.readCount += int64(len(p))
	if d.crc != nil {
		d.crc.Write(p)
	}
	if d.rec != nil {
		d.rec.Write(p)
	}
}

func (d *decode) readByte() (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, newIOError(err)
	}
	d.one[0] = b
	d.track(d.one[:])
	return b, nil
}

func (d *decode) readFull(buf []byte) error {
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return newIOError(err)
	}
	d.track(buf)
	return nil
}

const skipChunk = 32 * 1024

// readBytes reads a payload whose size was declared by the file. Payloads
// larger than skipChunk grow with the bytes actually read, so a corrupt
// length fails on the read instead of on the allocation.
func (d *decode) readBytes(n uint64) ([]byte, error) {
	if n > uint64(math.MaxInt) {
		return nil, newEncodingError("declared length %d out of range", n)
	}
	if n <= skipChunk {
		buf := make([]byte, n)
		if err := d.readFull(buf); err != nil {
			return nil, err
		}
		return buf, nil
	}
	buf := &bytes.Buffer{}
	buf.Grow(skipChunk)
	_, err := io.CopyN(buf, d.r, int64(n))
	d.track(buf.Bytes())
	if err != nil {
		return nil, newIOError(err)
	}
	return buf.Bytes(), nil
}

// maxPrealloc caps the capacity reserved from counts declared in the file.
const maxPrealloc = 1024

func capHint(n uint64) int {
	if n > maxPrealloc {
		return maxPrealloc
	}
	return int(n)
}

func (d *decode) skipBytes(n uint64) error {
	if d.crc == nil && d.rec == nil {
		for n > 0 {
			step := n
			if step > skipChunk {
				step = skipChunk
			}
			discarded, err := d.r.Discard(int(step))
			d.readCount += int64(discarded)
			if err != nil {
				return newIOError(err)
			}
			n -= step
		}
		return nil
	}
	buf := make([]byte, skipChunk)
	for n > 0 {
		step := n
		if step > skipChunk {
			step = skipChunk
		}
		if err := d.readFull(buf[:step]); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

func (d *decode) startRecording() {
	d.rec = &bytes.Buffer{}
}

func (d *decode) stopRecording() []byte {
	if d.rec == nil {
		return nil
	}
	raw := d.rec.Bytes()
	d.rec = nil
	return raw
}

func (d *decode) String() string {
	return fmt.Sprintf("rdb v%d db=%d read=%d valkey=%t", d.rdbVersion, d.db, d.readCount, d.valkey)
}
