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
	"fmt"
	"io/ioutil"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/919927181/rdbmem/internal/rdbtest"
	"github.com/919927181/rdbmem/rdb"
)

func writeRDB(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dump.rdb")
	require.NoError(t, ioutil.WriteFile(path, data, 0644))
	return path
}

func analyze(t *testing.T, data []byte, opts ...Option) ([]*Record, *Decoder, error) {
	t.Helper()
	var recs []*Record
	d, err := Analyze(writeRDB(t, data), func(r *Record) error {
		recs = append(recs, r)
		return nil
	}, opts...)
	return recs, d, err
}

func byKey(recs []*Record) map[string]*Record {
	out := make(map[string]*Record, len(recs))
	for _, r := range recs {
		out[r.Key] = r
	}
	return out
}

func TestStringRecord(t *testing.T) {
	file := rdbtest.New().Header(9).
		Aux("ctime", "1700000000").
		Aux("used-mem", "2048").
		SelectDB(0).
		StringKey("foo", "bar").
		EOF().Checksum().Build()

	recs, d, err := analyze(t, file)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	m := newTestProfiler()
	want := m.TopLevelObjOverhead([]byte("foo"), 0) + m.SizeofString([]byte("bar"))
	assert.Equal(t, want, recs[0].Bytes)
	assert.Equal(t, uint64(84), recs[0].Bytes)
	assert.Equal(t, &Record{
		Database:  0,
		Key:       "foo",
		Type:      "string",
		Encoding:  "string",
		Bytes:     84,
		NumOfElem: 3,
	}, recs[0])
	assert.Equal(t, int64(1700000000), d.GetTimestamp())
	assert.Equal(t, int64(2048), d.GetUsedMem())
	assert.False(t, d.IsValkey())
}

func TestExpiryAndDatabase(t *testing.T) {
	file := rdbtest.New().Header(9).
		Aux("valkey-ver", "8.0.1").
		SelectDB(3).
		ExpiryMs(1700000000000).StringKey("ttl", "v").
		Idle(50).StringKey("idle", "v").
		EOF().Checksum().Build()

	recs, d, err := analyze(t, file)
	require.NoError(t, err)
	got := byKey(recs)
	assert.Equal(t, 3, got["ttl"].Database)
	assert.Equal(t, int64(1700000000000), got["ttl"].Expiry)
	assert.Equal(t, uint64(84+32), got["ttl"].Bytes)
	assert.Equal(t, uint64(50), got["idle"].Idle)
	assert.Equal(t, uint64(1), d.ExpiryKeys())
	assert.True(t, d.IsValkey())
}

func TestRedisBits32(t *testing.T) {
	file := rdbtest.New().Header(9).
		Aux("redis-bits", "32").
		SelectDB(0).
		StringKey("foo", "bar").
		EOF().Checksum().Build()

	recs, _, err := analyze(t, file)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(16+8+40+8), recs[0].Bytes)
}

func TestHashtableHashRecord(t *testing.T) {
	for _, ver := range []int{7, 9} {
		file := rdbtest.New().Header(ver).SelectDB(0).
			Key(4, "h").Length(2).String("f1").String("v1").String("f2").String("value2").
			EOF().Checksum().Build()

		recs, _, err := analyze(t, file)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		r := recs[0]

		m := newTestProfiler()
		want := m.TopLevelObjOverhead([]byte("h"), 0) + m.HashTableOverHead(2) +
			m.SizeofString([]byte("f1")) + m.SizeofString([]byte("v1")) + m.HashTableEntryOverHead() +
			m.SizeofString([]byte("f2")) + m.SizeofString([]byte("value2")) + m.HashTableEntryOverHead()
		if ver < 8 {
			want += 4 * m.RobjOverHead()
		}
		assert.Equal(t, want, r.Bytes, "version %d", ver)
		assert.Equal(t, "hashtable", r.Encoding)
		assert.Equal(t, uint64(2), r.NumOfElem)
		assert.Equal(t, "f2", r.FieldOfLargestElem)
		assert.Equal(t, uint64(8), r.LenOfLargestElem)
	}
}

func TestCompactRecords(t *testing.T) {
	lpHash := rdbtest.Listpack(rdbtest.LpStr("f"), rdbtest.LpStr("v"))
	intset := rdbtest.Intset(2, 1, 2, 3)
	zlZSet := rdbtest.Ziplist(rdbtest.ZlStr("m"), rdbtest.ZlInt(1))
	zlList := rdbtest.Ziplist(rdbtest.ZlStr("a"), rdbtest.ZlStr("b"))
	zipmap := rdbtest.Zipmap(0, "f", "v")

	file := rdbtest.New().Header(9).SelectDB(0).
		Key(16, "lphash").Bytes(len(lpHash), lpHash).
		Key(11, "intset").Bytes(len(intset), intset).
		Key(12, "zlzset").Bytes(len(zlZSet), zlZSet).
		Key(10, "zllist").Bytes(len(zlList), zlList).
		Key(9, "zipmap").Bytes(len(zipmap), zipmap).
		EOF().Checksum().Build()

	recs, _, err := analyze(t, file)
	require.NoError(t, err)
	got := byKey(recs)

	m := newTestProfiler()
	top := func(k string) uint64 { return m.TopLevelObjOverhead([]byte(k), 0) }
	assert.Equal(t, top("lphash")+m.MallocOverhead(uint64(len(lpHash))), got["lphash"].Bytes)
	assert.Equal(t, top("intset")+m.MallocOverhead(uint64(len(intset))), got["intset"].Bytes)
	assert.Equal(t, top("zlzset")+m.MallocOverhead(uint64(len(zlZSet))), got["zlzset"].Bytes)
	assert.Equal(t, top("zllist")+m.MallocOverhead(uint64(len(zlList))), got["zllist"].Bytes)
	assert.Equal(t, top("zipmap")+m.MallocOverhead(uint64(len(zipmap))), got["zipmap"].Bytes)

	assert.Equal(t, uint64(3), got["intset"].NumOfElem)
	assert.Equal(t, uint64(2), got["zllist"].NumOfElem)
	assert.Equal(t, "sortedset", got["zlzset"].Type)
	assert.Equal(t, "listpack", got["lphash"].Encoding)
}

func TestSetRecord(t *testing.T) {
	file := rdbtest.New().Header(9).SelectDB(0).
		Key(2, "s").Length(2).String("alpha").String("42").
		EOF().Checksum().Build()

	recs, _, err := analyze(t, file)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	m := newTestProfiler()
	want := m.TopLevelObjOverhead([]byte("s"), 0) + m.HashTableOverHead(2) +
		m.SizeofString([]byte("alpha")) + m.HashTableEntryOverHead() +
		m.HashTableEntryOverHead() // 42 is a shared integer
	assert.Equal(t, want, recs[0].Bytes)
	assert.Equal(t, "set", recs[0].Type)
	assert.Equal(t, "42", recs[0].FieldOfLargestElem)
}

func TestSkiplistRecord(t *testing.T) {
	file := rdbtest.New().Header(9).SelectDB(0).
		Key(5, "z").Length(2).String("a").Float64(1).String("bb").Float64(2).
		EOF().Checksum().Build()

	recs, _, err := analyze(t, file, WithRand(rand.New(rand.NewSource(7))))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	m := NewMemProfiler(rand.New(rand.NewSource(7)))
	want := m.TopLevelObjOverhead([]byte("z"), 0) + m.SkipListOverHead(2)
	want += 8 + m.SizeofString([]byte("a")) + m.SkipListEntryOverHead()
	want += 8 + m.SizeofString([]byte("bb")) + m.SkipListEntryOverHead()
	assert.Equal(t, want, recs[0].Bytes)
	assert.Equal(t, "skiplist", recs[0].Encoding)
}

func TestLinkedListRecord(t *testing.T) {
	file := rdbtest.New().Header(9).SelectDB(0).
		Key(1, "l").Length(2).String("a").String("5").
		EOF().Checksum().Build()

	recs, _, err := analyze(t, file)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	// 76 key + (24+8) "a" + 24 "5" + 48 list
	assert.Equal(t, uint64(180), recs[0].Bytes)
	assert.Equal(t, uint64(2), recs[0].NumOfElem)
}

func TestQuickListRecord(t *testing.T) {
	big := strings.Repeat("p", 100)
	packed := rdbtest.Listpack(rdbtest.LpStr("x"), rdbtest.LpInt(3))
	file := rdbtest.New().Header(11).SelectDB(0).
		Key(18, "ql").Length(2).
		Length(rdb.QuickListNodePlain).String(big).
		Length(rdb.QuickListNodePacked).Bytes(len(packed), packed).
		EOF().Checksum().Build()

	recs, _, err := analyze(t, file)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	m := newTestProfiler()
	want := m.TopLevelObjOverhead([]byte("ql"), 0) +
		m.SizeofString([]byte(big)) +
		m.MallocOverhead(uint64(len(packed))) +
		m.QuickListOverHead(2)
	assert.Equal(t, want, recs[0].Bytes)
	assert.Equal(t, uint64(3), recs[0].NumOfElem)
	assert.Equal(t, "quicklist", recs[0].Encoding)
	assert.Equal(t, big, recs[0].FieldOfLargestElem)
}

func TestStreamRecord(t *testing.T) {
	lp := rdbtest.Listpack(rdbtest.LpInt(1), rdbtest.LpInt(0))
	file := rdbtest.New().Header(11).SelectDB(0).
		Key(19, "s").Length(1).
		Bytes(16, rdbtest.StreamID(1, 0)).Bytes(len(lp), lp).
		Length(5).Length(9).Length(0). // length, last id
		Length(1).Length(0).Length(0).Length(0).Length(5). // first id, max deleted id, entries added
		Length(1).String("g").Length(9).Length(0).Length(5). // group, last delivered, entries read
		Length(2). // group PEL
		Raw(rdbtest.StreamID(1, 0)).Uint64(100).Length(1).
		Raw(rdbtest.StreamID(2, 0)).Uint64(200).Length(1).
		Length(1).String("alice").Uint64(300). // consumer
		Length(1).Raw(rdbtest.StreamID(1, 0)). // consumer PEL
		EOF().Checksum().Build()

	recs, _, err := analyze(t, file, WithParseOptions(rdb.WithChecksum(true)))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	m := newTestProfiler()
	want := m.TopLevelObjOverhead([]byte("s"), 0) +
		m.StreamOverhead() + m.SizeofStreamRadixTree(1) +
		m.MallocOverhead(uint64(len(lp))) +
		m.StreamCG() + m.SizeofStreamRadixTree(2) + m.StreamNACK(2) +
		m.StreamConsumer([]byte("alice")) + m.SizeofStreamRadixTree(1)
	assert.Equal(t, want, recs[0].Bytes)
	assert.Equal(t, uint64(5), recs[0].NumOfElem)
	assert.Equal(t, "stream", recs[0].Type)
}

func TestModuleRecord(t *testing.T) {
	body := rdbtest.New().
		Length(rdbtest.ModuleID("ReJSON-RL", 3)).
		Length(5).String(`{"a":1}`).
		Length(0).
		Build()
	file := rdbtest.New().Header(9).SelectDB(0).
		Key(7, "doc").Raw(body).
		EOF().Checksum().Build()

	recs, _, err := analyze(t, file)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	m := newTestProfiler()
	assert.Equal(t, m.TopLevelObjOverhead([]byte("doc"), 0)+9+uint64(len(body)), recs[0].Bytes)
	assert.Equal(t, "module", recs[0].Type)
	assert.Equal(t, "ReJSON-RL", recs[0].Encoding)
}

func TestUnknownEncodingPanics(t *testing.T) {
	d := NewDecoder()
	defer func() {
		p := recover()
		require.NotNil(t, p)
		err, ok := p.(error)
		require.True(t, ok)
		assert.True(t, rdb.IsEncodingError(err))
	}()
	d.StartHash([]byte("h"), 1, 0, &rdb.Info{Encoding: "weird"})
}

func TestFilterOption(t *testing.T) {
	file := rdbtest.New().Header(9).SelectDB(0).
		StringKey("user:1", "a").
		StringKey("order:1", "b").
		EOF().Checksum().Build()

	f := &rdb.Filter{KeyPrefixes: []string{"order:"}}
	recs, _, err := analyze(t, file, WithParseOptions(rdb.WithFilter(f)))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "order:1", recs[0].Key)
}

func TestAnalyzeConsumerError(t *testing.T) {
	b := rdbtest.New().Header(9).SelectDB(0)
	for i := 0; i < 50; i++ {
		b.StringKey(fmt.Sprintf("k%d", i), "v")
	}
	path := writeRDB(t, b.EOF().Checksum().Build())

	calls := 0
	boom := errors.New("boom")
	_, err := Analyze(path, func(*Record) error {
		calls++
		if calls == 3 {
			return boom
		}
		return nil
	}, WithChannelSize(1))
	require.Error(t, err)
	assert.Equal(t, boom, errors.Cause(err))
	assert.Equal(t, 3, calls)
}

func TestAnalyzeDecodeError(t *testing.T) {
	file := rdbtest.New().Header(9).SelectDB(0).
		StringKey("ok", "v").
		StringKey("broken", "value").
		Build()
	recs, _, err := analyze(t, file[:len(file)-2])
	require.Error(t, err)
	assert.True(t, rdb.IsIOError(err))
	require.Len(t, recs, 1)
	assert.Equal(t, "ok", recs[0].Key)
}

func TestAnalyzeChecksumMismatch(t *testing.T) {
	file := rdbtest.New().Header(9).SelectDB(0).StringKey("k", "v").EOF().Checksum().Build()
	file[len(file)-1] ^= 0xFF
	recs, _, err := analyze(t, file, WithParseOptions(rdb.WithChecksum(true)))
	require.Error(t, err)
	assert.True(t, rdb.IsFormatError(err))
	assert.Len(t, recs, 1)
}

func TestAnalyzeMissingFile(t *testing.T) {
	_, err := Analyze(filepath.Join(t.TempDir(), "absent.rdb"), func(*Record) error { return nil })
	assert.Error(t, err)
}
