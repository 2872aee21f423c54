package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func packModuleID(name string, encver uint64) uint64 {
	var id uint64
	for i := 0; i < len(name); i++ {
		id = id<<6 | uint64(strings.IndexByte(moduleTypeNameCharSet, name[i]))
	}
	return id<<10 | encver
}

func TestModuleTypeNameByID(t *testing.T) {
	for _, name := range []string{"ReJSON-RL", "MBbloom--", "graphdata", "AAAAAAAAA", "_________"} {
		id := packModuleID(name, 3)
		assert.Equal(t, name, ModuleTypeNameByID(id))
		assert.Equal(t, uint64(3), ModuleEncVersion(id))
	}
}

func TestKindTable(t *testing.T) {
	cases := []struct {
		tag      ValueType
		typ      string
		encoding string
	}{
		{TypeString, String, EncString},
		{TypeList, List, EncLinkedList},
		{TypeSet, Set, EncHashtable},
		{TypeZSet, SortedSet, EncSkiplist},
		{TypeZSet2, SortedSet, EncSkiplist},
		{TypeHash, Hash, EncHashtable},
		{TypeModule2, Module, EncModule},
		{TypeHashZipMap, Hash, EncZipmap},
		{TypeListZipList, List, EncZiplist},
		{TypeSetIntSet, Set, EncIntset},
		{TypeZSetZipList, SortedSet, EncZiplist},
		{TypeHashZipList, Hash, EncZiplist},
		{TypeListQuickList, List, EncQuicklist},
		{TypeListQuickList2, List, EncQuicklist},
		{TypeHashListPack, Hash, EncListpack},
		{TypeZSetListPack, SortedSet, EncListpack},
		{TypeSetListPack, Set, EncListpack},
		{TypeStreamListPacks, Stream, EncStreamListpacks},
		{TypeStreamListPacks2, Stream, EncStreamListpacks},
		{TypeStreamListPacks3, Stream, EncStreamListpacks},
	}
	for _, c := range cases {
		k, ok := c.tag.Kind()
		assert.True(t, ok, c.tag.String())
		assert.Equal(t, c.typ, k.Type, c.tag.String())
		assert.Equal(t, c.encoding, k.Encoding, c.tag.String())
	}

	for _, tag := range []ValueType{8, 22, 23, 24, 25, 200} {
		_, ok := tag.Kind()
		assert.False(t, ok, "tag %d", tag)
		assert.Contains(t, tag.String(), "unknown")
	}
}

func TestIsLogicalType(t *testing.T) {
	assert.True(t, IsLogicalType("sortedset"))
	assert.True(t, IsLogicalType("stream"))
	assert.False(t, IsLogicalType("zset"))
	assert.False(t, IsLogicalType(""))
}
