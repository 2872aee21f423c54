// Package types maps RDB object type tags to logical types and physical encodings.
package types

import "fmt"

// ValueType of redis type
type ValueType byte

// types value
const (
	TypeString  ValueType = 0 // RDB_TYPE_STRING
	TypeList    ValueType = 1
	TypeSet     ValueType = 2
	TypeZSet    ValueType = 3
	TypeHash    ValueType = 4 // RDB_TYPE_HASH
	TypeZSet2   ValueType = 5 // ZSET version 2 with doubles stored in binary.
	TypeModule  ValueType = 6 // RDB_TYPE_MODULE
	TypeModule2 ValueType = 7 // RDB_TYPE_MODULE2 Module value with annotations for parsing without the generating module being loaded.

	// Object types for encoded objects.
	TypeHashZipMap      ValueType = 9
	TypeListZipList     ValueType = 10
	TypeSetIntSet       ValueType = 11
	TypeZSetZipList     ValueType = 12
	TypeHashZipList     ValueType = 13
	TypeListQuickList   ValueType = 14 // RDB_TYPE_LIST_QUICKLIST
	TypeStreamListPacks ValueType = 15 // RDB_TYPE_STREAM_LISTPACKS

	TypeHashListPack     ValueType = 16 // RDB_TYPE_HASH_LISTPACK
	TypeZSetListPack     ValueType = 17 // RDB_TYPE_ZSET_LISTPACK
	TypeListQuickList2   ValueType = 18 // RDB_TYPE_LIST_QUICKLIST_2
	TypeStreamListPacks2 ValueType = 19 // RDB_TYPE_STREAM_LISTPACKS_2
	TypeSetListPack      ValueType = 20 // RDB_TYPE_SET_LISTPACK
	TypeStreamListPacks3 ValueType = 21 // RDB_TYPE_STREAM_LISTPACKS_3
)

// Logical types.
const (
	String    = "string"
	List      = "list"
	Set       = "set"
	SortedSet = "sortedset"
	Hash      = "hash"
	Stream    = "stream"
	Module    = "module"
)

// Physical encodings.
const (
	EncString          = "string"
	EncLinkedList      = "linkedlist"
	EncHashtable       = "hashtable"
	EncSkiplist        = "skiplist"
	EncZipmap          = "zipmap"
	EncZiplist         = "ziplist"
	EncIntset          = "intset"
	EncQuicklist       = "quicklist"
	EncListpack        = "listpack"
	EncStreamListpacks = "stream_listpacks"
	EncModule          = "module"
)

// Kind is the logical type and physical encoding of an object type tag.
type Kind struct {
	Type     string
	Encoding string
}

var kinds = map[ValueType]Kind{
	TypeString:           {String, EncString},
	TypeList:             {List, EncLinkedList},
	TypeSet:              {Set, EncHashtable},
	TypeZSet:             {SortedSet, EncSkiplist},
	TypeHash:             {Hash, EncHashtable},
	TypeZSet2:            {SortedSet, EncSkiplist},
	TypeModule:           {Module, EncModule},
	TypeModule2:          {Module, EncModule},
	TypeHashZipMap:       {Hash, EncZipmap},
	TypeListZipList:      {List, EncZiplist},
	TypeSetIntSet:        {Set, EncIntset},
	TypeZSetZipList:      {SortedSet, EncZiplist},
	TypeHashZipList:      {Hash, EncZiplist},
	TypeListQuickList:    {List, EncQuicklist},
	TypeStreamListPacks:  {Stream, EncStreamListpacks},
	TypeHashListPack:     {Hash, EncListpack},
	TypeZSetListPack:     {SortedSet, EncListpack},
	TypeListQuickList2:   {List, EncQuicklist},
	TypeStreamListPacks2: {Stream, EncStreamListpacks},
	TypeSetListPack:      {Set, EncListpack},
	TypeStreamListPacks3: {Stream, EncStreamListpacks},
}

var logicalTypes = map[string]struct{}{
	String: {}, List: {}, Set: {}, SortedSet: {}, Hash: {}, Stream: {}, Module: {},
}

// Kind returns the logical type and encoding of t. ok is false for tags this
// decoder does not understand (8 and 22 onwards).
func (t ValueType) Kind() (k Kind, ok bool) {
	k, ok = kinds[t]
	return
}

func (t ValueType) String() string {
	if k, ok := kinds[t]; ok {
		return fmt.Sprintf("%s/%s(%d)", k.Type, k.Encoding, byte(t))
	}
	return fmt.Sprintf("unknown(%d)", byte(t))
}

// IsLogicalType reports whether name is one of the logical type names.
func IsLogicalType(name string) bool {
	_, ok := logicalTypes[name]
	return ok
}

const moduleTypeNameCharSet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// ModuleTypeNameByID decodes the 9 character module type name packed in the
// upper 54 bits of a module id.
func ModuleTypeNameByID(moduleID uint64) string {
	name := make([]byte, 9)
	moduleID >>= 10
	for i := 8; i >= 0; i-- {
		name[i] = moduleTypeNameCharSet[moduleID&63]
		moduleID >>= 6
	}
	return string(name)
}

// ModuleEncVersion is the encoding version kept in the low 10 bits of a module id.
func ModuleEncVersion(moduleID uint64) uint64 {
	return moduleID & 1023
}
