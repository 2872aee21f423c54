// Package nopdecoder provides a rdb.Decoder that ignores every event.
// Embed it to implement only the callbacks you need.
package nopdecoder

import "github.com/919927181/rdbmem/rdb"

// NopDecoder may be embedded in a real Decoder to avoid implementing methods.
type NopDecoder struct{}

func (d NopDecoder) StartRDB(ver int)                                                  {}
func (d NopDecoder) AuxField(key, value []byte)                                        {}
func (d NopDecoder) StartDatabase(n int)                                               {}
func (d NopDecoder) DbSize(dbSize, expiresSize uint64)                                 {}
func (d NopDecoder) EndDatabase(n int)                                                 {}
func (d NopDecoder) EndRDB()                                                           {}
func (d NopDecoder) Set(key, value []byte, expiry int64, info *rdb.Info)               {}
func (d NopDecoder) StartHash(key []byte, length, expiry int64, info *rdb.Info)        {}
func (d NopDecoder) Hset(key, field, value []byte)                                     {}
func (d NopDecoder) EndHash(key []byte)                                                {}
func (d NopDecoder) StartSet(key []byte, cardinality, expiry int64, info *rdb.Info)    {}
func (d NopDecoder) Sadd(key, member []byte)                                           {}
func (d NopDecoder) EndSet(key []byte)                                                 {}
func (d NopDecoder) StartList(key []byte, length, expiry int64, info *rdb.Info)        {}
func (d NopDecoder) ListNode(key []byte, node rdb.QuickListNode)                       {}
func (d NopDecoder) Rpush(key, value []byte)                                           {}
func (d NopDecoder) EndList(key []byte)                                                {}
func (d NopDecoder) StartZSet(key []byte, cardinality, expiry int64, info *rdb.Info)   {}
func (d NopDecoder) Zadd(key []byte, score float64, member []byte)                     {}
func (d NopDecoder) EndZSet(key []byte)                                                {}
func (d NopDecoder) StartStream(key []byte, cardinality, expiry int64, info *rdb.Info) {}
func (d NopDecoder) StreamListPack(key, id, listpack []byte)                           {}
func (d NopDecoder) EndStream(key []byte, meta *rdb.StreamMeta)                        {}
func (d NopDecoder) HandleModuleData(key []byte, item rdb.ModuleItem)                  {}
func (d NopDecoder) EndModule(key []byte, bufferSize int64, raw []byte)                {}
func (d NopDecoder) FunctionLoad(engine, libName, code []byte)                         {}

func (d NopDecoder) StartModule(key []byte, moduleName string, expiry int64, info *rdb.Info) bool {
	return false
}

var _ rdb.Decoder = NopDecoder{}
