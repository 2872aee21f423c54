package rdb

import (
	"fmt"

	"github.com/juju/errors"

	"github.com/919927181/rdbmem/rdb/core/types"
)

// StreamID is a stream entry id, <ms>-<seq>.
type StreamID struct {
	Ms  uint64
	Seq uint64
}

func (id StreamID) String() string {
	return fmt.Sprintf("%d-%d", id.Ms, id.Seq)
}

type StreamPendingEntry struct {
	ID            []byte // 16 raw bytes, big endian ms and seq
	DeliveryTime  uint64
	DeliveryCount uint64
}

type StreamConsumerData struct {
	Name       []byte
	SeenTime   uint64
	ActiveTime uint64 // stream v3 only
	Pending    [][]byte
}

type StreamGroup struct {
	Name        []byte
	LastEntryID StreamID
	EntriesRead uint64 // stream v2+
	Pending     []*StreamPendingEntry
	Consumers   []*StreamConsumerData
}

// StreamMeta is everything after the listpack nodes of a stream value.
type StreamMeta struct {
	ListPacks    uint64
	Length       uint64
	LastID       StreamID
	FirstID      StreamID // stream v2+
	MaxDeletedID StreamID // stream v2+
	EntriesAdded uint64   // stream v2+
	Groups       []*StreamGroup
}

const streamIDLen = 16

// readStream reads a stream value. With emit false nothing reaches the
// Decoder, which is how filtered streams are skipped.
func (d *decode) readStream(key []byte, typ types.ValueType, emit bool) error {
	listpacks, err := d.readPlainLength()
	if err != nil {
		return errors.Trace(err)
	}
	if emit {
		d.event.StartStream(key, int64(listpacks), d.expiry, d.info)
	}
	for i := uint64(0); i < listpacks; i++ {
		id, err := d.readString()
		if err != nil {
			return errors.Trace(err)
		}
		if len(id) != streamIDLen {
			return newEncodingError("stream node id of %d bytes, expected %d", len(id), streamIDLen)
		}
		listpack, err := d.readString()
		if err != nil {
			return errors.Trace(err)
		}
		if emit {
			d.event.StreamListPack(key, id, listpack)
		}
	}

	meta := &StreamMeta{ListPacks: listpacks}
	if meta.Length, err = d.readPlainLength(); err != nil {
		return errors.Trace(err)
	}
	if meta.LastID, err = d.readStreamID(); err != nil {
		return errors.Trace(err)
	}
	if typ >= types.TypeStreamListPacks2 {
		if meta.FirstID, err = d.readStreamID(); err != nil {
			return errors.Trace(err)
		}
		if meta.MaxDeletedID, err = d.readStreamID(); err != nil {
			return errors.Trace(err)
		}
		if meta.EntriesAdded, err = d.readPlainLength(); err != nil {
			return errors.Trace(err)
		}
	}

	groups, err := d.readPlainLength()
	if err != nil {
		return errors.Trace(err)
	}
	meta.Groups = make([]*StreamGroup, 0, capHint(groups))
	for ; groups > 0; groups-- {
		g, err := d.readStreamGroup(typ)
		if err != nil {
			return errors.Trace(err)
		}
		meta.Groups = append(meta.Groups, g)
	}

	if emit {
		d.event.EndStream(key, meta)
	}
	return nil
}

func (d *decode) readStreamID() (StreamID, error) {
	ms, err := d.readPlainLength()
	if err != nil {
		return StreamID{}, errors.Trace(err)
	}
	seq, err := d.readPlainLength()
	if err != nil {
		return StreamID{}, errors.Trace(err)
	}
	return StreamID{Ms: ms, Seq: seq}, nil
}

func (d *decode) readRawStreamID() ([]byte, error) {
	id := make([]byte, streamIDLen)
	if err := d.readFull(id); err != nil {
		return nil, errors.Trace(err)
	}
	return id, nil
}

func (d *decode) readStreamGroup(typ types.ValueType) (*StreamGroup, error) {
	g := &StreamGroup{}
	var err error
	if g.Name, err = d.readString(); err != nil {
		return nil, errors.Trace(err)
	}
	if g.LastEntryID, err = d.readStreamID(); err != nil {
		return nil, errors.Trace(err)
	}
	if typ >= types.TypeStreamListPacks2 {
		if g.EntriesRead, err = d.readPlainLength(); err != nil {
			return nil, errors.Trace(err)
		}
	}

	pel, err := d.readPlainLength()
	if err != nil {
		return nil, errors.Trace(err)
	}
	g.Pending = make([]*StreamPendingEntry, 0, capHint(pel))
	for ; pel > 0; pel-- {
		e := &StreamPendingEntry{}
		if e.ID, err = d.readRawStreamID(); err != nil {
			return nil, errors.Trace(err)
		}
		if e.DeliveryTime, err = d.readUint64(); err != nil {
			return nil, errors.Trace(err)
		}
		if e.DeliveryCount, err = d.readPlainLength(); err != nil {
			return nil, errors.Trace(err)
		}
		g.Pending = append(g.Pending, e)
	}

	consumers, err := d.readPlainLength()
	if err != nil {
		return nil, errors.Trace(err)
	}
	g.Consumers = make([]*StreamConsumerData, 0, capHint(consumers))
	for ; consumers > 0; consumers-- {
		c := &StreamConsumerData{}
		if c.Name, err = d.readString(); err != nil {
			return nil, errors.Trace(err)
		}
		if c.SeenTime, err = d.readUint64(); err != nil {
			return nil, errors.Trace(err)
		}
		if typ >= types.TypeStreamListPacks3 {
			if c.ActiveTime, err = d.readUint64(); err != nil {
				return nil, errors.Trace(err)
			}
		}
		n, err := d.readPlainLength()
		if err != nil {
			return nil, errors.Trace(err)
		}
		c.Pending = make([][]byte, 0, capHint(n))
		for ; n > 0; n-- {
			id, err := d.readRawStreamID()
			if err != nil {
				return nil, errors.Trace(err)
			}
			c.Pending = append(c.Pending, id)
		}
		g.Consumers = append(g.Consumers, c)
	}
	return g, nil
}
