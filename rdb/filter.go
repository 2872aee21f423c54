package rdb

import (
	"bytes"
	"os"
	"time"

	"github.com/juju/errors"
	"gopkg.in/yaml.v2"

	"github.com/919927181/rdbmem/rdb/core/types"
)

// Filter selects which keys reach the Decoder. A rejected key is still
// consumed from the stream but produces no callbacks.
//
// Databases and Types are always enforced. The key level predicates
// (KeyPrefixes, IsPermanent, IsExpired, MinIdle, MinFreq) must all hold,
// unless FirstMatchOnly is set: then only the first of them that is set is
// checked, in that order.
type Filter struct {
	Databases   []int    `yaml:"databases"`
	Types       []string `yaml:"types"`
	KeyPrefixes []string `yaml:"key-prefixes"`
	IsPermanent *bool    `yaml:"is-permanent"`
	IsExpired   *bool    `yaml:"is-expired"`
	MinIdle     *uint64  `yaml:"min-idle"`
	MinFreq     *int     `yaml:"min-freq"`

	FirstMatchOnly bool `yaml:"first-match-only"`
}

// KeyMeta is what the filter knows about a key before its value is read.
type KeyMeta struct {
	Database int
	Type     string
	Key      []byte
	Expiry   int64 // unix ms, 0 when the key has no ttl
	Idle     uint64
	Freq     int
}

// LoadFilter reads a YAML filter definition.
func LoadFilter(path string) (*Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "read filter %s", path)
	}
	f := &Filter{}
	if err := yaml.UnmarshalStrict(data, f); err != nil {
		return nil, errors.Annotatef(err, "parse filter %s", path)
	}
	if err := f.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return f, nil
}

// Validate rejects type names that no key can ever have.
func (f *Filter) Validate() error {
	for _, t := range f.Types {
		if !types.IsLogicalType(t) {
			return errors.Errorf("filter: unknown type %q", t)
		}
	}
	return nil
}

// Accept reports whether the key described by m should be decoded.
// A nil filter accepts everything.
func (f *Filter) Accept(m *KeyMeta, now time.Time) bool {
	if f == nil {
		return true
	}
	if len(f.Databases) > 0 && !containsInt(f.Databases, m.Database) {
		return false
	}
	if len(f.Types) > 0 && !containsString(f.Types, m.Type) {
		return false
	}

	checks := []struct {
		set bool
		ok  func() bool
	}{
		{len(f.KeyPrefixes) > 0, func() bool { return f.matchPrefix(m.Key) }},
		{f.IsPermanent != nil, func() bool { return (m.Expiry == 0) == *f.IsPermanent }},
		{f.IsExpired != nil, func() bool { return isExpired(m.Expiry, now) == *f.IsExpired }},
		{f.MinIdle != nil, func() bool { return m.Idle >= *f.MinIdle }},
		{f.MinFreq != nil, func() bool { return m.Freq >= *f.MinFreq }},
	}
	for _, c := range checks {
		if !c.set {
			continue
		}
		if f.FirstMatchOnly {
			return c.ok()
		}
		if !c.ok() {
			return false
		}
	}
	return true
}

func (f *Filter) matchPrefix(key []byte) bool {
	for _, p := range f.KeyPrefixes {
		if bytes.HasPrefix(key, []byte(p)) {
			return true
		}
	}
	return false
}

func isExpired(expiry int64, now time.Time) bool {
	return expiry > 0 && expiry <= now.UnixNano()/int64(time.Millisecond)
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
