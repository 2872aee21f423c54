package rdb

import "time"

type options struct {
	filter         *Filter
	verifyChecksum bool
	now            func() time.Time
}

// Option configures Decode and DecodeDump.
type Option func(*options)

// WithFilter skips keys rejected by f.
func WithFilter(f *Filter) Option {
	return func(o *options) {
		o.filter = f
	}
}

// WithChecksum makes Decode compare the trailing CRC64 with the bytes read.
// A stored checksum of zero means the server had rdbchecksum disabled and is not checked.
func WithChecksum(verify bool) Option {
	return func(o *options) {
		o.verifyChecksum = verify
	}
}

// WithClock sets the clock used to decide whether a key has expired.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
