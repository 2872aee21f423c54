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
	"github.com/juju/errors"
	"golang.org/x/sync/errgroup"
)

// Analyze decodes the rdb file at path and calls fn for every record, in
// file order. Decoding runs in its own goroutine. Once fn fails the
// remaining records are drained and dropped so the decoder can finish.
// The decode error wins over the fn error when both happen.
func Analyze(path string, fn func(*Record) error, opts ...Option) (*Decoder, error) {
	d := NewDecoder(opts...)

	var g errgroup.Group
	var decodeErr error
	g.Go(func() error {
		decodeErr = d.DecodeFile(path)
		return decodeErr
	})
	g.Go(func() error {
		var fnErr error
		for r := range d.Entries {
			if fnErr != nil {
				continue
			}
			fnErr = fn(r)
		}
		return errors.Trace(fnErr)
	})
	err := g.Wait()
	if decodeErr != nil {
		return d, decodeErr
	}
	return d, err
}
