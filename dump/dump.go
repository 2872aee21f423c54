package dump

import (
	"bufio"
	"fmt"
	"path/filepath"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/juju/errors"
	"github.com/urfave/cli"

	"github.com/919927181/rdbmem/decoder"
	"github.com/919927181/rdbmem/internal/log"
	"github.com/919927181/rdbmem/rdb"
)

var commonFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "filter",
		Usage: "YAML file with the key filter",
	},
	cli.IntSliceFlag{
		Name:  "db",
		Usage: "only keys of this database, may be repeated",
	},
	cli.StringSliceFlag{
		Name:  "type",
		Usage: "only keys of this type (string, list, set, sortedset, hash, stream, module), may be repeated",
	},
	cli.StringSliceFlag{
		Name:  "prefix",
		Usage: "only keys starting with this prefix, may be repeated",
	},
	cli.BoolFlag{
		Name:  "verify-checksum",
		Usage: "fail when the trailing CRC64 does not match",
	},
	cli.StringFlag{
		Name:  "log-level",
		Value: "info",
		Usage: "debug, info, warn or error",
	},
}

// Commands returns the memory and keys commands.
func Commands() []cli.Command {
	return []cli.Command{
		{
			Name:      "memory",
			Usage:     "estimate the memory used by every key",
			ArgsUsage: "FILE1 [FILE2] [FILE3]...",
			Flags: append([]cli.Flag{
				cli.Uint64Flag{
					Name:  "bytes",
					Usage: "only report keys using at least this many bytes",
				},
			}, commonFlags...),
			Action: Memory,
		},
		{
			Name:      "keys",
			Usage:     "list the keys of the rdb files",
			ArgsUsage: "FILE1 [FILE2] [FILE3]...",
			Flags:     commonFlags,
			Action:    Keys,
		},
	}
}

// Memory prints one line per key with its estimated memory.
func Memory(c *cli.Context) error {
	minBytes := c.Uint64("bytes")
	return eachFile(c, func(w *bufio.Writer, file string, opts []decoder.Option) error {
		fmt.Fprintln(w, "database\ttype\tkey\tsize\tencoding\tnum_elements\tlen_largest_element\texpiry")
		var keys, total uint64
		start := time.Now()
		d, err := decoder.Analyze(file, func(r *decoder.Record) error {
			keys++
			total += r.Bytes
			if r.Bytes < minBytes {
				return nil
			}
			_, err := fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
				r.Database, r.Type, r.Key, humanize.Bytes(r.Bytes), r.Encoding,
				r.NumOfElem, r.LenOfLargestElem, formatExpiry(r.Expiry))
			return err
		}, opts...)
		if err != nil {
			return errors.Trace(err)
		}
		fmt.Fprintf(w, "# %s: %s keys, %s estimated, used-mem %s, %s keys with ttl\n",
			filepath.Base(file), humanize.Comma(int64(keys)), humanize.Bytes(total),
			humanize.Bytes(uint64(d.GetUsedMem())), humanize.Comma(int64(d.ExpiryKeys())))
		log.Infof("dump: %s parsed in %s", file, time.Since(start))
		return nil
	})
}

// Keys prints the database, type and name of every key.
func Keys(c *cli.Context) error {
	return eachFile(c, func(w *bufio.Writer, file string, opts []decoder.Option) error {
		_, err := decoder.Analyze(file, func(r *decoder.Record) error {
			_, err := fmt.Fprintf(w, "%d\t%s\t%s\n", r.Database, r.Type, r.Key)
			return err
		}, opts...)
		return errors.Trace(err)
	})
}

type fileAction func(w *bufio.Writer, file string, opts []decoder.Option) error

func eachFile(c *cli.Context, action fileAction) error {
	if c.NArg() < 1 {
		return errors.New("requires at least 1 argument")
	}
	if err := log.Init(log.Config{Level: c.String("log-level")}); err != nil {
		return errors.Trace(err)
	}
	filter, err := buildFilter(c)
	if err != nil {
		return errors.Trace(err)
	}
	opts := []decoder.Option{
		decoder.WithParseOptions(rdb.WithFilter(filter), rdb.WithChecksum(c.Bool("verify-checksum"))),
	}

	w := bufio.NewWriter(c.App.Writer)
	defer w.Flush()
	for _, file := range c.Args() {
		if err := action(w, file, opts); err != nil {
			return errors.Annotatef(err, "%s", file)
		}
	}
	return nil
}

// buildFilter loads --filter and lets the other flags override its fields.
func buildFilter(c *cli.Context) (*rdb.Filter, error) {
	f := &rdb.Filter{}
	if path := c.String("filter"); path != "" {
		loaded, err := rdb.LoadFilter(path)
		if err != nil {
			return nil, errors.Trace(err)
		}
		f = loaded
	}
	if dbs := c.IntSlice("db"); len(dbs) > 0 {
		f.Databases = dbs
	}
	if ts := c.StringSlice("type"); len(ts) > 0 {
		f.Types = ts
	}
	if ps := c.StringSlice("prefix"); len(ps) > 0 {
		f.KeyPrefixes = ps
	}
	if err := f.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return f, nil
}

func formatExpiry(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.Unix(0, ms*int64(time.Millisecond)).UTC().Format(time.RFC3339)
}
