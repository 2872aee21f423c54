package rdb

import (
	"bytes"

	"github.com/juju/errors"

	"github.com/919927181/rdbmem/internal/log"
)

// readFunctionPreGA reads the function format of Redis 7.0 rc1 and rc2:
// name, engine, optional description, code.
func (d *decode) readFunctionPreGA() error {
	name, err := d.readString()
	if err != nil {
		return errors.Trace(err)
	}
	engine, err := d.readString()
	if err != nil {
		return errors.Trace(err)
	}
	hasDesc, err := d.readPlainLength()
	if err != nil {
		return errors.Trace(err)
	}
	if hasDesc != 0 {
		if _, err := d.readString(); err != nil {
			return errors.Trace(err)
		}
	}
	code, err := d.readString()
	if err != nil {
		return errors.Trace(err)
	}
	log.Debugf("rdb: function %s engine=%s (pre-GA)", name, engine)
	d.event.FunctionLoad(engine, name, code)
	return nil
}

// readFunction2 reads a function library. Engine and library name come from
// the shebang line of the code, e.g. "#!lua name=mylib".
func (d *decode) readFunction2() error {
	code, err := d.readString()
	if err != nil {
		return errors.Trace(err)
	}
	engine, lib, err := parseFunctionShebang(code)
	if err != nil {
		return errors.Trace(err)
	}
	log.Debugf("rdb: function library %s engine=%s", lib, engine)
	d.event.FunctionLoad(engine, lib, code)
	return nil
}

func parseFunctionShebang(code []byte) (engine, lib []byte, err error) {
	line := code
	if i := bytes.IndexByte(code, '\n'); i >= 0 {
		line = code[:i]
	}
	if !bytes.HasPrefix(line, []byte("#!")) {
		return nil, nil, newEncodingError("function library without shebang")
	}
	fields := bytes.Fields(line[2:])
	if len(fields) == 0 {
		return nil, nil, newEncodingError("function library shebang names no engine")
	}
	engine = fields[0]
	for _, f := range fields[1:] {
		if bytes.HasPrefix(f, []byte("name=")) {
			lib = f[len("name="):]
		}
	}
	if len(lib) == 0 {
		return nil, nil, newEncodingError("function library shebang %q has no name", line)
	}
	return engine, lib, nil
}
