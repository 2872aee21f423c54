package rdb

import (
	"github.com/juju/errors"

	"github.com/919927181/rdbmem/internal/log"
	"github.com/919927181/rdbmem/rdb/core/types"
)

// ModuleOpcode tags each item of a module value.
type ModuleOpcode uint64

const (
	ModuleOpcodeEOF    ModuleOpcode = 0 // RDB_MODULE_OPCODE_EOF: End of module value.
	ModuleOpcodeSint   ModuleOpcode = 1 // RDB_MODULE_OPCODE_SINT: Signed integer.
	ModuleOpcodeUint   ModuleOpcode = 2 // RDB_MODULE_OPCODE_UINT: Unsigned integer.
	ModuleOpcodeFloat  ModuleOpcode = 3 // RDB_MODULE_OPCODE_FLOAT: Float.
	ModuleOpcodeDouble ModuleOpcode = 4 // RDB_MODULE_OPCODE_DOUBLE: Double.
	ModuleOpcodeString ModuleOpcode = 5 // RDB_MODULE_OPCODE_STRING: String.
)

// ModuleItem is one annotated value of a module opcode stream.
type ModuleItem struct {
	Opcode ModuleOpcode
	Uint   uint64  // SINT and UINT
	Float  float64 // FLOAT and DOUBLE
	String []byte  // STRING
}

// Int is the value of a SINT item.
func (i ModuleItem) Int() int64 {
	return int64(i.Uint)
}

// readModule reads a MODULE2 value. Bytes are recorded from the module id
// up to and including the EOF opcode; the recording handed to EndModule is
// prefixed with the type byte so it can be written back as a value.
func (d *decode) readModule(key []byte, emit bool) error {
	d.startRecording()
	start := d.readCount

	moduleID, err := d.readPlainLength()
	if err != nil {
		d.stopRecording()
		return errors.Trace(err)
	}
	name := types.ModuleTypeNameByID(moduleID)

	record := false
	if emit {
		record = d.event.StartModule(key, name, d.expiry, d.info)
	}
	if !record {
		d.stopRecording()
	}

	err = d.readModuleItems(name, func(item ModuleItem) {
		if emit {
			d.event.HandleModuleData(key, item)
		}
	})
	if err != nil {
		d.stopRecording()
		return errors.Trace(err)
	}

	size := d.readCount - start
	var raw []byte
	if record {
		raw = append([]byte{byte(types.TypeModule2)}, d.stopRecording()...)
	}
	if emit {
		d.event.EndModule(key, size, raw)
	}
	return nil
}

// readModuleAux reads a MODULE_AUX record. Nothing reaches the Decoder.
func (d *decode) readModuleAux() error {
	moduleID, err := d.readPlainLength()
	if err != nil {
		return errors.Trace(err)
	}
	name := types.ModuleTypeNameByID(moduleID)
	whenOpcode, err := d.readPlainLength()
	if err != nil {
		return errors.Trace(err)
	}
	if ModuleOpcode(whenOpcode) != ModuleOpcodeUint {
		return newEncodingError("module %s aux: when opcode %d, expected %d", name, whenOpcode, ModuleOpcodeUint)
	}
	when, err := d.readPlainLength()
	if err != nil {
		return errors.Trace(err)
	}
	items := 0
	if err := d.readModuleItems(name, func(ModuleItem) { items++ }); err != nil {
		return errors.Trace(err)
	}
	log.Debugf("rdb: module aux module_name=%s encver=%d when=%d items=%d", name, types.ModuleEncVersion(moduleID), when, items)
	return nil
}

func (d *decode) readModuleItems(name string, fn func(ModuleItem)) error {
	for {
		op, err := d.readPlainLength()
		if err != nil {
			return errors.Trace(err)
		}
		item := ModuleItem{Opcode: ModuleOpcode(op)}
		switch item.Opcode {
		case ModuleOpcodeEOF:
			return nil
		case ModuleOpcodeSint, ModuleOpcodeUint:
			if item.Uint, err = d.readPlainLength(); err != nil {
				return errors.Trace(err)
			}
		case ModuleOpcodeFloat:
			f, err := d.readBinaryFloat32()
			if err != nil {
				return errors.Trace(err)
			}
			item.Float = float64(f)
		case ModuleOpcodeDouble:
			if item.Float, err = d.readBinaryFloat64(); err != nil {
				return errors.Trace(err)
			}
		case ModuleOpcodeString:
			if item.String, err = d.readString(); err != nil {
				return errors.Trace(err)
			}
		default:
			return newEncodingError("unknown module opcode %d in module %s", op, name)
		}
		fn(item)
	}
}
