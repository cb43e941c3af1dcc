package rdb

import "strings"

// Module value opcodes, used by TypeModule2 values and MODULE_AUX records
const (
	moduleOpcodeEOF    = 0
	moduleOpcodeSInt   = 1
	moduleOpcodeUInt   = 2
	moduleOpcodeFloat  = 3
	moduleOpcodeDouble = 4
	moduleOpcodeString = 5
)

const moduleCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// ModuleFieldKind identifies the primitive stored in a ModuleField
type ModuleFieldKind int

const (
	ModuleSInt ModuleFieldKind = iota + 1
	ModuleUInt
	ModuleFloat
	ModuleDouble
	ModuleString
)

// ModuleField is one self-describing primitive of a module value
type ModuleField struct {
	Kind   ModuleFieldKind
	Int    uint64 // SInt (as two's complement) and UInt
	Float  float64
	String []byte
}

// ModuleValue is the opaque content of a module type. The decoder does not
// know the module's layout, so the value is kept as its primitive fields.
type ModuleValue struct {
	ID     uint64
	Name   string // 9-character module type name decoded from ID
	EncVer int    // module encoding version decoded from ID
	Fields []ModuleField
}

// ModuleName splits a 64-bit module type id into its name and encoding
// version. The high 54 bits hold nine 6-bit characters, the low 10 bits the
// version.
func ModuleName(id uint64) (string, int) {
	var sb strings.Builder
	sb.Grow(9)
	for i := 0; i < 9; i++ {
		shift := 64 - 6*(i+1)
		sb.WriteByte(moduleCharset[(id>>uint(shift))&0x3f])
	}
	return sb.String(), int(id & 0x3ff)
}

func (p *Parser) readModule() (Value, error) {
	id, err := p.readLen()
	if err != nil {
		return nil, err
	}
	name, encver := ModuleName(id)
	fields, err := p.readModuleFields()
	if err != nil {
		return nil, err
	}
	return &ModuleValue{ID: id, Name: name, EncVer: encver, Fields: fields}, nil
}

// readModuleFields reads the module opcode stream up to its EOF marker
func (p *Parser) readModuleFields() ([]ModuleField, error) {
	var fields []ModuleField
	for {
		op, err := p.readLen()
		if err != nil {
			return nil, err
		}
		f := ModuleField{}
		switch op {
		case moduleOpcodeEOF:
			return fields, nil
		case moduleOpcodeSInt, moduleOpcodeUInt:
			f.Kind = ModuleUInt
			if op == moduleOpcodeSInt {
				f.Kind = ModuleSInt
			}
			if f.Int, err = p.readLen(); err != nil {
				return nil, err
			}
		case moduleOpcodeFloat:
			f.Kind = ModuleFloat
			v, err := p.readBinaryFloat()
			if err != nil {
				return nil, err
			}
			f.Float = float64(v)
		case moduleOpcodeDouble:
			f.Kind = ModuleDouble
			if f.Float, err = p.readBinaryDouble(); err != nil {
				return nil, err
			}
		case moduleOpcodeString:
			f.Kind = ModuleString
			if f.String, err = p.readString(); err != nil {
				return nil, err
			}
		default:
			return nil, encodingf("module opcode %d", op)
		}
		fields = append(fields, f)
	}
}

// skipModuleAux consumes a MODULE_AUX record: module id, the "when" marker
// and the module opcode stream
func (p *Parser) skipModuleAux() error {
	if _, err := p.readLen(); err != nil {
		return err
	}
	whenOp, err := p.readLen()
	if err != nil {
		return err
	}
	if whenOp != moduleOpcodeUInt {
		return encodingf("module aux when-opcode %d", whenOp)
	}
	if _, err := p.readLen(); err != nil {
		return err
	}
	_, err = p.readModuleFields()
	return err
}
