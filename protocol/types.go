package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueType represents the type of a RESP value
type ValueType byte

const (
	// RESP value types
	TypeSimpleString ValueType = '+'
	TypeError        ValueType = '-'
	TypeInteger      ValueType = ':'
	TypeBulkString   ValueType = '$'
	TypeArray        ValueType = '*'
)

// Value represents a parsed RESP value
type Value struct {
	Type    ValueType
	Data    []byte
	Integer int64
	Array   []Value
	IsNull  bool
}

// String returns a string representation of the value
func (v Value) String() string {
	switch v.Type {
	case TypeSimpleString:
		return string(v.Data)
	case TypeError:
		return string(v.Data)
	case TypeInteger:
		return strconv.FormatInt(v.Integer, 10)
	case TypeBulkString:
		if v.IsNull {
			return "(nil)"
		}
		return string(v.Data)
	case TypeArray:
		if v.IsNull {
			return "(nil)"
		}
		parts := make([]string, len(v.Array))
		for i, item := range v.Array {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("unknown type %c", v.Type)
	}
}

// IsError returns true if this is an error value
func (v Value) IsError() bool {
	return v.Type == TypeError
}

// Error returns the error message if this is an error value
func (v Value) Error() string {
	if v.Type == TypeError {
		return string(v.Data)
	}
	return ""
}

// Command is a Redis command decoded from a multi-bulk frame
type Command struct {
	Name string   // upper-cased command name
	Args [][]byte // arguments after the name
}

// NewCommand builds a command from the elements of a frame
func NewCommand(elems [][]byte) *Command {
	return &Command{
		Name: strings.ToUpper(string(elems[0])),
		Args: elems[1:],
	}
}

// String returns a string representation of the command
func (c *Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	args := make([]string, len(c.Args))
	for i, arg := range c.Args {
		args[i] = string(arg)
	}
	return c.Name + " " + strings.Join(args, " ")
}
