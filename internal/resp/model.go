package resp

import "bytes"

const (
	TypeSimpleString = '+'
	TypeError        = '-'
	TypeInteger      = ':'
	TypeBulkString   = '$'
	TypeArray        = '*'
)

// Value is a single RESP value. Null bulk strings and null arrays are
// represented by IsNull on a value of the matching Type
type Value struct {
	String  []byte // SimpleString, Error, BulkString
	Array   []Value
	Integer int64 // Integer
	Type    byte
	IsNull  bool // For nil BulkString and nil Array
}

// IsNil reports whether v is a null bulk string or a null array
func (v Value) IsNil() bool {
	return v.IsNull && (v.Type == TypeBulkString || v.Type == TypeArray)
}

// Text returns the payload of a non-null SimpleString or BulkString
func (v Value) Text() (string, bool) {
	if v.IsNull {
		return "", false
	}
	switch v.Type {
	case TypeSimpleString, TypeBulkString:
		return string(v.String), true
	}
	return "", false
}

// Clone returns a deep copy of v that shares no memory with it
func (v Value) Clone() Value {
	c := Value{
		Type:    v.Type,
		Integer: v.Integer,
		IsNull:  v.IsNull,
	}
	if v.String != nil {
		c.String = append(make([]byte, 0, len(v.String)), v.String...)
	}
	if v.Array != nil {
		c.Array = make([]Value, len(v.Array))
		for i, el := range v.Array {
			c.Array[i] = el.Clone()
		}
	}
	return c
}

// Equal reports whether a and b encode to the same wire bytes
func Equal(a, b Value) bool {
	if a.Type != b.Type || a.IsNull != b.IsNull {
		return false
	}
	if a.IsNull {
		return true
	}

	switch a.Type {
	case TypeInteger:
		return a.Integer == b.Integer
	case TypeArray:
		if len(a.Array) != len(b.Array) {
			return false
		}
		for i := range a.Array {
			if !Equal(a.Array[i], b.Array[i]) {
				return false
			}
		}
		return true
	default:
		return bytes.Equal(a.String, b.String)
	}
}
