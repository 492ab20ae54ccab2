package resp

import (
	"bytes"
)

// Marshal returns the wire encoding of v
func Marshal(v Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	if err := enc.Write(v); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// MakeCommand builds the request array a client sends for cmd with args
func MakeCommand(cmd string, args ...string) Value {
	elements := make([]Value, 1+len(args))

	elements[0] = MakeBulkString(cmd)
	for i, arg := range args {
		elements[i+1] = MakeBulkString(arg)
	}

	return MakeArray(elements)
}

// SerializeCommand uses a standard Encoder to convert the command to bytes
func SerializeCommand(cmd string, args ...string) ([]byte, error) {
	return Marshal(MakeCommand(cmd, args...))
}
