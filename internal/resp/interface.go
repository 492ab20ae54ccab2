package resp

// Reader decodes RESP values from a stream
type Reader interface {
	Read() (Value, error)
	// Buffered returns the number of bytes already received but not yet decoded
	Buffered() int
}

// Writer encodes RESP values into a buffered stream
type Writer interface {
	Write(v Value) error
	Flush() error
}
