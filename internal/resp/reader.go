package resp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
)

const (
	// DefaultMaxBulkLen matches the proto-max-bulk-len default of Redis
	DefaultMaxBulkLen = 512 * 1024 * 1024
	// DefaultMaxArrayLen bounds the element count accepted in one array header
	DefaultMaxArrayLen = 1024 * 1024

	maxDepth   = 128
	readerSize = 64 * 1024
)

var (
	// ErrFrame marks malformed input. The stream position after a frame error
	// cannot be trusted, so the connection must be dropped
	ErrFrame = errors.New("protocol error")

	ErrInvalidEnding = errors.New("invalid line ending")
)

// Decoder reads RESP values from a byte stream. A Decoder is not safe for
// concurrent use
type Decoder struct {
	rd          *bufio.Reader
	maxBulkLen  int64
	maxArrayLen int64
}

// NewDecoder initializes a Decoder with a buffered reader
func NewDecoder(rd io.Reader) *Decoder {
	return &Decoder{
		rd:          bufio.NewReaderSize(rd, readerSize),
		maxBulkLen:  DefaultMaxBulkLen,
		maxArrayLen: DefaultMaxArrayLen,
	}
}

// SetMaxBulkLen changes the largest bulk string payload accepted. Values <= 0 are ignored
func (d *Decoder) SetMaxBulkLen(n int64) {
	if n > 0 {
		d.maxBulkLen = n
	}
}

// Buffered returns the number of bytes that can be read from the current buffer
func (d *Decoder) Buffered() int {
	return d.rd.Buffered()
}

// Read decodes the next value. It returns io.EOF only when the stream ends
// cleanly between two values; a stream that ends inside a value yields an
// error wrapping ErrFrame and io.ErrUnexpectedEOF
func (d *Decoder) Read() (Value, error) {
	prefix, err := d.rd.ReadByte()
	if err != nil {
		return Value{}, err
	}

	return d.readValue(prefix, 0)
}

func (d *Decoder) readNested(depth int) (Value, error) {
	prefix, err := d.rd.ReadByte()
	if err != nil {
		return Value{}, truncated(err)
	}

	return d.readValue(prefix, depth)
}

func (d *Decoder) readValue(prefix byte, depth int) (Value, error) {
	switch prefix {
	case TypeSimpleString, TypeError:
		line, err := d.readLine()
		if err != nil {
			return Value{}, err
		}

		return Value{Type: prefix, String: append([]byte(nil), line...)}, nil

	case TypeInteger:
		num, err := d.readInteger()
		if err != nil {
			return Value{}, err
		}

		return MakeInteger(num), nil

	case TypeBulkString:
		return d.readBulkString()

	case TypeArray:
		return d.readArray(depth)
	}

	return Value{}, fmt.Errorf("%w: unexpected type byte %q", ErrFrame, prefix)
}

// readLine returns one CRLF terminated line without the terminator. The
// returned slice is only valid until the next read
func (d *Decoder) readLine() ([]byte, error) {
	line, err := d.rd.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return nil, fmt.Errorf("%w: line exceeds %d bytes", ErrFrame, readerSize)
		}
		return nil, truncated(err)
	}

	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, fmt.Errorf("%w: %w", ErrFrame, ErrInvalidEnding)
	}

	return line[:len(line)-2], nil
}

func (d *Decoder) readInteger() (int64, error) {
	line, err := d.readLine()
	if err != nil {
		return 0, err
	}

	num, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid integer %q", ErrFrame, line)
	}

	return num, nil
}

// readLength parses a bulk or array header. -1 is the null marker
func (d *Decoder) readLength(limit int64) (int64, error) {
	n, err := d.readInteger()
	if err != nil {
		return 0, err
	}

	if n < -1 || n > limit {
		return 0, fmt.Errorf("%w: invalid length %d", ErrFrame, n)
	}

	return n, nil
}

func (d *Decoder) readBulkString() (Value, error) {
	n, err := d.readLength(d.maxBulkLen)
	if err != nil {
		return Value{}, err
	}

	if n == -1 {
		return MakeNilBulkString(), nil
	}

	// payload followed by CRLF, read in chunks so a large header alone
	// does not allocate its full length
	total := int(n + 2)
	buf := make([]byte, 0, min(total, readerSize))
	for len(buf) < total {
		start := len(buf)
		chunk := min(total-start, readerSize)
		buf = slices.Grow(buf, chunk)[:start+chunk]
		if _, err := io.ReadFull(d.rd, buf[start:]); err != nil {
			return Value{}, truncated(err)
		}
	}

	if buf[n] != '\r' || buf[n+1] != '\n' {
		return Value{}, fmt.Errorf("%w: %w", ErrFrame, ErrInvalidEnding)
	}

	return Value{Type: TypeBulkString, String: buf[:n:n]}, nil
}

func (d *Decoder) readArray(depth int) (Value, error) {
	if depth >= maxDepth {
		return Value{}, fmt.Errorf("%w: arrays nested deeper than %d", ErrFrame, maxDepth)
	}

	n, err := d.readLength(d.maxArrayLen)
	if err != nil {
		return Value{}, err
	}

	if n == -1 {
		return MakeNilArray(), nil
	}

	// the header is untrusted, grow the slice as elements arrive
	values := make([]Value, 0, min(n, 64))
	for i := int64(0); i < n; i++ {
		el, err := d.readNested(depth + 1)
		if err != nil {
			return Value{}, err
		}
		values = append(values, el)
	}

	return MakeArray(values), nil
}

// truncated converts an end of stream inside a value into a frame error
func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrFrame, io.ErrUnexpectedEOF)
	}
	return err
}
