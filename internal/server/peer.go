package server

import (
	"net"
	"sync"
	"time"

	"github.com/eternalApril/moonkv/internal/resp"
)

// Peer represents a connected client.
// It wraps a network connection and provides synchronized methods for reading and writing RESP-encoded data
type Peer struct {
	conn        net.Conn
	reader      resp.Reader
	writer      resp.Writer
	mu          sync.Mutex
	idleTimeout time.Duration
}

// NewPeer initializes a new client peer from a network connection.
// maxBulkLen limits the bulk strings the client may send, idleTimeout closes
// clients that send nothing for that long (0 disables it)
func NewPeer(conn net.Conn, maxBulkLen int64, idleTimeout time.Duration) *Peer {
	decoder := resp.NewDecoder(conn)
	decoder.SetMaxBulkLen(maxBulkLen)

	return &Peer{
		conn:        conn,
		reader:      decoder,
		writer:      resp.NewEncoder(conn),
		idleTimeout: idleTimeout,
	}
}

// Send encodes a RESP value into the client's output buffer.
// This method is thread-safe and can be called from multiple goroutines
func (p *Peer) Send(v resp.Value) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writer.Write(v)
}

// ReadCommand reads and decodes the next RESP value from the client's input stream
func (p *Peer) ReadCommand() (resp.Value, error) {
	if p.idleTimeout > 0 {
		if err := p.conn.SetReadDeadline(time.Now().Add(p.idleTimeout)); err != nil {
			return resp.Value{}, err
		}
	}
	return p.reader.Read()
}

// Close terminates the underlying network connection
func (p *Peer) Close() error {
	return p.conn.Close()
}

// Flush sends all buffered data to the client
func (p *Peer) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writer.Flush()
}

// InputBuffered returns the number of bytes that can be read from the current buffer
func (p *Peer) InputBuffered() int {
	return p.reader.Buffered()
}

// RemoteAddr returns the client address
func (p *Peer) RemoteAddr() string {
	return p.conn.RemoteAddr().String()
}
