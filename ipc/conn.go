package ipc

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// MaxMessageBytes bounds a single frame's CBOR body, guarding against a
// corrupt or hostile length prefix forcing an unbounded allocation.
const MaxMessageBytes = 16 << 20

var encMode = func() cbor.EncMode {
	m, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return m
}()

// Conn wraps a net.Conn with the framed Message protocol from §4.1: each
// frame is a little-endian uint32 byte length followed by that many
// bytes of CBOR-encoded Message. Writes are serialized with a mutex so
// concurrent senders on the same Conn never interleave partial frames.
type Conn struct {
	nc net.Conn
	r  *bufio.Reader

	writeMu sync.Mutex
}

// NewConn wraps an already-established net.Conn.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc, r: bufio.NewReader(nc)}
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.nc.Close() }

// RemoteAddr exposes the underlying connection's remote address.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// WriteMessage encodes and sends msg as one frame.
func (c *Conn) WriteMessage(msg Message) error {
	body, err := encMode.Marshal(msg)
	if err != nil {
		return fmt.Errorf("ipc: encode %s: %w", msg.Kind, err)
	}
	if len(body) > MaxMessageBytes {
		return fmt.Errorf("ipc: encoded %s exceeds %d bytes", msg.Kind, MaxMessageBytes)
	}

	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(body)))

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.nc.Write(hdr[:]); err != nil {
		return fmt.Errorf("ipc: write frame header: %w", err)
	}
	if _, err := c.nc.Write(body); err != nil {
		return fmt.Errorf("ipc: write frame body: %w", err)
	}
	return nil
}

// ReadMessage blocks for the next frame and decodes it. io.EOF is
// returned unwrapped so callers can distinguish a clean peer close from
// a protocol error.
func (c *Conn) ReadMessage() (Message, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Message{}, fmt.Errorf("ipc: truncated frame header: %w", err)
		}
		return Message{}, err
	}

	n := binary.LittleEndian.Uint32(hdr[:])
	if n > MaxMessageBytes {
		return Message{}, fmt.Errorf("ipc: frame of %d bytes exceeds %d limit", n, MaxMessageBytes)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(c.r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Message{}, fmt.Errorf("ipc: read frame body: %w", err)
	}

	var msg Message
	if err := cbor.Unmarshal(body, &msg); err != nil {
		return Message{}, fmt.Errorf("ipc: decode frame: %w", err)
	}
	return msg, nil
}
