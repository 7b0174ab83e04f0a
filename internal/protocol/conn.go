package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Conn carries messages over one duplex stream.
type Conn struct {
	enc *msgpack.Encoder
	dec *msgpack.Decoder

	wmu    sync.Mutex
	closer io.Closer
	once   sync.Once
	cerr   error
}

func NewConn(r io.Reader, w io.Writer, closer io.Closer) *Conn {
	dec := msgpack.NewDecoder(r)
	dec.UseLooseInterfaceDecoding(true)
	enc := msgpack.NewEncoder(w)
	return &Conn{enc: enc, dec: dec, closer: closer}
}

// Send writes m. Safe for concurrent use.
func (c *Conn) Send(m *Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.enc.Encode(m); err != nil {
		return fmt.Errorf("send %s: %w", m.Type, err)
	}
	return nil
}

// Receive reads and validates the next message. It returns io.EOF once the
// peer has gone away.
func (c *Conn) Receive() (*Message, error) {
	var m Message
	if err := c.dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("receive: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Conn) Close() error {
	c.once.Do(func() {
		if c.closer != nil {
			c.cerr = c.closer.Close()
		}
	})
	return c.cerr
}
