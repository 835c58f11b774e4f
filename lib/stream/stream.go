// Package stream is an instrument.Transport for instruments that talk SCPI
// as terminated lines over a byte stream: USB virtual COM ports, RS-232 and
// raw TCP sockets (port 5025).
package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

// Conn writes commands and reads responses as terminated lines.
type Conn struct {
	rw     io.ReadWriter
	br     *bufio.Reader
	wterm  string
	rterm  byte
	logger *zap.Logger
}

// Option configures a Conn.
type Option func(*Conn)

// WithTerminators sets the write terminator appended to every command and
// the byte that ends a response. Both default to "\n".
func WithTerminators(write string, read byte) Option {
	return func(c *Conn) {
		c.wterm = write
		c.rterm = read
	}
}

// WithLogger logs every command and response at Debug.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Conn) { c.logger = logger.With(zap.String("transport", "stream")) }
}

// New wraps rw. If rw is an io.Closer, Close closes it.
func New(rw io.ReadWriter, opts ...Option) *Conn {
	c := &Conn{
		rw:     rw,
		br:     bufio.NewReader(rw),
		wterm:  "\n",
		rterm:  '\n',
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Conn) Write(cmd string) error {
	c.logger.Debug("write", zap.String("cmd", cmd))
	_, err := io.WriteString(c.rw, strings.TrimRight(cmd, "\r\n")+c.wterm)
	return err
}

// Read returns the next response without its terminator. A trailing "\r" is
// dropped as well.
func (c *Conn) Read() (string, error) {
	s, err := c.br.ReadString(c.rterm)
	if errors.Is(err, io.EOF) && s != "" {
		err = nil
	}
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	s = strings.TrimSuffix(s, string(c.rterm))
	s = strings.TrimSuffix(s, "\r")
	c.logger.Debug("read", zap.String("response", s))
	return s, nil
}

func (c *Conn) Ask(cmd string) (string, error) {
	if err := c.Write(cmd); err != nil {
		return "", err
	}
	return c.Read()
}

func (c *Conn) Close() error {
	if cl, ok := c.rw.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
