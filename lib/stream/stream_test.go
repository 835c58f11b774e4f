package stream

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

type pipe struct {
	io.Reader
	bytes.Buffer
}

func (p *pipe) Read(b []byte) (int, error) { return p.Reader.Read(b) }

func TestAsk(t *testing.T) {
	p := &pipe{Reader: strings.NewReader("Thorlabs,PM100USB,P2000000,1.4.0\r\n+1.550000E-03\n")}
	c := New(p)
	idn, err := c.Ask("*IDN?")
	if err != nil {
		t.Fatal(err)
	}
	if idn != "Thorlabs,PM100USB,P2000000,1.4.0" {
		t.Errorf("idn = %q", idn)
	}
	pow, err := c.Ask("MEAS:POW?\n")
	if err != nil {
		t.Fatal(err)
	}
	if pow != "+1.550000E-03" {
		t.Errorf("power = %q", pow)
	}
	if got := p.Buffer.String(); got != "*IDN?\nMEAS:POW?\n" {
		t.Errorf("wrote %q", got)
	}
}

func TestTerminators(t *testing.T) {
	p := &pipe{Reader: strings.NewReader("1\r")}
	c := New(p, WithTerminators("\r\n", '\r'))
	resp, err := c.Ask("*OPC?")
	if err != nil {
		t.Fatal(err)
	}
	if resp != "1" {
		t.Errorf("resp = %q", resp)
	}
	if got := p.Buffer.String(); got != "*OPC?\r\n" {
		t.Errorf("wrote %q", got)
	}
}

func TestReadEOF(t *testing.T) {
	c := New(&pipe{Reader: strings.NewReader("")})
	if _, err := c.Read(); !errors.Is(err, io.EOF) {
		t.Errorf("got %v, want EOF", err)
	}
	c = New(&pipe{Reader: strings.NewReader("partial")})
	s, err := c.Read()
	if err != nil || s != "partial" {
		t.Errorf("got %q, %v", s, err)
	}
}
