// Copyright (c) 2024–2026 The instrument developers. All rights reserved.
// Project site: https://github.com/gotmc/instrument
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrument

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transport is the synchronous command/response link to one instrument,
// e.g. a serial port, a GPIB controller or a USBTMC endpoint pair.
type Transport interface {
	// Write sends a command that produces no response.
	Write(cmd string) error
	// Read reads one response record.
	Read() (string, error)
	// Ask writes a query and reads its response.
	Ask(cmd string) (string, error)
}

// Tx sends commands while holding exclusive use of the transport. It is
// only valid inside the function passed to Exclusive.
type Tx interface {
	Write(cmd string) error
	Ask(cmd string) (string, error)
}

// Instrument owns a Transport and resolves property access against it.
//
// An Instrument serializes each property read or write, including the error
// check that may follow a write, so channels sharing the transport never
// interleave mid-operation. Callers sharing one Instrument between
// goroutines still own the ordering of their operations.
type Instrument struct {
	name       string
	session    uuid.UUID
	transport  Transport
	props      *PropertySet
	logger     *zap.Logger
	errorQuery string

	mu       sync.Mutex // held for a command sequence on transport
	gate     gate
	memo     memo
	channels []*Channel
}

// Option configures an Instrument.
type Option func(*Instrument)

// WithLogger sets the logger used for command tracing. The default discards
// everything.
func WithLogger(logger *zap.Logger) Option {
	return func(i *Instrument) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithErrorQuery replaces the "SYST:ERR?" query used to read the error queue.
func WithErrorQuery(cmd string) Option {
	return func(i *Instrument) { i.errorQuery = cmd }
}

// DefaultErrorQuery reads one entry of the SCPI error queue.
const DefaultErrorQuery = "SYST:ERR?"

// New creates an Instrument named name that talks over t and exposes props.
// The transport is not opened or configured; it is closed by Close.
func New(t Transport, name string, props *PropertySet, opts ...Option) (*Instrument, error) {
	if t == nil {
		return nil, errors.New("nil transport")
	}
	if props == nil {
		props = &PropertySet{}
	}
	i := &Instrument{
		name:       name,
		session:    uuid.New(),
		transport:  t,
		props:      props,
		logger:     zap.NewNop(),
		errorQuery: DefaultErrorQuery,
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.With(
		zap.String("instrument", name),
		zap.String("session", i.session.String()),
	)
	return i, nil
}

// Name returns the instrument's descriptive name.
func (i *Instrument) Name() string { return i.name }

// Session identifies this connection in logs.
func (i *Instrument) Session() uuid.UUID { return i.session }

// Logger returns the instrument's logger.
func (i *Instrument) Logger() *zap.Logger { return i.logger }

// PropertySet returns the properties shared by all instruments of this
// driver.
func (i *Instrument) PropertySet() *PropertySet { return i.props }

// Channels returns the channels added with AddChannel.
func (i *Instrument) Channels() []*Channel {
	return append([]*Channel(nil), i.channels...)
}

// Write sends cmd.
func (i *Instrument) Write(cmd string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.write(cmd)
}

// Read reads one response.
func (i *Instrument) Read() (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	s, err := i.transport.Read()
	if err != nil {
		return "", err
	}
	i.logger.Debug("read", zap.String("response", s))
	return s, nil
}

// Ask sends a query and returns the raw response.
func (i *Instrument) Ask(cmd string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.ask(cmd)
}

// Query is Ask with surrounding whitespace trimmed from the response.
func (i *Instrument) Query(cmd string) (string, error) {
	s, err := i.Ask(cmd)
	return strings.TrimSpace(s), err
}

// Values sends a query and splits its comma separated response, see
// ParseValues.
func (i *Instrument) Values(cmd string) ([]any, error) {
	s, err := i.Ask(cmd)
	if err != nil {
		return nil, err
	}
	return ParseValues(s), nil
}

// Exclusive runs fn with sole use of the transport, so that a multi-command
// sequence is not interleaved with commands from channels or other
// goroutines. fn must use tx, not the Instrument, to send commands.
func (i *Instrument) Exclusive(fn func(tx Tx) error) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return fn(rawTx{i})
}

// Get reads the named property.
func (i *Instrument) Get(name string) (any, error) { return get(i, name) }

// Set writes value to the named property.
func (i *Instrument) Set(name string, value any) error { return set(i, name, value) }

// Memo caches per-instrument values, see Scope.
func (i *Instrument) Memo(key string, fill func() (any, error)) (any, error) {
	return i.memo.get(key, fill)
}

// Disable makes the named property fail with an *UnsupportedError on both
// read and write for this instrument only. reason names the hardware that
// lacks the feature.
func (i *Instrument) Disable(name, reason string) {
	i.DisableOps(name, reason, OpRead|OpWrite)
}

// DisableOps disables only the given operations of the named property.
func (i *Instrument) DisableOps(name, reason string, ops Op) {
	i.logger.Debug("disabling property",
		zap.String("property", name),
		zap.Stringer("ops", ops),
		zap.String("reason", reason),
	)
	i.gate.disable(name, reason, ops)
}

// Disabled maps each disabled property name to the reason it was disabled.
func (i *Instrument) Disabled() map[string]string { return i.gate.snapshot() }

// Properties lists the properties available on this instrument. Properties
// disabled for both reading and writing are left out.
func (i *Instrument) Properties() []string { return visible(i.props, &i.gate) }

// Close closes the transport if it implements io.Closer.
func (i *Instrument) Close() error {
	c, ok := i.transport.(io.Closer)
	if !ok {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := c.Close(); err != nil {
		return fmt.Errorf("close %s: %w", i.name, err)
	}
	return nil
}

func (i *Instrument) write(cmd string) error {
	i.logger.Debug("write", zap.String("cmd", cmd))
	return i.transport.Write(cmd)
}

func (i *Instrument) ask(cmd string) (string, error) {
	s, err := i.transport.Ask(cmd)
	if err != nil {
		i.logger.Debug("ask failed", zap.String("cmd", cmd), zap.Error(err))
		return "", err
	}
	i.logger.Debug("ask", zap.String("cmd", cmd), zap.String("response", s))
	return s, nil
}

// rawTx sends through the instrument without locking; the caller holds mu.
type rawTx struct{ i *Instrument }

func (tx rawTx) Write(cmd string) error         { return tx.i.write(cmd) }
func (tx rawTx) Ask(cmd string) (string, error) { return tx.i.ask(cmd) }

// scope is what the property engine needs from an Instrument or Channel.
type scope interface {
	Scope
	properties() *PropertySet
	gates() *gate
	insertID(cmd string) string
	root() *Instrument
}

func (i *Instrument) properties() *PropertySet   { return i.props }
func (i *Instrument) gates() *gate               { return &i.gate }
func (i *Instrument) insertID(cmd string) string { return cmd }
func (i *Instrument) root() *Instrument          { return i }

func lookup(s scope, name string, op Op) (*Property, error) {
	p, ok := s.properties().Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknown, name)
	}
	if err := s.gates().check(name, op); err != nil {
		return nil, err
	}
	return p, nil
}

func get(s scope, name string) (any, error) {
	p, err := lookup(s, name, OpRead)
	if err != nil {
		return nil, err
	}
	if !p.Readable() {
		return nil, &UnsupportedError{Property: name, Op: OpRead, Reason: "property is write-only"}
	}
	resp, err := s.root().Ask(s.insertID(p.GetCommand))
	if err != nil {
		return nil, err
	}
	return p.decode(resp)
}

func set(s scope, name string, value any) error {
	p, err := lookup(s, name, OpWrite)
	if err != nil {
		return err
	}
	if !p.Writable() {
		return &UnsupportedError{Property: name, Op: OpWrite, Reason: "property is read-only"}
	}
	// Validation may read other properties, so it runs before the
	// transport is locked.
	cmd, err := p.encode(s, value)
	if err != nil {
		return err
	}
	inst := s.root()
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if err := inst.write(s.insertID(cmd)); err != nil {
		return err
	}
	if p.CheckErrors {
		return inst.checkErrors()
	}
	return nil
}

func visible(ps *PropertySet, g *gate) []string {
	var names []string
	for _, name := range ps.Names() {
		if !g.hidden(name) {
			names = append(names, name)
		}
	}
	return names
}
