// Copyright (c) 2020–2026 The instrument developers. All rights reserved.
// Project site: https://github.com/gotmc/instrument
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package prologix is an instrument.Transport for GPIB instruments behind a
// Prologix (or AR488 compatible) USB/Ethernet GPIB controller.
package prologix

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gotmc/query"
	"go.uber.org/zap"
)

// Controller models a GPIB controller-in-charge.
type Controller struct {
	rw               io.ReadWriter
	br               *bufio.Reader
	primaryAddr      int
	hasSecondaryAddr bool
	secondaryAddr    int
	auto             bool
	usbTerm          byte
	eotChar          byte
	readTimeout      time.Duration
	writeDelay       time.Duration
	ar488            bool // compatibility with Arduino AR488 - see WithAR488 documentation for details.
	logger           *zap.Logger
}

// ControllerOption applies an option to the controller.
type ControllerOption func(*Controller)

// NewController creates a GPIB controller-in-charge at the given address using
// the given Prologix link, which can either be a Virtual COM Port (VCP), USB
// direct, or Ethernet. Enable clear to send the Selected Device Clear (SDC)
// message to the GPIB address. Optionally controller configuration can be
// included using a ControllerOption.
func NewController(
	rw io.ReadWriter,
	addr int,
	clear bool,
	opts ...ControllerOption,
) (*Controller, error) {
	c := Controller{
		rw:          rw,
		br:          bufio.NewReader(rw),
		primaryAddr: addr,
		usbTerm:     '\n',
		eotChar:     '\n',
		readTimeout: 500 * time.Millisecond,
		logger:      zap.NewNop(),
	}

	for _, opt := range opts {
		opt(&c)
	}

	if !isPrimaryAddressValid(c.primaryAddr) {
		return nil, fmt.Errorf("invalid primary address %d (must by 0-30)", c.primaryAddr)
	}

	addrCmd := fmt.Sprintf("addr %d", c.primaryAddr)
	if c.hasSecondaryAddr {
		if !isSecondaryAddressValid(c.secondaryAddr) {
			return nil, fmt.Errorf("invalid secondary address %d (must be 96-126)", c.secondaryAddr)
		}
		addrCmd = fmt.Sprintf("addr %d %d", c.primaryAddr, c.secondaryAddr)
	}
	cmds := []string{}
	if !c.ar488 {
		cmds = append(cmds,
			"verbose 0", // turn off verbosity if on
			"savecfg 0", // Disable saving of configuration parameters in EPROM
		)
	}
	cmds = append(cmds,
		addrCmd,  // Set the primary address.
		"mode 1", // Switch to controller mode.
		"auto 0", // Turn off read-after-write and address instrument to listen.
		"eoi 1",  // Enable EOI assertion with last character.
		"eos 0",  // Set GPIB termination.
		fmt.Sprintf("read_tmo_ms %d", c.readTimeout.Milliseconds()),
		fmt.Sprintf("eot_char %d", c.eotChar),
		"eot_enable 1", // Append character when EOI detected?
	)
	if !c.ar488 {
		cmds = append(cmds, "savecfg 1")
	}
	if clear {
		cmds = append(cmds, "clr")
	}
	for _, cmd := range cmds {
		if err := c.CommandController(cmd); err != nil {
			return nil, err
		}
	}

	return &c, nil
}

// WithSecondaryAddress sets a secondary address, which must be in the range of
// 96 and 126, inclusive.
func WithSecondaryAddress(addr int) ControllerOption {
	return func(c *Controller) {
		c.hasSecondaryAddr = true
		c.secondaryAddr = addr
	}
}

// WithLogger causes commands and responses to be logged at debug level.
func WithLogger(logger *zap.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger.With(zap.String("transport", "prologix")) }
}

// WithWriteDelay waits d before every controller (++) command. Some AR488
// firmware drops commands sent back to back.
func WithWriteDelay(d time.Duration) ControllerOption {
	return func(c *Controller) { c.writeDelay = d }
}

// WithReadTimeout sets the controller's GPIB read timeout; the Prologix
// accepts 1 to 3000 ms.
func WithReadTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) { c.readTimeout = d }
}

// WithAR488 slightly alters the init commands, for compatiblity with the
// Arduino-based AR488. Specifically, we do not emit 'verbose 0', nor do
// we toggle savecfg.
func WithAR488() ControllerOption { return func(c *Controller) { c.ar488 = true } }

// Write sends a command to the instrument at the configured GPIB address.
// All leading and trailing whitespace is removed before the USB terminator
// is appended.
func (c *Controller) Write(cmd string) error {
	cmd = fmt.Sprintf("%s%c", strings.TrimSpace(cmd), c.usbTerm)
	c.logger.Debug("cmd", zap.String("cmd", cmd))
	_, err := io.WriteString(c.rw, cmd)
	return err
}

// Read tells the controller to read from the instrument until EOI and
// returns the response without the EOT character.
func (c *Controller) Read() (string, error) {
	// With read-after-write disabled the Prologix only addresses the
	// instrument to talk when asked to.
	if !c.auto {
		if err := c.CommandController("read eoi"); err != nil {
			return "", fmt.Errorf("error sending `++read eoi` command: %w", err)
		}
	}
	s, err := c.br.ReadString(c.eotChar)
	if err == io.EOF && s != "" {
		err = nil
	}
	c.logger.Debug("read", zap.String("response", s))
	return strings.TrimSuffix(s, string(c.eotChar)), err
}

// Ask queries the instrument at the configured GPIB address. When data from
// the host is received over USB, the Prologix controller removes all
// non-escaped LF, CR and ESC characters and appends the GPIB terminator, as
// specified by the `eos` command, before sending the data to instruments.
func (c *Controller) Ask(cmd string) (string, error) {
	if err := c.Write(cmd); err != nil {
		return "", fmt.Errorf("error writing command: %w", err)
	}
	return c.Read()
}

// Query is Ask with surrounding whitespace trimmed.
func (c *Controller) Query(cmd string) (string, error) {
	s, err := c.Ask(cmd)
	return strings.TrimSpace(s), err
}

// QueryController sends the given command to the Prologix controller and
// returns its response as a string.
func (c *Controller) QueryController(cmd string) (string, error) {
	err := c.CommandController(cmd)
	if err != nil {
		return "", err
	}
	s, err := c.br.ReadString(c.eotChar)
	c.logger.Debug("controller read", zap.String("response", s))
	return strings.TrimSpace(s), err
}

// CommandController sends the given command to the Prologix controller. To
// indicate this is a command for the Prologix controller, thereby not
// transmitting to the instrument over GPIB, two plus signs `++` are prepended.
// Addtionally, a new line is appended to act as the USB termination character.
func (c *Controller) CommandController(cmd string) error {
	if c.writeDelay > 0 {
		time.Sleep(c.writeDelay)
	}
	cmd = fmt.Sprintf("++%s%c", strings.ToLower(strings.TrimSpace(cmd)), c.usbTerm)
	c.logger.Debug("controller cmd", zap.String("cmd", cmd))
	_, err := io.WriteString(c.rw, cmd)
	return err
}

// controllerQuerier routes typed queries to the controller instead of the
// instrument.
type controllerQuerier struct{ c *Controller }

func (q controllerQuerier) Query(cmd string) (string, error) { return q.c.QueryController(cmd) }

// Version returns the controller firmware version string.
func (c *Controller) Version() (string, error) {
	return query.String(controllerQuerier{c}, "ver")
}

// InstrumentAddress returns the primary GPIB address the controller is
// talking to, and the secondary address or zero.
func (c *Controller) InstrumentAddress() (int, int, error) {
	s, err := query.String(controllerQuerier{c}, "addr")
	if err != nil {
		return 0, 0, err
	}
	var pad, sad int
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, 0, fmt.Errorf("empty ++addr response")
	}
	if _, err := fmt.Sscan(fields[0], &pad); err != nil {
		return 0, 0, fmt.Errorf("bad ++addr response %q", s)
	}
	if len(fields) > 1 {
		if _, err := fmt.Sscan(fields[1], &sad); err != nil {
			return 0, 0, fmt.Errorf("bad ++addr response %q", s)
		}
	}
	return pad, sad, nil
}

// ReadTimeout returns the controller's read timeout in milliseconds.
func (c *Controller) ReadTimeout() (int, error) {
	return query.Int(controllerQuerier{c}, "read_tmo_ms")
}

// ReadAfterWrite reports whether the controller addresses the instrument
// to talk after every write.
func (c *Controller) ReadAfterWrite() (bool, error) {
	auto, err := query.Int(controllerQuerier{c}, "auto")
	return auto == 1, err
}

// ServiceRequest reports whether the SRQ line is asserted.
func (c *Controller) ServiceRequest() (bool, error) {
	srq, err := query.Int(controllerQuerier{c}, "srq")
	return srq == 1, err
}

// ClearDevice sends the Selected Device Clear (SDC) message.
func (c *Controller) ClearDevice() error { return c.CommandController("clr") }

// FrontPanel returns the instrument to local (front panel) control when
// local is true; otherwise it is left in remote.
func (c *Controller) FrontPanel(local bool) error {
	if !local {
		return nil
	}
	return c.CommandController("loc")
}

// SetGPIBTermination sets the terminator the controller appends to data
// sent to the instrument.
func (c *Controller) SetGPIBTermination(term GpibTerm) error {
	return c.CommandController(fmt.Sprintf("eos %d", term))
}

// GPIBTermination returns the terminator appended to instrument commands.
func (c *Controller) GPIBTermination() (GpibTerm, error) {
	n, err := query.Int(controllerQuerier{c}, "eos")
	return GpibTerm(n), err
}

// Close returns the instrument to front panel control and closes the
// underlying link if it can be closed.
func (c *Controller) Close() error {
	err := c.FrontPanel(true)
	if cl, ok := c.rw.(io.Closer); ok {
		if cerr := cl.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// GpibTerm provides the type for the available GPIB terminators.
type GpibTerm int

// Available GPIB terminators for the Prologix Controller.
const (
	AppendCRLF GpibTerm = iota
	AppendCR
	AppendLF
	AppendNothing
)

var gpibTermDesc = map[GpibTerm]string{
	AppendCRLF:    `Append CR+LF (\r\n) to instrument commands`,
	AppendCR:      `Append CR (\r) to instrument commands`,
	AppendLF:      `Append LF (\n) to instrument commands`,
	AppendNothing: `Do not append anything to instrument commands`,
}

func (term GpibTerm) String() string {
	return gpibTermDesc[term]
}

// isPrimaryAddressValid checks that the primary GPIB address is between 0 and
// 30, inclusive.
func isPrimaryAddressValid(addr int) bool {
	return addr >= 0 && addr <= 30
}

// isSecondaryAddressValid checks that the secondary GPIB address is between 96
// and 126, inclusive.
func isSecondaryAddressValid(addr int) bool {
	return addr >= 96 && addr <= 126
}
