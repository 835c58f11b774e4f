// Copyright (c) 2024–2026 The instrument developers. All rights reserved.
// Project site: https://github.com/gotmc/instrument
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrument

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gotmc/query"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// maxErrorQueue bounds how many entries CheckErrors drains, so a device that
// never reports "0,No error" cannot hang the caller.
const maxErrorQueue = 32

// ID returns the *IDN? identification string.
func (i *Instrument) ID() (string, error) {
	return query.String(i, "*IDN?")
}

// Reset sends *RST.
func (i *Instrument) Reset() error { return i.Write("*RST") }

// Clear sends *CLS, clearing the status registers and error queue.
func (i *Instrument) Clear() error { return i.Write("*CLS") }

// OPC returns the *OPC? operation-complete flag.
func (i *Instrument) OPC() (int, error) {
	return query.Int(i, "*OPC?")
}

// NextError pops one entry from the error queue. A zero code means the
// queue is empty.
func (i *Instrument) NextError() (code int, msg string, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.nextError()
}

// CheckErrors drains the error queue and returns every reported fault as an
// *InstrumentError, combined when there is more than one.
func (i *Instrument) CheckErrors() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.checkErrors()
}

func (i *Instrument) nextError() (int, string, error) {
	resp, err := i.ask(i.errorQuery)
	if err != nil {
		return 0, "", err
	}
	return ParseError(resp)
}

func (i *Instrument) checkErrors() error {
	var errs error
	for n := 0; n < maxErrorQueue; n++ {
		code, msg, err := i.nextError()
		if err != nil {
			return multierr.Append(errs, err)
		}
		if code == 0 {
			return errs
		}
		i.logger.Warn("instrument reported error", zap.Int("code", code), zap.String("message", msg))
		errs = multierr.Append(errs, &InstrumentError{Code: code, Message: msg})
	}
	return multierr.Append(errs, fmt.Errorf("error queue not empty after %d reads", maxErrorQueue))
}

// ParseError splits an error queue entry such as `-113,"Undefined header"`
// into its code and unquoted message.
func ParseError(resp string) (code int, msg string, err error) {
	resp = strings.TrimSpace(resp)
	head, tail, _ := strings.Cut(resp, ",")
	code, err = strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return 0, "", fmt.Errorf("malformed error queue entry %q", resp)
	}
	return code, strings.Trim(strings.TrimSpace(tail), `"`), nil
}

// Getter reads properties by name; Instrument and Channel implement it.
type Getter interface {
	Get(name string) (any, error)
}

// GetFloat reads a numeric property as a float64.
func GetFloat(g Getter, name string) (float64, error) {
	v, err := g.Get(name)
	if err != nil {
		return 0, err
	}
	if f, ok := toFloat(v); ok {
		return f, nil
	}
	if s, ok := v.(string); ok {
		return strconv.ParseFloat(s, 64)
	}
	return 0, fmt.Errorf("%s: %v (%T) is not a number", name, v, v)
}

// GetInt reads a numeric property as an int.
func GetInt(g Getter, name string) (int, error) {
	v, err := g.Get(name)
	if err != nil {
		return 0, err
	}
	if f, ok := toFloat(v); ok {
		return int(f), nil
	}
	if s, ok := v.(string); ok {
		n, err := Int(s)
		if err != nil {
			return 0, err
		}
		return n.(int), nil
	}
	return 0, fmt.Errorf("%s: %v (%T) is not an integer", name, v, v)
}

// GetBool reads a boolean property.
func GetBool(g Getter, name string) (bool, error) {
	v, err := g.Get(name)
	if err != nil {
		return false, err
	}
	if b, ok := v.(bool); ok {
		return b, nil
	}
	if s, ok := v.(string); ok {
		b, err := Bool(s)
		if err != nil {
			return false, err
		}
		return b.(bool), nil
	}
	return false, fmt.Errorf("%s: %v (%T) is not a bool", name, v, v)
}

// GetString reads a property as text.
func GetString(g Getter, name string) (string, error) {
	v, err := g.Get(name)
	if err != nil {
		return "", err
	}
	return plain(v), nil
}
