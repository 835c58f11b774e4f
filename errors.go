// Copyright (c) 2024–2026 The instrument developers. All rights reserved.
// Project site: https://github.com/gotmc/instrument
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrument

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is.
var (
	ErrValidation  = errors.New("validation failed")
	ErrUnsupported = errors.New("unsupported operation")
	ErrUnmapped    = errors.New("unmapped value")
	ErrInstrument  = errors.New("instrument error")
	ErrUnknown     = errors.New("unknown property")
)

// RangeError reports a value outside an inclusive numeric range.
type RangeError struct {
	Value any
	Range Range
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("value %v is not in range [%g, %g]", e.Value, e.Range.Low, e.Range.High)
}

// Is reports ErrValidation.
func (e *RangeError) Is(target error) bool { return target == ErrValidation }

// DiscreteSetError reports a value that is not a member of a discrete set.
type DiscreteSetError struct {
	Value  any
	Values []any
}

func (e *DiscreteSetError) Error() string {
	return fmt.Sprintf("value %v is not in the discrete set %v", e.Value, e.Values)
}

// Is reports ErrValidation.
func (e *DiscreteSetError) Is(target error) bool { return target == ErrValidation }

// PatternError reports a string that does not match a pattern domain.
type PatternError struct {
	Value   string
	Pattern string
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("value %q does not match %s", e.Value, e.Pattern)
}

// Is reports ErrValidation.
func (e *PatternError) Is(target error) bool { return target == ErrValidation }

// UnmappedValueError is returned when the instrument answers with a token
// that is not in the property's value map.
type UnmappedValueError struct {
	Property string
	Token    any
}

func (e *UnmappedValueError) Error() string {
	return fmt.Sprintf("%s: response %q is not in the value map", e.Property, fmt.Sprint(e.Token))
}

// Is reports ErrUnmapped.
func (e *UnmappedValueError) Is(target error) bool { return target == ErrUnmapped }

// InstrumentError is a fault reported by the device through its error queue.
type InstrumentError struct {
	Code    int
	Message string
}

func (e *InstrumentError) Error() string {
	return fmt.Sprintf("instrument error %d: %s", e.Code, e.Message)
}

// Is reports ErrInstrument.
func (e *InstrumentError) Is(target error) bool { return target == ErrInstrument }

// UnsupportedError is returned for reads of write-only properties, writes of
// read-only properties, and any access to a property disabled for the
// connected hardware.
type UnsupportedError struct {
	Property string
	Op       Op
	Reason   string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s: %s not supported: %s", e.Property, e.Op, e.Reason)
}

// Is reports ErrUnsupported.
func (e *UnsupportedError) Is(target error) bool { return target == ErrUnsupported }

// Op identifies the direction of a property access.
type Op int

// Property operations. They combine as a bit set in DisableOps.
const (
	OpRead Op = 1 << iota
	OpWrite
)

func (op Op) String() string {
	switch op {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpRead | OpWrite:
		return "read/write"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}
