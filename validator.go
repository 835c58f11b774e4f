// Copyright (c) 2024–2026 The instrument developers. All rights reserved.
// Project site: https://github.com/gotmc/instrument
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrument

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Validator checks a candidate value against a domain and returns the value
// to send. Validators are pure and run before any I/O.
type Validator func(value, values any) (any, error)

// Range is an inclusive numeric domain.
type Range struct {
	Low, High float64
}

// Contains reports whether v lies within the range, bounds included.
func (r Range) Contains(v float64) bool {
	return v >= r.Low && v <= r.High
}

func (r Range) String() string {
	return fmt.Sprintf("[%g, %g]", r.Low, r.High)
}

// StrictRange returns value unchanged if it lies within values, which must be
// a Range, a two element numeric slice or array, or a [2]float64.
// Out-of-range values fail with a *RangeError; nothing is clamped.
func StrictRange(value, values any) (any, error) {
	r, err := asRange(values)
	if err != nil {
		return nil, err
	}
	v, ok := toFloat(value)
	if !ok {
		return nil, fmt.Errorf("%w: %v (%T) is not numeric", ErrValidation, value, value)
	}
	if !r.Contains(v) {
		return nil, &RangeError{Value: value, Range: r}
	}
	return value, nil
}

// StrictDiscreteSet returns value unchanged if it is a member of values,
// which may be any slice or array, or a *ValueMap whose logical values form
// the set. Non-members fail with a *DiscreteSetError.
func StrictDiscreteSet(value, values any) (any, error) {
	set, err := members(values)
	if err != nil {
		return nil, err
	}
	for _, m := range set {
		if valueEqual(value, m) {
			return value, nil
		}
	}
	return nil, &DiscreteSetError{Value: value, Values: set}
}

// StrictRegexp returns value unchanged if its text matches values, a
// *regexp.Regexp or a pattern string. Patterns are matched against the whole
// value.
func StrictRegexp(value, values any) (any, error) {
	var re *regexp.Regexp
	switch v := values.(type) {
	case *regexp.Regexp:
		re = v
	case string:
		var err error
		if re, err = regexp.Compile("^(?:" + v + ")$"); err != nil {
			return nil, fmt.Errorf("invalid pattern domain: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported pattern domain %T", values)
	}
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %v (%T) is not a string", ErrValidation, value, value)
	}
	if !re.MatchString(s) {
		return nil, &PatternError{Value: s, Pattern: re.String()}
	}
	return value, nil
}

func asRange(values any) (Range, error) {
	switch v := values.(type) {
	case Range:
		return v, nil
	case *Range:
		return *v, nil
	}
	set, err := members(values)
	if err != nil || len(set) != 2 {
		return Range{}, fmt.Errorf("invalid range domain %v", values)
	}
	low, lok := toFloat(set[0])
	high, hok := toFloat(set[1])
	if !lok || !hok {
		return Range{}, fmt.Errorf("invalid range domain %v", values)
	}
	return Range{Low: low, High: high}, nil
}

func members(values any) ([]any, error) {
	switch v := values.(type) {
	case nil:
		return nil, fmt.Errorf("no domain given")
	case []any:
		return v, nil
	case *ValueMap:
		return v.Values(), nil
	}
	rv := reflect.ValueOf(values)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("unsupported domain type %T", values)
	}
	set := make([]any, rv.Len())
	for i := range set {
		set[i] = rv.Index(i).Interface()
	}
	return set, nil
}

// toFloat converts Go numeric kinds to float64. Strings and bools are not
// numbers here.
func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// valueEqual compares logical values: numbers by value regardless of Go
// type, strings by text regardless of named type, everything else with ==.
func valueEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	if aok != bok {
		return false
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Kind() == reflect.String && rb.Kind() == reflect.String {
		return ra.String() == rb.String()
	}
	if !reflect.TypeOf(a).Comparable() || !reflect.TypeOf(b).Comparable() {
		return false
	}
	return a == b
}

// tokenEqual compares a wire token with a response from the device. A Token
// decides for itself, numeric text compares as a number, and other text
// compares exactly after trimming.
func tokenEqual(token, response any) bool {
	if t, ok := token.(Token); ok {
		switch r := response.(type) {
		case Token:
			return t.Wire() == r.Wire()
		case string:
			return t.Matches(strings.TrimSpace(r))
		}
	}
	tf, tok := tokenFloat(token)
	rf, rok := tokenFloat(response)
	if tok && rok {
		return tf == rf
	}
	return strings.TrimSpace(fmt.Sprint(token)) == strings.TrimSpace(fmt.Sprint(response))
}

func tokenFloat(v any) (float64, bool) {
	if f, ok := toFloat(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return 0, false
}
