// Copyright (c) 2024–2026 The instrument developers. All rights reserved.
// Project site: https://github.com/gotmc/instrument
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrument

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cast converts a raw response into a logical value.
type Cast func(response string) (any, error)

// String returns the response with surrounding whitespace removed. It is the
// default cast.
func String(response string) (any, error) {
	return strings.TrimSpace(response), nil
}

// Float parses the response as a float64.
func Float(response string) (any, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(response), 64)
	if err != nil {
		return nil, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}

// Int parses the response as an int. Integral values in float notation,
// such as "1.000000E+01", are accepted.
func Int(response string) (any, error) {
	s := strings.TrimSpace(response)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return nil, fmt.Errorf("parse int: invalid syntax %q", s)
	}
	return int(f), nil
}

// Bool parses 1/0, ON/OFF and true/false responses.
func Bool(response string) (any, error) {
	switch strings.ToUpper(strings.TrimSpace(response)) {
	case "1", "ON", "TRUE":
		return true, nil
	case "0", "OFF", "FALSE":
		return false, nil
	}
	return nil, fmt.Errorf("parse bool: invalid syntax %q", strings.TrimSpace(response))
}

// ParseValues splits a comma separated response into tokens. Tokens that
// parse as numbers become float64, the rest stay trimmed strings.
func ParseValues(response string) []any {
	fields := strings.Split(strings.TrimSpace(response), ",")
	vals := make([]any, len(fields))
	for i, f := range fields {
		f = strings.TrimSpace(f)
		if n, err := strconv.ParseFloat(f, 64); err == nil {
			vals[i] = n
			continue
		}
		vals[i] = f
	}
	return vals
}
