// Copyright (c) 2024–2026 The instrument developers. All rights reserved.
// Project site: https://github.com/gotmc/instrument
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrument

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// verb locates the single printf verb of a set template.
type verb struct {
	start, end int // template[start:end] is the full specifier, e.g. "%.3f"
	char       byte
}

func parseTemplate(template string) ([]verb, error) {
	var verbs []verb
	for i := 0; i < len(template); i++ {
		if template[i] != '%' {
			continue
		}
		if i+1 < len(template) && template[i+1] == '%' {
			i++
			continue
		}
		j := i + 1
		for j < len(template) && strings.IndexByte("+-# 0123456789.", template[j]) >= 0 {
			j++
		}
		if j == len(template) {
			return nil, fmt.Errorf("template %q: dangling %%", template)
		}
		switch c := template[j]; c {
		case 'd', 'i', 'e', 'E', 'f', 'F', 'g', 'G', 's', 'v', 'x', 'X':
			verbs = append(verbs, verb{start: i, end: j + 1, char: c})
		default:
			return nil, fmt.Errorf("template %q: unsupported verb %%%c", template, c)
		}
		i = j
	}
	return verbs, nil
}

// FormatCommand substitutes value into a %-style template holding exactly
// one verb. Literal text around the verb, such as a unit suffix in
// "voltage:amplitude %eVPP", is kept as is. The value is converted to suit
// the verb: %d truncates floats, %e/%f/%g accept integers, booleans format
// as 1 and 0 for numeric verbs, and %s/%v render floats in shortest decimal
// form.
func FormatCommand(template string, value any) (string, error) {
	verbs, err := parseTemplate(template)
	if err != nil {
		return "", err
	}
	if len(verbs) != 1 {
		return "", fmt.Errorf("template %q: want exactly one verb, have %d", template, len(verbs))
	}
	v := verbs[0]
	spec := template[v.start:v.end]
	var arg any
	switch v.char {
	case 'd', 'i', 'x', 'X':
		n, err := toInt(value)
		if err != nil {
			return "", err
		}
		if v.char == 'i' {
			spec = spec[:len(spec)-1] + "d"
		}
		arg = n
	case 'e', 'E', 'f', 'F', 'g', 'G':
		f, err := toNumber(value)
		if err != nil {
			return "", err
		}
		if v.char == 'F' {
			spec = spec[:len(spec)-1] + "f"
		}
		arg = f
	default:
		spec = spec[:len(spec)-1] + "s"
		arg = plain(value)
	}
	unescape := func(s string) string { return strings.ReplaceAll(s, "%%", "%") }
	return unescape(template[:v.start]) + fmt.Sprintf(spec, arg) + unescape(template[v.end:]), nil
}

func toNumber(value any) (float64, error) {
	switch v := value.(type) {
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot format %q as a number", v)
		}
		return f, nil
	}
	if f, ok := toFloat(value); ok {
		return f, nil
	}
	return 0, fmt.Errorf("cannot format %v (%T) as a number", value, value)
}

func toInt(value any) (int64, error) {
	f, err := toNumber(value)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

// plain renders a value the way a human would type it on the front panel.
func plain(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case Token:
		return v.Wire()
	case float64:
		return decimal.NewFromFloat(v).String()
	case float32:
		return decimal.NewFromFloat32(v).String()
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(value)
}
