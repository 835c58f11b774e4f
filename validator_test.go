// Copyright (c) 2024–2026 The instrument developers. All rights reserved.
// Project site: https://github.com/gotmc/instrument
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrument

import (
	"errors"
	"regexp"
	"testing"
)

func TestStrictRange(t *testing.T) {
	r := Range{Low: 20e-3, High: 10}
	const eps = 1e-9
	testCases := []struct {
		value any
		ok    bool
	}{
		{r.Low, true},
		{r.High, true},
		{1, true},
		{float32(2.5), true},
		{r.Low - eps, false},
		{r.High + eps, false},
		{-1, false},
	}
	for _, tc := range testCases {
		got, err := StrictRange(tc.value, r)
		if tc.ok {
			if err != nil {
				t.Errorf("StrictRange(%v) error: %s", tc.value, err)
				continue
			}
			if got != tc.value {
				t.Errorf("StrictRange(%v) = %v, want value unchanged", tc.value, got)
			}
			continue
		}
		var re *RangeError
		if !errors.As(err, &re) {
			t.Errorf("StrictRange(%v) error = %v, want *RangeError", tc.value, err)
		}
		if !errors.Is(err, ErrValidation) {
			t.Errorf("StrictRange(%v) error does not match ErrValidation", tc.value)
		}
	}
}

func TestStrictRangeDomains(t *testing.T) {
	for _, domain := range []any{
		Range{Low: 0, High: 200},
		[]float64{0, 200},
		[2]int{0, 200},
		[]any{0, 200.0},
	} {
		if _, err := StrictRange(100, domain); err != nil {
			t.Errorf("domain %v: %s", domain, err)
		}
		if _, err := StrictRange(201, domain); !errors.Is(err, ErrValidation) {
			t.Errorf("domain %v: 201 accepted", domain)
		}
	}
	if _, err := StrictRange(1, []int{1, 2, 3}); err == nil {
		t.Error("three element domain accepted")
	}
	if _, err := StrictRange("1", Range{0, 2}); !errors.Is(err, ErrValidation) {
		t.Errorf("string value: error = %v, want ErrValidation", err)
	}
}

func TestStrictDiscreteSet(t *testing.T) {
	units := []string{"VPP", "VRMS", "DBM"}
	if v, err := StrictDiscreteSet("VRMS", units); err != nil || v != "VRMS" {
		t.Errorf("StrictDiscreteSet(VRMS) = %v, %v", v, err)
	}
	_, err := StrictDiscreteSet("vpp", units)
	var de *DiscreteSetError
	if !errors.As(err, &de) {
		t.Fatalf("StrictDiscreteSet(vpp) error = %v, want *DiscreteSetError", err)
	}
	if len(de.Values) != 3 {
		t.Errorf("DiscreteSetError.Values = %v", de.Values)
	}

	onOff := BoolMap(1, 0)
	if _, err := StrictDiscreteSet(true, onOff); err != nil {
		t.Errorf("bool in map keys: %s", err)
	}
	if _, err := StrictDiscreteSet(1, onOff); err == nil {
		t.Error("token 1 accepted as a logical value")
	}
	if _, err := StrictDiscreteSet(500.0, []int{200, 500}); err != nil {
		t.Errorf("500.0 in {200, 500}: %s", err)
	}
}

func TestStrictRegexp(t *testing.T) {
	testCases := []struct {
		value   any
		pattern any
		ok      bool
	}{
		{"CH1", `CH[12]`, true},
		{"CH3", `CH[12]`, false},
		{"xCH1", `CH[12]`, false},
		{"CH1", regexp.MustCompile(`^CH\d$`), true},
		{1, `\d`, false},
	}
	for _, tc := range testCases {
		_, err := StrictRegexp(tc.value, tc.pattern)
		if tc.ok && err != nil {
			t.Errorf("StrictRegexp(%v, %v) unexpected error: %s", tc.value, tc.pattern, err)
		}
		if !tc.ok && !errors.Is(err, ErrValidation) {
			t.Errorf("StrictRegexp(%v, %v) error = %v, want ErrValidation", tc.value, tc.pattern, err)
		}
	}
	if _, err := StrictRegexp("a", 3); err == nil || errors.Is(err, ErrValidation) {
		t.Errorf("bad domain: got %v", err)
	}
}

type label string

func TestValueEqual(t *testing.T) {
	testCases := []struct {
		a, b any
		want bool
	}{
		{1, 1.0, true},
		{uint8(3), int64(3), true},
		{"a", "a", true},
		{"1", 1, false},
		{label("CW"), "CW", true},
		{"CW", label("CDC"), false},
		{true, 1, false},
		{nil, nil, true},
		{nil, 0, false},
		{[]int{1}, []int{1}, false},
	}
	for _, tc := range testCases {
		if got := valueEqual(tc.a, tc.b); got != tc.want {
			t.Errorf("valueEqual(%#v, %#v) = %t, want %t", tc.a, tc.b, got, tc.want)
		}
	}
}
