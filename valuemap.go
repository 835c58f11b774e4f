// Copyright (c) 2024–2026 The instrument developers. All rights reserved.
// Project site: https://github.com/gotmc/instrument
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrument

import "fmt"

// Pair binds a logical value to its wire token.
type Pair struct {
	Value any
	Token any
}

// Token is a wire token the instrument may echo in more than one spelling,
// such as the long and short forms of a SCPI mnemonic.
type Token interface {
	// Wire is the form written in commands.
	Wire() string
	// Matches reports whether a response names this token.
	Matches(response string) bool
}

// ValueMap is an ordered, bidirectional mapping between logical values and
// wire tokens. No two values share a token and no value appears twice.
type ValueMap struct {
	pairs []Pair
}

// NewValueMap builds a ValueMap from pairs, rejecting duplicate values or
// tokens.
func NewValueMap(pairs ...Pair) (*ValueMap, error) {
	for i := range pairs {
		for j := i + 1; j < len(pairs); j++ {
			if valueEqual(pairs[i].Value, pairs[j].Value) {
				return nil, fmt.Errorf("duplicate value %v in value map", pairs[i].Value)
			}
			if tokenEqual(pairs[i].Token, pairs[j].Token) {
				return nil, fmt.Errorf("values %v and %v share token %v", pairs[i].Value, pairs[j].Value, pairs[i].Token)
			}
		}
	}
	return &ValueMap{pairs: append([]Pair(nil), pairs...)}, nil
}

// MustValueMap is like NewValueMap but panics on error. It is meant for
// package level driver tables.
func MustValueMap(pairs ...Pair) *ValueMap {
	m, err := NewValueMap(pairs...)
	if err != nil {
		panic(err)
	}
	return m
}

// StringMap builds a ValueMap of string values to string tokens, ordered by
// the given keys.
func StringMap(keys []string, tokens map[string]string) *ValueMap {
	pairs := make([]Pair, 0, len(keys))
	for _, k := range keys {
		tok, ok := tokens[k]
		if !ok {
			panic(fmt.Sprintf("no token for %q", k))
		}
		pairs = append(pairs, Pair{Value: k, Token: tok})
	}
	return MustValueMap(pairs...)
}

// BoolMap maps true and false to the given tokens, e.g. BoolMap(1, 0).
func BoolMap(onToken, offToken any) *ValueMap {
	return MustValueMap(Pair{Value: true, Token: onToken}, Pair{Value: false, Token: offToken})
}

// Token returns the wire token for a logical value.
func (m *ValueMap) Token(value any) (any, bool) {
	for _, p := range m.pairs {
		if valueEqual(p.Value, value) {
			return p.Token, true
		}
	}
	return nil, false
}

// Value returns the logical value for a wire token or a device response.
func (m *ValueMap) Value(token any) (any, bool) {
	for _, p := range m.pairs {
		if tokenEqual(p.Token, token) {
			return p.Value, true
		}
	}
	return nil, false
}

// Values lists the logical values in declaration order.
func (m *ValueMap) Values() []any {
	vals := make([]any, len(m.pairs))
	for i, p := range m.pairs {
		vals[i] = p.Value
	}
	return vals
}

// Pairs returns a copy of the mapping in declaration order.
func (m *ValueMap) Pairs() []Pair {
	return append([]Pair(nil), m.pairs...)
}

// Len returns the number of pairs.
func (m *ValueMap) Len() int { return len(m.pairs) }
