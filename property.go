// Copyright (c) 2024–2026 The instrument developers. All rights reserved.
// Project site: https://github.com/gotmc/instrument
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrument

import "fmt"

// Scope is the instrument or channel a property is being resolved against.
// Bounds functions use it to read live state.
type Scope interface {
	// Get reads another property of the same scope.
	Get(name string) (any, error)
	// Memo returns the cached value for key, calling fill once per scope
	// to compute it.
	Memo(key string, fill func() (any, error)) (any, error)
}

// Property declares one named control or measurement.
//
// A property without a GetCommand is write-only and one without a SetCommand
// is read-only. Properties are immutable once placed in a PropertySet and
// are shared by every instrument built from that set.
type Property struct {
	Name string
	Doc  string

	// GetCommand is the query sent on read, e.g. "function:shape?".
	GetCommand string
	// SetCommand is a %-style template holding one verb, e.g.
	// "voltage:amplitude %eVPP".
	SetCommand string

	// Validator checks values on write against Values, or against the
	// domain returned by Bounds when Bounds is set.
	Validator Validator
	Values    any
	Bounds    func(s Scope) (any, error)

	// Map translates logical values to wire tokens and back.
	Map *ValueMap

	// Cast parses the response before reverse mapping. String is used
	// when nil.
	Cast Cast

	// CheckErrors queries the instrument error queue after each write.
	CheckErrors bool
}

// Readable reports whether the property has a query.
func (p *Property) Readable() bool { return p.GetCommand != "" }

// Writable reports whether the property has a set template.
func (p *Property) Writable() bool { return p.SetCommand != "" }

// encode validates, maps and formats value into the set command. It does no
// I/O of its own, though Bounds may read other properties through s.
func (p *Property) encode(s Scope, value any) (string, error) {
	if p.Validator != nil {
		domain := p.Values
		if p.Bounds != nil {
			var err error
			if domain, err = p.Bounds(s); err != nil {
				return "", err
			}
		}
		v, err := p.Validator(value, domain)
		if err != nil {
			return "", err
		}
		value = v
	}
	if p.Map != nil {
		tok, ok := p.Map.Token(value)
		if !ok {
			return "", fmt.Errorf("%s: %w", p.Name, &DiscreteSetError{Value: value, Values: p.Map.Values()})
		}
		value = tok
	}
	cmd, err := FormatCommand(p.SetCommand, value)
	if err != nil {
		return "", fmt.Errorf("%s: %w", p.Name, err)
	}
	return cmd, nil
}

// decode casts and reverse maps a raw response.
func (p *Property) decode(response string) (any, error) {
	cast := p.Cast
	if cast == nil {
		cast = String
	}
	v, err := cast(response)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}
	if p.Map == nil {
		return v, nil
	}
	logical, ok := p.Map.Value(v)
	if !ok {
		return nil, &UnmappedValueError{Property: p.Name, Token: v}
	}
	return logical, nil
}

// PropertySet is an immutable, ordered table of properties, usually declared
// once per driver as a package level variable.
type PropertySet struct {
	props  []*Property
	byName map[string]*Property
}

// NewPropertySet checks and collects props. Names must be unique, every
// property needs a get or set command, and set templates must hold exactly
// one verb. A validator without Values or Bounds on a mapped property
// validates against the map's logical values.
func NewPropertySet(props ...Property) (*PropertySet, error) {
	ps := &PropertySet{byName: make(map[string]*Property, len(props))}
	for i := range props {
		p := props[i]
		if p.Name == "" {
			return nil, fmt.Errorf("property %d has no name", i)
		}
		if _, dup := ps.byName[p.Name]; dup {
			return nil, fmt.Errorf("duplicate property %q", p.Name)
		}
		if !p.Readable() && !p.Writable() {
			return nil, fmt.Errorf("property %q has neither get nor set command", p.Name)
		}
		if p.Writable() {
			verbs, err := parseTemplate(p.SetCommand)
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", p.Name, err)
			}
			if len(verbs) != 1 {
				return nil, fmt.Errorf("property %q: set command %q must hold exactly one verb", p.Name, p.SetCommand)
			}
		}
		if p.Validator != nil && p.Values == nil && p.Bounds == nil {
			if p.Map == nil {
				return nil, fmt.Errorf("property %q has a validator but no domain", p.Name)
			}
			p.Values = p.Map
		}
		ps.props = append(ps.props, &p)
		ps.byName[p.Name] = &p
	}
	return ps, nil
}

// MustPropertySet is like NewPropertySet but panics on error.
func MustPropertySet(props ...Property) *PropertySet {
	ps, err := NewPropertySet(props...)
	if err != nil {
		panic(err)
	}
	return ps
}

// With returns a new set holding the properties of ps followed by props.
func (ps *PropertySet) With(props ...Property) (*PropertySet, error) {
	all := make([]Property, 0, ps.Len()+len(props))
	if ps != nil {
		for _, p := range ps.props {
			all = append(all, *p)
		}
	}
	return NewPropertySet(append(all, props...)...)
}

// Lookup finds a property by name.
func (ps *PropertySet) Lookup(name string) (*Property, bool) {
	if ps == nil {
		return nil, false
	}
	p, ok := ps.byName[name]
	return p, ok
}

// Names lists property names in declaration order.
func (ps *PropertySet) Names() []string {
	if ps == nil {
		return nil
	}
	names := make([]string, len(ps.props))
	for i, p := range ps.props {
		names[i] = p.Name
	}
	return names
}

// Len returns the number of properties.
func (ps *PropertySet) Len() int {
	if ps == nil {
		return 0
	}
	return len(ps.props)
}
