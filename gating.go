// Copyright (c) 2024–2026 The instrument developers. All rights reserved.
// Project site: https://github.com/gotmc/instrument
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrument

import "sync"

// gate records the properties disabled for one instrument or channel. A
// property, once disabled, stays disabled for the life of its owner.
type gate struct {
	mu       sync.RWMutex
	disabled map[string]gated
}

type gated struct {
	ops    Op
	reason string
}

func (g *gate) disable(name, reason string, ops Op) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.disabled == nil {
		g.disabled = make(map[string]gated)
	}
	d, ok := g.disabled[name]
	if !ok {
		d.reason = reason
	}
	d.ops |= ops
	g.disabled[name] = d
}

func (g *gate) check(name string, op Op) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	d, ok := g.disabled[name]
	if !ok || d.ops&op == 0 {
		return nil
	}
	return &UnsupportedError{Property: name, Op: op, Reason: d.reason}
}

// hidden reports whether name is disabled for both reading and writing.
func (g *gate) hidden(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	d, ok := g.disabled[name]
	return ok && d.ops&(OpRead|OpWrite) == OpRead|OpWrite
}

func (g *gate) snapshot() map[string]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m := make(map[string]string, len(g.disabled))
	for name, d := range g.disabled {
		m[name] = d.reason
	}
	return m
}

// memo is a per-owner cache for values that are expensive to query and do
// not change while connected, such as hardware limits.
type memo struct {
	mu   sync.Mutex
	vals map[string]any
}

func (m *memo) get(key string, fill func() (any, error)) (any, error) {
	m.mu.Lock()
	v, ok := m.vals[key]
	m.mu.Unlock()
	if ok {
		return v, nil
	}
	v, err := fill()
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vals == nil {
		m.vals = make(map[string]any)
	}
	m.vals[key] = v
	return v, nil
}
