// Copyright (c) 2024–2026 The instrument developers. All rights reserved.
// Project site: https://github.com/gotmc/instrument
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrument

import "fmt"

// InsertID rewrites a command so that it addresses channel id.
type InsertID func(id int, cmd string) string

// PrefixID returns an InsertID that prepends format, formatted with the
// channel id, to every command. PrefixID("source%d:") turns
// "function:shape?" into "source1:function:shape?" on channel 1.
func PrefixID(format string) InsertID {
	return func(id int, cmd string) string {
		return fmt.Sprintf(format, id) + cmd
	}
}

// Channel is a sub-addressable unit of an Instrument, such as one output of
// a two channel generator. All channels of a driver share one PropertySet;
// the id substituted into each command is the only difference between them.
type Channel struct {
	parent *Instrument
	id     int
	props  *PropertySet
	insert InsertID
	gate   gate
	memo   memo
}

// AddChannel creates a channel of i with the given id and properties.
// insert rewrites every command the channel sends; nil leaves commands
// unchanged.
func (i *Instrument) AddChannel(id int, props *PropertySet, insert InsertID) *Channel {
	if props == nil {
		props = &PropertySet{}
	}
	c := &Channel{parent: i, id: id, props: props, insert: insert}
	i.channels = append(i.channels, c)
	return c
}

// ID returns the channel's id.
func (c *Channel) ID() int { return c.id }

// Parent returns the owning instrument.
func (c *Channel) Parent() *Instrument { return c.parent }

// InsertID returns cmd as addressed to this channel.
func (c *Channel) InsertID(cmd string) string { return c.insertID(cmd) }

// Write sends cmd, addressed to this channel, over the parent's transport.
func (c *Channel) Write(cmd string) error { return c.parent.Write(c.insertID(cmd)) }

// Ask sends a query addressed to this channel.
func (c *Channel) Ask(cmd string) (string, error) { return c.parent.Ask(c.insertID(cmd)) }

// Values sends a query addressed to this channel and splits the response.
func (c *Channel) Values(cmd string) ([]any, error) { return c.parent.Values(c.insertID(cmd)) }

// Exclusive runs fn with sole use of the parent's transport. Commands sent
// through tx are addressed to this channel.
func (c *Channel) Exclusive(fn func(tx Tx) error) error {
	return c.parent.Exclusive(func(tx Tx) error {
		return fn(channelTx{tx: tx, c: c})
	})
}

// Get reads the named property of this channel.
func (c *Channel) Get(name string) (any, error) { return get(c, name) }

// Set writes value to the named property of this channel.
func (c *Channel) Set(name string, value any) error { return set(c, name, value) }

// Memo caches per-channel values, see Scope.
func (c *Channel) Memo(key string, fill func() (any, error)) (any, error) {
	return c.memo.get(key, fill)
}

// Disable disables the named property on this channel only.
func (c *Channel) Disable(name, reason string) { c.gate.disable(name, reason, OpRead|OpWrite) }

// DisableOps disables the given operations of the named property on this
// channel only.
func (c *Channel) DisableOps(name, reason string, ops Op) { c.gate.disable(name, reason, ops) }

// Disabled maps each disabled property to its reason.
func (c *Channel) Disabled() map[string]string { return c.gate.snapshot() }

// Properties lists the properties available on this channel.
func (c *Channel) Properties() []string { return visible(c.props, &c.gate) }

func (c *Channel) properties() *PropertySet { return c.props }
func (c *Channel) gates() *gate             { return &c.gate }
func (c *Channel) root() *Instrument        { return c.parent }

func (c *Channel) insertID(cmd string) string {
	if c.insert == nil {
		return cmd
	}
	return c.insert(c.id, cmd)
}

type channelTx struct {
	tx Tx
	c  *Channel
}

func (t channelTx) Write(cmd string) error         { return t.tx.Write(t.c.insertID(cmd)) }
func (t channelTx) Ask(cmd string) (string, error) { return t.tx.Ask(t.c.insertID(cmd)) }
