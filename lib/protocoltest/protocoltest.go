// Package protocoltest provides a scripted Transport for testing drivers
// against an exact, ordered command/response exchange.
package protocoltest

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

// Exchange is one expected step of the protocol.
type Exchange struct {
	Cmd      string // expected command; empty for a bare read
	Response string
	HasResp  bool
}

// Write expects cmd with no response.
func Write(cmd string) Exchange { return Exchange{Cmd: cmd} }

// Ask expects cmd and answers with resp.
func Ask(cmd, resp string) Exchange { return Exchange{Cmd: cmd, Response: resp, HasResp: true} }

// Read answers a bare read with resp.
func Read(resp string) Exchange { return Exchange{Response: resp, HasResp: true} }

// ErrUnexpected is returned for any command that deviates from the script.
var ErrUnexpected = errors.New("unexpected command")

// Transport replays a script. Any deviation fails the test, and exchanges
// left unconsumed fail it at cleanup.
type Transport struct {
	t         testing.TB
	mu        sync.Mutex
	script    []Exchange
	pending   *string
	writes    int
	reads     int
	closed    bool
	failWrite error
}

// New returns a Transport that expects exactly the given exchanges.
func New(t testing.TB, script ...Exchange) *Transport {
	t.Helper()
	tr := &Transport{t: t, script: script}
	t.Cleanup(func() {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		if len(tr.script) > 0 {
			t.Errorf("%d expected exchanges not performed, next %q", len(tr.script), tr.script[0].Cmd)
		}
	})
	return tr
}

// FailWrites makes every following Write return err.
func (tr *Transport) FailWrites(err error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.failWrite = err
}

// Write implements instrument.Transport.
func (tr *Transport) Write(cmd string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.writes++
	if tr.failWrite != nil {
		return tr.failWrite
	}
	if len(tr.script) == 0 {
		tr.t.Errorf("unexpected write %q: script exhausted", cmd)
		return fmt.Errorf("%w %q", ErrUnexpected, cmd)
	}
	next := tr.script[0]
	if next.Cmd != cmd {
		tr.t.Errorf("write %q, want %q", cmd, next.Cmd)
		return fmt.Errorf("%w %q", ErrUnexpected, cmd)
	}
	tr.script = tr.script[1:]
	if next.HasResp {
		resp := next.Response
		tr.pending = &resp
	}
	return nil
}

// Read implements instrument.Transport.
func (tr *Transport) Read() (string, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.reads++
	if tr.pending != nil {
		resp := *tr.pending
		tr.pending = nil
		return resp, nil
	}
	if len(tr.script) == 0 || tr.script[0].Cmd != "" {
		tr.t.Errorf("unexpected read")
		return "", fmt.Errorf("%w: read", ErrUnexpected)
	}
	resp := tr.script[0].Response
	tr.script = tr.script[1:]
	return resp, nil
}

// Ask implements instrument.Transport.
func (tr *Transport) Ask(cmd string) (string, error) {
	if err := tr.Write(cmd); err != nil {
		return "", err
	}
	return tr.Read()
}

// Close marks the transport closed.
func (tr *Transport) Close() error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.closed = true
	return nil
}

// Writes counts calls to Write, including those made by Ask.
func (tr *Transport) Writes() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.writes
}

// Reads counts calls to Read, including those made by Ask.
func (tr *Transport) Reads() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.reads
}

// Closed reports whether Close was called.
func (tr *Transport) Closed() bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.closed
}
