// Copyright (c) 2024–2026 The instrument developers. All rights reserved.
// Project site: https://github.com/gotmc/instrument
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrument

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gotmc/instrument/lib/protocoltest"
)

var testProps = MustPropertySet(
	Property{
		Name:       "power",
		GetCommand: "MEAS:POW?",
		Cast:       Float,
	},
	Property{
		Name:       "trigger",
		SetCommand: "TRIG:DEL %g",
	},
	Property{
		Name:        "power_range",
		GetCommand:  "SENS:POW:RANG?",
		SetCommand:  "SENS:POW:RANG %g",
		Cast:        Float,
		CheckErrors: true,
	},
	Property{
		Name:       "auto_range",
		GetCommand: "SENS:POW:RANG:AUTO?",
		SetCommand: "SENS:POW:RANG:AUTO %d",
		Validator:  StrictDiscreteSet,
		Map:        BoolMap(1, 0),
	},
	Property{
		Name:       "wavelength",
		GetCommand: "SENSE:CORR:WAV?",
		SetCommand: "SENSE:CORR:WAV %v",
		Validator:  StrictRange,
		Values:     Range{Low: 1000, High: 2000},
		Cast:       Float,
	},
)

func newTestInstrument(t *testing.T, script ...protocoltest.Exchange) (*Instrument, *protocoltest.Transport) {
	t.Helper()
	tr := protocoltest.New(t, script...)
	inst, err := New(tr, "test meter", testProps)
	if err != nil {
		t.Fatal(err)
	}
	return inst, tr
}

func TestGet(t *testing.T) {
	inst, _ := newTestInstrument(t,
		protocoltest.Ask("MEAS:POW?", "0.1\n"),
		protocoltest.Ask("SENS:POW:RANG:AUTO?", "1"),
	)
	p, err := GetFloat(inst, "power")
	if err != nil || p != 0.1 {
		t.Errorf("power = %v, %v", p, err)
	}
	auto, err := GetBool(inst, "auto_range")
	if err != nil || !auto {
		t.Errorf("auto_range = %v, %v", auto, err)
	}
}

func TestSet(t *testing.T) {
	inst, _ := newTestInstrument(t,
		protocoltest.Write("SENSE:CORR:WAV 1500"),
		protocoltest.Write("SENS:POW:RANG:AUTO 0"),
	)
	if err := inst.Set("wavelength", 1500); err != nil {
		t.Fatal(err)
	}
	if err := inst.Set("auto_range", false); err != nil {
		t.Fatal(err)
	}
}

func TestSetValidationSendsNothing(t *testing.T) {
	inst, tr := newTestInstrument(t)
	err := inst.Set("wavelength", 2500)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Set(wavelength, 2500) error = %v, want ErrValidation", err)
	}
	err = inst.Set("auto_range", "yes")
	var de *DiscreteSetError
	if !errors.As(err, &de) {
		t.Errorf("Set(auto_range, yes) error = %v, want *DiscreteSetError", err)
	}
	if tr.Writes() != 0 {
		t.Errorf("%d writes after rejected values", tr.Writes())
	}
}

func TestReadOnlyWriteOnly(t *testing.T) {
	inst, tr := newTestInstrument(t)
	err := inst.Set("power", 1)
	var ue *UnsupportedError
	if !errors.As(err, &ue) || ue.Op != OpWrite {
		t.Errorf("Set(power) error = %v, want write *UnsupportedError", err)
	}
	_, err = inst.Get("trigger")
	if !errors.As(err, &ue) || ue.Op != OpRead {
		t.Errorf("Get(trigger) error = %v, want read *UnsupportedError", err)
	}
	if tr.Writes() != 0 || tr.Reads() != 0 {
		t.Errorf("transport used: %d writes, %d reads", tr.Writes(), tr.Reads())
	}
	if _, err := inst.Get("nope"); !errors.Is(err, ErrUnknown) {
		t.Errorf("Get(nope) error = %v, want ErrUnknown", err)
	}
}

func TestSetCheckErrors(t *testing.T) {
	inst, _ := newTestInstrument(t,
		protocoltest.Write("SENS:POW:RANG 0.2"),
		protocoltest.Ask("SYST:ERR?", "0,No error\n"),
		protocoltest.Write("SENS:POW:RANG 5"),
		protocoltest.Ask("SYST:ERR?", `-222,"Data out of range"`),
		protocoltest.Ask("SYST:ERR?", "0,No error"),
	)
	if err := inst.Set("power_range", 0.2); err != nil {
		t.Fatal(err)
	}
	err := inst.Set("power_range", 5)
	var ie *InstrumentError
	if !errors.As(err, &ie) {
		t.Fatalf("error = %v, want *InstrumentError", err)
	}
	if ie.Code != -222 || ie.Message != "Data out of range" {
		t.Errorf("InstrumentError = %+v", ie)
	}
}

func TestCheckErrorsCombines(t *testing.T) {
	inst, _ := newTestInstrument(t,
		protocoltest.Ask("SYST:ERR?", `-113,"Undefined header"`),
		protocoltest.Ask("SYST:ERR?", `-222,"Data out of range"`),
		protocoltest.Ask("SYST:ERR?", `+0,"No error"`),
	)
	err := inst.CheckErrors()
	if !errors.Is(err, ErrInstrument) {
		t.Fatalf("CheckErrors = %v", err)
	}
	var codes []int
	for _, e := range unwrapAll(err) {
		var ie *InstrumentError
		if errors.As(e, &ie) {
			codes = append(codes, ie.Code)
		}
	}
	if len(codes) != 2 || codes[0] != -113 || codes[1] != -222 {
		t.Errorf("codes = %v", codes)
	}
}

func unwrapAll(err error) []error {
	if u, ok := err.(interface{ Unwrap() []error }); ok {
		return u.Unwrap()
	}
	return []error{err}
}

func TestTransportErrorPassesThrough(t *testing.T) {
	inst, tr := newTestInstrument(t)
	tr.FailWrites(io.ErrClosedPipe)
	if err := inst.Set("wavelength", 1200); err != io.ErrClosedPipe {
		t.Errorf("Set error = %v, want io.ErrClosedPipe", err)
	}
}

func TestGatingIsPerInstance(t *testing.T) {
	a, trA := newTestInstrument(t)
	b, _ := newTestInstrument(t, protocoltest.Ask("MEAS:POW?", "0.5"))
	a.Disable("power", "TestSensor energy sensor does not support this operation")

	_, err := a.Get("power")
	var ue *UnsupportedError
	if !errors.As(err, &ue) {
		t.Fatalf("a.Get(power) error = %v", err)
	}
	if ue.Reason == "" || ue.Property != "power" {
		t.Errorf("UnsupportedError = %+v", ue)
	}
	if trA.Writes() != 0 {
		t.Errorf("disabled read sent %d commands", trA.Writes())
	}
	if _, err := GetFloat(b, "power"); err != nil {
		t.Errorf("b.Get(power) error = %v", err)
	}
	if len(b.Disabled()) != 0 {
		t.Errorf("b.Disabled() = %v", b.Disabled())
	}
	for _, name := range a.Properties() {
		if name == "power" {
			t.Error("disabled property listed by Properties()")
		}
	}
	if len(b.Properties()) != testProps.Len() {
		t.Errorf("b.Properties() = %v", b.Properties())
	}
}

func TestDisableOps(t *testing.T) {
	inst, _ := newTestInstrument(t, protocoltest.Ask("SENSE:CORR:WAV?", "1550"))
	inst.DisableOps("wavelength", "sensor does not allow setting the wavelength", OpWrite)
	if _, err := inst.Get("wavelength"); err != nil {
		t.Errorf("read of write-disabled property: %s", err)
	}
	if err := inst.Set("wavelength", 1200); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Set error = %v, want ErrUnsupported", err)
	}
	found := false
	for _, name := range inst.Properties() {
		found = found || name == "wavelength"
	}
	if !found {
		t.Error("partially disabled property hidden from Properties()")
	}
}

var chanProps = MustPropertySet(
	Property{
		Name:       "shape",
		GetCommand: "function:shape?",
		SetCommand: "function:shape %s",
		Validator:  StrictDiscreteSet,
		Map:        shapes,
	},
)

func TestChannels(t *testing.T) {
	tr := protocoltest.New(t,
		protocoltest.Write("source1:function:shape SQU"),
		protocoltest.Ask("source2:function:shape?", "RAMP"),
		protocoltest.Write("source2:voltage:unit VPP"),
		protocoltest.Write("source2:voltage:amplitude 1"),
	)
	inst, err := New(tr, "generator", nil)
	if err != nil {
		t.Fatal(err)
	}
	ch1 := inst.AddChannel(1, chanProps, PrefixID("source%d:"))
	ch2 := inst.AddChannel(2, chanProps, PrefixID("source%d:"))
	if err := ch1.Set("shape", "square"); err != nil {
		t.Fatal(err)
	}
	shape, err := GetString(ch2, "shape")
	if err != nil || shape != "ramp" {
		t.Errorf("ch2 shape = %q, %v", shape, err)
	}
	err = ch2.Exclusive(func(tx Tx) error {
		if err := tx.Write("voltage:unit VPP"); err != nil {
			return err
		}
		return tx.Write("voltage:amplitude 1")
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(inst.Channels()) != 2 {
		t.Errorf("Channels() = %d", len(inst.Channels()))
	}
	ch1.Disable("shape", "no arbitrary shapes")
	if _, err := ch1.Get("shape"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("disabled channel property error = %v", err)
	}
	if len(ch2.Disabled()) != 0 {
		t.Error("channel gating leaked to sibling channel")
	}
}

// recorder logs every command in the order the transport saw it and answers
// queries with an empty error queue.
type recorder struct {
	mu   sync.Mutex
	cmds []string
}

func (r *recorder) Write(cmd string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
	return nil
}

func (r *recorder) Read() (string, error) { return "", io.EOF }

func (r *recorder) Ask(cmd string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
	if cmd == "SYST:ERR?" {
		return `0,"No error"`, nil
	}
	return "1.5", nil
}

var levelProps = MustPropertySet(
	Property{
		Name:        "level",
		GetCommand:  "level?",
		SetCommand:  "level %g",
		Cast:        Float,
		CheckErrors: true,
	},
)

func TestChannelSetWithErrorCheckIsAtomic(t *testing.T) {
	const n = 200
	rec := &recorder{}
	inst, err := New(rec, "source", nil)
	if err != nil {
		t.Fatal(err)
	}
	ch1 := inst.AddChannel(1, levelProps, PrefixID("s%d:"))
	ch2 := inst.AddChannel(2, levelProps, PrefixID("s%d:"))

	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			errs <- ch1.Set("level", i)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_, err := ch2.Get("level")
			errs <- err
		}
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	if len(rec.cmds) != 3*n {
		t.Fatalf("got %d commands, want %d", len(rec.cmds), 3*n)
	}
	for i, cmd := range rec.cmds {
		if !strings.HasPrefix(cmd, "s1:") {
			continue
		}
		if i+1 == len(rec.cmds) || rec.cmds[i+1] != "SYST:ERR?" {
			t.Fatalf("command %d %q not followed by the error query: %v", i, cmd, rec.cmds[i:min(i+3, len(rec.cmds))])
		}
	}
}

func TestBoundsAndMemo(t *testing.T) {
	calls := 0
	props := MustPropertySet(
		Property{
			Name:       "limit",
			GetCommand: "LIMIT?",
			Cast:       Float,
		},
		Property{
			Name:       "setpoint",
			SetCommand: "LDI %g",
			Validator:  StrictRange,
			Bounds: func(s Scope) (any, error) {
				return s.Memo("limit", func() (any, error) {
					calls++
					high, err := GetFloat(s, "limit")
					return Range{Low: 0, High: high}, err
				})
			},
		},
	)
	tr := protocoltest.New(t,
		protocoltest.Ask("LIMIT?", "200"),
		protocoltest.Write("LDI 150"),
		protocoltest.Write("LDI 200"),
	)
	inst, err := New(tr, "laser driver", props)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range []float64{150, 200} {
		if err := inst.Set("setpoint", v); err != nil {
			t.Fatal(err)
		}
	}
	if err := inst.Set("setpoint", 201); !errors.Is(err, ErrValidation) {
		t.Errorf("Set(201) error = %v", err)
	}
	if calls != 1 {
		t.Errorf("limit resolved %d times, want 1", calls)
	}
}

func TestNewPropertySetRejects(t *testing.T) {
	testCases := map[string][]Property{
		"no name":      {{GetCommand: "X?"}},
		"duplicate":    {{Name: "a", GetCommand: "A?"}, {Name: "a", GetCommand: "B?"}},
		"no commands":  {{Name: "a"}},
		"two verbs":    {{Name: "a", SetCommand: "APPL %e,%e"}},
		"no verb":      {{Name: "a", SetCommand: "OUTP ON"}},
		"no domain":    {{Name: "a", SetCommand: "A %g", Validator: StrictRange}},
		"bad template": {{Name: "a", SetCommand: "A %y"}},
	}
	for name, props := range testCases {
		if _, err := NewPropertySet(props...); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
	ps, err := testProps.With(Property{Name: "energy", GetCommand: "MEAS:ENER?"})
	if err != nil {
		t.Fatal(err)
	}
	if ps.Len() != testProps.Len()+1 {
		t.Errorf("With: Len = %d", ps.Len())
	}
}

func TestSCPICommon(t *testing.T) {
	inst, tr := newTestInstrument(t,
		protocoltest.Ask("*IDN?", "THORLABS,PM100USB,P2000000,1.4.0\n"),
		protocoltest.Ask("*OPC?", "1\n"),
		protocoltest.Write("*RST"),
		protocoltest.Write("*CLS"),
		protocoltest.Ask("SYST:ERR?", `-113, "Undefined header"`),
	)
	id, err := inst.ID()
	if err != nil || id != "THORLABS,PM100USB,P2000000,1.4.0" {
		t.Errorf("ID = %q, %v", id, err)
	}
	if opc, err := inst.OPC(); err != nil || opc != 1 {
		t.Errorf("OPC = %d, %v", opc, err)
	}
	if err := inst.Reset(); err != nil {
		t.Fatal(err)
	}
	if err := inst.Clear(); err != nil {
		t.Fatal(err)
	}
	code, msg, err := inst.NextError()
	if err != nil || code != -113 || msg != "Undefined header" {
		t.Errorf("NextError = %d, %q, %v", code, msg, err)
	}
	if err := inst.Close(); err != nil || !tr.Closed() {
		t.Errorf("Close = %v, closed %t", err, tr.Closed())
	}
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	tr := protocoltest.New(t, protocoltest.Ask("MEAS:POW?", "0.1"))
	inst, err := New(tr, "logged", testProps, WithLogger(zap.New(core)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := inst.Get("power"); err != nil {
		t.Fatal(err)
	}
	entries := logs.FilterMessage("ask").All()
	if len(entries) != 1 {
		t.Fatalf("%d ask entries", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["cmd"] != "MEAS:POW?" || fields["instrument"] != "logged" {
		t.Errorf("fields = %v", fields)
	}
	if fields["session"] != inst.Session().String() {
		t.Errorf("session = %v", fields["session"])
	}
}

func TestNewNilTransport(t *testing.T) {
	if _, err := New(nil, "x", nil); err == nil {
		t.Error("nil transport accepted")
	}
}
