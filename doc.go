// Copyright (c) 2024–2026 The instrument developers. All rights reserved.
// Project site: https://github.com/gotmc/instrument
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package instrument maps declarative property definitions onto the SCPI
// style command/response exchanges of a lab instrument.
//
// A driver declares its controls and measurements once, as a PropertySet,
// and every connected Instrument (or Channel) resolves reads and writes of
// those properties against its own Transport:
//
//	var props = instrument.MustPropertySet(
//		instrument.Property{
//			Name:       "frequency",
//			GetCommand: "frequency:fixed?",
//			SetCommand: "frequency:fixed %e",
//			Validator:  instrument.StrictRange,
//			Values:     instrument.Range{Low: 1e-6, High: 150e6},
//			Cast:       instrument.Float,
//		},
//	)
//
//	inst, err := instrument.New(transport, "my generator", props)
//	err = inst.Set("frequency", 1e3)
//	f, err := instrument.GetFloat(inst, "frequency")
//
// Values are validated before anything is sent, so a rejected write never
// touches the transport. The layer is synchronous and does not retry.
package instrument
