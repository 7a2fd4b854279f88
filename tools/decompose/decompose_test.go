/*
 * Copyright 2020 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 *     Unless required by applicable law or agreed to in writing, software
 *     distributed under the License is distributed on an "AS IS" BASIS,
 *     WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *     See the License for the specific language governing permissions and
 *     limitations under the License.
 */
package decompose

import (
	"errors"
	"math"
	"testing"

	"github.com/google-research/notegate/tools/bands"
	"github.com/google-research/notegate/tools/notes"
	"github.com/google-research/notegate/tools/synthesize/signals"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func tone(t *testing.T, f signals.Hz, length signals.Seconds, rate signals.Hz) *signals.Mono {
	samples, err := signals.Tone{Frequency: f, Amplitude: 0.5}.Sample(signals.TimeStretch{FromInclusive: 0, ToExclusive: length}, rate)
	if err != nil {
		t.Fatal(err)
	}
	return &signals.Mono{Samples: samples, Rate: rate}
}

func TestWindow(t *testing.T) {
	w := Window(11, 5, 2)
	if w[5] != 1 {
		t.Errorf("got peak %v, wanted 1", w[5])
	}
	for idx := 0; idx < 5; idx++ {
		if w[idx] != w[10-idx] {
			t.Errorf("window not symmetric at %v: %v != %v", idx, w[idx], w[10-idx])
		}
		if w[idx] >= w[idx+1] {
			t.Errorf("window not increasing towards the center at %v", idx)
		}
	}
	if want := math.Exp(-0.5); math.Abs(w[7]-want) > 1e-15 {
		t.Errorf("got %v one sigma from the center, wanted %v", w[7], want)
	}
}

func TestBandIsolation(t *testing.T) {
	params := DefaultParams()
	params.Octaves = notes.OctaveRange{From: 4, To: 5}
	for _, saveType := range []bands.SaveType{bands.TimeDomain, bands.FrequencyDomain} {
		params.SaveType = saveType
		c, err := Decompose(tone(t, 440, 2, 44100), params)
		if err != nil {
			t.Fatal(err)
		}
		if c.Exhausted != nil {
			t.Errorf("%v: got exhausted %v, wanted nil", saveType, c.Exhausted)
		}
		if len(c.Bands) != notes.PitchClasses {
			t.Fatalf("%v: got %v bands, wanted %v", saveType, len(c.Bands), notes.PitchClasses)
		}
		if err := c.Validate(); err != nil {
			t.Fatal(err)
		}
		energies := map[string]float64{}
		total := 0.0
		for idx := range c.Bands {
			samples, err := c.Real(&c.Bands[idx])
			if err != nil {
				t.Fatal(err)
			}
			energies[c.Bands[idx].Note.Key()] = samples.Energy()
			total += samples.Energy()
		}
		if share := energies["4-A"] / total; share < 0.9 {
			t.Errorf("%v: 4-A has %v of the energy, wanted at least 0.9", saveType, share)
		}
		for _, key := range []string{"4-C", "4-D", "4-E", "4-F", "4-F#"} {
			if share := energies[key] / energies["4-A"]; share > 1e-3 {
				t.Errorf("%v: %v has %v of the 4-A energy, wanted less than 1e-3", saveType, key, share)
			}
		}
		a4, err := c.Band("4-A")
		if err != nil {
			t.Fatal(err)
		}
		a4Samples, err := c.Real(a4)
		if err != nil {
			t.Fatal(err)
		}
		original := tone(t, 440, 2, 44100).Samples
		if corr, err := a4Samples.Correlation(original); err != nil || corr < 0.99 {
			t.Errorf("%v: 4-A correlates %v (%v) with the original, wanted at least 0.99", saveType, corr, err)
		}
	}
}

func TestExhaustion(t *testing.T) {
	params := DefaultParams()
	params.Octaves = notes.OctaveRange{From: 7, To: 10}
	c, err := Decompose(tone(t, 3000, 1, 8000), params)
	if err != nil {
		t.Fatal(err)
	}
	if want := (notes.Note{Octave: 8, PitchClass: 1}); c.Exhausted == nil || *c.Exhausted != want {
		t.Errorf("got exhausted %v, wanted %v", c.Exhausted, want)
	}
	if len(c.Bands) != 13 {
		t.Errorf("got %v bands, wanted 13", len(c.Bands))
	}
	if err := c.Validate(); err != nil {
		t.Error(err)
	}
}

func TestConcurrencyDoesNotChangeResult(t *testing.T) {
	mono := tone(t, 300, 0.5, 16000)
	params := DefaultParams()
	params.Octaves = notes.OctaveRange{From: 3, To: 5}
	params.Concurrency = 1
	serial, err := Decompose(mono, params)
	if err != nil {
		t.Fatal(err)
	}
	params.Concurrency = 8
	parallel, err := Decompose(mono, params)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(serial, parallel, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("concurrency changed the decomposition: %v", diff)
	}
}

func TestErrors(t *testing.T) {
	mono := tone(t, 440, 0.1, 8000)
	for _, tc := range []struct {
		name   string
		modify func(*Params)
	}{
		{"unknown save type", func(p *Params) { p.SaveType = 2 }},
		{"empty octave range", func(p *Params) { p.Octaves = notes.OctaveRange{From: 5, To: 5} }},
		{"zero width", func(p *Params) { p.Width = 0 }},
	} {
		params := DefaultParams()
		tc.modify(&params)
		if _, err := Decompose(mono, params); !errors.Is(err, notes.ErrConfiguration) {
			t.Errorf("%v: got %v, wanted a configuration error", tc.name, err)
		}
	}
	if _, err := Decompose(&signals.Mono{Rate: 8000}, DefaultParams()); err == nil {
		t.Errorf("got no error for an empty signal")
	}
}
