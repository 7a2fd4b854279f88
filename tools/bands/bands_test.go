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
package bands

import (
	"errors"
	"testing"

	"github.com/google-research/notegate/tools/notes"
	"github.com/google-research/notegate/tools/spectrum"
	"github.com/google-research/notegate/tools/synthesize/signals"
	"github.com/google/go-cmp/cmp"
)

func TestAddRealAndReal(t *testing.T) {
	samples := signals.Float64Slice{0.1, -0.2, 0.3, 0.4, -0.5, 0.6, 0.0}
	a4 := notes.Note{Octave: 4, PitchClass: 9}
	for _, saveType := range []SaveType{TimeDomain, FrequencyDomain} {
		c := &Container{Meta: Meta{
			SaveType:       saveType,
			SampleRate:     8000,
			OriginalLength: len(samples),
			SpectrumLength: spectrum.BinLen(len(samples)),
		}}
		if err := c.AddReal(a4, samples); err != nil {
			t.Fatal(err)
		}
		if err := c.Validate(); err != nil {
			t.Errorf("%v: %v", saveType, err)
		}
		band, err := c.Band("4-A")
		if err != nil {
			t.Fatal(err)
		}
		got, err := c.Real(band)
		if err != nil {
			t.Fatal(err)
		}
		if !got.EqTol(samples, 1e-9) {
			t.Errorf("%v: got %v, wanted %v", saveType, got, samples)
		}
		if diff := cmp.Diff(c.Keys(), []string{"4-A"}); diff != "" {
			t.Errorf("%v: got keys %v: %v", saveType, c.Keys(), diff)
		}
	}
}

func TestErrors(t *testing.T) {
	c := &Container{Meta: Meta{SaveType: 7, SampleRate: 8000, OriginalLength: 2, SpectrumLength: 2}}
	if err := c.Validate(); !errors.Is(err, notes.ErrConfiguration) {
		t.Errorf("got %v, wanted a configuration error for an unknown save type", err)
	}
	if _, err := c.Real(&Band{}); !errors.Is(err, notes.ErrConfiguration) {
		t.Errorf("got %v, wanted a configuration error for an unknown save type", err)
	}
	if _, err := c.Band("4-A"); !errors.Is(err, notes.ErrLookup) {
		t.Errorf("got %v, wanted a lookup error for a missing band", err)
	}
}

func TestDeriveDoesNotShareBands(t *testing.T) {
	exhausted := notes.Note{Octave: 8, PitchClass: 1}
	c := &Container{
		Meta:      Meta{SaveType: TimeDomain, SampleRate: 10, OriginalLength: 1, SpectrumLength: 1},
		Bands:     []Band{{Note: notes.Note{Octave: 4}, Samples: signals.Float64Slice{1}}},
		Exhausted: &exhausted,
	}
	derived := c.Derive()
	if len(derived.Bands) != 0 {
		t.Errorf("got %v bands in derived container, wanted 0", len(derived.Bands))
	}
	if derived.Meta != c.Meta {
		t.Errorf("got meta %+v, wanted %+v", derived.Meta, c.Meta)
	}
	derived.Exhausted.Octave = 1
	if c.Exhausted.Octave != 8 {
		t.Errorf("modifying the derived container changed the original")
	}
}
