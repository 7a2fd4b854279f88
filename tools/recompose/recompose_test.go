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
package recompose

import (
	"errors"
	"testing"

	"github.com/google-research/notegate/tools/bands"
	"github.com/google-research/notegate/tools/decompose"
	"github.com/google-research/notegate/tools/notes"
	"github.com/google-research/notegate/tools/synthesize/signals"
	"github.com/google/go-cmp/cmp"
)

func TestCombineCorrelates(t *testing.T) {
	samples, err := signals.Tone{Frequency: 440, Amplitude: 0.5}.Sample(signals.TimeStretch{FromInclusive: 0, ToExclusive: 2}, 44100)
	if err != nil {
		t.Fatal(err)
	}
	params := decompose.DefaultParams()
	params.Octaves = notes.OctaveRange{From: 4, To: 5}
	for _, saveType := range []bands.SaveType{bands.TimeDomain, bands.FrequencyDomain} {
		params.SaveType = saveType
		c, err := decompose.Decompose(&signals.Mono{Samples: samples, Rate: 44100}, params)
		if err != nil {
			t.Fatal(err)
		}
		for _, divisor := range []float64{0, 1} {
			mono, err := Combine(c, Params{Divisor: divisor})
			if err != nil {
				t.Fatal(err)
			}
			if mono.Rate != 44100 || len(mono.Samples) != len(samples) {
				t.Errorf("%v: got %v samples at %v, wanted %v at 44100", saveType, len(mono.Samples), mono.Rate, len(samples))
			}
			if corr, err := mono.Samples.Correlation(samples); err != nil || corr < 0.95 {
				t.Errorf("%v: recomposed signal correlates %v (%v) with the original, wanted at least 0.95", saveType, corr, err)
			}
		}
	}
}

func TestCombineDivisor(t *testing.T) {
	c := &bands.Container{
		Meta: bands.Meta{SaveType: bands.TimeDomain, SampleRate: 10, OriginalLength: 3, SpectrumLength: 2},
		Bands: []bands.Band{
			{Note: notes.Note{Octave: 4, PitchClass: 0}, Samples: signals.Float64Slice{1, 2, 3}},
			{Note: notes.Note{Octave: 4, PitchClass: 1}, Samples: signals.Float64Slice{3, 2, 1}},
		},
	}
	for _, tc := range []struct {
		divisor float64
		want    signals.Float64Slice
	}{
		{0, signals.Float64Slice{2, 2, 2}},
		{1, signals.Float64Slice{4, 4, 4}},
		{4, signals.Float64Slice{1, 1, 1}},
	} {
		mono, err := Combine(c, Params{Divisor: tc.divisor})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(mono.Samples, tc.want); diff != "" {
			t.Errorf("divisor %v: got %v, wanted %v: %v", tc.divisor, mono.Samples, tc.want, diff)
		}
	}
}

func TestSplit(t *testing.T) {
	c := &bands.Container{
		Meta: bands.Meta{SaveType: bands.TimeDomain, SampleRate: 10, OriginalLength: 2, SpectrumLength: 2},
		Bands: []bands.Band{
			{Note: notes.Note{Octave: 4, PitchClass: 9}, Samples: signals.Float64Slice{1, 2}},
			{Note: notes.Note{Octave: 4, PitchClass: 10}, Samples: signals.Float64Slice{3, 4}},
		},
	}
	got, err := Split(c)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]*signals.Mono{
		"4-A":  {Samples: signals.Float64Slice{1, 2}, Rate: 10},
		"4-A#": {Samples: signals.Float64Slice{3, 4}, Rate: 10},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("got %v, wanted %v: %v", got, want, diff)
	}
	got["4-A"].Samples[0] = 10
	if c.Bands[0].Samples[0] != 1 {
		t.Errorf("modifying a split signal modified the container")
	}
}

func TestUnknownSaveType(t *testing.T) {
	c := &bands.Container{Meta: bands.Meta{SaveType: 3, SampleRate: 10, OriginalLength: 2, SpectrumLength: 2}}
	if _, err := Combine(c, Params{}); !errors.Is(err, notes.ErrConfiguration) {
		t.Errorf("Combine: got %v, wanted a configuration error", err)
	}
	if _, err := Split(c); !errors.Is(err, notes.ErrConfiguration) {
		t.Errorf("Split: got %v, wanted a configuration error", err)
	}
}
