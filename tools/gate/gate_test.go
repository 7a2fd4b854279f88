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
package gate

import (
	"errors"
	"math"
	"testing"

	"github.com/google-research/notegate/tools/bands"
	"github.com/google-research/notegate/tools/decompose"
	"github.com/google-research/notegate/tools/envelope"
	"github.com/google-research/notegate/tools/notes"
	"github.com/google-research/notegate/tools/synthesize/signals"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestThresholdImpulse(t *testing.T) {
	signal := make(signals.Float64Slice, 1000)
	signal[500] = 10
	gated, err := Threshold(signal, ThresholdParams{Level: 5, Spread: 3})
	if err != nil {
		t.Fatal(err)
	}
	mask := openMask(signal, 5, 3, 0)
	for idx := range mask {
		if wantOpen := idx >= 500 && idx <= 503; mask[idx] != wantOpen {
			t.Errorf("got open %v at %v, wanted %v", mask[idx], idx, wantOpen)
		}
	}
	if diff := cmp.Diff(gated, signal); diff != "" {
		t.Errorf("gate changed the impulse signal: %v", diff)
	}
}

func TestThresholdMask(t *testing.T) {
	signal := signals.Float64Slice{0, 0, 0, 0, -2, 0, 0, 0, 0, 0, 3, 0}
	for _, tc := range []struct {
		spread int
		hist   int
		want   []bool
	}{
		{
			spread: 0,
			hist:   0,
			want:   []bool{false, false, false, false, true, false, false, false, false, false, true, false},
		},
		{
			spread: 2,
			hist:   0,
			want:   []bool{false, false, false, false, true, true, true, false, false, false, true, true},
		},
		{
			spread: 0,
			hist:   2,
			want:   []bool{false, false, true, true, true, false, false, false, true, true, true, false},
		},
		{
			spread: 1,
			hist:   3,
			want:   []bool{false, true, true, true, true, true, false, true, true, true, true, true},
		},
		{
			spread: 20,
			hist:   20,
			want:   []bool{true, true, true, true, true, true, true, true, true, true, true, true},
		},
	} {
		got := openMask(signal, 1, tc.spread, tc.hist)
		if diff := cmp.Diff(got, tc.want); diff != "" {
			t.Errorf("spread %v, hist %v: got %v, wanted %v: %v", tc.spread, tc.hist, got, tc.want, diff)
		}
	}
}

func TestThresholdIdempotent(t *testing.T) {
	noise, err := signals.Noise{Deviation: 1, Seed: 4}.Sample(signals.TimeStretch{FromInclusive: 0, ToExclusive: 1}, 4000)
	if err != nil {
		t.Fatal(err)
	}
	for _, params := range []ThresholdParams{
		{Level: 2, Spread: 10},
		{Level: 1.5, Spread: 3, Hist: 7},
		{Level: 0.6, Spread: 5, Hist: 2, Relative: true},
	} {
		once, err := Threshold(noise, params)
		if err != nil {
			t.Fatal(err)
		}
		twice, err := Threshold(once, params)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(once, twice, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
			t.Errorf("%+v: gating twice differs from gating once: %v", params, diff)
		}
		if once.Energy() == 0 || once.Energy() >= noise.Energy() {
			t.Errorf("%+v: got energy %v after gating, wanted something in (0, %v)", params, once.Energy(), noise.Energy())
		}
	}
}

func TestThresholdRelative(t *testing.T) {
	signal := signals.Float64Slice{0, 4, 0, 0, 1, 0, 0, -8}
	got, err := Threshold(signal, ThresholdParams{Level: 0.25, Relative: true})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got, signals.Float64Slice{0, 0.5, 0, 0, 0, 0, 0, -1}); diff != "" {
		t.Errorf("got %v: %v", got, diff)
	}
	silent, err := Threshold(make(signals.Float64Slice, 3), ThresholdParams{Level: 0.5, Relative: true})
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range silent {
		if v != 0 || math.IsNaN(v) {
			t.Errorf("got %v gating silence, wanted zeros", silent)
		}
	}
}

func TestThresholdErrors(t *testing.T) {
	for _, params := range []ThresholdParams{{Spread: -1}, {Hist: -1}, {Level: math.NaN()}} {
		if _, err := Threshold(signals.Float64Slice{1}, params); !errors.Is(err, notes.ErrConfiguration) {
			t.Errorf("%+v: got %v, wanted a configuration error", params, err)
		}
	}
}

func TestThresholdContainerDoesNotMutate(t *testing.T) {
	c := &bands.Container{
		Meta: bands.Meta{SaveType: bands.TimeDomain, SampleRate: 10, OriginalLength: 4, SpectrumLength: 3},
		Bands: []bands.Band{
			{Note: notes.Note{Octave: 4}, Samples: signals.Float64Slice{0.1, 5, 0.1, 0.1}},
		},
	}
	got, err := ThresholdContainer(c, ThresholdParams{Level: 1})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got.Bands[0].Samples, signals.Float64Slice{0, 5, 0, 0}); diff != "" {
		t.Errorf("got %v: %v", got.Bands[0].Samples, diff)
	}
	if diff := cmp.Diff(c.Bands[0].Samples, signals.Float64Slice{0.1, 5, 0.1, 0.1}); diff != "" {
		t.Errorf("input container was modified: %v", diff)
	}
}

func TestSigmaSilentBackground(t *testing.T) {
	params := decompose.DefaultParams()
	params.Octaves = notes.OctaveRange{From: 4, To: 5}
	silence := &signals.Mono{Samples: make(signals.Float64Slice, 8000), Rate: 8000}
	sigma, err := Calibrate(silence, params, DefaultSigmaParams())
	if err != nil {
		t.Fatal(err)
	}
	profile := sigma.Profile()
	if len(profile) != notes.PitchClasses {
		t.Errorf("got %v profiled notes, wanted %v", len(profile), notes.PitchClasses)
	}
	for key, stats := range profile {
		if stats != (Stats{}) {
			t.Errorf("%v: got %+v for a silent background, wanted zeros", key, stats)
		}
	}
	signal := signals.Float64Slice{0, 0, 0, 0.001}
	signal = append(signal, make(signals.Float64Slice, 2000)...)
	gated, err := sigma.Gate(signal, "4-A", 0)
	if err != nil {
		t.Fatal(err)
	}
	env, err := envelope.Extract(signal, envelope.DefaultSpread, envelope.Peak)
	if err != nil {
		t.Fatal(err)
	}
	for idx := range signal {
		want := 0.0
		if env[idx] > 0 {
			want = signal[idx]
		}
		if gated[idx] != want {
			t.Fatalf("got %v at %v, wanted %v", gated[idx], idx, want)
		}
	}
}

func TestSigmaLevels(t *testing.T) {
	background := &bands.Container{
		Meta: bands.Meta{SaveType: bands.TimeDomain, SampleRate: 10, OriginalLength: 4, SpectrumLength: 3},
		Bands: []bands.Band{
			{Note: notes.Note{Octave: 4, PitchClass: 9}, Samples: signals.Float64Slice{1, -3, 1, 1}},
		},
	}
	sigma, err := CalibrateContainer(background, SigmaParams{Spread: 1, Detect: envelope.Peak})
	if err != nil {
		t.Fatal(err)
	}
	stats, err := sigma.Stats("4-A")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(stats, Stats{Mean: 1.5, StdDev: math.Sqrt(0.75)}, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("got %+v: %v", stats, diff)
	}
	gated, err := sigma.Gate(signals.Float64Slice{2, -2.5, 4, -1}, "4-A", 1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(gated, signals.Float64Slice{0, -2.5, 4, 0}); diff != "" {
		t.Errorf("got %v: %v", gated, diff)
	}
	foreground := background.Derive()
	if err := foreground.AddReal(notes.Note{Octave: 4, PitchClass: 9}, signals.Float64Slice{2, -2.5, 4, -1}); err != nil {
		t.Fatal(err)
	}
	gatedContainer, err := sigma.GateContainer(foreground, 1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(gatedContainer.Bands[0].Samples, gated); diff != "" {
		t.Errorf("GateContainer differs from Gate: %v", diff)
	}
}

func TestSigmaLookup(t *testing.T) {
	background := &bands.Container{
		Meta: bands.Meta{SaveType: bands.TimeDomain, SampleRate: 10, OriginalLength: 2, SpectrumLength: 2},
		Bands: []bands.Band{
			{Note: notes.Note{Octave: 4, PitchClass: 9}, Samples: signals.Float64Slice{1, 1}},
		},
	}
	sigma, err := CalibrateContainer(background, DefaultSigmaParams())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sigma.Gate(signals.Float64Slice{1, 1}, "4-A#", 2); !errors.Is(err, notes.ErrLookup) {
		t.Errorf("got %v, wanted a lookup error", err)
	}
	foreground := background.Derive()
	if err := foreground.AddReal(notes.Note{Octave: 4, PitchClass: 8}, signals.Float64Slice{1, 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := sigma.GateContainer(foreground, 2); !errors.Is(err, notes.ErrLookup) {
		t.Errorf("got %v, wanted a lookup error", err)
	}
	if diff := cmp.Diff(sigma.Profile().Keys(), []string{"4-A"}); diff != "" {
		t.Errorf("got keys %v: %v", sigma.Profile().Keys(), diff)
	}
}
