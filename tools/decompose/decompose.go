/* decompose splits a signal into one Gaussian band pass filtered band per note.
 *
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
	"fmt"
	"math"
	"runtime"

	"github.com/google-research/notegate/tools/bands"
	"github.com/google-research/notegate/tools/notes"
	"github.com/google-research/notegate/tools/spectrum"
	"github.com/google-research/notegate/tools/synthesize/signals"
	"github.com/google-research/notegate/tools/workerpool"
	"github.com/sirupsen/logrus"
)

// Params defines a decomposition.
type Params struct {
	// Octaves is the range of octaves to produce bands for.
	Octaves notes.OctaveRange
	// Width is the standard deviation of each Gaussian window, as a fraction
	// of the bin distance between the note and the previous semitone.
	Width float64
	// SaveType is the domain the produced bands are stored in.
	SaveType bands.SaveType
	// Concurrency is the max number of notes filtered in parallel. Zero or
	// less means runtime.NumCPU().
	Concurrency int
	// Log receives progress reports. Nil means silent.
	Log logrus.FieldLogger
	// Progress, if not nil, is called once per finished band, possibly
	// concurrently.
	Progress func()
}

// DefaultParams returns the default decomposition parameters.
func DefaultParams() Params {
	return Params{
		Octaves:  notes.OctaveRange{From: 2, To: 6},
		Width:    0.5,
		SaveType: bands.TimeDomain,
	}
}

func (p Params) validate() error {
	if err := p.Octaves.Validate(); err != nil {
		return err
	}
	if err := p.SaveType.Validate(); err != nil {
		return err
	}
	if !(p.Width > 0) {
		return fmt.Errorf("%w: Gaussian width %v must be positive", notes.ErrConfiguration, p.Width)
	}
	return nil
}

// Window returns a peak normalized Gaussian over length bin indices, centered
// at mu with standard deviation sigma.
func Window(length int, mu int, sigma float64) []float64 {
	result := make([]float64, length)
	for bin := range result {
		z := float64(bin-mu) / sigma
		result[bin] = math.Exp(-0.5 * z * z)
	}
	return result
}

type plan struct {
	note  notes.Note
	mu    int
	sigma float64
}

// plans returns the window of every note in the range that has a resolvable
// bin, and the note where resolution stopped, if any.
func plans(spec *spectrum.S, rng notes.OctaveRange, width float64) ([]plan, *notes.Note) {
	result := []plan{}
	for _, note := range rng.Notes() {
		mu := spec.NearestBin(note.Frequency())
		muPrev := spec.NearestBin(note.Previous().Frequency())
		if mu == muPrev {
			exhausted := note
			return result, &exhausted
		}
		result = append(result, plan{
			note:  note,
			mu:    mu,
			sigma: width * float64(mu-muPrev),
		})
	}
	return result, nil
}

// Decompose returns a container with one band per note of the octave range, in
// ascending order. If two adjacent notes resolve to the same spectrum bin the
// decomposition stops there, and the note is recorded in Exhausted.
func Decompose(mono *signals.Mono, params Params) (*bands.Container, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if mono.Rate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %v must be positive", notes.ErrConfiguration, mono.Rate)
	}
	spec, err := spectrum.Compute(mono.Samples, mono.Rate)
	if err != nil {
		return nil, err
	}
	result := &bands.Container{
		Meta: bands.Meta{
			SaveType:       params.SaveType,
			SampleRate:     int(mono.Rate),
			OriginalLength: len(mono.Samples),
			SpectrumLength: len(spec.Coeffs),
		},
	}
	todo, exhausted := plans(spec, params.Octaves, params.Width)
	if exhausted != nil {
		result.Exhausted = exhausted
		if params.Log != nil {
			params.Log.WithFields(logrus.Fields{
				"note":  exhausted.Key(),
				"bands": len(todo),
			}).Info("Decomposition exhausted the resolvable spectrum")
		}
	}
	result.Bands = make([]bands.Band, len(todo))
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	pool := workerpool.New(concurrency)
	for idx := range todo {
		p := todo[idx]
		band := &result.Bands[idx]
		pool.Go(func() error {
			window := Window(len(spec.Coeffs), p.mu, p.sigma)
			filtered := make([]complex128, len(spec.Coeffs))
			for bin := range filtered {
				filtered[bin] = spec.Coeffs[bin] * complex(window[bin], 0)
			}
			band.Note = p.note
			switch params.SaveType {
			case bands.TimeDomain:
				samples, err := spectrum.Inverse(filtered, len(mono.Samples))
				if err != nil {
					return fmt.Errorf("band %v: %w", p.note, err)
				}
				band.Samples = samples
			case bands.FrequencyDomain:
				band.Bins = filtered
			}
			if params.Log != nil {
				params.Log.WithFields(logrus.Fields{
					"note":  p.note.Key(),
					"bin":   p.mu,
					"sigma": p.sigma,
				}).Debug("Filtered band")
			}
			if params.Progress != nil {
				params.Progress()
			}
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
