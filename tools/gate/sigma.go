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
	"fmt"
	"sort"

	"github.com/google-research/notegate/tools/bands"
	"github.com/google-research/notegate/tools/decompose"
	"github.com/google-research/notegate/tools/envelope"
	"github.com/google-research/notegate/tools/notes"
	"github.com/google-research/notegate/tools/synthesize/signals"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// SigmaParams defines the envelopes a sigma gate measures.
type SigmaParams struct {
	// Spread is the envelope window length, used both for calibration and gating.
	Spread int
	// Detect is the envelope volume measurement.
	Detect envelope.DetectType
	// Log receives per band reports from GateContainer. Nil means silent.
	Log logrus.FieldLogger
}

// DefaultSigmaParams returns the default sigma gate parameters.
func DefaultSigmaParams() SigmaParams {
	return SigmaParams{
		Spread: envelope.DefaultSpread,
		Detect: envelope.Peak,
	}
}

// DefaultSigmaMultiplier is the default number of standard deviations above
// the background mean a band must reach to pass the gate.
const DefaultSigmaMultiplier = 2.0

// Stats are the statistics of the envelope of one background band.
type Stats struct {
	Mean   float64
	StdDev float64
}

// Level returns the gate level multiplier standard deviations above the mean.
func (s Stats) Level(multiplier float64) float64 {
	return s.Mean + multiplier*s.StdDev
}

// Profile maps note keys to background envelope statistics.
type Profile map[string]Stats

// Keys returns the note keys of the profile, in ascending note order.
func (p Profile) Keys() []string {
	type keyed struct {
		key  string
		note notes.Note
	}
	sorted := []keyed{}
	for key := range p {
		note, err := notes.ParseKey(key)
		if err != nil {
			continue
		}
		sorted = append(sorted, keyed{key: key, note: note})
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].note.Less(sorted[j].note) })
	result := make([]string, len(sorted))
	for idx := range sorted {
		result[idx] = sorted[idx].key
	}
	return result
}

// Sigma is a gate calibrated against the bands of a background signal. It is
// immutable after calibration and safe for concurrent use.
type Sigma struct {
	params  SigmaParams
	rate    int
	profile Profile
}

// Calibrate decomposes the background with decomposeParams and returns a
// sigma gate calibrated against its bands.
func Calibrate(background *signals.Mono, decomposeParams decompose.Params, params SigmaParams) (*Sigma, error) {
	c, err := decompose.Decompose(background, decomposeParams)
	if err != nil {
		return nil, fmt.Errorf("decomposing background: %w", err)
	}
	return CalibrateContainer(c, params)
}

// CalibrateContainer returns a sigma gate calibrated against the bands of an
// already decomposed background.
func CalibrateContainer(background *bands.Container, params SigmaParams) (*Sigma, error) {
	if params.Spread < 1 {
		return nil, fmt.Errorf("%w: spread %v is less than 1", notes.ErrConfiguration, params.Spread)
	}
	result := &Sigma{
		params:  params,
		rate:    background.Meta.SampleRate,
		profile: Profile{},
	}
	for idx := range background.Bands {
		band := &background.Bands[idx]
		samples, err := background.Real(band)
		if err != nil {
			return nil, err
		}
		env, err := envelope.Extract(samples, params.Spread, params.Detect)
		if err != nil {
			return nil, err
		}
		stats := Stats{}
		if len(env) > 0 {
			stats.Mean, stats.StdDev = stat.PopMeanStdDev(env, nil)
		}
		result.profile[band.Note.Key()] = stats
	}
	return result, nil
}

// Profile returns a copy of the calibrated background statistics.
func (s *Sigma) Profile() Profile {
	result := Profile{}
	for key, stats := range s.profile {
		result[key] = stats
	}
	return result
}

// Stats returns the background statistics of the note key.
func (s *Sigma) Stats(key string) (Stats, error) {
	stats, found := s.profile[key]
	if !found {
		return Stats{}, fmt.Errorf("%w: note %q wasn't in the calibration background", notes.ErrLookup, key)
	}
	return stats, nil
}

// Gate returns a copy of the signal with every sample whose envelope doesn't
// exceed the calibrated level of the note key set to zero.
func (s *Sigma) Gate(signal signals.Float64Slice, key string, multiplier float64) (signals.Float64Slice, error) {
	stats, err := s.Stats(key)
	if err != nil {
		return nil, err
	}
	env, err := envelope.Extract(signal, s.params.Spread, s.params.Detect)
	if err != nil {
		return nil, err
	}
	level := stats.Level(multiplier)
	result := signal.Copy()
	for idx := range result {
		if !(env[idx] > level) {
			result[idx] = 0
		}
	}
	return result, nil
}

// GateContainer returns a new container with every band of c sigma gated.
func (s *Sigma) GateContainer(c *bands.Container, multiplier float64) (*bands.Container, error) {
	if c.Meta.SampleRate != s.rate {
		return nil, fmt.Errorf("%w: container sample rate %v doesn't match calibration sample rate %v", notes.ErrConfiguration, c.Meta.SampleRate, s.rate)
	}
	result := c.Derive()
	for idx := range c.Bands {
		band := &c.Bands[idx]
		samples, err := c.Real(band)
		if err != nil {
			return nil, err
		}
		gated, err := s.Gate(samples, band.Note.Key(), multiplier)
		if err != nil {
			return nil, err
		}
		if err := result.AddReal(band.Note, gated); err != nil {
			return nil, err
		}
		if s.params.Log != nil {
			stats := s.profile[band.Note.Key()]
			s.params.Log.WithFields(logrus.Fields{
				"note":  band.Note.Key(),
				"level": stats.Level(multiplier),
				"after": gated.Energy(),
			}).Debug("Sigma gated band")
		}
	}
	return result, nil
}
