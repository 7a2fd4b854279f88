/* envelope converts waveforms into piecewise constant volume envelopes.
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
package envelope

import (
	"fmt"
	"math"

	"github.com/google-research/notegate/tools/notes"
	"github.com/google-research/notegate/tools/synthesize/signals"
	"gonum.org/v1/gonum/floats"
)

const (
	// DefaultSpread is the window length used when neither a spread nor a note is known.
	DefaultSpread = 1000
	// DefaultAlpha scales the period of a note into its adaptive window length.
	DefaultAlpha = 0.384
)

// DetectType defines how the volume of a window is measured.
type DetectType int

const (
	// Peak measures the largest absolute sample of the window.
	Peak DetectType = iota
	// RMS measures the root mean square of the window.
	RMS
)

func (d DetectType) String() string {
	switch d {
	case Peak:
		return "peak"
	case RMS:
		return "rms"
	}
	return fmt.Sprintf("DetectType(%d)", int(d))
}

// ParseDetectType parses "peak" or "rms".
func ParseDetectType(s string) (DetectType, error) {
	for _, d := range []DetectType{Peak, RMS} {
		if d.String() == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown detect type %q, only peak and rms are defined", notes.ErrConfiguration, s)
}

// AdaptiveSpread returns the window length for a note: lower notes get wider windows.
func AdaptiveSpread(note notes.Note, rate signals.Hz, alpha float64) int {
	return int(math.Ceil(alpha * float64(rate/note.Frequency())))
}

// Params defines how envelopes are extracted.
type Params struct {
	// Spread is the window length in samples. Zero means adaptive when a note is
	// known, and DefaultSpread otherwise.
	Spread int
	// Detect selects the volume measurement.
	Detect DetectType
	// Alpha is the adaptive window scale. Zero means DefaultAlpha.
	Alpha float64
}

// SpreadFor returns the window length these params use for a note at a rate.
// A nil note means the note is unknown.
func (p Params) SpreadFor(note *notes.Note, rate signals.Hz) int {
	if p.Spread > 0 {
		return p.Spread
	}
	if note != nil && rate > 0 {
		alpha := p.Alpha
		if alpha == 0 {
			alpha = DefaultAlpha
		}
		if spread := AdaptiveSpread(*note, rate, alpha); spread > 0 {
			return spread
		}
	}
	return DefaultSpread
}

func (d DetectType) measure(window []float64) (float64, error) {
	switch d {
	case Peak:
		return signals.Float64Slice(window).AbsMax(), nil
	case RMS:
		return math.Sqrt(floats.Dot(window, window) / float64(len(window))), nil
	}
	return 0, fmt.Errorf("%w: unknown detect type %v, only peak and rms are defined", notes.ErrConfiguration, d)
}

// Windows returns one volume per consecutive window of spread samples. The
// last window is zero padded to spread samples before it is measured.
func Windows(signal signals.Float64Slice, spread int, detect DetectType) (signals.Float64Slice, error) {
	if spread < 1 {
		return nil, fmt.Errorf("%w: spread %v is less than 1", notes.ErrConfiguration, spread)
	}
	numWindows := (len(signal) + spread - 1) / spread
	result := make(signals.Float64Slice, numWindows)
	padded := make([]float64, spread)
	for windowIdx := range result {
		from := windowIdx * spread
		window := signal[from:]
		if len(window) >= spread {
			window = window[:spread]
		} else {
			copy(padded, window)
			for idx := len(window); idx < spread; idx++ {
				padded[idx] = 0
			}
			window = padded
		}
		volume, err := detect.measure(window)
		if err != nil {
			return nil, err
		}
		result[windowIdx] = volume
	}
	return result, nil
}

// Broadcast repeats each window value spread times and trims the result to length.
func Broadcast(windows signals.Float64Slice, spread, length int) signals.Float64Slice {
	result := make(signals.Float64Slice, length)
	for idx := range result {
		windowIdx := idx / spread
		if windowIdx < len(windows) {
			result[idx] = windows[windowIdx]
		}
	}
	return result
}

// Extract returns the volume envelope of the signal, with the same length as
// the signal and constant within each window of spread samples.
func Extract(signal signals.Float64Slice, spread int, detect DetectType) (signals.Float64Slice, error) {
	windows, err := Windows(signal, spread, detect)
	if err != nil {
		return nil, err
	}
	return Broadcast(windows, spread, len(signal)), nil
}

// ExtractNote returns the envelope using the spread these params choose for the note.
func (p Params) ExtractNote(signal signals.Float64Slice, note *notes.Note, rate signals.Hz) (signals.Float64Slice, error) {
	return Extract(signal, p.SpreadFor(note, rate), p.Detect)
}
