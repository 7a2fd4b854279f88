/* cancel removes background noise from note bands with an adaptive filter
 * referenced against the same note band of a recorded background.
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
package cancel

import (
	"fmt"
	"math"
	"runtime"

	"github.com/google-research/notegate/tools/bands"
	"github.com/google-research/notegate/tools/decompose"
	"github.com/google-research/notegate/tools/envelope"
	"github.com/google-research/notegate/tools/filter"
	"github.com/google-research/notegate/tools/notes"
	"github.com/google-research/notegate/tools/synthesize/signals"
	"github.com/google-research/notegate/tools/workerpool"
	"github.com/sirupsen/logrus"
)

// DefaultFloor is the default envelope value at or below which output is silenced.
const DefaultFloor = 1e-9

// Params defines a canceller.
type Params struct {
	// Envelope defines the envelopes the filter runs on. A zero Spread means
	// the spread adapts to the note of each band.
	Envelope envelope.Params
	// NLMS configures the adaptive filter.
	NLMS filter.NLMSConf
	// Floor is the original envelope value at or below which output samples are zero.
	Floor float64
	// DelayPadding compensates the filter delay by delaying the foreground
	// windows with Taps-1 leading zeros and dropping the first Taps-1
	// estimates. By default the estimate is instead rotated left by Taps-1
	// windows, wrapping the first estimates to the end.
	DelayPadding bool
	// Concurrency is the max number of bands CancelContainer processes in
	// parallel. Zero or less means runtime.NumCPU().
	Concurrency int
	// Log receives per band reports from CancelContainer. Nil means silent.
	Log logrus.FieldLogger
}

// DefaultParams returns the default canceller parameters.
func DefaultParams() Params {
	return Params{
		Envelope: envelope.Params{Detect: envelope.Peak},
		NLMS:     filter.DefaultNLMSConf(),
		Floor:    DefaultFloor,
	}
}

func (p Params) validate() error {
	if err := p.NLMS.Validate(); err != nil {
		return err
	}
	if p.Envelope.Spread < 0 {
		return fmt.Errorf("%w: negative envelope spread %v", notes.ErrConfiguration, p.Envelope.Spread)
	}
	if !(p.Floor >= 0) {
		return fmt.Errorf("%w: negative envelope floor %v", notes.ErrConfiguration, p.Floor)
	}
	return nil
}

// Canceller holds a decomposed background and the adaptive filter state.
//
// The filter weights persist between calls to Cancel. A Canceller is not safe
// for concurrent use; CancelContainer runs an independent filter per band.
type Canceller struct {
	params     Params
	background *bands.Container
	nlms       *filter.NLMS
	noise      signals.Float64Slice
}

// New decomposes the background with decomposeParams and returns a canceller
// referenced against its bands.
func New(background *signals.Mono, decomposeParams decompose.Params, params Params) (*Canceller, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	c, err := decompose.Decompose(background, decomposeParams)
	if err != nil {
		return nil, fmt.Errorf("decomposing background: %w", err)
	}
	return NewFromContainer(c, params)
}

// NewFromContainer returns a canceller referenced against an already
// decomposed background. The container must not be modified afterwards.
func NewFromContainer(background *bands.Container, params Params) (*Canceller, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if err := background.Meta.SaveType.Validate(); err != nil {
		return nil, err
	}
	nlms, err := params.NLMS.Make()
	if err != nil {
		return nil, err
	}
	return &Canceller{
		params:     params,
		background: background,
		nlms:       nlms,
	}, nil
}

// fork returns a canceller sharing the background but with its own filter.
func (c *Canceller) fork() (*Canceller, error) {
	nlms, err := c.params.NLMS.Make()
	if err != nil {
		return nil, err
	}
	return &Canceller{
		params:     c.params,
		background: c.background,
		nlms:       nlms,
	}, nil
}

// Weights returns a copy of the current filter weights.
func (c *Canceller) Weights() []float64 {
	return c.nlms.Weights()
}

// Residual returns the per window filter residual of the last call to Cancel.
func (c *Canceller) Residual() signals.Float64Slice {
	return c.nlms.Residual()
}

// Noise returns the per window, delay compensated, background noise estimate
// of the last call to Cancel.
func (c *Canceller) Noise() signals.Float64Slice {
	return c.noise
}

// Reset zeroes the filter weights.
func (c *Canceller) Reset() {
	c.nlms.Reset()
	c.noise = nil
}

// tile repeats s until it has length samples. An empty s tiles to silence.
func tile(s signals.Float64Slice, length int) signals.Float64Slice {
	result := make(signals.Float64Slice, length)
	if len(s) == 0 {
		return result
	}
	for idx := 0; idx < length; idx += len(s) {
		copy(result[idx:], s)
	}
	return result
}

// rotateLeft returns s rotated left by n, with the first n samples wrapped to the end.
func rotateLeft(s signals.Float64Slice, n int) signals.Float64Slice {
	result := make(signals.Float64Slice, len(s))
	for idx := range result {
		result[idx] = s[(idx+n)%len(s)]
	}
	return result
}

// Cancel returns the foreground band with its volume reduced by the
// estimated contribution of the background band of the same note key.
func (c *Canceller) Cancel(foreground signals.Float64Slice, key string) (signals.Float64Slice, error) {
	backgroundBand, err := c.background.Band(key)
	if err != nil {
		return nil, err
	}
	background, err := c.background.Real(backgroundBand)
	if err != nil {
		return nil, err
	}
	spread := c.params.Envelope.SpreadFor(&backgroundBand.Note, signals.Hz(c.background.Meta.SampleRate))
	foregroundWindows, err := envelope.Windows(foreground, spread, c.params.Envelope.Detect)
	if err != nil {
		return nil, err
	}
	backgroundWindows, err := envelope.Windows(background, spread, c.params.Envelope.Detect)
	if err != nil {
		return nil, err
	}

	delay := c.params.NLMS.Taps - 1
	numWindows := len(foregroundWindows)
	if c.params.DelayPadding {
		reference := tile(backgroundWindows, numWindows+delay)
		desired := make(signals.Float64Slice, numWindows+delay)
		copy(desired[delay:], foregroundWindows)
		estimate, _, err := c.nlms.Run(desired, reference)
		if err != nil {
			return nil, err
		}
		c.noise = estimate[delay:].Copy()
	} else {
		estimate, _, err := c.nlms.Run(foregroundWindows, tile(backgroundWindows, numWindows))
		if err != nil {
			return nil, err
		}
		c.noise = rotateLeft(estimate, delay)
	}

	cleanWindows := make(signals.Float64Slice, numWindows)
	for idx := range cleanWindows {
		cleanWindows[idx] = math.Max(foregroundWindows[idx]-c.noise[idx], 0)
	}
	clean := envelope.Broadcast(cleanWindows, spread, len(foreground))
	original := envelope.Broadcast(foregroundWindows, spread, len(foreground))
	result := make(signals.Float64Slice, len(foreground))
	for idx := range result {
		if original[idx] > c.params.Floor {
			result[idx] = foreground[idx] * clean[idx] / original[idx]
		}
	}
	return result, nil
}

// CancelContainer returns a new container with every band of foreground
// cancelled against the background band of the same note. Every band starts
// from zero weights, and the weights of this canceller are left untouched.
func (c *Canceller) CancelContainer(foreground *bands.Container) (*bands.Container, error) {
	if foreground.Meta.SampleRate != c.background.Meta.SampleRate {
		return nil, fmt.Errorf("%w: foreground sample rate %v doesn't match background sample rate %v", notes.ErrConfiguration, foreground.Meta.SampleRate, c.background.Meta.SampleRate)
	}
	for idx := range foreground.Bands {
		if _, err := c.background.Band(foreground.Bands[idx].Note.Key()); err != nil {
			return nil, err
		}
	}
	cancelled := make([]signals.Float64Slice, len(foreground.Bands))
	concurrency := c.params.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	pool := workerpool.New(concurrency)
	for idx := range foreground.Bands {
		band := &foreground.Bands[idx]
		slot := &cancelled[idx]
		pool.Go(func() error {
			samples, err := foreground.Real(band)
			if err != nil {
				return err
			}
			forked, err := c.fork()
			if err != nil {
				return err
			}
			if *slot, err = forked.Cancel(samples, band.Note.Key()); err != nil {
				return fmt.Errorf("band %v: %w", band.Note, err)
			}
			if c.params.Log != nil {
				c.params.Log.WithFields(logrus.Fields{
					"note":     band.Note.Key(),
					"before":   samples.Energy(),
					"after":    slot.Energy(),
					"residual": forked.Residual().Energy(),
				}).Debug("Cancelled band")
			}
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		return nil, err
	}
	result := foreground.Derive()
	for idx := range foreground.Bands {
		if err := result.AddReal(foreground.Bands[idx].Note, cancelled[idx]); err != nil {
			return nil, err
		}
	}
	return result, nil
}
