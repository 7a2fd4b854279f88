/* recompose turns decomposed bands back into audio.
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
package recompose

import (
	"fmt"

	"github.com/google-research/notegate/tools/bands"
	"github.com/google-research/notegate/tools/notes"
	"github.com/google-research/notegate/tools/synthesize/signals"
	"gonum.org/v1/gonum/floats"
)

// Params defines how bands are combined.
type Params struct {
	// Divisor scales the sum of all bands. Zero means the number of bands.
	//
	// Neighbouring Gaussian windows overlap, so the sum of the bands isn't the
	// original signal and there is no exact divisor.
	Divisor float64
}

// Combine sums the real domain version of every band and divides the sum by
// the divisor.
func Combine(c *bands.Container, params Params) (*signals.Mono, error) {
	if err := c.Meta.SaveType.Validate(); err != nil {
		return nil, err
	}
	if params.Divisor < 0 {
		return nil, fmt.Errorf("%w: negative divisor %v", notes.ErrConfiguration, params.Divisor)
	}
	sum := make(signals.Float64Slice, c.Meta.OriginalLength)
	for idx := range c.Bands {
		samples, err := c.Real(&c.Bands[idx])
		if err != nil {
			return nil, err
		}
		floats.Add(sum, samples)
	}
	divisor := params.Divisor
	if divisor == 0 {
		divisor = float64(len(c.Bands))
	}
	if divisor != 0 {
		floats.Scale(1/divisor, sum)
	}
	return &signals.Mono{Samples: sum, Rate: signals.Hz(c.Meta.SampleRate)}, nil
}

// Split returns the real domain version of every band, keyed by note key.
func Split(c *bands.Container) (map[string]*signals.Mono, error) {
	if err := c.Meta.SaveType.Validate(); err != nil {
		return nil, err
	}
	result := map[string]*signals.Mono{}
	for idx := range c.Bands {
		samples, err := c.Real(&c.Bands[idx])
		if err != nil {
			return nil, err
		}
		result[c.Bands[idx].Note.Key()] = &signals.Mono{
			Samples: samples.Copy(),
			Rate:    signals.Hz(c.Meta.SampleRate),
		}
	}
	return result, nil
}
