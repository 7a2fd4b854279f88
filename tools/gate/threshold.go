/* gate contains noise gates that zero the quiet parts of note bands.
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
package gate

import (
	"fmt"
	"math"

	"github.com/google-research/notegate/tools/bands"
	"github.com/google-research/notegate/tools/notes"
	"github.com/google-research/notegate/tools/synthesize/signals"
	"github.com/sirupsen/logrus"
)

// ThresholdParams defines a threshold gate.
type ThresholdParams struct {
	// Level is the absolute value a sample must exceed to open the gate.
	Level float64
	// Spread is the number of samples the gate stays open after a sample exceeds the level.
	Spread int
	// Hist is the number of samples the gate opens before a sample exceeds the level.
	Hist int
	// Relative makes the gate divide the signal by its max absolute value
	// before gating, so Level is a fraction in [0, 1]. The output stays divided.
	Relative bool
	// Log receives per band reports from ThresholdContainer. Nil means silent.
	Log logrus.FieldLogger
}

func (p ThresholdParams) validate() error {
	if p.Spread < 0 {
		return fmt.Errorf("%w: negative spread %v", notes.ErrConfiguration, p.Spread)
	}
	if p.Hist < 0 {
		return fmt.Errorf("%w: negative hist %v", notes.ErrConfiguration, p.Hist)
	}
	if math.IsNaN(p.Level) {
		return fmt.Errorf("%w: level is NaN", notes.ErrConfiguration)
	}
	return nil
}

// openMask returns whether each sample is within Spread samples after, or
// Hist samples before, a sample exceeding the level.
func openMask(signal signals.Float64Slice, level float64, spread, hist int) []bool {
	result := make([]bool, len(signal))
	// Ascending indices of exceeding samples in [idx - spread, idx + hist].
	queue := []int{}
	head := 0
	for idx := 0; idx < hist && idx < len(signal); idx++ {
		if math.Abs(signal[idx]) > level {
			queue = append(queue, idx)
		}
	}
	for idx := range signal {
		if ahead := idx + hist; ahead < len(signal) && math.Abs(signal[ahead]) > level {
			queue = append(queue, ahead)
		}
		for head < len(queue) && queue[head] < idx-spread {
			head++
		}
		result[idx] = head < len(queue)
	}
	return result
}

// Threshold returns a copy of the signal with every sample outside the open
// gate set to zero.
func Threshold(signal signals.Float64Slice, params ThresholdParams) (signals.Float64Slice, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	result := signal.Copy()
	if params.Relative {
		max := result.AbsMax()
		if max == 0 {
			return result, nil
		}
		for idx := range result {
			result[idx] /= max
		}
	}
	mask := openMask(result, params.Level, params.Spread, params.Hist)
	for idx := range result {
		if !mask[idx] {
			result[idx] = 0
		}
	}
	return result, nil
}

// ThresholdContainer returns a new container with every band of c threshold gated.
func ThresholdContainer(c *bands.Container, params ThresholdParams) (*bands.Container, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	result := c.Derive()
	for idx := range c.Bands {
		band := &c.Bands[idx]
		samples, err := c.Real(band)
		if err != nil {
			return nil, err
		}
		gated, err := Threshold(samples, params)
		if err != nil {
			return nil, err
		}
		if err := result.AddReal(band.Note, gated); err != nil {
			return nil, err
		}
		if params.Log != nil {
			params.Log.WithFields(logrus.Fields{
				"note":   band.Note.Key(),
				"before": samples.Energy(),
				"after":  gated.Energy(),
			}).Debug("Threshold gated band")
		}
	}
	return result, nil
}
