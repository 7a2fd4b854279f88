/* filter contains the normalized least mean squares adaptive filter.
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
package filter

import (
	"fmt"
	"math"

	"github.com/google-research/notegate/tools/notes"
	"github.com/google-research/notegate/tools/synthesize/signals"
	"gonum.org/v1/gonum/floats"
)

// NLMSConf defines an NLMS filter.
type NLMSConf struct {
	// Taps is the number of weights.
	Taps int
	// StepSize is the adaptation rate mu, in (0, 2).
	StepSize float64
	// Leakage shrinks the weights by StepSize*Leakage every step, in [0, 1).
	Leakage float64
	// Epsilon regularizes the normalization by the regressor power.
	Epsilon float64
}

// DefaultNLMSConf returns the default NLMS configuration.
func DefaultNLMSConf() NLMSConf {
	return NLMSConf{
		Taps:     4,
		StepSize: 0.1,
		Leakage:  0,
		Epsilon:  1e-3,
	}
}

// Validate returns an error if the filter can't be made.
func (n NLMSConf) Validate() error {
	if n.Taps < 1 {
		return fmt.Errorf("%w: NLMS needs at least one tap, got %v", notes.ErrConfiguration, n.Taps)
	}
	if !(n.StepSize > 0 && n.StepSize < 2) {
		return fmt.Errorf("%w: NLMS step size %v outside (0, 2)", notes.ErrConfiguration, n.StepSize)
	}
	if !(n.Leakage >= 0 && n.Leakage < 1) {
		return fmt.Errorf("%w: NLMS leakage %v outside [0, 1)", notes.ErrConfiguration, n.Leakage)
	}
	if !(n.Epsilon >= 0) {
		return fmt.Errorf("%w: negative NLMS epsilon %v", notes.ErrConfiguration, n.Epsilon)
	}
	return nil
}

// Make returns a filter with all weights zero.
func (n NLMSConf) Make() (*NLMS, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &NLMS{
		conf:      n,
		weights:   make([]float64, n.Taps),
		regressor: make([]float64, n.Taps),
		update:    make([]float64, n.Taps),
	}, nil
}

// NLMS is an adaptive FIR filter estimating the part of a desired signal
// that is linearly predictable from a reference signal.
//
// The weights persist between calls to Run, so consecutive calls continue the
// adaptation. NLMS is not safe for concurrent use.
type NLMS struct {
	conf      NLMSConf
	weights   []float64
	regressor []float64
	update    []float64
	residual  signals.Float64Slice
}

// Conf returns the configuration of the filter.
func (n *NLMS) Conf() NLMSConf {
	return n.conf
}

// Weights returns a copy of the current weights.
func (n *NLMS) Weights() []float64 {
	result := make([]float64, len(n.weights))
	copy(result, n.weights)
	return result
}

// Residual returns the residual of the last call to Run.
func (n *NLMS) Residual() signals.Float64Slice {
	return n.residual
}

// Reset zeroes the weights.
func (n *NLMS) Reset() {
	for idx := range n.weights {
		n.weights[idx] = 0
	}
	n.residual = nil
}

// Next pushes one reference sample, returns the estimate of the desired
// sample and the residual, and adapts the weights.
func (n *NLMS) Next(reference, desired float64) (estimate, residual float64) {
	copy(n.regressor[1:], n.regressor[:len(n.regressor)-1])
	n.regressor[0] = reference
	estimate = floats.Dot(n.weights, n.regressor)
	residual = desired - estimate
	if n.conf.Leakage != 0 {
		floats.Scale(1-n.conf.StepSize*n.conf.Leakage, n.weights)
	}
	norm := n.conf.Epsilon + floats.Dot(n.regressor, n.regressor)
	if norm > 0 && !math.IsInf(norm, 0) {
		floats.ScaleTo(n.update, n.conf.StepSize*residual/norm, n.regressor)
		floats.Add(n.weights, n.update)
	}
	return estimate, residual
}

// Run filters reference against desired from a zero regressor, and returns
// the estimate of desired and the residual desired - estimate.
func (n *NLMS) Run(desired, reference signals.Float64Slice) (estimate, residual signals.Float64Slice, err error) {
	if len(desired) != len(reference) {
		return nil, nil, fmt.Errorf("desired has %v samples and reference %v, wanted equal lengths", len(desired), len(reference))
	}
	for idx := range n.regressor {
		n.regressor[idx] = 0
	}
	estimate = make(signals.Float64Slice, len(desired))
	residual = make(signals.Float64Slice, len(desired))
	for idx := range desired {
		estimate[idx], residual[idx] = n.Next(reference[idx], desired[idx])
	}
	n.residual = residual
	return estimate, residual, nil
}
