/* Package signals contains mono audio buffers, their WAV representation, and
 * samplers used to synthesize test material.
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
package signals

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"reflect"

	"gonum.org/v1/gonum/floats"
)

// Hz is cycles per second.
type Hz float64

// Period returns the period of this frequency.
func (h Hz) Period() Seconds {
	return Seconds(1.0 / h)
}

// Seconds is a point in time.
type Seconds float64

// TimeStretch defines a stretch of time.
type TimeStretch struct {
	// FromInclusive is the start of the stretch of time, inclusive.
	FromInclusive Seconds
	// ToExclusive is the end of the stretch of time, exclusive.
	ToExclusive Seconds
}

// Len returns the length of this time stretch.
func (t TimeStretch) Len() Seconds {
	return t.ToExclusive - t.FromInclusive
}

// NumSamples returns the number of samples in this time stretch at rate.
func (t TimeStretch) NumSamples(rate Hz) int {
	return int(math.Round(float64(t.Len()) * float64(rate)))
}

// Float64Slice represents a sound buffer, nominally of floats between -1 and 1.
type Float64Slice []float64

// EqTol returns whether the other float slice is equal to this one,
// within the given tolerance.
func (f Float64Slice) EqTol(o Float64Slice, tol float64) bool {
	if len(f) != len(o) {
		return false
	}
	for idx := range f {
		if math.Abs(f[idx]-o[idx]) > tol {
			return false
		}
	}
	return true
}

// Copy returns a copy of the slice.
func (f Float64Slice) Copy() Float64Slice {
	result := make(Float64Slice, len(f))
	copy(result, f)
	return result
}

// AbsMax returns the largest absolute value in the slice.
func (f Float64Slice) AbsMax() float64 {
	max := 0.0
	for _, v := range f {
		if a := math.Abs(v); a > max {
			max = a
		}
	}
	return max
}

// Energy returns the sum of squares of the slice.
func (f Float64Slice) Energy() float64 {
	return floats.Dot(f, f)
}

// Power returns the signal power of the slice.
func (f Float64Slice) Power() float64 {
	if len(f) == 0 {
		return 0
	}
	mean := floats.Sum(f) / float64(len(f))
	return f.Energy()/float64(len(f)) - mean*mean
}

// Correlation returns the normalized cross correlation at lag zero between
// the slice and o, or 0 if either has no energy.
func (f Float64Slice) Correlation(o Float64Slice) (float64, error) {
	if len(f) != len(o) {
		return 0, fmt.Errorf("can't correlate slices of length %v and %v", len(f), len(o))
	}
	denom := math.Sqrt(f.Energy() * o.Energy())
	if denom == 0 {
		return 0, nil
	}
	return floats.Dot(f, o) / denom, nil
}

// Mono is a single channel buffer at a sample rate.
type Mono struct {
	Samples Float64Slice
	Rate    Hz
}

// Duration returns the length of the buffer in time.
func (m Mono) Duration() Seconds {
	return Seconds(float64(len(m.Samples)) / float64(m.Rate))
}

// Sampler can synthesize a signal for a given time.
type Sampler interface {
	// Sample returns samples during the provided time stretch at the given sample rate.
	Sample(t TimeStretch, rate Hz) (Float64Slice, error)
}

// Tone is a sine at a fixed frequency.
type Tone struct {
	// Frequency is the frequency of the tone.
	Frequency Hz
	// Amplitude is the peak amplitude of the tone.
	Amplitude float64
	// Phase is the phase offset in radians.
	Phase float64
}

// Sample samples this tone during the provided time stretch, at the provided rate.
func (t Tone) Sample(ts TimeStretch, rate Hz) (Float64Slice, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("invalid rate %v", rate)
	}
	result := make(Float64Slice, ts.NumSamples(rate))
	period := float64(rate.Period())
	for idx := range result {
		at := float64(ts.FromInclusive) + float64(idx)*period
		result[idx] = t.Amplitude * math.Sin(2*math.Pi*float64(t.Frequency)*at+t.Phase)
	}
	return result, nil
}

// Noise is gaussian white noise.
type Noise struct {
	// Deviation is the standard deviation of the noise.
	Deviation float64
	// Seed is the random seed for this source.
	Seed int64
}

// Sample samples this noise during the provided time stretch, at the provided rate.
func (n Noise) Sample(ts TimeStretch, rate Hz) (Float64Slice, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("invalid rate %v", rate)
	}
	r := rand.New(rand.NewSource(n.Seed))
	result := make(Float64Slice, ts.NumSamples(rate))
	for idx := range result {
		result[idx] = r.NormFloat64() * n.Deviation
	}
	return result, nil
}

// Superposition is a superposition of samplers.
type Superposition []Sampler

// Sample returns the sum of all samplers.
func (s Superposition) Sample(ts TimeStretch, rate Hz) (Float64Slice, error) {
	var result Float64Slice
	for samplerIdx, sampler := range s {
		sampled, err := sampler.Sample(ts, rate)
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = sampled
			continue
		}
		if len(result) != len(sampled) {
			return nil, fmt.Errorf("sampler %v of %+v returned %v samples, wanted %v", samplerIdx, s, len(sampled), len(result))
		}
		floats.Add(result, sampled)
	}
	return result, nil
}

// SamplerWrapper encodes a sampler by containing the type of sampler as a string
// along with the parameters of the underlying sampler type.
type SamplerWrapper struct {
	Type   string
	Params interface{}
}

var (
	typeMap = map[string]reflect.Type{
		reflect.TypeOf(Tone{}).Name():  reflect.TypeOf(Tone{}),
		reflect.TypeOf(Noise{}).Name(): reflect.TypeOf(Noise{}),
	}
)

func reencode(params interface{}, dst interface{}) error {
	b, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// Sampler returns the sampler wrapped in the SamplerWrapper.
func (s *SamplerWrapper) Sampler() (Sampler, error) {
	if s.Type == reflect.TypeOf(Superposition{}).Name() {
		content := []SamplerWrapper{}
		if err := reencode(s.Params, &content); err != nil {
			return nil, fmt.Errorf("unable to decode %+v as []SamplerWrapper: %v", s.Params, err)
		}
		super := Superposition{}
		for _, wrapper := range content {
			sampler, err := wrapper.Sampler()
			if err != nil {
				return nil, err
			}
			super = append(super, sampler)
		}
		return super, nil
	}
	template, found := typeMap[s.Type]
	if !found {
		return nil, fmt.Errorf("unknown sampler type %q", s.Type)
	}
	val := reflect.New(template)
	if err := reencode(s.Params, val.Interface()); err != nil {
		return nil, fmt.Errorf("unable to decode %+v as %q: %v", s.Params, s.Type, err)
	}
	return val.Elem().Interface().(Sampler), nil
}

// ParseSampler parses a JSON encoded SamplerWrapper and returns its Sampler.
func ParseSampler(spec string) (Sampler, error) {
	js := &SamplerWrapper{}
	if err := json.Unmarshal([]byte(spec), js); err != nil {
		return nil, err
	}
	return js.Sampler()
}
