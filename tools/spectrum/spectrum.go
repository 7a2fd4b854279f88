/* spectrum contains the real input transforms used to split signals into bands.
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
package spectrum

import (
	"fmt"
	"math/cmplx"
	"sort"

	"github.com/google-research/notegate/tools/synthesize/signals"
	"github.com/mjibson/go-dsp/fft"
)

// S is the non negative frequency half of the spectrum of a real signal.
type S struct {
	// Coeffs holds the bins from DC up to and including Nyquist, len(buffer)/2+1 of them.
	Coeffs []complex128
	// Frequencies holds the center frequency of each bin.
	Frequencies []signals.Hz
	// BinWidth is the frequency distance between bins.
	BinWidth signals.Hz
	// Rate is the sample rate of the transformed signal.
	Rate signals.Hz
	// Length is the number of samples in the transformed signal.
	Length int
}

// BinLen returns the number of bins in the real spectrum of a signal of the given length.
func BinLen(length int) int {
	return length/2 + 1
}

// Frequencies returns the center frequency of each real spectrum bin of a
// signal with the given length and rate.
func Frequencies(length int, rate signals.Hz) []signals.Hz {
	binWidth := rate / signals.Hz(length)
	result := make([]signals.Hz, BinLen(length))
	for bin := range result {
		result[bin] = signals.Hz(bin) * binWidth
	}
	return result
}

// Compute transforms the buffer and returns its real spectrum.
func Compute(buffer signals.Float64Slice, rate signals.Hz) (*S, error) {
	if len(buffer) == 0 {
		return nil, fmt.Errorf("can't compute the spectrum of an empty buffer")
	}
	coeffs := fft.FFTReal(buffer)
	return &S{
		Coeffs:      coeffs[:BinLen(len(buffer))],
		Frequencies: Frequencies(len(buffer), rate),
		BinWidth:    rate / signals.Hz(len(buffer)),
		Rate:        rate,
		Length:      len(buffer),
	}, nil
}

// NearestBin returns the index of the bin whose frequency is closest to f.
// Ties resolve to the lower bin.
func (s *S) NearestBin(f signals.Hz) int {
	return NearestBin(s.Frequencies, f)
}

// NearestBin returns the index in the ascending frequencies closest to f.
func NearestBin(frequencies []signals.Hz, f signals.Hz) int {
	idx := sort.Search(len(frequencies), func(i int) bool {
		return frequencies[i] >= f
	})
	if idx == len(frequencies) {
		return len(frequencies) - 1
	}
	if idx > 0 && f-frequencies[idx-1] <= frequencies[idx]-f {
		return idx - 1
	}
	return idx
}

// Gains returns the amplitude of a sine that would produce each bin.
func (s *S) Gains() []float64 {
	invBuffer := 1.0 / float64(s.Length)
	res := make([]float64, len(s.Coeffs))
	for idx := range s.Coeffs {
		res[idx] = cmplx.Abs(s.Coeffs[idx]) * invBuffer * 2
	}
	return res
}

// Inverse returns the real signal of the given length whose real spectrum is coeffs.
func Inverse(coeffs []complex128, length int) (signals.Float64Slice, error) {
	if len(coeffs) != BinLen(length) {
		return nil, fmt.Errorf("%v bins can't describe a signal of %v samples, wanted %v bins", len(coeffs), length, BinLen(length))
	}
	full := make([]complex128, length)
	copy(full, coeffs)
	for bin := 1; bin < len(coeffs); bin++ {
		if mirror := length - bin; mirror >= len(coeffs) {
			full[mirror] = cmplx.Conj(coeffs[bin])
		}
	}
	samples := fft.IFFT(full)
	result := make(signals.Float64Slice, length)
	for idx := range samples {
		result[idx] = real(samples[idx])
	}
	return result, nil
}
