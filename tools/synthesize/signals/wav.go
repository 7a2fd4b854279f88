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
package signals

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/youpy/go-wav"
)

// Channel selects how multi channel audio is reduced to mono.
type Channel int

const (
	// Mean averages all channels.
	Mean Channel = iota
	// Left keeps only the first channel.
	Left
	// Right keeps only the second channel.
	Right
)

func (c Channel) String() string {
	switch c {
	case Mean:
		return "mean"
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return "unknown"
}

// ParseChannel parses "mean", "left" or "right".
func ParseChannel(s string) (Channel, error) {
	for _, c := range []Channel{Mean, Left, Right} {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown channel selection %q, must be mean, left or right", s)
}

// WAVSource is what the WAV decoder needs to read a file.
type WAVSource interface {
	io.Reader
	io.ReaderAt
}

// ReadWAV decodes a WAV stream and reduces it to mono using the channel selection.
// Mono streams are returned as is regardless of the selection.
func ReadWAV(r WAVSource, channel Channel) (*Mono, error) {
	reader := wav.NewReader(r)
	format, err := reader.Format()
	if err != nil {
		return nil, err
	}
	numChannels := int(format.NumChannels)
	if numChannels < 1 {
		return nil, fmt.Errorf("WAV stream has %v channels", numChannels)
	}
	// The decoder exposes at most two channels per sample.
	if numChannels > 2 {
		numChannels = 2
	}
	if numChannels == 2 && channel != Mean && channel != Left && channel != Right {
		return nil, fmt.Errorf("unknown channel selection %v", channel)
	}
	if format.BitsPerSample < 1 {
		return nil, fmt.Errorf("WAV stream has %v bits per sample", format.BitsPerSample)
	}
	fullScale := float64(int(1) << (format.BitsPerSample - 1))
	value := func(sample wav.Sample, ch uint) float64 {
		return float64(reader.IntValue(sample, ch)) / fullScale
	}
	result := &Mono{Rate: Hz(format.SampleRate)}
	for {
		samples, err := reader.ReadSamples()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		for _, sample := range samples {
			switch {
			case numChannels == 1:
				result.Samples = append(result.Samples, value(sample, 0))
			case channel == Left:
				result.Samples = append(result.Samples, value(sample, 0))
			case channel == Right:
				result.Samples = append(result.Samples, value(sample, 1))
			default:
				result.Samples = append(result.Samples, 0.5*(value(sample, 0)+value(sample, 1)))
			}
		}
	}
	return result, nil
}

// WriteWAV writes the buffer as a mono 16 bit WAV stream. Values outside
// [-1, 1] are clipped.
func (m *Mono) WriteWAV(w io.Writer) error {
	wavSamples := make([]wav.Sample, len(m.Samples))
	for idx, v := range m.Samples {
		v = math.Max(-1, math.Min(1, v))
		wavSamples[idx] = wav.Sample{
			Values: [2]int{int(v * float64(math.MaxInt16))},
		}
	}
	buf := &bytes.Buffer{}
	wavWriter := wav.NewWriter(buf, uint32(len(m.Samples)), 1, uint32(m.Rate), 16)
	if err := wavWriter.WriteSamples(wavSamples); err != nil {
		return err
	}
	_, err := io.Copy(w, buf)
	return err
}

// WriteStereoWAV writes left and right as a 16 bit stereo WAV stream.
func WriteStereoWAV(w io.Writer, left, right Float64Slice, rate Hz) error {
	if len(left) != len(right) {
		return fmt.Errorf("left has %v samples and right has %v", len(left), len(right))
	}
	wavSamples := make([]wav.Sample, len(left))
	for idx := range left {
		l := math.Max(-1, math.Min(1, left[idx]))
		r := math.Max(-1, math.Min(1, right[idx]))
		wavSamples[idx] = wav.Sample{
			Values: [2]int{int(l * float64(math.MaxInt16)), int(r * float64(math.MaxInt16))},
		}
	}
	buf := &bytes.Buffer{}
	wavWriter := wav.NewWriter(buf, uint32(len(left)), 2, uint32(rate), 16)
	if err := wavWriter.WriteSamples(wavSamples); err != nil {
		return err
	}
	_, err := io.Copy(w, buf)
	return err
}
