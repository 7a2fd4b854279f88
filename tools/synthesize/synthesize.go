/* The synthesize command synthesizes audio signals according to provided specs.
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
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/google-research/notegate/tools/notes"
	"github.com/google-research/notegate/tools/synthesize/signals"
	"github.com/sirupsen/logrus"
)

type cli struct {
	SignalSpec  string   `help:"The signal to synthesize, given as a SamplerWrapper JSON."`
	Notes       []string `help:"Note keys, like 4-A, to add as tones."`
	Amplitude   float64  `help:"Peak amplitude of every note tone." default:"0.25"`
	Noise       float64  `help:"Standard deviation of white noise to add." default:"0"`
	Seed        int64    `help:"Random seed of the white noise." default:"0"`
	SampleRate  float64  `help:"Sample rate to use when synthesizing." default:"48000"`
	Duration    float64  `help:"Number of seconds to synthesize." default:"1"`
	Destination string   `arg:"" type:"path" help:"WAV file to store the synthesized buffer in."`
}

// sampler combines the JSON signal spec with the note tones and noise.
func (c *cli) sampler() (signals.Sampler, error) {
	result := signals.Superposition{}
	if c.SignalSpec != "" {
		parsed, err := signals.ParseSampler(c.SignalSpec)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", notes.ErrConfiguration, err)
		}
		result = append(result, parsed)
	}
	for _, key := range c.Notes {
		note, err := notes.ParseKey(key)
		if err != nil {
			return nil, err
		}
		result = append(result, signals.Tone{Frequency: note.Frequency(), Amplitude: c.Amplitude})
	}
	if c.Noise > 0 {
		result = append(result, signals.Noise{Deviation: c.Noise, Seed: c.Seed})
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: no signal spec, notes or noise given", notes.ErrConfiguration)
	}
	return result, nil
}

func (c *cli) Run(log *logrus.Logger) (err error) {
	signal, err := c.sampler()
	if err != nil {
		return err
	}
	rate := signals.Hz(c.SampleRate)
	samples, err := signal.Sample(signals.TimeStretch{FromInclusive: 0, ToExclusive: signals.Seconds(c.Duration)}, rate)
	if err != nil {
		return err
	}
	writer, err := os.Create(c.Destination)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := writer.Close(); err == nil {
			err = closeErr
		}
	}()
	if err := (&signals.Mono{Samples: samples, Rate: rate}).WriteWAV(writer); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"file":    c.Destination,
		"samples": len(samples),
		"max":     samples.AbsMax(),
	}).Info("Synthesized")
	return nil
}

func main() {
	args := &cli{}
	kong.Parse(args,
		kong.Name("synthesize"),
		kong.Description("Synthesize test signals as WAV files."),
		kong.UsageOnError(),
	)
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if err := args.Run(log); err != nil {
		log.Fatal(err)
	}
}
