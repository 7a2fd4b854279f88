/* leaktest stress tests the workerpool by decomposing and gating a noisy
 * signal many times over, to make it simpler to see if there's a memory leak.
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
	"runtime"

	"github.com/alecthomas/kong"
	"github.com/cheggaaa/pb"
	"github.com/google-research/notegate/tools/decompose"
	"github.com/google-research/notegate/tools/gate"
	"github.com/google-research/notegate/tools/synthesize/signals"
	"github.com/google-research/notegate/tools/workerpool"
	"github.com/sirupsen/logrus"
)

type cli struct {
	Jobs        int     `help:"Number of decompositions to run." default:"1000"`
	Concurrency int     `help:"Number of decompositions to run in parallel, 0 for one per CPU." default:"0"`
	Duration    float64 `help:"Seconds of signal to decompose per job." default:"1"`
}

func main() {
	args := &cli{}
	kong.Parse(args, kong.Name("leaktest"))
	log := logrus.New()

	mono := &signals.Mono{Rate: 16000}
	var err error
	if mono.Samples, err = (signals.Superposition{
		signals.Tone{Frequency: 440, Amplitude: 0.3},
		signals.Noise{Deviation: 0.1},
	}).Sample(signals.TimeStretch{FromInclusive: 0, ToExclusive: signals.Seconds(args.Duration)}, mono.Rate); err != nil {
		log.Fatal(err)
	}
	params := decompose.DefaultParams()
	params.Concurrency = 1
	params.Log = logrus.NewEntry(log).WithField("job", "leaktest")
	log.SetLevel(logrus.WarnLevel)

	concurrency := args.Concurrency
	if concurrency == 0 {
		concurrency = runtime.NumCPU()
	}
	wp := workerpool.New(concurrency)
	bar := pb.StartNew(args.Jobs).Prefix("Running")
	for i := 0; i < args.Jobs; i++ {
		wp.Go(func() error {
			c, err := decompose.Decompose(mono, params)
			if err != nil {
				return err
			}
			if _, err := gate.ThresholdContainer(c, gate.ThresholdParams{Level: 0.5, Spread: 1000, Relative: true}); err != nil {
				return err
			}
			bar.Increment()
			return nil
		})
	}
	if err := wp.Wait(); err != nil {
		log.Fatal(err)
	}
	bar.Finish()
}
