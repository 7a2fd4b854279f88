/* The notegate command decomposes audio into note bands, removes background
 * noise from the bands, and recomposes them.
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
	"path/filepath"
	"sort"

	"github.com/alecthomas/kong"
	"github.com/cheggaaa/pb"
	"github.com/google-research/notegate/tools/bands"
	"github.com/google-research/notegate/tools/cancel"
	"github.com/google-research/notegate/tools/decompose"
	"github.com/google-research/notegate/tools/envelope"
	"github.com/google-research/notegate/tools/filter"
	"github.com/google-research/notegate/tools/gate"
	"github.com/google-research/notegate/tools/notes"
	"github.com/google-research/notegate/tools/recompose"
	"github.com/google-research/notegate/tools/store"
	"github.com/google-research/notegate/tools/synthesize/signals"
	"github.com/sirupsen/logrus"
)

type env struct {
	log   *logrus.Logger
	quiet bool
}

// progress returns a function to call once per finished step and a function
// to call when all steps are done.
func (e *env) progress(prefix string, total int) (func(), func()) {
	if e.quiet {
		return func() {}, func() {}
	}
	bar := pb.New(total).Prefix(prefix)
	bar.Output = os.Stderr
	bar.Start()
	return func() { bar.Increment() }, bar.Finish
}

func readWAV(path string, channel string) (*signals.Mono, error) {
	ch, err := signals.ParseChannel(channel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", notes.ErrConfiguration, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	mono, err := signals.ReadWAV(f, ch)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	return mono, nil
}

func writeWAV(path string, mono *signals.Mono) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	if err := mono.WriteWAV(f); err != nil {
		return fmt.Errorf("writing %q: %w", path, err)
	}
	return nil
}

// containerRange returns the smallest octave range containing every band of c.
func containerRange(c *bands.Container) (notes.OctaveRange, error) {
	if len(c.Bands) == 0 {
		return notes.OctaveRange{}, fmt.Errorf("%w: container has no bands", notes.ErrConfiguration)
	}
	result := notes.OctaveRange{From: c.Bands[0].Note.Octave, To: c.Bands[0].Note.Octave + 1}
	for _, band := range c.Bands {
		if band.Note.Octave < result.From {
			result.From = band.Note.Octave
		}
		if band.Note.Octave >= result.To {
			result.To = band.Note.Octave + 1
		}
	}
	return result, nil
}

type transformFlags struct {
	Width       float64 `help:"Gaussian window standard deviation as a fraction of the bin distance to the previous semitone." default:"0.5"`
	Concurrency int     `help:"Max number of notes processed in parallel, 0 for one per CPU." default:"0"`
	Channel     string  `help:"How stereo input is reduced to mono." enum:"mean,left,right" default:"mean"`
}

type decomposeFlags struct {
	transformFlags `embed:""`
	Octaves        string `help:"Octave range as from,to with to exclusive." default:"2,6"`
}

func (d decomposeFlags) params(e *env, saveType int) (decompose.Params, error) {
	rng, err := notes.ParseOctaveRange(d.Octaves)
	if err != nil {
		return decompose.Params{}, err
	}
	return decompose.Params{
		Octaves:     rng,
		Width:       d.Width,
		SaveType:    bands.SaveType(saveType),
		Concurrency: d.Concurrency,
		Log:          e.log,
	}, nil
}

func (d transformFlags) decompose(e *env, path string, params decompose.Params) (*bands.Container, error) {
	mono, err := readWAV(path, d.Channel)
	if err != nil {
		return nil, err
	}
	increment, finish := e.progress(fmt.Sprintf("Decomposing %v ", filepath.Base(path)), len(params.Octaves.Notes()))
	params.Progress = increment
	params.Log = e.log.WithField("file", path)
	c, err := decompose.Decompose(mono, params)
	finish()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// decomposeBackground decomposes a background recording over the octaves of
// a foreground container.
func (d transformFlags) decomposeBackground(e *env, path string, foreground *bands.Container) (*bands.Container, error) {
	rng, err := containerRange(foreground)
	if err != nil {
		return nil, err
	}
	return d.decompose(e, path, decompose.Params{
		Octaves:     rng,
		Width:       d.Width,
		SaveType:    bands.TimeDomain,
		Concurrency: d.Concurrency,
	})
}

func writeBands(e *env, path string, c *bands.Container) error {
	if err := store.Write(path, c); err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{
		"file":      path,
		"bands":     len(c.Bands),
		"save_type": c.Meta.SaveType,
	}).Info("Wrote bands")
	return nil
}

type decomposeCmd struct {
	decomposeFlags `embed:""`
	SaveType       int    `help:"0 stores time domain samples, 1 stores spectrum bins." default:"0"`
	Input          string `arg:"" type:"existingfile" help:"WAV file to decompose."`
	Output         string `arg:"" type:"path" help:"Bands file to write."`
}

func (d *decomposeCmd) Run(e *env) error {
	params, err := d.params(e, d.SaveType)
	if err != nil {
		return err
	}
	c, err := d.decompose(e, d.Input, params)
	if err != nil {
		return err
	}
	return writeBands(e, d.Output, c)
}

type recomposeCmd struct {
	Divisor float64 `help:"Divisor of the sum of all bands, 0 for the number of bands." default:"0"`
	Input   string  `arg:"" type:"existingfile" help:"Bands file to recompose."`
	Output  string  `arg:"" type:"path" help:"WAV file to write."`
}

func (r *recomposeCmd) Run(e *env) error {
	c, err := store.Read(r.Input)
	if err != nil {
		return err
	}
	mono, err := recompose.Combine(c, recompose.Params{Divisor: r.Divisor})
	if err != nil {
		return err
	}
	if err := writeWAV(r.Output, mono); err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{"file": r.Output, "bands": len(c.Bands)}).Info("Recomposed bands")
	return nil
}

type splitCmd struct {
	Input string `arg:"" type:"existingfile" help:"Bands file to split."`
	Dir   string `arg:"" type:"path" help:"Directory to write one <note key>.wav per band to."`
}

func (s *splitCmd) Run(e *env) error {
	c, err := store.Read(s.Input)
	if err != nil {
		return err
	}
	split, err := recompose.Split(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return err
	}
	keys := make([]string, 0, len(split))
	for key := range split {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		path := filepath.Join(s.Dir, key+".wav")
		if err := writeWAV(path, split[key]); err != nil {
			return err
		}
		e.log.WithFields(logrus.Fields{"file": path, "note": key}).Debug("Wrote band")
	}
	e.log.WithFields(logrus.Fields{"file": s.Dir, "bands": len(keys)}).Info("Split bands")
	return nil
}

type thresholdFlags struct {
	Level    float64 `help:"Absolute level, or fraction of the band max with --relative, a sample must exceed to open the gate." required:""`
	Spread   int     `help:"Samples the gate stays open after a sample exceeds the level." default:"1000"`
	Hist     int     `help:"Samples the gate opens before a sample exceeds the level." default:"0"`
	Relative bool    `help:"Divide each band by its max absolute value before gating."`
}

func (t thresholdFlags) params(e *env) gate.ThresholdParams {
	return gate.ThresholdParams{
		Level:    t.Level,
		Spread:   t.Spread,
		Hist:     t.Hist,
		Relative: t.Relative,
		Log:      e.log,
	}
}

type gateCmd struct {
	thresholdFlags `embed:""`
	Input          string `arg:"" type:"existingfile" help:"Bands file to gate."`
	Output         string `arg:"" type:"path" help:"Bands file to write."`
}

func (g *gateCmd) Run(e *env) error {
	c, err := store.Read(g.Input)
	if err != nil {
		return err
	}
	gated, err := gate.ThresholdContainer(c, g.params(e))
	if err != nil {
		return err
	}
	return writeBands(e, g.Output, gated)
}

type sigmaCmd struct {
	transformFlags `embed:""`
	Multiplier     float64 `help:"Standard deviations above the background mean a band envelope must exceed." default:"2"`
	Spread         int     `help:"Envelope window length in samples." default:"1000"`
	Detect         string  `help:"Envelope volume measurement." enum:"peak,rms" default:"peak"`
	Input          string  `arg:"" type:"existingfile" help:"Bands file to gate."`
	Background     string  `arg:"" type:"existingfile" help:"WAV file with only background noise."`
	Output         string  `arg:"" type:"path" help:"Bands file to write."`
}

func (s *sigmaCmd) Run(e *env) error {
	detect, err := envelope.ParseDetectType(s.Detect)
	if err != nil {
		return err
	}
	c, err := store.Read(s.Input)
	if err != nil {
		return err
	}
	background, err := s.decomposeBackground(e, s.Background, c)
	if err != nil {
		return err
	}
	sigma, err := gate.CalibrateContainer(background, gate.SigmaParams{
		Spread: s.Spread,
		Detect: detect,
		Log:    e.log,
	})
	if err != nil {
		return err
	}
	for _, key := range sigma.Profile().Keys() {
		stats, _ := sigma.Stats(key)
		e.log.WithFields(logrus.Fields{"note": key, "mean": stats.Mean, "stddev": stats.StdDev}).Debug("Calibrated")
	}
	gated, err := sigma.GateContainer(c, s.Multiplier)
	if err != nil {
		return err
	}
	return writeBands(e, s.Output, gated)
}

type cancelCmd struct {
	transformFlags `embed:""`
	Taps           int     `help:"Adaptive filter taps." default:"4"`
	Step           float64 `help:"Adaptive filter step size." default:"0.1"`
	Leakage        float64 `help:"Adaptive filter leakage." default:"0"`
	Epsilon        float64 `help:"Adaptive filter regularization." default:"0.001"`
	Spread         int     `help:"Envelope window length in samples, 0 to adapt to each note." default:"0"`
	Detect         string  `help:"Envelope volume measurement." enum:"peak,rms" default:"peak"`
	Floor          float64 `help:"Envelope value at or below which output is silenced." default:"1e-9"`
	DelayPadding   bool    `help:"Delay the foreground by taps-1 windows instead of rotating the noise estimate."`
	Input          string  `arg:"" type:"existingfile" help:"Bands file to clean."`
	Background     string  `arg:"" type:"existingfile" help:"WAV file with only background noise."`
	Output         string  `arg:"" type:"path" help:"Bands file to write."`
}

func (c *cancelCmd) Run(e *env) error {
	detect, err := envelope.ParseDetectType(c.Detect)
	if err != nil {
		return err
	}
	foreground, err := store.Read(c.Input)
	if err != nil {
		return err
	}
	background, err := c.decomposeBackground(e, c.Background, foreground)
	if err != nil {
		return err
	}
	canceller, err := cancel.NewFromContainer(background, cancel.Params{
		Envelope: envelope.Params{Spread: c.Spread, Detect: detect},
		NLMS: filter.NLMSConf{
			Taps:     c.Taps,
			StepSize: c.Step,
			Leakage:  c.Leakage,
			Epsilon:  c.Epsilon,
		},
		Floor:        c.Floor,
		DelayPadding: c.DelayPadding,
		Concurrency:  c.Concurrency,
		Log:          e.log,
	})
	if err != nil {
		return err
	}
	cleaned, err := canceller.CancelContainer(foreground)
	if err != nil {
		return err
	}
	return writeBands(e, c.Output, cleaned)
}

type pipelineCmd struct {
	decomposeFlags `embed:""`
	thresholdFlags `embed:""`
	SaveType       int     `help:"0 keeps time domain samples, 1 keeps spectrum bins." default:"0"`
	Divisor        float64 `help:"Divisor of the sum of all bands, 0 for the number of bands." default:"0"`
	Bands          string  `help:"Also write the gated bands to this file." type:"path"`
	Input          string  `arg:"" type:"existingfile" help:"WAV file to clean."`
	Output         string  `arg:"" type:"path" help:"WAV file to write."`
}

func (p *pipelineCmd) Run(e *env) error {
	params, err := p.decomposeFlags.params(e, p.SaveType)
	if err != nil {
		return err
	}
	c, err := p.decompose(e, p.Input, params)
	if err != nil {
		return err
	}
	gated, err := gate.ThresholdContainer(c, p.thresholdFlags.params(e))
	if err != nil {
		return err
	}
	if p.Bands != "" {
		if err := writeBands(e, p.Bands, gated); err != nil {
			return err
		}
	}
	mono, err := recompose.Combine(gated, recompose.Params{Divisor: p.Divisor})
	if err != nil {
		return err
	}
	if err := writeWAV(p.Output, mono); err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{"file": p.Output, "bands": len(gated.Bands)}).Info("Wrote gated audio")
	return nil
}

type inspectCmd struct {
	Input string `arg:"" type:"existingfile" help:"Bands file to describe."`
}

func (i *inspectCmd) Run(e *env) error {
	c, err := store.Read(i.Input)
	if err != nil {
		return err
	}
	w := os.Stdout
	printTitle(w, filepath.Base(i.Input))
	printKeyValue(w, "Save type", c.Meta.SaveType)
	printKeyValue(w, "Sample rate", c.Meta.SampleRate)
	printKeyValue(w, "Samples", c.Meta.OriginalLength)
	printKeyValue(w, "Spectrum bins", c.Meta.SpectrumLength)
	printKeyValue(w, "Bands", len(c.Bands))
	if c.Exhausted != nil {
		printKeyValue(w, "Exhausted at", c.Exhausted.Key())
	}
	fmt.Fprintln(w)
	for idx := range c.Bands {
		samples, err := c.Real(&c.Bands[idx])
		if err != nil {
			return err
		}
		printKeyValue(w, c.Bands[idx].Note.Key(), fmt.Sprintf("%.4g", samples.Energy()))
	}
	return nil
}

type cli struct {
	LogLevel string `help:"Log level." enum:"debug,info,warn,error" default:"info"`
	Quiet    bool   `short:"q" help:"Don't show progress bars."`

	Decompose decomposeCmd `cmd:"" help:"Decompose a WAV file into note bands."`
	Recompose recomposeCmd `cmd:"" help:"Sum note bands into a WAV file."`
	Split     splitCmd     `cmd:"" help:"Write every note band as a separate WAV file."`
	Gate      gateCmd      `cmd:"" help:"Threshold gate every note band."`
	Sigma     sigmaCmd     `cmd:"" help:"Gate every note band at a level calibrated against a background recording."`
	Cancel    cancelCmd    `cmd:"" help:"Adaptively cancel a background recording from every note band."`
	Pipeline  pipelineCmd  `cmd:"" help:"Decompose, threshold gate and recompose a WAV file."`
	Inspect   inspectCmd   `cmd:"" help:"Describe a note bands file."`
}

func main() {
	args := &cli{}
	ctx := kong.Parse(args,
		kong.Name("notegate"),
		kong.Description("Note band decomposition and noise gating."),
		kong.UsageOnError(),
	)
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(args.LogLevel)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	log.SetLevel(level)
	if err := ctx.Run(&env{log: log, quiet: args.Quiet}); err != nil {
		printError(err)
		os.Exit(1)
	}
}
