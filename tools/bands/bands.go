/* bands contains the container of per note bands produced by decomposition.
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
package bands

import (
	"fmt"

	"github.com/google-research/notegate/tools/notes"
	"github.com/google-research/notegate/tools/spectrum"
	"github.com/google-research/notegate/tools/synthesize/signals"
)

// MetaKey is the reserved key holding the container metadata in persisted tables.
const MetaKey = "meta"

// SaveType defines the domain bands are stored in.
type SaveType int

const (
	// TimeDomain bands hold real samples.
	TimeDomain SaveType = 0
	// FrequencyDomain bands hold real spectrum bins.
	FrequencyDomain SaveType = 1
)

func (s SaveType) String() string {
	switch s {
	case TimeDomain:
		return "TimeDomain"
	case FrequencyDomain:
		return "FrequencyDomain"
	}
	return fmt.Sprintf("SaveType(%d)", int(s))
}

// Validate returns an error unless the save type is known.
func (s SaveType) Validate() error {
	if s != TimeDomain && s != FrequencyDomain {
		return fmt.Errorf("%w: unknown save type %d", notes.ErrConfiguration, int(s))
	}
	return nil
}

// Meta is the metadata shared by all bands of a container.
type Meta struct {
	SaveType       SaveType
	SampleRate     int
	OriginalLength int
	SpectrumLength int
}

// Band is the part of a signal belonging to one note.
type Band struct {
	Note notes.Note
	// Samples is set for TimeDomain bands.
	Samples signals.Float64Slice
	// Bins is set for FrequencyDomain bands.
	Bins []complex128
}

// Container holds the bands of one decomposed signal, in ascending note order.
type Container struct {
	Meta  Meta
	Bands []Band
	// Exhausted is the first note that couldn't be resolved in the spectrum, if
	// decomposition stopped before the end of the requested range.
	Exhausted *notes.Note
}

// Keys returns the note keys of all bands.
func (c *Container) Keys() []string {
	result := make([]string, len(c.Bands))
	for idx := range c.Bands {
		result[idx] = c.Bands[idx].Note.Key()
	}
	return result
}

// Band returns the band with the given key.
func (c *Container) Band(key string) (*Band, error) {
	for idx := range c.Bands {
		if c.Bands[idx].Note.Key() == key {
			return &c.Bands[idx], nil
		}
	}
	return nil, fmt.Errorf("%w: no band %q in container", notes.ErrLookup, key)
}

// Real returns the time domain samples of the band, inverse transforming
// FrequencyDomain bands. The returned slice must not be modified.
func (c *Container) Real(b *Band) (signals.Float64Slice, error) {
	switch c.Meta.SaveType {
	case TimeDomain:
		if len(b.Samples) != c.Meta.OriginalLength {
			return nil, fmt.Errorf("band %v has %v samples, wanted %v", b.Note, len(b.Samples), c.Meta.OriginalLength)
		}
		return b.Samples, nil
	case FrequencyDomain:
		return spectrum.Inverse(b.Bins, c.Meta.OriginalLength)
	}
	return nil, c.Meta.SaveType.Validate()
}

// Derive returns an empty container with the same metadata, for stages that
// write new bands instead of mutating their input.
func (c *Container) Derive() *Container {
	derived := &Container{
		Meta: c.Meta,
	}
	if c.Exhausted != nil {
		exhausted := *c.Exhausted
		derived.Exhausted = &exhausted
	}
	return derived
}

// AddReal appends a band from time domain samples, transforming them if the
// container stores FrequencyDomain bands.
func (c *Container) AddReal(note notes.Note, samples signals.Float64Slice) error {
	if len(samples) != c.Meta.OriginalLength {
		return fmt.Errorf("band %v has %v samples, wanted %v", note, len(samples), c.Meta.OriginalLength)
	}
	switch c.Meta.SaveType {
	case TimeDomain:
		c.Bands = append(c.Bands, Band{Note: note, Samples: samples})
		return nil
	case FrequencyDomain:
		spec, err := spectrum.Compute(samples, signals.Hz(c.Meta.SampleRate))
		if err != nil {
			return err
		}
		c.Bands = append(c.Bands, Band{Note: note, Bins: spec.Coeffs})
		return nil
	}
	return c.Meta.SaveType.Validate()
}

// Validate checks that the metadata is consistent with the bands.
func (c *Container) Validate() error {
	if err := c.Meta.SaveType.Validate(); err != nil {
		return err
	}
	if c.Meta.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %v", notes.ErrConfiguration, c.Meta.SampleRate)
	}
	if c.Meta.SpectrumLength != spectrum.BinLen(c.Meta.OriginalLength) {
		return fmt.Errorf("%w: spectrum length %v doesn't match original length %v", notes.ErrConfiguration, c.Meta.SpectrumLength, c.Meta.OriginalLength)
	}
	seen := map[string]bool{}
	for idx := range c.Bands {
		band := &c.Bands[idx]
		key := band.Note.Key()
		if seen[key] {
			return fmt.Errorf("duplicate band %q", key)
		}
		seen[key] = true
		switch c.Meta.SaveType {
		case TimeDomain:
			if len(band.Samples) != c.Meta.OriginalLength {
				return fmt.Errorf("band %q has %v samples, wanted %v", key, len(band.Samples), c.Meta.OriginalLength)
			}
		case FrequencyDomain:
			if len(band.Bins) != c.Meta.SpectrumLength {
				return fmt.Errorf("band %q has %v bins, wanted %v", key, len(band.Bins), c.Meta.SpectrumLength)
			}
		}
	}
	return nil
}
