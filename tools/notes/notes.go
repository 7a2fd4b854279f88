/* notes maps between equal tempered note identities and frequencies.
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
package notes

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google-research/notegate/tools/synthesize/signals"
)

const (
	// PitchClasses is the number of semitones in an octave.
	PitchClasses = 12
	// ReferenceFrequency is the frequency of A4.
	ReferenceFrequency signals.Hz = 440
	// ReferenceOctave is the octave of the reference note.
	ReferenceOctave = 4
	// ReferencePitchClass is the pitch class of the reference note (A).
	ReferencePitchClass = 9
)

var (
	// ErrConfiguration is wrapped by every error caused by invalid parameters,
	// such as an unknown save type or detect type, or an empty octave range.
	ErrConfiguration = errors.New("configuration error")
	// ErrLookup is wrapped by every error caused by a note key missing from a
	// container or a calibrated profile.
	ErrLookup = errors.New("lookup error")
)

// Names holds the pitch class names. Octaves start at C, so pitch class 0 is C
// and A is pitch class 9.
var Names = [PitchClasses]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Note identifies a note in 12 tone equal temperament.
type Note struct {
	Octave     int
	PitchClass int
}

// Name returns the pitch class name of the note.
func (n Note) Name() string {
	return Names[n.PitchClass]
}

// Key returns the "<octave>-<name>" identifier used to address the band of the note.
func (n Note) Key() string {
	return strconv.Itoa(n.Octave) + "-" + n.Name()
}

func (n Note) String() string {
	return n.Key()
}

// semitone returns the number of semitones from C0.
func (n Note) semitone() int {
	return PitchClasses*n.Octave + n.PitchClass
}

func fromSemitone(s int) Note {
	octave := int(math.Floor(float64(s) / PitchClasses))
	return Note{Octave: octave, PitchClass: s - octave*PitchClasses}
}

// Previous returns the note one semitone below.
func (n Note) Previous() Note {
	return fromSemitone(n.semitone() - 1)
}

// Next returns the note one semitone above.
func (n Note) Next() Note {
	return fromSemitone(n.semitone() + 1)
}

// Less returns whether n is lower than o.
func (n Note) Less(o Note) bool {
	return n.semitone() < o.semitone()
}

// Frequency returns the frequency of the note, relative to A4 at 440Hz.
func (n Note) Frequency() signals.Hz {
	return ToFrequency(n.Octave, n.PitchClass)
}

// ToFrequency returns the frequency of the pitch class in the octave.
func ToFrequency(octave, pitchClass int) signals.Hz {
	offset := PitchClasses*(octave-ReferenceOctave) + pitchClass - ReferencePitchClass
	return ReferenceFrequency * signals.Hz(math.Pow(2, float64(offset)/PitchClasses))
}

// FromFrequency returns the note nearest to f.
func FromFrequency(f signals.Hz) Note {
	offset := int(math.Round(PitchClasses * math.Log2(float64(f/ReferenceFrequency))))
	return fromSemitone(PitchClasses*ReferenceOctave + ReferencePitchClass + offset)
}

// ParseKey parses a "<octave>-<name>" key.
func ParseKey(key string) (Note, error) {
	idx := strings.LastIndex(key, "-")
	if idx <= 0 {
		return Note{}, fmt.Errorf("%w: malformed note key %q", ErrLookup, key)
	}
	octave, err := strconv.Atoi(key[:idx])
	if err != nil {
		return Note{}, fmt.Errorf("%w: malformed octave in note key %q: %v", ErrLookup, key, err)
	}
	for pitchClass, name := range Names {
		if name == key[idx+1:] {
			return Note{Octave: octave, PitchClass: pitchClass}, nil
		}
	}
	return Note{}, fmt.Errorf("%w: unknown note name in key %q", ErrLookup, key)
}

// OctaveRange is a range of octaves, with From inclusive and To exclusive.
type OctaveRange struct {
	From int
	To   int
}

// Validate returns an error if the range is empty.
func (o OctaveRange) Validate() error {
	if o.From >= o.To {
		return fmt.Errorf("%w: empty octave range [%v,%v)", ErrConfiguration, o.From, o.To)
	}
	return nil
}

// Notes returns all notes of the range in ascending frequency order.
func (o OctaveRange) Notes() []Note {
	result := []Note{}
	for octave := o.From; octave < o.To; octave++ {
		for pitchClass := 0; pitchClass < PitchClasses; pitchClass++ {
			result = append(result, Note{Octave: octave, PitchClass: pitchClass})
		}
	}
	return result
}

// ParseOctaveRange parses "from,to" or "from:to".
func ParseOctaveRange(s string) (OctaveRange, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ':' })
	if len(parts) != 2 {
		return OctaveRange{}, fmt.Errorf("%w: octave range %q is not of the form from,to", ErrConfiguration, s)
	}
	from, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return OctaveRange{}, fmt.Errorf("%w: octave range %q: %v", ErrConfiguration, s, err)
	}
	to, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return OctaveRange{}, fmt.Errorf("%w: octave range %q: %v", ErrConfiguration, s, err)
	}
	rng := OctaveRange{From: from, To: to}
	return rng, rng.Validate()
}
