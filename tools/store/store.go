/* store persists decomposition containers as TFRecord files of tf.Examples.
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
package store

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google-research/notegate/tools/bands"
	"github.com/google-research/notegate/tools/notes"
	"github.com/google-research/notegate/tools/synthesize/signals"
	"github.com/ryszard/tfutils/go/tfrecord"
	"google.golang.org/protobuf/proto"

	proto1 "github.com/golang/protobuf/proto"
	tf "github.com/ryszard/tfutils/proto/tensorflow/core/example"
)

// Feature names.
const (
	KeyFeature            = "key"
	SaveTypeFeature       = "save_type"
	SampleRateFeature     = "sample_rate"
	OriginalLengthFeature = "original_length"
	SpectrumLengthFeature = "spectrum_length"
	ExhaustedFeature      = "exhausted"
	RealFeature           = "real"
	ImagFeature           = "imag"
)

func bytesFeature(s string) *tf.Feature {
	return &tf.Feature{Kind: &tf.Feature_BytesList{BytesList: &tf.BytesList{Value: [][]byte{[]byte(s)}}}}
}

func int64Feature(i int) *tf.Feature {
	return &tf.Feature{Kind: &tf.Feature_Int64List{Int64List: &tf.Int64List{Value: []int64{int64(i)}}}}
}

func floatFeature(f []float64) *tf.Feature {
	values := make([]float32, len(f))
	for idx := range f {
		values[idx] = float32(f[idx])
	}
	return &tf.Feature{Kind: &tf.Feature_FloatList{FloatList: &tf.FloatList{Value: values}}}
}

func newExample(key string) *tf.Example {
	return &tf.Example{
		Features: &tf.Features{
			Feature: map[string]*tf.Feature{
				KeyFeature: bytesFeature(key),
			},
		},
	}
}

func metaExample(c *bands.Container) *tf.Example {
	ex := newExample(bands.MetaKey)
	ex.Features.Feature[SaveTypeFeature] = int64Feature(int(c.Meta.SaveType))
	ex.Features.Feature[SampleRateFeature] = int64Feature(c.Meta.SampleRate)
	ex.Features.Feature[OriginalLengthFeature] = int64Feature(c.Meta.OriginalLength)
	ex.Features.Feature[SpectrumLengthFeature] = int64Feature(c.Meta.SpectrumLength)
	if c.Exhausted != nil {
		ex.Features.Feature[ExhaustedFeature] = bytesFeature(c.Exhausted.Key())
	}
	return ex
}

func bandExample(saveType bands.SaveType, band *bands.Band) *tf.Example {
	ex := newExample(band.Note.Key())
	switch saveType {
	case bands.TimeDomain:
		ex.Features.Feature[RealFeature] = floatFeature(band.Samples)
	case bands.FrequencyDomain:
		re := make([]float64, len(band.Bins))
		im := make([]float64, len(band.Bins))
		for idx, bin := range band.Bins {
			re[idx] = real(bin)
			im[idx] = imag(bin)
		}
		ex.Features.Feature[RealFeature] = floatFeature(re)
		ex.Features.Feature[ImagFeature] = floatFeature(im)
	}
	return ex
}

func writeExample(w io.Writer, ex *tf.Example) error {
	encoded, err := proto.Marshal(proto1.MessageV2(ex))
	if err != nil {
		return err
	}
	return tfrecord.Write(w, encoded)
}

// Encode writes the container as one meta record followed by one record per band.
// Samples are stored as float32.
func Encode(w io.Writer, c *bands.Container) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := writeExample(w, metaExample(c)); err != nil {
		return err
	}
	for idx := range c.Bands {
		if err := writeExample(w, bandExample(c.Meta.SaveType, &c.Bands[idx])); err != nil {
			return fmt.Errorf("writing band %v: %w", c.Bands[idx].Note, err)
		}
	}
	return nil
}

func feature(ex *tf.Example, name string) *tf.Feature {
	if ex == nil || ex.Features == nil {
		return nil
	}
	return ex.Features.Feature[name]
}

func bytesValues(ex *tf.Example, name string) [][]byte {
	if f := feature(ex, name); f != nil {
		if kind, ok := f.Kind.(*tf.Feature_BytesList); ok && kind.BytesList != nil {
			return kind.BytesList.Value
		}
	}
	return nil
}

func int64Values(ex *tf.Example, name string) []int64 {
	if f := feature(ex, name); f != nil {
		if kind, ok := f.Kind.(*tf.Feature_Int64List); ok && kind.Int64List != nil {
			return kind.Int64List.Value
		}
	}
	return nil
}

func floatValues(ex *tf.Example, name string) []float32 {
	if f := feature(ex, name); f != nil {
		if kind, ok := f.Kind.(*tf.Feature_FloatList); ok && kind.FloatList != nil {
			return kind.FloatList.Value
		}
	}
	return nil
}

func getKey(ex *tf.Example) (string, error) {
	values := bytesValues(ex, KeyFeature)
	if len(values) != 1 {
		return "", fmt.Errorf("record has %v keys, wanted 1", len(values))
	}
	return string(values[0]), nil
}

func getInt(ex *tf.Example, name string) (int, error) {
	values := int64Values(ex, name)
	if len(values) != 1 {
		return 0, fmt.Errorf("meta record has %v values for %q, wanted 1", len(values), name)
	}
	return int(values[0]), nil
}

// fullReader fills the whole buffer on every Read. tfrecord.Read reads each
// record payload with a single call.
type fullReader struct {
	io.Reader
}

func (f fullReader) Read(p []byte) (int, error) {
	return io.ReadFull(f.Reader, p)
}

func readExample(r io.Reader) (*tf.Example, error) {
	encoded, err := tfrecord.Read(fullReader{r})
	if err != nil {
		return nil, err
	}
	ex := &tf.Example{}
	if err := proto.Unmarshal(encoded, proto1.MessageV2(ex)); err != nil {
		return nil, err
	}
	return ex, nil
}

func decodeMeta(ex *tf.Example, c *bands.Container) error {
	saveType, err := getInt(ex, SaveTypeFeature)
	if err != nil {
		return err
	}
	c.Meta.SaveType = bands.SaveType(saveType)
	if c.Meta.SampleRate, err = getInt(ex, SampleRateFeature); err != nil {
		return err
	}
	if c.Meta.OriginalLength, err = getInt(ex, OriginalLengthFeature); err != nil {
		return err
	}
	if c.Meta.SpectrumLength, err = getInt(ex, SpectrumLengthFeature); err != nil {
		return err
	}
	if exhausted := bytesValues(ex, ExhaustedFeature); len(exhausted) == 1 {
		note, err := notes.ParseKey(string(exhausted[0]))
		if err != nil {
			return err
		}
		c.Exhausted = &note
	}
	return c.Meta.SaveType.Validate()
}

func decodeBand(ex *tf.Example, key string, saveType bands.SaveType) (bands.Band, error) {
	note, err := notes.ParseKey(key)
	if err != nil {
		return bands.Band{}, err
	}
	band := bands.Band{Note: note}
	re := floatValues(ex, RealFeature)
	switch saveType {
	case bands.TimeDomain:
		band.Samples = make(signals.Float64Slice, len(re))
		for idx := range re {
			band.Samples[idx] = float64(re[idx])
		}
	case bands.FrequencyDomain:
		im := floatValues(ex, ImagFeature)
		if len(im) != len(re) {
			return bands.Band{}, fmt.Errorf("band %q has %v real and %v imaginary parts", key, len(re), len(im))
		}
		band.Bins = make([]complex128, len(re))
		for idx := range re {
			band.Bins[idx] = complex(float64(re[idx]), float64(im[idx]))
		}
	}
	return band, nil
}

// Decode reads a container written by Encode.
func Decode(r io.Reader) (*bands.Container, error) {
	meta, err := readExample(r)
	if err == io.EOF {
		return nil, fmt.Errorf("no %q record found", bands.MetaKey)
	} else if err != nil {
		return nil, err
	}
	if key, err := getKey(meta); err != nil {
		return nil, err
	} else if key != bands.MetaKey {
		return nil, fmt.Errorf("first record has key %q, wanted %q", key, bands.MetaKey)
	}
	result := &bands.Container{}
	if err := decodeMeta(meta, result); err != nil {
		return nil, err
	}
	for {
		ex, err := readExample(r)
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		key, err := getKey(ex)
		if err != nil {
			return nil, err
		}
		band, err := decodeBand(ex, key, result.Meta.SaveType)
		if err != nil {
			return nil, err
		}
		result.Bands = append(result.Bands, band)
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

// Write atomically replaces the file at path with the encoded container.
func Write(path string, c *bands.Container) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	buffered := bufio.NewWriter(tmp)
	if err = Encode(buffered, c); err != nil {
		return fmt.Errorf("encoding %q: %w", path, err)
	}
	if err = buffered.Flush(); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Read reads the container at path.
func Read(path string) (*bands.Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("decoding %q: %w", path, err)
	}
	return c, nil
}
