// SPDX-License-Identifier: MIT
package wave

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"scribe/internal/audio"
	"scribe/internal/router"
)

// ExportFormat is the sample encoding of an exported file.
type ExportFormat uint8

const (
	ExportFloat32 ExportFormat = iota
	ExportInt16
	ExportInt24
)

func (f ExportFormat) String() string {
	switch f {
	case ExportFloat32:
		return "float32"
	case ExportInt16:
		return "int16"
	case ExportInt24:
		return "int24"
	default:
		return fmt.Sprintf("ExportFormat(%d)", uint8(f))
	}
}

func (f ExportFormat) bitDepth() int {
	switch f {
	case ExportInt16:
		return 16
	case ExportInt24:
		return 24
	default:
		return 32
	}
}

// ParseExportFormat accepts "float32"/"f32", "int16"/"s16" and "int24"/"s24".
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "float32", "f32":
		return ExportFloat32, nil
	case "int16", "s16", "i16":
		return ExportInt16, nil
	case "int24", "s24", "i24":
		return ExportInt24, nil
	default:
		return ExportFloat32, fmt.Errorf("unknown export format %q", s)
	}
}

// matches reports whether a recording stored as sf is already in format f.
func (f ExportFormat) matches(sf audio.SampleFormat) bool {
	return (f == ExportFloat32 && sf == audio.FormatFloat32) ||
		(f == ExportInt16 && sf == audio.FormatInt16)
}

// Export starts a job that writes the recording named key to out in the
// requested format. The job fails with ErrNotFound if the source file has
// vanished since it was recorded.
func (w *Writer) Export(out, key string, format ExportFormat) (*router.Job, error) {
	if _, ok := w.recordings.Get(key); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if out == "" {
		return nil, errors.New("export: empty output path")
	}

	return w.router.Go("export "+key, func() (router.Message, error) {
		rec, err := w.Lookup(key)
		if err != nil {
			return router.Message{}, err
		}
		if same, _ := sameFile(rec.Path, out); same {
			return router.Message{}, fmt.Errorf("export: %s is the source recording", out)
		}

		if format.matches(rec.SampleFormat) {
			err = copyFile(rec.Path, out)
		} else {
			err = transcode(rec.Path, out, format)
		}
		if err != nil {
			return router.Message{}, fmt.Errorf("export %s: %w", key, err)
		}
		return router.Console("exported %s to %s (%s)", key, out, format), nil
	})
}

func sameFile(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return absA == absB, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func transcode(src, dst string, format ExportFormat) error {
	d, err := ReadFile(src)
	if err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := encodeTo(out, d, format); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

func encodeTo(ws io.WriteSeeker, d *Decoded, format ExportFormat) error {
	bits := format.bitDepth()
	wavFormat := wavFormatPCM
	if format == ExportFloat32 {
		wavFormat = wavFormatFloat
	}

	data := make([]int, len(d.Samples))
	for i, v := range d.Samples {
		if format == ExportFloat32 {
			data[i] = floatBits(v)
		} else {
			data[i] = quantize(float64(v), bits)
		}
	}

	enc := wav.NewEncoder(ws, d.SampleRate, bits, d.Channels, wavFormat)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: d.Channels, SampleRate: d.SampleRate},
		Data:           data,
		SourceBitDepth: bits,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

// Decoded is the content of a WAV file with samples normalised to [-1, 1].
type Decoded struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Float      bool
	Samples    []float32 // Interleaved.
}

// ReadFile decodes a 16 or 24 bit PCM or 32 bit float WAV file. Float
// samples are returned bit for bit.
func ReadFile(path string) (*Decoded, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("read %s header: %w", filepath.Base(path), err)
	}
	if dec.NumChans < 1 {
		return nil, fmt.Errorf("%s is not a WAV file", filepath.Base(path))
	}

	d := &Decoded{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		Float:      dec.WavAudioFormat == wavFormatFloat,
	}
	var scale float32
	switch {
	case d.Float && d.BitDepth == 32:
	case !d.Float && d.BitDepth == 16:
		scale = 1.0 / (1 << 15)
	case !d.Float && d.BitDepth == 24:
		scale = 1.0 / (1 << 23)
	default:
		return nil, fmt.Errorf("unsupported WAV encoding: format %d, %d bits", dec.WavAudioFormat, d.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read %s samples: %w", filepath.Base(path), err)
	}
	d.Samples = make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		if d.Float {
			d.Samples[i] = bitsFloat(v)
		} else {
			d.Samples[i] = float32(v) * scale
		}
	}
	return d, nil
}
