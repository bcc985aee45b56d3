// Package audio decodes, concatenates and encodes PCM WAV clips.
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

// wavFormatPCM is the WAVE_FORMAT_PCM tag written into encoded headers.
const wavFormatPCM = 1

// Format describes the sample layout of a clip.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitDepth)
}

func (f Format) valid() bool {
	return f.SampleRate > 0 && f.Channels > 0 && f.BitDepth >= 8
}

// silenceValue is the sample value of digital silence; 8-bit WAV is unsigned.
func (f Format) silenceValue() int {
	if f.BitDepth == 8 {
		return 128
	}
	return 0
}

// Clip is an in-memory interleaved PCM waveform.
type Clip struct {
	format Format
	data   []int
}

// Empty returns a clip with no samples. The format is used when the clip is
// encoded as is; the first non-empty clip appended replaces it.
func Empty(f Format) *Clip {
	return &Clip{format: f}
}

// Silence returns d worth of silent frames in format f. Durations that round
// to zero frames produce an empty clip.
func Silence(d time.Duration, f Format) *Clip {
	if d <= 0 || !f.valid() {
		return &Clip{format: f}
	}
	frames := int(d * time.Duration(f.SampleRate) / time.Second)
	data := make([]int, frames*f.Channels)
	if v := f.silenceValue(); v != 0 {
		for i := range data {
			data[i] = v
		}
	}
	return &Clip{format: f, data: data}
}

// FromSamples wraps interleaved samples.
func FromSamples(f Format, samples []int) (*Clip, error) {
	if !f.valid() {
		return nil, fmt.Errorf("invalid audio format %s", f)
	}
	if len(samples)%f.Channels != 0 {
		return nil, fmt.Errorf("sample count %d not aligned to %d channels", len(samples), f.Channels)
	}
	return &Clip{format: f, data: samples}, nil
}

// Decode reads a WAV file from disk.
func Decode(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	clip, err := DecodeReader(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return clip, nil
}

// DecodeReader reads a complete WAV stream.
func DecodeReader(r io.ReadSeeker) (*Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return nil, fmt.Errorf("invalid wav: %w", err)
		}
		return nil, errors.New("invalid wav")
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("unsupported wav audio format %d", dec.WavAudioFormat)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}
	f := Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	return FromSamples(f, buf.Data)
}

// Probe reads the format and playing time of a WAV stream from its headers
// without loading the samples.
func Probe(r io.ReadSeeker) (Format, time.Duration, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return Format{}, 0, fmt.Errorf("invalid wav: %w", err)
		}
		return Format{}, 0, errors.New("invalid wav")
	}
	f := Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if !f.valid() {
		return Format{}, 0, fmt.Errorf("unsupported wav format %s", f)
	}
	if err := dec.FwdToPCM(); err != nil {
		return Format{}, 0, fmt.Errorf("locate pcm data: %w", err)
	}
	frameBytes := int64(f.Channels * f.BitDepth / 8)
	frames := dec.PCMLen() / frameBytes
	return f, time.Duration(frames) * time.Second / time.Duration(f.SampleRate), nil
}

// ProbeFile is Probe for a file on disk.
func ProbeFile(path string) (Format, time.Duration, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Format{}, 0, err
	}
	defer fh.Close()
	f, d, err := Probe(fh)
	if err != nil {
		return Format{}, 0, fmt.Errorf("probe %s: %w", path, err)
	}
	return f, d, nil
}

// Format returns the clip's sample layout.
func (c *Clip) Format() Format { return c.format }

// Frames returns the number of sample frames.
func (c *Clip) Frames() int {
	if c.format.Channels <= 0 {
		return 0
	}
	return len(c.data) / c.format.Channels
}

// Duration returns the playing time of the clip.
func (c *Clip) Duration() time.Duration {
	if c.format.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.format.SampleRate)
}

// Append concatenates other onto c. Clips must share a format unless either
// side has no samples.
func (c *Clip) Append(other *Clip) error {
	if other == nil || len(other.data) == 0 {
		return nil
	}
	if len(c.data) == 0 {
		c.format = other.format
		c.data = append(c.data, other.data...)
		return nil
	}
	if c.format != other.format {
		return fmt.Errorf("format mismatch: have %s, appending %s", c.format, other.format)
	}
	c.data = append(c.data, other.data...)
	return nil
}

// Encode writes the clip as a PCM WAV stream.
func (c *Clip) Encode(w io.WriteSeeker) error {
	if !c.format.valid() {
		return fmt.Errorf("invalid audio format %s", c.format)
	}
	enc := wav.NewEncoder(w, c.format.SampleRate, c.format.BitDepth, c.format.Channels, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: c.format.Channels, SampleRate: c.format.SampleRate},
		Data:           c.data,
		SourceBitDepth: c.format.BitDepth,
	}
	// Write is called even with no samples so the header is emitted.
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// Bytes encodes the clip into memory.
func (c *Clip) Bytes() ([]byte, error) {
	ws := &writerseeker.WriterSeeker{}
	if err := c.Encode(ws); err != nil {
		return nil, err
	}
	return io.ReadAll(ws.Reader())
}

// WriteFile encodes the clip to path.
func (c *Clip) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := c.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
