package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"

	"github.com/dh1tw/gosamplerate"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// ErrEmpty is returned when a payload decodes to zero frames.
var ErrEmpty = errors.New("decoded audio is empty")

// Format identifies a container detected from the payload header.
type Format int

const (
	FormatUnknown Format = iota
	FormatWAV
	FormatMP3
)

// Sniff inspects the leading bytes of an audio payload.
func Sniff(data []byte) Format {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	}
	return FormatUnknown
}

// Decode turns a compressed or PCM payload into a canonical Buffer
// (48kHz interleaved stereo). WAV and MP3 decode in-process; anything else
// is handed to FFmpeg.
func Decode(ctx context.Context, data []byte) (*Buffer, error) {
	var (
		samples  []float32
		rate     int
		channels int
		err      error
	)
	switch Sniff(data) {
	case FormatWAV:
		samples, rate, channels, err = decodeWAV(data)
	case FormatMP3:
		samples, rate, channels, err = decodeMP3(data)
	default:
		samples, err = decodeFFmpeg(ctx, data)
		rate, channels = SampleRate, Channels
	}
	if err != nil {
		return nil, err
	}

	stereo := toStereo(samples, channels)
	if rate != SampleRate {
		stereo, err = Resample(stereo, rate)
		if err != nil {
			return nil, err
		}
	}
	if len(stereo) < Channels {
		return nil, ErrEmpty
	}
	return NewStereo(stereo), nil
}

func decodeWAV(data []byte) ([]float32, int, int, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("invalid wav payload")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("wav decode: %w", err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, 0, 0, fmt.Errorf("wav decode: missing format")
	}

	depth := int(d.BitDepth)
	out := make([]float32, len(buf.Data))
	if depth == 8 {
		// 8-bit WAV is unsigned
		for i, v := range buf.Data {
			out[i] = float32(v-128) / 128
		}
	} else {
		factor := math.Pow(2, float64(depth-1))
		for i, v := range buf.Data {
			out[i] = float32(float64(v) / factor)
		}
	}
	return out, buf.Format.SampleRate, buf.Format.NumChannels, nil
}

func decodeMP3(data []byte) ([]float32, int, int, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("mp3 decode: %w", err)
	}
	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("mp3 decode: %w", err)
	}
	// go-mp3 always yields 16-bit little-endian stereo
	return BytesToSamples(pcm), d.SampleRate(), 2, nil
}

// decodeFFmpeg pipes the payload through FFmpeg and reads back float PCM
// already at the canonical rate and layout.
func decodeFFmpeg(ctx context.Context, data []byte) ([]float32, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", "pipe:0",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ar", "48000",
		"-ac", "2",
		"-loglevel", "error",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(data)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode: %w", err)
	}

	// Ensure float32 alignment
	out = out[:len(out)-len(out)%4]
	samples := make([]float32, len(out)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(out[i*4:]))
	}
	return samples, nil
}

func toStereo(samples []float32, channels int) []float32 {
	switch {
	case channels == 2:
		return samples
	case channels == 1:
		return NewMono(samples).Samples
	case channels > 2:
		frames := len(samples) / channels
		out := make([]float32, frames*2)
		for i := 0; i < frames; i++ {
			out[i*2] = samples[i*channels]
			out[i*2+1] = samples[i*channels+1]
		}
		return out
	}
	return nil
}

// Resample converts interleaved stereo from srcRate to SampleRate.
func Resample(stereo []float32, srcRate int) ([]float32, error) {
	if srcRate <= 0 {
		return nil, fmt.Errorf("resample: invalid source rate %d", srcRate)
	}
	if srcRate == SampleRate {
		return stereo, nil
	}
	out, err := gosamplerate.Simple(stereo, float64(SampleRate)/float64(srcRate), Channels, gosamplerate.SRC_SINC_MEDIUM_QUALITY)
	if err != nil {
		return nil, fmt.Errorf("resample %d->%d: %w", srcRate, SampleRate, err)
	}
	return out, nil
}
