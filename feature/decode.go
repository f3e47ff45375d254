package feature

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// decode loads the file as mono float64 PCM at the extractor's sample
// rate. WAV files are parsed natively; everything else goes through an
// ffmpeg subprocess.
func (e *Extractor) decode(ctx context.Context, path string) ([]float64, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		samples, err := decodeWAV(path, e.opts.SampleRate)
		if err != nil {
			return nil, &DecodeError{Path: path, Err: err}
		}
		return samples, nil
	}

	samples, err := e.decodeFFmpeg(ctx, path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return samples, nil
}

// decodeFFmpeg shells out for non-WAV containers, asking ffmpeg for mono
// 32-bit float PCM at the target rate on stdout.
func (e *Extractor) decodeFFmpeg(ctx context.Context, path string) ([]float64, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	args := []string{
		"-hide_banner", "-v", "error",
		"-i", path,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", e.opts.SampleRate),
		"-f", "f32le",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, e.opts.FFmpegPath, args...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &bytes.Buffer{}

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}

	raw := out.Bytes()
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("ffmpeg: truncated f32le stream (%d bytes)", len(raw))
	}

	samples := make([]float64, len(raw)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		samples[i] = float64(math.Float32frombits(bits))
	}
	return samples, nil
}

// decodeWAV parses a RIFF/WAVE file (PCM16, PCM24 or IEEE float32),
// downmixes to mono and resamples to the target rate.
func decodeWAV(path string, targetRate int) ([]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	var (
		format        uint16
		channels      int
		sampleRate    int
		bitsPerSample int
		data          []byte
	)

	// Walk the chunk list for fmt and data.
	off := 12
	for off+8 <= len(raw) {
		id := string(raw[off : off+4])
		size := int(binary.LittleEndian.Uint32(raw[off+4 : off+8]))
		body := off + 8
		if body+size > len(raw) {
			return nil, fmt.Errorf("truncated %q chunk", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("fmt chunk too small")
			}
			format = binary.LittleEndian.Uint16(raw[body:])
			channels = int(binary.LittleEndian.Uint16(raw[body+2:]))
			sampleRate = int(binary.LittleEndian.Uint32(raw[body+4:]))
			bitsPerSample = int(binary.LittleEndian.Uint16(raw[body+14:]))
		case "data":
			data = raw[body : body+size]
		}

		off = body + size
		if size%2 == 1 {
			off++ // chunks are word-aligned
		}
	}

	if data == nil || channels == 0 || sampleRate == 0 {
		return nil, fmt.Errorf("missing fmt or data chunk")
	}

	var frames []float64
	switch {
	case format == 1 && bitsPerSample == 16:
		frames = pcm16ToMono(data, channels)
	case format == 1 && bitsPerSample == 24:
		frames = pcm24ToMono(data, channels)
	case format == 3 && bitsPerSample == 32:
		frames = float32ToMono(data, channels)
	default:
		return nil, fmt.Errorf("unsupported wav encoding: format=%d bits=%d", format, bitsPerSample)
	}

	if sampleRate != targetRate {
		frames = resampleLinear(frames, sampleRate, targetRate)
	}
	return frames, nil
}

func pcm16ToMono(data []byte, channels int) []float64 {
	stride := 2 * channels
	n := len(data) / stride
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			s := int16(binary.LittleEndian.Uint16(data[i*stride+c*2:]))
			sum += float64(s) / 32768.0
		}
		out[i] = sum / float64(channels)
	}
	return out
}

func pcm24ToMono(data []byte, channels int) []float64 {
	stride := 3 * channels
	n := len(data) / stride
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			p := data[i*stride+c*3:]
			v := int32(p[0]) | int32(p[1])<<8 | int32(p[2])<<16
			if v&0x800000 != 0 {
				v -= 0x1000000 // sign-extend
			}
			sum += float64(v) / 8388608.0
		}
		out[i] = sum / float64(channels)
	}
	return out
}

func float32ToMono(data []byte, channels int) []float64 {
	stride := 4 * channels
	n := len(data) / stride
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			bits := binary.LittleEndian.Uint32(data[i*stride+c*4:])
			sum += float64(math.Float32frombits(bits))
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// resampleLinear converts between sample rates with linear interpolation.
// Good enough for summary descriptors; not a brick-wall resampler.
func resampleLinear(in []float64, srIn, srOut int) []float64 {
	if srIn == srOut || len(in) == 0 {
		return in
	}
	ratio := float64(srIn) / float64(srOut)
	n := int(float64(len(in)) / ratio)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = in[j]*(1-frac) + in[j+1]*frac
	}
	return out
}
