package feature

import (
	"context"
	"fmt"

	"github.com/hupe1980/melodex/model"
)

const (
	// DefaultSampleRate is the analysis rate all audio is resampled to.
	DefaultSampleRate = 22050

	// DefaultMinSeconds is the shortest usable analysis window. Tempo
	// autocorrelation needs a few seconds of onset envelope to lock on.
	DefaultMinSeconds = 3.0

	defaultFrameSize = 2048
	defaultHopSize   = 512

	melBands      = 128
	mfccCoeffs    = 20
	chromaBins    = 12
	tonnetzDims   = 6
	contrastBands = 7
	contrastFMin  = 200.0

	rolloffFraction  = 0.85
	contrastQuantile = 0.02

	tempoMinBPM = 30.0
	tempoMaxBPM = 240.0

	// Per-descriptor scale factors. Keeping scalar descriptors roughly in
	// [0, 1] stops a single Hz-valued dimension from dominating the
	// distance math.
	centroidScale  = 8000.0
	bandwidthScale = 4000.0
	tempoScale     = 200.0
)

// Options contains configuration options for the extractor.
type Options struct {
	// SampleRate is the mono analysis rate audio is resampled to.
	SampleRate int

	// FrameSize and HopSize parameterize the STFT.
	FrameSize int
	HopSize   int

	// MinSeconds is the minimum usable audio length; shorter inputs fail
	// with *TooShortError.
	MinSeconds float64

	// FFmpegPath is the decoder binary used for non-WAV containers.
	FFmpegPath string
}

// DefaultOptions contains the default extractor configuration.
var DefaultOptions = Options{
	SampleRate: DefaultSampleRate,
	FrameSize:  defaultFrameSize,
	HopSize:    defaultHopSize,
	MinSeconds: DefaultMinSeconds,
	FFmpegPath: "ffmpeg",
}

// Extractor computes fixed-length embedding vectors from audio files.
// An Extractor is immutable after construction and safe for concurrent use.
type Extractor struct {
	opts Options
}

// New creates a new extractor.
func New(optFns ...func(o *Options)) *Extractor {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Extractor{opts: opts}
}

// Extract decodes the audio file and returns its embedding under the
// given mode. durationSeconds > 0 caps the analysis window to the first
// durationSeconds of audio; 0 analyzes the whole file. The window cap
// must be applied uniformly across a corpus or the vectors are not
// comparable.
func (e *Extractor) Extract(ctx context.Context, path string, durationSeconds float64, mode model.Mode) (model.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return model.Embedding{}, err
	}
	if mode.Dimension() == 0 {
		return model.Embedding{}, fmt.Errorf("feature: mode %s has no fixed descriptor catalogue", mode)
	}

	samples, err := e.decode(ctx, path)
	if err != nil {
		return model.Embedding{}, err
	}

	if durationSeconds > 0 {
		if limit := int(durationSeconds * float64(e.opts.SampleRate)); len(samples) > limit {
			samples = samples[:limit]
		}
	}

	if got := float64(len(samples)) / float64(e.opts.SampleRate); got < e.opts.MinSeconds {
		return model.Embedding{}, &TooShortError{Path: path, Seconds: got, MinSeconds: e.opts.MinSeconds}
	}

	vec := e.analyze(samples).vector(mode, e.opts.SampleRate)
	return model.Embedding{Mode: mode, Vector: vec}, nil
}

// ExtractSegments splits the file into consecutive fixed-width windows
// and returns one embedding per full window, in time order. A trailing
// partial window is dropped. Fails with *TooShortError when the file
// does not cover a single full window.
func (e *Extractor) ExtractSegments(ctx context.Context, path string, segmentSeconds float64, mode model.Mode) ([]model.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if mode.Dimension() == 0 {
		return nil, fmt.Errorf("feature: mode %s has no fixed descriptor catalogue", mode)
	}
	if segmentSeconds < e.opts.MinSeconds {
		return nil, fmt.Errorf("feature: segment window %.2fs is below the minimum analysis window %.2fs", segmentSeconds, e.opts.MinSeconds)
	}

	samples, err := e.decode(ctx, path)
	if err != nil {
		return nil, err
	}

	segLen := int(segmentSeconds * float64(e.opts.SampleRate))
	count := len(samples) / segLen
	if count == 0 {
		got := float64(len(samples)) / float64(e.opts.SampleRate)
		return nil, &TooShortError{Path: path, Seconds: got, MinSeconds: segmentSeconds}
	}

	embeddings := make([]model.Embedding, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		window := samples[i*segLen : (i+1)*segLen]
		vec := e.analyze(window).vector(mode, e.opts.SampleRate)
		embeddings = append(embeddings, model.Embedding{Mode: mode, Vector: vec})
	}
	return embeddings, nil
}

// features holds the temporal summary of every descriptor the modes
// draw from. Scalar spectral descriptors are kept in natural units
// (Hz, dB) and scaled at assembly time.
type features struct {
	mfcc      []float64 // mfccCoeffs
	mfccDelta []float64 // mfccCoeffs
	chroma    []float64 // chromaBins
	tonnetz   []float64 // tonnetzDims
	contrast  []float64 // contrastBands, in dB

	centroid  float64 // Hz
	rolloff   float64 // Hz
	bandwidth float64 // Hz
	flatness  float64
	zcr       float64
	rms       float64
	tempo     float64 // BPM
}

func (e *Extractor) analyze(samples []float64) *features {
	a := newAnalysis(samples, e.opts.SampleRate, e.opts.FrameSize, e.opts.HopSize)

	mfcc, mfccDelta := a.mfcc(mfccCoeffs)
	chromaFrames := a.chromaFrames()
	centroid, rolloff, bandwidth := a.spectralMoments()

	return &features{
		mfcc:      mfcc,
		mfccDelta: mfccDelta,
		chroma:    meanPerDim(chromaFrames, chromaBins),
		tonnetz:   tonnetz(chromaFrames),
		contrast:  a.spectralContrast(),
		centroid:  centroid,
		rolloff:   rolloff,
		bandwidth: bandwidth,
		flatness:  a.spectralFlatness(),
		zcr:       a.zeroCrossingRate(),
		rms:       a.rmsEnergy(),
		tempo:     estimateTempo(a.onsetStrength(), a.frameRate()),
	}
}

// vector concatenates the mode's descriptor subset in its fixed order.
// The ordering is part of the embedding contract and must never change
// for a released mode.
func (f *features) vector(mode model.Mode, sampleRate int) []float32 {
	centroidN := f.centroid / centroidScale
	rolloffN := f.rolloff / (float64(sampleRate) / 2)
	bandwidthN := f.bandwidth / bandwidthScale
	tempoN := f.tempo / tempoScale

	contrastN := make([]float64, len(f.contrast))
	for i, c := range f.contrast {
		contrastN[i] = (c + 100) / 200
	}

	out := make([]float64, 0, mode.Dimension())
	switch mode {
	case model.ModeMinimal:
		out = append(out, f.chroma...)
		out = append(out, centroidN, f.rms, tempoN)
	case model.ModeBalanced:
		out = append(out, f.chroma...)
		out = append(out, centroidN, f.rms, tempoN)
		out = append(out, f.mfcc[:10]...)
		out = append(out, contrastN...)
		out = append(out, bandwidthN)
	case model.ModeFull:
		out = append(out, f.mfcc...)
		out = append(out, f.mfccDelta...)
		out = append(out, f.chroma...)
		out = append(out, f.tonnetz...)
		out = append(out, contrastN...)
		out = append(out, centroidN, rolloffN, bandwidthN, f.flatness, f.zcr, f.rms, tempoN)
	}

	vec := make([]float32, len(out))
	for i, v := range out {
		vec[i] = float32(v)
	}
	return vec
}
