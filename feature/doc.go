// Package feature turns audio files into fixed-length embedding vectors.
//
// The extractor decodes audio to mono PCM at a fixed sample rate, computes
// a short-time Fourier transform, and reduces a catalogue of spectral,
// harmonic and rhythm descriptors to their temporal means. The selected
// mode picks a fixed subset and ordering of descriptors, so two extractors
// running the same mode produce dimension-for-dimension comparable vectors.
//
// Extraction is a pure function of the input file and the extractor's
// parameters and is safe to run concurrently across independent files.
package feature
