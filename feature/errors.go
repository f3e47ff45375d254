package feature

import "fmt"

// DecodeError indicates the audio file could not be decoded or resampled.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TooShortError indicates the usable audio is shorter than the minimum
// analysis window.
type TooShortError struct {
	Path       string
	Seconds    float64
	MinSeconds float64
}

func (e *TooShortError) Error() string {
	return fmt.Sprintf("audio too short: %s has %.2fs of usable audio, need at least %.2fs", e.Path, e.Seconds, e.MinSeconds)
}
