package feature

import "math"

// onsetStrength reduces the log mel spectrogram to a per-frame onset
// envelope: the sum of positive spectral flux between adjacent frames.
func (a *analysis) onsetStrength() []float64 {
	if len(a.logMel) < 2 {
		return nil
	}

	onset := make([]float64, len(a.logMel)-1)
	for t := 1; t < len(a.logMel); t++ {
		var flux float64
		for m := range a.logMel[t] {
			if d := a.logMel[t][m] - a.logMel[t-1][m]; d > 0 {
				flux += d
			}
		}
		onset[t-1] = flux
	}
	return onset
}

// estimateTempo picks one BPM estimate from the primary autocorrelation
// peak of the onset envelope. Tempo is inherently ambiguous for
// non-percussive audio; the first-strongest peak in the plausible lag
// range is chosen deterministically. Returns 0 when no periodicity is
// detectable.
func estimateTempo(onset []float64, frameRate float64) float64 {
	if len(onset) < 4 {
		return 0
	}

	mean := 0.0
	for _, v := range onset {
		mean += v
	}
	mean /= float64(len(onset))

	centered := make([]float64, len(onset))
	var energy float64
	for i, v := range onset {
		centered[i] = v - mean
		energy += centered[i] * centered[i]
	}
	if energy == 0 {
		return 0
	}

	ac := autocorrelate(centered)

	minLag := int(math.Round(60 * frameRate / tempoMaxBPM))
	if minLag < 1 {
		minLag = 1
	}
	maxLag := int(math.Round(60 * frameRate / tempoMinBPM))
	if maxLag >= len(ac) {
		maxLag = len(ac) - 1
	}
	if minLag > maxLag {
		return 0
	}

	bestLag, bestVal := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		if ac[lag] > bestVal {
			bestVal = ac[lag]
			bestLag = lag
		}
	}
	if bestLag == 0 || bestVal <= 0 {
		return 0
	}
	return 60 * frameRate / float64(bestLag)
}
