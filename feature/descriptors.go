package feature

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// analysis carries the intermediate products shared by the descriptors.
type analysis struct {
	sampleRate int
	frameSize  int
	hopSize    int
	samples    []float64
	mags       [][]float64 // magnitude spectrogram, frames x bins
	freqs      []float64   // bin center frequencies in Hz
	logMel     [][]float64 // log mel spectrogram, frames x nMels
}

func newAnalysis(samples []float64, sampleRate, frameSize, hopSize int) *analysis {
	mags := spectrogram(samples, frameSize, hopSize)
	freqs := binFrequencies(frameSize, sampleRate)

	filters := melFilterbank(melBands, frameSize, sampleRate)
	logMel := make([][]float64, len(mags))
	power := make([]float64, len(freqs))
	for t, row := range mags {
		for k, m := range row {
			power[k] = m * m
		}
		mel := applyFilterbank(filters, power)
		for m := range mel {
			mel[m] = math.Log(mel[m] + logFloor)
		}
		logMel[t] = mel
	}

	return &analysis{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		hopSize:    hopSize,
		samples:    samples,
		mags:       mags,
		freqs:      freqs,
		logMel:     logMel,
	}
}

// frameRate is the number of STFT frames per second.
func (a *analysis) frameRate() float64 {
	return float64(a.sampleRate) / float64(a.hopSize)
}

// meanPerDim averages a frames x dim series into one dim-length vector.
func meanPerDim(series [][]float64, dim int) []float64 {
	out := make([]float64, dim)
	if len(series) == 0 {
		return out
	}
	col := make([]float64, len(series))
	for d := 0; d < dim; d++ {
		for t := range series {
			col[t] = series[t][d]
		}
		out[d] = stat.Mean(col, nil)
	}
	return out
}

// mfcc returns the temporal means of the first n cepstral coefficients
// and of their frame-to-frame deltas.
func (a *analysis) mfcc(n int) (coeffs, deltas []float64) {
	perFrame := make([][]float64, len(a.logMel))
	for t, mel := range a.logMel {
		perFrame[t] = dctII(mel, n)
	}

	// Centered first difference; edges replicate their neighbor.
	deltaFrames := make([][]float64, len(perFrame))
	for t := range perFrame {
		d := make([]float64, n)
		prev, next := t-1, t+1
		if prev < 0 {
			prev = 0
		}
		if next >= len(perFrame) {
			next = len(perFrame) - 1
		}
		for i := 0; i < n; i++ {
			d[i] = (perFrame[next][i] - perFrame[prev][i]) / 2
		}
		deltaFrames[t] = d
	}

	return meanPerDim(perFrame, n), meanPerDim(deltaFrames, n)
}

// chromaFrames folds spectral energy onto the 12 pitch classes, one
// max-normalized 12-vector per frame.
func (a *analysis) chromaFrames() [][]float64 {
	frames := make([][]float64, len(a.mags))
	for t, row := range a.mags {
		pc := make([]float64, chromaBins)
		for k, f := range a.freqs {
			if f < 20 {
				continue // below audible pitch, skip DC leakage
			}
			midi := 69 + 12*math.Log2(f/440)
			class := ((int(math.Round(midi)) % chromaBins) + chromaBins) % chromaBins
			pc[class] += row[k] * row[k]
		}

		maxVal := 0.0
		for _, v := range pc {
			if v > maxVal {
				maxVal = v
			}
		}
		if maxVal > 0 {
			for i := range pc {
				pc[i] /= maxVal
			}
		}
		frames[t] = pc
	}
	return frames
}

// tonnetz projects per-frame chroma onto the six tonal centroid axes
// (fifths, minor thirds, major thirds; sine and cosine each).
func tonnetz(chromaFrames [][]float64) []float64 {
	type axis struct {
		radius float64
		step   float64
	}
	axes := []axis{
		{radius: 1, step: 7 * math.Pi / 6},   // circle of fifths
		{radius: 1, step: 3 * math.Pi / 2},   // minor thirds
		{radius: 0.5, step: 2 * math.Pi / 3}, // major thirds
	}

	frames := make([][]float64, len(chromaFrames))
	for t, ch := range chromaFrames {
		var norm float64
		for _, v := range ch {
			norm += v
		}
		if norm == 0 {
			norm = 1
		}

		out := make([]float64, tonnetzDims)
		for ai, ax := range axes {
			var s, c float64
			for p, v := range ch {
				angle := ax.step * float64(p)
				s += v / norm * ax.radius * math.Sin(angle)
				c += v / norm * ax.radius * math.Cos(angle)
			}
			out[ai*2] = s
			out[ai*2+1] = c
		}
		frames[t] = out
	}
	return meanPerDim(frames, tonnetzDims)
}

// spectralMoments returns the temporal means of centroid, rolloff and
// bandwidth, all in Hz.
func (a *analysis) spectralMoments() (centroid, rolloff, bandwidth float64) {
	n := len(a.mags)
	centroids := make([]float64, n)
	rolloffs := make([]float64, n)
	bandwidths := make([]float64, n)

	for t, row := range a.mags {
		var total, weighted float64
		for k, m := range row {
			total += m
			weighted += m * a.freqs[k]
		}
		if total == 0 {
			continue
		}

		c := weighted / total
		centroids[t] = c

		var spread float64
		for k, m := range row {
			d := a.freqs[k] - c
			spread += m * d * d
		}
		bandwidths[t] = math.Sqrt(spread / total)

		threshold := rolloffFraction * total
		var cum float64
		for k, m := range row {
			cum += m
			if cum >= threshold {
				rolloffs[t] = a.freqs[k]
				break
			}
		}
	}

	return stat.Mean(centroids, nil), stat.Mean(rolloffs, nil), stat.Mean(bandwidths, nil)
}

// spectralContrast returns the mean peak-to-valley contrast in dB for
// each of the octave-spaced bands.
func (a *analysis) spectralContrast() []float64 {
	nyquist := float64(a.sampleRate) / 2

	// Band 0 covers everything below fmin, then one octave per band with
	// the last capped at Nyquist.
	edges := make([]float64, contrastBands+1)
	edges[0] = 0
	for b := 1; b <= contrastBands; b++ {
		edges[b] = contrastFMin * math.Pow(2, float64(b-1))
		if edges[b] > nyquist {
			edges[b] = nyquist
		}
	}

	frames := make([][]float64, len(a.mags))
	for t, row := range a.mags {
		out := make([]float64, contrastBands)
		for b := 0; b < contrastBands; b++ {
			lo, hi := edges[b], nyquist
			if b+1 < len(edges) {
				hi = edges[b+1]
			}

			var band []float64
			for k, f := range a.freqs {
				if f >= lo && (f < hi || (b == contrastBands-1 && f <= hi)) {
					band = append(band, row[k])
				}
			}
			if len(band) == 0 {
				continue
			}

			sort.Float64s(band)
			q := int(contrastQuantile * float64(len(band)))
			if q < 1 {
				q = 1
			}

			var valley, peak float64
			for i := 0; i < q; i++ {
				valley += band[i]
				peak += band[len(band)-1-i]
			}
			valley /= float64(q)
			peak /= float64(q)

			out[b] = 20 * math.Log10((peak+logFloor)/(valley+logFloor))
		}
		frames[t] = out
	}
	return meanPerDim(frames, contrastBands)
}

// spectralFlatness returns the mean ratio of geometric to arithmetic
// mean of the power spectrum.
func (a *analysis) spectralFlatness() float64 {
	vals := make([]float64, len(a.mags))
	for t, row := range a.mags {
		var logSum, sum float64
		for _, m := range row {
			p := m * m
			logSum += math.Log(p + logFloor)
			sum += p
		}
		n := float64(len(row))
		vals[t] = math.Exp(logSum/n) / (sum/n + logFloor)
	}
	return stat.Mean(vals, nil)
}

// zeroCrossingRate returns the mean fraction of sign changes per frame.
func (a *analysis) zeroCrossingRate() float64 {
	var vals []float64
	for start := 0; start+a.frameSize <= len(a.samples); start += a.hopSize {
		crossings := 0
		for i := start + 1; i < start+a.frameSize; i++ {
			if (a.samples[i-1] >= 0) != (a.samples[i] >= 0) {
				crossings++
			}
		}
		vals = append(vals, float64(crossings)/float64(a.frameSize-1))
	}
	if len(vals) == 0 {
		return 0
	}
	return stat.Mean(vals, nil)
}

// rmsEnergy returns the mean per-frame root mean square amplitude.
func (a *analysis) rmsEnergy() float64 {
	var vals []float64
	for start := 0; start+a.frameSize <= len(a.samples); start += a.hopSize {
		var sum float64
		for i := start; i < start+a.frameSize; i++ {
			sum += a.samples[i] * a.samples[i]
		}
		vals = append(vals, math.Sqrt(sum/float64(a.frameSize)))
	}
	if len(vals) == 0 {
		return 0
	}
	return stat.Mean(vals, nil)
}
