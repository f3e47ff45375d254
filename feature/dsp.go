package feature

import (
	"math"

	godsp "github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const logFloor = 1e-10

// hannCoefficients returns the Hann window of length n.
func hannCoefficients(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return window.Hann(w)
}

// spectrogram computes the magnitude STFT of x: frames x (n/2+1) bins.
// Frames are non-centered; the signal is zero-padded to at least one frame.
func spectrogram(x []float64, n, hop int) [][]float64 {
	if len(x) < n {
		padded := make([]float64, n)
		copy(padded, x)
		x = padded
	}

	fft := fourier.NewFFT(n)
	win := hannCoefficients(n)

	frames := 1 + (len(x)-n)/hop
	mags := make([][]float64, frames)

	buf := make([]float64, n)
	for t := 0; t < frames; t++ {
		start := t * hop
		for k := 0; k < n; k++ {
			buf[k] = x[start+k] * win[k]
		}
		coeffs := fft.Coefficients(nil, buf)

		row := make([]float64, len(coeffs))
		for k, c := range coeffs {
			re, im := real(c), imag(c)
			row[k] = math.Sqrt(re*re + im*im)
		}
		mags[t] = row
	}
	return mags
}

// binFrequencies returns the center frequency in Hz of each STFT bin.
func binFrequencies(n, sampleRate int) []float64 {
	bins := n/2 + 1
	freqs := make([]float64, bins)
	for k := range freqs {
		freqs[k] = float64(k) * float64(sampleRate) / float64(n)
	}
	return freqs
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// melFilterbank builds nMels triangular filters over the STFT bins,
// spanning 0 Hz to Nyquist on the mel scale.
func melFilterbank(nMels, fftSize, sampleRate int) [][]float64 {
	bins := fftSize/2 + 1
	nyquist := float64(sampleRate) / 2

	melLo := hzToMel(0)
	melHi := hzToMel(nyquist)

	// nMels+2 edge points, converted back to bin positions.
	edges := make([]float64, nMels+2)
	for i := range edges {
		mel := melLo + (melHi-melLo)*float64(i)/float64(nMels+1)
		edges[i] = melToHz(mel) * float64(fftSize) / float64(sampleRate)
	}

	filters := make([][]float64, nMels)
	for m := 0; m < nMels; m++ {
		f := make([]float64, bins)
		left, center, right := edges[m], edges[m+1], edges[m+2]
		for k := 0; k < bins; k++ {
			fk := float64(k)
			switch {
			case fk > left && fk <= center && center > left:
				f[k] = (fk - left) / (center - left)
			case fk > center && fk < right && right > center:
				f[k] = (right - fk) / (right - center)
			}
		}
		filters[m] = f
	}
	return filters
}

// applyFilterbank maps a power spectrum frame onto the mel bands.
func applyFilterbank(filters [][]float64, power []float64) []float64 {
	out := make([]float64, len(filters))
	for m, f := range filters {
		var sum float64
		for k, w := range f {
			if w != 0 {
				sum += w * power[k]
			}
		}
		out[m] = sum
	}
	return out
}

// dctII computes the first k coefficients of the orthonormal DCT-II of x.
func dctII(x []float64, k int) []float64 {
	n := len(x)
	out := make([]float64, k)
	for i := 0; i < k; i++ {
		var sum float64
		for j := 0; j < n; j++ {
			sum += x[j] * math.Cos(math.Pi*float64(i)*(2*float64(j)+1)/(2*float64(n)))
		}
		scale := math.Sqrt(2 / float64(n))
		if i == 0 {
			scale = math.Sqrt(1 / float64(n))
		}
		out[i] = sum * scale
	}
	return out
}

// autocorrelate returns the linear autocorrelation of x for lags
// 0..len(x)-1, computed in the frequency domain.
func autocorrelate(x []float64) []float64 {
	n := len(x)
	if n == 0 {
		return nil
	}

	size := 1
	for size < 2*n {
		size <<= 1
	}
	buf := make([]float64, size)
	copy(buf, x)

	spec := godsp.FFTReal(buf)
	for i := range spec {
		re, im := real(spec[i]), imag(spec[i])
		spec[i] = complex(re*re+im*im, 0)
	}
	inv := godsp.IFFT(spec)

	ac := make([]float64, n)
	for i := range ac {
		ac[i] = real(inv[i])
	}
	return ac
}
