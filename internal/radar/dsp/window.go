// Package dsp holds the numerical helpers shared by the range and Doppler
// stages: tapering windows and FFT plans.
package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
)

// WindowKind selects a tapering window.
type WindowKind int

const (
	Rectangular WindowKind = iota
	Hann
	Hamming
	Blackman
)

func (k WindowKind) String() string {
	switch k {
	case Rectangular:
		return "rectangular"
	case Hann:
		return "hann"
	case Hamming:
		return "hamming"
	case Blackman:
		return "blackman"
	default:
		return fmt.Sprintf("window(%d)", int(k))
	}
}

// ParseWindow maps a configuration name to a WindowKind. The empty string
// and "none" select the rectangular window.
func ParseWindow(name string) (WindowKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none", "rect", "rectangular":
		return Rectangular, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "blackman":
		return Blackman, nil
	}
	return Rectangular, fmt.Errorf("unknown window %q", name)
}

// Window returns the symmetric window coefficients of length n.
// A length-1 window is {1}.
func Window(kind WindowKind, n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	den := float64(n - 1)
	for i := range w {
		x := 2 * math.Pi * float64(i) / den
		switch kind {
		case Hann:
			w[i] = 0.5 * (1 - math.Cos(x))
		case Hamming:
			w[i] = 0.54 - 0.46*math.Cos(x)
		case Blackman:
			w[i] = 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
		default:
			w[i] = 1
		}
	}
	return w
}

// Plan is a reusable FFT of fixed length with its own scratch buffer.
// A Plan is not safe for concurrent use; give each worker its own.
type Plan struct {
	fft *fourier.CmplxFFT
	buf []complex128
}

// NewPlan creates an FFT plan of length n.
func NewPlan(n int) *Plan {
	return &Plan{
		fft: fourier.NewCmplxFFT(n),
		buf: make([]complex128, n),
	}
}

// Len returns the transform length.
func (p *Plan) Len() int { return p.fft.Len() }

// Transform computes the DFT of src, tapered by window (nil for none) and
// zero-padded to the plan length, into dst. dst must have the plan length;
// if it is nil a new slice is allocated. src must not be longer than the
// plan, and window, when set, must match len(src).
func (p *Plan) Transform(dst, src []complex128, window []float64) []complex128 {
	n := copy(p.buf, src)
	if window != nil {
		for i := 0; i < n; i++ {
			p.buf[i] *= complex(window[i], 0)
		}
	}
	for i := n; i < len(p.buf); i++ {
		p.buf[i] = 0
	}
	return p.fft.Coefficients(dst, p.buf)
}

// Abs writes |src[i]| into dst, allocating when dst is nil.
func Abs(dst []float64, src []complex128) []float64 {
	if dst == nil {
		dst = make([]float64, len(src))
	}
	for i, v := range src {
		dst[i] = cmplx.Abs(v)
	}
	return dst
}
