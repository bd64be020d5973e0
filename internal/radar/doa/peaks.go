package doa

import "sort"

// Peak is a local maximum of a pseudo-spectrum.
type Peak struct {
	Index int
	Value float64
}

// FindPeaks returns the interior local maxima of s ranked by height,
// highest first, ties going to the lower index. A flat-topped peak is
// reported once at the centre of its plateau. The first and last samples
// are never peaks.
func FindPeaks(s []float64) []Peak {
	var peaks []Peak
	n := len(s)
	for i := 1; i < n-1; {
		if !(s[i] > s[i-1]) {
			i++
			continue
		}
		// Walk the plateau starting at i.
		j := i
		for j+1 < n && s[j+1] == s[i] {
			j++
		}
		if j+1 < n && s[j+1] < s[i] {
			peaks = append(peaks, Peak{Index: (i + j) / 2, Value: s[i]})
		}
		i = j + 1
	}
	sort.SliceStable(peaks, func(a, b int) bool {
		return peaks[a].Value > peaks[b].Value
	})
	return peaks
}
