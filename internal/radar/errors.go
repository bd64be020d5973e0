package radar

import "errors"

// Configuration errors are fatal and surface before a scan is processed.
var (
	// ErrInvalidConfiguration covers bad dimensions, out-of-range PFA and
	// any other parameter rejected at construction time.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrInvalidSourceCount is returned when the MUSIC source count leaves
	// an empty or negative-dimensional noise subspace.
	ErrInvalidSourceCount = errors.New("invalid source count")
)

// Per-cell and per-target conditions. These are non-fatal unless the
// caller's policy says otherwise.
var (
	// ErrInsufficientTrainingCells means a CFAR cell had no training cells
	// inside the sequence bounds.
	ErrInsufficientTrainingCells = errors.New("insufficient training cells")
	// ErrAmbiguityUnresolved means no velocity was consistent with every
	// PRF's aliased estimate within tolerance.
	ErrAmbiguityUnresolved = errors.New("doppler ambiguity unresolved")
	// ErrPartialDoAEstimate means MUSIC found fewer spectral peaks than
	// the configured source count.
	ErrPartialDoAEstimate = errors.New("partial DoA estimate")
)
