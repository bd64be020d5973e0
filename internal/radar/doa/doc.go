// Package doa estimates direction of arrival with MUSIC (Multiple Signal
// Classification) for a uniform linear array.
//
// The spatial covariance R (M×M, Hermitian) is eigen-decomposed through
// its real symmetric embedding
//
//	[ Re R  -Im R ]
//	[ Im R   Re R ]
//
// whose spectrum is that of R with every eigenvalue doubled in
// multiplicity. The 2(M-K) eigenvectors of the smallest eigenvalues span
// the embedded noise subspace En, and for a steering vector a = x + iy
// the MUSIC denominator a†·En·En†·a equals ‖Enᵀ[x; y]‖².
//
// Steering phase for element n at angle θ is -2π·d·n·sin θ with d the
// element spacing in wavelengths. Spacings above one half admit grating
// lobes, so d = 0.5 is the default.
//
// Angular resolution depends on covariance conditioning. Covariances
// estimated from a single snapshot are rank one; they are accepted, but
// with more than one source the result is flagged ill-conditioned and may
// contain ambiguous or spurious peaks. Estimate covariance from several
// independent snapshots whenever the data allows it.
package doa
