// Package pipeline runs one scan through the radar processing chain:
// range compression, Doppler compression, CFAR detection, Doppler
// ambiguity resolution and MUSIC angle estimation, then hands each target
// to the external classification and tracking collaborators.
//
// The pipeline owns orchestration and buffers only. Signal processing
// lives in the stage packages (rangeproc, doppler, cfar, ambiguity, doa);
// persistence is an adapter sink outside the core (storage/sqlite).
package pipeline
