// Package radar owns the shared data model of the radar processing core.
//
// Responsibilities: the sample, range and range-Doppler cubes passed
// between stages, detection and target records, quality flags, the
// error taxonomy, and the interfaces of external collaborators
// (acquisition, classification, tracking).
// Key types: SampleCube, RangeProfile, RangeDopplerMap, DetectionMask,
// Detection, Target.
//
// Dependency rule: stage packages (rangeproc, doppler, cfar, ambiguity,
// doa) may depend on radar and dsp, never on each other or on pipeline.
// pipeline is the composition root.
package radar
