// Package pipeline runs a batch of candidate content through an external
// assessor and records the outcome in the state store.
//
// The assessor owns scoring and gating; this package never inspects
// scores. A Runner starts a run with the configuration snapshot, assesses
// candidates concurrently, writes every resulting item in one atomic
// batch, stores run telemetry and finishes the run.
package pipeline
