// Package simulation records avalanche observables over many driving steps.
//
// A Simulation binds one models.Model to an engine and an optional
// snapshot.Store. Run(ctx, n) drives n+WaitForNIters steps, keeps the
// records of the last n in order and snapshots the full grid every
// SaveEvery steps from the first one, warm-up included.
package simulation
