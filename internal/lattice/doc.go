// Package lattice owns the square 2-D lattice used by every SOC model.
//
// Responsibilities: flat row-major storage with a fixed-width guard frame,
// boundary clearing, and the non-copying interior view that every
// externally visible statistic is computed from.
// Key types: Grid, View, Offset.
//
// Dependency rule: lattice depends on nothing else in this module.
package lattice
