// Package analysis turns the observation table into power-law estimates.
//
// A log-binned histogram of avalanche sizes is smoothed with a
// second-derivative-of-Gaussian filter; the longest run of bins where the
// filtered curvature stays under a cutoff is taken as the scaling region,
// and a least-squares line through log10(density) against log10(size) on
// that region gives the exponent.
package analysis
