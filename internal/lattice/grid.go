package lattice

import (
	"fmt"
	"math"
)

// BoundarySize is the width of the guard frame around the interior.
// Frame cells are read as neighbours but never become active.
const BoundarySize = 1

// Number is the set of element types that support interior sums.
type Number interface {
	~int | ~int32 | ~int64 | ~uint8 | ~float32 | ~float64
}

// Grid is an (L+2*BoundarySize)² lattice stored row-major in Values.
type Grid[T any] struct {
	l     int
	width int

	Values []T // len = width * width
}

// New allocates a zero-valued grid with interior linear size l.
func New[T any](l int) *Grid[T] {
	if l <= 0 {
		panic(fmt.Sprintf("lattice: interior size must be positive, got %d", l))
	}
	w := l + 2*BoundarySize
	return &Grid[T]{l: l, width: w, Values: make([]T, w*w)}
}

// FromRows builds a grid from a full bordered square matrix.
// The matrix must be at least (1+2*BoundarySize) wide.
func FromRows[T any](rows [][]T) (*Grid[T], error) {
	w := len(rows)
	if w < 1+2*BoundarySize {
		return nil, fmt.Errorf("lattice: need at least %d rows, got %d", 1+2*BoundarySize, w)
	}
	g := New[T](w - 2*BoundarySize)
	for r, row := range rows {
		if len(row) != w {
			return nil, fmt.Errorf("lattice: row %d has %d columns, want %d", r, len(row), w)
		}
		copy(g.Values[r*w:(r+1)*w], row)
	}
	return g, nil
}

// FromFlat wraps a row-major bordered square frame without copying.
func FromFlat[T any](values []T) (*Grid[T], error) {
	w := int(math.Sqrt(float64(len(values))))
	for w*w < len(values) {
		w++
	}
	if w*w != len(values) {
		return nil, fmt.Errorf("lattice: frame of %d values is not square", len(values))
	}
	if w < 1+2*BoundarySize {
		return nil, fmt.Errorf("lattice: frame width %d leaves no interior", w)
	}
	return &Grid[T]{l: w - 2*BoundarySize, width: w, Values: values}, nil
}

// L returns the interior linear size.
func (g *Grid[T]) L() int { return g.l }

// Width returns the bordered linear size, L + 2*BoundarySize.
func (g *Grid[T]) Width() int { return g.width }

// Idx maps (row, col) in bordered coordinates to an offset in Values.
func (g *Grid[T]) Idx(row, col int) int { return row*g.width + col }

// RowCol is the inverse of Idx.
func (g *Grid[T]) RowCol(idx int) (row, col int) { return idx / g.width, idx % g.width }

// At returns the value at (row, col) in bordered coordinates.
func (g *Grid[T]) At(row, col int) T { return g.Values[g.Idx(row, col)] }

// Set stores v at (row, col) in bordered coordinates.
func (g *Grid[T]) Set(row, col int, v T) { g.Values[g.Idx(row, col)] = v }

// IsInterior reports whether (row, col) lies strictly inside the guard frame.
func (g *Grid[T]) IsInterior(row, col int) bool {
	return row >= BoundarySize && row < g.width-BoundarySize &&
		col >= BoundarySize && col < g.width-BoundarySize
}

// Fill sets every cell, frame included, to v.
func (g *Grid[T]) Fill(v T) {
	for i := range g.Values {
		g.Values[i] = v
	}
}

// CleanBoundary overwrites the four guard strips with fill.
// Interior cells are never touched, so repeated calls are idempotent.
func (g *Grid[T]) CleanBoundary(fill T) {
	w := g.width
	for b := 0; b < BoundarySize; b++ {
		top := b * w
		bottom := (w - 1 - b) * w
		for c := 0; c < w; c++ {
			g.Values[top+c] = fill
			g.Values[bottom+c] = fill
		}
		for r := 0; r < w; r++ {
			g.Values[r*w+b] = fill
			g.Values[r*w+w-1-b] = fill
		}
	}
}

// Clone returns a deep copy.
func (g *Grid[T]) Clone() *Grid[T] {
	out := &Grid[T]{l: g.l, width: g.width, Values: make([]T, len(g.Values))}
	copy(out.Values, g.Values)
	return out
}

// Rows returns the bordered grid as a freshly allocated matrix.
func (g *Grid[T]) Rows() [][]T {
	out := make([][]T, g.width)
	for r := range out {
		out[r] = make([]T, g.width)
		copy(out[r], g.Values[r*g.width:(r+1)*g.width])
	}
	return out
}

// Interior returns a view of the cells inside the guard frame.
// The view shares storage with g: writes through it mutate the grid.
func (g *Grid[T]) Interior() View[T] {
	return View[T]{g: g, off: BoundarySize, n: g.l}
}

// InteriorIndices appends the Values offsets of all interior cells to dst.
func (g *Grid[T]) InteriorIndices(dst []int) []int {
	for r := BoundarySize; r < g.width-BoundarySize; r++ {
		base := r * g.width
		for c := BoundarySize; c < g.width-BoundarySize; c++ {
			dst = append(dst, base+c)
		}
	}
	return dst
}
