package lattice

// View is a square window onto a Grid. Coordinates are relative to the
// window origin. It never copies the underlying storage.
type View[T any] struct {
	g   *Grid[T]
	off int
	n   int
}

// Size returns the linear size of the view.
func (v View[T]) Size() int { return v.n }

// At returns the value at (row, col) relative to the view origin.
func (v View[T]) At(row, col int) T { return v.g.At(row+v.off, col+v.off) }

// Set stores x at (row, col) relative to the view origin.
func (v View[T]) Set(row, col int, x T) { v.g.Set(row+v.off, col+v.off, x) }

// Row returns row r of the view as a slice aliasing the grid storage.
func (v View[T]) Row(r int) []T {
	start := v.g.Idx(r+v.off, v.off)
	return v.g.Values[start : start+v.n : start+v.n]
}

// Each calls fn for every cell in row-major order.
func (v View[T]) Each(fn func(row, col int, x T)) {
	for r := 0; r < v.n; r++ {
		for c, x := range v.Row(r) {
			fn(r, c, x)
		}
	}
}

// Fill sets every cell of the view to x.
func (v View[T]) Fill(x T) {
	for r := 0; r < v.n; r++ {
		row := v.Row(r)
		for c := range row {
			row[c] = x
		}
	}
}

// Copy returns the view contents as a freshly allocated matrix.
func (v View[T]) Copy() [][]T {
	out := make([][]T, v.n)
	for r := range out {
		out[r] = append([]T(nil), v.Row(r)...)
	}
	return out
}

// Sum adds up every cell of the view.
func Sum[T Number](v View[T]) T {
	var s T
	for r := 0; r < v.n; r++ {
		for _, x := range v.Row(r) {
			s += x
		}
	}
	return s
}

// Max returns the largest value in the view.
func Max[T Number](v View[T]) T {
	best := v.At(0, 0)
	for r := 0; r < v.n; r++ {
		for _, x := range v.Row(r) {
			if x > best {
				best = x
			}
		}
	}
	return best
}

// CountTrue counts the set cells of a boolean view.
func CountTrue(v View[bool]) int {
	n := 0
	for r := 0; r < v.n; r++ {
		for _, x := range v.Row(r) {
			if x {
				n++
			}
		}
	}
	return n
}

// Count counts cells for which pred holds.
func Count[T any](v View[T], pred func(T) bool) int {
	n := 0
	for r := 0; r < v.n; r++ {
		for _, x := range v.Row(r) {
			if pred(x) {
				n++
			}
		}
	}
	return n
}
