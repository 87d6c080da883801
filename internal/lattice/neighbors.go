package lattice

// Offset is a (row, col) displacement.
type Offset struct {
	DR, DC int
}

// Axis lists the four axis neighbours clockwise starting from the left:
// left, up, right, down.
var Axis = [4]Offset{{0, -1}, {-1, 0}, {0, 1}, {1, 0}}

// Moore lists the eight axis-or-diagonal neighbours.
var Moore = [8]Offset{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// AxisIdx returns the Values offsets of the four axis neighbours of idx,
// in Axis order. idx must be an interior cell so every neighbour is in range.
func (g *Grid[T]) AxisIdx(idx int) [4]int {
	var out [4]int
	for i, o := range Axis {
		out[i] = idx + o.DR*g.width + o.DC
	}
	return out
}

// MooreIdx returns the Values offsets of the eight Moore neighbours of idx,
// in Moore order. idx must be an interior cell.
func (g *Grid[T]) MooreIdx(idx int) [8]int {
	var out [8]int
	for i, o := range Moore {
		out[i] = idx + o.DR*g.width + o.DC
	}
	return out
}
