package interpolation

import (
	"math"

	"github.com/golang/glog"
	"gonum.org/v1/gonum/mat"

	"ncgrid/internal/models"
)

// neighbour is one of the four axis-aligned neighbours of a cell.
// opposite is the candidate position dropped when this is the only
// unusable neighbour.
type neighbour struct {
	di, dj   int
	opposite int
}

var neighbours = [4]neighbour{
	{0, 1, 2},
	{1, 0, 2},
	{0, -1, 0},
	{-1, 0, 1},
}

// Extrapolate fills masked cells next to unmasked ones with the mean of their
// usable neighbours, growing the filled region by one cell per pass.
//
// The returned matrix is a copy of values in which filled cells hold their
// estimate and cells still masked after the given number of passes hold NaN.
// The returned mask marks those residual cells. Neither input is modified.
func Extrapolate(values mat.Matrix, mask *models.Mask, passes int) (*mat.Dense, *models.Mask) {
	filled := mat.DenseCopyOf(values)
	current := mask.Clone()

	var pending [][2]int
	for i := 0; i < mask.Rows; i++ {
		for j := 0; j < mask.Cols; j++ {
			if current.At(i, j) {
				filled.Set(i, j, math.NaN())
				pending = append(pending, [2]int{i, j})
			}
		}
	}

	candidates := make([]float64, 0, len(neighbours))
	for pass := 0; pass < passes && len(pending) > 0; pass++ {
		// decisions in a pass only consult the mask as it was when the pass began
		next := current.Clone()
		remaining := pending[:0:0]

		for _, c := range pending {
			i, j := c[0], c[1]
			candidates = candidates[:0]
			unusable, dropped := 0, 0
			for _, nb := range neighbours {
				ii, jj := i+nb.di, j+nb.dj
				if ii < 0 || jj < 0 || ii >= current.Rows || jj >= current.Cols || current.At(ii, jj) {
					unusable++
					dropped = nb.opposite
					continue
				}
				candidates = append(candidates, filled.At(ii, jj))
			}

			switch {
			case len(candidates) == 0:
				remaining = append(remaining, c)
				continue
			case unusable == 1:
				candidates = append(candidates[:dropped], candidates[dropped+1:]...)
			}

			var sum float64
			for _, v := range candidates {
				sum += v
			}
			filled.Set(i, j, sum/float64(len(candidates)))
			next.Set(i, j, false)
		}

		if glog.V(2) {
			glog.Infof("extrapolation pass %d: filled %d cells, %d still masked",
				pass+1, len(pending)-len(remaining), len(remaining))
		}
		current = next
		pending = remaining
	}

	return filled, current
}
