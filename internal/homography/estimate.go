package homography

import (
	"errors"
	"math"

	"github.com/banshee-data/distance.report/internal/geom"
)

var (
	// ErrInsufficientPoints is returned when fewer than four
	// correspondences are supplied to Estimate.
	ErrInsufficientPoints = errors.New("homography: need at least 4 point correspondences")
	// ErrMismatchedPoints is returned when the source and destination
	// slices differ in length.
	ErrMismatchedPoints = errors.New("homography: source and destination point counts differ")
	// ErrSingular is returned when the linear system is numerically
	// singular and no homography can be recovered.
	ErrSingular = errors.New("homography: singular system")
)

// pivotFloor is the pivot magnitude below which Gaussian elimination treats
// the system as singular.
const pivotFloor = 1e-18

// Estimate computes the least-squares homography mapping src[i] to dst[i]
// from four or more correspondences. Both point sets are Hartley-normalized
// before building the standard DLT system in the 8 free parameters (h22
// fixed at 1); the system is reduced to its 8x8 normal equations and solved
// by Gaussian elimination with partial pivoting. The returned matrix has
// its bottom-right entry normalized to 1.
func Estimate(src, dst []geom.Point) (geom.Homography, error) {
	if len(src) != len(dst) {
		return geom.Identity(), ErrMismatchedPoints
	}
	if len(src) < 4 {
		return geom.Identity(), ErrInsufficientPoints
	}

	ns, ts := geom.NormalizePoints(src)
	nd, td := geom.NormalizePoints(dst)

	// Build the 2N x 8 DLT rows and accumulate A^T A and A^T b directly.
	var ata [8][8]float64
	var atb [8]float64
	row := make([]float64, 8)
	for i := range ns {
		sx, sy := ns[i].X, ns[i].Y
		dx, dy := nd[i].X, nd[i].Y

		// x' = (h0 x + h1 y + h2) / (h6 x + h7 y + 1)
		row[0], row[1], row[2] = sx, sy, 1
		row[3], row[4], row[5] = 0, 0, 0
		row[6], row[7] = -sx*dx, -sy*dx
		accumulate(&ata, &atb, row, dx)

		// y' = (h3 x + h4 y + h5) / (h6 x + h7 y + 1)
		row[0], row[1], row[2] = 0, 0, 0
		row[3], row[4], row[5] = sx, sy, 1
		row[6], row[7] = -sx*dy, -sy*dy
		accumulate(&ata, &atb, row, dy)
	}

	h, err := solve8(ata, atb)
	if err != nil {
		return geom.Identity(), err
	}
	hn := geom.Homography{h[0], h[1], h[2], h[3], h[4], h[5], h[6], h[7], 1}

	// Undo the normalization: H = Td^-1 * Hn * Ts.
	tdInv, ok := td.Invert()
	if !ok {
		return geom.Identity(), ErrSingular
	}
	return geom.Compose(tdInv, geom.Compose(hn, ts)).Normalize(), nil
}

func accumulate(ata *[8][8]float64, atb *[8]float64, row []float64, rhs float64) {
	for i := 0; i < 8; i++ {
		if row[i] == 0 {
			continue
		}
		atb[i] += row[i] * rhs
		for j := 0; j < 8; j++ {
			ata[i][j] += row[i] * row[j]
		}
	}
}

// solve8 solves the 8x8 system A x = b by Gaussian elimination with partial
// pivoting. A pivot below pivotFloor means the calibration geometry is
// degenerate (e.g. collinear correspondences) and yields ErrSingular.
func solve8(a [8][8]float64, b [8]float64) ([8]float64, error) {
	var aug [8][9]float64
	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			aug[i][j] = a[i][j]
		}
		aug[i][8] = b[i]
	}

	for col := 0; col < 8; col++ {
		pivot := col
		maxAbs := math.Abs(aug[col][col])
		for r := col + 1; r < 8; r++ {
			if math.Abs(aug[r][col]) > maxAbs {
				maxAbs = math.Abs(aug[r][col])
				pivot = r
			}
		}
		if maxAbs < pivotFloor {
			return [8]float64{}, ErrSingular
		}
		if pivot != col {
			aug[col], aug[pivot] = aug[pivot], aug[col]
		}
		for r := col + 1; r < 8; r++ {
			factor := aug[r][col] / aug[col][col]
			if factor == 0 {
				continue
			}
			for c := col; c < 9; c++ {
				aug[r][c] -= factor * aug[col][c]
			}
		}
	}

	var x [8]float64
	for i := 7; i >= 0; i-- {
		if math.Abs(aug[i][i]) < pivotFloor {
			return [8]float64{}, ErrSingular
		}
		sum := aug[i][8]
		for j := i + 1; j < 8; j++ {
			sum -= aug[i][j] * x[j]
		}
		x[i] = sum / aug[i][i]
	}
	return x, nil
}
