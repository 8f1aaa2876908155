package embed

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/cytofkit/cytofkit/errors"
)

// principalComponents projects the centred rows of x onto its leading
// components. Components beyond the rank of x are filled with small noise.
func principalComponents(x *mat.Dense, components int, rng *rand.Rand) (*mat.Dense, error) {
	n, d := x.Dims()
	centred := mat.DenseCopyOf(x)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, centred)
		m := stat.Mean(col, nil)
		for i := 0; i < n; i++ {
			centred.Set(i, j, col[i]-m)
		}
	}

	var svd mat.SVD
	if !svd.Factorize(centred, mat.SVDThin) {
		return nil, errors.ExecutionErrorf("PCA initialisation failed: SVD did not converge")
	}
	var u mat.Dense
	svd.UTo(&u)
	values := svd.Values(nil)

	out := mat.NewDense(n, components, nil)
	for c := 0; c < components; c++ {
		for i := 0; i < n; i++ {
			if c < len(values) {
				out.Set(i, c, u.At(i, c)*values[c])
			} else {
				out.Set(i, c, rng.NormFloat64()*1e-4)
			}
		}
	}
	return out, nil
}

// scaleToStd rescales y so its first column has the given standard deviation
func scaleToStd(y *mat.Dense, std float64) {
	n, _ := y.Dims()
	col := make([]float64, n)
	mat.Col(col, 0, y)
	if _, s := stat.PopMeanStdDev(col, nil); s > 0 {
		y.Scale(std/s, y)
	}
}
