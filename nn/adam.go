package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// adam keeps first and second moment estimates for every weight matrix and
// bias vector.
type adam struct {
	lr   float64
	step int

	mW, vW []*mat.Dense
	mB, vB []*mat.VecDense
}

func newAdam(weights []*mat.Dense, biases []*mat.VecDense, lr float64) *adam {
	a := &adam{lr: lr}
	for l := range weights {
		r, c := weights[l].Dims()
		a.mW = append(a.mW, mat.NewDense(r, c, nil))
		a.vW = append(a.vW, mat.NewDense(r, c, nil))
		a.mB = append(a.mB, mat.NewVecDense(biases[l].Len(), nil))
		a.vB = append(a.vB, mat.NewVecDense(biases[l].Len(), nil))
	}
	return a
}

// update applies one Adam step with bias correction to all parameters.
func (a *adam) update(weights []*mat.Dense, biases []*mat.VecDense, gradW []*mat.Dense, gradB []*mat.VecDense) {
	a.step++
	c1 := 1 - math.Pow(adamBeta1, float64(a.step))
	c2 := 1 - math.Pow(adamBeta2, float64(a.step))

	for l := range weights {
		applyAdam(weights[l].RawMatrix().Data, gradW[l].RawMatrix().Data,
			a.mW[l].RawMatrix().Data, a.vW[l].RawMatrix().Data, a.lr, c1, c2)
		applyAdam(biases[l].RawVector().Data, gradB[l].RawVector().Data,
			a.mB[l].RawVector().Data, a.vB[l].RawVector().Data, a.lr, c1, c2)
	}
}

func applyAdam(param, grad, m, v []float64, lr, c1, c2 float64) {
	for i := range param {
		g := grad[i]
		m[i] = adamBeta1*m[i] + (1-adamBeta1)*g
		v[i] = adamBeta2*v[i] + (1-adamBeta2)*g*g
		mHat := m[i] / c1
		vHat := v[i] / c2
		param[i] -= lr * mHat / (math.Sqrt(vHat) + adamEpsilon)
	}
}
