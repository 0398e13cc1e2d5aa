package nn

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// TrainBatch runs one forward/backward pass over a mini-batch and applies a
// single Adam update. Targets are one-hot rows for softmax networks and
// single-element rows for linear ones. Returns the mean batch loss.
func (n *Network) TrainBatch(inputs, targets [][]float64) (float64, error) {
	if len(inputs) == 0 || len(inputs) != len(targets) {
		return 0, errors.New("batch inputs and targets must align")
	}

	gradW := make([]*mat.Dense, len(n.weights))
	gradB := make([]*mat.VecDense, len(n.weights))
	for l := range n.weights {
		r, c := n.weights[l].Dims()
		gradW[l] = mat.NewDense(r, c, nil)
		gradB[l] = mat.NewVecDense(r, nil)
	}

	totalLoss := 0.0
	for i := range inputs {
		loss, err := n.backprop(inputs[i], targets[i], gradW, gradB)
		if err != nil {
			return 0, err
		}
		totalLoss += loss
	}

	scale := 1.0 / float64(len(inputs))
	for l := range gradW {
		gradW[l].Scale(scale, gradW[l])
		gradB[l].ScaleVec(scale, gradB[l])
	}
	n.opt.update(n.weights, n.biases, gradW, gradB)
	return totalLoss * scale, nil
}

// Loss evaluates the network on a held-out set without updating weights.
func (n *Network) Loss(inputs, targets [][]float64) (float64, error) {
	if len(inputs) == 0 {
		return 0, errors.New("empty evaluation set")
	}
	total := 0.0
	for i := range inputs {
		out, err := n.Forward(inputs[i])
		if err != nil {
			return 0, err
		}
		total += n.loss(out, targets[i])
	}
	return total / float64(len(inputs)), nil
}

func (n *Network) loss(out, target []float64) float64 {
	if n.cfg.Activation == Softmax {
		loss := 0.0
		for k, y := range target {
			if y > 0 {
				loss -= y * math.Log(out[k]+1e-12)
			}
		}
		return loss
	}
	loss := 0.0
	for k, y := range target {
		d := out[k] - y
		loss += d * d
	}
	return loss / float64(len(target))
}

// backprop accumulates the per-sample gradient into gradW/gradB. Dropout
// masks are drawn fresh for every sample (inverted dropout, so inference
// needs no rescaling).
func (n *Network) backprop(input, target []float64, gradW []*mat.Dense, gradB []*mat.VecDense) (float64, error) {
	if len(input) != n.cfg.Input {
		return 0, errors.New("input dimension mismatch")
	}
	last := len(n.weights) - 1

	// Forward pass, keeping activations and dropout masks per layer.
	acts := make([]*mat.VecDense, len(n.weights)+1)
	masks := make([][]float64, len(n.weights))
	acts[0] = mat.NewVecDense(len(input), append([]float64(nil), input...))
	for l := range n.weights {
		z := mat.NewVecDense(n.weights[l].RawMatrix().Rows, nil)
		z.MulVec(n.weights[l], acts[l])
		z.AddVec(z, n.biases[l])
		if l < last {
			reluInPlace(z)
			if n.cfg.Dropout > 0 {
				masks[l] = n.dropoutMask(z.Len())
				data := z.RawVector().Data
				for i := range data {
					data[i] *= masks[l][i]
				}
			}
		}
		acts[l+1] = z
	}

	out := append([]float64(nil), acts[last+1].RawVector().Data...)
	if n.cfg.Activation == Softmax {
		softmaxInPlace(out)
	}
	loss := n.loss(out, target)

	// Output delta: softmax+cross-entropy and linear+MSE both reduce to
	// prediction minus target.
	delta := mat.NewVecDense(len(out), nil)
	for k := range out {
		delta.SetVec(k, out[k]-target[k])
	}

	for l := last; l >= 0; l-- {
		var outer mat.Dense
		outer.Outer(1, delta, acts[l])
		gradW[l].Add(gradW[l], &outer)
		gradB[l].AddVec(gradB[l], delta)

		if l == 0 {
			break
		}
		prev := mat.NewVecDense(acts[l].Len(), nil)
		prev.MulVec(n.weights[l].T(), delta)
		prevData := prev.RawVector().Data
		actData := acts[l].RawVector().Data
		for i := range prevData {
			if actData[i] <= 0 {
				prevData[i] = 0
			} else if masks[l-1] != nil {
				prevData[i] *= masks[l-1][i]
			}
		}
		delta = prev
	}
	return loss, nil
}

func (n *Network) dropoutMask(size int) []float64 {
	mask := make([]float64, size)
	keep := 1 - n.cfg.Dropout
	for i := range mask {
		if n.rng.Float64() < keep {
			mask[i] = 1 / keep
		}
	}
	return mask
}
