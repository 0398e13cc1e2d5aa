// Package nn implements a small dense feed-forward network with ReLU hidden
// layers, inverted dropout and an Adam optimizer. It is sized for in-session
// training on a few hundred samples, not for large workloads.
package nn

import (
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// OutputActivation selects the task-specific output layer.
type OutputActivation string

const (
	// Softmax emits a probability distribution over classes.
	Softmax OutputActivation = "softmax"
	// Linear emits a single unbounded unit for regression.
	Linear OutputActivation = "linear"
)

// Config describes the network architecture and optimizer settings.
type Config struct {
	Input        int
	Hidden       []int
	Output       int
	Activation   OutputActivation
	Dropout      float64
	LearningRate float64
	Seed         int64
}

// Network is a stack of dense layers. Weight matrix l has shape out×in.
type Network struct {
	cfg     Config
	weights []*mat.Dense
	biases  []*mat.VecDense
	opt     *adam
	rng     *rand.Rand
}

// New builds a network with Xavier-initialized weights.
func New(cfg Config) (*Network, error) {
	if cfg.Input <= 0 || cfg.Output <= 0 {
		return nil, errors.New("input and output sizes must be positive")
	}
	if cfg.Activation != Softmax && cfg.Activation != Linear {
		return nil, errors.New("unknown output activation")
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.001
	}
	if cfg.Dropout < 0 || cfg.Dropout >= 1 {
		return nil, errors.New("dropout must be in [0,1)")
	}

	n := &Network{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
	sizes := append([]int{cfg.Input}, cfg.Hidden...)
	sizes = append(sizes, cfg.Output)
	for l := 0; l+1 < len(sizes); l++ {
		in, out := sizes[l], sizes[l+1]
		w := mat.NewDense(out, in, nil)
		limit := math.Sqrt(6.0 / float64(in+out))
		for r := 0; r < out; r++ {
			for c := 0; c < in; c++ {
				w.Set(r, c, n.rng.Float64()*2*limit-limit)
			}
		}
		n.weights = append(n.weights, w)
		n.biases = append(n.biases, mat.NewVecDense(out, nil))
	}
	n.opt = newAdam(n.weights, n.biases, cfg.LearningRate)
	return n, nil
}

// NumLayers returns the dense layer count.
func (n *Network) NumLayers() int { return len(n.weights) }

// InputDim returns the expected feature vector length.
func (n *Network) InputDim() int { return n.cfg.Input }

// OutputDim returns the output unit count.
func (n *Network) OutputDim() int { return n.cfg.Output }

// Forward runs an inference pass without dropout and returns the activated
// output: a probability distribution for softmax, raw unit values for
// linear.
func (n *Network) Forward(x []float64) ([]float64, error) {
	if len(x) != n.cfg.Input {
		return nil, errors.New("input dimension mismatch")
	}
	a := mat.NewVecDense(len(x), append([]float64(nil), x...))
	for l := range n.weights {
		z := mat.NewVecDense(n.weights[l].RawMatrix().Rows, nil)
		z.MulVec(n.weights[l], a)
		z.AddVec(z, n.biases[l])
		if l < len(n.weights)-1 {
			reluInPlace(z)
		}
		a = z
	}
	out := append([]float64(nil), a.RawVector().Data...)
	if n.cfg.Activation == Softmax {
		softmaxInPlace(out)
	}
	return out, nil
}

func reluInPlace(v *mat.VecDense) {
	data := v.RawVector().Data
	for i, x := range data {
		if x < 0 {
			data[i] = 0
		}
	}
}

func softmaxInPlace(v []float64) {
	max := v[0]
	for _, x := range v[1:] {
		if x > max {
			max = x
		}
	}
	sum := 0.0
	for i, x := range v {
		v[i] = math.Exp(x - max)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}
