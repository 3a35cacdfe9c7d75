// Package nn is the numeric substrate for the emulator models: dense
// and recurrent layers with explicit backward passes, the Adam
// optimizer and the regression losses. Parameters are flat float64
// slices; there is no graph machinery.
package nn

import (
	"math"
	"math/rand"
)

// Param is one trainable tensor with its gradient accumulator.
type Param struct {
	Name  string
	Value []float64
	Grad  []float64
}

func NewParam(name string, size int) *Param {
	return &Param{
		Name:  name,
		Value: make([]float64, size),
		Grad:  make([]float64, size),
	}
}

// XavierFill initializes v with the Glorot uniform heuristic for a
// fan-in/fan-out pair.
func XavierFill(rng *rand.Rand, v []float64, fanIn, fanOut int) {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	for i := range v {
		v[i] = (rng.Float64()*2 - 1) * limit
	}
}

// ZeroGrads clears the gradient accumulators.
func ZeroGrads(params []*Param) {
	for _, p := range params {
		for i := range p.Grad {
			p.Grad[i] = 0
		}
	}
}

// ScaleGrads multiplies every gradient by s (minibatch averaging).
func ScaleGrads(params []*Param, s float64) {
	for _, p := range params {
		for i := range p.Grad {
			p.Grad[i] *= s
		}
	}
}
