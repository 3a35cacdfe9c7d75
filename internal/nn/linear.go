package nn

import "math/rand"

// Linear is a fully connected layer y = Wx + b with row-major W.
type Linear struct {
	In, Out int
	W, B    *Param
}

func NewLinear(name string, in, out int, rng *rand.Rand) *Linear {
	l := &Linear{
		In:  in,
		Out: out,
		W:   NewParam(name+".weight", out*in),
		B:   NewParam(name+".bias", out),
	}
	XavierFill(rng, l.W.Value, in, out)
	return l
}

func (l *Linear) Forward(x []float64) []float64 {
	y := make([]float64, l.Out)
	for j := 0; j < l.Out; j++ {
		row := l.W.Value[j*l.In : (j+1)*l.In]
		sum := l.B.Value[j]
		for i, v := range x {
			sum += row[i] * v
		}
		y[j] = sum
	}
	return y
}

// Backward accumulates parameter gradients for one example and
// returns the gradient with respect to the input. x must be the same
// input passed to Forward.
func (l *Linear) Backward(x, dy []float64) []float64 {
	dx := make([]float64, l.In)
	for j := 0; j < l.Out; j++ {
		g := dy[j]
		l.B.Grad[j] += g
		wRow := l.W.Value[j*l.In : (j+1)*l.In]
		gRow := l.W.Grad[j*l.In : (j+1)*l.In]
		for i := 0; i < l.In; i++ {
			gRow[i] += g * x[i]
			dx[i] += wRow[i] * g
		}
	}
	return dx
}

func (l *Linear) Params() []*Param {
	return []*Param{l.W, l.B}
}
