package nn

import "math"

// Adam keeps first/second moment estimates per parameter element and
// applies bias-corrected updates.
type Adam struct {
	LR      float64
	Beta1   float64
	Beta2   float64
	Epsilon float64

	params []*Param
	m      [][]float64
	v      [][]float64
	step   int
}

const (
	defaultLR      = 1e-3
	defaultBeta1   = 0.9
	defaultBeta2   = 0.999
	defaultEpsilon = 1e-8
)

func NewAdam(params []*Param, lr float64) *Adam {
	if lr <= 0 {
		lr = defaultLR
	}
	a := &Adam{
		LR:      lr,
		Beta1:   defaultBeta1,
		Beta2:   defaultBeta2,
		Epsilon: defaultEpsilon,
		params:  params,
		m:       make([][]float64, len(params)),
		v:       make([][]float64, len(params)),
	}
	for i, p := range params {
		a.m[i] = make([]float64, len(p.Value))
		a.v[i] = make([]float64, len(p.Value))
	}
	return a
}

// Step consumes the accumulated gradients and updates parameters.
func (a *Adam) Step() {
	a.step++
	c1 := 1 - math.Pow(a.Beta1, float64(a.step))
	c2 := 1 - math.Pow(a.Beta2, float64(a.step))
	for i, p := range a.params {
		m := a.m[i]
		v := a.v[i]
		for j, g := range p.Grad {
			m[j] = a.Beta1*m[j] + (1-a.Beta1)*g
			v[j] = a.Beta2*v[j] + (1-a.Beta2)*g*g
			mHat := m[j] / c1
			vHat := v[j] / c2
			p.Value[j] -= a.LR * mHat / (math.Sqrt(vHat) + a.Epsilon)
		}
	}
}

// ZeroGrad clears gradient accumulators for the owned parameters.
func (a *Adam) ZeroGrad() {
	ZeroGrads(a.params)
}
