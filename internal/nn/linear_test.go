package nn

import (
	"math"
	"math/rand"
	"testing"
)

func TestLinearForward(t *testing.T) {
	l := NewLinear("fc", 2, 2, rand.New(rand.NewSource(1)))
	copy(l.W.Value, []float64{1, 2, -1, 0.5})
	copy(l.B.Value, []float64{0.25, -0.25})

	y := l.Forward([]float64{3, 4})
	if math.Abs(y[0]-11.25) > 1e-12 {
		t.Fatalf("unexpected y[0]: %f", y[0])
	}
	if math.Abs(y[1]-(-1.25)) > 1e-12 {
		t.Fatalf("unexpected y[1]: %f", y[1])
	}
}

func TestLinearGradientCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	l := NewLinear("fc", 3, 2, rng)
	x := []float64{0.3, -1.2, 0.7}
	dir := []float64{0.9, -0.4}

	// scalar objective: dir . forward(x)
	objective := func() float64 {
		y := l.Forward(x)
		return dir[0]*y[0] + dir[1]*y[1]
	}

	ZeroGrads(l.Params())
	dx := l.Backward(x, dir)

	const eps = 1e-6
	for _, p := range l.Params() {
		for i := range p.Value {
			orig := p.Value[i]
			p.Value[i] = orig + eps
			plus := objective()
			p.Value[i] = orig - eps
			minus := objective()
			p.Value[i] = orig
			numeric := (plus - minus) / (2 * eps)
			if math.Abs(numeric-p.Grad[i]) > 1e-6 {
				t.Fatalf("%s[%d]: analytic=%g numeric=%g", p.Name, i, p.Grad[i], numeric)
			}
		}
	}

	for i := range x {
		orig := x[i]
		x[i] = orig + eps
		plus := objective()
		x[i] = orig - eps
		minus := objective()
		x[i] = orig
		numeric := (plus - minus) / (2 * eps)
		if math.Abs(numeric-dx[i]) > 1e-6 {
			t.Fatalf("dx[%d]: analytic=%g numeric=%g", i, dx[i], numeric)
		}
	}
}
