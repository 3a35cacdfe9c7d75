package nn

import (
	"math"
	"testing"
)

func TestAdamMinimizesQuadratic(t *testing.T) {
	p := NewParam("w", 2)
	p.Value[0] = 4
	p.Value[1] = -3

	opt := NewAdam([]*Param{p}, 0.05)
	for step := 0; step < 2000; step++ {
		opt.ZeroGrad()
		// loss = (w0-1)^2 + (w1+2)^2
		p.Grad[0] = 2 * (p.Value[0] - 1)
		p.Grad[1] = 2 * (p.Value[1] + 2)
		opt.Step()
	}

	if math.Abs(p.Value[0]-1) > 1e-3 || math.Abs(p.Value[1]+2) > 1e-3 {
		t.Fatalf("adam failed to converge: %v", p.Value)
	}
}

func TestAdamDefaultLearningRate(t *testing.T) {
	p := NewParam("w", 1)
	opt := NewAdam([]*Param{p}, 0)
	if opt.LR != defaultLR {
		t.Fatalf("expected default learning rate %g, got %g", defaultLR, opt.LR)
	}
}

func TestScaleGrads(t *testing.T) {
	p := NewParam("w", 2)
	p.Grad[0] = 4
	p.Grad[1] = -2
	ScaleGrads([]*Param{p}, 0.5)
	if p.Grad[0] != 2 || p.Grad[1] != -1 {
		t.Fatalf("unexpected scaled grads: %v", p.Grad)
	}
}

func TestMSE(t *testing.T) {
	var l MSE
	if l.Value(3, 1) != 4 {
		t.Fatalf("unexpected mse value: %f", l.Value(3, 1))
	}
	if l.Grad(3, 1) != 4 {
		t.Fatalf("unexpected mse grad: %f", l.Grad(3, 1))
	}
}

func TestHuber(t *testing.T) {
	l := HuberLoss{Delta: 1}
	if math.Abs(l.Value(0.5, 0)-0.125) > 1e-12 {
		t.Fatalf("unexpected huber value inside delta: %f", l.Value(0.5, 0))
	}
	if math.Abs(l.Value(3, 0)-2.5) > 1e-12 {
		t.Fatalf("unexpected huber value outside delta: %f", l.Value(3, 0))
	}
	if l.Grad(3, 0) != 1 || l.Grad(-3, 0) != -1 {
		t.Fatalf("huber grad must clamp to +/-delta")
	}
}
