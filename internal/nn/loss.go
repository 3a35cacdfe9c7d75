package nn

// Loss scores a scalar prediction against a scalar target and
// provides the gradient with respect to the prediction.
type Loss interface {
	Name() string
	Value(pred, target float64) float64
	Grad(pred, target float64) float64
}

// MSE is the default regression criterion.
type MSE struct{}

func (MSE) Name() string { return "mse" }

func (MSE) Value(pred, target float64) float64 {
	d := pred - target
	return d * d
}

func (MSE) Grad(pred, target float64) float64 {
	return 2 * (pred - target)
}

// HuberLoss trades the MSE tails for absolute error beyond Delta.
type HuberLoss struct {
	Delta float64
}

func (h HuberLoss) delta() float64 {
	if h.Delta <= 0 {
		return 1
	}
	return h.Delta
}

func (h HuberLoss) Name() string { return "huber" }

func (h HuberLoss) Value(pred, target float64) float64 {
	d := pred - target
	if d < 0 {
		d = -d
	}
	delta := h.delta()
	if d <= delta {
		return 0.5 * d * d
	}
	return delta * (d - 0.5*delta)
}

func (h HuberLoss) Grad(pred, target float64) float64 {
	d := pred - target
	delta := h.delta()
	if d > delta {
		return delta
	}
	if d < -delta {
		return -delta
	}
	return d
}
