package nn

import "math"

func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func Tanh(x float64) float64 {
	return math.Tanh(x)
}

func ReLU(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}

// ReLUDeriv is the derivative of ReLU evaluated at the pre-activation.
func ReLUDeriv(pre float64) float64 {
	if pre > 0 {
		return 1
	}
	return 0
}

// ReLUVec applies ReLU in place.
func ReLUVec(v []float64) {
	for i := range v {
		if v[i] < 0 {
			v[i] = 0
		}
	}
}
