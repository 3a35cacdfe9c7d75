package nn

import (
	"math/rand"
	"strconv"
)

// LSTM is a single recurrent layer. Gate weights are packed in the
// order input, forget, cell, output: Wx is (4H x In), Wh is (4H x H),
// B is 4H. Hidden and cell state start at zero for every sequence.
type LSTM struct {
	In, Hidden int
	Wx, Wh, B  *Param
}

// LSTMCache keeps everything the backward pass needs for one sequence.
type LSTMCache struct {
	inputs  [][]float64
	gates   [][]float64 // per step: i, f, g, o after nonlinearity (4H)
	cells   [][]float64 // c_t
	tanhC   [][]float64 // tanh(c_t)
	hiddens [][]float64 // h_t
}

func NewLSTM(name string, in, hidden int, rng *rand.Rand) *LSTM {
	l := &LSTM{
		In:     in,
		Hidden: hidden,
		Wx:     NewParam(name+".weight_ih", 4*hidden*in),
		Wh:     NewParam(name+".weight_hh", 4*hidden*hidden),
		B:      NewParam(name+".bias", 4*hidden),
	}
	XavierFill(rng, l.Wx.Value, in, hidden)
	XavierFill(rng, l.Wh.Value, hidden, hidden)
	return l
}

// Forward runs the layer over one sequence and returns the hidden
// state sequence plus the cache for Backward. Pass a nil cache
// pointer consumer for inference.
func (l *LSTM) Forward(seq [][]float64) (hiddens [][]float64, cache *LSTMCache) {
	h := make([]float64, l.Hidden)
	c := make([]float64, l.Hidden)

	cache = &LSTMCache{
		inputs:  seq,
		gates:   make([][]float64, len(seq)),
		cells:   make([][]float64, len(seq)),
		tanhC:   make([][]float64, len(seq)),
		hiddens: make([][]float64, len(seq)),
	}
	hiddens = make([][]float64, len(seq))

	for t, x := range seq {
		pre := make([]float64, 4*l.Hidden)
		for j := 0; j < 4*l.Hidden; j++ {
			sum := l.B.Value[j]
			xRow := l.Wx.Value[j*l.In : (j+1)*l.In]
			for i, v := range x {
				sum += xRow[i] * v
			}
			hRow := l.Wh.Value[j*l.Hidden : (j+1)*l.Hidden]
			for i, v := range h {
				sum += hRow[i] * v
			}
			pre[j] = sum
		}

		gates := make([]float64, 4*l.Hidden)
		newC := make([]float64, l.Hidden)
		newH := make([]float64, l.Hidden)
		tanhC := make([]float64, l.Hidden)
		for j := 0; j < l.Hidden; j++ {
			ig := Sigmoid(pre[j])
			fg := Sigmoid(pre[l.Hidden+j])
			gg := Tanh(pre[2*l.Hidden+j])
			og := Sigmoid(pre[3*l.Hidden+j])
			gates[j] = ig
			gates[l.Hidden+j] = fg
			gates[2*l.Hidden+j] = gg
			gates[3*l.Hidden+j] = og

			newC[j] = fg*c[j] + ig*gg
			tanhC[j] = Tanh(newC[j])
			newH[j] = og * tanhC[j]
		}

		cache.gates[t] = gates
		cache.cells[t] = newC
		cache.tanhC[t] = tanhC
		cache.hiddens[t] = newH
		hiddens[t] = newH
		h = newH
		c = newC
	}
	return hiddens, cache
}

// Backward runs full backpropagation through time over the cached
// sequence.
// dHiddens carries the loss gradient on every timestep's hidden
// output (zeros except the last step for a final-state head).
// It accumulates parameter gradients and returns the gradient with
// respect to each input step.
func (l *LSTM) Backward(cache *LSTMCache, dHiddens [][]float64) [][]float64 {
	steps := len(cache.inputs)
	dInputs := make([][]float64, steps)

	dhNext := make([]float64, l.Hidden)
	dcNext := make([]float64, l.Hidden)

	for t := steps - 1; t >= 0; t-- {
		gates := cache.gates[t]
		tanhC := cache.tanhC[t]

		var prevC, prevH []float64
		if t > 0 {
			prevC = cache.cells[t-1]
			prevH = cache.hiddens[t-1]
		} else {
			prevC = make([]float64, l.Hidden)
			prevH = make([]float64, l.Hidden)
		}

		dh := make([]float64, l.Hidden)
		copy(dh, dhNext)
		if dHiddens != nil && dHiddens[t] != nil {
			for j, v := range dHiddens[t] {
				dh[j] += v
			}
		}

		dPre := make([]float64, 4*l.Hidden)
		dcPrev := make([]float64, l.Hidden)
		for j := 0; j < l.Hidden; j++ {
			ig := gates[j]
			fg := gates[l.Hidden+j]
			gg := gates[2*l.Hidden+j]
			og := gates[3*l.Hidden+j]

			dc := dh[j]*og*(1-tanhC[j]*tanhC[j]) + dcNext[j]

			dPre[j] = dc * gg * ig * (1 - ig)
			dPre[l.Hidden+j] = dc * prevC[j] * fg * (1 - fg)
			dPre[2*l.Hidden+j] = dc * ig * (1 - gg*gg)
			dPre[3*l.Hidden+j] = dh[j] * tanhC[j] * og * (1 - og)

			dcPrev[j] = dc * fg
		}

		x := cache.inputs[t]
		dx := make([]float64, l.In)
		dhPrev := make([]float64, l.Hidden)
		for j := 0; j < 4*l.Hidden; j++ {
			g := dPre[j]
			l.B.Grad[j] += g

			xRow := l.Wx.Value[j*l.In : (j+1)*l.In]
			gxRow := l.Wx.Grad[j*l.In : (j+1)*l.In]
			for i := 0; i < l.In; i++ {
				gxRow[i] += g * x[i]
				dx[i] += xRow[i] * g
			}

			hRow := l.Wh.Value[j*l.Hidden : (j+1)*l.Hidden]
			ghRow := l.Wh.Grad[j*l.Hidden : (j+1)*l.Hidden]
			for i := 0; i < l.Hidden; i++ {
				ghRow[i] += g * prevH[i]
				dhPrev[i] += hRow[i] * g
			}
		}

		dInputs[t] = dx
		dhNext = dhPrev
		dcNext = dcPrev
	}
	return dInputs
}

func (l *LSTM) Params() []*Param {
	return []*Param{l.Wx, l.Wh, l.B}
}

// LSTMStack chains recurrent layers; each layer consumes the hidden
// sequence of the one below.
type LSTMStack struct {
	Layers []*LSTM
}

// NewLSTMStack builds numLayers stacked LSTMs with the same hidden
// width; the first consumes in features.
func NewLSTMStack(name string, in, hidden, numLayers int, rng *rand.Rand) *LSTMStack {
	layers := make([]*LSTM, numLayers)
	for i := range layers {
		layerIn := hidden
		if i == 0 {
			layerIn = in
		}
		layers[i] = NewLSTM(lstmLayerName(name, i), layerIn, hidden, rng)
	}
	return &LSTMStack{Layers: layers}
}

func lstmLayerName(name string, i int) string {
	return name + ".l" + strconv.Itoa(i)
}

// Forward returns the final timestep hidden state of the top layer
// and the per-layer caches.
func (s *LSTMStack) Forward(seq [][]float64) (last []float64, caches []*LSTMCache) {
	caches = make([]*LSTMCache, len(s.Layers))
	current := seq
	for i, layer := range s.Layers {
		hiddens, cache := layer.Forward(current)
		caches[i] = cache
		current = hiddens
	}
	return current[len(current)-1], caches
}

// Backward propagates the gradient on the final hidden state down the
// stack, accumulating all parameter gradients.
func (s *LSTMStack) Backward(caches []*LSTMCache, dLast []float64) {
	steps := len(caches[0].inputs)
	top := len(s.Layers) - 1

	dHiddens := make([][]float64, steps)
	dHiddens[steps-1] = dLast

	for i := top; i >= 0; i-- {
		dInputs := s.Layers[i].Backward(caches[i], dHiddens)
		dHiddens = dInputs
	}
}

func (s *LSTMStack) Params() []*Param {
	var params []*Param
	for _, layer := range s.Layers {
		params = append(params, layer.Params()...)
	}
	return params
}

func (s *LSTMStack) Hidden() int {
	return s.Layers[len(s.Layers)-1].Hidden
}
