// Package anomaly hand-rolls a three-layer feed-forward scorer. No
// tensor/ML library is wired into this module (see DESIGN.md), so the
// forward pass is plain [][]float32 matmuls.
package anomaly

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"netids/internal/core/model"
	"netids/internal/features"
)

const (
	inputSize  = features.VectorSize
	hiddenSize = 64
	hidden2    = hiddenSize / 2
)

type linear struct {
	weights [][]float32 // [out][in]
	bias    []float32
}

func newLinear(in, out int, rng *rand.Rand) linear {
	// Xavier-ish uniform init.
	limit := float32(math.Sqrt(6.0 / float64(in+out)))
	l := linear{
		weights: make([][]float32, out),
		bias:    make([]float32, out),
	}
	for i := range l.weights {
		row := make([]float32, in)
		for j := range row {
			row[j] = (rng.Float32()*2 - 1) * limit
		}
		l.weights[i] = row
	}
	return l
}

func (l linear) forward(x []float32) []float32 {
	out := make([]float32, len(l.weights))
	for i, row := range l.weights {
		var sum float32
		for j, w := range row {
			sum += w * x[j]
		}
		out[i] = sum + l.bias[i]
	}
	return out
}

func relu(x []float32) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		if v > 0 {
			out[i] = v
		}
	}
	return out
}

func sigmoid(x float32) float32 {
	return 1 / (1 + float32(math.Exp(float64(-x))))
}

// Model is the fixed-shape Linear(20->64)->ReLU->Linear(64->32)->ReLU->
// Linear(32->1)->Sigmoid scorer. Weights are randomly initialized once and
// never persisted or trained at steady state — see DESIGN.md's Open
// Question decision.
type Model struct {
	layer1 linear
	layer2 linear
	output linear

	normalizer *features.Normalizer

	trainMu sync.Mutex
	buffer  []trainingExample
}

type trainingExample struct {
	features [features.VectorSize]float32
	label    float32
}

// New builds a model with freshly randomized weights, seeded from the
// current time at construction.
func New(normalizer *features.Normalizer) *Model {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Model{
		layer1:     newLinear(inputSize, hiddenSize, rng),
		layer2:     newLinear(hiddenSize, hidden2, rng),
		output:     newLinear(hidden2, 1, rng),
		normalizer: normalizer,
	}
}

// Predict takes a flow's derived features and returns its anomaly score.
// Any non-finite result is treated as an inference failure: the caller
// gets ok=false and must treat the flow as non-anomalous.
func (m *Model) Predict(f model.FlowFeatures) (score float32, ok bool) {
	raw := features.Extract(f)
	normalized := m.normalizer.Normalize(raw)

	h1 := relu(m.layer1.forward(normalized[:]))
	h2 := relu(m.layer2.forward(h1))
	out := m.output.forward(h2)

	score = sigmoid(out[0])

	// The normalizer updates off the hot inference path, using the same
	// raw (pre-normalization) vector.
	m.normalizer.Update(raw)

	if math.IsNaN(float64(score)) || math.IsInf(float64(score), 0) {
		return 0, false
	}
	return score, true
}

// AddTrainingExample appends a labeled example to the capped buffer,
// trimming the oldest 1,000 whenever it exceeds 10,000, even though
// nothing currently labels live traffic; the buffer is exercised
// directly by TrainStep and by tests.
func (m *Model) AddTrainingExample(f model.FlowFeatures, isAnomaly bool) {
	raw := features.Extract(f)
	label := float32(0)
	if isAnomaly {
		label = 1
	}

	m.trainMu.Lock()
	defer m.trainMu.Unlock()

	m.buffer = append(m.buffer, trainingExample{features: raw, label: label})
	if len(m.buffer) > 10000 {
		m.buffer = append([]trainingExample(nil), m.buffer[1000:]...)
	}
}

// TrainStep computes batched binary cross-entropy against the current
// weights for telemetry only; it never applies a gradient update. The
// model stays untrained at steady state by design, not by omission (see
// DESIGN.md).
func (m *Model) TrainStep(batchSize int) (loss float32, err error) {
	m.trainMu.Lock()
	examples := append([]trainingExample(nil), m.buffer...)
	m.trainMu.Unlock()

	if len(examples) < batchSize {
		return 0, nil
	}
	if batchSize > len(examples) {
		batchSize = len(examples)
	}

	// 1-eps must stay below 1.0 in float32 so log(1-p) remains finite.
	const eps = 1e-7
	var total float32
	for _, ex := range examples[:batchSize] {
		normalized := m.normalizer.Normalize(ex.features)
		h1 := relu(m.layer1.forward(normalized[:]))
		h2 := relu(m.layer2.forward(h1))
		pred := sigmoid(m.output.forward(h2)[0])

		clamped := clamp(pred, eps, 1-eps)
		bce := -(ex.label*logf(clamped) + (1-ex.label)*logf(1-clamped))
		total += bce
	}

	return total / float32(batchSize), nil
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func logf(x float32) float32 {
	return float32(math.Log(float64(x)))
}
