package anomaly

import (
	"math"
	"testing"

	"netids/internal/core/model"
	"netids/internal/features"
)

func TestPredictReturnsBoundedScore(t *testing.T) {
	normalizer := features.NewNormalizer()
	m := New(normalizer)

	f := model.FlowFeatures{
		Duration:         1.0,
		PacketCount:      20,
		ByteCount:        2000,
		PacketsPerSecond: 20,
		BytesPerSecond:   2000,
		AvgPacketSize:    100,
	}

	score, ok := m.Predict(f)
	if !ok {
		t.Fatal("Predict returned ok=false for a well-formed input")
	}
	if score < 0 || score > 1 {
		t.Errorf("score = %f, want in [0,1] (sigmoid output)", score)
	}
}

func TestPredictUpdatesNormalizer(t *testing.T) {
	normalizer := features.NewNormalizer()
	m := New(normalizer)

	f := model.FlowFeatures{Duration: 5, PacketCount: 50, ByteCount: 5000}
	if _, ok := m.Predict(f); !ok {
		t.Fatal("Predict failed")
	}

	// The normalizer should no longer be the identity transform after one
	// Predict call folded a vector into it.
	x := features.Extract(f)
	normalized := normalizer.Normalize(x)
	if normalized == x {
		t.Error("normalizer did not update after Predict")
	}
}

func TestAddTrainingExampleCapsBuffer(t *testing.T) {
	normalizer := features.NewNormalizer()
	m := New(normalizer)

	for i := 0; i < 10050; i++ {
		m.AddTrainingExample(model.FlowFeatures{PacketCount: uint32(i)}, i%2 == 0)
	}

	if len(m.buffer) > 10000 {
		t.Errorf("buffer length = %d, want <= 10000", len(m.buffer))
	}
}

func TestTrainStepBelowBatchSizeIsNoop(t *testing.T) {
	normalizer := features.NewNormalizer()
	m := New(normalizer)
	m.AddTrainingExample(model.FlowFeatures{PacketCount: 1}, false)

	loss, err := m.TrainStep(32)
	if err != nil {
		t.Fatalf("TrainStep error: %v", err)
	}
	if loss != 0 {
		t.Errorf("loss = %f, want 0 when buffer is smaller than batch size", loss)
	}
}

func TestTrainStepComputesFiniteLoss(t *testing.T) {
	normalizer := features.NewNormalizer()
	m := New(normalizer)
	for i := 0; i < 16; i++ {
		m.AddTrainingExample(model.FlowFeatures{PacketCount: uint32(i), ByteCount: uint64(i * 100)}, i%2 == 0)
	}

	loss, err := m.TrainStep(16)
	if err != nil {
		t.Fatalf("TrainStep error: %v", err)
	}
	if math.IsNaN(float64(loss)) || math.IsInf(float64(loss), 0) {
		t.Errorf("loss = %f, want a finite value", loss)
	}
	if loss < 0 {
		t.Errorf("BCE loss = %f, want >= 0", loss)
	}
}

func TestTrainStepNeverMutatesWeights(t *testing.T) {
	normalizer := features.NewNormalizer()
	m := New(normalizer)
	for i := 0; i < 16; i++ {
		m.AddTrainingExample(model.FlowFeatures{PacketCount: uint32(i)}, false)
	}

	before := m.layer1.weights[0][0]
	if _, err := m.TrainStep(16); err != nil {
		t.Fatalf("TrainStep error: %v", err)
	}
	after := m.layer1.weights[0][0]

	if before != after {
		t.Error("TrainStep must not mutate model weights")
	}
}
