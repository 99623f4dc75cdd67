// Package features turns a flowtable.Flow's derived FlowFeatures into the
// fixed-width numeric vector the anomaly model consumes, and maintains the
// online per-dimension normalizer statistics.
package features

import (
	"math"
	"strings"
	"sync"

	"netids/internal/core/model"
)

// VectorSize is the fixed width of the extracted feature vector.
const VectorSize = 20

// Extract renders FlowFeatures into the fixed 20-dimensional vector, in
// a stable dimension order the normalizer and model both rely on.
func Extract(f model.FlowFeatures) [VectorSize]float32 {
	var v [VectorSize]float32

	v[0] = f.Duration
	v[1] = float32(f.PacketCount)
	v[2] = float32(f.ByteCount)
	v[3] = f.PacketsPerSecond
	v[4] = f.BytesPerSecond
	v[5] = f.AvgPacketSize
	v[6] = f.PortEntropy
	v[7] = f.PacketSizeVariance

	if len(f.InterArrivalTimes) > 0 {
		var sum float32
		for _, x := range f.InterArrivalTimes {
			sum += x
		}
		mean := sum / float32(len(f.InterArrivalTimes))

		var sumSq float32
		min, max := f.InterArrivalTimes[0], f.InterArrivalTimes[0]
		for _, x := range f.InterArrivalTimes {
			d := x - mean
			sumSq += d * d
			if x < min {
				min = x
			}
			if x > max {
				max = x
			}
		}
		variance := sumSq / float32(len(f.InterArrivalTimes))

		v[8] = mean
		v[9] = float32(math.Sqrt(float64(variance)))
		v[10] = min
		v[11] = max
	}

	totalPackets := float32(0)
	for _, c := range f.ProtocolHistogram {
		totalPackets += float32(c)
	}
	if totalPackets > 0 {
		v[12] = float32(f.ProtocolHistogram[model.ProtocolTCP.String()]) / totalPackets
		v[13] = float32(f.ProtocolHistogram[model.ProtocolUDP.String()]) / totalPackets
		v[14] = float32(f.ProtocolHistogram[model.ProtocolICMP.String()]) / totalPackets
	}

	v[15] = countFlag(f.FlagPatterns, "SYN")
	v[16] = countFlag(f.FlagPatterns, "ACK")
	v[17] = countFlag(f.FlagPatterns, "FIN")
	v[18] = countFlag(f.FlagPatterns, "RST")
	// v[19] stays zero: a reserved padding slot for a future dimension.

	return v
}

func countFlag(flags []string, substr string) float32 {
	var n float32
	for _, f := range flags {
		if strings.Contains(f, substr) {
			n++
		}
	}
	return n
}

// Normalizer is the single process-wide, writer-locked resource backing
// the online per-dimension mean/std/min/max statistics. Until the first
// Update, it is the identity transform.
type Normalizer struct {
	mu      sync.RWMutex
	count   uint64
	means   [VectorSize]float32
	stds    [VectorSize]float32
	mins    [VectorSize]float32
	maxs    [VectorSize]float32
}

// NewNormalizer returns a fresh, zero-state normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize applies (x-mean)/std per dimension, using whichever statistics
// are live when it's called — it does not itself update them. Before the
// first Update call this is the identity, and any dimension whose std is
// at or below 1e-8 normalizes to zero rather than dividing by a
// near-zero denominator.
func (n *Normalizer) Normalize(x [VectorSize]float32) [VectorSize]float32 {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.count == 0 {
		return x
	}

	var out [VectorSize]float32
	for i := range x {
		if n.stds[i] > 1e-8 {
			out[i] = (x[i] - n.means[i]) / n.stds[i]
		}
	}
	return out
}

// Update folds a freshly-extracted (not normalized) feature vector into
// the running Welford statistics. Called after inference so inference and
// the statistics it reads stay consistent within a call.
func (n *Normalizer) Update(x [VectorSize]float32) {
	n.mu.Lock()
	defer n.mu.Unlock()

	count := n.count + 1
	for i := range x {
		oldMean := n.means[i]
		newMean := oldMean + (x[i]-oldMean)/float32(count)

		var oldM2 float32
		if n.count > 1 {
			oldStd := n.stds[i]
			oldM2 = oldStd * oldStd * float32(n.count-1)
		}
		newM2 := oldM2 + (x[i]-oldMean)*(x[i]-newMean)

		var newStd float32
		if count > 1 {
			newStd = float32(math.Sqrt(float64(newM2 / float32(count-1))))
		}

		n.means[i] = newMean
		n.stds[i] = newStd

		if n.count == 0 || x[i] < n.mins[i] {
			n.mins[i] = x[i]
		}
		if n.count == 0 || x[i] > n.maxs[i] {
			n.maxs[i] = x[i]
		}
	}
	n.count = count
}
