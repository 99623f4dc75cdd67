// Package stats holds the process-wide counters the capture, detection and
// supervisor tasks all write into.
package stats

import (
	"net"
	"sync"
	"time"

	"netids/internal/core/model"
)

// Accumulator is the single writer-locked live resource backing
// model.SystemStats. Callers read it via Snapshot, never by touching the
// fields directly.
type Accumulator struct {
	mu sync.RWMutex

	startTime        time.Time
	packetsProcessed uint64
	bytesProcessed   uint64
	threatsDetected  uint64
	processingRate   float32
	memoryUsage      uint64
	cpuUsage         float32
	activeFlows      uint32
	alertCounts      map[model.Severity]uint32
	protocolHist     map[string]uint64
	topTalkers       []model.TopTalker

	lastRateCalc time.Time
	lastPktCount uint64
}

// New returns a freshly zeroed accumulator with StartTime set to now.
func New() *Accumulator {
	now := time.Now()
	return &Accumulator{
		startTime:    now,
		alertCounts:  make(map[model.Severity]uint32),
		protocolHist: make(map[string]uint64),
		lastRateCalc: now,
	}
}

// RecordPacket bumps the packet/byte counters and the protocol
// histogram, and recomputes processing_rate at most once per second.
func (a *Accumulator) RecordPacket(size int, proto model.Protocol) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.packetsProcessed++
	a.bytesProcessed += uint64(size)
	a.protocolHist[proto.String()]++

	now := time.Now()
	elapsed := now.Sub(a.lastRateCalc).Seconds()
	if elapsed >= 1.0 {
		delta := a.packetsProcessed - a.lastPktCount
		a.processingRate = float32(float64(delta) / elapsed)
		a.lastRateCalc = now
		a.lastPktCount = a.packetsProcessed
	}
}

// RecordTopTalker folds a packet's source/destination into the bounded
// top-talkers list, truncating to the top 10 by bytes whenever the list
// grows past 20.
func (a *Accumulator) RecordTopTalker(src, dst net.IP, size int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	srcFound, dstFound := false, false
	for i := range a.topTalkers {
		switch {
		case a.topTalkers[i].IP.Equal(src):
			a.topTalkers[i].Bytes += uint64(size)
			srcFound = true
		case a.topTalkers[i].IP.Equal(dst):
			a.topTalkers[i].Bytes += uint64(size)
			dstFound = true
		}
	}
	if !srcFound {
		a.topTalkers = append(a.topTalkers, model.TopTalker{IP: src, Bytes: uint64(size)})
	}
	if !dstFound && !dst.Equal(src) {
		a.topTalkers = append(a.topTalkers, model.TopTalker{IP: dst, Bytes: uint64(size)})
	}

	if len(a.topTalkers) > 20 {
		sortTopTalkersDesc(a.topTalkers)
		a.topTalkers = a.topTalkers[:10]
	}
}

func sortTopTalkersDesc(t []model.TopTalker) {
	for i := 1; i < len(t); i++ {
		for j := i; j > 0 && t[j].Bytes > t[j-1].Bytes; j-- {
			t[j], t[j-1] = t[j-1], t[j]
		}
	}
}

// SetActiveFlows mirrors the flow table's current size into Stats.
func (a *Accumulator) SetActiveFlows(n uint32) {
	a.mu.Lock()
	a.activeFlows = n
	a.mu.Unlock()
}

// SetSystemSample records a CPU/memory sample from the periodic sampler.
func (a *Accumulator) SetSystemSample(cpuPercent float32, memBytes uint64) {
	a.mu.Lock()
	a.cpuUsage = cpuPercent
	a.memoryUsage = memBytes
	a.mu.Unlock()
}

// IncrementThreatCount bumps threats_detected and the matching severity
// bucket, preserving the stats-conservation invariant that the two always
// sum together.
func (a *Accumulator) IncrementThreatCount(sev model.Severity) {
	a.mu.Lock()
	a.threatsDetected++
	a.alertCounts[sev]++
	a.mu.Unlock()
}

// Snapshot returns a by-value clone for external callers.
func (a *Accumulator) Snapshot() model.SystemStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	alertCounts := make(map[string]uint32, len(a.alertCounts))
	for sev, n := range a.alertCounts {
		alertCounts[sev.String()] = n
	}
	protoHist := make(map[string]uint64, len(a.protocolHist))
	for k, v := range a.protocolHist {
		protoHist[k] = v
	}
	talkers := make([]model.TopTalker, len(a.topTalkers))
	copy(talkers, a.topTalkers)

	return model.SystemStats{
		StartTime:         a.startTime,
		PacketsProcessed:  a.packetsProcessed,
		BytesProcessed:    a.bytesProcessed,
		ThreatsDetected:   a.threatsDetected,
		ProcessingRate:    a.processingRate,
		MemoryUsage:       a.memoryUsage,
		CPUUsage:          a.cpuUsage,
		ActiveFlows:       a.activeFlows,
		AlertCounts:       alertCounts,
		ProtocolHistogram: protoHist,
		TopTalkers:        talkers,
	}
}
