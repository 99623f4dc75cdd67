package stats

import (
	"net"
	"testing"

	"netids/internal/core/model"
)

func TestRecordPacketAccumulates(t *testing.T) {
	acc := New()
	acc.RecordPacket(100, model.ProtocolTCP)
	acc.RecordPacket(200, model.ProtocolUDP)

	snap := acc.Snapshot()
	if snap.PacketsProcessed != 2 {
		t.Errorf("PacketsProcessed = %d, want 2", snap.PacketsProcessed)
	}
	if snap.BytesProcessed != 300 {
		t.Errorf("BytesProcessed = %d, want 300", snap.BytesProcessed)
	}
	if snap.ProtocolHistogram["TCP"] != 1 || snap.ProtocolHistogram["UDP"] != 1 {
		t.Errorf("ProtocolHistogram = %v, want TCP:1 UDP:1", snap.ProtocolHistogram)
	}
}

func TestThreatCountConservation(t *testing.T) {
	acc := New()
	acc.IncrementThreatCount(model.SeverityLow)
	acc.IncrementThreatCount(model.SeverityLow)
	acc.IncrementThreatCount(model.SeverityHigh)

	snap := acc.Snapshot()

	var sum uint32
	for _, n := range snap.AlertCounts {
		sum += n
	}
	if uint64(sum) != snap.ThreatsDetected {
		t.Errorf("sum of alert_counts (%d) != threats_detected (%d)", sum, snap.ThreatsDetected)
	}
	if snap.ThreatsDetected != 3 {
		t.Errorf("ThreatsDetected = %d, want 3", snap.ThreatsDetected)
	}
}

func TestCountersMonotonic(t *testing.T) {
	acc := New()
	var lastPackets, lastBytes uint64

	for i := 0; i < 5; i++ {
		acc.RecordPacket(50, model.ProtocolTCP)
		snap := acc.Snapshot()
		if snap.PacketsProcessed < lastPackets {
			t.Fatalf("packets_processed decreased: %d -> %d", lastPackets, snap.PacketsProcessed)
		}
		if snap.BytesProcessed < lastBytes {
			t.Fatalf("bytes_processed decreased: %d -> %d", lastBytes, snap.BytesProcessed)
		}
		lastPackets = snap.PacketsProcessed
		lastBytes = snap.BytesProcessed
	}
}

func TestTopTalkersTruncation(t *testing.T) {
	acc := New()
	for i := 0; i < 25; i++ {
		ip := net.IPv4(10, 0, 0, byte(i+1))
		acc.RecordTopTalker(ip, net.IPv4(8, 8, 8, 8), i*10)
	}

	snap := acc.Snapshot()
	if len(snap.TopTalkers) > 20 {
		t.Errorf("TopTalkers len = %d, want truncated to <= 20 (target 10 after truncation pass)", len(snap.TopTalkers))
	}
}

func TestSnapshotIsIndependentClone(t *testing.T) {
	acc := New()
	acc.RecordPacket(10, model.ProtocolTCP)

	snap := acc.Snapshot()
	snap.ProtocolHistogram["TCP"] = 9999

	snap2 := acc.Snapshot()
	if snap2.ProtocolHistogram["TCP"] == 9999 {
		t.Error("mutating a Snapshot's map must not affect the accumulator's internal state")
	}
}
