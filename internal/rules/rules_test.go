package rules

import (
	"net"
	"testing"
	"time"

	"github.com/google/uuid"

	"netids/internal/core/model"
	"netids/internal/flowtable"
)

func makePacket(src, dst string, srcPort, dstPort uint16, flags ...string) *model.ParsedPacket {
	sp, dp := srcPort, dstPort
	return &model.ParsedPacket{
		ID:        uuid.New(),
		Timestamp: time.Now(),
		SrcIP:     net.ParseIP(src),
		DstIP:     net.ParseIP(dst),
		SrcPort:   &sp,
		DstPort:   &dp,
		Protocol:  model.ProtocolTCP,
		Size:      64,
		Flags:     flags,
	}
}

func TestDetectSuspiciousFlagsIllegalCombo(t *testing.T) {
	table := flowtable.New(4)
	p := makePacket("203.0.113.7", "10.0.0.9", 40000, 443, "SYN", "FIN")
	flow, _ := table.Upsert(p)

	alert := DetectSuspiciousFlags(flow)
	if alert == nil {
		t.Fatal("expected an alert for SYN+FIN on one flow")
	}
	if alert.Severity != model.SeverityMedium {
		t.Errorf("Severity = %v, want Medium", alert.Severity)
	}
	if alert.ThreatType != model.ThreatSuspicious {
		t.Errorf("ThreatType = %v, want Suspicious", alert.ThreatType)
	}
	if alert.Confidence != 0.6 {
		t.Errorf("Confidence = %f, want 0.6", alert.Confidence)
	}
}

func TestDetectSuspiciousFlagsBenignFlow(t *testing.T) {
	table := flowtable.New(4)
	p := makePacket("1.2.3.4", "5.6.7.8", 1000, 443, "SYN")
	flow, _ := table.Upsert(p)
	flow.AddPacket(makePacket("1.2.3.4", "5.6.7.8", 1000, 443, "ACK"))

	if alert := DetectSuspiciousFlags(flow); alert != nil {
		t.Errorf("expected no alert for a normal SYN/ACK handshake, got %+v", alert)
	}
}

func TestDetectSuspiciousFlagsHighSYNCount(t *testing.T) {
	table := flowtable.New(4)
	p := makePacket("1.2.3.4", "5.6.7.8", 1000, 443, "SYN")
	flow, _ := table.Upsert(p)
	for i := 0; i < 15; i++ {
		flow.AddPacket(makePacket("1.2.3.4", "5.6.7.8", 1000, 443, "SYN"))
	}

	alert := DetectSuspiciousFlags(flow)
	if alert == nil {
		t.Fatal("expected an alert for more than 10 SYN-bearing packets")
	}
}

func TestDetectPortScanNineUniquePorts(t *testing.T) {
	table := flowtable.New(4)
	ports := []uint16{21, 22, 23, 25, 80, 443, 3306, 3389, 8080}
	for _, port := range ports {
		table.Upsert(makePacket("203.0.113.7", "10.0.0.5", 40000, port, "SYN"))
	}

	alert := DetectPortScan(table.SnapshotAll())
	if alert == nil {
		t.Fatal("expected a port scan alert for 9 unique ports from one source")
	}
	if alert.SourceIP.String() != "203.0.113.7" {
		t.Errorf("SourceIP = %s, want 203.0.113.7", alert.SourceIP)
	}
	if alert.Severity != model.SeverityLow {
		t.Errorf("Severity = %v, want Low for 9 unique ports", alert.Severity)
	}
	wantConfidence := float32(0.09)
	if alert.Confidence != wantConfidence {
		t.Errorf("Confidence = %f, want %f", alert.Confidence, wantConfidence)
	}
	if len(alert.AffectedPorts) != len(ports) {
		t.Errorf("AffectedPorts has %d entries, want %d", len(alert.AffectedPorts), len(ports))
	}
}

func TestDetectPortScanBelowThreshold(t *testing.T) {
	table := flowtable.New(4)
	for _, port := range []uint16{80, 443, 22} {
		table.Upsert(makePacket("198.51.100.2", "10.0.0.9", 40000, port, "SYN"))
	}

	if alert := DetectPortScan(table.SnapshotAll()); alert != nil {
		t.Errorf("expected no alert below the 5-unique-port threshold, got %+v", alert)
	}
}

func TestDetectDDoSVolumeThreshold(t *testing.T) {
	table := flowtable.New(4)
	for i := 0; i < 1200; i++ {
		src := net.IPv4(198, 51, 100, byte(1+i%20)).String()
		p := makePacket(src, "10.0.0.9", uint16(1024+i), 80, "ACK")
		p.Size = 1400
		table.Upsert(p)
	}

	alert := DetectDDoS(table.SnapshotAll())
	if alert == nil {
		t.Fatal("expected a DDoS alert above the 1000-packet threshold")
	}
	if alert.TargetIP.String() != "10.0.0.9" {
		t.Errorf("TargetIP = %s, want 10.0.0.9", alert.TargetIP)
	}
	if alert.ThreatType != model.ThreatDDoS {
		t.Errorf("ThreatType = %v, want DDoS", alert.ThreatType)
	}
	if alert.Severity != model.SeverityMedium {
		t.Errorf("Severity = %v, want Medium (1200 pkts, 1.68MB is below the High threshold)", alert.Severity)
	}
}

func TestDetectDDoSBelowThreshold(t *testing.T) {
	table := flowtable.New(4)
	for i := 0; i < 10; i++ {
		table.Upsert(makePacket("198.51.100.2", "10.0.0.9", uint16(1024+i), 80, "ACK"))
	}

	if alert := DetectDDoS(table.SnapshotAll()); alert != nil {
		t.Errorf("expected no DDoS alert for a handful of packets, got %+v", alert)
	}
}
