// Package model holds the data types shared across the capture, flow
// table, detection and supervisor packages.
package model

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
)

// Protocol identifies the transport (or other) protocol of a packet/flow.
type Protocol struct {
	name    string
	other   uint8
	isOther bool
}

var (
	ProtocolTCP  = Protocol{name: "TCP"}
	ProtocolUDP  = Protocol{name: "UDP"}
	ProtocolICMP = Protocol{name: "ICMP"}
)

// ProtocolOther builds the catch-all variant for an IP protocol number with
// no dedicated constant.
func ProtocolOther(n uint8) Protocol {
	return Protocol{isOther: true, other: n}
}

func (p Protocol) String() string {
	if p.isOther {
		return fmt.Sprintf("Protocol(%d)", p.other)
	}
	return p.name
}

// Equal reports whether two protocol values represent the same wire protocol.
func (p Protocol) Equal(o Protocol) bool {
	return p.isOther == o.isOther && p.other == o.other && p.name == o.name
}

// ParsedPacket is one captured frame after L2/L3/L4 decode. Immutable once
// produced by a capture.Source.
type ParsedPacket struct {
	ID        uuid.UUID
	Timestamp time.Time
	SrcIP     net.IP
	DstIP     net.IP
	SrcPort   *uint16
	DstPort   *uint16
	Protocol  Protocol
	Size      int
	Flags     []string
	Raw       []byte
}

// Severity is a totally ordered alert grade.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "Low"
	case SeverityMedium:
		return "Medium"
	case SeverityHigh:
		return "High"
	case SeverityCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// MarshalJSON renders the severity as its display string rather than its
// underlying integer.
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON parses the display string MarshalJSON produces back into
// the underlying integer, so a ThreatAlert round-trips through JSON.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch str {
	case "Low":
		*s = SeverityLow
	case "Medium":
		*s = SeverityMedium
	case "High":
		*s = SeverityHigh
	case "Critical":
		*s = SeverityCritical
	default:
		return fmt.Errorf("unknown severity %q", str)
	}
	return nil
}

// ThreatType enumerates the kinds of alert a detector can raise.
type ThreatType int

const (
	ThreatPortScan ThreatType = iota
	ThreatDDoS
	ThreatAnomalous
	ThreatSuspicious
	ThreatMalformedPacket
	ThreatUnusualTraffic
	ThreatPotentialIntrusion
)

func (t ThreatType) String() string {
	switch t {
	case ThreatPortScan:
		return "Port Scan"
	case ThreatDDoS:
		return "DDoS Attack"
	case ThreatAnomalous:
		return "Anomalous Behavior"
	case ThreatSuspicious:
		return "Suspicious Activity"
	case ThreatMalformedPacket:
		return "Malformed Packet"
	case ThreatUnusualTraffic:
		return "Unusual Traffic Pattern"
	case ThreatPotentialIntrusion:
		return "Potential Intrusion"
	default:
		return "Unknown"
	}
}

func (t ThreatType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON parses the display string MarshalJSON produces back into
// the underlying integer, so a ThreatAlert round-trips through JSON.
func (t *ThreatType) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch str {
	case "Port Scan":
		*t = ThreatPortScan
	case "DDoS Attack":
		*t = ThreatDDoS
	case "Anomalous Behavior":
		*t = ThreatAnomalous
	case "Suspicious Activity":
		*t = ThreatSuspicious
	case "Malformed Packet":
		*t = ThreatMalformedPacket
	case "Unusual Traffic Pattern":
		*t = ThreatUnusualTraffic
	case "Potential Intrusion":
		*t = ThreatPotentialIntrusion
	default:
		return fmt.Errorf("unknown threat type %q", str)
	}
	return nil
}

// ThreatExplanation is the structured "why" attached to every alert.
type ThreatExplanation struct {
	PrimaryIndicators  []string           `json:"primary_indicators"`
	FeatureImportance  map[string]float32 `json:"feature_importance"`
	SimilarIncidents   []string           `json:"similar_incidents"`
	RecommendedActions []string           `json:"recommended_actions"`
}

// ThreatAlert is emitted by a rule or the anomaly model.
type ThreatAlert struct {
	ID            uuid.UUID         `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	Severity      Severity          `json:"severity"`
	ThreatType    ThreatType        `json:"threat_type"`
	Confidence    float32           `json:"confidence"`
	AnomalyScore  float32           `json:"anomaly_score"`
	SourceIP      net.IP            `json:"source_ip"`
	TargetIP      net.IP            `json:"target_ip,omitempty"`
	AffectedPorts []uint16          `json:"affected_ports"`
	Description   string            `json:"description"`
	Explanation   ThreatExplanation `json:"explanation"`
	RawPackets    []uuid.UUID       `json:"raw_packets"`
}

// FlowFeatures is the on-demand snapshot a flow renders for the detectors.
type FlowFeatures struct {
	FlowKey             string
	Duration            float32
	PacketCount         uint32
	ByteCount           uint64
	PacketsPerSecond    float32
	BytesPerSecond      float32
	AvgPacketSize       float32
	ProtocolHistogram   map[string]uint32
	PortEntropy         float32
	InterArrivalTimes   []float32
	PacketSizeVariance  float32
	FlagPatterns        []string
}

// SystemStats is the shared, lock-protected accumulator's by-value snapshot.
type SystemStats struct {
	StartTime         time.Time         `json:"start_time"`
	PacketsProcessed  uint64            `json:"packets_processed"`
	BytesProcessed    uint64            `json:"bytes_processed"`
	ThreatsDetected   uint64            `json:"threats_detected"`
	ProcessingRate    float32           `json:"processing_rate"`
	MemoryUsage       uint64            `json:"memory_usage"`
	CPUUsage          float32           `json:"cpu_usage"`
	ActiveFlows       uint32            `json:"active_flows"`
	AlertCounts       map[string]uint32 `json:"alert_counts"`
	ProtocolHistogram map[string]uint64 `json:"protocol_distribution"`
	TopTalkers        []TopTalker       `json:"top_talkers"`
}

// TopTalker is one entry of the bounded top-talkers list.
type TopTalker struct {
	IP    net.IP `json:"ip"`
	Bytes uint64 `json:"bytes"`
}
