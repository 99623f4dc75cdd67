// Package flowtable is the sharded, concurrent flow map, using
// fine-grained per-key locking instead of one global mutex.
package flowtable

import (
	"fmt"
	"math"
	"time"

	"netids/internal/core/model"
)

// Flow is an aggregated, directional conversation keyed by the 5-tuple
// (src_ip, src_port, dst_ip, dst_port, protocol).
type Flow struct {
	Key      string
	SrcIP    string
	DstIP    string
	SrcPort  *uint16
	DstPort  *uint16
	Protocol model.Protocol

	Packets   []*model.ParsedPacket
	StartTime time.Time
	LastSeen  time.Time
	ByteCount uint64
	FlagsSeen []string
}

// Key renders the flow-key wire format:
// "<src_ip>:<Some(port)|None>-<dst_ip>:<Some(port)|None>-<protocol>".
func Key(p *model.ParsedPacket) string {
	return fmt.Sprintf("%s:%s-%s:%s-%s",
		p.SrcIP.String(), portStr(p.SrcPort),
		p.DstIP.String(), portStr(p.DstPort),
		p.Protocol.String())
}

func portStr(p *uint16) string {
	if p == nil {
		return "None"
	}
	return fmt.Sprintf("Some(%d)", *p)
}

func newFlow(key string, p *model.ParsedPacket) *Flow {
	now := p.Timestamp
	return &Flow{
		Key:       key,
		SrcIP:     p.SrcIP.String(),
		DstIP:     p.DstIP.String(),
		SrcPort:   p.SrcPort,
		DstPort:   p.DstPort,
		Protocol:  p.Protocol,
		Packets:   []*model.ParsedPacket{p},
		StartTime: now,
		LastSeen:  now,
		ByteCount: uint64(p.Size),
		FlagsSeen: append([]string(nil), p.Flags...),
	}
}

func (f *Flow) AddPacket(p *model.ParsedPacket) {
	f.Packets = append(f.Packets, p)
	f.LastSeen = p.Timestamp
	f.ByteCount += uint64(p.Size)
	for _, flag := range p.Flags {
		if !containsFlag(f.FlagsSeen, flag) {
			f.FlagsSeen = append(f.FlagsSeen, flag)
		}
	}
}

func containsFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

// PacketCount is len(f.Packets) rendered as uint32.
func (f *Flow) PacketCount() uint32 {
	return uint32(len(f.Packets))
}

// Features derives the on-demand FlowFeatures snapshot a flow exposes to
// the detectors. Computed fresh every call; nothing here is cached on Flow.
func (f *Flow) Features() model.FlowFeatures {
	duration := float32(f.LastSeen.Sub(f.StartTime).Seconds())
	packetCount := f.PacketCount()

	var pps, bps float32
	if duration > 0 {
		pps = float32(packetCount) / duration
		bps = float32(f.ByteCount) / duration
	}

	var avgSize float32
	if packetCount > 0 {
		avgSize = float32(f.ByteCount) / float32(packetCount)
	}

	iats := make([]float32, 0, len(f.Packets)-1)
	for i := 1; i < len(f.Packets); i++ {
		diff := f.Packets[i].Timestamp.Sub(f.Packets[i-1].Timestamp).Seconds()
		iats = append(iats, float32(diff))
	}

	var variance float32
	if len(f.Packets) > 1 {
		var sumSq float32
		for _, p := range f.Packets {
			d := float32(p.Size) - avgSize
			sumSq += d * d
		}
		variance = sumSq / float32(len(f.Packets)-1)
	}

	protoHist := make(map[string]uint32)
	for _, p := range f.Packets {
		protoHist[p.Protocol.String()]++
	}

	portCounts := make(map[uint16]uint32)
	for _, p := range f.Packets {
		if p.DstPort != nil {
			portCounts[*p.DstPort]++
		}
	}
	var entropy float32
	if len(portCounts) > 1 {
		total := float32(0)
		for _, c := range portCounts {
			total += float32(c)
		}
		for _, c := range portCounts {
			pr := float32(c) / total
			entropy += -pr * float32(math.Log2(float64(pr)))
		}
	}

	return model.FlowFeatures{
		FlowKey:            f.Key,
		Duration:           duration,
		PacketCount:        packetCount,
		ByteCount:          f.ByteCount,
		PacketsPerSecond:   pps,
		BytesPerSecond:     bps,
		AvgPacketSize:      avgSize,
		ProtocolHistogram:  protoHist,
		PortEntropy:        entropy,
		InterArrivalTimes:  iats,
		PacketSizeVariance: variance,
		FlagPatterns:       append([]string(nil), f.FlagsSeen...),
	}
}

// Summary is the bounded, external-facing view of a flow, as returned by
// Supervisor.ActiveFlows().
type Summary struct {
	FlowKey  string   `json:"flow_id"`
	SrcIP    string   `json:"src_ip"`
	DstIP    string   `json:"dst_ip"`
	SrcPort  *uint16  `json:"src_port"`
	DstPort  *uint16  `json:"dst_port"`
	Protocol string   `json:"protocol"`
	Packets  uint32   `json:"packets"`
	Bytes    uint64   `json:"bytes"`
	Duration float64  `json:"duration"`
	Flags    []string `json:"flags"`
}

func (f *Flow) summary() Summary {
	return Summary{
		FlowKey:  f.Key,
		SrcIP:    f.SrcIP,
		DstIP:    f.DstIP,
		SrcPort:  f.SrcPort,
		DstPort:  f.DstPort,
		Protocol: f.Protocol.String(),
		Packets:  f.PacketCount(),
		Bytes:    f.ByteCount,
		Duration: f.LastSeen.Sub(f.StartTime).Seconds(),
		Flags:    append([]string(nil), f.FlagsSeen...),
	}
}
