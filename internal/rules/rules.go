// Package rules implements the three pattern detectors: suspicious TCP
// flag combinations on a single flow, port scans, and volumetric DDoS
// traffic. Rules are plain functions rather than an interface hierarchy.
package rules

import (
	"fmt"
	"net"
	"sort"

	"github.com/google/uuid"

	"netids/internal/core/model"
	"netids/internal/flowtable"
)

// FlowRule evaluates a single flow on every update.
type FlowRule func(f *flowtable.Flow) *model.ThreatAlert

// GlobalRule evaluates the whole flow table on a fixed cadence rather
// than per packet.
type GlobalRule func(flows map[string]*flowtable.Flow) *model.ThreatAlert

// FlowRules is the registry of per-flow rules, evaluated in this order.
var FlowRules = []FlowRule{DetectSuspiciousFlags}

// GlobalRules is the registry of whole-table rules, evaluated in this
// order; a single invocation emits at most one alert per rule.
var GlobalRules = []GlobalRule{DetectPortScan, DetectDDoS}

func newID() uuid.UUID { return uuid.New() }

// DetectSuspiciousFlags raises a Medium-severity Suspicious alert when a
// flow's flag set contains both SYN and FIN, or its packet list carries
// more than 10 SYN-bearing packets. The SYN count is read from the packet
// list, not the deduped flags_seen union (see DESIGN.md).
func DetectSuspiciousFlags(f *flowtable.Flow) *model.ThreatAlert {
	hasSYN, hasFIN := false, false
	for _, flag := range f.FlagsSeen {
		if flag == "SYN" {
			hasSYN = true
		}
		if flag == "FIN" {
			hasFIN = true
		}
	}

	synCount := 0
	for _, p := range f.Packets {
		for _, flag := range p.Flags {
			if flag == "SYN" {
				synCount++
				break
			}
		}
	}

	if !(hasSYN && hasFIN) && synCount <= 10 {
		return nil
	}

	confidence := float32(0.6)
	flagsStr := joinFlags(f.FlagsSeen)

	var affectedPorts []uint16
	if f.DstPort != nil {
		affectedPorts = []uint16{*f.DstPort}
	}

	return &model.ThreatAlert{
		ID:            newID(),
		Severity:      model.SeverityMedium,
		ThreatType:    model.ThreatSuspicious,
		Confidence:    confidence,
		AnomalyScore:  confidence,
		SourceIP:      net.ParseIP(f.SrcIP),
		TargetIP:      net.ParseIP(f.DstIP),
		AffectedPorts: affectedPorts,
		Description:   fmt.Sprintf("Suspicious TCP flag combination detected: %s", flagsStr),
		Explanation: model.ThreatExplanation{
			PrimaryIndicators: []string{
				fmt.Sprintf("Unusual flag combination: %s", flagsStr),
				"Potential TCP stack fingerprinting",
			},
			FeatureImportance: map[string]float32{
				"flag_pattern":        0.8,
				"connection_behavior": 0.6,
			},
			SimilarIncidents:   []string{"TCP flag manipulation attempt"},
			RecommendedActions: []string{
				"Monitor source IP for additional suspicious activity",
				"Check firewall rules for flag filtering",
			},
		},
		RawPackets: packetIDs(f.Packets),
	}
}

// DetectPortScan groups flows by source IP and flags a source reaching
// at least 5 distinct destination ports. Severity ladders on the unique
// port count; target IP is the destination of the first flow encountered
// in (non-deterministic) map iteration order.
func DetectPortScan(flows map[string]*flowtable.Flow) *model.ThreatAlert {
	type portsAndIDs struct {
		ports []uint16
	}
	bySrc := make(map[string]*portsAndIDs)
	var firstDst string
	for _, f := range flows {
		if firstDst == "" {
			firstDst = f.DstIP
		}
		if f.DstPort == nil {
			continue
		}
		entry := bySrc[f.SrcIP]
		if entry == nil {
			entry = &portsAndIDs{}
			bySrc[f.SrcIP] = entry
		}
		entry.ports = append(entry.ports, *f.DstPort)
	}

	for srcIP, entry := range bySrc {
		unique := uniquePorts(entry.ports)
		if len(unique) < 5 {
			continue
		}

		confidence := float32(len(unique)) / 100
		if confidence > 1 {
			confidence = 1
		}

		severity := model.SeverityLow
		switch {
		case len(unique) > 20:
			severity = model.SeverityHigh
		case len(unique) > 10:
			severity = model.SeverityMedium
		}

		var rawPackets []uuid.UUID
		for _, f := range flows {
			if f.SrcIP == srcIP {
				rawPackets = append(rawPackets, packetIDs(f.Packets)...)
			}
		}

		return &model.ThreatAlert{
			ID:            newID(),
			Severity:      severity,
			ThreatType:    model.ThreatPortScan,
			Confidence:    confidence,
			AnomalyScore:  confidence,
			SourceIP:      net.ParseIP(srcIP),
			TargetIP:      net.ParseIP(firstDst),
			AffectedPorts: entry.ports,
			Description: fmt.Sprintf("Port scan detected from %s targeting %d unique ports",
				srcIP, len(unique)),
			Explanation: model.ThreatExplanation{
				PrimaryIndicators: []string{
					fmt.Sprintf("Multiple port connections: %d", len(unique)),
					"Sequential port access pattern",
				},
				FeatureImportance: map[string]float32{
					"unique_ports":       confidence,
					"connection_pattern": 0.8,
				},
				SimilarIncidents:   []string{"Known port scanning signature"},
				RecommendedActions: []string{
					"Block source IP address",
					"Monitor for further scanning activity",
					"Check target systems for vulnerabilities",
				},
			},
			RawPackets: rawPackets,
		}
	}
	return nil
}

// DetectDDoS groups flows by destination IP and flags a target exceeding
// 1,000 packets or 10 MB.
func DetectDDoS(flows map[string]*flowtable.Flow) *model.ThreatAlert {
	type totals struct {
		packets uint32
		bytes   uint64
	}
	byDst := make(map[string]*totals)
	var firstSrc string
	for _, f := range flows {
		if firstSrc == "" {
			firstSrc = f.SrcIP
		}
		t := byDst[f.DstIP]
		if t == nil {
			t = &totals{}
			byDst[f.DstIP] = t
		}
		t.packets += f.PacketCount()
		t.bytes += f.ByteCount
	}

	for dstIP, t := range byDst {
		if t.packets <= 1000 && t.bytes <= 10_000_000 {
			continue
		}

		pktRatio := float32(t.packets) / 10000
		if pktRatio > 1 {
			pktRatio = 1
		}
		byteRatio := float32(t.bytes) / 100_000_000
		if byteRatio > 1 {
			byteRatio = 1
		}
		confidence := (pktRatio + byteRatio) / 2

		severity := model.SeverityMedium
		switch {
		case t.packets > 5000 || t.bytes > 50_000_000:
			severity = model.SeverityCritical
		case t.packets > 2000 || t.bytes > 20_000_000:
			severity = model.SeverityHigh
		}

		portSet := make(map[uint16]struct{})
		var rawPackets []uuid.UUID
		for _, f := range flows {
			if f.DstIP != dstIP {
				continue
			}
			if f.DstPort != nil {
				portSet[*f.DstPort] = struct{}{}
			}
			rawPackets = append(rawPackets, packetIDs(f.Packets)...)
		}
		ports := make([]uint16, 0, len(portSet))
		for p := range portSet {
			ports = append(ports, p)
		}
		sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })

		return &model.ThreatAlert{
			ID:            newID(),
			Severity:      severity,
			ThreatType:    model.ThreatDDoS,
			Confidence:    confidence,
			AnomalyScore:  confidence,
			SourceIP:      net.ParseIP(firstSrc),
			TargetIP:      net.ParseIP(dstIP),
			AffectedPorts: ports,
			Description: fmt.Sprintf(
				"Potential DDoS attack detected against %s - %d packets, %d bytes",
				dstIP, t.packets, t.bytes),
			Explanation: model.ThreatExplanation{
				PrimaryIndicators: []string{
					fmt.Sprintf("High packet volume: %d packets", t.packets),
					fmt.Sprintf("High bandwidth usage: %d bytes", t.bytes),
					"Multiple source IPs targeting single destination",
				},
				FeatureImportance: map[string]float32{
					"packet_volume":    0.9,
					"bandwidth_usage":  0.8,
					"source_diversity": 0.7,
				},
				SimilarIncidents:   []string{"Volume-based DDoS pattern"},
				RecommendedActions: []string{
					"Activate DDoS protection measures",
					"Rate limit incoming connections",
					"Contact ISP for upstream filtering",
					"Monitor target system performance",
				},
			},
			RawPackets: rawPackets,
		}
	}
	return nil
}

func uniquePorts(ports []uint16) map[uint16]struct{} {
	set := make(map[uint16]struct{}, len(ports))
	for _, p := range ports {
		set[p] = struct{}{}
	}
	return set
}

func packetIDs(packets []*model.ParsedPacket) []uuid.UUID {
	ids := make([]uuid.UUID, len(packets))
	for i, p := range packets {
		ids[i] = p.ID
	}
	return ids
}

func joinFlags(flags []string) string {
	out := ""
	for i, f := range flags {
		if i > 0 {
			out += ","
		}
		out += f
	}
	return out
}
