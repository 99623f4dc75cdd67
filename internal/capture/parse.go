package capture

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/uuid"

	"netids/internal/core/model"
)

// ParsePacket decodes a raw Ethernet frame into a model.ParsedPacket.
// Frames with an unknown EtherType (decoded as neither IPv4 nor IPv6)
// are rejected; the caller does the dropping, this just reports the
// failure.
func ParsePacket(data []byte, ts time.Time) (*model.ParsedPacket, error) {
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)

	if v4 := pkt.Layer(layers.LayerTypeIPv4); v4 != nil {
		return parseIPv4(pkt, v4.(*layers.IPv4), ts, data)
	}
	if v6 := pkt.Layer(layers.LayerTypeIPv6); v6 != nil {
		return parseIPv6(pkt, v6.(*layers.IPv6), ts, data)
	}
	return nil, fmt.Errorf("capture: unsupported or undecodable ethernet payload")
}

func parseIPv4(pkt gopacket.Packet, ip *layers.IPv4, ts time.Time, raw []byte) (*model.ParsedPacket, error) {
	srcPort, dstPort, proto, flags := decodeTransport(pkt, uint8(ip.Protocol))
	return &model.ParsedPacket{
		ID:        uuid.New(),
		Timestamp: ts,
		SrcIP:     ip.SrcIP,
		DstIP:     ip.DstIP,
		SrcPort:   srcPort,
		DstPort:   dstPort,
		Protocol:  proto,
		Size:      len(raw),
		Flags:     flags,
		Raw:       raw,
	}, nil
}

func parseIPv6(pkt gopacket.Packet, ip *layers.IPv6, ts time.Time, raw []byte) (*model.ParsedPacket, error) {
	srcPort, dstPort, proto, flags := decodeTransport(pkt, uint8(ip.NextHeader))
	return &model.ParsedPacket{
		ID:        uuid.New(),
		Timestamp: ts,
		SrcIP:     ip.SrcIP,
		DstIP:     ip.DstIP,
		SrcPort:   srcPort,
		DstPort:   dstPort,
		Protocol:  proto,
		Size:      len(raw),
		Flags:     flags,
		Raw:       raw,
	}, nil
}

func decodeTransport(pkt gopacket.Packet, nextHeader uint8) (srcPort, dstPort *uint16, proto model.Protocol, flags []string) {
	switch layers.IPProtocol(nextHeader) {
	case layers.IPProtocolTCP:
		if tcpLayer := pkt.Layer(layers.LayerTypeTCP); tcpLayer != nil {
			tcp := tcpLayer.(*layers.TCP)
			sp := uint16(tcp.SrcPort)
			dp := uint16(tcp.DstPort)
			return &sp, &dp, model.ProtocolTCP, extractTCPFlags(tcp)
		}
		return nil, nil, model.ProtocolTCP, nil
	case layers.IPProtocolUDP:
		if udpLayer := pkt.Layer(layers.LayerTypeUDP); udpLayer != nil {
			udp := udpLayer.(*layers.UDP)
			sp := uint16(udp.SrcPort)
			dp := uint16(udp.DstPort)
			return &sp, &dp, model.ProtocolUDP, nil
		}
		return nil, nil, model.ProtocolUDP, nil
	case layers.IPProtocolICMPv4, layers.IPProtocolICMPv6:
		return nil, nil, model.ProtocolICMP, nil
	default:
		return nil, nil, model.ProtocolOther(nextHeader), nil
	}
}

func extractTCPFlags(tcp *layers.TCP) []string {
	var flags []string
	if tcp.FIN {
		flags = append(flags, "FIN")
	}
	if tcp.SYN {
		flags = append(flags, "SYN")
	}
	if tcp.RST {
		flags = append(flags, "RST")
	}
	if tcp.PSH {
		flags = append(flags, "PSH")
	}
	if tcp.ACK {
		flags = append(flags, "ACK")
	}
	if tcp.URG {
		flags = append(flags, "URG")
	}
	if tcp.ECE {
		flags = append(flags, "ECE")
	}
	if tcp.CWR {
		flags = append(flags, "CWR")
	}
	return flags
}
