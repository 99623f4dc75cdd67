package capture

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"netids/internal/core/model"
)

func buildTCPPacket(t *testing.T, syn, fin bool) []byte {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP("192.168.1.10").To4(),
		DstIP:    net.ParseIP("192.168.1.20").To4(),
	}
	tcp := &layers.TCP{
		SrcPort: 40000,
		DstPort: 443,
		SYN:     syn,
		FIN:     fin,
	}
	tcp.SetNetworkLayerForChecksum(ip)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload("x")); err != nil {
		t.Fatalf("SerializeLayers: %v", err)
	}
	return buf.Bytes()
}

func TestParsePacketDecodesTCP(t *testing.T) {
	data := buildTCPPacket(t, true, false)

	p, err := ParsePacket(data, time.Now())
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if p.SrcIP.String() != "192.168.1.10" {
		t.Errorf("SrcIP = %s, want 192.168.1.10", p.SrcIP)
	}
	if p.DstPort == nil || *p.DstPort != 443 {
		t.Errorf("DstPort = %v, want 443", p.DstPort)
	}
	if !p.Protocol.Equal(model.ProtocolTCP) {
		t.Errorf("Protocol = %v, want TCP", p.Protocol)
	}
	found := false
	for _, f := range p.Flags {
		if f == "SYN" {
			found = true
		}
	}
	if !found {
		t.Errorf("Flags = %v, want SYN present", p.Flags)
	}
}

func TestParsePacketRejectsUnknownEtherType(t *testing.T) {
	data := []byte{
		6, 7, 8, 9, 10, 11, // dst mac
		0, 1, 2, 3, 4, 5, // src mac
		0x88, 0xcc, // LLDP ethertype, not handled
		1, 2, 3, 4,
	}
	if _, err := ParsePacket(data, time.Now()); err == nil {
		t.Error("expected an error decoding an unsupported ethertype frame")
	}
}
