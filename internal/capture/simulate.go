package capture

import (
	"context"
	"math/rand"
	"net"
	"time"

	"github.com/google/uuid"

	"netids/internal/core/model"
	"netids/internal/stats"
)

// SimulatedSource generates synthetic traffic for testing/demo purposes.
// Uses math/rand (not math/rand/v2).
type SimulatedSource struct {
	rng *rand.Rand
}

// NewSimulatedSource seeds its own RNG from the current time.
func NewSimulatedSource() *SimulatedSource {
	return &SimulatedSource{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Run generates batches of 2-5 normal packets every 10ms, occasionally
// injecting one of three attack patterns, until ctx is canceled.
func (s *SimulatedSource) Run(ctx context.Context, out chan<- *model.ParsedPacket, acc *stats.Accumulator) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, p := range s.generateBatch() {
				enqueue(out, p, acc)
			}
		}
	}
}

func (s *SimulatedSource) generateBatch() []*model.ParsedPacket {
	batchSize := 2 + s.rng.Intn(4) // 2..=5
	packets := make([]*model.ParsedPacket, 0, batchSize+20)

	for i := 0; i < batchSize; i++ {
		packets = append(packets, s.generateNormalPacket())
	}

	if s.rng.Float64() < 0.1 {
		packets = append(packets, s.generateAttackPattern()...)
	}

	return packets
}

func (s *SimulatedSource) generateNormalPacket() *model.ParsedPacket {
	srcIP := s.privateOrPublicIP(0.7)
	dstIP := s.privateOrPublicIP(0.3)

	var proto model.Protocol
	switch {
	case s.rng.Float64() < 0.7:
		proto = model.ProtocolTCP
	case s.rng.Float64() < 0.5:
		proto = model.ProtocolUDP
	default:
		proto = model.ProtocolICMP
	}

	dstPort := s.servicePort()
	srcPort := uint16(1024 + s.rng.Intn(65535-1024+1))

	var flags []string
	if proto.Equal(model.ProtocolTCP) {
		switch s.rng.Intn(4) {
		case 0:
			flags = []string{"SYN"}
		case 1:
			flags = []string{"ACK"}
		case 2:
			flags = []string{"SYN", "ACK"}
		default:
			flags = []string{"ACK", "PSH"}
		}
	}

	size := 64 + s.rng.Intn(1500-64+1)

	return &model.ParsedPacket{
		ID:        uuid.New(),
		Timestamp: time.Now(),
		SrcIP:     srcIP,
		DstIP:     dstIP,
		SrcPort:   &srcPort,
		DstPort:   dstPort,
		Protocol:  proto,
		Size:      size,
		Flags:     flags,
	}
}

// privateOrPublicIP returns a 192.168.x.y address with probability
// privateProb, else a pseudo-public one.
func (s *SimulatedSource) privateOrPublicIP(privateProb float64) net.IP {
	if s.rng.Float64() < privateProb {
		return net.IPv4(192, 168, byte(1+s.rng.Intn(10)), byte(1+s.rng.Intn(254)))
	}
	return net.IPv4(byte(1+s.rng.Intn(223)), byte(s.rng.Intn(256)), byte(s.rng.Intn(256)), byte(1+s.rng.Intn(254)))
}

func (s *SimulatedSource) servicePort() *uint16 {
	var port uint16
	switch s.rng.Intn(10) {
	case 0, 1, 2:
		port = 80
	case 3, 4, 5:
		port = 443
	case 6:
		port = 22
	case 7:
		port = 3306
	case 8:
		port = 5432
	default:
		port = uint16(1024 + s.rng.Intn(65535-1024+1))
	}
	return &port
}

// generateAttackPattern picks one of the three named attack injections.
func (s *SimulatedSource) generateAttackPattern() []*model.ParsedPacket {
	switch s.rng.Intn(3) {
	case 0:
		return s.portScanBurst()
	case 1:
		return s.ddosBurst()
	default:
		return s.illegalFlagCombo()
	}
}

func (s *SimulatedSource) portScanBurst() []*model.ParsedPacket {
	attacker := net.IPv4(byte(1+s.rng.Intn(223)), byte(s.rng.Intn(256)), byte(s.rng.Intn(256)), byte(1+s.rng.Intn(254)))
	target := net.IPv4(192, 168, 1, 100)

	ports := []uint16{21, 22, 23, 25, 80, 443, 3306, 3389, 8080}
	packets := make([]*model.ParsedPacket, 0, len(ports))
	for _, port := range ports {
		srcPort := uint16(40000 + s.rng.Intn(10001))
		dstPort := port
		packets = append(packets, &model.ParsedPacket{
			ID:        uuid.New(),
			Timestamp: time.Now(),
			SrcIP:     attacker,
			DstIP:     target,
			SrcPort:   &srcPort,
			DstPort:   &dstPort,
			Protocol:  model.ProtocolTCP,
			Size:      64,
			Flags:     []string{"SYN"},
		})
	}
	return packets
}

func (s *SimulatedSource) ddosBurst() []*model.ParsedPacket {
	target := net.IPv4(192, 168, 1, byte(1+s.rng.Intn(254)))
	dstPort := uint16(80)

	packets := make([]*model.ParsedPacket, 0, 20)
	for i := 0; i < 20; i++ {
		src := net.IPv4(byte(1+s.rng.Intn(223)), byte(s.rng.Intn(256)), byte(s.rng.Intn(256)), byte(1+s.rng.Intn(254)))
		srcPort := uint16(1024 + s.rng.Intn(65535-1024+1))
		packets = append(packets, &model.ParsedPacket{
			ID:        uuid.New(),
			Timestamp: time.Now(),
			SrcIP:     src,
			DstIP:     target,
			SrcPort:   &srcPort,
			DstPort:   &dstPort,
			Protocol:  model.ProtocolTCP,
			Size:      1400,
			Flags:     []string{"ACK", "PSH"},
		})
	}
	return packets
}

func (s *SimulatedSource) illegalFlagCombo() []*model.ParsedPacket {
	src := net.IPv4(byte(1+s.rng.Intn(223)), byte(s.rng.Intn(256)), byte(s.rng.Intn(256)), byte(1+s.rng.Intn(254)))
	dst := net.IPv4(192, 168, 1, byte(1+s.rng.Intn(254)))
	srcPort := uint16(1024 + s.rng.Intn(65535-1024+1))
	dstPort := uint16(1 + s.rng.Intn(1024))

	return []*model.ParsedPacket{{
		ID:        uuid.New(),
		Timestamp: time.Now(),
		SrcIP:     src,
		DstIP:     dst,
		SrcPort:   &srcPort,
		DstPort:   &dstPort,
		Protocol:  model.ProtocolTCP,
		Size:      64,
		Flags:     []string{"SYN", "FIN"},
	}}
}
