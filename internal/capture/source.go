// Package capture produces model.ParsedPacket records, either from a live
// pcap interface or a synthetic generator. Both variants implement Source
// so the supervisor can select between them without an inheritance
// hierarchy.
package capture

import (
	"context"

	"netids/internal/core/model"
	"netids/internal/stats"
)

// queueCapacity is the single backpressure point between capture and
// detection.
const queueCapacity = 10000

// Source is the shared contract both the live and simulated capture
// variants implement: push ParsedPackets into out until ctx is canceled
// or a fatal error occurs.
type Source interface {
	Run(ctx context.Context, out chan<- *model.ParsedPacket, acc *stats.Accumulator) error
}

// NewQueue allocates the bounded packet queue every Source is handed.
func NewQueue() chan *model.ParsedPacket {
	return make(chan *model.ParsedPacket, queueCapacity)
}

// enqueue attempts a non-blocking send, dropping the packet on a full
// queue rather than ever blocking the producer. Stats is updated
// regardless of whether the send succeeds (see DESIGN.md).
func enqueue(out chan<- *model.ParsedPacket, p *model.ParsedPacket, acc *stats.Accumulator) (sent bool) {
	acc.RecordPacket(p.Size, p.Protocol)
	acc.RecordTopTalker(p.SrcIP, p.DstIP, p.Size)

	select {
	case out <- p:
		return true
	default:
		return false
	}
}
