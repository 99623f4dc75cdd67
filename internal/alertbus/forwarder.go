package alertbus

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"

	"netids/internal/core/model"
)

// Forwarder is the optional downstream collaborator: every published
// alert is JSON-marshaled and published to a NATS subject for an
// external SIEM/consumer. Fire-and-forget: nothing is replayed or
// stored, so this is not a persistence layer.
type Forwarder struct {
	nc      *nats.Conn
	subject string
}

// NewForwarder connects to natsURL and returns a Forwarder publishing to
// subject. Returns an error the caller can choose to ignore — the core
// pipeline never requires a broker.
func NewForwarder(natsURL, subject string) (*Forwarder, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("alertbus: connect to nats: %w", err)
	}
	log.Printf("alertbus: connected to NATS server at %s", natsURL)
	return &Forwarder{nc: nc, subject: subject}, nil
}

// Forward publishes the alert; failures are logged, not surfaced — no
// subscriber or broker failure halts the pipeline.
func (f *Forwarder) Forward(alert model.ThreatAlert) {
	data, err := json.Marshal(alert)
	if err != nil {
		log.Printf("alertbus: failed to marshal alert for forwarding: %v", err)
		return
	}
	if err := f.nc.Publish(f.subject, data); err != nil {
		log.Printf("alertbus: failed to publish alert: %v", err)
	}
}

// Close drains and closes the NATS connection.
func (f *Forwarder) Close() {
	if f.nc != nil {
		f.nc.Drain()
		log.Println("alertbus: NATS connection drained and closed")
	}
}
