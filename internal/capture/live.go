package capture

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"strings"
	"time"

	"github.com/google/gopacket/pcap"

	"netids/internal/core/model"
	"netids/internal/stats"
)

const maxConsecutiveErrors = 100

// LiveSource captures real traffic off a network interface via pcap,
// with a fallback chain for interface selection.
type LiveSource struct {
	handle *pcap.Handle
	iface  string
}

// NewLiveSource resolves the configured interface, falling back through
// selectInterface's chain, and opens it. Returns model.ErrCaptureInitFailed
// wrapped around the underlying cause on any failure — the supervisor
// falls back to simulation when this happens.
func NewLiveSource(wantIface string) (*LiveSource, error) {
	devices, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("%w: listing devices: %v", model.ErrCaptureInitFailed, err)
	}

	dev, err := selectInterface(devices, wantIface)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCaptureInitFailed, err)
	}
	if dev.Name != wantIface {
		log.Printf("capture: interface %q not found, using %q (%s) instead", wantIface, dev.Name, dev.Description)
	} else {
		log.Printf("capture: using interface %q (%s)", dev.Name, dev.Description)
	}

	inactive, err := pcap.NewInactiveHandle(dev.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCaptureInitFailed, err)
	}
	defer inactive.CleanUp()

	if err := inactive.SetPromisc(false); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCaptureInitFailed, err)
	}
	if err := inactive.SetSnapLen(1518); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCaptureInitFailed, err)
	}
	if err := inactive.SetTimeout(10 * time.Millisecond); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCaptureInitFailed, err)
	}
	if err := inactive.SetBufferSize(2 * 1024 * 1024); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCaptureInitFailed, err)
	}

	handle, err := inactive.Activate()
	if err != nil {
		return nil, fmt.Errorf("%w: activating %s: %v", model.ErrCaptureInitFailed, dev.Name, err)
	}
	if err := handle.SetDirection(pcap.DirectionInOut); err != nil {
		log.Printf("capture: SetDirection unsupported on %s: %v", dev.Name, err)
	}

	return &LiveSource{handle: handle, iface: dev.Name}, nil
}

// selectInterface runs a three-step fallback: exact name match, then a
// wifi-ish description, then the first interface that isn't
// loopback/WAN-miniport/bluetooth.
func selectInterface(devices []pcap.Interface, want string) (pcap.Interface, error) {
	for _, d := range devices {
		if d.Name == want {
			return d, nil
		}
	}

	for _, d := range devices {
		desc := strings.ToLower(d.Description)
		if strings.Contains(desc, "wi-fi") || strings.Contains(desc, "wifi") ||
			strings.Contains(desc, "wireless") ||
			(strings.Contains(desc, "intel") && strings.Contains(desc, "wireless")) {
			return d, nil
		}
	}

	for _, d := range devices {
		desc := strings.ToLower(d.Description)
		if strings.Contains(desc, "loopback") || strings.Contains(desc, "wan miniport") ||
			strings.Contains(desc, "bluetooth") || strings.Contains(d.Name, "NPF_Loopback") {
			continue
		}
		return d, nil
	}

	return pcap.Interface{}, model.ErrNoInterfaceFound
}

// Run implements Source. Sleeps 100us on a read timeout and aborts after
// 100 consecutive decode/read errors.
func (s *LiveSource) Run(ctx context.Context, out chan<- *model.ParsedPacket, acc *stats.Accumulator) error {
	defer s.handle.Close()

	var consecutiveErrors int
	var packetCount uint64

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		data, captureInfo, err := s.handle.ZeroCopyReadPacketData()
		if err != nil {
			if err == pcap.NextErrorTimeoutExpired {
				time.Sleep(100 * time.Microsecond)
				continue
			}
			consecutiveErrors++
			if consecutiveErrors >= maxConsecutiveErrors {
				return fmt.Errorf("capture: too many consecutive read errors on %s: %w", s.iface, err)
			}
			continue
		}

		packet, err := ParsePacket(append([]byte(nil), data...), captureInfo.Timestamp)
		if err != nil {
			consecutiveErrors++
			if consecutiveErrors >= maxConsecutiveErrors {
				return fmt.Errorf("capture: too many consecutive decode errors on %s: %w", s.iface, err)
			}
			continue
		}
		consecutiveErrors = 0

		enqueue(out, packet, acc)

		packetCount++
		if packetCount%100 == 0 {
			runtimeYield()
		}
	}
}

func runtimeYield() {
	// The source yields every 100 packets so it never starves the
	// detector on a sustained burst.
	runtime.Gosched()
}
