// Package supervisor owns the lifecycle of the capture, detection, reaper
// and sampler tasks, tying them together behind a single cancellation
// signal, with one shared sync.WaitGroup and idempotent Start/Shutdown.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"netids/internal/alertbus"
	"netids/internal/anomaly"
	"netids/internal/capture"
	"netids/internal/config"
	"netids/internal/core/model"
	"netids/internal/features"
	"netids/internal/flowtable"
	"netids/internal/rules"
	"netids/internal/stats"
)

const (
	flowReapInterval  = 60 * time.Second
	statsLogInterval  = 5 * time.Second
	sampleInterval    = 2 * time.Second
	globalRuleCadence = 100
	minPacketsForML   = 5
)

// Supervisor is the programmatic facade over the whole detection pipeline.
type Supervisor struct {
	cfg config.SystemConfig

	stats      *stats.Accumulator
	flows      *flowtable.Table
	normalizer *features.Normalizer
	model      *anomaly.Model
	bus        *alertbus.Bus
	forwarder  *alertbus.Forwarder

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	shutdownOnce sync.Once
}

// New constructs a Supervisor but does not start it.
func New(cfg config.SystemConfig) *Supervisor {
	acc := stats.New()
	normalizer := features.NewNormalizer()

	var forwarder *alertbus.Forwarder
	if cfg.NATSURL != "" {
		var err error
		forwarder, err = alertbus.NewForwarder(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			log.Printf("supervisor: alert forwarder disabled: %v", err)
			forwarder = nil
		}
	}

	return &Supervisor{
		cfg:        cfg,
		stats:      acc,
		flows:      flowtable.New(0),
		normalizer: normalizer,
		model:      anomaly.New(normalizer),
		bus:        alertbus.New(acc, forwarder),
		forwarder:  forwarder,
	}
}

// Start is idempotent against double-start; a second call returns
// model.ErrAlreadyRunning.
func (s *Supervisor) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return model.ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	queue := capture.NewQueue()

	source := s.selectSource()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := source.Run(ctx, queue, s.stats); err != nil {
			log.Printf("supervisor: capture task exited: %v", err)
		}
	}()

	s.wg.Add(1)
	go s.runDetection(ctx, queue)

	s.wg.Add(1)
	go s.runReaper(ctx)

	s.wg.Add(1)
	go s.runStatsLog(ctx)

	s.wg.Add(1)
	go s.runSystemSampler(ctx)

	log.Printf("supervisor: started (simulation=%v)", s.cfg.UseSimulation)
	return nil
}

// selectSource decides between live and simulated capture: simulation if
// configured, or if live initialization fails (silent fallback).
func (s *Supervisor) selectSource() capture.Source {
	if s.cfg.UseSimulation {
		log.Println("supervisor: starting simulated capture (configured)")
		return capture.NewSimulatedSource()
	}

	live, err := capture.NewLiveSource(s.cfg.Interface)
	if err != nil {
		log.Printf("supervisor: live capture init failed (%v), falling back to simulation", err)
		return capture.NewSimulatedSource()
	}
	log.Println("supervisor: starting live capture")
	return live
}

// runDetection drains the packet queue, updates the flow table, and runs
// both detectors. Packets within a single flow are processed in enqueue
// order because this is the queue's sole consumer.
func (s *Supervisor) runDetection(ctx context.Context, queue <-chan *model.ParsedPacket) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case packet, ok := <-queue:
			if !ok {
				return
			}
			s.processPacket(packet)
		}
	}
}

func (s *Supervisor) processPacket(packet *model.ParsedPacket) {
	flow, _ := s.flows.Upsert(packet)
	s.stats.SetActiveFlows(uint32(s.flows.ActiveCount()))

	if flow.PacketCount() >= minPacketsForML {
		feats := flow.Features()
		if score, ok := s.model.Predict(feats); ok && score > 0.7 {
			s.publishAnomalyAlert(flow, score)
		}
	}

	for _, rule := range rules.FlowRules {
		if alert := rule(flow); alert != nil {
			s.bus.Publish(*alert)
		}
	}

	if s.flows.ActiveCount()%globalRuleCadence == 0 {
		snapshot := s.flows.SnapshotAll()
		for _, rule := range rules.GlobalRules {
			if alert := rule(snapshot); alert != nil {
				s.bus.Publish(*alert)
			}
		}
	}
}

// publishAnomalyAlert applies the severity ladder: >0.9 High, >0.8
// Medium, else Low.
func (s *Supervisor) publishAnomalyAlert(flow *flowtable.Flow, score float32) {
	severity := model.SeverityLow
	switch {
	case score > 0.9:
		severity = model.SeverityHigh
	case score > 0.8:
		severity = model.SeverityMedium
	}

	var affectedPorts []uint16
	if flow.DstPort != nil {
		affectedPorts = []uint16{*flow.DstPort}
	}

	rawPackets := make([]uuid.UUID, len(flow.Packets))
	for i, p := range flow.Packets {
		rawPackets[i] = p.ID
	}

	alert := model.ThreatAlert{
		ID:            uuid.New(),
		Timestamp:     time.Now(),
		Severity:      severity,
		ThreatType:    model.ThreatAnomalous,
		Confidence:    score,
		AnomalyScore:  score,
		SourceIP:      net.ParseIP(flow.SrcIP),
		TargetIP:      net.ParseIP(flow.DstIP),
		AffectedPorts: affectedPorts,
		Description:   fmt.Sprintf("ML-detected anomalous network behavior (score: %.3f)", score),
		Explanation: model.ThreatExplanation{
			PrimaryIndicators: []string{
				fmt.Sprintf("High anomaly score: %.3f", score),
				"Unusual traffic pattern detected by neural network",
			},
			FeatureImportance: map[string]float32{
				"ml_anomaly_score": score,
				"traffic_pattern":  0.8,
			},
			SimilarIncidents: []string{"Previously unseen traffic pattern"},
			RecommendedActions: []string{
				"Investigate source IP activity",
				"Monitor for pattern evolution",
				"Consider adding to watchlist",
			},
		},
		RawPackets: rawPackets,
	}
	s.bus.Publish(alert)
}

func (s *Supervisor) runReaper(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(flowReapInterval)
	defer ticker.Stop()

	timeout := time.Duration(s.cfg.FlowTimeoutSeconds) * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := s.flows.EvictExpired(time.Now(), timeout)
			s.stats.SetActiveFlows(uint32(s.flows.ActiveCount()))
			if evicted > 0 {
				log.Printf("supervisor: reaper evicted %d expired flows", evicted)
			}
		}
	}
}

func (s *Supervisor) runStatsLog(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(statsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.stats.Snapshot()
			log.Printf("supervisor: stats packets=%d bytes=%d threats=%d rate=%.2f flows=%d",
				snap.PacketsProcessed, snap.BytesProcessed, snap.ThreatsDetected,
				snap.ProcessingRate, snap.ActiveFlows)
		}
	}
}

func (s *Supervisor) runSystemSampler(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			percents, err := cpu.Percent(0, false)
			if err != nil || len(percents) == 0 {
				continue
			}
			vmem, err := mem.VirtualMemory()
			if err != nil {
				continue
			}
			s.stats.SetSystemSample(float32(percents[0]), vmem.Used)
		}
	}
}

// Shutdown cancels every task's shared context. Idempotent via sync.Once.
// It does not join; an external caller may bound-wait before abandoning
// task handles.
func (s *Supervisor) Shutdown() {
	s.shutdownOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.forwarder != nil {
			s.forwarder.Close()
		}
		log.Println("supervisor: shutdown requested")
	})
}

// Wait blocks until every spawned task has exited, or the context
// expires; external callers are free to not call this at all.
func (s *Supervisor) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// SubscribeAlerts returns a channel carrying every alert published after
// this call.
func (s *Supervisor) SubscribeAlerts() <-chan model.ThreatAlert {
	return s.bus.Subscribe()
}

// Stats returns a by-value clone of the shared accumulator.
func (s *Supervisor) Stats() model.SystemStats {
	return s.stats.Snapshot()
}

// RecentAlerts returns up to limit alerts, newest first.
func (s *Supervisor) RecentAlerts(limit int) []model.ThreatAlert {
	return s.bus.RecentAlerts(limit)
}

// ActiveFlows returns up to 50 flow summaries for external inspection.
func (s *Supervisor) ActiveFlows() []flowtable.Summary {
	return s.flows.ViewRecent(50)
}
