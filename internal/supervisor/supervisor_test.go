package supervisor

import (
	"context"
	"testing"
	"time"

	"netids/internal/config"
)

func testConfig() config.SystemConfig {
	cfg := config.Default()
	cfg.UseSimulation = true
	cfg.FlowTimeoutSeconds = 1
	return cfg
}

func TestStartIsIdempotent(t *testing.T) {
	sup := New(testConfig())
	defer sup.Shutdown()

	if err := sup.Start(); err != nil {
		t.Fatalf("first Start() failed: %v", err)
	}
	if err := sup.Start(); err == nil {
		t.Error("second Start() should fail while already running")
	}
}

func TestGracefulShutdownWithinDeadline(t *testing.T) {
	sup := New(testConfig())
	if err := sup.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	// Let a few simulated batches flow through the pipeline.
	time.Sleep(50 * time.Millisecond)

	sup.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sup.Wait(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not shut down within 5 seconds")
	}

	if ctx.Err() != nil {
		t.Error("Wait returned because the context expired, not because tasks exited")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	sup := New(testConfig())
	if err := sup.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	sup.Shutdown()
	sup.Shutdown() // must not panic
}

func TestNoAlertsAfterShutdown(t *testing.T) {
	sup := New(testConfig())
	if err := sup.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	alerts := sup.SubscribeAlerts()
	time.Sleep(100 * time.Millisecond)

	sup.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sup.Wait(ctx)

	drainTimeout := time.After(200 * time.Millisecond)
	for {
		select {
		case _, ok := <-alerts:
			if !ok {
				return
			}
			// draining any already-buffered alerts is fine; a new one
			// arriving here would indicate the pipeline kept running.
		case <-drainTimeout:
			return
		}
	}
}

func TestStatsAndActiveFlowsAccessible(t *testing.T) {
	sup := New(testConfig())
	defer sup.Shutdown()
	if err := sup.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	snap := sup.Stats()
	if snap.PacketsProcessed == 0 {
		t.Error("expected simulated traffic to have produced at least one packet")
	}

	_ = sup.ActiveFlows()
}
