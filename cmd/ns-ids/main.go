// Command ns-ids runs the network intrusion detection supervisor
// standalone, loading its configuration from configs/config.yaml (or the
// built-in defaults if that file is absent) and logging alerts as they
// arrive until interrupted.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"netids/internal/config"
	"netids/internal/supervisor"
)

func main() {
	log.Println("Starting ns-ids...")

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Printf("Failed to load config, using defaults: %v", err)
		defaultCfg := config.Default()
		cfg = &defaultCfg
	} else {
		log.Println("Configuration loaded successfully.")
	}

	sup := supervisor.New(*cfg)

	alerts := sup.SubscribeAlerts()
	go func() {
		for alert := range alerts {
			log.Printf("THREAT: %s from %s (severity: %s, confidence: %.2f) - %s",
				alert.ThreatType, alert.SourceIP, alert.Severity, alert.Confidence, alert.Description)
		}
	}()

	if err := sup.Start(); err != nil {
		log.Fatalf("Failed to start supervisor: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	log.Println("Shutdown signal received, stopping supervisor...")
	sup.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sup.Wait(ctx)

	log.Println("Shutdown complete.")
}
