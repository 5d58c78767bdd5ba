package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/knocktalk/relay/internal/audit"
	"github.com/knocktalk/relay/internal/messaging"
)

// The auditor is a standalone consumer that archives abuse events published by
// the relay server. It keeps the relay itself free of any database dependency:
// bans and reports take effect in-memory immediately, and this process records
// them durably for later review.
func main() {
	log.Println("starting knocktalk auditor...")

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := audit.Open(ctx, dsn)
	cancel()
	if err != nil {
		log.Fatalf("failed to open audit store: %v", err)
	}
	defer store.Close()

	natsConfig := messaging.DefaultConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "knocktalk-auditor"

	natsClient, err := messaging.NewClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	err = natsClient.SubscribeReports(func(data []byte) {
		var ev messaging.ReportEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("[auditor] failed to unmarshal report event: %v", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		row := &audit.ReportRow{
			TargetID:   ev.TargetID,
			ReporterID: ev.ReporterID,
			Count:      ev.Count,
			ReportedAt: time.Unix(ev.Ts, 0),
		}
		if err := store.InsertReport(ctx, row); err != nil {
			log.Printf("[auditor] failed to archive report target=%s: %v", ev.TargetID, err)
			return
		}
		log.Printf("[auditor] report archived target=%s reporter=%s count=%d",
			ev.TargetID, ev.ReporterID, ev.Count)
	})
	if err != nil {
		log.Fatalf("failed to subscribe to report events: %v", err)
	}

	err = natsClient.SubscribeBans(func(data []byte) {
		var ev messaging.BanEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("[auditor] failed to unmarshal ban event: %v", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		row := &audit.BanRow{
			TargetID:  ev.TargetID,
			Reporters: ev.Reporters,
			BannedAt:  time.Unix(ev.Ts, 0),
		}
		if err := store.InsertBan(ctx, row); err != nil {
			log.Printf("[auditor] failed to archive ban target=%s: %v", ev.TargetID, err)
			return
		}
		log.Printf("[auditor] ban archived target=%s reporters=%d",
			ev.TargetID, len(ev.Reporters))
	})
	if err != nil {
		log.Fatalf("failed to subscribe to ban events: %v", err)
	}

	log.Println("auditor running, waiting for abuse events...")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Printf("received signal %v, shutting down...", sig)
	natsClient.Close()
}
