package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/deadmanoz/p2ms-forensics/internal/config"
	"github.com/deadmanoz/p2ms-forensics/internal/monitor"
	"github.com/deadmanoz/p2ms-forensics/internal/rpcclient"
	"github.com/deadmanoz/p2ms-forensics/internal/stage1"
	"github.com/deadmanoz/p2ms-forensics/internal/stage2"
	"github.com/deadmanoz/p2ms-forensics/internal/stage3"
	"github.com/deadmanoz/p2ms-forensics/internal/stats"
	"github.com/deadmanoz/p2ms-forensics/internal/store"
)

func main() {
	configPath := flag.String("config", "p2ms.toml", "path to TOML configuration file")
	flag.Parse()

	stageName := "all"
	if flag.NArg() > 0 {
		stageName = flag.Arg(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	s, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("FATAL: failed to open database: %v", err)
	}
	defer s.Close()

	hub := monitor.NewHub()
	go hub.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Println("[pipeline] shutdown signal received")
		cancel()
	}()

	go monitor.ServeProgress(hub, cfg)

	log.Printf("Starting P2MS forensics pipeline (run %s), stage=%s", stats.RunID, stageName)

	switch stageName {
	case "stage1":
		err = runStage1(s, cfg, hub)
	case "stage2":
		err = runStage2(ctx, s, cfg, hub)
	case "stage3":
		err = runStage3(ctx, s, cfg, hub)
	case "all":
		if err = runStage1(s, cfg, hub); err == nil {
			if err = runStage2(ctx, s, cfg, hub); err == nil {
				err = runStage3(ctx, s, cfg, hub)
			}
		}
	default:
		log.Fatalf("FATAL: unknown stage %q (want stage1, stage2, stage3, or all)", stageName)
	}

	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	log.Println("[pipeline] complete")
}

func runStage1(s *store.Store, cfg *config.Config, hub *monitor.Hub) error {
	hub.BroadcastStageChange("stage1", "running")
	defer hub.BroadcastStageChange("stage1", "done")
	return stage1.Run(s, cfg)
}

func runStage2(ctx context.Context, s *store.Store, cfg *config.Config, hub *monitor.Hub) error {
	rpc, err := rpcclient.New(cfg.RPC)
	if err != nil {
		return err
	}
	defer rpc.Shutdown()

	hub.BroadcastStageChange("stage2", "running")
	defer hub.BroadcastStageChange("stage2", "done")
	return stage2.Run(ctx, s, rpc, cfg)
}

func runStage3(ctx context.Context, s *store.Store, cfg *config.Config, hub *monitor.Hub) error {
	hub.BroadcastStageChange("stage3", "running")
	defer hub.BroadcastStageChange("stage3", "done")
	return stage3.Run(ctx, s, cfg)
}
