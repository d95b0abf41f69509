package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"thingslink/internal/config"
	"thingslink/internal/serialport"
)

func main() {
	var configPath string
	var summaryPath string
	var summaryLink string
	flag.StringVar(&configPath, "config", "./thingslink.yaml", "Path to YAML config")
	flag.StringVar(&summaryPath, "capture-summary", "", "Print a summary of a capture log and exit")
	flag.StringVar(&summaryLink, "capture-link", config.LinkLowpan, "Link of the -capture-summary log (lowpan|gps)")
	flag.Parse()

	if summaryPath != "" {
		if err := printCaptureSummary(os.Stdout, summaryPath, summaryLink); err != nil {
			log.Fatalf("capture summary failed: %v", err)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("thingslink starting")
	if err := run(ctx, cfg, serialport.Open); err != nil && ctx.Err() == nil {
		log.Fatalf("thingslink failed: %v", err)
	}
	log.Printf("thingslink stopping")
}
