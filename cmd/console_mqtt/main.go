package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/hip_feedback/internal/app"
	"github.com/relabs-tech/hip_feedback/internal/config"
)

func main() {
	configPath := flag.String("config", "./hip_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting hip_feedback console (MQTT subscriber)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.RunConsoleMQTT(ctx, config.Get(), os.Stdout); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
