// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

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

	log.Println("starting hip_feedback sensor producer (sensors → MQTT)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Get()
	if err := app.ConfigureLogging(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.RunSensorProducer(ctx, cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
