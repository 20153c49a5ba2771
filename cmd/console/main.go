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
	"github.com/relabs-tech/hip_feedback/internal/jointangles"
)

func main() {
	leg := flag.String("leg", "right", "leg carrying the thigh sensor: right or left")
	flag.Parse()

	side, err := jointangles.ParseSide(*leg)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	log.Println("starting hip_feedback (mock console)")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.RunMockConsole(ctx, side, os.Stdout); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
