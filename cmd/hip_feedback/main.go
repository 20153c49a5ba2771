// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// hip_feedback estimates the hip flexion/extension angle from a pelvis and a
// thigh orientation sensor and buzzes the feedback nodes when the angle
// leaves the configured range. The first sample is the calibration pose:
// stand upright and still when starting.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/hip_feedback/internal/app"
	"github.com/relabs-tech/hip_feedback/internal/config"
)

var version = "dev"

const defaultConfigPath = "./hip_config.txt"

func main() {
	var (
		configPath string
		source     string
		leg        string
	)

	cmd := &cobra.Command{
		Use:   "hip_feedback",
		Short: "Real-time hip extension angle with haptic feedback",
		Long: `hip_feedback reads pelvis and thigh orientations, calibrates on the first
sample, and streams the hip flexion/extension angle over MQTT, a websocket
and an optional OLED display while driving the min/max feedback nodes.`,
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			overrides := map[string]string{}
			if cmd.Flags().Changed("source") {
				overrides["SENSOR_SOURCE"] = source
			}
			if cmd.Flags().Changed("leg") {
				overrides["WHICH_LEG"] = leg
			}
			for k, v := range overrides {
				if err := cfg.Set(k, v); err != nil {
					return err
				}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := app.ConfigureLogging(cfg); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to configuration file")
	cmd.Flags().StringVarP(&source, "source", "s", "", "sensor source: mock, mqtt, serial or imu")
	cmd.Flags().StringVarP(&leg, "leg", "l", "", "leg carrying the thigh sensor: right or left")

	if err := fang.Execute(context.Background(), cmd); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads path, falling back to defaults when the default file is
// absent.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		log.Warnf("no config file at %s, using defaults", path)
		return config.Default(), nil
	}
	return nil, fmt.Errorf("failed to load config: %w", err)
}

func run(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("starting hip_feedback")
	return app.RunHipApp(ctx, cfg)
}
