// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/relabs-tech/hip_feedback/internal/feedback"
	"github.com/relabs-tech/hip_feedback/internal/jointangles"
	"github.com/relabs-tech/hip_feedback/internal/orientation"
)

// RunMockConsole runs the hip app against the mock gait with logging
// actuators and prints each record, without a broker or hardware.
func RunMockConsole(ctx context.Context, side jointangles.Side, out io.Writer) error {
	opts := orientation.DefaultMockOptions
	opts.RateHz = 10
	opts.ThighMountYaw = -side.YawOffset()

	src := orientation.NewMockSource(opts)
	ctrl := &feedback.Controller{
		MinThreshold: -10,
		MaxThreshold: 20,
		PulseLength:  100 * time.Millisecond,
		Enabled:      true,
		Actuator:     feedback.NewLogActuator(),
	}

	hip := NewHipApp(src, jointangles.New(side), ctrl, opts.RateHz, RecordSinkFunc(func(r AngleRecord) {
		fmt.Fprintln(out, FormatRecord(r))
	}))
	return hip.Run(ctx)
}
