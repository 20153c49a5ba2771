// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"context"
	"math"
	"time"

	"github.com/relabs-tech/hip_feedback/internal/rotation"
)

// MockOptions shapes the synthetic gait produced by the mock source.
type MockOptions struct {
	RateHz float64

	// ThighMountYaw is the thigh sensor yaw relative to the pelvis sensor,
	// 90 for a sensor on the outside of the right thigh, -90 for the left.
	ThighMountYaw float64

	// SwingAmplitude and StrideHz describe the thigh swing in degrees and
	// strides per second.
	SwingAmplitude float64
	StrideHz       float64
}

// DefaultMockOptions is a slow walk at 100 Hz with a right-leg mounting.
var DefaultMockOptions = MockOptions{
	RateHz:         100,
	ThighMountYaw:  90,
	SwingAmplitude: 25,
	StrideHz:       0.8,
}

type mockSource struct {
	opts   MockOptions
	n      int
	ticker *time.Ticker
}

// NewMockSource creates a mock orientation source that generates a smooth
// thigh swing under a slowly swaying pelvis, paced at opts.RateHz.
func NewMockSource(opts MockOptions) Source {
	if opts.RateHz <= 0 {
		opts.RateHz = DefaultMockOptions.RateHz
	}
	return &mockSource{
		opts:   opts,
		ticker: time.NewTicker(time.Duration(float64(time.Second) / opts.RateHz)),
	}
}

func (m *mockSource) Next(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	select {
	case <-ctx.Done():
		m.ticker.Stop()
		return Sample{}, ctx.Err()
	case t := <-m.ticker.C:
		s := MockSampleAt(m.opts, float64(m.n)/m.opts.RateHz)
		s.Time = t
		m.n++
		return s, nil
	}
}

// MockSampleAt returns the synthetic sample at elapsed seconds.
func MockSampleAt(opts MockOptions, elapsed float64) Sample {
	phase := 2 * math.Pi * opts.StrideHz * elapsed

	pelvisYaw := 10 + 3*math.Sin(phase*0.5)
	swing := opts.SwingAmplitude * math.Sin(phase)

	return Sample{
		Pelvis: rotation.FromEulerZYX(pelvisYaw, 0, 2*math.Cos(phase)),
		Thigh:  rotation.FromEulerZYX(pelvisYaw+opts.ThighMountYaw, swing, 0),
	}
}

// ConnectedSensors is always 2; both segments are simulated.
func (m *mockSource) ConnectedSensors() int {
	return 2
}

func (m *mockSource) Close() error {
	m.ticker.Stop()
	return nil
}
