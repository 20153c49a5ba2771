// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package orientation delivers per-cycle pelvis and thigh sensor orientations.
package orientation

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/relabs-tech/hip_feedback/internal/rotation"
)

// Sensor roles as they appear in sensor records.
const (
	RolePelvis = "pelvis"
	RoleThigh  = "thigh"
)

// ErrSourceClosed is returned by Next after a source has been closed.
var ErrSourceClosed = errors.New("orientation: source closed")

// Sample is one cycle of sensor orientations keyed by role.
type Sample struct {
	Pelvis rotation.Rotation
	Thigh  rotation.Rotation
	Time   time.Time
}

// Source is anything that can provide samples over time: a mock gait, an
// MQTT sensor stream, a serial sensor hub or a pair of local IMUs.
// Next blocks until a sample is available or ctx is done.
type Source interface {
	Next(ctx context.Context) (Sample, error)
}

// SensorCounter is implemented by sources that can tell how many of the
// pelvis and thigh sensors they have heard from.
type SensorCounter interface {
	ConnectedSensors() int
}

func countSeen(roles ...bool) int {
	n := 0
	for _, seen := range roles {
		if seen {
			n++
		}
	}
	return n
}

// TiltFromAccel computes roll and pitch in degrees from accelerometer data
// (any unit, only ratios matter):
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func TiltFromAccel(ax, ay, az float64) (roll, pitch float64) {
	rollRad := math.Atan2(ay, az)
	pitchRad := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	return rollRad * 180.0 / math.Pi, pitchRad * 180.0 / math.Pi
}
