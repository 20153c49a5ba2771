// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package jointangles turns raw pelvis and thigh sensor orientations into a
// hip flexion/extension angle after a one-time sensor-to-segment calibration.
package jointangles

import (
	"errors"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/hip_feedback/internal/rotation"
)

// State is the calibration state of a JointAngles.
type State int

const (
	Uncalibrated State = iota
	Calibrated
)

func (s State) String() string {
	if s == Calibrated {
		return "calibrated"
	}
	return "uncalibrated"
}

// JointAngles holds the leg side and the current calibration for one session.
// Calibrate may run from a different goroutine than HipFlex; the calibration
// record is published with a single atomic store.
type JointAngles struct {
	side  Side
	cal   atomic.Pointer[Calibration]
	count atomic.Uint64
}

// New creates an uncalibrated JointAngles for the given leg.
func New(side Side) *JointAngles {
	return &JointAngles{side: side}
}

// Side returns the leg side fixed at construction.
func (j *JointAngles) Side() Side {
	return j.side
}

// State reports whether a calibration has been installed.
func (j *JointAngles) State() State {
	if j.cal.Load() == nil {
		return Uncalibrated
	}
	return Calibrated
}

// Calibration returns the installed calibration record.
func (j *JointAngles) Calibration() (*Calibration, error) {
	c := j.cal.Load()
	if c == nil {
		return nil, ErrNotCalibrated
	}
	return c, nil
}

// Calibrate performs sensor-to-segment calibration and installs the result,
// replacing any previous calibration. A replaced calibration is logged.
//
// ErrDegenerateCalibrationPose is advisory; the returned calibration is
// installed in that case too. Any other error leaves the state unchanged.
func (j *JointAngles) Calibrate(pelvis, thigh rotation.Rotation) (*Calibration, error) {
	cal, err := NewCalibration(j.side, pelvis, thigh)
	if err != nil && !errors.Is(err, ErrDegenerateCalibrationPose) {
		return nil, err
	}
	cal.Generation = j.count.Add(1)

	prev := j.cal.Swap(cal)

	fields := log.Fields{
		"leg":          j.side.String(),
		"generation":   cal.Generation,
		"pelvis_yaw":   cal.PelvisYaw,
		"thigh_yaw":    cal.ThighYaw,
		"offset_angle": cal.ThighOffsetAngle,
	}
	if prev != nil {
		fields["replaced_generation"] = prev.Generation
		fields["replaced_age"] = cal.CalibratedAt.Sub(prev.CalibratedAt).Round(time.Millisecond).String()
		log.WithFields(fields).Warn("jointangles: recalibrated, previous calibration discarded")
	} else {
		log.WithFields(fields).Info("jointangles: hip angles calibrate finished")
	}

	return cal, err
}

// HipFlex computes the hip flexion/extension angle for one live sample.
func (j *JointAngles) HipFlex(pelvis, thigh rotation.Rotation) (float64, error) {
	c := j.cal.Load()
	if c == nil {
		return 0, ErrNotCalibrated
	}
	return c.HipFlex(pelvis, thigh), nil
}
