// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package jointangles

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/relabs-tech/hip_feedback/internal/rotation"
)

// Side selects which leg carries the thigh sensor.
type Side int

const (
	RightLeg Side = iota
	LeftLeg
)

// ParseSide accepts "right", "left", and the "Right Leg"/"Left Leg" labels
// used by the feedback app settings.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "right", "right leg", "r":
		return RightLeg, nil
	case "left", "left leg", "l":
		return LeftLeg, nil
	}
	return RightLeg, fmt.Errorf("unknown leg side %q (want right or left)", s)
}

// YawOffset is the expected anatomical yaw difference between the thigh and
// pelvis sensors. The right leg is rotated the other way.
func (s Side) YawOffset() float64 {
	if s == RightLeg {
		return -90
	}
	return 90
}

func (s Side) String() string {
	if s == RightLeg {
		return "right"
	}
	return "left"
}

// degenerateYawTol is how close pelvis and thigh yaw must be, in degrees,
// for a calibration pose to be flagged as degenerate.
const degenerateYawTol = 1e-6

// Calibration is the immutable result of one calibration pose.
type Calibration struct {
	Side Side

	// PelvisAlignment and ThighAlignment are the inverse sensor-to-segment
	// alignments. ThighYawOffset removes the residual yaw between the thigh
	// and pelvis sensor mountings.
	PelvisAlignment rotation.Rotation
	ThighAlignment  rotation.Rotation
	ThighYawOffset  rotation.Rotation

	PelvisYaw        float64
	ThighYaw         float64
	ThighOffsetAngle float64

	Generation   uint64
	CalibratedAt time.Time
}

// NewCalibration computes the alignment rotations from a pelvis and thigh
// orientation captured while the subject holds the reference stance.
//
// When the pose looks degenerate the calibration is still returned together
// with ErrDegenerateCalibrationPose.
func NewCalibration(side Side, pelvis, thigh rotation.Rotation) (*Calibration, error) {
	pelvisYaw := pelvis.Yaw()
	thighYaw := thigh.Yaw()

	offsetAngle := thighYaw - side.YawOffset() - pelvisYaw

	cal := &Calibration{
		Side: side,

		// The pelvis is the base segment and gets no leg offset.
		PelvisAlignment: segmentAlignment(pelvis, pelvisYaw),
		ThighAlignment:  segmentAlignment(thigh, thighYaw+side.YawOffset()),
		ThighYawOffset:  rotation.YawOffset(offsetAngle),

		PelvisYaw:        pelvisYaw,
		ThighYaw:         thighYaw,
		ThighOffsetAngle: offsetAngle,
		CalibratedAt:     time.Now(),
	}

	if math.Abs(rotation.Wrap180(thighYaw-pelvisYaw)) < degenerateYawTol {
		return cal, ErrDegenerateCalibrationPose
	}
	return cal, nil
}

// segmentAlignment returns sensor⁻¹ ∘ target where target is a pure yaw of
// targetYaw wrapped into (-180, 180].
func segmentAlignment(sensor rotation.Rotation, targetYaw float64) rotation.Rotation {
	target := rotation.FromEulerZYX(rotation.Wrap180(targetYaw), 0, 0)
	return sensor.Inverse().Compose(target)
}

// BodyOrientations maps live sensor orientations into the global body-segment
// frames.
func (c *Calibration) BodyOrientations(pelvis, thigh rotation.Rotation) (gbPelvis, gbThigh rotation.Rotation) {
	gbPelvis = pelvis.Compose(c.PelvisAlignment)
	gbThigh = c.ThighYawOffset.Compose(thigh.Compose(c.ThighAlignment))
	return gbPelvis, gbThigh
}

// HipFlex returns the hip flexion/extension angle in degrees, in (-180, 180],
// as pelvis roll minus thigh roll in the body-segment frames.
func (c *Calibration) HipFlex(pelvis, thigh rotation.Rotation) float64 {
	gbPelvis, gbThigh := c.BodyOrientations(pelvis, thigh)
	return rotation.Wrap180(gbPelvis.EulerZYX().Roll - gbThigh.EulerZYX().Roll)
}
