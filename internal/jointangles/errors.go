// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package jointangles

import "errors"

var (
	// ErrNotCalibrated is returned when a joint angle is requested before a
	// calibration pose has been captured.
	ErrNotCalibrated = errors.New("jointangles: not calibrated")

	// ErrDegenerateCalibrationPose is advisory: pelvis and thigh reported the
	// same yaw during calibration, which usually means a sensor is not
	// streaming real data. The calibration is still installed.
	ErrDegenerateCalibrationPose = errors.New("jointangles: degenerate calibration pose (pelvis and thigh yaw identical)")
)
