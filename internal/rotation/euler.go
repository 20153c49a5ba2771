// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package rotation

import (
	"fmt"
	"math"
)

// EulerZYX holds intrinsic Z-Y-X angles in degrees.
// Yaw and Roll lie in (-180, 180], Pitch in [-90, 90].
type EulerZYX struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

func (e EulerZYX) String() string {
	return fmt.Sprintf("Yaw = %.3f, Pitch = %.3f, Roll = %.3f", e.Yaw, e.Pitch, e.Roll)
}

// EulerZYX decomposes r into intrinsic yaw, pitch and roll.
//
// Near pitch = ±90° yaw and roll become hard to tell apart; the result is
// still a valid decomposition but small input noise moves angle between them.
func (r Rotation) EulerZYX() EulerZYX {
	w, x, y, z := r.q.Real, r.q.Imag, r.q.Jmag, r.q.Kmag

	roll := math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))

	sinp := 2 * (w*y - z*x)
	if sinp > 1 {
		sinp = 1
	} else if sinp < -1 {
		sinp = -1
	}
	pitch := math.Asin(sinp)

	yaw := math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))

	return EulerZYX{
		Yaw:   halfOpen(rad2deg(yaw)),
		Pitch: rad2deg(pitch),
		Roll:  halfOpen(rad2deg(roll)),
	}
}

// Yaw is shorthand for r.EulerZYX().Yaw.
func (r Rotation) Yaw() float64 {
	return r.EulerZYX().Yaw
}

// YawOffset returns the pure-yaw correction that cancels a measured yaw
// discrepancy of angle degrees.
func YawOffset(angle float64) Rotation {
	return FromEulerZYX(-angle, 0, 0)
}

// Wrap180 maps an angle in degrees to (-180, 180] using
// ((angle + 180) mod 360) - 180 with a floored modulo.
func Wrap180(angle float64) float64 {
	m := math.Mod(angle+180, 360)
	if m < 0 {
		m += 360
	}
	return halfOpen(m - 180)
}

// boundaryEps absorbs rounding in atan2 and the radian/degree conversion
// right at the half-turn.
const boundaryEps = 1e-12

// halfOpen moves the -180 boundary to +180.
func halfOpen(a float64) float64 {
	if a <= -180+boundaryEps {
		return 180
	}
	return a
}
