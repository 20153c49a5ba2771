// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package rotation provides an immutable unit-quaternion orientation type
// with intrinsic Z-Y-X (yaw, pitch, roll) Euler conversions.
package rotation

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// ErrZeroQuaternion is returned when a quaternion with zero norm is given
// where an orientation is expected.
var ErrZeroQuaternion = errors.New("rotation: zero quaternion")

// Rotation is a unit quaternion stored scalar first (w, x, y, z).
// The zero value is not a valid rotation; use Identity.
type Rotation struct {
	q quat.Number
}

// Identity returns the rotation that leaves every frame unchanged.
func Identity() Rotation {
	return Rotation{q: quat.Number{Real: 1}}
}

// FromQuaternion builds a rotation from scalar-first components. The input is
// normalised; zero or non-finite input is rejected.
func FromQuaternion(w, x, y, z float64) (Rotation, error) {
	q := quat.Number{Real: w, Imag: x, Jmag: y, Kmag: z}
	n := quat.Abs(q)
	if n == 0 {
		return Rotation{}, ErrZeroQuaternion
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return Rotation{}, fmt.Errorf("rotation: non-finite quaternion (%g, %g, %g, %g)", w, x, y, z)
	}
	return Rotation{q: quat.Scale(1/n, q)}, nil
}

// FromEulerZYX builds a rotation from intrinsic Z-Y-X angles in degrees:
// yaw about Z, then pitch about the new Y, then roll about the newest X.
func FromEulerZYX(yaw, pitch, roll float64) Rotation {
	cy, sy := math.Cos(deg2rad(yaw)*0.5), math.Sin(deg2rad(yaw)*0.5)
	cp, sp := math.Cos(deg2rad(pitch)*0.5), math.Sin(deg2rad(pitch)*0.5)
	cr, sr := math.Cos(deg2rad(roll)*0.5), math.Sin(deg2rad(roll)*0.5)

	return Rotation{q: quat.Number{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	}}
}

// Quaternion returns the scalar-first components.
func (r Rotation) Quaternion() (w, x, y, z float64) {
	return r.q.Real, r.q.Imag, r.q.Jmag, r.q.Kmag
}

// Inverse returns the reverse rotation. For a unit quaternion this is the
// conjugate.
func (r Rotation) Inverse() Rotation {
	return Rotation{q: quat.Conj(r.q)}
}

// Compose returns r∘other: other is applied first, then r.
func (r Rotation) Compose(other Rotation) Rotation {
	return Rotation{q: quat.Mul(r.q, other.q)}
}

// ApproxEqual reports whether r and other describe the same orientation
// within tol. q and -q are the same orientation.
func (r Rotation) ApproxEqual(other Rotation, tol float64) bool {
	dot := r.q.Real*other.q.Real + r.q.Imag*other.q.Imag + r.q.Jmag*other.q.Jmag + r.q.Kmag*other.q.Kmag
	return 1-math.Abs(dot) <= tol
}

func (r Rotation) String() string {
	return fmt.Sprintf("Rotation{w=%+.4f x=%+.4f y=%+.4f z=%+.4f}", r.q.Real, r.q.Imag, r.q.Jmag, r.q.Kmag)
}

func deg2rad(d float64) float64 {
	return d * math.Pi / 180
}

func rad2deg(r float64) float64 {
	return r * 180 / math.Pi
}
