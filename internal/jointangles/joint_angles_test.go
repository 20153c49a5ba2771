package jointangles

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/hip_feedback/internal/rotation"
)

func randomRotation(rng *rand.Rand) rotation.Rotation {
	for {
		r, err := rotation.FromQuaternion(rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64())
		if err == nil {
			return r
		}
	}
}

func TestHipFlexBeforeCalibrateFails(t *testing.T) {
	j := New(RightLeg)
	assert.Equal(t, Uncalibrated, j.State())

	_, err := j.HipFlex(rotation.Identity(), rotation.Identity())
	require.ErrorIs(t, err, ErrNotCalibrated)

	_, err = j.Calibration()
	require.ErrorIs(t, err, ErrNotCalibrated)
}

func TestIdentityAfterCalibration(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for _, side := range []Side{RightLeg, LeftLeg} {
		for i := 0; i < 500; i++ {
			pelvis := randomRotation(rng)
			thigh := randomRotation(rng)

			j := New(side)
			_, err := j.Calibrate(pelvis, thigh)
			require.NoError(t, err)
			assert.Equal(t, Calibrated, j.State())

			hip, err := j.HipFlex(pelvis, thigh)
			require.NoError(t, err)
			assert.InDelta(t, 0, hip, 1e-6, "side %s pelvis %s thigh %s", side, pelvis, thigh)
		}
	}
}

func TestHipFlexWrapInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(2))

	j := New(LeftLeg)
	_, err := j.Calibrate(randomRotation(rng), randomRotation(rng))
	require.NoError(t, err)

	for i := 0; i < 2000; i++ {
		hip, err := j.HipFlex(randomRotation(rng), randomRotation(rng))
		require.NoError(t, err)
		assert.Greater(t, hip, -180.0)
		assert.LessOrEqual(t, hip, 180.0)
	}
}

func TestLegSideYawOffsetsAreHalfTurnApart(t *testing.T) {
	rng := rand.New(rand.NewSource(5))

	for i := 0; i < 200; i++ {
		pelvis := randomRotation(rng)
		thigh := randomRotation(rng)

		right, err := NewCalibration(RightLeg, pelvis, thigh)
		require.NoError(t, err)
		left, err := NewCalibration(LeftLeg, pelvis, thigh)
		require.NoError(t, err)

		diff := rotation.Wrap180(right.ThighYawOffset.Yaw() - left.ThighYawOffset.Yaw())
		assert.InDelta(t, 180, math.Abs(diff), 1e-6)
		assert.InDelta(t, 180, right.ThighOffsetAngle-left.ThighOffsetAngle, 1e-9)
	}
}

func TestCalibrateWorkedExample(t *testing.T) {
	pelvis := rotation.FromEulerZYX(10, 0, 0)
	thigh := rotation.FromEulerZYX(100, 0, 0)

	cal, err := NewCalibration(RightLeg, pelvis, thigh)
	require.NoError(t, err)

	assert.InDelta(t, 10, cal.PelvisYaw, 1e-9)
	assert.InDelta(t, 100, cal.ThighYaw, 1e-9)
	assert.InDelta(t, 180, cal.ThighOffsetAngle, 1e-9)
	assert.True(t, cal.ThighYawOffset.ApproxEqual(rotation.FromEulerZYX(-180, 0, 0), 1e-12))

	// Alignments: pelvis targets its own yaw, thigh targets yaw + offset.
	assert.True(t, cal.PelvisAlignment.ApproxEqual(pelvis.Inverse().Compose(rotation.FromEulerZYX(10, 0, 0)), 1e-12))
	assert.True(t, cal.ThighAlignment.ApproxEqual(thigh.Inverse().Compose(rotation.FromEulerZYX(10, 0, 0)), 1e-12))
}

func TestHipFlexFollowsThighSwing(t *testing.T) {
	examples := []struct {
		side      Side
		thighYaw  float64
		pitch     float64
		expectHip float64
	}{
		{RightLeg, 90, -5, -5},
		{RightLeg, 90, 20, 20},
		{LeftLeg, -90, 5, -5},
		{LeftLeg, -90, -30, 30},
	}

	for i, eg := range examples {
		j := New(eg.side)
		_, err := j.Calibrate(rotation.Identity(), rotation.FromEulerZYX(eg.thighYaw, 0, 0))
		require.NoError(t, err)

		hip, err := j.HipFlex(rotation.Identity(), rotation.FromEulerZYX(eg.thighYaw, eg.pitch, 0))
		require.NoError(t, err)
		assert.InDelta(t, eg.expectHip, hip, 1e-9, "example #%d", i+1)
	}
}

func TestHipFlexSensitivityToBodyRoll(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	roll5 := rotation.FromEulerZYX(0, 0, 5)

	for i := 0; i < 200; i++ {
		pelvis := randomRotation(rng)
		thigh := randomRotation(rng)

		cal, err := NewCalibration(RightLeg, pelvis, thigh)
		require.NoError(t, err)

		// Live thigh whose body-frame orientation is the calibrated one rolled by 5°.
		a := cal.ThighAlignment
		live := thigh.Compose(a).Compose(roll5).Compose(a.Inverse())

		assert.InDelta(t, -5, cal.HipFlex(pelvis, live), 1e-6)
	}
}

func TestDegenerateCalibrationPose(t *testing.T) {
	j := New(RightLeg)

	cal, err := j.Calibrate(rotation.Identity(), rotation.Identity())
	require.ErrorIs(t, err, ErrDegenerateCalibrationPose)
	require.NotNil(t, cal)
	assert.Equal(t, Calibrated, j.State())

	hip, err := j.HipFlex(rotation.Identity(), rotation.Identity())
	require.NoError(t, err)
	assert.InDelta(t, 0, hip, 1e-9)
}

func TestRecalibrateReplacesState(t *testing.T) {
	j := New(LeftLeg)

	first, err := j.Calibrate(rotation.FromEulerZYX(0, 0, 0), rotation.FromEulerZYX(80, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Generation)

	second, err := j.Calibrate(rotation.FromEulerZYX(30, 0, 0), rotation.FromEulerZYX(-60, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Generation)

	current, err := j.Calibration()
	require.NoError(t, err)
	assert.Same(t, second, current)
	assert.Equal(t, LeftLeg, current.Side)
}

func TestConcurrentCalibrateAndHipFlex(t *testing.T) {
	j := New(RightLeg)
	_, err := j.Calibrate(rotation.FromEulerZYX(5, 0, 0), rotation.FromEulerZYX(95, 0, 0))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 200; i++ {
				if _, err := j.HipFlex(randomRotation(rng), randomRotation(rng)); err != nil {
					t.Errorf("HipFlex: %v", err)
					return
				}
			}
		}(int64(g))
	}

	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 20; i++ {
		_, _ = j.Calibrate(randomRotation(rng), randomRotation(rng))
	}
	wg.Wait()
}

func TestParseSide(t *testing.T) {
	examples := map[string]Side{
		"right":     RightLeg,
		"Right Leg": RightLeg,
		"LEFT":      LeftLeg,
		" left leg": LeftLeg,
	}
	for in, exp := range examples {
		got, err := ParseSide(in)
		require.NoError(t, err, in)
		assert.Equal(t, exp, got, in)
	}

	_, err := ParseSide("both")
	assert.Error(t, err)

	assert.Equal(t, -90.0, RightLeg.YawOffset())
	assert.Equal(t, 90.0, LeftLeg.YawOffset())
}
