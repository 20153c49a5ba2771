package orientation

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/hip_feedback/internal/rotation"
)

func TestTiltFromAccel(t *testing.T) {
	examples := []struct {
		ax, ay, az  float64
		roll, pitch float64
	}{
		{0, 0, 1, 0, 0},
		{0, 1, 0, 90, 0},
		{0, -1, 0, -90, 0},
		{-1, 0, 0, 0, 90},
		{1, 0, 0, 0, -90},
		{0, 1, 1, 45, 0},
		{0, 0, 16384, 0, 0},
	}

	for _, eg := range examples {
		roll, pitch := TiltFromAccel(eg.ax, eg.ay, eg.az)
		assert.InDelta(t, eg.roll, roll, 1e-9, "roll for %v", eg)
		assert.InDelta(t, eg.pitch, pitch, 1e-9, "pitch for %v", eg)
	}
}

func TestSegmentIMUIntegratesYaw(t *testing.T) {
	s := &segmentIMU{name: RoleThigh}

	// 131 LSB = 1°/s; 90°/s for one second in ten steps.
	var r rotation.Rotation
	for i := 0; i < 10; i++ {
		r = s.integrate(0, 0, 16384, 90*gyroLSBPerDPS, 0.1)
	}
	e := r.EulerZYX()
	assert.InDelta(t, 90, e.Yaw, 1e-9)
	assert.InDelta(t, 0, e.Pitch, 1e-9)
	assert.InDelta(t, 0, e.Roll, 1e-9)

	// Wraps past the half turn.
	r = s.integrate(0, 0, 16384, 100*gyroLSBPerDPS, 1)
	assert.InDelta(t, -170, r.EulerZYX().Yaw, 1e-9)
}

func TestMockSampleAt(t *testing.T) {
	opts := DefaultMockOptions

	s := MockSampleAt(opts, 0)
	assert.InDelta(t, 10, s.Pelvis.EulerZYX().Yaw, 1e-9)
	assert.InDelta(t, 100, s.Thigh.EulerZYX().Yaw, 1e-9)
	assert.InDelta(t, 0, s.Thigh.EulerZYX().Pitch, 1e-9)

	// Quarter stride: full forward swing.
	s = MockSampleAt(opts, 1/(4*opts.StrideHz))
	assert.InDelta(t, opts.SwingAmplitude, s.Thigh.EulerZYX().Pitch, 1e-9)
}

func TestMockSourceNext(t *testing.T) {
	src := NewMockSource(MockOptions{RateHz: 1000, ThighMountYaw: -90, SwingAmplitude: 10, StrideHz: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		s, err := src.Next(ctx)
		require.NoError(t, err)
		assert.False(t, s.Time.IsZero())
	}

	cancel()
	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFrameRoundTrip(t *testing.T) {
	in := Sample{
		Pelvis: rotation.FromEulerZYX(10, 2, -3),
		Thigh:  rotation.FromEulerZYX(100, 25, 0),
	}
	payload, err := EncodeFrame(in)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"Quat1"`)

	out, err := DecodeFrame(payload)
	require.NoError(t, err)
	assert.True(t, in.Pelvis.ApproxEqual(out.Pelvis, 1e-12))
	assert.True(t, in.Thigh.ApproxEqual(out.Thigh, 1e-12))
}

func TestDecodeFrameErrors(t *testing.T) {
	examples := map[string]string{
		"bad json":     `{"pelvis":`,
		"missing node": `{"pelvis":{"Quat1":1,"Quat2":0,"Quat3":0,"Quat4":0}}`,
		"zero quat":    `{"pelvis":{"Quat1":1,"Quat2":0,"Quat3":0,"Quat4":0},"thigh":{"Quat1":0,"Quat2":0,"Quat3":0,"Quat4":0}}`,
	}
	for name, payload := range examples {
		_, err := DecodeFrame([]byte(payload))
		assert.Error(t, err, name)
	}

	_, err := DecodeFrame([]byte(examples["zero quat"]))
	assert.ErrorIs(t, err, rotation.ErrZeroQuaternion)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestMQTTSourceQueuesDecodedFrames(t *testing.T) {
	s := &mqttSource{topic: "hip/sensors", samples: make(chan Sample, 2)}

	payload, err := EncodeFrame(Sample{Pelvis: rotation.Identity(), Thigh: rotation.FromEulerZYX(90, 0, 0)})
	require.NoError(t, err)

	s.onMessage(nil, fakeMessage{topic: s.topic, payload: []byte("garbage")})
	s.onMessage(nil, fakeMessage{topic: s.topic, payload: payload})
	s.onMessage(nil, fakeMessage{topic: s.topic, payload: payload})
	s.onMessage(nil, fakeMessage{topic: s.topic, payload: payload}) // dropped, backlog full
	assert.Len(t, s.samples, 2)

	got, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 90, got.Thigh.EulerZYX().Yaw, 1e-9)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	<-s.samples
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func hubLine(body string) string {
	var cs byte
	for i := 0; i < len(body); i++ {
		cs ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X", body, cs)
}

func TestParseHubLine(t *testing.T) {
	q, ok, err := ParseHubLine(hubLine("HPQTN,pelvis,1.0,0.0,0.0,0.0"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pelvis", q.Role)
	assert.Equal(t, 1.0, q.W)
	assert.Equal(t, TypeQTN, q.DataType())

	q, ok, err = ParseHubLine(hubLine("HPQTN,thigh,0.7071,0,0,0.7071"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.7071, q.Z)

	_, _, err = ParseHubLine("$HPQTN,thigh,1,0,0,0*00")
	assert.Error(t, err, "bad checksum")

	_, _, err = ParseHubLine(hubLine("HPQTN,thigh,one,0,0,0"))
	assert.Error(t, err, "bad number")
}

func TestSerialSourcePairsRoles(t *testing.T) {
	input := strings.Join([]string{
		"boot banner",
		hubLine("HPQTN,pelvis,1,0,0,0"),
		"$HPQTN,thigh,garbled",
		hubLine("HPQTN,thigh,0.7071068,0,0,0.7071068"),
		hubLine("HPQTN,knee,1,0,0,0"),
		hubLine("HPQTN,thigh,1,0,0,0"),
		hubLine("HPQTN,pelvis,0.7071068,0,0,-0.7071068"),
	}, "\r\n") + "\r\n"

	src := newSerialSource(strings.NewReader(input), nil)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := src.Next(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0, s.Pelvis.EulerZYX().Yaw, 1e-6)
	assert.InDelta(t, 90, s.Thigh.EulerZYX().Yaw, 1e-6)

	s, err = src.Next(ctx)
	require.NoError(t, err)
	assert.InDelta(t, -90, s.Pelvis.EulerZYX().Yaw, 1e-6)
	assert.InDelta(t, 0, s.Thigh.EulerZYX().Yaw, 1e-6)

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestMQTTSourceCountsReportingSensors(t *testing.T) {
	s := &mqttSource{topic: "hip/sensors", samples: make(chan Sample, 4)}
	assert.Equal(t, 0, s.ConnectedSensors())

	s.onMessage(nil, fakeMessage{topic: s.topic, payload: []byte(`{"pelvis":{"Quat1":1,"Quat2":0,"Quat3":0,"Quat4":0}}`)})
	assert.Equal(t, 1, s.ConnectedSensors())
	assert.Len(t, s.samples, 0, "incomplete frame is not a sample")

	payload, err := EncodeFrame(Sample{Pelvis: rotation.Identity(), Thigh: rotation.Identity()})
	require.NoError(t, err)
	s.onMessage(nil, fakeMessage{topic: s.topic, payload: payload})
	assert.Equal(t, 2, s.ConnectedSensors())
	assert.Len(t, s.samples, 1)
}

func TestSerialSourceCountsReportingSensors(t *testing.T) {
	input := hubLine("HPQTN,pelvis,1,0,0,0") + "\r\n" + hubLine("HPQTN,pelvis,1,0,0,0") + "\r\n"
	src := newSerialSource(strings.NewReader(input), nil)
	defer src.Close()

	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, ErrSourceClosed)
	assert.Equal(t, 1, src.ConnectedSensors())
}

func TestIMUSourceWithMissingSegment(t *testing.T) {
	src := &imuSource{pelvis: &segmentIMU{name: RolePelvis}, ticker: time.NewTicker(time.Millisecond)}
	defer src.Close()

	assert.Equal(t, 1, src.ConnectedSensors())
	_, err := src.Next(context.Background())
	assert.ErrorContains(t, err, "only 1 of 2 IMUs")
}

func TestMockSourceReportsBothSensors(t *testing.T) {
	src := NewMockSource(DefaultMockOptions)
	defer src.(io.Closer).Close()

	counter, ok := src.(SensorCounter)
	require.True(t, ok)
	assert.Equal(t, 2, counter.ConnectedSensors())
}
