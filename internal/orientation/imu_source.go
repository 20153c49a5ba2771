package orientation

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/hip_feedback/internal/rotation"
)

// gyroLSBPerDPS is the MPU9250 gyro sensitivity at the default ±250°/s range.
const gyroLSBPerDPS = 131.0

// IMUConfig names the SPI device and chip-select pin of each segment IMU.
type IMUConfig struct {
	PelvisSPIDevice string
	PelvisCSPin     string
	ThighSPIDevice  string
	ThighCSPin      string
	RateHz          float64
}

// segmentIMU turns raw MPU9250 readings into an orientation: roll and pitch
// from accelerometer tilt, yaw integrated from the gyro Z rate. Yaw drifts;
// this is good enough for short sessions until magnetometer fusion exists.
type segmentIMU struct {
	name string
	imu  *mpu9250.MPU9250
	yaw  float64
}

type imuSource struct {
	pelvis *segmentIMU
	thigh  *segmentIMU
	ticker *time.Ticker
	last   time.Time
}

// NewIMUSource initializes both MPU9250s over SPI. A segment whose IMU fails
// to initialize is logged and left out; ConnectedSensors reports how many
// came up and Next fails until both are present.
func NewIMUSource(cfg IMUConfig) (Source, error) {
	// Initialize periph host once.
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	pelvis, err := newSegmentIMU(RolePelvis, cfg.PelvisSPIDevice, cfg.PelvisCSPin)
	if err != nil {
		log.Errorf("sensor source: %v", err)
	}
	thigh, err := newSegmentIMU(RoleThigh, cfg.ThighSPIDevice, cfg.ThighCSPin)
	if err != nil {
		log.Errorf("sensor source: %v", err)
	}

	rate := cfg.RateHz
	if rate <= 0 {
		rate = 100
	}
	return &imuSource{
		pelvis: pelvis,
		thigh:  thigh,
		ticker: time.NewTicker(time.Duration(float64(time.Second) / rate)),
	}, nil
}

func newSegmentIMU(name, spiDev, csPin string) (*segmentIMU, error) {
	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("%s IMU: CS pin %q not found", name, csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: SPI transport (%s): %w", name, spiDev, err)
	}

	imu, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: device creation: %w", name, err)
	}

	if err := imu.Init(); err != nil {
		return nil, fmt.Errorf("%s IMU: initialization: %w", name, err)
	}

	if _, err := imu.SelfTest(); err != nil {
		log.Printf("Warning: %s IMU self-test failed: %v", name, err)
	} else {
		log.Printf("%s IMU self-test passed", name)
	}

	if err := imu.Calibrate(); err != nil {
		log.Printf("Warning: %s IMU calibration failed: %v", name, err)
	} else {
		log.Printf("%s IMU calibration complete", name)
	}

	return &segmentIMU{name: name, imu: imu}, nil
}

// read reads accelerometer and gyro Z and advances the integrated yaw by dt
// seconds.
func (s *segmentIMU) read(dt float64) (rotation.Rotation, error) {
	ax, err := s.imu.GetAccelerationX()
	if err != nil {
		return rotation.Rotation{}, fmt.Errorf("%s IMU accel X: %w", s.name, err)
	}
	ay, err := s.imu.GetAccelerationY()
	if err != nil {
		return rotation.Rotation{}, fmt.Errorf("%s IMU accel Y: %w", s.name, err)
	}
	az, err := s.imu.GetAccelerationZ()
	if err != nil {
		return rotation.Rotation{}, fmt.Errorf("%s IMU accel Z: %w", s.name, err)
	}
	gz, err := s.imu.GetRotationZ()
	if err != nil {
		return rotation.Rotation{}, fmt.Errorf("%s IMU gyro Z: %w", s.name, err)
	}

	return s.integrate(float64(ax), float64(ay), float64(az), float64(gz), dt), nil
}

func (s *segmentIMU) integrate(ax, ay, az, gz, dt float64) rotation.Rotation {
	roll, pitch := TiltFromAccel(ax, ay, az)
	s.yaw = rotation.Wrap180(s.yaw + gz/gyroLSBPerDPS*dt)
	return rotation.FromEulerZYX(s.yaw, pitch, roll)
}

func (s *imuSource) ConnectedSensors() int {
	n := 0
	if s.pelvis != nil {
		n++
	}
	if s.thigh != nil {
		n++
	}
	return n
}

func (s *imuSource) Next(ctx context.Context) (Sample, error) {
	if s.pelvis == nil || s.thigh == nil {
		return Sample{}, fmt.Errorf("sensor source: only %d of 2 IMUs connected", s.ConnectedSensors())
	}

	var t time.Time
	select {
	case <-ctx.Done():
		return Sample{}, ctx.Err()
	case t = <-s.ticker.C:
	}

	dt := 0.0
	if !s.last.IsZero() {
		dt = t.Sub(s.last).Seconds()
	}
	s.last = t

	pelvis, err := s.pelvis.read(dt)
	if err != nil {
		return Sample{}, err
	}
	thigh, err := s.thigh.read(dt)
	if err != nil {
		return Sample{}, err
	}
	return Sample{Pelvis: pelvis, Thigh: thigh, Time: t}, nil
}

func (s *imuSource) Close() error {
	s.ticker.Stop()
	return nil
}
