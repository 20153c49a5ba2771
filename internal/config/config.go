package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/hip_feedback/internal/jointangles"
)

// Sensor sources.
const (
	SourceMock   = "mock"
	SourceMQTT   = "mqtt"
	SourceSerial = "serial"
	SourceIMU    = "imu"
)

// Feedback actuators.
const (
	ActuatorGPIO = "gpio"
	ActuatorMQTT = "mqtt"
	ActuatorNone = "none"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDApp      string
	MQTTClientIDConsole  string
	MQTTClientIDProducer string

	// Topics
	TopicSensors  string
	TopicHipAngle string
	TopicFeedback string

	// Joint angles
	WhichLeg     string // "right" or "left"
	SampleRateHz float64

	// Feedback
	MinThreshold     float64 // degrees
	MaxThreshold     float64 // degrees
	PulseLengthMS    int
	FeedbackEnabled  bool
	FeedbackActuator string // "gpio", "mqtt", "none"
	FeedbackMinPin   string
	FeedbackMaxPin   string

	// Sensor source: "mock", "mqtt", "serial", "imu"
	SensorSource string

	// Serial sensor hub
	SerialPort     string
	SerialBaudRate uint

	// IMU Hardware
	IMUPelvisSPIDevice string
	IMUPelvisCSPin     string
	IMUThighSPIDevice  string
	IMUThighCSPin      string

	// Web Server (0 disables)
	WebServerPort int

	// Display
	DisplayEnabled        bool
	DisplayI2CBus         string
	DisplayUpdateInterval int // milliseconds

	// Per-cycle record log as JSON lines (empty disables)
	DataFile string

	LogLevel string
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDApp:      "hip-feedback-app",
		MQTTClientIDConsole:  "hip-feedback-console",
		MQTTClientIDProducer: "hip-feedback-producer",

		TopicSensors:  "hip/sensors",
		TopicHipAngle: "hip/angle",
		TopicFeedback: "hip/feedback",

		WhichLeg:     "right",
		SampleRateHz: 100,

		MinThreshold:     -10,
		MaxThreshold:     20,
		PulseLengthMS:    200,
		FeedbackEnabled:  true,
		FeedbackActuator: ActuatorNone,
		FeedbackMinPin:   "GPIO23",
		FeedbackMaxPin:   "GPIO24",

		SensorSource: SourceMock,

		SerialPort:     "/dev/ttyUSB0",
		SerialBaudRate: 115200,

		IMUPelvisSPIDevice: "/dev/spidev0.0",
		IMUPelvisCSPin:     "8",
		IMUThighSPIDevice:  "/dev/spidev0.1",
		IMUThighCSPin:      "7",

		WebServerPort: 8080,

		DisplayEnabled:        false,
		DisplayUpdateInterval: 250,

		LogLevel: "info",
	}
}

// Load reads the configuration file and returns a Config struct. Keys not
// present in the file keep their Default value.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.Set(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Set sets a config value based on the key. Command line overrides go
// through here too, followed by Validate.
func (c *Config) Set(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_APP":
		c.MQTTClientIDApp = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value

	// Topics
	case "TOPIC_SENSORS":
		c.TopicSensors = value
	case "TOPIC_HIP_ANGLE":
		c.TopicHipAngle = value
	case "TOPIC_FEEDBACK":
		c.TopicFeedback = value

	// Joint angles
	case "WHICH_LEG":
		c.WhichLeg = value
	case "SAMPLE_RATE_HZ":
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid SAMPLE_RATE_HZ %q: %w", value, err)
		}
		c.SampleRateHz = rate

	// Feedback
	case "MIN_THRESHOLD":
		val, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MIN_THRESHOLD %q: %w", value, err)
		}
		c.MinThreshold = val
	case "MAX_THRESHOLD":
		val, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_THRESHOLD %q: %w", value, err)
		}
		c.MaxThreshold = val
	case "PULSE_LENGTH_MS":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid PULSE_LENGTH_MS %q: %w", value, err)
		}
		c.PulseLengthMS = val
	case "FEEDBACK_ENABLED":
		val, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid FEEDBACK_ENABLED %q: %w", value, err)
		}
		c.FeedbackEnabled = val
	case "FEEDBACK_ACTUATOR":
		c.FeedbackActuator = strings.ToLower(value)
	case "FEEDBACK_MIN_PIN":
		c.FeedbackMinPin = value
	case "FEEDBACK_MAX_PIN":
		c.FeedbackMaxPin = value

	case "SENSOR_SOURCE":
		c.SensorSource = strings.ToLower(value)

	// Serial sensor hub
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		rate, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_BAUD_RATE %q: %w", value, err)
		}
		c.SerialBaudRate = uint(rate)

	// IMU Hardware
	case "IMU_PELVIS_SPI_DEVICE":
		c.IMUPelvisSPIDevice = value
	case "IMU_PELVIS_CS_PIN":
		c.IMUPelvisCSPin = value
	case "IMU_THIGH_SPI_DEVICE":
		c.IMUThighSPIDevice = value
	case "IMU_THIGH_CS_PIN":
		c.IMUThighCSPin = value

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_ENABLED":
		val, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_ENABLED %q: %w", value, err)
		}
		c.DisplayEnabled = val
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	case "DATA_FILE":
		c.DataFile = value

	case "LOG_LEVEL":
		c.LogLevel = strings.ToLower(value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// Validate checks value ranges and that the settings needed by the selected
// components are present.
func (c *Config) Validate() error {
	if c.SampleRateHz <= 0 {
		return fmt.Errorf("SAMPLE_RATE_HZ must be positive, got %v", c.SampleRateHz)
	}
	if c.MinThreshold > c.MaxThreshold {
		return fmt.Errorf("MIN_THRESHOLD (%v) must not exceed MAX_THRESHOLD (%v)", c.MinThreshold, c.MaxThreshold)
	}
	if c.PulseLengthMS < 0 {
		return fmt.Errorf("PULSE_LENGTH_MS must not be negative, got %d", c.PulseLengthMS)
	}

	if _, err := jointangles.ParseSide(c.WhichLeg); err != nil {
		return fmt.Errorf("invalid WHICH_LEG: %w", err)
	}

	switch c.SensorSource {
	case SourceMock, SourceMQTT:
	case SourceSerial:
		if c.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required for SENSOR_SOURCE=serial")
		}
		if c.SerialBaudRate == 0 {
			return fmt.Errorf("SERIAL_BAUD_RATE is required for SENSOR_SOURCE=serial")
		}
	case SourceIMU:
		if c.IMUPelvisSPIDevice == "" || c.IMUThighSPIDevice == "" {
			return fmt.Errorf("IMU_PELVIS_SPI_DEVICE and IMU_THIGH_SPI_DEVICE are required for SENSOR_SOURCE=imu")
		}
	default:
		return fmt.Errorf("unknown SENSOR_SOURCE %q (want mock, mqtt, serial or imu)", c.SensorSource)
	}

	switch c.FeedbackActuator {
	case ActuatorNone, ActuatorMQTT:
	case ActuatorGPIO:
		if c.FeedbackMinPin == "" || c.FeedbackMaxPin == "" {
			return fmt.Errorf("FEEDBACK_MIN_PIN and FEEDBACK_MAX_PIN are required for FEEDBACK_ACTUATOR=gpio")
		}
	default:
		return fmt.Errorf("unknown FEEDBACK_ACTUATOR %q (want gpio, mqtt or none)", c.FeedbackActuator)
	}

	if c.UsesMQTT() && c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.WebServerPort < 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT out of range: %d", c.WebServerPort)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if c.DisplayEnabled && c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL is required when DISPLAY_ENABLED=true")
	}
	return nil
}

// UsesMQTT reports whether any selected component needs the broker. The
// angle record is always published when a broker is configured.
func (c *Config) UsesMQTT() bool {
	return c.SensorSource == SourceMQTT || c.FeedbackActuator == ActuatorMQTT
}

// PulseLength is PULSE_LENGTH_MS as a duration.
func (c *Config) PulseLength() time.Duration {
	return time.Duration(c.PulseLengthMS) * time.Millisecond
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
