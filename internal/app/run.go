// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/hip_feedback/internal/config"
	"github.com/relabs-tech/hip_feedback/internal/feedback"
	"github.com/relabs-tech/hip_feedback/internal/jointangles"
	"github.com/relabs-tech/hip_feedback/internal/orientation"
)

// ConfigureLogging applies LOG_LEVEL to the standard logger.
func ConfigureLogging(cfg *config.Config) error {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	return nil
}

// RunHipApp builds the sensor source, feedback actuator and outputs selected
// by cfg and runs the hip app until ctx is cancelled or the source ends.
func RunHipApp(ctx context.Context, cfg *config.Config) error {
	side, err := jointangles.ParseSide(cfg.WhichLeg)
	if err != nil {
		return err
	}

	// The broker is optional unless the source or actuator needs it; records
	// are published whenever a connection can be made.
	var client mqtt.Client
	if cfg.MQTTBroker != "" {
		client, err = connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDApp)
		if err != nil {
			if cfg.UsesMQTT() {
				return err
			}
			log.Warnf("hip app: %v; records will not be published", err)
			client = nil
		}
	}
	if client != nil {
		defer client.Disconnect(250)
	}

	src, err := newSource(cfg, side, client)
	if err != nil {
		return err
	}
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}

	actuator, err := newActuator(cfg, client)
	if err != nil {
		return err
	}

	first, err := checkDevices(ctx, src, actuator, cfg.FeedbackEnabled, sensorWait)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	ctrl := &feedback.Controller{
		MinThreshold: cfg.MinThreshold,
		MaxThreshold: cfg.MaxThreshold,
		PulseLength:  cfg.PulseLength(),
		Enabled:      cfg.FeedbackEnabled,
		Actuator:     actuator,
	}
	hip := NewHipApp(src, jointangles.New(side), ctrl, cfg.SampleRateHz)

	if client != nil {
		hip.AddSink(newRecordPublisher(client, cfg.TopicHipAngle))
		log.Printf("hip app: publishing records to %s", cfg.TopicHipAngle)
	}

	if cfg.DataFile != "" {
		rec, err := OpenRecorder(cfg.DataFile)
		if err != nil {
			return err
		}
		defer rec.Close()
		hip.AddSink(rec)
	}

	if cfg.WebServerPort > 0 {
		hub := NewHub()
		hip.AddSink(hub)
		go func() {
			if err := ServeWeb(ctx, fmt.Sprintf(":%d", cfg.WebServerPort), hip, hub); err != nil {
				log.Errorf("web server: %v", err)
			}
		}()
	}

	if cfg.DisplayEnabled {
		disp, err := OpenDisplay(cfg.DisplayI2CBus)
		if err != nil {
			return err
		}
		dispCtx, stopDisp := context.WithCancel(ctx)
		dispDone := make(chan struct{})
		go func() {
			defer close(dispDone)
			disp.Run(dispCtx, hip, time.Duration(cfg.DisplayUpdateInterval)*time.Millisecond)
		}()
		defer func() {
			stopDisp()
			<-dispDone
			disp.Close()
		}()
	}

	log.WithFields(log.Fields{
		"leg":      side.String(),
		"source":   cfg.SensorSource,
		"actuator": cfg.FeedbackActuator,
		"rate_hz":  cfg.SampleRateHz,
	}).Info("hip app: running, first sample is the calibration pose")

	if first != nil {
		if _, err := hip.Process(*first); err != nil {
			log.Printf("hip app: sample error: %v", err)
		}
	}
	return hip.Run(ctx)
}

// sensorWait bounds how long startup waits for the first complete sample.
const sensorWait = 5 * time.Second

// checkDevices waits for the first sample so streaming sources can show
// which sensors are live, then runs CheckStatus on the devices that actually
// came up. The first sample, if any arrived, is returned for the caller to
// process.
func checkDevices(ctx context.Context, src orientation.Source, act feedback.Actuator, feedbackEnabled bool, wait time.Duration) (*orientation.Sample, error) {
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	var first *orientation.Sample
	s, err := src.Next(waitCtx)
	switch {
	case err == nil:
		first = &s
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		log.Warnf("hip app: no sample from sensor source within %s: %v", wait, err)
	}

	ok, msg := CheckStatus(connectedSensors(src, first != nil), connectedFeedback(act), feedbackEnabled)
	if !ok {
		return nil, fmt.Errorf("hip app: %s", msg)
	}
	log.Println(msg)
	return first, nil
}

// connectedSensors asks the source when it can tell; otherwise a complete
// sample proves both sensors are there.
func connectedSensors(src orientation.Source, gotSample bool) int {
	if c, ok := src.(orientation.SensorCounter); ok {
		return c.ConnectedSensors()
	}
	if gotSample {
		return RequiredSensors
	}
	return 0
}

func connectedFeedback(act feedback.Actuator) int {
	if c, ok := act.(feedback.NodeCounter); ok {
		return c.ConnectedNodes()
	}
	return 0
}

// newSource opens the sensor source named by SENSOR_SOURCE.
func newSource(cfg *config.Config, side jointangles.Side, client mqtt.Client) (orientation.Source, error) {
	switch cfg.SensorSource {
	case config.SourceMock:
		opts := orientation.DefaultMockOptions
		opts.RateHz = cfg.SampleRateHz
		opts.ThighMountYaw = -side.YawOffset()
		log.Printf("sensor source: mock gait at %.0f Hz", opts.RateHz)
		return orientation.NewMockSource(opts), nil
	case config.SourceMQTT:
		if client == nil {
			return nil, fmt.Errorf("sensor source: MQTT source needs a broker connection")
		}
		return orientation.NewMQTTSource(client, cfg.TopicSensors)
	case config.SourceSerial:
		return orientation.NewSerialSource(cfg.SerialPort, cfg.SerialBaudRate)
	case config.SourceIMU:
		return orientation.NewIMUSource(orientation.IMUConfig{
			PelvisSPIDevice: cfg.IMUPelvisSPIDevice,
			PelvisCSPin:     cfg.IMUPelvisCSPin,
			ThighSPIDevice:  cfg.IMUThighSPIDevice,
			ThighCSPin:      cfg.IMUThighCSPin,
			RateHz:          cfg.SampleRateHz,
		})
	}
	return nil, fmt.Errorf("sensor source: unknown source %q", cfg.SensorSource)
}

// newActuator builds the feedback actuator named by FEEDBACK_ACTUATOR.
func newActuator(cfg *config.Config, client mqtt.Client) (feedback.Actuator, error) {
	switch cfg.FeedbackActuator {
	case config.ActuatorGPIO:
		return feedback.NewGPIOActuator(cfg.FeedbackMinPin, cfg.FeedbackMaxPin)
	case config.ActuatorMQTT:
		if client == nil {
			return nil, fmt.Errorf("feedback: MQTT actuator needs a broker connection")
		}
		return feedback.NewMQTTActuator(client, cfg.TopicFeedback), nil
	case config.ActuatorNone, "":
		return feedback.NewLogActuator(), nil
	}
	return nil, fmt.Errorf("feedback: unknown actuator %q", cfg.FeedbackActuator)
}
