// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/hip_feedback/internal/config"
	"github.com/relabs-tech/hip_feedback/internal/jointangles"
	"github.com/relabs-tech/hip_feedback/internal/orientation"
)

// producerLogEvery is how many published frames pass between tick logs.
const producerLogEvery = 100

// RunSensorProducer reads the local sensor source (mock, serial or imu) and
// publishes one frame per sample to TOPIC_SENSORS, so a hip app elsewhere
// can run with SENSOR_SOURCE=mqtt.
func RunSensorProducer(ctx context.Context, cfg *config.Config) error {
	if cfg.SensorSource == config.SourceMQTT {
		return fmt.Errorf("producer: SENSOR_SOURCE=mqtt would republish its own input")
	}
	side, err := jointangles.ParseSide(cfg.WhichLeg)
	if err != nil {
		return err
	}

	src, err := newSource(cfg, side, nil)
	if err != nil {
		return err
	}
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	log.Printf("producer: publishing %s samples to %s", cfg.SensorSource, cfg.TopicSensors)
	n, err := publishFrames(ctx, src, client, cfg.TopicSensors)
	log.Printf("producer: %d frames published", n)
	return err
}

// publishFrames forwards samples until ctx is done or the source ends.
func publishFrames(ctx context.Context, src orientation.Source, client mqtt.Client, topic string) (int, error) {
	n := 0
	for {
		s, err := src.Next(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return n, nil
		case errors.Is(err, io.EOF), errors.Is(err, orientation.ErrSourceClosed):
			return n, nil
		default:
			log.Printf("producer: sample error: %v", err)
			continue
		}

		payload, err := orientation.EncodeFrame(s)
		if err != nil {
			log.Printf("json marshal error (frame): %v", err)
			continue
		}
		if token := client.Publish(topic, 0, false, payload); token.Wait() && token.Error() != nil {
			log.Printf("MQTT publish error (%s): %v", topic, token.Error())
			continue
		}
		n++

		if n%producerLogEvery == 0 {
			p, t := s.Pelvis.EulerZYX(), s.Thigh.EulerZYX()
			log.Debugf("producer: %d frames | pelvis %s | thigh %s", n, p, t)
		}
	}
}
