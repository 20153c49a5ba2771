// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/hip_feedback/internal/feedback"
	"github.com/relabs-tech/hip_feedback/internal/jointangles"
	"github.com/relabs-tech/hip_feedback/internal/orientation"
)

// HipApp is the per-sample control flow: pull a pelvis/thigh sample,
// calibrate on the first one (or when asked to), compute the hip angle,
// drive the feedback nodes and hand the record to every sink.
type HipApp struct {
	source   orientation.Source
	joints   *jointangles.JointAngles
	feedback *feedback.Controller
	rateHz   float64
	sinks    []RecordSink

	iteration   uint64
	recalibrate atomic.Bool
	latest      atomic.Pointer[AngleRecord]
}

// NewHipApp wires a source, a joint-angle estimator and a feedback
// controller. rateHz is the sensor data rate used to time-stamp records.
func NewHipApp(src orientation.Source, joints *jointangles.JointAngles, ctrl *feedback.Controller, rateHz float64, sinks ...RecordSink) *HipApp {
	return &HipApp{
		source:   src,
		joints:   joints,
		feedback: ctrl,
		rateHz:   rateHz,
		sinks:    sinks,
	}
}

// AddSink registers another record sink. Call before Run.
func (a *HipApp) AddSink(s RecordSink) {
	a.sinks = append(a.sinks, s)
}

// Joints exposes the estimator, mainly for status reporting.
func (a *HipApp) Joints() *jointangles.JointAngles {
	return a.joints
}

// RequestRecalibration makes the next sample the new calibration pose.
// Safe to call from any goroutine.
func (a *HipApp) RequestRecalibration() {
	a.recalibrate.Store(true)
	log.Printf("hip app: recalibration requested, holding the next sample as the neutral pose")
}

// Latest returns the most recent record.
func (a *HipApp) Latest() (AngleRecord, bool) {
	r := a.latest.Load()
	if r == nil {
		return AngleRecord{}, false
	}
	return *r, true
}

// Step reads one sample from the source and processes it.
func (a *HipApp) Step(ctx context.Context) (AngleRecord, error) {
	s, err := a.source.Next(ctx)
	if err != nil {
		return AngleRecord{}, err
	}
	return a.Process(s)
}

// Process runs one sample through calibration, angle extraction and
// feedback. Feedback actuator errors are logged, not returned; the record
// still reports the intended node states.
func (a *HipApp) Process(s orientation.Sample) (AngleRecord, error) {
	// A request made before the first sample is satisfied by it.
	requested := a.recalibrate.Swap(false)
	if requested || a.joints.State() == jointangles.Uncalibrated {
		_, err := a.joints.Calibrate(s.Pelvis, s.Thigh)
		switch {
		case errors.Is(err, jointangles.ErrDegenerateCalibrationPose):
			log.Warnf("hip app: %v", err)
		case err != nil:
			return AngleRecord{}, err
		}
	}

	angle, err := a.joints.HipFlex(s.Pelvis, s.Thigh)
	if err != nil {
		return AngleRecord{}, err
	}

	res, err := a.feedback.Give(angle)
	if err != nil {
		log.Printf("hip app: %v", err)
	}

	var generation uint64
	if cal, err := a.joints.Calibration(); err == nil {
		generation = cal.Generation
	}

	rec := AngleRecord{
		Time:                  float64(a.iteration) / a.rateHz,
		MinThreshold:          a.feedback.MinThreshold,
		MaxThreshold:          a.feedback.MaxThreshold,
		MinFeedbackState:      res.Min,
		MaxFeedbackState:      res.Max,
		HipExt:                angle,
		CalibrationGeneration: generation,
	}
	a.iteration++
	a.latest.Store(&rec)

	for _, sink := range a.sinks {
		sink.HandleRecord(rec)
	}
	return rec, nil
}

// Run processes samples until ctx is done or the source ends. Failed reads
// are logged and skipped. Feedback nodes are switched off on return.
func (a *HipApp) Run(ctx context.Context) error {
	defer func() {
		if err := a.feedback.AllOff(); err != nil {
			log.Printf("hip app: switching feedback off: %v", err)
		}
	}()

	for {
		_, err := a.Step(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			log.Printf("hip app: stopping after %d samples", a.iteration)
			return nil
		case errors.Is(err, io.EOF), errors.Is(err, orientation.ErrSourceClosed):
			log.Printf("hip app: sensor source ended: %v", err)
			return nil
		default:
			log.Printf("hip app: sample error: %v", err)
		}
	}
}
