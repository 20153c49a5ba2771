// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package feedback compares the hip angle against configured thresholds and
// switches the haptic feedback nodes.
package feedback

import (
	"fmt"
	"time"
)

// Node identifies a haptic feedback node.
type Node int

const (
	NodeMin Node = iota // buzzes when the angle is below the minimum threshold
	NodeMax             // buzzes when the angle is above the maximum threshold
)

func (n Node) String() string {
	switch n {
	case NodeMin:
		return "feedback_min"
	case NodeMax:
		return "feedback_max"
	}
	return fmt.Sprintf("feedback_%d", int(n))
}

// State is the on/off state of a feedback node as reported in records.
type State int

const (
	Off State = 0
	On  State = 1
)

// Actuator drives feedback nodes. On starts a pulse of the given duration.
type Actuator interface {
	On(node Node, duration time.Duration) error
	Off(node Node) error
}

// NodeCounter is implemented by actuators that can tell how many feedback
// nodes they can reach.
type NodeCounter interface {
	ConnectedNodes() int
}

// Controller is the threshold comparator.
type Controller struct {
	MinThreshold float64
	MaxThreshold float64
	PulseLength  time.Duration
	Enabled      bool
	Actuator     Actuator
}

// Result is the outcome of one comparison.
type Result struct {
	Min State
	Max State
}

// Compare returns the node states for angle without touching the actuators.
func (c *Controller) Compare(angle float64) Result {
	if !c.Enabled {
		return Result{Min: Off, Max: Off}
	}
	var r Result
	if angle < c.MinThreshold {
		r.Min = On
	}
	if angle > c.MaxThreshold {
		r.Max = On
	}
	return r
}

// Give compares angle against the thresholds and switches the nodes. When
// neither threshold is crossed both nodes are switched off. Actuator errors
// are returned after every node has been attempted.
func (c *Controller) Give(angle float64) (Result, error) {
	r := c.Compare(angle)
	if !c.Enabled || c.Actuator == nil {
		return r, nil
	}

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	keep(c.toggle(NodeMin, r.Min))
	keep(c.toggle(NodeMax, r.Max))

	// Both states can only match when both are off.
	if r.Min == r.Max {
		keep(c.AllOff())
	}
	return r, firstErr
}

// AllOff switches every node off.
func (c *Controller) AllOff() error {
	if c.Actuator == nil {
		return nil
	}
	errMin := c.Actuator.Off(NodeMin)
	errMax := c.Actuator.Off(NodeMax)
	if errMin != nil {
		return errMin
	}
	return errMax
}

func (c *Controller) toggle(node Node, s State) error {
	if s == On {
		if err := c.Actuator.On(node, c.PulseLength); err != nil {
			return fmt.Errorf("feedback: %s on: %w", node, err)
		}
		return nil
	}
	if err := c.Actuator.Off(node); err != nil {
		return fmt.Errorf("feedback: %s off: %w", node, err)
	}
	return nil
}
