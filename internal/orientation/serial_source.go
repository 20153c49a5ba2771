// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/hip_feedback/internal/rotation"
)

// TypeQTN is the sentence type of a sensor hub quaternion report.
const TypeQTN = "QTN"

// QTN is one node's orientation as reported by the serial sensor hub:
//
//	$HPQTN,<role>,<w>,<x>,<y>,<z>*<checksum>
type QTN struct {
	nmea.BaseSentence
	Role       string
	W, X, Y, Z float64
}

func newQTN(s nmea.BaseSentence) (nmea.Sentence, error) {
	p := nmea.NewParser(s)
	m := QTN{
		BaseSentence: s,
		Role:         p.String(0, "role"),
		W:            p.Float64(1, "w"),
		X:            p.Float64(2, "x"),
		Y:            p.Float64(3, "y"),
		Z:            p.Float64(4, "z"),
	}
	return m, p.Err()
}

var hubParser = nmea.SentenceParser{
	CustomParsers: map[string]nmea.ParserFunc{
		TypeQTN: newQTN,
	},
}

// ParseHubLine parses one line from the sensor hub. Sentences other than
// QTN are reported with ok == false and no error.
func ParseHubLine(line string) (q QTN, ok bool, err error) {
	sentence, err := hubParser.Parse(line)
	if err != nil {
		return QTN{}, false, err
	}
	if sentence.DataType() != TypeQTN {
		return QTN{}, false, nil
	}
	return sentence.(QTN), true, nil
}

// sampleAssembler pairs per-role reports into samples. A sample is complete
// once both roles have reported since the last one.
type sampleAssembler struct {
	pelvis, thigh         rotation.Rotation
	havePelvis, haveThigh bool

	// Roles the hub has ever reported.
	seenPelvis, seenThigh atomic.Bool
}

func (a *sampleAssembler) add(q QTN) (Sample, bool, error) {
	r, err := rotation.FromQuaternion(q.W, q.X, q.Y, q.Z)
	if err != nil {
		return Sample{}, false, fmt.Errorf("sensor hub %s: %w", q.Role, err)
	}

	switch strings.ToLower(q.Role) {
	case RolePelvis:
		a.pelvis, a.havePelvis = r, true
		a.seenPelvis.Store(true)
	case RoleThigh:
		a.thigh, a.haveThigh = r, true
		a.seenThigh.Store(true)
	default:
		return Sample{}, false, fmt.Errorf("sensor hub: unknown role %q", q.Role)
	}

	if !a.havePelvis || !a.haveThigh {
		return Sample{}, false, nil
	}
	a.havePelvis, a.haveThigh = false, false
	return Sample{Pelvis: a.pelvis, Thigh: a.thigh, Time: time.Now()}, true, nil
}

type serialSource struct {
	port  io.Closer
	lines chan string
	done  chan struct{}
	err   error
	asm   sampleAssembler
}

// NewSerialSource opens the sensor hub serial port.
func NewSerialSource(portName string, baudRate uint) (Source, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              baudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("sensor hub: open %s: %w", portName, err)
	}
	log.Printf("sensor hub: serial port opened on %s at %d baud", portName, baudRate)

	return newSerialSource(port, port), nil
}

func newSerialSource(r io.Reader, c io.Closer) *serialSource {
	s := &serialSource{
		port:  c,
		lines: make(chan string, 16),
		done:  make(chan struct{}),
	}
	go s.readLoop(r)
	return s
}

// readLoop feeds lines to Next. The read error is published before lines is
// closed, so Next sees it once the channel drains.
func (s *serialSource) readLoop(r io.Reader) {
	defer close(s.lines)

	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			select {
			case s.lines <- line:
			case <-s.done:
				return
			}
		}
		if err != nil {
			s.err = err
			return
		}
	}
}

func (s *serialSource) Next(ctx context.Context) (Sample, error) {
	for {
		select {
		case <-ctx.Done():
			return Sample{}, ctx.Err()
		case line, open := <-s.lines:
			if !open {
				if s.err == nil {
					return Sample{}, ErrSourceClosed
				}
				return Sample{}, fmt.Errorf("%w: %w", ErrSourceClosed, s.err)
			}
			if !strings.HasPrefix(line, "$") {
				continue
			}

			q, ok, err := ParseHubLine(line)
			if err != nil {
				// noisy hub or partial sentence
				log.Debugf("sensor hub: parse error: %v (line: %q)", err, line)
				continue
			}
			if !ok {
				continue
			}

			sample, complete, err := s.asm.add(q)
			if err != nil {
				log.Printf("%v", err)
				continue
			}
			if complete {
				return sample, nil
			}
		}
	}
}

// ConnectedSensors counts the roles the hub has reported so far.
func (s *serialSource) ConnectedSensors() int {
	return countSeen(s.asm.seenPelvis.Load(), s.asm.seenThigh.Load())
}

func (s *serialSource) Close() error {
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	if s.port == nil {
		return nil
	}
	return s.port.Close()
}
