package orientation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// mqttBacklog is how many decoded samples may wait for the host loop before
// new ones are dropped.
const mqttBacklog = 64

type mqttSource struct {
	client  mqtt.Client
	topic   string
	samples chan Sample

	// Roles seen in any frame, complete or not.
	seenPelvis atomic.Bool
	seenThigh  atomic.Bool
}

// NewMQTTSource subscribes to a topic carrying one Frame per cycle.
func NewMQTTSource(client mqtt.Client, topic string) (Source, error) {
	s := &mqttSource{
		client:  client,
		topic:   topic,
		samples: make(chan Sample, mqttBacklog),
	}

	token := client.Subscribe(topic, 0, s.onMessage)
	token.Wait()
	if token.Error() != nil {
		return nil, fmt.Errorf("sensor source: subscribe %s: %w", topic, token.Error())
	}
	log.Printf("sensor source: subscribed to %s", topic)

	return s, nil
}

func (s *mqttSource) onMessage(_ mqtt.Client, msg mqtt.Message) {
	var f Frame
	if err := json.Unmarshal(msg.Payload(), &f); err != nil {
		log.Printf("sensor source: %s: frame: unmarshal: %v", msg.Topic(), err)
		return
	}
	if f.Pelvis != nil {
		s.seenPelvis.Store(true)
	}
	if f.Thigh != nil {
		s.seenThigh.Store(true)
	}

	sample, err := f.Sample()
	if err != nil {
		log.Printf("sensor source: %s: %v", msg.Topic(), err)
		return
	}
	sample.Time = time.Now()

	select {
	case s.samples <- sample:
	default:
		log.Warnf("sensor source: backlog full, dropping sample from %s", msg.Topic())
	}
}

// ConnectedSensors counts the roles that have reported so far.
func (s *mqttSource) ConnectedSensors() int {
	return countSeen(s.seenPelvis.Load(), s.seenThigh.Load())
}

func (s *mqttSource) Next(ctx context.Context) (Sample, error) {
	select {
	case <-ctx.Done():
		return Sample{}, ctx.Err()
	case sample := <-s.samples:
		return sample, nil
	}
}

func (s *mqttSource) Close() error {
	if s.client == nil {
		return nil
	}
	token := s.client.Unsubscribe(s.topic)
	token.Wait()
	return token.Error()
}
