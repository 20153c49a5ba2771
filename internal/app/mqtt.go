package app

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// connectMQTT connects a client to broker and waits for the result.
func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect error (%s): %w", broker, token.Error())
	}
	log.Printf("connected to MQTT broker at %s as %s", broker, clientID)
	return client, nil
}

// recordPublisher publishes every record as JSON. Publishing does not wait
// for the broker so the sample loop keeps its pace.
type recordPublisher struct {
	client mqtt.Client
	topic  string
}

func newRecordPublisher(client mqtt.Client, topic string) *recordPublisher {
	return &recordPublisher{client: client, topic: topic}
}

func (p *recordPublisher) HandleRecord(r AngleRecord) {
	payload, err := json.Marshal(r)
	if err != nil {
		log.Printf("json marshal error (record): %v", err)
		return
	}
	token := p.client.Publish(p.topic, 0, false, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Printf("MQTT publish error (%s): %v", p.topic, token.Error())
		}
	}()
}
