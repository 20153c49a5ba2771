package feedback

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// GPIOActuator drives vibration motors wired to GPIO pins, one per node.
// A pulse is ended by a timer; a new On restarts it.
type GPIOActuator struct {
	mu     sync.Mutex
	pins   map[Node]gpio.PinOut
	timers map[Node]*time.Timer
	pulse  map[Node]uint64
}

// NewGPIOActuator resolves the pin names through the periph registry. Pins
// that cannot be resolved or driven are logged and left out; ConnectedNodes
// reports how many are usable.
func NewGPIOActuator(minPin, maxPin string) (*GPIOActuator, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	pins := map[Node]gpio.PinOut{}
	for _, n := range []struct {
		node Node
		name string
	}{{NodeMin, minPin}, {NodeMax, maxPin}} {
		p := gpioreg.ByName(n.name)
		if p == nil {
			log.Errorf("feedback: %s pin %q not found", n.node, n.name)
			continue
		}
		if err := p.Out(gpio.Low); err != nil {
			log.Errorf("feedback: %s pin %q: %v", n.node, n.name, err)
			continue
		}
		pins[n.node] = p
	}
	log.Printf("feedback: GPIO actuator on %s (min) and %s (max), %d connected", minPin, maxPin, len(pins))

	return newGPIOActuator(pins), nil
}

func newGPIOActuator(pins map[Node]gpio.PinOut) *GPIOActuator {
	return &GPIOActuator{pins: pins, timers: map[Node]*time.Timer{}, pulse: map[Node]uint64{}}
}

func (a *GPIOActuator) ConnectedNodes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pins)
}

func (a *GPIOActuator) On(node Node, duration time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.pins[node]
	if !ok {
		return fmt.Errorf("no pin for %s", node)
	}
	if t := a.timers[node]; t != nil {
		t.Stop()
	}
	if err := p.Out(gpio.High); err != nil {
		return err
	}
	a.pulse[node]++
	if duration > 0 {
		id := a.pulse[node]
		a.timers[node] = time.AfterFunc(duration, func() { a.endPulse(node, id) })
	}
	return nil
}

// endPulse switches node off unless a newer pulse has started since id.
func (a *GPIOActuator) endPulse(node Node, id uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pulse[node] != id {
		return
	}
	delete(a.timers, node)
	if err := a.pins[node].Out(gpio.Low); err != nil {
		log.Printf("feedback: %s pulse end: %v", node, err)
	}
}

func (a *GPIOActuator) Off(node Node) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.pins[node]
	if !ok {
		return fmt.Errorf("no pin for %s", node)
	}
	if t := a.timers[node]; t != nil {
		t.Stop()
		delete(a.timers, node)
	}
	a.pulse[node]++
	return p.Out(gpio.Low)
}

// Command is the JSON payload published by MQTTActuator.
type Command struct {
	Node       string `json:"node"`
	State      State  `json:"state"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// MQTTActuator publishes feedback commands to <prefix>/<node> for remote
// haptic nodes.
type MQTTActuator struct {
	client mqtt.Client
	prefix string
}

func NewMQTTActuator(client mqtt.Client, topicPrefix string) *MQTTActuator {
	return &MQTTActuator{client: client, prefix: topicPrefix}
}

// ConnectedNodes is 2 while the broker connection is up; the remote nodes
// are only reachable through it.
func (a *MQTTActuator) ConnectedNodes() int {
	if a.client == nil || !a.client.IsConnected() {
		return 0
	}
	return 2
}

func (a *MQTTActuator) On(node Node, duration time.Duration) error {
	return a.publish(Command{Node: node.String(), State: On, DurationMS: duration.Milliseconds()})
}

func (a *MQTTActuator) Off(node Node) error {
	return a.publish(Command{Node: node.String(), State: Off})
}

func (a *MQTTActuator) publish(cmd Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	topic := a.prefix + "/" + cmd.Node
	token := a.client.Publish(topic, 0, false, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("MQTT publish error (%s): %w", topic, token.Error())
	}
	return nil
}

// LogActuator only logs transitions. It stands in when no haptic hardware is
// attached.
type LogActuator struct {
	mu    sync.Mutex
	state map[Node]State
}

func NewLogActuator() *LogActuator {
	return &LogActuator{state: map[Node]State{}}
}

func (a *LogActuator) ConnectedNodes() int {
	return 2
}

func (a *LogActuator) On(node Node, duration time.Duration) error {
	a.set(node, On, duration)
	return nil
}

func (a *LogActuator) Off(node Node) error {
	a.set(node, Off, 0)
	return nil
}

func (a *LogActuator) set(node Node, s State, d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state[node] == s {
		return
	}
	a.state[node] = s
	if s == On {
		log.Printf("feedback: %s ON (%s pulse)", node, d)
	} else {
		log.Printf("feedback: %s OFF", node)
	}
}
