package app

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/optical_flow/internal/flow"
)

// Status is the retained producer status published on the status topic.
type Status struct {
	Sensor     string    `json:"sensor"`
	State      string    `json:"state"` // sequencer state, "offline" or "stopped"
	ProductID  string    `json:"product_id,omitempty"`
	RevisionID string    `json:"revision_id,omitempty"`
	SPISpeedHz int64     `json:"spi_speed_hz,omitempty"`
	Mock       bool      `json:"mock"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

// flowState holds the latest sample and status seen on MQTT plus the
// accumulated odometry. Shared by the web server and the display.
type flowState struct {
	mu         sync.RWMutex
	last       flow.Sample
	haveSample bool
	status     Status
	haveStatus bool
	odo        flow.Odometer
}

func (s *flowState) setSample(sample flow.Sample) {
	s.mu.Lock()
	s.last = sample
	s.haveSample = true
	s.mu.Unlock()
	s.odo.Add(sample)
}

func (s *flowState) setStatus(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
	s.haveStatus = true
}

func (s *flowState) sample() (flow.Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.haveSample
}

func (s *flowState) getStatus() (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.haveStatus
}

// connectMQTT connects with the given client ID. A non-nil will is registered
// as a retained last-will message on willTopic.
func connectMQTT(broker, clientID, willTopic string, will *Status) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)
	if will != nil && willTopic != "" {
		payload, err := json.Marshal(will)
		if err != nil {
			return nil, err
		}
		opts.SetBinaryWill(willTopic, payload, 0, true)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect %s: %w", broker, token.Error())
	}
	log.Printf("connected to MQTT broker at %s as %s", broker, clientID)
	return client, nil
}

// subscribeFlow feeds samples and statuses from MQTT into state.
func subscribeFlow(client mqtt.Client, motionTopic, statusTopic string, state *flowState) error {
	token := client.Subscribe(motionTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s flow.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("motion unmarshal error: %v", err)
			return
		}
		state.setSample(s)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("subscribed to MQTT topic %s", motionTopic)

	if statusTopic == "" {
		return nil
	}
	token = client.Subscribe(statusTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var st Status
		if err := json.Unmarshal(msg.Payload(), &st); err != nil {
			log.Printf("status unmarshal error: %v", err)
			return
		}
		state.setStatus(st)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("subscribed to MQTT topic %s", statusTopic)
	return nil
}

// FormatFlowLine renders a sample as one diagnostic console line.
func FormatFlowLine(s flow.Sample) string {
	return fmt.Sprintf("X: %d , Y: %d , Magnitude: %f , Angle (deg.): %f\r\n",
		s.DX, s.DY, s.Magnitude(), s.Angle())
}
