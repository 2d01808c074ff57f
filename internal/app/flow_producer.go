package app

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/optical_flow/internal/config"
	"github.com/relabs-tech/optical_flow/internal/flow"
	"github.com/relabs-tech/optical_flow/internal/sensors"
)

// flowProducer reads one sample per step and publishes it as JSON.
type flowProducer struct {
	src      flow.Source
	topic    string
	publish  func(topic string, retained bool, payload []byte) error
	odo      flow.Odometer
	logEvery int
	steps    int
}

func (p *flowProducer) step() (flow.Sample, error) {
	s, err := p.src.Next()
	if err != nil {
		return flow.Sample{}, fmt.Errorf("read sample: %w", err)
	}
	p.odo.Add(s)

	payload, err := json.Marshal(s)
	if err != nil {
		return s, fmt.Errorf("json marshal error (motion): %w", err)
	}
	if err := p.publish(p.topic, false, payload); err != nil {
		return s, fmt.Errorf("MQTT publish error (motion): %w", err)
	}

	p.steps++
	if p.logEvery > 0 && p.steps%p.logEvery == 0 {
		x, y, path, n := p.odo.Totals()
		log.Debugf("flow: %d samples, total x=%d y=%d path=%.1f, last squal=%d", n, x, y, path, s.Squal)
	}
	return s, nil
}

func mqttPublisher(client mqtt.Client, qos byte) func(string, bool, []byte) error {
	return func(topic string, retained bool, payload []byte) error {
		token := client.Publish(topic, qos, retained, payload)
		token.Wait()
		return token.Error()
	}
}

// sensorStatus describes the manager for the retained status topic.
func sensorStatus(mgr *sensors.FlowManager) Status {
	st := Status{
		Sensor:     mgr.Name(),
		State:      mgr.State().String(),
		SPISpeedHz: mgr.GetSPISpeed(),
		Time:       time.Now(),
	}
	if err := mgr.LastError(); err != nil {
		st.Error = err.Error()
	}
	if prod, rev, err := mgr.Identity(); err == nil {
		st.ProductID = fmt.Sprintf("0x%02X", prod)
		st.RevisionID = fmt.Sprintf("0x%02X", rev)
	}
	return st
}

func publishStatus(publish func(string, bool, []byte) error, topic string, st Status) {
	payload, err := json.Marshal(st)
	if err != nil {
		log.Printf("json marshal error (status): %v", err)
		return
	}
	if err := publish(topic, true, payload); err != nil {
		log.Printf("MQTT publish error (status): %v", err)
	}
}

// RunFlowProducer initializes the sensor (or the mock source) and publishes
// motion samples until interrupted.
func RunFlowProducer() error {
	log.Println("starting optical-flow producer")

	cfg := config.Get()

	var (
		src    flow.Source
		mgr    *sensors.FlowManager
		status Status
	)
	if cfg.Producer.Mock {
		log.Println("using mock flow source")
		src = flow.NewMockSource()
		status = Status{Sensor: "mock", State: "ready", Mock: true, Time: time.Now()}
	} else {
		mgr = sensors.GetFlowManager()
		if err := mgr.Init(); err != nil {
			return fmt.Errorf("failed to initialize flow sensor: %w", err)
		}
		defer func() {
			if err := mgr.Close(); err != nil {
				log.Printf("flow sensor close: %v", err)
			}
		}()
		src = mgr
		status = sensorStatus(mgr)
	}

	client, err := connectMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientIDProducer, cfg.Topics.Status,
		&Status{Sensor: status.Sensor, State: "offline", Mock: status.Mock})
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	publish := mqttPublisher(client, 0)
	publishStatus(publish, cfg.Topics.Status, status)

	var edges <-chan struct{}
	if mgr != nil && cfg.Sensor.MotionLine >= 0 {
		pin, err := sensors.OpenMotionPin(cfg.Sensor.MotionChip, cfg.Sensor.MotionLine)
		if err != nil {
			log.Warnf("motion pin unavailable, polling only: %v", err)
		} else {
			defer pin.Close()
			edges = pin.Events()
			log.Printf("reading on MOTION edges from %s:%d", cfg.Sensor.MotionChip, cfg.Sensor.MotionLine)
		}
	}

	p := &flowProducer{
		src:      src,
		topic:    cfg.Topics.Motion,
		publish:  publish,
		logEvery: cfg.Producer.LogEvery,
	}

	interval := time.Duration(cfg.Producer.SampleIntervalMS) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	log.Printf("publishing to %s every %s", cfg.Topics.Motion, interval)
	for {
		select {
		case <-ticker.C:
		case <-edges:
		case <-sigCh:
			log.Println("producer: shutting down")
			status.State = "stopped"
			status.Time = time.Now()
			publishStatus(publish, cfg.Topics.Status, status)
			return nil
		}
		if _, err := p.step(); err != nil {
			log.Printf("%v", err)
		}
	}
}
