package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	serial "github.com/jacobsa/go-serial/serial"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/optical_flow/internal/config"
	"github.com/relabs-tech/optical_flow/internal/flow"
)

// mirrorSamples writes one diagnostic line per sample until samples closes.
func mirrorSamples(w io.Writer, samples <-chan flow.Sample) error {
	for s := range samples {
		if _, err := io.WriteString(w, FormatFlowLine(s)); err != nil {
			return fmt.Errorf("serial write: %w", err)
		}
	}
	return nil
}

// RunSerialConsole mirrors the motion topic onto a UART, one line per
// sample, for hosts that only have a serial terminal.
func RunSerialConsole() error {
	cfg := config.Get()

	serialOpts := serial.OpenOptions{
		PortName:              cfg.Serial.Port,
		BaudRate:              uint(cfg.Serial.BaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return fmt.Errorf("open serial %s: %w", serialOpts.PortName, err)
	}
	defer port.Close()
	log.Printf("serial port opened on %s at %d baud", serialOpts.PortName, serialOpts.BaudRate)

	client, err := connectMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientIDSerial, "", nil)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	samples := make(chan flow.Sample, 16)
	token := client.Subscribe(cfg.Topics.Motion, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s flow.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("serial: motion unmarshal error: %v", err)
			return
		}
		select {
		case samples <- s:
		default:
			log.Debug("serial: port behind, dropping sample")
		}
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("serial: subscribed to %s", cfg.Topics.Motion)

	errCh := make(chan error, 1)
	go func() { errCh <- mirrorSamples(port, samples) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Println("serial: shutting down")
		client.Unsubscribe(cfg.Topics.Motion).Wait()
		return nil
	case err := <-errCh:
		return err
	}
}
