package app

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/optical_flow/internal/config"
	"github.com/relabs-tech/optical_flow/internal/flow"
)

// RunConsoleMQTT prints every published sample in the diagnostic line format
// and every status change, until Ctrl+C.
func RunConsoleMQTT() error {
	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientIDConsole, "", nil)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	motionToken := client.Subscribe(cfg.Topics.Motion, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s flow.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("console: motion unmarshal error: %v", err)
			return
		}
		fmt.Print(FormatFlowLine(s))
	})
	motionToken.Wait()
	if motionToken.Error() != nil {
		return motionToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.Topics.Motion)

	statusToken := client.Subscribe(cfg.Topics.Status, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var st Status
		if err := json.Unmarshal(msg.Payload(), &st); err != nil {
			log.Printf("console: status unmarshal error: %v", err)
			return
		}
		fmt.Printf("[STATUS] sensor=%s state=%s id=%s rev=%s spi=%dHz mock=%t %s\n",
			st.Sensor, st.State, st.ProductID, st.RevisionID, st.SPISpeedHz, st.Mock, st.Error)
	})
	statusToken.Wait()
	if statusToken.Error() != nil {
		return statusToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.Topics.Status)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	return nil
}
