package app

import (
	"fmt"
	"image"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/optical_flow/internal/config"
)

const (
	oledW    = 128
	oledH    = 64
	lineStep = 13
)

// renderLines draws up to four text lines on a blank 128x64 frame.
func renderLines(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, oledW, oledH))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, l := range lines {
		if i >= oledH/lineStep {
			break
		}
		drawer.Dot = fixed.P(0, lineStep*(i+1))
		drawer.DrawString(l)
	}
	return img
}

// flowLines formats the current state for the OLED.
func flowLines(state *flowState) []string {
	s, ok := state.sample()
	if !ok {
		lines := []string{"Optical flow", "Waiting..."}
		if st, ok := state.getStatus(); ok {
			lines = append(lines, "state: "+st.State)
		}
		return lines
	}
	x, y, path, _ := state.odo.Totals()
	return []string{
		fmt.Sprintf("dX:%5d dY:%5d", s.DX, s.DY),
		fmt.Sprintf("Q:%3d %6.1fdeg", s.Squal, s.Angle()),
		fmt.Sprintf("X:%8d", x),
		fmt.Sprintf("Y:%8d P:%.0f", y, path),
	}
}

func showSplash(dev *ssd1306.Dev) error {
	img := renderLines([]string{"", "  PMW3901", "  Optical Flow"})
	return dev.Draw(dev.Bounds(), img, image.Point{})
}

// RunDisplay mirrors the motion topic on an SSD1306 OLED.
func RunDisplay() error {
	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.Display.I2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, cfg.Display.I2CAddr, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized at 0x%02X", cfg.Display.I2CAddr)

	if err := showSplash(dev); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	state := &flowState{}

	client, err := connectMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientIDDisplay, "", nil)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribeFlow(client, cfg.Topics.Motion, cfg.Topics.Status, state); err != nil {
		return fmt.Errorf("failed to subscribe for display: %w", err)
	}

	ticker := time.NewTicker(time.Duration(cfg.Display.UpdateIntervalMS) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")
	for range ticker.C {
		img := renderLines(flowLines(state))
		if err := dev.Draw(dev.Bounds(), img, image.Point{}); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}
	return nil
}
