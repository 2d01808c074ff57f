// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/optical_flow/internal/config"
	"github.com/relabs-tech/optical_flow/internal/sensors"
)

const debugDevice = "pmw3901"

// Response types
type RegisterResponse struct {
	Type        string                 `json:"type"` // "register_data", "register_map", "status", "delta", "error"
	Device      string                 `json:"device,omitempty"`
	Address     string                 `json:"addr,omitempty"`
	Value       string                 `json:"value,omitempty"`
	Registers   map[string]string      `json:"registers,omitempty"` // for bulk read
	Delta       map[string]int16       `json:"delta,omitempty"`
	Timestamp   string                 `json:"timestamp,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Status      string                 `json:"status,omitempty"`
	SPISpeed    int64                  `json:"spi_speed,omitempty"`
	RegisterMap []sensors.RegisterInfo `json:"register_map,omitempty"`
}

// RegisterConfigFile represents the JSON structure for exported register configuration
type RegisterConfigFile struct {
	Version   int               `json:"version"`
	Device    string            `json:"device"`
	Timestamp string            `json:"timestamp"`
	Registers map[string]string `json:"registers"` // hex address -> hex value
}

type addrRange struct{ lo, hi byte }

// RegisterDebugger serves the register debugging websocket for one sensor.
type RegisterDebugger struct {
	mgr      *sensors.FlowManager
	writable []addrRange
	minHz    int64
	maxHz    int64
	upgrader websocket.Upgrader
}

// NewRegisterDebugger validates the write ranges in cfg.
func NewRegisterDebugger(mgr *sensors.FlowManager, cfg config.RegisterDebugConfig) (*RegisterDebugger, error) {
	ranges, err := parseWriteRanges(cfg.AllowedWriteRanges)
	if err != nil {
		return nil, fmt.Errorf("register_debug.allowed_write_ranges: %w", err)
	}
	return &RegisterDebugger{
		mgr:      mgr,
		writable: ranges,
		minHz:    cfg.MinSPISpeedHz,
		maxHz:    cfg.MaxSPISpeedHz,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}, nil
}

// Routes registers the websocket and REST endpoints.
func (d *RegisterDebugger) Routes(r gin.IRoutes) {
	r.GET("/ws", func(c *gin.Context) { d.HandleWS(c.Writer, c.Request) })
	r.GET("/api/flow", d.handleFlow)
}

// RegisterDebugSession holds WebSocket connection state for register debugging
type RegisterDebugSession struct {
	Conn *websocket.Conn
	d    *RegisterDebugger
}

// HandleWS handles the WebSocket connection for register debugging
func (d *RegisterDebugger) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("register_debug: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	session := &RegisterDebugSession{Conn: conn, d: d}

	// Send register map on connection
	if err := session.sendRegisterMap(); err != nil {
		log.Printf("register_debug: error sending register map: %v", err)
		return
	}

	// Message loop
	for {
		var rawMsg map[string]interface{}
		err := conn.ReadJSON(&rawMsg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("register_debug: websocket error: %v", err)
			}
			break
		}

		action, ok := rawMsg["action"].(string)
		if !ok {
			session.sendError("missing or invalid action field")
			continue
		}

		switch action {
		case "get_map":
			session.sendRegisterMap()
		case "read":
			session.handleRead(rawMsg)
		case "read_all":
			session.handleReadAll()
		case "write":
			session.handleWrite(rawMsg)
		case "init":
			session.handleInit()
		case "set_spi_speed":
			session.handleSetSPISpeed(rawMsg)
		case "export_config":
			session.handleExportConfig()
		case "self_test":
			session.handleSelfTest()
		case "delta":
			session.handleDelta()
		default:
			session.sendError(fmt.Sprintf("unknown action: %s", action))
		}
	}
}

func (s *RegisterDebugSession) handleRead(rawMsg map[string]interface{}) {
	addr, _ := rawMsg["addr"].(string)
	if addr == "" {
		s.sendError("missing addr field")
		return
	}

	addrByte, err := parseByte(addr)
	if err != nil {
		s.sendError(fmt.Sprintf("invalid address format: %s", addr))
		return
	}

	value, err := s.d.mgr.ReadRegister(addrByte)
	if err != nil {
		s.sendError(fmt.Sprintf("read error: %v", err))
		return
	}

	s.Conn.WriteJSON(RegisterResponse{
		Type:      "register_data",
		Device:    debugDevice,
		Address:   fmt.Sprintf("0x%02X", addrByte),
		Value:     fmt.Sprintf("0x%02X", value),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (s *RegisterDebugSession) handleReadAll() {
	registers, err := s.d.mgr.ReadAllRegisters()
	if err != nil {
		s.sendError(fmt.Sprintf("read all error: %v", err))
		return
	}

	s.Conn.WriteJSON(RegisterResponse{
		Type:      "register_data",
		Device:    debugDevice,
		Registers: hexMap(registers),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (s *RegisterDebugSession) handleWrite(rawMsg map[string]interface{}) {
	addr, _ := rawMsg["addr"].(string)
	valueStr, _ := rawMsg["value"].(string)
	if addr == "" || valueStr == "" {
		s.sendError("missing addr or value field")
		return
	}

	addrByte, err := parseByte(addr)
	if err != nil {
		s.sendError(fmt.Sprintf("invalid address format: %s", addr))
		return
	}
	valueByte, err := parseByte(valueStr)
	if err != nil {
		s.sendError(fmt.Sprintf("invalid value format: %s", valueStr))
		return
	}

	if !isRegisterWritable(addrByte, s.d.writable) {
		s.sendError(fmt.Sprintf("register 0x%02X not in allowed write ranges", addrByte))
		return
	}
	if err := s.d.mgr.WriteRegister(addrByte, valueByte); err != nil {
		s.sendError(fmt.Sprintf("write error: %v", err))
		return
	}

	s.Conn.WriteJSON(RegisterResponse{
		Type:      "register_data",
		Device:    debugDevice,
		Address:   fmt.Sprintf("0x%02X", addrByte),
		Value:     fmt.Sprintf("0x%02X", valueByte),
		Timestamp: time.Now().Format(time.RFC3339),
		Message:   "write successful",
	})
}

func (s *RegisterDebugSession) handleInit() {
	if err := s.d.mgr.Reinitialize(); err != nil {
		s.sendError(fmt.Sprintf("reinit error: %v", err))
		return
	}
	s.Conn.WriteJSON(RegisterResponse{
		Type:     "status",
		Device:   debugDevice,
		Status:   s.d.mgr.State().String(),
		SPISpeed: s.d.mgr.GetSPISpeed(),
		Message:  "sensor reinitialized successfully",
	})
}

func (s *RegisterDebugSession) handleSetSPISpeed(rawMsg map[string]interface{}) {
	speed, ok := rawMsg["speed"].(float64)
	if !ok {
		s.sendError("missing speed field")
		return
	}

	// Clamp to the configured window
	hz := int64(speed)
	if hz < s.d.minHz {
		hz = s.d.minHz
	}
	if hz > s.d.maxHz {
		hz = s.d.maxHz
	}

	if err := s.d.mgr.SetSPISpeed(hz); err != nil {
		s.sendError(fmt.Sprintf("set spi speed error: %v", err))
		return
	}
	s.Conn.WriteJSON(RegisterResponse{
		Type:     "status",
		Device:   debugDevice,
		Status:   s.d.mgr.State().String(),
		SPISpeed: hz,
		Message:  "SPI speed updated",
	})
}

func (s *RegisterDebugSession) handleExportConfig() {
	registers, err := s.d.mgr.ExportRegisterConfig()
	if err != nil {
		s.sendError(fmt.Sprintf("export error: %v", err))
		return
	}

	configFile := RegisterConfigFile{
		Version:   1,
		Device:    debugDevice,
		Timestamp: time.Now().Format(time.RFC3339),
		Registers: hexMap(registers),
	}

	// Send as download
	configJSON, _ := json.Marshal(configFile)
	s.Conn.WriteJSON(map[string]interface{}{
		"type":     "export_config",
		"device":   debugDevice,
		"message":  "config exported",
		"config":   string(configJSON),
		"filename": fmt.Sprintf("%s_%s_registers.json", debugDevice, time.Now().Format("20060102_150405")),
	})
}

func (s *RegisterDebugSession) handleSelfTest() {
	if err := s.d.mgr.SelfTest(); err != nil {
		s.sendError(fmt.Sprintf("self-test failed: %v", err))
		return
	}
	s.Conn.WriteJSON(RegisterResponse{
		Type:    "status",
		Device:  debugDevice,
		Status:  "self_test_passed",
		Message: "product ID and inverse ID match",
	})
}

func (s *RegisterDebugSession) handleDelta() {
	dx, dy, err := s.d.mgr.ReadDelta()
	if err != nil {
		s.sendError(fmt.Sprintf("delta error: %v", err))
		return
	}
	s.Conn.WriteJSON(RegisterResponse{
		Type:      "delta",
		Device:    debugDevice,
		Delta:     map[string]int16{"x": dx, "y": dy},
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (s *RegisterDebugSession) sendRegisterMap() error {
	return s.Conn.WriteJSON(RegisterResponse{
		Type:        "register_map",
		Device:      debugDevice,
		RegisterMap: s.d.mgr.RegisterMap(),
	})
}

func (s *RegisterDebugSession) sendError(message string) {
	s.Conn.WriteJSON(RegisterResponse{
		Type:    "error",
		Message: message,
	})
}

// handleFlow serves one live sample via REST.
func (d *RegisterDebugger) handleFlow(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	sample, err := d.mgr.ReadSample()
	if errors.Is(err, sensors.ErrNotReady) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sample)
}

func hexMap(registers map[byte]byte) map[string]string {
	out := make(map[string]string, len(registers))
	for addr, value := range registers {
		out[fmt.Sprintf("0x%02X", addr)] = fmt.Sprintf("0x%02X", value)
	}
	return out
}

// parseByte parses a byte in Go literal syntax ("0x1B" or "27").
func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}

// parseWriteRanges parses "0x15,0x40-0x4F" into inclusive ranges.
func parseWriteRanges(list string) ([]addrRange, error) {
	var out []addrRange
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		a, err := parseByte(lo)
		if err != nil {
			return nil, fmt.Errorf("bad address %q", lo)
		}
		b := a
		if isRange {
			if b, err = parseByte(hi); err != nil {
				return nil, fmt.Errorf("bad address %q", hi)
			}
		}
		if a > b {
			return nil, fmt.Errorf("range %q is reversed", part)
		}
		out = append(out, addrRange{lo: a, hi: b})
	}
	return out, nil
}

// isRegisterWritable checks if a register address is in the allowed write
// ranges. No ranges means no writes.
func isRegisterWritable(addr byte, ranges []addrRange) bool {
	for _, r := range ranges {
		if addr >= r.lo && addr <= r.hi {
			return true
		}
	}
	return false
}

// RunRegisterDebug starts the register debugging web server.
func RunRegisterDebug() error {
	cfg := config.Get()
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	mgr := sensors.GetFlowManager()
	if err := mgr.Init(); err != nil {
		log.Warnf("register_debug: sensor not ready, use the init action to retry: %v", err)
	}
	defer mgr.Close()

	dbg, err := NewRegisterDebugger(mgr, cfg.RegisterDebug)
	if err != nil {
		return err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	dbg.Routes(router)
	if cfg.Web.StaticDir != "" {
		router.NoRoute(gin.WrapH(http.FileServer(http.Dir(cfg.Web.StaticDir))))
	}

	addr := fmt.Sprintf(":%d", cfg.RegisterDebug.Port)
	log.Printf("register debug server listening on %s", addr)
	return router.Run(addr)
}
