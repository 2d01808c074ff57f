package app

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/optical_flow/internal/config"
)

// newWebRouter serves the latest sample, status and odometer from state.
func newWebRouter(state *flowState, staticDir string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/api/motion", func(c *gin.Context) {
		s, ok := state.sample()
		if !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"err": "no data yet"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"sample":    s,
			"magnitude": s.Magnitude(),
			"angle_deg": s.Angle(),
		})
	})

	router.GET("/api/status", func(c *gin.Context) {
		st, ok := state.getStatus()
		if !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"err": "no status yet"})
			return
		}
		c.JSON(http.StatusOK, st)
	})

	router.GET("/api/odometer", func(c *gin.Context) {
		x, y, path, n := state.odo.Totals()
		c.JSON(http.StatusOK, gin.H{"x": x, "y": y, "path": path, "samples": n})
	})

	router.DELETE("/api/odometer", func(c *gin.Context) {
		state.odo.Reset()
		c.JSON(http.StatusOK, gin.H{"err": nil, "msg": "odometer reset"})
	})

	if staticDir != "" {
		router.NoRoute(gin.WrapH(http.FileServer(http.Dir(staticDir))))
	}
	return router
}

// RunWeb subscribes to the flow topics and serves them over HTTP.
func RunWeb() error {
	cfg := config.Get()
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	state := &flowState{}

	client, err := connectMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientIDWeb, "", nil)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribeFlow(client, cfg.Topics.Motion, cfg.Topics.Status, state); err != nil {
		return err
	}

	router := newWebRouter(state, cfg.Web.StaticDir)
	addr := fmt.Sprintf(":%d", cfg.Web.Port)
	log.Printf("web server listening on %s", addr)
	return router.Run(addr)
}
