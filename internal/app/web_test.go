package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/optical_flow/internal/flow"
)

func init() { gin.SetMode(gin.TestMode) }

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestWeb_NoDataYet(t *testing.T) {
	r := newWebRouter(&flowState{}, "")
	require.Equal(t, http.StatusServiceUnavailable, serve(t, r, "GET", "/api/motion").Code)
	require.Equal(t, http.StatusServiceUnavailable, serve(t, r, "GET", "/api/status").Code)
}

func TestWeb_MotionStatusOdometer(t *testing.T) {
	state := &flowState{}
	state.setSample(flow.Sample{Source: "pmw3901", Seq: 1, DX: 3, DY: 4, Motion: true})
	state.setSample(flow.Sample{Source: "pmw3901", Seq: 2, DX: 0, DY: -4, Motion: true})
	state.setStatus(Status{Sensor: "pmw3901", State: "ready", ProductID: "0x49"})
	r := newWebRouter(state, "")

	w := serve(t, r, "GET", "/api/motion")
	require.Equal(t, http.StatusOK, w.Code)
	var motion struct {
		Sample    flow.Sample `json:"sample"`
		Magnitude float64     `json:"magnitude"`
		Angle     float64     `json:"angle_deg"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &motion))
	require.EqualValues(t, 2, motion.Sample.Seq)
	require.InDelta(t, 4.0, motion.Magnitude, 1e-9)
	require.InDelta(t, -90.0, motion.Angle, 1e-9)

	w = serve(t, r, "GET", "/api/status")
	require.Equal(t, http.StatusOK, w.Code)
	var st Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.Equal(t, "ready", st.State)
	require.Equal(t, "0x49", st.ProductID)

	w = serve(t, r, "GET", "/api/odometer")
	require.Equal(t, http.StatusOK, w.Code)
	var odo struct {
		X, Y    int64
		Path    float64
		Samples uint64
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &odo))
	require.EqualValues(t, 3, odo.X)
	require.EqualValues(t, 0, odo.Y)
	require.InDelta(t, 9.0, odo.Path, 1e-9)
	require.EqualValues(t, 2, odo.Samples)

	require.Equal(t, http.StatusOK, serve(t, r, "DELETE", "/api/odometer").Code)
	_, _, _, n := state.odo.Totals()
	require.Zero(t, n)
}
