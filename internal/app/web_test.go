package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAngleAPI(t *testing.T) {
	hip, _, _ := newTestApp()
	srv := httptest.NewServer(NewWebHandler(hip, NewHub()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/angle")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	_, err = hip.Process(rightLegSwing(0).sample)
	require.NoError(t, err)
	_, err = hip.Process(rightLegSwing(-12).sample)
	require.NoError(t, err)

	resp, err = http.Get(srv.URL + "/api/angle")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var rec AngleRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.InDelta(t, -12, rec.HipExt, 1e-6)
	assert.InDelta(t, 0.01, rec.Time, 1e-12)
}

func TestStatusAPI(t *testing.T) {
	hip, _, _ := newTestApp()
	srv := httptest.NewServer(NewWebHandler(hip, NewHub()))
	defer srv.Close()

	get := func() StatusResponse {
		resp, err := http.Get(srv.URL + "/api/status")
		require.NoError(t, err)
		defer resp.Body.Close()
		var st StatusResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
		return st
	}

	st := get()
	assert.Equal(t, "right", st.Leg)
	assert.Equal(t, "uncalibrated", st.State)
	assert.Nil(t, st.Calibration)

	_, err := hip.Process(rightLegSwing(0).sample)
	require.NoError(t, err)

	st = get()
	assert.Equal(t, "calibrated", st.State)
	assert.Equal(t, uint64(1), st.Generation)
	require.NotNil(t, st.Calibration)
	assert.InDelta(t, 90, st.Calibration.ThighYaw, 1e-9)
	assert.InDelta(t, 180, st.Calibration.OffsetAngle, 1e-9)
}

func TestRecalibrateAPI(t *testing.T) {
	hip, _, _ := newTestApp()
	srv := httptest.NewServer(NewWebHandler(hip, NewHub()))
	defer srv.Close()

	_, err := hip.Process(rightLegSwing(0).sample)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/recalibrate")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/recalibrate", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	rec, err := hip.Process(rightLegSwing(18).sample)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rec.CalibrationGeneration)
	assert.InDelta(t, 0, rec.HipExt, 1e-6)
}

func TestWebsocketStreamsRecordsAndAcceptsRecalibrate(t *testing.T) {
	hip, _, _ := newTestApp()
	hub := NewHub()
	hip.AddSink(hub)
	srv := httptest.NewServer(NewWebHandler(hip, hub))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	_, err = hip.Process(rightLegSwing(0).sample)
	require.NoError(t, err)
	_, err = hip.Process(rightLegSwing(22).sample)
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var rec AngleRecord
	require.NoError(t, conn.ReadJSON(&rec))
	assert.InDelta(t, 0, rec.HipExt, 1e-6)
	require.NoError(t, conn.ReadJSON(&rec))
	assert.InDelta(t, 22, rec.HipExt, 1e-6)

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "recalibrate"}))
	var ack WSResponse
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "ack", ack.Type)

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "dance"}))
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "error", ack.Type)

	rec, err = hip.Process(rightLegSwing(22).sample)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rec.CalibrationGeneration)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}
