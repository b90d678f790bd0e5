package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/wabridge/internal/state"
	"github.com/relaydesk/wabridge/pkg/logging"
)

type fakeController struct {
	mu          sync.Mutex
	sentTo      string
	sentText    string
	sendErr     error
	pairedPhone string
	pairingCode string
	pairErr     error
	resets      int
}

func (c *fakeController) SendText(_ context.Context, toJID, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return "", c.sendErr
	}
	c.sentTo = toJID
	c.sentText = text
	return "MSG42", nil
}

func (c *fakeController) RequestPairingCode(_ context.Context, phone string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pairErr != nil {
		return "", c.pairErr
	}
	c.pairedPhone = phone
	return c.pairingCode, nil
}

func (c *fakeController) Reset(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
	return nil
}

type recordingRefresher struct {
	refreshed chan struct{}
}

func (r *recordingRefresher) RefreshSettings(context.Context) {
	select {
	case r.refreshed <- struct{}{}:
	default:
	}
}

type controlHarness struct {
	handler    *Handler
	runtime    *state.Runtime
	controller *fakeController
	refresher  *recordingRefresher
}

func newControlHarness() *controlHarness {
	h := &controlHarness{
		runtime:    state.NewRuntime("", ""),
		controller: &fakeController{pairingCode: "ABCD-1234"},
		refresher:  &recordingRefresher{refreshed: make(chan struct{}, 1)},
	}
	h.handler = NewHandler(h.runtime, h.controller, h.refresher, nil, nil, logging.New("error"))
	return h
}

func (h *controlHarness) get(target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr
}

func TestParseCommand(t *testing.T) {
	assert.Equal(t, CmdStatus, ParseCommand("status"))
	assert.Equal(t, CmdPairingCode, ParseCommand("get_pairing_code"))
	assert.Equal(t, CmdSend, ParseCommand("send"))
	assert.Equal(t, CmdTestMsg, ParseCommand("test_msg"))
	assert.Equal(t, CmdForceReset, ParseCommand("force_reset"))
	assert.Equal(t, CmdHome, ParseCommand("home"))
	assert.Equal(t, CmdHome, ParseCommand("something_else"))
	assert.Equal(t, CmdHome, ParseCommand(""))
}

func TestStatusAdoptsLinkageAndTriggersRefresh(t *testing.T) {
	h := newControlHarness()

	rr := h.get("/?action=status&admin_url=https://x.test/addon.php&key=ABC", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	adminURL, key := h.runtime.Linkage()
	assert.Equal(t, "https://x.test/addon.php", adminURL)
	assert.Equal(t, "ABC", key)

	select {
	case <-h.refresher.refreshed:
	case <-time.After(time.Second):
		t.Fatal("expected an AI settings refresh after linkage adoption")
	}

	var snap state.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.False(t, snap.Connected)
	assert.NotZero(t, snap.PID)
}

func TestStatusInfersAdminURLFromReferrer(t *testing.T) {
	h := newControlHarness()

	rr := h.get("/?action=status", map[string]string{
		"Referer": "https://billing.example.com/addon.php?module=wabridge&page=1",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	adminURL, _ := h.runtime.Linkage()
	assert.Equal(t, "https://billing.example.com/addon.php", adminURL)
}

func TestStatusKeepsExistingLinkageWithoutParameters(t *testing.T) {
	h := newControlHarness()
	h.runtime.AdoptLinkage("https://billing.example.com/addon.php", "KEY1")

	rr := h.get("/?action=status", map[string]string{
		"Referer": "https://other.example.com/addon.php",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	adminURL, key := h.runtime.Linkage()
	assert.Equal(t, "https://billing.example.com/addon.php", adminURL, "referrer must not override an existing linkage")
	assert.Equal(t, "KEY1", key)
}

func TestGetPairingCodeRequiresPhone(t *testing.T) {
	h := newControlHarness()

	rr := h.get("/?action=get_pairing_code", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "phone")
}

func TestGetPairingCodeNormalizesPhone(t *testing.T) {
	h := newControlHarness()

	rr := h.get("/?action=get_pairing_code&phone=%2B1+(555)+123-4567", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, "15551234567", h.controller.pairedPhone, "non-digits must be stripped")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ABCD-1234", body["pairing_code"])

	snap := h.runtime.Snapshot()
	assert.Equal(t, "ABCD-1234", snap.PairingCode)
}

func TestSendRequiresConnectivity(t *testing.T) {
	h := newControlHarness()

	rr := h.get("/?action=send&to=15551234567&msg=hi", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "not connected")
}

func TestSendRequiresTarget(t *testing.T) {
	h := newControlHarness()
	h.runtime.MarkConnected("15550001111")

	rr := h.get("/?action=send&msg=hi", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSendDeliversAndReturnsMessageID(t *testing.T) {
	h := newControlHarness()
	h.runtime.MarkConnected("15550001111")

	rr := h.get("/?action=send&to=%2B1-555-123-4567&msg=hello", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "MSG42", body["message_id"])
	assert.Equal(t, "15551234567", body["to"])
	assert.Equal(t, "15551234567@s.whatsapp.net", h.controller.sentTo)
	assert.Equal(t, "hello", h.controller.sentText)
}

func TestTestMsgFallsBackToOwnNumber(t *testing.T) {
	h := newControlHarness()
	h.runtime.MarkConnected("15550001111")

	rr := h.get("/?action=test_msg", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "15550001111@s.whatsapp.net", h.controller.sentTo)
	assert.NotEmpty(t, h.controller.sentText)
}

func TestSendFailureIsServerError(t *testing.T) {
	h := newControlHarness()
	h.runtime.MarkConnected("15550001111")
	h.controller.sendErr = assert.AnError

	rr := h.get("/?action=send&to=15551234567&msg=hi", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestForceResetAlwaysAcks(t *testing.T) {
	h := newControlHarness()
	h.runtime.MarkConnected("15550001111")

	rr := h.get("/?action=force_reset", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, h.controller.resets)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, true, body["reset"])
}

func TestHomeReturnsPlainStatusLine(t *testing.T) {
	h := newControlHarness()
	h.runtime.SetStatus(state.StatusConnecting, "disconnected, reconnecting")

	rr := h.get("/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rr.Body.String(), "connecting")
}
