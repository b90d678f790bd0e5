package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/relaydesk/wabridge/internal/admin"
	"github.com/relaydesk/wabridge/internal/observability/metrics"
	"github.com/relaydesk/wabridge/internal/session"
	"github.com/relaydesk/wabridge/internal/state"
	"github.com/relaydesk/wabridge/pkg/logging"
)

var controlTracer = otel.Tracer("wabridge.internal.control")

// adminPagePattern recognizes an admin-page referrer the linkage can be
// inferred from when no admin URL was configured or supplied.
var adminPagePattern = regexp.MustCompile(`^(https?://[^?#]*addon\.php)`)

// SessionController is the slice of the lifecycle manager the control API drives.
type SessionController interface {
	SendText(ctx context.Context, toJID, text string) (string, error)
	RequestPairingCode(ctx context.Context, phone string) (string, error)
	Reset(ctx context.Context) error
}

// SettingsRefresher re-fetches AI settings after a linkage change.
type SettingsRefresher interface {
	RefreshSettings(ctx context.Context)
}

// Handler serves the control API: a single route dispatching on the action
// query parameter.
type Handler struct {
	runtime   *state.Runtime
	session   SessionController
	refresher SettingsRefresher
	adminLog  admin.MessageLogger
	metrics   *metrics.BridgeMetrics
	logger    *logging.Logger
}

// NewHandler creates a control API handler.
func NewHandler(runtime *state.Runtime, controller SessionController, refresher SettingsRefresher, adminLog admin.MessageLogger, m *metrics.BridgeMetrics, logger *logging.Logger) *Handler {
	if runtime == nil {
		panic("control: runtime cannot be nil")
	}
	if controller == nil {
		panic("control: session controller cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		runtime:   runtime,
		session:   controller,
		refresher: refresher,
		adminLog:  adminLog,
		metrics:   m,
		logger:    logger,
	}
}

// httpError carries an HTTP status with an error message.
type httpError struct {
	status  int
	message string
}

func (e *httpError) Error() string { return e.message }

func clientError(format string, args ...interface{}) error {
	return &httpError{status: http.StatusBadRequest, message: fmt.Sprintf(format, args...)}
}

func serverError(format string, args ...interface{}) error {
	return &httpError{status: http.StatusInternalServerError, message: fmt.Sprintf(format, args...)}
}

// ServeHTTP dispatches a control request. Any failure, including a panic in
// a handler, is surfaced as a structured error response; the process never
// crashes on a request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := controlTracer.Start(r.Context(), "control.request")
	defer span.End()

	cmd := ParseCommand(r.URL.Query().Get("action"))
	span.SetAttributes(attribute.String("wabridge.action", cmd.String()))

	err := h.dispatch(ctx, w, r, cmd)
	if err == nil {
		return
	}

	status := http.StatusInternalServerError
	if he, ok := err.(*httpError); ok {
		status = he.status
	}
	h.logger.Warn("control request failed",
		"action", cmd.String(), "status", status, "error", err)
	span.RecordError(err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handler) dispatch(ctx context.Context, w http.ResponseWriter, r *http.Request, cmd Command) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = serverError("internal error: %v", rec)
		}
	}()

	switch cmd {
	case CmdStatus:
		return h.handleStatus(w, r)
	case CmdPairingCode:
		return h.handlePairingCode(ctx, w, r)
	case CmdSend:
		return h.handleSend(ctx, w, r, false)
	case CmdTestMsg:
		return h.handleSend(ctx, w, r, true)
	case CmdForceReset:
		return h.handleForceReset(ctx, w)
	case CmdHome:
		return h.handleHome(w)
	default:
		return h.handleHome(w)
	}
}

// handleStatus adopts any supplied linkage before returning the snapshot. A
// changed admin URL triggers an AI-settings refresh.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	adminURL := strings.TrimSpace(q.Get("admin_url"))
	key := strings.TrimSpace(q.Get("key"))

	if adminURL == "" {
		if current, _ := h.runtime.Linkage(); current == "" {
			if m := adminPagePattern.FindStringSubmatch(r.Referer()); m != nil {
				adminURL = m[1]
				h.logger.Info("admin url inferred from referrer", "admin_url", adminURL)
			}
		}
	}

	if changed := h.runtime.AdoptLinkage(adminURL, key); changed && h.refresher != nil {
		go h.refresher.RefreshSettings(context.Background())
	}

	writeJSON(w, http.StatusOK, h.runtime.Snapshot())
	return nil
}

func (h *Handler) handlePairingCode(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	phone := digitsOnly(r.URL.Query().Get("phone"))
	if phone == "" {
		return clientError("missing phone parameter")
	}

	code, err := h.session.RequestPairingCode(ctx, phone)
	if err != nil {
		return serverError("pairing code request failed: %v", err)
	}
	h.runtime.SetPairingCode(code)

	writeJSON(w, http.StatusOK, map[string]string{"pairing_code": code})
	return nil
}

func (h *Handler) handleSend(ctx context.Context, w http.ResponseWriter, r *http.Request, test bool) error {
	if !h.runtime.Connected() {
		return serverError("not connected")
	}

	q := r.URL.Query()
	target := q.Get("to")
	if test && target == "" {
		target = h.runtime.OwnNumber()
	}
	digits := digitsOnly(target)
	if digits == "" {
		return clientError("no target number")
	}

	text := q.Get("msg")
	if text == "" {
		if !test {
			return clientError("missing msg parameter")
		}
		text = "wabridge test message"
	}

	id, err := h.session.SendText(ctx, digits+session.PhoneSuffix, text)
	if err != nil {
		return serverError("send failed: %v", err)
	}

	origin := "send"
	if test {
		origin = "test_msg"
	}
	h.metrics.ObserveOutbound(origin)

	if h.adminLog != nil {
		if err := h.adminLog.LogMessage(ctx, digits, admin.DirectionOut, text); err != nil {
			h.logger.Warn("outbound message log failed", "error", err, "phone", digits)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"message_id": id, "to": digits})
	return nil
}

// handleForceReset always acknowledges; logout failures are the manager's to
// log, not the caller's to see.
func (h *Handler) handleForceReset(ctx context.Context, w http.ResponseWriter) error {
	_ = h.session.Reset(ctx)
	writeJSON(w, http.StatusOK, map[string]interface{}{"reset": true})
	return nil
}

func (h *Handler) handleHome(w http.ResponseWriter) error {
	status, message := h.runtime.Status()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "wabridge: %s (%s)\n", status, message)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// digitsOnly strips everything but digits from a phone parameter.
func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
