package state

import (
	"os"
	"sync"
	"time"

	"github.com/relaydesk/wabridge/internal/ai"
)

// Status enumerates the connection lifecycle states.
type Status string

const (
	StatusStarting     Status = "starting"
	StatusConnecting   Status = "connecting"
	StatusAwaitingAuth Status = "awaiting_auth"
	StatusConnected    Status = "connected"
	StatusClosing      Status = "closing"
	StatusResetting    Status = "resetting"
)

// LastError records the most recent connection-level failure for diagnostics.
type LastError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Snapshot is the read-only view returned by the status action.
type Snapshot struct {
	Connected   bool       `json:"connected"`
	Status      Status     `json:"status"`
	Message     string     `json:"message"`
	QR          string     `json:"qr,omitempty"`
	PairingCode string     `json:"pairing_code,omitempty"`
	OwnNumber   string     `json:"own_number,omitempty"`
	PID         int        `json:"pid"`
	StartedAt   time.Time  `json:"started_at"`
	LastError   *LastError `json:"last_error,omitempty"`
}

// Runtime is the single process-wide mutable state shared between the
// connection lifecycle manager and the control API. All access goes through
// the mutex; there are no package-level globals.
type Runtime struct {
	mu sync.Mutex

	status  Status
	message string
	lastErr *LastError

	qrDataURI   string
	pairingCode string
	ownNumber   string

	adminURL string
	apiKey   string
	settings ai.Settings

	pid       int
	startedAt time.Time
}

// NewRuntime seeds runtime state from startup configuration. Both adminURL
// and apiKey may be empty; the control API adopts them later.
func NewRuntime(adminURL, apiKey string) *Runtime {
	return &Runtime{
		status:    StatusStarting,
		message:   "starting up",
		adminURL:  adminURL,
		apiKey:    apiKey,
		pid:       os.Getpid(),
		startedAt: time.Now().UTC(),
	}
}

// SetStatus updates the lifecycle state and its human-readable message.
func (r *Runtime) SetStatus(status Status, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
	r.message = message
}

// Status returns the current lifecycle state and message.
func (r *Runtime) Status() (Status, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.message
}

// Connected reports whether the session is fully established.
func (r *Runtime) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status == StatusConnected
}

// SetLastError records a connection-level failure for the status endpoint.
func (r *Runtime) SetLastError(message string, code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr = &LastError{Message: message, Code: code}
}

// SetQR exposes a pending QR challenge. Any stale pairing code is dropped,
// since at most one auth artifact is meaningful at a time.
func (r *Runtime) SetQR(dataURI string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.qrDataURI = dataURI
	r.pairingCode = ""
}

// SetPairingCode exposes a pending numeric pairing code.
func (r *Runtime) SetPairingCode(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairingCode = code
	r.qrDataURI = ""
}

// MarkConnected transitions to the connected state, clearing pending auth
// artifacts and the last error record.
func (r *Runtime) MarkConnected(ownNumber string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = StatusConnected
	r.message = "connected"
	r.qrDataURI = ""
	r.pairingCode = ""
	r.lastErr = nil
	if ownNumber != "" {
		r.ownNumber = ownNumber
	}
}

// OwnNumber returns the bridge's own phone number, if known.
func (r *Runtime) OwnNumber() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ownNumber
}

// AdoptLinkage updates the admin linkage from a control request. Empty
// parameters leave the current values untouched. It reports whether the
// admin URL changed, which signals the caller to refresh AI settings.
func (r *Runtime) AdoptLinkage(adminURL, apiKey string) (urlChanged bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if apiKey != "" && apiKey != r.apiKey {
		r.apiKey = apiKey
	}
	if adminURL != "" && adminURL != r.adminURL {
		r.adminURL = adminURL
		urlChanged = true
	}
	return urlChanged
}

// Linkage returns the current admin base URL and shared API key.
func (r *Runtime) Linkage() (adminURL, apiKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.adminURL, r.apiKey
}

// SetAISettings stores the auto-reply configuration fetched from the admin system.
func (r *Runtime) SetAISettings(s ai.Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = s
}

// AISettings returns the current auto-reply configuration.
func (r *Runtime) AISettings() ai.Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// Snapshot returns a consistent copy of the runtime state for the status action.
func (r *Runtime) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := Snapshot{
		Connected:   r.status == StatusConnected,
		Status:      r.status,
		Message:     r.message,
		QR:          r.qrDataURI,
		PairingCode: r.pairingCode,
		OwnNumber:   r.ownNumber,
		PID:         r.pid,
		StartedAt:   r.startedAt,
	}
	if r.lastErr != nil {
		errCopy := *r.lastErr
		snap.LastError = &errCopy
	}
	return snap
}
