package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relaydesk/wabridge/internal/observability/metrics"
	"github.com/relaydesk/wabridge/internal/state"
	"github.com/relaydesk/wabridge/pkg/logging"
)

// SettingsRefresher re-fetches AI settings after a successful connect.
type SettingsRefresher interface {
	RefreshSettings(ctx context.Context)
}

// BatchHandler consumes inbound message batches.
type BatchHandler interface {
	HandleBatch(ctx context.Context, batch MessageBatch)
}

// ManagerConfig is the lifecycle timing policy. Fixed delays are a bounded
// backoff sufficient for a single long-lived session; the remote collaborator
// throttles reconnect frequency on its own.
type ManagerConfig struct {
	ReconnectDelay time.Duration
	ResetDelay     time.Duration
	SettleDelay    time.Duration
}

// ManagerDeps are the collaborators the lifecycle manager drives.
type ManagerDeps struct {
	Store     CredentialStore
	Factory   Factory
	Runtime   *state.Runtime
	Versions  VersionSource
	Refresher SettingsRefresher
	Batches   BatchHandler
	Metrics   *metrics.BridgeMetrics
	Logger    *logging.Logger
}

// Manager owns the session lifecycle: it creates the session client,
// interprets connection events, and implements the reconnect/reset policy.
// It is the only writer of credential and status state.
type Manager struct {
	cfg ManagerConfig

	store     CredentialStore
	factory   Factory
	runtime   *state.Runtime
	versions  VersionSource
	refresher SettingsRefresher
	batches   BatchHandler
	metrics   *metrics.BridgeMetrics
	logger    *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	client  Client
	timer   *time.Timer
	stopped bool
}

// NewManager wires a lifecycle manager. Store, Factory and Runtime are
// required; the rest may be nil.
func NewManager(cfg ManagerConfig, deps ManagerDeps) *Manager {
	if deps.Store == nil {
		panic("session: credential store cannot be nil")
	}
	if deps.Factory == nil {
		panic("session: client factory cannot be nil")
	}
	if deps.Runtime == nil {
		panic("session: runtime state cannot be nil")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		cfg:       cfg,
		store:     deps.Store,
		factory:   deps.Factory,
		runtime:   deps.Runtime,
		versions:  deps.Versions,
		refresher: deps.Refresher,
		batches:   deps.Batches,
		metrics:   deps.Metrics,
		logger:    logger,
	}
}

// SetBatchHandler wires the message dispatcher. The dispatcher sends replies
// back through the manager, so it is constructed after the manager and
// attached here before Start.
func (m *Manager) SetBatchHandler(h BatchHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = h
}

// Start launches the first session attempt. It returns immediately.
func (m *Manager) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)
	go m.startSession()
}

// startSession performs one full session setup: credential load, version
// check, client construction, connect. Failures here are treated as
// transient setup errors and retried after the reset delay.
func (m *Manager) startSession() {
	if m.isStopped() {
		return
	}

	m.runtime.SetStatus(state.StatusConnecting, "connecting")

	data, err := m.store.Load()
	if err != nil {
		m.logger.Warn("credential load failed, treating as absent", "error", err)
	}
	if data == nil {
		m.logger.Info("no stored credentials, fresh pairing required")
	}

	version := FallbackVersion
	if m.versions != nil {
		if latest, err := m.versions.Latest(m.ctx); err != nil {
			m.logger.Warn("protocol version check failed, using fallback",
				"error", err, "fallback", FallbackVersion.String())
		} else {
			version = latest
		}
	}

	client, err := m.factory(m.store, version, m)
	if err != nil {
		m.setupFailure(fmt.Errorf("create session client: %w", err))
		return
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		client.Disconnect()
		return
	}
	old := m.client
	m.client = client
	m.mu.Unlock()
	if old != nil {
		old.Disconnect()
	}

	if err := client.Connect(m.ctx); err != nil {
		m.setupFailure(fmt.Errorf("connect: %w", err))
		return
	}

	m.logger.Info("session client started", "version", version.String())
}

func (m *Manager) setupFailure(err error) {
	m.logger.Error("session setup failed", "error", err)
	m.runtime.SetLastError(err.Error(), 0)
	m.runtime.SetStatus(state.StatusResetting, "setup failed, restarting")
	m.metrics.ObserveClose("setup_failure")
	m.metrics.ObserveReconnect()
	m.schedule(m.cfg.ResetDelay, m.startSession)
}

// HandleQR encodes a pairing challenge and exposes it via status.
func (m *Manager) HandleQR(payload string) {
	dataURI, err := EncodeQR(payload)
	if err != nil {
		m.logger.Error("qr encode failed", "error", err)
		m.runtime.SetStatus(state.StatusAwaitingAuth, "pairing required")
		return
	}
	m.runtime.SetQR(dataURI)
	m.runtime.SetStatus(state.StatusAwaitingAuth, "waiting for QR scan")
	m.logger.Info("pairing qr exposed")
}

// HandleOpen starts the post-connect settle delay. The session is only
// reported as connected once protocol-internal synchronization has had time
// to finish; a close event during the settle window supersedes it.
func (m *Manager) HandleOpen() {
	m.runtime.SetStatus(state.StatusConnecting, "connection open, settling")
	m.schedule(m.cfg.SettleDelay, m.finishOpen)
}

func (m *Manager) finishOpen() {
	var own string
	if c := m.currentClient(); c != nil {
		own = JIDLocal(c.OwnJID())
	}
	m.runtime.MarkConnected(own)
	m.logger.Info("session connected", "own_number", own)
	if m.refresher != nil {
		go m.refresher.RefreshSettings(m.ctx)
	}
}

// HandleClose records the error, classifies the close cause and decides the
// next action: credential wipe + reset, terminal stop, or plain reconnect.
func (m *Manager) HandleClose(code int, message string) {
	m.runtime.SetLastError(message, code)
	class := ClassifyClose(code, message)
	m.metrics.ObserveClose(string(class))
	m.logger.Warn("connection closed",
		"code", code, "reason", message, "class", string(class))

	switch class {
	case CloseFatalAuth:
		if err := m.store.Clear(); err != nil {
			m.logger.Error("credential wipe failed", "error", err)
		}
		m.runtime.SetStatus(state.StatusResetting, "session invalidated, resetting")
		m.metrics.ObserveReconnect()
		m.schedule(m.cfg.ResetDelay, m.startSession)
	case CloseTerminal:
		m.runtime.SetStatus(state.StatusClosing, "logged out, manual reset required")
	case CloseTransient:
		m.runtime.SetStatus(state.StatusConnecting, "disconnected, reconnecting")
		m.metrics.ObserveReconnect()
		m.schedule(m.cfg.ReconnectDelay, m.startSession)
	}
}

// HandleMessages hands a batch to the dispatcher without blocking the
// session client's event delivery.
func (m *Manager) HandleMessages(batch MessageBatch) {
	m.mu.Lock()
	h := m.batches
	m.mu.Unlock()
	if h == nil {
		return
	}
	go h.HandleBatch(m.ctx, batch)
}

// SendText sends through the active session client.
func (m *Manager) SendText(ctx context.Context, toJID, text string) (string, error) {
	c := m.currentClient()
	if c == nil {
		return "", fmt.Errorf("session: no active session")
	}
	return c.SendText(ctx, toJID, text)
}

// RequestPairingCode requests a numeric pairing code for the given phone.
func (m *Manager) RequestPairingCode(ctx context.Context, phone string) (string, error) {
	c := m.currentClient()
	if c == nil {
		return "", fmt.Errorf("session: no active session")
	}
	return c.RequestPairingCode(ctx, phone)
}

// Reset implements the manual force-reset: cancel any pending reconnect,
// wipe credentials, best-effort log out, and schedule a fresh session. It
// always succeeds from the caller's perspective.
func (m *Manager) Reset(ctx context.Context) error {
	m.cancelPending()
	m.runtime.SetStatus(state.StatusResetting, "manual reset requested")
	if err := m.store.Clear(); err != nil {
		m.logger.Error("credential wipe failed during reset", "error", err)
	}
	if c := m.currentClient(); c != nil {
		if err := c.Logout(ctx); err != nil {
			m.logger.Warn("remote logout failed", "error", err)
		}
		c.Disconnect()
	}
	m.schedule(m.cfg.ResetDelay, m.startSession)
	return nil
}

// Shutdown stops the manager: pending reconnects are cancelled, not raced.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	c := m.client
	m.client = nil
	m.mu.Unlock()
	if c != nil {
		c.Disconnect()
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.runtime.SetStatus(state.StatusClosing, "shutting down")
}

// schedule arms the single pending lifecycle timer, replacing any previous
// one. At most one settle/reconnect action is ever pending.
func (m *Manager) schedule(delay time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(delay, fn)
}

func (m *Manager) cancelPending() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) currentClient() Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client
}

func (m *Manager) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}
