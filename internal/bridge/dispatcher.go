package bridge

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/relaydesk/wabridge/internal/admin"
	"github.com/relaydesk/wabridge/internal/ai"
	"github.com/relaydesk/wabridge/internal/observability/metrics"
	"github.com/relaydesk/wabridge/internal/session"
	"github.com/relaydesk/wabridge/pkg/logging"
)

var dispatchTracer = otel.Tracer("wabridge.internal.bridge")

// Sender delivers outbound messages through the session client.
type Sender interface {
	SendText(ctx context.Context, toJID, text string) (string, error)
}

// SettingsSource reads the current auto-reply configuration.
type SettingsSource interface {
	AISettings() ai.Settings
}

// Dispatcher routes live inbound messages to the admin log and, when
// configured, to the AI reply path.
type Dispatcher struct {
	sender    Sender
	adminLog  admin.MessageLogger
	completer ai.Completer
	settings  SettingsSource
	metrics   *metrics.BridgeMetrics
	logger    *logging.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewDispatcher creates a message bridge dispatcher.
func NewDispatcher(sender Sender, adminLog admin.MessageLogger, completer ai.Completer, settings SettingsSource, m *metrics.BridgeMetrics, logger *logging.Logger) *Dispatcher {
	if sender == nil {
		panic("bridge: sender cannot be nil")
	}
	if settings == nil {
		panic("bridge: settings source cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		sender:    sender,
		adminLog:  adminLog,
		completer: completer,
		settings:  settings,
		metrics:   m,
		logger:    logger,
		inFlight:  make(map[string]struct{}),
	}
}

// HandleBatch processes one inbound batch. Only live ("notify") deliveries
// are bridged; history backfill batches are dropped wholesale.
func (d *Dispatcher) HandleBatch(ctx context.Context, batch session.MessageBatch) {
	if batch.Kind != session.BatchKindNotify {
		d.metrics.ObserveInbound("ignored_batch")
		return
	}

	batchID := uuid.NewString()
	ctx, span := dispatchTracer.Start(ctx, "bridge.handle_batch")
	defer span.End()
	span.SetAttributes(
		attribute.String("wabridge.batch_id", batchID),
		attribute.Int("wabridge.batch_size", len(batch.Messages)),
	)

	for _, msg := range batch.Messages {
		d.handleMessage(ctx, batchID, msg)
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, batchID string, msg session.Message) {
	if msg.Text == "" || msg.FromSelf {
		d.metrics.ObserveInbound("skipped")
		return
	}

	phone := ResolvePhone(msg.SenderJID, msg.Participant)
	d.metrics.ObserveInbound("bridged")
	d.logger.Info("inbound message",
		"batch_id", batchID,
		"phone", phone,
		"message_id", msg.ID,
	)

	d.logToAdmin(ctx, phone, admin.DirectionIn, msg.Text)

	settings := d.settings.AISettings()
	if !settings.Enabled() || d.completer == nil {
		return
	}

	if !d.acquire(phone) {
		// A reply for this sender is already being generated; at most one
		// AI reply per sender is in flight at a time.
		d.metrics.ObserveAIReply("skipped_busy")
		d.logger.Info("ai reply skipped, sender busy", "phone", phone)
		return
	}
	defer d.release(phone)

	reply, err := d.completer.Complete(ctx, settings, msg.Text)
	if err != nil {
		d.metrics.ObserveAIReply("error")
		d.logger.Error("ai completion failed", "error", err, "phone", phone)
		return
	}
	if reply == "" {
		d.metrics.ObserveAIReply("empty")
		return
	}
	d.metrics.ObserveAIReply("ok")

	toJID := phone + session.PhoneSuffix
	if _, err := d.sender.SendText(ctx, toJID, reply); err != nil {
		d.logger.Error("ai reply send failed", "error", err, "phone", phone)
		return
	}
	d.metrics.ObserveOutbound("ai_reply")
	d.logToAdmin(ctx, phone, admin.DirectionOut, reply)
}

// logToAdmin forwards a message event to the admin system, best-effort.
// Failures are logged, never retried inline, and never stop the bridge.
func (d *Dispatcher) logToAdmin(ctx context.Context, phone, direction, text string) {
	if d.adminLog == nil {
		return
	}
	if err := d.adminLog.LogMessage(ctx, phone, direction, text); err != nil {
		d.metrics.ObserveAdminCall("log_msg", "error")
		d.logger.Warn("admin message log failed", "error", err, "phone", phone, "direction", direction)
		return
	}
	d.metrics.ObserveAdminCall("log_msg", "ok")
}

func (d *Dispatcher) acquire(phone string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inFlight[phone]; busy {
		return false
	}
	d.inFlight[phone] = struct{}{}
	return true
}

func (d *Dispatcher) release(phone string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, phone)
}
