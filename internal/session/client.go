package session

import (
	"context"
	"strings"
)

// JID domain suffixes used by the messaging protocol.
const (
	// PhoneSuffix addresses a user by their stable phone number.
	PhoneSuffix = "@s.whatsapp.net"
	// LIDSuffix addresses a user by a privacy-preserving linked identifier.
	LIDSuffix = "@lid"
)

// Close status codes at this interface boundary. The opaque session client
// defines the wire truth; these are the values it surfaces to us.
const (
	// CodeUnauthorized means the stored credentials are no longer valid.
	CodeUnauthorized = 401
	// CodeLoggedOut is the protocol's definitive logged-out signal. No
	// automatic reconnection happens after it; a manual reset is required.
	CodeLoggedOut = 419
)

// CloseClass is the reaction category for a connection-closed event.
type CloseClass string

const (
	// CloseTransient schedules a reconnect; credentials are retained.
	CloseTransient CloseClass = "transient"
	// CloseFatalAuth wipes credentials and schedules a full reconnect.
	CloseFatalAuth CloseClass = "fatal_auth"
	// CloseTerminal stops automatic reconnection entirely.
	CloseTerminal CloseClass = "terminal"
)

// ClassifyClose maps a close event to its reaction category. A session
// conflict or device removal is fatal for the credentials regardless of the
// status code the protocol happened to attach.
func ClassifyClose(code int, message string) CloseClass {
	lower := strings.ToLower(message)
	if code == CodeUnauthorized ||
		strings.Contains(lower, "conflict") ||
		strings.Contains(lower, "device removed") ||
		strings.Contains(lower, "device_removed") {
		return CloseFatalAuth
	}
	if code == CodeLoggedOut {
		return CloseTerminal
	}
	return CloseTransient
}

// Message is one inbound message event from the session client.
type Message struct {
	ID string
	// SenderJID is the raw sender identifier, either phone-suffixed or
	// lid-suffixed.
	SenderJID string
	// Participant optionally carries an alternate identifier for the same
	// sender, used for canonical phone recovery on lid senders.
	Participant string
	Text        string
	FromSelf    bool
}

// MessageBatch groups messages delivered together. Only batches tagged
// "notify" are live deliveries; anything else (history backfill) is ignored
// by the dispatcher.
type MessageBatch struct {
	Kind     string
	Messages []Message
}

// BatchKindNotify tags a live message delivery.
const BatchKindNotify = "notify"

// EventHandler receives connection and message events from the session client.
type EventHandler interface {
	HandleQR(payload string)
	HandleOpen()
	HandleClose(code int, message string)
	HandleMessages(batch MessageBatch)
}

// Client is the opaque messaging-protocol session. The real implementation
// lives outside this repository; everything here treats it as a collaborator
// that emits events and accepts send/pairing operations.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect()
	Logout(ctx context.Context) error
	// SendText delivers a text message and returns the assigned message ID.
	SendText(ctx context.Context, toJID, text string) (string, error)
	RequestPairingCode(ctx context.Context, phone string) (string, error)
	// OwnJID returns the authenticated account's JID, or "" before auth.
	OwnJID() string
}

// CredentialStore is the persistence contract the session client and the
// lifecycle manager share.
type CredentialStore interface {
	// Load returns (nil, nil) when no credentials are persisted.
	Load() ([]byte, error)
	Persist(name string, data []byte) error
	Clear() error
}

// Factory builds a session client bound to a credential store, protocol
// version, and event handler.
type Factory func(store CredentialStore, version Version, handler EventHandler) (Client, error)

// JIDLocal returns the local part of a JID before the domain suffix.
func JIDLocal(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return jid[:i]
	}
	return jid
}
