// Package engine adapts the external messaging-protocol engine to the
// session.Client contract. The engine owns the protocol itself (cryptography,
// multi-device sync, wire transport); this adapter speaks a small JSON frame
// protocol with it over a websocket and relays events to the lifecycle
// manager. Credential deltas emitted by the engine are persisted through the
// credential store; stored credentials are uploaded on connect.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/relaydesk/wabridge/internal/session"
	"github.com/relaydesk/wabridge/pkg/logging"
)

const requestTimeout = 30 * time.Second

// frame is the JSON envelope exchanged with the engine. Server frames carry
// Event; client frames carry Op. Request/response pairs correlate on ID.
type frame struct {
	Event string `json:"event,omitempty"`
	Op    string `json:"op,omitempty"`
	ID    string `json:"id,omitempty"`

	// close events
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// qr events
	Payload string `json:"payload,omitempty"`

	// credential deltas
	Name string `json:"name,omitempty"`
	Data []byte `json:"data,omitempty"`

	// message batches
	Kind     string         `json:"kind,omitempty"`
	Messages []messageFrame `json:"messages,omitempty"`

	// commands and results
	To          string `json:"to,omitempty"`
	Text        string `json:"text,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Version     string `json:"version,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
	PairingCode string `json:"pairing_code,omitempty"`
	OwnJID      string `json:"own_jid,omitempty"`
	Error       string `json:"error,omitempty"`
}

type messageFrame struct {
	ID          string `json:"id"`
	Sender      string `json:"sender"`
	Participant string `json:"participant,omitempty"`
	Text        string `json:"text,omitempty"`
	FromSelf    bool   `json:"from_self,omitempty"`
}

// Client is a session.Client backed by the remote protocol engine.
type Client struct {
	url     string
	store   session.CredentialStore
	version session.Version
	handler session.EventHandler
	logger  *logging.Logger

	mu            sync.Mutex
	conn          *websocket.Conn
	pending       map[string]chan frame
	ownJID        string
	closed        bool
	closeDeliverd bool
}

var _ session.Client = (*Client)(nil)

// NewFactory returns a session.Factory dialing the given engine URL.
func NewFactory(url string, logger *logging.Logger) session.Factory {
	if logger == nil {
		logger = logging.Default()
	}
	return func(store session.CredentialStore, version session.Version, handler session.EventHandler) (session.Client, error) {
		if store == nil || handler == nil {
			return nil, fmt.Errorf("engine: store and handler are required")
		}
		return &Client{
			url:     url,
			store:   store,
			version: version,
			handler: handler,
			logger:  logger,
			pending: make(map[string]chan frame),
		}, nil
	}
}

// Connect dials the engine, uploads stored credentials, and starts the event
// read loop. Connection events arrive asynchronously through the handler.
func (c *Client) Connect(ctx context.Context) error {
	creds, err := c.store.Load()
	if err != nil {
		c.logger.Warn("credential load failed, connecting unpaired", "error", err)
		creds = nil
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("engine: dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	init := frame{Op: "init", Data: creds, Version: c.version.String()}
	if err := c.write(init); err != nil {
		c.Disconnect()
		return fmt.Errorf("engine: init: %w", err)
	}

	go c.readLoop()
	return nil
}

func (c *Client) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			c.deliverDrop(err)
			return
		}

		switch f.Event {
		case "qr":
			c.handler.HandleQR(f.Payload)
		case "open":
			c.mu.Lock()
			c.ownJID = f.OwnJID
			c.mu.Unlock()
			c.handler.HandleOpen()
		case "close":
			c.deliverClose(f.Code, f.Message)
		case "creds":
			if err := c.store.Persist(f.Name, f.Data); err != nil {
				c.logger.Error("credential persist failed", "name", f.Name, "error", err)
			}
		case "messages":
			batch := session.MessageBatch{Kind: f.Kind, Messages: make([]session.Message, 0, len(f.Messages))}
			for _, m := range f.Messages {
				batch.Messages = append(batch.Messages, session.Message{
					ID:          m.ID,
					SenderJID:   m.Sender,
					Participant: m.Participant,
					Text:        m.Text,
					FromSelf:    m.FromSelf,
				})
			}
			c.handler.HandleMessages(batch)
		case "result":
			c.deliverResult(f)
		default:
			c.logger.Debug("unknown engine event", "event", f.Event)
		}
	}
}

// deliverDrop reports a socket failure as a transient close unless a close
// event was already delivered or the drop was a local disconnect.
func (c *Client) deliverDrop(err error) {
	c.mu.Lock()
	skip := c.closed || c.closeDeliverd
	c.closeDeliverd = true
	c.mu.Unlock()
	if skip {
		return
	}
	c.handler.HandleClose(0, "connection lost: "+err.Error())
}

func (c *Client) deliverClose(code int, message string) {
	c.mu.Lock()
	skip := c.closed || c.closeDeliverd
	c.closeDeliverd = true
	c.mu.Unlock()
	if skip {
		return
	}
	c.handler.HandleClose(code, message)
}

func (c *Client) deliverResult(f frame) {
	c.mu.Lock()
	ch, ok := c.pending[f.ID]
	if ok {
		delete(c.pending, f.ID)
	}
	c.mu.Unlock()
	if ok {
		ch <- f
	}
}

// request sends a command frame and waits for its correlated result.
func (c *Client) request(ctx context.Context, f frame) (frame, error) {
	f.ID = uuid.NewString()
	ch := make(chan frame, 1)

	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		return frame{}, fmt.Errorf("engine: not connected")
	}
	c.pending[f.ID] = ch
	c.mu.Unlock()

	if err := c.write(f); err != nil {
		c.mu.Lock()
		delete(c.pending, f.ID)
		c.mu.Unlock()
		return frame{}, err
	}

	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()
	select {
	case resp, ok := <-ch:
		if !ok {
			return frame{}, fmt.Errorf("engine: connection closed")
		}
		if resp.Error != "" {
			return frame{}, fmt.Errorf("engine: %s failed: %s", f.Op, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return frame{}, ctx.Err()
	case <-timer.C:
		return frame{}, fmt.Errorf("engine: %s timed out", f.Op)
	}
}

// write serializes frame writes; gorilla connections allow one writer at a time.
func (c *Client) write(f frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("engine: not connected")
	}
	return c.conn.WriteJSON(f)
}

// SendText delivers a text message and returns the engine-assigned message ID.
func (c *Client) SendText(ctx context.Context, toJID, text string) (string, error) {
	resp, err := c.request(ctx, frame{Op: "send", To: toJID, Text: text})
	if err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

// RequestPairingCode asks the engine for a numeric pairing code.
func (c *Client) RequestPairingCode(ctx context.Context, phone string) (string, error) {
	resp, err := c.request(ctx, frame{Op: "pair", Phone: phone})
	if err != nil {
		return "", err
	}
	return resp.PairingCode, nil
}

// Logout invalidates the remote session, best-effort.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.request(ctx, frame{Op: "logout"})
	return err
}

// Disconnect closes the socket without emitting a close event.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// OwnJID returns the authenticated account's JID, or "" before auth.
func (c *Client) OwnJID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ownJID
}
