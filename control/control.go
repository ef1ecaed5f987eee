// Package control maintains a websocket connection to the host application,
// which embeds the actual updater engine. Engine progress events arrive as
// inbound frames; check and cancel requests go out as outbound frames. The
// host app also relays explicit user actions ("check for updates" menu
// clicks) over the same channel.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"meridian/updater/engine"
)

// Inbound message types (host app -> updater).
const (
	MessageEngineStatus       = "engine_status"
	MessageUpdateFound        = "update_found"
	MessageUpdateNotFound     = "update_not_found"
	MessageDownloadStarted    = "download_started"
	MessageDownloadFinished   = "download_finished"
	MessageExtractionStarted  = "extraction_started"
	MessageExtractionFinished = "extraction_finished"
	MessageWillRelaunch       = "will_relaunch"
	MessageUpdateFailed       = "update_failed"
	CommandCheckUpdate        = "check_update"
	CommandCancelUpdate       = "cancel_update"
)

// Outbound message types (updater -> host app).
const (
	MessageStartCheck = "start_check"
	MessageCancel     = "cancel"
)

// Message is one control-channel frame.
type Message struct {
	Type      string            `json:"type"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Logger is the subset of the logger package the client needs.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

// CommandHandler processes a user command relayed by the host app.
type CommandHandler func(command string, data map[string]string)

// Client connects to the host app's control socket. It implements
// engine.Engine by forwarding check/cancel requests over the wire and
// dispatches inbound engine events to a Delegate. It reconnects with a
// capped backoff when the host app restarts.
type Client struct {
	endpoint string
	log      Logger

	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	handshakeTimeout  time.Duration
	writeTimeout      time.Duration

	mu             sync.RWMutex
	conn           *websocket.Conn
	delegate       engine.Delegate
	commandHandler CommandHandler
	engineCanCheck *bool
}

// NewClient creates a control client for the given websocket endpoint.
func NewClient(endpoint string, log Logger) *Client {
	return &Client{
		endpoint:          endpoint,
		log:               log,
		reconnectDelay:    5 * time.Second,
		maxReconnectDelay: 2 * time.Minute,
		handshakeTimeout:  10 * time.Second,
		writeTimeout:      10 * time.Second,
	}
}

// SetDelegate registers the receiver for engine progress events.
func (c *Client) SetDelegate(d engine.Delegate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate = d
}

// SetCommandHandler registers the handler for user commands relayed by the
// host app.
func (c *Client) SetCommandHandler(h CommandHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commandHandler = h
}

// CanCheckForUpdates reports the engine's last advertised availability.
// Before the host app has reported anything, the engine is assumed
// available; a user's explicit request should not be swallowed by a missing
// status frame.
func (c *Client) CanCheckForUpdates() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.engineCanCheck == nil {
		return true
	}
	return *c.engineCanCheck
}

// CheckForUpdates asks the host app's engine to start a check.
func (c *Client) CheckForUpdates(ctx context.Context) error {
	return c.send(Message{Type: MessageStartCheck, Timestamp: time.Now()})
}

// CancelUpdate asks the host app's engine to abort the current update.
func (c *Client) CancelUpdate() {
	if err := c.send(Message{Type: MessageCancel, Timestamp: time.Now()}); err != nil {
		c.log.Warn("Failed to send cancel to host app", "error", err)
	}
}

func (c *Client) send(msg Message) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("control channel not connected")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode control message: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("control channel write failed: %w", err)
	}
	return nil
}

// Run connects and processes frames until the context is cancelled.
func (c *Client) Run(ctx context.Context) {
	delay := c.reconnectDelay

	for {
		err := c.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.log.Warn("Control channel disconnected", "error", err, "retry_in", delay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.maxReconnectDelay {
			delay = c.maxReconnectDelay
		}
	}
}

func (c *Client) connectAndRead(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	c.log.Info("Control channel connected", "endpoint", c.endpoint)

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("Ignoring malformed control message", "error", err)
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg Message) {
	c.mu.RLock()
	delegate := c.delegate
	handler := c.commandHandler
	c.mu.RUnlock()

	switch msg.Type {
	case MessageEngineStatus:
		canCheck, err := strconv.ParseBool(msg.Data["can_check"])
		c.mu.Lock()
		if err != nil {
			c.engineCanCheck = nil
		} else {
			c.engineCanCheck = &canCheck
		}
		c.mu.Unlock()
		return

	case CommandCheckUpdate, CommandCancelUpdate:
		if handler != nil {
			handler(msg.Type, msg.Data)
		} else {
			c.log.Warn("No handler registered for control command", "command", msg.Type)
		}
		return
	}

	if delegate == nil {
		c.log.Debug("Dropping engine event with no delegate", "type", msg.Type)
		return
	}

	switch msg.Type {
	case MessageUpdateFound:
		critical, _ := strconv.ParseBool(msg.Data["critical"])
		delegate.DidFindUpdate(msg.Data["version"], msg.Data["build"], critical)
	case MessageUpdateNotFound:
		delegate.DidNotFindUpdate()
	case MessageDownloadStarted:
		delegate.DidStartDownload()
	case MessageDownloadFinished:
		delegate.DidFinishDownload()
	case MessageExtractionStarted:
		delegate.DidStartExtraction()
	case MessageExtractionFinished:
		delegate.DidFinishExtraction()
	case MessageWillRelaunch:
		delegate.WillRelaunchApplication()
	case MessageUpdateFailed:
		delegate.DidFailWithError(fmt.Errorf("%s", msg.Data["message"]))
	default:
		c.log.Warn("Unknown control message", "type", msg.Type)
	}
}
