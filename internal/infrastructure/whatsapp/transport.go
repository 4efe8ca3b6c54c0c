// Package whatsapp implements ports.Transport on top of whatsmeow. Each user
// gets a dedicated client backed by a SQLite device store, so a paired device
// survives process restarts even though the live session does not.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/zaphost/gateway/internal/core/ports"
)

const (
	eventBuffer = 32
	// lifecycleWait bounds how long a lifecycle event waits for buffer space.
	lifecycleWait = 5 * time.Second
)

var errClientNotConnected = errors.New("whatsapp client not connected")

// Transport opens whatsmeow connections.
type Transport struct {
	storeDir string
	log      zerolog.Logger
}

func NewTransport(storeDir string, log zerolog.Logger) *Transport {
	return &Transport{storeDir: storeDir, log: log}
}

// Open loads (or creates) the user's device store and connects. Unpaired
// devices report pairing codes through challenge events; paired devices go
// straight to ready.
func (t *Transport) Open(ctx context.Context, userID string) (ports.Connection, error) {
	if err := os.MkdirAll(t.storeDir, 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	log := t.log.With().Str("user_id", userID).Logger()
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(t.storeDir, "zaphost_"+userID+".db"))

	container, err := sqlstore.New(ctx, "sqlite3", dsn, waLog.Zerolog(log.With().Str("component", "store").Logger()))
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}

	client := whatsmeow.NewClient(device, waLog.Zerolog(log.With().Str("component", "client").Logger()))

	qrCtx, cancelQR := context.WithCancel(context.Background())
	c := &connection{
		client:    client,
		container: container,
		events:    make(chan ports.TransportEvent, eventBuffer),
		done:      make(chan struct{}),
		cancelQR:  cancelQR,
		log:       log,
	}
	client.AddEventHandler(c.handle)

	if client.Store.ID == nil {
		qr, err := client.GetQRChannel(qrCtx)
		if err != nil {
			c.shutdown()
			return nil, fmt.Errorf("qr channel: %w", err)
		}
		go c.forwardQR(qr)
	}

	if err := client.Connect(); err != nil {
		c.shutdown()
		return nil, fmt.Errorf("connect: %w", err)
	}

	log.Debug().Bool("paired", client.Store.ID != nil).Msg("whatsapp client connecting")
	return c, nil
}

type connection struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	cancelQR  context.CancelFunc
	log       zerolog.Logger

	mu     sync.Mutex
	closed bool
	events chan ports.TransportEvent

	// done is closed first on shutdown and releases a push waiting for space.
	done     chan struct{}
	stopOnce sync.Once
}

func (c *connection) Events() <-chan ports.TransportEvent { return c.events }

// push queues evt for the session watcher. Pairing codes are refreshed every
// few seconds, so a full buffer drops them. Lifecycle events wait for space
// until lifecycleWait or shutdown.
func (c *connection) push(evt ports.TransportEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if evt.Kind == ports.EventChallenge {
		select {
		case c.events <- evt:
		default:
			c.log.Debug().Msg("pairing code refresh dropped")
		}
		return
	}

	timer := time.NewTimer(lifecycleWait)
	defer timer.Stop()
	select {
	case c.events <- evt:
	case <-c.done:
	case <-timer.C:
		c.log.Error().Str("event", string(evt.Kind)).Msg("transport event dropped")
	}
}

func (c *connection) forwardQR(qr <-chan whatsmeow.QRChannelItem) {
	for item := range qr {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			c.push(ports.TransportEvent{Kind: ports.EventChallenge, Challenge: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			// ready follows as events.Connected
		case whatsmeow.QRChannelTimeout.Event:
			c.push(ports.TransportEvent{Kind: ports.EventAuthFailure, Reason: "pairing code expired"})
		case whatsmeow.QRChannelClientOutdated.Event:
			c.push(ports.TransportEvent{Kind: ports.EventAuthFailure, Reason: "client outdated"})
		case whatsmeow.QRChannelScannedWithoutMultidevice.Event:
			c.log.Info().Msg("pairing code scanned without multidevice enabled")
		case whatsmeow.QRChannelEventError:
			c.push(ports.TransportEvent{Kind: ports.EventError, Err: item.Error})
		}
	}
}

func (c *connection) handle(evt any) {
	switch e := evt.(type) {
	case *events.Connected:
		c.push(ports.TransportEvent{Kind: ports.EventReady})
	case *events.PairSuccess:
		c.log.Info().Str("jid", e.ID.String()).Msg("device paired")
	case *events.LoggedOut:
		c.push(ports.TransportEvent{Kind: ports.EventDisconnected, Reason: fmt.Sprintf("logged out: %v", e.Reason)})
	case *events.StreamReplaced:
		c.push(ports.TransportEvent{Kind: ports.EventDisconnected, Reason: "stream replaced"})
	case *events.TemporaryBan:
		c.push(ports.TransportEvent{Kind: ports.EventAuthFailure, Reason: e.String()})
	case *events.ConnectFailure:
		c.push(ports.TransportEvent{Kind: ports.EventError, Reason: fmt.Sprintf("connect failure: %v", e.Reason)})
	case *events.Disconnected:
		// whatsmeow reconnects on its own; only terminal events end the session
		c.log.Debug().Msg("websocket disconnected")
	}
}

// Send delivers a text message. to must be a full JID.
func (c *connection) Send(ctx context.Context, to, body string) (string, error) {
	if !c.client.IsConnected() {
		return "", errClientNotConnected
	}
	jid, err := types.ParseJID(to)
	if err != nil {
		return "", fmt.Errorf("parse recipient: %w", err)
	}

	resp, err := c.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(body)})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Close disconnects without logging the device out, so the pairing stays
// valid for the next connect.
func (c *connection) Close(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- c.shutdown() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *connection) shutdown() error {
	c.stopOnce.Do(func() { close(c.done) })
	c.cancelQR()
	c.client.Disconnect()

	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	c.mu.Unlock()

	if err := c.container.Close(); err != nil {
		return fmt.Errorf("close device store: %w", err)
	}
	return nil
}
