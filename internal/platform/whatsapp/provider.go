// Package whatsapp adapts whatsmeow clients to the session manager's
// platform capability interface.
package whatsapp

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/waplex/waplex/internal/session"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// Provider creates whatsmeow clients backed by a shared sqlstore container.
// Device rows are tagged with an account marker in BusinessName so the same
// account resolves to the same stored credentials across restarts.
type Provider struct {
	container *sqlstore.Container
}

// NewProvider wraps the application's existing database connection so
// whatsmeow credential tables live in the same database.
func NewProvider(ctx context.Context, sqlDB *sql.DB, driver string) (*Provider, error) {
	container := sqlstore.NewWithDB(sqlDB, driver, nil)
	if err := container.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("sqlstore upgrade failed: %w", err)
	}
	return &Provider{container: container}, nil
}

func accountMarker(accountID int64) string {
	return fmt.Sprintf("waplex:%d", accountID)
}

// deviceFor returns the stored device for the account, creating and
// persisting a fresh one when none exists yet.
func (p *Provider) deviceFor(ctx context.Context, accountID int64, identity string) (*store.Device, error) {
	marker := accountMarker(accountID)
	devices, err := p.container.GetAllDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlstore GetAllDevices failed: %w", err)
	}
	for _, d := range devices {
		if d != nil && d.BusinessName == marker {
			return d, nil
		}
	}

	dev := p.container.NewDevice()
	dev.PushName = identity
	dev.BusinessName = marker
	if err := p.container.PutDevice(ctx, dev); err != nil {
		// Keep going with the in-memory device; pairing still works, the
		// credentials just will not survive a restart.
		zap.L().Warn("whatsapp: PutDevice failed, using in-memory device",
			zap.Int64("account_id", accountID), zap.Error(err))
	}
	return dev, nil
}

// CreateClient implements session.Provider.
func (p *Provider) CreateClient(ctx context.Context, accountID int64, identity string, handlers session.Handlers) (session.Client, error) {
	dev, err := p.deviceFor(ctx, accountID, identity)
	if err != nil {
		return nil, err
	}

	cli := whatsmeow.NewClient(dev, nil)
	cli.AddEventHandler(func(evt interface{}) {
		switch e := evt.(type) {
		case *events.QR:
			if len(e.Codes) > 0 && handlers.OnPairingArtifact != nil {
				handlers.OnPairingArtifact(e.Codes[0])
			}
		case *events.PairSuccess:
			if handlers.OnAuthenticated != nil {
				handlers.OnAuthenticated()
			}
		case *events.Connected:
			if handlers.OnReady != nil {
				handlers.OnReady()
			}
		case *events.Disconnected:
			if handlers.OnDisconnected != nil {
				handlers.OnDisconnected("connection_closed")
			}
		case *events.StreamReplaced:
			if handlers.OnDisconnected != nil {
				handlers.OnDisconnected("stream_replaced")
			}
		case *events.LoggedOut:
			if handlers.OnAuthFailure != nil {
				handlers.OnAuthFailure(fmt.Errorf("logged out: %s", e.Reason))
			}
		case *events.ConnectFailure:
			if handlers.OnAuthFailure != nil && e.Reason.IsLoggedOut() {
				handlers.OnAuthFailure(fmt.Errorf("connect failure: %s", e.Reason))
			} else if handlers.OnDisconnected != nil {
				handlers.OnDisconnected(fmt.Sprintf("connect_failure:%d", int(e.Reason)))
			}
		case *events.Message:
			if handlers.OnMessage != nil {
				if msg, ok := inboundFromEvent(e); ok {
					handlers.OnMessage(msg)
				}
			}
		case *events.OfflineSyncCompleted:
			if handlers.OnConnState != nil {
				handlers.OnConnState("offline_sync_completed")
			}
		}
	})

	return &client{cli: cli}, nil
}

// inboundFromEvent extracts a plain text body from a message event. Media
// and reaction payloads are skipped here.
func inboundFromEvent(e *events.Message) (session.IncomingMessage, bool) {
	if e.Info.IsFromMe || e.Message == nil {
		return session.IncomingMessage{}, false
	}
	body := e.Message.GetConversation()
	if body == "" {
		if ext := e.Message.GetExtendedTextMessage(); ext != nil {
			body = ext.GetText()
		}
	}
	if body == "" {
		return session.IncomingMessage{}, false
	}
	return session.IncomingMessage{
		PlatformMsgId: e.Info.ID,
		Sender:        e.Info.Sender.ToNonAD().String(),
		SenderName:    e.Info.PushName,
		Body:          body,
		Timestamp:     e.Info.Timestamp,
	}, true
}

// client wraps one whatsmeow client as a session.Client.
type client struct {
	cli *whatsmeow.Client
}

func (c *client) Connect(ctx context.Context) error {
	return c.cli.Connect()
}

func (c *client) SendText(ctx context.Context, address, body string) (string, error) {
	jid, err := waTypes.ParseJID(address)
	if err != nil {
		return "", fmt.Errorf("invalid jid %q: %w", address, err)
	}
	resp, err := c.cli.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(body)})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *client) LiveIdentity() string {
	if c.cli == nil || !c.cli.IsConnected() || c.cli.Store == nil {
		return ""
	}
	return c.cli.Store.GetJID().String()
}

func (c *client) FetchMessages(ctx context.Context) ([]session.IncomingMessage, error) {
	// WhatsApp delivers messages by push; nothing to poll.
	return nil, nil
}

func (c *client) Disconnect() {
	c.cli.Disconnect()
}

func (c *client) Logout(ctx context.Context) error {
	return c.cli.Logout(ctx)
}
