package session

import (
	"context"
	"strings"
	"time"
)

// Platform discriminators.
const (
	PlatformWhatsApp  = "whatsapp"
	PlatformInstagram = "instagram"
)

// IncomingMessage is a platform-agnostic inbound message as delivered by a
// platform client.
type IncomingMessage struct {
	PlatformMsgId string
	Sender        string // normalized platform address of the other party
	SenderName    string
	Body          string
	Timestamp     time.Time
}

// Handlers is the typed set of lifecycle callbacks the orchestrator wires
// into every platform client. The provider invokes them as raw platform
// events arrive; the Manager is the only component interpreting them into
// state transitions.
type Handlers struct {
	OnPairingArtifact func(raw string)
	OnAuthenticated   func()
	OnReady           func()
	OnDisconnected    func(reason string)
	OnAuthFailure     func(err error)
	OnMessage         func(msg IncomingMessage)
	// OnConnState receives raw transport state changes (WhatsApp-style
	// transports only); informational.
	OnConnState func(state string)
}

// Client is the opaque capability handle for one live platform connection.
// The Session Store entry is its exclusive owner.
type Client interface {
	// Connect starts the connection; pairing and lifecycle progress is
	// reported through the Handlers passed at creation.
	Connect(ctx context.Context) error
	// SendText delivers a text message and returns the platform message id.
	SendText(ctx context.Context, address, body string) (string, error)
	// LiveIdentity returns the connected platform identity, or "" when the
	// connection is not live.
	LiveIdentity() string
	// FetchMessages pulls pending inbound messages on polling platforms.
	// Push-based clients return nil, nil.
	FetchMessages(ctx context.Context) ([]IncomingMessage, error)
	// Disconnect releases the connection without clearing credentials.
	Disconnect()
	// Logout clears the pairing/credentials on the platform side.
	Logout(ctx context.Context) error
}

// Provider creates platform clients for one platform.
type Provider interface {
	CreateClient(ctx context.Context, accountID int64, identity string, handlers Handlers) (Client, error)
}

// Profile bundles the per-platform lifecycle tunables. The same orchestrator
// runs every platform; only the profile differs.
type Profile struct {
	Platform       string
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffCeiling time.Duration
	PairingWindow  time.Duration
	HealthInterval time.Duration
	BulkDelay      time.Duration
	// AddressSuffix is appended to bare recipient identifiers, e.g.
	// "@s.whatsapp.net" for WhatsApp JIDs.
	AddressSuffix string
	// PollMessages enables the inbound message polling loop for platforms
	// without push message events.
	PollMessages bool
	PollInterval time.Duration
}

// NormalizeAddress converts a recipient identifier into the platform's
// required address form.
func (p Profile) NormalizeAddress(to string) string {
	to = strings.TrimSpace(to)
	if p.AddressSuffix == "" || strings.Contains(to, "@") {
		return to
	}
	to = strings.TrimPrefix(to, "+")
	return to + p.AddressSuffix
}

// WhatsAppProfile returns the default WhatsApp lifecycle profile.
func WhatsAppProfile() Profile {
	return Profile{
		Platform:       PlatformWhatsApp,
		MaxAttempts:    15,
		BackoffBase:    time.Second,
		BackoffCeiling: 5 * time.Minute,
		PairingWindow:  60 * time.Second,
		HealthInterval: 60 * time.Second,
		BulkDelay:      time.Second,
		AddressSuffix:  "@s.whatsapp.net",
	}
}

// InstagramProfile returns the default Instagram lifecycle profile. Message
// retrieval is polling-based on this platform.
func InstagramProfile() Profile {
	return Profile{
		Platform:       PlatformInstagram,
		MaxAttempts:    10,
		BackoffBase:    time.Second,
		BackoffCeiling: 5 * time.Minute,
		PairingWindow:  60 * time.Second,
		HealthInterval: 60 * time.Second,
		BulkDelay:      time.Second,
		PollMessages:   true,
		PollInterval:   30 * time.Second,
	}
}
