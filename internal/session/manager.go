// Package session implements the multi-account connection lifecycle manager:
// it creates, monitors, reconnects and tears down long-lived platform client
// sessions, one per messaging account.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/waplex/waplex/internal/domain"
	"github.com/waplex/waplex/pkg/metrics"
	"go.uber.org/zap"
)

// ManagerConfig carries the constructor dependencies of the Manager. The
// manager is an explicitly constructed instance; HTTP handlers receive it
// through the application context.
type ManagerConfig struct {
	Providers   map[string]Provider
	Profiles    map[string]Profile
	Persistence Persistence
	Emitter     Emitter
	Clock       Clock
	// BulkWorkers sizes the pool executing bulk-send jobs. Default 8.
	BulkWorkers int
}

// Manager is the session lifecycle orchestrator. It is the single owner of
// the session store and the only component interpreting raw platform events
// into state transitions.
type Manager struct {
	mu sync.Mutex
	st *store

	providers map[string]Provider
	profiles  map[string]Profile
	persist   Persistence
	emitter   Emitter
	clock     Clock

	jobsMu sync.Mutex
	jobs   map[int64]*BulkJob
	pool   *ants.Pool
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Clock == nil {
		cfg.Clock = NewClock()
	}
	if cfg.Emitter == nil {
		cfg.Emitter = NopEmitter{}
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]Profile{
			PlatformWhatsApp:  WhatsAppProfile(),
			PlatformInstagram: InstagramProfile(),
		}
	}
	workers := cfg.BulkWorkers
	if workers <= 0 {
		workers = 8
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	return &Manager{
		st:        newStore(),
		providers: cfg.Providers,
		profiles:  cfg.Profiles,
		persist:   cfg.Persistence,
		emitter:   cfg.Emitter,
		clock:     cfg.Clock,
		jobs:      make(map[int64]*BulkJob),
		pool:      pool,
	}, nil
}

// CreateSession creates (or replaces) the session for an account and starts
// connecting it. The connection proceeds asynchronously; progress is
// reported through lifecycle events.
func (m *Manager) CreateSession(accountID int64, platform, identity string) error {
	if _, ok := m.providers[platform]; !ok {
		return ErrUnknownPlatform
	}
	m.recreate(accountID, platform, identity, 0)
	return nil
}

// recreate tears down any existing session and builds a fresh one, carrying
// the given reconnect attempt counter into the new incarnation.
func (m *Manager) recreate(accountID int64, platform, identity string, attempts int) {
	provider := m.providers[platform]
	profile := m.profile(platform)

	m.destroy(accountID, false)

	m.mu.Lock()
	sess := m.st.put(accountID, platform, identity)
	sess.ReconnectAttempts = attempts
	epoch := sess.epoch
	m.mu.Unlock()

	m.persistStatus(accountID, StateInitializing)
	m.emit(EvtInitializing, accountID, platform, InitializingPayload{Identity: identity})

	go m.connect(provider, profile, accountID, identity, epoch)
}

// connect obtains a platform handle, attaches it to the session and starts
// the connection. Any failure here is an initialization failure: absorbed,
// logged and routed into the reconnection engine.
func (m *Manager) connect(provider Provider, profile Profile, accountID int64, identity string, epoch uint64) {
	handlers := Handlers{
		OnPairingArtifact: func(raw string) { m.onPairingArtifact(accountID, epoch, raw) },
		OnAuthenticated:   func() { m.onAuthenticated(accountID, epoch) },
		OnReady:           func() { m.onReady(accountID, epoch) },
		OnDisconnected:    func(reason string) { m.onDisconnected(accountID, epoch, reason) },
		OnAuthFailure:     func(err error) { m.onAuthFailure(accountID, epoch, err) },
		OnMessage:         func(msg IncomingMessage) { m.onMessage(accountID, epoch, msg) },
		OnConnState: func(state string) {
			zap.L().Debug("session: transport state change",
				zap.Int64("account_id", accountID), zap.String("state", state))
		},
	}

	client, err := provider.CreateClient(context.Background(), accountID, identity, handlers)
	if err != nil {
		m.initFailure(accountID, epoch, err)
		return
	}

	m.mu.Lock()
	sess := m.st.current(accountID, epoch)
	if sess == nil {
		m.mu.Unlock()
		client.Disconnect()
		return
	}
	sess.client = client
	m.mu.Unlock()

	if err := client.Connect(context.Background()); err != nil {
		m.initFailure(accountID, epoch, err)
	}
}

func (m *Manager) initFailure(accountID int64, epoch uint64, err error) {
	m.mu.Lock()
	sess := m.st.current(accountID, epoch)
	if sess == nil {
		m.mu.Unlock()
		return
	}
	sess.State = StateError
	platform := sess.Platform
	m.mu.Unlock()

	zap.L().Warn("session: initialization failed",
		zap.Int64("account_id", accountID), zap.String("platform", platform), zap.Error(err))
	m.persistStatus(accountID, StateError)
	m.scheduleReconnect(accountID)
}

// DestroySession tears the session down and removes it from the store.
// Destroying a non-existent session is a no-op.
func (m *Manager) DestroySession(accountID int64) {
	m.destroy(accountID, false)
}

// RemoveAccountSession tears the session down and additionally logs the
// device out on the platform side. Used when the account itself is deleted.
func (m *Manager) RemoveAccountSession(accountID int64) {
	m.destroy(accountID, true)
}

func (m *Manager) destroy(accountID int64, logout bool) {
	m.mu.Lock()
	sess := m.st.remove(accountID)
	if sess == nil {
		m.mu.Unlock()
		return
	}
	sess.clearTimers()
	client := sess.client
	sess.client = nil
	sess.State = StateRemoved
	platform := sess.Platform
	m.mu.Unlock()

	if client == nil {
		return
	}
	// Handle release is best-effort; failures are logged, never thrown.
	defer func() {
		if r := recover(); r != nil {
			zap.L().Warn("session: handle release panicked",
				zap.Int64("account_id", accountID), zap.Any("panic", r))
		}
	}()
	if logout {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := client.Logout(ctx); err != nil {
			zap.L().Warn("session: logout failed",
				zap.Int64("account_id", accountID), zap.String("platform", platform), zap.Error(err))
		}
		cancel()
	}
	client.Disconnect()
}

// GetSession returns a snapshot of the account session, if present.
func (m *Manager) GetSession(accountID int64) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.st.get(accountID)
	if sess == nil {
		return Info{}, false
	}
	return sess.info(), true
}

// ListSessions returns snapshots of every live session.
func (m *Manager) ListSessions() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions := m.st.all()
	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.info())
	}
	return out
}

// StateCounts returns the number of sessions per connection state.
func (m *Manager) StateCounts() map[State]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[State]int)
	for _, s := range m.st.all() {
		counts[s.State]++
	}
	return counts
}

// ForceReconnect resets the backoff counter and rebuilds the session
// immediately. Operator action: also the escape hatch out of
// reconnect_failed.
func (m *Manager) ForceReconnect(accountID int64) error {
	m.mu.Lock()
	sess := m.st.get(accountID)
	if sess == nil {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	platform, identity := sess.Platform, sess.Identity
	m.mu.Unlock()

	m.recreate(accountID, platform, identity, 0)
	return nil
}

// Shutdown destroys every session and releases the bulk worker pool.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ids := make([]int64, 0, len(m.st.sessions))
	for id := range m.st.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.destroy(id, false)
	}
	m.pool.Release()
}

// ---- lifecycle callbacks ----

func (m *Manager) onAuthenticated(accountID int64, epoch uint64) {
	m.mu.Lock()
	sess := m.st.current(accountID, epoch)
	if sess == nil {
		m.mu.Unlock()
		return
	}
	sess.clearPairing()
	sess.State = StateAuthenticated
	platform := sess.Platform
	m.mu.Unlock()

	m.persistStatus(accountID, StateAuthenticated)
	m.emit(EvtAuthenticated, accountID, platform, nil)
}

func (m *Manager) onReady(accountID int64, epoch uint64) {
	m.mu.Lock()
	sess := m.st.current(accountID, epoch)
	if sess == nil {
		m.mu.Unlock()
		return
	}
	profile := m.profile(sess.Platform)
	sess.State = StateReady
	sess.ReconnectAttempts = 0
	sess.clearPairing()
	// The transport can recover on its own while a backoff retry is still
	// pending; that timer must not tear down the now-healthy session.
	if sess.reconnectTimer != nil {
		sess.reconnectTimer.Stop()
		sess.reconnectTimer = nil
	}
	if sess.healthTicker == nil {
		sess.healthTicker = m.clock.TickFunc(profile.HealthInterval, func() {
			m.healthTick(accountID, epoch)
		})
	}
	if profile.PollMessages && sess.pollTicker == nil {
		sess.pollTicker = m.clock.TickFunc(profile.PollInterval, func() {
			m.pollTick(accountID, epoch)
		})
	}
	jid := ""
	if sess.client != nil {
		jid = sess.client.LiveIdentity()
	}
	platform := sess.Platform
	m.mu.Unlock()

	if err := m.persist.SetAccountConnected(accountID, jid, m.clock.Now()); err != nil {
		zap.L().Warn("session: persist connected status failed",
			zap.Int64("account_id", accountID), zap.Error(err))
	}
	zap.L().Info("session: ready",
		zap.Int64("account_id", accountID), zap.String("platform", platform), zap.String("jid", jid))
	m.emit(EvtReady, accountID, platform, nil)
}

func (m *Manager) onDisconnected(accountID int64, epoch uint64, reason string) {
	m.mu.Lock()
	sess := m.st.current(accountID, epoch)
	if sess == nil {
		m.mu.Unlock()
		return
	}
	if sess.healthTicker != nil {
		sess.healthTicker.Stop()
		sess.healthTicker = nil
	}
	if sess.pollTicker != nil {
		sess.pollTicker.Stop()
		sess.pollTicker = nil
	}
	sess.clearPairing()
	sess.State = StateDisconnected
	platform := sess.Platform
	m.mu.Unlock()

	zap.L().Info("session: disconnected",
		zap.Int64("account_id", accountID), zap.String("platform", platform), zap.String("reason", reason))
	m.persistStatus(accountID, StateDisconnected)
	m.emit(EvtDisconnected, accountID, platform, DisconnectedPayload{Reason: reason})
	m.scheduleReconnect(accountID)
}

func (m *Manager) onAuthFailure(accountID int64, epoch uint64, cause error) {
	m.mu.Lock()
	sess := m.st.current(accountID, epoch)
	if sess == nil {
		m.mu.Unlock()
		return
	}
	if sess.healthTicker != nil {
		sess.healthTicker.Stop()
		sess.healthTicker = nil
	}
	if sess.pollTicker != nil {
		sess.pollTicker.Stop()
		sess.pollTicker = nil
	}
	sess.clearPairing()
	sess.State = StateAuthFailed
	platform := sess.Platform
	m.mu.Unlock()

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	zap.L().Warn("session: auth failure",
		zap.Int64("account_id", accountID), zap.String("platform", platform), zap.String("error", msg))
	m.persistStatus(accountID, StateAuthFailed)
	m.emit(EvtAuthFailure, accountID, platform, AuthFailurePayload{Error: msg})
	m.scheduleReconnect(accountID)
}

func (m *Manager) onMessage(accountID int64, epoch uint64, in IncomingMessage) {
	m.mu.Lock()
	sess := m.st.current(accountID, epoch)
	if sess == nil {
		m.mu.Unlock()
		return
	}
	platform, identity := sess.Platform, sess.Identity
	m.mu.Unlock()

	if in.PlatformMsgId != "" {
		existing, err := m.persist.FindMessageByPlatformId(platform, in.PlatformMsgId)
		if err != nil {
			zap.L().Warn("session: message dedupe lookup failed",
				zap.Int64("account_id", accountID), zap.Error(err))
		}
		if existing != nil {
			return
		}
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = m.clock.Now()
	}
	conv, err := m.persist.FindOrCreateConversation(accountID, in.Sender, in.Body, ts, true)
	if err != nil {
		zap.L().Error("session: conversation upsert failed",
			zap.Int64("account_id", accountID), zap.Error(err))
		return
	}
	record := &domain.ChatMessage{
		AccountId:      accountID,
		ConversationId: conv.ID,
		Platform:       platform,
		PlatformMsgId:  in.PlatformMsgId,
		Sender:         in.Sender,
		Recipient:      identity,
		Body:           in.Body,
		IsFromMe:       false,
		Status:         "received",
		Timestamp:      ts,
	}
	if err := m.persist.CreateMessage(record); err != nil {
		zap.L().Error("session: message persist failed",
			zap.Int64("account_id", accountID), zap.Error(err))
		return
	}
	metrics.IncrCounter("chat_messages_received", 1)
	m.emit(EvtMessage, accountID, platform, MessagePayload{Message: record, Conversation: conv})
}

// ---- helpers ----

func (m *Manager) profile(platform string) Profile {
	if p, ok := m.profiles[platform]; ok {
		return p
	}
	return WhatsAppProfile()
}

func (m *Manager) persistStatus(accountID int64, status State) {
	if err := m.persist.UpsertAccountStatus(accountID, status, m.clock.Now()); err != nil {
		zap.L().Warn("session: persist status failed",
			zap.Int64("account_id", accountID), zap.String("status", string(status)), zap.Error(err))
	}
}

func (m *Manager) emit(name string, accountID int64, platform string, payload interface{}) {
	m.emitter.Emit(Event{
		Name:      name,
		AccountId: accountID,
		Platform:  platform,
		At:        m.clock.Now(),
		Payload:   payload,
	})
}
