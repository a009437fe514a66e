package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/waplex/waplex/internal/domain"
)

// ---- virtual clock ----

type fakeWaiter struct {
	clock    *fakeClock
	at       time.Time
	interval time.Duration // 0 for one-shot timers
	f        func()
	stopped  bool
}

type fakeTimer struct{ w *fakeWaiter }

func (t fakeTimer) Stop() bool {
	t.w.clock.mu.Lock()
	defer t.w.clock.mu.Unlock()
	active := !t.w.stopped
	t.w.stopped = true
	return active
}

type fakeTicker struct{ w *fakeWaiter }

func (t fakeTicker) Stop() {
	t.w.clock.mu.Lock()
	t.w.stopped = true
	t.w.clock.mu.Unlock()
}

// fakeClock drives timers and tickers with virtual time. Advance fires due
// callbacks in timestamp order, outside the clock lock so callbacks may
// register new waiters.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &fakeWaiter{clock: c, at: c.now.Add(d), f: f}
	c.waiters = append(c.waiters, w)
	return fakeTimer{w: w}
}

func (c *fakeClock) TickFunc(d time.Duration, f func()) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &fakeWaiter{clock: c, at: c.now.Add(d), interval: d, f: f}
	c.waiters = append(c.waiters, w)
	return fakeTicker{w: w}
}

func (c *fakeClock) Sleep(time.Duration) {}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		var next *fakeWaiter
		for _, w := range c.waiters {
			if w.stopped || w.at.After(target) {
				continue
			}
			if next == nil || w.at.Before(next.at) {
				next = w
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.at
		if next.interval > 0 {
			next.at = next.at.Add(next.interval)
		} else {
			next.stopped = true
		}
		f := next.f
		c.mu.Unlock()
		f()
		c.mu.Lock()
	}
}

// pendingTimers counts unexpired one-shot timers.
func (c *fakeClock) pendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.waiters {
		if !w.stopped && w.interval == 0 {
			n++
		}
	}
	return n
}

// ---- fake platform provider ----

type fakeClient struct {
	mu         sync.Mutex
	handlers   Handlers
	live       string
	connectErr error
	sent       []string
	failSend   map[string]bool
	inbox      []IncomingMessage
	connected  chan struct{}
	closed     bool
	loggedOut  bool
	seq        int
}

func (c *fakeClient) Connect(context.Context) error {
	if c.connectErr != nil {
		return c.connectErr
	}
	c.mu.Lock()
	if !c.closed {
		close(c.connected)
		c.closed = true
	}
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) SendText(_ context.Context, address, _ string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend[address] {
		return "", fmt.Errorf("delivery rejected for %s", address)
	}
	c.seq++
	c.sent = append(c.sent, address)
	return fmt.Sprintf("MSG-%d", c.seq), nil
}

func (c *fakeClient) LiveIdentity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

func (c *fakeClient) setLive(v string) {
	c.mu.Lock()
	c.live = v
	c.mu.Unlock()
}

func (c *fakeClient) FetchMessages(context.Context) ([]IncomingMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inbox, nil
}

func (c *fakeClient) Disconnect() {}

func (c *fakeClient) Logout(context.Context) error {
	c.mu.Lock()
	c.loggedOut = true
	c.mu.Unlock()
	return nil
}

type fakeProvider struct {
	mu        sync.Mutex
	createErr error
	clients   []*fakeClient
	created   chan *fakeClient
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{created: make(chan *fakeClient, 256)}
}

func (p *fakeProvider) CreateClient(_ context.Context, _ int64, _ string, handlers Handlers) (Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	c := &fakeClient{
		handlers:  handlers,
		live:      "628123@s.whatsapp.net",
		failSend:  map[string]bool{},
		connected: make(chan struct{}),
	}
	p.clients = append(p.clients, c)
	p.created <- c
	return c, nil
}

func (p *fakeProvider) clientCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// ---- event capture ----

type captureEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (e *captureEmitter) Emit(evt Event) {
	e.mu.Lock()
	e.events = append(e.events, evt)
	e.mu.Unlock()
}

func (e *captureEmitter) names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, evt := range e.events {
		out = append(out, evt.Name)
	}
	return out
}

func (e *captureEmitter) count(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, evt := range e.events {
		if evt.Name == name {
			n++
		}
	}
	return n
}

func (e *captureEmitter) last(name string) (Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.events) - 1; i >= 0; i-- {
		if e.events[i].Name == name {
			return e.events[i], true
		}
	}
	return Event{}, false
}

// ---- in-memory persistence ----

type memPersistence struct {
	mu       sync.Mutex
	statuses map[int64]State
	jids     map[int64]string
	activity map[int64]time.Time
	messages []*domain.ChatMessage
	convs    map[string]*domain.ChatConversation
	nextID   int64
}

func newMemPersistence() *memPersistence {
	return &memPersistence{
		statuses: map[int64]State{},
		jids:     map[int64]string{},
		activity: map[int64]time.Time{},
		convs:    map[string]*domain.ChatConversation{},
	}
}

func (p *memPersistence) UpsertAccountStatus(accountID int64, status State, _ time.Time) error {
	p.mu.Lock()
	p.statuses[accountID] = status
	p.mu.Unlock()
	return nil
}

func (p *memPersistence) SetAccountConnected(accountID int64, jid string, at time.Time) error {
	p.mu.Lock()
	p.statuses[accountID] = StateReady
	p.jids[accountID] = jid
	p.activity[accountID] = at
	p.mu.Unlock()
	return nil
}

func (p *memPersistence) TouchAccountActivity(accountID int64, at time.Time) error {
	p.mu.Lock()
	p.activity[accountID] = at
	p.mu.Unlock()
	return nil
}

func (p *memPersistence) CreateMessage(msg *domain.ChatMessage) error {
	p.mu.Lock()
	p.nextID++
	msg.ID = p.nextID
	p.messages = append(p.messages, msg)
	p.mu.Unlock()
	return nil
}

func (p *memPersistence) FindMessageByPlatformId(platform, platformMsgID string) (*domain.ChatMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.messages {
		if m.Platform == platform && m.PlatformMsgId == platformMsgID {
			return m, nil
		}
	}
	return nil, nil
}

func (p *memPersistence) FindOrCreateConversation(accountID int64, participantID, preview string, at time.Time, inbound bool) (*domain.ChatConversation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := fmt.Sprintf("%d/%s", accountID, participantID)
	if conv, ok := p.convs[key]; ok {
		conv.LastPreview = preview
		conv.LastMessageAt = at
		if inbound {
			conv.UnreadCount++
		}
		return conv, nil
	}
	p.nextID++
	conv := &domain.ChatConversation{
		ID:            p.nextID,
		AccountId:     accountID,
		ParticipantId: participantID,
		Title:         participantID,
		LastPreview:   preview,
		LastMessageAt: at,
	}
	if inbound {
		conv.UnreadCount = 1
	}
	p.convs[key] = conv
	return conv, nil
}

func (p *memPersistence) unreadCount(accountID int64, participantID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	conv := p.convs[fmt.Sprintf("%d/%s", accountID, participantID)]
	if conv == nil {
		return 0
	}
	return conv.UnreadCount
}

func (p *memPersistence) messageCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func (p *memPersistence) status(accountID int64) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statuses[accountID]
}

// ---- rig ----

type testRig struct {
	mgr      *Manager
	clock    *fakeClock
	provider *fakeProvider
	emitter  *captureEmitter
	persist  *memPersistence
}

func newRig(t *testing.T, profile Profile) *testRig {
	t.Helper()
	rig := &testRig{
		clock:    newFakeClock(),
		provider: newFakeProvider(),
		emitter:  &captureEmitter{},
		persist:  newMemPersistence(),
	}
	mgr, err := NewManager(ManagerConfig{
		Providers:   map[string]Provider{profile.Platform: rig.provider},
		Profiles:    map[string]Profile{profile.Platform: profile},
		Persistence: rig.persist,
		Emitter:     rig.emitter,
		Clock:       rig.clock,
	})
	if err != nil {
		t.Fatalf("manager construction failed: %v", err)
	}
	rig.mgr = mgr
	t.Cleanup(mgr.Shutdown)
	return rig
}

// waitClient blocks until the provider hands out its next client.
func (r *testRig) waitClient(t *testing.T) *fakeClient {
	t.Helper()
	select {
	case c := <-r.provider.created:
		select {
		case <-c.connected:
		case <-time.After(2 * time.Second):
			t.Fatal("client never connected")
		}
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no client created")
		return nil
	}
}

// ready drives the session to the ready state and returns the live client.
func (r *testRig) ready(t *testing.T, accountID int64, platform, identity string) *fakeClient {
	t.Helper()
	if err := r.mgr.CreateSession(accountID, platform, identity); err != nil {
		t.Fatalf("create session: %v", err)
	}
	c := r.waitClient(t)
	c.handlers.OnAuthenticated()
	c.handlers.OnReady()
	return c
}
