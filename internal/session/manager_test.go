package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waplex/waplex/pkg/metrics"
)

func TestCreateSessionUnknownPlatform(t *testing.T) {
	t.Parallel()
	rig := newRig(t, WhatsAppProfile())

	err := rig.mgr.CreateSession(1, "telegram", "628123")
	assert.ErrorIs(t, err, ErrUnknownPlatform)
}

func TestLifecycleReachesReady(t *testing.T) {
	t.Parallel()
	rig := newRig(t, WhatsAppProfile())

	require.NoError(t, rig.mgr.CreateSession(7, PlatformWhatsApp, "628123"))
	c := rig.waitClient(t)

	info, found := rig.mgr.GetSession(7)
	require.True(t, found)
	assert.Equal(t, StateInitializing, info.State)

	c.handlers.OnAuthenticated()
	info, _ = rig.mgr.GetSession(7)
	assert.Equal(t, StateAuthenticated, info.State)

	c.handlers.OnReady()
	info, _ = rig.mgr.GetSession(7)
	assert.Equal(t, StateReady, info.State)
	assert.Equal(t, 0, info.ReconnectAttempts)

	assert.Equal(t, StateReady, rig.persist.status(7))
	rig.persist.mu.Lock()
	jid := rig.persist.jids[7]
	rig.persist.mu.Unlock()
	assert.Equal(t, "628123@s.whatsapp.net", jid)

	assert.Equal(t, []string{EvtInitializing, EvtAuthenticated, EvtReady}, rig.emitter.names())
}

func TestDestroySessionIsIdempotent(t *testing.T) {
	t.Parallel()
	rig := newRig(t, WhatsAppProfile())

	rig.ready(t, 3, PlatformWhatsApp, "628123")
	rig.mgr.DestroySession(3)
	rig.mgr.DestroySession(3)

	_, found := rig.mgr.GetSession(3)
	assert.False(t, found)
}

func TestRemoveAccountSessionLogsOut(t *testing.T) {
	t.Parallel()
	rig := newRig(t, WhatsAppProfile())

	c := rig.ready(t, 4, PlatformWhatsApp, "628123")
	rig.mgr.RemoveAccountSession(4)

	c.mu.Lock()
	loggedOut := c.loggedOut
	c.mu.Unlock()
	assert.True(t, loggedOut)
	_, found := rig.mgr.GetSession(4)
	assert.False(t, found)
}

func TestStaleCallbacksAreIgnored(t *testing.T) {
	t.Parallel()
	rig := newRig(t, WhatsAppProfile())

	old := rig.ready(t, 5, PlatformWhatsApp, "628123")

	// Replace the session; the old incarnation's callbacks must become
	// no-ops.
	require.NoError(t, rig.mgr.ForceReconnect(5))
	fresh := rig.waitClient(t)

	before := rig.emitter.count(EvtDisconnected)
	old.handlers.OnDisconnected("gone")
	assert.Equal(t, before, rig.emitter.count(EvtDisconnected))

	info, found := rig.mgr.GetSession(5)
	require.True(t, found)
	assert.Equal(t, StateInitializing, info.State)

	fresh.handlers.OnReady()
	info, _ = rig.mgr.GetSession(5)
	assert.Equal(t, StateReady, info.State)
}

func TestForceReconnectResetsAttempts(t *testing.T) {
	t.Parallel()
	rig := newRig(t, WhatsAppProfile())

	c := rig.ready(t, 6, PlatformWhatsApp, "628123")
	c.handlers.OnDisconnected("net down")

	info, _ := rig.mgr.GetSession(6)
	assert.Equal(t, StateReconnecting, info.State)
	assert.Equal(t, 1, info.ReconnectAttempts)

	require.NoError(t, rig.mgr.ForceReconnect(6))
	rig.waitClient(t)

	info, _ = rig.mgr.GetSession(6)
	assert.Equal(t, 0, info.ReconnectAttempts)
}

func TestForceReconnectUnknownSession(t *testing.T) {
	t.Parallel()
	rig := newRig(t, WhatsAppProfile())

	assert.ErrorIs(t, rig.mgr.ForceReconnect(404), ErrSessionNotFound)
}

func TestStateCounts(t *testing.T) {
	t.Parallel()
	rig := newRig(t, WhatsAppProfile())

	rig.ready(t, 10, PlatformWhatsApp, "111")
	require.NoError(t, rig.mgr.CreateSession(11, PlatformWhatsApp, "222"))
	rig.waitClient(t)

	counts := rig.mgr.StateCounts()
	assert.Equal(t, 1, counts[StateReady])
	assert.Equal(t, 1, counts[StateInitializing])
	assert.Len(t, rig.mgr.ListSessions(), 2)
}

func TestHealthProbeFailureRebuildsSession(t *testing.T) {
	t.Parallel()
	profile := WhatsAppProfile()
	rig := newRig(t, profile)

	c := rig.ready(t, 8, PlatformWhatsApp, "628123")
	c.setLive("")

	rig.clock.Advance(profile.HealthInterval)

	info, _ := rig.mgr.GetSession(8)
	assert.Equal(t, StateReconnecting, info.State)

	evt, ok := rig.emitter.last(EvtDisconnected)
	require.True(t, ok)
	payload, ok := evt.Payload.(DisconnectedPayload)
	require.True(t, ok)
	assert.Equal(t, "health_check_failed", payload.Reason)
}

func TestHealthProbeSuccessTouchesActivity(t *testing.T) {
	t.Parallel()
	profile := WhatsAppProfile()
	rig := newRig(t, profile)

	rig.ready(t, 9, PlatformWhatsApp, "628123")
	rig.clock.Advance(profile.HealthInterval)

	rig.persist.mu.Lock()
	_, touched := rig.persist.activity[int64(9)]
	rig.persist.mu.Unlock()
	assert.True(t, touched)

	info, _ := rig.mgr.GetSession(9)
	assert.Equal(t, StateReady, info.State)
}

func TestInboundMessagePersistedAndDeduplicated(t *testing.T) {
	t.Parallel()
	rig := newRig(t, WhatsAppProfile())

	c := rig.ready(t, 12, PlatformWhatsApp, "628123")

	in := IncomingMessage{
		PlatformMsgId: "3EB0",
		Sender:        "628999@s.whatsapp.net",
		Body:          "hello",
		Timestamp:     time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}
	c.handlers.OnMessage(in)
	c.handlers.OnMessage(in)

	assert.Equal(t, 1, rig.persist.messageCount())
	assert.Equal(t, 1, rig.emitter.count(EvtMessage))

	evt, _ := rig.emitter.last(EvtMessage)
	payload := evt.Payload.(MessagePayload)
	assert.Equal(t, "hello", payload.Message.Body)
	assert.False(t, payload.Message.IsFromMe)
	assert.Equal(t, "received", payload.Message.Status)
	assert.Equal(t, payload.Conversation.ID, payload.Message.ConversationId)
}

func TestPollingPlatformFetchesMessages(t *testing.T) {
	t.Parallel()
	profile := InstagramProfile()
	rig := newRig(t, profile)

	require.NoError(t, rig.mgr.CreateSession(13, PlatformInstagram, "waplex.shop"))
	c := rig.waitClient(t)
	c.handlers.OnAuthenticated()
	c.handlers.OnReady()

	c.mu.Lock()
	c.inbox = []IncomingMessage{
		{PlatformMsgId: "ig-1", Sender: "buyer.one", Body: "harga?"},
		{PlatformMsgId: "ig-2", Sender: "buyer.two", Body: "stok ready?"},
	}
	c.mu.Unlock()

	rig.clock.Advance(profile.PollInterval)
	assert.Equal(t, 2, rig.persist.messageCount())

	// same inbox on the next poll must not duplicate anything
	rig.clock.Advance(profile.PollInterval)
	assert.Equal(t, 2, rig.persist.messageCount())
}

func TestConcurrentCreateAndDestroy(t *testing.T) {
	t.Parallel()
	rig := newRig(t, WhatsAppProfile())

	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := int64(200 + n%4)
			for i := 0; i < 30; i++ {
				switch i % 3 {
				case 0:
					assert.NoError(t, rig.mgr.CreateSession(id, PlatformWhatsApp, "628123"))
				case 1:
					rig.mgr.DestroySession(id)
				default:
					rig.mgr.GetSession(id)
				}
			}
		}(n)
	}
	wg.Wait()

	for id := int64(200); id < 204; id++ {
		rig.mgr.DestroySession(id)
	}
	assert.Empty(t, rig.mgr.ListSessions())
}

func TestInboundMessageCountsReceived(t *testing.T) {
	t.Parallel()
	rig := newRig(t, WhatsAppProfile())
	c := rig.ready(t, 33, PlatformWhatsApp, "628123")

	before := metrics.CounterValue("chat_messages_received")
	c.handlers.OnMessage(IncomingMessage{PlatformMsgId: "wa-33", Sender: "628555@s.whatsapp.net", Body: "ping"})
	// the counter is process-global, parallel tests may add on top
	assert.GreaterOrEqual(t, metrics.CounterValue("chat_messages_received")-before, int64(1))
}

func TestInboundMessageBumpsUnreadCount(t *testing.T) {
	t.Parallel()
	rig := newRig(t, WhatsAppProfile())
	c := rig.ready(t, 34, PlatformWhatsApp, "628123")

	sender := "628777@s.whatsapp.net"
	c.handlers.OnMessage(IncomingMessage{PlatformMsgId: "wa-34a", Sender: sender, Body: "halo"})
	c.handlers.OnMessage(IncomingMessage{PlatformMsgId: "wa-34b", Sender: sender, Body: "ada?"})
	assert.Equal(t, 2, rig.persist.unreadCount(34, sender))

	// replies never count as unread
	_, err := rig.mgr.SendMessage(context.Background(), 34, "628777", "ready besok")
	require.NoError(t, err)
	assert.Equal(t, 2, rig.persist.unreadCount(34, sender))
}
