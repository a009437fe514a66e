package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessagePreconditions(t *testing.T) {
	t.Parallel()
	rig := newRig(t, WhatsAppProfile())

	_, err := rig.mgr.SendMessage(context.Background(), 40, "628999", "halo")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, rig.mgr.CreateSession(40, PlatformWhatsApp, "628123"))
	rig.waitClient(t)
	_, err = rig.mgr.SendMessage(context.Background(), 40, "628999", "halo")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSendMessagePersistsAndEmits(t *testing.T) {
	t.Parallel()
	rig := newRig(t, WhatsAppProfile())

	c := rig.ready(t, 41, PlatformWhatsApp, "628123")
	msg, err := rig.mgr.SendMessage(context.Background(), 41, "+628999", "halo")
	require.NoError(t, err)

	assert.Equal(t, "628999@s.whatsapp.net", msg.Recipient)
	assert.Equal(t, "628123", msg.Sender)
	assert.True(t, msg.IsFromMe)
	assert.Equal(t, "sent", msg.Status)
	assert.Equal(t, "MSG-1", msg.PlatformMsgId)
	assert.NotZero(t, msg.ConversationId)

	c.mu.Lock()
	sent := append([]string(nil), c.sent...)
	c.mu.Unlock()
	assert.Equal(t, []string{"628999@s.whatsapp.net"}, sent)

	assert.Equal(t, 1, rig.persist.messageCount())
	assert.Equal(t, 1, rig.emitter.count(EvtMessageSent))
}

func TestSendMessageFailureWrapsSentinel(t *testing.T) {
	t.Parallel()
	rig := newRig(t, WhatsAppProfile())

	c := rig.ready(t, 42, PlatformWhatsApp, "628123")
	c.mu.Lock()
	c.failSend["628999@s.whatsapp.net"] = true
	c.mu.Unlock()

	_, err := rig.mgr.SendMessage(context.Background(), 42, "628999", "halo")
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.Equal(t, 0, rig.persist.messageCount())
}

func TestSendBulkPreconditions(t *testing.T) {
	t.Parallel()
	rig := newRig(t, WhatsAppProfile())

	_, err := rig.mgr.SendBulk(43, []string{"628999"}, "promo")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, rig.mgr.CreateSession(43, PlatformWhatsApp, "628123"))
	rig.waitClient(t)
	_, err = rig.mgr.SendBulk(43, []string{"628999"}, "promo")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSendBulkCountsPerRecipientOutcomes(t *testing.T) {
	t.Parallel()
	rig := newRig(t, WhatsAppProfile())

	c := rig.ready(t, 44, PlatformWhatsApp, "628123")
	c.mu.Lock()
	c.failSend["628222@s.whatsapp.net"] = true
	c.mu.Unlock()

	jobID, err := rig.mgr.SendBulk(44, []string{"628111", "628222", "628333"}, "promo")
	require.NoError(t, err)
	require.NotZero(t, jobID)

	require.Eventually(t, func() bool {
		job, err := rig.mgr.JobStatus(jobID)
		return err == nil && job.Status == JobCompleted
	}, 2*time.Second, 5*time.Millisecond)

	job, err := rig.mgr.JobStatus(jobID)
	require.NoError(t, err)
	assert.Equal(t, 3, job.Total)
	assert.Equal(t, 2, job.Successful)
	assert.Equal(t, 1, job.Failed)
	assert.Equal(t, 2, rig.persist.messageCount())

	evt, ok := rig.emitter.last(EvtBulkCompleted)
	require.True(t, ok)
	payload := evt.Payload.(BulkCompletedPayload)
	assert.Equal(t, jobID, payload.JobId)
	assert.Equal(t, 1, payload.Failed)
}

func TestJobStatusUnknownJob(t *testing.T) {
	t.Parallel()
	rig := newRig(t, WhatsAppProfile())

	_, err := rig.mgr.JobStatus(987654)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestNormalizeAddress(t *testing.T) {
	t.Parallel()
	wa := WhatsAppProfile()

	assert.Equal(t, "628999@s.whatsapp.net", wa.NormalizeAddress("628999"))
	assert.Equal(t, "628999@s.whatsapp.net", wa.NormalizeAddress("+628999"))
	assert.Equal(t, "628999@s.whatsapp.net", wa.NormalizeAddress(" 628999 "))
	assert.Equal(t, "628999@g.us", wa.NormalizeAddress("628999@g.us"))

	ig := InstagramProfile()
	assert.Equal(t, "buyer.one", ig.NormalizeAddress("buyer.one"))
}
