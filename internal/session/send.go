package session

import (
	"context"
	"fmt"
	"time"

	"github.com/waplex/waplex/internal/domain"
	"github.com/waplex/waplex/pkg/common"
	"github.com/waplex/waplex/pkg/metrics"
	"go.uber.org/zap"
)

// Bulk job statuses.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobCompleted = "completed"
)

// BulkJob tracks one bulk-send batch. Jobs are queryable by id for the
// lifetime of the process.
type BulkJob struct {
	JobId      int64     `json:"job_id,string"`
	AccountId  int64     `json:"account_id,string"`
	Total      int       `json:"total"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// SendMessage delivers a single outbound text message. The session must be
// connected; precondition failures surface synchronously and leave the
// session untouched.
func (m *Manager) SendMessage(ctx context.Context, accountID int64, to, body string) (*domain.ChatMessage, error) {
	m.mu.Lock()
	sess := m.st.get(accountID)
	if sess == nil {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if sess.State != StateReady {
		m.mu.Unlock()
		return nil, ErrNotConnected
	}
	client := sess.client
	profile := m.profile(sess.Platform)
	platform, identity := sess.Platform, sess.Identity
	m.mu.Unlock()

	addr := profile.NormalizeAddress(to)
	platformMsgID, err := client.SendText(ctx, addr, body)
	if err != nil {
		zap.L().Warn("session: send failed",
			zap.Int64("account_id", accountID), zap.String("to", addr), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	now := m.clock.Now()
	conv, err := m.persist.FindOrCreateConversation(accountID, addr, body, now, false)
	if err != nil {
		return nil, err
	}
	msg := &domain.ChatMessage{
		AccountId:      accountID,
		ConversationId: conv.ID,
		Platform:       platform,
		PlatformMsgId:  platformMsgID,
		Sender:         identity,
		Recipient:      addr,
		Body:           body,
		IsFromMe:       true,
		Status:         "sent",
		Timestamp:      now,
	}
	if err := m.persist.CreateMessage(msg); err != nil {
		return nil, err
	}
	metrics.IncrCounter("chat_messages_sent", 1)
	m.emit(EvtMessageSent, accountID, platform, MessagePayload{Message: msg, Conversation: conv})
	return msg, nil
}

// SendBulk queues a bulk-send batch and returns its job id. Recipients are
// processed sequentially with a fixed inter-message delay; a single
// recipient's failure never aborts the batch.
func (m *Manager) SendBulk(accountID int64, recipients []string, body string) (int64, error) {
	m.mu.Lock()
	sess := m.st.get(accountID)
	if sess == nil {
		m.mu.Unlock()
		return 0, ErrSessionNotFound
	}
	if sess.State != StateReady {
		m.mu.Unlock()
		return 0, ErrNotConnected
	}
	profile := m.profile(sess.Platform)
	platform := sess.Platform
	m.mu.Unlock()

	job := &BulkJob{
		JobId:     common.UUIDint64(),
		AccountId: accountID,
		Total:     len(recipients),
		Status:    JobQueued,
	}
	m.jobsMu.Lock()
	m.jobs[job.JobId] = job
	m.jobsMu.Unlock()

	if err := m.pool.Submit(func() {
		m.runBulk(job.JobId, accountID, platform, profile.BulkDelay, recipients, body)
	}); err != nil {
		m.jobsMu.Lock()
		delete(m.jobs, job.JobId)
		m.jobsMu.Unlock()
		return 0, err
	}
	return job.JobId, nil
}

func (m *Manager) runBulk(jobID, accountID int64, platform string, delay time.Duration, recipients []string, body string) {
	m.jobsMu.Lock()
	job := m.jobs[jobID]
	if job == nil {
		m.jobsMu.Unlock()
		return
	}
	job.Status = JobRunning
	job.StartedAt = m.clock.Now()
	m.jobsMu.Unlock()

	for i, to := range recipients {
		_, err := m.SendMessage(context.Background(), accountID, to, body)
		m.jobsMu.Lock()
		if err != nil {
			job.Failed++
		} else {
			job.Successful++
		}
		m.jobsMu.Unlock()
		if i < len(recipients)-1 {
			m.clock.Sleep(delay)
		}
	}

	m.jobsMu.Lock()
	job.Status = JobCompleted
	job.FinishedAt = m.clock.Now()
	summary := *job
	m.jobsMu.Unlock()

	zap.L().Info("session: bulk send completed",
		zap.Int64("job_id", jobID),
		zap.Int64("account_id", accountID),
		zap.Int("total", summary.Total),
		zap.Int("successful", summary.Successful),
		zap.Int("failed", summary.Failed))
	m.emit(EvtBulkCompleted, accountID, platform, BulkCompletedPayload{
		JobId:      summary.JobId,
		Total:      summary.Total,
		Successful: summary.Successful,
		Failed:     summary.Failed,
	})
}

// JobStatus returns a snapshot of a bulk job.
func (m *Manager) JobStatus(jobID int64) (BulkJob, error) {
	m.jobsMu.Lock()
	defer m.jobsMu.Unlock()
	job := m.jobs[jobID]
	if job == nil {
		return BulkJob{}, ErrJobNotFound
	}
	return *job, nil
}
