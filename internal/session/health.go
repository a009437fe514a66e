package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// healthTick is the periodic liveness probe for one ready session. A probe
// that cannot confirm a live identity (or panics) stops the monitor and
// routes the session into the reconnection engine; it is never surfaced to
// any caller.
func (m *Manager) healthTick(accountID int64, epoch uint64) {
	m.mu.Lock()
	sess := m.st.current(accountID, epoch)
	if sess == nil || sess.State != StateReady {
		m.mu.Unlock()
		return
	}
	client := sess.client
	m.mu.Unlock()

	alive := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				zap.L().Warn("session: health probe panicked",
					zap.Int64("account_id", accountID), zap.Any("panic", r))
				alive = false
			}
		}()
		alive = client != nil && client.LiveIdentity() != ""
	}()

	if !alive {
		zap.L().Warn("session: health probe failed, rebuilding session",
			zap.Int64("account_id", accountID))
		m.onDisconnected(accountID, epoch, "health_check_failed")
		return
	}

	if err := m.persist.TouchAccountActivity(accountID, m.clock.Now()); err != nil {
		zap.L().Debug("session: activity timestamp update failed",
			zap.Int64("account_id", accountID), zap.Error(err))
	}
}

// pollTick fetches pending inbound messages on polling platforms and feeds
// them through the regular incoming-message path.
func (m *Manager) pollTick(accountID int64, epoch uint64) {
	m.mu.Lock()
	sess := m.st.current(accountID, epoch)
	if sess == nil || sess.State != StateReady || sess.client == nil {
		m.mu.Unlock()
		return
	}
	client := sess.client
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	msgs, err := client.FetchMessages(ctx)
	if err != nil {
		zap.L().Warn("session: message poll failed",
			zap.Int64("account_id", accountID), zap.Error(err))
		return
	}
	for _, msg := range msgs {
		m.onMessage(accountID, epoch, msg)
	}
}
