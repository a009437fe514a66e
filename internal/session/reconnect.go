package session

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Jitter bounds applied to reconnect delays so many accounts dropped by the
// same outage do not reconnect in lockstep.
const (
	jitterMin = 0.75
	jitterMax = 1.25
)

var (
	jitterMu  sync.Mutex
	jitterRng = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// backoffDelay computes the unjittered exponential delay for the given
// attempt number: min(base * 2^attempt, ceiling).
func backoffDelay(p Profile, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// 2^attempt overflows quickly; anything past 30 doublings is over any
	// sane ceiling already.
	if attempt > 30 {
		return p.BackoffCeiling
	}
	d := p.BackoffBase << uint(attempt)
	if d > p.BackoffCeiling || d <= 0 {
		d = p.BackoffCeiling
	}
	return d
}

func jitteredDelay(p Profile, attempt int) time.Duration {
	jitterMu.Lock()
	factor := jitterMin + jitterRng.Float64()*(jitterMax-jitterMin)
	jitterMu.Unlock()
	return time.Duration(float64(backoffDelay(p, attempt)) * factor)
}

// scheduleReconnect drives the {disconnected, auth_failed, error} ->
// reconnecting -> {initializing, reconnect_failed} transitions. Invoked on
// disconnect, auth failure, initialization error and failed health probes.
func (m *Manager) scheduleReconnect(accountID int64) {
	m.mu.Lock()
	sess := m.st.get(accountID)
	if sess == nil {
		m.mu.Unlock()
		return
	}
	profile := m.profile(sess.Platform)
	platform, identity := sess.Platform, sess.Identity

	if sess.ReconnectAttempts >= profile.MaxAttempts {
		sess.clearTimers()
		sess.State = StateReconnectFailed
		m.mu.Unlock()

		zap.L().Error("session: reconnect attempts exhausted, manual intervention required",
			zap.Int64("account_id", accountID),
			zap.String("platform", platform),
			zap.Int("max_attempts", profile.MaxAttempts))
		m.persistStatus(accountID, StateReconnectFailed)
		m.emit(EvtReconnectFail, accountID, platform, nil)
		return
	}

	delay := jitteredDelay(profile, sess.ReconnectAttempts)
	sess.ReconnectAttempts++
	attempt := sess.ReconnectAttempts
	sess.State = StateReconnecting
	epoch := sess.epoch
	if sess.reconnectTimer != nil {
		sess.reconnectTimer.Stop()
	}
	sess.reconnectTimer = m.clock.AfterFunc(delay, func() {
		// A replaced or removed session invalidates the pending reconnect.
		m.mu.Lock()
		cur := m.st.current(accountID, epoch)
		if cur == nil {
			m.mu.Unlock()
			return
		}
		attempts := cur.ReconnectAttempts
		m.mu.Unlock()
		m.recreate(accountID, platform, identity, attempts)
	})
	m.mu.Unlock()

	zap.L().Info("session: reconnect scheduled",
		zap.Int64("account_id", accountID),
		zap.String("platform", platform),
		zap.Int("attempt", attempt),
		zap.Int("max_attempts", profile.MaxAttempts),
		zap.Duration("delay", delay))
	m.persistStatus(accountID, StateReconnecting)
	m.emit(EvtReconnecting, accountID, platform, ReconnectingPayload{
		Attempt:     attempt,
		MaxAttempts: profile.MaxAttempts,
	})
}
