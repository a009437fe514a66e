package session

import (
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// renderArtifact encodes the raw pairing code as a PNG data URL the
// dashboard can drop into an <img> tag. Falls back to the raw string when
// rendering fails.
func renderArtifact(raw string) string {
	png, err := qrcode.Encode(raw, qrcode.Medium, 256)
	if err != nil {
		zap.L().Warn("session: qr render failed, returning raw code", zap.Error(err))
		return raw
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

// onPairingArtifact caches a freshly issued pairing code, schedules its
// expiry and announces it to observers.
func (m *Manager) onPairingArtifact(accountID int64, epoch uint64, raw string) {
	artifact := renderArtifact(raw)

	m.mu.Lock()
	sess := m.st.current(accountID, epoch)
	if sess == nil {
		m.mu.Unlock()
		return
	}
	profile := m.profile(sess.Platform)
	if sess.pairingTimer != nil {
		sess.pairingTimer.Stop()
	}
	expiresAt := m.clock.Now().Add(profile.PairingWindow)
	sess.pairing = &PairingArtifact{Raw: raw, DataURL: artifact, ExpiresAt: expiresAt}
	sess.State = StatePairingRequired
	sess.pairingTimer = m.clock.AfterFunc(profile.PairingWindow, func() {
		m.expirePairing(accountID, epoch)
	})
	platform := sess.Platform
	m.mu.Unlock()

	zap.L().Info("session: pairing artifact issued",
		zap.Int64("account_id", accountID), zap.String("platform", platform))
	m.persistStatus(accountID, StatePairingRequired)
	m.emit(EvtPairingReady, accountID, platform, PairingReadyPayload{
		Artifact:  artifact,
		ExpiresAt: expiresAt,
	})
}

func (m *Manager) expirePairing(accountID int64, epoch uint64) {
	m.mu.Lock()
	sess := m.st.current(accountID, epoch)
	if sess == nil || sess.pairing == nil {
		m.mu.Unlock()
		return
	}
	sess.pairing = nil
	sess.pairingTimer = nil
	platform := sess.Platform
	m.mu.Unlock()

	zap.L().Info("session: pairing artifact expired", zap.Int64("account_id", accountID))
	m.emit(EvtPairingExpired, accountID, platform, nil)
}

// CachedPairingArtifact returns the cached artifact for an account, or nil
// when none is cached or it has expired.
func (m *Manager) CachedPairingArtifact(accountID int64) *PairingArtifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.st.get(accountID)
	if sess == nil || sess.pairing == nil {
		return nil
	}
	if !m.clock.Now().Before(sess.pairing.ExpiresAt) {
		return nil
	}
	cp := *sess.pairing
	return &cp
}

// RequestPairing asks for a fresh pairing artifact by rebuilding the
// session. Rejected while the session is connected; no disruption in that
// case.
func (m *Manager) RequestPairing(accountID int64) error {
	m.mu.Lock()
	sess := m.st.get(accountID)
	if sess == nil {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	if sess.State == StateReady {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	platform, identity := sess.Platform, sess.Identity
	m.mu.Unlock()

	m.recreate(accountID, platform, identity, 0)
	return nil
}
