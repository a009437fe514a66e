package session

import "time"

// State is the connection state of one account session.
type State string

const (
	StateInitializing    State = "initializing"
	StatePairingRequired State = "pairing_required"
	StateAuthenticated   State = "authenticated"
	StateReady           State = "ready"
	StateDisconnected    State = "disconnected"
	StateReconnecting    State = "reconnecting"
	StateAuthFailed      State = "auth_failed"
	StateReconnectFailed State = "reconnect_failed"
	StateError           State = "error"
	StateRemoved         State = "removed"
)

// PairingArtifact is the cached scannable pairing code for one account.
type PairingArtifact struct {
	Raw       string // raw code string from the platform
	DataURL   string // rendered PNG data URL
	ExpiresAt time.Time
}

// Session is the live in-memory record for one account connection. All
// fields are owned by the Store and mutated only under the Store mutex.
type Session struct {
	AccountId         int64
	Platform          string
	Identity          string
	State             State
	ReconnectAttempts int

	// epoch identifies this incarnation of the session. Timer callbacks
	// capture it and short-circuit once the session is replaced or removed.
	epoch uint64

	client         Client
	pairing        *PairingArtifact
	healthTicker   Ticker
	pollTicker     Ticker
	pairingTimer   Timer
	reconnectTimer Timer
}

// Info is a read-only snapshot of a session for API consumers.
type Info struct {
	AccountId         int64     `json:"account_id,string"`
	Platform          string    `json:"platform"`
	Identity          string    `json:"identity"`
	State             State     `json:"state"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	HasPairing        bool      `json:"has_pairing"`
	PairingExpiresAt  time.Time `json:"pairing_expires_at,omitempty"`
}

func (s *Session) info() Info {
	info := Info{
		AccountId:         s.AccountId,
		Platform:          s.Platform,
		Identity:          s.Identity,
		State:             s.State,
		ReconnectAttempts: s.ReconnectAttempts,
		HasPairing:        s.pairing != nil,
	}
	if s.pairing != nil {
		info.PairingExpiresAt = s.pairing.ExpiresAt
	}
	return info
}

// clearPairing drops the cached artifact and stops its expiry timer. Every
// transition out of pairing_required goes through here so the artifact is
// cached only while the session is actually waiting to be scanned.
func (s *Session) clearPairing() {
	if s.pairingTimer != nil {
		s.pairingTimer.Stop()
		s.pairingTimer = nil
	}
	s.pairing = nil
}

// clearTimers stops every timer and ticker attached to the session.
func (s *Session) clearTimers() {
	if s.healthTicker != nil {
		s.healthTicker.Stop()
		s.healthTicker = nil
	}
	if s.pollTicker != nil {
		s.pollTicker.Stop()
		s.pollTicker = nil
	}
	if s.pairingTimer != nil {
		s.pairingTimer.Stop()
		s.pairingTimer = nil
	}
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}

// store owns all per-account session state. Access goes through the Manager,
// which holds the map mutex; callbacks and operator requests can race, so
// every mutation happens under that single lock.
type store struct {
	sessions map[int64]*Session
	epochSeq uint64
}

func newStore() *store {
	return &store{sessions: make(map[int64]*Session)}
}

func (st *store) get(accountID int64) *Session {
	return st.sessions[accountID]
}

func (st *store) put(accountID int64, platform, identity string) *Session {
	st.epochSeq++
	sess := &Session{
		AccountId: accountID,
		Platform:  platform,
		Identity:  identity,
		State:     StateInitializing,
		epoch:     st.epochSeq,
	}
	st.sessions[accountID] = sess
	return sess
}

func (st *store) remove(accountID int64) *Session {
	sess := st.sessions[accountID]
	delete(st.sessions, accountID)
	return sess
}

// current reports whether the given epoch still identifies the live session
// for the account. Stale timer callbacks use this to short-circuit.
func (st *store) current(accountID int64, epoch uint64) *Session {
	sess := st.sessions[accountID]
	if sess == nil || sess.epoch != epoch {
		return nil
	}
	return sess
}

func (st *store) all() []*Session {
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	return out
}
