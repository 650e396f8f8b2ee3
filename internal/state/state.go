// Package state holds the process-wide record of the session's runtime
// status. The controller is the only writer; the watchdog and the HTTP
// facade read snapshots.
package state

import (
	"sync"
	"time"

	"github.com/wabridge/wabridge/internal/domain"
)

// Store is the single source of truth for session status. All mutation goes
// through the lifecycle controller; everything else reads via Snapshot.
type Store struct {
	mu sync.RWMutex

	phase         domain.Phase
	qrPayload     string
	authenticated bool
	lastReadyAt   time.Time
	webhookURL    string
	listening     bool
	restarting    bool
	startedAt     time.Time
}

// Snapshot is a point-in-time, lock-free copy of the store's fields.
type Snapshot struct {
	Phase         domain.Phase
	QRPayload     string
	Authenticated bool
	LastReadyAt   time.Time
	WebhookURL    string
	Listening     bool
	Restarting    bool
	StartedAt     time.Time
}

func NewStore() *Store {
	return &Store{
		phase:     domain.PhaseUninitialized,
		startedAt: time.Now(),
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Phase:         s.phase,
		QRPayload:     s.qrPayload,
		Authenticated: s.authenticated,
		LastReadyAt:   s.lastReadyAt,
		WebhookURL:    s.webhookURL,
		Listening:     s.listening,
		Restarting:    s.restarting,
		StartedAt:     s.startedAt,
	}
}

func (s *Store) Phase() domain.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// ResetForInit moves the store into Initializing and clears the per-attempt
// flags. Called at the start of every initialization, first boot and
// re-initialization alike.
func (s *Store) ResetForInit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = domain.PhaseInitializing
	s.qrPayload = ""
	s.authenticated = false
	s.lastReadyAt = time.Time{}
}

// SetQR records a fresh pairing code. Returns false when the current phase
// does not accept a QR event, in which case nothing changes.
func (s *Store) SetQR(payload string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !domain.CanTransition(s.phase, domain.PhaseAwaitingQR) {
		return false
	}
	s.phase = domain.PhaseAwaitingQR
	s.qrPayload = payload
	s.authenticated = false
	return true
}

// SetAuthenticated marks the pairing handshake as accepted. The QR payload
// is cleared: it must never outlive AwaitingQR.
func (s *Store) SetAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !domain.CanTransition(s.phase, domain.PhaseAuthenticated) {
		return false
	}
	s.phase = domain.PhaseAuthenticated
	s.qrPayload = ""
	s.authenticated = true
	return true
}

// SetReady marks the session live. Ready implies authenticated even when no
// authenticated event preceded it (restored credentials skip the handshake).
// The restart guard is cleared so the next failure can trigger recovery.
func (s *Store) SetReady(at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !domain.CanTransition(s.phase, domain.PhaseReady) {
		return false
	}
	s.phase = domain.PhaseReady
	s.qrPayload = ""
	s.authenticated = true
	s.lastReadyAt = at
	s.restarting = false
	return true
}

// BeginRestart is the restart guard: a synchronous test-and-set that admits
// at most one recovery at a time. Callers that get false must drop their
// trigger; an earlier recovery is already in flight.
func (s *Store) BeginRestart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.restarting {
		return false
	}
	s.restarting = true
	s.phase = domain.PhaseRestarting
	s.qrPayload = ""
	s.authenticated = false
	return true
}

// EndRestart clears the guard so the follow-up initialization (or a later
// failure during it) can proceed.
func (s *Store) EndRestart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restarting = false
}

func (s *Store) SetListening(listening bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listening = listening
}

func (s *Store) SetWebhookURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhookURL = url
}

// Uptime reports how long the process has been running.
func (s *Store) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startedAt)
}
