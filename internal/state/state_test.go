package state

import (
	"sync"
	"testing"
	"time"

	"github.com/wabridge/wabridge/internal/domain"
)

func TestNewStore(t *testing.T) {
	s := NewStore()

	snap := s.Snapshot()
	if snap.Phase != domain.PhaseUninitialized {
		t.Errorf("expected uninitialized phase, got %v", snap.Phase)
	}
	if snap.Restarting {
		t.Error("expected restarting to be false")
	}
	if snap.StartedAt.IsZero() {
		t.Error("expected StartedAt to be set")
	}
}

func TestResetForInitClearsFlags(t *testing.T) {
	s := NewStore()
	s.ResetForInit()
	s.SetQR("code")

	s.ResetForInit()

	snap := s.Snapshot()
	if snap.Phase != domain.PhaseInitializing {
		t.Errorf("expected initializing, got %v", snap.Phase)
	}
	if snap.QRPayload != "" {
		t.Errorf("expected QR payload cleared, got %q", snap.QRPayload)
	}
	if snap.Authenticated {
		t.Error("expected authenticated cleared")
	}
}

func TestQRPayloadOnlyDuringAwaitingQR(t *testing.T) {
	s := NewStore()
	s.ResetForInit()

	if !s.SetQR("code-1") {
		t.Fatal("expected SetQR to succeed from initializing")
	}
	if snap := s.Snapshot(); snap.QRPayload != "code-1" || snap.Phase != domain.PhaseAwaitingQR {
		t.Errorf("unexpected snapshot after SetQR: %+v", snap)
	}

	// Rotation replaces the payload in place.
	if !s.SetQR("code-2") {
		t.Fatal("expected QR rotation to succeed")
	}
	if snap := s.Snapshot(); snap.QRPayload != "code-2" {
		t.Errorf("expected rotated payload, got %q", snap.QRPayload)
	}

	if !s.SetAuthenticated() {
		t.Fatal("expected SetAuthenticated to succeed from awaiting_qr")
	}
	if snap := s.Snapshot(); snap.QRPayload != "" {
		t.Errorf("expected QR payload cleared on leaving awaiting_qr, got %q", snap.QRPayload)
	}

	// QR after ready is ignored without side effects.
	s.SetReady(time.Now())
	if s.SetQR("late") {
		t.Error("expected SetQR to be rejected while ready")
	}
	if snap := s.Snapshot(); snap.QRPayload != "" || snap.Phase != domain.PhaseReady {
		t.Errorf("rejected SetQR must not mutate state: %+v", snap)
	}
}

func TestReadyImpliesAuthenticated(t *testing.T) {
	s := NewStore()
	s.ResetForInit()
	s.SetQR("abc")

	// ready straight from awaiting_qr, no authenticated event in between
	now := time.Now()
	if !s.SetReady(now) {
		t.Fatal("expected SetReady to succeed from awaiting_qr")
	}

	snap := s.Snapshot()
	if !snap.Authenticated {
		t.Error("ready must imply authenticated")
	}
	if snap.QRPayload != "" {
		t.Error("ready must clear the QR payload")
	}
	if !snap.LastReadyAt.Equal(now) {
		t.Errorf("expected LastReadyAt %v, got %v", now, snap.LastReadyAt)
	}
}

func TestSetReadyClearsRestartGuard(t *testing.T) {
	s := NewStore()
	s.ResetForInit()

	if !s.BeginRestart() {
		t.Fatal("expected BeginRestart to succeed")
	}
	s.ResetForInit()
	s.SetReady(time.Now())

	if s.Snapshot().Restarting {
		t.Error("expected restart guard cleared on ready")
	}
	if !s.BeginRestart() {
		t.Error("expected BeginRestart to succeed after ready cleared the guard")
	}
}

func TestLastReadyAtBumpsOnReentry(t *testing.T) {
	s := NewStore()
	s.ResetForInit()

	first := time.Now()
	s.SetReady(first)
	second := first.Add(time.Minute)
	if !s.SetReady(second) {
		t.Fatal("expected ready re-entry to be allowed")
	}
	if got := s.Snapshot().LastReadyAt; !got.Equal(second) {
		t.Errorf("expected LastReadyAt bumped to %v, got %v", second, got)
	}
}

func TestBeginRestartAtMostOnce(t *testing.T) {
	s := NewStore()
	s.ResetForInit()

	const n = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.BeginRestart() {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Errorf("expected exactly one BeginRestart winner, got %d", count)
	}
	if s.Phase() != domain.PhaseRestarting {
		t.Errorf("expected restarting phase, got %v", s.Phase())
	}

	s.EndRestart()
	if !s.BeginRestart() {
		t.Error("expected BeginRestart to succeed after EndRestart")
	}
}

func TestListeningAndWebhook(t *testing.T) {
	s := NewStore()

	s.SetListening(true)
	s.SetWebhookURL("https://example.com/hook")

	snap := s.Snapshot()
	if !snap.Listening {
		t.Error("expected listening true")
	}
	if snap.WebhookURL != "https://example.com/hook" {
		t.Errorf("unexpected webhook url %q", snap.WebhookURL)
	}
}
