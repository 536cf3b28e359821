package frontdesk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ============================================================================
// Test Helpers
// ============================================================================

type recordingNotifier struct {
	mu        sync.Mutex
	n         int
	warnings  []string
	errors    []string
	dismissed []string
}

func (r *recordingNotifier) ShowWarning(msg string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n++
	r.warnings = append(r.warnings, msg)
	return fmt.Sprintf("w%d", r.n)
}

func (r *recordingNotifier) ShowError(msg string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n++
	r.errors = append(r.errors, msg)
	return fmt.Sprintf("e%d", r.n)
}

func (r *recordingNotifier) Dismiss(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dismissed = append(r.dismissed, id)
}

func (r *recordingNotifier) snapshot() (warnings, errs, dismissed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.warnings...), append([]string(nil), r.errors...), append([]string(nil), r.dismissed...)
}

type countingNavigator struct{ n atomic.Int32 }

func (c *countingNavigator) RedirectToLogin() { c.n.Add(1) }

func (c *countingNavigator) count() int { return int(c.n.Load()) }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ============================================================================
// Fake sockets
// ============================================================================

type fakeSocket struct {
	in     chan []byte
	writes chan []byte
	closed chan struct{}

	once      sync.Once
	mu        sync.Mutex
	closeErr  error
	closeCode int
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		in:     make(chan []byte, 16),
		writes: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (s *fakeSocket) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-s.closed:
		return nil, s.err()
	default:
	}
	select {
	case b := <-s.in:
		return b, nil
	case <-s.closed:
		return nil, s.err()
	case <-ctx.Done():
		return nil, &CloseError{Code: CloseAbnormal, Reason: ctx.Err().Error()}
	}
}

func (s *fakeSocket) Write(ctx context.Context, data []byte) error {
	select {
	case <-s.closed:
		return errors.New("write on closed socket")
	default:
	}
	select {
	case s.writes <- data:
	default:
	}
	return nil
}

func (s *fakeSocket) Close(code int, reason string) error {
	s.mu.Lock()
	s.closeCode = code
	s.mu.Unlock()
	s.drop(code, reason)
	return nil
}

// drop simulates the peer or network closing the connection.
func (s *fakeSocket) drop(code int, reason string) {
	s.once.Do(func() {
		s.mu.Lock()
		s.closeErr = &CloseError{Code: code, Reason: reason}
		s.mu.Unlock()
		close(s.closed)
	})
}

func (s *fakeSocket) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

func (s *fakeSocket) clientCloseCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCode
}

func (s *fakeSocket) send(frame string) { s.in <- []byte(frame) }

func (s *fakeSocket) nextWrite(t *testing.T) string {
	t.Helper()
	select {
	case b := <-s.writes:
		return string(b)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a socket write")
		return ""
	}
}

type fakeDialer struct {
	dials   atomic.Int32
	sockets chan *fakeSocket
	// dial overrides the default behaviour for dial number n (1-based).
	dial func(ctx context.Context, n int) (Socket, error)
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{sockets: make(chan *fakeSocket, 32)}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Socket, error) {
	n := int(d.dials.Add(1))
	if d.dial != nil {
		if s, err := d.dial(ctx, n); s != nil || err != nil {
			return s, err
		}
	}
	s := newFakeSocket()
	d.sockets <- s
	return s, nil
}

func (d *fakeDialer) next(t *testing.T) *fakeSocket {
	t.Helper()
	select {
	case s := <-d.sockets:
		return s
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a dial")
		return nil
	}
}

func (d *fakeDialer) count() int { return int(d.dials.Load()) }
