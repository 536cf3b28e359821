package frontdesk

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notifier is the user-facing notification surface.
type Notifier interface {
	// ShowWarning displays msg and returns an id usable with Dismiss.
	ShowWarning(msg string) string
	// ShowError displays msg and returns an id usable with Dismiss.
	ShowError(msg string) string
	Dismiss(id string)
}

// Navigator sends the user to the login entry point.
type Navigator interface {
	RedirectToLogin()
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func()

func (f NavigatorFunc) RedirectToLogin() { f() }

type nopNavigator struct{}

func (nopNavigator) RedirectToLogin() {}

// LogNotifier writes notifications to a zerolog logger. It is the default
// Notifier for headless use.
type LogNotifier struct {
	log zerolog.Logger

	mu     sync.Mutex
	active map[string]string
}

// NewLogNotifier returns a LogNotifier writing to log.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log, active: make(map[string]string)}
}

func (n *LogNotifier) ShowWarning(msg string) string {
	id := n.track(msg)
	n.log.Warn().Str("notification", id).Msg(msg)
	return id
}

func (n *LogNotifier) ShowError(msg string) string {
	id := n.track(msg)
	n.log.Error().Str("notification", id).Msg(msg)
	return id
}

func (n *LogNotifier) Dismiss(id string) {
	n.mu.Lock()
	delete(n.active, id)
	n.mu.Unlock()
}

// Active returns the number of notifications that have not been dismissed.
func (n *LogNotifier) Active() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.active)
}

func (n *LogNotifier) track(msg string) string {
	id := uuid.NewString()
	n.mu.Lock()
	n.active[id] = msg
	n.mu.Unlock()
	return id
}
