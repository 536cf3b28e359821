package frontdesk

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultThrottleThreshold is the number of consecutive 429 responses that
// ends the session.
const DefaultThrottleThreshold = 3

const sessionExpiredMessage = "Your session has expired. Please log in again."

// BreakerResult is what RateLimitBreaker.OnThrottled decided.
type BreakerResult struct {
	Attempt   int
	Threshold int
	LoggedOut bool
}

// RateLimitBreaker counts consecutive throttled responses. Below the
// threshold it warns; at the threshold it ends the session.
type RateLimitBreaker struct {
	threshold int
	store     CredentialStore
	notifier  Notifier
	navigator Navigator
	log       zerolog.Logger
	metrics   *instruments

	mu        sync.Mutex
	count     int
	warningID string
}

// NewRateLimitBreaker returns a breaker that ends the session after
// threshold consecutive throttled responses. threshold <= 0 uses the default.
func NewRateLimitBreaker(threshold int, store CredentialStore, notifier Notifier, navigator Navigator, log zerolog.Logger) *RateLimitBreaker {
	if threshold <= 0 {
		threshold = DefaultThrottleThreshold
	}
	if navigator == nil {
		navigator = nopNavigator{}
	}
	if notifier == nil {
		notifier = NewLogNotifier(log)
	}
	return &RateLimitBreaker{
		threshold: threshold,
		store:     store,
		notifier:  notifier,
		navigator: navigator,
		log:       log,
		metrics:   newInstruments(),
	}
}

// OnThrottled records one throttled response. Calls are serialized so the
// user never sees two warnings at once.
func (b *RateLimitBreaker) OnThrottled() BreakerResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.count++
	attempt := b.count
	b.metrics.add(b.metrics.throttled)

	if b.warningID != "" {
		b.notifier.Dismiss(b.warningID)
		b.warningID = ""
	}

	if attempt >= b.threshold {
		b.count = 0
		b.log.Warn().Int("attempt", attempt).Int("threshold", b.threshold).Msg("rate limit threshold reached, ending session")
		b.metrics.add(b.metrics.forcedLogouts, attribute.String("reason", "rate_limit"))
		if err := b.store.Clear(); err != nil {
			b.log.Error().Err(err).Msg("clear credentials")
		}
		b.notifier.ShowError("Too many requests. " + sessionExpiredMessage)
		b.navigator.RedirectToLogin()
		return BreakerResult{Attempt: attempt, Threshold: b.threshold, LoggedOut: true}
	}

	b.log.Warn().Int("attempt", attempt).Int("threshold", b.threshold).Msg("rate limited")
	b.warningID = b.notifier.ShowWarning(fmt.Sprintf("Too many requests, slow down (%d/%d).", attempt, b.threshold))
	return BreakerResult{Attempt: attempt, Threshold: b.threshold}
}

// OnSuccess resets the consecutive counter.
func (b *RateLimitBreaker) OnSuccess() {
	b.mu.Lock()
	b.count = 0
	b.mu.Unlock()
}

// Count returns the current number of consecutive throttled responses.
func (b *RateLimitBreaker) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
