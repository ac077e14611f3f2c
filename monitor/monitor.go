package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/droniapp/go-auth-client/session"
	"github.com/droniapp/go-auth-client/token/jwt"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Reissuer exchanges the current token for a fresh one. *gateway.Client is
// the production implementation, which shares its single-flight with
// requests that hit a 401.
type Reissuer interface {
	Reissue(ctx context.Context) (string, error)
}

// Monitor refreshes the session token ahead of its expiry. While monitoring,
// exactly one check is pending; each check reissues the token when it is
// close enough to exp and schedules the next one from what is left.
type Monitor struct {
	store    *session.Store
	reissuer Reissuer

	scheduler        Scheduler
	refreshThreshold time.Duration
	maxCheckInterval time.Duration
	visibilityBuffer time.Duration
	logger           zerolog.Logger

	mu         sync.Mutex
	monitoring bool
	timer      Timer
	generation uint64
}

type Option func(*Monitor)

func WithScheduler(scheduler Scheduler) Option {
	return func(m *Monitor) {
		m.scheduler = scheduler
	}
}

// WithRefreshThreshold sets how much lifetime may remain before a check
// reissues the token.
func WithRefreshThreshold(threshold time.Duration) Option {
	return func(m *Monitor) {
		if threshold > 0 {
			m.refreshThreshold = threshold
		}
	}
}

func WithMaxCheckInterval(interval time.Duration) Option {
	return func(m *Monitor) {
		if interval > 0 {
			m.maxCheckInterval = interval
		}
	}
}

// WithVisibilityBuffer sets how close to expiry a token must be for OnVisible
// to reissue it.
func WithVisibilityBuffer(buffer time.Duration) Option {
	return func(m *Monitor) {
		if buffer > 0 {
			m.visibilityBuffer = buffer
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

func New(store *session.Store, reissuer Reissuer, options ...Option) *Monitor {
	m := &Monitor{
		store:            store,
		reissuer:         reissuer,
		scheduler:        RealScheduler,
		refreshThreshold: jwt.DefaultRefreshThreshold,
		maxCheckInterval: jwt.DefaultMaxCheckInterval,
		visibilityBuffer: jwt.DefaultExpiryBuffer,
		logger:           log.Logger.With().Str("component", "token_monitor").Logger(),
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Attach follows the store: the monitor runs while the session is
// authenticated and stops otherwise. It starts right away if the session is
// already authenticated. The returned func detaches and stops the monitor.
func (m *Monitor) Attach() (detach func()) {
	// Decide from the current state; the snapshot may already be outdated.
	unsubscribe := m.store.Subscribe(func(session.State) {
		if m.store.IsAuthenticated() {
			m.Start()
			return
		}
		m.Stop()
	})

	if m.store.IsAuthenticated() {
		m.Start()
	}

	return func() {
		unsubscribe()
		m.Stop()
	}
}

// Start begins monitoring with an immediate check. It does nothing if the
// monitor is already running.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.monitoring {
		return
	}
	m.monitoring = true
	m.generation++
	m.logger.Debug().Msg("Token monitoring started")
	m.armLocked(m.generation, 0)
}

// Stop cancels the pending check. Calling it on a stopped monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if !m.monitoring {
		return
	}
	m.monitoring = false
	m.generation++
	m.logger.Debug().Msg("Token monitoring stopped")
}

func (m *Monitor) IsMonitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.monitoring
}

// OnVisible is called when the app returns to the foreground. A token that
// expired, or is about to, while the app was hidden is reissued at once.
// Failures are logged; the gateway has already logged the session out.
func (m *Monitor) OnVisible(ctx context.Context) {
	if !m.store.IsAuthenticated() {
		return
	}
	token := m.store.Token()
	if token == "" || !jwt.IsExpiredOrExpiring(token, m.visibilityBuffer) {
		return
	}

	m.logger.Info().Msg("Token expiring after visibility change, reissuing")
	if _, err := m.reissuer.Reissue(ctx); err != nil {
		m.logger.Err(err).Msg("Token reissue on visibility change failed")
	}
}

// arm schedules the next check for generation. It is dropped if the monitor
// stopped or restarted since that generation began.
func (m *Monitor) arm(generation uint64, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armLocked(generation, d)
}

func (m *Monitor) armLocked(generation uint64, d time.Duration) {
	if !m.monitoring || generation != m.generation {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = m.scheduler.AfterFunc(d, func() { m.fire(generation) })
}

func (m *Monitor) fire(generation uint64) {
	m.mu.Lock()
	if !m.monitoring || generation != m.generation {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.mu.Unlock()

	m.check(generation)
}

func (m *Monitor) check(generation uint64) {
	token := m.store.Token()
	if token == "" {
		m.Stop()
		return
	}

	if jwt.ShouldRefresh(token, m.refreshThreshold) {
		m.logger.Info().Int64("remaining_seconds", jwt.RemainingSeconds(token)).Msg("Token close to expiry, reissuing")
		if _, err := m.reissuer.Reissue(context.Background()); err != nil {
			m.logger.Err(err).Msg("Scheduled token reissue failed")
			m.Stop()
			return
		}
		token = m.store.Token()
		if token == "" {
			m.Stop()
			return
		}
	}

	next, ok := jwt.NextCheckInterval(token, m.maxCheckInterval)
	if !ok {
		m.logger.Warn().Msg("Token already expired, monitoring stopped")
		m.Stop()
		return
	}

	m.logger.Debug().Dur("next_check", next).Msg("Next token check scheduled")
	m.arm(generation, next)
}
