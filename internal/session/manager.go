package session

import (
	"context"
	"fmt"

	"kintai/internal/config"
	"kintai/internal/domain"

	"github.com/rs/zerolog"
)

// Manager owns the single-flight rule for UI automation: one session alive
// at a time, waiters served in FIFO order, teardown guaranteed on every
// exit path. Callers receive a logged-in session scoped to fn's lifetime.
type Manager struct {
	cfg     config.AutomationConfig
	factory DriverFactory
	sem     *Semaphore
	logger  *zerolog.Logger
}

func NewManager(cfg config.AutomationConfig, factory DriverFactory, logger *zerolog.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		factory: factory,
		sem:     NewSemaphore(),
		logger:  logger,
	}
}

// WithSession acquires the automation slot, boots a browser, logs in, runs
// fn, and tears everything down. The semaphore queues concurrent callers
// instead of rejecting them, so SessionBusy never surfaces to users.
func (m *Manager) WithSession(ctx context.Context, fn func(domain.Session) error) error {
	if !m.cfg.Configured() {
		return domain.ErrCredentialsNotConfigured
	}

	if err := m.sem.Acquire(ctx); err != nil {
		return fmt.Errorf("acquire automation slot: %w", err)
	}
	defer m.sem.Release()

	driver := m.factory()
	if err := driver.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer func() {
		if err := driver.Stop(); err != nil {
			m.logger.Warn().Err(err).Msg("browser teardown failed")
		}
	}()

	sess := newSession(m.cfg, driver, m.logger)
	if err := sess.Login(ctx); err != nil {
		return err
	}

	return fn(sess)
}

// Busy reports whether a session is currently active; informational only.
func (m *Manager) Busy() bool {
	return m.sem.InUse()
}

var _ domain.SessionManager = (*Manager)(nil)
