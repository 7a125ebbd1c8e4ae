package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chainpulse/wallet-tracker/internal/models"
	"github.com/chainpulse/wallet-tracker/pkg/utils"
)

// Ingestor runs one fetch-filter-persist pass for a wallet-chain pair
type Ingestor interface {
	Ingest(ctx context.Context, wallet *models.TrackedWallet, chain string) error
}

// WalletSource lists the wallets to poll and cleans up ephemeral ones
type WalletSource interface {
	GetWallets(ctx context.Context) ([]*models.TrackedWallet, error)
	DeleteTemporalWallets(ctx context.Context) (int64, error)
}

// Rotator is the credential pool as the scheduler sees it
type Rotator interface {
	PoolSize() int
	Current(ctx context.Context) (key string, index int, err error)
	AdvanceIfStillAt(ctx context.Context, observed int) (int, error)
	ResetToZero(ctx context.Context) error
}

// Alerter carries operator alerts
type Alerter interface {
	AlertOperator(ctx context.Context, message string)
}

// Config holds scheduler configuration
type Config struct {
	PollInterval    time.Duration
	CursorResetTime string // HH:MM local time
	SweepInterval   time.Duration
}

// Scheduler drives the tracker: a fleet sweep every poll interval, a daily
// credential cursor reset, and a periodic cleanup of temporal wallets.
type Scheduler struct {
	config   *Config
	ingestor Ingestor
	wallets  WalletSource
	rotator  Rotator
	alerter  Alerter
	logger   *logrus.Logger

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler
func NewScheduler(config *Config, ingestor Ingestor, wallets WalletSource, rotator Rotator, alerter Alerter) *Scheduler {
	return &Scheduler{
		config:   config,
		ingestor: ingestor,
		wallets:  wallets,
		rotator:  rotator,
		alerter:  alerter,
		logger:   utils.GetLogger(),
	}
}

// Start begins the scheduling loops
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Scheduler already running", "")
	}

	s.logger.WithFields(logrus.Fields{
		"poll_interval":     s.config.PollInterval,
		"cursor_reset_time": s.config.CursorResetTime,
		"sweep_interval":    s.config.SweepInterval,
	}).Info("Starting scheduler")

	s.stopChan = make(chan struct{})
	s.running = true

	s.wg.Add(1)
	go s.pollLoop(ctx)

	if s.config.CursorResetTime != "" {
		s.wg.Add(1)
		go s.resetLoop(ctx)
	}

	if s.config.SweepInterval > 0 {
		s.wg.Add(1)
		go s.sweepLoop(ctx)
	}

	return nil
}

// Stop halts the scheduling loops and waits for in-flight work
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
	return nil
}

// IsRunning returns whether the scheduler is active
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// pollLoop runs the fleet sweep on the poll interval
func (s *Scheduler) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Tick runs one fleet sweep: every tracked wallet is polled on every one of
// its chains, failures isolated per pair, and the credential cursor advanced
// one step at the end so load spreads across the pool.
func (s *Scheduler) Tick(ctx context.Context) {
	if s.rotator.PoolSize() == 0 {
		s.logger.Warn("Skipping sweep, credential pool is empty")
		if s.alerter != nil {
			s.alerter.AlertOperator(ctx, "Fleet sweep skipped: no API keys configured")
		}
		return
	}

	wallets, err := s.wallets.GetWallets(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list tracked wallets")
		return
	}
	if len(wallets) == 0 {
		return
	}

	var sweepWg sync.WaitGroup
	for _, wallet := range wallets {
		for _, chain := range wallet.Chains {
			sweepWg.Add(1)
			go func(w *models.TrackedWallet, c string) {
				defer sweepWg.Done()
				if err := s.ingestor.Ingest(ctx, w, c); err != nil {
					s.logger.WithError(err).WithFields(logrus.Fields{
						"wallet": w.Wallet,
						"chain":  c,
					}).Error("Ingestion pass failed")
				}
			}(wallet, chain)
		}
	}
	sweepWg.Wait()

	// Spread the next sweep onto the next key. The cursor is read after the
	// sweep so this advance happens even when exhaustion already rotated the
	// pool mid-sweep.
	_, index, err := s.rotator.Current(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to read credential cursor")
		return
	}
	if _, err := s.rotator.AdvanceIfStillAt(ctx, index); err != nil {
		s.logger.WithError(err).Error("Failed to advance credential cursor")
	}
}

// resetLoop resets the credential cursor to the first key once a day, at the
// configured local time, matching the provider's daily quota renewal.
func (s *Scheduler) resetLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		wait, err := untilNext(s.config.CursorResetTime, time.Now())
		if err != nil {
			s.logger.WithError(err).Error("Invalid cursor reset time, reset loop disabled")
			return
		}

		select {
		case <-time.After(wait):
			if err := s.rotator.ResetToZero(ctx); err != nil {
				s.logger.WithError(err).Error("Failed to reset credential cursor")
			} else {
				s.logger.Info("Daily credential cursor reset")
			}
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweepLoop periodically removes temporal wallets and their transactions
func (s *Scheduler) sweepLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := s.wallets.DeleteTemporalWallets(ctx)
			if err != nil {
				s.logger.WithError(err).Error("Temporal wallet cleanup failed")
				continue
			}
			if removed > 0 {
				s.logger.WithField("removed", removed).Info("Temporal wallets cleaned up")
			}
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// untilNext computes the wait until the next occurrence of an HH:MM wall time
func untilNext(at string, now time.Time) (time.Duration, error) {
	parsed, err := time.Parse("15:04", at)
	if err != nil {
		return 0, err
	}

	next := time.Date(now.Year(), now.Month(), now.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now), nil
}
