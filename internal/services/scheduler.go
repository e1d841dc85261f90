package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"tapfarm-backend/internal/models"
)

// FarmingScheduler owns the passive-accrual sweep: every tick, each account's
// pending farming points grow by its own multiplier. Ticks never overlap; if
// a sweep is still running when the next tick fires, that tick is skipped.
type FarmingScheduler struct {
	ledger      Ledger
	broadcaster Broadcaster
	interval    time.Duration

	inFlight atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewFarmingScheduler(ledger Ledger, broadcaster Broadcaster, interval time.Duration) *FarmingScheduler {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &FarmingScheduler{
		ledger:      ledger,
		broadcaster: broadcaster,
		interval:    interval,
		stop:        make(chan struct{}),
	}
}

func (s *FarmingScheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		logrus.WithField("interval", s.interval).Info("farming scheduler started")

		// Run once at start, then on every tick.
		s.RunSweep(ctx)

		for {
			select {
			case <-ticker.C:
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					s.RunSweep(ctx)
				}()
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *FarmingScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// RunSweep applies one accrual tick to every account. Per-account failures
// are logged and the sweep continues; a tick that fires while the previous
// sweep is still running is dropped.
func (s *FarmingScheduler) RunSweep(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		logrus.Warn("farming sweep still running, skipping tick")
		return
	}
	defer s.inFlight.Store(false)

	started := time.Now()
	var swept int

	err := s.ledger.ForEachAccount(ctx, func(acc *models.UserAccount) error {
		pending, err := s.ledger.AccrueFarming(ctx, acc.ID)
		if err != nil {
			return err
		}
		swept++
		s.broadcaster.BroadcastFarmingUpdate(acc.ID, pending)
		return nil
	})
	if err != nil {
		logrus.WithError(err).Error("farming sweep failed")
		return
	}

	logrus.WithFields(logrus.Fields{
		"accounts": swept,
		"took":     time.Since(started),
	}).Debug("farming sweep finished")
}
