package application

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/davarch/pipeline-lineage/internal/domain"
	"go.uber.org/zap"
)

type Scheduler struct {
	log       *zap.Logger
	use       *ScanUseCase
	every     time.Duration
	pauseFile string

	mu      sync.RWMutex
	targets []domain.ScanTarget
}

func NewScheduler(l *zap.Logger, u *ScanUseCase, targets []domain.ScanTarget, every time.Duration, pauseFile string) *Scheduler {
	return &Scheduler{
		log: l, use: u, targets: targets, every: every, pauseFile: pauseFile,
	}
}

func (s *Scheduler) UpdateTargets(targets []domain.ScanTarget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = targets
	s.log.Info("config reloaded", zap.Int("targets", len(targets)))
}

func (s *Scheduler) Targets() []domain.ScanTarget {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ScanTarget, len(s.targets))
	copy(out, s.targets)
	return out
}

func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.every)
	defer t.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.isPaused() {
		s.log.Debug("paused: skipping scan")
		return
	}

	targets := s.Targets()
	if len(targets) == 0 {
		s.log.Debug("no targets: skipping scan")
		return
	}

	if _, err := s.use.Scan(ctx, targets); err != nil {
		s.log.Warn("scan aborted", zap.Int("targets", len(targets)), zap.Error(err))
	}
}

func (s *Scheduler) isPaused() bool {
	if s.pauseFile == "" {
		return false
	}
	_, err := os.Stat(s.pauseFile)
	return err == nil
}
